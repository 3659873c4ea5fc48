// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package toolkit implements the tagged tool-call protocol shared by every
// agent: tool definitions with JSON Schema argument declarations, the XML
// wire format the LLM emits, a registry of typed handlers, and an executor
// that validates arguments before dispatch. This protocol is the only
// interface between LLM output and system state.
package toolkit

import (
	"context"
	"encoding/json"
)

// Tool is a local capability an agent can invoke from a tagged response.
type Tool interface {
	// Name returns the tool's unique identifier (the XML tag name).
	Name() string

	// Description returns a human-readable description for LLM context.
	Description() string

	// InputSchema returns the JSON Schema for tool arguments.
	InputSchema() *JSONSchema

	// Execute runs the tool with the parsed arguments.
	Execute(ctx context.Context, args map[string]interface{}) (*Result, error)
}

// Result represents the outcome of a tool execution.
type Result struct {
	// Success indicates if the tool executed successfully.
	Success bool

	// Content is the tool's textual output, fed back into the calling
	// agent's event stream.
	Content string

	// Error contains error information if execution failed.
	Error *Error
}

// Error represents a tool execution error with structured information.
type Error struct {
	// Code is a machine-readable error code.
	Code string

	// Message is a human-readable error message.
	Message string

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

func (e *Error) Error() string {
	return e.Message
}

// JSONSchema represents a JSON Schema for tool arguments.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []interface{}          `json:"enum,omitempty"`
}

// ToJSON converts the schema to JSON bytes.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// NewObjectSchema creates an object schema with properties.
func NewObjectSchema(description string, properties map[string]*JSONSchema, required []string) *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: description,
		Properties:  properties,
		Required:    required,
	}
}

// NewStringSchema creates a string argument schema.
func NewStringSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: description}
}

// NewIntegerSchema creates an integer argument schema.
func NewIntegerSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "integer", Description: description}
}

// NewBooleanSchema creates a boolean argument schema.
func NewBooleanSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "boolean", Description: description}
}

// NewArraySchema creates an array argument schema.
func NewArraySchema(description string, items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: "array", Description: description, Items: items}
}

// Func is the handler signature for function-backed tools.
type Func func(ctx context.Context, args map[string]interface{}) (string, error)

// funcTool adapts a plain function to the Tool interface.
type funcTool struct {
	name        string
	description string
	schema      *JSONSchema
	fn          Func
}

// NewTool builds a Tool from a name, description, schema, and handler.
func NewTool(name, description string, schema *JSONSchema, fn Func) Tool {
	return &funcTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *funcTool) Name() string             { return t.name }
func (t *funcTool) Description() string      { return t.description }
func (t *funcTool) InputSchema() *JSONSchema { return t.schema }

func (t *funcTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	content, err := t.fn(ctx, args)
	if err != nil {
		return &Result{
			Success: false,
			Error:   &Error{Code: "execution_failed", Message: err.Error()},
		}, err
	}
	return &Result{Success: true, Content: content}, nil
}

// StringArg extracts a string argument, tolerating missing keys.
func StringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// IntArg extracts an integer argument. Executor coercion yields JSON
// numbers as float64, so both are accepted.
func IntArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// BoolArg extracts a boolean argument.
func BoolArg(args map[string]interface{}, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// StringListArg extracts a list-of-strings argument. A bare string counts
// as a single-element list, matching how models sometimes flatten lists.
func StringListArg(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
