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
package toolkit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
)

// Executor validates parsed tool calls against their schemas and
// dispatches them through a registry.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an executor over a registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// ValidateArgs checks arguments against a tool's declared schema.
func ValidateArgs(tool Tool, args map[string]interface{}) error {
	schema := tool.InputSchema()
	if schema == nil {
		return nil // no schema, no validation
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	argsLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, argsLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		errors := make([]string, len(result.Errors()))
		for i, verr := range result.Errors() {
			errors[i] = verr.String()
		}
		return fmt.Errorf("invalid arguments for %s: %v", tool.Name(), errors)
	}
	return nil
}

// coerceArgs converts scalar string arguments to the type the schema
// declares for them. Argument values arrive as tag text, so "7" for an
// integer argument and "true" for a boolean one are the normal case.
func coerceArgs(schema *JSONSchema, args map[string]interface{}) map[string]interface{} {
	if schema == nil || len(schema.Properties) == 0 || len(args) == 0 {
		return args
	}

	coerced := make(map[string]interface{}, len(args))
	for name, value := range args {
		coerced[name] = value
		prop, ok := schema.Properties[name]
		if !ok {
			continue
		}
		text, ok := value.(string)
		if !ok {
			continue
		}
		switch prop.Type {
		case "integer", "number":
			if f, err := strconv.ParseFloat(text, 64); err == nil {
				coerced[name] = f
			}
		case "boolean":
			if b, err := strconv.ParseBool(text); err == nil {
				coerced[name] = b
			}
		}
	}
	return coerced
}

// Execute runs one call: lookup, coercion, validation, dispatch.
func (e *Executor) Execute(ctx context.Context, call Call) (*Result, error) {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return nil, fmt.Errorf("tool %q not found", call.Name)
	}
	args := coerceArgs(tool.InputSchema(), call.Args)
	if err := ValidateArgs(tool, args); err != nil {
		return nil, err
	}
	return tool.Execute(ctx, args)
}

// HandleResponse parses the tool-calls block out of an LLM response and
// executes every call in order. The returned string aggregates per-call
// outcomes in the form the agents feed back into their event streams.
// Individual call failures are recorded and do not stop later calls.
func (e *Executor) HandleResponse(ctx context.Context, response string) (string, error) {
	calls, err := ParseToolCalls(response)
	if err != nil {
		return "", err
	}
	if len(calls) == 0 {
		return "", nil
	}

	var results []string
	for _, call := range calls {
		result, err := e.Execute(ctx, call)
		if err != nil {
			log.Warn("tool call failed",
				zap.String("tool", call.Name),
				zap.Error(err),
			)
			results = append(results, fmt.Sprintf("Error calling tool '%s': %v", call.Name, err))
			continue
		}
		results = append(results, fmt.Sprintf("Tool '%s' executed successfully. Result: %s", call.Name, result.Content))
	}
	return strings.Join(results, "\n"), nil
}
