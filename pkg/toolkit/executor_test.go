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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() Tool {
	return NewTool("echo", "Echo the input.", NewObjectSchema("", map[string]*JSONSchema{
		"text": NewStringSchema("Text to echo."),
	}, []string{"text"}), func(ctx context.Context, args map[string]interface{}) (string, error) {
		return StringArg(args, "text"), nil
	})
}

func failTool() Tool {
	return NewTool("fail", "Always fails.", NewObjectSchema("", nil, nil),
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "", errors.New("boom")
		})
}

func TestExecutorDispatch(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(echoTool())
	executor := NewExecutor(registry)

	result, err := executor.Execute(context.Background(), Call{
		Name: "echo",
		Args: map[string]interface{}{"text": "hello"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Content)
}

func TestExecutorUnknownTool(t *testing.T) {
	executor := NewExecutor(NewRegistry())

	_, err := executor.Execute(context.Background(), Call{Name: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExecutorValidatesRequiredArgs(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(echoTool())
	executor := NewExecutor(registry)

	_, err := executor.Execute(context.Background(), Call{
		Name: "echo",
		Args: map[string]interface{}{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid arguments")
}

func TestExecutorValidatesArgTypes(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(NewTool("rate", "Rate something.", NewObjectSchema("", map[string]*JSONSchema{
		"importance": NewIntegerSchema("1-10"),
	}, []string{"importance"}), func(ctx context.Context, args map[string]interface{}) (string, error) {
		n, _ := IntArg(args, "importance")
		return fmt.Sprintf("%d", n), nil
	}))
	executor := NewExecutor(registry)

	// Scalars arrive as tag text; the executor coerces them to the
	// declared type before validating.
	result, err := executor.Execute(context.Background(), Call{
		Name: "rate",
		Args: map[string]interface{}{"importance": "7"},
	})
	require.NoError(t, err)
	assert.Equal(t, "7", result.Content)

	_, err = executor.Execute(context.Background(), Call{
		Name: "rate",
		Args: map[string]interface{}{"importance": "very"},
	})
	require.Error(t, err)
}

func TestExecutorCoercesToDeclaredTypes(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(NewTool("update_user_portrait", "Update a portrait field.", NewObjectSchema("", map[string]*JSONSchema{
		"field_name":   NewStringSchema("Field to set."),
		"is_new_field": NewBooleanSchema("Whether the field is new."),
	}, []string{"field_name", "is_new_field"}), func(ctx context.Context, args map[string]interface{}) (string, error) {
		return fmt.Sprintf("%s new=%v", StringArg(args, "field_name"), BoolArg(args, "is_new_field")), nil
	}))
	executor := NewExecutor(registry)

	result, err := executor.Execute(context.Background(), Call{
		Name: "update_user_portrait",
		Args: map[string]interface{}{"field_name": "hometown", "is_new_field": "true"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hometown new=true", result.Content)
}

// String-typed arguments keep numeric-looking text untouched.
func TestExecutorKeepsNumericLookingStrings(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(NewTool("delete_interview_question", "Delete a question.", NewObjectSchema("", map[string]*JSONSchema{
		"question_id": NewStringSchema("ID such as 1.10"),
	}, []string{"question_id"}), func(ctx context.Context, args map[string]interface{}) (string, error) {
		return StringArg(args, "question_id"), nil
	}))
	executor := NewExecutor(registry)

	result, err := executor.Execute(context.Background(), Call{
		Name: "delete_interview_question",
		Args: map[string]interface{}{"question_id": "1.10"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1.10", result.Content)
}

func TestHandleResponseAggregatesOutcomes(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(echoTool(), failTool())
	executor := NewExecutor(registry)

	response := `<tool_calls>
    <echo>
        <text>one</text>
    </echo>
    <fail>
    </fail>
    <missing>
    </missing>
</tool_calls>`

	out, err := executor.HandleResponse(context.Background(), response)
	require.NoError(t, err)
	assert.Contains(t, out, "Tool 'echo' executed successfully. Result: one")
	assert.Contains(t, out, "Error calling tool 'fail'")
	assert.Contains(t, out, "Error calling tool 'missing'")
}

func TestHandleResponseNoBlock(t *testing.T) {
	executor := NewExecutor(NewRegistry())
	out, err := executor.HandleResponse(context.Background(), "prose only")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoTool()))
	require.NoError(t, registry.Register(failTool()))
	require.Error(t, registry.Register(echoTool()))

	assert.Equal(t, []string{"echo", "fail"}, registry.Names())
	assert.Equal(t, 2, registry.Len())

	desc := registry.Describe()
	assert.Contains(t, desc, "<echo>")
	assert.Contains(t, desc, "<fail>")
}

func TestStringListArg(t *testing.T) {
	args := map[string]interface{}{
		"list":  []interface{}{"a", "b"},
		"one":   "solo",
		"empty": "",
	}
	assert.Equal(t, []string{"a", "b"}, StringListArg(args, "list"))
	assert.Equal(t, []string{"solo"}, StringListArg(args, "one"))
	assert.Nil(t, StringListArg(args, "empty"))
	assert.Nil(t, StringListArg(args, "absent"))
}
