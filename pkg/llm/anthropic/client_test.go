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
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/memoir/pkg/llm"
)

func TestChatLiftsSystemMessages(t *testing.T) {
	var captured messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(messagesResponse{
			Content:    []contentBlock{{Type: "text", Text: "Hello "}, {Type: "text", Text: "there"}},
			StopReason: "end_turn",
			Usage:      apiUsage{InputTokens: 10, OutputTokens: 5},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	resp, err := client.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "You are an interviewer."},
		{Role: "user", Content: "Start the session."},
	})
	require.NoError(t, err)

	assert.Equal(t, "You are an interviewer.", captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)

	assert.Equal(t, "Hello there", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestChatRejectsEmptyConversation(t *testing.T) {
	client := NewClient(Config{APIKey: "test-key", Endpoint: "http://127.0.0.1:0"})
	_, err := client.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "only system"},
	})
	require.Error(t, err)
}

func TestChatSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"overloaded_error","message":"try later"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	_, err := client.Chat(context.Background(), llm.UserMessage("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestNewClientDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_DEFAULT_MODEL", "")
	client := NewClient(Config{APIKey: "k"})
	assert.Equal(t, "anthropic", client.Name())
	assert.Equal(t, DefaultModel, client.Model())
}
