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
// Package llm defines the provider-neutral interface to the language model
// and the embedding model. Agents compose a single prompt, call the provider
// through ChatWithRetry, and parse the tagged response themselves; nothing
// in this package knows about tools or sessions.
package llm

import (
	"context"
)

// Message is one entry in a chat request. Role is one of "system", "user",
// or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the provider-neutral result of a chat call.
type Response struct {
	// Content is the full text of the model's reply.
	Content string

	// StopReason is the provider's stop reason, if reported.
	StopReason string

	// Usage is the token accounting, zero-valued when the provider does
	// not report it.
	Usage Usage
}

// Provider is a synchronous chat backend.
type Provider interface {
	// Name returns the provider name (anthropic, openai, bedrock).
	Name() string

	// Model returns the model identifier used for chat calls.
	Model() string

	// Chat sends a conversation and returns the model's reply.
	Chat(ctx context.Context, messages []Message) (*Response, error)
}

// Embedder turns text into a vector. The memory and question banks use it
// for similarity indexing.
type Embedder interface {
	// Name returns the embedder name.
	Name() string

	// Embed returns the embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for several texts in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// UserMessage builds a single-turn request from one prompt string. The
// agents assemble their full context into the prompt, so most calls go
// through this helper.
func UserMessage(prompt string) []Message {
	return []Message{{Role: "user", Content: prompt}}
}
