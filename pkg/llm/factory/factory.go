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
// Package factory constructs the configured LLM provider and embedder.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/memoir/pkg/config"
	"github.com/teradata-labs/memoir/pkg/llm"
	"github.com/teradata-labs/memoir/pkg/llm/anthropic"
	"github.com/teradata-labs/memoir/pkg/llm/bedrock"
	"github.com/teradata-labs/memoir/pkg/llm/openai"
)

// NewProvider builds the chat provider selected by cfg.LLM.Provider.
func NewProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	l := cfg.LLM
	timeout := time.Duration(l.TimeoutSeconds) * time.Second

	switch l.Provider {
	case "", "anthropic":
		return anthropic.NewClient(anthropic.Config{
			APIKey:      l.AnthropicAPIKey,
			Model:       l.Model,
			Timeout:     timeout,
			MaxTokens:   l.MaxTokens,
			Temperature: l.Temperature,
		}), nil

	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      l.OpenAIAPIKey,
			Model:       l.Model,
			Timeout:     timeout,
			MaxTokens:   l.MaxTokens,
			Temperature: l.Temperature,
		}), nil

	case "bedrock":
		return bedrock.NewClient(ctx, bedrock.Config{
			ModelID:     l.BedrockModelID,
			Region:      l.BedrockRegion,
			MaxTokens:   l.MaxTokens,
			Temperature: l.Temperature,
			Profile:     l.BedrockProfile,
		})

	default:
		return nil, fmt.Errorf("unknown llm provider: %q", l.Provider)
	}
}

// NewEmbedder builds the embedding client for the vector banks. Embeddings
// always go through OpenAI's endpoint regardless of the chat provider.
func NewEmbedder(cfg *config.Config) llm.Embedder {
	return openai.NewEmbedder(openai.EmbedderConfig{
		APIKey:  cfg.LLM.OpenAIAPIKey,
		Model:   cfg.LLM.EmbeddingModel,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
}
