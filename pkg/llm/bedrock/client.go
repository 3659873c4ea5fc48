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
// Package bedrock implements the llm.Provider interface for Anthropic
// models served through AWS Bedrock, using the official Anthropic SDK with
// its Bedrock backend for request signing and endpoint resolution.
package bedrock

import (
	"context"
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/teradata-labs/memoir/pkg/llm"
)

// Default Bedrock configuration values.
const (
	DefaultModelID     = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	DefaultRegion      = "us-west-2"
	DefaultMaxTokens   = 4096
	DefaultTemperature = 1.0
)

// Config holds configuration for the Bedrock client.
type Config struct {
	ModelID     string
	Region      string
	MaxTokens   int
	Temperature float64

	// Optional explicit credentials; when empty the default AWS
	// credentials chain applies (env vars, shared config, IAM role).
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string
}

// Client implements llm.Provider for Anthropic models on AWS Bedrock.
type Client struct {
	client      anthropicsdk.Client
	modelID     string
	region      string
	maxTokens   int64
	temperature float64
}

// NewClient creates a new Bedrock client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ModelID == "" {
		if envModel := os.Getenv("AWS_BEDROCK_MODEL_ID"); envModel != "" {
			cfg.ModelID = envModel
		} else {
			cfg.ModelID = DefaultModelID
		}
	}
	if cfg.Region == "" {
		if envRegion := os.Getenv("AWS_DEFAULT_REGION"); envRegion != "" {
			cfg.Region = envRegion
		} else {
			cfg.Region = DefaultRegion
		}
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	var awsCfg aws.Config
	var err error
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			)),
		)
	case cfg.Profile != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.Profile),
		)
	default:
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		client:      anthropicsdk.NewClient(bedrock.WithConfig(awsCfg)),
		modelID:     cfg.ModelID,
		region:      cfg.Region,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "bedrock"
}

// Model returns the Bedrock model identifier.
func (c *Client) Model() string {
	return c.modelID
}

// Chat sends a conversation to Bedrock and returns the response.
func (c *Client) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	var system string
	var sdkMessages []anthropicsdk.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case "assistant":
			if msg.Content != "" {
				sdkMessages = append(sdkMessages, anthropicsdk.NewAssistantMessage(
					anthropicsdk.NewTextBlock(msg.Content),
				))
			}
		default:
			if msg.Content != "" {
				sdkMessages = append(sdkMessages, anthropicsdk.NewUserMessage(
					anthropicsdk.NewTextBlock(msg.Content),
				))
			}
		}
	}
	if len(sdkMessages) == 0 {
		return nil, fmt.Errorf("no user or assistant messages to send")
	}

	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(c.modelID),
		Messages:    sdkMessages,
		MaxTokens:   c.maxTokens,
		Temperature: anthropicsdk.Float(c.temperature),
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("bedrock invocation failed: %w", err)
	}

	var content string
	for _, block := range message.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &llm.Response{
		Content:    content,
		StopReason: string(message.StopReason),
		Usage: llm.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			TotalTokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}
