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
// Package config loads the memoir configuration from defaults, an optional
// memoir.yaml file, and environment variables, and threads it explicitly
// from the session engine into every agent. No package reads the
// environment after load time.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the base name of the optional config file.
const DefaultConfigFileName = "memoir"

// Config holds all configuration for a memoir process.
// Priority: config file > environment variables > defaults.
type Config struct {
	// DataDir holds per-user biography snapshots (biography_<V>.json/.md).
	DataDir string `mapstructure:"data_dir"`

	// LogsDir holds per-user session state: banks, agendas, chat archives,
	// execution logs, and evaluation CSVs.
	LogsDir string `mapstructure:"logs_dir"`

	// MaxEventsLen bounds the replay window when an agent renders its
	// event stream into a prompt.
	MaxEventsLen int `mapstructure:"max_events_len"`

	// MaxConsiderationIterations bounds every agent think-act loop
	// (recall loops, follow-up proposal, plan revision).
	MaxConsiderationIterations int `mapstructure:"max_consideration_iterations"`

	// SessionTimeoutMinutes ends the session after this much user silence.
	SessionTimeoutMinutes int `mapstructure:"session_timeout_minutes"`

	// MemoryThresholdForUpdate is the unprocessed-memory count that
	// triggers an incremental biography update mid-session.
	MemoryThresholdForUpdate int `mapstructure:"memory_threshold_for_update"`

	// UseBaselinePrompt switches the interviewer to the non-adaptive
	// life-narrative prompt and disables the scribe's agenda pipeline.
	UseBaselinePrompt bool `mapstructure:"use_baseline_prompt"`

	// QuestionSimilarityThreshold is the similarity above which a proposed
	// follow-up counts as a duplicate and needs an explicit proceed
	// decision.
	QuestionSimilarityThreshold float64 `mapstructure:"question_similarity_threshold"`

	// BiographyStyle selects the narrative style instructions given to the
	// biography planner and section writers.
	BiographyStyle string `mapstructure:"biography_style"`

	// PromptsDir optionally overrides builtin prompt templates with files
	// from a directory (hot reloaded).
	PromptsDir string `mapstructure:"prompts_dir"`

	// LLM configures the model provider.
	LLM LLMConfig `mapstructure:"llm"`
}

// LLMConfig selects and configures the LLM provider.
type LLMConfig struct {
	// Provider is one of: anthropic, openai, bedrock.
	Provider string `mapstructure:"provider"`

	// Model overrides the provider's default model.
	Model string `mapstructure:"model"`

	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`

	BedrockRegion  string `mapstructure:"bedrock_region"`
	BedrockModelID string `mapstructure:"bedrock_model_id"`
	BedrockProfile string `mapstructure:"bedrock_profile"`

	// EmbeddingModel is the embedding model for the vector banks.
	EmbeddingModel string `mapstructure:"embedding_model"`

	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// LoadConfig loads configuration with proper priority:
// 1. Config file (memoir.yaml, if present)
// 2. Environment variables
// 3. Defaults
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/memoir/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	// Read config file (if it exists)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	// Bind environment variables. The pacing knobs use the exact names the
	// external contract fixes (DATA_DIR, MAX_EVENTS_LEN, ...), so no prefix.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindProviderEnv(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("logs_dir", "logs")
	v.SetDefault("max_events_len", 30)
	v.SetDefault("max_consideration_iterations", 3)
	v.SetDefault("session_timeout_minutes", 10)
	v.SetDefault("memory_threshold_for_update", 10)
	v.SetDefault("use_baseline_prompt", false)
	v.SetDefault("question_similarity_threshold", 0.85)
	v.SetDefault("biography_style", "chronological")
	v.SetDefault("prompts_dir", "")

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.bedrock_region", "us-west-2")
	v.SetDefault("llm.bedrock_model_id", "")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 1.0)
	v.SetDefault("llm.timeout_seconds", 60)
}

// bindProviderEnv maps the conventional provider credential variables onto
// their config keys (AutomaticEnv alone would look for LLM_ANTHROPIC_API_KEY).
func bindProviderEnv(v *viper.Viper) {
	_ = v.BindEnv("llm.anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.bedrock_region", "AWS_DEFAULT_REGION")
	_ = v.BindEnv("llm.bedrock_model_id", "AWS_BEDROCK_MODEL_ID")
}

// UserDataDir returns the biography snapshot directory for a user.
func (c *Config) UserDataDir(userID string) string {
	return filepath.Join(c.DataDir, userID)
}

// UserLogsDir returns the session state directory for a user.
func (c *Config) UserLogsDir(userID string) string {
	return filepath.Join(c.LogsDir, userID)
}

// CheckInterval is the user-message cadence at which the engine evaluates
// the memory threshold: max(1, threshold/5).
func (c *Config) CheckInterval() int {
	n := c.MemoryThresholdForUpdate / 5
	if n < 1 {
		n = 1
	}
	return n
}
