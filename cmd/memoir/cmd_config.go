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
package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage memoir configuration",
	Long:  `Inspect the effective configuration or generate a starter config file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration merged from defaults, memoir.yaml, and environment variables. API keys are masked.`,
	Run:   runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate example configuration file",
	Long:  `Write a commented memoir.yaml with the default settings to the current directory.`,
	Run:   runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	// Keys mirror the config file layout so the output pastes back into
	// memoir.yaml unchanged.
	effective := map[string]interface{}{
		"data_dir":                      cfg.DataDir,
		"logs_dir":                      cfg.LogsDir,
		"max_events_len":                cfg.MaxEventsLen,
		"max_consideration_iterations":  cfg.MaxConsiderationIterations,
		"session_timeout_minutes":       cfg.SessionTimeoutMinutes,
		"memory_threshold_for_update":   cfg.MemoryThresholdForUpdate,
		"use_baseline_prompt":           cfg.UseBaselinePrompt,
		"question_similarity_threshold": cfg.QuestionSimilarityThreshold,
		"biography_style":               cfg.BiographyStyle,
		"prompts_dir":                   cfg.PromptsDir,
		"llm": map[string]interface{}{
			"provider":          cfg.LLM.Provider,
			"model":             cfg.LLM.Model,
			"anthropic_api_key": maskSecret(cfg.LLM.AnthropicAPIKey),
			"openai_api_key":    maskSecret(cfg.LLM.OpenAIAPIKey),
			"bedrock_region":    cfg.LLM.BedrockRegion,
			"bedrock_model_id":  cfg.LLM.BedrockModelID,
			"bedrock_profile":   cfg.LLM.BedrockProfile,
			"embedding_model":   cfg.LLM.EmbeddingModel,
			"max_tokens":        cfg.LLM.MaxTokens,
			"temperature":       cfg.LLM.Temperature,
			"timeout_seconds":   cfg.LLM.TimeoutSeconds,
		},
	}

	out, err := yaml.Marshal(effective)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering config: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(out))
}

func runConfigInit(cmd *cobra.Command, args []string) {
	const configPath = "memoir.yaml"

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file already exists: %s\n", configPath)
		fmt.Print("Overwrite? (y/N): ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	content := heredoc.Doc(`
		# Memoir configuration
		# Generated by: memoir config init

		# Where biography versions (biography_<N>.json/.md) are written, per user.
		data_dir: data

		# Where session state lives: banks, agendas, chat archives, evaluations.
		logs_dir: logs

		# Conversation window length when agents render chat history.
		max_events_len: 30

		# Upper bound on agent think-act loops (recall, follow-ups, planning).
		max_consideration_iterations: 3

		# End the session after this much user silence.
		session_timeout_minutes: 10

		# Unprocessed memories that trigger a mid-session biography update.
		memory_threshold_for_update: 10

		# Similarity above which a proposed follow-up counts as a duplicate.
		question_similarity_threshold: 0.85

		# Biography voice: chronological, thematic, narrative, or professional.
		biography_style: chronological

		llm:
		  # anthropic, openai, or bedrock
		  provider: anthropic
		  # anthropic_api_key: set via ANTHROPIC_API_KEY
		  # openai_api_key: set via OPENAI_API_KEY (embeddings, voice)
		  embedding_model: text-embedding-3-small
		  max_tokens: 4096
		  temperature: 1.0
		  timeout_seconds: 60
	`)

	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Config file created: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Export your API keys:")
	fmt.Println("   export ANTHROPIC_API_KEY=...   # interviewer, scribe, biography team")
	fmt.Println("   export OPENAI_API_KEY=...      # embeddings for the memory banks")
	fmt.Println("2. Start a session:")
	fmt.Println("   memoir interview --user_id <name>")
}

// maskSecret masks a secret for display.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
