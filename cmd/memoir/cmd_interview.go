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
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/llm/factory"
	"github.com/teradata-labs/memoir/pkg/session"
)

var (
	interviewMode   string
	interviewUserID string
	voiceInput      bool
	voiceOutput     bool
	userAgent       bool
	restart         bool
	maxTurns        int
)

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run one interview session",
	Long: heredoc.Doc(`
		Run one interview session for a user.

		The session loads the user's memory bank, question bank, session
		agenda, and biography, interviews until the user leaves (or goes
		quiet, or the turn cap is reached), then folds everything the user
		shared back into the stores and writes a new biography version.

		Answers are typed at the terminal by default. Inside a session:

		  /skip   ask for a different question
		  /like   record that the question landed well
		  /exit   end the session

		With --user_agent the terminal is replaced by an LLM-driven persona
		reading its backstory from profiles/<user_id>.md. With --voice_input
		and --voice_output the session records and speaks when audio binaries
		are available, and falls back to text when they are not.
	`),
	Example: heredoc.Doc(`
		# Interview margaret at the terminal
		memoir interview --user_id margaret

		# Simulate ten turns against the margaret persona
		memoir interview --user_id margaret --user_agent --max_turns 10

		# Start the biography over from nothing
		memoir interview --user_id margaret --restart
	`),
	RunE: runInterview,
}

func init() {
	rootCmd.AddCommand(interviewCmd)

	interviewCmd.Flags().StringVar(&interviewMode, "mode", "terminal", "interview frontend (terminal)")
	interviewCmd.Flags().StringVar(&interviewUserID, "user_id", "", "interviewee identifier")
	interviewCmd.Flags().BoolVar(&voiceInput, "voice_input", false, "capture spoken answers")
	interviewCmd.Flags().BoolVar(&voiceOutput, "voice_output", false, "speak interviewer responses")
	interviewCmd.Flags().BoolVar(&userAgent, "user_agent", false, "answer with a simulated user instead of the terminal")
	interviewCmd.Flags().BoolVar(&restart, "restart", false, "purge the user's data and logs before starting")
	interviewCmd.Flags().IntVar(&maxTurns, "max_turns", 0, "end the session after N user messages (0 = no cap)")
	_ = interviewCmd.MarkFlagRequired("user_id")
}

func runInterview(cmd *cobra.Command, args []string) error {
	if interviewMode != "terminal" {
		return fmt.Errorf("unknown mode %q (only terminal is supported)", interviewMode)
	}

	if restart {
		if err := purgeUserState(interviewUserID); err != nil {
			return err
		}
	}

	// Agent and store activity goes to per-session files; the process log
	// follows so the terminal carries only the conversation.
	if logger, err := log.NewFileLogger(filepath.Join(cfg.UserLogsDir(interviewUserID), "memoir.log")); err == nil {
		log.SetLogger(logger)
		defer log.Sync()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigch
		fmt.Fprintln(os.Stderr, "\nClosing the session... (press Ctrl+C again to force)")
		cancel()
		<-sigch
		fmt.Fprintln(os.Stderr, "Forced shutdown, session state may be incomplete.")
		os.Exit(1)
	}()

	provider, err := factory.NewProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build llm provider: %w", err)
	}
	embedder := factory.NewEmbedder(cfg)

	engine, err := session.NewEngine(ctx, cfg, provider, embedder, session.Options{
		UserID:        interviewUserID,
		MaxTurns:      maxTurns,
		SimulatedUser: userAgent,
		VoiceInput:    voiceInput,
		VoiceOutput:   voiceOutput,
	})
	if err != nil {
		return err
	}

	log.Info("interview session starting",
		zap.String("user_id", interviewUserID),
		zap.Int("session_id", engine.SessionID()),
		zap.String("provider", provider.Name()),
		zap.Bool("simulated", userAgent),
	)
	fmt.Printf("Session %d with %s. Type /exit to finish.\n\n", engine.SessionID(), interviewUserID)

	if err := engine.Run(ctx); err != nil {
		return fmt.Errorf("session failed: %w", err)
	}

	// Timeouts and interrupts still tear down fully and exit clean.
	if engine.TimedOut() {
		fmt.Println("\nSession closed after a quiet spell. Everything you shared is saved.")
	} else {
		fmt.Println("\nSession saved. See you next time.")
	}
	return nil
}

// purgeUserState removes the user's biography snapshots and session logs.
func purgeUserState(userID string) error {
	for _, dir := range []string{cfg.UserDataDir(userID), cfg.UserLogsDir(userID)} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to purge %s: %w", dir, err)
		}
	}
	fmt.Printf("Removed existing data for %s.\n", userID)
	return nil
}
