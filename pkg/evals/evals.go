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
// Package evals appends session quality measurements to per-user CSV files
// under LOGS_DIR/<user>/evaluations/. The files are append-only across
// sessions; every row carries its session id so offline analysis can slice
// by session. Headers and column layouts are a fixed external contract.
package evals

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CSV file names under the evaluations directory.
const (
	questionSimilarityFile    = "question_similarity.csv"
	responseLatencyFile       = "response_latency.csv"
	conversationStatsFile     = "conversation_statistics.csv"
	biographyUpdateTimesFile  = "biography_update_times.csv"
	promptResponseLogsDirName = "prompt_response_logs"
)

// Update types recorded in biography_update_times.csv.
const (
	UpdateTypeAuto  = "auto"
	UpdateTypeFinal = "final"
)

// Logger appends evaluation rows for one user. Safe for concurrent use;
// the scribe and the orchestrator both write mid-session.
type Logger struct {
	evalDir   string
	sessionID int

	mu sync.Mutex
}

// NewLogger creates a logger rooted at userLogsDir (LOGS_DIR/<user>).
// Directories are created lazily on first write.
func NewLogger(userLogsDir string, sessionID int) *Logger {
	return &Logger{
		evalDir:   filepath.Join(userLogsDir, "evaluations"),
		sessionID: sessionID,
	}
}

// appendRow appends one row to name, writing header first when the file is
// new. Header and row stay in one critical section so concurrent first
// writes cannot interleave.
func (l *Logger) appendRow(name string, header, row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.evalDir, 0o755); err != nil {
		return fmt.Errorf("failed to create evaluations dir: %w", err)
	}
	path := filepath.Join(l.evalDir, name)

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write %s header: %w", name, err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write %s row: %w", name, err)
	}
	w.Flush()
	return w.Error()
}

// LogQuestionSimilarity records one duplicate-question evaluation: the
// proposed question, its nearest bank matches with scores, and the
// duplicate verdict.
func (l *Logger) LogQuestionSimilarity(proposer, target string, similar []string, scores []float64, isDuplicate bool, matched, explanation string) error {
	scoreStrs := make([]string, len(scores))
	for i, s := range scores {
		scoreStrs[i] = fmt.Sprintf("%.2f", s)
	}
	return l.appendRow(questionSimilarityFile,
		[]string{
			"Timestamp", "Proposer", "Session ID", "Target Question",
			"Similar Questions", "Similarity Scores", "Is Duplicate",
			"Matched Question", "Explanation",
		},
		[]string{
			time.Now().Format(time.RFC3339),
			proposer,
			strconv.Itoa(l.sessionID),
			target,
			strings.Join(similar, "; "),
			strings.Join(scoreStrs, "; "),
			strconv.FormatBool(isDuplicate),
			matched,
			explanation,
		})
}

// LogResponseLatency records how long the interviewer took to answer one
// user message.
func (l *Logger) LogResponseLatency(messageID string, userMessageAt, respondedAt time.Time, userMessageLen int) error {
	latency := respondedAt.Sub(userMessageAt).Seconds()
	return l.appendRow(responseLatencyFile,
		[]string{
			"User Message ID", "Session ID", "Timestamp",
			"Latency (seconds)", "User Message Length",
		},
		[]string{
			messageID,
			strconv.Itoa(l.sessionID),
			userMessageAt.Format(time.RFC3339),
			fmt.Sprintf("%.3f", latency),
			strconv.Itoa(userMessageLen),
		})
}

// ConversationStats summarizes a finished session for
// conversation_statistics.csv.
type ConversationStats struct {
	TotalTurns    int
	TotalTokens   int
	UserTokens    int
	SystemTokens  int
	Duration      time.Duration
	TotalMemories int
}

// LogConversationStats records end-of-session conversation statistics.
func (l *Logger) LogConversationStats(stats ConversationStats) error {
	avg := 0.0
	if stats.TotalTurns > 0 {
		avg = float64(stats.TotalTokens) / float64(stats.TotalTurns)
	}
	return l.appendRow(conversationStatsFile,
		[]string{
			"Timestamp", "Session ID", "Total Turns", "Total Tokens",
			"User Tokens", "System Tokens", "Conversation Duration (seconds)",
			"Average Tokens Per Turn", "Total Memories",
		},
		[]string{
			time.Now().Format(time.RFC3339),
			strconv.Itoa(l.sessionID),
			strconv.Itoa(stats.TotalTurns),
			strconv.Itoa(stats.TotalTokens),
			strconv.Itoa(stats.UserTokens),
			strconv.Itoa(stats.SystemTokens),
			fmt.Sprintf("%.2f", stats.Duration.Seconds()),
			fmt.Sprintf("%.2f", avg),
			strconv.Itoa(stats.TotalMemories),
		})
}

// LogBiographyUpdateTime records the duration of one biography update and
// the auto-update time accumulated so far this session.
func (l *Logger) LogBiographyUpdateTime(updateType string, duration, accumulatedAuto time.Duration) error {
	return l.appendRow(biographyUpdateTimesFile,
		[]string{
			"Timestamp", "Session ID", "Update Type",
			"Duration (seconds)", "Accumulated Auto Time",
		},
		[]string{
			time.Now().Format(time.RFC3339),
			strconv.Itoa(l.sessionID),
			updateType,
			fmt.Sprintf("%.2f", duration.Seconds()),
			fmt.Sprintf("%.2f", accumulatedAuto.Seconds()),
		})
}

// LogPromptResponse saves one prompt/response exchange as a timestamped
// file under prompt_response_logs_session_<id>/. Used for exchanges worth
// auditing offline, like duplicate-question judgments.
func (l *Logger) LogPromptResponse(evaluationType, prompt, response string) error {
	dir := filepath.Join(l.evalDir, fmt.Sprintf("%s_session_%d", promptResponseLogsDirName, l.sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create prompt log dir: %w", err)
	}

	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", evaluationType, now.Format("20060102_150405")))
	content := fmt.Sprintf("=== TIMESTAMP: %s ===\n\n=== PROMPT ===\n\n%s\n\n=== RESPONSE ===\n\n%s\n",
		now.Format(time.RFC3339), prompt, response)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write prompt log: %w", err)
	}
	return nil
}
