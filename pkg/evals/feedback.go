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
package evals

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teradata-labs/memoir/pkg/types"
)

// SaveFeedback appends one user feedback row (a skip or a like) to
// LOGS_DIR/<user>/feedback/session_<id>.csv, paired with the interviewer
// message it reacts to. interviewerMsg may be nil when feedback arrives
// before the first interviewer turn.
func SaveFeedback(userLogsDir string, sessionID int, interviewerMsg, feedback *types.Message) error {
	if feedback == nil {
		return fmt.Errorf("feedback message is nil")
	}

	dir := filepath.Join(userLogsDir, "feedback")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create feedback dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("session_%d.csv", sessionID))

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open feedback file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write([]string{"timestamp", "interviewer_message", "user_feedback"}); err != nil {
			return fmt.Errorf("failed to write feedback header: %w", err)
		}
	}

	interviewerContent := ""
	if interviewerMsg != nil {
		interviewerContent = interviewerMsg.Content
	}
	if err := w.Write([]string{
		feedback.Timestamp.Format(time.RFC3339),
		interviewerContent,
		feedback.Content,
	}); err != nil {
		return fmt.Errorf("failed to write feedback row: %w", err)
	}
	w.Flush()
	return w.Error()
}
