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
// Package memory implements the per-user memory bank: an append-only store
// of atomic memories captured from interview responses, indexed for
// similarity search with chromem-go. Memories are never mutated or deleted
// during a session; the only post-insert change is linking question ids.
package memory

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// idAlphabet is the character set for the random suffix of a memory id.
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Memory is one atomic fact or episode captured from an interview response.
type Memory struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// Text is the summary of the fact; together with Title it forms the
	// embedding text "<title>\n<text>".
	Text            string            `json:"text"`
	Metadata        map[string]string `json:"metadata"`
	ImportanceScore int               `json:"importance_score"`
	Timestamp       time.Time         `json:"timestamp"`
	// SourceInterviewResponse is the verbatim user utterance the memory
	// derives from.
	SourceInterviewResponse string `json:"source_interview_response"`
	// SessionID records the session of creation.
	SessionID int `json:"session_id"`
	// QuestionIDs are the ids of questions this memory answered.
	QuestionIDs []string `json:"question_ids"`
}

// NewID mints a memory id of the form MEM_MMDDHHMM_XXX, for example
// MEM_03121423_X7K for March 12, 14:23.
func NewID(now time.Time) string {
	suffix := make([]byte, 3)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return fmt.Sprintf("MEM_%s_%s", now.Format("01021504"), suffix)
}

// EmbeddingText is the text indexed for similarity search.
func (m *Memory) EmbeddingText() string {
	return m.Title + "\n" + m.Text
}

// ToXML renders the memory in the tagged serialization fed to prompts.
// Downstream parsing depends on the exact element order.
func (m *Memory) ToXML(includeSource bool) string {
	lines := []string{
		"<memory>",
		fmt.Sprintf("<title>%s</title>", m.Title),
		fmt.Sprintf("<summary>%s</summary>", m.Text),
		fmt.Sprintf("<id>%s</id>", m.ID),
	}
	if includeSource {
		lines = append(lines, fmt.Sprintf(
			"<source_interview_response>\n%s\n</source_interview_response>",
			m.SourceInterviewResponse))
	}
	lines = append(lines, "</memory>")
	return strings.Join(lines, "\n")
}

// LinkQuestion records that questionID was answered by this memory.
// Linking the same question twice is a no-op.
func (m *Memory) LinkQuestion(questionID string) {
	for _, id := range m.QuestionIDs {
		if id == questionID {
			return
		}
	}
	m.QuestionIDs = append(m.QuestionIDs, questionID)
}
