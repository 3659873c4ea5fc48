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
// Package question implements the similarity-searchable question banks.
// Two instances exist per session: the historical bank of questions asked
// in past sessions (append-only, persisted per user) and the proposed bank
// of follow-ups suggested during the current session (ephemeral). The
// scribe searches both before committing a follow-up to catch
// near-duplicates.
package question

import (
	"fmt"
	"math/rand"
	"time"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Question is one stored interview question. Historical questions carry the
// ids of the memories their answer produced; proposed questions carry none
// until they are asked.
type Question struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	MemoryIDs []string  `json:"memory_ids"`
	Timestamp time.Time `json:"timestamp"`
	// Proposer names the agent that created the question.
	Proposer  string `json:"proposer"`
	SessionID int    `json:"session_id"`
}

// NewID mints a question id of the form Q_MMDDHHMM_XXX.
func NewID(now time.Time) string {
	suffix := make([]byte, 3)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return fmt.Sprintf("Q_%s_%s", now.Format("01021504"), suffix)
}

// LinkMemory records that memoryID holds part of this question's answer.
// Linking the same memory twice is a no-op.
func (q *Question) LinkMemory(memoryID string) {
	for _, id := range q.MemoryIDs {
		if id == memoryID {
			return
		}
	}
	q.MemoryIDs = append(q.MemoryIDs, memoryID)
}
