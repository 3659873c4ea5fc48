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
package agenda

import (
	"fmt"
	"strings"
)

// HideAnswered modes for QuestionsAndNotesStr.
const (
	// ShowAll renders every question with its notes.
	ShowAll = ""
	// HideAnsweredQA replaces the text of answered questions with
	// "(Answered)" and drops their notes, so the interviewer does not
	// re-ask them.
	HideAnsweredQA = "qa"
)

// PortraitStr renders the user portrait as "Field: value" lines.
func (a *Agenda) PortraitStr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.portrait) == 0 {
		return ""
	}
	lines := make([]string, 0, len(a.portrait))
	for _, f := range a.portrait {
		lines = append(lines, fmt.Sprintf("%s: %s", f.Field, f.Value))
	}
	return strings.Join(lines, "\n")
}

// LastMeetingSummaryStr returns the last-meeting summary.
func (a *Agenda) LastMeetingSummaryStr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastMeetingSummary
}

// QuestionsAndNotesStr renders every topic with its question tree. The
// format is stable; prompts and tests depend on it. Each question renders
// as "[ID] {id}: {text}" with sub-questions indented, notes as
// "[note] {text}" under their question.
func (a *Agenda) QuestionsAndNotesStr(hideAnswered string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.topics) == 0 {
		return ""
	}
	var lines []string
	for _, t := range a.topics {
		lines = append(lines, fmt.Sprintf("\nTopic: %s", t.Name))
		for _, q := range t.Questions {
			lines = append(lines, formatQA(q, 0, hideAnswered)...)
		}
	}
	return strings.Join(lines, "\n")
}

func formatQA(q *InterviewQuestion, depth int, hideAnswered string) []string {
	indent := strings.Repeat("  ", depth)
	var lines []string
	if hideAnswered == HideAnsweredQA && q.Answered() {
		lines = append(lines, fmt.Sprintf("\n%s[ID] %s: (Answered)", indent, q.ID))
	} else {
		lines = append(lines, fmt.Sprintf("\n%s[ID] %s: %s", indent, q.ID, q.Question))
		for _, note := range q.Notes {
			lines = append(lines, fmt.Sprintf("%s[note] %s", indent, note))
		}
	}
	for _, sub := range q.SubQuestions {
		lines = append(lines, formatQA(sub, depth+1, hideAnswered)...)
	}
	return lines
}

// AdditionalNotesStr renders the unbound notes, one per line.
func (a *Agenda) AdditionalNotesStr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.additionalNotes, "\n")
}
