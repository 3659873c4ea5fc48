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
// Package agenda implements the session agenda: the user portrait, the
// last-meeting summary, and the per-topic tree of interview questions with
// the notes collected as answers arrive. The agenda is written by the
// scribe during a session, rewritten by the biography team at session end,
// and persisted after every mutation.
package agenda

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
)

const agendaDirName = "session_agenda"

// maxQuestionDepth caps interview question nesting ("1.1.1.1" is level 4).
const maxQuestionDepth = 4

// InterviewQuestion is one agenda question. Sub-question ids extend the
// parent id with a dot, like "1.1" under "1".
type InterviewQuestion struct {
	Topic        string               `json:"topic"`
	ID           string               `json:"question_id"`
	Question     string               `json:"question"`
	Notes        []string             `json:"notes"`
	SubQuestions []*InterviewQuestion `json:"sub_questions"`
}

// Answered reports whether the question has collected a note, directly or
// through a sub-question.
func (q *InterviewQuestion) Answered() bool {
	if len(q.Notes) > 0 {
		return true
	}
	for _, sub := range q.SubQuestions {
		if sub.Answered() {
			return true
		}
	}
	return false
}

// Topic groups top-level questions in insertion order.
type Topic struct {
	Name      string               `json:"name"`
	Questions []*InterviewQuestion `json:"questions"`
}

// PortraitField is one durable fact about the user. Order is preserved.
type PortraitField struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Agenda is the session agenda for one user. Exported fields are set
// before agents start; all methods are safe for concurrent use.
type Agenda struct {
	UserID    string
	SessionID int

	mu                 sync.Mutex
	portrait           []PortraitField
	lastMeetingSummary string
	topics             []*Topic
	additionalNotes    []string

	// dir is the per-user logs directory. Empty disables persistence.
	dir string
}

// agendaFile is the JSON snapshot shape.
type agendaFile struct {
	UserID             string          `json:"user_id"`
	SessionID          int             `json:"session_id"`
	UserPortrait       []PortraitField `json:"user_portrait"`
	LastMeetingSummary string          `json:"last_meeting_summary"`
	Topics             []*Topic        `json:"topics"`
	AdditionalNotes    []string        `json:"additional_notes"`
}

// New creates an empty agenda.
func New(userID string, sessionID int, dir string) *Agenda {
	return &Agenda{UserID: userID, SessionID: sessionID, dir: dir}
}

// Initial builds the session-zero agenda: empty portrait fields, a
// first-session summary and the seed question list.
func Initial(userID, dir string) *Agenda {
	a := New(userID, 0, dir)
	for _, f := range []string{"Name", "Age", "Occupation", "Location", "Family Status", "Interests", "Background", "Characteristics"} {
		a.portrait = append(a.portrait, PortraitField{Field: f})
	}
	a.lastMeetingSummary = "This is the first session with the user. " +
		"We will start by getting to know them and understanding their background."

	id := 1
	for _, seed := range seedQuestions {
		for _, question := range seed.questions {
			if _, err := a.AddInterviewQuestion(seed.topic, question, strconv.Itoa(id)); err != nil {
				log.Warn("failed to seed agenda question", zap.Error(err))
			}
			id++
		}
	}
	return a
}

var seedQuestions = []struct {
	topic     string
	questions []string
}{
	{"General", []string{
		"What is your name?",
		"How old are you?",
	}},
	{"Biography Style", []string{
		"How do you like your biography to be written? e.g. chronological, thematic, etc.",
		"Any specific style preferences? e.g. chronological, thematic, etc.",
	}},
	{"Personal", []string{
		"Where did you grow up?",
		"What was your childhood like?",
	}},
	{"Professional", []string{
		"What do you do for work?",
		"How did you choose your career path?",
	}},
	{"Interests", []string{
		"What are your main hobbies or interests?",
		"What do you like to do in your free time?",
	}},
	{"Relationships", []string{
		"Tell me about your family.",
		"Who are the most important people in your life?",
	}},
	{"Life Events", []string{
		"What would you say was a defining moment in your life?",
		"What's one of your most memorable experiences?",
	}},
	{"Future Goals", []string{
		"What are your hopes and dreams for the future?",
		"Where do you see yourself in the next few years?",
	}},
}

// LoadLast returns the agenda with the highest session id under dir, or a
// freshly saved initial agenda when none exists yet.
func LoadLast(userID, dir string) (*Agenda, error) {
	base := filepath.Join(dir, agendaDirName)
	entries, err := os.ReadDir(base)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to list session agendas: %w", err)
	}
	last := -1
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "session_"), ".json"))
		if err != nil {
			continue
		}
		if n > last {
			last = n
		}
	}
	if last < 0 {
		a := Initial(userID, dir)
		if err := a.Save(); err != nil {
			return nil, err
		}
		return a, nil
	}
	return LoadFile(filepath.Join(base, fmt.Sprintf("session_%d.json", last)), dir)
}

// LoadFile loads an agenda snapshot. dir becomes the persistence root for
// subsequent saves.
func LoadFile(path, dir string) (*Agenda, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session agenda: %w", err)
	}
	var f agendaFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse session agenda: %w", err)
	}
	return &Agenda{
		UserID:             f.UserID,
		SessionID:          f.SessionID,
		portrait:           f.UserPortrait,
		lastMeetingSummary: f.LastMeetingSummary,
		topics:             f.Topics,
		additionalNotes:    f.AdditionalNotes,
		dir:                dir,
	}, nil
}

// Save writes the agenda snapshot for its session id. Agendas without a
// persistence directory skip saving.
func (a *Agenda) Save() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveLocked()
}

func (a *Agenda) saveLocked() error {
	if a.dir == "" {
		return nil
	}
	f := agendaFile{
		UserID:             a.UserID,
		SessionID:          a.SessionID,
		UserPortrait:       a.portrait,
		LastMeetingSummary: a.lastMeetingSummary,
		Topics:             a.topics,
		AdditionalNotes:    a.additionalNotes,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session agenda: %w", err)
	}
	base := filepath.Join(a.dir, agendaDirName)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("failed to create session agenda dir: %w", err)
	}
	path := filepath.Join(base, fmt.Sprintf("session_%d.json", a.SessionID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session agenda: %w", err)
	}
	return nil
}

// Question returns the question with the given dotted id, or nil.
func (a *Agenda) Question(id string) *InterviewQuestion {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.findQuestion(id)
}

func (a *Agenda) findQuestion(id string) *InterviewQuestion {
	if id == "" {
		return nil
	}
	parts := strings.Split(id, ".")
	var current *InterviewQuestion
	for _, t := range a.topics {
		for _, q := range t.Questions {
			if q.ID == parts[0] {
				current = q
				break
			}
		}
		if current != nil {
			break
		}
	}
	for i := 1; i < len(parts) && current != nil; i++ {
		want := strings.Join(parts[:i+1], ".")
		var next *InterviewQuestion
		for _, sub := range current.SubQuestions {
			if sub.ID == want {
				next = sub
				break
			}
		}
		current = next
	}
	return current
}

// AddInterviewQuestion adds a question. A dotted id places it under the
// matching parent; an empty id appends a top-level question with the next
// ordinal for its topic.
func (a *Agenda) AddInterviewQuestion(topic, question, questionID string) (*InterviewQuestion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if strings.Count(questionID, ".") >= maxQuestionDepth {
		return nil, fmt.Errorf("question id %s exceeds the maximum nesting depth of %d", questionID, maxQuestionDepth)
	}

	q := &InterviewQuestion{Topic: topic, Question: question}
	if strings.Contains(questionID, ".") {
		parentID := questionID[:strings.LastIndex(questionID, ".")]
		parent := a.findQuestion(parentID)
		if parent == nil {
			return nil, fmt.Errorf("parent question with id %s not found", parentID)
		}
		q.ID = questionID
		parent.SubQuestions = append(parent.SubQuestions, q)
	} else {
		t := a.topic(topic)
		q.ID = questionID
		if q.ID == "" {
			q.ID = strconv.Itoa(len(t.Questions) + 1)
		}
		t.Questions = append(t.Questions, q)
	}
	return q, a.saveLocked()
}

// topic returns the named topic, creating it at the end of the list.
func (a *Agenda) topic(name string) *Topic {
	for _, t := range a.topics {
		if t.Name == name {
			return t
		}
	}
	t := &Topic{Name: name}
	a.topics = append(a.topics, t)
	return t
}

// AddNote appends a note to the question with questionID, or to the
// unbound additional notes when questionID is empty. Empty notes are
// ignored.
func (a *Agenda) AddNote(questionID, note string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if note == "" {
		return a.saveLocked()
	}
	if questionID == "" {
		a.additionalNotes = append(a.additionalNotes, note)
		return a.saveLocked()
	}
	q := a.findQuestion(questionID)
	if q == nil {
		return fmt.Errorf("question with id %s not found", questionID)
	}
	q.Notes = append(q.Notes, note)
	return a.saveLocked()
}

// DeleteInterviewQuestion removes a leaf question; a question with
// sub-questions keeps its node but loses its text and notes so children
// stay addressable.
func (a *Agenda) DeleteInterviewQuestion(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if strings.Contains(id, ".") {
		parentID := id[:strings.LastIndex(id, ".")]
		parent := a.findQuestion(parentID)
		if parent == nil {
			return fmt.Errorf("parent question with id %s not found", parentID)
		}
		for i, sub := range parent.SubQuestions {
			if sub.ID != id {
				continue
			}
			if len(sub.SubQuestions) > 0 {
				sub.Question = ""
				sub.Notes = nil
			} else {
				parent.SubQuestions = append(parent.SubQuestions[:i], parent.SubQuestions[i+1:]...)
			}
			return a.saveLocked()
		}
		return fmt.Errorf("question with id %s not found", id)
	}

	for _, t := range a.topics {
		for i, q := range t.Questions {
			if q.ID != id {
				continue
			}
			if len(q.SubQuestions) > 0 {
				q.Question = ""
				q.Notes = nil
			} else {
				t.Questions = append(t.Questions[:i], t.Questions[i+1:]...)
			}
			return a.saveLocked()
		}
	}
	return fmt.Errorf("question with id %s not found", id)
}

// ClearQuestions drops all topics and additional notes, keeping the
// portrait and last-meeting summary. Used when rebuilding the agenda for
// the next session.
func (a *Agenda) ClearQuestions() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.topics = nil
	a.additionalNotes = nil
	return a.saveLocked()
}

// SetPortraitField creates or updates a portrait field. Field names are
// normalized to title case with spaces, so "family_status" becomes
// "Family Status". Returns whether a new field was created.
func (a *Agenda) SetPortraitField(field, value string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := FieldTitle(field)
	for i := range a.portrait {
		if a.portrait[i].Field == name {
			a.portrait[i].Value = value
			return false, a.saveLocked()
		}
	}
	a.portrait = append(a.portrait, PortraitField{Field: name, Value: value})
	return true, a.saveLocked()
}

// SetLastMeetingSummary replaces the last-meeting summary.
func (a *Agenda) SetLastMeetingSummary(summary string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastMeetingSummary = strings.TrimSpace(summary)
	return a.saveLocked()
}

// FieldTitle normalizes a portrait field name: the first letter of each
// underscore- or space-separated word is uppercased, the rest lowercased.
func FieldTitle(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
