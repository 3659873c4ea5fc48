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
// Package types contains shared types used across the memoir engine.
// It breaks import cycles between the session engine and the agents.
package types

import (
	"context"
	"time"
)

// Roles on the message router. Sender identity, not LLM chat roles.
const (
	RoleUser        = "User"
	RoleInterviewer = "Interviewer"
	RoleSystem      = "system"
)

// MessageType classifies a routed message.
type MessageType string

const (
	// MessageTypeConversation is a normal utterance; it fans out to subscribers.
	MessageTypeConversation MessageType = "conversation"

	// MessageTypeSkip records that the user skipped the current question.
	// It fans out like a conversation message with fixed content.
	MessageTypeSkip MessageType = "skip"

	// MessageTypeLike records positive feedback on the last interviewer
	// question. It is logged but never delivered to subscribers.
	MessageTypeLike MessageType = "like"
)

// Message is one entry in the session chat history.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Subscriber receives routed messages. Implementations must tolerate
// concurrent delivery relative to other subscribers; delivery to a single
// subscriber preserves posting order.
type Subscriber interface {
	// Title identifies the subscriber in logs.
	Title() string

	// OnMessage handles one routed message. A nil message is the boot
	// signal that asks the interviewer to open the session.
	OnMessage(ctx context.Context, msg *Message) error
}

// Event is one entry in an agent's private event stream: everything the
// agent saw or did, in order. Streams are windowed for prompt construction
// but retained in full for debugging.
type Event struct {
	Sender    string    `json:"sender"`
	Tag       string    `json:"tag"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EventFilter selects events by sender and tag. Used when rendering an
// event stream into a prompt. An empty Sender or Tag matches any value.
type EventFilter struct {
	Sender string
	Tag    string
}

// Matches reports whether the event matches the filter.
func (f EventFilter) Matches(e Event) bool {
	if f.Sender != "" && e.Sender != f.Sender {
		return false
	}
	if f.Tag != "" && e.Tag != f.Tag {
		return false
	}
	return true
}
