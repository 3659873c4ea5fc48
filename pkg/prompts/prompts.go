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

// Package prompts manages the prompt templates used by the memoir agents.
//
// Every template the agents send to an LLM (interviewer instructions, scribe
// pipelines, biography planner and writers, warnings, the simulated user) is
// compiled into the binary from templates/ and addressed by a dotted key such
// as "interviewer.system" or "writer.section". A template can carry named
// variants ("baseline", "user_add", "user_update") selected by filename
// suffix. An optional override directory lets operators replace any builtin
// template at runtime, with fsnotify-driven hot reload.
//
// Example usage:
//
//	registry := prompts.NewRegistry("")
//	system, err := registry.Get(ctx, "interviewer.system", map[string]interface{}{
//	    "user_portrait": portrait,
//	    "chat_history":  history,
//	})
package prompts

import "time"

// PromptMetadata describes a registered template without its content.
type PromptMetadata struct {
	// Key is the dotted identifier, e.g. "interviewer.system".
	Key string

	// Variants available for this key. Always includes "default".
	Variants []string

	// Variables that can be interpolated, in order of first appearance
	// across all variants. Example: ["user_portrait", "chat_history"].
	Variables []string

	// Overridden reports whether any variant is served from the override
	// directory rather than the builtin template set.
	Overridden bool
}

// PromptUpdate represents a change notification for a prompt.
// Sent via Watch() channel when override files change on disk.
type PromptUpdate struct {
	Key       string
	Action    string // "created", "modified", "deleted", "error"
	Timestamp time.Time
	Error     error // Set if Action is "error"
}
