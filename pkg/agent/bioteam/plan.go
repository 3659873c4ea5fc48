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
package bioteam

import "strings"

// Plan action types the planner emits.
const (
	ActionCreate      = "create"
	ActionUpdate      = "update"
	ActionTitleUpdate = "title-update"

	// User-initiated actions: the section writer runs its interactive
	// variant for these instead of the memory-driven one.
	ActionUserAdd    = "user_add"
	ActionUserUpdate = "user_update"
)

// Plan is one planned mutation of the biography tree. Path addresses the
// section for create-style actions, Title for title-based updates; either
// works for content updates. MemoryIDs lists the memories the section
// writer must cite.
type Plan struct {
	ActionType string
	Path       string
	Title      string
	UpdatePlan string
	MemoryIDs  []string
}

// Label returns the path or title identifying the planned section.
func (p Plan) Label() string {
	if p.Path != "" {
		return p.Path
	}
	return p.Title
}

// FollowUp is a follow-up question proposed while updating the biography,
// collected for the next session's agenda rebuild.
type FollowUp struct {
	Content string
	Context string
}

// memoryIDsFromBullets parses the planner's bulleted relevant_memories
// argument ("- MEM_1\n- MEM_2") into ids. Bare newline-separated ids are
// accepted too.
func memoryIDsFromBullets(s string) []string {
	var ids []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids
}
