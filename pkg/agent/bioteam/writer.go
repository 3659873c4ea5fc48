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

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/teradata-labs/memoir/pkg/agenda"
	"github.com/teradata-labs/memoir/pkg/agent"
	"github.com/teradata-labs/memoir/pkg/biography"
	"github.com/teradata-labs/memoir/pkg/memory"
	"github.com/teradata-labs/memoir/pkg/prompts"
	"github.com/teradata-labs/memoir/pkg/toolkit"
	"github.com/teradata-labs/memoir/pkg/types"
)

const writerName = "SectionWriter"

const tagRecallResponse = "recall_response"

// UpdateResult reports the outcome of executing one plan.
type UpdateResult struct {
	Success bool
	Message string
}

// Writer executes plans against the biography tree. Several writers may
// run concurrently over a shared tree; the tree serializes mutations
// itself.
type Writer struct {
	*agent.Agent

	bio      *biography.Biography
	memories *memory.Bank
	agenda   *agenda.Agenda

	followUpsMu sync.Mutex
	followUps   []FollowUp
}

// NewWriter builds the section writer and registers its tools.
func NewWriter(deps agent.Deps, bio *biography.Biography, memories *memory.Bank, ag *agenda.Agenda) *Writer {
	w := &Writer{
		Agent:    agent.New(writerName, "Writes and revises individual biography sections", deps),
		bio:      bio,
		memories: memories,
		agenda:   ag,
	}
	w.registerTools()
	return w
}

func (w *Writer) registerTools() {
	w.RegisterTools(
		toolkit.NewTool("get_section",
			"Retrieve content of a biography section by its path.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"path": toolkit.NewStringSchema("Path to the section to retrieve."),
			}, []string{"path"}),
			w.getSection),
		toolkit.NewTool("add_section",
			"Add a new section to the biography.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"path": toolkit.NewStringSchema(
					"Full path to the new section, e.g. '1 Early Life/1.1 Childhood'."),
				"content": toolkit.NewStringSchema("Content of the new section."),
			}, []string{"path", "content"}),
			w.addSection),
		toolkit.NewTool("update_section",
			"Update content of an existing section.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"path": toolkit.NewStringSchema(
					"Path of the section to update. Optional if title is provided."),
				"title": toolkit.NewStringSchema(
					"Exact title of the section to update. Optional if path is provided."),
				"content":   toolkit.NewStringSchema("Updated content for the section."),
				"new_title": toolkit.NewStringSchema("Optional new title for the section."),
			}, []string{"content"}),
			w.updateSection),
		toolkit.NewTool("propose_follow_up",
			"Propose a follow-up question to ask the user in the next session.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"content": toolkit.NewStringSchema("The question to ask."),
				"context": toolkit.NewStringSchema("Why this question matters for the biography."),
			}, []string{"content"}),
			w.proposeFollowUp),
		toolkit.NewTool("recall",
			"Search for relevant memories before writing or updating sections.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"reasoning": toolkit.NewStringSchema("Explain how this information helps the section."),
				"query":     toolkit.NewStringSchema("Search query to find relevant memories."),
			}, []string{"reasoning", "query"}),
			w.recall),
	)
}

// UpdateSection drives one plan to completion. Recall rounds feed their
// results back through the event stream; tool errors and dropped memory
// citations each trigger a corrective re-prompt. The loop is bounded by
// the consideration budget.
func (w *Writer) UpdateSection(ctx context.Context, plan Plan) UpdateResult {
	maxIterations := w.Config().MaxConsiderationIterations
	warning := ""

	for iteration := 0; iteration < maxIterations; iteration++ {
		prompt, err := w.buildSectionPrompt(ctx, plan, warning)
		if err != nil {
			return UpdateResult{Message: err.Error()}
		}
		w.AddEvent(writerName, "section_write_prompt", prompt)

		response, err := w.CallEngine(ctx, prompt)
		if err != nil {
			return UpdateResult{Message: err.Error()}
		}
		w.AddEvent(writerName, "section_write_response", response)

		result, err := w.HandleToolCalls(ctx, response)
		if err != nil {
			w.AddEvent(writerName, "error", fmt.Sprintf("Error handling section response: %v", err))
			return UpdateResult{Message: err.Error()}
		}

		if strings.Contains(response, "<recall>") {
			w.AddEvent(writerName, tagRecallResponse, result)
			continue
		}
		if errText := toolErrorLines(result); errText != "" {
			if iteration+1 >= maxIterations {
				break
			}
			warning, err = w.Prompts().Get(ctx, "writer.tool_call_error", map[string]interface{}{
				"previous_tool_call": previousToolCalls(response),
				"tool_call_error":    errText,
			})
			if err != nil {
				return UpdateResult{Message: err.Error()}
			}
			continue
		}
		if missing := w.missingCitations(plan); len(missing) > 0 {
			if iteration+1 >= maxIterations {
				break
			}
			warning, err = w.Prompts().Get(ctx, "writer.missing_memories", map[string]interface{}{
				"previous_tool_call": previousToolCalls(response),
				"missing_memory_ids": strings.Join(missing, "\n"),
			})
			if err != nil {
				return UpdateResult{Message: err.Error()}
			}
			continue
		}
		return UpdateResult{Success: true, Message: "Section updated successfully"}
	}
	return UpdateResult{Message: "Max iterations reached when updating section."}
}

// UpdateBaseline rewrites the biography from new memories in a single
// pass, without a planner. Tool errors re-prompt with the failed calls
// quoted, bounded by the consideration budget.
func (w *Writer) UpdateBaseline(ctx context.Context, newMemories []*memory.Memory) UpdateResult {
	maxIterations := w.Config().MaxConsiderationIterations
	warning := ""

	for iteration := 0; iteration < maxIterations; iteration++ {
		prompt, err := w.Prompts().GetWithVariant(ctx, "writer.section", "baseline", map[string]interface{}{
			"user_portrait":       w.agenda.PortraitStr(),
			"biography_structure": structureJSON(w.bio),
			"new_information":     memoriesXML(newMemories, true),
			"current_biography":   fullContent(w.bio),
			"error_warning":       warning,
			"tool_descriptions":   w.DescribeTools("add_section", "update_section"),
		})
		if err != nil {
			return UpdateResult{Message: err.Error()}
		}
		w.AddEvent(writerName, "section_write_prompt", prompt)

		response, err := w.CallEngine(ctx, prompt)
		if err != nil {
			return UpdateResult{Message: err.Error()}
		}
		w.AddEvent(writerName, "section_write_response", response)

		result, err := w.HandleToolCalls(ctx, response)
		if err != nil {
			w.AddEvent(writerName, "error", fmt.Sprintf("Error handling section response: %v", err))
			return UpdateResult{Message: err.Error()}
		}

		errText := toolErrorLines(result)
		if errText == "" {
			return UpdateResult{Success: true, Message: "Section updated successfully"}
		}
		if iteration+1 >= maxIterations {
			break
		}
		warning, err = w.Prompts().Get(ctx, "writer.tool_call_error", map[string]interface{}{
			"previous_tool_call": previousToolCalls(response),
			"tool_call_error":    errText,
		})
		if err != nil {
			return UpdateResult{Message: err.Error()}
		}
	}
	return UpdateResult{Message: "Max iterations reached when updating section."}
}

func (w *Writer) buildSectionPrompt(ctx context.Context, plan Plan, warning string) (string, error) {
	switch plan.ActionType {
	case ActionUserAdd:
		prompt, err := w.Prompts().GetWithVariant(ctx, "writer.section", "user_add", map[string]interface{}{
			"user_portrait":       w.agenda.PortraitStr(),
			"biography_structure": structureJSON(w.bio),
			"section_path":        plan.Path,
			"plan_content":        plan.UpdatePlan,
			"event_stream":        w.recallEvents(),
			"style_instructions":  prompts.WriterStyleInstructions(w.Config().BiographyStyle),
			"tool_descriptions":   w.DescribeTools("recall", "add_section"),
		})
		if err != nil {
			return "", err
		}
		return appendWarning(prompt, warning), nil
	case ActionUserUpdate:
		content, err := w.sectionContent("", plan.Title)
		if err != nil {
			return "", err
		}
		prompt, err := w.Prompts().GetWithVariant(ctx, "writer.section", "user_update", map[string]interface{}{
			"user_portrait":       w.agenda.PortraitStr(),
			"biography_structure": structureJSON(w.bio),
			"section_title":       plan.Title,
			"current_content":     content,
			"plan_content":        plan.UpdatePlan,
			"event_stream":        w.recallEvents(),
			"style_instructions":  prompts.WriterStyleInstructions(w.Config().BiographyStyle),
			"tool_descriptions":   w.DescribeTools("recall", "update_section"),
		})
		if err != nil {
			return "", err
		}
		return appendWarning(prompt, warning), nil
	default:
		content, err := w.sectionContent(plan.Path, plan.Title)
		if err != nil {
			return "", err
		}
		identifier := fmt.Sprintf("<section_path>%s</section_path>", plan.Path)
		if plan.Path == "" {
			identifier = fmt.Sprintf("<section_title>%s</section_title>", plan.Title)
		}
		relevant := w.memories.FormatForPrompt(plan.MemoryIDs, true)
		if len(plan.MemoryIDs) == 0 {
			relevant = "No relevant memories provided."
		}
		return w.Prompts().Get(ctx, "writer.section", map[string]interface{}{
			"user_portrait":            w.agenda.PortraitStr(),
			"section_identifier_xml":   identifier,
			"biography_structure":      structureJSON(w.bio),
			"current_content":          content,
			"relevant_memories":        relevant,
			"plan_content":             plan.UpdatePlan,
			"style_instructions":       prompts.WriterStyleInstructions(w.Config().BiographyStyle),
			"tool_descriptions":        w.DescribeTools("recall", "add_section", "update_section", "propose_follow_up"),
			"missing_memories_warning": warning,
		})
	}
}

func (w *Writer) recallEvents() string {
	return w.EventStream([]types.EventFilter{
		{Sender: writerName, Tag: tagRecallResponse},
	}, w.Config().MaxEventsLen)
}

func (w *Writer) sectionContent(path, title string) (string, error) {
	sec, err := w.bio.GetSection(path, title, false)
	if err != nil {
		return "", err
	}
	if sec == nil {
		return "", nil
	}
	return sec.Content, nil
}

// missingCitations returns the planned memory ids the written section
// does not cite. A section that can no longer be resolved, typically
// because the plan retitled it, is not checked.
func (w *Writer) missingCitations(plan Plan) []string {
	if len(plan.MemoryIDs) == 0 {
		return nil
	}
	sec, err := w.bio.GetSection(plan.Path, plan.Title, false)
	if err != nil || sec == nil {
		return nil
	}
	cited := make(map[string]bool, len(sec.MemoryIDs))
	for _, id := range sec.MemoryIDs {
		cited[id] = true
	}
	var missing []string
	for _, id := range plan.MemoryIDs {
		if !cited[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func appendWarning(prompt, warning string) string {
	if warning == "" {
		return prompt
	}
	return prompt + "\n\n" + warning
}

func (w *Writer) getSection(ctx context.Context, args map[string]interface{}) (string, error) {
	sec, err := w.bio.GetSection(toolkit.StringArg(args, "path"), "", false)
	if err != nil {
		return "", err
	}
	if sec == nil {
		return "", nil
	}
	return sec.Content, nil
}

func (w *Writer) addSection(ctx context.Context, args map[string]interface{}) (string, error) {
	path := toolkit.StringArg(args, "path")
	if err := w.bio.ValidateNewSectionPath(path); err != nil {
		return "", err
	}
	if _, err := w.bio.AddSection(path, toolkit.StringArg(args, "content")); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully added section at path '%s'", path), nil
}

func (w *Writer) updateSection(ctx context.Context, args map[string]interface{}) (string, error) {
	u := biography.SectionUpdate{
		Path:     toolkit.StringArg(args, "path"),
		Title:    toolkit.StringArg(args, "title"),
		NewTitle: toolkit.StringArg(args, "new_title"),
	}
	if _, ok := args["content"]; ok {
		content := toolkit.StringArg(args, "content")
		u.Content = &content
	}
	if _, err := w.bio.UpdateSection(u); err != nil {
		return "", err
	}
	if u.Path != "" {
		return fmt.Sprintf("Successfully updated section at path '%s'", u.Path), nil
	}
	return fmt.Sprintf("Successfully updated section with title '%s'", u.Title), nil
}

func (w *Writer) proposeFollowUp(ctx context.Context, args map[string]interface{}) (string, error) {
	content := strings.TrimSpace(toolkit.StringArg(args, "content"))
	if content == "" {
		return "", errors.New("follow-up question content cannot be empty")
	}
	w.followUpsMu.Lock()
	w.followUps = append(w.followUps, FollowUp{
		Content: content,
		Context: toolkit.StringArg(args, "context"),
	})
	w.followUpsMu.Unlock()
	return fmt.Sprintf("Successfully added follow-up question: %s", content), nil
}

func (w *Writer) recall(ctx context.Context, args map[string]interface{}) (string, error) {
	return searchMemories(ctx, w.memories, args)
}

// FollowUps returns the follow-up questions proposed while writing.
func (w *Writer) FollowUps() []FollowUp {
	w.followUpsMu.Lock()
	defer w.followUpsMu.Unlock()
	out := make([]FollowUp, len(w.followUps))
	copy(out, w.followUps)
	return out
}
