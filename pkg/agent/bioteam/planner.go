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

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/agent"
	"github.com/teradata-labs/memoir/pkg/biography"
	"github.com/teradata-labs/memoir/pkg/memory"
	"github.com/teradata-labs/memoir/pkg/prompts"
	"github.com/teradata-labs/memoir/pkg/toolkit"
)

const plannerName = "BiographyPlanner"

// Planner decides how new memories change the biography: which sections
// to create or update, and which follow-up questions to explore in the
// next session.
type Planner struct {
	*agent.Agent

	bio *biography.Biography

	mu      sync.Mutex
	plans   []Plan
	planned map[string]bool

	followUpsMu sync.Mutex
	followUps   []FollowUp
}

// NewPlanner builds the planner and registers its tools.
func NewPlanner(deps agent.Deps, bio *biography.Biography) *Planner {
	p := &Planner{
		Agent:   agent.New(plannerName, "Plans updates to the biography based on new memories", deps),
		bio:     bio,
		planned: make(map[string]bool),
	}
	p.registerTools()
	return p
}

func (p *Planner) registerTools() {
	p.RegisterTools(
		toolkit.NewTool("add_plan",
			"Add a plan for creating or updating a section of the biography.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"action_type": toolkit.NewStringSchema(
					"Type of action: 'create', 'update', or 'title-update'."),
				"section_path": toolkit.NewStringSchema(
					"Full path of the section, e.g. '1 Early Life/1.1 Childhood'. Required when creating a section."),
				"section_title": toolkit.NewStringSchema(
					"Exact title of the section to update. May replace section_path for updates."),
				"relevant_memories": toolkit.NewStringSchema(
					"Bullet-pointed list of memory ids the update must incorporate, e.g.\n- MEM_1\n- MEM_2"),
				"update_plan": toolkit.NewStringSchema(
					"Detailed plan for creating or updating the section."),
			}, []string{"action_type", "update_plan"}),
			p.addPlan),
		toolkit.NewTool("add_follow_up_question",
			"Add a follow-up question to ask the user in the next session.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"content": toolkit.NewStringSchema("The question to ask."),
				"context": toolkit.NewStringSchema("Why this question matters for the biography."),
			}, []string{"content"}),
			p.addFollowUpQuestion),
	)
}

// CreateUpdatePlans asks the engine for update plans covering the new
// memories, with a rolling summary of the recent conversation for
// context. Invalid plans are rejected inside the add_plan tool; memories
// the accepted plans leave uncovered trigger a re-prompt quoting the
// previous calls and the missing ids. The loop is bounded by the
// consideration budget.
func (p *Planner) CreateUpdatePlans(ctx context.Context, newMemories []*memory.Memory, conversationSummary string) ([]Plan, error) {
	p.reset()

	maxIterations := p.Config().MaxConsiderationIterations
	warning := ""

	for iteration := 0; iteration < maxIterations; iteration++ {
		prompt, err := p.buildPlanPrompt(ctx, newMemories, conversationSummary, warning)
		if err != nil {
			return nil, err
		}
		p.AddEvent(plannerName, "plan_prompt", prompt)

		response, err := p.CallEngine(ctx, prompt)
		if err != nil {
			return nil, err
		}
		p.AddEvent(plannerName, "plan_response", response)

		if _, err := p.HandleToolCalls(ctx, response); err != nil {
			p.AddEvent(plannerName, "error", fmt.Sprintf("Error handling plan response: %v", err))
			return nil, err
		}

		missing := p.uncoveredMemories(newMemories)
		if len(missing) == 0 {
			break
		}
		if iteration+1 >= maxIterations {
			log.Warn("memories left uncovered by update plans",
				zap.Int("missing", len(missing)),
				zap.Int("iterations", maxIterations),
			)
			break
		}
		warning, err = p.Prompts().Get(ctx, "planner.missing_memories", map[string]interface{}{
			"previous_tool_call": previousToolCalls(response),
			"missing_memory_ids": strings.Join(missing, "\n"),
		})
		if err != nil {
			return nil, err
		}
	}
	return p.Plans(), nil
}

// CreateUserAddPlan plans a user-requested new section at path. The
// returned plan carries the user_add action so the section writer runs
// its interactive variant.
func (p *Planner) CreateUserAddPlan(ctx context.Context, path, sectionPrompt string) (Plan, error) {
	return p.userPlan(ctx, "user_add", path, map[string]interface{}{
		"biography_structure": structureJSON(p.bio),
		"biography_content":   fullContent(p.bio),
		"section_path":        path,
		"section_prompt":      sectionPrompt,
		"style_instructions":  prompts.PlannerStyleInstructions(p.Config().BiographyStyle),
		"tool_descriptions":   p.DescribeTools("add_plan"),
	})
}

// CreateUserUpdatePlan plans a user-requested edit of the section with
// the given title, driven by the selected text and the user's comment.
func (p *Planner) CreateUserUpdatePlan(ctx context.Context, title, selectedText, comment string) (Plan, error) {
	return p.userPlan(ctx, "user_update", title, map[string]interface{}{
		"biography_structure": structureJSON(p.bio),
		"biography_content":   fullContent(p.bio),
		"section_title":       title,
		"selected_text":       selectedText,
		"user_comment":        comment,
		"style_instructions":  prompts.PlannerStyleInstructions(p.Config().BiographyStyle),
		"tool_descriptions":   p.DescribeTools("add_plan"),
	})
}

func (p *Planner) userPlan(ctx context.Context, variant, label string, vars map[string]interface{}) (Plan, error) {
	p.reset()

	prompt, err := p.Prompts().GetWithVariant(ctx, "planner.plan", variant, vars)
	if err != nil {
		return Plan{}, err
	}
	p.AddEvent(plannerName, "plan_prompt", prompt)

	response, err := p.CallEngine(ctx, prompt)
	if err != nil {
		return Plan{}, err
	}
	p.AddEvent(plannerName, "plan_response", response)

	if _, err := p.HandleToolCalls(ctx, response); err != nil {
		p.AddEvent(plannerName, "error", fmt.Sprintf("Error handling plan response: %v", err))
		return Plan{}, err
	}

	plans := p.Plans()
	if len(plans) == 0 {
		return Plan{}, fmt.Errorf("no plan produced for %q", label)
	}
	return plans[0], nil
}

func (p *Planner) buildPlanPrompt(ctx context.Context, newMemories []*memory.Memory, conversationSummary, warning string) (string, error) {
	prompt, err := p.Prompts().Get(ctx, "planner.plan", map[string]interface{}{
		"biography_structure":  structureJSON(p.bio),
		"biography_content":    fullContent(p.bio),
		"new_information":      memoriesXML(newMemories, false),
		"conversation_summary": conversationSummary,
		"style_instructions":   prompts.PlannerStyleInstructions(p.Config().BiographyStyle),
		"tool_descriptions":    p.DescribeTools("add_plan", "add_follow_up_question"),
	})
	if err != nil {
		return "", err
	}
	if warning != "" {
		prompt += "\n\n" + warning
	}
	return prompt, nil
}

func (p *Planner) addPlan(ctx context.Context, args map[string]interface{}) (string, error) {
	plan := Plan{
		ActionType: strings.TrimSpace(toolkit.StringArg(args, "action_type")),
		Path:       strings.TrimSpace(toolkit.StringArg(args, "section_path")),
		Title:      strings.TrimSpace(toolkit.StringArg(args, "section_title")),
		UpdatePlan: toolkit.StringArg(args, "update_plan"),
		MemoryIDs:  relevantMemoryIDs(args),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.validatePlan(plan); err != nil {
		return "", err
	}
	p.acceptPlan(plan)
	return fmt.Sprintf("Successfully added plan for %s", plan.Label()), nil
}

func (p *Planner) addFollowUpQuestion(ctx context.Context, args map[string]interface{}) (string, error) {
	content := strings.TrimSpace(toolkit.StringArg(args, "content"))
	if content == "" {
		return "", errors.New("follow-up question content cannot be empty")
	}
	p.followUpsMu.Lock()
	p.followUps = append(p.followUps, FollowUp{
		Content: content,
		Context: toolkit.StringArg(args, "context"),
	})
	p.followUpsMu.Unlock()
	return fmt.Sprintf("Successfully added follow-up question: %s", content), nil
}

func relevantMemoryIDs(args map[string]interface{}) []string {
	return memoryIDsFromBullets(toolkit.StringArg(args, "relevant_memories"))
}

// validatePlan rejects plans that would break the tree invariants.
// Callers hold p.mu.
func (p *Planner) validatePlan(plan Plan) error {
	switch plan.ActionType {
	case ActionCreate:
		if plan.Path == "" {
			return errors.New("create plans require a section_path")
		}
		return p.validateNewPath(plan.Path)
	case ActionUpdate, ActionTitleUpdate:
		sec, err := p.bio.GetSection(plan.Path, plan.Title, false)
		if err != nil {
			return err
		}
		if sec == nil {
			return fmt.Errorf("section %q not found", plan.Label())
		}
		return nil
	case ActionUserAdd:
		if plan.Path == "" {
			return errors.New("user_add plans require a section_path")
		}
		return biography.ValidatePathFormat(plan.Path)
	case ActionUserUpdate:
		if plan.Title == "" {
			return errors.New("user_update plans require a section_title")
		}
		return nil
	default:
		return fmt.Errorf("unknown action type %q", plan.ActionType)
	}
}

// validateNewPath checks format plus sequential numbering against the
// current tree and the sections already planned this round, so a plan for
// "3 Career" passes when "2 Moves" exists only as an earlier plan.
// Callers hold p.mu.
func (p *Planner) validateNewPath(path string) error {
	if err := biography.ValidatePathFormat(path); err != nil {
		return err
	}

	subs := p.bio.Root().Subsections
	parent := p.bio.Root().Title
	prefix := ""
	for _, part := range strings.Split(path, "/") {
		full := part
		if prefix != "" {
			full = prefix + "/" + part
		}
		switch {
		case subs[part] != nil:
			subs = subs[part].Subsections
		case p.planned[full]:
			subs = nil
		default:
			want := len(subs) + p.plannedUnder(prefix) + 1
			if got := titleOrdinal(part); got != want {
				return fmt.Errorf("section %q breaks sequential numbering under %q: next ordinal is %d",
					part, parent, want)
			}
			subs = nil
		}
		parent = part
		prefix = full
	}
	return nil
}

// plannedUnder counts the planned-but-not-yet-created sections directly
// under parent. Callers hold p.mu.
func (p *Planner) plannedUnder(parent string) int {
	n := 0
	for path := range p.planned {
		if parentPath(path) == parent {
			n++
		}
	}
	return n
}

// acceptPlan records the plan, replacing an earlier plan for the same
// action and section. Created paths are remembered, components included,
// so later plans can nest under them. Callers hold p.mu.
func (p *Planner) acceptPlan(plan Plan) {
	if plan.ActionType == ActionCreate || plan.ActionType == ActionUserAdd {
		prefix := ""
		for _, part := range strings.Split(plan.Path, "/") {
			if prefix == "" {
				prefix = part
			} else {
				prefix = prefix + "/" + part
			}
			p.planned[prefix] = true
		}
	}
	for i := range p.plans {
		if p.plans[i].ActionType == plan.ActionType && p.plans[i].Label() == plan.Label() {
			p.plans[i] = plan
			return
		}
	}
	p.plans = append(p.plans, plan)
}

// uncoveredMemories returns the ids of new memories no accepted plan
// cites.
func (p *Planner) uncoveredMemories(newMemories []*memory.Memory) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	covered := make(map[string]bool)
	for _, plan := range p.plans {
		for _, id := range plan.MemoryIDs {
			covered[id] = true
		}
	}
	var missing []string
	for _, m := range newMemories {
		if !covered[m.ID] {
			missing = append(missing, m.ID)
		}
	}
	return missing
}

// reset clears per-run plan state. Follow-up questions survive resets;
// they accumulate until the final agenda rebuild collects them.
func (p *Planner) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plans = nil
	p.planned = make(map[string]bool)
}

// Plans returns a copy of the accepted plans.
func (p *Planner) Plans() []Plan {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Plan, len(p.plans))
	copy(out, p.plans)
	return out
}

// FollowUps returns the follow-up questions collected so far.
func (p *Planner) FollowUps() []FollowUp {
	p.followUpsMu.Lock()
	defer p.followUpsMu.Unlock()
	out := make([]FollowUp, len(p.followUps))
	copy(out, p.followUps)
	return out
}
