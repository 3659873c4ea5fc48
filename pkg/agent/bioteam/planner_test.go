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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/memoir/pkg/biography"
	"github.com/teradata-labs/memoir/pkg/memory"
	"github.com/teradata-labs/memoir/pkg/types"
)

func newTestPlanner(t *testing.T, provider *routedProvider) (*Planner, *biography.Biography) {
	t.Helper()
	bio := biography.New("margaret", t.TempDir())
	return NewPlanner(testDeps(testConfig(), provider), bio), bio
}

func mem(id, title, text string) *memory.Memory {
	return &memory.Memory{ID: id, Title: title, Text: text}
}

func TestCreateUpdatePlansCollectsPlansAndFollowUps(t *testing.T) {
	provider := &routedProvider{}
	p, _ := newTestPlanner(t, provider)

	m1 := mem("MEM_05101430_a1b", "Hometown", "Grew up in a small town in Maine.")
	m2 := mem("MEM_05101430_c2d", "Siblings", "Oldest of four children.")

	route := provider.addRoute(plannerMarker,
		"<tool_calls>\n<add_plan>\n<action_type>create</action_type>\n<section_path>1 Early Life</section_path>\n"+
			"<relevant_memories>\n- MEM_05101430_a1b\n- MEM_05101430_c2d\n</relevant_memories>\n"+
			"<update_plan>Open with the town, then the crowded household.</update_plan>\n</add_plan>\n"+
			"<add_follow_up_question>\n<content>What did your siblings go on to do?</content>\n"+
			"<context>The household shaped her early years.</context>\n</add_follow_up_question>\n</tool_calls>")

	plans, err := p.CreateUpdatePlans(context.Background(), []*memory.Memory{m1, m2},
		"Twenty minutes on her hometown and family.")
	require.NoError(t, err)

	require.Len(t, plans, 1)
	assert.Equal(t, ActionCreate, plans[0].ActionType)
	assert.Equal(t, "1 Early Life", plans[0].Path)
	assert.Equal(t, []string{m1.ID, m2.ID}, plans[0].MemoryIDs)
	assert.Contains(t, plans[0].UpdatePlan, "crowded household")

	followUps := p.FollowUps()
	require.Len(t, followUps, 1)
	assert.Equal(t, "What did your siblings go on to do?", followUps[0].Content)
	assert.Equal(t, "The household shaped her early years.", followUps[0].Context)

	// One round: every memory was covered.
	require.Equal(t, 1, route.served)
	assert.Contains(t, route.prompts[0], m1.ID)
	assert.Contains(t, route.prompts[0], "Twenty minutes on her hometown and family.")
}

func TestCreateUpdatePlansRepromptsOnRejectedPlan(t *testing.T) {
	provider := &routedProvider{}
	p, _ := newTestPlanner(t, provider)

	m := mem("MEM_05101430_a1b", "First job", "Started out as a typesetter.")

	badPlan := "<tool_calls>\n<add_plan>\n<action_type>create</action_type>\n<section_path>2 Career</section_path>\n" +
		"<relevant_memories>\n- MEM_05101430_a1b\n</relevant_memories>\n" +
		"<update_plan>Describe her first job.</update_plan>\n</add_plan>\n</tool_calls>"
	goodPlan := "<tool_calls>\n<add_plan>\n<action_type>create</action_type>\n<section_path>1 Career</section_path>\n" +
		"<relevant_memories>\n- MEM_05101430_a1b\n</relevant_memories>\n" +
		"<update_plan>Describe her first job.</update_plan>\n</add_plan>\n</tool_calls>"
	route := provider.addRoute(plannerMarker, badPlan, goodPlan)

	plans, err := p.CreateUpdatePlans(context.Background(), []*memory.Memory{m}, "")
	require.NoError(t, err)

	require.Len(t, plans, 1)
	assert.Equal(t, "1 Career", plans[0].Path)

	// The rejected call was quoted back with the uncovered memory id.
	require.Equal(t, 2, route.served)
	assert.Contains(t, route.prompts[1], "<section_path>2 Career</section_path>")
	assert.Contains(t, route.prompts[1], m.ID)

	errs := p.Events(types.EventFilter{Sender: types.RoleSystem, Tag: "error"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Content, "breaks sequential numbering")
}

func TestCreateUpdatePlansAllowsNestingUnderPlannedSections(t *testing.T) {
	provider := &routedProvider{}
	p, _ := newTestPlanner(t, provider)

	m := mem("MEM_05101430_a1b", "Childhood", "Summers at the lake cabin.")

	provider.addRoute(plannerMarker,
		"<tool_calls>\n<add_plan>\n<action_type>create</action_type>\n<section_path>1 Early Life</section_path>\n"+
			"<relevant_memories>\n- MEM_05101430_a1b\n</relevant_memories>\n"+
			"<update_plan>Frame the chapter.</update_plan>\n</add_plan>\n"+
			"<add_plan>\n<action_type>create</action_type>\n<section_path>1 Early Life/1.1 Childhood</section_path>\n"+
			"<relevant_memories>\n- MEM_05101430_a1b\n</relevant_memories>\n"+
			"<update_plan>Lake summers in detail.</update_plan>\n</add_plan>\n</tool_calls>")

	plans, err := p.CreateUpdatePlans(context.Background(), []*memory.Memory{m}, "")
	require.NoError(t, err)

	// The nested path validates against the planned parent, which does not
	// exist in the tree yet.
	require.Len(t, plans, 2)
	assert.Equal(t, "1 Early Life", plans[0].Path)
	assert.Equal(t, "1 Early Life/1.1 Childhood", plans[1].Path)
	assert.Empty(t, p.Events(types.EventFilter{Sender: types.RoleSystem, Tag: "error"}))
}

func TestCreateUpdatePlansStopsAfterBudget(t *testing.T) {
	provider := &routedProvider{}
	p, _ := newTestPlanner(t, provider)

	m := mem("MEM_05101430_a1b", "Retirement", "Retired from teaching in 2019.")

	// Every round targets a section that does not exist.
	badUpdate := "<tool_calls>\n<add_plan>\n<action_type>update</action_type>\n<section_title>Nowhere</section_title>\n" +
		"<relevant_memories>\n- MEM_05101430_a1b\n</relevant_memories>\n" +
		"<update_plan>Add the retirement date.</update_plan>\n</add_plan>\n</tool_calls>"
	route := provider.addRoute(plannerMarker, badUpdate, badUpdate, badUpdate)

	plans, err := p.CreateUpdatePlans(context.Background(), []*memory.Memory{m}, "")
	require.NoError(t, err)

	assert.Empty(t, plans)
	assert.Equal(t, 3, route.served)

	errs := p.Events(types.EventFilter{Sender: types.RoleSystem, Tag: "error"})
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Content, `section "Nowhere" not found`)
}

func TestCreateUserAddPlan(t *testing.T) {
	provider := &routedProvider{}
	p, _ := newTestPlanner(t, provider)

	route := provider.addRoute(userPlanMarker,
		"<tool_calls>\n<add_plan>\n<action_type>user_add</action_type>\n<section_path>1 Travels</section_path>\n"+
			"<update_plan>Start from the Lisbon trip she keeps mentioning.</update_plan>\n</add_plan>\n</tool_calls>")

	plan, err := p.CreateUserAddPlan(context.Background(), "1 Travels", "Write about my travels, starting with Lisbon.")
	require.NoError(t, err)

	assert.Equal(t, ActionUserAdd, plan.ActionType)
	assert.Equal(t, "1 Travels", plan.Path)
	assert.Contains(t, plan.UpdatePlan, "Lisbon")

	require.Equal(t, 1, route.served)
	assert.Contains(t, route.prompts[0], "1 Travels")
	assert.Contains(t, route.prompts[0], "Write about my travels, starting with Lisbon.")
}

func TestCreateUserUpdatePlanFailsWithoutTitle(t *testing.T) {
	provider := &routedProvider{}
	p, _ := newTestPlanner(t, provider)

	// The plan comes back without a section_title, so it is rejected and
	// nothing remains to execute.
	provider.addRoute(userPlanMarker,
		"<tool_calls>\n<add_plan>\n<action_type>user_update</action_type>\n"+
			"<update_plan>Tighten the paragraph.</update_plan>\n</add_plan>\n</tool_calls>")

	_, err := p.CreateUserUpdatePlan(context.Background(), "1 Early Life", "She was born in Maine.", "Too stiff.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no plan produced for "1 Early Life"`)

	errs := p.Events(types.EventFilter{Sender: types.RoleSystem, Tag: "error"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Content, "require a section_title")
}

func TestAddPlanParsesBulletedMemories(t *testing.T) {
	provider := &routedProvider{}
	p, _ := newTestPlanner(t, provider)

	result, err := p.ExecuteTool(context.Background(), "add_plan", map[string]interface{}{
		"action_type":       "create",
		"section_path":      "1 Early Life",
		"relevant_memories": "- MEM_05101430_a1b\nMEM_05101430_c2d",
		"update_plan":       "Open with the town.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Successfully added plan for 1 Early Life", result)

	plans := p.Plans()
	require.Len(t, plans, 1)
	assert.Equal(t, []string{"MEM_05101430_a1b", "MEM_05101430_c2d"}, plans[0].MemoryIDs)
}

func TestAddPlanReplacesEarlierPlanForSameSection(t *testing.T) {
	provider := &routedProvider{}
	p, _ := newTestPlanner(t, provider)
	ctx := context.Background()

	_, err := p.ExecuteTool(ctx, "add_plan", map[string]interface{}{
		"action_type":  "create",
		"section_path": "1 Early Life",
		"update_plan":  "First attempt.",
	})
	require.NoError(t, err)

	_, err = p.ExecuteTool(ctx, "add_plan", map[string]interface{}{
		"action_type":  "create",
		"section_path": "1 Early Life",
		"update_plan":  "Second attempt.",
	})
	require.NoError(t, err)

	plans := p.Plans()
	require.Len(t, plans, 1)
	assert.Equal(t, "Second attempt.", plans[0].UpdatePlan)
}
