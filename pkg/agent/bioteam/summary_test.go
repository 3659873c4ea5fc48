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

	"github.com/teradata-labs/memoir/pkg/agenda"
	"github.com/teradata-labs/memoir/pkg/config"
	"github.com/teradata-labs/memoir/pkg/memory"
	"github.com/teradata-labs/memoir/pkg/types"
)

func newTestSummaryWriter(t *testing.T, cfg *config.Config, provider *routedProvider) (*SummaryWriter, *agenda.Agenda, *memory.Bank) {
	t.Helper()
	ag := agenda.Initial("margaret", t.TempDir())
	bank := memory.NewBank(&stubEmbedder{})
	return NewSummaryWriter(testDeps(cfg, provider), ag, bank), ag, bank
}

func TestUpdateAgendaRewritesSummaryAndQuestions(t *testing.T) {
	provider := &routedProvider{}
	s, ag, bank := newTestSummaryWriter(t, testConfig(), provider)
	ctx := context.Background()

	m := addMemory(t, bank, "Hometown", "Grew up in a small town in Maine.", "I grew up in Maine.")

	summary := provider.addRoute(summaryMarker,
		"<tool_calls>\n<update_last_meeting_summary>\n<summary>We talked about her hometown.</summary>\n</update_last_meeting_summary>\n"+
			"<update_user_portrait>\n<field_name>hometown</field_name>\n<value>[Small town in Maine]</value>\n"+
			"<is_new_field>false</is_new_field>\n<reasoning>Recurred across the session.</reasoning>\n</update_user_portrait>\n</tool_calls>")
	questions := provider.addRoute(questionsMarker,
		"<tool_calls>\n<add_interview_question>\n<topic>Career</topic>\n<question>What was your first job?</question>\n"+
			"<question_id>1</question_id>\n</add_interview_question>\n</tool_calls>")

	followUps := []FollowUp{{Content: "Which town was it?", Context: "Places anchor the early chapters."}}
	err := s.UpdateAgenda(ctx, []*memory.Memory{m}, followUps, []string{"Career"})
	require.NoError(t, err)

	assert.Equal(t, "We talked about her hometown.", ag.LastMeetingSummaryStr())

	// Portrait value is stored without the bracket wrapper models add.
	portrait := ag.PortraitStr()
	assert.Contains(t, portrait, "Hometown: Small town in Maine")
	assert.NotContains(t, portrait, "[Small town in Maine]")

	// The question list was rebuilt from scratch.
	rendered := ag.QuestionsAndNotesStr(agenda.ShowAll)
	assert.NotContains(t, rendered, "What is your name?")
	q := ag.Question("1")
	require.NotNil(t, q)
	assert.Equal(t, "What was your first job?", q.Question)
	assert.Equal(t, "Career", q.Topic)

	// The summary saw the new memories; the rebuild saw the old questions,
	// the follow-ups, and the selected topics.
	require.Equal(t, 1, summary.served)
	assert.Contains(t, summary.prompts[0], "- Grew up in a small town in Maine.")
	require.Equal(t, 1, questions.served)
	assert.Contains(t, questions.prompts[0], "What is your name?")
	assert.Contains(t, questions.prompts[0], "Which town was it?")
	assert.Contains(t, questions.prompts[0], "Career")

	require.Len(t, s.Events(types.EventFilter{Sender: summaryWriterName, Tag: "question_actions"}), 1)
}

func TestUpdateAgendaRecallRoundFeedsNextPrompt(t *testing.T) {
	provider := &routedProvider{}
	s, ag, bank := newTestSummaryWriter(t, testConfig(), provider)
	ctx := context.Background()

	addMemory(t, bank, "First job", "Started out as a typesetter.", "My first job was typesetting.")

	provider.addRoute(summaryMarker,
		"<tool_calls>\n<update_last_meeting_summary>\n<summary>Work stories.</summary>\n</update_last_meeting_summary>\n</tool_calls>")
	questions := provider.addRoute(questionsMarker,
		"<tool_calls>\n<recall>\n<reasoning>Checking what work history is already covered.</reasoning>\n<query>first job</query>\n</recall>\n</tool_calls>",
		"<tool_calls>\n<add_interview_question>\n<topic>Career</topic>\n<question>What came after typesetting?</question>\n"+
			"<question_id>1</question_id>\n</add_interview_question>\n</tool_calls>")

	err := s.UpdateAgenda(ctx, nil, nil, []string{"Career"})
	require.NoError(t, err)

	require.Equal(t, 2, questions.served)
	assert.Contains(t, questions.prompts[1], "Started out as a typesetter.")
	require.Len(t, s.Events(types.EventFilter{Sender: summaryWriterName, Tag: tagRecallResponse}), 1)
	require.NotNil(t, ag.Question("1"))
}

func TestUpdateAgendaStopsAfterRecallBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsiderationIterations = 2

	provider := &routedProvider{}
	s, ag, _ := newTestSummaryWriter(t, cfg, provider)
	ctx := context.Background()

	provider.addRoute(summaryMarker,
		"<tool_calls>\n<update_last_meeting_summary>\n<summary>Short session.</summary>\n</update_last_meeting_summary>\n</tool_calls>")
	recallOnly := "<tool_calls>\n<recall>\n<reasoning>Still checking.</reasoning>\n<query>childhood</query>\n</recall>\n</tool_calls>"
	questions := provider.addRoute(questionsMarker, recallOnly, recallOnly)

	err := s.UpdateAgenda(ctx, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, questions.served)
	warnings := s.Events(types.EventFilter{Sender: summaryWriterName, Tag: "warning"})
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Content, "Reached maximum iterations (2)")

	// The old questions are gone and nothing replaced them.
	assert.Nil(t, ag.Question("1"))
}

func TestExtractSessionTopicsDropsNoneSentinel(t *testing.T) {
	provider := &routedProvider{}
	s, _, _ := newTestSummaryWriter(t, testConfig(), provider)

	m := mem("MEM_05101430_a1b", "Career change", "Left teaching for the print shop.")
	route := provider.addRoute(topicsMarker, "Career transitions\n\nFamily\nNone")

	topics, err := s.ExtractSessionTopics(context.Background(), []*memory.Memory{m})
	require.NoError(t, err)
	assert.Equal(t, []string{"Career transitions", "Family"}, topics)
	assert.Contains(t, route.prompts[0], "Left teaching for the print shop.")
}

func TestUpdateUserPortraitReportsActualAction(t *testing.T) {
	provider := &routedProvider{}
	s, ag, _ := newTestSummaryWriter(t, testConfig(), provider)
	ctx := context.Background()

	// The engine claims an update, but the field does not exist yet: the
	// result reports what actually happened.
	result, err := s.ExecuteTool(ctx, "update_user_portrait", map[string]interface{}{
		"field_name":   "hometown",
		"value":        "Small town in Maine",
		"is_new_field": "false",
		"reasoning":    "Recurred across the session.",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "Created new field: Hometown")

	result, err = s.ExecuteTool(ctx, "update_user_portrait", map[string]interface{}{
		"field_name":   "hometown",
		"value":        "Coastal Maine",
		"is_new_field": "true",
		"reasoning":    "She corrected herself later.",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "Updated field: Hometown")
	assert.Contains(t, ag.PortraitStr(), "Hometown: Coastal Maine")
}

func TestDeleteInterviewQuestionTool(t *testing.T) {
	provider := &routedProvider{}
	s, ag, _ := newTestSummaryWriter(t, testConfig(), provider)
	ctx := context.Background()

	require.NotNil(t, ag.Question("1"))

	result, err := s.ExecuteTool(ctx, "delete_interview_question", map[string]interface{}{
		"question_id": "1",
		"reasoning":   "Already answered in the portrait.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Successfully deleted question 1. Reason: Already answered in the portrait.", result)
	assert.Nil(t, ag.Question("1"))
}
