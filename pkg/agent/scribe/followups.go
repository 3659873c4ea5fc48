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
package scribe

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/agenda"
	"github.com/teradata-labs/memoir/pkg/question"
	"github.com/teradata-labs/memoir/pkg/toolkit"
	"github.com/teradata-labs/memoir/pkg/types"
)

// proceedMarker is how the model overrides a similar-question warning and
// insists on adding its proposals anyway.
const proceedMarker = "<proceed>true</proceed>"

// similarGroup pairs one proposed question with the existing questions it
// resembles.
type similarGroup struct {
	proposed string
	similar  []question.SearchResult
}

// proposeFollowups decides whether the latest exchange warrants follow-up
// questions and adds them to the agenda. Proposals resembling questions
// already asked (in either bank) bounce back to the model with a warning;
// the model may rephrase, drop them, or proceed explicitly. The loop also
// lets the model recall memories before deciding. Iterations are bounded.
func (s *Scribe) proposeFollowups(ctx context.Context) error {
	maxIterations := s.Config().MaxConsiderationIterations

	var previousToolCall string
	var similar []similarGroup
	iterations := 0

	for iterations < maxIterations {
		prompt, err := s.buildFollowupsPrompt(ctx, previousToolCall, similar)
		if err != nil {
			return err
		}
		s.AddEvent(s.Name(), fmt.Sprintf("followups_prompt_%d", iterations), prompt)

		response, err := s.CallEngine(ctx, prompt)
		if err != nil {
			return err
		}
		s.AddEvent(s.Name(), fmt.Sprintf("followups_response_%d", iterations), response)

		// Explicit override of a similarity warning.
		if strings.Contains(strings.ToLower(response), proceedMarker) {
			s.AddEvent(s.Name(), fmt.Sprintf("feedback_loop_%d", iterations),
				"Agent chose to proceed with similar questions")
			if _, err := s.HandleToolCalls(ctx, response); err != nil {
				log.Warn("scribe follow-up tool calls failed", zap.Error(err))
			}
			return nil
		}

		proposed := proposedQuestions(response)

		if len(proposed) == 0 {
			if !strings.Contains(response, "recall") {
				// Nothing proposed and no searching wanted.
				return nil
			}
			result, err := s.HandleToolCalls(ctx, response)
			if err != nil {
				log.Warn("scribe recall failed", zap.Error(err))
			}
			s.AddEvent(s.Name(), tagRecallResponse, result)
		} else {
			similar = s.findSimilarQuestions(ctx, proposed)
			if len(similar) == 0 {
				_, err := s.HandleToolCalls(ctx, response)
				return err
			}
			// Replay the rejected call alongside the warning next round.
			if calls, err := toolkit.ParseToolCalls(response); err == nil {
				previousToolCall = toolkit.FormatToolCalls(calls)
			}
		}

		iterations++
	}

	s.AddEvent(types.RoleSystem, "error",
		fmt.Sprintf("Exceeded maximum number of consideration iterations (%d)", maxIterations))
	return nil
}

// proposedQuestions pulls the question texts out of add_interview_question
// calls in a raw response. A malformed block counts as no proposals.
func proposedQuestions(response string) []string {
	var out []string
	for _, v := range toolkit.ExtractToolArguments(response, "add_interview_question", "question") {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// findSimilarQuestions screens each proposal against both question banks
// and keeps the proposals whose nearest existing questions clear the
// configured similarity threshold.
func (s *Scribe) findSimilarQuestions(ctx context.Context, proposed []string) []similarGroup {
	threshold := s.Config().QuestionSimilarityThreshold
	var groups []similarGroup
	for _, q := range proposed {
		results, err := question.SearchBoth(ctx, s.historical, s.proposed, q, similarTopK)
		if err != nil {
			log.Warn("similar-question search failed", zap.String("question", q), zap.Error(err))
			continue
		}
		var near []question.SearchResult
		for _, r := range results {
			if r.Similarity >= threshold {
				near = append(near, r)
			}
		}
		if len(near) > 0 {
			groups = append(groups, similarGroup{proposed: q, similar: near})
		}
	}
	return groups
}

func (s *Scribe) buildFollowupsPrompt(ctx context.Context, previousToolCall string, similar []similarGroup) (string, error) {
	filters := []types.EventFilter{
		{Tag: tagNotesMessage},
		{Sender: s.Name(), Tag: tagRecallResponse},
	}
	for i := 0; i < s.Config().MaxConsiderationIterations; i++ {
		filters = append(filters, types.EventFilter{Tag: fmt.Sprintf("followups_response_%d", i)})
	}
	eventStream := s.EventStream(filters, s.Config().MaxEventsLen)

	warning := ""
	warningFormat := ""
	if len(similar) > 0 && previousToolCall != "" {
		var err error
		warning, err = s.Prompts().Get(ctx, "scribe.similar_questions_warning", map[string]interface{}{
			"previous_tool_call": previousToolCall,
			"similar_questions":  formatSimilarGroups(similar),
		})
		if err != nil {
			return "", err
		}
		warningFormat, err = s.Prompts().Get(ctx, "scribe.warning_output_format", nil)
		if err != nil {
			return "", err
		}
	}

	return s.Prompts().Get(ctx, "scribe.followups", map[string]interface{}{
		"user_portrait":             s.agenda.PortraitStr(),
		"event_stream":              eventStream,
		"questions_and_notes":       s.agenda.QuestionsAndNotesStr(agenda.ShowAll),
		"similar_questions_warning": warning,
		"warning_output_format":     warningFormat,
		"tool_descriptions":         s.DescribeTools("recall", "add_interview_question"),
	})
}

// formatSimilarGroups renders similarity hits for the warning prompt.
func formatSimilarGroups(groups []similarGroup) string {
	var lines []string
	for _, g := range groups {
		lines = append(lines, "Proposed Question:")
		lines = append(lines, fmt.Sprintf("<proposed_question>%s</proposed_question>", g.proposed))
		lines = append(lines, "Similar Previously Asked Questions:")
		for _, r := range g.similar {
			lines = append(lines, fmt.Sprintf("<existing_question>%s</existing_question>", r.Question.Content))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
