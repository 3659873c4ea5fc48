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
	"fmt"
	"strings"

	"github.com/teradata-labs/memoir/pkg/agenda"
	"github.com/teradata-labs/memoir/pkg/agent"
	"github.com/teradata-labs/memoir/pkg/memory"
	"github.com/teradata-labs/memoir/pkg/toolkit"
	"github.com/teradata-labs/memoir/pkg/types"
)

const summaryWriterName = "SessionSummaryWriter"

// recentRecallWindow bounds how many recall results the questions
// rebuild prompt carries.
const recentRecallWindow = 10

// SummaryWriter prepares the agenda for the next session: last-meeting
// summary, portrait updates, and a rebuilt interview question list.
type SummaryWriter struct {
	*agent.Agent

	agenda   *agenda.Agenda
	memories *memory.Bank
}

// NewSummaryWriter builds the summary writer and registers its tools.
func NewSummaryWriter(deps agent.Deps, ag *agenda.Agenda, memories *memory.Bank) *SummaryWriter {
	s := &SummaryWriter{
		Agent:    agent.New(summaryWriterName, "Prepares end-of-session summaries and manages interview questions", deps),
		agenda:   ag,
		memories: memories,
	}
	s.registerTools()
	return s
}

func (s *SummaryWriter) registerTools() {
	s.RegisterTools(
		toolkit.NewTool("update_last_meeting_summary",
			"Updates the last meeting summary in the session agenda.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"summary": toolkit.NewStringSchema("The new summary text for the last meeting."),
			}, []string{"summary"}),
			s.updateLastMeetingSummary),
		toolkit.NewTool("update_user_portrait",
			"Updates or creates a field in the user portrait. Use is_new_field=true for creating new fields, false for updating existing ones. Provide clear reasoning for why the update/creation is important.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"field_name":   toolkit.NewStringSchema("The name of the field to update or create."),
				"value":        toolkit.NewStringSchema("The new value for the field."),
				"is_new_field": toolkit.NewBooleanSchema("Whether this is a new field (true) or an update of an existing field (false)."),
				"reasoning":    toolkit.NewStringSchema("Explanation for why this update/creation is important."),
			}, []string{"field_name", "value", "is_new_field", "reasoning"}),
			s.updateUserPortrait),
		toolkit.NewTool("add_interview_question",
			"Adds a new interview question to the session agenda.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"topic":       toolkit.NewStringSchema("The topic category for the question, e.g. 'Career', 'Education'."),
				"question":    toolkit.NewStringSchema("The actual question text."),
				"question_id": toolkit.NewStringSchema("The id for the question, e.g. '1', '1.1', '2.3'."),
			}, []string{"topic", "question", "question_id"}),
			s.addInterviewQuestion),
		toolkit.NewTool("delete_interview_question",
			"Deletes an interview question from the session agenda. A question with sub-questions keeps them and only loses its own text and notes. Provide clear reasoning for why the question should be deleted.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"question_id": toolkit.NewStringSchema("The id of the question to delete."),
				"reasoning":   toolkit.NewStringSchema("Explain why this question should be deleted."),
			}, []string{"question_id", "reasoning"}),
			s.deleteInterviewQuestion),
		toolkit.NewTool("recall",
			"A tool for recalling memories. Use it to check whether relevant information already exists before proposing or deleting questions.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"reasoning": toolkit.NewStringSchema("What information you are looking for and what decision the search informs."),
				"query":     toolkit.NewStringSchema("The search query. Make it broad enough to cover related topics."),
			}, []string{"reasoning", "query"}),
			s.recall),
	)
}

// UpdateAgenda rewrites the agenda for the next session: summary and
// portrait first, then the interview question list rebuilt from the old
// questions, collected follow-ups, and the operator's selected topics.
func (s *SummaryWriter) UpdateAgenda(ctx context.Context, newMemories []*memory.Memory, followUps []FollowUp, selectedTopics []string) error {
	if err := s.writeSummary(ctx, newMemories); err != nil {
		return err
	}
	return s.rebuildQuestions(ctx, followUps, selectedTopics)
}

func (s *SummaryWriter) writeSummary(ctx context.Context, newMemories []*memory.Memory) error {
	texts := make([]string, 0, len(newMemories))
	for _, m := range newMemories {
		texts = append(texts, m.Text)
	}
	prompt, err := s.Prompts().Get(ctx, "coordinator.session_summary", map[string]interface{}{
		"new_memories":      bulletLines(texts),
		"user_portrait":     s.agenda.PortraitStr(),
		"tool_descriptions": s.DescribeTools("update_last_meeting_summary", "update_user_portrait"),
	})
	if err != nil {
		return err
	}
	s.AddEvent(summaryWriterName, "summary_prompt", prompt)

	response, err := s.CallEngine(ctx, prompt)
	if err != nil {
		return err
	}
	s.AddEvent(summaryWriterName, "summary_response", response)

	if _, err := s.HandleToolCalls(ctx, response); err != nil {
		s.AddEvent(summaryWriterName, "error", fmt.Sprintf("Error handling summary response: %v", err))
		return err
	}
	return nil
}

// rebuildQuestions clears the question list and asks the engine to add
// back only what is still worth asking. Recall rounds feed their results
// into the next prompt; the first action round ends the loop.
func (s *SummaryWriter) rebuildQuestions(ctx context.Context, followUps []FollowUp, selectedTopics []string) error {
	previous := s.agenda.QuestionsAndNotesStr(agenda.ShowAll)
	if err := s.agenda.ClearQuestions(); err != nil {
		return err
	}

	maxIterations := s.Config().MaxConsiderationIterations
	for iteration := 0; iteration < maxIterations; iteration++ {
		prompt, err := s.Prompts().Get(ctx, "coordinator.interview_questions", map[string]interface{}{
			"selected_topics":           strings.Join(selectedTopics, "\n"),
			"questions_and_notes":       previous,
			"follow_up_questions":       followUpsXML(followUps),
			"event_stream":              s.recentRecalls(),
			"similar_questions_warning": "",
			"warning_output_format":     "",
			"tool_descriptions":         s.DescribeTools("add_interview_question", "recall"),
		})
		if err != nil {
			return err
		}
		s.AddEvent(summaryWriterName, "questions_prompt", prompt)

		response, err := s.CallEngine(ctx, prompt)
		if err != nil {
			return err
		}
		s.AddEvent(summaryWriterName, "questions_response", response)

		isRecall := strings.Contains(response, "<recall>") &&
			!strings.Contains(response, "<add_interview_question>")

		result, err := s.HandleToolCalls(ctx, response)
		if err != nil {
			s.AddEvent(summaryWriterName, "error",
				fmt.Sprintf("Error rebuilding interview questions: %v\nResponse: %s", err, response))
			return err
		}

		if isRecall {
			s.AddEvent(summaryWriterName, tagRecallResponse, result)
			continue
		}
		s.AddEvent(summaryWriterName, "question_actions", "Successfully rebuilt interview questions list")
		return nil
	}

	s.AddEvent(summaryWriterName, "warning",
		fmt.Sprintf("Reached maximum iterations (%d) without taking actions", maxIterations))
	return nil
}

// ExtractSessionTopics names the main topics the session's memories
// cover, one per line. The engine answers "None" when nothing stands
// out; that sentinel is dropped.
func (s *SummaryWriter) ExtractSessionTopics(ctx context.Context, sessionMemories []*memory.Memory) ([]string, error) {
	prompt, err := s.Prompts().Get(ctx, "coordinator.topics", map[string]interface{}{
		"memories_text": memoriesXML(sessionMemories, true),
	})
	if err != nil {
		return nil, err
	}
	s.AddEvent(summaryWriterName, "topic_extraction_prompt", prompt)

	response, err := s.CallEngine(ctx, prompt)
	if err != nil {
		return nil, err
	}
	s.AddEvent(summaryWriterName, "topic_extraction_response", response)

	var topics []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "None") {
			continue
		}
		topics = append(topics, line)
	}
	return topics, nil
}

func (s *SummaryWriter) recentRecalls() string {
	return s.EventStream([]types.EventFilter{
		{Sender: summaryWriterName, Tag: tagRecallResponse},
	}, recentRecallWindow)
}

func (s *SummaryWriter) updateLastMeetingSummary(ctx context.Context, args map[string]interface{}) (string, error) {
	if err := s.agenda.SetLastMeetingSummary(toolkit.StringArg(args, "summary")); err != nil {
		return "", err
	}
	return "Successfully updated last meeting summary", nil
}

// updateUserPortrait reports create-vs-update from what the agenda
// actually did, not from the engine's is_new_field claim.
func (s *SummaryWriter) updateUserPortrait(ctx context.Context, args map[string]interface{}) (string, error) {
	field := toolkit.StringArg(args, "field_name")
	value := strings.TrimSpace(strings.Trim(strings.TrimSpace(toolkit.StringArg(args, "value")), "[]"))

	created, err := s.agenda.SetPortraitField(field, value)
	if err != nil {
		return "", err
	}
	action := "Updated field"
	if created {
		action = "Created new field"
	}
	return fmt.Sprintf("%s: %s\nReasoning: %s", action, agenda.FieldTitle(field), toolkit.StringArg(args, "reasoning")), nil
}

func (s *SummaryWriter) addInterviewQuestion(ctx context.Context, args map[string]interface{}) (string, error) {
	topic := toolkit.StringArg(args, "topic")
	questionID := toolkit.StringArg(args, "question_id")
	question := strings.TrimSpace(toolkit.StringArg(args, "question"))

	if _, err := s.agenda.AddInterviewQuestion(topic, question, questionID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully added question %s under topic %s", questionID, topic), nil
}

func (s *SummaryWriter) deleteInterviewQuestion(ctx context.Context, args map[string]interface{}) (string, error) {
	questionID := toolkit.StringArg(args, "question_id")
	if err := s.agenda.DeleteInterviewQuestion(questionID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully deleted question %s. Reason: %s", questionID, toolkit.StringArg(args, "reasoning")), nil
}

func (s *SummaryWriter) recall(ctx context.Context, args map[string]interface{}) (string, error) {
	return searchMemories(ctx, s.memories, args)
}
