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
	"github.com/teradata-labs/memoir/pkg/toolkit"
)

func (s *Scribe) registerTools() {
	s.RegisterTools(
		toolkit.NewTool("update_session_agenda",
			"A tool for updating the session agenda.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"question_id": toolkit.NewStringSchema(
					"The ID of the question to update. It can be a top-level question or a sub-question, "+
						"e.g. '1' or '1.1', '2.1.2', etc. It can also be empty, in which case the note "+
						"will be added as an additional note."),
				"note": toolkit.NewStringSchema(
					"A concise note to be added to the question, or as an additional note if the question_id is empty."),
			}, []string{"question_id", "note"}),
			s.updateSessionAgenda),

		toolkit.NewTool("add_interview_question",
			"Adds a new interview question to the session agenda.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"topic": toolkit.NewStringSchema(
					"The topic category for the question (e.g., 'Career', 'Education')"),
				"question": toolkit.NewStringSchema("The actual question text"),
				"question_id": toolkit.NewStringSchema(
					"The ID for the question (e.g., '1', '1.1', '2.3'). Max level is 4. "+
						"NEVER include a level 5 question id like '1.1.1.1.1'."),
				"parent_id": toolkit.NewStringSchema(
					"The ID of the parent question (e.g., '1', '2', etc.). No need to include if it is a top-level question."),
				"parent_text": toolkit.NewStringSchema(
					"The text of the parent question. No need to include if it is a top-level question."),
			}, []string{"topic", "question", "question_id"}),
			s.addInterviewQuestion),

		toolkit.NewTool("update_memory_bank",
			"A tool for storing new memories in the memory bank.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"temp_id": toolkit.NewStringSchema(
					"A unique temporary ID for this memory (e.g., MEM_TEMP_1), used to link questions to it."),
				"title": toolkit.NewStringSchema("A concise but descriptive title for the memory"),
				"text":  toolkit.NewStringSchema("A clear summary of the information"),
				"metadata": toolkit.NewObjectSchema(
					"Additional metadata about the memory: topics, people mentioned, emotions, locations, "+
						"dates, relationships, life events, achievements, goals, beliefs, values, preferences, "+
						"hobbies, education, work experience, skills, challenges, fears, dreams, etc. "+
						"Include just the most relevant ones.", nil, nil),
				"importance_score": toolkit.NewIntegerSchema(
					"The importance of the memory on a scale from 1 to 10. A score of 1 indicates everyday "+
						"routine activities like brushing teeth or making the bed. A score of 10 indicates major "+
						"life events like a relationship ending or getting accepted to college."),
			}, []string{"temp_id", "title", "text", "importance_score"}),
			s.updateMemoryBank),

		toolkit.NewTool("add_historical_question",
			"Records a question that has been asked and answered, linked to the memories distilled from the answer.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"content": toolkit.NewStringSchema("The exact question that was asked"),
				"temp_memory_ids": toolkit.NewArraySchema(
					"Temporary IDs of the memories created from the answer to this question",
					toolkit.NewStringSchema("")),
			}, []string{"content"}),
			s.addHistoricalQuestion),

		toolkit.NewTool("recall",
			"Search for relevant memories in all historical memories. Use this tool to check if we already "+
				"have relevant information about a topic before deciding to propose follow-up questions.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"reasoning": toolkit.NewStringSchema(
					"Explain:\n1. What information you're looking for\n2. How this search will help your "+
						"evaluation\n3. What decisions this search will inform"),
				"query": toolkit.NewStringSchema(
					"The search query to find relevant information. Make it broad enough to cover related topics."),
			}, []string{"reasoning", "query"}),
			s.recall),
	)
}

func (s *Scribe) updateSessionAgenda(ctx context.Context, args map[string]interface{}) (string, error) {
	questionID := toolkit.StringArg(args, "question_id")
	note := toolkit.StringArg(args, "note")

	if err := s.agenda.AddNote(questionID, note); err != nil {
		return "", fmt.Errorf("error updating session agenda: %w", err)
	}
	target := questionID
	if target == "" {
		target = "additional note"
	}
	return fmt.Sprintf("Successfully added the note for `%s`.", target), nil
}

func (s *Scribe) addInterviewQuestion(ctx context.Context, args map[string]interface{}) (string, error) {
	topic := toolkit.StringArg(args, "topic")
	questionText := strings.TrimSpace(toolkit.StringArg(args, "question"))
	questionID := toolkit.StringArg(args, "question_id")
	parentID := toolkit.StringArg(args, "parent_id")

	if s.proposed != nil {
		if _, err := s.proposed.AddQuestion(ctx, questionText, scribeName, nil); err != nil {
			log.Warn("failed to record proposed question", zap.Error(err))
		}
	}
	if _, err := s.agenda.AddInterviewQuestion(topic, questionText, questionID); err != nil {
		return "", fmt.Errorf("error adding interview question: %w", err)
	}

	s.evaluateQuestionDuplicate(ctx, questionText)

	if parentID != "" {
		return fmt.Sprintf("Successfully added question %s as follow-up to question %s", questionID, parentID), nil
	}
	return fmt.Sprintf("Successfully added question %s", questionID), nil
}

func (s *Scribe) updateMemoryBank(ctx context.Context, args map[string]interface{}) (string, error) {
	tempID := toolkit.StringArg(args, "temp_id")
	title := toolkit.StringArg(args, "title")
	text := toolkit.StringArg(args, "text")
	importance, _ := toolkit.IntArg(args, "importance_score")

	mem, err := s.memories.AddMemory(ctx, title, text, importance, s.recentUserResponse(), metadataArg(args))
	if err != nil {
		return "", fmt.Errorf("error storing memory: %w", err)
	}
	s.trackMemory(tempID, mem)
	log.Debug("stored session memory", zap.String("id", mem.ID), zap.String("title", title))

	return fmt.Sprintf("Successfully stored memory: %s", title), nil
}

func (s *Scribe) addHistoricalQuestion(ctx context.Context, args map[string]interface{}) (string, error) {
	content := toolkit.StringArg(args, "content")
	realIDs := s.realMemoryIDs(toolkit.StringListArg(args, "temp_memory_ids"))

	q, err := s.historical.AddQuestion(ctx, content, scribeName, realIDs)
	if err != nil {
		return "", fmt.Errorf("error adding historical question: %w", err)
	}
	for _, memID := range realIDs {
		s.memories.LinkQuestion(memID, q.ID)
	}
	return fmt.Sprintf("Successfully added question: %s", content), nil
}

func (s *Scribe) recall(ctx context.Context, args map[string]interface{}) (string, error) {
	query := toolkit.StringArg(args, "query")
	reasoning := toolkit.StringArg(args, "reasoning")

	results, err := s.memories.Search(ctx, query, recallTopK)
	if err != nil {
		return "", fmt.Errorf("error searching memories: %w", err)
	}

	var lines []string
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("<memory>%s</memory>", r.Memory.Text))
	}
	body := "No relevant memories found."
	if len(lines) > 0 {
		body = strings.Join(lines, "\n")
	}
	return fmt.Sprintf("<memory_search>\n<query>%s</query>\n<reasoning>%s</reasoning>\n<results>\n%s\n</results>\n</memory_search>",
		query, reasoning, body), nil
}

// metadataArg flattens the free-form metadata object into string values.
func metadataArg(args map[string]interface{}) map[string]string {
	raw, ok := args["metadata"].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// evaluateQuestionDuplicate scores a freshly added question against the
// historical bank and records the verdict for offline evaluation. Close
// matches above the similarity threshold are judged by the model. No-op
// without an evaluation logger.
func (s *Scribe) evaluateQuestionDuplicate(ctx context.Context, target string) {
	if s.evals == nil {
		return
	}

	results, err := s.historical.Search(ctx, target, recallTopK)
	if err != nil {
		log.Warn("duplicate evaluation search failed", zap.Error(err))
		return
	}

	var similar []string
	var scores []float64
	var candidates []string
	threshold := s.Config().QuestionSimilarityThreshold
	for _, r := range results {
		similar = append(similar, r.Question.Content)
		scores = append(scores, r.Similarity)
		if r.Similarity >= threshold {
			candidates = append(candidates, r.Question.Content)
		}
	}

	if len(candidates) == 0 {
		if err := s.evals.LogQuestionSimilarity(scribeName, target, similar, scores, false, "null",
			"No similar questions above the similarity threshold"); err != nil {
			log.Warn("failed to log question similarity", zap.Error(err))
		}
		return
	}

	prompt, err := s.Prompts().Get(ctx, "question.duplicate_check", map[string]interface{}{
		"target_question":   target,
		"similar_questions": strings.Join(candidates, "\n"),
	})
	if err != nil {
		log.Warn("duplicate evaluation prompt failed", zap.Error(err))
		return
	}
	response, err := s.CallEngine(ctx, prompt)
	if err != nil {
		log.Warn("duplicate evaluation call failed", zap.Error(err))
		return
	}

	isDuplicate := strings.EqualFold(toolkit.ExtractTagContent(response, "is_duplicate"), "true")
	matched := toolkit.ExtractTagContent(response, "matched_question")
	if matched == "" {
		matched = "null"
	}
	explanation := toolkit.ExtractTagContent(response, "explanation")

	if err := s.evals.LogQuestionSimilarity(scribeName, target, similar, scores, isDuplicate, matched, explanation); err != nil {
		log.Warn("failed to log question similarity", zap.Error(err))
	}
	if err := s.evals.LogPromptResponse("question_similarity", prompt, response); err != nil {
		log.Warn("failed to log duplicate evaluation", zap.Error(err))
	}
}
