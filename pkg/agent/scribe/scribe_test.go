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
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/memoir/pkg/agenda"
	"github.com/teradata-labs/memoir/pkg/agent"
	"github.com/teradata-labs/memoir/pkg/config"
	"github.com/teradata-labs/memoir/pkg/evals"
	"github.com/teradata-labs/memoir/pkg/llm"
	"github.com/teradata-labs/memoir/pkg/memory"
	"github.com/teradata-labs/memoir/pkg/prompts"
	"github.com/teradata-labs/memoir/pkg/question"
	"github.com/teradata-labs/memoir/pkg/types"
)

// Prompt markers that identify which pipeline issued an engine call. The
// notes and memory pipelines run concurrently, so scripted responses are
// routed by prompt content instead of call order.
const (
	agendaMarker    = "update the session agenda with relevant information"
	followupsMarker = "knows when and how to propose follow-up questions"
	memoryMarker    = "store it in the memory bank"
	duplicateMarker = "expert at evaluating question similarity"
)

type route struct {
	marker    string
	responses []string
	served    int
	prompts   []string
}

type routedProvider struct {
	mu     sync.Mutex
	routes []*route
}

func (p *routedProvider) addRoute(marker string, responses ...string) *route {
	r := &route{marker: marker, responses: responses}
	p.routes = append(p.routes, r)
	return r
}

func (p *routedProvider) Name() string  { return "stub" }
func (p *routedProvider) Model() string { return "stub-1" }

func (p *routedProvider) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prompt := messages[len(messages)-1].Content
	for _, r := range p.routes {
		if !strings.Contains(prompt, r.marker) {
			continue
		}
		r.prompts = append(r.prompts, prompt)
		if r.served >= len(r.responses) {
			return nil, fmt.Errorf("route %q has no scripted response left", r.marker)
		}
		resp := r.responses[r.served]
		r.served++
		return &llm.Response{Content: resp}, nil
	}
	return nil, fmt.Errorf("no route matches prompt: %.80s", prompt)
}

type stubEmbedder struct{ vectors map[string][]float32 }

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		MaxEventsLen:                30,
		MaxConsiderationIterations:  3,
		QuestionSimilarityThreshold: 0.85,
	}
}

func newTestScribe(t *testing.T, cfg *config.Config, provider llm.Provider, embedder llm.Embedder, evalLog *evals.Logger) *Scribe {
	t.Helper()
	if embedder == nil {
		embedder = &stubEmbedder{}
	}
	return New(agent.Deps{
		Config:   cfg,
		Provider: provider,
		Prompts:  prompts.NewRegistry(""),
	},
		agenda.Initial("margaret", t.TempDir()),
		memory.NewBank(embedder),
		question.NewBank(embedder),
		question.NewBank(embedder),
		evalLog)
}

func waitForIdle(t *testing.T, s *Scribe) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.ProcessingInProgress() {
		if time.Now().After(deadline) {
			t.Fatal("scribe did not finish processing in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func postPair(t *testing.T, s *Scribe, questionText, answer string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.OnMessage(ctx, &types.Message{
		Role: types.RoleInterviewer, Content: questionText, Timestamp: time.Now(),
	}))
	require.NoError(t, s.OnMessage(ctx, &types.Message{
		Role: types.RoleUser, Content: answer, Timestamp: time.Now(),
	}))
}

func TestQAPairRunsBothPipelines(t *testing.T) {
	provider := &routedProvider{}
	provider.addRoute(agendaMarker,
		"<tool_calls>\n<update_session_agenda>\n<question_id>1</question_id>\n<note>User's name is Margaret.</note>\n</update_session_agenda>\n</tool_calls>")
	provider.addRoute(followupsMarker,
		"No follow-ups needed for a simple name exchange.")
	provider.addRoute(memoryMarker,
		"<tool_calls>\n"+
			"<update_memory_bank>\n<temp_id>MEM_TEMP_1</temp_id>\n<title>Name</title>\n"+
			"<text>The user's name is Margaret.</text>\n<metadata>{\"people\": \"Margaret\"}</metadata>\n"+
			"<importance_score>8</importance_score>\n</update_memory_bank>\n"+
			"<add_historical_question>\n<content>What is your name?</content>\n"+
			"<temp_memory_ids>['MEM_TEMP_1']</temp_memory_ids>\n</add_historical_question>\n"+
			"</tool_calls>")

	s := newTestScribe(t, testConfig(), provider, nil, nil)
	postPair(t, s, "What is your name?", "My name is Margaret.")
	waitForIdle(t, s)

	// Agenda got the note.
	q := s.agenda.Question("1")
	require.NotNil(t, q)
	require.Len(t, q.Notes, 1)
	assert.Equal(t, "User's name is Margaret.", q.Notes[0])

	// Memory stored with the user's utterance as source.
	mems := s.GetSessionMemories(false, false, false)
	require.Len(t, mems, 1)
	assert.Equal(t, "Name", mems[0].Title)
	assert.Equal(t, "My name is Margaret.", mems[0].SourceInterviewResponse)
	assert.Equal(t, "Margaret", mems[0].Metadata["people"])
	assert.Equal(t, 8, mems[0].ImportanceScore)

	// Historical question linked both ways through the temp id.
	require.Equal(t, 1, s.historical.Count())
	hq := s.historical.All()[0]
	assert.Equal(t, []string{mems[0].ID}, hq.MemoryIDs)
	assert.Contains(t, mems[0].QuestionIDs, hq.ID)

	assert.False(t, s.ProcessingInProgress())
}

func TestUserMessageWithoutQuestionIgnored(t *testing.T) {
	provider := &routedProvider{}
	s := newTestScribe(t, testConfig(), provider, nil, nil)

	require.NoError(t, s.OnMessage(context.Background(), &types.Message{
		Role: types.RoleUser, Content: "Hello?", Timestamp: time.Now(),
	}))

	assert.False(t, s.ProcessingInProgress())
	assert.Empty(t, s.Events())
}

func TestBaselineSkipsAgendaPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.UseBaselinePrompt = true

	provider := &routedProvider{}
	provider.addRoute(memoryMarker, "Nothing worth saving from this exchange.")

	s := newTestScribe(t, cfg, provider, nil, nil)
	postPair(t, s, "How are you?", "Fine, thanks.")
	waitForIdle(t, s)

	assert.Empty(t, s.Events(types.EventFilter{Tag: "agenda_prompt"}))
	assert.Len(t, s.Events(types.EventFilter{Tag: tagNotesMessage}), 2)
	assert.Len(t, s.Events(types.EventFilter{Tag: "memory_response"}), 1)
}

func TestSimilarQuestionWarningLoop(t *testing.T) {
	proposal := "<tool_calls>\n<add_interview_question>\n<topic>Personal</topic>\n" +
		"<question>What is your name?</question>\n<question_id>3.1</question_id>\n" +
		"<parent_id>3</parent_id>\n<parent_text>Where did you grow up?</parent_text>\n" +
		"</add_interview_question>\n</tool_calls>"

	provider := &routedProvider{}
	provider.addRoute(agendaMarker, "Nothing to note.")
	followups := provider.addRoute(followupsMarker,
		proposal,
		"The user's name matters despite the overlap.\n<proceed>true</proceed>\n"+proposal)
	provider.addRoute(memoryMarker, "Nothing worth saving.")

	s := newTestScribe(t, testConfig(), provider, nil, nil)
	_, err := s.historical.AddQuestion(context.Background(), "What is your name?", "Interviewer", nil)
	require.NoError(t, err)

	postPair(t, s, "Where did you grow up?", "In a small town in Maine.")
	waitForIdle(t, s)

	// Second round carried the warning with the near-duplicate.
	require.Equal(t, 2, followups.served)
	warned := followups.prompts[1]
	assert.Contains(t, warned, "<proposed_question>What is your name?</proposed_question>")
	assert.Contains(t, warned, "<existing_question>What is your name?</existing_question>")
	assert.Contains(t, warned, "<add_interview_question>")

	// Proceeding executed the calls.
	require.NotNil(t, s.agenda.Question("3.1"))
	require.Len(t, s.Events(types.EventFilter{Tag: "feedback_loop_1"}), 1)
}

func TestDistinctFollowupAddsWithoutWarning(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"What did your parents do for work?": {0, 1, 0},
	}}

	provider := &routedProvider{}
	provider.addRoute(agendaMarker, "Nothing to note.")
	followups := provider.addRoute(followupsMarker,
		"<tool_calls>\n<add_interview_question>\n<topic>Personal</topic>\n"+
			"<question>What did your parents do for work?</question>\n<question_id>3.1</question_id>\n"+
			"</add_interview_question>\n</tool_calls>")
	provider.addRoute(memoryMarker, "Nothing worth saving.")

	s := newTestScribe(t, testConfig(), provider, embedder, nil)
	_, err := s.historical.AddQuestion(context.Background(), "What is your name?", "Interviewer", nil)
	require.NoError(t, err)

	postPair(t, s, "Where did you grow up?", "In a small town in Maine.")
	waitForIdle(t, s)

	assert.Equal(t, 1, followups.served)
	require.NotNil(t, s.agenda.Question("3.1"))
	assert.Equal(t, 1, s.proposed.Count())
}

func TestRecallFeedsNextConsideration(t *testing.T) {
	provider := &routedProvider{}
	provider.addRoute(agendaMarker, "Nothing to note.")
	followups := provider.addRoute(followupsMarker,
		"<tool_calls>\n<recall>\n<reasoning>Checking coverage of the move to Maine.</reasoning>\n"+
			"<query>childhood town</query>\n</recall>\n</tool_calls>",
		"Coverage is thorough already; no follow-ups needed.")
	provider.addRoute(memoryMarker, "Nothing worth saving.")

	s := newTestScribe(t, testConfig(), provider, nil, nil)
	_, err := s.memories.AddMemory(context.Background(),
		"Hometown", "Grew up in a small town in Maine.", 7, "", nil)
	require.NoError(t, err)

	postPair(t, s, "Where did you grow up?", "In a small town in Maine.")
	waitForIdle(t, s)

	require.Equal(t, 2, followups.served)
	assert.Contains(t, followups.prompts[1], "Grew up in a small town in Maine.")
	require.Len(t, s.Events(types.EventFilter{Sender: scribeName, Tag: tagRecallResponse}), 1)
}

func TestConsiderationIterationsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsiderationIterations = 2

	recallCall := "<tool_calls>\n<recall>\n<reasoning>more context</reasoning>\n<query>town</query>\n</recall>\n</tool_calls>"
	provider := &routedProvider{}
	provider.addRoute(agendaMarker, "Nothing to note.")
	provider.addRoute(followupsMarker, recallCall, recallCall)
	provider.addRoute(memoryMarker, "Nothing worth saving.")

	s := newTestScribe(t, cfg, provider, nil, nil)
	postPair(t, s, "Where did you grow up?", "In Maine.")
	waitForIdle(t, s)

	errs := s.Events(types.EventFilter{Sender: types.RoleSystem, Tag: "error"})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[len(errs)-1].Content, "maximum number of consideration iterations (2)")
}

func TestGetSessionMemoriesClearsUnprocessed(t *testing.T) {
	provider := &routedProvider{}
	s := newTestScribe(t, testConfig(), provider, nil, nil)

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		result, err := s.ExecuteTool(ctx, "update_memory_bank", map[string]interface{}{
			"temp_id":          fmt.Sprintf("MEM_TEMP_%d", i),
			"title":            fmt.Sprintf("Fact %d", i),
			"text":             "Something the user said.",
			"importance_score": 5,
		})
		require.NoError(t, err)
		assert.Contains(t, result, "Successfully stored memory")
	}

	batch := s.GetSessionMemories(false, true, false)
	require.Len(t, batch, 2)

	assert.Empty(t, s.GetSessionMemories(false, false, false))
	assert.Len(t, s.GetSessionMemories(true, false, false), 2)
}

func TestRecallToolRendersSearchBlock(t *testing.T) {
	provider := &routedProvider{}
	s := newTestScribe(t, testConfig(), provider, nil, nil)

	ctx := context.Background()
	_, err := s.memories.AddMemory(ctx, "Hometown", "Grew up in Maine.", 7, "", nil)
	require.NoError(t, err)

	result, err := s.ExecuteTool(ctx, "recall", map[string]interface{}{
		"reasoning": "coverage check",
		"query":     "hometown",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "<memory_search>")
	assert.Contains(t, result, "<query>hometown</query>")
	assert.Contains(t, result, "<memory>Grew up in Maine.</memory>")

	empty := newTestScribe(t, testConfig(), provider, nil, nil)
	result, err = empty.ExecuteTool(ctx, "recall", map[string]interface{}{
		"reasoning": "coverage check",
		"query":     "hometown",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "No relevant memories found.")
}

func TestDuplicateEvaluationLogged(t *testing.T) {
	logsDir := t.TempDir()

	provider := &routedProvider{}
	provider.addRoute(duplicateMarker,
		"<evaluation>\n<is_duplicate>true</is_duplicate>\n"+
			"<matched_question>What is your name?</matched_question>\n"+
			"<explanation>Both ask for the user's name.</explanation>\n</evaluation>")

	s := newTestScribe(t, testConfig(), provider, nil, evals.NewLogger(logsDir, 1))
	ctx := context.Background()
	_, err := s.historical.AddQuestion(ctx, "What is your name?", "Interviewer", nil)
	require.NoError(t, err)

	_, err = s.ExecuteTool(ctx, "add_interview_question", map[string]interface{}{
		"topic":       "Personal",
		"question":    "What is your name?",
		"question_id": "3.1",
	})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(logsDir, "evaluations", "question_similarity.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Proposer", rows[0][1])
	assert.Equal(t, scribeName, rows[1][1])
	assert.Equal(t, "What is your name?", rows[1][3])
	assert.Equal(t, "true", rows[1][6])
	assert.Equal(t, "Both ask for the user's name.", rows[1][8])
}
