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
package session

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/memoir/pkg/agenda"
	"github.com/teradata-labs/memoir/pkg/config"
	"github.com/teradata-labs/memoir/pkg/evals"
	"github.com/teradata-labs/memoir/pkg/llm"
	"github.com/teradata-labs/memoir/pkg/types"
)

// Prompt markers that identify which agent issued an engine call. The
// agents run concurrently, so scripted responses are routed by prompt
// content instead of call order.
const (
	interviewerMarker     = "friendly and engaging interviewer"
	summarizeMarker       = "expert conversation summarizer"
	plannerMarker         = "planning and organizing life stories"
	agendaRewriteMarker   = "session agenda manager"
	questionRebuildMarker = "interview questions manager"
	scribeAgendaMarker    = "update the session agenda with relevant information"
	scribeFollowupsMarker = "knows when and how to propose follow-up questions"
	scribeMemoryMarker    = "store it in the memory bank"
)

type scriptedRoute struct {
	marker    string
	responses []string
	served    int
}

// scriptedProvider routes engine calls by prompt content. A route's last
// response repeats, so loops that re-prompt never run a script dry.
type scriptedProvider struct {
	mu      sync.Mutex
	routes  []*scriptedRoute
	prompts []string
}

func (p *scriptedProvider) addRoute(marker string, responses ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = append(p.routes, &scriptedRoute{marker: marker, responses: responses})
}

func (p *scriptedProvider) Name() string  { return "stub" }
func (p *scriptedProvider) Model() string { return "stub-1" }

func (p *scriptedProvider) Chat(_ context.Context, messages []llm.Message) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prompt := messages[len(messages)-1].Content
	p.prompts = append(p.prompts, prompt)
	for _, r := range p.routes {
		if !strings.Contains(prompt, r.marker) {
			continue
		}
		idx := r.served
		if idx >= len(r.responses) {
			idx = len(r.responses) - 1
		}
		r.served++
		return &llm.Response{Content: r.responses[idx]}, nil
	}
	return nil, fmt.Errorf("no scripted response matches prompt: %.80s", prompt)
}

func (p *scriptedProvider) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.prompts))
	copy(out, p.prompts)
	return out
}

type stubEmbedder struct{}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// participant records what the user side of the conversation hears and
// optionally reacts to it.
type participant struct {
	reply func(msg *types.Message)

	mu   sync.Mutex
	seen []*types.Message
}

func (p *participant) Title() string { return "User" }

func (p *participant) OnMessage(_ context.Context, msg *types.Message) error {
	if msg == nil {
		return nil
	}
	p.mu.Lock()
	p.seen = append(p.seen, msg)
	reply := p.reply
	p.mu.Unlock()
	if reply != nil {
		reply(msg)
	}
	return nil
}

func (p *participant) heard() []*types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*types.Message, len(p.seen))
	copy(out, p.seen)
	return out
}

func testEngineConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:                    t.TempDir(),
		LogsDir:                    t.TempDir(),
		MaxEventsLen:               30,
		MaxConsiderationIterations: 3,
		SessionTimeoutMinutes:      10,
		MemoryThresholdForUpdate:   10,
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, provider llm.Provider, opts Options) *Engine {
	t.Helper()
	if opts.UserID == "" {
		opts.UserID = "margaret"
	}
	e, err := NewEngine(context.Background(), cfg, provider, &stubEmbedder{}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.store.Close() })
	return e
}

// openSession puts the engine in the accepting state Run establishes,
// without the monitor loop.
func openSession(t *testing.T, e *Engine) {
	t.Helper()
	e.router.Start(context.Background())
	e.running.Store(true)
	t.Cleanup(func() { e.router.Shutdown(time.Second) })
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestFirstSessionNumberedOne(t *testing.T) {
	cfg := testEngineConfig(t)
	e := newTestEngine(t, cfg, &scriptedProvider{}, Options{Participant: &participant{}})

	assert.Equal(t, 1, e.SessionID())
	assert.Equal(t, 1, e.agenda.SessionID)
	assert.Equal(t, "margaret_1", e.storeKey)
}

func TestSessionNumberContinuesFromLastAgenda(t *testing.T) {
	cfg := testEngineConfig(t)
	prev := agenda.Initial("margaret", cfg.UserLogsDir("margaret"))
	prev.SessionID = 3
	require.NoError(t, prev.Save())

	e := newTestEngine(t, cfg, &scriptedProvider{}, Options{Participant: &participant{}})

	assert.Equal(t, 4, e.SessionID())
	assert.Equal(t, 4, e.agenda.SessionID)

	// The archive opened a row for the new session.
	var number int
	require.NoError(t, e.store.db.QueryRowContext(context.Background(),
		`SELECT session_number FROM sessions WHERE id = ?`, "margaret_4").Scan(&number))
	assert.Equal(t, 4, number)
}

func TestReactionMessagesNormalized(t *testing.T) {
	cfg := testEngineConfig(t)
	provider := &scriptedProvider{}
	provider.addRoute(interviewerMarker, "Waiting for the user.")
	e := newTestEngine(t, cfg, provider, Options{Participant: &participant{}})
	openSession(t, e)

	e.AddChatMessage(types.RoleUser, "next question please", types.MessageTypeSkip)
	e.AddChatMessage(types.RoleUser, "", types.MessageTypeLike)

	// The skip joins the conversation under its fixed text; the like is
	// feedback only.
	history := e.router.History()
	require.Len(t, history, 1)
	assert.Equal(t, skipContent, history[0].Content)
	assert.Equal(t, types.MessageTypeSkip, history[0].Type)

	rows := readCSV(t, filepath.Join(cfg.UserLogsDir("margaret"), "feedback", "session_1.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, "", rows[1][1])
	assert.Equal(t, skipContent, rows[1][2])
	assert.Equal(t, skipContent, rows[2][1])
	assert.Equal(t, likeContent, rows[2][2])

	// The archive mirrors the split: one chat message, two feedback rows.
	msgs, err := e.store.Messages(context.Background(), e.storeKey)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var feedbackCount int
	require.NoError(t, e.store.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM feedback WHERE session_id = ?`, e.storeKey).Scan(&feedbackCount))
	assert.Equal(t, 2, feedbackCount)
}

func TestMessagesAfterEndAreDropped(t *testing.T) {
	cfg := testEngineConfig(t)
	e := newTestEngine(t, cfg, &scriptedProvider{}, Options{Participant: &participant{}})
	openSession(t, e)

	e.EndSession()
	assert.False(t, e.Running())

	e.AddChatMessage(types.RoleUser, "anyone there?", types.MessageTypeConversation)

	assert.Empty(t, e.router.History())
	msgs, err := e.store.Messages(context.Background(), e.storeKey)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestResponseLatencyRecorded(t *testing.T) {
	cfg := testEngineConfig(t)
	provider := &scriptedProvider{}
	provider.addRoute(interviewerMarker, "Considering.")
	e := newTestEngine(t, cfg, provider, Options{Participant: &participant{}})
	openSession(t, e)

	e.AddChatMessage(types.RoleUser, "I grew up in Maine.", types.MessageTypeConversation)
	e.AddChatMessage(types.RoleInterviewer, "What was that like?", types.MessageTypeConversation)

	path := filepath.Join(cfg.UserLogsDir("margaret"), "evaluations", "response_latency.csv")
	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	history := e.router.History()
	assert.Equal(t, history[0].ID, rows[1][0])
	assert.Equal(t, strconv.Itoa(len("I grew up in Maine.")), rows[1][4])

	// A second interviewer turn has no pending user message to measure.
	e.AddChatMessage(types.RoleInterviewer, "Anything else?", types.MessageTypeConversation)
	assert.Len(t, readCSV(t, path), 2)
}

func TestAutoUpdateRunsAtThreshold(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.MemoryThresholdForUpdate = 2
	provider := &scriptedProvider{}
	provider.addRoute(interviewerMarker, "Listening.")
	provider.addRoute(summarizeMarker, "They spoke about her childhood in Maine.")
	e := newTestEngine(t, cfg, provider, Options{Participant: &participant{}})
	openSession(t, e)

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		_, err := e.scribe.ExecuteTool(ctx, "update_memory_bank", map[string]interface{}{
			"temp_id":          fmt.Sprintf("MEM_TEMP_%d", i),
			"title":            fmt.Sprintf("Fact %d", i),
			"text":             "Something Margaret shared.",
			"importance_score": 5,
		})
		require.NoError(t, err)
	}
	mems := e.scribe.GetSessionMemories(false, false, false)
	require.Len(t, mems, 2)

	provider.addRoute(plannerMarker,
		"<tool_calls>\n<add_plan>\n<action_type>create</action_type>\n<section_path>1 Early Life</section_path>\n"+
			"<relevant_memories>\n- "+mems[0].ID+"\n</relevant_memories>\n"+
			"<update_plan>Write the section from the cited memory.</update_plan>\n</add_plan>\n</tool_calls>")
	provider.addRoute("<section_path>1 Early Life</section_path>",
		"<tool_calls>\n<add_section>\n<path>1 Early Life</path>\n<content>Margaret grew up in Maine ["+mems[0].ID+"].</content>\n</add_section>\n</tool_calls>")

	e.AddChatMessage(types.RoleUser, "I was born in Maine.", types.MessageTypeConversation)

	waitUntil(t, 5*time.Second, func() bool {
		sec, err := e.bio.GetSection("1 Early Life", "", false)
		return err == nil && sec != nil && !e.autoBusy.Load()
	})

	// The drained batch is gone and the update was timed under "auto".
	assert.Empty(t, e.scribe.GetSessionMemories(false, false, false))
	assert.Equal(t, "They spoke about her childhood in Maine.", e.summarySnapshot())

	rows := readCSV(t, filepath.Join(cfg.UserLogsDir("margaret"), "evaluations", "biography_update_times.csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, evals.UpdateTypeAuto, rows[1][2])

	e.mu.Lock()
	acc := e.accumulatedAuto
	e.mu.Unlock()
	assert.Greater(t, acc, time.Duration(0))

	// The summarizer saw the conversation window in tagged blocks.
	var summaryPrompt string
	for _, p := range provider.recorded() {
		if strings.Contains(p, summarizeMarker) {
			summaryPrompt = p
		}
	}
	require.NotEmpty(t, summaryPrompt)
	assert.Contains(t, summaryPrompt, "<User>I was born in Maine.</User>")
}

func TestNoUpdateBelowThreshold(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.MemoryThresholdForUpdate = 5
	provider := &scriptedProvider{}
	provider.addRoute(interviewerMarker, "Listening.")
	e := newTestEngine(t, cfg, provider, Options{Participant: &participant{}})
	openSession(t, e)

	_, err := e.scribe.ExecuteTool(context.Background(), "update_memory_bank", map[string]interface{}{
		"temp_id":          "MEM_TEMP_1",
		"title":            "Fact",
		"text":             "Something Margaret shared.",
		"importance_score": 5,
	})
	require.NoError(t, err)

	e.AddChatMessage(types.RoleUser, "I was born in Maine.", types.MessageTypeConversation)
	time.Sleep(100 * time.Millisecond)

	// One memory is under the threshold: nothing summarized, nothing timed.
	assert.Equal(t, "", e.summarySnapshot())
	_, err = os.Stat(filepath.Join(cfg.UserLogsDir("margaret"), "evaluations", "biography_update_times.csv"))
	assert.True(t, os.IsNotExist(err))
	assert.Len(t, e.scribe.GetSessionMemories(false, false, false), 1)
}

func TestMaxTurnsEndsSession(t *testing.T) {
	cfg := testEngineConfig(t)
	provider := &scriptedProvider{}
	provider.addRoute(interviewerMarker, "Listening.")
	e := newTestEngine(t, cfg, provider, Options{MaxTurns: 2, Participant: &participant{}})
	openSession(t, e)

	e.AddChatMessage(types.RoleUser, "first answer", types.MessageTypeConversation)
	assert.True(t, e.Running())

	e.AddChatMessage(types.RoleUser, "second answer", types.MessageTypeConversation)
	assert.False(t, e.Running())

	require.Len(t, e.router.History(), 2)
}

func TestRenderConversation(t *testing.T) {
	history := []*types.Message{
		{Role: types.RoleInterviewer, Type: types.MessageTypeConversation, Content: "Where were you born?"},
		{Role: types.RoleUser, Type: types.MessageTypeSkip, Content: skipContent},
		{Role: types.RoleUser, Type: types.MessageTypeConversation, Content: "In Maine."},
	}

	got := renderConversation(history, 30)
	assert.Equal(t, "<Interviewer>Where were you born?</Interviewer>\n\n<User>In Maine.</User>", got)

	// The window slices before filtering, so only the last entry remains.
	assert.Equal(t, "<User>In Maine.</User>", renderConversation(history, 1))

	assert.Empty(t, renderConversation(nil, 10))
}

func TestRunEndsOnTimeout(t *testing.T) {
	cfg := testEngineConfig(t)
	provider := &scriptedProvider{}
	provider.addRoute(interviewerMarker,
		"<tool_calls>\n<respond_to_user>\n<response>Hello Margaret, shall we begin?</response>\n</respond_to_user>\n</tool_calls>")
	provider.addRoute(agendaRewriteMarker,
		"<tool_calls>\n<update_last_meeting_summary>\n<summary>A brief greeting; the user stepped away.</summary>\n</update_last_meeting_summary>\n</tool_calls>")
	provider.addRoute(questionRebuildMarker,
		"<tool_calls>\n<add_interview_question>\n<topic>Personal</topic>\n<question>Where did you grow up?</question>\n<question_id>1</question_id>\n</add_interview_question>\n</tool_calls>")

	p := &participant{}
	e := newTestEngine(t, cfg, provider, Options{Participant: p})
	e.timeout = 200 * time.Millisecond

	require.NoError(t, e.Run(context.Background()))

	assert.True(t, e.TimedOut())
	assert.True(t, e.Completed())
	assert.False(t, e.Running())

	heard := p.heard()
	require.Len(t, heard, 1)
	assert.Equal(t, "Hello Margaret, shall we begin?", heard[0].Content)

	// The archive has the greeting and the timed-out disposition.
	reopened, err := OpenStore(context.Background(), filepath.Join(cfg.UserLogsDir("margaret"), "sessions.db"))
	require.NoError(t, err)
	defer reopened.Close()
	msgs, err := reopened.Messages(context.Background(), "margaret_1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var completed, timedOut int
	require.NoError(t, reopened.db.QueryRowContext(context.Background(),
		`SELECT completed, timed_out FROM sessions WHERE id = ?`, "margaret_1").Scan(&completed, &timedOut))
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, timedOut)

	// Teardown rewrote the agenda for the next session.
	assert.Equal(t, "A brief greeting; the user stepped away.", e.agenda.LastMeetingSummaryStr())
	q := e.agenda.Question("1")
	require.NotNil(t, q)
	assert.Equal(t, "Where did you grow up?", q.Question)

	// One statistics row and one "final" update-time row.
	rows := readCSV(t, filepath.Join(cfg.UserLogsDir("margaret"), "evaluations", "conversation_statistics.csv"))
	require.Len(t, rows, 2)
	rows = readCSV(t, filepath.Join(cfg.UserLogsDir("margaret"), "evaluations", "biography_update_times.csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, evals.UpdateTypeFinal, rows[1][2])
}

func TestRunEndsWhenInterviewerClosesConversation(t *testing.T) {
	cfg := testEngineConfig(t)
	provider := &scriptedProvider{}
	provider.addRoute(interviewerMarker,
		"<tool_calls>\n<respond_to_user>\n<response>What should I call you?</response>\n</respond_to_user>\n</tool_calls>",
		"<tool_calls>\n<end_conversation>\n<goodbye>Thank you for today. Rest well!</goodbye>\n</end_conversation>\n</tool_calls>")
	provider.addRoute(scribeAgendaMarker, "Nothing to note.")
	provider.addRoute(scribeFollowupsMarker, "No follow-ups needed.")
	provider.addRoute(scribeMemoryMarker, "Nothing worth saving.")
	provider.addRoute(agendaRewriteMarker,
		"<tool_calls>\n<update_last_meeting_summary>\n<summary>Margaret had to leave early.</summary>\n</update_last_meeting_summary>\n</tool_calls>")
	provider.addRoute(questionRebuildMarker,
		"<tool_calls>\n<add_interview_question>\n<topic>Personal</topic>\n<question>Where did you grow up?</question>\n<question_id>1</question_id>\n</add_interview_question>\n</tool_calls>")

	p := &participant{}
	var e *Engine
	var once sync.Once
	p.reply = func(msg *types.Message) {
		once.Do(func() {
			e.AddChatMessage(types.RoleUser, "Call me Margaret. I must go now.", types.MessageTypeConversation)
		})
	}
	e = newTestEngine(t, cfg, provider, Options{Participant: p})

	require.NoError(t, e.Run(context.Background()))

	assert.False(t, e.TimedOut())
	assert.True(t, e.Completed())

	heard := p.heard()
	require.Len(t, heard, 2)
	assert.Contains(t, heard[1].Content, "Rest well")

	history := e.router.History()
	require.Len(t, history, 3)
	assert.Equal(t, types.RoleInterviewer, history[0].Role)
	assert.Equal(t, types.RoleUser, history[1].Role)
	assert.Equal(t, types.RoleInterviewer, history[2].Role)

	// Latency measured from the user turn to the goodbye.
	rows := readCSV(t, filepath.Join(cfg.UserLogsDir("margaret"), "evaluations", "response_latency.csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, history[1].ID, rows[1][0])

	reopened, err := OpenStore(context.Background(), filepath.Join(cfg.UserLogsDir("margaret"), "sessions.db"))
	require.NoError(t, err)
	defer reopened.Close()
	msgs, err := reopened.Messages(context.Background(), "margaret_1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	var completed, timedOut int
	require.NoError(t, reopened.db.QueryRowContext(context.Background(),
		`SELECT completed, timed_out FROM sessions WHERE id = ?`, "margaret_1").Scan(&completed, &timedOut))
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, timedOut)
}
