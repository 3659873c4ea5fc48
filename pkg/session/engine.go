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
// Package session runs one interview session: it loads the user's banks,
// agenda, and biography, wires the interviewer, scribe, and biography team
// onto the message router, and drives the conversation until the user or
// the pacing rules end it. Teardown folds the session's memories into the
// biography, rewrites the agenda for next time, and persists everything.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/agenda"
	"github.com/teradata-labs/memoir/pkg/agent"
	"github.com/teradata-labs/memoir/pkg/agent/bioteam"
	"github.com/teradata-labs/memoir/pkg/agent/interviewer"
	"github.com/teradata-labs/memoir/pkg/agent/scribe"
	"github.com/teradata-labs/memoir/pkg/biography"
	"github.com/teradata-labs/memoir/pkg/config"
	"github.com/teradata-labs/memoir/pkg/evals"
	"github.com/teradata-labs/memoir/pkg/llm"
	"github.com/teradata-labs/memoir/pkg/memory"
	"github.com/teradata-labs/memoir/pkg/prompts"
	"github.com/teradata-labs/memoir/pkg/question"
	"github.com/teradata-labs/memoir/pkg/speech"
	"github.com/teradata-labs/memoir/pkg/types"
)

const (
	// pollInterval paces the monitor loop.
	pollInterval = 100 * time.Millisecond

	// teardownWaitMax bounds how long teardown waits for in-flight
	// biography and agenda updates before persisting what it has.
	teardownWaitMax = 5 * time.Minute
)

// Fixed history texts for the reaction message types.
const (
	skipContent = "Skip the question"
	likeContent = "Like the question"
)

// Options configure one interview session run.
type Options struct {
	// UserID names the interviewee. Required.
	UserID string

	// MaxTurns ends the session after this many user messages. Zero
	// means no cap.
	MaxTurns int

	// SimulatedUser replaces terminal input with an LLM-driven persona
	// answering from a profile under ProfilesDir.
	SimulatedUser bool

	// ProfilesDir holds persona profiles (<user_id>.md) for simulated
	// users. Defaults to "profiles".
	ProfilesDir string

	// VoiceInput captures spoken answers when a recognizer is available.
	VoiceInput bool

	// VoiceOutput speaks interviewer responses when a synthesizer is
	// available.
	VoiceOutput bool

	// Participant overrides the user side of the conversation. Embedding
	// callers supply their own; when nil the engine builds a terminal or
	// simulated user per the flags above.
	Participant types.Subscriber
}

// Engine owns one interview session end to end. It implements
// interviewer.Session, so the interviewer's tools post responses and end
// the session through it.
type Engine struct {
	cfg       *config.Config
	provider  llm.Provider
	userID    string
	sessionID int

	router      *Router
	interviewer *interviewer.Interviewer
	scribe      *scribe.Scribe
	orch        *bioteam.Orchestrator
	user        types.Subscriber

	memories   *memory.Bank
	historical *question.Bank
	proposed   *question.Bank
	bio        *biography.Biography
	agenda     *agenda.Agenda

	evalLog     *evals.Logger
	store       *Store
	storeKey    string
	prompts     *prompts.Registry
	chatLog     *zap.Logger
	execLog     *zap.Logger
	userLogsDir string

	maxTurns  int
	timeout   time.Duration
	threshold int
	interval  int

	running  atomic.Bool
	timedOut atomic.Bool
	autoBusy atomic.Bool

	// runCtx is the context Run was started with. Delivery workers and
	// the interviewer's LLM calls inherit it; biography updates do not,
	// so an interrupt cannot lose half-applied memories.
	runCtx context.Context

	mu                  sync.Mutex
	lastUserMessage     *types.Message
	lastMessageTime     time.Time
	userMessageCount    int
	conversationSummary string
	accumulatedAuto     time.Duration
	completed           bool
}

// NewEngine loads the user's state and wires the session. The previous
// agenda fixes the numbering: this session's id is the last one plus one,
// and the loaded agenda is carried forward under the new id.
func NewEngine(ctx context.Context, cfg *config.Config, provider llm.Provider, embedder llm.Embedder, opts Options) (*Engine, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	userLogs := cfg.UserLogsDir(opts.UserID)
	userData := cfg.UserDataDir(opts.UserID)

	ag, err := agenda.LoadLast(opts.UserID, userLogs)
	if err != nil {
		return nil, fmt.Errorf("failed to load session agenda: %w", err)
	}
	sessionID := ag.SessionID + 1
	ag.SessionID = sessionID

	memories, err := memory.LoadBank(ctx, userLogs, embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory bank: %w", err)
	}
	memories.SetSession(sessionID)

	historical, err := question.LoadBank(ctx, userLogs, embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to load question bank: %w", err)
	}
	historical.SetSession(sessionID)
	proposed := question.NewBank(embedder)
	proposed.SetSession(sessionID)

	bio, err := biography.Load(opts.UserID, userData, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load biography: %w", err)
	}

	store, err := OpenStore(ctx, filepath.Join(userLogs, "sessions.db"))
	if err != nil {
		return nil, err
	}
	storeKey := fmt.Sprintf("%s_%d", opts.UserID, sessionID)
	if err := store.CreateSession(ctx, storeKey, opts.UserID, sessionID); err != nil {
		store.Close()
		return nil, err
	}

	sessionLogs := filepath.Join(userLogs, "execution_logs", fmt.Sprintf("session_%d", sessionID))
	registry := prompts.NewRegistry(cfg.PromptsDir)

	e := &Engine{
		cfg:         cfg,
		provider:    provider,
		userID:      opts.UserID,
		sessionID:   sessionID,
		router:      NewRouter(),
		memories:    memories,
		historical:  historical,
		proposed:    proposed,
		bio:         bio,
		agenda:      ag,
		evalLog:     evals.NewLogger(userLogs, sessionID),
		store:       store,
		storeKey:    storeKey,
		prompts:     registry,
		chatLog:     fileLogger(sessionLogs, "chat_history"),
		execLog:     fileLogger(sessionLogs, "execution_log"),
		userLogsDir: userLogs,
		maxTurns:    opts.MaxTurns,
		timeout:     time.Duration(cfg.SessionTimeoutMinutes) * time.Minute,
		threshold:   cfg.MemoryThresholdForUpdate,
		interval:    cfg.CheckInterval(),
		runCtx:      context.Background(),
	}
	e.mu.Lock()
	e.lastMessageTime = time.Now()
	e.mu.Unlock()

	deps := func(name string) agent.Deps {
		return agent.Deps{
			Config:   cfg,
			Provider: provider,
			Prompts:  registry,
			EventLog: fileLogger(sessionLogs, name),
		}
	}

	var recognizer speech.Recognizer
	if opts.VoiceInput {
		recognizer = speech.NewRecognizer(speech.Config{APIKey: cfg.LLM.OpenAIAPIKey})
	}
	var synthesizer speech.Synthesizer
	if opts.VoiceOutput {
		synthesizer = speech.NewSynthesizer(speech.Config{APIKey: cfg.LLM.OpenAIAPIKey})
	}
	engines := speech.NewEngines(recognizer, synthesizer)

	e.scribe = scribe.New(deps("scribe"), ag, memories, historical, proposed, e.evalLog)
	e.orch = bioteam.New(deps("bioteam"), bio, ag, memories, e.scribe)
	e.interviewer = interviewer.New(deps("interviewer"), e, memories, ag, engines,
		filepath.Join(userData, "audio_outputs"))

	switch {
	case opts.Participant != nil:
		e.user = opts.Participant
	case opts.SimulatedUser:
		profiles := opts.ProfilesDir
		if profiles == "" {
			profiles = "profiles"
		}
		sim, err := NewSimulatedUser(deps("user_agent"), e, opts.UserID, profiles)
		if err != nil {
			store.Close()
			return nil, err
		}
		e.user = sim
	default:
		e.user = NewTerminalUser(e, engines, filepath.Join(userData, "audio_inputs"), opts.VoiceInput)
	}

	// Fan-out map: the scribe hears both sides, the user hears the
	// interviewer, the interviewer hears the user.
	e.router.Subscribe(types.RoleInterviewer, e.scribe, e.user)
	e.router.Subscribe(types.RoleUser, e.interviewer, e.scribe)

	e.logExec("session initialized",
		zap.String("user_id", opts.UserID),
		zap.Int("session_id", sessionID),
		zap.Bool("baseline", cfg.UseBaselinePrompt))
	return e, nil
}

// fileLogger builds a per-session file logger, or nil when the file cannot
// be created. Logging degrades, the session does not.
func fileLogger(dir, name string) *zap.Logger {
	l, err := log.NewFileLogger(filepath.Join(dir, name+".log"))
	if err != nil {
		log.Warn("failed to create session log file",
			zap.String("name", name), zap.Error(err))
		return nil
	}
	return l
}

// SessionID returns this session's number.
func (e *Engine) SessionID() int { return e.sessionID }

// Running reports whether the session still accepts messages.
func (e *Engine) Running() bool { return e.running.Load() }

// TimedOut reports whether the session ended from user inactivity.
func (e *Engine) TimedOut() bool { return e.timedOut.Load() }

// Completed reports whether teardown finished.
func (e *Engine) Completed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completed
}

// Run drives the session: boot the interviewer, then poll until the
// session ends, the user goes quiet, or ctx is cancelled, then tear down.
// The returned error reflects teardown persistence; a timeout alone is a
// clean run.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	e.running.Store(true)
	e.router.Start(ctx)
	e.logExec("session started")

	var bootErr error
	if err := e.interviewer.OnMessage(ctx, nil); err != nil {
		bootErr = fmt.Errorf("interviewer failed to open the session: %w", err)
		log.Error("interviewer boot failed", zap.Error(err))
		e.EndSession()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

monitor:
	for e.running.Load() || e.scribe.ProcessingInProgress() {
		select {
		case <-ctx.Done():
			e.logExec("shutdown signal received, ending session")
			e.EndSession()
			break monitor
		case now := <-ticker.C:
			if e.inactiveTooLong(now) {
				e.logExec("session timed out",
					zap.Int("timeout_minutes", e.cfg.SessionTimeoutMinutes))
				e.timedOut.Store(true)
				e.EndSession()
				break monitor
			}
		}
	}

	if err := e.teardown(); err != nil {
		return err
	}
	return bootErr
}

// inactiveTooLong reports whether the user has been silent past the
// session timeout.
func (e *Engine) inactiveTooLong(now time.Time) bool {
	e.mu.Lock()
	last := e.lastMessageTime
	e.mu.Unlock()
	return now.Sub(last) > e.timeout
}

// AddChatMessage implements interviewer.Session. It normalizes reaction
// messages, records feedback, appends conversational messages to the
// history, and fans them out. Messages posted after the session ended are
// dropped.
func (e *Engine) AddChatMessage(role, content string, msgType types.MessageType) {
	if !e.running.Load() {
		return
	}
	switch msgType {
	case types.MessageTypeSkip:
		content = skipContent
	case types.MessageTypeLike:
		content = likeContent
	}
	msg := &types.Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}

	switch role {
	case types.RoleUser:
		e.mu.Lock()
		e.lastMessageTime = msg.Timestamp
		e.mu.Unlock()
	case types.RoleInterviewer:
		e.recordResponseLatency(msg)
	}

	if msgType != types.MessageTypeConversation {
		e.recordFeedback(msg)
	}
	if msgType != types.MessageTypeSkip && msgType != types.MessageTypeConversation {
		return
	}
	if !e.router.Post(msg) {
		return
	}
	if e.chatLog != nil {
		e.chatLog.Info(fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	e.archiveMessage(msg)
	if role == types.RoleUser {
		e.afterUserMessage(msg)
	}
}

// EndSession implements interviewer.Session: stop accepting messages.
// Run's monitor loop notices and tears the session down.
func (e *Engine) EndSession() {
	if e.running.CompareAndSwap(true, false) {
		e.router.Close()
		e.logExec("session end requested")
	}
}

// recordResponseLatency logs how long the interviewer took to answer the
// pending user message, then clears it.
func (e *Engine) recordResponseLatency(response *types.Message) {
	e.mu.Lock()
	pending := e.lastUserMessage
	e.lastUserMessage = nil
	e.mu.Unlock()
	if pending == nil {
		return
	}
	if err := e.evalLog.LogResponseLatency(pending.ID, pending.Timestamp, response.Timestamp, len(pending.Content)); err != nil {
		log.Warn("failed to log response latency", zap.Error(err))
	}
}

// recordFeedback pairs a skip or like with the interviewer message it
// reacts to, in the feedback CSV and the session archive.
func (e *Engine) recordFeedback(msg *types.Message) {
	prev := e.router.LastMessage()
	if err := evals.SaveFeedback(e.userLogsDir, e.sessionID, prev, msg); err != nil {
		log.Warn("failed to save feedback", zap.Error(err))
	}
	if err := e.store.SaveFeedback(e.runCtx, e.storeKey, prev, msg); err != nil {
		log.Warn("failed to archive feedback", zap.Error(err))
	}
}

func (e *Engine) archiveMessage(msg *types.Message) {
	if err := e.store.SaveMessage(e.runCtx, e.storeKey, msg); err != nil {
		log.Warn("failed to archive message",
			zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// afterUserMessage updates the pacing state once a user message has fanned
// out: latency tracking, the auto-update cadence, and the turn cap.
func (e *Engine) afterUserMessage(msg *types.Message) {
	e.mu.Lock()
	e.lastUserMessage = msg
	e.userMessageCount++
	count := e.userMessageCount
	e.mu.Unlock()

	if count%e.interval == 0 && !e.autoBusy.Load() {
		go e.maybeUpdateBiography()
	}
	if e.maxTurns > 0 && count >= e.maxTurns {
		e.logExec("maximum turns reached, ending session",
			zap.Int("max_turns", e.maxTurns))
		e.EndSession()
	}
}

// maybeUpdateBiography triggers an incremental biography update when
// enough unprocessed memories have accumulated. At most one runs at a
// time; the update keeps going even if the session ends underneath it, so
// it uses a context independent of Run's.
func (e *Engine) maybeUpdateBiography() {
	if e.autoBusy.Load() || !e.running.Load() || e.orch.BiographyUpdateInProgress() {
		return
	}
	if len(e.scribe.GetSessionMemories(false, false, false)) < e.threshold {
		return
	}
	if !e.autoBusy.CompareAndSwap(false, true) {
		return
	}
	defer e.autoBusy.Store(false)

	ctx := context.Background()
	e.refreshConversationSummary(ctx)
	batch := e.scribe.GetSessionMemories(false, true, false)
	e.logExec("auto biography update triggered", zap.Int("memories", len(batch)))

	start := time.Now()
	if err := e.orch.UpdateBiographyWithMemories(ctx, batch, e.summarySnapshot()); err != nil {
		log.Warn("auto biography update failed", zap.Error(err))
		return
	}
	d := time.Since(start)

	e.mu.Lock()
	e.accumulatedAuto += d
	acc := e.accumulatedAuto
	e.mu.Unlock()
	if err := e.evalLog.LogBiographyUpdateTime(evals.UpdateTypeAuto, d, acc); err != nil {
		log.Warn("failed to log biography update time", zap.Error(err))
	}
	e.logExec("auto biography update completed", zap.Duration("duration", d))
}

// refreshConversationSummary summarizes the recent conversation window so
// biography updates see context beyond the raw memory batch.
func (e *Engine) refreshConversationSummary(ctx context.Context) {
	rendered := renderConversation(e.router.History(), e.cfg.MaxEventsLen)
	if rendered == "" {
		return
	}
	prompt, err := e.prompts.Get(ctx, "session.summarize",
		map[string]interface{}{"conversation": rendered})
	if err != nil {
		log.Warn("failed to render conversation summary prompt", zap.Error(err))
		return
	}
	resp, err := llm.ChatWithRetry(ctx, e.provider, llm.UserMessage(prompt), llm.DefaultRetryConfig())
	if err != nil {
		log.Warn("conversation summary failed", zap.Error(err))
		return
	}
	e.mu.Lock()
	e.conversationSummary = resp.Content
	e.mu.Unlock()
}

func (e *Engine) summarySnapshot() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversationSummary
}

// renderConversation formats the last window of conversational messages
// for the summarizer, one tagged block per message.
func renderConversation(history []*types.Message, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	var blocks []string
	for _, m := range history {
		if m.Type != types.MessageTypeConversation {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("<%s>%s</%s>", m.Role, m.Content, m.Role))
	}
	return strings.Join(blocks, "\n\n")
}

// teardown folds the session's remaining memories into the biography,
// rewrites the agenda, persists the banks, and records the session
// statistics. Persistence failures propagate; everything else degrades to
// warnings so the banks always get their save attempt.
func (e *Engine) teardown() error {
	e.running.Store(false)
	e.router.Close()
	e.logExec("final biography update starting, draining scribe")

	// Interrupts do not cancel the final update; losing it would drop
	// every memory the last batch produced.
	ctx := context.Background()
	start := time.Now()
	finalErr := e.orch.FinalUpdateBiographyAndAgenda(ctx, e.summarySnapshot(), nil)
	e.mu.Lock()
	acc := e.accumulatedAuto
	e.mu.Unlock()
	if err := e.evalLog.LogBiographyUpdateTime(evals.UpdateTypeFinal, time.Since(start), acc); err != nil {
		log.Warn("failed to log biography update time", zap.Error(err))
	}
	if finalErr != nil {
		log.Error("final biography update failed", zap.Error(finalErr))
	}

	e.waitForUpdates()

	if err := e.memories.Save(); err != nil {
		log.Error("failed to save memory bank", zap.Error(err))
		if finalErr == nil {
			finalErr = err
		}
	} else {
		e.logExec("memory bank saved")
	}
	if err := e.historical.Save(); err != nil {
		log.Error("failed to save question bank", zap.Error(err))
		if finalErr == nil {
			finalErr = err
		}
	} else {
		e.logExec("question bank saved")
	}

	e.logConversationStats()

	if err := e.store.EndSession(context.Background(), e.storeKey, finalErr == nil, e.timedOut.Load()); err != nil {
		log.Warn("failed to close session archive row", zap.Error(err))
	}
	if err := e.store.Close(); err != nil {
		log.Warn("failed to close session archive", zap.Error(err))
	}
	e.router.Shutdown(2 * time.Second)

	e.mu.Lock()
	e.completed = true
	e.mu.Unlock()
	e.logExec("session completed")
	e.syncLogs()
	return finalErr
}

// waitForUpdates blocks, bounded, until no biography or agenda update is
// in flight.
func (e *Engine) waitForUpdates() {
	deadline := time.Now().Add(teardownWaitMax)
	for e.orch.BiographyUpdateInProgress() || e.orch.AgendaUpdateInProgress() {
		if time.Now().After(deadline) {
			log.Warn("timed out waiting for biography update to finish")
			return
		}
		time.Sleep(pollInterval)
	}
}

// logConversationStats summarizes the finished conversation for the
// statistics CSV: turn and token counts split by speaker, wall-clock
// span, and the memory count after the final update.
func (e *Engine) logConversationStats() {
	history := e.router.History()
	stats := evals.ConversationStats{
		TotalTurns:    len(history),
		TotalMemories: e.memories.Count(),
	}
	for _, m := range history {
		n := evals.CountTokens(m.Content)
		stats.TotalTokens += n
		switch m.Role {
		case types.RoleUser:
			stats.UserTokens += n
		case types.RoleInterviewer:
			stats.SystemTokens += n
		}
	}
	if len(history) > 1 {
		stats.Duration = history[len(history)-1].Timestamp.Sub(history[0].Timestamp)
	}
	if err := e.evalLog.LogConversationStats(stats); err != nil {
		log.Warn("failed to log conversation statistics", zap.Error(err))
	}
}

func (e *Engine) logExec(msg string, fields ...zap.Field) {
	if e.execLog != nil {
		e.execLog.Info(msg, fields...)
	}
	log.Debug(msg, fields...)
}

func (e *Engine) syncLogs() {
	for _, l := range []*zap.Logger{e.chatLog, e.execLog} {
		if l != nil {
			_ = l.Sync()
		}
	}
}
