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

// Package scribe implements the session scribe: the agent that listens to
// every interviewer/user exchange and keeps the session agenda, the memory
// bank and the question banks current while the conversation keeps moving.
//
// Each question/answer pair is processed off the message path by two
// pipelines running concurrently: the notes pipeline updates agenda notes
// and proposes follow-up questions, the memory pipeline distills the
// exchange into memories and historical questions. Each pipeline is
// serialized by its own mutex so pairs are processed in arrival order
// without the two pipelines blocking each other.
package scribe

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/agenda"
	"github.com/teradata-labs/memoir/pkg/agent"
	"github.com/teradata-labs/memoir/pkg/evals"
	"github.com/teradata-labs/memoir/pkg/memory"
	"github.com/teradata-labs/memoir/pkg/question"
	"github.com/teradata-labs/memoir/pkg/types"
)

const scribeName = "SessionScribe"

// Event stream tags. Each pipeline records the Q/A pair under its own tag
// so prompt construction replays only that pipeline's view.
const (
	tagNotesMessage   = "notes_message"
	tagMemoryMessage  = "memory_message"
	tagRecallResponse = "recall_response"
)

const (
	// recallTopK is how many memories the recall tool surfaces.
	recallTopK = 5

	// similarTopK caps both the per-bank search and the merged candidate
	// list when screening proposed questions for near-duplicates.
	similarTopK = 3

	// processingWaitMax bounds how long GetSessionMemories waits for
	// in-flight pipelines before returning what it has.
	processingWaitMax = 5 * time.Minute
)

// Scribe takes notes and manages the user's memory bank.
type Scribe struct {
	*agent.Agent

	agenda     *agenda.Agenda
	memories   *memory.Bank
	historical *question.Bank
	proposed   *question.Bank
	evals      *evals.Logger // nil disables evaluation logging

	// Last interviewer message, held until the user's reply pairs with it.
	// Only touched from OnMessage, which the router serializes.
	lastInterviewer *types.Message

	notesMu  sync.Mutex
	memoryMu sync.Mutex

	tasksMu    sync.Mutex
	pending    int
	processing bool

	// Session memory state. Written by the update_memory_bank tool under
	// memoryMu, read by GetSessionMemories from the engine goroutine.
	memStateMu  sync.Mutex
	newMemories []*memory.Memory
	allMemories []*memory.Memory
	idMap       map[string]string
}

// New builds the scribe and registers its tools. evalLog may be nil.
func New(deps agent.Deps, ag *agenda.Agenda, memories *memory.Bank, historical, proposed *question.Bank, evalLog *evals.Logger) *Scribe {
	s := &Scribe{
		Agent:      agent.New(scribeName, "Agent that takes notes and manages the user's memory bank", deps),
		agenda:     ag,
		memories:   memories,
		historical: historical,
		proposed:   proposed,
		evals:      evalLog,
		idMap:      make(map[string]string),
	}
	s.registerTools()
	return s
}

// Title implements types.Subscriber.
func (s *Scribe) Title() string { return scribeName }

// OnMessage pairs each user reply with the interviewer question that
// preceded it and processes the pair in the background. Delivery order per
// subscriber is guaranteed by the router, so no locking is needed here.
func (s *Scribe) OnMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil {
		return nil
	}
	switch msg.Role {
	case types.RoleInterviewer:
		s.lastInterviewer = msg
	case types.RoleUser:
		if s.lastInterviewer == nil {
			return nil
		}
		interviewerMsg := s.lastInterviewer
		s.lastInterviewer = nil
		s.beginTask()
		go s.processPair(ctx, interviewerMsg, msg)
	}
	return nil
}

// processPair runs the notes and memory pipelines concurrently, each under
// its own lock, and releases the pending-task slot when both finish.
func (s *Scribe) processPair(ctx context.Context, interviewerMsg, userMsg *types.Message) {
	defer s.endTask()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runNotesPipeline(ctx, interviewerMsg, userMsg)
	}()
	go func() {
		defer wg.Done()
		s.runMemoryPipeline(ctx, interviewerMsg, userMsg)
	}()
	wg.Wait()
}

func (s *Scribe) runNotesPipeline(ctx context.Context, interviewerMsg, userMsg *types.Message) {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()

	s.AddEvent(interviewerMsg.Role, tagNotesMessage, interviewerMsg.Content)
	s.AddEvent(userMsg.Role, tagNotesMessage, userMsg.Content)

	// Baseline interviews keep the seed agenda untouched.
	if s.Config().UseBaselinePrompt {
		return
	}

	if err := s.updateAgendaNotes(ctx); err != nil {
		log.Warn("scribe agenda update failed", zap.Error(err))
	}
	if err := s.proposeFollowups(ctx); err != nil {
		log.Warn("scribe follow-up proposal failed", zap.Error(err))
	}
}

func (s *Scribe) runMemoryPipeline(ctx context.Context, interviewerMsg, userMsg *types.Message) {
	s.memoryMu.Lock()
	defer s.memoryMu.Unlock()

	s.AddEvent(interviewerMsg.Role, tagMemoryMessage, interviewerMsg.Content)
	s.AddEvent(userMsg.Role, tagMemoryMessage, userMsg.Content)

	prompt, err := s.buildMemoryPrompt(ctx)
	if err != nil {
		log.Warn("scribe memory prompt failed", zap.Error(err))
		return
	}
	s.AddEvent(s.Name(), "memory_prompt", prompt)

	response, err := s.CallEngine(ctx, prompt)
	if err != nil {
		log.Warn("scribe memory update failed", zap.Error(err))
		return
	}
	s.AddEvent(s.Name(), "memory_response", response)

	if _, err := s.HandleToolCalls(ctx, response); err != nil {
		log.Warn("scribe memory tool calls failed", zap.Error(err))
	}
}

// updateAgendaNotes attaches what the user just said to the agenda
// question it answers, or files it as an additional note.
func (s *Scribe) updateAgendaNotes(ctx context.Context) error {
	prompt, err := s.buildAgendaPrompt(ctx)
	if err != nil {
		return err
	}
	s.AddEvent(s.Name(), "agenda_prompt", prompt)

	response, err := s.CallEngine(ctx, prompt)
	if err != nil {
		return err
	}
	s.AddEvent(s.Name(), "agenda_response", response)

	_, err = s.HandleToolCalls(ctx, response)
	return err
}

func (s *Scribe) buildAgendaPrompt(ctx context.Context) (string, error) {
	previous, currentQA := s.splitCurrentQA(tagNotesMessage)
	return s.Prompts().Get(ctx, "scribe.agenda", map[string]interface{}{
		"user_portrait":       s.agenda.PortraitStr(),
		"previous_events":     previous,
		"current_qa":          currentQA,
		"questions_and_notes": s.agenda.QuestionsAndNotesStr(agenda.HideAnsweredQA),
		"tool_descriptions":   s.DescribeTools("update_session_agenda"),
	})
}

func (s *Scribe) buildMemoryPrompt(ctx context.Context) (string, error) {
	previous, currentQA := s.splitCurrentQA(tagMemoryMessage)
	return s.Prompts().Get(ctx, "scribe.memory", map[string]interface{}{
		"user_portrait":     s.agenda.PortraitStr(),
		"previous_events":   previous,
		"current_qa":        currentQA,
		"tool_descriptions": s.DescribeTools("update_memory_bank", "add_historical_question"),
	})
}

// splitCurrentQA renders the tagged events as blocks and splits off the
// last exchange: the two most recent blocks are the Q/A pair under
// processing, everything before them is context, windowed to the
// configured event limit.
func (s *Scribe) splitCurrentQA(tag string) (previous, currentQA string) {
	blocks := s.EventBlocks([]types.EventFilter{{Tag: tag}}, 0)

	var current []string
	if len(blocks) >= 2 {
		current = blocks[len(blocks)-2:]
		blocks = blocks[:len(blocks)-2]
	}
	if max := s.Config().MaxEventsLen; max > 0 && len(blocks) > max {
		blocks = blocks[len(blocks)-max:]
	}
	return strings.Join(blocks, "\n"), strings.Join(current, "\n")
}

// ProcessingInProgress reports whether any Q/A pair is still being
// processed. The engine polls this before ending the session.
func (s *Scribe) ProcessingInProgress() bool {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	return s.processing
}

func (s *Scribe) beginTask() {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	s.pending++
	s.processing = true
}

func (s *Scribe) endTask() {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	s.pending--
	if s.pending <= 0 {
		s.pending = 0
		s.processing = false
	}
}

// GetSessionMemories returns memories the scribe stored this session.
//
// includeProcessed selects the full session list instead of only the
// memories not yet consumed by a biography update. clearProcessed empties
// the unprocessed list after reading, marking the batch handed off. wait
// blocks (bounded) until in-flight pipelines finish so the returned batch
// includes the exchange currently being distilled.
func (s *Scribe) GetSessionMemories(includeProcessed, clearProcessed, wait bool) []*memory.Memory {
	if wait {
		deadline := time.Now().Add(processingWaitMax)
		for s.ProcessingInProgress() {
			if time.Now().After(deadline) {
				log.Warn("timed out waiting for scribe pipelines before collecting memories")
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	s.memStateMu.Lock()
	defer s.memStateMu.Unlock()

	var out []*memory.Memory
	if includeProcessed {
		out = append(out, s.allMemories...)
	} else {
		out = append(out, s.newMemories...)
	}
	if clearProcessed {
		log.Debug("clearing unprocessed session memories", zap.Int("count", len(s.newMemories)))
		s.newMemories = nil
	}
	return out
}

func (s *Scribe) trackMemory(tempID string, mem *memory.Memory) {
	s.memStateMu.Lock()
	defer s.memStateMu.Unlock()
	s.newMemories = append(s.newMemories, mem)
	s.allMemories = append(s.allMemories, mem)
	if tempID != "" {
		s.idMap[tempID] = mem.ID
	}
}

// realMemoryIDs resolves the temporary ids a model response used into the
// ids the bank assigned. Unknown temp ids are dropped.
func (s *Scribe) realMemoryIDs(tempIDs []string) []string {
	s.memStateMu.Lock()
	defer s.memStateMu.Unlock()
	var real []string
	for _, t := range tempIDs {
		if id, ok := s.idMap[t]; ok {
			real = append(real, id)
		}
	}
	return real
}

// recentUserResponse returns the latest user utterance seen by the memory
// pipeline. It becomes the source text attached to new memories.
func (s *Scribe) recentUserResponse() string {
	events := s.Events(types.EventFilter{Sender: types.RoleUser, Tag: tagMemoryMessage})
	if len(events) == 0 {
		return "No user response available"
	}
	return events[len(events)-1].Content
}
