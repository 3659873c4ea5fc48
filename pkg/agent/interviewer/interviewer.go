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
// Package interviewer holds the conversation-facing agent. It reacts to
// every user message with a bounded consideration loop: think, optionally
// recall memories, then either respond or close the session. At most one
// turn runs at a time; the router delivers user messages in order.
package interviewer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/agenda"
	"github.com/teradata-labs/memoir/pkg/agent"
	"github.com/teradata-labs/memoir/pkg/memory"
	"github.com/teradata-labs/memoir/pkg/speech"
	"github.com/teradata-labs/memoir/pkg/toolkit"
	"github.com/teradata-labs/memoir/pkg/types"
)

const recallTopK = 5

// Session is the engine surface the interviewer's tools talk back to.
type Session interface {
	// AddChatMessage appends to the chat history and fans out.
	AddChatMessage(role, content string, msgType types.MessageType)

	// EndSession stops accepting messages; teardown follows.
	EndSession()
}

// Interviewer drives the conversation with the user.
type Interviewer struct {
	*agent.Agent

	session  Session
	memories *memory.Bank
	agenda   *agenda.Agenda
	speech   *speech.Engines
	audioDir string

	// turnToRespond is cleared by the respond_to_user and
	// end_conversation tools to stop the consideration loop. Only the
	// delivery goroutine touches it.
	turnToRespond bool
}

// New creates the interviewer. audioDir receives synthesized responses
// when voice output is enabled.
func New(deps agent.Deps, session Session, memories *memory.Bank, ag *agenda.Agenda, engines *speech.Engines, audioDir string) *Interviewer {
	iv := &Interviewer{
		Agent:    agent.New(types.RoleInterviewer, "interviews the user about their life", deps),
		session:  session,
		memories: memories,
		agenda:   ag,
		speech:   engines,
		audioDir: audioDir,
	}
	iv.registerTools()
	return iv
}

// Title implements types.Subscriber.
func (iv *Interviewer) Title() string { return types.RoleInterviewer }

// OnMessage handles one routed user message. A nil message is the boot
// signal: open the session without any user turn in the stream.
func (iv *Interviewer) OnMessage(ctx context.Context, msg *types.Message) error {
	if msg != nil {
		iv.AddEvent(msg.Role, "message", msg.Content)
	}

	maxIterations := iv.Config().MaxConsiderationIterations
	iv.turnToRespond = true

	for iterations := 0; iv.turnToRespond && iterations < maxIterations; iterations++ {
		prompt, err := iv.buildPrompt(ctx)
		if err != nil {
			return fmt.Errorf("interviewer prompt failed: %w", err)
		}
		iv.AddEvent(iv.Name(), "prompt", prompt)

		response, err := iv.CallEngine(ctx, prompt)
		if err != nil {
			return err
		}
		iv.AddEvent(iv.Name(), "interviewer_response", response)

		if _, err := iv.HandleToolCalls(ctx, response); err != nil {
			iv.AddEvent(types.RoleSystem, "error", fmt.Sprintf("Malformed tool calls: %v", err))
		}

		if iterations+1 >= maxIterations && iv.turnToRespond {
			iv.AddEvent(types.RoleSystem, "error",
				fmt.Sprintf("Exceeded maximum number of consideration iterations (%d)", maxIterations))
		}
	}
	return nil
}

// buildPrompt assembles the system prompt from the portrait, the last
// meeting summary, the windowed conversation replay, and the agenda.
func (iv *Interviewer) buildPrompt(ctx context.Context) (string, error) {
	chatHistory := iv.EventStream([]types.EventFilter{
		{Sender: types.RoleInterviewer, Tag: "interviewer_response"},
		{Sender: types.RoleUser, Tag: "message"},
		{Sender: types.RoleSystem, Tag: "recall"},
	}, iv.Config().MaxEventsLen)

	vars := map[string]interface{}{
		"user_portrait":       iv.agenda.PortraitStr(),
		"last_meeting_summary": iv.agenda.LastMeetingSummaryStr(),
		"chat_history":        chatHistory,
		"questions_and_notes": iv.agenda.QuestionsAndNotesStr(agenda.HideAnsweredQA),
		"tool_descriptions":   iv.DescribeTools(),
	}

	if iv.Config().UseBaselinePrompt {
		return iv.Prompts().GetWithVariant(ctx, "interviewer.system", "baseline", vars)
	}
	return iv.Prompts().Get(ctx, "interviewer.system", vars)
}

func (iv *Interviewer) registerTools() {
	iv.RegisterTools(
		toolkit.NewTool("recall",
			"A tool for recalling memories. Whenever you need to recall information about the user, you can call this tool.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"reasoning": toolkit.NewStringSchema("Explain how this information will help you answer the user's question."),
				"query":     toolkit.NewStringSchema("A short phrase or sentence capturing the information you want to recall, like 'a daytrip to the zoo'."),
			}, []string{"reasoning", "query"}),
			iv.recall),
		toolkit.NewTool("respond_to_user",
			"A tool for responding to the user.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"response": toolkit.NewStringSchema("The response to the user."),
			}, []string{"response"}),
			iv.respondToUser),
		toolkit.NewTool("end_conversation",
			"A tool for ending the conversation.",
			toolkit.NewObjectSchema("", map[string]*toolkit.JSONSchema{
				"goodbye": toolkit.NewStringSchema("The goodbye message to the user. Tell the user that you are looking forward to talking to them in the next session."),
			}, []string{"goodbye"}),
			iv.endConversation),
	)
}

// recall searches the memory bank and renders hits as numbered blocks.
// The result lands in the event stream under tag "recall", which the
// prompt replay includes, so the next iteration sees it.
func (iv *Interviewer) recall(ctx context.Context, args map[string]interface{}) (string, error) {
	query := toolkit.StringArg(args, "query")
	results, err := iv.memories.Search(ctx, query, recallTopK)
	if err != nil {
		return "", fmt.Errorf("error recalling memories: %w", err)
	}

	if len(results) == 0 {
		return "No relevant memories found.", nil
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Memory %d:\n%s", i+1, r.Memory.Text)
	}
	return strings.Join(blocks, "\n"), nil
}

func (iv *Interviewer) respondToUser(ctx context.Context, args map[string]interface{}) (string, error) {
	response := toolkit.StringArg(args, "response")
	iv.session.AddChatMessage(types.RoleInterviewer, response, types.MessageTypeConversation)
	iv.speak(ctx, response)
	iv.turnToRespond = false
	return "Response sent to the user.", nil
}

func (iv *Interviewer) endConversation(ctx context.Context, args map[string]interface{}) (string, error) {
	goodbye := toolkit.StringArg(args, "goodbye")
	iv.AddEvent(iv.Name(), "goodbye", goodbye)
	iv.session.AddChatMessage(types.RoleInterviewer, goodbye, types.MessageTypeConversation)
	iv.speak(ctx, goodbye)
	iv.turnToRespond = false
	iv.session.EndSession()
	return "Conversation ended successfully.", nil
}

// speak voices a response when a synthesizer is available; failures only
// log since the text already reached the chat history.
func (iv *Interviewer) speak(ctx context.Context, text string) {
	if !iv.speech.CanSpeak() {
		return
	}
	path := filepath.Join(iv.audioDir, fmt.Sprintf("response_%d.mp3", time.Now().Unix()))
	if err := iv.speech.Speak(ctx, text, path); err != nil {
		log.Warn("speech synthesis failed", zap.Error(err))
	}
}
