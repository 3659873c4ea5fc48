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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teradata-labs/memoir/pkg/agent"
	"github.com/teradata-labs/memoir/pkg/speech"
	"github.com/teradata-labs/memoir/pkg/toolkit"
	"github.com/teradata-labs/memoir/pkg/types"
)

// conversation is the slice of the engine both user participants post
// through.
type conversation interface {
	AddChatMessage(role, content string, msgType types.MessageType)
	EndSession()
	Running() bool
}

// TerminalUser is the interviewee at a terminal. Each interviewer message
// is printed and answered with one line of input; slash commands map to
// the reaction message types.
type TerminalUser struct {
	conv     conversation
	engines  *speech.Engines
	audioDir string
	voice    bool

	scanner *bufio.Scanner
	out     io.Writer
}

// NewTerminalUser wires a terminal participant reading stdin and writing
// stdout. Recorded voice answers land under audioDir.
func NewTerminalUser(conv conversation, engines *speech.Engines, audioDir string, voice bool) *TerminalUser {
	return &TerminalUser{
		conv:     conv,
		engines:  engines,
		audioDir: audioDir,
		voice:    voice,
		scanner:  bufio.NewScanner(os.Stdin),
		out:      os.Stdout,
	}
}

// Title implements types.Subscriber.
func (u *TerminalUser) Title() string { return types.RoleUser }

// OnMessage prints the interviewer's message and collects the user's
// reply. After the session has ended the message is still shown (the
// goodbye arrives right before the end) but no reply is collected.
func (u *TerminalUser) OnMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil {
		return nil
	}
	fmt.Fprintf(u.out, "%s: %s\n", msg.Role, msg.Content)
	if !u.conv.Running() {
		return nil
	}
	return u.respond(ctx)
}

// respond reads input until one turn is produced. "/like" records
// feedback without ending the turn, so the loop keeps prompting after it.
func (u *TerminalUser) respond(ctx context.Context) error {
	for {
		text, err := u.readResponse(ctx)
		if err != nil {
			u.conv.EndSession()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read user input: %w", err)
		}
		switch strings.TrimSpace(text) {
		case "":
			continue
		case "/exit":
			u.conv.EndSession()
			return nil
		case "/skip":
			u.conv.AddChatMessage(types.RoleUser, "", types.MessageTypeSkip)
			return nil
		case "/like":
			u.conv.AddChatMessage(types.RoleUser, "", types.MessageTypeLike)
			continue
		default:
			u.conv.AddChatMessage(types.RoleUser, text, types.MessageTypeConversation)
			return nil
		}
	}
}

// readResponse collects one raw answer, offering voice capture when a
// recognizer is wired. A failed recording falls back to typed input.
func (u *TerminalUser) readResponse(ctx context.Context) (string, error) {
	if u.voice && u.engines.CanListen() {
		fmt.Fprintln(u.out, "[1] Type response")
		fmt.Fprintln(u.out, "[2] Voice response")
		fmt.Fprint(u.out, "Choose response mode: ")
		choice, err := u.readLine()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(choice) == "2" {
			text, err := u.listen(ctx)
			if err == nil {
				return text, nil
			}
			fmt.Fprintf(u.out, "Voice input failed (%v), please type your response.\n", err)
		}
	}
	fmt.Fprint(u.out, "User: ")
	return u.readLine()
}

// listen records one answer to a timestamped wav file and transcribes it.
func (u *TerminalUser) listen(ctx context.Context) (string, error) {
	if err := os.MkdirAll(u.audioDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create audio input directory: %w", err)
	}
	path := filepath.Join(u.audioDir, fmt.Sprintf("input_%d.wav", time.Now().Unix()))
	text, err := u.engines.Listen(ctx, path)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(u.out, "User: %s\n", text)
	return text, nil
}

func (u *TerminalUser) readLine() (string, error) {
	if u.scanner.Scan() {
		return u.scanner.Text(), nil
	}
	if err := u.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// simulatedUserDelay paces scripted interviews so the transcript keeps a
// conversational rhythm instead of hammering the provider.
const simulatedUserDelay = 3 * time.Second

// SimulatedUser stands in for the interviewee: an LLM answering in
// character from a persona profile. Used to exercise full sessions
// without a human at the terminal.
type SimulatedUser struct {
	*agent.Agent
	conv    conversation
	profile string
	delay   time.Duration
}

// NewSimulatedUser loads the persona profile for userID from profilesDir
// (<user_id>.md) and builds the participant around it.
func NewSimulatedUser(deps agent.Deps, conv conversation, userID, profilesDir string) (*SimulatedUser, error) {
	data, err := os.ReadFile(filepath.Join(profilesDir, userID+".md"))
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	return &SimulatedUser{
		Agent:   agent.New("SimulatedUser", "Persona-driven interviewee", deps),
		conv:    conv,
		profile: strings.TrimSpace(string(data)),
		delay:   simulatedUserDelay,
	}, nil
}

// Title implements types.Subscriber.
func (s *SimulatedUser) Title() string { return "SimulatedUser" }

// OnMessage answers one interviewer message in character and posts the
// reply as a user turn.
func (s *SimulatedUser) OnMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil {
		return nil
	}
	s.AddEvent(msg.Role, "message", msg.Content)

	prompt, err := s.Prompts().Get(ctx, "user.system", map[string]interface{}{
		"profile_background": s.profile,
		"chat_history": s.EventStream([]types.EventFilter{
			{Tag: "message"},
		}, s.Config().MaxEventsLen),
	})
	if err != nil {
		return fmt.Errorf("user prompt failed: %w", err)
	}
	s.AddEvent(s.Name(), "prompt", prompt)

	response, err := s.CallEngine(ctx, prompt)
	if err != nil {
		return err
	}
	s.AddEvent(s.Name(), "user_response", response)

	content := toolkit.ExtractTagContent(response, "response_content")
	if content == "" {
		content = strings.TrimSpace(response)
	}
	s.AddEvent(types.RoleUser, "message", content)

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	}
	s.conv.AddChatMessage(types.RoleUser, content, types.MessageTypeConversation)
	return nil
}
