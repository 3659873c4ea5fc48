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
// Package agent is the shared runtime under every interview agent: a
// private append-only event stream, prompt assembly helpers, retried LLM
// calls, and tool-call dispatch that records outcomes back into the
// stream. Concrete agents (interviewer, scribe, biography team) embed
// *Agent and add their own triggers and loops.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/config"
	"github.com/teradata-labs/memoir/pkg/llm"
	"github.com/teradata-labs/memoir/pkg/prompts"
	"github.com/teradata-labs/memoir/pkg/toolkit"
	"github.com/teradata-labs/memoir/pkg/types"
)

// Deps are the collaborators the session engine hands every agent.
type Deps struct {
	Config   *config.Config
	Provider llm.Provider
	Prompts  *prompts.Registry

	// EventLog optionally mirrors the event stream to a per-agent file
	// under the session's execution_logs directory.
	EventLog *zap.Logger
}

// Agent is the base runtime embedded by every concrete agent.
type Agent struct {
	name        string
	description string

	cfg      *config.Config
	provider llm.Provider
	prompts  *prompts.Registry

	registry *toolkit.Registry
	executor *toolkit.Executor

	eventsMu sync.Mutex
	events   []types.Event

	eventLog *zap.Logger
}

// New creates a base agent. name appears as the event sender for the
// agent's own events and in logs.
func New(name, description string, deps Deps) *Agent {
	registry := toolkit.NewRegistry()
	return &Agent{
		name:        name,
		description: description,
		cfg:         deps.Config,
		provider:    deps.Provider,
		prompts:     deps.Prompts,
		registry:    registry,
		executor:    toolkit.NewExecutor(registry),
		eventLog:    deps.EventLog,
	}
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the one-line agent description.
func (a *Agent) Description() string { return a.description }

// Config returns the session configuration.
func (a *Agent) Config() *config.Config { return a.cfg }

// Provider returns the LLM provider.
func (a *Agent) Provider() llm.Provider { return a.provider }

// Prompts returns the prompt registry.
func (a *Agent) Prompts() *prompts.Registry { return a.prompts }

// RegisterTools adds tools to the agent's registry, panicking on a
// duplicate name. Tool sets are wired once at construction.
func (a *Agent) RegisterTools(tools ...toolkit.Tool) {
	a.registry.MustRegister(tools...)
}

// DescribeTools renders tool descriptions for a prompt. With no names it
// describes every registered tool; otherwise only the named subset, in
// the order given. Unknown names are skipped.
func (a *Agent) DescribeTools(names ...string) string {
	if len(names) == 0 {
		return a.registry.Describe()
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if tool, ok := a.registry.Get(name); ok {
			parts = append(parts, toolkit.DescribeTool(tool))
		}
	}
	return strings.Join(parts, "\n\n")
}

// AddEvent appends one event to the agent's stream.
func (a *Agent) AddEvent(sender, tag, content string) {
	e := types.Event{
		Sender:    sender,
		Tag:       tag,
		Content:   content,
		Timestamp: time.Now(),
	}

	a.eventsMu.Lock()
	a.events = append(a.events, e)
	a.eventsMu.Unlock()

	if a.eventLog != nil {
		a.eventLog.Info(content, zap.String("sender", sender), zap.String("tag", tag))
	}
}

// Events returns a copy of the events matching any of the filters, in
// insertion order. With no filters every event matches.
func (a *Agent) Events(filters ...types.EventFilter) []types.Event {
	a.eventsMu.Lock()
	defer a.eventsMu.Unlock()

	out := make([]types.Event, 0, len(a.events))
	for _, e := range a.events {
		if matchesAny(e, filters) {
			out = append(out, e)
		}
	}
	return out
}

func matchesAny(e types.Event, filters []types.EventFilter) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(e) {
			return true
		}
	}
	return false
}

// EventBlocks renders matching events as <Sender>...</Sender> blocks,
// keeping only the last maxLen when maxLen > 0.
func (a *Agent) EventBlocks(filters []types.EventFilter, maxLen int) []string {
	events := a.Events(filters...)
	if maxLen > 0 && len(events) > maxLen {
		events = events[len(events)-maxLen:]
	}

	blocks := make([]string, 0, len(events))
	for _, e := range events {
		blocks = append(blocks, fmt.Sprintf("<%s>\n%s\n</%s>", e.Sender, e.Content, e.Sender))
	}
	return blocks
}

// EventStream joins EventBlocks into the replay string embedded in
// prompts.
func (a *Agent) EventStream(filters []types.EventFilter, maxLen int) string {
	return strings.Join(a.EventBlocks(filters, maxLen), "\n")
}

// CallEngine sends one prompt to the provider with the standard retry
// policy and returns the response text.
func (a *Agent) CallEngine(ctx context.Context, prompt string) (string, error) {
	resp, err := llm.ChatWithRetry(ctx, a.provider, llm.UserMessage(prompt), llm.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("%s engine call failed: %w", a.name, err)
	}
	return resp.Content, nil
}

// HandleToolCalls parses the tool-calls block out of an LLM response and
// executes every call in order, recording each outcome in the event
// stream: results under sender "system" with the tool name as tag, errors
// under tag "error". The returned string aggregates the per-call outcome
// lines fed back to the model on the next iteration. Call failures do not
// stop later calls.
func (a *Agent) HandleToolCalls(ctx context.Context, response string) (string, error) {
	calls, err := toolkit.ParseToolCalls(response)
	if err != nil {
		return "", err
	}
	if len(calls) == 0 {
		return "", nil
	}

	var results []string
	for _, call := range calls {
		result, err := a.executor.Execute(ctx, call)
		if err != nil {
			errMsg := fmt.Sprintf("Error calling tool '%s': %v", call.Name, err)
			log.Warn("tool call failed",
				zap.String("agent", a.name),
				zap.String("tool", call.Name),
				zap.Error(err),
			)
			a.AddEvent(types.RoleSystem, "error", errMsg)
			results = append(results, errMsg)
			continue
		}
		a.AddEvent(types.RoleSystem, call.Name, result.Content)
		results = append(results, fmt.Sprintf("Tool '%s' executed successfully. Result: %s", call.Name, result.Content))
	}
	return strings.Join(results, "\n"), nil
}

// ExecuteTool runs a single named tool directly, recording the outcome in
// the event stream the same way HandleToolCalls does.
func (a *Agent) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	result, err := a.executor.Execute(ctx, toolkit.Call{Name: name, Args: args})
	if err != nil {
		a.AddEvent(types.RoleSystem, "error", fmt.Sprintf("Error calling tool '%s': %v", name, err))
		return "", err
	}
	a.AddEvent(types.RoleSystem, name, result.Content)
	return result.Content, nil
}
