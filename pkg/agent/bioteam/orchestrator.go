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

// Package bioteam turns the memories a session produces into biography
// updates. A planner maps each batch of new memories to per-section
// plans, section writers execute the plans in parallel against the
// shared tree, and a summary writer rewrites the session agenda for the
// next meeting. The orchestrator sequences the three and exposes the
// in-progress flags the session engine polls during teardown.
package bioteam

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/agenda"
	"github.com/teradata-labs/memoir/pkg/agent"
	"github.com/teradata-labs/memoir/pkg/biography"
	"github.com/teradata-labs/memoir/pkg/memory"
)

// MemorySource hands over the memories distilled during the session.
// includeProcessed selects the whole session instead of only what no
// biography update has consumed yet; clearProcessed marks the returned
// batch consumed; wait blocks (bounded) for in-flight distillation.
type MemorySource interface {
	GetSessionMemories(includeProcessed, clearProcessed, wait bool) []*memory.Memory
}

// Orchestrator coordinates the biography team over one session.
type Orchestrator struct {
	planner *Planner
	writer  *Writer
	summary *SummaryWriter
	bio     *biography.Biography
	source  MemorySource

	mu                        sync.Mutex
	biographyUpdateInProgress bool
	agendaUpdateInProgress    bool
}

// New wires the biography team around a shared tree, agenda, and memory
// bank.
func New(deps agent.Deps, bio *biography.Biography, ag *agenda.Agenda, memories *memory.Bank, source MemorySource) *Orchestrator {
	return &Orchestrator{
		planner: NewPlanner(deps, bio),
		writer:  NewWriter(deps, bio, memories, ag),
		summary: NewSummaryWriter(deps, ag, memories),
		bio:     bio,
		source:  source,
	}
}

// BiographyUpdateInProgress reports whether a biography update is
// running.
func (o *Orchestrator) BiographyUpdateInProgress() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.biographyUpdateInProgress
}

// AgendaUpdateInProgress reports whether the end-of-session agenda
// rewrite is running.
func (o *Orchestrator) AgendaUpdateInProgress() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.agendaUpdateInProgress
}

// UpdateBiographyWithMemories applies one batch of memories to the tree:
// plan, write sections in parallel, save. A failed section update is
// logged and the other plans proceed; a failed save propagates. In
// baseline mode the planner is skipped and a single writer pass rewrites
// the tree directly.
func (o *Orchestrator) UpdateBiographyWithMemories(ctx context.Context, newMemories []*memory.Memory, conversationSummary string) error {
	if len(newMemories) == 0 {
		return nil
	}
	o.setBiographyUpdating(true)
	defer o.setBiographyUpdating(false)

	if o.planner.Config().UseBaselinePrompt {
		if result := o.writer.UpdateBaseline(ctx, newMemories); !result.Success {
			log.Warn("baseline biography update failed", zap.String("message", result.Message))
		}
		return o.bio.Save(false)
	}

	plans, err := o.planner.CreateUpdatePlans(ctx, newMemories, conversationSummary)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, plan := range plans {
		wg.Add(1)
		go func(plan Plan) {
			defer wg.Done()
			if result := o.writer.UpdateSection(ctx, plan); !result.Success {
				log.Warn("section update failed",
					zap.String("section", plan.Label()),
					zap.String("message", result.Message))
			}
		}(plan)
	}
	wg.Wait()

	return o.bio.Save(false)
}

// FinalUpdateBiographyAndAgenda drains the scribe, applies the remaining
// memories, and rewrites the agenda for the next session. Biography and
// agenda failures are logged so teardown continues; the final save, with
// markdown, propagates its error.
func (o *Orchestrator) FinalUpdateBiographyAndAgenda(ctx context.Context, conversationSummary string, selectedTopics []string) error {
	remaining := o.source.GetSessionMemories(false, true, true)
	if err := o.UpdateBiographyWithMemories(ctx, remaining, conversationSummary); err != nil {
		log.Warn("final biography update failed", zap.Error(err))
	}

	o.setAgendaUpdating(true)
	defer o.setAgendaUpdating(false)

	followUps := append(o.planner.FollowUps(), o.writer.FollowUps()...)
	all := o.source.GetSessionMemories(true, false, false)
	if err := o.summary.UpdateAgenda(ctx, all, followUps, selectedTopics); err != nil {
		log.Warn("agenda update failed", zap.Error(err))
	}

	return o.bio.Save(true)
}

// ExtractSessionTopics names the topics this session covered, so the
// next session's questions can be steered toward the selected ones.
func (o *Orchestrator) ExtractSessionTopics(ctx context.Context) ([]string, error) {
	return o.summary.ExtractSessionTopics(ctx, o.source.GetSessionMemories(true, false, true))
}

// AddUserSection creates a section the user asked for at path, then
// saves the tree.
func (o *Orchestrator) AddUserSection(ctx context.Context, path, sectionPrompt string) UpdateResult {
	plan, err := o.planner.CreateUserAddPlan(ctx, path, sectionPrompt)
	if err != nil {
		return UpdateResult{Message: err.Error()}
	}
	return o.finishUserEdit(ctx, plan)
}

// EditUserSection revises the titled section per the user's comment on
// the selected text, then saves the tree.
func (o *Orchestrator) EditUserSection(ctx context.Context, title, selectedText, comment string) UpdateResult {
	plan, err := o.planner.CreateUserUpdatePlan(ctx, title, selectedText, comment)
	if err != nil {
		return UpdateResult{Message: err.Error()}
	}
	return o.finishUserEdit(ctx, plan)
}

func (o *Orchestrator) finishUserEdit(ctx context.Context, plan Plan) UpdateResult {
	result := o.writer.UpdateSection(ctx, plan)
	if !result.Success {
		return result
	}
	if err := o.bio.Save(false); err != nil {
		return UpdateResult{Message: err.Error()}
	}
	return result
}

func (o *Orchestrator) setBiographyUpdating(v bool) {
	o.mu.Lock()
	o.biographyUpdateInProgress = v
	o.mu.Unlock()
}

func (o *Orchestrator) setAgendaUpdating(v bool) {
	o.mu.Lock()
	o.agendaUpdateInProgress = v
	o.mu.Unlock()
}
