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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/types"
)

// subscriberQueueDepth bounds each subscriber's pending deliveries. A full
// queue back-pressures Post instead of dropping messages.
const subscriberQueueDepth = 256

// subscription is one subscriber with its delivery queue and worker.
type subscription struct {
	sub   types.Subscriber
	queue chan *types.Message
	done  chan struct{}
}

// Router fans chat messages out by sender role. Each subscriber gets its
// own worker goroutine draining its own queue, so delivery to a single
// subscriber follows posting order while subscribers run independently of
// each other. A subscriber that fails or panics loses only its own
// delivery.
type Router struct {
	mu      sync.Mutex
	open    bool
	started bool
	closed  bool
	history []*types.Message
	subs    map[string][]*subscription

	// posting tracks in-flight Post calls so Shutdown can close the
	// queues without racing a send.
	posting sync.WaitGroup
}

// NewRouter creates a router with no subscriptions. Messages posted before
// Start are dropped.
func NewRouter() *Router {
	return &Router{subs: make(map[string][]*subscription)}
}

// Subscribe registers subscribers for messages sent by role, in delivery
// registration order. Call before Start.
func (r *Router) Subscribe(role string, subscribers ...types.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range subscribers {
		r.subs[role] = append(r.subs[role], &subscription{
			sub:   sub,
			queue: make(chan *types.Message, subscriberQueueDepth),
			done:  make(chan struct{}),
		})
	}
}

// Start opens the router and launches one delivery worker per
// subscription. Workers exit when Shutdown closes their queues.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		r.open = true
		return
	}
	r.started = true
	r.open = true
	for _, list := range r.subs {
		for _, s := range list {
			go r.deliverLoop(ctx, s)
		}
	}
}

func (r *Router) deliverLoop(ctx context.Context, s *subscription) {
	defer close(s.done)
	for msg := range s.queue {
		r.deliver(ctx, s.sub, msg)
	}
}

// deliver isolates one delivery so a panicking subscriber loses only its
// own message, not its worker.
func (r *Router) deliver(ctx context.Context, sub types.Subscriber, msg *types.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("subscriber panicked",
				zap.String("subscriber", sub.Title()),
				zap.String("message_id", msg.ID),
				zap.Any("panic", rec))
		}
	}()
	if err := sub.OnMessage(ctx, msg); err != nil {
		log.Warn("subscriber failed",
			zap.String("subscriber", sub.Title()),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
}

// Post appends the message to the chat history and enqueues it for every
// subscriber of the sender's role. Returns false, delivering to no one,
// once the router is closed.
func (r *Router) Post(msg *types.Message) bool {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return false
	}
	r.posting.Add(1)
	defer r.posting.Done()
	r.history = append(r.history, msg)
	targets := make([]*subscription, len(r.subs[msg.Role]))
	copy(targets, r.subs[msg.Role])
	r.mu.Unlock()

	log.Debug("routing message",
		zap.String("role", msg.Role),
		zap.String("type", string(msg.Type)),
		zap.Int("subscribers", len(targets)))
	for _, s := range targets {
		s.queue <- msg
	}
	return true
}

// Close stops accepting new posts. Already queued messages still drain.
func (r *Router) Close() {
	r.mu.Lock()
	r.open = false
	r.mu.Unlock()
}

// Shutdown closes the router and waits up to timeout for the delivery
// workers to drain. A worker stuck in a blocking subscriber (a terminal
// read, typically) is abandoned with a warning.
func (r *Router) Shutdown(timeout time.Duration) {
	r.Close()
	r.posting.Wait()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	var all []*subscription
	for _, list := range r.subs {
		for _, s := range list {
			close(s.queue)
			all = append(all, s)
		}
	}
	r.mu.Unlock()

	deadline := time.After(timeout)
	for _, s := range all {
		select {
		case <-s.done:
		case <-deadline:
			log.Warn("router shutdown timed out waiting for subscriber",
				zap.String("subscriber", s.sub.Title()))
			return
		}
	}
}

// History returns a copy of the chat history in posting order.
func (r *Router) History() []*types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Message, len(r.history))
	copy(out, r.history)
	return out
}

// LastMessage returns the most recently posted message, or nil.
func (r *Router) LastMessage() *types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return nil
	}
	return r.history[len(r.history)-1]
}
