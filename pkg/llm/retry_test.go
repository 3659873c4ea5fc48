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
package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyProvider fails a fixed number of times before succeeding.
type flakyProvider struct {
	failures int
	calls    int
}

func (p *flakyProvider) Name() string  { return "flaky" }
func (p *flakyProvider) Model() string { return "test-model" }

func (p *flakyProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, errors.New("transport error")
	}
	return &Response{Content: "ok"}, nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestChatWithRetrySucceedsFirstTry(t *testing.T) {
	p := &flakyProvider{failures: 0}

	resp, err := ChatWithRetry(context.Background(), p, UserMessage("hi"), fastRetry(3))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 1, p.calls)
}

func TestChatWithRetryRecoversFromTransientFailures(t *testing.T) {
	p := &flakyProvider{failures: 2}

	resp, err := ChatWithRetry(context.Background(), p, UserMessage("hi"), fastRetry(5))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, p.calls)
}

func TestChatWithRetryExhaustsAttempts(t *testing.T) {
	p := &flakyProvider{failures: 100}

	_, err := ChatWithRetry(context.Background(), p, UserMessage("hi"), fastRetry(4))
	require.Error(t, err)
	assert.Equal(t, 4, p.calls)
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestChatWithRetryStopsOnCancelledContext(t *testing.T) {
	p := &flakyProvider{failures: 100}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ChatWithRetry(ctx, p, UserMessage("hi"), fastRetry(10))
	require.Error(t, err)
	// One attempt runs, then the cancelled context short-circuits the loop.
	assert.Equal(t, 1, p.calls)
}

func TestUserMessage(t *testing.T) {
	msgs := UserMessage("tell me about your childhood")
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "tell me about your childhood", msgs[0].Content)
}
