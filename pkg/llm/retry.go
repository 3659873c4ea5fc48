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
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
)

// RetryConfig controls the exponential backoff applied to transient
// provider failures.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, first try included.
	MaxAttempts int

	// InitialDelay is the sleep before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64
}

// DefaultRetryConfig returns the transport retry policy: backoff from one
// second, at most ten attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  10,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

// ChatWithRetry wraps a provider chat call with exponential backoff. It
// gives up early when the context is cancelled; backoff sleeps are
// interruptible.
func ChatWithRetry(ctx context.Context, provider Provider, messages []Message, cfg RetryConfig) (*Response, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		response, err := provider.Chat(ctx, messages)
		if err == nil {
			if attempt > 1 {
				log.Info("llm retry succeeded",
					zap.String("provider", provider.Name()),
					zap.Int("attempt", attempt),
				)
			}
			return response, nil
		}
		lastErr = err

		// Context cancellation is not a transient provider failure.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("llm call failed (attempt %d/%d): %w", attempt, cfg.MaxAttempts, err)
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		log.Warn("llm call failed, retrying",
			zap.String("provider", provider.Name()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("llm call failed (attempt %d/%d): %w", attempt, cfg.MaxAttempts, ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	log.Error("llm retries exhausted",
		zap.String("provider", provider.Name()),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("llm call failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
