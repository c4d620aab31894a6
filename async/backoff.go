/*
 * Copyright 2025 The Yorkie Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package async

import (
	"context"
	"math/rand"
	"time"
)

// The defaults of Backoff.
const (
	DefaultBackoffInitialDelay = time.Second
	DefaultBackoffFactor       = 1.5
	DefaultBackoffMaxDelay     = 60 * time.Second
	DefaultBackoffJitter       = 0.5
)

// BackoffOption configures a Backoff.
type BackoffOption func(*Backoff)

// WithInitialDelay sets the delay of the first retry. It is capped by the
// maximum delay.
func WithInitialDelay(d time.Duration) BackoffOption {
	return func(b *Backoff) { b.initialDelay = d }
}

// WithFactor sets the multiplier applied to the delay after each retry.
func WithFactor(f float64) BackoffOption {
	return func(b *Backoff) { b.factor = f }
}

// WithMaxDelay sets the upper bound of the delay.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *Backoff) { b.maxDelay = d }
}

// WithJitter sets the fraction of the delay that is randomized.
func WithJitter(j float64) BackoffOption {
	return func(b *Backoff) { b.jitter = j }
}

// Backoff delays retries of an operation exponentially. The first attempt
// after a Reset runs immediately. It must only be used from operations
// running on its queue.
type Backoff struct {
	queue   *Queue
	timerID TimerID

	initialDelay time.Duration
	factor       float64
	maxDelay     time.Duration
	jitter       float64

	currentBase     time.Duration
	lastAttemptTime time.Time
	pending         *DelayedOperation
	random          func() float64
}

// NewBackoff creates a backoff scheduling retries on queue.
func NewBackoff(queue *Queue, timerID TimerID, opts ...BackoffOption) *Backoff {
	b := &Backoff{
		queue:        queue,
		timerID:      timerID,
		initialDelay: DefaultBackoffInitialDelay,
		factor:       DefaultBackoffFactor,
		maxDelay:     DefaultBackoffMaxDelay,
		jitter:       DefaultBackoffJitter,
		random:       rand.Float64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Reset makes the next attempt run immediately.
func (b *Backoff) Reset() {
	b.currentBase = 0
}

// ResetToMax makes the next attempt wait for the maximum delay, used when
// the backend reports exhausted resources.
func (b *Backoff) ResetToMax() {
	b.currentBase = b.maxDelay
}

// CurrentBase returns the delay the next attempt waits for, before jitter.
func (b *Backoff) CurrentBase() time.Duration {
	return b.currentBase
}

// BackoffAndRun schedules op after the current delay, minus the time that
// passed since the last attempt, and increases the delay. A pending attempt
// is cancelled.
func (b *Backoff) BackoffAndRun(op Operation) {
	b.Cancel()

	desired := b.currentBase + b.jitterDelay()
	elapsed := time.Duration(0)
	if !b.lastAttemptTime.IsZero() {
		elapsed = time.Since(b.lastAttemptTime)
	}
	remaining := max(0, desired-elapsed)
	if b.currentBase > 0 {
		b.queue.logger.Debugf(
			"backoff %s: waiting %s (base %s, %s since last attempt)",
			b.timerID, remaining, b.currentBase, elapsed,
		)
	}

	b.pending = b.queue.EnqueueAfterDelay(b.timerID, remaining, func(ctx context.Context) error {
		b.lastAttemptTime = time.Now()
		return op(ctx)
	})

	b.currentBase = time.Duration(float64(b.currentBase) * b.factor)
	if b.currentBase < b.initialDelay {
		b.currentBase = b.initialDelay
	}
	if b.currentBase > b.maxDelay {
		b.currentBase = b.maxDelay
	}
}

// Cancel cancels the pending attempt, if any.
func (b *Backoff) Cancel() {
	if b.pending != nil {
		b.pending.Cancel()
		b.pending = nil
	}
}

func (b *Backoff) jitterDelay() time.Duration {
	return time.Duration((b.random() - 0.5) * b.jitter * float64(b.currentBase))
}
