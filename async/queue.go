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

// Package async provides the serialized executor every operation of the
// engine runs on, so that no two operations touch shared state at the same
// time.
package async

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/pkg/errors"
)

// ErrShutdown is returned when an operation is enqueued after the queue
// was shut down.
var ErrShutdown = errors.FailedPrecond("queue is shut down").WithCode("ErrShutdown")

// Operation is a unit of work run on the queue.
type Operation func(ctx context.Context) error

// TimerID identifies the kind of a delayed operation, so that tests can run
// them early.
type TimerID string

// The timers of the engine.
const (
	TimerAll                           TimerID = "all"
	TimerListenStreamIdle              TimerID = "listen_stream_idle"
	TimerListenStreamConnectionBackoff TimerID = "listen_stream_connection_backoff"
	TimerWriteStreamIdle               TimerID = "write_stream_idle"
	TimerWriteStreamConnectionBackoff  TimerID = "write_stream_connection_backoff"
	TimerHealthCheckTimeout            TimerID = "health_check_timeout"
	TimerOnlineStateTimeout            TimerID = "online_state_timeout"
	TimerGarbageCollection             TimerID = "garbage_collection"
	TimerRetryTransaction              TimerID = "retry_transaction"
	TimerAsyncQueueRetry               TimerID = "async_queue_retry"
)

type task struct {
	op   Operation
	done chan error
}

// Queue runs operations one at a time in the order they were enqueued.
type Queue struct {
	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	tasks      []task
	delayed    []*DelayedOperation
	restricted bool
	closed     bool
	skipDelays map[TimerID]bool
	notify     chan struct{}
	stopped    chan struct{}

	// retryable holds the retryable operations; only the first one runs
	// until it succeeds.
	retryable    []Operation
	retryBackoff *Backoff
}

// NewQueue creates a queue and starts its goroutine.
func NewQueue(logger logging.Logger) *Queue {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	ctx, cancel := context.WithCancel(logging.With(context.Background(), logger))
	q := &Queue{
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		skipDelays: make(map[TimerID]bool),
		notify:     make(chan struct{}, 1),
		stopped:    make(chan struct{}),
	}
	q.retryBackoff = NewBackoff(q, TimerAsyncQueueRetry)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.notify
			continue
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		err := t.op(q.ctx)
		if t.done != nil {
			t.done <- err
			continue
		}
		if err != nil {
			q.logger.Errorf("async operation failed: %v", err)
		}
	}
}

func (q *Queue) push(t task, evenWhileRestricted bool) error {
	q.mu.Lock()
	if q.closed || (q.restricted && !evenWhileRestricted) {
		q.mu.Unlock()
		return ErrShutdown
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Enqueue adds op to the queue without waiting for it. Errors returned by
// op are logged.
func (q *Queue) Enqueue(op Operation) {
	if err := q.push(task{op: op}, false); err != nil {
		q.logger.Debugf("drop operation: %v", err)
	}
}

// EnqueueAndWait adds op to the queue and waits for its result. It must
// not be called from an operation running on the queue.
func (q *Queue) EnqueueAndWait(ctx context.Context, op Operation) error {
	done := make(chan error, 1)
	if err := q.push(task{op: op, done: done}, false); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueRetryable adds op to the queue. If op fails because storage is
// unavailable it is retried with backoff, and retryable operations enqueued
// later wait until it succeeds.
func (q *Queue) EnqueueRetryable(op Operation) {
	q.Enqueue(func(ctx context.Context) error {
		q.retryable = append(q.retryable, op)
		if len(q.retryable) == 1 {
			q.runRetryable(ctx)
		}
		return nil
	})
}

func (q *Queue) runRetryable(ctx context.Context) {
	for len(q.retryable) > 0 {
		err := q.retryable[0](ctx)
		if err != nil && isRetryable(err) {
			q.logger.Debugf("retry operation: %v", err)
			q.retryBackoff.BackoffAndRun(func(ctx context.Context) error {
				q.runRetryable(ctx)
				return nil
			})
			return
		}
		if err != nil {
			q.logger.Errorf("retryable operation failed: %v", err)
		}
		q.retryBackoff.Reset()
		q.retryable = q.retryable[1:]
	}
}

// isRetryable returns whether err reports storage that is temporarily
// unavailable.
func isRetryable(err error) bool {
	return errors.IsStatus(err, errors.ErrCodeUnavailable)
}

// DelayedOperation is an operation scheduled to be enqueued later. It can be
// cancelled until it starts running.
type DelayedOperation struct {
	queue      *Queue
	timerID    TimerID
	targetTime time.Time
	op         Operation
	timer      *time.Timer

	// state is guarded by the mutex of the queue.
	done bool
}

// TimerID returns the id of the timer of the operation.
func (d *DelayedOperation) TimerID() TimerID {
	return d.timerID
}

// Cancel prevents the operation from running, if it did not run yet.
func (d *DelayedOperation) Cancel() {
	q := d.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if d.done {
		return
	}
	d.done = true
	if d.timer != nil {
		d.timer.Stop()
	}
	q.removeDelayed(d)
}

// removeDelayed must be called with the mutex held.
func (q *Queue) removeDelayed(d *DelayedOperation) {
	for i, other := range q.delayed {
		if other == d {
			q.delayed = append(q.delayed[:i], q.delayed[i+1:]...)
			return
		}
	}
}

// claim marks the operation as run, returning false if it was cancelled or
// already run.
func (d *DelayedOperation) claim() bool {
	q := d.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if d.done {
		return false
	}
	d.done = true
	if d.timer != nil {
		d.timer.Stop()
	}
	q.removeDelayed(d)
	return true
}

// EnqueueAfterDelay schedules op to be enqueued after delay.
func (q *Queue) EnqueueAfterDelay(timerID TimerID, delay time.Duration, op Operation) *DelayedOperation {
	d := &DelayedOperation{
		queue:      q,
		timerID:    timerID,
		targetTime: time.Now().Add(delay),
		op:         op,
	}

	q.mu.Lock()
	if q.skipDelays[timerID] {
		delay = 0
	}
	if q.closed || q.restricted {
		d.done = true
		q.mu.Unlock()
		return d
	}
	q.delayed = append(q.delayed, d)
	d.timer = time.AfterFunc(delay, func() {
		q.Enqueue(func(ctx context.Context) error {
			if !d.claim() {
				return nil
			}
			return d.op(ctx)
		})
	})
	q.mu.Unlock()
	return d
}

// ContainsDelayedOperation returns whether an operation of the given timer
// is scheduled.
func (q *Queue) ContainsDelayedOperation(timerID TimerID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range q.delayed {
		if d.timerID == timerID {
			return true
		}
	}
	return false
}

// SkipDelaysForTimerID makes operations of the given timer scheduled from
// now on run without delay.
func (q *Queue) SkipDelaysForTimerID(timerID TimerID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.skipDelays[timerID] = true
}

// RunDelayedOperationsEarly runs the scheduled operations in the order of
// their target time, up to and including the first one of lastTimerID.
// TimerAll runs every scheduled operation.
func (q *Queue) RunDelayedOperationsEarly(ctx context.Context, lastTimerID TimerID) error {
	return q.EnqueueAndWait(ctx, func(ctx context.Context) error {
		q.mu.Lock()
		pending := make([]*DelayedOperation, len(q.delayed))
		copy(pending, q.delayed)
		q.mu.Unlock()

		sort.SliceStable(pending, func(i, j int) bool {
			return pending[i].targetTime.Before(pending[j].targetTime)
		})
		for _, d := range pending {
			if !d.claim() {
				continue
			}
			if err := d.op(ctx); err != nil {
				return fmt.Errorf("run %s early: %w", d.timerID, err)
			}
			if lastTimerID != TimerAll && d.timerID == lastTimerID {
				break
			}
		}
		return nil
	})
}

// Shutdown stops accepting operations, runs final on the queue after the
// operations already enqueued, cancels every delayed operation and stops
// the queue.
func (q *Queue) Shutdown(ctx context.Context, final Operation) error {
	q.mu.Lock()
	if q.restricted {
		q.mu.Unlock()
		return nil
	}
	q.restricted = true
	q.mu.Unlock()

	if final == nil {
		final = func(context.Context) error { return nil }
	}
	done := make(chan error, 1)
	if err := q.push(task{op: final, done: done}, true); err != nil {
		return err
	}

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	q.mu.Lock()
	q.closed = true
	for _, d := range q.delayed {
		d.done = true
		if d.timer != nil {
			d.timer.Stop()
		}
	}
	q.delayed = nil
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}

	if err == nil {
		<-q.stopped
	}
	q.cancel()
	return err
}

// IsShuttingDown returns whether Shutdown was called.
func (q *Queue) IsShuttingDown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.restricted
}
