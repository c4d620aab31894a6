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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/pkg/errors"
)

func TestQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("operations run in order test", func(t *testing.T) {
		q := NewQueue(logging.Nop())
		defer func() { assert.NoError(t, q.Shutdown(ctx, nil)) }()

		var mu sync.Mutex
		var order []int
		for i := 0; i < 100; i++ {
			i := i
			q.Enqueue(func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, i)
				return nil
			})
		}
		require.NoError(t, q.EnqueueAndWait(ctx, func(ctx context.Context) error { return nil }))

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, order, 100)
		for i, v := range order {
			assert.Equal(t, i, v)
		}
	})

	t.Run("enqueue and wait returns the error test", func(t *testing.T) {
		q := NewQueue(logging.Nop())
		defer func() { assert.NoError(t, q.Shutdown(ctx, nil)) }()

		err := q.EnqueueAndWait(ctx, func(ctx context.Context) error { return assert.AnError })
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("delayed operations run early in target order test", func(t *testing.T) {
		q := NewQueue(logging.Nop())
		defer func() { assert.NoError(t, q.Shutdown(ctx, nil)) }()

		var order []TimerID
		record := func(id TimerID) Operation {
			return func(ctx context.Context) error {
				order = append(order, id)
				return nil
			}
		}
		q.EnqueueAfterDelay(TimerWriteStreamIdle, time.Hour, record(TimerWriteStreamIdle))
		q.EnqueueAfterDelay(TimerListenStreamIdle, time.Minute, record(TimerListenStreamIdle))
		q.EnqueueAfterDelay(TimerOnlineStateTimeout, 2*time.Hour, record(TimerOnlineStateTimeout))
		assert.True(t, q.ContainsDelayedOperation(TimerListenStreamIdle))

		require.NoError(t, q.RunDelayedOperationsEarly(ctx, TimerWriteStreamIdle))
		assert.Equal(t, []TimerID{TimerListenStreamIdle, TimerWriteStreamIdle}, order)
		assert.False(t, q.ContainsDelayedOperation(TimerListenStreamIdle))
		assert.True(t, q.ContainsDelayedOperation(TimerOnlineStateTimeout))

		require.NoError(t, q.RunDelayedOperationsEarly(ctx, TimerAll))
		assert.Len(t, order, 3)
	})

	t.Run("cancelled operations do not run test", func(t *testing.T) {
		q := NewQueue(logging.Nop())
		defer func() { assert.NoError(t, q.Shutdown(ctx, nil)) }()

		ran := false
		d := q.EnqueueAfterDelay(TimerHealthCheckTimeout, time.Minute, func(ctx context.Context) error {
			ran = true
			return nil
		})
		d.Cancel()
		assert.False(t, q.ContainsDelayedOperation(TimerHealthCheckTimeout))
		require.NoError(t, q.RunDelayedOperationsEarly(ctx, TimerAll))
		assert.False(t, ran)
	})

	t.Run("timers fire test", func(t *testing.T) {
		q := NewQueue(logging.Nop())
		defer func() { assert.NoError(t, q.Shutdown(ctx, nil)) }()

		fired := make(chan struct{})
		q.EnqueueAfterDelay(TimerGarbageCollection, time.Millisecond, func(ctx context.Context) error {
			close(fired)
			return nil
		})
		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatal("delayed operation did not fire")
		}
	})

	t.Run("retryable operations are retried in order test", func(t *testing.T) {
		q := NewQueue(logging.Nop())
		defer func() { assert.NoError(t, q.Shutdown(ctx, nil)) }()
		q.retryBackoff.ResetToMax()

		var order []string
		attempts := 0
		q.EnqueueRetryable(func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.Unavailable("storage is busy")
			}
			order = append(order, "first")
			return nil
		})
		q.EnqueueRetryable(func(ctx context.Context) error {
			order = append(order, "second")
			return nil
		})

		for i := 0; i < 2; i++ {
			require.NoError(t, q.EnqueueAndWait(ctx, func(ctx context.Context) error { return nil }))
			assert.True(t, q.ContainsDelayedOperation(TimerAsyncQueueRetry))
			assert.Empty(t, order)
			require.NoError(t, q.RunDelayedOperationsEarly(ctx, TimerAsyncQueueRetry))
		}
		assert.Equal(t, 3, attempts)
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("shutdown test", func(t *testing.T) {
		q := NewQueue(logging.Nop())
		q.EnqueueAfterDelay(TimerGarbageCollection, time.Hour, func(ctx context.Context) error { return nil })

		finalRan := false
		require.NoError(t, q.Shutdown(ctx, func(ctx context.Context) error {
			finalRan = true
			return nil
		}))
		assert.True(t, finalRan)
		assert.True(t, q.IsShuttingDown())
		assert.False(t, q.ContainsDelayedOperation(TimerGarbageCollection))

		err := q.EnqueueAndWait(ctx, func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrShutdown)
		assert.NoError(t, q.Shutdown(ctx, nil))
	})
}

func TestBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("delay grows up to the maximum test", func(t *testing.T) {
		q := NewQueue(logging.Nop())
		defer func() { assert.NoError(t, q.Shutdown(ctx, nil)) }()

		b := NewBackoff(q, TimerListenStreamConnectionBackoff)
		b.random = func() float64 { return 0.5 }

		noop := func(ctx context.Context) error { return nil }
		require.NoError(t, q.EnqueueAndWait(ctx, func(ctx context.Context) error {
			expected := []time.Duration{
				time.Second,
				1500 * time.Millisecond,
				2250 * time.Millisecond,
			}
			for _, want := range expected {
				b.BackoffAndRun(noop)
				assert.Equal(t, want, b.CurrentBase())
			}

			for i := 0; i < 20; i++ {
				b.BackoffAndRun(noop)
			}
			assert.Equal(t, DefaultBackoffMaxDelay, b.CurrentBase())

			b.Reset()
			assert.Equal(t, time.Duration(0), b.CurrentBase())
			b.ResetToMax()
			assert.Equal(t, DefaultBackoffMaxDelay, b.CurrentBase())
			b.Cancel()
			return nil
		}))
		assert.False(t, q.ContainsDelayedOperation(TimerListenStreamConnectionBackoff))
	})

	t.Run("first attempt runs at once test", func(t *testing.T) {
		q := NewQueue(logging.Nop())
		defer func() { assert.NoError(t, q.Shutdown(ctx, nil)) }()

		b := NewBackoff(q, TimerWriteStreamConnectionBackoff, WithInitialDelay(time.Minute), WithMaxDelay(time.Hour))
		ran := make(chan struct{})
		require.NoError(t, q.EnqueueAndWait(ctx, func(ctx context.Context) error {
			b.BackoffAndRun(func(ctx context.Context) error {
				close(ran)
				return nil
			})
			return nil
		}))
		select {
		case <-ran:
		case <-time.After(5 * time.Second):
			t.Fatal("first attempt was delayed")
		}
		assert.Equal(t, time.Minute, b.CurrentBase())
	})

	t.Run("initial delay is capped by max delay test", func(t *testing.T) {
		q := NewQueue(logging.Nop())
		defer func() { assert.NoError(t, q.Shutdown(ctx, nil)) }()

		b := NewBackoff(q, TimerWriteStreamConnectionBackoff, WithInitialDelay(time.Hour))
		require.NoError(t, q.EnqueueAndWait(ctx, func(ctx context.Context) error {
			b.BackoffAndRun(func(context.Context) error { return nil })
			assert.Equal(t, DefaultBackoffMaxDelay, b.CurrentBase())
			b.Cancel()
			return nil
		}))
	})
}
