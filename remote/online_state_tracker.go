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

package remote

import (
	"context"
	"time"

	"github.com/yorkie-team/docsync/async"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/metrics/prometheus"
)

// OnlineState is whether the client believes it can reach the backend.
type OnlineState int

// The online states.
const (
	// OnlineStateUnknown is the state while a connection is attempted.
	// Listeners wait for the backend before raising snapshots.
	OnlineStateUnknown OnlineState = iota

	// OnlineStateOnline is the state once the Listen stream opened.
	OnlineStateOnline

	// OnlineStateOffline is the state once connecting failed or timed out.
	// Listeners raise snapshots from the cache.
	OnlineStateOffline
)

var onlineStateNames = []string{"unknown", "online", "offline"}

// String returns the name of the state.
func (s OnlineState) String() string {
	if int(s) < len(onlineStateNames) {
		return onlineStateNames[s]
	}
	return "invalid"
}

const (
	// maxWatchStreamFailures is the number of Listen stream failures after
	// which the client goes offline.
	maxWatchStreamFailures = 1

	// onlineStateTimeout is how long a connection attempt may take before
	// the client goes offline.
	onlineStateTimeout = 10 * time.Second
)

// OnlineStateTracker derives the online state from the health of the
// Listen stream. It runs on the queue.
type OnlineStateTracker struct {
	queue   *async.Queue
	handler func(ctx context.Context, state OnlineState)
	logger  logging.Logger
	metrics *prometheus.Metrics

	state                     OnlineState
	watchStreamFailures       int
	onlineStateTimer          *async.DelayedOperation
	shouldWarnClientIsOffline bool
}

// NewOnlineStateTracker creates a tracker calling handler whenever the
// state changes.
func NewOnlineStateTracker(
	queue *async.Queue,
	handler func(ctx context.Context, state OnlineState),
	logger logging.Logger,
	metrics *prometheus.Metrics,
) *OnlineStateTracker {
	return &OnlineStateTracker{
		queue:                     queue,
		handler:                   handler,
		logger:                    logger,
		metrics:                   metrics,
		shouldWarnClientIsOffline: true,
	}
}

// State returns the current state.
func (t *OnlineStateTracker) State() OnlineState {
	return t.state
}

// HandleWatchStreamStart is called when the Listen stream starts. Unless
// it already failed, the client goes offline if the stream does not open
// in time.
func (t *OnlineStateTracker) HandleWatchStreamStart(ctx context.Context) {
	if t.watchStreamFailures != 0 {
		return
	}

	t.setAndBroadcast(ctx, OnlineStateUnknown)
	t.onlineStateTimer = t.queue.EnqueueAfterDelay(async.TimerOnlineStateTimeout, onlineStateTimeout, func(ctx context.Context) error {
		t.onlineStateTimer = nil
		if t.state != OnlineStateUnknown {
			return nil
		}
		t.logClientOfflineWarning("backend did not respond within " + onlineStateTimeout.String())
		t.setAndBroadcast(ctx, OnlineStateOffline)
		return nil
	})
}

// HandleWatchStreamFailure is called when the Listen stream fails.
func (t *OnlineStateTracker) HandleWatchStreamFailure(ctx context.Context, err error) {
	if t.state == OnlineStateOnline {
		// A stream that worked gets another chance before going offline.
		t.setAndBroadcast(ctx, OnlineStateUnknown)
		return
	}

	t.watchStreamFailures++
	if t.watchStreamFailures >= maxWatchStreamFailures {
		t.clearOnlineStateTimer()
		t.logClientOfflineWarning("could not reach backend: " + errString(err))
		t.setAndBroadcast(ctx, OnlineStateOffline)
	}
}

// Set sets the state explicitly, resetting the failure count.
func (t *OnlineStateTracker) Set(ctx context.Context, state OnlineState) {
	t.clearOnlineStateTimer()
	t.watchStreamFailures = 0
	if state == OnlineStateOnline {
		// Later offline transitions are logged at debug level.
		t.shouldWarnClientIsOffline = false
	}
	t.setAndBroadcast(ctx, state)
}

func (t *OnlineStateTracker) setAndBroadcast(ctx context.Context, state OnlineState) {
	if state == t.state {
		return
	}
	t.state = state
	t.metrics.SetOnlineState(state.String(), onlineStateNames...)
	t.handler(ctx, state)
}

func (t *OnlineStateTracker) logClientOfflineWarning(details string) {
	msg := "client is offline, serving documents from the cache: " + details
	if t.shouldWarnClientIsOffline {
		t.logger.Warn(msg)
		t.shouldWarnClientIsOffline = false
	} else {
		t.logger.Debug(msg)
	}
}

func (t *OnlineStateTracker) clearOnlineStateTimer() {
	if t.onlineStateTimer != nil {
		t.onlineStateTimer.Cancel()
		t.onlineStateTimer = nil
	}
}

func errString(err error) string {
	if err == nil {
		return "stream closed"
	}
	return err.Error()
}
