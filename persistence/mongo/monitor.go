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

package mongo

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/event"
	"go.uber.org/zap"

	"github.com/yorkie-team/docsync/internal/logging"
)

// MonitorStats counts the commands a CommandMonitor flagged.
type MonitorStats struct {
	Slow   int64
	Failed int64
}

// CommandMonitor logs the commands the store sends to MongoDB, naming the
// collection each one targets, and counts slow and failed commands.
type CommandMonitor struct {
	logger    logging.Logger
	threshold time.Duration

	slow   atomic.Int64
	failed atomic.Int64
}

// NewCommandMonitor creates a monitor flagging commands slower than
// threshold. A zero threshold flags none.
func NewCommandMonitor(logger logging.Logger, threshold time.Duration) *CommandMonitor {
	return &CommandMonitor{logger: logger, threshold: threshold}
}

// Stats returns the counts of slow and failed commands so far.
func (m *CommandMonitor) Stats() MonitorStats {
	return MonitorStats{Slow: m.slow.Load(), Failed: m.failed.Load()}
}

// Event returns the driver hooks of the monitor.
func (m *CommandMonitor) Event() *event.CommandMonitor {
	return &event.CommandMonitor{
		Started:   m.started,
		Succeeded: m.succeeded,
		Failed:    m.failedCommand,
	}
}

func (m *CommandMonitor) started(_ context.Context, evt *event.CommandStartedEvent) {
	if !logging.Enabled(zap.DebugLevel) {
		return
	}

	collection, _ := evt.Command.Lookup(evt.CommandName).StringValueOK()
	m.logger.Debugf("STAR: %d(%s %s)", evt.RequestID, evt.CommandName, collection)
}

func (m *CommandMonitor) succeeded(_ context.Context, evt *event.CommandSucceededEvent) {
	duration := evt.Duration.Milliseconds()

	if m.threshold > 0 && evt.Duration > m.threshold {
		m.slow.Add(1)
		m.logger.Warnf("SLOW: %d(%s): %dms", evt.RequestID, evt.CommandName, duration)
		return
	}

	m.logger.Debugf("SUCC: %d(%s): %dms", evt.RequestID, evt.CommandName, duration)
}

func (m *CommandMonitor) failedCommand(_ context.Context, evt *event.CommandFailedEvent) {
	duration := evt.Duration.Milliseconds()

	// Commands of transactions canceled by Shutdown fail on purpose.
	if isCanceled(evt.Failure) {
		m.logger.Debugf("FAIL: %d(%s), %v: %dms", evt.RequestID, evt.CommandName, evt.Failure, duration)
		return
	}

	m.failed.Add(1)
	m.logger.Warnf("FAIL: %d(%s), %v: %dms", evt.RequestID, evt.CommandName, evt.Failure, duration)
}

func isCanceled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return strings.Contains(err.Error(), context.Canceled.Error())
}
