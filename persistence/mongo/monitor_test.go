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

package mongo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/event"

	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/persistence/mongo"
)

func finished(name string, d time.Duration) event.CommandFinishedEvent {
	return event.CommandFinishedEvent{CommandName: name, Duration: d, RequestID: 1}
}

func TestCommandMonitor(t *testing.T) {
	ctx := context.Background()

	t.Run("slow command test", func(t *testing.T) {
		m := mongo.NewCommandMonitor(logging.Nop(), 100*time.Millisecond)
		hooks := m.Event()

		command, err := bson.Marshal(bson.D{{Key: "find", Value: "remote_documents"}})
		assert.NoError(t, err)
		hooks.Started(ctx, &event.CommandStartedEvent{Command: command, CommandName: "find"})

		hooks.Succeeded(ctx, &event.CommandSucceededEvent{CommandFinishedEvent: finished("find", 10*time.Millisecond)})
		hooks.Succeeded(ctx, &event.CommandSucceededEvent{CommandFinishedEvent: finished("find", time.Second)})
		assert.Equal(t, mongo.MonitorStats{Slow: 1}, m.Stats())
	})

	t.Run("failed command test", func(t *testing.T) {
		m := mongo.NewCommandMonitor(logging.Nop(), 0)
		hooks := m.Event()

		hooks.Failed(ctx, &event.CommandFailedEvent{
			CommandFinishedEvent: finished("update", time.Millisecond),
			Failure:              fmt.Errorf("commit: %w", context.Canceled),
		})
		hooks.Failed(ctx, &event.CommandFailedEvent{
			CommandFinishedEvent: finished("update", time.Millisecond),
			Failure:              fmt.Errorf("connection reset"),
		})
		hooks.Succeeded(ctx, &event.CommandSucceededEvent{CommandFinishedEvent: finished("find", time.Hour)})
		assert.Equal(t, mongo.MonitorStats{Failed: 1}, m.Stats())
	})
}
