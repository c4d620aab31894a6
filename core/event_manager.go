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

package core

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote"
)

// QueryEngine is what the EventManager needs from the sync engine: one
// target per query, no matter how many listeners share it.
type QueryEngine interface {
	Listen(ctx context.Context, q *query.Query) (int, error)
	Unlisten(ctx context.Context, q *query.Query) error
}

// SyncEngineListener receives what the sync engine raises.
type SyncEngineListener interface {
	OnWatchChange(snapshots []*ViewSnapshot)
	OnWatchError(q *query.Query, err error)
	OnOnlineStateChange(state remote.OnlineState)
}

type queryListeners struct {
	snapshot  *ViewSnapshot
	listeners []*QueryListener
}

// EventManager fans the snapshots of queries out to their listeners. It
// runs on the queue.
type EventManager struct {
	engine      QueryEngine
	queries     map[string]*queryListeners
	onlineState remote.OnlineState

	snapshotsInSyncListeners map[string]func()
}

// NewEventManager creates an event manager listening to queries through
// engine.
func NewEventManager(engine QueryEngine) *EventManager {
	return &EventManager{
		engine:                   engine,
		queries:                  make(map[string]*queryListeners),
		onlineState:              remote.OnlineStateUnknown,
		snapshotsInSyncListeners: make(map[string]func()),
	}
}

// Listen adds a listener. The query is listened to when it gets its first
// listener; later listeners receive the last snapshot right away.
func (m *EventManager) Listen(ctx context.Context, l *QueryListener) error {
	id := l.Query().CanonicalID()
	info, ok := m.queries[id]
	if !ok {
		info = &queryListeners{}
		m.queries[id] = info
	}
	info.listeners = append(info.listeners, l)
	l.ApplyOnlineStateChange(m.onlineState)

	if !ok {
		// The first snapshot comes back through OnWatchChange.
		if _, err := m.engine.Listen(ctx, l.Query()); err != nil {
			delete(m.queries, id)
			err = fmt.Errorf("listen %s: %w", l.Query(), err)
			l.OnError(err)
			return err
		}
		return nil
	}

	if info.snapshot != nil && l.OnViewSnapshot(info.snapshot) {
		m.raiseSnapshotsInSync()
	}
	return nil
}

// Unlisten removes a listener. The query is unlistened to when it loses
// its last listener.
func (m *EventManager) Unlisten(ctx context.Context, l *QueryListener) error {
	id := l.Query().CanonicalID()
	info, ok := m.queries[id]
	if !ok {
		return nil
	}

	for i, listener := range info.listeners {
		if listener == l {
			info.listeners = append(info.listeners[:i], info.listeners[i+1:]...)
			break
		}
	}
	if len(info.listeners) > 0 {
		return nil
	}

	delete(m.queries, id)
	return m.engine.Unlisten(ctx, l.Query())
}

// OnWatchChange implements SyncEngineListener.
func (m *EventManager) OnWatchChange(snapshots []*ViewSnapshot) {
	raised := false
	for _, snap := range snapshots {
		info, ok := m.queries[snap.Query.CanonicalID()]
		if !ok {
			continue
		}
		for _, l := range info.listeners {
			if l.OnViewSnapshot(snap) {
				raised = true
			}
		}
		info.snapshot = snap
	}
	if raised {
		m.raiseSnapshotsInSync()
	}
}

// OnWatchError implements SyncEngineListener. Every listener of q gets the
// error and is removed.
func (m *EventManager) OnWatchError(q *query.Query, err error) {
	id := q.CanonicalID()
	info, ok := m.queries[id]
	if !ok {
		return
	}
	for _, l := range info.listeners {
		l.OnError(err)
	}
	delete(m.queries, id)
}

// OnOnlineStateChange implements SyncEngineListener.
func (m *EventManager) OnOnlineStateChange(state remote.OnlineState) {
	m.onlineState = state
	raised := false
	for _, info := range m.queries {
		for _, l := range info.listeners {
			if l.ApplyOnlineStateChange(state) {
				raised = true
			}
		}
	}
	if raised {
		m.raiseSnapshotsInSync()
	}
}

// AddSnapshotsInSyncListener adds fn, called every time a set of snapshots
// raised together was delivered, and right away. It returns the id that
// removes it.
func (m *EventManager) AddSnapshotsInSyncListener(fn func()) string {
	id := xid.New().String()
	m.snapshotsInSyncListeners[id] = fn
	fn()
	return id
}

// RemoveSnapshotsInSyncListener removes the listener with the given id.
func (m *EventManager) RemoveSnapshotsInSyncListener(id string) {
	delete(m.snapshotsInSyncListeners, id)
}

func (m *EventManager) raiseSnapshotsInSync() {
	for _, fn := range m.snapshotsInSyncListeners {
		fn()
	}
}
