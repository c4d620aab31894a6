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
	"github.com/rs/xid"

	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote"
)

// ListenOptions configures which snapshots a listener receives.
type ListenOptions struct {
	// IncludeMetadataChanges raises snapshots in which only the pending
	// writes or the sync state changed.
	IncludeMetadataChanges bool

	// WaitForSyncWhenOnline holds back the first snapshot until it is in
	// sync with the backend, unless the client is offline.
	WaitForSyncWhenOnline bool
}

// QueryListener filters the snapshots of a query for one listener.
type QueryListener struct {
	id      string
	query   *query.Query
	options ListenOptions

	onNext  func(*ViewSnapshot)
	onError func(error)

	raisedInitialEvent bool
	snapshot           *ViewSnapshot
	onlineState        remote.OnlineState
}

// NewQueryListener creates a listener of q calling onNext with every
// snapshot raised and onError once if listening fails.
func NewQueryListener(
	q *query.Query,
	options ListenOptions,
	onNext func(*ViewSnapshot),
	onError func(error),
) *QueryListener {
	return &QueryListener{
		id:          xid.New().String(),
		query:       q,
		options:     options,
		onNext:      onNext,
		onError:     onError,
		onlineState: remote.OnlineStateUnknown,
	}
}

// ID returns the id of the listener.
func (l *QueryListener) ID() string {
	return l.id
}

// Query returns the query listened to.
func (l *QueryListener) Query() *query.Query {
	return l.query
}

// OnViewSnapshot handles a new snapshot of the query and returns whether
// it was raised.
func (l *QueryListener) OnViewSnapshot(snap *ViewSnapshot) bool {
	if !l.options.IncludeMetadataChanges {
		snap = snap.withoutMetadataChanges()
	}

	raised := false
	if !l.raisedInitialEvent {
		if l.shouldRaiseInitialEvent(snap, l.onlineState) {
			l.raiseInitialEvent(snap)
			raised = true
		}
	} else if l.shouldRaiseEvent(snap) {
		l.onNext(snap)
		raised = true
	}

	l.snapshot = snap
	return raised
}

// OnError reports that listening failed.
func (l *QueryListener) OnError(err error) {
	if l.onError != nil {
		l.onError(err)
	}
}

// ApplyOnlineStateChange raises the first snapshot if the new state lets
// it through, and returns whether it did.
func (l *QueryListener) ApplyOnlineStateChange(state remote.OnlineState) bool {
	l.onlineState = state
	if l.snapshot != nil && !l.raisedInitialEvent && l.shouldRaiseInitialEvent(l.snapshot, state) {
		l.raiseInitialEvent(l.snapshot)
		return true
	}
	return false
}

func (l *QueryListener) shouldRaiseInitialEvent(snap *ViewSnapshot, state remote.OnlineState) bool {
	if !snap.FromCache {
		return true
	}

	maybeOnline := state != remote.OnlineStateOffline
	if l.options.WaitForSyncWhenOnline && maybeOnline {
		return false
	}

	// An empty result from the cache is only worth raising when the
	// backend cannot answer.
	return !snap.Documents.IsEmpty() || snap.HasCachedResults || state == remote.OnlineStateOffline
}

func (l *QueryListener) shouldRaiseEvent(snap *ViewSnapshot) bool {
	if len(snap.DocChanges) > 0 {
		return true
	}

	pendingWritesChanged := l.snapshot != nil && l.snapshot.HasPendingWrites() != snap.HasPendingWrites()
	if snap.SyncStateChanged || pendingWritesChanged {
		return l.options.IncludeMetadataChanges
	}
	return false
}

func (l *QueryListener) raiseInitialEvent(snap *ViewSnapshot) {
	l.raisedInitialEvent = true
	l.onNext(newInitialSnapshot(
		snap.Query,
		snap.Documents,
		snap.MutatedKeys,
		snap.FromCache,
		!l.options.IncludeMetadataChanges,
		snap.HasCachedResults,
	))
}
