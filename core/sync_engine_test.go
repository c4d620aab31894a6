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

package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/core"
	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/local"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/persistence/memory"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/errors"
	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote"
)

var (
	alice = credentials.User{UID: "alice"}
	bob   = credentials.User{UID: "bob"}
	rooms = key.ParsePath("rooms")
)

type fakeRemoteStore struct {
	listens    map[int]*persistence.TargetData
	unlistened []int
	fills      int
}

func (r *fakeRemoteStore) Listen(_ context.Context, data *persistence.TargetData) {
	r.listens[data.TargetID] = data
}

func (r *fakeRemoteStore) Unlisten(_ context.Context, targetID int) {
	delete(r.listens, targetID)
	r.unlistened = append(r.unlistened, targetID)
}

func (r *fakeRemoteStore) FillWritePipeline(context.Context) error {
	r.fills++
	return nil
}

type subscription struct {
	listener  *core.QueryListener
	snapshots []*core.ViewSnapshot
	errs      []error
}

func (s *subscription) last(t *testing.T) *core.ViewSnapshot {
	require.NotEmpty(t, s.snapshots)
	return s.snapshots[len(s.snapshots)-1]
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *local.Store
	remote *fakeRemoteStore
	engine *core.SyncEngine
	events *core.EventManager
}

func newHarness(t *testing.T, opts ...core.SyncEngineOption) *harness {
	ctx := context.Background()
	p, err := memory.New(key.NewDatabaseID("p1", ""))
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))

	store := local.NewStore(p, alice)
	require.NoError(t, store.Start(ctx))

	rs := &fakeRemoteStore{listens: make(map[int]*persistence.TargetData)}
	engine := core.NewSyncEngine(store, rs, alice, opts...)
	events := core.NewEventManager(engine)
	engine.SetListener(events)

	return &harness{t: t, ctx: ctx, store: store, remote: rs, engine: engine, events: events}
}

func (h *harness) listen(q *query.Query, options core.ListenOptions) *subscription {
	s := &subscription{}
	s.listener = core.NewQueryListener(q, options, func(snap *core.ViewSnapshot) {
		s.snapshots = append(s.snapshots, snap)
	}, func(err error) {
		s.errs = append(s.errs, err)
	})
	require.NoError(h.t, h.events.Listen(h.ctx, s.listener))
	return s
}

func object(t *testing.T, data map[string]any) value.ObjectValue {
	obj, err := value.ObjectFrom(data)
	require.NoError(t, err)
	return obj
}

func (h *harness) set(path string, data map[string]any, callback func(error)) {
	m := mutation.NewSet(key.MustParse(path), object(h.t, data), mutation.NoPrecondition)
	require.NoError(h.t, h.engine.Write(h.ctx, []mutation.Mutation{m}, callback))
}

// ack acknowledges the first pending batch at version.
func (h *harness) ack(version int64) {
	batch, err := h.store.NextMutationBatch(h.ctx, mutation.UnknownBatchID)
	require.NoError(h.t, err)
	require.NotNil(h.t, batch)

	v := time.VersionOf(version, 0)
	results := make([]mutation.Result, len(batch.Mutations))
	for i := range results {
		results[i] = mutation.Result{Version: v}
	}
	require.NoError(h.t, h.engine.ApplySuccessfulWrite(h.ctx, &mutation.BatchResult{
		Batch:           batch,
		CommitVersion:   v,
		MutationResults: results,
		StreamToken:     []byte("stream"),
	}))
}

func found(t *testing.T, path string, version int64, data map[string]any) *document.MutableDocument {
	return document.NewFoundDocument(key.MustParse(path), time.VersionOf(version, 0), object(t, data))
}

// event creates a remote event at version in which the target is current,
// adding the found docs and removing the keys of removed.
func event(targetID int, version int64, docs []*document.MutableDocument, removed ...string) *remote.RemoteEvent {
	v := time.VersionOf(version, 0)
	e := remote.NewRemoteEvent(v)
	change := remote.NewTargetChange([]byte("token"), true)
	for _, d := range docs {
		e.DocumentUpdates.Set(d.SetReadTime(v))
		if d.IsFoundDocument() {
			change.AddedDocuments.Add(d.Key())
		}
	}
	for _, path := range removed {
		change.RemovedDocuments.Add(key.MustParse(path))
	}
	e.TargetChanges[targetID] = change
	return e
}

func changesOf(snap *core.ViewSnapshot) []string {
	var changes []string
	for _, change := range snap.DocChanges {
		changes = append(changes, change.Type.String()+" "+change.Document.Key().String())
	}
	return changes
}

func TestSyncEngineWrites(t *testing.T) {
	t.Run("offline write shows in query test", func(t *testing.T) {
		h := newHarness(t)
		h.set("rooms/a", map[string]any{"n": 1}, nil)
		assert.Equal(t, 1, h.remote.fills)

		s := h.listen(query.NewQuery(rooms), core.ListenOptions{})
		snap := s.last(t)
		assert.Equal(t, []string{"added rooms/a"}, changesOf(snap))
		assert.True(t, snap.HasPendingWrites())
		assert.True(t, snap.FromCache)

		data, ok := h.remote.listens[2]
		require.True(t, ok)
		assert.Equal(t, persistence.PurposeListen, data.Purpose)
	})

	t.Run("acknowledged write round trip test", func(t *testing.T) {
		h := newHarness(t)
		s := h.listen(query.NewQuery(rooms), core.ListenOptions{IncludeMetadataChanges: true})

		var acked []error
		h.set("rooms/a", map[string]any{"n": 1}, func(err error) { acked = append(acked, err) })
		assert.True(t, s.last(t).HasPendingWrites())

		h.ack(1)
		assert.Equal(t, []error{nil}, acked)

		doc, err := h.store.ReadDocument(h.ctx, key.MustParse("rooms/a"))
		require.NoError(t, err)
		assert.True(t, doc.IsFoundDocument())
		assert.Equal(t, time.VersionOf(1, 0), doc.Version())
		assert.Equal(t, document.StateSynced, doc.State())

		// An acknowledged set fully determines the document.
		snap := s.last(t)
		assert.Equal(t, []string{"metadata rooms/a"}, changesOf(snap))
		assert.False(t, snap.HasPendingWrites())
		assert.True(t, snap.FromCache)

		// The same version from the backend only marks the view current.
		require.NoError(t, h.engine.ApplyRemoteEvent(h.ctx, event(2, 1, []*document.MutableDocument{
			found(t, "rooms/a", 1, map[string]any{"n": 1}),
		})))
		snap = s.last(t)
		assert.Empty(t, changesOf(snap))
		assert.True(t, snap.SyncStateChanged)
		assert.False(t, snap.HasPendingWrites())
		assert.False(t, snap.FromCache)
	})

	t.Run("rejected write reverts test", func(t *testing.T) {
		h := newHarness(t)
		s := h.listen(query.NewQuery(rooms), core.ListenOptions{})

		var rejected error
		h.set("rooms/a", map[string]any{"n": 1}, func(err error) { rejected = err })
		h.set("rooms/b", map[string]any{"n": 2}, nil)
		assert.Equal(t, 2, s.last(t).Documents.Len())

		batch, err := h.store.NextMutationBatch(h.ctx, mutation.UnknownBatchID)
		require.NoError(t, err)
		cause := errors.PermissionDenied("missing permission")
		require.NoError(t, h.engine.RejectFailedWrite(h.ctx, batch.ID, cause))

		assert.True(t, errors.IsStatus(rejected, errors.ErrCodePermissionDenied))
		snap := s.last(t)
		assert.Equal(t, []string{"removed rooms/a"}, changesOf(snap))
		assert.Equal(t, 1, snap.Documents.Len())
		assert.True(t, snap.HasPendingWrites())
	})

	t.Run("pending writes callback test", func(t *testing.T) {
		h := newHarness(t)

		var calls []error
		callback := func(err error) { calls = append(calls, err) }
		require.NoError(t, h.engine.RegisterPendingWritesCallback(h.ctx, callback))
		assert.Equal(t, []error{nil}, calls)

		calls = nil
		h.set("rooms/a", map[string]any{"n": 1}, nil)
		h.set("rooms/b", map[string]any{"n": 2}, nil)
		require.NoError(t, h.engine.RegisterPendingWritesCallback(h.ctx, callback))

		h.ack(1)
		assert.Empty(t, calls)
		h.ack(2)
		assert.Equal(t, []error{nil}, calls)
	})

	t.Run("user change test", func(t *testing.T) {
		h := newHarness(t)
		s := h.listen(query.NewQuery(rooms), core.ListenOptions{})
		h.set("rooms/a", map[string]any{"n": 1}, nil)

		var calls []error
		require.NoError(t, h.engine.RegisterPendingWritesCallback(h.ctx, func(err error) {
			calls = append(calls, err)
		}))

		require.NoError(t, h.engine.HandleCredentialChange(h.ctx, bob))
		require.Len(t, calls, 1)
		assert.ErrorIs(t, calls[0], core.ErrUserChanged)
		assert.Equal(t, []string{"removed rooms/a"}, changesOf(s.last(t)))

		// Back to alice, whose write is still queued.
		require.NoError(t, h.engine.HandleCredentialChange(h.ctx, alice))
		assert.Equal(t, []string{"added rooms/a"}, changesOf(s.last(t)))
	})
}

func TestSyncEngineListen(t *testing.T) {
	t.Run("remote event raises snapshot test", func(t *testing.T) {
		h := newHarness(t)
		s := h.listen(query.NewQuery(rooms), core.ListenOptions{})
		assert.Empty(t, s.snapshots)

		require.NoError(t, h.engine.ApplyRemoteEvent(h.ctx, event(2, 1, []*document.MutableDocument{
			found(t, "rooms/a", 1, map[string]any{"n": 1}),
			found(t, "rooms/b", 1, map[string]any{"n": 2}),
		})))
		snap := s.last(t)
		assert.Equal(t, []string{"added rooms/a", "added rooms/b"}, changesOf(snap))
		assert.False(t, snap.FromCache)
		assert.False(t, snap.HasPendingWrites())
	})

	t.Run("snapshots never go back test", func(t *testing.T) {
		h := newHarness(t)
		h.listen(query.NewQuery(rooms), core.ListenOptions{})

		require.NoError(t, h.engine.ApplyRemoteEvent(h.ctx, event(2, 5, nil)))
		err := h.engine.ApplyRemoteEvent(h.ctx, event(2, 4, nil))
		assert.ErrorIs(t, err, local.ErrSnapshotReverted)
	})

	t.Run("listeners of one query share a target test", func(t *testing.T) {
		h := newHarness(t)
		q := query.NewQuery(rooms)
		first := h.listen(q, core.ListenOptions{})
		second := h.listen(q, core.ListenOptions{})
		assert.Len(t, h.remote.listens, 1)

		require.NoError(t, h.events.Unlisten(h.ctx, first.listener))
		assert.Empty(t, h.remote.unlistened)
		require.NoError(t, h.events.Unlisten(h.ctx, second.listener))
		assert.Equal(t, []int{2}, h.remote.unlistened)

		h.listen(q, core.ListenOptions{})
		assert.Len(t, h.remote.listens, 1)
	})

	t.Run("rejected listen reports error test", func(t *testing.T) {
		h := newHarness(t)
		s := h.listen(query.NewQuery(rooms), core.ListenOptions{})

		cause := errors.PermissionDenied("missing permission")
		require.NoError(t, h.engine.RejectListen(h.ctx, 2, cause))
		require.Len(t, s.errs, 1)
		assert.ErrorIs(t, s.errs[0], cause)
		assert.Equal(t, 0, h.engine.GetRemoteKeysForTarget(2).Len())
	})

	t.Run("online state change test", func(t *testing.T) {
		h := newHarness(t)
		s := h.listen(query.NewQuery(rooms), core.ListenOptions{})
		assert.Empty(t, s.snapshots)

		h.engine.ApplyOnlineStateChange(h.ctx, remote.OnlineStateOffline)
		require.Len(t, s.snapshots, 1)
		assert.True(t, s.last(t).FromCache)
	})
}

func TestSyncEngineLimbo(t *testing.T) {
	docs := func(t *testing.T, paths ...string) []*document.MutableDocument {
		var result []*document.MutableDocument
		for i, path := range paths {
			result = append(result, found(t, path, 1, map[string]any{"n": i}))
		}
		return result
	}

	t.Run("limbo document resolved as deleted test", func(t *testing.T) {
		h := newHarness(t)
		s := h.listen(query.NewQuery(rooms), core.ListenOptions{IncludeMetadataChanges: true})
		require.NoError(t, h.engine.ApplyRemoteEvent(h.ctx, event(2, 1, docs(t, "rooms/a", "rooms/b"))))

		// The backend stopped reporting b without deleting it.
		require.NoError(t, h.engine.ApplyRemoteEvent(h.ctx, event(2, 2, nil, "rooms/b")))
		assert.True(t, s.last(t).FromCache)

		limbo := h.engine.ActiveLimboDocumentResolutions()
		require.Len(t, limbo, 1)
		assert.Equal(t, key.MustParse("rooms/b"), limbo[1])
		data, ok := h.remote.listens[1]
		require.True(t, ok)
		assert.Equal(t, persistence.PurposeLimboResolution, data.Purpose)
		assert.True(t, data.Target.IsDocumentTarget())

		// The limbo target reports no document.
		resolved := remote.NewRemoteEvent(time.VersionOf(3, 0))
		resolved.TargetChanges[1] = remote.NewTargetChange([]byte("limbo"), true)
		resolved.DocumentUpdates.Set(document.NewNoDocument(key.MustParse("rooms/b"), time.VersionOf(3, 0)).
			SetReadTime(time.VersionOf(3, 0)))
		resolved.ResolvedLimboDocuments.Add(key.MustParse("rooms/b"))
		require.NoError(t, h.engine.ApplyRemoteEvent(h.ctx, resolved))

		snap := s.last(t)
		assert.Equal(t, []string{"removed rooms/b"}, changesOf(snap))
		assert.False(t, snap.FromCache)
		assert.Empty(t, h.engine.ActiveLimboDocumentResolutions())
		assert.Equal(t, []int{1}, h.remote.unlistened)

		doc, err := h.store.ReadDocument(h.ctx, key.MustParse("rooms/b"))
		require.NoError(t, err)
		assert.False(t, doc.IsFoundDocument())
	})

	t.Run("limbo resolutions are capped test", func(t *testing.T) {
		h := newHarness(t, core.WithMaxConcurrentLimboResolutions(1))
		s := h.listen(query.NewQuery(rooms), core.ListenOptions{})
		require.NoError(t, h.engine.ApplyRemoteEvent(h.ctx, event(2, 1, docs(t, "rooms/a", "rooms/b", "rooms/c"))))
		require.NoError(t, h.engine.ApplyRemoteEvent(h.ctx, event(2, 2, nil, "rooms/a", "rooms/b", "rooms/c")))

		assert.Equal(t, map[int]key.Key{1: key.MustParse("rooms/a")}, h.engine.ActiveLimboDocumentResolutions())
		assert.Equal(t, []key.Key{key.MustParse("rooms/b"), key.MustParse("rooms/c")},
			h.engine.EnqueuedLimboDocumentResolutions())

		// A rejected resolution means the document cannot be read.
		require.NoError(t, h.engine.RejectListen(h.ctx, 1, errors.PermissionDenied("gone")))
		assert.Equal(t, []string{"removed rooms/a"}, changesOf(s.last(t)))
		assert.Empty(t, s.errs)

		assert.Equal(t, map[int]key.Key{3: key.MustParse("rooms/b")}, h.engine.ActiveLimboDocumentResolutions())
		assert.Equal(t, []key.Key{key.MustParse("rooms/c")}, h.engine.EnqueuedLimboDocumentResolutions())
		assert.Equal(t, 0, h.engine.GetRemoteKeysForTarget(3).Len())
	})

	t.Run("unlisten stops limbo resolution test", func(t *testing.T) {
		h := newHarness(t, core.WithMaxConcurrentLimboResolutions(1))
		s := h.listen(query.NewQuery(rooms), core.ListenOptions{})
		require.NoError(t, h.engine.ApplyRemoteEvent(h.ctx, event(2, 1, docs(t, "rooms/a", "rooms/b"))))
		require.NoError(t, h.engine.ApplyRemoteEvent(h.ctx, event(2, 2, nil, "rooms/a", "rooms/b")))
		require.Len(t, h.engine.ActiveLimboDocumentResolutions(), 1)

		require.NoError(t, h.events.Unlisten(h.ctx, s.listener))
		assert.Empty(t, h.engine.ActiveLimboDocumentResolutions())
		assert.Empty(t, h.engine.EnqueuedLimboDocumentResolutions())
		// b got the slot of a before it was released too.
		assert.Equal(t, []int{2, 1, 3}, h.remote.unlistened)
	})
}
