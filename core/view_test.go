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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote"
)

var rooms = key.ParsePath("rooms")

func doc(t *testing.T, path string, version int64, data map[string]any) *document.MutableDocument {
	obj, err := value.ObjectFrom(data)
	require.NoError(t, err)
	return document.NewFoundDocument(key.MustParse(path), time.VersionOf(version, 0), obj)
}

func docMap(docs ...*document.MutableDocument) *document.DocumentMap {
	m := document.NewDocumentMap()
	for _, d := range docs {
		m.Set(d)
	}
	return m
}

func keysOf(changes []DocumentChange) []string {
	var keys []string
	for _, change := range changes {
		keys = append(keys, change.Type.String()+" "+change.Document.Key().String())
	}
	return keys
}

func TestTargetIDGenerator(t *testing.T) {
	t.Run("limbo ids are odd test", func(t *testing.T) {
		g := NewLimboTargetIDGenerator()
		assert.Equal(t, 1, g.Next())
		assert.Equal(t, 3, g.Next())
		assert.Equal(t, 5, g.Next())
	})

	t.Run("seek test", func(t *testing.T) {
		g := NewTargetIDGenerator(localStoreGeneratorID, 0)
		assert.Equal(t, 2, g.Next())

		g = NewTargetIDGenerator(syncEngineGeneratorID, 6)
		assert.Equal(t, 7, g.Next())

		g = NewTargetIDGenerator(syncEngineGeneratorID, 7)
		assert.Equal(t, 9, g.Next())
	})
}

func TestView(t *testing.T) {
	a := doc(t, "rooms/a", 1, map[string]any{"n": 1})
	b := doc(t, "rooms/b", 1, map[string]any{"n": 2})
	c := doc(t, "rooms/c", 1, map[string]any{"n": 3})

	t.Run("added documents test", func(t *testing.T) {
		view := NewView(query.NewQuery(rooms), document.NewKeySet(), false)
		change := view.ApplyChanges(view.ComputeDocChanges(docMap(b, a), nil), true, nil, false)

		snap := change.Snapshot
		require.NotNil(t, snap)
		assert.Equal(t, []string{"added rooms/a", "added rooms/b"}, keysOf(snap.DocChanges))
		assert.True(t, snap.FromCache)
		assert.True(t, snap.SyncStateChanged)
		assert.False(t, snap.HasPendingWrites())
		assert.Empty(t, change.LimboChanges)

		// Nothing changed, so nothing is raised.
		again := view.ApplyChanges(view.ComputeDocChanges(docMap(a), nil), true, nil, false)
		assert.Nil(t, again.Snapshot)
	})

	t.Run("documents of other collections are ignored test", func(t *testing.T) {
		view := NewView(query.NewQuery(rooms), document.NewKeySet(), false)
		other := doc(t, "users/a", 1, map[string]any{"n": 1})
		change := view.ApplyChanges(view.ComputeDocChanges(docMap(other), nil), true, nil, false)
		require.NotNil(t, change.Snapshot)
		assert.Empty(t, change.Snapshot.DocChanges)
		assert.Equal(t, 0, change.Snapshot.Documents.Len())
	})

	t.Run("current target is synced test", func(t *testing.T) {
		view := NewView(query.NewQuery(rooms), document.NewKeySet(), false)
		view.ApplyChanges(view.ComputeDocChanges(docMap(a), nil), true, nil, false)

		targetChange := remote.NewTargetChange([]byte("token"), true)
		targetChange.AddedDocuments.Add(a.Key())
		change := view.ApplyChanges(view.ComputeDocChanges(document.NewDocumentMap(), nil), true, targetChange, false)

		snap := change.Snapshot
		require.NotNil(t, snap)
		assert.False(t, snap.FromCache)
		assert.True(t, snap.SyncStateChanged)
		assert.True(t, snap.HasCachedResults)
		assert.Empty(t, snap.DocChanges)

		offline := view.ApplyOnlineStateChange(remote.OnlineStateOffline)
		require.NotNil(t, offline.Snapshot)
		assert.True(t, offline.Snapshot.FromCache)
		assert.Nil(t, view.ApplyOnlineStateChange(remote.OnlineStateOffline).Snapshot)
	})

	t.Run("limbo documents test", func(t *testing.T) {
		view := NewView(query.NewQuery(rooms), document.NewKeySet(), false)

		targetChange := remote.NewTargetChange([]byte("token"), true)
		targetChange.AddedDocuments.Add(a.Key())
		change := view.ApplyChanges(view.ComputeDocChanges(docMap(a, b), nil), true, targetChange, false)
		assert.Equal(t, []LimboDocumentChange{{Type: LimboAdded, Key: b.Key()}}, change.LimboChanges)
		assert.True(t, change.Snapshot.FromCache)
		assert.True(t, view.LimboDocuments().Has(b.Key()))

		// A pending reset leaves limbo alone until the target is listened
		// to again.
		reset := view.ApplyChanges(view.ComputeDocChanges(document.NewDocumentMap(), nil), true, nil, true)
		assert.Empty(t, reset.LimboChanges)

		confirmed := remote.NewTargetChange([]byte("token"), true)
		confirmed.AddedDocuments.Add(b.Key())
		change = view.ApplyChanges(view.ComputeDocChanges(document.NewDocumentMap(), nil), true, confirmed, false)
		assert.Equal(t, []LimboDocumentChange{{Type: LimboRemoved, Key: b.Key()}}, change.LimboChanges)
		require.NotNil(t, change.Snapshot)
		assert.False(t, change.Snapshot.FromCache)
	})

	t.Run("local writes are not in limbo test", func(t *testing.T) {
		view := NewView(query.NewQuery(rooms), document.NewKeySet(), false)
		written := document.NewFoundDocument(b.Key(), time.MinVersion, b.Data()).SetHasLocalMutations()

		change := view.ApplyChanges(
			view.ComputeDocChanges(docMap(written), nil),
			true,
			remote.NewTargetChange(nil, true),
			false,
		)
		assert.Empty(t, change.LimboChanges)
		assert.True(t, change.Snapshot.HasPendingWrites())
		assert.False(t, change.Snapshot.FromCache)
	})

	t.Run("limit refill test", func(t *testing.T) {
		q := query.NewQuery(rooms).LimitToFirst(2)
		view := NewView(q, document.NewKeySet(), false)
		change := view.ApplyChanges(view.ComputeDocChanges(docMap(a, b, c), nil), true, nil, false)
		assert.Equal(t, []string{"added rooms/a", "added rooms/b"}, keysOf(change.Snapshot.DocChanges))

		deleted := docMap(document.NewNoDocument(a.Key(), time.VersionOf(2, 0)))
		docChanges := view.ComputeDocChanges(deleted, nil)
		assert.True(t, docChanges.needsRefill)

		docChanges = view.ComputeDocChanges(docMap(b, c), docChanges)
		change = view.ApplyChanges(docChanges, true, nil, false)
		assert.Equal(t, []string{"removed rooms/a", "added rooms/c"}, keysOf(change.Snapshot.DocChanges))
		assert.Equal(t, 2, change.Snapshot.Documents.Len())
	})

	t.Run("limit to last keeps the tail test", func(t *testing.T) {
		q := query.NewQuery(rooms).LimitToLast(2)
		view := NewView(q, document.NewKeySet(), false)
		change := view.ApplyChanges(view.ComputeDocChanges(docMap(a, b, c), nil), true, nil, false)
		assert.Equal(t, []string{"added rooms/b", "added rooms/c"}, keysOf(change.Snapshot.DocChanges))
	})

	t.Run("metadata change test", func(t *testing.T) {
		view := NewView(query.NewQuery(rooms), document.NewKeySet(), false)
		written := document.NewFoundDocument(a.Key(), time.MinVersion, a.Data()).SetHasLocalMutations()
		change := view.ApplyChanges(view.ComputeDocChanges(docMap(written), nil), true, nil, false)
		assert.True(t, change.Snapshot.HasPendingWrites())

		change = view.ApplyChanges(view.ComputeDocChanges(docMap(a), nil), true, nil, false)
		require.NotNil(t, change.Snapshot)
		assert.Equal(t, []string{"metadata rooms/a"}, keysOf(change.Snapshot.DocChanges))
		assert.False(t, change.Snapshot.HasPendingWrites())
	})

	t.Run("acknowledged write waits for the backend test", func(t *testing.T) {
		view := NewView(query.NewQuery(rooms), document.NewKeySet(), false)
		written := document.NewFoundDocument(a.Key(), time.MinVersion, b.Data()).SetHasLocalMutations()
		view.ApplyChanges(view.ComputeDocChanges(docMap(written), nil), true, nil, false)

		committed := a.Clone().SetHasCommittedMutations()
		docChanges := view.ComputeDocChanges(docMap(committed), nil)
		assert.Empty(t, docChanges.changes.list())
	})
}

func TestDocumentChangeSet(t *testing.T) {
	a := doc(t, "rooms/a", 1, map[string]any{"n": 1})
	a2 := doc(t, "rooms/a", 2, map[string]any{"n": 2})

	tests := []struct {
		name   string
		first  ChangeType
		second ChangeType
		want   []string
	}{
		{"added then modified", ChangeAdded, ChangeModified, []string{"added rooms/a"}},
		{"added then removed", ChangeAdded, ChangeRemoved, nil},
		{"removed then added", ChangeRemoved, ChangeAdded, []string{"modified rooms/a"}},
		{"modified then removed", ChangeModified, ChangeRemoved, []string{"removed rooms/a"}},
		{"metadata then modified", ChangeMetadata, ChangeModified, []string{"modified rooms/a"}},
		{"modified then metadata", ChangeModified, ChangeMetadata, []string{"modified rooms/a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name+" test", func(t *testing.T) {
			set := newDocumentChangeSet()
			set.track(DocumentChange{Type: tt.first, Document: a})
			set.track(DocumentChange{Type: tt.second, Document: a2})
			assert.Equal(t, tt.want, keysOf(set.list()))
		})
	}

	t.Run("added twice test", func(t *testing.T) {
		set := newDocumentChangeSet()
		set.track(DocumentChange{Type: ChangeAdded, Document: a})
		assert.Panics(t, func() {
			set.track(DocumentChange{Type: ChangeAdded, Document: a2})
		})
	})
}
