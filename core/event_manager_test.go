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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote"
)

type fakeQueryEngine struct {
	listened   []string
	unlistened []string
	err        error

	// onListen raises the first snapshot the way the sync engine does.
	onListen func(q *query.Query)
}

func (e *fakeQueryEngine) Listen(_ context.Context, q *query.Query) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	e.listened = append(e.listened, q.CanonicalID())
	if e.onListen != nil {
		e.onListen(q)
	}
	return 2, nil
}

func (e *fakeQueryEngine) Unlisten(_ context.Context, q *query.Query) error {
	e.unlistened = append(e.unlistened, q.CanonicalID())
	return nil
}

type recorder struct {
	snapshots []*ViewSnapshot
	errs      []error
}

func (r *recorder) listener(q *query.Query, options ListenOptions) *QueryListener {
	return NewQueryListener(q, options, func(snap *ViewSnapshot) {
		r.snapshots = append(r.snapshots, snap)
	}, func(err error) {
		r.errs = append(r.errs, err)
	})
}

func snapshotOf(
	q *query.Query,
	fromCache bool,
	changes []DocumentChange,
	mutated *document.KeySet,
	docs ...*document.MutableDocument,
) *ViewSnapshot {
	set := document.NewDocumentSet(q.Comparator())
	for _, d := range docs {
		set.Add(d)
	}
	return &ViewSnapshot{
		Query:            q,
		Documents:        set,
		OldDocuments:     document.NewDocumentSet(q.Comparator()),
		DocChanges:       changes,
		FromCache:        fromCache,
		MutatedKeys:      mutated,
		SyncStateChanged: true,
	}
}

func TestQueryListener(t *testing.T) {
	q := query.NewQuery(rooms)
	a := doc(t, "rooms/a", 1, map[string]any{"n": 1})

	t.Run("empty cache waits for the backend test", func(t *testing.T) {
		r := &recorder{}
		l := r.listener(q, ListenOptions{})
		l.ApplyOnlineStateChange(remote.OnlineStateUnknown)

		assert.False(t, l.OnViewSnapshot(snapshotOf(q, true, nil, document.NewKeySet())))
		assert.Empty(t, r.snapshots)

		assert.True(t, l.ApplyOnlineStateChange(remote.OnlineStateOffline))
		require.Len(t, r.snapshots, 1)
		assert.True(t, r.snapshots[0].FromCache)
		assert.Equal(t, 0, r.snapshots[0].Documents.Len())
	})

	t.Run("cached documents are raised right away test", func(t *testing.T) {
		r := &recorder{}
		l := r.listener(q, ListenOptions{})
		added := []DocumentChange{{Type: ChangeAdded, Document: a}}

		assert.True(t, l.OnViewSnapshot(snapshotOf(q, true, added, document.NewKeySet(), a)))
		require.Len(t, r.snapshots, 1)
		assert.Equal(t, added, r.snapshots[0].DocChanges)
		assert.True(t, r.snapshots[0].ExcludesMetadataChanges)
	})

	t.Run("wait for sync when online test", func(t *testing.T) {
		r := &recorder{}
		l := r.listener(q, ListenOptions{WaitForSyncWhenOnline: true})
		l.ApplyOnlineStateChange(remote.OnlineStateOnline)
		added := []DocumentChange{{Type: ChangeAdded, Document: a}}

		assert.False(t, l.OnViewSnapshot(snapshotOf(q, true, added, document.NewKeySet(), a)))
		assert.True(t, l.OnViewSnapshot(snapshotOf(q, false, nil, document.NewKeySet(), a)))
		require.Len(t, r.snapshots, 1)
		assert.False(t, r.snapshots[0].FromCache)
		assert.Len(t, r.snapshots[0].DocChanges, 1)
	})

	t.Run("metadata changes test", func(t *testing.T) {
		metadata := []DocumentChange{{Type: ChangeMetadata, Document: a}}

		for _, include := range []bool{false, true} {
			r := &recorder{}
			l := r.listener(q, ListenOptions{IncludeMetadataChanges: include})
			require.True(t, l.OnViewSnapshot(snapshotOf(q, false, nil, document.NewKeySet(a.Key()), a)))

			snap := snapshotOf(q, false, metadata, document.NewKeySet(), a)
			snap.SyncStateChanged = false
			assert.Equal(t, include, l.OnViewSnapshot(snap))
			if include {
				require.Len(t, r.snapshots, 2)
				assert.Equal(t, metadata, r.snapshots[1].DocChanges)
			} else {
				assert.Len(t, r.snapshots, 1)
			}
		}
	})
}

func TestEventManager(t *testing.T) {
	q := query.NewQuery(rooms)
	a := doc(t, "rooms/a", 1, map[string]any{"n": 1})
	added := []DocumentChange{{Type: ChangeAdded, Document: a}}

	t.Run("listeners share a query test", func(t *testing.T) {
		engine := &fakeQueryEngine{}
		m := NewEventManager(engine)
		engine.onListen = func(q *query.Query) {
			m.OnWatchChange([]*ViewSnapshot{snapshotOf(q, false, added, document.NewKeySet(), a)})
		}

		inSync := 0
		m.AddSnapshotsInSyncListener(func() { inSync++ })
		assert.Equal(t, 1, inSync)

		first, second := &recorder{}, &recorder{}
		l1 := first.listener(q, ListenOptions{})
		l2 := second.listener(q, ListenOptions{})
		require.NoError(t, m.Listen(context.Background(), l1))
		require.NoError(t, m.Listen(context.Background(), l2))

		assert.Equal(t, []string{q.CanonicalID()}, engine.listened)
		assert.Len(t, first.snapshots, 1)
		assert.Len(t, second.snapshots, 1)
		assert.Equal(t, 3, inSync)

		require.NoError(t, m.Unlisten(context.Background(), l1))
		assert.Empty(t, engine.unlistened)
		require.NoError(t, m.Unlisten(context.Background(), l2))
		assert.Equal(t, []string{q.CanonicalID()}, engine.unlistened)
	})

	t.Run("listen error test", func(t *testing.T) {
		engine := &fakeQueryEngine{err: errors.New("no target")}
		m := NewEventManager(engine)
		r := &recorder{}

		assert.Error(t, m.Listen(context.Background(), r.listener(q, ListenOptions{})))
		assert.Len(t, r.errs, 1)
		assert.Empty(t, m.queries)
	})

	t.Run("watch error removes listeners test", func(t *testing.T) {
		engine := &fakeQueryEngine{}
		m := NewEventManager(engine)
		r := &recorder{}
		require.NoError(t, m.Listen(context.Background(), r.listener(q, ListenOptions{})))

		m.OnWatchError(q, errors.New("permission denied"))
		assert.Len(t, r.errs, 1)

		// Snapshots of a query nobody listens to are dropped.
		m.OnWatchChange([]*ViewSnapshot{snapshotOf(q, false, added, document.NewKeySet(), a)})
		assert.Empty(t, r.snapshots)
	})

	t.Run("online state change raises cached snapshot test", func(t *testing.T) {
		engine := &fakeQueryEngine{}
		m := NewEventManager(engine)
		engine.onListen = func(q *query.Query) {
			m.OnWatchChange([]*ViewSnapshot{snapshotOf(q, true, nil, document.NewKeySet())})
		}
		r := &recorder{}
		require.NoError(t, m.Listen(context.Background(), r.listener(q, ListenOptions{})))
		assert.Empty(t, r.snapshots)

		m.OnOnlineStateChange(remote.OnlineStateOffline)
		require.Len(t, r.snapshots, 1)
		assert.True(t, r.snapshots[0].FromCache)
	})
}
