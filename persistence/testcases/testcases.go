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

// Package testcases contains testcases for persistence. It is used by
// persistence implementations to test their own implementations with the
// same testcases.
package testcases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/errors"
	"github.com/yorkie-team/docsync/pkg/query"
)

// Factory creates a started, empty storage using the given garbage
// collector, or the default one if it is nil.
type Factory func(t *testing.T, delegate persistence.ReferenceDelegate) persistence.Persistence

var (
	alice = credentials.User{UID: "alice"}
	bob   = credentials.User{UID: "bob"}
)

func run(t *testing.T, p persistence.Persistence, fn func(txn persistence.Transaction) error) {
	require.NoError(t, p.RunTransaction(context.Background(), t.Name(), persistence.ReadWrite, fn))
}

func object(t *testing.T, data map[string]any) value.ObjectValue {
	obj, err := value.ObjectFrom(data)
	require.NoError(t, err)
	return obj
}

func foundDoc(t *testing.T, path string, version int64, data map[string]any) *document.MutableDocument {
	return document.NewFoundDocument(key.MustParse(path), time.VersionOf(version, 0), object(t, data))
}

// RunRemoteDocumentCacheTest runs the remote document cache tests.
func RunRemoteDocumentCacheTest(t *testing.T, newPersistence Factory) {
	t.Run("add and get test", func(t *testing.T) {
		p := newPersistence(t, nil)
		cache := p.RemoteDocumentCache()
		doc := foundDoc(t, "rooms/a", 1, map[string]any{"n": 1})

		run(t, p, func(txn persistence.Transaction) error {
			require.NoError(t, cache.Add(txn, doc, time.VersionOf(2, 0)))

			stored, err := cache.Get(txn, doc.Key())
			require.NoError(t, err)
			assert.True(t, doc.Equal(stored))
			assert.Equal(t, time.VersionOf(2, 0), stored.ReadTime())

			missing, err := cache.Get(txn, key.MustParse("rooms/z"))
			require.NoError(t, err)
			assert.False(t, missing.IsValidDocument())

			docs, err := cache.GetAll(txn, document.NewKeySet(doc.Key(), key.MustParse("rooms/z")))
			require.NoError(t, err)
			assert.Equal(t, 2, docs.Len())

			require.NoError(t, cache.Remove(txn, doc.Key()))
			removed, err := cache.Get(txn, doc.Key())
			require.NoError(t, err)
			assert.False(t, removed.IsValidDocument())
			return nil
		})
	})

	t.Run("documents matching query test", func(t *testing.T) {
		p := newPersistence(t, nil)
		cache := p.RemoteDocumentCache()

		run(t, p, func(txn persistence.Transaction) error {
			require.NoError(t, cache.Add(txn, foundDoc(t, "rooms/a", 1, map[string]any{"size": 1}), time.VersionOf(1, 0)))
			require.NoError(t, cache.Add(txn, foundDoc(t, "rooms/b", 1, map[string]any{"size": 5}), time.VersionOf(3, 0)))
			require.NoError(t, cache.Add(txn, foundDoc(t, "rooms/b/messages/m", 1, map[string]any{"size": 5}), time.VersionOf(3, 0)))
			require.NoError(t, cache.Add(txn, foundDoc(t, "halls/c/messages/m", 1, map[string]any{"size": 9}), time.VersionOf(3, 0)))
			require.NoError(t, cache.Add(txn, document.NewNoDocument(key.MustParse("rooms/d"), time.VersionOf(2, 0)), time.VersionOf(3, 0)))
			return nil
		})

		run(t, p, func(txn persistence.Transaction) error {
			rooms := query.NewQuery(key.ParsePath("rooms"))
			docs, err := cache.GetDocumentsMatchingQuery(txn, rooms, time.MinVersion, document.NewKeySet())
			require.NoError(t, err)
			assert.Equal(t, []key.Key{key.MustParse("rooms/a"), key.MustParse("rooms/b")}, docs.Keys().Keys())

			docs, err = cache.GetDocumentsMatchingQuery(txn, rooms, time.VersionOf(2, 0), document.NewKeySet())
			require.NoError(t, err)
			assert.Equal(t, []key.Key{key.MustParse("rooms/b")}, docs.Keys().Keys())

			bigRooms := rooms.Where(query.Where("size", query.GreaterThan, value.Integer(3)))
			mutated := document.NewKeySet(key.MustParse("rooms/a"))
			docs, err = cache.GetDocumentsMatchingQuery(txn, bigRooms, time.MinVersion, mutated)
			require.NoError(t, err)
			assert.Equal(t, 2, docs.Len())

			group := query.NewCollectionGroupQuery(key.NewPath(), "messages")
			docs, err = cache.GetDocumentsMatchingQuery(txn, group, time.MinVersion, document.NewKeySet())
			require.NoError(t, err)
			assert.Equal(t, []key.Key{
				key.MustParse("halls/c/messages/m"),
				key.MustParse("rooms/b/messages/m"),
			}, docs.Keys().Keys())
			return nil
		})
	})

	t.Run("rollback test", func(t *testing.T) {
		p := newPersistence(t, nil)
		cache := p.RemoteDocumentCache()
		doc := foundDoc(t, "rooms/a", 1, map[string]any{"n": 1})

		failure := errors.Internal("failure")
		err := p.RunTransaction(context.Background(), t.Name(), persistence.ReadWrite, func(txn persistence.Transaction) error {
			require.NoError(t, cache.Add(txn, doc, time.VersionOf(1, 0)))
			return failure
		})
		assert.ErrorIs(t, err, failure)

		run(t, p, func(txn persistence.Transaction) error {
			stored, err := cache.Get(txn, doc.Key())
			require.NoError(t, err)
			assert.False(t, stored.IsValidDocument())
			return nil
		})
	})

	t.Run("committed listener test", func(t *testing.T) {
		p := newPersistence(t, nil)
		committed := false
		run(t, p, func(txn persistence.Transaction) error {
			txn.AddOnCommittedListener(func() { committed = true })
			assert.False(t, committed)
			return nil
		})
		assert.True(t, committed)
	})
}

// RunMutationQueueTest runs the mutation queue tests.
func RunMutationQueueTest(t *testing.T, newPersistence Factory) {
	set := func(path string) mutation.Mutation {
		return mutation.NewSet(key.MustParse(path), object(t, map[string]any{"v": path}), mutation.NoPrecondition)
	}

	t.Run("batches are ordered test", func(t *testing.T) {
		p := newPersistence(t, nil)
		queue := p.MutationQueue(alice)

		run(t, p, func(txn persistence.Transaction) error {
			empty, err := queue.CheckEmpty(txn)
			require.NoError(t, err)
			assert.True(t, empty)

			highest, err := queue.HighestUnacknowledgedBatchID(txn)
			require.NoError(t, err)
			assert.Equal(t, mutation.UnknownBatchID, highest)

			for _, path := range []string{"rooms/a", "rooms/b", "rooms/c"} {
				_, err := queue.AddMutationBatch(txn, time.Timestamp{Seconds: 1}, []mutation.Mutation{set(path)})
				require.NoError(t, err)
			}
			return nil
		})

		run(t, p, func(txn persistence.Transaction) error {
			batches, err := queue.AllMutationBatches(txn)
			require.NoError(t, err)
			require.Len(t, batches, 3)
			assert.True(t, batches[0].ID < batches[1].ID && batches[1].ID < batches[2].ID)

			next, err := queue.NextMutationBatchAfterBatchID(txn, batches[0].ID)
			require.NoError(t, err)
			assert.Equal(t, batches[1].ID, next.ID)

			next, err = queue.NextMutationBatchAfterBatchID(txn, batches[2].ID)
			require.NoError(t, err)
			assert.Nil(t, next)

			highest, err := queue.HighestUnacknowledgedBatchID(txn)
			require.NoError(t, err)
			assert.Equal(t, batches[2].ID, highest)

			affecting, err := queue.AllMutationBatchesAffectingDocumentKeys(
				txn, document.NewKeySet(key.MustParse("rooms/c"), key.MustParse("rooms/a")),
			)
			require.NoError(t, err)
			require.Len(t, affecting, 2)
			assert.Equal(t, batches[0].ID, affecting[0].ID)
			assert.Equal(t, batches[2].ID, affecting[1].ID)
			return nil
		})
	})

	t.Run("remove first batch only test", func(t *testing.T) {
		p := newPersistence(t, nil)
		queue := p.MutationQueue(alice)

		var first, second *mutation.Batch
		run(t, p, func(txn persistence.Transaction) error {
			var err error
			first, err = queue.AddMutationBatch(txn, time.Timestamp{Seconds: 1}, []mutation.Mutation{set("rooms/a")})
			require.NoError(t, err)
			second, err = queue.AddMutationBatch(txn, time.Timestamp{Seconds: 2}, []mutation.Mutation{set("rooms/b")})
			require.NoError(t, err)
			return nil
		})

		err := p.RunTransaction(context.Background(), t.Name(), persistence.ReadWrite, func(txn persistence.Transaction) error {
			return queue.RemoveMutationBatch(txn, second)
		})
		assert.ErrorIs(t, err, persistence.ErrBatchNotFound)

		run(t, p, func(txn persistence.Transaction) error {
			require.NoError(t, queue.AcknowledgeBatch(txn, first, []byte("token-1")))
			require.NoError(t, queue.RemoveMutationBatch(txn, first))

			contains, err := p.MutationQueuesContainKey(txn, key.MustParse("rooms/a"))
			require.NoError(t, err)
			assert.False(t, contains)
			contains, err = p.MutationQueuesContainKey(txn, key.MustParse("rooms/b"))
			require.NoError(t, err)
			assert.True(t, contains)

			token, err := queue.LastStreamToken(txn)
			require.NoError(t, err)
			assert.Equal(t, []byte("token-1"), token)
			return nil
		})
	})

	t.Run("batch ids are not reused test", func(t *testing.T) {
		p := newPersistence(t, nil)
		queue := p.MutationQueue(alice)

		var first *mutation.Batch
		run(t, p, func(txn persistence.Transaction) error {
			var err error
			first, err = queue.AddMutationBatch(txn, time.Timestamp{Seconds: 1}, []mutation.Mutation{set("rooms/a")})
			require.NoError(t, err)
			return queue.RemoveMutationBatch(txn, first)
		})

		run(t, p, func(txn persistence.Transaction) error {
			next, err := queue.AddMutationBatch(txn, time.Timestamp{Seconds: 2}, []mutation.Mutation{set("rooms/a")})
			require.NoError(t, err)
			assert.Greater(t, next.ID, first.ID)
			return nil
		})
	})

	t.Run("queues are per user test", func(t *testing.T) {
		p := newPersistence(t, nil)

		run(t, p, func(txn persistence.Transaction) error {
			_, err := p.MutationQueue(alice).AddMutationBatch(txn, time.Timestamp{Seconds: 1}, []mutation.Mutation{set("rooms/a")})
			require.NoError(t, err)
			require.NoError(t, p.MutationQueue(bob).SetLastStreamToken(txn, []byte("bob")))

			empty, err := p.MutationQueue(bob).CheckEmpty(txn)
			require.NoError(t, err)
			assert.True(t, empty)

			batches, err := p.MutationQueue(alice).AllMutationBatches(txn)
			require.NoError(t, err)
			assert.Len(t, batches, 1)

			token, err := p.MutationQueue(alice).LastStreamToken(txn)
			require.NoError(t, err)
			assert.Empty(t, token)
			return nil
		})
	})
}

// RunDocumentOverlayCacheTest runs the document overlay cache tests.
func RunDocumentOverlayCacheTest(t *testing.T, newPersistence Factory) {
	patch := func(path string) mutation.Mutation {
		return mutation.NewPatch(
			key.MustParse(path),
			object(t, map[string]any{"v": 1}),
			mutation.NewFieldMask(value.ParseFieldPath("v")),
			mutation.ExistsPrecondition(true),
		)
	}

	t.Run("save and get test", func(t *testing.T) {
		p := newPersistence(t, nil)
		overlays := p.DocumentOverlayCache(alice)

		run(t, p, func(txn persistence.Transaction) error {
			require.NoError(t, overlays.SaveOverlays(txn, 1, map[string]mutation.Mutation{
				"rooms/a": patch("rooms/a"),
				"rooms/b": patch("rooms/b"),
			}))
			require.NoError(t, overlays.SaveOverlays(txn, 2, map[string]mutation.Mutation{
				"rooms/b":            patch("rooms/b"),
				"rooms/b/messages/m": patch("rooms/b/messages/m"),
			}))
			return nil
		})

		run(t, p, func(txn persistence.Transaction) error {
			overlay, err := overlays.GetOverlay(txn, key.MustParse("rooms/b"))
			require.NoError(t, err)
			require.NotNil(t, overlay)
			assert.Equal(t, 2, overlay.LargestBatchID)

			found, err := overlays.GetOverlays(txn, document.NewKeySet(key.MustParse("rooms/a"), key.MustParse("rooms/z")))
			require.NoError(t, err)
			assert.Len(t, found, 1)

			inRooms, err := overlays.GetOverlaysForCollection(txn, key.ParsePath("rooms"), 1)
			require.NoError(t, err)
			assert.Len(t, inRooms, 1)
			assert.Contains(t, inRooms, "rooms/b")

			messages, err := overlays.GetOverlaysForCollectionGroup(txn, "messages", mutation.UnknownBatchID)
			require.NoError(t, err)
			assert.Len(t, messages, 1)

			other, err := p.DocumentOverlayCache(bob).GetOverlay(txn, key.MustParse("rooms/a"))
			require.NoError(t, err)
			assert.Nil(t, other)

			var keys []string
			require.NoError(t, overlays.Each(txn, func(overlay *mutation.Overlay) bool {
				keys = append(keys, overlay.Key().String())
				return true
			}))
			assert.Equal(t, []string{"rooms/a", "rooms/b", "rooms/b/messages/m"}, keys)
			return nil
		})
	})

	t.Run("remove overlays for batch id test", func(t *testing.T) {
		p := newPersistence(t, nil)
		overlays := p.DocumentOverlayCache(alice)

		run(t, p, func(txn persistence.Transaction) error {
			require.NoError(t, overlays.SaveOverlays(txn, 1, map[string]mutation.Mutation{"rooms/a": patch("rooms/a")}))
			require.NoError(t, overlays.SaveOverlays(txn, 2, map[string]mutation.Mutation{"rooms/b": patch("rooms/b")}))

			keys := document.NewKeySet(key.MustParse("rooms/a"), key.MustParse("rooms/b"))
			require.NoError(t, overlays.RemoveOverlaysForBatchID(txn, keys, 1))

			remaining, err := overlays.GetOverlays(txn, keys)
			require.NoError(t, err)
			assert.Len(t, remaining, 1)
			assert.Contains(t, remaining, "rooms/b")
			return nil
		})
	})
}

// RunTargetCacheTest runs the target cache tests.
func RunTargetCacheTest(t *testing.T, newPersistence Factory) {
	rooms := query.NewQuery(key.ParsePath("rooms")).ToTarget()

	t.Run("allocate and store targets test", func(t *testing.T) {
		p := newPersistence(t, nil)
		targets := p.TargetCache()

		run(t, p, func(txn persistence.Transaction) error {
			first, err := targets.AllocateTargetID(txn)
			require.NoError(t, err)
			second, err := targets.AllocateTargetID(txn)
			require.NoError(t, err)
			assert.Equal(t, 0, first%2)
			assert.Greater(t, second, first)

			seq, err := targets.NextSequenceNumber(txn)
			require.NoError(t, err)
			data := persistence.NewTargetData(rooms, first, persistence.PurposeListen, seq)
			require.NoError(t, targets.AddTargetData(txn, data))
			assert.Error(t, targets.AddTargetData(txn, data))

			updated := data.WithResumeToken([]byte("token"), time.VersionOf(5, 0))
			require.NoError(t, targets.UpdateTargetData(txn, updated))
			require.NoError(t, targets.SetLastRemoteSnapshotVersion(txn, time.VersionOf(5, 0)))
			return nil
		})

		run(t, p, func(txn persistence.Transaction) error {
			data, err := targets.GetTargetData(txn, rooms)
			require.NoError(t, err)
			require.NotNil(t, data)
			assert.Equal(t, []byte("token"), data.ResumeToken)

			byID, err := targets.GetTargetDataByID(txn, data.TargetID)
			require.NoError(t, err)
			assert.Equal(t, data.TargetID, byID.TargetID)

			count, err := targets.TargetCount(txn)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			version, err := targets.LastRemoteSnapshotVersion(txn)
			require.NoError(t, err)
			assert.Equal(t, time.VersionOf(5, 0), version)

			err = targets.UpdateTargetData(txn, persistence.NewTargetData(rooms, 99, persistence.PurposeListen, 1))
			assert.ErrorIs(t, err, persistence.ErrTargetNotFound)
			return nil
		})
	})

	t.Run("matching keys test", func(t *testing.T) {
		p := newPersistence(t, nil)
		targets := p.TargetCache()
		a, b := key.MustParse("rooms/a"), key.MustParse("rooms/b")

		run(t, p, func(txn persistence.Transaction) error {
			data := persistence.NewTargetData(rooms, 2, persistence.PurposeListen, 1)
			require.NoError(t, targets.AddTargetData(txn, data))
			require.NoError(t, targets.AddMatchingKeys(txn, document.NewKeySet(a, b), 2))

			keys, err := targets.GetMatchingKeysForTargetID(txn, 2)
			require.NoError(t, err)
			assert.Equal(t, []key.Key{a, b}, keys.Keys())

			require.NoError(t, targets.RemoveMatchingKeys(txn, document.NewKeySet(a), 2))
			contains, err := targets.ContainsKey(txn, a)
			require.NoError(t, err)
			assert.False(t, contains)

			require.NoError(t, targets.RemoveTargetData(txn, data))
			contains, err = targets.ContainsKey(txn, b)
			require.NoError(t, err)
			assert.False(t, contains)

			removed, err := targets.GetTargetDataByID(txn, 2)
			require.NoError(t, err)
			assert.Nil(t, removed)
			return nil
		})
	})
}

// RunNamedQueryCacheTest runs the named query cache tests.
func RunNamedQueryCacheTest(t *testing.T, newPersistence Factory) {
	t.Run("save and get test", func(t *testing.T) {
		p := newPersistence(t, nil)
		cache := p.NamedQueryCache()
		q := query.NewQuery(key.ParsePath("rooms")).
			Where(query.Where("open", query.Equal, value.Boolean(true))).
			OrderBy("size", query.Descending).
			LimitToLast(3)

		run(t, p, func(txn persistence.Transaction) error {
			missing, err := cache.GetNamedQuery(txn, "open-rooms")
			require.NoError(t, err)
			assert.Nil(t, missing)

			return cache.SaveNamedQuery(txn, &persistence.NamedQuery{
				Name:     "open-rooms",
				Query:    q,
				ReadTime: time.VersionOf(4, 0),
			})
		})

		run(t, p, func(txn persistence.Transaction) error {
			named, err := cache.GetNamedQuery(txn, "open-rooms")
			require.NoError(t, err)
			require.NotNil(t, named)
			assert.Equal(t, q.CanonicalID(), named.Query.CanonicalID())
			assert.Equal(t, time.VersionOf(4, 0), named.ReadTime)
			return nil
		})
	})
}

// RunEagerGarbageCollectionTest runs the eager garbage collection tests.
func RunEagerGarbageCollectionTest(t *testing.T, newPersistence Factory) {
	rooms := query.NewQuery(key.ParsePath("rooms")).ToTarget()

	t.Run("released target drops documents test", func(t *testing.T) {
		p := newPersistence(t, persistence.NewEagerGarbageCollector())
		a, b := key.MustParse("rooms/a"), key.MustParse("rooms/b")
		data := persistence.NewTargetData(rooms, 2, persistence.PurposeListen, 1)

		run(t, p, func(txn persistence.Transaction) error {
			require.NoError(t, p.TargetCache().AddTargetData(txn, data))
			require.NoError(t, p.TargetCache().AddMatchingKeys(txn, document.NewKeySet(a, b), 2))
			require.NoError(t, p.RemoteDocumentCache().Add(txn, foundDoc(t, "rooms/a", 1, map[string]any{"n": 1}), time.VersionOf(1, 0)))
			require.NoError(t, p.RemoteDocumentCache().Add(txn, foundDoc(t, "rooms/b", 1, map[string]any{"n": 1}), time.VersionOf(1, 0)))
			_, err := p.MutationQueue(alice).AddMutationBatch(txn, time.Timestamp{Seconds: 1}, []mutation.Mutation{
				mutation.NewDelete(b, mutation.NoPrecondition),
			})
			return err
		})

		run(t, p, func(txn persistence.Transaction) error {
			return p.ReferenceDelegate().RemoveTarget(txn, data)
		})

		run(t, p, func(txn persistence.Transaction) error {
			docA, err := p.RemoteDocumentCache().Get(txn, a)
			require.NoError(t, err)
			assert.False(t, docA.IsValidDocument())

			docB, err := p.RemoteDocumentCache().Get(txn, b)
			require.NoError(t, err)
			assert.True(t, docB.IsFoundDocument(), "documents with pending writes are kept")
			return nil
		})
	})

	t.Run("pinned documents are kept test", func(t *testing.T) {
		delegate := persistence.NewEagerGarbageCollector()
		p := newPersistence(t, delegate)
		a := key.MustParse("rooms/a")
		pins := persistence.NewReferenceSet()
		pins.AddReference(a, 7)
		delegate.SetInMemoryPins(pins)

		run(t, p, func(txn persistence.Transaction) error {
			require.NoError(t, p.RemoteDocumentCache().Add(txn, foundDoc(t, "rooms/a", 1, map[string]any{"n": 1}), time.VersionOf(1, 0)))
			return delegate.UpdateLimboDocument(txn, a)
		})

		run(t, p, func(txn persistence.Transaction) error {
			doc, err := p.RemoteDocumentCache().Get(txn, a)
			require.NoError(t, err)
			assert.True(t, doc.IsFoundDocument())

			removed, err := delegate.CollectGarbage(txn)
			require.NoError(t, err)
			assert.Equal(t, 0, removed)
			return nil
		})

		pins.RemoveReferencesForID(7)
		run(t, p, func(txn persistence.Transaction) error {
			removed, err := delegate.CollectGarbage(txn)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)
			return nil
		})
	})
}

// RunLRUGarbageCollectionTest runs the LRU garbage collection tests.
func RunLRUGarbageCollectionTest(t *testing.T, newPersistence Factory) {
	t.Run("released targets are retained up to the limit test", func(t *testing.T) {
		delegate, err := persistence.NewLRUGarbageCollector(1)
		require.NoError(t, err)
		p := newPersistence(t, delegate)

		first := persistence.NewTargetData(query.NewQuery(key.ParsePath("rooms")).ToTarget(), 2, persistence.PurposeListen, 1)
		second := persistence.NewTargetData(query.NewQuery(key.ParsePath("halls")).ToTarget(), 4, persistence.PurposeListen, 2)

		run(t, p, func(txn persistence.Transaction) error {
			for _, data := range []*persistence.TargetData{first, second} {
				require.NoError(t, p.TargetCache().AddTargetData(txn, data))
			}
			require.NoError(t, p.TargetCache().AddMatchingKeys(txn, document.NewKeySet(key.MustParse("rooms/a")), 2))
			require.NoError(t, p.TargetCache().AddMatchingKeys(txn, document.NewKeySet(key.MustParse("halls/a")), 4))
			require.NoError(t, p.RemoteDocumentCache().Add(txn, foundDoc(t, "rooms/a", 1, map[string]any{"n": 1}), time.VersionOf(1, 0)))
			require.NoError(t, p.RemoteDocumentCache().Add(txn, foundDoc(t, "halls/a", 1, map[string]any{"n": 1}), time.VersionOf(1, 0)))
			return nil
		})

		run(t, p, func(txn persistence.Transaction) error {
			return delegate.RemoveTarget(txn, first)
		})
		run(t, p, func(txn persistence.Transaction) error {
			data, err := p.TargetCache().GetTargetDataByID(txn, first.TargetID)
			require.NoError(t, err)
			assert.NotNil(t, data, "a released target is retained")

			doc, err := p.RemoteDocumentCache().Get(txn, key.MustParse("rooms/a"))
			require.NoError(t, err)
			assert.True(t, doc.IsFoundDocument())
			return nil
		})

		run(t, p, func(txn persistence.Transaction) error {
			return delegate.RemoveTarget(txn, second)
		})
		run(t, p, func(txn persistence.Transaction) error {
			data, err := p.TargetCache().GetTargetDataByID(txn, first.TargetID)
			require.NoError(t, err)
			assert.Nil(t, data, "the least recently released target is evicted")

			doc, err := p.RemoteDocumentCache().Get(txn, key.MustParse("rooms/a"))
			require.NoError(t, err)
			assert.False(t, doc.IsValidDocument())

			doc, err = p.RemoteDocumentCache().Get(txn, key.MustParse("halls/a"))
			require.NoError(t, err)
			assert.True(t, doc.IsFoundDocument())
			return nil
		})
		assert.Equal(t, 1, delegate.InactiveTargets())
	})

	t.Run("activated targets are not evicted test", func(t *testing.T) {
		delegate, err := persistence.NewLRUGarbageCollector(1)
		require.NoError(t, err)
		p := newPersistence(t, delegate)

		first := persistence.NewTargetData(query.NewQuery(key.ParsePath("rooms")).ToTarget(), 2, persistence.PurposeListen, 1)
		second := persistence.NewTargetData(query.NewQuery(key.ParsePath("halls")).ToTarget(), 4, persistence.PurposeListen, 2)
		run(t, p, func(txn persistence.Transaction) error {
			require.NoError(t, p.TargetCache().AddTargetData(txn, first))
			require.NoError(t, p.TargetCache().AddTargetData(txn, second))
			return delegate.RemoveTarget(txn, first)
		})

		delegate.ActivateTarget(first.TargetID)
		run(t, p, func(txn persistence.Transaction) error {
			return delegate.RemoveTarget(txn, second)
		})
		run(t, p, func(txn persistence.Transaction) error {
			count, err := p.TargetCache().TargetCount(txn)
			require.NoError(t, err)
			assert.Equal(t, 2, count)
			return nil
		})
	})
}
