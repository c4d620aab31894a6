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

package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/persistence/memory"
	"github.com/yorkie-team/docsync/persistence/testcases"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/errors"
)

var db = key.NewDatabaseID("p1", "")

func newPersistence(t *testing.T, delegate persistence.ReferenceDelegate, opts ...memory.Option) *memory.Persistence {
	if delegate != nil {
		opts = append(opts, memory.WithReferenceDelegate(delegate))
	}
	p, err := memory.New(db, opts...)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	return p
}

func TestPersistence(t *testing.T) {
	factory := func(t *testing.T, delegate persistence.ReferenceDelegate) persistence.Persistence {
		return newPersistence(t, delegate)
	}

	t.Run("RemoteDocumentCache test", func(t *testing.T) {
		testcases.RunRemoteDocumentCacheTest(t, factory)
	})

	t.Run("MutationQueue test", func(t *testing.T) {
		testcases.RunMutationQueueTest(t, factory)
	})

	t.Run("DocumentOverlayCache test", func(t *testing.T) {
		testcases.RunDocumentOverlayCacheTest(t, factory)
	})

	t.Run("TargetCache test", func(t *testing.T) {
		testcases.RunTargetCacheTest(t, factory)
	})

	t.Run("NamedQueryCache test", func(t *testing.T) {
		testcases.RunNamedQueryCacheTest(t, factory)
	})

	t.Run("EagerGarbageCollection test", func(t *testing.T) {
		testcases.RunEagerGarbageCollectionTest(t, factory)
	})

	t.Run("LRUGarbageCollection test", func(t *testing.T) {
		testcases.RunLRUGarbageCollectionTest(t, factory)
	})
}

func TestLifecycle(t *testing.T) {
	t.Run("transaction before start test", func(t *testing.T) {
		p, err := memory.New(db)
		require.NoError(t, err)
		assert.False(t, p.Started())

		err = p.RunTransaction(context.Background(), "read", persistence.ReadOnly, func(persistence.Transaction) error {
			return nil
		})
		assert.ErrorIs(t, err, persistence.ErrNotStarted)
		assert.True(t, errors.IsStatus(err, errors.ErrCodeFailedPrecondition))

		require.NoError(t, p.Start(context.Background()))
		assert.True(t, p.Started())
		require.NoError(t, p.Shutdown(context.Background()))
		assert.False(t, p.Started())
	})

	t.Run("canceled context test", func(t *testing.T) {
		p := newPersistence(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := p.RunTransaction(ctx, "read", persistence.ReadOnly, func(persistence.Transaction) error {
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCommitHook(t *testing.T) {
	doc := document.NewNoDocument(key.MustParse("rooms/a"), time.VersionOf(1, 0))

	t.Run("hook receives changes test", func(t *testing.T) {
		var received []memory.Change
		p := newPersistence(t, nil, memory.WithCommitHook(func(_ context.Context, changes []memory.Change) error {
			received = append(received, changes...)
			return nil
		}))

		require.NoError(t, p.RunTransaction(context.Background(), "add", persistence.ReadWrite, func(txn persistence.Transaction) error {
			return p.RemoteDocumentCache().Add(txn, doc, time.VersionOf(1, 0))
		}))
		require.Len(t, received, 1)
		assert.Equal(t, persistence.StoreRemoteDocuments, received[0].Store)
		assert.Nil(t, received[0].Before)
		assert.Equal(t, "rooms/a", received[0].After.RecordID())

		received = nil
		require.NoError(t, p.RunTransaction(context.Background(), "remove", persistence.ReadWrite, func(txn persistence.Transaction) error {
			return p.RemoteDocumentCache().Remove(txn, doc.Key())
		}))
		require.Len(t, received, 1)
		assert.Nil(t, received[0].After)
		assert.Equal(t, "rooms/a", received[0].Before.RecordID())
	})

	t.Run("failed hook rolls back test", func(t *testing.T) {
		p := newPersistence(t, nil, memory.WithCommitHook(func(context.Context, []memory.Change) error {
			return persistence.ErrStorageUnavailable
		}))

		err := p.RunTransaction(context.Background(), "add", persistence.ReadWrite, func(txn persistence.Transaction) error {
			return p.RemoteDocumentCache().Add(txn, doc, time.VersionOf(1, 0))
		})
		assert.ErrorIs(t, err, persistence.ErrStorageUnavailable)

		require.NoError(t, p.RunTransaction(context.Background(), "get", persistence.ReadOnly, func(txn persistence.Transaction) error {
			stored, err := p.RemoteDocumentCache().Get(txn, doc.Key())
			require.NoError(t, err)
			assert.False(t, stored.IsValidDocument())
			return nil
		}))
	})

	t.Run("loader fills the database test", func(t *testing.T) {
		loader := func(_ context.Context, store string, newRecord func() persistence.Record) ([]persistence.Record, error) {
			if store != persistence.StoreRemoteDocuments {
				return nil, nil
			}
			record := persistence.NewLocalSerializer(db).ToRemoteDocumentRecord(doc.Clone().SetReadTime(time.VersionOf(2, 0)))
			return []persistence.Record{record}, nil
		}
		p := newPersistence(t, nil, memory.WithLoader(loader))

		require.NoError(t, p.RunTransaction(context.Background(), "get", persistence.ReadOnly, func(txn persistence.Transaction) error {
			stored, err := p.RemoteDocumentCache().Get(txn, doc.Key())
			require.NoError(t, err)
			assert.True(t, stored.IsNoDocument())
			assert.Equal(t, time.VersionOf(2, 0), stored.ReadTime())
			return nil
		}))
	})
}
