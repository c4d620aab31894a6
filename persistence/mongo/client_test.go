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
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/persistence/mongo"
	"github.com/yorkie-team/docsync/persistence/testcases"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/query"
)

var db = key.NewDatabaseID("p1", "")

func testConfig() *mongo.Config {
	return &mongo.Config{
		ConnectionTimeout: "2s",
		ConnectionURI:     "mongodb://localhost:27017",
		Database:          "docsync-test-" + xid.New().String(),
		PingTimeout:       "1s",
	}
}

// dial opens a started persistence on conf, skipping the test when MongoDB
// is not reachable.
func dial(t *testing.T, conf *mongo.Config, delegate persistence.ReferenceDelegate) *mongo.Persistence {
	require.NoError(t, conf.Validate())

	p, err := mongo.Dial(conf, db, delegate)
	if err != nil {
		t.Skipf("mongo is not available: %v", err)
	}
	require.NoError(t, p.Start(context.Background()))
	return p
}

func dropOnCleanup(t *testing.T, p *mongo.Persistence) {
	t.Cleanup(func() {
		ctx := context.Background()
		assert.NoError(t, p.Database().Drop(ctx))
		assert.NoError(t, p.Shutdown(ctx))
	})
}

func TestPersistence(t *testing.T) {
	factory := func(t *testing.T, delegate persistence.ReferenceDelegate) persistence.Persistence {
		p := dial(t, testConfig(), delegate)
		dropOnCleanup(t, p)
		return p
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
}

func TestDurability(t *testing.T) {
	t.Run("reopen test", func(t *testing.T) {
		ctx := context.Background()
		conf := testConfig()
		user := credentials.User{UID: "alice"}

		doc := document.NewFoundDocument(
			key.MustParse("rooms/a"),
			time.VersionOf(1, 0),
			value.NewObject(value.Map{"n": value.Integer(1)}),
		)
		target := query.NewQuery(key.ParsePath("rooms")).ToTarget()

		first := dial(t, conf, nil)
		require.NoError(t, first.RunTransaction(ctx, "write", persistence.ReadWrite, func(txn persistence.Transaction) error {
			if err := first.RemoteDocumentCache().Add(txn, doc, time.VersionOf(2, 0)); err != nil {
				return err
			}
			if _, err := first.MutationQueue(user).AddMutationBatch(
				txn,
				time.FromMicros(1),
				[]mutation.Mutation{mutation.NewDelete(doc.Key(), mutation.NoPrecondition)},
			); err != nil {
				return err
			}
			targets := first.TargetCache()
			targetID, err := targets.AllocateTargetID(txn)
			if err != nil {
				return err
			}
			return targets.AddTargetData(txn, persistence.NewTargetData(target, targetID, persistence.PurposeListen, 1))
		}))
		require.NoError(t, first.Shutdown(ctx))

		second := dial(t, conf, nil)
		dropOnCleanup(t, second)

		require.NoError(t, second.RunTransaction(ctx, "read", persistence.ReadOnly, func(txn persistence.Transaction) error {
			stored, err := second.RemoteDocumentCache().Get(txn, doc.Key())
			require.NoError(t, err)
			assert.True(t, doc.Equal(stored))

			batches, err := second.MutationQueue(user).AllMutationBatches(txn)
			require.NoError(t, err)
			require.Len(t, batches, 1)
			assert.Equal(t, 1, batches[0].ID)

			data, err := second.TargetCache().GetTargetData(txn, target)
			require.NoError(t, err)
			require.NotNil(t, data)
			assert.Equal(t, 2, data.TargetID)
			return nil
		}))
	})
}
