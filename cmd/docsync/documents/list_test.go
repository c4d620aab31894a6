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

package documents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/persistence/memory"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/query"
)

func newStore(t *testing.T, docs ...*document.MutableDocument) persistence.Persistence {
	ctx := context.Background()
	store, err := memory.New(key.NewDatabaseID("p1", ""))
	require.NoError(t, err)
	require.NoError(t, store.Start(ctx))

	require.NoError(t, store.RunTransaction(ctx, "seed", persistence.ReadWrite, func(txn persistence.Transaction) error {
		for _, doc := range docs {
			if err := store.RemoteDocumentCache().Add(txn, doc, doc.ReadTime()); err != nil {
				return err
			}
		}
		return nil
	}))
	return store
}

func TestListDocuments(t *testing.T) {
	data, err := value.ObjectFrom(map[string]any{"name": "ann", "age": 3})
	require.NoError(t, err)

	store := newStore(t,
		document.NewFoundDocument(key.MustParse("rooms/a"), time.VersionOf(10, 0), data).
			SetReadTime(time.VersionOf(10, 0)),
		document.NewNoDocument(key.MustParse("rooms/b"), time.VersionOf(11, 0)).
			SetReadTime(time.VersionOf(11, 0)),
		document.NewFoundDocument(key.MustParse("users/u1"), time.VersionOf(12, 0), data).
			SetReadTime(time.VersionOf(12, 0)),
	)

	t.Run("all documents test", func(t *testing.T) {
		summaries, err := listDocuments(context.Background(), store, nil)
		require.NoError(t, err)
		require.Len(t, summaries, 3)
		assert.Equal(t, "rooms/a", summaries[0].Key)
		assert.Equal(t, "found", summaries[0].Type)
		assert.Equal(t, "no_document", summaries[1].Type)
		assert.Equal(t, "1970-01-01T00:00:10Z", summaries[0].Version)
		assert.Empty(t, summaries[0].Data)
	})

	t.Run("collection filter test", func(t *testing.T) {
		summaries, err := listDocuments(context.Background(), store, query.NewQuery(key.ParsePath("users")))
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "users/u1", summaries[0].Key)
	})

	t.Run("data test", func(t *testing.T) {
		showData = true
		defer func() { showData = false }()

		summaries, err := listDocuments(context.Background(), store, query.NewQuery(key.ParsePath("rooms")))
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, "{age:3,name:ann}", summaries[0].Data)
		assert.Empty(t, summaries[1].Data)
	})
}
