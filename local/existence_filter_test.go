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

package local_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/bloom"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote"
)

// storeMetadata serves the watch state of the harness store to an
// aggregator, as the sync engine does.
type storeMetadata struct {
	h       *harness
	targets map[int]*persistence.TargetData
}

func (m *storeMetadata) GetRemoteKeysForTarget(targetID int) *document.KeySet {
	keys, err := m.h.store.GetRemoteDocumentKeys(m.h.ctx, targetID)
	require.NoError(m.h.t, err)
	return keys
}

func (m *storeMetadata) GetTargetDataForTarget(targetID int) *persistence.TargetData {
	return m.targets[targetID]
}

func bloomFilterOf(db key.DatabaseID, keys ...key.Key) *remote.BloomFilter {
	builder := bloom.NewBuilder(1024, 7)
	for _, k := range keys {
		builder.Insert(db.DocumentName(k))
	}
	bitmap, padding := builder.Bitmap()
	return &remote.BloomFilter{Bitmap: bitmap, Padding: padding, HashCount: builder.HashCount()}
}

func TestExistenceFilter(t *testing.T) {
	db := key.NewDatabaseID("p1", "")

	t.Run("bloom filter stores no document at read time test", func(t *testing.T) {
		h := newHarness(t)
		keys := make([]key.Key, 6)
		docs := make([]*document.MutableDocument, 6)
		for i := range keys {
			keys[i] = key.MustParse(fmt.Sprintf("rooms/r%d", i))
			docs[i] = document.NewFoundDocument(keys[i], time.VersionOf(1, 0), object(t, map[string]any{"n": i}))
		}
		target := h.listen(query.NewQuery(rooms), keys...)
		h.applyDocs(target.TargetID, 1, docs...)

		metadata := &storeMetadata{h: h, targets: map[int]*persistence.TargetData{target.TargetID: target}}
		aggregator := remote.NewWatchChangeAggregator(metadata, db, logging.Nop(), nil)

		present := append(append([]key.Key{}, keys[:3]...), keys[4:]...)
		aggregator.HandleExistenceFilter(&remote.ExistenceFilterWatchChange{
			TargetID:       target.TargetID,
			Count:          5,
			UnchangedNames: bloomFilterOf(db, present...),
		})
		readTime := time.VersionOf(5, 0)
		event := aggregator.CreateRemoteEvent(readTime)
		assert.Empty(t, event.TargetMismatches)

		_, err := h.store.ApplyRemoteEvent(h.ctx, event)
		require.NoError(t, err)

		evicted := h.read("rooms/r3")
		assert.True(t, evicted.IsNoDocument())
		assert.Equal(t, readTime, evicted.Version())
		for _, k := range present {
			doc := h.read(k.String())
			assert.True(t, doc.IsFoundDocument(), k.String())
			assert.Equal(t, time.VersionOf(1, 0), doc.Version(), k.String())
		}

		remoteKeys, err := h.store.GetRemoteDocumentKeys(h.ctx, target.TargetID)
		require.NoError(t, err)
		assert.Equal(t, present, remoteKeys.Keys())
	})

	t.Run("bloom filter keeps documents of other targets test", func(t *testing.T) {
		h := newHarness(t)
		a := key.MustParse("rooms/a")
		b := key.MustParse("rooms/b")
		collection := h.listen(query.NewQuery(rooms), a, b)
		single := h.listen(query.NewDocumentQuery(a), a)

		docA := document.NewFoundDocument(a, time.VersionOf(1, 0), object(t, map[string]any{"n": 1}))
		docB := document.NewFoundDocument(b, time.VersionOf(1, 0), object(t, map[string]any{"n": 2}))
		h.applyDocs(collection.TargetID, 1, docA, docB)
		h.applyDocs(single.TargetID, 2, docA.Clone())

		metadata := &storeMetadata{h: h, targets: map[int]*persistence.TargetData{
			collection.TargetID: collection,
			single.TargetID:     single,
		}}
		aggregator := remote.NewWatchChangeAggregator(metadata, db, logging.Nop(), nil)
		aggregator.HandleExistenceFilter(&remote.ExistenceFilterWatchChange{
			TargetID:       collection.TargetID,
			Count:          1,
			UnchangedNames: bloomFilterOf(db, b),
		})
		event := aggregator.CreateRemoteEvent(time.VersionOf(5, 0))
		assert.Equal(t, []key.Key{a}, event.FilteredDocuments.Keys())

		_, err := h.store.ApplyRemoteEvent(h.ctx, event)
		require.NoError(t, err)

		doc := h.read("rooms/a")
		assert.True(t, doc.IsFoundDocument())
		assert.Equal(t, time.VersionOf(1, 0), doc.Version())

		singleKeys, err := h.store.GetRemoteDocumentKeys(h.ctx, single.TargetID)
		require.NoError(t, err)
		assert.True(t, singleKeys.Has(a))
		collectionKeys, err := h.store.GetRemoteDocumentKeys(h.ctx, collection.TargetID)
		require.NoError(t, err)
		assert.Equal(t, []key.Key{b}, collectionKeys.Keys())
	})
}
