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

package persistence_test

import (
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
	"github.com/yorkie-team/docsync/pkg/query"
)

var db = key.NewDatabaseID("p1", "")

func TestReferenceSet(t *testing.T) {
	a := key.MustParse("rooms/a")
	b := key.MustParse("rooms/b")
	c := key.MustParse("rooms/c")

	t.Run("add and remove references test", func(t *testing.T) {
		refs := persistence.NewReferenceSet()
		assert.True(t, refs.IsEmpty())

		refs.AddReference(a, 1)
		refs.AddReference(b, 1)
		refs.AddReference(b, 2)
		assert.True(t, refs.ContainsKey(a))
		assert.True(t, refs.ContainsKey(b))
		assert.False(t, refs.ContainsKey(c))

		refs.RemoveReference(b, 1)
		assert.True(t, refs.ContainsKey(b))
		refs.RemoveReference(b, 2)
		assert.False(t, refs.ContainsKey(b))
		assert.Equal(t, []key.Key{a}, refs.ReferencesForID(1).Keys())
	})

	t.Run("remove references for id test", func(t *testing.T) {
		refs := persistence.NewReferenceSet()
		refs.AddReferences(document.NewKeySet(a, b), 1)
		refs.AddReferences(document.NewKeySet(b, c), 2)

		removed := refs.RemoveReferencesForID(1)
		assert.Equal(t, []key.Key{a, b}, removed.Keys())
		assert.False(t, refs.ContainsKey(a))
		assert.True(t, refs.ContainsKey(b))
		assert.True(t, refs.ReferencesForID(1).IsEmpty())

		all := refs.RemoveAllReferences()
		assert.Equal(t, []key.Key{b, c}, all.Keys())
		assert.True(t, refs.IsEmpty())
	})
}

func TestTargetData(t *testing.T) {
	target := query.NewQuery(key.ParsePath("rooms")).ToTarget()

	t.Run("copies are independent test", func(t *testing.T) {
		data := persistence.NewTargetData(target, 2, persistence.PurposeListen, 1)
		counted := data.WithExpectedCount(5)
		require.NotNil(t, counted.ExpectedCount)
		assert.Nil(t, data.ExpectedCount)

		resumed := counted.WithResumeToken([]byte("token"), time.VersionOf(10, 0))
		assert.Nil(t, resumed.ExpectedCount)
		assert.Equal(t, []byte("token"), resumed.ResumeToken)
		assert.Equal(t, time.VersionOf(10, 0), resumed.SnapshotVersion)
		assert.Empty(t, counted.ResumeToken)

		mismatch := resumed.WithPurpose(persistence.PurposeExistenceFilterMismatchBloom)
		assert.Equal(t, "existence-filter-mismatch-bloom", mismatch.Purpose.String())
		assert.Equal(t, persistence.PurposeListen, resumed.Purpose)
	})
}

func TestLocalSerializer(t *testing.T) {
	s := persistence.NewLocalSerializer(db)

	t.Run("remote document test", func(t *testing.T) {
		data, err := value.ObjectFrom(map[string]any{"title": "hello", "count": 3})
		require.NoError(t, err)
		found := document.NewFoundDocument(key.MustParse("rooms/a/messages/m1"), time.VersionOf(5, 0), data).
			SetHasCommittedMutations().
			SetReadTime(time.VersionOf(6, 0))

		record := s.ToRemoteDocumentRecord(found)
		assert.Equal(t, "rooms/a/messages/m1", record.RecordID())
		assert.Equal(t, "rooms/a/messages", record.CollectionPath)
		assert.Equal(t, "messages", record.CollectionGroup)

		decoded, err := s.FromRemoteDocumentRecord(record)
		require.NoError(t, err)
		assert.True(t, found.Equal(decoded))
		assert.Equal(t, time.VersionOf(6, 0), decoded.ReadTime())

		missing := document.NewNoDocument(key.MustParse("rooms/b"), time.VersionOf(7, 0))
		decoded, err = s.FromRemoteDocumentRecord(s.ToRemoteDocumentRecord(missing))
		require.NoError(t, err)
		assert.True(t, decoded.IsNoDocument())
		assert.Equal(t, time.VersionOf(7, 0), decoded.Version())
	})

	t.Run("mutation batch test", func(t *testing.T) {
		data, err := value.ObjectFrom(map[string]any{"n": 1})
		require.NoError(t, err)
		batch := mutation.NewBatch(
			7,
			time.Timestamp{Seconds: 100},
			mutation.NewSet(key.MustParse("rooms/a"), data, mutation.NoPrecondition),
			mutation.NewDelete(key.MustParse("rooms/b"), mutation.ExistsPrecondition(true)),
		)

		record, err := s.ToMutationBatchRecord(persistence.UserID(credentials.Unauthenticated), batch)
		require.NoError(t, err)
		assert.Equal(t, persistence.PaddedID(7), record.BatchKey)

		decoded, err := s.FromMutationBatchRecord(record)
		require.NoError(t, err)
		assert.Equal(t, 7, decoded.ID)
		assert.Equal(t, batch.LocalWriteTime, decoded.LocalWriteTime)
		require.Len(t, decoded.Mutations, 2)
		assert.Equal(t, batch.Keys().Keys(), decoded.Keys().Keys())
		assert.Equal(t, mutation.ExistsPrecondition(true), decoded.Mutations[1].Precondition())
	})

	t.Run("target test", func(t *testing.T) {
		target := query.NewQuery(key.ParsePath("rooms")).
			Where(query.Where("size", query.GreaterThan, value.Integer(2))).
			OrderBy("size", query.Descending).
			LimitToFirst(10).
			ToTarget()
		data := persistence.NewTargetData(target, 4, persistence.PurposeListen, 9).
			WithResumeToken([]byte("r"), time.VersionOf(3, 0))

		decoded, err := s.FromTargetRecord(s.ToTargetRecord(data))
		require.NoError(t, err)
		assert.Equal(t, target.CanonicalID(), decoded.Target.CanonicalID())
		assert.Equal(t, data.ResumeToken, decoded.ResumeToken)
		assert.Equal(t, data.SnapshotVersion, decoded.SnapshotVersion)
		assert.Equal(t, int64(9), decoded.SequenceNumber)
	})

	t.Run("named query keeps limit to last test", func(t *testing.T) {
		q := query.NewQuery(key.ParsePath("rooms")).OrderBy("size", query.Ascending).LimitToLast(2)
		named := &persistence.NamedQuery{Name: "latest", Query: q, ReadTime: time.VersionOf(8, 0)}

		decoded, err := s.FromNamedQueryRecord(s.ToNamedQueryRecord(named))
		require.NoError(t, err)
		assert.Equal(t, "latest", decoded.Name)
		assert.Equal(t, q.CanonicalID(), decoded.Query.CanonicalID())
		assert.Equal(t, query.LimitToLast, decoded.Query.LimitType)
	})
}
