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

package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
)

func doc(path string, version int64, data value.Map) *document.MutableDocument {
	return document.NewFoundDocument(key.MustParse(path), time.VersionOf(version, 0), value.NewObject(data))
}

func TestMutableDocument(t *testing.T) {
	t.Run("conversion test", func(t *testing.T) {
		d := document.NewInvalidDocument(key.MustParse("c/a"))
		assert.False(t, d.IsValidDocument())

		d.ConvertToFoundDocument(time.VersionOf(1, 0), value.NewObject(value.Map{"a": value.Integer(1)}))
		assert.True(t, d.IsFoundDocument())
		assert.Equal(t, document.StateSynced, d.State())

		d.SetHasLocalMutations()
		assert.True(t, d.HasLocalMutations())
		assert.True(t, d.HasPendingWrites())
		assert.True(t, d.Version().IsMin())

		d.ConvertToNoDocument(time.VersionOf(2, 0))
		assert.True(t, d.IsNoDocument())
		assert.False(t, d.HasPendingWrites())

		d.ConvertToUnknownDocument(time.VersionOf(3, 0))
		assert.True(t, d.IsUnknownDocument())
		assert.True(t, d.HasCommittedMutations())
	})

	t.Run("clone test", func(t *testing.T) {
		original := doc("c/a", 1, value.Map{"a": value.Integer(1)})
		cloned := original.Clone()
		cloned.MutableData().Set(value.ParseFieldPath("a"), value.Integer(2))
		cloned.SetHasLocalMutations()

		v, _ := original.Field(value.ParseFieldPath("a"))
		assert.Equal(t, value.Integer(1), v)
		assert.False(t, original.HasLocalMutations())
		assert.False(t, original.Equal(cloned))
		assert.True(t, original.Equal(original.Clone()))
	})
}

func TestDocumentSet(t *testing.T) {
	byField := func(a, b *document.MutableDocument) int {
		av, _ := a.Field(value.ParseFieldPath("order"))
		bv, _ := b.Field(value.ParseFieldPath("order"))
		return value.Compare(av, bv)
	}

	t.Run("ordering test", func(t *testing.T) {
		set := document.NewDocumentSet(byField)
		set.Add(doc("c/a", 1, value.Map{"order": value.Integer(3)}))
		set.Add(doc("c/b", 1, value.Map{"order": value.Integer(1)}))
		set.Add(doc("c/c", 1, value.Map{"order": value.Integer(2)}))
		set.Add(doc("c/d", 1, value.Map{"order": value.Integer(2)}))

		var keys []string
		for _, d := range set.Documents() {
			keys = append(keys, d.Key().String())
		}
		assert.Equal(t, []string{"c/b", "c/c", "c/d", "c/a"}, keys)

		first, ok := set.First()
		require.True(t, ok)
		assert.Equal(t, "c/b", first.Key().String())
		last, _ := set.Last()
		assert.Equal(t, "c/a", last.Key().String())
	})

	t.Run("replace and delete test", func(t *testing.T) {
		set := document.NewDocumentSet(byField)
		set.Add(doc("c/a", 1, value.Map{"order": value.Integer(3)}))
		set.Add(doc("c/b", 1, value.Map{"order": value.Integer(1)}))

		cloned := set.Clone()
		cloned.Add(doc("c/a", 2, value.Map{"order": value.Integer(0)}))
		first, _ := cloned.First()
		assert.Equal(t, "c/a", first.Key().String())
		assert.Equal(t, 2, cloned.Len())

		first, _ = set.First()
		assert.Equal(t, "c/b", first.Key().String())

		cloned.Delete(key.MustParse("c/a"))
		cloned.Delete(key.MustParse("c/zzz"))
		assert.Equal(t, 1, cloned.Len())
		assert.False(t, cloned.Has(key.MustParse("c/a")))
		assert.True(t, set.Has(key.MustParse("c/a")))
		assert.False(t, set.Equal(cloned))
		assert.True(t, set.Equal(set.Clone()))
	})
}

func TestKeySet(t *testing.T) {
	a, b, c := key.MustParse("c/a"), key.MustParse("c/b"), key.MustParse("c/c")

	set := document.NewKeySet(c, a)
	assert.True(t, set.Add(b))
	assert.False(t, set.Add(b))
	assert.Equal(t, []key.Key{a, b, c}, set.Keys())

	cloned := set.Clone()
	assert.True(t, cloned.Delete(a))
	assert.False(t, cloned.Delete(a))
	assert.True(t, set.Has(a))
	assert.False(t, cloned.Has(a))

	union := cloned.Union(document.NewKeySet(a))
	assert.True(t, union.Equal(set))
	assert.False(t, cloned.Equal(set))

	m := document.NewDocumentMap()
	m.Set(doc("c/b", 1, nil))
	m.Set(doc("c/a", 1, nil))
	got, ok := m.Get(a)
	require.True(t, ok)
	assert.Equal(t, "c/a", got.Key().String())
	m.Delete(a)
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Keys().Equal(document.NewKeySet(b)))
}
