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

package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/pkg/errors"
)

func TestKey(t *testing.T) {
	t.Run("parse test", func(t *testing.T) {
		k, err := Parse("rooms/eros/messages/1")
		require.NoError(t, err)
		assert.Equal(t, "rooms/eros/messages/1", k.String())
		assert.Equal(t, "messages", k.CollectionGroup())
		assert.Equal(t, "1", k.ID())
		assert.Equal(t, "rooms/eros/messages", k.CollectionPath().String())
		assert.True(t, k.HasCollectionID("messages"))
	})

	t.Run("invalid path test", func(t *testing.T) {
		_, err := Parse("rooms/eros/messages")
		assert.ErrorIs(t, err, ErrInvalidPath)
		assert.True(t, errors.IsStatus(err, errors.ErrCodeInvalidArgument))

		_, err = Parse("")
		assert.ErrorIs(t, err, ErrInvalidPath)
	})

	t.Run("ordering test", func(t *testing.T) {
		a := MustParse("a/b")
		b := MustParse("a/b/c/d")
		c := MustParse("a/c")
		d := MustParse("a/b/c/e")

		assert.True(t, a.Less(b))
		assert.True(t, b.Less(d))
		assert.True(t, d.Less(c))
		assert.Equal(t, 0, a.Compare(MustParse("/a/b/")))
		assert.True(t, a.Equal(MustParse("a/b")))
	})
}

func TestResourcePath(t *testing.T) {
	p := ParsePath("rooms/eros")
	child := p.Child("messages")

	assert.Equal(t, 2, p.Len())
	assert.True(t, p.IsPrefixOf(child))
	assert.True(t, p.IsImmediateParentOf(child))
	assert.False(t, p.IsImmediateParentOf(child.Child("1")))
	assert.Equal(t, "rooms/eros/messages", child.String())
	assert.True(t, child.Parent().Equal(p))
	assert.Equal(t, "eros", p.LastSegment())
	assert.True(t, NewPath().IsEmpty())
}

func TestDatabaseID(t *testing.T) {
	db := NewDatabaseID("p", "")
	k := MustParse("coll/doc")

	assert.Equal(t, "projects/p/databases/(default)/documents/coll/doc", db.DocumentName(k))

	parsed, err := db.ParseDocumentName(db.DocumentName(k))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(k))

	_, err = db.ParseDocumentName("projects/q/databases/(default)/documents/coll/doc")
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.Equal(t, -1, db.Compare(NewDatabaseID("q", "")))
}
