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

package persistence

import (
	"math"

	"github.com/google/btree"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
)

type reference struct {
	key key.Key
	id  int
}

func lessByKey(a, b reference) bool {
	if c := a.key.Compare(b.key); c != 0 {
		return c < 0
	}
	return a.id < b.id
}

func lessByID(a, b reference) bool {
	if a.id != b.id {
		return a.id < b.id
	}
	return a.key.Less(b.key)
}

// ReferenceSet is a set of references from ids, such as target ids or
// batch ids, to document keys. It answers both which keys an id refers to
// and whether any id refers to a key.
type ReferenceSet struct {
	byKey *btree.BTreeG[reference]
	byID  *btree.BTreeG[reference]
}

// NewReferenceSet creates an empty set.
func NewReferenceSet() *ReferenceSet {
	return &ReferenceSet{
		byKey: btree.NewG[reference](8, lessByKey),
		byID:  btree.NewG[reference](8, lessByID),
	}
}

// IsEmpty returns whether the set has no references.
func (s *ReferenceSet) IsEmpty() bool {
	return s.byKey.Len() == 0
}

// AddReference adds a reference from id to k.
func (s *ReferenceSet) AddReference(k key.Key, id int) {
	ref := reference{key: k, id: id}
	s.byKey.ReplaceOrInsert(ref)
	s.byID.ReplaceOrInsert(ref)
}

// AddReferences adds references from id to every key of keys.
func (s *ReferenceSet) AddReferences(keys *document.KeySet, id int) {
	keys.Each(func(k key.Key) bool {
		s.AddReference(k, id)
		return true
	})
}

// RemoveReference removes the reference from id to k.
func (s *ReferenceSet) RemoveReference(k key.Key, id int) {
	ref := reference{key: k, id: id}
	s.byKey.Delete(ref)
	s.byID.Delete(ref)
}

// RemoveReferences removes the references from id to every key of keys.
func (s *ReferenceSet) RemoveReferences(keys *document.KeySet, id int) {
	keys.Each(func(k key.Key) bool {
		s.RemoveReference(k, id)
		return true
	})
}

// RemoveReferencesForID removes every reference from id and returns the
// keys it referred to.
func (s *ReferenceSet) RemoveReferencesForID(id int) *document.KeySet {
	removed := s.ReferencesForID(id)
	removed.Each(func(k key.Key) bool {
		s.RemoveReference(k, id)
		return true
	})
	return removed
}

// RemoveAllReferences removes every reference and returns the keys that
// were referred to.
func (s *ReferenceSet) RemoveAllReferences() *document.KeySet {
	keys := document.NewKeySet()
	s.byKey.Ascend(func(ref reference) bool {
		keys.Add(ref.key)
		return true
	})
	s.byKey.Clear(false)
	s.byID.Clear(false)
	return keys
}

// ReferencesForID returns the keys id refers to.
func (s *ReferenceSet) ReferencesForID(id int) *document.KeySet {
	keys := document.NewKeySet()
	s.byID.AscendGreaterOrEqual(reference{id: id}, func(ref reference) bool {
		if ref.id != id {
			return false
		}
		keys.Add(ref.key)
		return true
	})
	return keys
}

// ContainsKey returns whether any id refers to k.
func (s *ReferenceSet) ContainsKey(k key.Key) bool {
	found := false
	s.byKey.AscendGreaterOrEqual(reference{key: k, id: math.MinInt}, func(ref reference) bool {
		found = ref.key.Equal(k)
		return false
	})
	return found
}
