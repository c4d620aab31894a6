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

package document

import (
	"github.com/google/btree"

	"github.com/yorkie-team/docsync/pkg/document/key"
)

const btreeDegree = 8

func lessKey(a, b key.Key) bool {
	return a.Less(b)
}

// KeySet is an ordered set of document keys. Clones share structure and
// copy on write.
type KeySet struct {
	tree *btree.BTreeG[key.Key]
}

// NewKeySet creates a set holding the given keys.
func NewKeySet(keys ...key.Key) *KeySet {
	s := &KeySet{tree: btree.NewG[key.Key](btreeDegree, lessKey)}
	for _, k := range keys {
		s.tree.ReplaceOrInsert(k)
	}
	return s
}

// Add inserts the key. It returns false if the key was already present.
func (s *KeySet) Add(k key.Key) bool {
	_, replaced := s.tree.ReplaceOrInsert(k)
	return !replaced
}

// Delete removes the key. It returns false if the key was absent.
func (s *KeySet) Delete(k key.Key) bool {
	_, removed := s.tree.Delete(k)
	return removed
}

// Has returns whether the key is in the set.
func (s *KeySet) Has(k key.Key) bool {
	return s.tree.Has(k)
}

// Len returns the number of keys.
func (s *KeySet) Len() int {
	return s.tree.Len()
}

// IsEmpty returns whether the set has no keys.
func (s *KeySet) IsEmpty() bool {
	return s.tree.Len() == 0
}

// Each calls fn for every key in order until fn returns false.
func (s *KeySet) Each(fn func(k key.Key) bool) {
	s.tree.Ascend(fn)
}

// Keys returns the keys in order.
func (s *KeySet) Keys() []key.Key {
	keys := make([]key.Key, 0, s.tree.Len())
	s.tree.Ascend(func(k key.Key) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// First returns the smallest key.
func (s *KeySet) First() (key.Key, bool) {
	return s.tree.Min()
}

// Clone returns a copy that can be updated without affecting s.
func (s *KeySet) Clone() *KeySet {
	return &KeySet{tree: s.tree.Clone()}
}

// Union returns a new set with the keys of both sets.
func (s *KeySet) Union(other *KeySet) *KeySet {
	merged := s.Clone()
	other.Each(func(k key.Key) bool {
		merged.Add(k)
		return true
	})
	return merged
}

// Equal returns whether both sets hold the same keys.
func (s *KeySet) Equal(other *KeySet) bool {
	if s.Len() != other.Len() {
		return false
	}
	equal := true
	s.Each(func(k key.Key) bool {
		equal = other.Has(k)
		return equal
	})
	return equal
}

// DocumentMap is a map of documents ordered by key.
type DocumentMap struct {
	tree *btree.BTreeG[*MutableDocument]
}

// NewDocumentMap creates an empty map.
func NewDocumentMap() *DocumentMap {
	return &DocumentMap{tree: btree.NewG[*MutableDocument](btreeDegree, func(a, b *MutableDocument) bool {
		return a.Key().Less(b.Key())
	})}
}

// Set stores the document under its key.
func (m *DocumentMap) Set(doc *MutableDocument) {
	m.tree.ReplaceOrInsert(doc)
}

// Get returns the document with the given key.
func (m *DocumentMap) Get(k key.Key) (*MutableDocument, bool) {
	return m.tree.Get(NewInvalidDocument(k))
}

// Delete removes the document with the given key.
func (m *DocumentMap) Delete(k key.Key) {
	m.tree.Delete(NewInvalidDocument(k))
}

// Len returns the number of documents.
func (m *DocumentMap) Len() int {
	return m.tree.Len()
}

// Each calls fn for every document in key order until fn returns false.
func (m *DocumentMap) Each(fn func(doc *MutableDocument) bool) {
	m.tree.Ascend(fn)
}

// Keys returns the keys of the map.
func (m *DocumentMap) Keys() *KeySet {
	keys := NewKeySet()
	m.Each(func(doc *MutableDocument) bool {
		keys.Add(doc.Key())
		return true
	})
	return keys
}
