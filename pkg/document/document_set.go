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
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/llrb"
)

// Comparator orders documents.
type Comparator func(a, b *MutableDocument) int

// DocumentSet is a set of documents ordered by a comparator, with lookup by
// key. Documents with equal comparator results are ordered by key.
type DocumentSet struct {
	compare Comparator
	byKey   map[string]*MutableDocument
	sorted  *llrb.Tree[*MutableDocument, struct{}]
}

// NewDocumentSet creates an empty set ordered by compare. A nil comparator
// orders by key.
func NewDocumentSet(compare Comparator) *DocumentSet {
	if compare == nil {
		compare = CompareByKey
	}
	withKeys := func(a, b *MutableDocument) int {
		if c := compare(a, b); c != 0 {
			return c
		}
		return CompareByKey(a, b)
	}
	return &DocumentSet{
		compare: compare,
		byKey:   make(map[string]*MutableDocument),
		sorted:  llrb.NewTree[*MutableDocument, struct{}](withKeys),
	}
}

// Len returns the number of documents.
func (s *DocumentSet) Len() int {
	return len(s.byKey)
}

// IsEmpty returns whether the set has no documents.
func (s *DocumentSet) IsEmpty() bool {
	return len(s.byKey) == 0
}

// Has returns whether a document with the given key is in the set.
func (s *DocumentSet) Has(k key.Key) bool {
	_, ok := s.byKey[k.String()]
	return ok
}

// Get returns the document with the given key.
func (s *DocumentSet) Get(k key.Key) (*MutableDocument, bool) {
	doc, ok := s.byKey[k.String()]
	return doc, ok
}

// First returns the first document in order.
func (s *DocumentSet) First() (*MutableDocument, bool) {
	doc, _, ok := s.sorted.Min()
	return doc, ok
}

// Last returns the last document in order.
func (s *DocumentSet) Last() (*MutableDocument, bool) {
	doc, _, ok := s.sorted.Max()
	return doc, ok
}

// Add inserts the document, replacing a document with the same key.
func (s *DocumentSet) Add(doc *MutableDocument) {
	s.Delete(doc.Key())
	s.byKey[doc.Key().String()] = doc
	s.sorted.Put(doc, struct{}{})
}

// Delete removes the document with the given key if present.
func (s *DocumentSet) Delete(k key.Key) {
	existing, ok := s.byKey[k.String()]
	if !ok {
		return
	}
	delete(s.byKey, k.String())
	s.sorted.Remove(existing)
}

// Each calls fn for every document in order until fn returns false.
func (s *DocumentSet) Each(fn func(doc *MutableDocument) bool) {
	s.sorted.Each(func(doc *MutableDocument, _ struct{}) bool {
		return fn(doc)
	})
}

// Documents returns the documents in order.
func (s *DocumentSet) Documents() []*MutableDocument {
	docs := make([]*MutableDocument, 0, s.Len())
	s.Each(func(doc *MutableDocument) bool {
		docs = append(docs, doc)
		return true
	})
	return docs
}

// Keys returns the keys of the documents.
func (s *DocumentSet) Keys() *KeySet {
	keys := NewKeySet()
	for _, doc := range s.byKey {
		keys.Add(doc.Key())
	}
	return keys
}

// Clone returns a copy that can be updated without affecting s.
func (s *DocumentSet) Clone() *DocumentSet {
	byKey := make(map[string]*MutableDocument, len(s.byKey))
	for k, doc := range s.byKey {
		byKey[k] = doc
	}
	return &DocumentSet{
		compare: s.compare,
		byKey:   byKey,
		sorted:  s.sorted.Clone(),
	}
}

// Equal returns whether both sets hold equal documents in the same order.
func (s *DocumentSet) Equal(other *DocumentSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	a, b := s.Documents(), other.Documents()
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
