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

package core

import (
	"fmt"
	"sort"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/query"
)

// ChangeType is the type of a change of a document in a view.
type ChangeType int

// The types of document changes.
const (
	ChangeAdded ChangeType = iota
	ChangeRemoved
	ChangeModified

	// ChangeMetadata means only the pending writes of the document
	// changed.
	ChangeMetadata
)

// String returns the name of the change type.
func (t ChangeType) String() string {
	switch t {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeModified:
		return "modified"
	case ChangeMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("change_%d", int(t))
	}
}

// DocumentChange is a change of one document of a view.
type DocumentChange struct {
	Type     ChangeType
	Document *document.MutableDocument
}

// documentChangeSet merges the changes of the documents of a view by key.
type documentChangeSet struct {
	changes map[string]DocumentChange
}

func newDocumentChangeSet() *documentChangeSet {
	return &documentChangeSet{changes: make(map[string]DocumentChange)}
}

// track records change, merging it with the change already recorded for
// the same document.
func (s *documentChangeSet) track(change DocumentChange) {
	k := change.Document.Key().String()
	old, ok := s.changes[k]
	if !ok {
		s.changes[k] = change
		return
	}

	switch {
	case change.Type != ChangeAdded && old.Type == ChangeMetadata:
		s.changes[k] = change
	case change.Type == ChangeMetadata && old.Type != ChangeRemoved:
		s.changes[k] = DocumentChange{Type: old.Type, Document: change.Document}
	case change.Type == ChangeModified && old.Type == ChangeModified:
		s.changes[k] = change
	case change.Type == ChangeModified && old.Type == ChangeAdded:
		s.changes[k] = DocumentChange{Type: ChangeAdded, Document: change.Document}
	case change.Type == ChangeRemoved && old.Type == ChangeAdded:
		delete(s.changes, k)
	case change.Type == ChangeRemoved && old.Type == ChangeModified:
		s.changes[k] = DocumentChange{Type: ChangeRemoved, Document: old.Document}
	case change.Type == ChangeAdded && old.Type == ChangeRemoved:
		s.changes[k] = DocumentChange{Type: ChangeModified, Document: change.Document}
	default:
		// Added after added, or removed after removed: the view computed
		// its changes from a stale document set.
		panic(fmt.Sprintf("unsupported change %s after %s for %s", change.Type, old.Type, k))
	}
}

// list returns the changes ordered by key.
func (s *documentChangeSet) list() []DocumentChange {
	changes := make([]DocumentChange, 0, len(s.changes))
	for _, change := range s.changes {
		changes = append(changes, change)
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Document.Key().Compare(changes[j].Document.Key()) < 0
	})
	return changes
}

// SyncState is whether a view is in sync with the backend.
type SyncState int

// The sync states of a view.
const (
	SyncStateNone SyncState = iota
	SyncStateLocal
	SyncStateSynced
)

// ViewSnapshot is the state of the results of a query at one point, along
// with how it changed since the previous snapshot.
type ViewSnapshot struct {
	Query        *query.Query
	Documents    *document.DocumentSet
	OldDocuments *document.DocumentSet
	DocChanges   []DocumentChange

	// FromCache is set until the results are known to be consistent with
	// the backend.
	FromCache bool

	// MutatedKeys holds the documents with pending writes.
	MutatedKeys *document.KeySet

	SyncStateChanged        bool
	ExcludesMetadataChanges bool

	// HasCachedResults is set when the backend already sent results for
	// the target of the query before.
	HasCachedResults bool
}

// newInitialSnapshot creates the first snapshot of a listener, in which
// every document is added.
func newInitialSnapshot(
	q *query.Query,
	docs *document.DocumentSet,
	mutatedKeys *document.KeySet,
	fromCache bool,
	excludesMetadataChanges bool,
	hasCachedResults bool,
) *ViewSnapshot {
	changes := make([]DocumentChange, 0, docs.Len())
	docs.Each(func(doc *document.MutableDocument) bool {
		changes = append(changes, DocumentChange{Type: ChangeAdded, Document: doc})
		return true
	})

	return &ViewSnapshot{
		Query:                   q,
		Documents:               docs,
		OldDocuments:            document.NewDocumentSet(q.Comparator()),
		DocChanges:              changes,
		FromCache:               fromCache,
		MutatedKeys:             mutatedKeys,
		SyncStateChanged:        true,
		ExcludesMetadataChanges: excludesMetadataChanges,
		HasCachedResults:        hasCachedResults,
	}
}

// HasPendingWrites returns whether any document of the snapshot has
// pending writes.
func (s *ViewSnapshot) HasPendingWrites() bool {
	return !s.MutatedKeys.IsEmpty()
}

// withoutMetadataChanges returns a copy of the snapshot without the
// changes that only touched pending writes.
func (s *ViewSnapshot) withoutMetadataChanges() *ViewSnapshot {
	changes := make([]DocumentChange, 0, len(s.DocChanges))
	for _, change := range s.DocChanges {
		if change.Type != ChangeMetadata {
			changes = append(changes, change)
		}
	}

	copied := *s
	copied.DocChanges = changes
	copied.ExcludesMetadataChanges = true
	return &copied
}

// Equal returns whether both snapshots are identical.
func (s *ViewSnapshot) Equal(other *ViewSnapshot) bool {
	if s.FromCache != other.FromCache ||
		s.HasCachedResults != other.HasCachedResults ||
		s.SyncStateChanged != other.SyncStateChanged ||
		s.ExcludesMetadataChanges != other.ExcludesMetadataChanges ||
		s.Query.CanonicalID() != other.Query.CanonicalID() ||
		!s.MutatedKeys.Equal(other.MutatedKeys) ||
		!s.Documents.Equal(other.Documents) ||
		!s.OldDocuments.Equal(other.OldDocuments) ||
		len(s.DocChanges) != len(other.DocChanges) {
		return false
	}
	for i, change := range s.DocChanges {
		if change.Type != other.DocChanges[i].Type || !change.Document.Equal(other.DocChanges[i].Document) {
			return false
		}
	}
	return true
}

// LimboChangeType is whether a document entered or left limbo.
type LimboChangeType int

// The types of limbo changes.
const (
	LimboAdded LimboChangeType = iota
	LimboRemoved
)

// LimboDocumentChange is a document entering or leaving the limbo of a
// view.
type LimboDocumentChange struct {
	Type LimboChangeType
	Key  key.Key
}
