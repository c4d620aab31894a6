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
	"sort"

	"github.com/yorkie-team/docsync/local"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote"
)

// ViewDocumentChanges are the changes computed by a view, not applied to
// it yet.
type ViewDocumentChanges struct {
	documents   *document.DocumentSet
	changes     *documentChangeSet
	mutatedKeys *document.KeySet

	// needsRefill is set when a document left a limited view whose
	// replacement may not be among the changed documents.
	needsRefill bool
}

// ViewChange is the result of applying changes to a view. Snapshot is nil
// if nothing visible changed.
type ViewChange struct {
	Snapshot     *ViewSnapshot
	LimboChanges []LimboDocumentChange
}

// View keeps the results of one query and computes the snapshots raised
// when documents change.
type View struct {
	query     *query.Query
	syncState SyncState

	// current is set once the backend sent every result of the target.
	current bool

	documents   *document.DocumentSet
	mutatedKeys *document.KeySet

	// syncedDocuments holds the keys the backend reported for the target.
	syncedDocuments *document.KeySet

	// limboDocuments holds the documents shown by the view that the
	// backend did not report.
	limboDocuments *document.KeySet

	hasCachedResults bool
}

// NewView creates a view of q whose target the backend last reported
// remoteKeys for.
func NewView(q *query.Query, remoteKeys *document.KeySet, hasCachedResults bool) *View {
	return &View{
		query:            q,
		syncState:        SyncStateNone,
		documents:        document.NewDocumentSet(q.Comparator()),
		mutatedKeys:      document.NewKeySet(),
		syncedDocuments:  remoteKeys.Clone(),
		limboDocuments:   document.NewKeySet(),
		hasCachedResults: hasCachedResults,
	}
}

// Query returns the query of the view.
func (v *View) Query() *query.Query {
	return v.query
}

// SyncedDocuments returns the keys the backend reported for the target of
// the view.
func (v *View) SyncedDocuments() *document.KeySet {
	return v.syncedDocuments
}

// LimboDocuments returns the keys of the documents of the view in limbo.
func (v *View) LimboDocuments() *document.KeySet {
	return v.limboDocuments
}

// ComputeDocChanges computes how changed documents change the results of
// the view. previous holds changes computed before and not applied yet;
// the result builds on them.
func (v *View) ComputeDocChanges(changed *document.DocumentMap, previous *ViewDocumentChanges) *ViewDocumentChanges {
	changeSet := newDocumentChangeSet()
	oldDocuments, mutatedKeys := v.documents, v.mutatedKeys
	if previous != nil {
		changeSet = previous.changes
		oldDocuments, mutatedKeys = previous.documents, previous.mutatedKeys
	}
	newDocuments := oldDocuments.Clone()
	newMutatedKeys := mutatedKeys.Clone()
	compare := v.query.Comparator()

	// The documents at the edge of a full limited view. A document moving
	// past them may let in one that is not among the changed documents.
	var lastInLimit, firstInLimit *document.MutableDocument
	if v.query.HasLimit() && oldDocuments.Len() == v.query.Limit {
		if v.query.LimitType == query.LimitToFirst {
			lastInLimit, _ = oldDocuments.Last()
		} else {
			firstInLimit, _ = oldDocuments.First()
		}
	}

	needsRefill := false
	changed.Each(func(entry *document.MutableDocument) bool {
		k := entry.Key()
		oldDoc, hadOld := oldDocuments.Get(k)
		var newDoc *document.MutableDocument
		if v.query.Matches(entry) {
			newDoc = entry
		}

		oldHadPendingWrites := hadOld && mutatedKeys.Has(k)
		newHasPendingWrites := newDoc != nil &&
			(newDoc.HasLocalMutations() || (mutatedKeys.Has(k) && newDoc.HasCommittedMutations()))

		applied := false
		switch {
		case hadOld && newDoc != nil:
			if !oldDoc.Data().Equal(newDoc.Data()) {
				if !shouldWaitForSyncedDocument(oldDoc, newDoc) {
					changeSet.track(DocumentChange{Type: ChangeModified, Document: newDoc})
					applied = true

					if (lastInLimit != nil && compare(newDoc, lastInLimit) > 0) ||
						(firstInLimit != nil && compare(newDoc, firstInLimit) < 0) {
						needsRefill = true
					}
				}
			} else if oldHadPendingWrites != newHasPendingWrites {
				changeSet.track(DocumentChange{Type: ChangeMetadata, Document: newDoc})
				applied = true
			}
		case !hadOld && newDoc != nil:
			changeSet.track(DocumentChange{Type: ChangeAdded, Document: newDoc})
			applied = true
		case hadOld && newDoc == nil:
			changeSet.track(DocumentChange{Type: ChangeRemoved, Document: oldDoc})
			applied = true
			if lastInLimit != nil || firstInLimit != nil {
				needsRefill = true
			}
		}

		if applied {
			if newDoc != nil {
				newDocuments.Add(newDoc)
				if newHasPendingWrites {
					newMutatedKeys.Add(k)
				} else {
					newMutatedKeys.Delete(k)
				}
			} else {
				newDocuments.Delete(k)
				newMutatedKeys.Delete(k)
			}
		}
		return true
	})

	if v.query.HasLimit() {
		for n := newDocuments.Len() - v.query.Limit; n > 0; n-- {
			var dropped *document.MutableDocument
			if v.query.LimitType == query.LimitToFirst {
				dropped, _ = newDocuments.Last()
			} else {
				dropped, _ = newDocuments.First()
			}
			newDocuments.Delete(dropped.Key())
			newMutatedKeys.Delete(dropped.Key())
			changeSet.track(DocumentChange{Type: ChangeRemoved, Document: dropped})
		}
	}

	return &ViewDocumentChanges{
		documents:   newDocuments,
		changes:     changeSet,
		mutatedKeys: newMutatedKeys,
		needsRefill: needsRefill,
	}
}

// shouldWaitForSyncedDocument returns whether the change from oldDoc to
// newDoc is a write acknowledged before the backend sent the document. The
// view keeps the local version until then, so that the document does not
// flicker back to its previous state.
func shouldWaitForSyncedDocument(oldDoc, newDoc *document.MutableDocument) bool {
	return oldDoc.HasLocalMutations() && newDoc.HasCommittedMutations() && !newDoc.HasLocalMutations()
}

// ApplyChanges applies changes computed by ComputeDocChanges along with
// the target change of a remote event. targetIsPendingReset is set when
// the backend must send every document of the target again.
func (v *View) ApplyChanges(
	docChanges *ViewDocumentChanges,
	updateLimboDocuments bool,
	targetChange *remote.TargetChange,
	targetIsPendingReset bool,
) *ViewChange {
	oldDocuments := v.documents
	v.documents = docChanges.documents
	v.mutatedKeys = docChanges.mutatedKeys

	changes := docChanges.changes.list()
	compare := v.query.Comparator()
	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changeTypeOrder(changes[i].Type), changeTypeOrder(changes[j].Type)
		if a != b {
			return a < b
		}
		return compare(changes[i].Document, changes[j].Document) < 0
	})

	v.applyTargetChange(targetChange)

	var limboChanges []LimboDocumentChange
	if updateLimboDocuments && !targetIsPendingReset {
		limboChanges = v.updateLimboDocuments()
	}

	synced := v.limboDocuments.IsEmpty() && v.current && !targetIsPendingReset
	newSyncState := SyncStateLocal
	if synced {
		newSyncState = SyncStateSynced
	}
	syncStateChanged := newSyncState != v.syncState
	v.syncState = newSyncState

	if len(changes) == 0 && !syncStateChanged {
		return &ViewChange{LimboChanges: limboChanges}
	}

	if targetChange != nil && len(targetChange.ResumeToken) > 0 {
		v.hasCachedResults = true
	}
	return &ViewChange{
		Snapshot: &ViewSnapshot{
			Query:            v.query,
			Documents:        v.documents,
			OldDocuments:     oldDocuments,
			DocChanges:       changes,
			FromCache:        newSyncState == SyncStateLocal,
			MutatedKeys:      v.mutatedKeys,
			SyncStateChanged: syncStateChanged,
			HasCachedResults: v.hasCachedResults,
		},
		LimboChanges: limboChanges,
	}
}

// ApplyOnlineStateChange marks the view as not current when the client
// went offline, so that its next snapshot is raised from the cache.
func (v *View) ApplyOnlineStateChange(state remote.OnlineState) *ViewChange {
	if !v.current || state != remote.OnlineStateOffline {
		return &ViewChange{}
	}

	// The backend sends the target again once online, which marks the
	// view current again.
	v.current = false
	return v.ApplyChanges(&ViewDocumentChanges{
		documents:   v.documents,
		changes:     newDocumentChangeSet(),
		mutatedKeys: v.mutatedKeys,
	}, false, nil, false)
}

// SynchronizeWithPersistedState resets the view to the results of its
// query read from the local store, after the user changed.
func (v *View) SynchronizeWithPersistedState(result *local.QueryResult) *ViewChange {
	v.syncedDocuments = result.RemoteKeys.Clone()
	v.limboDocuments = document.NewKeySet()
	docChanges := v.ComputeDocChanges(result.Documents, nil)
	return v.ApplyChanges(docChanges, true, nil, false)
}

func (v *View) applyTargetChange(change *remote.TargetChange) {
	if change == nil {
		return
	}

	change.AddedDocuments.Each(func(k key.Key) bool {
		v.syncedDocuments.Add(k)
		return true
	})
	change.RemovedDocuments.Each(func(k key.Key) bool {
		v.syncedDocuments.Delete(k)
		return true
	})
	v.current = change.Current
}

// updateLimboDocuments recomputes the documents in limbo and returns the
// ones that entered or left it. Documents can only be in limbo once the
// view is current.
func (v *View) updateLimboDocuments() []LimboDocumentChange {
	if !v.current {
		return nil
	}

	oldLimbo := v.limboDocuments
	v.limboDocuments = document.NewKeySet()
	v.documents.Each(func(doc *document.MutableDocument) bool {
		if v.shouldBeInLimbo(doc.Key()) {
			v.limboDocuments.Add(doc.Key())
		}
		return true
	})

	var changes []LimboDocumentChange
	oldLimbo.Each(func(k key.Key) bool {
		if !v.limboDocuments.Has(k) {
			changes = append(changes, LimboDocumentChange{Type: LimboRemoved, Key: k})
		}
		return true
	})
	v.limboDocuments.Each(func(k key.Key) bool {
		if !oldLimbo.Has(k) {
			changes = append(changes, LimboDocumentChange{Type: LimboAdded, Key: k})
		}
		return true
	})
	return changes
}

func (v *View) shouldBeInLimbo(k key.Key) bool {
	if v.syncedDocuments.Has(k) {
		return false
	}
	doc, ok := v.documents.Get(k)
	if !ok {
		return false
	}
	// Documents written locally are expected to be missing from the
	// backend until the write is acknowledged.
	return !doc.HasLocalMutations()
}

func changeTypeOrder(t ChangeType) int {
	switch t {
	case ChangeRemoved:
		return 0
	case ChangeAdded:
		return 1
	default:
		return 2
	}
}
