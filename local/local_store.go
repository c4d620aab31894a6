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

// Package local keeps the local view of documents: the remote document
// cache with the pending writes of the current user folded on top. It
// applies writes, acknowledgements and remote events to the persistence,
// each in one transaction, and answers queries from the local view.
package local

import (
	"context"
	"fmt"
	gotime "time"

	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote"
)

// resumeTokenMaxAge is the age after which a new resume token is persisted
// even if nothing else about the target changed.
const resumeTokenMaxAge = 5 * gotime.Minute

// Store is the local store. It is not safe for concurrent use; the sync
// engine calls it from its queue only.
type Store struct {
	persistence persistence.Persistence
	user        credentials.User
	logger      logging.Logger

	mutationQueue   persistence.MutationQueue
	overlays        persistence.DocumentOverlayCache
	remoteDocuments persistence.RemoteDocumentCache
	targetCache     persistence.TargetCache
	namedQueries    persistence.NamedQueryCache

	localDocuments *LocalDocumentsView
	queryEngine    *QueryEngine

	// localViewReferences pins the documents shown by views so that they
	// are not collected while listened to.
	localViewReferences *persistence.ReferenceSet

	// targets holds the active targets by id, with the state not yet
	// persisted.
	targets map[int]*persistence.TargetData

	// targetIDs maps the canonical id of active targets to their id.
	targetIDs map[string]int
}

// NewStore creates a local store on p for the given user.
func NewStore(p persistence.Persistence, user credentials.User) *Store {
	s := &Store{
		persistence:         p,
		logger:              logging.New("local"),
		remoteDocuments:     p.RemoteDocumentCache(),
		targetCache:         p.TargetCache(),
		namedQueries:        p.NamedQueryCache(),
		localViewReferences: persistence.NewReferenceSet(),
		targets:             make(map[int]*persistence.TargetData),
		targetIDs:           make(map[string]int),
	}
	p.ReferenceDelegate().SetInMemoryPins(s.localViewReferences)
	s.queryEngine = NewQueryEngine(nil, s.logger)
	s.initializeUserComponents(user)
	return s
}

func (s *Store) initializeUserComponents(user credentials.User) {
	s.user = user
	s.mutationQueue = s.persistence.MutationQueue(user)
	s.overlays = s.persistence.DocumentOverlayCache(user)
	s.localDocuments = NewLocalDocumentsView(s.remoteDocuments, s.mutationQueue, s.overlays)
	s.queryEngine.setLocalDocumentsView(s.localDocuments)
}

// Start prepares the mutation queue of the current user.
func (s *Store) Start(ctx context.Context) error {
	return s.persistence.RunTransaction(ctx, "Start LocalStore", persistence.ReadWrite, func(txn persistence.Transaction) error {
		return s.startMutationQueue(txn)
	})
}

// startMutationQueue drops the stream token of an empty queue: a fresh
// write stream handshake must not resume from acknowledged writes.
func (s *Store) startMutationQueue(txn persistence.Transaction) error {
	empty, err := s.mutationQueue.CheckEmpty(txn)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}
	return s.mutationQueue.SetLastStreamToken(txn, nil)
}

// User returns the user whose pending writes are applied.
func (s *Store) User() credentials.User {
	return s.user
}

// LocalDocuments returns the local view of documents.
func (s *Store) LocalDocuments() *LocalDocumentsView {
	return s.localDocuments
}

// HandleUserChange switches to the pending writes of user. It returns the
// local view of every document written by the previous or the new user.
func (s *Store) HandleUserChange(ctx context.Context, user credentials.User) (*document.DocumentMap, error) {
	var changes *document.DocumentMap
	previous := s.user
	err := s.persistence.RunTransaction(ctx, "Handle user change", persistence.ReadWrite, func(txn persistence.Transaction) error {
		oldBatches, err := s.mutationQueue.AllMutationBatches(txn)
		if err != nil {
			return err
		}

		s.initializeUserComponents(user)
		if err := s.startMutationQueue(txn); err != nil {
			return err
		}

		newBatches, err := s.mutationQueue.AllMutationBatches(txn)
		if err != nil {
			return err
		}

		changed := document.NewKeySet()
		for _, batches := range [][]*mutation.Batch{oldBatches, newBatches} {
			for _, batch := range batches {
				changed = changed.Union(batch.Keys())
			}
		}

		changes, err = s.localDocuments.GetDocuments(txn, changed)
		return err
	})
	if err != nil {
		// The caches of the new user were never committed to.
		s.initializeUserComponents(previous)
		return nil, err
	}

	s.logger.Debugf("switched to user %s", user.Key())
	return changes, nil
}

// Write queues mutations as one batch and returns the local view of the
// documents it writes.
func (s *Store) Write(ctx context.Context, mutations []mutation.Mutation) (*WriteResult, error) {
	localWriteTime := time.Now()
	keys := document.NewKeySet()
	for _, m := range mutations {
		keys.Add(m.Key())
	}

	var result *WriteResult
	err := s.persistence.RunTransaction(ctx, "Locally write mutations", persistence.ReadWrite, func(txn persistence.Transaction) error {
		remoteDocs, err := s.remoteDocuments.GetAll(txn, keys)
		if err != nil {
			return err
		}

		withoutRemoteVersion := document.NewKeySet()
		remoteDocs.Each(func(doc *document.MutableDocument) bool {
			if !doc.IsValidDocument() {
				withoutRemoteVersion.Add(doc.Key())
			}
			return true
		})

		overlayed, err := s.localDocuments.GetOverlayedDocuments(txn, remoteDocs)
		if err != nil {
			return err
		}

		batch, err := s.mutationQueue.AddMutationBatch(txn, localWriteTime, mutations)
		if err != nil {
			return err
		}

		overlays := batch.ApplyToLocalDocumentSet(overlayed, withoutRemoteVersion)
		if err := s.overlays.SaveOverlays(txn, batch.ID, overlays); err != nil {
			return err
		}

		changes := document.NewDocumentMap()
		for _, o := range overlayed {
			changes.Set(o.Document)
		}
		result = &WriteResult{BatchID: batch.ID, Changes: changes}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// AcknowledgeBatch applies the backend results of the first queued batch
// to the remote documents, removes the batch and recalculates the
// overlays of its documents from the remaining batches. It returns the
// local view of those documents.
func (s *Store) AcknowledgeBatch(ctx context.Context, result *mutation.BatchResult) (*document.DocumentMap, error) {
	var changes *document.DocumentMap
	err := s.persistence.RunTransaction(ctx, "Acknowledge batch", persistence.ReadWritePrimary, func(txn persistence.Transaction) error {
		batch := result.Batch
		if err := s.mutationQueue.AcknowledgeBatch(txn, batch, result.StreamToken); err != nil {
			return err
		}
		if err := s.applyWriteToRemoteDocuments(txn, result); err != nil {
			return err
		}

		keys := batch.Keys()
		if err := s.overlays.RemoveOverlaysForBatchID(txn, keys, batch.ID); err != nil {
			return err
		}
		if err := s.localDocuments.RecalculateAndSaveOverlays(txn, keys); err != nil {
			return err
		}

		var err error
		changes, err = s.localDocuments.GetDocuments(txn, keys)
		return err
	})
	if err != nil {
		return nil, err
	}

	return changes, nil
}

func (s *Store) applyWriteToRemoteDocuments(txn persistence.Transaction, result *mutation.BatchResult) error {
	batch := result.Batch
	versions := result.DocVersions()

	var err error
	batch.Keys().Each(func(k key.Key) bool {
		var doc *document.MutableDocument
		doc, err = s.remoteDocuments.Get(txn, k)
		if err != nil {
			return false
		}

		// A newer version already arrived through watch.
		ackVersion, ok := versions[k.String()]
		if !ok || doc.Version().Compare(ackVersion) >= 0 {
			return true
		}

		if err = batch.ApplyToRemoteDocument(doc, result); err != nil {
			return false
		}
		if doc.IsValidDocument() {
			err = s.remoteDocuments.Add(txn, doc, result.CommitVersion)
		}
		return err == nil
	})
	if err != nil {
		return err
	}

	return s.mutationQueue.RemoveMutationBatch(txn, batch)
}

// RejectBatch removes the first queued batch, which the backend rejected,
// and recalculates the overlays of its documents from the remaining
// batches. It returns the local view of those documents.
func (s *Store) RejectBatch(ctx context.Context, batchID int) (*document.DocumentMap, error) {
	var changes *document.DocumentMap
	err := s.persistence.RunTransaction(ctx, "Reject batch", persistence.ReadWritePrimary, func(txn persistence.Transaction) error {
		batch, err := s.mutationQueue.LookupMutationBatch(txn, batchID)
		if err != nil {
			return err
		}
		if batch == nil {
			return fmt.Errorf("reject batch %d: %w", batchID, persistence.ErrBatchNotFound)
		}

		if err := s.mutationQueue.RemoveMutationBatch(txn, batch); err != nil {
			return err
		}

		keys := batch.Keys()
		if err := s.overlays.RemoveOverlaysForBatchID(txn, keys, batch.ID); err != nil {
			return err
		}
		if err := s.localDocuments.RecalculateAndSaveOverlays(txn, keys); err != nil {
			return err
		}

		changes, err = s.localDocuments.GetDocuments(txn, keys)
		return err
	})
	if err != nil {
		return nil, err
	}

	return changes, nil
}

// HighestUnacknowledgedBatchID returns the id of the last queued batch, or
// mutation.UnknownBatchID if the queue is empty.
func (s *Store) HighestUnacknowledgedBatchID(ctx context.Context) (int, error) {
	var batchID int
	err := s.persistence.RunTransaction(ctx, "Get highest unacknowledged batch id", persistence.ReadOnly, func(txn persistence.Transaction) error {
		var err error
		batchID, err = s.mutationQueue.HighestUnacknowledgedBatchID(txn)
		return err
	})
	return batchID, err
}

// NextMutationBatch returns the first queued batch after afterBatchID, or
// nil. Pass mutation.UnknownBatchID to get the first batch.
func (s *Store) NextMutationBatch(ctx context.Context, afterBatchID int) (*mutation.Batch, error) {
	var batch *mutation.Batch
	err := s.persistence.RunTransaction(ctx, "Get next mutation batch", persistence.ReadOnly, func(txn persistence.Transaction) error {
		var err error
		batch, err = s.mutationQueue.NextMutationBatchAfterBatchID(txn, afterBatchID)
		return err
	})
	return batch, err
}

// LastStreamToken returns the token of the last write stream response.
func (s *Store) LastStreamToken(ctx context.Context) ([]byte, error) {
	var token []byte
	err := s.persistence.RunTransaction(ctx, "Get last stream token", persistence.ReadOnly, func(txn persistence.Transaction) error {
		var err error
		token, err = s.mutationQueue.LastStreamToken(txn)
		return err
	})
	return token, err
}

// SetLastStreamToken records the token of a write stream response.
func (s *Store) SetLastStreamToken(ctx context.Context, token []byte) error {
	return s.persistence.RunTransaction(ctx, "Set last stream token", persistence.ReadWritePrimary, func(txn persistence.Transaction) error {
		return s.mutationQueue.SetLastStreamToken(txn, token)
	})
}

// LastRemoteSnapshotVersion returns the version of the last applied remote
// event.
func (s *Store) LastRemoteSnapshotVersion(ctx context.Context) (time.SnapshotVersion, error) {
	var version time.SnapshotVersion
	err := s.persistence.RunTransaction(ctx, "Get last remote snapshot version", persistence.ReadOnly, func(txn persistence.Transaction) error {
		var err error
		version, err = s.targetCache.LastRemoteSnapshotVersion(txn)
		return err
	})
	return version, err
}

// ApplyRemoteEvent applies a remote event to the remote documents and the
// targets, and returns the local view of the changed documents.
func (s *Store) ApplyRemoteEvent(ctx context.Context, event *remote.RemoteEvent) (*document.DocumentMap, error) {
	var changes *document.DocumentMap
	updated := make(map[int]*persistence.TargetData)

	err := s.persistence.RunTransaction(ctx, "Apply remote event", persistence.ReadWritePrimary, func(txn persistence.Transaction) error {
		sequenceNumber, err := s.targetCache.NextSequenceNumber(txn)
		if err != nil {
			return err
		}

		for targetID, change := range event.TargetChanges {
			old, ok := s.targets[targetID]
			if !ok {
				// Remote keys are only tracked for active targets.
				continue
			}

			if err := s.targetCache.RemoveMatchingKeys(txn, change.RemovedDocuments, targetID); err != nil {
				return err
			}
			if err := s.targetCache.AddMatchingKeys(txn, change.AddedDocuments, targetID); err != nil {
				return err
			}

			next := old.WithSequenceNumber(sequenceNumber)
			_, mismatched := event.TargetMismatches[targetID]
			if mismatched {
				next = next.WithResumeToken(nil, time.MinVersion).
					WithLastLimboFreeSnapshotVersion(time.MinVersion)
			} else if len(change.ResumeToken) > 0 {
				next = next.WithResumeToken(change.ResumeToken, event.SnapshotVersion)
			}
			updated[targetID] = next

			if mismatched || shouldPersistTargetData(old, next, change) {
				if err := s.targetCache.UpdateTargetData(txn, next); err != nil {
					return err
				}
			}
		}

		delegate := s.persistence.ReferenceDelegate()
		var limboErr error
		event.DocumentUpdates.Each(func(doc *document.MutableDocument) bool {
			if event.ResolvedLimboDocuments.Has(doc.Key()) {
				limboErr = delegate.UpdateLimboDocument(txn, doc.Key())
			}
			return limboErr == nil
		})
		if limboErr != nil {
			return limboErr
		}

		updates, err := s.withoutHeldDocuments(txn, event)
		if err != nil {
			return err
		}

		changed, existenceChanged, err := s.populateDocumentChanges(txn, updates)
		if err != nil {
			return err
		}

		// Events synthesized for rejected limbo resolutions carry no version.
		if !event.SnapshotVersion.IsMin() {
			last, err := s.targetCache.LastRemoteSnapshotVersion(txn)
			if err != nil {
				return err
			}
			if event.SnapshotVersion.Compare(last) < 0 {
				return fmt.Errorf("%s < %s: %w", event.SnapshotVersion, last, ErrSnapshotReverted)
			}
			if err := s.targetCache.SetLastRemoteSnapshotVersion(txn, event.SnapshotVersion); err != nil {
				return err
			}
		}

		changes, err = s.localDocuments.GetLocalViewOfDocuments(txn, changed, existenceChanged)
		return err
	})
	if err != nil {
		return nil, err
	}

	for targetID, data := range updated {
		s.targets[targetID] = data
	}
	return changes, nil
}

// withoutHeldDocuments returns the document updates of event minus the
// documents a bloom filter excluded from one target while another active
// target still matches them. Those stay cached; if they are gone, limbo
// resolution finds out.
func (s *Store) withoutHeldDocuments(
	txn persistence.Transaction,
	event *remote.RemoteEvent,
) (*document.DocumentMap, error) {
	if event.FilteredDocuments.IsEmpty() {
		return event.DocumentUpdates, nil
	}

	held := document.NewKeySet()
	for targetID := range s.targets {
		keys, err := s.targetCache.GetMatchingKeysForTargetID(txn, targetID)
		if err != nil {
			return nil, err
		}
		event.FilteredDocuments.Each(func(k key.Key) bool {
			if keys.Has(k) {
				held.Add(k)
			}
			return true
		})
	}
	if held.IsEmpty() {
		return event.DocumentUpdates, nil
	}

	updates := document.NewDocumentMap()
	event.DocumentUpdates.Each(func(doc *document.MutableDocument) bool {
		if !held.Has(doc.Key()) {
			updates.Set(doc)
		}
		return true
	})
	return updates, nil
}

// populateDocumentChanges stores the documents of a remote event that are
// newer than the cached ones. It returns the stored documents and the keys
// whose existence changed.
func (s *Store) populateDocumentChanges(
	txn persistence.Transaction,
	updates *document.DocumentMap,
) (*document.DocumentMap, *document.KeySet, error) {
	changed := document.NewDocumentMap()
	existenceChanged := document.NewKeySet()

	existing, err := s.remoteDocuments.GetAll(txn, updates.Keys())
	if err != nil {
		return nil, nil, err
	}

	updates.Each(func(doc *document.MutableDocument) bool {
		k := doc.Key()
		cached, _ := existing.Get(k)
		if doc.IsFoundDocument() != cached.IsFoundDocument() {
			existenceChanged.Add(k)
		}

		switch {
		case doc.IsNoDocument() && doc.Version().IsMin():
			// Access to the document was lost.
			if err = s.remoteDocuments.Remove(txn, k); err != nil {
				return false
			}
			changed.Set(doc)
		case !cached.IsValidDocument() ||
			doc.Version().Compare(cached.Version()) > 0 ||
			(doc.Version().Compare(cached.Version()) == 0 && cached.HasPendingWrites()):
			if err = s.remoteDocuments.Add(txn, doc, doc.ReadTime()); err != nil {
				return false
			}
			changed.Set(doc)
		default:
			s.logger.Debugf(
				"ignoring outdated watch update for %s: current version %s, watch version %s",
				k, cached.Version(), doc.Version(),
			)
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}

	return changed, existenceChanged, nil
}

// shouldPersistTargetData returns whether the new state of a target is
// worth writing: always when it gets its first resume token, and otherwise
// only when documents changed or the stored token got old.
func shouldPersistTargetData(old, next *persistence.TargetData, change *remote.TargetChange) bool {
	if len(next.ResumeToken) == 0 {
		return false
	}
	if len(old.ResumeToken) == 0 {
		return true
	}

	delta := next.SnapshotVersion.Timestamp().Time().Sub(old.SnapshotVersion.Timestamp().Time())
	if delta >= resumeTokenMaxAge {
		return true
	}

	return change.DocumentChanges() > 0
}

// NotifyLocalViewChanges pins the documents shown by views and marks the
// targets whose views are in sync as limbo free.
func (s *Store) NotifyLocalViewChanges(ctx context.Context, changes []*ViewChanges) error {
	err := s.persistence.RunTransaction(ctx, "Notify local view changes", persistence.ReadWrite, func(txn persistence.Transaction) error {
		delegate := s.persistence.ReferenceDelegate()
		for _, change := range changes {
			s.localViewReferences.AddReferences(change.Added, change.TargetID)

			var err error
			change.Removed.Each(func(k key.Key) bool {
				err = delegate.RemoveReference(txn, change.TargetID, k)
				return err == nil
			})
			if err != nil {
				return err
			}
			s.localViewReferences.RemoveReferences(change.Removed, change.TargetID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, change := range changes {
		if change.FromCache {
			continue
		}
		if data, ok := s.targets[change.TargetID]; ok {
			s.targets[change.TargetID] = data.WithLastLimboFreeSnapshotVersion(data.SnapshotVersion)
		}
	}
	return nil
}

// ReadDocument returns the local view of the document with key k.
func (s *Store) ReadDocument(ctx context.Context, k key.Key) (*document.MutableDocument, error) {
	var doc *document.MutableDocument
	err := s.persistence.RunTransaction(ctx, "Read document", persistence.ReadOnly, func(txn persistence.Transaction) error {
		var err error
		doc, err = s.localDocuments.GetDocument(txn, k)
		return err
	})
	return doc, err
}

// AllocateTarget returns the data of target, storing it with a new target
// id if it was never listened to. The target becomes active.
func (s *Store) AllocateTarget(ctx context.Context, target *query.Target) (*persistence.TargetData, error) {
	var data *persistence.TargetData
	err := s.persistence.RunTransaction(ctx, "Allocate target", persistence.ReadWrite, func(txn persistence.Transaction) error {
		sequenceNumber, err := s.targetCache.NextSequenceNumber(txn)
		if err != nil {
			return err
		}

		cached, err := s.targetCache.GetTargetData(txn, target)
		if err != nil {
			return err
		}
		if cached != nil {
			data = cached.WithSequenceNumber(sequenceNumber)
			return s.targetCache.UpdateTargetData(txn, data)
		}

		targetID, err := s.targetCache.AllocateTargetID(txn)
		if err != nil {
			return err
		}
		data = persistence.NewTargetData(target, targetID, persistence.PurposeListen, sequenceNumber)
		return s.targetCache.AddTargetData(txn, data)
	})
	if err != nil {
		return nil, err
	}

	if active, ok := s.targets[data.TargetID]; ok {
		return active, nil
	}
	s.persistence.ReferenceDelegate().ActivateTarget(data.TargetID)
	s.targets[data.TargetID] = data
	s.targetIDs[target.CanonicalID()] = data.TargetID
	return data, nil
}

// GetTargetData returns the data of target, active or persisted, or nil.
func (s *Store) GetTargetData(ctx context.Context, target *query.Target) (*persistence.TargetData, error) {
	if targetID, ok := s.targetIDs[target.CanonicalID()]; ok {
		return s.targets[targetID], nil
	}

	var data *persistence.TargetData
	err := s.persistence.RunTransaction(ctx, "Get target data", persistence.ReadOnly, func(txn persistence.Transaction) error {
		var err error
		data, err = s.targetCache.GetTargetData(txn, target)
		return err
	})
	return data, err
}

// ReleaseTarget deactivates a target. Unless keepPersisted is set, the
// target is handed to the garbage collector along with the documents only
// it referenced.
func (s *Store) ReleaseTarget(ctx context.Context, targetID int, keepPersisted bool) error {
	data, ok := s.targets[targetID]
	if !ok {
		return fmt.Errorf("release target %d: %w", targetID, ErrTargetNotAllocated)
	}

	err := s.persistence.RunTransaction(ctx, "Release target", persistence.ReadWrite, func(txn persistence.Transaction) error {
		delegate := s.persistence.ReferenceDelegate()

		// Watch references go with the target; references of local views
		// are dropped here.
		var err error
		s.localViewReferences.RemoveReferencesForID(targetID).Each(func(k key.Key) bool {
			err = delegate.RemoveReference(txn, targetID, k)
			return err == nil
		})
		if err != nil {
			return err
		}

		if keepPersisted {
			return nil
		}

		sequenceNumber, err := s.targetCache.NextSequenceNumber(txn)
		if err != nil {
			return err
		}
		data = data.WithSequenceNumber(sequenceNumber)
		if err := s.targetCache.UpdateTargetData(txn, data); err != nil {
			return err
		}
		return delegate.RemoveTarget(txn, data)
	})
	if err != nil {
		return err
	}

	delete(s.targets, targetID)
	delete(s.targetIDs, data.Target.CanonicalID())
	return nil
}

// ExecuteQuery runs q against the local view. With usePreviousResults the
// last known results of the target of q are reused when complete.
func (s *Store) ExecuteQuery(ctx context.Context, q *query.Query, usePreviousResults bool) (*QueryResult, error) {
	var result *QueryResult
	err := s.persistence.RunTransaction(ctx, "Execute query", persistence.ReadOnly, func(txn persistence.Transaction) error {
		target := q.ToTarget()
		lastLimboFree := time.MinVersion
		remoteKeys := document.NewKeySet()

		data, err := s.targetData(txn, target)
		if err != nil {
			return err
		}
		if data != nil {
			lastLimboFree = data.LastLimboFreeSnapshotVersion
			if remoteKeys, err = s.targetCache.GetMatchingKeysForTargetID(txn, data.TargetID); err != nil {
				return err
			}
		}

		if !usePreviousResults {
			lastLimboFree = time.MinVersion
		}
		docs, err := s.queryEngine.GetDocumentsMatchingQuery(txn, q, lastLimboFree, remoteKeys)
		if err != nil {
			return err
		}

		result = &QueryResult{Documents: docs, RemoteKeys: remoteKeys}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) targetData(txn persistence.Transaction, target *query.Target) (*persistence.TargetData, error) {
	if targetID, ok := s.targetIDs[target.CanonicalID()]; ok {
		return s.targets[targetID], nil
	}
	return s.targetCache.GetTargetData(txn, target)
}

// GetRemoteDocumentKeys returns the keys the backend last reported for the
// target.
func (s *Store) GetRemoteDocumentKeys(ctx context.Context, targetID int) (*document.KeySet, error) {
	var keys *document.KeySet
	err := s.persistence.RunTransaction(ctx, "Get remote document keys", persistence.ReadOnly, func(txn persistence.Transaction) error {
		var err error
		keys, err = s.targetCache.GetMatchingKeysForTargetID(txn, targetID)
		return err
	})
	return keys, err
}

// SaveNamedQuery stores q under its name.
func (s *Store) SaveNamedQuery(ctx context.Context, q *persistence.NamedQuery) error {
	return s.persistence.RunTransaction(ctx, "Save named query", persistence.ReadWrite, func(txn persistence.Transaction) error {
		return s.namedQueries.SaveNamedQuery(txn, q)
	})
}

// GetNamedQuery returns the query saved under name, or nil.
func (s *Store) GetNamedQuery(ctx context.Context, name string) (*persistence.NamedQuery, error) {
	var q *persistence.NamedQuery
	err := s.persistence.RunTransaction(ctx, "Get named query", persistence.ReadOnly, func(txn persistence.Transaction) error {
		var err error
		q, err = s.namedQueries.GetNamedQuery(txn, name)
		return err
	})
	return q, err
}

// CollectGarbage removes the cached documents nothing references anymore
// and returns how many were removed.
func (s *Store) CollectGarbage(ctx context.Context) (int, error) {
	var removed int
	err := s.persistence.RunTransaction(ctx, "Collect garbage", persistence.ReadWritePrimary, func(txn persistence.Transaction) error {
		var err error
		removed, err = s.persistence.ReferenceDelegate().CollectGarbage(txn)
		return err
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.Debugf("collected %d documents", removed)
	}
	return removed, nil
}
