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

// Package core binds queries to watch targets. It applies what the local
// store and the backend report to the views of the queries listened to and
// raises their snapshots, and resolves the documents whose existence the
// backend did not confirm.
package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/local"
	"github.com/yorkie-team/docsync/metrics/prometheus"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/errors"
	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote"
)

// DefaultMaxConcurrentLimboResolutions is the number of limbo documents
// resolved at once.
const DefaultMaxConcurrentLimboResolutions = 100

var (
	// ErrUserChanged is passed to pending writes callbacks when the user
	// changed before the writes were acknowledged.
	ErrUserChanged = errors.Canceled("pending writes were canceled by a user change").WithCode("ErrUserChanged")

	// ErrLimboTarget is returned when a limbo resolution target reports
	// more than one document.
	ErrLimboTarget = errors.Internal("limbo resolution target reported several documents").WithCode("ErrLimboTarget")
)

// RemoteStore is the part of the remote store the sync engine drives.
type RemoteStore interface {
	Listen(ctx context.Context, data *persistence.TargetData)
	Unlisten(ctx context.Context, targetID int)
	FillWritePipeline(ctx context.Context) error
}

// queryView is a query listened to along with its view.
type queryView struct {
	query    *query.Query
	targetID int
	view     *View
}

// limboResolution is the state of the target resolving one limbo
// document.
type limboResolution struct {
	key key.Key

	// receivedDocument is set once the backend reported the document, so
	// that the target matches it when its existence filter arrives.
	receivedDocument bool
}

// SyncEngineOption configures a SyncEngine.
type SyncEngineOption func(*SyncEngine)

// WithMaxConcurrentLimboResolutions sets the number of limbo documents
// resolved at once.
func WithMaxConcurrentLimboResolutions(n int) SyncEngineOption {
	return func(s *SyncEngine) {
		if n > 0 {
			s.maxConcurrentLimboResolutions = n
		}
	}
}

// WithLogger sets the logger of the sync engine.
func WithLogger(logger logging.Logger) SyncEngineOption {
	return func(s *SyncEngine) { s.logger = logger }
}

// WithMetrics sets the metrics the sync engine reports to.
func WithMetrics(metrics *prometheus.Metrics) SyncEngineOption {
	return func(s *SyncEngine) { s.metrics = metrics }
}

// SyncEngine binds the queries listened to to targets of the local and the
// remote store. It implements remote.RemoteSyncer. Every method must run on
// the queue.
type SyncEngine struct {
	localStore  *local.Store
	remoteStore RemoteStore
	listener    SyncEngineListener
	user        credentials.User
	onlineState remote.OnlineState
	logger      logging.Logger
	metrics     *prometheus.Metrics

	queryViews      map[string]*queryView
	queriesByTarget map[int][]*query.Query

	maxConcurrentLimboResolutions int

	// enqueuedLimboResolutions holds the limbo documents waiting for a
	// resolution slot, oldest first.
	enqueuedLimboResolutions []key.Key
	enqueuedLimboKeys        *document.KeySet

	activeLimboTargetsByKey        map[string]int
	activeLimboResolutionsByTarget map[int]*limboResolution

	// limboDocumentRefs holds the limbo documents of each target.
	limboDocumentRefs *persistence.ReferenceSet
	limboTargetIDs    *TargetIDGenerator

	// mutationCallbacks holds the callbacks of writes by user and batch.
	mutationCallbacks map[string]map[int]func(error)

	// pendingWritesCallbacks holds the callbacks waiting for every batch
	// up to a batch id to be acknowledged or rejected.
	pendingWritesCallbacks map[int][]func(error)
}

// NewSyncEngine creates a sync engine for user.
func NewSyncEngine(
	localStore *local.Store,
	remoteStore RemoteStore,
	user credentials.User,
	opts ...SyncEngineOption,
) *SyncEngine {
	s := &SyncEngine{
		localStore:                     localStore,
		remoteStore:                    remoteStore,
		user:                           user,
		onlineState:                    remote.OnlineStateUnknown,
		queryViews:                     make(map[string]*queryView),
		queriesByTarget:                make(map[int][]*query.Query),
		maxConcurrentLimboResolutions:  DefaultMaxConcurrentLimboResolutions,
		enqueuedLimboKeys:              document.NewKeySet(),
		activeLimboTargetsByKey:        make(map[string]int),
		activeLimboResolutionsByTarget: make(map[int]*limboResolution),
		limboDocumentRefs:              persistence.NewReferenceSet(),
		limboTargetIDs:                 NewLimboTargetIDGenerator(),
		mutationCallbacks:              make(map[string]map[int]func(error)),
		pendingWritesCallbacks:         make(map[int][]func(error)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.New("sync")
	}
	return s
}

// SetListener sets the receiver of snapshots, usually an EventManager.
func (s *SyncEngine) SetListener(listener SyncEngineListener) {
	s.listener = listener
}

// Listen starts listening to q and raises its first snapshot. It returns
// the id of the target of q.
func (s *SyncEngine) Listen(ctx context.Context, q *query.Query) (int, error) {
	if qv, ok := s.queryViews[q.CanonicalID()]; ok {
		return qv.targetID, nil
	}

	data, err := s.localStore.AllocateTarget(ctx, q.ToTarget())
	if err != nil {
		return 0, fmt.Errorf("allocate target: %w", err)
	}

	// Queries differing only in limit type share a target.
	_, shared := s.queriesByTarget[data.TargetID]

	snap, err := s.initializeView(ctx, q, data.TargetID, len(data.ResumeToken) > 0)
	if err != nil {
		return 0, err
	}
	s.raise([]*ViewSnapshot{snap})

	if !shared {
		s.remoteStore.Listen(ctx, data)
	}
	return data.TargetID, nil
}

func (s *SyncEngine) initializeView(
	ctx context.Context,
	q *query.Query,
	targetID int,
	hasCachedResults bool,
) (*ViewSnapshot, error) {
	result, err := s.localStore.ExecuteQuery(ctx, q, true)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	view := NewView(q, result.RemoteKeys, hasCachedResults)
	docChanges := view.ComputeDocChanges(result.Documents, nil)
	change := view.ApplyChanges(docChanges, true, nil, false)
	s.updateTrackedLimbos(ctx, targetID, change.LimboChanges)

	s.queryViews[q.CanonicalID()] = &queryView{query: q, targetID: targetID, view: view}
	s.queriesByTarget[targetID] = append(s.queriesByTarget[targetID], q)
	return change.Snapshot, nil
}

// Unlisten stops listening to q. Its target is released once no query
// uses it.
func (s *SyncEngine) Unlisten(ctx context.Context, q *query.Query) error {
	qv, ok := s.queryViews[q.CanonicalID()]
	if !ok {
		return nil
	}
	delete(s.queryViews, q.CanonicalID())

	queries := s.queriesByTarget[qv.targetID]
	for i, other := range queries {
		if other.CanonicalID() == q.CanonicalID() {
			queries = append(queries[:i], queries[i+1:]...)
			break
		}
	}
	if len(queries) > 0 {
		s.queriesByTarget[qv.targetID] = queries
		return nil
	}

	if err := s.localStore.ReleaseTarget(ctx, qv.targetID, false); err != nil {
		return fmt.Errorf("release target %d: %w", qv.targetID, err)
	}
	s.remoteStore.Unlisten(ctx, qv.targetID)
	s.removeAndCleanUpTarget(ctx, qv.targetID, nil)
	return nil
}

// Write applies mutations locally as one batch, raises the snapshots they
// change and sends them to the backend. callback is called once the backend
// acknowledged or rejected the batch.
func (s *SyncEngine) Write(ctx context.Context, mutations []mutation.Mutation, callback func(error)) error {
	result, err := s.localStore.Write(ctx, mutations)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if callback != nil {
		callbacks, ok := s.mutationCallbacks[s.user.Key()]
		if !ok {
			callbacks = make(map[int]func(error))
			s.mutationCallbacks[s.user.Key()] = callbacks
		}
		callbacks[result.BatchID] = callback
	}

	if err := s.emitNewSnapshots(ctx, result.Changes, nil); err != nil {
		return err
	}
	return s.remoteStore.FillWritePipeline(ctx)
}

// ApplyRemoteEvent implements remote.RemoteSyncer.
func (s *SyncEngine) ApplyRemoteEvent(ctx context.Context, event *remote.RemoteEvent) error {
	for targetID, change := range event.TargetChanges {
		resolution, ok := s.activeLimboResolutionsByTarget[targetID]
		if !ok {
			continue
		}

		added, modified, removed := change.AddedDocuments.Len(), change.ModifiedDocuments.Len(), change.RemovedDocuments.Len()
		if added+modified+removed > 1 {
			return fmt.Errorf("target %d: %w", targetID, ErrLimboTarget)
		}
		switch {
		case added > 0:
			resolution.receivedDocument = true
		case modified > 0:
			if !resolution.receivedDocument {
				return fmt.Errorf("modified %s before it was added: %w", resolution.key, ErrLimboTarget)
			}
		case removed > 0:
			resolution.receivedDocument = false
		}
	}

	changes, err := s.localStore.ApplyRemoteEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("apply remote event: %w", err)
	}
	return s.emitNewSnapshots(ctx, changes, event)
}

// RejectListen implements remote.RemoteSyncer. A rejected limbo resolution
// means the document cannot be read anymore, so it is removed from the
// cache; the listeners of any other target get the error.
func (s *SyncEngine) RejectListen(ctx context.Context, targetID int, cause error) error {
	if resolution, ok := s.activeLimboResolutionsByTarget[targetID]; ok {
		k := resolution.key
		delete(s.activeLimboResolutionsByTarget, targetID)
		delete(s.activeLimboTargetsByKey, k.String())
		s.pumpEnqueuedLimboResolutions(ctx)

		event := remote.NewRemoteEvent(time.MinVersion)
		event.DocumentUpdates.Set(document.NewNoDocument(k, time.MinVersion))
		event.ResolvedLimboDocuments.Add(k)
		return s.ApplyRemoteEvent(ctx, event)
	}

	if err := s.localStore.ReleaseTarget(ctx, targetID, false); err != nil {
		s.logger.Warnf("release rejected target %d: %v", targetID, err)
	}
	s.removeAndCleanUpTarget(ctx, targetID, cause)
	return nil
}

// ApplySuccessfulWrite implements remote.RemoteSyncer.
func (s *SyncEngine) ApplySuccessfulWrite(ctx context.Context, result *mutation.BatchResult) error {
	batchID := result.Batch.ID
	changes, err := s.localStore.AcknowledgeBatch(ctx, result)
	if err != nil {
		return fmt.Errorf("acknowledge batch %d: %w", batchID, err)
	}

	s.processUserCallback(batchID, nil)
	s.triggerPendingWritesCallbacks(batchID)
	return s.emitNewSnapshots(ctx, changes, nil)
}

// RejectFailedWrite implements remote.RemoteSyncer. The documents of the
// batch go back to the state the remaining batches give them.
func (s *SyncEngine) RejectFailedWrite(ctx context.Context, batchID int, cause error) error {
	changes, err := s.localStore.RejectBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("reject batch %d: %w", batchID, err)
	}

	s.processUserCallback(batchID, cause)
	s.triggerPendingWritesCallbacks(batchID)
	return s.emitNewSnapshots(ctx, changes, nil)
}

// GetRemoteKeysForTarget implements remote.RemoteSyncer.
func (s *SyncEngine) GetRemoteKeysForTarget(targetID int) *document.KeySet {
	if resolution, ok := s.activeLimboResolutionsByTarget[targetID]; ok {
		if resolution.receivedDocument {
			return document.NewKeySet(resolution.key)
		}
		return document.NewKeySet()
	}

	keys := document.NewKeySet()
	for _, q := range s.queriesByTarget[targetID] {
		if qv, ok := s.queryViews[q.CanonicalID()]; ok {
			keys = keys.Union(qv.view.SyncedDocuments())
		}
	}
	return keys
}

// HandleCredentialChange implements remote.RemoteSyncer. The views switch
// to the pending writes of user.
func (s *SyncEngine) HandleCredentialChange(ctx context.Context, user credentials.User) error {
	if user.Key() == s.user.Key() {
		return nil
	}
	s.logger.Debugf("user changed from %s to %s", s.user.Key(), user.Key())
	s.user = user

	// The batches of the previous user are not sent anymore.
	for batchID, callbacks := range s.pendingWritesCallbacks {
		for _, callback := range callbacks {
			callback(ErrUserChanged)
		}
		delete(s.pendingWritesCallbacks, batchID)
	}

	changes, err := s.localStore.HandleUserChange(ctx, user)
	if err != nil {
		return fmt.Errorf("handle user change: %w", err)
	}
	return s.emitNewSnapshots(ctx, changes, nil)
}

// ApplyOnlineStateChange implements remote.RemoteSyncer.
func (s *SyncEngine) ApplyOnlineStateChange(ctx context.Context, state remote.OnlineState) {
	s.onlineState = state

	var snapshots []*ViewSnapshot
	for _, qv := range s.sortedQueryViews() {
		change := qv.view.ApplyOnlineStateChange(state)
		if change.Snapshot != nil {
			snapshots = append(snapshots, change.Snapshot)
		}
	}
	s.raise(snapshots)
	if s.listener != nil {
		s.listener.OnOnlineStateChange(state)
	}
}

// RegisterPendingWritesCallback calls callback once every batch written
// so far was acknowledged or rejected.
func (s *SyncEngine) RegisterPendingWritesCallback(ctx context.Context, callback func(error)) error {
	batchID, err := s.localStore.HighestUnacknowledgedBatchID(ctx)
	if err != nil {
		return fmt.Errorf("get highest unacknowledged batch: %w", err)
	}
	if batchID == mutation.UnknownBatchID {
		callback(nil)
		return nil
	}

	s.pendingWritesCallbacks[batchID] = append(s.pendingWritesCallbacks[batchID], callback)
	return nil
}

// ActiveLimboDocumentResolutions returns the keys of the limbo documents
// being resolved, by target id.
func (s *SyncEngine) ActiveLimboDocumentResolutions() map[int]key.Key {
	resolutions := make(map[int]key.Key, len(s.activeLimboResolutionsByTarget))
	for targetID, resolution := range s.activeLimboResolutionsByTarget {
		resolutions[targetID] = resolution.key
	}
	return resolutions
}

// EnqueuedLimboDocumentResolutions returns the keys of the limbo documents
// waiting for a resolution slot, oldest first.
func (s *SyncEngine) EnqueuedLimboDocumentResolutions() []key.Key {
	return append([]key.Key(nil), s.enqueuedLimboResolutions...)
}

func (s *SyncEngine) processUserCallback(batchID int, err error) {
	callbacks, ok := s.mutationCallbacks[s.user.Key()]
	if !ok {
		return
	}
	if callback, ok := callbacks[batchID]; ok {
		callback(err)
		delete(callbacks, batchID)
	}
}

func (s *SyncEngine) triggerPendingWritesCallbacks(batchID int) {
	for _, callback := range s.pendingWritesCallbacks[batchID] {
		callback(nil)
	}
	delete(s.pendingWritesCallbacks, batchID)
}

// emitNewSnapshots applies changed documents and the target changes of
// event to every view, raises the snapshots that changed and tells the
// local store what the views show.
func (s *SyncEngine) emitNewSnapshots(
	ctx context.Context,
	changes *document.DocumentMap,
	event *remote.RemoteEvent,
) error {
	var snapshots []*ViewSnapshot
	var viewChanges []*local.ViewChanges

	for _, qv := range s.sortedQueryViews() {
		docChanges := qv.view.ComputeDocChanges(changes, nil)
		if docChanges.needsRefill {
			// A document left the limit; the whole query finds its
			// replacement.
			result, err := s.localStore.ExecuteQuery(ctx, qv.query, false)
			if err != nil {
				return fmt.Errorf("execute query: %w", err)
			}
			docChanges = qv.view.ComputeDocChanges(result.Documents, docChanges)
		}

		var targetChange *remote.TargetChange
		pendingReset := false
		if event != nil {
			targetChange = event.TargetChanges[qv.targetID]
			_, pendingReset = event.TargetMismatches[qv.targetID]
		}
		change := qv.view.ApplyChanges(docChanges, true, targetChange, pendingReset)
		s.updateTrackedLimbos(ctx, qv.targetID, change.LimboChanges)

		if change.Snapshot != nil {
			snapshots = append(snapshots, change.Snapshot)
			viewChanges = append(viewChanges, viewChangesOf(qv.targetID, change.Snapshot))
		}
	}

	s.raise(snapshots)
	if err := s.localStore.NotifyLocalViewChanges(ctx, viewChanges); err != nil {
		return fmt.Errorf("notify local view changes: %w", err)
	}
	return nil
}

func viewChangesOf(targetID int, snap *ViewSnapshot) *local.ViewChanges {
	changes := &local.ViewChanges{
		TargetID:  targetID,
		FromCache: snap.FromCache,
		Added:     document.NewKeySet(),
		Removed:   document.NewKeySet(),
	}
	for _, change := range snap.DocChanges {
		switch change.Type {
		case ChangeAdded:
			changes.Added.Add(change.Document.Key())
		case ChangeRemoved:
			changes.Removed.Add(change.Document.Key())
		}
	}
	return changes
}

func (s *SyncEngine) raise(snapshots []*ViewSnapshot) {
	if s.listener != nil && len(snapshots) > 0 {
		s.listener.OnWatchChange(snapshots)
	}
}

// sortedQueryViews returns the query views in target order, so that
// snapshots are raised in a stable order.
func (s *SyncEngine) sortedQueryViews() []*queryView {
	views := make([]*queryView, 0, len(s.queryViews))
	for _, qv := range s.queryViews {
		views = append(views, qv)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].targetID != views[j].targetID {
			return views[i].targetID < views[j].targetID
		}
		return views[i].query.CanonicalID() < views[j].query.CanonicalID()
	})
	return views
}

func (s *SyncEngine) removeAndCleanUpTarget(ctx context.Context, targetID int, cause error) {
	for _, q := range s.queriesByTarget[targetID] {
		delete(s.queryViews, q.CanonicalID())
		if cause != nil && s.listener != nil {
			s.listener.OnWatchError(q, cause)
		}
	}
	delete(s.queriesByTarget, targetID)

	s.limboDocumentRefs.RemoveReferencesForID(targetID).Each(func(k key.Key) bool {
		if !s.limboDocumentRefs.ContainsKey(k) {
			s.removeLimboTarget(ctx, k)
		}
		return true
	})
}

func (s *SyncEngine) updateTrackedLimbos(ctx context.Context, targetID int, changes []LimboDocumentChange) {
	for _, change := range changes {
		switch change.Type {
		case LimboAdded:
			s.limboDocumentRefs.AddReference(change.Key, targetID)
			s.trackLimboChange(ctx, change.Key)
		case LimboRemoved:
			s.logger.Debugf("document %s no longer in limbo", change.Key)
			s.limboDocumentRefs.RemoveReference(change.Key, targetID)
			if !s.limboDocumentRefs.ContainsKey(change.Key) {
				s.removeLimboTarget(ctx, change.Key)
			}
		}
	}
}

func (s *SyncEngine) trackLimboChange(ctx context.Context, k key.Key) {
	if _, ok := s.activeLimboTargetsByKey[k.String()]; ok || s.enqueuedLimboKeys.Has(k) {
		return
	}

	s.logger.Debugf("new document in limbo: %s", k)
	s.enqueuedLimboResolutions = append(s.enqueuedLimboResolutions, k)
	s.enqueuedLimboKeys.Add(k)
	s.pumpEnqueuedLimboResolutions(ctx)
}

// pumpEnqueuedLimboResolutions starts resolving enqueued limbo documents,
// oldest first, while resolution slots are free.
func (s *SyncEngine) pumpEnqueuedLimboResolutions(ctx context.Context) {
	for len(s.enqueuedLimboResolutions) > 0 && len(s.activeLimboTargetsByKey) < s.maxConcurrentLimboResolutions {
		k := s.enqueuedLimboResolutions[0]
		s.enqueuedLimboResolutions = s.enqueuedLimboResolutions[1:]
		s.enqueuedLimboKeys.Delete(k)

		targetID := s.limboTargetIDs.Next()
		s.activeLimboResolutionsByTarget[targetID] = &limboResolution{key: k}
		s.activeLimboTargetsByKey[k.String()] = targetID
		s.remoteStore.Listen(ctx, persistence.NewTargetData(
			query.NewDocumentQuery(k).ToTarget(),
			targetID,
			persistence.PurposeLimboResolution,
			persistence.InvalidSequenceNumber,
		))
	}
	s.metrics.SetLimboDocuments(len(s.activeLimboTargetsByKey), len(s.enqueuedLimboResolutions))
}

func (s *SyncEngine) removeLimboTarget(ctx context.Context, k key.Key) {
	if s.enqueuedLimboKeys.Delete(k) {
		for i, enqueued := range s.enqueuedLimboResolutions {
			if enqueued.Equal(k) {
				s.enqueuedLimboResolutions = append(s.enqueuedLimboResolutions[:i], s.enqueuedLimboResolutions[i+1:]...)
				break
			}
		}
	}

	targetID, ok := s.activeLimboTargetsByKey[k.String()]
	if ok {
		s.remoteStore.Unlisten(ctx, targetID)
		delete(s.activeLimboTargetsByKey, k.String())
		delete(s.activeLimboResolutionsByTarget, targetID)
	}
	s.pumpEnqueuedLimboResolutions(ctx)
}
