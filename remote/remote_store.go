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

package remote

import (
	"context"
	"fmt"
	"sort"

	"github.com/yorkie-team/docsync/async"
	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/metrics/prometheus"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/errors"
)

// maxPendingWrites is the number of batches written to the Write stream
// before their results arrive. Batches are sent one at a time so that they
// are committed in order.
const maxPendingWrites = 1

// LocalStore is the part of the local store the RemoteStore reads from.
type LocalStore interface {
	// NextMutationBatch returns the first pending batch after afterBatchID,
	// or nil.
	NextMutationBatch(ctx context.Context, afterBatchID int) (*mutation.Batch, error)

	LastStreamToken(ctx context.Context) ([]byte, error)
	SetLastStreamToken(ctx context.Context, token []byte) error
	LastRemoteSnapshotVersion(ctx context.Context) (time.SnapshotVersion, error)
}

// RemoteSyncer handles what the RemoteStore receives from the backend. It
// is implemented by the sync engine.
type RemoteSyncer interface {
	ApplyRemoteEvent(ctx context.Context, event *RemoteEvent) error

	// RejectListen is called when the backend removed a target because of
	// an error.
	RejectListen(ctx context.Context, targetID int, err error) error

	ApplySuccessfulWrite(ctx context.Context, result *mutation.BatchResult) error

	// RejectFailedWrite is called when the backend rejected a batch for
	// good.
	RejectFailedWrite(ctx context.Context, batchID int, err error) error

	// GetRemoteKeysForTarget returns the keys of the documents the backend
	// last reported for the target.
	GetRemoteKeysForTarget(targetID int) *document.KeySet

	HandleCredentialChange(ctx context.Context, user credentials.User) error
	ApplyOnlineStateChange(ctx context.Context, state OnlineState)
}

// offlineCause is a reason for not using the network.
type offlineCause int

const (
	offlineUserDisabled offlineCause = 1 << iota
	offlineStorageFailed
	offlineShutdown
	offlineCredentialChange
)

// RemoteStore keeps the Listen stream subscribed to every target listened
// to, and writes pending batches to the Write stream in order. Every method
// must run on the queue.
type RemoteStore struct {
	queue      *async.Queue
	datastore  *Datastore
	localStore LocalStore
	syncer     RemoteSyncer
	logger     logging.Logger
	metrics    *prometheus.Metrics

	offlineCauses offlineCause

	// listenTargets holds the targets listened to by id.
	listenTargets map[int]*persistence.TargetData

	// writePipeline holds the batches written and not acknowledged yet,
	// oldest first.
	writePipeline []*mutation.Batch

	watchStream        *ListenStream
	writeStream        *WriteStream
	aggregator         *WatchChangeAggregator
	onlineStateTracker *OnlineStateTracker
}

// NewRemoteStore creates a RemoteStore. SetRemoteSyncer must be called
// before Start.
func NewRemoteStore(
	localStore LocalStore,
	datastore *Datastore,
	queue *async.Queue,
	logger logging.Logger,
	metrics *prometheus.Metrics,
) *RemoteStore {
	r := &RemoteStore{
		queue:         queue,
		datastore:     datastore,
		localStore:    localStore,
		logger:        logger,
		metrics:       metrics,
		offlineCauses: offlineUserDisabled,
		listenTargets: make(map[int]*persistence.TargetData),
	}
	r.watchStream = NewListenStream(queue, datastore, watchStreamListener{r}, metrics)
	r.writeStream = NewWriteStream(queue, datastore, writeStreamListener{r}, metrics)
	r.onlineStateTracker = NewOnlineStateTracker(queue, func(ctx context.Context, state OnlineState) {
		if r.syncer != nil {
			r.syncer.ApplyOnlineStateChange(ctx, state)
		}
	}, logger, metrics)
	return r
}

// SetRemoteSyncer sets the handler of what the backend sends.
func (r *RemoteStore) SetRemoteSyncer(syncer RemoteSyncer) {
	r.syncer = syncer
}

// Start starts using the network.
func (r *RemoteStore) Start(ctx context.Context) error {
	return r.EnableNetwork(ctx)
}

// OnlineState returns the current online state.
func (r *RemoteStore) OnlineState() OnlineState {
	return r.onlineStateTracker.State()
}

// EnableNetwork re-enables the network after DisableNetwork.
func (r *RemoteStore) EnableNetwork(ctx context.Context) error {
	r.offlineCauses &^= offlineUserDisabled
	return r.enableNetworkInternal(ctx)
}

func (r *RemoteStore) enableNetworkInternal(ctx context.Context) error {
	if !r.canUseNetwork() {
		return nil
	}

	token, err := r.localStore.LastStreamToken(ctx)
	if err != nil {
		return r.disableNetworkUntilRecovery(ctx, err, nil)
	}
	r.writeStream.SetLastStreamToken(token)

	if r.shouldStartWatchStream() {
		r.startWatchStream(ctx)
	} else {
		r.onlineStateTracker.Set(ctx, OnlineStateUnknown)
	}
	return r.FillWritePipeline(ctx)
}

// DisableNetwork closes both streams. Listeners are served from the cache
// and writes stay pending until EnableNetwork.
func (r *RemoteStore) DisableNetwork(ctx context.Context) error {
	r.offlineCauses |= offlineUserDisabled
	if err := r.disableNetworkInternal(ctx); err != nil {
		return err
	}
	// Listeners raise snapshots from the cache right away.
	r.onlineStateTracker.Set(ctx, OnlineStateOffline)
	return nil
}

func (r *RemoteStore) disableNetworkInternal(ctx context.Context) error {
	if err := r.writeStream.Stop(ctx); err != nil {
		return fmt.Errorf("stop write stream: %w", err)
	}
	if err := r.watchStream.Stop(ctx); err != nil {
		return fmt.Errorf("stop listen stream: %w", err)
	}

	if len(r.writePipeline) > 0 {
		r.logger.Debugf("stopping write stream with %d pending writes", len(r.writePipeline))
		r.writePipeline = nil
	}
	r.cleanUpWatchStreamState()
	return nil
}

// Shutdown stops using the network for good.
func (r *RemoteStore) Shutdown(ctx context.Context) error {
	r.logger.Debug("shutting down remote store")
	r.offlineCauses |= offlineShutdown
	if err := r.disableNetworkInternal(ctx); err != nil {
		return err
	}
	r.onlineStateTracker.Set(ctx, OnlineStateUnknown)
	return nil
}

// HandleCredentialChange restarts the streams with the credentials of
// user, after the syncer switched to its local state.
func (r *RemoteStore) HandleCredentialChange(ctx context.Context, user credentials.User) error {
	r.logger.Debugf("credential changed, restarting streams for %s", user.Key())
	r.offlineCauses |= offlineCredentialChange
	if err := r.disableNetworkInternal(ctx); err != nil {
		return err
	}
	r.onlineStateTracker.Set(ctx, OnlineStateUnknown)

	if err := r.syncer.HandleCredentialChange(ctx, user); err != nil {
		return fmt.Errorf("handle credential change: %w", err)
	}
	r.offlineCauses &^= offlineCredentialChange
	return r.enableNetworkInternal(ctx)
}

// Listen starts listening to the target of data. Listening to a target
// twice has no effect.
func (r *RemoteStore) Listen(ctx context.Context, data *persistence.TargetData) {
	if _, ok := r.listenTargets[data.TargetID]; ok {
		return
	}
	r.listenTargets[data.TargetID] = data

	if r.shouldStartWatchStream() {
		r.startWatchStream(ctx)
	} else if r.watchStream.IsOpen() {
		r.sendWatchRequest(data)
	}
}

// Unlisten stops listening to the target. The Listen stream is closed after
// a while once no target is left.
func (r *RemoteStore) Unlisten(ctx context.Context, targetID int) {
	delete(r.listenTargets, targetID)
	if r.watchStream.IsOpen() {
		r.sendUnwatchRequest(targetID)
	}

	if len(r.listenTargets) == 0 {
		if r.watchStream.IsOpen() {
			r.watchStream.MarkIdle()
		} else if r.canUseNetwork() {
			// Nothing is listened to, so nothing can be online or offline.
			r.onlineStateTracker.Set(ctx, OnlineStateUnknown)
		}
	}
}

// GetRemoteKeysForTarget implements TargetMetadataProvider.
func (r *RemoteStore) GetRemoteKeysForTarget(targetID int) *document.KeySet {
	return r.syncer.GetRemoteKeysForTarget(targetID)
}

// GetTargetDataForTarget implements TargetMetadataProvider.
func (r *RemoteStore) GetTargetDataForTarget(targetID int) *persistence.TargetData {
	return r.listenTargets[targetID]
}

func (r *RemoteStore) sendWatchRequest(data *persistence.TargetData) {
	r.aggregator.RecordPendingTargetRequest(data.TargetID)
	if len(data.ResumeToken) > 0 || !data.SnapshotVersion.IsMin() {
		count := r.GetRemoteKeysForTarget(data.TargetID).Len()
		data = data.WithExpectedCount(count)
	}
	r.watchStream.Watch(data)
}

func (r *RemoteStore) sendUnwatchRequest(targetID int) {
	r.aggregator.RecordPendingTargetRequest(targetID)
	r.watchStream.Unwatch(targetID)
}

func (r *RemoteStore) canUseNetwork() bool {
	return r.offlineCauses == 0
}

func (r *RemoteStore) shouldStartWatchStream() bool {
	return r.canUseNetwork() && !r.watchStream.IsStarted() && len(r.listenTargets) > 0
}

func (r *RemoteStore) startWatchStream(ctx context.Context) {
	r.aggregator = NewWatchChangeAggregator(r, r.datastore.Serializer().DatabaseID(), r.logger, r.metrics)
	r.watchStream.Start(ctx)
	r.onlineStateTracker.HandleWatchStreamStart(ctx)
}

func (r *RemoteStore) cleanUpWatchStreamState() {
	r.aggregator = nil
}

func (r *RemoteStore) sortedTargetIDs() []int {
	ids := make([]int, 0, len(r.listenTargets))
	for id := range r.listenTargets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (r *RemoteStore) onWatchStreamOpen(ctx context.Context) error {
	r.onlineStateTracker.Set(ctx, OnlineStateOnline)
	for _, id := range r.sortedTargetIDs() {
		r.sendWatchRequest(r.listenTargets[id])
	}
	return nil
}

func (r *RemoteStore) onWatchStreamClose(ctx context.Context, err error) error {
	r.cleanUpWatchStreamState()

	if r.shouldStartWatchStream() {
		r.onlineStateTracker.HandleWatchStreamFailure(ctx, err)
		r.startWatchStream(ctx)
	} else {
		r.onlineStateTracker.Set(ctx, OnlineStateUnknown)
	}
	return nil
}

func (r *RemoteStore) onWatchStreamChange(
	ctx context.Context,
	change WatchChange,
	snapshotVersion time.SnapshotVersion,
) error {
	r.onlineStateTracker.Set(ctx, OnlineStateOnline)

	switch c := change.(type) {
	case *TargetWatchChange:
		if c.State == TargetRemoved && c.Cause != nil {
			return r.handleTargetError(ctx, c)
		}
		r.aggregator.HandleTargetChange(c)
	case *DocumentWatchChange:
		r.aggregator.HandleDocumentChange(c)
	case *ExistenceFilterWatchChange:
		r.aggregator.HandleExistenceFilter(c)
	}

	if snapshotVersion.IsMin() {
		return nil
	}
	last, err := r.localStore.LastRemoteSnapshotVersion(ctx)
	if err != nil {
		return r.disableNetworkUntilRecovery(ctx, err, nil)
	}
	if snapshotVersion.Compare(last) >= 0 {
		// Snapshots older than the last one applied were already seen.
		return r.raiseWatchSnapshot(ctx, snapshotVersion)
	}
	return nil
}

func (r *RemoteStore) handleTargetError(ctx context.Context, change *TargetWatchChange) error {
	for _, id := range change.TargetIDs {
		if _, ok := r.listenTargets[id]; !ok {
			continue
		}
		delete(r.listenTargets, id)
		r.aggregator.RemoveTarget(id)
		if err := r.syncer.RejectListen(ctx, id, change.Cause); err != nil {
			return fmt.Errorf("reject listen %d: %w", id, err)
		}
	}
	return nil
}

// raiseWatchSnapshot applies the changes aggregated up to version and
// listens again to the targets whose existence filter did not match.
func (r *RemoteStore) raiseWatchSnapshot(ctx context.Context, version time.SnapshotVersion) error {
	event := r.aggregator.CreateRemoteEvent(version)

	for id, change := range event.TargetChanges {
		if len(change.ResumeToken) == 0 {
			continue
		}
		if data, ok := r.listenTargets[id]; ok {
			r.listenTargets[id] = data.WithResumeToken(change.ResumeToken, version)
		}
	}

	mismatches := make([]int, 0, len(event.TargetMismatches))
	for id := range event.TargetMismatches {
		mismatches = append(mismatches, id)
	}
	sort.Ints(mismatches)
	for _, id := range mismatches {
		data, ok := r.listenTargets[id]
		if !ok {
			continue
		}

		// The backend must send every document of the target again.
		r.listenTargets[id] = data.WithResumeToken(nil, data.SnapshotVersion)
		r.sendUnwatchRequest(id)
		r.sendWatchRequest(persistence.NewTargetData(
			data.Target,
			id,
			event.TargetMismatches[id],
			data.SequenceNumber,
		))
	}

	if err := r.syncer.ApplyRemoteEvent(ctx, event); err != nil {
		return r.disableNetworkUntilRecovery(ctx, err, nil)
	}
	return nil
}

// FillWritePipeline writes pending batches until the pipeline is full.
func (r *RemoteStore) FillWritePipeline(ctx context.Context) error {
	lastBatchID := mutation.UnknownBatchID
	if n := len(r.writePipeline); n > 0 {
		lastBatchID = r.writePipeline[n-1].ID
	}

	for r.canAddToWritePipeline() {
		batch, err := r.localStore.NextMutationBatch(ctx, lastBatchID)
		if err != nil {
			return r.disableNetworkUntilRecovery(ctx, err, nil)
		}
		if batch == nil {
			if len(r.writePipeline) == 0 {
				r.writeStream.MarkIdle()
			}
			break
		}
		if err := r.addToWritePipeline(batch); err != nil {
			return err
		}
		lastBatchID = batch.ID
	}

	if r.shouldStartWriteStream() {
		r.writeStream.Start(ctx)
	}
	return nil
}

func (r *RemoteStore) canAddToWritePipeline() bool {
	return r.canUseNetwork() && len(r.writePipeline) < maxPendingWrites
}

func (r *RemoteStore) addToWritePipeline(batch *mutation.Batch) error {
	r.writePipeline = append(r.writePipeline, batch)
	if r.writeStream.IsOpen() && r.writeStream.HandshakeComplete() {
		return r.writeStream.WriteMutations(batch.Mutations)
	}
	return nil
}

func (r *RemoteStore) shouldStartWriteStream() bool {
	return r.canUseNetwork() && !r.writeStream.IsStarted() && len(r.writePipeline) > 0
}

func (r *RemoteStore) onWriteStreamOpen(context.Context) error {
	r.writeStream.WriteHandshake()
	return nil
}

func (r *RemoteStore) onWriteHandshakeComplete(ctx context.Context) error {
	if err := r.localStore.SetLastStreamToken(ctx, r.writeStream.LastStreamToken()); err != nil {
		return r.disableNetworkUntilRecovery(ctx, err, nil)
	}
	for _, batch := range r.writePipeline {
		if err := r.writeStream.WriteMutations(batch.Mutations); err != nil {
			return err
		}
	}
	return nil
}

func (r *RemoteStore) onMutationResult(
	ctx context.Context,
	commitVersion time.SnapshotVersion,
	results []mutation.Result,
) error {
	if len(r.writePipeline) == 0 {
		return errors.Internal("write result without a pending batch")
	}
	batch := r.writePipeline[0]
	r.writePipeline = r.writePipeline[1:]

	result := &mutation.BatchResult{
		Batch:           batch,
		CommitVersion:   commitVersion,
		MutationResults: results,
		StreamToken:     r.writeStream.LastStreamToken(),
	}
	r.metrics.AddAcknowledgedWrite()
	if err := r.syncer.ApplySuccessfulWrite(ctx, result); err != nil {
		return r.disableNetworkUntilRecovery(ctx, err, nil)
	}
	return r.FillWritePipeline(ctx)
}

func (r *RemoteStore) onWriteStreamClose(ctx context.Context, err error) error {
	if err != nil && len(r.writePipeline) > 0 {
		var handleErr error
		if r.writeStream.HandshakeComplete() {
			handleErr = r.handleWriteError(ctx, err)
		} else {
			handleErr = r.handleHandshakeError(ctx, err)
		}
		if handleErr != nil {
			return handleErr
		}
	}

	if r.shouldStartWriteStream() {
		r.writeStream.Start(ctx)
	}
	return nil
}

func (r *RemoteStore) handleHandshakeError(ctx context.Context, err error) error {
	if !errors.IsPermanent(err) {
		return nil
	}

	// The stream token was not accepted; the next handshake starts afresh.
	r.logger.Debugf("reset stream token after handshake error: %v", err)
	r.writeStream.SetLastStreamToken(nil)
	if err := r.localStore.SetLastStreamToken(ctx, nil); err != nil {
		return r.disableNetworkUntilRecovery(ctx, err, nil)
	}
	return nil
}

func (r *RemoteStore) handleWriteError(ctx context.Context, err error) error {
	if !errors.IsPermanentWrite(err) {
		return nil
	}

	batch := r.writePipeline[0]
	r.writePipeline = r.writePipeline[1:]

	// The next batch is sent without waiting for the backoff delay.
	r.writeStream.InhibitBackoff()
	r.metrics.AddRejectedWrite()
	if err := r.syncer.RejectFailedWrite(ctx, batch.ID, err); err != nil {
		return r.disableNetworkUntilRecovery(ctx, err, nil)
	}
	return r.FillWritePipeline(ctx)
}

// disableNetworkUntilRecovery goes offline when err reports unavailable
// storage, and enables the network again once retry, or a read of the
// local store by default, succeeds. Other errors are returned.
func (r *RemoteStore) disableNetworkUntilRecovery(ctx context.Context, err error, retry async.Operation) error {
	if !errors.Is(err, persistence.ErrStorageUnavailable) && !errors.Is(err, persistence.ErrLeaseLost) {
		return err
	}

	r.logger.Warnf("disabling network until storage recovers: %v", err)
	r.offlineCauses |= offlineStorageFailed
	if err := r.disableNetworkInternal(ctx); err != nil {
		return err
	}
	r.onlineStateTracker.Set(ctx, OnlineStateOffline)

	if retry == nil {
		retry = func(ctx context.Context) error {
			_, err := r.localStore.LastRemoteSnapshotVersion(ctx)
			return err
		}
	}
	r.queue.EnqueueRetryable(func(ctx context.Context) error {
		if err := retry(ctx); err != nil {
			return err
		}
		r.offlineCauses &^= offlineStorageFailed
		return r.enableNetworkInternal(ctx)
	})
	return nil
}

type watchStreamListener struct {
	r *RemoteStore
}

func (l watchStreamListener) OnOpen(ctx context.Context) error {
	return l.r.onWatchStreamOpen(ctx)
}

func (l watchStreamListener) OnWatchChange(ctx context.Context, change WatchChange, version time.SnapshotVersion) error {
	return l.r.onWatchStreamChange(ctx, change, version)
}

func (l watchStreamListener) OnClose(ctx context.Context, err error) error {
	return l.r.onWatchStreamClose(ctx, err)
}

type writeStreamListener struct {
	r *RemoteStore
}

func (l writeStreamListener) OnOpen(ctx context.Context) error {
	return l.r.onWriteStreamOpen(ctx)
}

func (l writeStreamListener) OnHandshakeComplete(ctx context.Context) error {
	return l.r.onWriteHandshakeComplete(ctx)
}

func (l writeStreamListener) OnMutationResult(
	ctx context.Context,
	commitVersion time.SnapshotVersion,
	results []mutation.Result,
) error {
	return l.r.onMutationResult(ctx, commitVersion, results)
}

func (l writeStreamListener) OnClose(ctx context.Context, err error) error {
	return l.r.onWriteStreamClose(ctx, err)
}
