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
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/metrics/prometheus"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/bloom"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
)

// TargetMetadataProvider gives the aggregator access to what the engine
// knows about targets.
type TargetMetadataProvider interface {
	// GetRemoteKeysForTarget returns the keys the backend last reported
	// for the target.
	GetRemoteKeysForTarget(targetID int) *document.KeySet

	// GetTargetDataForTarget returns the data of a target listened to, or
	// nil.
	GetTargetDataForTarget(targetID int) *persistence.TargetData
}

type changeType int

const (
	changeAdded changeType = iota
	changeModified
	changeRemoved
)

// targetState tracks a target between two remote events.
type targetState struct {
	// pendingResponses counts the listen and unlisten requests the backend
	// did not acknowledge yet. Changes of a target with pending responses
	// are ignored.
	pendingResponses int

	documentChanges   map[string]documentChange
	resumeToken       []byte
	current           bool
	hasPendingChanges bool
}

type documentChange struct {
	key        key.Key
	changeType changeType
}

func newTargetState() *targetState {
	return &targetState{
		documentChanges:   make(map[string]documentChange),
		hasPendingChanges: true,
	}
}

func (s *targetState) isPending() bool {
	return s.pendingResponses != 0
}

func (s *targetState) updateResumeToken(token []byte) {
	if len(token) > 0 {
		s.hasPendingChanges = true
		s.resumeToken = token
	}
}

func (s *targetState) toTargetChange() *TargetChange {
	change := NewTargetChange(s.resumeToken, s.current)
	for _, c := range s.documentChanges {
		switch c.changeType {
		case changeAdded:
			change.AddedDocuments.Add(c.key)
		case changeModified:
			change.ModifiedDocuments.Add(c.key)
		case changeRemoved:
			change.RemovedDocuments.Add(c.key)
		}
	}
	return change
}

func (s *targetState) clearPendingChanges() {
	s.hasPendingChanges = false
	s.documentChanges = make(map[string]documentChange)
}

func (s *targetState) addDocumentChange(k key.Key, t changeType) {
	s.hasPendingChanges = true
	s.documentChanges[k.String()] = documentChange{key: k, changeType: t}
}

func (s *targetState) removeDocumentChange(k key.Key) {
	s.hasPendingChanges = true
	delete(s.documentChanges, k.String())
}

func (s *targetState) markCurrent() {
	s.hasPendingChanges = true
	s.current = true
}

// documentTargets holds the targets a pending document update came from.
type documentTargets struct {
	key     key.Key
	targets map[int]struct{}
}

// WatchChangeAggregator accumulates watch changes into RemoteEvents. It
// lives as long as one Listen stream.
type WatchChangeAggregator struct {
	provider   TargetMetadataProvider
	databaseID key.DatabaseID
	logger     logging.Logger
	metrics    *prometheus.Metrics

	targetStates map[int]*targetState

	pendingDocumentUpdates       *document.DocumentMap
	pendingDocumentTargetMapping map[string]*documentTargets
	pendingTargetResets          map[int]persistence.TargetPurpose
	pendingFilteredDocuments     *document.KeySet
}

// NewWatchChangeAggregator creates an aggregator. Document names in bloom
// filters are resolved against databaseID.
func NewWatchChangeAggregator(
	provider TargetMetadataProvider,
	databaseID key.DatabaseID,
	logger logging.Logger,
	metrics *prometheus.Metrics,
) *WatchChangeAggregator {
	a := &WatchChangeAggregator{
		provider:     provider,
		databaseID:   databaseID,
		logger:       logger,
		metrics:      metrics,
		targetStates: make(map[int]*targetState),
	}
	a.resetPending()
	return a
}

func (a *WatchChangeAggregator) resetPending() {
	a.pendingDocumentUpdates = document.NewDocumentMap()
	a.pendingDocumentTargetMapping = make(map[string]*documentTargets)
	a.pendingTargetResets = make(map[int]persistence.TargetPurpose)
	a.pendingFilteredDocuments = document.NewKeySet()
}

// HandleDocumentChange processes a document change.
func (a *WatchChangeAggregator) HandleDocumentChange(change *DocumentWatchChange) {
	for _, targetID := range change.UpdatedTargetIDs {
		switch {
		case change.NewDocument != nil && change.NewDocument.IsFoundDocument():
			a.addDocumentToTarget(targetID, change.NewDocument)
		case change.NewDocument != nil && change.NewDocument.IsNoDocument():
			a.removeDocumentFromTarget(targetID, change.Key, change.NewDocument)
		}
	}

	for _, targetID := range change.RemovedTargetIDs {
		a.removeDocumentFromTarget(targetID, change.Key, change.NewDocument)
	}
}

// HandleTargetChange processes a change of target states. Removals with a
// cause are handled by the caller.
func (a *WatchChangeAggregator) HandleTargetChange(change *TargetWatchChange) {
	for _, targetID := range a.targetIDsOf(change) {
		state := a.ensureTargetState(targetID)
		switch change.State {
		case TargetNoChange:
			if a.isActiveTarget(targetID) {
				state.updateResumeToken(change.ResumeToken)
			}
		case TargetAdded:
			// Changes received before the acknowledgement may be stale.
			state.pendingResponses--
			if !state.isPending() {
				state.clearPendingChanges()
			}
			state.updateResumeToken(change.ResumeToken)
		case TargetRemoved:
			state.pendingResponses--
			if !state.isPending() {
				a.RemoveTarget(targetID)
			}
		case TargetCurrent:
			if a.isActiveTarget(targetID) {
				state.markCurrent()
				state.updateResumeToken(change.ResumeToken)
			}
		case TargetReset:
			if a.isActiveTarget(targetID) {
				a.resetTarget(targetID)
				a.targetStates[targetID].updateResumeToken(change.ResumeToken)
			}
		default:
			a.logger.Warnf("unknown target change state %d", change.State)
		}
	}
}

func (a *WatchChangeAggregator) targetIDsOf(change *TargetWatchChange) []int {
	if len(change.TargetIDs) > 0 {
		return change.TargetIDs
	}

	var targetIDs []int
	for targetID := range a.targetStates {
		if a.isActiveTarget(targetID) {
			targetIDs = append(targetIDs, targetID)
		}
	}
	return targetIDs
}

// HandleExistenceFilter compares the number of documents the backend has
// for a target with the number the client has. On a mismatch, documents
// the bloom filter definitely excludes are removed; if that does not
// reconcile the counts the target is reset and reported as mismatched.
func (a *WatchChangeAggregator) HandleExistenceFilter(change *ExistenceFilterWatchChange) {
	targetID := change.TargetID
	data := a.targetDataForActiveTarget(targetID)
	if data == nil {
		return
	}

	if k, ok := data.Target.DocumentKey(); ok {
		if change.Count == 0 {
			// The document was deleted while the client was not listening.
			a.removeDocumentFromTarget(targetID, k, document.NewNoDocument(k, time.MinVersion))
		} else if change.Count != 1 {
			a.logger.Warnf("existence filter of document target %d has count %d", targetID, change.Count)
		}
		return
	}

	current := a.currentDocumentCount(targetID)
	if current == change.Count {
		return
	}

	outcome := a.applyBloomFilter(change, current)
	a.metrics.AddExistenceFilterMismatch(outcome)
	if outcome == prometheus.OutcomeBloomSuccess {
		return
	}

	a.logger.Debugf(
		"existence filter mismatch for target %d: expected %d, have %d (%s)",
		targetID, change.Count, current, outcome,
	)
	a.resetTarget(targetID)
	purpose := persistence.PurposeExistenceFilterMismatch
	if outcome == prometheus.OutcomeBloomFalsePositive {
		purpose = persistence.PurposeExistenceFilterMismatchBloom
	}
	a.pendingTargetResets[targetID] = purpose
}

// applyBloomFilter removes the documents the bloom filter of change
// excludes when that makes the counts match.
func (a *WatchChangeAggregator) applyBloomFilter(change *ExistenceFilterWatchChange, current int) string {
	names := change.UnchangedNames
	if names == nil || len(names.Bitmap) == 0 {
		return prometheus.OutcomeSkipped
	}

	filter, err := bloom.New(names.Bitmap, names.Padding, names.HashCount)
	if err != nil {
		a.logger.Warnf("decode bloom filter of target %d: %v", change.TargetID, err)
		return prometheus.OutcomeSkipped
	}
	if filter.BitCount() == 0 {
		return prometheus.OutcomeSkipped
	}

	excluded := a.excludedDocuments(filter, change.TargetID)
	if change.Count != current-len(excluded) {
		return prometheus.OutcomeBloomFalsePositive
	}

	// The documents no longer match the target. They become no-documents
	// once the event version is known.
	for _, k := range excluded {
		a.removeDocumentFromTarget(change.TargetID, k, nil)
		a.pendingFilteredDocuments.Add(k)
	}
	return prometheus.OutcomeBloomSuccess
}

func (a *WatchChangeAggregator) excludedDocuments(filter *bloom.Filter, targetID int) []key.Key {
	var excluded []key.Key
	a.provider.GetRemoteKeysForTarget(targetID).Each(func(k key.Key) bool {
		if !filter.MightContain(a.databaseID.DocumentName(k)) {
			excluded = append(excluded, k)
		}
		return true
	})
	return excluded
}

// CreateRemoteEvent flushes the accumulated changes into an event at
// version.
func (a *WatchChangeAggregator) CreateRemoteEvent(version time.SnapshotVersion) *RemoteEvent {
	event := NewRemoteEvent(version)

	for targetID, state := range a.targetStates {
		data := a.targetDataForActiveTarget(targetID)
		if data == nil {
			continue
		}

		if k, ok := data.Target.DocumentKey(); ok && state.current {
			// A document target for a missing document gets no document
			// change; the deletion is synthesized here. It is dated by this
			// event, which is never older than the snapshot that put the
			// document in limbo.
			if _, pending := a.pendingDocumentUpdates.Get(k); !pending && !a.targetContainsDocument(targetID, k) {
				a.removeDocumentFromTarget(targetID, k, document.NewNoDocument(k, version))
			}
		}

		if state.hasPendingChanges {
			event.TargetChanges[targetID] = state.toTargetChange()
			state.clearPendingChanges()
		}
	}

	for _, mapping := range a.pendingDocumentTargetMapping {
		onlyLimbo := true
		for targetID := range mapping.targets {
			data := a.targetDataForActiveTarget(targetID)
			if data != nil && data.Purpose != persistence.PurposeLimboResolution {
				onlyLimbo = false
				break
			}
		}
		if onlyLimbo {
			event.ResolvedLimboDocuments.Add(mapping.key)
		}
	}

	a.pendingFilteredDocuments.Each(func(k key.Key) bool {
		if _, ok := a.pendingDocumentUpdates.Get(k); !ok {
			a.pendingDocumentUpdates.Set(document.NewNoDocument(k, version))
			event.FilteredDocuments.Add(k)
		}
		return true
	})
	a.pendingDocumentUpdates.Each(func(doc *document.MutableDocument) bool {
		doc.SetReadTime(version)
		event.DocumentUpdates.Set(doc)
		return true
	})
	for targetID, purpose := range a.pendingTargetResets {
		event.TargetMismatches[targetID] = purpose
	}

	a.resetPending()
	return event
}

func (a *WatchChangeAggregator) addDocumentToTarget(targetID int, doc *document.MutableDocument) {
	if !a.isActiveTarget(targetID) {
		return
	}

	t := changeAdded
	if a.targetContainsDocument(targetID, doc.Key()) {
		t = changeModified
	}
	a.ensureTargetState(targetID).addDocumentChange(doc.Key(), t)
	a.pendingDocumentUpdates.Set(doc)
	a.ensureDocumentTargets(doc.Key()).targets[targetID] = struct{}{}
}

// removeDocumentFromTarget records that k left the target. doc is the new
// state of the document, or nil if it is unknown.
func (a *WatchChangeAggregator) removeDocumentFromTarget(targetID int, k key.Key, doc *document.MutableDocument) {
	if !a.isActiveTarget(targetID) {
		return
	}

	state := a.ensureTargetState(targetID)
	if a.targetContainsDocument(targetID, k) {
		state.addDocumentChange(k, changeRemoved)
	} else {
		// The document was added and removed within the same event.
		state.removeDocumentChange(k)
	}

	a.ensureDocumentTargets(k).targets[targetID] = struct{}{}
	if doc != nil {
		a.pendingDocumentUpdates.Set(doc)
	}
}

// RemoveTarget forgets the state of a target.
func (a *WatchChangeAggregator) RemoveTarget(targetID int) {
	delete(a.targetStates, targetID)
}

// resetTarget drops every document of the target; the backend sends them
// again.
func (a *WatchChangeAggregator) resetTarget(targetID int) {
	a.targetStates[targetID] = newTargetState()
	a.provider.GetRemoteKeysForTarget(targetID).Each(func(k key.Key) bool {
		a.removeDocumentFromTarget(targetID, k, nil)
		return true
	})
}

// RecordPendingTargetRequest records that a listen or unlisten request was
// sent for the target.
func (a *WatchChangeAggregator) RecordPendingTargetRequest(targetID int) {
	a.ensureTargetState(targetID).pendingResponses++
}

// currentDocumentCount returns the number of documents the target has as
// of the changes received so far.
func (a *WatchChangeAggregator) currentDocumentCount(targetID int) int {
	change := a.ensureTargetState(targetID).toTargetChange()
	return a.provider.GetRemoteKeysForTarget(targetID).Len() +
		change.AddedDocuments.Len() - change.RemovedDocuments.Len()
}

func (a *WatchChangeAggregator) ensureTargetState(targetID int) *targetState {
	state, ok := a.targetStates[targetID]
	if !ok {
		state = newTargetState()
		a.targetStates[targetID] = state
	}
	return state
}

func (a *WatchChangeAggregator) ensureDocumentTargets(k key.Key) *documentTargets {
	mapping, ok := a.pendingDocumentTargetMapping[k.String()]
	if !ok {
		mapping = &documentTargets{key: k, targets: make(map[int]struct{})}
		a.pendingDocumentTargetMapping[k.String()] = mapping
	}
	return mapping
}

func (a *WatchChangeAggregator) isActiveTarget(targetID int) bool {
	return a.targetDataForActiveTarget(targetID) != nil
}

// targetDataForActiveTarget returns nil for targets that are not listened
// to or that wait for the backend to acknowledge a request.
func (a *WatchChangeAggregator) targetDataForActiveTarget(targetID int) *persistence.TargetData {
	if state, ok := a.targetStates[targetID]; ok && state.isPending() {
		return nil
	}
	return a.provider.GetTargetDataForTarget(targetID)
}

func (a *WatchChangeAggregator) targetContainsDocument(targetID int, k key.Key) bool {
	return a.provider.GetRemoteKeysForTarget(targetID).Has(k)
}
