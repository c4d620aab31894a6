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

package local

import (
	"fmt"
	"sort"

	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/query"
)

// LocalDocumentsView reads documents as the user sees them: the last known
// remote state with the overlay of pending writes folded on top.
type LocalDocumentsView struct {
	remoteDocuments persistence.RemoteDocumentCache
	mutationQueue   persistence.MutationQueue
	overlays        persistence.DocumentOverlayCache
}

// NewLocalDocumentsView creates a view over the given caches of one user.
func NewLocalDocumentsView(
	remoteDocuments persistence.RemoteDocumentCache,
	mutationQueue persistence.MutationQueue,
	overlays persistence.DocumentOverlayCache,
) *LocalDocumentsView {
	return &LocalDocumentsView{
		remoteDocuments: remoteDocuments,
		mutationQueue:   mutationQueue,
		overlays:        overlays,
	}
}

// maskOf returns the fields an overlay mutation changes, or nil if it
// replaces the whole document.
func maskOf(m mutation.Mutation) *mutation.FieldMask {
	if patch, ok := m.(*mutation.Patch); ok {
		return patch.Mask()
	}
	return nil
}

func isPatch(overlay *mutation.Overlay) bool {
	_, ok := overlay.Mutation.(*mutation.Patch)
	return ok
}

// GetDocument returns the local view of the document with key k, or an
// invalid document if nothing is known about it.
func (v *LocalDocumentsView) GetDocument(txn persistence.Transaction, k key.Key) (*document.MutableDocument, error) {
	overlay, err := v.overlays.GetOverlay(txn, k)
	if err != nil {
		return nil, err
	}

	doc, err := v.baseDocument(txn, k, overlay)
	if err != nil {
		return nil, err
	}
	if overlay != nil {
		mutation.ApplyToLocalView(overlay.Mutation, doc, mutation.NewFieldMask(), time.Now())
	}
	return doc, nil
}

// baseDocument returns the document an overlay applies to. Only patches
// depend on the remote state.
func (v *LocalDocumentsView) baseDocument(
	txn persistence.Transaction,
	k key.Key,
	overlay *mutation.Overlay,
) (*document.MutableDocument, error) {
	if overlay == nil || isPatch(overlay) {
		return v.remoteDocuments.Get(txn, k)
	}
	return document.NewInvalidDocument(k), nil
}

// GetDocuments returns the local view of the documents with the given keys.
// Unknown documents are returned as invalid documents.
func (v *LocalDocumentsView) GetDocuments(txn persistence.Transaction, keys *document.KeySet) (*document.DocumentMap, error) {
	docs, err := v.remoteDocuments.GetAll(txn, keys)
	if err != nil {
		return nil, err
	}
	return v.GetLocalViewOfDocuments(txn, docs, document.NewKeySet())
}

// GetLocalViewOfDocuments folds the overlays onto the given remote
// documents. Overlays of documents in existenceChanged are recalculated
// when they depend on the remote state.
func (v *LocalDocumentsView) GetLocalViewOfDocuments(
	txn persistence.Transaction,
	docs *document.DocumentMap,
	existenceChanged *document.KeySet,
) (*document.DocumentMap, error) {
	overlays, err := v.overlays.GetOverlays(txn, docs.Keys())
	if err != nil {
		return nil, err
	}

	overlayed, err := v.computeViews(txn, docs, overlays, existenceChanged)
	if err != nil {
		return nil, err
	}

	result := document.NewDocumentMap()
	for _, o := range overlayed {
		result.Set(o.Document)
	}
	return result, nil
}

// GetOverlayedDocuments is like GetLocalViewOfDocuments but also returns
// the fields the overlays changed.
func (v *LocalDocumentsView) GetOverlayedDocuments(
	txn persistence.Transaction,
	docs *document.DocumentMap,
) (map[string]*mutation.OverlayedDocument, error) {
	overlays, err := v.overlays.GetOverlays(txn, docs.Keys())
	if err != nil {
		return nil, err
	}
	return v.computeViews(txn, docs, overlays, document.NewKeySet())
}

func (v *LocalDocumentsView) computeViews(
	txn persistence.Transaction,
	docs *document.DocumentMap,
	overlays map[string]*mutation.Overlay,
	existenceChanged *document.KeySet,
) (map[string]*mutation.OverlayedDocument, error) {
	recalculate := document.NewDocumentMap()
	mutatedFields := make(map[string]*mutation.FieldMask)

	docs.Each(func(doc *document.MutableDocument) bool {
		overlay := overlays[doc.Key().String()]
		switch {
		case existenceChanged.Has(doc.Key()) && (overlay == nil || isPatch(overlay)):
			// A patch applies differently once the document appears or
			// disappears remotely.
			recalculate.Set(doc)
		case overlay != nil:
			mask := maskOf(overlay.Mutation)
			mutatedFields[doc.Key().String()] = mask
			mutation.ApplyToLocalView(overlay.Mutation, doc, mask, time.Now())
		default:
			mutatedFields[doc.Key().String()] = mutation.NewFieldMask()
		}
		return true
	})

	recalculated, err := v.recalculateAndSaveOverlays(txn, recalculate)
	if err != nil {
		return nil, err
	}
	for k, mask := range recalculated {
		mutatedFields[k] = mask
	}

	result := make(map[string]*mutation.OverlayedDocument, docs.Len())
	docs.Each(func(doc *document.MutableDocument) bool {
		result[doc.Key().String()] = &mutation.OverlayedDocument{
			Document:      doc,
			MutatedFields: mutatedFields[doc.Key().String()],
		}
		return true
	})
	return result, nil
}

// RecalculateAndSaveOverlays recomputes the overlays of the given keys
// from every queued batch and stores them.
func (v *LocalDocumentsView) RecalculateAndSaveOverlays(txn persistence.Transaction, keys *document.KeySet) error {
	docs, err := v.remoteDocuments.GetAll(txn, keys)
	if err != nil {
		return err
	}
	_, err = v.recalculateAndSaveOverlays(txn, docs)
	return err
}

// recalculateAndSaveOverlays folds every queued batch affecting docs onto
// them, in batch order, and stores the resulting overlays under the id of
// the last batch touching each document. docs are modified in place. It
// returns the fields changed per document.
func (v *LocalDocumentsView) recalculateAndSaveOverlays(
	txn persistence.Transaction,
	docs *document.DocumentMap,
) (map[string]*mutation.FieldMask, error) {
	masks := make(map[string]*mutation.FieldMask)
	if docs.Len() == 0 {
		return masks, nil
	}

	batches, err := v.mutationQueue.AllMutationBatchesAffectingDocumentKeys(txn, docs.Keys())
	if err != nil {
		return nil, err
	}

	keysByBatchID := make(map[int]*document.KeySet)
	for _, batch := range batches {
		batch.Keys().Each(func(k key.Key) bool {
			doc, ok := docs.Get(k)
			if !ok {
				return true
			}

			mask, seen := masks[k.String()]
			if !seen {
				mask = mutation.NewFieldMask()
			}
			masks[k.String()] = batch.ApplyToLocalView(doc, mask)

			if _, ok := keysByBatchID[batch.ID]; !ok {
				keysByBatchID[batch.ID] = document.NewKeySet()
			}
			keysByBatchID[batch.ID].Add(k)
			return true
		})
	}

	batchIDs := make([]int, 0, len(keysByBatchID))
	for id := range keysByBatchID {
		batchIDs = append(batchIDs, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(batchIDs)))

	processed := document.NewKeySet()
	for _, batchID := range batchIDs {
		overlays := make(map[string]mutation.Mutation)
		keysByBatchID[batchID].Each(func(k key.Key) bool {
			if !processed.Add(k) {
				return true
			}
			doc, _ := docs.Get(k)
			if overlay := mutation.CalculateOverlayMutation(doc, masks[k.String()]); overlay != nil {
				overlays[k.String()] = overlay
			}
			return true
		})
		if len(overlays) == 0 {
			continue
		}
		if err := v.overlays.SaveOverlays(txn, batchID, overlays); err != nil {
			return nil, fmt.Errorf("save overlays of batch %d: %w", batchID, err)
		}
	}

	return masks, nil
}

// GetDocumentsMatchingQuery returns the local view of the documents
// matching q. Only documents read after sinceReadTime and overlays newer
// than sinceBatchID are considered.
func (v *LocalDocumentsView) GetDocumentsMatchingQuery(
	txn persistence.Transaction,
	q *query.Query,
	sinceReadTime time.SnapshotVersion,
	sinceBatchID int,
) (*document.DocumentMap, error) {
	if q.IsDocumentQuery() {
		return v.documentQuery(txn, q)
	}
	return v.collectionQuery(txn, q, sinceReadTime, sinceBatchID)
}

func (v *LocalDocumentsView) documentQuery(txn persistence.Transaction, q *query.Query) (*document.DocumentMap, error) {
	result := document.NewDocumentMap()
	k, err := key.New(q.Path)
	if err != nil {
		return nil, err
	}

	doc, err := v.GetDocument(txn, k)
	if err != nil {
		return nil, err
	}
	if doc.IsFoundDocument() {
		result.Set(doc)
	}
	return result, nil
}

func (v *LocalDocumentsView) collectionQuery(
	txn persistence.Transaction,
	q *query.Query,
	sinceReadTime time.SnapshotVersion,
	sinceBatchID int,
) (*document.DocumentMap, error) {
	var overlays map[string]*mutation.Overlay
	var err error
	if q.IsCollectionGroupQuery() {
		overlays, err = v.overlays.GetOverlaysForCollectionGroup(txn, q.CollectionGroup, sinceBatchID)
	} else {
		overlays, err = v.overlays.GetOverlaysForCollection(txn, q.Path, sinceBatchID)
	}
	if err != nil {
		return nil, err
	}

	mutatedKeys := document.NewKeySet()
	for _, overlay := range overlays {
		if q.MatchesCollection(overlay.Key()) {
			mutatedKeys.Add(overlay.Key())
		}
	}

	docs, err := v.remoteDocuments.GetDocumentsMatchingQuery(txn, q, sinceReadTime, mutatedKeys)
	if err != nil {
		return nil, err
	}

	// Documents may match only because of their overlay.
	mutatedKeys.Each(func(k key.Key) bool {
		if _, ok := docs.Get(k); !ok {
			docs.Set(document.NewInvalidDocument(k))
		}
		return true
	})

	result := document.NewDocumentMap()
	docs.Each(func(doc *document.MutableDocument) bool {
		if overlay, ok := overlays[doc.Key().String()]; ok {
			mutation.ApplyToLocalView(overlay.Mutation, doc, mutation.NewFieldMask(), time.Now())
		}
		if q.Matches(doc) {
			result.Set(doc)
		}
		return true
	})
	return result, nil
}
