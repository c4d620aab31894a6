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

package mutation

import (
	"fmt"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
)

// UnknownBatchID is the id of a batch that was not assigned one yet.
const UnknownBatchID = -1

// Batch is a group of mutations committed atomically.
type Batch struct {
	ID             int
	LocalWriteTime time.Timestamp
	Mutations      []Mutation
}

// NewBatch creates a batch.
func NewBatch(id int, localWriteTime time.Timestamp, mutations ...Mutation) *Batch {
	return &Batch{ID: id, LocalWriteTime: localWriteTime, Mutations: mutations}
}

// Keys returns the keys of the documents the batch writes.
func (b *Batch) Keys() *document.KeySet {
	keys := document.NewKeySet()
	for _, m := range b.Mutations {
		keys.Add(m.Key())
	}
	return keys
}

// ApplyToLocalView applies the mutations of the batch that target doc.
func (b *Batch) ApplyToLocalView(doc *document.MutableDocument, mask *FieldMask) *FieldMask {
	for _, m := range b.Mutations {
		if m.Key().Equal(doc.Key()) {
			mask = ApplyToLocalView(m, doc, mask, b.LocalWriteTime)
		}
	}
	return mask
}

// ApplyToRemoteDocument applies the acknowledged mutations of the batch that
// target doc.
func (b *Batch) ApplyToRemoteDocument(doc *document.MutableDocument, result *BatchResult) error {
	if len(result.MutationResults) != len(b.Mutations) {
		return fmt.Errorf(
			"batch %d: %d mutations but %d results: %w",
			b.ID, len(b.Mutations), len(result.MutationResults), ErrMismatchedResults,
		)
	}
	for i, m := range b.Mutations {
		if m.Key().Equal(doc.Key()) {
			ApplyToRemoteDocument(m, doc, result.MutationResults[i])
		}
	}
	return nil
}

// OverlayedDocument is a document with pending writes applied, along with
// the fields those writes changed.
type OverlayedDocument struct {
	Document *document.MutableDocument

	// MutatedFields holds the changed fields, or nil if the whole document
	// was replaced.
	MutatedFields *FieldMask
}

// ApplyToLocalDocumentSet applies the batch to the given documents and
// returns the overlay mutation of every document it touched.
// documentsWithoutRemoteVersion holds the keys whose remote state is
// unknown; they become deleted documents if the batch leaves them invalid.
func (b *Batch) ApplyToLocalDocumentSet(
	docs map[string]*OverlayedDocument,
	documentsWithoutRemoteVersion *document.KeySet,
) map[string]Mutation {
	overlays := make(map[string]Mutation)
	b.Keys().Each(func(k key.Key) bool {
		overlayed, ok := docs[k.String()]
		if !ok {
			return true
		}
		doc := overlayed.Document
		mask := b.ApplyToLocalView(doc, overlayed.MutatedFields)
		if documentsWithoutRemoteVersion.Has(k) {
			mask = nil
		}
		if overlay := CalculateOverlayMutation(doc, mask); overlay != nil {
			overlays[k.String()] = overlay
		}
		if !doc.IsValidDocument() {
			doc.ConvertToNoDocument(time.MinVersion)
		}
		return true
	})
	return overlays
}

// BatchResult is the backend acknowledgement of a batch.
type BatchResult struct {
	Batch           *Batch
	CommitVersion   time.SnapshotVersion
	MutationResults []Result
	StreamToken     []byte
}

// DocVersions returns the version each written document has after the
// batch was committed.
func (r *BatchResult) DocVersions() map[string]time.SnapshotVersion {
	versions := make(map[string]time.SnapshotVersion)
	for i, m := range r.Batch.Mutations {
		if i < len(r.MutationResults) {
			versions[m.Key().String()] = r.MutationResults[i].Version
		}
	}
	return versions
}

// Overlay is the effective pending write of one document, reflecting every
// queued batch up to LargestBatchID.
type Overlay struct {
	LargestBatchID int
	Mutation       Mutation
}

// Key returns the key of the overlaid document.
func (o *Overlay) Key() key.Key {
	return o.Mutation.Key()
}
