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

package persistence

import (
	"fmt"

	"github.com/yorkie-team/docsync/api"
	"github.com/yorkie-team/docsync/api/converter"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/query"
)

// LocalSerializer converts the model to the records of the storage. Values,
// writes and targets are kept in their wire form.
type LocalSerializer struct {
	remote *converter.Serializer
}

// NewLocalSerializer creates a serializer for the given database.
func NewLocalSerializer(databaseID key.DatabaseID) *LocalSerializer {
	return &LocalSerializer{remote: converter.NewSerializer(databaseID)}
}

// ToRemoteDocumentRecord converts a document of the remote document cache.
func (s *LocalSerializer) ToRemoteDocumentRecord(doc *document.MutableDocument) *RemoteDocumentRecord {
	k := doc.Key()
	record := &RemoteDocumentRecord{
		ID:                    k.String(),
		CollectionPath:        k.CollectionPath().String(),
		CollectionGroup:       k.CollectionGroup(),
		Type:                  int(doc.Type()),
		HasCommittedMutations: doc.HasCommittedMutations(),
		Version:               converter.ToVersion(doc.Version()),
		ReadTime:              converter.ToVersion(doc.ReadTime()),
	}
	if doc.IsFoundDocument() {
		record.Fields = s.remote.ToFields(doc.Data().Fields())
	}
	return record
}

// FromRemoteDocumentRecord converts a stored document.
func (s *LocalSerializer) FromRemoteDocumentRecord(record *RemoteDocumentRecord) (*document.MutableDocument, error) {
	k, err := key.Parse(record.ID)
	if err != nil {
		return nil, fmt.Errorf("remote document %q: %w", record.ID, err)
	}

	version := converter.FromVersion(record.Version)
	var doc *document.MutableDocument
	switch document.Type(record.Type) {
	case document.TypeFound:
		fields, err := s.remote.FromFields(record.Fields)
		if err != nil {
			return nil, fmt.Errorf("remote document %q: %w", record.ID, err)
		}
		doc = document.NewFoundDocument(k, version, value.NewObject(fields))
	case document.TypeNoDocument:
		doc = document.NewNoDocument(k, version)
	case document.TypeUnknown:
		doc = document.NewUnknownDocument(k, version)
	default:
		doc = document.NewInvalidDocument(k)
	}

	if record.HasCommittedMutations {
		doc.SetHasCommittedMutations()
	}
	return doc.SetReadTime(converter.FromVersion(record.ReadTime)), nil
}

// ToMutationBatchRecord converts a batch of the given user.
func (s *LocalSerializer) ToMutationBatchRecord(userID string, batch *mutation.Batch) (*MutationBatchRecord, error) {
	writes, err := s.remote.ToWrites(batch.Mutations)
	if err != nil {
		return nil, fmt.Errorf("batch %d: %w", batch.ID, err)
	}
	return &MutationBatchRecord{
		ID:             MutationBatchID(userID, batch.ID),
		UserID:         userID,
		BatchID:        batch.ID,
		BatchKey:       PaddedID(batch.ID),
		LocalWriteTime: converter.ToTimestamp(batch.LocalWriteTime),
		Writes:         writes,
	}, nil
}

// FromMutationBatchRecord converts a stored batch.
func (s *LocalSerializer) FromMutationBatchRecord(record *MutationBatchRecord) (*mutation.Batch, error) {
	mutations := make([]mutation.Mutation, 0, len(record.Writes))
	for _, w := range record.Writes {
		m, err := s.remote.FromWrite(w)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", record.BatchID, err)
		}
		mutations = append(mutations, m)
	}
	return mutation.NewBatch(record.BatchID, converter.FromTimestamp(record.LocalWriteTime), mutations...), nil
}

// ToOverlayRecord converts an overlay of the given user.
func (s *LocalSerializer) ToOverlayRecord(userID string, overlay *mutation.Overlay) (*OverlayRecord, error) {
	w, err := s.remote.ToWrite(overlay.Mutation)
	if err != nil {
		return nil, fmt.Errorf("overlay of %s: %w", overlay.Key(), err)
	}
	k := overlay.Key()
	return &OverlayRecord{
		ID:              OverlayID(userID, k.String()),
		UserID:          userID,
		Path:            k.String(),
		CollectionPath:  k.CollectionPath().String(),
		CollectionGroup: k.CollectionGroup(),
		LargestBatchID:  overlay.LargestBatchID,
		LargestBatchKey: PaddedID(overlay.LargestBatchID),
		Write:           w,
	}, nil
}

// FromOverlayRecord converts a stored overlay.
func (s *LocalSerializer) FromOverlayRecord(record *OverlayRecord) (*mutation.Overlay, error) {
	m, err := s.remote.FromWrite(record.Write)
	if err != nil {
		return nil, fmt.Errorf("overlay of %s: %w", record.Path, err)
	}
	return &mutation.Overlay{LargestBatchID: record.LargestBatchID, Mutation: m}, nil
}

// ToTargetRecord converts target data. The expected count is not stored.
func (s *LocalSerializer) ToTargetRecord(data *TargetData) *TargetRecord {
	return &TargetRecord{
		ID:                           PaddedID(data.TargetID),
		TargetID:                     data.TargetID,
		CanonicalID:                  data.Target.CanonicalID(),
		Purpose:                      int(data.Purpose),
		SequenceNumber:               data.SequenceNumber,
		SnapshotVersion:              converter.ToVersion(data.SnapshotVersion),
		LastLimboFreeSnapshotVersion: converter.ToVersion(data.LastLimboFreeSnapshotVersion),
		ResumeToken:                  data.ResumeToken,
		Target:                       s.remote.ToTarget(data.Target, data.TargetID, nil, time.MinVersion, nil),
	}
}

// FromTargetRecord converts a stored target.
func (s *LocalSerializer) FromTargetRecord(record *TargetRecord) (*TargetData, error) {
	target, err := s.remote.FromTarget(record.Target)
	if err != nil {
		return nil, fmt.Errorf("target %d: %w", record.TargetID, err)
	}
	return &TargetData{
		Target:                       target,
		TargetID:                     record.TargetID,
		Purpose:                      TargetPurpose(record.Purpose),
		SequenceNumber:               record.SequenceNumber,
		SnapshotVersion:              converter.FromVersion(record.SnapshotVersion),
		LastLimboFreeSnapshotVersion: converter.FromVersion(record.LastLimboFreeSnapshotVersion),
		ResumeToken:                  record.ResumeToken,
	}, nil
}

// ToNamedQueryRecord converts a named query. The query is stored as a
// target with its explicit orderings and unflipped bounds, so that it can
// be restored as written.
func (s *LocalSerializer) ToNamedQueryRecord(q *NamedQuery) *NamedQueryRecord {
	target := &query.Target{
		Path:            q.Query.Path,
		CollectionGroup: q.Query.CollectionGroup,
		Filters:         q.Query.Filters,
		OrderBy:         q.Query.ExplicitOrderBy,
		Limit:           q.Query.Limit,
		StartAt:         q.Query.StartAt,
		EndAt:           q.Query.EndAt,
	}

	var wire *api.Target
	if target.IsDocumentTarget() {
		wire = &api.Target{Documents: s.remote.ToDocumentsTarget(target)}
	} else {
		wire = &api.Target{Query: s.remote.ToQueryTarget(target)}
	}
	return &NamedQueryRecord{
		ID:        q.Name,
		Query:     wire,
		LimitType: int(q.Query.LimitType),
		ReadTime:  converter.ToVersion(q.ReadTime),
	}
}

// FromNamedQueryRecord converts a stored named query.
func (s *LocalSerializer) FromNamedQueryRecord(record *NamedQueryRecord) (*NamedQuery, error) {
	var q *query.Query
	if record.Query.Documents != nil {
		target, err := s.remote.FromDocumentsTarget(record.Query.Documents)
		if err != nil {
			return nil, fmt.Errorf("named query %q: %w", record.ID, err)
		}
		q = query.NewQuery(target.Path)
	} else {
		target, err := s.remote.FromQueryTarget(record.Query.Query)
		if err != nil {
			return nil, fmt.Errorf("named query %q: %w", record.ID, err)
		}
		q = &query.Query{
			Path:            target.Path,
			CollectionGroup: target.CollectionGroup,
			Filters:         target.Filters,
			ExplicitOrderBy: target.OrderBy,
			Limit:           target.Limit,
			LimitType:       query.LimitType(record.LimitType),
			StartAt:         target.StartAt,
			EndAt:           target.EndAt,
		}
	}
	return &NamedQuery{Name: record.ID, Query: q, ReadTime: converter.FromVersion(record.ReadTime)}, nil
}
