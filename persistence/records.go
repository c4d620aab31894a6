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
	"github.com/yorkie-team/docsync/credentials"
)

// The names of the stores records are kept in. The durable backend uses
// them as collection names.
const (
	StoreRemoteDocuments   = "remote_documents"
	StoreMutationQueues    = "mutation_queues"
	StoreMutationBatches   = "mutation_batches"
	StoreDocumentMutations = "document_mutations"
	StoreOverlays          = "document_overlays"
	StoreTargets           = "targets"
	StoreTargetDocuments   = "target_documents"
	StoreTargetGlobals     = "target_globals"
	StoreNamedQueries      = "named_queries"
)

// TargetGlobalsID is the id of the single target globals record.
const TargetGlobalsID = "target_globals"

// Record is a stored row. Records are never modified once stored; updates
// store a new record with the same id.
type Record interface {
	RecordID() string
}

// Stores returns the store names along with a constructor of their record
// type.
func Stores() map[string]func() Record {
	return map[string]func() Record{
		StoreRemoteDocuments:   func() Record { return &RemoteDocumentRecord{} },
		StoreMutationQueues:    func() Record { return &MutationQueueRecord{} },
		StoreMutationBatches:   func() Record { return &MutationBatchRecord{} },
		StoreDocumentMutations: func() Record { return &DocumentMutationRecord{} },
		StoreOverlays:          func() Record { return &OverlayRecord{} },
		StoreTargets:           func() Record { return &TargetRecord{} },
		StoreTargetDocuments:   func() Record { return &TargetDocumentRecord{} },
		StoreTargetGlobals:     func() Record { return &TargetGlobalsRecord{} },
		StoreNamedQueries:      func() Record { return &NamedQueryRecord{} },
	}
}

// PaddedID formats an id so that ids sort numerically as strings.
func PaddedID(id int) string {
	return fmt.Sprintf("%010d", id)
}

// UserID returns the id records of the given user are stored under.
func UserID(user credentials.User) string {
	return user.Key()
}

// RemoteDocumentRecord is a document of the remote document cache.
type RemoteDocumentRecord struct {
	ID                    string                `bson:"_id"`
	CollectionPath        string                `bson:"collection_path"`
	CollectionGroup       string                `bson:"collection_group"`
	Type                  int                   `bson:"type"`
	HasCommittedMutations bool                  `bson:"has_committed_mutations"`
	Version               *api.Timestamp        `bson:"version,omitempty"`
	ReadTime              *api.Timestamp        `bson:"read_time,omitempty"`
	Fields                map[string]*api.Value `bson:"fields,omitempty"`
}

// RecordID implements Record.
func (r *RemoteDocumentRecord) RecordID() string { return r.ID }

// MutationQueueRecord holds the state of the mutation queue of one user.
type MutationQueueRecord struct {
	ID                      string `bson:"_id"`
	NextBatchID             int    `bson:"next_batch_id"`
	LastAcknowledgedBatchID int    `bson:"last_acknowledged_batch_id"`
	LastStreamToken         []byte `bson:"last_stream_token,omitempty"`
}

// RecordID implements Record.
func (r *MutationQueueRecord) RecordID() string { return r.ID }

// MutationBatchRecord is a pending batch of one user.
type MutationBatchRecord struct {
	ID             string         `bson:"_id"`
	UserID         string         `bson:"user_id"`
	BatchID        int            `bson:"batch_id"`
	BatchKey       string         `bson:"batch_key"`
	LocalWriteTime *api.Timestamp `bson:"local_write_time"`
	Writes         []*api.Write   `bson:"writes"`
}

// RecordID implements Record.
func (r *MutationBatchRecord) RecordID() string { return r.ID }

// DocumentMutationRecord tells that a pending batch writes a document.
type DocumentMutationRecord struct {
	ID       string `bson:"_id"`
	UserID   string `bson:"user_id"`
	Path     string `bson:"path"`
	BatchID  int    `bson:"batch_id"`
	BatchKey string `bson:"batch_key"`
}

// RecordID implements Record.
func (r *DocumentMutationRecord) RecordID() string { return r.ID }

// OverlayRecord is the overlay of one document of one user.
type OverlayRecord struct {
	ID              string     `bson:"_id"`
	UserID          string     `bson:"user_id"`
	Path            string     `bson:"path"`
	CollectionPath  string     `bson:"collection_path"`
	CollectionGroup string     `bson:"collection_group"`
	LargestBatchID  int        `bson:"largest_batch_id"`
	LargestBatchKey string     `bson:"largest_batch_key"`
	Write           *api.Write `bson:"write"`
}

// RecordID implements Record.
func (r *OverlayRecord) RecordID() string { return r.ID }

// TargetRecord is a target of the target cache.
type TargetRecord struct {
	ID                           string         `bson:"_id"`
	TargetID                     int            `bson:"target_id"`
	CanonicalID                  string         `bson:"canonical_id"`
	Purpose                      int            `bson:"purpose"`
	SequenceNumber               int64          `bson:"sequence_number"`
	SnapshotVersion              *api.Timestamp `bson:"snapshot_version,omitempty"`
	LastLimboFreeSnapshotVersion *api.Timestamp `bson:"last_limbo_free_snapshot_version,omitempty"`
	ResumeToken                  []byte         `bson:"resume_token,omitempty"`
	Target                       *api.Target    `bson:"target"`
}

// RecordID implements Record.
func (r *TargetRecord) RecordID() string { return r.ID }

// TargetDocumentRecord tells that a document matches a target.
type TargetDocumentRecord struct {
	ID        string `bson:"_id"`
	TargetID  int    `bson:"target_id"`
	TargetKey string `bson:"target_key"`
	Path      string `bson:"path"`
}

// RecordID implements Record.
func (r *TargetDocumentRecord) RecordID() string { return r.ID }

// TargetGlobalsRecord holds the counters of the target cache.
type TargetGlobalsRecord struct {
	ID                        string         `bson:"_id"`
	HighestTargetID           int            `bson:"highest_target_id"`
	HighestSequenceNumber     int64          `bson:"highest_sequence_number"`
	LastRemoteSnapshotVersion *api.Timestamp `bson:"last_remote_snapshot_version,omitempty"`
}

// RecordID implements Record.
func (r *TargetGlobalsRecord) RecordID() string { return r.ID }

// NamedQueryRecord is a query saved under a name.
type NamedQueryRecord struct {
	ID        string         `bson:"_id"`
	Query     *api.Target    `bson:"query"`
	LimitType int            `bson:"limit_type"`
	ReadTime  *api.Timestamp `bson:"read_time,omitempty"`
}

// RecordID implements Record.
func (r *NamedQueryRecord) RecordID() string { return r.ID }

// MutationBatchID returns the record id of the given batch of a user.
func MutationBatchID(userID string, batchID int) string {
	return userID + "|" + PaddedID(batchID)
}

// DocumentMutationID returns the record id linking a batch to a document.
func DocumentMutationID(userID, path string, batchID int) string {
	return userID + "|" + path + "|" + PaddedID(batchID)
}

// OverlayID returns the record id of the overlay of a document.
func OverlayID(userID, path string) string {
	return userID + "|" + path
}

// TargetDocumentID returns the record id linking a target to a document.
func TargetDocumentID(targetID int, path string) string {
	return PaddedID(targetID) + "|" + path
}
