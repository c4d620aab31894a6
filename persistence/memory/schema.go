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

package memory

import (
	"github.com/hashicorp/go-memdb"

	"github.com/yorkie-team/docsync/persistence"
)

var (
	tblRemoteDocuments   = persistence.StoreRemoteDocuments
	tblMutationQueues    = persistence.StoreMutationQueues
	tblMutationBatches   = persistence.StoreMutationBatches
	tblDocumentMutations = persistence.StoreDocumentMutations
	tblOverlays          = persistence.StoreOverlays
	tblTargets           = persistence.StoreTargets
	tblTargetDocuments   = persistence.StoreTargetDocuments
	tblTargetGlobals     = persistence.StoreTargetGlobals
	tblNamedQueries      = persistence.StoreNamedQueries
)

func idIndex() *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:    "id",
		Unique:  true,
		Indexer: &memdb.StringFieldIndex{Field: "ID"},
	}
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblRemoteDocuments: {
			Name: tblRemoteDocuments,
			Indexes: map[string]*memdb.IndexSchema{
				"id": idIndex(),
				"collection_path": {
					Name:    "collection_path",
					Indexer: &memdb.StringFieldIndex{Field: "CollectionPath"},
				},
				"collection_group": {
					Name:    "collection_group",
					Indexer: &memdb.StringFieldIndex{Field: "CollectionGroup"},
				},
			},
		},
		tblMutationQueues: {
			Name: tblMutationQueues,
			Indexes: map[string]*memdb.IndexSchema{
				"id": idIndex(),
			},
		},
		tblMutationBatches: {
			Name: tblMutationBatches,
			Indexes: map[string]*memdb.IndexSchema{
				"id": idIndex(),
				"user_id_batch_key": {
					Name:   "user_id_batch_key",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "BatchKey"},
						},
					},
				},
			},
		},
		tblDocumentMutations: {
			Name: tblDocumentMutations,
			Indexes: map[string]*memdb.IndexSchema{
				"id": idIndex(),
				"user_id_path": {
					Name: "user_id_path",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "Path"},
						},
					},
				},
				"path": {
					Name:    "path",
					Indexer: &memdb.StringFieldIndex{Field: "Path"},
				},
			},
		},
		tblOverlays: {
			Name: tblOverlays,
			Indexes: map[string]*memdb.IndexSchema{
				"id": idIndex(),
				"user_id_collection_path": {
					Name: "user_id_collection_path",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "CollectionPath"},
						},
					},
				},
				"user_id_collection_group": {
					Name: "user_id_collection_group",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "CollectionGroup"},
						},
					},
				},
				"user_id": {
					Name:    "user_id",
					Indexer: &memdb.StringFieldIndex{Field: "UserID"},
				},
			},
		},
		tblTargets: {
			Name: tblTargets,
			Indexes: map[string]*memdb.IndexSchema{
				"id": idIndex(),
				"canonical_id": {
					Name:    "canonical_id",
					Indexer: &memdb.StringFieldIndex{Field: "CanonicalID"},
				},
			},
		},
		tblTargetDocuments: {
			Name: tblTargetDocuments,
			Indexes: map[string]*memdb.IndexSchema{
				"id": idIndex(),
				"target_key": {
					Name:    "target_key",
					Indexer: &memdb.StringFieldIndex{Field: "TargetKey"},
				},
				"path": {
					Name:    "path",
					Indexer: &memdb.StringFieldIndex{Field: "Path"},
				},
			},
		},
		tblTargetGlobals: {
			Name: tblTargetGlobals,
			Indexes: map[string]*memdb.IndexSchema{
				"id": idIndex(),
			},
		},
		tblNamedQueries: {
			Name: tblNamedQueries,
			Indexes: map[string]*memdb.IndexSchema{
				"id": idIndex(),
			},
		},
	},
}
