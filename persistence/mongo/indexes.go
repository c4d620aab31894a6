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

package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/yorkie-team/docsync/persistence"
)

type collectionInfo struct {
	name    string
	indexes []mongo.IndexModel
}

// collectionInfos holds the collections of the stores and the indexes the
// CLI and the loader rely on. Every record is addressed by its _id, so the
// secondary indexes only serve inspection queries.
var collectionInfos = []collectionInfo{
	{
		name: persistence.StoreRemoteDocuments,
		indexes: []mongo.IndexModel{{
			Keys: bson.D{{Key: "collection_path", Value: int32(1)}},
		}, {
			Keys: bson.D{{Key: "collection_group", Value: int32(1)}},
		}},
	},
	{name: persistence.StoreMutationQueues},
	{
		name: persistence.StoreMutationBatches,
		indexes: []mongo.IndexModel{{
			Keys: bson.D{
				{Key: "user_id", Value: int32(1)},
				{Key: "batch_key", Value: int32(1)},
			},
		}},
	},
	{
		name: persistence.StoreDocumentMutations,
		indexes: []mongo.IndexModel{{
			Keys: bson.D{{Key: "path", Value: int32(1)}},
		}},
	},
	{
		name: persistence.StoreOverlays,
		indexes: []mongo.IndexModel{{
			Keys: bson.D{
				{Key: "user_id", Value: int32(1)},
				{Key: "collection_path", Value: int32(1)},
			},
		}},
	},
	{
		name: persistence.StoreTargets,
		indexes: []mongo.IndexModel{{
			Keys: bson.D{{Key: "canonical_id", Value: int32(1)}},
		}},
	},
	{
		name: persistence.StoreTargetDocuments,
		indexes: []mongo.IndexModel{{
			Keys: bson.D{{Key: "target_key", Value: int32(1)}},
		}},
	},
	{name: persistence.StoreTargetGlobals},
	{name: persistence.StoreNamedQueries},
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	for _, info := range collectionInfos {
		if len(info.indexes) == 0 {
			continue
		}

		_, err := db.Collection(info.name).Indexes().CreateMany(
			ctx,
			info.indexes,
		)
		if err != nil {
			return fmt.Errorf("create indexes of %s: %w", info.name, err)
		}
	}

	return nil
}
