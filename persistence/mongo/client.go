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

// Package mongo implements the persistence interfaces with MongoDB. Records
// are served from an in-memory database that is filled from MongoDB when
// the persistence starts, and every committed transaction is written
// through to MongoDB before it becomes visible.
package mongo

import (
	"context"
	"fmt"
	"sort"
	gotime "time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/persistence/memory"
	"github.com/yorkie-team/docsync/pkg/document/key"
)

// Persistence is a durable persistence backed by MongoDB.
type Persistence struct {
	*memory.Persistence

	config  *Config
	client  *mongo.Client
	db      *mongo.Database
	logger  logging.Logger
	monitor *CommandMonitor
}

// Dial connects to the MongoDB of conf and creates a Persistence storing
// the records of databaseID. A nil delegate selects eager garbage
// collection.
func Dial(
	conf *Config,
	databaseID key.DatabaseID,
	delegate persistence.ReferenceDelegate,
) (*Persistence, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.ParseConnectionTimeout())
	defer cancel()

	clientOptions := options.Client().ApplyURI(conf.ConnectionURI)

	logger := logging.New("mongo")
	var monitor *CommandMonitor
	if conf.MonitoringEnabled {
		threshold, err := gotime.ParseDuration(conf.MonitoringSlowQueryThreshold)
		if err != nil {
			return nil, fmt.Errorf("parse slow query threshold: %w", err)
		}

		monitor = NewCommandMonitor(logger, threshold)
		clientOptions.SetMonitor(monitor.Event())
	}

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(ctx, conf.ParsePingTimeout())
	defer cancelPing()

	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(conf.Database)
	if err := ensureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	p := &Persistence{
		config: conf,
		client: client,
		db:      db,
		logger:  logger,
		monitor: monitor,
	}

	opts := []memory.Option{
		memory.WithLoader(p.load),
		memory.WithCommitHook(p.writeThrough),
		memory.WithLogger(p.logger),
	}
	if delegate != nil {
		opts = append(opts, memory.WithReferenceDelegate(delegate))
	}

	mem, err := memory.New(databaseID, opts...)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	p.Persistence = mem

	p.logger.Infof("MongoDB connected, URI: %s, DB: %s", conf.ConnectionURI, conf.Database)

	return p, nil
}

// Shutdown stops serving transactions and disconnects from MongoDB.
func (p *Persistence) Shutdown(ctx context.Context) error {
	if err := p.Persistence.Shutdown(ctx); err != nil {
		return err
	}

	if err := p.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("close mongo client: %w", err)
	}

	return nil
}

// MonitorStats returns the counts of slow and failed commands, which stay
// zero unless monitoring is enabled.
func (p *Persistence) MonitorStats() MonitorStats {
	if p.monitor == nil {
		return MonitorStats{}
	}
	return p.monitor.Stats()
}

// Database returns the MongoDB database the records are stored in.
func (p *Persistence) Database() *mongo.Database {
	return p.db
}

// load reads every record of store.
func (p *Persistence) load(
	ctx context.Context,
	store string,
	newRecord func() persistence.Record,
) ([]persistence.Record, error) {
	cursor, err := p.db.Collection(store).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", store, err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var records []persistence.Record
	for cursor.Next(ctx) {
		record := newRecord()
		if err := cursor.Decode(record); err != nil {
			return nil, fmt.Errorf("decode %s: %w", store, err)
		}
		records = append(records, record)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", store, err)
	}

	p.logger.Debugf("loaded %d records of %s", len(records), store)
	return records, nil
}

// writeThrough stores the changes of a transaction. Changes are grouped by
// store and written in one ordered bulk write per store; upserts and
// deletes are keyed by record id, so replaying a partially applied
// transaction converges to the same state.
func (p *Persistence) writeThrough(ctx context.Context, changes []memory.Change) error {
	models := make(map[string][]mongo.WriteModel)
	for _, change := range changes {
		if change.After != nil {
			models[change.Store] = append(models[change.Store], mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": change.After.RecordID()}).
				SetReplacement(change.After).
				SetUpsert(true),
			)
			continue
		}

		models[change.Store] = append(models[change.Store], mongo.NewDeleteOneModel().
			SetFilter(bson.M{"_id": change.Before.RecordID()}),
		)
	}

	stores := make([]string, 0, len(models))
	for store := range models {
		stores = append(stores, store)
	}
	sort.Strings(stores)

	for _, store := range stores {
		if _, err := p.db.Collection(store).BulkWrite(
			ctx,
			models[store],
			options.BulkWrite().SetOrdered(true),
		); err != nil {
			p.logger.Warnf("write %d changes to %s: %v", len(models[store]), store, err)
			return fmt.Errorf("write %s: %v: %w", store, err, persistence.ErrStorageUnavailable)
		}
	}

	return nil
}
