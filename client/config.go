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
package client

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yorkie-team/docsync/internal/validation"
	"github.com/yorkie-team/docsync/persistence/mongo"
	"github.com/yorkie-team/docsync/pkg/document/key"
)

// The garbage collection policies of the local cache.
const (
	// GCEager removes documents as soon as no query listens to them.
	GCEager = "eager"

	// GCLRU keeps the documents of recently released queries.
	GCLRU = "lru"
)

// Default values of Config.
const (
	DefaultStreamInitTimeout             = "15s"
	DefaultMaxConcurrentLimboResolutions = 100
	DefaultGarbageCollector              = GCEager
	DefaultRetainedTargets               = 100
)

// Config is the configuration for creating a Client.
type Config struct {
	// Address is the address of the backend, such as "localhost:8080".
	Address string `yaml:"Address" validate:"required"`

	// ProjectID is the project the documents belong to.
	ProjectID string `yaml:"ProjectID" validate:"required,project_id"`

	// Database is the database of the project. Default is "(default)".
	Database string `yaml:"Database" validate:"required,database_id"`

	// CertFile is the path to the certificate of the backend. Connections
	// are not encrypted without it.
	CertFile string `yaml:"CertFile"`

	// ServerNameOverride overrides the server name checked against the
	// certificate.
	ServerNameOverride string `yaml:"ServerNameOverride"`

	// StreamInitTimeout is how long opening a stream may take.
	StreamInitTimeout string `yaml:"StreamInitTimeout" validate:"required,duration"`

	// MaxConcurrentLimboResolutions is the number of documents whose
	// existence is checked with the backend at once.
	MaxConcurrentLimboResolutions int `yaml:"MaxConcurrentLimboResolutions" validate:"min=1"`

	// GarbageCollector is the garbage collection policy of the cache,
	// "eager" or "lru".
	GarbageCollector string `yaml:"GarbageCollector" validate:"oneof=eager lru"`

	// RetainedTargets is the number of released queries whose documents
	// the "lru" policy keeps.
	RetainedTargets int `yaml:"RetainedTargets" validate:"min=0"`

	// Mongo is the configuration of the durable cache. The cache only
	// lives in memory when it is nil.
	Mongo *mongo.Config `yaml:"Mongo"`
}

// NewConfig creates a Config with default values.
func NewConfig(address, projectID string) *Config {
	return &Config{
		Address:                       address,
		ProjectID:                     projectID,
		Database:                      key.DefaultDatabase,
		StreamInitTimeout:             DefaultStreamInitTimeout,
		MaxConcurrentLimboResolutions: DefaultMaxConcurrentLimboResolutions,
		GarbageCollector:              DefaultGarbageCollector,
		RetainedTargets:               DefaultRetainedTargets,
	}
}

// NewConfigFromFile reads a yaml Config from path. Fields missing from the
// file keep their default values.
func NewConfigFromFile(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	conf := NewConfig("", "")
	if err := yaml.Unmarshal(file, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return conf, nil
}

// Validate validates this config.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}

	if c.Mongo != nil {
		if err := c.Mongo.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// DatabaseID returns the id of the configured database.
func (c *Config) DatabaseID() key.DatabaseID {
	return key.NewDatabaseID(c.ProjectID, c.Database)
}

// ParseStreamInitTimeout returns the stream initialization timeout.
func (c *Config) ParseStreamInitTimeout() time.Duration {
	result, err := time.ParseDuration(c.StreamInitTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse stream init timeout: %v\n", err)
		os.Exit(1)
	}

	return result
}
