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

// Package config loads the settings of the docsync CLI from flags, the
// environment and an optional YAML file, and opens the store they point to.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	gotime "time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yorkie-team/docsync/internal/validation"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/persistence/mongo"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
)

// EnvPrefix is the prefix of the environment variables read by the CLI,
// e.g. DOCSYNC_MONGO_CONNECTIONURI.
const EnvPrefix = "DOCSYNC"

// File is the path of the config file given with --config.
var File string

// Settings are the resolved settings of a command.
type Settings struct {
	ProjectID string `validate:"required,project_id"`
	Database  string `validate:"required,database_id"`
	Mongo     *mongo.Config
}

// Preload reads the config file and the environment into viper. It is used
// as the PreRunE of commands.
func Preload(_ *cobra.Command, _ []string) error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if File == "" {
		return nil
	}

	viper.SetConfigFile(File)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", File, err)
	}
	return nil
}

// Load returns the settings resolved by viper.
func Load() (*Settings, error) {
	settings := &Settings{
		ProjectID: viper.GetString("project"),
		Database:  viper.GetString("database"),
		Mongo: &mongo.Config{
			ConnectionURI:     viper.GetString("mongo.connectionURI"),
			Database:          viper.GetString("mongo.database"),
			ConnectionTimeout: viper.GetString("mongo.connectionTimeout"),
			PingTimeout:       viper.GetString("mongo.pingTimeout"),
		},
	}

	if err := validation.ValidateStruct(settings); err != nil {
		return nil, err
	}
	if err := settings.Mongo.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// OpenStore connects to the durable store of the configured database. The
// caller must shut it down.
func OpenStore(ctx context.Context) (persistence.Persistence, error) {
	settings, err := Load()
	if err != nil {
		return nil, err
	}

	store, err := mongo.Dial(settings.Mongo, key.NewDatabaseID(settings.ProjectID, settings.Database), nil)
	if err != nil {
		return nil, err
	}
	if err := store.Start(ctx); err != nil {
		_ = store.Shutdown(ctx)
		return nil, fmt.Errorf("start store: %w", err)
	}
	return store, nil
}

// Print writes items in the format selected by --output: a table built
// from header and rows by default, or items themselves as JSON or YAML.
func Print(cmd *cobra.Command, header table.Row, rows []table.Row, items any) error {
	switch output := viper.GetString("output"); output {
	case "":
		tw := table.NewWriter()
		tw.Style().Options.DrawBorder = false
		tw.Style().Options.SeparateColumns = false
		tw.Style().Options.SeparateFooter = false
		tw.Style().Options.SeparateHeader = false
		tw.Style().Options.SeparateRows = false
		tw.AppendHeader(header)
		tw.AppendRows(rows)
		cmd.Printf("%s\n", tw.Render())
	case "json":
		jsonOutput, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		cmd.Println(string(jsonOutput))
	case "yaml":
		yamlOutput, err := yaml.Marshal(items)
		if err != nil {
			return fmt.Errorf("marshal YAML: %w", err)
		}
		cmd.Println(string(yamlOutput))
	default:
		return fmt.Errorf("unknown output format: %s", output)
	}

	return nil
}

// FormatVersion renders a snapshot version for output, or "-" for the
// minimum version.
func FormatVersion(v time.SnapshotVersion) string {
	if v.IsMin() {
		return "-"
	}
	return FormatTimestamp(v.Timestamp())
}

// FormatTimestamp renders a timestamp in RFC 3339 with nanoseconds.
func FormatTimestamp(ts time.Timestamp) string {
	return ts.Time().UTC().Format(gotime.RFC3339Nano)
}
