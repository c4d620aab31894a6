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

// Package main is the entry point of the docsync CLI, which inspects the
// durable store of a client.
package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yorkie-team/docsync/cmd/docsync/config"
	"github.com/yorkie-team/docsync/cmd/docsync/documents"
	"github.com/yorkie-team/docsync/cmd/docsync/mutations"
	"github.com/yorkie-team/docsync/cmd/docsync/overlays"
	"github.com/yorkie-team/docsync/cmd/docsync/targets"
	"github.com/yorkie-team/docsync/pkg/document/key"
)

var rootCmd = &cobra.Command{
	Use:          "docsync",
	Short:        "Inspect the local cache of a document sync client",
	SilenceUsage: true,
}

// Run executes CLI.
func Run() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}

	return 0
}

func init() {
	rootCmd.AddCommand(documents.SubCmd)
	rootCmd.AddCommand(mutations.SubCmd)
	rootCmd.AddCommand(targets.SubCmd)
	rootCmd.AddCommand(overlays.SubCmd)
	rootCmd.AddCommand(newVersionCmd())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&config.File, "config", "", "Config file in YAML (default: none)")
	flags.String("project", "", "Project ID the cache belongs to")
	flags.String("database", key.DefaultDatabase, "Database ID the cache belongs to")
	flags.String("mongo-connection-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	flags.String("mongo-database", "docsync", "MongoDB database holding the cache")
	flags.String("mongo-connection-timeout", "5s", "Timeout for connecting to MongoDB")
	flags.String("mongo-ping-timeout", "5s", "Timeout for pinging MongoDB")
	flags.StringP("output", "o", "", "One of 'yaml' or 'json'")

	for name, flag := range map[string]string{
		"project":                 "project",
		"database":                "database",
		"mongo.connectionURI":     "mongo-connection-uri",
		"mongo.database":          "mongo-database",
		"mongo.connectionTimeout": "mongo-connection-timeout",
		"mongo.pingTimeout":       "mongo-ping-timeout",
		"output":                  "output",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
