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

package documents

import (
	"context"
	"errors"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/yorkie-team/docsync/cmd/docsync/config"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/query"
)

var showData bool

// Summary describes a cached document.
type Summary struct {
	Key      string `json:"key" yaml:"key"`
	Type     string `json:"type" yaml:"type"`
	State    string `json:"state" yaml:"state"`
	Version  string `json:"version" yaml:"version"`
	ReadTime string `json:"read_time" yaml:"read_time"`
	Data     string `json:"data,omitempty" yaml:"data,omitempty"`
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls [collection]",
		Short:   "List the cached documents, optionally of one collection",
		PreRunE: config.Preload,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return errors.New("at most one collection can be given")
			}

			var q *query.Query
			if len(args) == 1 {
				path := key.ParsePath(args[0])
				if path.IsEmpty() || path.Len()%2 != 1 {
					return errors.New("collection path must have an odd number of segments")
				}
				q = query.NewQuery(path)
			}

			ctx := context.Background()
			store, err := config.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Shutdown(ctx)
			}()

			summaries, err := listDocuments(ctx, store, q)
			if err != nil {
				return err
			}

			return printDocuments(cmd, summaries)
		},
	}
}

func listDocuments(ctx context.Context, store persistence.Persistence, q *query.Query) ([]Summary, error) {
	var summaries []Summary
	err := store.RunTransaction(ctx, "docsync documents ls", persistence.ReadOnly, func(txn persistence.Transaction) error {
		return store.RemoteDocumentCache().Each(txn, func(doc *document.MutableDocument) bool {
			if q != nil && !q.MatchesCollection(doc.Key()) {
				return true
			}
			summaries = append(summaries, summarize(doc))
			return true
		})
	})
	return summaries, err
}

func summarize(doc *document.MutableDocument) Summary {
	summary := Summary{
		Key:      doc.Key().String(),
		Type:     doc.Type().String(),
		State:    doc.State().String(),
		Version:  config.FormatVersion(doc.Version()),
		ReadTime: config.FormatVersion(doc.ReadTime()),
	}
	if showData && doc.IsFoundDocument() {
		summary.Data = value.CanonicalID(doc.Data().Fields())
	}
	return summary
}

func printDocuments(cmd *cobra.Command, summaries []Summary) error {
	header := table.Row{"KEY", "TYPE", "STATE", "VERSION", "READ TIME"}
	if showData {
		header = append(header, "DATA")
	}

	rows := make([]table.Row, 0, len(summaries))
	for _, s := range summaries {
		row := table.Row{s.Key, s.Type, s.State, s.Version, s.ReadTime}
		if showData {
			row = append(row, s.Data)
		}
		rows = append(rows, row)
	}

	return config.Print(cmd, header, rows, summaries)
}

func init() {
	cmd := newListCommand()
	cmd.Flags().BoolVar(
		&showData,
		"data",
		false,
		"Whether to print the fields of found documents",
	)
	SubCmd.AddCommand(cmd)
}
