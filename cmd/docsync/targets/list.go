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

package targets

import (
	"context"
	"encoding/base64"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/yorkie-team/docsync/cmd/docsync/config"
	"github.com/yorkie-team/docsync/persistence"
)

// Summary describes a persisted target.
type Summary struct {
	TargetID        int    `json:"target_id" yaml:"target_id"`
	Target          string `json:"target" yaml:"target"`
	Purpose         string `json:"purpose" yaml:"purpose"`
	SequenceNumber  int64  `json:"sequence_number" yaml:"sequence_number"`
	SnapshotVersion string `json:"snapshot_version" yaml:"snapshot_version"`
	ResumeToken     string `json:"resume_token,omitempty" yaml:"resume_token,omitempty"`
	MatchingKeys    int    `json:"matching_keys" yaml:"matching_keys"`
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Short:   "List the persisted targets and the number of keys matching them",
		PreRunE: config.Preload,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := config.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Shutdown(ctx)
			}()

			summaries, err := listTargets(ctx, store)
			if err != nil {
				return err
			}

			rows := make([]table.Row, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, table.Row{
					s.TargetID,
					s.Purpose,
					s.SequenceNumber,
					s.SnapshotVersion,
					s.MatchingKeys,
					s.Target,
				})
			}
			return config.Print(cmd, table.Row{
				"ID",
				"PURPOSE",
				"SEQUENCE",
				"SNAPSHOT VERSION",
				"KEYS",
				"TARGET",
			}, rows, summaries)
		},
	}
}

func listTargets(ctx context.Context, store persistence.Persistence) ([]Summary, error) {
	var summaries []Summary
	err := store.RunTransaction(ctx, "docsync targets ls", persistence.ReadOnly, func(txn persistence.Transaction) error {
		var targets []*persistence.TargetData
		if err := store.TargetCache().EachTarget(txn, func(data *persistence.TargetData) bool {
			targets = append(targets, data)
			return true
		}); err != nil {
			return err
		}

		for _, data := range targets {
			keys, err := store.TargetCache().GetMatchingKeysForTargetID(txn, data.TargetID)
			if err != nil {
				return err
			}
			summaries = append(summaries, Summary{
				TargetID:        data.TargetID,
				Target:          data.Target.String(),
				Purpose:         data.Purpose.String(),
				SequenceNumber:  data.SequenceNumber,
				SnapshotVersion: config.FormatVersion(data.SnapshotVersion),
				ResumeToken:     base64.StdEncoding.EncodeToString(data.ResumeToken),
				MatchingKeys:    keys.Len(),
			})
		}
		return nil
	})
	return summaries, err
}

func init() {
	SubCmd.AddCommand(newListCommand())
}
