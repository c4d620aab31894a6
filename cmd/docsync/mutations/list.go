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

package mutations

import (
	"context"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/yorkie-team/docsync/cmd/docsync/config"
	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
)

// Write describes one mutation of a batch.
type Write struct {
	Kind string `json:"kind" yaml:"kind"`
	Key  string `json:"key" yaml:"key"`
}

// Summary describes a pending batch.
type Summary struct {
	BatchID        int     `json:"batch_id" yaml:"batch_id"`
	LocalWriteTime string  `json:"local_write_time" yaml:"local_write_time"`
	Writes         []Write `json:"writes" yaml:"writes"`
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Short:   "List the pending write batches of a user",
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

			summaries, err := listBatches(ctx, store, credentials.User{UID: userID})
			if err != nil {
				return err
			}

			rows := make([]table.Row, 0, len(summaries))
			for _, s := range summaries {
				writes := make([]string, 0, len(s.Writes))
				for _, w := range s.Writes {
					writes = append(writes, w.Kind+" "+w.Key)
				}
				rows = append(rows, table.Row{s.BatchID, s.LocalWriteTime, strings.Join(writes, ", ")})
			}
			return config.Print(cmd, table.Row{"BATCH", "LOCAL WRITE TIME", "WRITES"}, rows, summaries)
		},
	}
}

func listBatches(ctx context.Context, store persistence.Persistence, user credentials.User) ([]Summary, error) {
	var summaries []Summary
	err := store.RunTransaction(ctx, "docsync mutations ls", persistence.ReadOnly, func(txn persistence.Transaction) error {
		batches, err := store.MutationQueue(user).AllMutationBatches(txn)
		if err != nil {
			return err
		}

		for _, batch := range batches {
			summary := Summary{
				BatchID:        batch.ID,
				LocalWriteTime: config.FormatTimestamp(batch.LocalWriteTime),
			}
			for _, m := range batch.Mutations {
				summary.Writes = append(summary.Writes, Write{
					Kind: mutation.KindOf(m),
					Key:  m.Key().String(),
				})
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	return summaries, err
}

func init() {
	SubCmd.AddCommand(newListCommand())
}
