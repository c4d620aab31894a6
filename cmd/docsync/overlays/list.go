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

package overlays

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/yorkie-team/docsync/cmd/docsync/config"
	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
)

// Summary describes an overlay.
type Summary struct {
	Key            string `json:"key" yaml:"key"`
	Kind           string `json:"kind" yaml:"kind"`
	LargestBatchID int    `json:"largest_batch_id" yaml:"largest_batch_id"`
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Short:   "List the overlays of a user",
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

			user := credentials.User{UID: userID}
			var summaries []Summary
			if err := store.RunTransaction(ctx, "docsync overlays ls", persistence.ReadOnly, func(txn persistence.Transaction) error {
				return store.DocumentOverlayCache(user).Each(txn, func(overlay *mutation.Overlay) bool {
					summaries = append(summaries, Summary{
						Key:            overlay.Key().String(),
						Kind:           mutation.KindOf(overlay.Mutation),
						LargestBatchID: overlay.LargestBatchID,
					})
					return true
				})
			}); err != nil {
				return err
			}

			rows := make([]table.Row, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, table.Row{s.Key, s.Kind, s.LargestBatchID})
			}
			return config.Print(cmd, table.Row{"KEY", "KIND", "LARGEST BATCH"}, rows, summaries)
		},
	}
}

func init() {
	SubCmd.AddCommand(newListCommand())
}
