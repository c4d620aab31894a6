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

// Package overlays provides the commands inspecting document overlays, the
// combined effect of the pending writes on each document.
package overlays

import "github.com/spf13/cobra"

var userID string

// SubCmd is the root of the overlays commands.
var SubCmd = &cobra.Command{
	Use:     "overlays",
	Short:   "Inspect document overlays",
	Aliases: []string{"overlay"},
}

func init() {
	SubCmd.PersistentFlags().StringVar(&userID, "user", "", "UID of the user whose overlays are listed")
}
