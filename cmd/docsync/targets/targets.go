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

// Package targets provides the commands inspecting persisted targets.
package targets

import "github.com/spf13/cobra"

// SubCmd is the root of the targets commands.
var SubCmd = &cobra.Command{
	Use:     "targets",
	Short:   "Inspect persisted targets",
	Aliases: []string{"target"},
}
