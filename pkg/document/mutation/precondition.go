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

package mutation

import (
	"fmt"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/time"
)

// PreconditionType is the kind of check a precondition performs.
type PreconditionType int

// The kinds of preconditions.
const (
	PreconditionNone PreconditionType = iota
	PreconditionExists
	PreconditionUpdateTime
)

// Precondition must hold on a document for a mutation to apply.
type Precondition struct {
	Type       PreconditionType
	Exists     bool
	UpdateTime time.SnapshotVersion
}

// NoPrecondition always holds.
var NoPrecondition = Precondition{}

// ExistsPrecondition holds if the document exists (or does not).
func ExistsPrecondition(exists bool) Precondition {
	return Precondition{Type: PreconditionExists, Exists: exists}
}

// UpdateTimePrecondition holds if the document exists at the given version.
func UpdateTimePrecondition(version time.SnapshotVersion) Precondition {
	return Precondition{Type: PreconditionUpdateTime, UpdateTime: version}
}

// IsNone returns whether the precondition always holds.
func (p Precondition) IsNone() bool {
	return p.Type == PreconditionNone
}

// IsValidFor returns whether the precondition holds on doc.
func (p Precondition) IsValidFor(doc *document.MutableDocument) bool {
	switch p.Type {
	case PreconditionExists:
		return p.Exists == doc.IsFoundDocument()
	case PreconditionUpdateTime:
		return doc.IsFoundDocument() && doc.Version() == p.UpdateTime
	}
	return true
}

// String returns a human readable form of the precondition.
func (p Precondition) String() string {
	switch p.Type {
	case PreconditionExists:
		return fmt.Sprintf("Precondition(exists=%t)", p.Exists)
	case PreconditionUpdateTime:
		return fmt.Sprintf("Precondition(updateTime=%s)", p.UpdateTime)
	}
	return "Precondition(none)"
}
