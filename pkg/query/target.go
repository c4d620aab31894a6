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

package query

import (
	"strconv"
	"strings"

	"github.com/yorkie-team/docsync/pkg/document/key"
)

// Target is what the backend listens to: a query without client-side
// concerns such as the limit type.
type Target struct {
	Path            key.ResourcePath
	CollectionGroup string
	Filters         []Filter
	OrderBy         []OrderBy
	Limit           int
	StartAt         *Bound
	EndAt           *Bound
}

// NewDocumentTarget creates a target over one document.
func NewDocumentTarget(k key.Key) *Target {
	return NewDocumentQuery(k).ToTarget()
}

// IsDocumentTarget returns whether the target selects a single document.
func (t *Target) IsDocumentTarget() bool {
	return t.Path.Len()%2 == 0 && t.Path.Len() > 0 && t.CollectionGroup == "" && len(t.Filters) == 0
}

// DocumentKey returns the key of a document target.
func (t *Target) DocumentKey() (key.Key, bool) {
	if !t.IsDocumentTarget() {
		return key.Key{}, false
	}
	k, err := key.New(t.Path)
	return k, err == nil
}

// CanonicalID returns a string that identifies the target. Targets with the
// same canonical id are equal.
func (t *Target) CanonicalID() string {
	var sb strings.Builder
	sb.WriteString(t.Path.String())
	if t.CollectionGroup != "" {
		sb.WriteString("|cg:")
		sb.WriteString(t.CollectionGroup)
	}
	sb.WriteString("|f:")
	for _, f := range t.Filters {
		sb.WriteString(f.CanonicalID())
	}
	sb.WriteString("|ob:")
	for _, o := range t.OrderBy {
		sb.WriteString(o.CanonicalID())
	}
	if t.Limit > 0 {
		sb.WriteString("|l:")
		sb.WriteString(strconv.Itoa(t.Limit))
	}
	if t.StartAt != nil {
		sb.WriteString("|lb:")
		sb.WriteString(t.StartAt.CanonicalID())
	}
	if t.EndAt != nil {
		sb.WriteString("|ub:")
		sb.WriteString(t.EndAt.CanonicalID())
	}
	return sb.String()
}

// Equal returns whether both targets are the same.
func (t *Target) Equal(other *Target) bool {
	return t.CanonicalID() == other.CanonicalID()
}

// String returns a human readable form of the target.
func (t *Target) String() string {
	return "Target(" + t.CanonicalID() + ")"
}
