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

// Package query provides queries over cached documents and the targets
// they are listened to with.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/value"
)

// Direction is the direction of an ordering.
type Direction int

// The directions.
const (
	Ascending Direction = iota
	Descending
)

// LimitType tells which end of the results a limit keeps.
type LimitType int

// The limit types.
const (
	LimitToFirst LimitType = iota
	LimitToLast
)

// OrderBy orders results by one field.
type OrderBy struct {
	Field     value.FieldPath
	Direction Direction
}

// CanonicalID returns a string that identifies the ordering.
func (o OrderBy) CanonicalID() string {
	if o.Direction == Descending {
		return o.Field.String() + "desc"
	}
	return o.Field.String() + "asc"
}

// Bound is a position in the results of a query, expressed as values of
// the ordered fields.
type Bound struct {
	Position  []value.Value
	Inclusive bool
}

// CanonicalID returns a string that identifies the bound.
func (b *Bound) CanonicalID() string {
	ids := make([]string, len(b.Position))
	for i, v := range b.Position {
		ids[i] = value.CanonicalID(v)
	}
	if b.Inclusive {
		return "b:" + strings.Join(ids, ",")
	}
	return "a:" + strings.Join(ids, ",")
}

// compareToDocument compares the bound with the position of doc.
func (b *Bound) compareToDocument(orderBy []OrderBy, doc *document.MutableDocument) int {
	c := 0
	for i, component := range b.Position {
		if i >= len(orderBy) {
			break
		}
		o := orderBy[i]
		if o.Field.IsKeyField() {
			ref, _ := component.(value.Reference)
			c = ref.Key.Compare(doc.Key())
		} else {
			docValue, _ := doc.Field(o.Field)
			c = value.Compare(component, docValue)
		}
		if o.Direction == Descending {
			c = -c
		}
		if c != 0 {
			break
		}
	}
	return c
}

// sortsBeforeDocument returns whether doc is at or after a start bound.
func (b *Bound) sortsBeforeDocument(orderBy []OrderBy, doc *document.MutableDocument) bool {
	c := b.compareToDocument(orderBy, doc)
	if b.Inclusive {
		return c <= 0
	}
	return c < 0
}

// sortsAfterDocument returns whether doc is at or before an end bound.
func (b *Bound) sortsAfterDocument(orderBy []OrderBy, doc *document.MutableDocument) bool {
	c := b.compareToDocument(orderBy, doc)
	if b.Inclusive {
		return c >= 0
	}
	return c > 0
}

// Query selects and orders documents of a collection, a collection group,
// or a single document. Queries are immutable; builder methods return
// modified copies.
type Query struct {
	Path            key.ResourcePath
	CollectionGroup string
	Filters         []Filter
	ExplicitOrderBy []OrderBy
	Limit           int
	LimitType       LimitType
	StartAt         *Bound
	EndAt           *Bound
}

// NewQuery creates a query over the collection or document at path.
func NewQuery(path key.ResourcePath) *Query {
	return &Query{Path: path}
}

// NewCollectionGroupQuery creates a query over every collection with the
// given id below path.
func NewCollectionGroupQuery(path key.ResourcePath, collectionID string) *Query {
	return &Query{Path: path, CollectionGroup: collectionID}
}

// NewDocumentQuery creates a query over a single document.
func NewDocumentQuery(k key.Key) *Query {
	return &Query{Path: k.Path()}
}

func (q *Query) clone() *Query {
	copied := *q
	copied.Filters = append([]Filter{}, q.Filters...)
	copied.ExplicitOrderBy = append([]OrderBy{}, q.ExplicitOrderBy...)
	return &copied
}

// Where returns the query with an additional filter.
func (q *Query) Where(f Filter) *Query {
	next := q.clone()
	next.Filters = append(next.Filters, f)
	return next
}

// OrderBy returns the query with an additional ordering.
func (q *Query) OrderBy(field string, dir Direction) *Query {
	next := q.clone()
	path := value.ParseFieldPath(field)
	if field == value.KeyFieldName {
		path = value.KeyFieldPath()
	}
	next.ExplicitOrderBy = append(next.ExplicitOrderBy, OrderBy{Field: path, Direction: dir})
	return next
}

// LimitToFirst returns the query keeping only the first n results.
func (q *Query) LimitToFirst(n int) *Query {
	next := q.clone()
	next.Limit = n
	next.LimitType = LimitToFirst
	return next
}

// LimitToLast returns the query keeping only the last n results.
func (q *Query) LimitToLast(n int) *Query {
	next := q.clone()
	next.Limit = n
	next.LimitType = LimitToLast
	return next
}

// StartingAt returns the query starting at the given position.
func (q *Query) StartingAt(b *Bound) *Query {
	next := q.clone()
	next.StartAt = b
	return next
}

// EndingAt returns the query ending at the given position.
func (q *Query) EndingAt(b *Bound) *Query {
	next := q.clone()
	next.EndAt = b
	return next
}

// HasLimit returns whether the query keeps a bounded number of results.
func (q *Query) HasLimit() bool {
	return q.Limit > 0
}

// IsDocumentQuery returns whether the query selects a single document.
func (q *Query) IsDocumentQuery() bool {
	return q.Path.Len()%2 == 0 && q.Path.Len() > 0 && q.CollectionGroup == "" && len(q.Filters) == 0
}

// IsCollectionGroupQuery returns whether the query spans a collection group.
func (q *Query) IsCollectionGroupQuery() bool {
	return q.CollectionGroup != ""
}

// inequalityFields returns the fields of inequality filters, sorted.
func (q *Query) inequalityFields() []value.FieldPath {
	seen := map[string]bool{}
	var fields []value.FieldPath
	for _, f := range q.Filters {
		for _, ff := range FieldFilters(f) {
			if ff.Operator.IsInequality() && !seen[ff.Field.String()] {
				seen[ff.Field.String()] = true
				fields = append(fields, ff.Field)
			}
		}
	}
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].Compare(fields[j]) < 0
	})
	return fields
}

// NormalizedOrderBy returns the explicit orderings followed by the implicit
// ones: inequality fields, then the document key.
func (q *Query) NormalizedOrderBy() []OrderBy {
	result := append([]OrderBy{}, q.ExplicitOrderBy...)
	normalized := map[string]bool{}
	for _, o := range q.ExplicitOrderBy {
		normalized[o.Field.String()] = true
	}

	lastDirection := Ascending
	if len(q.ExplicitOrderBy) > 0 {
		lastDirection = q.ExplicitOrderBy[len(q.ExplicitOrderBy)-1].Direction
	}

	for _, field := range q.inequalityFields() {
		if !normalized[field.String()] && !field.IsKeyField() {
			result = append(result, OrderBy{Field: field, Direction: lastDirection})
			normalized[field.String()] = true
		}
	}

	if !normalized[value.KeyFieldPath().String()] {
		result = append(result, OrderBy{Field: value.KeyFieldPath(), Direction: lastDirection})
	}
	return result
}

// Matches returns whether doc is a result of the query, ignoring limits.
func (q *Query) Matches(doc *document.MutableDocument) bool {
	if !doc.IsFoundDocument() || !q.matchesPath(doc.Key()) {
		return false
	}

	orderBy := q.NormalizedOrderBy()
	for _, o := range orderBy {
		if o.Field.IsKeyField() {
			continue
		}
		if _, ok := doc.Field(o.Field); !ok {
			return false
		}
	}

	for _, f := range q.Filters {
		if !f.Matches(doc) {
			return false
		}
	}

	if q.StartAt != nil && !q.StartAt.sortsBeforeDocument(orderBy, doc) {
		return false
	}
	if q.EndAt != nil && !q.EndAt.sortsAfterDocument(orderBy, doc) {
		return false
	}
	return true
}

func (q *Query) matchesPath(k key.Key) bool {
	path := k.Path()
	if q.CollectionGroup != "" {
		return k.HasCollectionID(q.CollectionGroup) && q.Path.IsPrefixOf(path)
	}
	if q.Path.Len()%2 == 0 && q.Path.Len() > 0 {
		return q.Path.Equal(path)
	}
	return q.Path.IsImmediateParentOf(path)
}

// MatchesCollection returns whether a document with key k could be a result
// of the query, looking at its path only.
func (q *Query) MatchesCollection(k key.Key) bool {
	return q.matchesPath(k)
}

// Comparator returns the ordering of the query results.
func (q *Query) Comparator() document.Comparator {
	orderBy := q.NormalizedOrderBy()
	return func(a, b *document.MutableDocument) int {
		for _, o := range orderBy {
			var c int
			if o.Field.IsKeyField() {
				c = a.Key().Compare(b.Key())
			} else {
				av, _ := a.Field(o.Field)
				bv, _ := b.Field(o.Field)
				c = value.Compare(av, bv)
			}
			if o.Direction == Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}
}

// ToTarget returns the target the query is listened to with. Limit-to-last
// queries are sent with every ordering and both bounds flipped, since the
// backend only limits to the first results.
func (q *Query) ToTarget() *Target {
	orderBy := q.NormalizedOrderBy()
	if q.LimitType == LimitToFirst {
		return &Target{
			Path:            q.Path,
			CollectionGroup: q.CollectionGroup,
			Filters:         q.Filters,
			OrderBy:         orderBy,
			Limit:           q.Limit,
			StartAt:         q.StartAt,
			EndAt:           q.EndAt,
		}
	}

	flipped := make([]OrderBy, len(orderBy))
	for i, o := range orderBy {
		dir := Ascending
		if o.Direction == Ascending {
			dir = Descending
		}
		flipped[i] = OrderBy{Field: o.Field, Direction: dir}
	}

	var startAt, endAt *Bound
	if q.EndAt != nil {
		startAt = &Bound{Position: q.EndAt.Position, Inclusive: q.EndAt.Inclusive}
	}
	if q.StartAt != nil {
		endAt = &Bound{Position: q.StartAt.Position, Inclusive: q.StartAt.Inclusive}
	}
	return &Target{
		Path:            q.Path,
		CollectionGroup: q.CollectionGroup,
		Filters:         q.Filters,
		OrderBy:         flipped,
		Limit:           q.Limit,
		StartAt:         startAt,
		EndAt:           endAt,
	}
}

// CanonicalID returns a string that identifies the query.
func (q *Query) CanonicalID() string {
	return fmt.Sprintf("%s|lt:%d", q.ToTarget().CanonicalID(), q.LimitType)
}

// String returns a human readable form of the query.
func (q *Query) String() string {
	return "Query(" + q.CanonicalID() + ")"
}
