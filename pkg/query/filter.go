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
	"fmt"
	"strings"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/value"
)

// Operator is the comparison of a field filter.
type Operator int

// The field filter operators.
const (
	LessThan Operator = iota
	LessThanOrEqual
	Equal
	NotEqual
	GreaterThanOrEqual
	GreaterThan
	ArrayContains
	ArrayContainsAny
	In
	NotIn
)

// String returns the symbol of the operator.
func (o Operator) String() string {
	switch o {
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	case GreaterThanOrEqual:
		return ">="
	case GreaterThan:
		return ">"
	case ArrayContains:
		return "array-contains"
	case ArrayContainsAny:
		return "array-contains-any"
	case In:
		return "in"
	case NotIn:
		return "not-in"
	}
	return fmt.Sprintf("op_%d", int(o))
}

// IsInequality returns whether the operator constrains the order of results.
func (o Operator) IsInequality() bool {
	switch o {
	case LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual, NotEqual, NotIn:
		return true
	}
	return false
}

// CompositeOperator joins the filters of a composite filter.
type CompositeOperator int

// The composite operators.
const (
	And CompositeOperator = iota
	Or
)

// Filter restricts the documents matching a query. The set of
// implementations is closed: FieldFilter and CompositeFilter.
type Filter interface {
	Matches(doc *document.MutableDocument) bool
	CanonicalID() string
	isFilter()
}

// FieldFilter compares one field with a value.
type FieldFilter struct {
	Field    value.FieldPath
	Operator Operator
	Value    value.Value
}

// CompositeFilter combines filters with AND or OR.
type CompositeFilter struct {
	Operator CompositeOperator
	Filters  []Filter
}

// Where creates a field filter on a dotted field path.
func Where(field string, op Operator, v value.Value) *FieldFilter {
	return &FieldFilter{Field: value.ParseFieldPath(field), Operator: op, Value: v}
}

// AllOf creates a conjunction.
func AllOf(filters ...Filter) *CompositeFilter {
	return &CompositeFilter{Operator: And, Filters: filters}
}

// AnyOf creates a disjunction.
func AnyOf(filters ...Filter) *CompositeFilter {
	return &CompositeFilter{Operator: Or, Filters: filters}
}

func (*FieldFilter) isFilter()     {}
func (*CompositeFilter) isFilter() {}

// Matches returns whether doc satisfies the filter.
func (f *FieldFilter) Matches(doc *document.MutableDocument) bool {
	if f.Field.IsKeyField() {
		return f.matchesKey(doc)
	}

	other, ok := doc.Field(f.Field)
	switch f.Operator {
	case NotEqual:
		return ok && !value.IsNull(other) && value.Compare(other, f.Value) != 0
	case ArrayContains:
		arr, isArray := other.(value.Array)
		return isArray && contains(arr, f.Value)
	case ArrayContainsAny:
		arr, isArray := other.(value.Array)
		if !isArray {
			return false
		}
		candidates, _ := f.Value.(value.Array)
		for _, c := range candidates {
			if contains(arr, c) {
				return true
			}
		}
		return false
	case In:
		candidates, _ := f.Value.(value.Array)
		return ok && contains(candidates, other)
	case NotIn:
		candidates, _ := f.Value.(value.Array)
		if contains(candidates, value.Null{}) {
			return false
		}
		return ok && !value.IsNull(other) && !contains(candidates, other)
	}

	if !ok || other.Type() != f.Value.Type() {
		return false
	}
	return matchesComparison(f.Operator, value.Compare(other, f.Value))
}

func (f *FieldFilter) matchesKey(doc *document.MutableDocument) bool {
	switch f.Operator {
	case In, NotIn:
		candidates, _ := f.Value.(value.Array)
		found := false
		for _, c := range candidates {
			if ref, ok := c.(value.Reference); ok && ref.Key.Equal(doc.Key()) {
				found = true
				break
			}
		}
		return found == (f.Operator == In)
	}

	ref, ok := f.Value.(value.Reference)
	if !ok {
		return false
	}
	return matchesComparison(f.Operator, doc.Key().Compare(ref.Key))
}

// CanonicalID returns a string that identifies the filter.
func (f *FieldFilter) CanonicalID() string {
	return f.Field.String() + f.Operator.String() + value.CanonicalID(f.Value)
}

// Matches returns whether doc satisfies the filter.
func (f *CompositeFilter) Matches(doc *document.MutableDocument) bool {
	if f.Operator == And {
		for _, sub := range f.Filters {
			if !sub.Matches(doc) {
				return false
			}
		}
		return true
	}

	for _, sub := range f.Filters {
		if sub.Matches(doc) {
			return true
		}
	}
	return len(f.Filters) == 0
}

// CanonicalID returns a string that identifies the filter.
func (f *CompositeFilter) CanonicalID() string {
	ids := make([]string, len(f.Filters))
	for i, sub := range f.Filters {
		ids[i] = sub.CanonicalID()
	}
	op := "and"
	if f.Operator == Or {
		op = "or"
	}
	return op + "(" + strings.Join(ids, ",") + ")"
}

// FieldFilters returns the field filters nested in f.
func FieldFilters(f Filter) []*FieldFilter {
	switch t := f.(type) {
	case *FieldFilter:
		return []*FieldFilter{t}
	case *CompositeFilter:
		var result []*FieldFilter
		for _, sub := range t.Filters {
			result = append(result, FieldFilters(sub)...)
		}
		return result
	}
	return nil
}

func matchesComparison(op Operator, c int) bool {
	switch op {
	case LessThan:
		return c < 0
	case LessThanOrEqual:
		return c <= 0
	case Equal:
		return c == 0
	case NotEqual:
		return c != 0
	case GreaterThan:
		return c > 0
	case GreaterThanOrEqual:
		return c >= 0
	}
	return false
}

func contains(arr value.Array, v value.Value) bool {
	for _, elem := range arr {
		if value.Equal(elem, v) {
			return true
		}
	}
	return false
}
