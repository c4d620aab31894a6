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

package converter

import (
	"fmt"
	"math"
	"strings"

	"github.com/yorkie-team/docsync/api"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/query"
)

// FromTimestamp converts a wire timestamp.
func FromTimestamp(ts *api.Timestamp) time.Timestamp {
	if ts == nil {
		return time.Timestamp{}
	}
	return time.Timestamp{Seconds: ts.Seconds, Nanos: ts.Nanos}
}

// FromVersion converts a wire timestamp to a version. A missing timestamp
// is the minimum version.
func FromVersion(ts *api.Timestamp) time.SnapshotVersion {
	if ts == nil {
		return time.MinVersion
	}
	return time.NewVersion(FromTimestamp(ts))
}

// FromValue converts a wire value.
func (s *Serializer) FromValue(v *api.Value) (value.Value, error) {
	switch {
	case v == nil:
		return nil, fmt.Errorf("nil value: %w", ErrUnsupportedValueType)
	case v.NullValue != nil:
		return value.Null{}, nil
	case v.BooleanValue != nil:
		return value.Boolean(*v.BooleanValue), nil
	case v.IntegerValue != nil:
		return value.Integer(*v.IntegerValue), nil
	case v.DoubleValue != nil:
		return value.Double(*v.DoubleValue), nil
	case v.TimestampValue != nil:
		return value.Timestamp(FromTimestamp(v.TimestampValue)), nil
	case v.StringValue != nil:
		return value.String(*v.StringValue), nil
	case v.BytesValue != nil:
		return value.Bytes(*v.BytesValue), nil
	case v.ReferenceValue != nil:
		databaseID, k, err := parseDocumentName(*v.ReferenceValue)
		if err != nil {
			return nil, err
		}
		return value.Reference{DatabaseID: databaseID, Key: k}, nil
	case v.GeoPointValue != nil:
		return value.GeoPoint{
			Latitude:  float64(v.GeoPointValue.Latitude),
			Longitude: float64(v.GeoPointValue.Longitude),
		}, nil
	case v.ArrayValue != nil:
		return s.fromValues(v.ArrayValue.Values)
	case v.MapValue != nil:
		return s.fromMapValue(v.MapValue.Fields)
	}
	return nil, fmt.Errorf("empty value: %w", ErrUnsupportedValueType)
}

func (s *Serializer) fromValues(values []*api.Value) (value.Array, error) {
	arr := make(value.Array, 0, len(values))
	for i, elem := range values {
		converted, err := s.FromValue(elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		arr = append(arr, converted)
	}
	return arr, nil
}

func (s *Serializer) fromMapValue(fields map[string]*api.Value) (value.Value, error) {
	typ, ok := fields[typeKey]
	if !ok || typ.StringValue == nil {
		return s.FromFields(fields)
	}

	switch *typ.StringValue {
	case vectorType:
		elems, ok := fields[vectorValueKey]
		if !ok || elems.ArrayValue == nil {
			return value.Vector{}, nil
		}
		vec := make(value.Vector, 0, len(elems.ArrayValue.Values))
		for _, elem := range elems.ArrayValue.Values {
			switch {
			case elem.DoubleValue != nil:
				vec = append(vec, float64(*elem.DoubleValue))
			case elem.IntegerValue != nil:
				vec = append(vec, float64(*elem.IntegerValue))
			default:
				return nil, fmt.Errorf("non numeric vector element: %w", ErrUnsupportedValueType)
			}
		}
		return vec, nil
	case serverTimestamp:
		st := value.ServerTimestamp{}
		if t, ok := fields[localWriteTimeKey]; ok {
			st.LocalWriteTime = FromTimestamp(t.TimestampValue)
		}
		if previous, ok := fields[previousValueKey]; ok {
			converted, err := s.FromValue(previous)
			if err != nil {
				return nil, err
			}
			st.Previous = converted
		}
		return st, nil
	}
	return s.FromFields(fields)
}

// FromFields converts the fields of a map value.
func (s *Serializer) FromFields(fields map[string]*api.Value) (value.Map, error) {
	m := make(value.Map, len(fields))
	for name, v := range fields {
		converted, err := s.FromValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		m[name] = converted
	}
	return m, nil
}

// parseDocumentName splits a fully qualified document name into its
// database and key.
func parseDocumentName(name string) (key.DatabaseID, key.Key, error) {
	segments := strings.Split(name, "/")
	if len(segments) < 5 || segments[0] != "projects" || segments[2] != "databases" || segments[4] != "documents" {
		return key.DatabaseID{}, key.Key{}, fmt.Errorf("%q: %w", name, ErrInvalidResourceName)
	}
	k, err := key.New(key.NewPath(segments[5:]...))
	if err != nil {
		return key.DatabaseID{}, key.Key{}, fmt.Errorf("%q: %w", name, err)
	}
	return key.NewDatabaseID(segments[1], segments[3]), k, nil
}

// FromName parses the name of a document of the serializer's database.
func (s *Serializer) FromName(name string) (key.Key, error) {
	databaseID, k, err := parseDocumentName(name)
	if err != nil {
		return key.Key{}, err
	}
	if databaseID != s.databaseID {
		return key.Key{}, fmt.Errorf("%q is not in %s: %w", name, s.databaseID.Name(), ErrDatabaseMismatch)
	}
	return k, nil
}

// FromResourceName parses the name of a path of the serializer's database.
func (s *Serializer) FromResourceName(name string) (key.ResourcePath, error) {
	root := s.databaseID.RootPath()
	if name == root {
		return key.NewPath(), nil
	}
	if !strings.HasPrefix(name, root+"/") {
		return key.ResourcePath{}, fmt.Errorf("%q is not in %s: %w", name, s.databaseID.Name(), ErrInvalidResourceName)
	}
	return key.ParsePath(name[len(root)+1:]), nil
}

// FromDocument converts a wire document to a found document at its update
// time.
func (s *Serializer) FromDocument(doc *api.Document) (*document.MutableDocument, error) {
	k, err := s.FromName(doc.Name)
	if err != nil {
		return nil, err
	}
	fields, err := s.FromFields(doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", k, err)
	}
	return document.NewFoundDocument(k, FromVersion(doc.UpdateTime), value.NewObject(fields)), nil
}

// FromPrecondition converts a wire precondition.
func FromPrecondition(p *api.Precondition) mutation.Precondition {
	switch {
	case p == nil:
		return mutation.NoPrecondition
	case p.UpdateTime != nil:
		return mutation.UpdateTimePrecondition(FromVersion(p.UpdateTime))
	case p.Exists != nil:
		return mutation.ExistsPrecondition(*p.Exists)
	}
	return mutation.NoPrecondition
}

// FromFieldTransform converts a wire field transform.
func (s *Serializer) FromFieldTransform(t *api.FieldTransform) (mutation.FieldTransform, error) {
	path, err := value.ParseCanonicalFieldPath(t.FieldPath)
	if err != nil {
		return mutation.FieldTransform{}, err
	}

	switch {
	case t.SetToServerValue == api.ServerValueRequestTime:
		return mutation.FieldTransform{Field: path, Operation: mutation.ServerTimestamp{}}, nil
	case t.AppendMissingElements != nil:
		elems, err := s.fromValues(t.AppendMissingElements.Values)
		if err != nil {
			return mutation.FieldTransform{}, err
		}
		return mutation.FieldTransform{Field: path, Operation: mutation.ArrayUnion{Elements: elems}}, nil
	case t.RemoveAllFromArray != nil:
		elems, err := s.fromValues(t.RemoveAllFromArray.Values)
		if err != nil {
			return mutation.FieldTransform{}, err
		}
		return mutation.FieldTransform{Field: path, Operation: mutation.ArrayRemove{Elements: elems}}, nil
	case t.Increment != nil:
		operand, err := s.FromValue(t.Increment)
		if err != nil {
			return mutation.FieldTransform{}, err
		}
		if !value.IsNumber(operand) {
			return mutation.FieldTransform{}, fmt.Errorf("increment by %s: %w", operand.Type(), ErrUnsupportedTransform)
		}
		return mutation.FieldTransform{Field: path, Operation: mutation.NumericIncrement{Operand: operand}}, nil
	}
	return mutation.FieldTransform{}, fmt.Errorf("field %s: %w", t.FieldPath, ErrUnsupportedTransform)
}

// FromWrite converts a write to a mutation.
func (s *Serializer) FromWrite(w *api.Write) (mutation.Mutation, error) {
	precondition := FromPrecondition(w.CurrentDocument)

	transforms := make([]mutation.FieldTransform, 0, len(w.UpdateTransforms))
	for _, t := range w.UpdateTransforms {
		transform, err := s.FromFieldTransform(t)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, transform)
	}

	switch {
	case w.Update != nil:
		k, err := s.FromName(w.Update.Name)
		if err != nil {
			return nil, err
		}
		fields, err := s.FromFields(w.Update.Fields)
		if err != nil {
			return nil, err
		}
		if w.UpdateMask == nil {
			return mutation.NewSet(k, value.NewObject(fields), precondition, transforms...), nil
		}
		mask, err := FromDocumentMask(w.UpdateMask)
		if err != nil {
			return nil, err
		}
		return mutation.NewPatch(k, value.NewObject(fields), mask, precondition, transforms...), nil
	case w.Delete != "":
		k, err := s.FromName(w.Delete)
		if err != nil {
			return nil, err
		}
		return mutation.NewDelete(k, precondition), nil
	case w.Verify != "":
		k, err := s.FromName(w.Verify)
		if err != nil {
			return nil, err
		}
		return mutation.NewVerify(k, precondition), nil
	}
	return nil, ErrUnsupportedMutation
}

// FromDocumentMask converts a wire field mask.
func FromDocumentMask(mask *api.DocumentMask) (*mutation.FieldMask, error) {
	paths := make([]value.FieldPath, 0, len(mask.FieldPaths))
	for _, p := range mask.FieldPaths {
		path, err := value.ParseCanonicalFieldPath(p)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return mutation.NewFieldMask(paths...), nil
}

// FromWriteResults converts the results of a committed batch. Writes that
// did not change their document carry no update time and take the commit
// time.
func (s *Serializer) FromWriteResults(
	results []*api.WriteResult,
	commitTime *api.Timestamp,
) ([]mutation.Result, error) {
	commitVersion := FromVersion(commitTime)
	converted := make([]mutation.Result, 0, len(results))
	for i, r := range results {
		version := commitVersion
		if r.UpdateTime != nil {
			version = FromVersion(r.UpdateTime)
		}

		transformResults := make([]value.Value, 0, len(r.TransformResults))
		for _, tr := range r.TransformResults {
			v, err := s.FromValue(tr)
			if err != nil {
				return nil, fmt.Errorf("result %d: %w", i, err)
			}
			transformResults = append(transformResults, v)
		}
		converted = append(converted, mutation.Result{Version: version, TransformResults: transformResults})
	}
	return converted, nil
}

// FromTarget converts a wire target to the target it selects.
func (s *Serializer) FromTarget(t *api.Target) (*query.Target, error) {
	switch {
	case t.Documents != nil:
		return s.FromDocumentsTarget(t.Documents)
	case t.Query != nil:
		return s.FromQueryTarget(t.Query)
	}
	return nil, fmt.Errorf("target %d selects nothing: %w", t.TargetID, ErrInvalidResourceName)
}

// FromDocumentsTarget converts a single document target.
func (s *Serializer) FromDocumentsTarget(t *api.DocumentsTarget) (*query.Target, error) {
	if len(t.Documents) != 1 {
		return nil, fmt.Errorf("documents target with %d documents: %w", len(t.Documents), ErrInvalidResourceName)
	}
	k, err := s.FromName(t.Documents[0])
	if err != nil {
		return nil, err
	}
	return query.NewDocumentTarget(k), nil
}

// FromQueryTarget converts a query target.
func (s *Serializer) FromQueryTarget(t *api.QueryTarget) (*query.Target, error) {
	parent, err := s.FromResourceName(t.Parent)
	if err != nil {
		return nil, err
	}
	sq := t.StructuredQuery
	if sq == nil || len(sq.From) != 1 {
		return nil, fmt.Errorf("query of %s must select one collection: %w", t.Parent, ErrUnsupportedFilter)
	}

	target := &query.Target{}
	if from := sq.From[0]; from.AllDescendants {
		target.Path = parent
		target.CollectionGroup = from.CollectionID
	} else {
		target.Path = parent.Child(from.CollectionID)
	}

	if sq.Where != nil {
		f, err := s.FromFilter(sq.Where)
		if err != nil {
			return nil, err
		}
		if composite, ok := f.(*query.CompositeFilter); ok && composite.Operator == query.And {
			target.Filters = composite.Filters
		} else {
			target.Filters = []query.Filter{f}
		}
	}

	for _, o := range sq.OrderBy {
		path, err := value.ParseCanonicalFieldPath(o.Field.FieldPath)
		if err != nil {
			return nil, err
		}
		dir := query.Ascending
		if o.Direction == api.DirectionDescending {
			dir = query.Descending
		}
		target.OrderBy = append(target.OrderBy, query.OrderBy{Field: path, Direction: dir})
	}

	if sq.Limit != nil {
		target.Limit = int(*sq.Limit)
	}
	if sq.StartAt != nil {
		position, err := s.fromValues(sq.StartAt.Values)
		if err != nil {
			return nil, err
		}
		target.StartAt = &query.Bound{Position: position, Inclusive: sq.StartAt.Before}
	}
	if sq.EndAt != nil {
		position, err := s.fromValues(sq.EndAt.Values)
		if err != nil {
			return nil, err
		}
		target.EndAt = &query.Bound{Position: position, Inclusive: !sq.EndAt.Before}
	}
	return target, nil
}

// FromFilter converts a wire filter.
func (s *Serializer) FromFilter(f *api.Filter) (query.Filter, error) {
	switch {
	case f.FieldFilter != nil:
		path, err := value.ParseCanonicalFieldPath(f.FieldFilter.Field.FieldPath)
		if err != nil {
			return nil, err
		}
		op, ok := fromOperator(f.FieldFilter.Op)
		if !ok {
			return nil, fmt.Errorf("operator %q: %w", f.FieldFilter.Op, ErrUnsupportedFilter)
		}
		v, err := s.FromValue(f.FieldFilter.Value)
		if err != nil {
			return nil, err
		}
		return &query.FieldFilter{Field: path, Operator: op, Value: v}, nil
	case f.UnaryFilter != nil:
		path, err := value.ParseCanonicalFieldPath(f.UnaryFilter.Field.FieldPath)
		if err != nil {
			return nil, err
		}
		switch f.UnaryFilter.Op {
		case api.OpIsNull:
			return &query.FieldFilter{Field: path, Operator: query.Equal, Value: value.Null{}}, nil
		case api.OpIsNotNull:
			return &query.FieldFilter{Field: path, Operator: query.NotEqual, Value: value.Null{}}, nil
		case api.OpIsNaN:
			return &query.FieldFilter{Field: path, Operator: query.Equal, Value: value.Double(math.NaN())}, nil
		case api.OpIsNotNaN:
			return &query.FieldFilter{Field: path, Operator: query.NotEqual, Value: value.Double(math.NaN())}, nil
		}
		return nil, fmt.Errorf("unary operator %q: %w", f.UnaryFilter.Op, ErrUnsupportedFilter)
	case f.CompositeFilter != nil:
		children := make([]query.Filter, 0, len(f.CompositeFilter.Filters))
		for _, child := range f.CompositeFilter.Filters {
			converted, err := s.FromFilter(child)
			if err != nil {
				return nil, err
			}
			children = append(children, converted)
		}
		switch f.CompositeFilter.Op {
		case api.OpAnd:
			return query.AllOf(children...), nil
		case api.OpOr:
			return query.AnyOf(children...), nil
		}
		return nil, fmt.Errorf("composite operator %q: %w", f.CompositeFilter.Op, ErrUnsupportedFilter)
	}
	return nil, fmt.Errorf("empty filter: %w", ErrUnsupportedFilter)
}

func fromOperator(op string) (query.Operator, bool) {
	for o, name := range operators {
		if name == op {
			return o, true
		}
	}
	return 0, false
}
