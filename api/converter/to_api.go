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

	"github.com/yorkie-team/docsync/api"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/query"
)

// ToTimestamp converts the given timestamp to its wire form.
func ToTimestamp(ts time.Timestamp) *api.Timestamp {
	return &api.Timestamp{Seconds: ts.Seconds, Nanos: ts.Nanos}
}

// ToVersion converts the given version to its wire form. The minimum
// version has none.
func ToVersion(v time.SnapshotVersion) *api.Timestamp {
	if v.IsMin() {
		return nil
	}
	return ToTimestamp(v.Timestamp())
}

// ToValue converts the given value to its wire form. Vectors and pending
// server timestamps are encoded as tagged maps.
func (s *Serializer) ToValue(v value.Value) *api.Value {
	switch val := v.(type) {
	case nil, value.Null:
		return &api.Value{NullValue: &api.NullValue{}}
	case value.Boolean:
		b := bool(val)
		return &api.Value{BooleanValue: &b}
	case value.Integer:
		i := int64(val)
		return &api.Value{IntegerValue: &i}
	case value.Double:
		d := api.Double(val)
		return &api.Value{DoubleValue: &d}
	case value.Timestamp:
		return &api.Value{TimestampValue: ToTimestamp(time.Timestamp(val))}
	case value.ServerTimestamp:
		fields := map[string]*api.Value{
			typeKey:           s.ToValue(value.String(serverTimestamp)),
			localWriteTimeKey: {TimestampValue: ToTimestamp(val.LocalWriteTime)},
		}
		if val.Previous != nil {
			fields[previousValueKey] = s.ToValue(val.Previous)
		}
		return &api.Value{MapValue: &api.MapValue{Fields: fields}}
	case value.String:
		str := string(val)
		return &api.Value{StringValue: &str}
	case value.Bytes:
		b := []byte(val)
		return &api.Value{BytesValue: &b}
	case value.Reference:
		name := val.DatabaseID.DocumentName(val.Key)
		return &api.Value{ReferenceValue: &name}
	case value.GeoPoint:
		return &api.Value{GeoPointValue: &api.LatLng{
			Latitude:  api.Double(val.Latitude),
			Longitude: api.Double(val.Longitude),
		}}
	case value.Array:
		values := make([]*api.Value, len(val))
		for i, elem := range val {
			values[i] = s.ToValue(elem)
		}
		return &api.Value{ArrayValue: &api.ArrayValue{Values: values}}
	case value.Vector:
		values := make([]*api.Value, len(val))
		for i, elem := range val {
			values[i] = s.ToValue(value.Double(elem))
		}
		return &api.Value{MapValue: &api.MapValue{Fields: map[string]*api.Value{
			typeKey:        s.ToValue(value.String(vectorType)),
			vectorValueKey: {ArrayValue: &api.ArrayValue{Values: values}},
		}}}
	case value.Map:
		return &api.Value{MapValue: &api.MapValue{Fields: s.ToFields(val)}}
	}
	panic(fmt.Sprintf("unknown value %T", v))
}

// ToFields converts the fields of a map value.
func (s *Serializer) ToFields(m value.Map) map[string]*api.Value {
	fields := make(map[string]*api.Value, len(m))
	for k, v := range m {
		fields[k] = s.ToValue(v)
	}
	return fields
}

// ToName returns the fully qualified name of the document with key k.
func (s *Serializer) ToName(k key.Key) string {
	return s.databaseID.DocumentName(k)
}

// ToResourceName returns the fully qualified name of the given path.
func (s *Serializer) ToResourceName(path key.ResourcePath) string {
	if path.IsEmpty() {
		return s.databaseID.RootPath()
	}
	return s.databaseID.RootPath() + "/" + path.String()
}

// ToDocument converts the given found document to its wire form.
func (s *Serializer) ToDocument(doc *document.MutableDocument) *api.Document {
	return &api.Document{
		Name:       s.ToName(doc.Key()),
		Fields:     s.ToFields(doc.Data().Fields()),
		UpdateTime: ToVersion(doc.Version()),
	}
}

// ToPrecondition converts the given precondition. None has no wire form.
func ToPrecondition(p mutation.Precondition) *api.Precondition {
	switch p.Type {
	case mutation.PreconditionExists:
		exists := p.Exists
		return &api.Precondition{Exists: &exists}
	case mutation.PreconditionUpdateTime:
		return &api.Precondition{UpdateTime: ToTimestamp(p.UpdateTime.Timestamp())}
	}
	return nil
}

// ToFieldTransform converts the given field transform.
func (s *Serializer) ToFieldTransform(t mutation.FieldTransform) *api.FieldTransform {
	transform := &api.FieldTransform{FieldPath: t.Field.String()}
	switch op := t.Operation.(type) {
	case mutation.ServerTimestamp:
		transform.SetToServerValue = api.ServerValueRequestTime
	case mutation.ArrayUnion:
		transform.AppendMissingElements = s.toArrayValue(op.Elements)
	case mutation.ArrayRemove:
		transform.RemoveAllFromArray = s.toArrayValue(op.Elements)
	case mutation.NumericIncrement:
		transform.Increment = s.ToValue(op.Operand)
	default:
		panic(fmt.Sprintf("unknown transform %T", t.Operation))
	}
	return transform
}

func (s *Serializer) toArrayValue(elements []value.Value) *api.ArrayValue {
	values := make([]*api.Value, len(elements))
	for i, elem := range elements {
		values[i] = s.ToValue(elem)
	}
	return &api.ArrayValue{Values: values}
}

// ToWrite converts the given mutation to a write.
func (s *Serializer) ToWrite(m mutation.Mutation) (*api.Write, error) {
	write := &api.Write{CurrentDocument: ToPrecondition(m.Precondition())}
	switch mut := m.(type) {
	case *mutation.Set:
		write.Update = &api.Document{
			Name:   s.ToName(mut.Key()),
			Fields: s.ToFields(mut.Data().Fields()),
		}
	case *mutation.Patch:
		write.Update = &api.Document{
			Name:   s.ToName(mut.Key()),
			Fields: s.ToFields(mut.Data().Fields()),
		}
		write.UpdateMask = ToDocumentMask(mut.Mask())
	case *mutation.Delete:
		write.Delete = s.ToName(mut.Key())
	case *mutation.Verify:
		write.Verify = s.ToName(mut.Key())
	default:
		return nil, fmt.Errorf("%T: %w", m, ErrUnsupportedMutation)
	}

	for _, t := range m.Transforms() {
		write.UpdateTransforms = append(write.UpdateTransforms, s.ToFieldTransform(t))
	}
	return write, nil
}

// ToWrites converts the mutations of a batch.
func (s *Serializer) ToWrites(mutations []mutation.Mutation) ([]*api.Write, error) {
	writes := make([]*api.Write, 0, len(mutations))
	for _, m := range mutations {
		write, err := s.ToWrite(m)
		if err != nil {
			return nil, err
		}
		writes = append(writes, write)
	}
	return writes, nil
}

// ToDocumentMask converts the given field mask.
func ToDocumentMask(mask *mutation.FieldMask) *api.DocumentMask {
	paths := make([]string, 0, mask.Len())
	for _, f := range mask.Fields() {
		paths = append(paths, f.String())
	}
	return &api.DocumentMask{FieldPaths: paths}
}

// ToTarget converts a target to the subscription sent on the Listen stream.
// A non-empty resume token takes precedence over the read time; the
// expected count is only sent when the target is resumed.
func (s *Serializer) ToTarget(
	t *query.Target,
	targetID int,
	resumeToken []byte,
	readTime time.SnapshotVersion,
	expectedCount *int,
) *api.Target {
	target := &api.Target{TargetID: int32(targetID)}
	if t.IsDocumentTarget() {
		target.Documents = s.ToDocumentsTarget(t)
	} else {
		target.Query = s.ToQueryTarget(t)
	}

	switch {
	case len(resumeToken) > 0:
		target.ResumeToken = resumeToken
	case !readTime.IsMin():
		target.ReadTime = ToTimestamp(readTime.Timestamp())
	default:
		return target
	}
	if expectedCount != nil {
		count := int32(*expectedCount)
		target.ExpectedCount = &count
	}
	return target
}

// ToDocumentsTarget converts a single document target.
func (s *Serializer) ToDocumentsTarget(t *query.Target) *api.DocumentsTarget {
	return &api.DocumentsTarget{Documents: []string{s.ToResourceName(t.Path)}}
}

// ToQueryTarget converts a query target. The parent of a collection query
// is the document holding the collection.
func (s *Serializer) ToQueryTarget(t *query.Target) *api.QueryTarget {
	sq := &api.StructuredQuery{}
	var parent key.ResourcePath
	if t.CollectionGroup != "" {
		parent = t.Path
		sq.From = []*api.CollectionSelector{{CollectionID: t.CollectionGroup, AllDescendants: true}}
	} else {
		parent = t.Path.Parent()
		sq.From = []*api.CollectionSelector{{CollectionID: t.Path.LastSegment()}}
	}

	sq.Where = s.ToFilters(t.Filters)
	for _, o := range t.OrderBy {
		sq.OrderBy = append(sq.OrderBy, ToOrder(o))
	}
	if t.Limit > 0 {
		limit := int32(t.Limit)
		sq.Limit = &limit
	}
	if t.StartAt != nil {
		sq.StartAt = &api.Cursor{Values: s.toValues(t.StartAt.Position), Before: t.StartAt.Inclusive}
	}
	if t.EndAt != nil {
		sq.EndAt = &api.Cursor{Values: s.toValues(t.EndAt.Position), Before: !t.EndAt.Inclusive}
	}

	return &api.QueryTarget{Parent: s.ToResourceName(parent), StructuredQuery: sq}
}

func (s *Serializer) toValues(values []value.Value) []*api.Value {
	converted := make([]*api.Value, len(values))
	for i, v := range values {
		converted[i] = s.ToValue(v)
	}
	return converted
}

// ToOrder converts an ordering.
func ToOrder(o query.OrderBy) *api.Order {
	dir := api.DirectionAscending
	if o.Direction == query.Descending {
		dir = api.DirectionDescending
	}
	return &api.Order{Field: &api.FieldReference{FieldPath: o.Field.String()}, Direction: dir}
}

// ToFilters converts the top level filters of a target, which are implicitly
// joined with AND.
func (s *Serializer) ToFilters(filters []query.Filter) *api.Filter {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return s.ToFilter(filters[0])
	}
	return s.ToFilter(query.AllOf(filters...))
}

// ToFilter converts a filter. Equality with null or NaN is sent as a unary
// filter.
func (s *Serializer) ToFilter(f query.Filter) *api.Filter {
	switch filter := f.(type) {
	case *query.FieldFilter:
		if unary := toUnaryFilter(filter); unary != nil {
			return &api.Filter{UnaryFilter: unary}
		}
		return &api.Filter{FieldFilter: &api.FieldFilter{
			Field: &api.FieldReference{FieldPath: filter.Field.String()},
			Op:    toOperator(filter.Operator),
			Value: s.ToValue(filter.Value),
		}}
	case *query.CompositeFilter:
		op := api.OpAnd
		if filter.Operator == query.Or {
			op = api.OpOr
		}
		converted := make([]*api.Filter, 0, len(filter.Filters))
		for _, child := range filter.Filters {
			converted = append(converted, s.ToFilter(child))
		}
		return &api.Filter{CompositeFilter: &api.CompositeFilter{Op: op, Filters: converted}}
	}
	panic(fmt.Sprintf("unknown filter %T", f))
}

func toUnaryFilter(f *query.FieldFilter) *api.UnaryFilter {
	if f.Operator != query.Equal && f.Operator != query.NotEqual {
		return nil
	}

	var op string
	switch {
	case value.IsNull(f.Value) && f.Operator == query.Equal:
		op = api.OpIsNull
	case value.IsNull(f.Value):
		op = api.OpIsNotNull
	case value.IsNaN(f.Value) && f.Operator == query.Equal:
		op = api.OpIsNaN
	case value.IsNaN(f.Value):
		op = api.OpIsNotNaN
	default:
		return nil
	}
	return &api.UnaryFilter{Op: op, Field: &api.FieldReference{FieldPath: f.Field.String()}}
}

var operators = map[query.Operator]string{
	query.LessThan:           api.OpLessThan,
	query.LessThanOrEqual:    api.OpLessThanOrEqual,
	query.Equal:              api.OpEqual,
	query.NotEqual:           api.OpNotEqual,
	query.GreaterThanOrEqual: api.OpGreaterThanOrEqual,
	query.GreaterThan:        api.OpGreaterThan,
	query.ArrayContains:      api.OpArrayContains,
	query.ArrayContainsAny:   api.OpArrayContainsAny,
	query.In:                 api.OpIn,
	query.NotIn:              api.OpNotIn,
}

func toOperator(op query.Operator) string {
	return operators[op]
}
