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

package api

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// CodecName is the content subtype the Datastore service is served with.
const CodecName = "proto"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec encodes the messages of this package in the protocol buffers wire
// format. It takes the place of the default codec of gRPC, so generated
// messages are handed to proto.
type Codec struct{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case wireMessage:
		e := &encoder{}
		m.encode(e)
		if e.err != nil {
			return nil, fmt.Errorf("marshal %T: %w", v, e.err)
		}
		return e.b, nil
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("marshal %T: %w", v, ErrUnsupportedMessage)
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case wireMessage:
		if err := m.decode(data); err != nil {
			return fmt.Errorf("unmarshal %T: %w", v, err)
		}
		return nil
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("unmarshal %T: %w", v, ErrUnsupportedMessage)
}

// Name implements encoding.Codec.
func (Codec) Name() string {
	return CodecName
}

func (t *Timestamp) encode(e *encoder) {
	e.varint(1, uint64(t.Seconds))
	e.int32(2, t.Nanos)
}

func (t *Timestamp) decode(b []byte) error {
	return decodeFields(b, func(f field) error {
		switch f.num {
		case 1:
			t.Seconds = f.int64()
		case 2:
			t.Nanos = f.int32()
		}
		return nil
	})
}

func (l *LatLng) encode(e *encoder) {
	e.double(1, float64(l.Latitude))
	e.double(2, float64(l.Longitude))
}

func (l *LatLng) decode(b []byte) error {
	return decodeFields(b, func(f field) error {
		switch f.num {
		case 1:
			l.Latitude = Double(f.double())
		case 2:
			l.Longitude = Double(f.double())
		}
		return nil
	})
}

func (a *ArrayValue) encode(e *encoder) {
	encodeMessages(e, 1, a.Values)
}

func (a *ArrayValue) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		if f.num == 1 {
			a.Values, err = appendMessage(a.Values, f)
		}
		return err
	})
}

func (m *MapValue) encode(e *encoder) {
	e.valueMap(1, m.Fields)
}

func (m *MapValue) decode(b []byte) error {
	return decodeFields(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		k, v, err := decodeValueEntry(f)
		if err != nil {
			return err
		}
		if m.Fields == nil {
			m.Fields = make(map[string]*Value)
		}
		m.Fields[k] = v
		return nil
	})
}

func (v *Value) encode(e *encoder) {
	if v.NullValue != nil {
		e.rawVarint(11, 0)
	}
	if v.BooleanValue != nil {
		e.rawVarint(1, protowire.EncodeBool(*v.BooleanValue))
	}
	if v.IntegerValue != nil {
		e.rawVarint(2, uint64(*v.IntegerValue))
	}
	if v.DoubleValue != nil {
		e.double(3, float64(*v.DoubleValue))
	}
	encodeMessage(e, 10, v.TimestampValue)
	if v.StringValue != nil {
		e.rawString(17, *v.StringValue)
	}
	if v.BytesValue != nil {
		e.rawBytes(18, *v.BytesValue)
	}
	if v.ReferenceValue != nil {
		e.rawString(5, *v.ReferenceValue)
	}
	encodeMessage(e, 8, v.GeoPointValue)
	encodeMessage(e, 9, v.ArrayValue)
	encodeMessage(e, 6, v.MapValue)
}

func (v *Value) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 11:
			v.NullValue = &NullValue{}
		case 1:
			val := f.bool()
			v.BooleanValue = &val
		case 2:
			val := f.int64()
			v.IntegerValue = &val
		case 3:
			val := Double(f.double())
			v.DoubleValue = &val
		case 10:
			v.TimestampValue, err = decodeMessage[Timestamp](f)
		case 17:
			val := f.string()
			v.StringValue = &val
		case 18:
			val := f.bytes()
			v.BytesValue = &val
		case 5:
			val := f.string()
			v.ReferenceValue = &val
		case 8:
			v.GeoPointValue, err = decodeMessage[LatLng](f)
		case 9:
			v.ArrayValue, err = decodeMessage[ArrayValue](f)
		case 6:
			v.MapValue, err = decodeMessage[MapValue](f)
		}
		return err
	})
}

func (d *Document) encode(e *encoder) {
	e.string(1, d.Name)
	e.valueMap(2, d.Fields)
	encodeMessage(e, 3, d.CreateTime)
	encodeMessage(e, 4, d.UpdateTime)
}

func (d *Document) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			d.Name = f.string()
		case 2:
			var k string
			var v *Value
			if k, v, err = decodeValueEntry(f); err != nil {
				return err
			}
			if d.Fields == nil {
				d.Fields = make(map[string]*Value)
			}
			d.Fields[k] = v
		case 3:
			d.CreateTime, err = decodeMessage[Timestamp](f)
		case 4:
			d.UpdateTime, err = decodeMessage[Timestamp](f)
		}
		return err
	})
}

func (p *Precondition) encode(e *encoder) {
	if p.Exists != nil {
		e.rawVarint(1, protowire.EncodeBool(*p.Exists))
	}
	encodeMessage(e, 2, p.UpdateTime)
}

func (p *Precondition) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			exists := f.bool()
			p.Exists = &exists
		case 2:
			p.UpdateTime, err = decodeMessage[Timestamp](f)
		}
		return err
	})
}

func (m *DocumentMask) encode(e *encoder) {
	e.strings(1, m.FieldPaths)
}

func (m *DocumentMask) decode(b []byte) error {
	return decodeFields(b, func(f field) error {
		if f.num == 1 {
			m.FieldPaths = append(m.FieldPaths, f.string())
		}
		return nil
	})
}

func (t *FieldTransform) encode(e *encoder) {
	e.string(1, t.FieldPath)
	e.enum(2, serverValues, t.SetToServerValue)
	encodeMessage(e, 3, t.Increment)
	encodeMessage(e, 6, t.AppendMissingElements)
	encodeMessage(e, 7, t.RemoveAllFromArray)
}

func (t *FieldTransform) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			t.FieldPath = f.string()
		case 2:
			t.SetToServerValue, err = f.enum(serverValues)
		case 3:
			t.Increment, err = decodeMessage[Value](f)
		case 6:
			t.AppendMissingElements, err = decodeMessage[ArrayValue](f)
		case 7:
			t.RemoveAllFromArray, err = decodeMessage[ArrayValue](f)
		}
		return err
	})
}

func (w *Write) encode(e *encoder) {
	encodeMessage(e, 1, w.Update)
	e.string(2, w.Delete)
	encodeMessage(e, 3, w.UpdateMask)
	encodeMessage(e, 4, w.CurrentDocument)
	e.string(5, w.Verify)
	encodeMessages(e, 7, w.UpdateTransforms)
}

func (w *Write) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			w.Update, err = decodeMessage[Document](f)
		case 2:
			w.Delete = f.string()
		case 3:
			w.UpdateMask, err = decodeMessage[DocumentMask](f)
		case 4:
			w.CurrentDocument, err = decodeMessage[Precondition](f)
		case 5:
			w.Verify = f.string()
		case 7:
			w.UpdateTransforms, err = appendMessage(w.UpdateTransforms, f)
		}
		return err
	})
}

func (r *WriteResult) encode(e *encoder) {
	encodeMessage(e, 1, r.UpdateTime)
	encodeMessages(e, 2, r.TransformResults)
}

func (r *WriteResult) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			r.UpdateTime, err = decodeMessage[Timestamp](f)
		case 2:
			r.TransformResults, err = appendMessage(r.TransformResults, f)
		}
		return err
	})
}

func (r *WriteRequest) encode(e *encoder) {
	e.string(1, r.Database)
	e.string(2, r.StreamID)
	encodeMessages(e, 3, r.Writes)
	e.bytes(4, r.StreamToken)
	e.stringMap(5, r.Labels)
}

func (r *WriteRequest) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			r.Database = f.string()
		case 2:
			r.StreamID = f.string()
		case 3:
			r.Writes, err = appendMessage(r.Writes, f)
		case 4:
			r.StreamToken = f.bytes()
		case 5:
			r.Labels, err = decodeLabel(r.Labels, f)
		}
		return err
	})
}

func (r *WriteResponse) encode(e *encoder) {
	e.string(1, r.StreamID)
	e.bytes(2, r.StreamToken)
	encodeMessages(e, 3, r.WriteResults)
	encodeMessage(e, 4, r.CommitTime)
}

func (r *WriteResponse) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			r.StreamID = f.string()
		case 2:
			r.StreamToken = f.bytes()
		case 3:
			r.WriteResults, err = appendMessage(r.WriteResults, f)
		case 4:
			r.CommitTime, err = decodeMessage[Timestamp](f)
		}
		return err
	})
}

func (s *CollectionSelector) encode(e *encoder) {
	e.string(2, s.CollectionID)
	e.bool(3, s.AllDescendants)
}

func (s *CollectionSelector) decode(b []byte) error {
	return decodeFields(b, func(f field) error {
		switch f.num {
		case 2:
			s.CollectionID = f.string()
		case 3:
			s.AllDescendants = f.bool()
		}
		return nil
	})
}

func (r *FieldReference) encode(e *encoder) {
	e.string(2, r.FieldPath)
}

func (r *FieldReference) decode(b []byte) error {
	return decodeFields(b, func(f field) error {
		if f.num == 2 {
			r.FieldPath = f.string()
		}
		return nil
	})
}

func (ff *FieldFilter) encode(e *encoder) {
	encodeMessage(e, 1, ff.Field)
	e.enum(2, fieldOperators, ff.Op)
	encodeMessage(e, 3, ff.Value)
}

func (ff *FieldFilter) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			ff.Field, err = decodeMessage[FieldReference](f)
		case 2:
			ff.Op, err = f.enum(fieldOperators)
		case 3:
			ff.Value, err = decodeMessage[Value](f)
		}
		return err
	})
}

func (u *UnaryFilter) encode(e *encoder) {
	e.enum(1, unaryOperators, u.Op)
	encodeMessage(e, 2, u.Field)
}

func (u *UnaryFilter) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			u.Op, err = f.enum(unaryOperators)
		case 2:
			u.Field, err = decodeMessage[FieldReference](f)
		}
		return err
	})
}

func (c *CompositeFilter) encode(e *encoder) {
	e.enum(1, compositeOperators, c.Op)
	encodeMessages(e, 2, c.Filters)
}

func (c *CompositeFilter) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			c.Op, err = f.enum(compositeOperators)
		case 2:
			c.Filters, err = appendMessage(c.Filters, f)
		}
		return err
	})
}

func (ft *Filter) encode(e *encoder) {
	encodeMessage(e, 1, ft.CompositeFilter)
	encodeMessage(e, 2, ft.FieldFilter)
	encodeMessage(e, 3, ft.UnaryFilter)
}

func (ft *Filter) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			ft.CompositeFilter, err = decodeMessage[CompositeFilter](f)
		case 2:
			ft.FieldFilter, err = decodeMessage[FieldFilter](f)
		case 3:
			ft.UnaryFilter, err = decodeMessage[UnaryFilter](f)
		}
		return err
	})
}

func (o *Order) encode(e *encoder) {
	encodeMessage(e, 1, o.Field)
	e.enum(2, directions, o.Direction)
}

func (o *Order) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			o.Field, err = decodeMessage[FieldReference](f)
		case 2:
			o.Direction, err = f.enum(directions)
		}
		return err
	})
}

func (c *Cursor) encode(e *encoder) {
	encodeMessages(e, 1, c.Values)
	e.bool(2, c.Before)
}

func (c *Cursor) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			c.Values, err = appendMessage(c.Values, f)
		case 2:
			c.Before = f.bool()
		}
		return err
	})
}

func (q *StructuredQuery) encode(e *encoder) {
	encodeMessages(e, 2, q.From)
	encodeMessage(e, 3, q.Where)
	encodeMessages(e, 4, q.OrderBy)
	if q.Limit != nil {
		e.message(5, &int32Value{value: *q.Limit})
	}
	encodeMessage(e, 7, q.StartAt)
	encodeMessage(e, 8, q.EndAt)
}

func (q *StructuredQuery) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 2:
			q.From, err = appendMessage(q.From, f)
		case 3:
			q.Where, err = decodeMessage[Filter](f)
		case 4:
			q.OrderBy, err = appendMessage(q.OrderBy, f)
		case 5:
			var limit *int32Value
			if limit, err = decodeMessage[int32Value](f); err == nil {
				q.Limit = &limit.value
			}
		case 7:
			q.StartAt, err = decodeMessage[Cursor](f)
		case 8:
			q.EndAt, err = decodeMessage[Cursor](f)
		}
		return err
	})
}

func (q *QueryTarget) encode(e *encoder) {
	e.string(1, q.Parent)
	encodeMessage(e, 2, q.StructuredQuery)
}

func (q *QueryTarget) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			q.Parent = f.string()
		case 2:
			q.StructuredQuery, err = decodeMessage[StructuredQuery](f)
		}
		return err
	})
}

func (d *DocumentsTarget) encode(e *encoder) {
	e.strings(2, d.Documents)
}

func (d *DocumentsTarget) decode(b []byte) error {
	return decodeFields(b, func(f field) error {
		if f.num == 2 {
			d.Documents = append(d.Documents, f.string())
		}
		return nil
	})
}

func (t *Target) encode(e *encoder) {
	encodeMessage(e, 2, t.Query)
	encodeMessage(e, 3, t.Documents)
	e.bytes(4, t.ResumeToken)
	e.int32(5, t.TargetID)
	encodeMessage(e, 11, t.ReadTime)
	if t.ExpectedCount != nil {
		e.message(12, &int32Value{value: *t.ExpectedCount})
	}
}

func (t *Target) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 2:
			t.Query, err = decodeMessage[QueryTarget](f)
		case 3:
			t.Documents, err = decodeMessage[DocumentsTarget](f)
		case 4:
			t.ResumeToken = f.bytes()
		case 5:
			t.TargetID = f.int32()
		case 11:
			t.ReadTime, err = decodeMessage[Timestamp](f)
		case 12:
			var count *int32Value
			if count, err = decodeMessage[int32Value](f); err == nil {
				t.ExpectedCount = &count.value
			}
		}
		return err
	})
}

func (r *ListenRequest) encode(e *encoder) {
	e.string(1, r.Database)
	encodeMessage(e, 2, r.AddTarget)
	e.int32(3, r.RemoveTarget)
	e.stringMap(4, r.Labels)
}

func (r *ListenRequest) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			r.Database = f.string()
		case 2:
			r.AddTarget, err = decodeMessage[Target](f)
		case 3:
			r.RemoveTarget = f.int32()
		case 4:
			r.Labels, err = decodeLabel(r.Labels, f)
		}
		return err
	})
}

func (s *Status) encode(e *encoder) {
	e.int32(1, s.Code)
	e.string(2, s.Message)
}

func (s *Status) decode(b []byte) error {
	return decodeFields(b, func(f field) error {
		switch f.num {
		case 1:
			s.Code = f.int32()
		case 2:
			s.Message = f.string()
		}
		return nil
	})
}

func (c *TargetChange) encode(e *encoder) {
	e.enum(1, targetChangeTypes, c.TargetChangeType)
	e.int32s(2, c.TargetIDs)
	encodeMessage(e, 3, c.Cause)
	e.bytes(4, c.ResumeToken)
	encodeMessage(e, 6, c.ReadTime)
}

func (c *TargetChange) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			c.TargetChangeType, err = f.enum(targetChangeTypes)
		case 2:
			c.TargetIDs, err = f.int32s(c.TargetIDs)
		case 3:
			c.Cause, err = decodeMessage[Status](f)
		case 4:
			c.ResumeToken = f.bytes()
		case 6:
			c.ReadTime, err = decodeMessage[Timestamp](f)
		}
		return err
	})
}

func (c *DocumentChange) encode(e *encoder) {
	encodeMessage(e, 1, c.Document)
	e.int32s(5, c.TargetIDs)
	e.int32s(6, c.RemovedTargetIDs)
}

func (c *DocumentChange) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			c.Document, err = decodeMessage[Document](f)
		case 5:
			c.TargetIDs, err = f.int32s(c.TargetIDs)
		case 6:
			c.RemovedTargetIDs, err = f.int32s(c.RemovedTargetIDs)
		}
		return err
	})
}

func (d *DocumentDelete) encode(e *encoder) {
	e.string(1, d.Document)
	encodeMessage(e, 4, d.ReadTime)
	e.int32s(6, d.RemovedTargetIDs)
}

func (d *DocumentDelete) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			d.Document = f.string()
		case 4:
			d.ReadTime, err = decodeMessage[Timestamp](f)
		case 6:
			d.RemovedTargetIDs, err = f.int32s(d.RemovedTargetIDs)
		}
		return err
	})
}

func (d *DocumentRemove) encode(e *encoder) {
	e.string(1, d.Document)
	e.int32s(2, d.RemovedTargetIDs)
	encodeMessage(e, 4, d.ReadTime)
}

func (d *DocumentRemove) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			d.Document = f.string()
		case 2:
			d.RemovedTargetIDs, err = f.int32s(d.RemovedTargetIDs)
		case 4:
			d.ReadTime, err = decodeMessage[Timestamp](f)
		}
		return err
	})
}

func (s *BitSequence) encode(e *encoder) {
	e.bytes(1, s.Bitmap)
	e.int32(2, s.Padding)
}

func (s *BitSequence) decode(b []byte) error {
	return decodeFields(b, func(f field) error {
		switch f.num {
		case 1:
			s.Bitmap = f.bytes()
		case 2:
			s.Padding = f.int32()
		}
		return nil
	})
}

func (bf *BloomFilter) encode(e *encoder) {
	encodeMessage(e, 1, bf.Bits)
	e.int32(2, bf.HashCount)
}

func (bf *BloomFilter) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			bf.Bits, err = decodeMessage[BitSequence](f)
		case 2:
			bf.HashCount = f.int32()
		}
		return err
	})
}

func (ef *ExistenceFilter) encode(e *encoder) {
	e.int32(1, ef.TargetID)
	e.int32(2, ef.Count)
	encodeMessage(e, 3, ef.UnchangedNames)
}

func (ef *ExistenceFilter) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			ef.TargetID = f.int32()
		case 2:
			ef.Count = f.int32()
		case 3:
			ef.UnchangedNames, err = decodeMessage[BloomFilter](f)
		}
		return err
	})
}

func (r *ListenResponse) encode(e *encoder) {
	encodeMessage(e, 2, r.TargetChange)
	encodeMessage(e, 3, r.DocumentChange)
	encodeMessage(e, 4, r.DocumentDelete)
	encodeMessage(e, 5, r.Filter)
	encodeMessage(e, 6, r.DocumentRemove)
}

func (r *ListenResponse) decode(b []byte) error {
	return decodeFields(b, func(f field) (err error) {
		switch f.num {
		case 2:
			r.TargetChange, err = decodeMessage[TargetChange](f)
		case 3:
			r.DocumentChange, err = decodeMessage[DocumentChange](f)
		case 4:
			r.DocumentDelete, err = decodeMessage[DocumentDelete](f)
		case 5:
			r.Filter, err = decodeMessage[ExistenceFilter](f)
		case 6:
			r.DocumentRemove, err = decodeMessage[DocumentRemove](f)
		}
		return err
	})
}

func decodeLabel(labels map[string]string, f field) (map[string]string, error) {
	k, v, err := decodeStringEntry(f)
	if err != nil {
		return labels, err
	}
	if labels == nil {
		labels = make(map[string]string)
	}
	labels[k] = v
	return labels, nil
}
