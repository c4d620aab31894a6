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
	"maps"
	"math"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yorkie-team/docsync/pkg/errors"
)

var (
	// ErrMalformedMessage is returned when bytes read from a stream are not
	// a valid message.
	ErrMalformedMessage = errors.Internal("malformed message").WithCode("ErrMalformedMessage")

	// ErrUnknownEnum is returned when an enum value has no wire number.
	ErrUnknownEnum = errors.InvalidArgument("unknown enum value").WithCode("ErrUnknownEnum")

	// ErrUnsupportedMessage is returned when the codec is given a value it
	// cannot encode.
	ErrUnsupportedMessage = errors.Internal("unsupported message").WithCode("ErrUnsupportedMessage")
)

// wireMessage is a message of this package that encodes itself in the
// protocol buffers wire format.
type wireMessage interface {
	encode(e *encoder)
	decode(b []byte) error
}

// enum maps the names of an enum to its wire numbers.
type enum struct {
	name    string
	numbers map[string]int32
	names   map[int32]string
}

func newEnum(name string, numbers map[string]int32) *enum {
	names := make(map[int32]string, len(numbers))
	for n, v := range numbers {
		names[v] = n
	}
	return &enum{name: name, numbers: numbers, names: names}
}

var (
	fieldOperators = newEnum("field operator", map[string]int32{
		OpLessThan:           1,
		OpLessThanOrEqual:    2,
		OpGreaterThan:        3,
		OpGreaterThanOrEqual: 4,
		OpEqual:              5,
		OpNotEqual:           6,
		OpArrayContains:      7,
		OpIn:                 8,
		OpArrayContainsAny:   9,
		OpNotIn:              10,
	})
	unaryOperators = newEnum("unary operator", map[string]int32{
		OpIsNaN:     2,
		OpIsNull:    3,
		OpIsNotNaN:  4,
		OpIsNotNull: 5,
	})
	compositeOperators = newEnum("composite operator", map[string]int32{
		OpAnd: 1,
		OpOr:  2,
	})
	directions = newEnum("direction", map[string]int32{
		DirectionAscending:  1,
		DirectionDescending: 2,
	})
	targetChangeTypes = newEnum("target change type", map[string]int32{
		TargetChangeNoChange: 0,
		TargetChangeAdd:      1,
		TargetChangeRemove:   2,
		TargetChangeCurrent:  3,
		TargetChangeReset:    4,
	})
	serverValues = newEnum("server value", map[string]int32{
		ServerValueRequestTime: 1,
	})
)

// encoder appends fields to a buffer. The first error sticks and stops
// further encoding.
type encoder struct {
	b   []byte
	err error
}

func (e *encoder) rawVarint(num protowire.Number, v uint64) {
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) varint(num protowire.Number, v uint64) {
	if v != 0 {
		e.rawVarint(num, v)
	}
}

func (e *encoder) int32(num protowire.Number, v int32) {
	e.varint(num, uint64(int64(v)))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	e.varint(num, protowire.EncodeBool(v))
}

func (e *encoder) double(num protowire.Number, v float64) {
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed64Type)
	e.b = protowire.AppendFixed64(e.b, math.Float64bits(v))
}

func (e *encoder) rawString(num protowire.Number, s string) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, s)
}

func (e *encoder) string(num protowire.Number, s string) {
	if s != "" {
		e.rawString(num, s)
	}
}

func (e *encoder) strings(num protowire.Number, ss []string) {
	for _, s := range ss {
		e.rawString(num, s)
	}
}

func (e *encoder) rawBytes(num protowire.Number, b []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, b)
}

func (e *encoder) bytes(num protowire.Number, b []byte) {
	if len(b) > 0 {
		e.rawBytes(num, b)
	}
}

// int32s appends a packed repeated field.
func (e *encoder) int32s(num protowire.Number, vs []int32) {
	if len(vs) == 0 {
		return
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	e.rawBytes(num, packed)
}

func (e *encoder) enum(num protowire.Number, en *enum, name string) {
	if name == "" || e.err != nil {
		return
	}
	v, ok := en.numbers[name]
	if !ok {
		e.err = fmt.Errorf("%s %q: %w", en.name, name, ErrUnknownEnum)
		return
	}
	e.int32(num, v)
}

func (e *encoder) message(num protowire.Number, m wireMessage) {
	if e.err != nil {
		return
	}
	inner := &encoder{}
	m.encode(inner)
	if inner.err != nil {
		e.err = inner.err
		return
	}
	e.rawBytes(num, inner.b)
}

// stringMap appends a map as entries sorted by key.
func (e *encoder) stringMap(num protowire.Number, m map[string]string) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		entry := &encoder{}
		entry.string(1, k)
		entry.string(2, m[k])
		e.rawBytes(num, entry.b)
	}
}

func (e *encoder) valueMap(num protowire.Number, m map[string]*Value) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		entry := &encoder{}
		entry.string(1, k)
		encodeMessage(entry, 2, m[k])
		if entry.err != nil {
			e.err = entry.err
			return
		}
		e.rawBytes(num, entry.b)
	}
}

// encodeMessage appends m unless it is nil.
func encodeMessage[T any, P interface {
	*T
	wireMessage
}](e *encoder, num protowire.Number, m P) {
	if m != nil {
		e.message(num, m)
	}
}

// encodeMessages appends a repeated field. Nil elements are sent empty.
func encodeMessages[T any, P interface {
	*T
	wireMessage
}](e *encoder, num protowire.Number, ms []P) {
	for _, m := range ms {
		if m == nil {
			m = P(new(T))
		}
		e.message(num, m)
	}
}

// field is a single decoded field. Varint and fixed values are held in v,
// length-delimited ones in b.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	b   []byte
}

func wireError(n int) error {
	return fmt.Errorf("%w: %w", ErrMalformedMessage, protowire.ParseError(n))
}

// decodeFields calls fn with each field of b. Unknown fields are left to
// fn to ignore.
func decodeFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.v, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.v = uint64(v)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return wireError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) int64() int64 {
	return int64(f.v)
}

func (f field) int32() int32 {
	return int32(f.v)
}

func (f field) bool() bool {
	return protowire.DecodeBool(f.v)
}

func (f field) double() float64 {
	return math.Float64frombits(f.v)
}

func (f field) string() string {
	return string(f.b)
}

// bytes copies the value out of the buffer being decoded.
func (f field) bytes() []byte {
	return append([]byte{}, f.b...)
}

// int32s appends the values of a repeated field, packed or not.
func (f field) int32s(vs []int32) ([]int32, error) {
	if f.typ != protowire.BytesType {
		return append(vs, f.int32()), nil
	}
	for b := f.b; len(b) > 0; {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return vs, wireError(n)
		}
		vs = append(vs, int32(v))
		b = b[n:]
	}
	return vs, nil
}

func (f field) enum(en *enum) (string, error) {
	name, ok := en.names[f.int32()]
	if !ok {
		return "", fmt.Errorf("%s %d: %w", en.name, f.int32(), ErrUnknownEnum)
	}
	return name, nil
}

func decodeMessage[T any, P interface {
	*T
	wireMessage
}](f field) (P, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("field %d: %w", f.num, ErrMalformedMessage)
	}
	m := P(new(T))
	if err := m.decode(f.b); err != nil {
		return nil, err
	}
	return m, nil
}

func appendMessage[T any, P interface {
	*T
	wireMessage
}](ms []P, f field) ([]P, error) {
	m, err := decodeMessage[T, P](f)
	if err != nil {
		return ms, err
	}
	return append(ms, m), nil
}

func decodeStringEntry(f field) (string, string, error) {
	var k, v string
	err := decodeFields(f.b, func(g field) error {
		switch g.num {
		case 1:
			k = g.string()
		case 2:
			v = g.string()
		}
		return nil
	})
	return k, v, err
}

func decodeValueEntry(f field) (string, *Value, error) {
	var k string
	var v *Value
	err := decodeFields(f.b, func(g field) (err error) {
		switch g.num {
		case 1:
			k = g.string()
		case 2:
			v, err = decodeMessage[Value](g)
		}
		return err
	})
	return k, v, err
}

// int32Value is the wrapper message of optional int32 fields.
type int32Value struct {
	value int32
}

func (w *int32Value) encode(e *encoder) {
	e.int32(1, w.value)
}

func (w *int32Value) decode(b []byte) error {
	return decodeFields(b, func(f field) error {
		if f.num == 1 {
			w.value = f.int32()
		}
		return nil
	})
}
