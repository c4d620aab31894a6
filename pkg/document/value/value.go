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

// Package value provides the closed set of field values stored in documents,
// along with their canonical ordering and equality.
package value

import (
	"fmt"
	"math"
	gotime "time"

	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
)

// Type is the kind of a value. Types are declared in their sort order: when
// two values of different types are compared, the one with the smaller type
// sorts first. Integers and doubles share the number slot.
type Type int

// The types of values.
const (
	TypeNull Type = iota
	TypeBoolean
	TypeNumber
	TypeTimestamp
	TypeServerTimestamp
	TypeString
	TypeBytes
	TypeReference
	TypeGeoPoint
	TypeArray
	TypeVector
	TypeMap
)

// String returns the name of the type.
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeTimestamp:
		return "timestamp"
	case TypeServerTimestamp:
		return "server_timestamp"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeReference:
		return "reference"
	case TypeGeoPoint:
		return "geo_point"
	case TypeArray:
		return "array"
	case TypeVector:
		return "vector"
	case TypeMap:
		return "map"
	}
	return fmt.Sprintf("type_%d", int(t))
}

// Value is a field value. The set of implementations is closed; every
// function over values switches on the concrete type.
type Value interface {
	Type() Type
	isValue()
}

// Null is the null value.
type Null struct{}

// Boolean is a boolean value.
type Boolean bool

// Integer is a 64-bit integer value.
type Integer int64

// Double is a 64-bit floating point value.
type Double float64

// Timestamp is a timestamp value.
type Timestamp time.Timestamp

// ServerTimestamp is the local placeholder of a server timestamp transform
// that has not been resolved by the backend yet. It keeps the local write
// time and the value the field held before the transform.
type ServerTimestamp struct {
	LocalWriteTime time.Timestamp
	Previous       Value
}

// String is a UTF-8 string value.
type String string

// Bytes is a binary value.
type Bytes []byte

// Reference points to another document.
type Reference struct {
	DatabaseID key.DatabaseID
	Key        key.Key
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Array is an ordered list of values.
type Array []Value

// Vector is an embedding vector.
type Vector []float64

// Map is a set of named values.
type Map map[string]Value

func (Null) Type() Type            { return TypeNull }
func (Boolean) Type() Type         { return TypeBoolean }
func (Integer) Type() Type         { return TypeNumber }
func (Double) Type() Type          { return TypeNumber }
func (Timestamp) Type() Type       { return TypeTimestamp }
func (ServerTimestamp) Type() Type { return TypeServerTimestamp }
func (String) Type() Type          { return TypeString }
func (Bytes) Type() Type           { return TypeBytes }
func (Reference) Type() Type       { return TypeReference }
func (GeoPoint) Type() Type        { return TypeGeoPoint }
func (Array) Type() Type           { return TypeArray }
func (Vector) Type() Type          { return TypeVector }
func (Map) Type() Type             { return TypeMap }

func (Null) isValue()            {}
func (Boolean) isValue()         {}
func (Integer) isValue()         {}
func (Double) isValue()          {}
func (Timestamp) isValue()       {}
func (ServerTimestamp) isValue() {}
func (String) isValue()          {}
func (Bytes) isValue()           {}
func (Reference) isValue()       {}
func (GeoPoint) isValue()        {}
func (Array) isValue()           {}
func (Vector) isValue()          {}
func (Map) isValue()             {}

// IsNumber returns whether v is an Integer or a Double.
func IsNumber(v Value) bool {
	switch v.(type) {
	case Integer, Double:
		return true
	}
	return false
}

// IsNaN returns whether v is a NaN double.
func IsNaN(v Value) bool {
	d, ok := v.(Double)
	return ok && math.IsNaN(float64(d))
}

// IsNull returns whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// From converts a Go value into a Value. It accepts Values, nil, booleans,
// every integer and float kind, strings, byte slices, time.Time, timestamps,
// document keys, and slices and maps built from those.
func From(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case bool:
		return Boolean(t), nil
	case int:
		return Integer(t), nil
	case int8:
		return Integer(t), nil
	case int16:
		return Integer(t), nil
	case int32:
		return Integer(t), nil
	case int64:
		return Integer(t), nil
	case uint8:
		return Integer(t), nil
	case uint16:
		return Integer(t), nil
	case uint32:
		return Integer(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("uint64 %d overflows int64", t)
		}
		return Integer(t), nil
	case float32:
		return Double(t), nil
	case float64:
		return Double(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case gotime.Time:
		return Timestamp(time.FromTime(t)), nil
	case time.Timestamp:
		return Timestamp(t), nil
	case []any:
		arr := make(Array, 0, len(t))
		for _, elem := range t {
			converted, err := From(elem)
			if err != nil {
				return nil, err
			}
			arr = append(arr, converted)
		}
		return arr, nil
	case map[string]any:
		m := make(Map, len(t))
		for k, elem := range t {
			converted, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			m[k] = converted
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// MustFrom is like From but panics on unsupported input.
func MustFrom(v any) Value {
	converted, err := From(v)
	if err != nil {
		panic(err)
	}
	return converted
}
