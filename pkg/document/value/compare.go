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

package value

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// typeOrder returns the sort slot of v. nil is treated as Null.
func typeOrder(v Value) Type {
	if v == nil {
		return TypeNull
	}
	return v.Type()
}

// Compare totally orders values: first by type, then by content.
func Compare(a, b Value) int {
	ta, tb := typeOrder(a), typeOrder(b)
	if ta != tb {
		return compareInts(int64(ta), int64(tb))
	}

	switch ta {
	case TypeNull:
		return 0
	case TypeBoolean:
		return compareBools(bool(a.(Boolean)), bool(b.(Boolean)))
	case TypeNumber:
		return compareNumbers(a, b)
	case TypeTimestamp:
		return a.(Timestamp).Compare(b.(Timestamp))
	case TypeServerTimestamp:
		return a.(ServerTimestamp).LocalWriteTime.Compare(b.(ServerTimestamp).LocalWriteTime)
	case TypeString:
		return strings.Compare(string(a.(String)), string(b.(String)))
	case TypeBytes:
		return bytes.Compare(a.(Bytes), b.(Bytes))
	case TypeReference:
		return compareReferences(a.(Reference), b.(Reference))
	case TypeGeoPoint:
		return compareGeoPoints(a.(GeoPoint), b.(GeoPoint))
	case TypeArray:
		return compareArrays(a.(Array), b.(Array))
	case TypeVector:
		return compareVectors(a.(Vector), b.(Vector))
	case TypeMap:
		return compareMaps(a.(Map), b.(Map))
	}
	panic(fmt.Sprintf("unknown value type %d", ta))
}

// Equal reports whether both values are equal. Unlike Compare, an Integer
// never equals a Double, and NaN equals NaN.
func Equal(a, b Value) bool {
	if typeOrder(a) != typeOrder(b) {
		return false
	}

	switch av := a.(type) {
	case nil, Null:
		return true
	case Integer:
		bv, ok := b.(Integer)
		return ok && av == bv
	case Double:
		bv, ok := b.(Double)
		if !ok {
			return false
		}
		if math.IsNaN(float64(av)) && math.IsNaN(float64(bv)) {
			return true
		}
		return av == bv
	case ServerTimestamp:
		return av.LocalWriteTime == b.(ServerTimestamp).LocalWriteTime
	case Array:
		bv := b.(Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv := b.(Map)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	case Vector:
		bv := b.(Vector)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if compareDoubles(av[i], bv[i]) != 0 {
				return false
			}
		}
		return true
	}

	return Compare(a, b) == 0
}

// CanonicalID returns a string that identifies the value, used to build
// canonical ids of queries and targets.
func CanonicalID(v Value) string {
	var sb strings.Builder
	writeCanonicalID(&sb, v)
	return sb.String()
}

func writeCanonicalID(sb *strings.Builder, v Value) {
	switch t := v.(type) {
	case nil, Null:
		sb.WriteString("null")
	case Boolean:
		sb.WriteString(strconv.FormatBool(bool(t)))
	case Integer:
		sb.WriteString(strconv.FormatInt(int64(t), 10))
	case Double:
		sb.WriteString(strconv.FormatFloat(float64(t), 'g', -1, 64))
	case Timestamp:
		fmt.Fprintf(sb, "time(%d,%d)", t.Seconds, t.Nanos)
	case ServerTimestamp:
		fmt.Fprintf(sb, "server_timestamp(%d,%d)", t.LocalWriteTime.Seconds, t.LocalWriteTime.Nanos)
	case String:
		sb.WriteString(string(t))
	case Bytes:
		fmt.Fprintf(sb, "%x", []byte(t))
	case Reference:
		sb.WriteString(t.Key.String())
	case GeoPoint:
		fmt.Fprintf(sb, "geo(%g,%g)", t.Latitude, t.Longitude)
	case Array:
		sb.WriteString("[")
		for i, elem := range t {
			if i > 0 {
				sb.WriteString(",")
			}
			writeCanonicalID(sb, elem)
		}
		sb.WriteString("]")
	case Vector:
		sb.WriteString("vector[")
		for i, elem := range t {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(strconv.FormatFloat(elem, 'g', -1, 64))
		}
		sb.WriteString("]")
	case Map:
		sb.WriteString("{")
		for i, k := range sortedKeys(t) {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(k)
			sb.WriteString(":")
			writeCanonicalID(sb, t[k])
		}
		sb.WriteString("}")
	}
}

// Compare orders timestamps chronologically.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t.Seconds != other.Seconds:
		return compareInts(t.Seconds, other.Seconds)
	default:
		return compareInts(int64(t.Nanos), int64(other.Nanos))
	}
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// compareDoubles orders NaN before every other number and equates -0 and 0.
func compareDoubles(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareMixed compares a double with an integer without losing precision
// for integers beyond 2^53.
func compareMixed(d float64, i int64) int {
	if math.IsNaN(d) {
		return -1
	}
	if d < -9223372036854775808.0 {
		return -1
	}
	if d >= 9223372036854775808.0 {
		return 1
	}
	if c := compareDoubles(d, float64(i)); c != 0 {
		return c
	}
	return compareInts(int64(d), i)
}

func compareNumbers(a, b Value) int {
	switch av := a.(type) {
	case Integer:
		switch bv := b.(type) {
		case Integer:
			return compareInts(int64(av), int64(bv))
		case Double:
			return -compareMixed(float64(bv), int64(av))
		}
	case Double:
		switch bv := b.(type) {
		case Integer:
			return compareMixed(float64(av), int64(bv))
		case Double:
			return compareDoubles(float64(av), float64(bv))
		}
	}
	panic(fmt.Sprintf("not numbers: %T, %T", a, b))
}

func compareReferences(a, b Reference) int {
	if c := a.DatabaseID.Compare(b.DatabaseID); c != 0 {
		return c
	}
	return a.Key.Compare(b.Key)
}

func compareGeoPoints(a, b GeoPoint) int {
	if c := compareDoubles(a.Latitude, b.Latitude); c != 0 {
		return c
	}
	return compareDoubles(a.Longitude, b.Longitude)
}

func compareArrays(a, b Array) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInts(int64(len(a)), int64(len(b)))
}

// compareVectors orders shorter vectors first, then element-wise.
func compareVectors(a, b Vector) int {
	if c := compareInts(int64(len(a)), int64(len(b))); c != 0 {
		return c
	}
	for i := range a {
		if c := compareDoubles(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func compareMaps(a, b Map) int {
	aKeys, bKeys := sortedKeys(a), sortedKeys(b)
	n := min(len(aKeys), len(bKeys))
	for i := 0; i < n; i++ {
		if c := strings.Compare(aKeys[i], bKeys[i]); c != 0 {
			return c
		}
		if c := Compare(a[aKeys[i]], b[bKeys[i]]); c != 0 {
			return c
		}
	}
	return compareInts(int64(len(aKeys)), int64(len(bKeys)))
}

func sortedKeys(m Map) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
