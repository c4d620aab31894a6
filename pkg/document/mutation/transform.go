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
	"math"

	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
)

// TransformOperation is a change to a field that is computed from its
// current value when the mutation is applied.
type TransformOperation interface {
	isTransformOperation()
}

// ServerTimestamp sets the field to the commit time of the write.
type ServerTimestamp struct{}

// ArrayUnion appends elements not already present in the array.
type ArrayUnion struct {
	Elements []value.Value
}

// ArrayRemove removes every occurrence of the elements from the array.
type ArrayRemove struct {
	Elements []value.Value
}

// NumericIncrement adds Operand to the current number.
type NumericIncrement struct {
	Operand value.Value
}

func (ServerTimestamp) isTransformOperation()  {}
func (ArrayUnion) isTransformOperation()       {}
func (ArrayRemove) isTransformOperation()      {}
func (NumericIncrement) isTransformOperation() {}

// FieldTransform applies a transform operation to one field.
type FieldTransform struct {
	Field     value.FieldPath
	Operation TransformOperation
}

// applyTransformToLocalView computes the value a field has locally after
// the transform, given its previous value.
func applyTransformToLocalView(
	op TransformOperation,
	previous value.Value,
	localWriteTime time.Timestamp,
) value.Value {
	switch o := op.(type) {
	case ServerTimestamp:
		if ts, ok := previous.(value.ServerTimestamp); ok {
			previous = ts.Previous
		}
		return value.ServerTimestamp{LocalWriteTime: localWriteTime, Previous: previous}
	case ArrayUnion:
		return arrayUnion(previous, o.Elements)
	case ArrayRemove:
		return arrayRemove(previous, o.Elements)
	case NumericIncrement:
		return increment(previous, o.Operand)
	}
	return previous
}

// applyTransformToRemoteDocument computes the value a field has after the
// backend applied the transform. The backend does not return results for
// array transforms, so those are recomputed locally.
func applyTransformToRemoteDocument(
	op TransformOperation,
	previous value.Value,
	result value.Value,
) value.Value {
	switch o := op.(type) {
	case ArrayUnion:
		return arrayUnion(previous, o.Elements)
	case ArrayRemove:
		return arrayRemove(previous, o.Elements)
	}
	if result == nil {
		return value.Null{}
	}
	return result
}

func coercedArray(v value.Value) value.Array {
	if arr, ok := v.(value.Array); ok {
		return append(value.Array{}, arr...)
	}
	return value.Array{}
}

func arrayUnion(previous value.Value, elements []value.Value) value.Value {
	result := coercedArray(previous)
	for _, elem := range elements {
		found := false
		for _, existing := range result {
			if value.Equal(existing, elem) {
				found = true
				break
			}
		}
		if !found {
			result = append(result, elem)
		}
	}
	return result
}

func arrayRemove(previous value.Value, elements []value.Value) value.Value {
	var result value.Array
	for _, existing := range coercedArray(previous) {
		removed := false
		for _, elem := range elements {
			if value.Equal(existing, elem) {
				removed = true
				break
			}
		}
		if !removed {
			result = append(result, existing)
		}
	}
	if result == nil {
		result = value.Array{}
	}
	return result
}

// increment adds operand to previous. Non-numeric previous values count as
// zero. Integer sums saturate instead of overflowing.
func increment(previous value.Value, operand value.Value) value.Value {
	base := previous
	if !value.IsNumber(base) {
		base = value.Integer(0)
	}

	bi, baseIsInt := base.(value.Integer)
	oi, operandIsInt := operand.(value.Integer)
	if baseIsInt && operandIsInt {
		sum := int64(bi) + int64(oi)
		switch {
		case oi > 0 && sum < int64(bi):
			return value.Integer(math.MaxInt64)
		case oi < 0 && sum > int64(bi):
			return value.Integer(math.MinInt64)
		}
		return value.Integer(sum)
	}
	return value.Double(asFloat(base) + asFloat(operand))
}

func asFloat(v value.Value) float64 {
	switch n := v.(type) {
	case value.Integer:
		return float64(n)
	case value.Double:
		return float64(n)
	}
	return 0
}
