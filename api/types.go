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

// Package api provides the messages exchanged with the backend over the
// Listen and Write streams, and the gRPC service carrying them.
package api

// Timestamp is a point in time on the wire.
type Timestamp struct {
	Seconds int64 `json:"seconds" bson:"seconds"`
	Nanos   int32 `json:"nanos" bson:"nanos"`
}

// NullValue marks a null value.
type NullValue struct{}

// Double is a float64 on the wire.
type Double float64

// LatLng is a geo point on the wire.
type LatLng struct {
	Latitude  Double `json:"latitude" bson:"latitude"`
	Longitude Double `json:"longitude" bson:"longitude"`
}

// ArrayValue is a list of values.
type ArrayValue struct {
	Values []*Value `json:"values,omitempty" bson:"values,omitempty"`
}

// MapValue is a set of named values.
type MapValue struct {
	Fields map[string]*Value `json:"fields,omitempty" bson:"fields,omitempty"`
}

// Value holds exactly one of its fields.
type Value struct {
	NullValue      *NullValue  `json:"nullValue,omitempty" bson:"nullValue,omitempty"`
	BooleanValue   *bool       `json:"booleanValue,omitempty" bson:"booleanValue,omitempty"`
	IntegerValue   *int64      `json:"integerValue,string,omitempty" bson:"integerValue,omitempty"`
	DoubleValue    *Double     `json:"doubleValue,omitempty" bson:"doubleValue,omitempty"`
	TimestampValue *Timestamp  `json:"timestampValue,omitempty" bson:"timestampValue,omitempty"`
	StringValue    *string     `json:"stringValue,omitempty" bson:"stringValue,omitempty"`
	BytesValue     *[]byte     `json:"bytesValue,omitempty" bson:"bytesValue,omitempty"`
	ReferenceValue *string     `json:"referenceValue,omitempty" bson:"referenceValue,omitempty"`
	GeoPointValue  *LatLng     `json:"geoPointValue,omitempty" bson:"geoPointValue,omitempty"`
	ArrayValue     *ArrayValue `json:"arrayValue,omitempty" bson:"arrayValue,omitempty"`
	MapValue       *MapValue   `json:"mapValue,omitempty" bson:"mapValue,omitempty"`
}

// Document is a document on the wire.
type Document struct {
	Name       string            `json:"name" bson:"name"`
	Fields     map[string]*Value `json:"fields,omitempty" bson:"fields,omitempty"`
	CreateTime *Timestamp        `json:"createTime,omitempty" bson:"createTime,omitempty"`
	UpdateTime *Timestamp        `json:"updateTime,omitempty" bson:"updateTime,omitempty"`
}

// Precondition guards a write.
type Precondition struct {
	Exists     *bool      `json:"exists,omitempty" bson:"exists,omitempty"`
	UpdateTime *Timestamp `json:"updateTime,omitempty" bson:"updateTime,omitempty"`
}

// DocumentMask lists field paths.
type DocumentMask struct {
	FieldPaths []string `json:"fieldPaths" bson:"fieldPaths"`
}

// ServerValueRequestTime sets a field to the commit time.
const ServerValueRequestTime = "REQUEST_TIME"

// FieldTransform changes one field based on its current value.
type FieldTransform struct {
	FieldPath             string      `json:"fieldPath" bson:"fieldPath"`
	SetToServerValue      string      `json:"setToServerValue,omitempty" bson:"setToServerValue,omitempty"`
	Increment             *Value      `json:"increment,omitempty" bson:"increment,omitempty"`
	AppendMissingElements *ArrayValue `json:"appendMissingElements,omitempty" bson:"appendMissingElements,omitempty"`
	RemoveAllFromArray    *ArrayValue `json:"removeAllFromArray,omitempty" bson:"removeAllFromArray,omitempty"`
}

// Write is a single mutation on the wire. Exactly one of Update, Delete and
// Verify is set.
type Write struct {
	Update           *Document         `json:"update,omitempty" bson:"update,omitempty"`
	Delete           string            `json:"delete,omitempty" bson:"delete,omitempty"`
	Verify           string            `json:"verify,omitempty" bson:"verify,omitempty"`
	UpdateMask       *DocumentMask     `json:"updateMask,omitempty" bson:"updateMask,omitempty"`
	UpdateTransforms []*FieldTransform `json:"updateTransforms,omitempty" bson:"updateTransforms,omitempty"`
	CurrentDocument  *Precondition     `json:"currentDocument,omitempty" bson:"currentDocument,omitempty"`
}

// WriteResult is the outcome of one write.
type WriteResult struct {
	UpdateTime       *Timestamp `json:"updateTime,omitempty"`
	TransformResults []*Value   `json:"transformResults,omitempty"`
}

// WriteRequest is sent on the Write stream. The first request of a stream
// carries no writes and starts the handshake.
type WriteRequest struct {
	Database    string            `json:"database"`
	StreamID    string            `json:"streamId,omitempty"`
	Writes      []*Write          `json:"writes,omitempty"`
	StreamToken []byte            `json:"streamToken,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// WriteResponse is received on the Write stream.
type WriteResponse struct {
	StreamID     string         `json:"streamId,omitempty"`
	StreamToken  []byte         `json:"streamToken,omitempty"`
	WriteResults []*WriteResult `json:"writeResults,omitempty"`
	CommitTime   *Timestamp     `json:"commitTime,omitempty"`
}

// CollectionSelector selects the collections a query reads.
type CollectionSelector struct {
	CollectionID   string `json:"collectionId" bson:"collectionId"`
	AllDescendants bool   `json:"allDescendants,omitempty" bson:"allDescendants,omitempty"`
}

// FieldReference names a field.
type FieldReference struct {
	FieldPath string `json:"fieldPath" bson:"fieldPath"`
}

// The operators of filters on the wire.
const (
	OpLessThan           = "LESS_THAN"
	OpLessThanOrEqual    = "LESS_THAN_OR_EQUAL"
	OpEqual              = "EQUAL"
	OpNotEqual           = "NOT_EQUAL"
	OpGreaterThanOrEqual = "GREATER_THAN_OR_EQUAL"
	OpGreaterThan        = "GREATER_THAN"
	OpArrayContains      = "ARRAY_CONTAINS"
	OpArrayContainsAny   = "ARRAY_CONTAINS_ANY"
	OpIn                 = "IN"
	OpNotIn              = "NOT_IN"

	OpIsNaN     = "IS_NAN"
	OpIsNull    = "IS_NULL"
	OpIsNotNaN  = "IS_NOT_NAN"
	OpIsNotNull = "IS_NOT_NULL"

	OpAnd = "AND"
	OpOr  = "OR"
)

// FieldFilter compares a field with a value.
type FieldFilter struct {
	Field *FieldReference `json:"field" bson:"field"`
	Op    string          `json:"op" bson:"op"`
	Value *Value          `json:"value" bson:"value"`
}

// UnaryFilter checks a field for null or NaN.
type UnaryFilter struct {
	Op    string          `json:"op" bson:"op"`
	Field *FieldReference `json:"field" bson:"field"`
}

// CompositeFilter joins filters.
type CompositeFilter struct {
	Op      string    `json:"op" bson:"op"`
	Filters []*Filter `json:"filters" bson:"filters"`
}

// Filter holds exactly one of its fields.
type Filter struct {
	CompositeFilter *CompositeFilter `json:"compositeFilter,omitempty" bson:"compositeFilter,omitempty"`
	FieldFilter     *FieldFilter     `json:"fieldFilter,omitempty" bson:"fieldFilter,omitempty"`
	UnaryFilter     *UnaryFilter     `json:"unaryFilter,omitempty" bson:"unaryFilter,omitempty"`
}

// The directions of orderings on the wire.
const (
	DirectionAscending  = "ASCENDING"
	DirectionDescending = "DESCENDING"
)

// Order orders results by one field.
type Order struct {
	Field     *FieldReference `json:"field" bson:"field"`
	Direction string          `json:"direction" bson:"direction"`
}

// Cursor is a position in the results of a query.
type Cursor struct {
	Values []*Value `json:"values" bson:"values"`
	Before bool     `json:"before,omitempty" bson:"before,omitempty"`
}

// StructuredQuery is a query on the wire.
type StructuredQuery struct {
	From    []*CollectionSelector `json:"from" bson:"from"`
	Where   *Filter               `json:"where,omitempty" bson:"where,omitempty"`
	OrderBy []*Order              `json:"orderBy,omitempty" bson:"orderBy,omitempty"`
	StartAt *Cursor               `json:"startAt,omitempty" bson:"startAt,omitempty"`
	EndAt   *Cursor               `json:"endAt,omitempty" bson:"endAt,omitempty"`
	Limit   *int32                `json:"limit,omitempty" bson:"limit,omitempty"`
}

// QueryTarget is a target selecting documents with a query.
type QueryTarget struct {
	Parent          string           `json:"parent" bson:"parent"`
	StructuredQuery *StructuredQuery `json:"structuredQuery" bson:"structuredQuery"`
}

// DocumentsTarget is a target selecting documents by name.
type DocumentsTarget struct {
	Documents []string `json:"documents" bson:"documents"`
}

// Target is a watch subscription. Exactly one of Query and Documents is
// set, and at most one of ResumeToken and ReadTime.
type Target struct {
	TargetID      int32            `json:"targetId" bson:"targetId"`
	Query         *QueryTarget     `json:"query,omitempty" bson:"query,omitempty"`
	Documents     *DocumentsTarget `json:"documents,omitempty" bson:"documents,omitempty"`
	ResumeToken   []byte           `json:"resumeToken,omitempty" bson:"resumeToken,omitempty"`
	ReadTime      *Timestamp       `json:"readTime,omitempty" bson:"readTime,omitempty"`
	ExpectedCount *int32           `json:"expectedCount,omitempty" bson:"expectedCount,omitempty"`
}

// ListenRequest is sent on the Listen stream.
type ListenRequest struct {
	Database     string            `json:"database"`
	AddTarget    *Target           `json:"addTarget,omitempty"`
	RemoveTarget int32             `json:"removeTarget,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// The kinds of target changes on the wire.
const (
	TargetChangeNoChange = "NO_CHANGE"
	TargetChangeAdd      = "ADD"
	TargetChangeRemove   = "REMOVE"
	TargetChangeCurrent  = "CURRENT"
	TargetChangeReset    = "RESET"
)

// Status is an error attached to a target change.
type Status struct {
	Code    int32  `json:"code"`
	Message string `json:"message,omitempty"`
}

// TargetChange reports a change in the state of targets.
type TargetChange struct {
	TargetChangeType string     `json:"targetChangeType,omitempty"`
	TargetIDs        []int32    `json:"targetIds,omitempty"`
	Cause            *Status    `json:"cause,omitempty"`
	ResumeToken      []byte     `json:"resumeToken,omitempty"`
	ReadTime         *Timestamp `json:"readTime,omitempty"`
}

// DocumentChange reports a document that was added or modified.
type DocumentChange struct {
	Document         *Document `json:"document"`
	TargetIDs        []int32   `json:"targetIds,omitempty"`
	RemovedTargetIDs []int32   `json:"removedTargetIds,omitempty"`
}

// DocumentDelete reports a document that was deleted.
type DocumentDelete struct {
	Document         string     `json:"document"`
	RemovedTargetIDs []int32    `json:"removedTargetIds,omitempty"`
	ReadTime         *Timestamp `json:"readTime,omitempty"`
}

// DocumentRemove reports a document that left targets without being deleted.
type DocumentRemove struct {
	Document         string     `json:"document"`
	RemovedTargetIDs []int32    `json:"removedTargetIds,omitempty"`
	ReadTime         *Timestamp `json:"readTime,omitempty"`
}

// BitSequence is the bitmap of a bloom filter.
type BitSequence struct {
	Bitmap  []byte `json:"bitmap,omitempty"`
	Padding int32  `json:"padding,omitempty"`
}

// BloomFilter is a bloom filter over document names.
type BloomFilter struct {
	Bits      *BitSequence `json:"bits,omitempty"`
	HashCount int32        `json:"hashCount,omitempty"`
}

// ExistenceFilter reports the number of documents matching a target.
type ExistenceFilter struct {
	TargetID       int32        `json:"targetId"`
	Count          int32        `json:"count"`
	UnchangedNames *BloomFilter `json:"unchangedNames,omitempty"`
}

// ListenResponse is received on the Listen stream. Exactly one of its
// fields is set.
type ListenResponse struct {
	TargetChange   *TargetChange    `json:"targetChange,omitempty"`
	DocumentChange *DocumentChange  `json:"documentChange,omitempty"`
	DocumentDelete *DocumentDelete  `json:"documentDelete,omitempty"`
	DocumentRemove *DocumentRemove  `json:"documentRemove,omitempty"`
	Filter         *ExistenceFilter `json:"filter,omitempty"`
}
