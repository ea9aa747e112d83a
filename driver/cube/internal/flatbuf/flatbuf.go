// Copyright (c) 2026 Cube ADBC Driver Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package flatbuf holds read-side accessors for the Apache Arrow format
// FlatBuffers (Message.fbs and Schema.fbs), matching the layout produced by
// the FlatBuffers compiler. Only the tables the Cube IPC decoder consumes
// are carried here; arrow-go keeps its equivalent copy in an internal
// package that cannot be imported.
package flatbuf

// MetadataVersion corresponds to the Arrow IPC metadata version enum.
type MetadataVersion int16

const (
	MetadataVersionV1 MetadataVersion = 0
	MetadataVersionV2 MetadataVersion = 1
	MetadataVersionV3 MetadataVersion = 2
	MetadataVersionV4 MetadataVersion = 3
	MetadataVersionV5 MetadataVersion = 4
)

// MessageHeader is the union of toplevel IPC message payloads.
type MessageHeader byte

const (
	MessageHeaderNONE            MessageHeader = 0
	MessageHeaderSchema          MessageHeader = 1
	MessageHeaderDictionaryBatch MessageHeader = 2
	MessageHeaderRecordBatch     MessageHeader = 3
	MessageHeaderTensor          MessageHeader = 4
	MessageHeaderSparseTensor    MessageHeader = 5
)

var EnumNamesMessageHeader = map[MessageHeader]string{
	MessageHeaderNONE:            "NONE",
	MessageHeaderSchema:          "Schema",
	MessageHeaderDictionaryBatch: "DictionaryBatch",
	MessageHeaderRecordBatch:     "RecordBatch",
	MessageHeaderTensor:          "Tensor",
	MessageHeaderSparseTensor:    "SparseTensor",
}

func (v MessageHeader) String() string {
	if s, ok := EnumNamesMessageHeader[v]; ok {
		return s
	}
	return "MessageHeader(UNKNOWN)"
}

// Type is the union of logical type tables a Field may carry.
type Type byte

const (
	TypeNONE            Type = 0
	TypeNull            Type = 1
	TypeInt             Type = 2
	TypeFloatingPoint   Type = 3
	TypeBinary          Type = 4
	TypeUtf8            Type = 5
	TypeBool            Type = 6
	TypeDecimal         Type = 7
	TypeDate            Type = 8
	TypeTime            Type = 9
	TypeTimestamp       Type = 10
	TypeInterval        Type = 11
	TypeList            Type = 12
	TypeStruct_         Type = 13
	TypeUnion           Type = 14
	TypeFixedSizeBinary Type = 15
	TypeFixedSizeList   Type = 16
	TypeMap             Type = 17
	TypeDuration        Type = 18
	TypeLargeBinary     Type = 19
	TypeLargeUtf8       Type = 20
	TypeLargeList       Type = 21
	TypeRunEndEncoded   Type = 22
	TypeBinaryView      Type = 23
	TypeUtf8View        Type = 24
	TypeListView        Type = 25
	TypeLargeListView   Type = 26
)

var EnumNamesType = map[Type]string{
	TypeNONE:            "NONE",
	TypeNull:            "Null",
	TypeInt:             "Int",
	TypeFloatingPoint:   "FloatingPoint",
	TypeBinary:          "Binary",
	TypeUtf8:            "Utf8",
	TypeBool:            "Bool",
	TypeDecimal:         "Decimal",
	TypeDate:            "Date",
	TypeTime:            "Time",
	TypeTimestamp:       "Timestamp",
	TypeInterval:        "Interval",
	TypeList:            "List",
	TypeStruct_:         "Struct_",
	TypeUnion:           "Union",
	TypeFixedSizeBinary: "FixedSizeBinary",
	TypeFixedSizeList:   "FixedSizeList",
	TypeMap:             "Map",
	TypeDuration:        "Duration",
	TypeLargeBinary:     "LargeBinary",
	TypeLargeUtf8:       "LargeUtf8",
	TypeLargeList:       "LargeList",
	TypeRunEndEncoded:   "RunEndEncoded",
	TypeBinaryView:      "BinaryView",
	TypeUtf8View:        "Utf8View",
	TypeListView:        "ListView",
	TypeLargeListView:   "LargeListView",
}

func (v Type) String() string {
	if s, ok := EnumNamesType[v]; ok {
		return s
	}
	return "Type(UNKNOWN)"
}

// Precision qualifies a FloatingPoint type.
type Precision int16

const (
	PrecisionHALF   Precision = 0
	PrecisionSINGLE Precision = 1
	PrecisionDOUBLE Precision = 2
)

// DateUnit qualifies a Date type.
type DateUnit int16

const (
	DateUnitDAY         DateUnit = 0
	DateUnitMILLISECOND DateUnit = 1
)

// TimeUnit qualifies Time, Timestamp and Duration types.
type TimeUnit int16

const (
	TimeUnitSECOND      TimeUnit = 0
	TimeUnitMILLISECOND TimeUnit = 1
	TimeUnitMICROSECOND TimeUnit = 2
	TimeUnitNANOSECOND  TimeUnit = 3
)

// Endianness of buffers produced by the emitting system.
type Endianness int16

const (
	EndiannessLittle Endianness = 0
	EndiannessBig    Endianness = 1
)

// CompressionType identifies the codec of a compressed message body.
type CompressionType int8

const (
	CompressionTypeLZ4_FRAME CompressionType = 0
	CompressionTypeZSTD      CompressionType = 1
)

// BodyCompressionMethod describes the granularity of body compression.
type BodyCompressionMethod int8

const (
	BodyCompressionMethodBUFFER BodyCompressionMethod = 0
)
