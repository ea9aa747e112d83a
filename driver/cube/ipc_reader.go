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

package cube

import (
	"encoding/binary"
	"io"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/cube-js/cube-adbc-go/driver/cube/internal/flatbuf"
	"github.com/cube-js/cube-adbc-go/internal/driverbase"
)

// Arrow IPC stream framing: every message starts with this marker followed
// by a little-endian metadata size; a size of zero is end-of-stream.
const ipcContinuationMarker = 0xFFFFFFFF

// ipcStreamReader decodes one Arrow IPC stream held fully in memory: a
// Schema message followed by zero or more RecordBatch messages and an
// end-of-stream marker. The schema is decoded eagerly at construction;
// batches are decoded one per next call. Produced records reference the
// backing buffer directly (no copies); they keep it alive through their
// retained buffers.
type ipcStreamReader struct {
	buf    []byte
	cursor int

	schema   *arrow.Schema
	finished bool

	helper driverbase.ErrorHelper
}

func newIPCStreamReader(buf []byte, helper driverbase.ErrorHelper) (*ipcStreamReader, error) {
	r := &ipcStreamReader{buf: buf, helper: helper}

	msg, _, err := r.readMessage()
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, r.protocolErr("stream ended before schema message")
	}
	if msg.HeaderType() != flatbuf.MessageHeaderSchema {
		return nil, r.protocolErr("expected Schema message, got %s", msg.HeaderType())
	}
	if err := r.buildSchema(msg); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ipcStreamReader) Schema() *arrow.Schema { return r.schema }

// next decodes the next record batch, or returns io.EOF once the
// end-of-stream marker has been consumed.
func (r *ipcStreamReader) next() (arrow.Record, error) {
	if r.finished {
		return nil, io.EOF
	}

	msg, body, err := r.readMessage()
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, io.EOF
	}

	switch msg.HeaderType() {
	case flatbuf.MessageHeaderRecordBatch:
		return r.buildRecord(msg, body)
	case flatbuf.MessageHeaderSchema:
		return nil, r.protocolErr("second Schema message in stream")
	default:
		return nil, r.unsupportedErr("IPC message type %s", msg.HeaderType())
	}
}

// readMessage consumes one framed message (metadata plus body) and advances
// the cursor past it. It returns (nil, nil, nil) on the end-of-stream
// marker or clean buffer exhaustion.
func (r *ipcStreamReader) readMessage() (*flatbuf.Message, []byte, error) {
	if r.cursor == len(r.buf) {
		r.finished = true
		return nil, nil, nil
	}
	if r.cursor+8 > len(r.buf) {
		return nil, nil, r.protocolErr("truncated message header at offset %d", r.cursor)
	}

	if marker := binary.LittleEndian.Uint32(r.buf[r.cursor:]); marker != ipcContinuationMarker {
		return nil, nil, r.protocolErr("invalid continuation marker 0x%08X at offset %d", marker, r.cursor)
	}
	metaSize := int(binary.LittleEndian.Uint32(r.buf[r.cursor+4:]))
	if metaSize == 0 {
		r.finished = true
		r.cursor += 8
		return nil, nil, nil
	}

	metaStart := r.cursor + 8
	metaEnd := metaStart + metaSize
	if metaSize < 0 || metaEnd > len(r.buf) {
		return nil, nil, r.protocolErr("metadata size %d exceeds remaining buffer at offset %d", metaSize, r.cursor)
	}

	msg := flatbuf.GetRootAsMessage(r.buf[metaStart:metaEnd], 0)

	bodyStart := align8(metaEnd)
	bodyLen := int(msg.BodyLength())
	bodyEnd := bodyStart + bodyLen
	if bodyLen < 0 || bodyEnd > len(r.buf) {
		return nil, nil, r.protocolErr("message body of %d bytes exceeds remaining buffer", bodyLen)
	}

	r.cursor = align8(bodyEnd)
	if r.cursor > len(r.buf) {
		r.cursor = len(r.buf)
	}
	return msg, r.buf[bodyStart:bodyEnd], nil
}

func (r *ipcStreamReader) buildSchema(msg *flatbuf.Message) error {
	var table flatbuffers.Table
	if !msg.Header(&table) {
		return r.protocolErr("Schema message has no header table")
	}
	var fbSchema flatbuf.Schema
	fbSchema.Init(table.Bytes, table.Pos)

	if fbSchema.Endianness() != flatbuf.EndiannessLittle {
		return r.unsupportedErr("big-endian IPC stream")
	}

	fields := make([]arrow.Field, fbSchema.FieldsLength())
	for i := range fields {
		var fbField flatbuf.Field
		if !fbSchema.Fields(&fbField, i) {
			return r.protocolErr("missing field %d in schema", i)
		}
		dt, err := r.fieldDataType(&fbField)
		if err != nil {
			return err
		}
		fields[i] = arrow.Field{
			Name:     string(fbField.Name()),
			Type:     dt,
			Nullable: fbField.Nullable(),
		}
	}

	r.schema = arrow.NewSchema(fields, nil)
	return nil
}

// fieldDataType maps a FlatBuffer field type onto the closed set of
// supported Arrow types. Temporal parameters (unit, timezone) are carried
// through; anything outside the set fails rather than degrading silently.
func (r *ipcStreamReader) fieldDataType(f *flatbuf.Field) (arrow.DataType, error) {
	if f.HasDictionary() {
		return nil, r.unsupportedErr("dictionary-encoded field %q", f.Name())
	}
	if f.ChildrenLength() > 0 {
		return nil, r.unsupportedErr("nested field %q", f.Name())
	}

	var table flatbuffers.Table
	if !f.Type(&table) {
		return nil, r.protocolErr("field %q has no type", f.Name())
	}

	switch typ := f.TypeType(); typ {
	case flatbuf.TypeInt:
		var fbInt flatbuf.Int
		fbInt.Init(table.Bytes, table.Pos)
		return intDataType(fbInt.BitWidth(), fbInt.IsSigned(), r, f)
	case flatbuf.TypeFloatingPoint:
		var fbFloat flatbuf.FloatingPoint
		fbFloat.Init(table.Bytes, table.Pos)
		switch fbFloat.Precision() {
		case flatbuf.PrecisionHALF:
			return arrow.FixedWidthTypes.Float16, nil
		case flatbuf.PrecisionSINGLE:
			return arrow.PrimitiveTypes.Float32, nil
		case flatbuf.PrecisionDOUBLE:
			return arrow.PrimitiveTypes.Float64, nil
		}
		return nil, r.protocolErr("field %q has unknown float precision", f.Name())
	case flatbuf.TypeBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case flatbuf.TypeUtf8:
		return arrow.BinaryTypes.String, nil
	case flatbuf.TypeBinary:
		return arrow.BinaryTypes.Binary, nil
	case flatbuf.TypeDate:
		var fbDate flatbuf.Date
		fbDate.Init(table.Bytes, table.Pos)
		if fbDate.Unit() != flatbuf.DateUnitDAY {
			return nil, r.unsupportedErr("field %q: Date with millisecond unit", f.Name())
		}
		return arrow.FixedWidthTypes.Date32, nil
	case flatbuf.TypeTime:
		var fbTime flatbuf.Time
		fbTime.Init(table.Bytes, table.Pos)
		if fbTime.BitWidth() != 64 {
			return nil, r.unsupportedErr("field %q: %d-bit Time", f.Name(), fbTime.BitWidth())
		}
		switch fbTime.Unit() {
		case flatbuf.TimeUnitMICROSECOND:
			return arrow.FixedWidthTypes.Time64us, nil
		case flatbuf.TimeUnitNANOSECOND:
			return arrow.FixedWidthTypes.Time64ns, nil
		}
		return nil, r.protocolErr("field %q: 64-bit Time with a unit coarser than microsecond", f.Name())
	case flatbuf.TypeTimestamp:
		var fbTs flatbuf.Timestamp
		fbTs.Init(table.Bytes, table.Pos)
		return &arrow.TimestampType{
			Unit:     arrowTimeUnit(fbTs.Unit()),
			TimeZone: string(fbTs.Timezone()),
		}, nil
	default:
		return nil, r.unsupportedErr("field %q has unsupported type %s", f.Name(), typ)
	}
}

func intDataType(bitWidth int32, signed bool, r *ipcStreamReader, f *flatbuf.Field) (arrow.DataType, error) {
	switch bitWidth {
	case 8:
		if signed {
			return arrow.PrimitiveTypes.Int8, nil
		}
		return arrow.PrimitiveTypes.Uint8, nil
	case 16:
		if signed {
			return arrow.PrimitiveTypes.Int16, nil
		}
		return arrow.PrimitiveTypes.Uint16, nil
	case 32:
		if signed {
			return arrow.PrimitiveTypes.Int32, nil
		}
		return arrow.PrimitiveTypes.Uint32, nil
	case 64:
		if signed {
			return arrow.PrimitiveTypes.Int64, nil
		}
		return arrow.PrimitiveTypes.Uint64, nil
	}
	return nil, r.unsupportedErr("field %q: %d-bit integer", f.Name(), bitWidth)
}

func arrowTimeUnit(unit flatbuf.TimeUnit) arrow.TimeUnit {
	switch unit {
	case flatbuf.TimeUnitSECOND:
		return arrow.Second
	case flatbuf.TimeUnitMILLISECOND:
		return arrow.Millisecond
	case flatbuf.TimeUnitMICROSECOND:
		return arrow.Microsecond
	default:
		return arrow.Nanosecond
	}
}

// buildRecord materializes one record batch from its metadata and body.
func (r *ipcStreamReader) buildRecord(msg *flatbuf.Message, body []byte) (arrow.Record, error) {
	var table flatbuffers.Table
	if !msg.Header(&table) {
		return nil, r.protocolErr("RecordBatch message has no header table")
	}
	var rb flatbuf.RecordBatch
	rb.Init(table.Bytes, table.Pos)

	if rb.Compression(nil) != nil {
		return nil, r.unsupportedErr("compressed IPC body")
	}

	numFields := r.schema.NumFields()
	if rb.NodesLength() != numFields {
		return nil, r.protocolErr("RecordBatch has %d field nodes, schema has %d fields",
			rb.NodesLength(), numFields)
	}

	numRows := rb.Length()
	if numRows < 0 {
		return nil, r.protocolErr("RecordBatch has negative length %d", numRows)
	}

	cols := make([]arrow.Array, numFields)
	defer func() {
		for _, col := range cols {
			if col != nil {
				col.Release()
			}
		}
	}()

	bufferIndex := 0
	for i := 0; i < numFields; i++ {
		var node flatbuf.FieldNode
		if !rb.Nodes(&node, i) {
			return nil, r.protocolErr("missing field node %d", i)
		}
		if node.Length() != numRows {
			return nil, r.protocolErr("field node %d length %d does not match batch length %d",
				i, node.Length(), numRows)
		}

		col, consumed, err := r.buildArray(r.schema.Field(i), &rb, bufferIndex, body, numRows, node.NullCount())
		if err != nil {
			return nil, err
		}
		cols[i] = col
		bufferIndex += consumed
	}

	if bufferIndex != rb.BuffersLength() {
		return nil, r.protocolErr("RecordBatch declares %d buffers, consumed %d",
			rb.BuffersLength(), bufferIndex)
	}

	return array.NewRecord(r.schema, cols, numRows), nil
}

// buildArray materializes one column. It consumes the validity buffer plus
// the type's data buffers and reports how many buffer descriptors it used.
func (r *ipcStreamReader) buildArray(field arrow.Field, rb *flatbuf.RecordBatch, bufferIndex int, body []byte, numRows, nullCount int64) (arrow.Array, int, error) {
	validity, err := r.sliceBuffer(rb, bufferIndex, body)
	if err != nil {
		return nil, 0, err
	}

	bitmapBytes := int(numRows+7) / 8
	if validity == nil {
		if nullCount > 0 {
			return nil, 0, r.protocolErr("field %q reports %d nulls but has no validity bitmap",
				field.Name, nullCount)
		}
	} else if validity.Len() < bitmapBytes {
		return nil, 0, r.protocolErr("field %q validity bitmap has %d bytes, need %d",
			field.Name, validity.Len(), bitmapBytes)
	}

	nulls := int(nullCount)
	if nullCount < 0 {
		nulls = array.UnknownNullCount
	}

	switch dt := field.Type.(type) {
	case *arrow.BooleanType:
		values, err := r.sliceBuffer(rb, bufferIndex+1, body)
		if err != nil {
			return nil, 0, err
		}
		if byteLen(values) < bitmapBytes {
			return nil, 0, r.protocolErr("field %q value bitmap has %d bytes, need %d",
				field.Name, byteLen(values), bitmapBytes)
		}
		data := array.NewData(dt, int(numRows), []*memory.Buffer{validity, values}, nil, nulls, 0)
		defer data.Release()
		return array.MakeFromData(data), 2, nil

	case arrow.FixedWidthDataType:
		values, err := r.sliceBuffer(rb, bufferIndex+1, body)
		if err != nil {
			return nil, 0, err
		}
		need := int(numRows) * dt.Bytes()
		if byteLen(values) < need {
			return nil, 0, r.protocolErr("field %q value buffer has %d bytes, need %d",
				field.Name, byteLen(values), need)
		}
		data := array.NewData(dt, int(numRows), []*memory.Buffer{validity, values}, nil, nulls, 0)
		defer data.Release()
		return array.MakeFromData(data), 2, nil

	case arrow.BinaryDataType:
		offsets, err := r.sliceBuffer(rb, bufferIndex+1, body)
		if err != nil {
			return nil, 0, err
		}
		values, err := r.sliceBuffer(rb, bufferIndex+2, body)
		if err != nil {
			return nil, 0, err
		}
		if err := r.checkOffsets(field.Name, offsets, values, numRows); err != nil {
			return nil, 0, err
		}
		data := array.NewData(dt, int(numRows), []*memory.Buffer{validity, offsets, values}, nil, nulls, 0)
		defer data.Release()
		return array.MakeFromData(data), 3, nil

	default:
		return nil, 0, r.unsupportedErr("field %q has unsupported type %s", field.Name, field.Type)
	}
}

// checkOffsets validates the int32 offsets of a Utf8/Binary column:
// monotonically non-decreasing, starting inside the value buffer, final
// offset equal to the value buffer length.
func (r *ipcStreamReader) checkOffsets(name string, offsets, values *memory.Buffer, numRows int64) error {
	if offsets == nil {
		if numRows == 0 {
			return nil
		}
		return r.protocolErr("field %q has no offsets buffer", name)
	}
	need := int(numRows+1) * arrow.Int32SizeBytes
	if offsets.Len() < need {
		return r.protocolErr("field %q offsets buffer has %d bytes, need %d", name, offsets.Len(), need)
	}

	offs := arrow.Int32Traits.CastFromBytes(offsets.Bytes())[: numRows+1 : numRows+1]
	if offs[0] < 0 {
		return r.protocolErr("field %q has negative first offset %d", name, offs[0])
	}
	for i := 1; i < len(offs); i++ {
		if offs[i] < offs[i-1] {
			return r.protocolErr("field %q offsets are not monotonic at row %d (%d < %d)",
				name, i-1, offs[i], offs[i-1])
		}
	}
	if int(offs[numRows]) != byteLen(values) {
		return r.protocolErr("field %q final offset %d does not match value buffer length %d",
			name, offs[numRows], byteLen(values))
	}
	return nil
}

// sliceBuffer resolves one buffer descriptor against the message body,
// enforcing bounds and 8-byte alignment. A zero-length buffer is returned
// as nil.
func (r *ipcStreamReader) sliceBuffer(rb *flatbuf.RecordBatch, index int, body []byte) (*memory.Buffer, error) {
	var desc flatbuf.Buffer
	if index >= rb.BuffersLength() || !rb.Buffers(&desc, index) {
		return nil, r.protocolErr("missing buffer descriptor %d", index)
	}
	offset, length := desc.Offset(), desc.Length()
	if offset%8 != 0 {
		return nil, r.protocolErr("buffer %d offset %d is not 8-byte aligned", index, offset)
	}
	if offset < 0 || length < 0 || offset+length > int64(len(body)) {
		return nil, r.protocolErr("buffer %d [%d, %d) exceeds body of %d bytes",
			index, offset, offset+length, len(body))
	}
	if length == 0 {
		return nil, nil
	}
	return memory.NewBufferBytes(body[offset : offset+length]), nil
}

func (r *ipcStreamReader) protocolErr(format string, args ...any) error {
	return r.helper.Errorf(adbc.StatusInvalidData, format, args...)
}

func (r *ipcStreamReader) unsupportedErr(format string, args ...any) error {
	return r.helper.Errorf(adbc.StatusNotImplemented, format, args...)
}

func byteLen(buf *memory.Buffer) int {
	if buf == nil {
		return 0
	}
	return buf.Len()
}

func align8(n int) int {
	return (n + 7) &^ 7
}
