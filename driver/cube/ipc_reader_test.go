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
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube-js/cube-adbc-go/internal/driverbase"
)

var testErrorHelper = driverbase.ErrorHelper{DriverName: "Cube"}

// decodeStream runs the reader over a stream and returns every record,
// retained for the caller.
func decodeStream(t *testing.T, stream []byte) (*arrow.Schema, []arrow.Record) {
	t.Helper()

	rdr, err := newIPCStreamReader(stream, testErrorHelper)
	require.NoError(t, err)

	var recs []arrow.Record
	for {
		rec, err := rdr.next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		t.Cleanup(rec.Release)
		recs = append(recs, rec)
	}
	return rdr.Schema(), recs
}

func assertAdbcStatus(t *testing.T, err error, want adbc.Status) {
	t.Helper()
	var adbcErr adbc.Error
	require.ErrorAs(t, err, &adbcErr)
	assert.Equal(t, want, adbcErr.Code, "unexpected status in %v", err)
}

func TestIPCReaderAllSupportedTypes(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "i8", Type: arrow.PrimitiveTypes.Int8, Nullable: true},
		{Name: "u16", Type: arrow.PrimitiveTypes.Uint16, Nullable: true},
		{Name: "i32", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "i64", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "f16", Type: arrow.FixedWidthTypes.Float16, Nullable: true},
		{Name: "f32", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
		{Name: "f64", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "b", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "bin", Type: arrow.BinaryTypes.Binary, Nullable: true},
		{Name: "d32", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
		{Name: "t64us", Type: arrow.FixedWidthTypes.Time64us, Nullable: true},
		{Name: "tsus", Type: &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, Nullable: true},
		{Name: "tsns", Type: &arrow.TimestampType{Unit: arrow.Nanosecond}, Nullable: true},
	}, nil)

	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()

	bldr.Field(0).(*array.Int8Builder).AppendValues([]int8{-1, 0, 127}, nil)
	bldr.Field(1).(*array.Uint16Builder).AppendValues([]uint16{0, 500, 65535}, nil)
	bldr.Field(2).(*array.Int32Builder).AppendValues([]int32{1, -2, 3}, nil)
	bldr.Field(3).(*array.Int64Builder).AppendValues([]int64{-99, 0, 1 << 40}, nil)
	bldr.Field(4).(*array.Float16Builder).AppendValues([]float16.Num{
		float16.New(1.5), float16.New(-0.25), float16.New(8),
	}, nil)
	bldr.Field(5).(*array.Float32Builder).AppendValues([]float32{0.5, -1.25, 100}, nil)
	bldr.Field(6).(*array.Float64Builder).AppendValues([]float64{3.25, -2.5, 1e100}, nil)
	bldr.Field(7).(*array.BooleanBuilder).AppendValues([]bool{true, false, true}, nil)
	bldr.Field(8).(*array.StringBuilder).AppendValues([]string{"hello", "", "wörld"}, nil)
	bldr.Field(9).(*array.BinaryBuilder).AppendValues([][]byte{{0x01}, {}, {0xFF, 0x00}}, nil)
	bldr.Field(10).(*array.Date32Builder).AppendValues([]arrow.Date32{0, 20000, -1}, nil)
	bldr.Field(11).(*array.Time64Builder).AppendValues([]arrow.Time64{0, 123456789, 86399999999}, nil)
	bldr.Field(12).(*array.TimestampBuilder).AppendValues([]arrow.Timestamp{1735786645000000, 0, -1}, nil)
	bldr.Field(13).(*array.TimestampBuilder).AppendValues([]arrow.Timestamp{1, 2, 3}, nil)

	want := bldr.NewRecord()
	defer want.Release()

	gotSchema, recs := decodeStream(t, encodeBatchStream(want))
	require.Len(t, recs, 1)
	assert.True(t, gotSchema.Equal(schema), "schema mismatch:\nwant %s\ngot  %s", schema, gotSchema)
	assert.True(t, array.RecordEqual(want, recs[0]), "record mismatch:\nwant %v\ngot  %v", want, recs[0])
}

func TestIPCReaderPropagatesTemporalParameters(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "ts", Type: &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "America/New_York"}, Nullable: true},
		{Name: "t64", Type: arrow.FixedWidthTypes.Time64ns, Nullable: true},
	}, nil)

	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.TimestampBuilder).Append(1000)
	bldr.Field(1).(*array.Time64Builder).Append(42)
	rec := bldr.NewRecord()
	defer rec.Release()

	gotSchema, recs := decodeStream(t, encodeBatchStream(rec))
	require.Len(t, recs, 1)

	ts := gotSchema.Field(0).Type.(*arrow.TimestampType)
	assert.Equal(t, arrow.Millisecond, ts.Unit)
	assert.Equal(t, "America/New_York", ts.TimeZone)
	t64 := gotSchema.Field(1).Type.(*arrow.Time64Type)
	assert.Equal(t, arrow.Nanosecond, t64.Unit)
}

func TestIPCReaderNulls(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "n", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 0, 3, 0, 5}, []bool{true, false, true, false, true})
	bldr.Field(1).(*array.StringBuilder).AppendValues([]string{"a", "", "c", "", "e"}, []bool{true, false, true, false, true})
	want := bldr.NewRecord()
	defer want.Release()

	_, recs := decodeStream(t, encodeBatchStream(want))
	require.Len(t, recs, 1)

	assert.EqualValues(t, 2, recs[0].Column(0).NullN())
	assert.EqualValues(t, 2, recs[0].Column(1).NullN())
	assert.True(t, array.RecordEqual(want, recs[0]))
}

func TestIPCReaderStringWithEmbeddedNUL(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.StringBuilder).AppendValues([]string{"a\x00b", "\x00", ""}, nil)
	want := bldr.NewRecord()
	defer want.Release()

	_, recs := decodeStream(t, encodeBatchStream(want))
	require.Len(t, recs, 1)
	assert.Equal(t, "a\x00b", recs[0].Column(0).(*array.String).Value(0))
	assert.Equal(t, "\x00", recs[0].Column(0).(*array.String).Value(1))
}

func TestIPCReaderMultipleBatches(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)

	var want []arrow.Record
	for _, vals := range [][]int64{{1, 2}, {3}, {4, 5, 6}} {
		bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
		bldr.Field(0).(*array.Int64Builder).AppendValues(vals, nil)
		rec := bldr.NewRecord()
		t.Cleanup(rec.Release)
		bldr.Release()
		want = append(want, rec)
	}

	_, recs := decodeStream(t, encodeBatchStream(want...))
	require.Len(t, recs, 3)
	for i := range want {
		assert.True(t, array.RecordEqual(want[i], recs[i]), "batch %d mismatch", i)
	}
}

func TestIPCReaderZeroRowBatch(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	want := bldr.NewRecord()
	defer want.Release()

	_, recs := decodeStream(t, encodeBatchStream(want))
	require.Len(t, recs, 1)
	assert.EqualValues(t, 0, recs[0].NumRows())
}

func TestIPCReaderSchemaStability(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).Append(1)
	rec := bldr.NewRecord()
	defer rec.Release()

	rdr, err := newIPCStreamReader(encodeBatchStream(rec), testErrorHelper)
	require.NoError(t, err)

	first := rdr.Schema()
	for i := 0; i < 3; i++ {
		assert.True(t, first.Equal(rdr.Schema()))
	}
}

func TestIPCReaderEOSIsSticky(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).Append(1)
	rec := bldr.NewRecord()
	defer rec.Release()

	rdr, err := newIPCStreamReader(encodeBatchStream(rec), testErrorHelper)
	require.NoError(t, err)

	got, err := rdr.next()
	require.NoError(t, err)
	got.Release()

	for i := 0; i < 3; i++ {
		_, err := rdr.next()
		assert.ErrorIs(t, err, io.EOF)
	}
}

// A schema-only stream concatenated with a batch stream is two logical
// streams: the first EOS terminates decoding and the batches behind it are
// unreachable. This is exactly why the client drops the schema-only stream
// instead of concatenating both.
func TestIPCReaderStopsAtFirstEOS(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).Append(1)
	rec := bldr.NewRecord()
	defer rec.Release()

	concatenated := append(encodeSchemaStream(schema), encodeBatchStream(rec)...)

	rdr, err := newIPCStreamReader(concatenated, testErrorHelper)
	require.NoError(t, err)

	_, err = rdr.next()
	assert.ErrorIs(t, err, io.EOF, "decoding must stop at the schema stream's EOS")
}

func TestIPCReaderEmptyBuffer(t *testing.T) {
	_, err := newIPCStreamReader(nil, testErrorHelper)
	assertAdbcStatus(t, err, adbc.StatusInvalidData)
}

func TestIPCReaderBadContinuationMarker(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	stream := encodeSchemaStream(schema)
	stream[0] = 0x00

	_, err := newIPCStreamReader(stream, testErrorHelper)
	assertAdbcStatus(t, err, adbc.StatusInvalidData)
	assert.Contains(t, err.Error(), "continuation marker")
}

func TestIPCReaderTruncatedStream(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	rec := bldr.NewRecord()
	defer rec.Release()

	stream := encodeBatchStream(rec)
	for _, cut := range []int{4, len(stream) / 2, len(stream) - 4} {
		_, err := tryDecode(stream[:cut])
		assertAdbcStatus(t, err, adbc.StatusInvalidData)
	}
}

// tryDecode decodes a stream to completion and returns the first error.
func tryDecode(stream []byte) ([]arrow.Record, error) {
	rdr, err := newIPCStreamReader(stream, testErrorHelper)
	if err != nil {
		return nil, err
	}
	var recs []arrow.Record
	for {
		rec, err := rdr.next()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			for _, r := range recs {
				r.Release()
			}
			return nil, err
		}
		recs = append(recs, rec)
	}
}

func TestIPCReaderSecondSchemaMessage(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)

	withEOS := encodeSchemaStream(schema)
	schemaMsg := withEOS[:len(withEOS)-8] // drop the trailing EOS marker

	stream := append(append([]byte{}, schemaMsg...), withEOS...)
	_, err := tryDecode(stream)
	assertAdbcStatus(t, err, adbc.StatusInvalidData)
	assert.Contains(t, err.Error(), "second Schema")
}

func TestIPCReaderUnsupportedNestedType(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "l", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64), Nullable: true},
	}, nil)

	_, err := newIPCStreamReader(encodeSchemaStream(schema), testErrorHelper)
	assertAdbcStatus(t, err, adbc.StatusNotImplemented)
}

func TestIPCReaderUnsupportedDate64(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "d", Type: arrow.FixedWidthTypes.Date64, Nullable: true},
	}, nil)

	_, err := newIPCStreamReader(encodeSchemaStream(schema), testErrorHelper)
	assertAdbcStatus(t, err, adbc.StatusNotImplemented)
}

func TestIPCReaderCompressedBodyRejected(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues(make([]int64, 1000), nil)
	rec := bldr.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithZstd())
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	_, err := tryDecode(buf.Bytes())
	assertAdbcStatus(t, err, adbc.StatusNotImplemented)
	assert.Contains(t, err.Error(), "compressed")
}

func TestIPCReaderNonMonotonicOffsets(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.StringBuilder).AppendValues([]string{"ab", "cd"}, nil)
	rec := bldr.NewRecord()
	defer rec.Release()

	stream := encodeBatchStream(rec)

	// Locate the offsets buffer [0, 2, 4] in the batch body and corrupt the
	// middle offset so the sequence decreases.
	offsets := []byte{0, 0, 0, 0, 2, 0, 0, 0, 4, 0, 0, 0}
	idx := bytes.LastIndex(stream, offsets)
	require.GreaterOrEqual(t, idx, 0, "offsets buffer not found in stream")
	stream[idx+4] = 5

	_, err := tryDecode(stream)
	assertAdbcStatus(t, err, adbc.StatusInvalidData)
	assert.Contains(t, err.Error(), "monotonic")
}

func TestRecordReaderAdapter(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{7, 8}, nil)
	rec := bldr.NewRecord()
	defer rec.Release()

	ipcRdr, err := newIPCStreamReader(encodeBatchStream(rec, rec), testErrorHelper)
	require.NoError(t, err)

	rdr := newRecordReader(ipcRdr)
	defer rdr.Release()

	require.True(t, rdr.Schema().Equal(schema))

	var n int
	for rdr.Next() {
		assert.True(t, array.RecordEqual(rec, rdr.Record()))
		n++
	}
	assert.Equal(t, 2, n)
	assert.NoError(t, rdr.Err())
	assert.False(t, rdr.Next(), "Next stays false after end of stream")
}

func TestRecordReaderAdapterSurfacesDecodeError(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3, 4}, nil)
	rec := bldr.NewRecord()
	defer rec.Release()

	stream := encodeBatchStream(rec)
	truncated := stream[:len(stream)-12]

	ipcRdr, err := newIPCStreamReader(truncated, testErrorHelper)
	require.NoError(t, err)

	rdr := newRecordReader(ipcRdr)
	defer rdr.Release()

	assert.False(t, rdr.Next())
	require.Error(t, rdr.Err())
	var adbcErr adbc.Error
	require.True(t, errors.As(rdr.Err(), &adbcErr))
	assert.Equal(t, adbc.StatusInvalidData, adbcErr.Code)
}
