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
	"io"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// reader adapts an ipcStreamReader to array.RecordReader. Each record is
// owned by the reader until the following Next call; consumers retain
// records they want to keep, per the RecordReader contract. Once the stream
// is exhausted Next stays false and Err stays nil.
type reader struct {
	refCount int64

	rdr *ipcStreamReader
	rec arrow.Record
	err error
}

func newRecordReader(rdr *ipcStreamReader) array.RecordReader {
	return &reader{refCount: 1, rdr: rdr}
}

func (r *reader) Retain() {
	atomic.AddInt64(&r.refCount, 1)
}

func (r *reader) Release() {
	if atomic.AddInt64(&r.refCount, -1) == 0 {
		if r.rec != nil {
			r.rec.Release()
			r.rec = nil
		}
		r.rdr = nil
	}
}

func (r *reader) Schema() *arrow.Schema {
	return r.rdr.Schema()
}

func (r *reader) Next() bool {
	if r.rec != nil {
		r.rec.Release()
		r.rec = nil
	}
	if r.err != nil || r.rdr == nil {
		return false
	}

	rec, err := r.rdr.next()
	if err == io.EOF {
		return false
	}
	if err != nil {
		r.err = err
		return false
	}
	r.rec = rec
	return true
}

func (r *reader) Record() arrow.Record {
	return r.rec
}

func (r *reader) RecordBatch() arrow.RecordBatch {
	return r.rec
}

func (r *reader) Err() error {
	return r.err
}
