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
	"context"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cube-js/cube-adbc-go/internal/driverbase"
)

type statementImpl struct {
	driverbase.StatementImplBase

	cnxn  *connectionImpl
	query string
}

func (st *statementImpl) Close() error {
	st.cnxn = nil
	return nil
}

func (st *statementImpl) SetSqlQuery(query string) error {
	if st.cnxn == nil {
		return st.ErrorHelper.Errorf(adbc.StatusInvalidState, "statement is closed")
	}
	st.query = query
	return nil
}

// ExecuteQuery runs the current query and returns its result stream. The
// reader owns the IPC bytes received from the server; records handed out by
// it reference them directly.
func (st *statementImpl) ExecuteQuery(ctx context.Context) (array.RecordReader, int64, error) {
	ctx, span := st.StartSpan(ctx, "ExecuteQuery", trace.WithAttributes(st.GetInitialSpanAttributes()...))
	defer span.End()

	ipc, rowsAffected, err := st.execute(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, -1, err
	}

	if len(ipc) == 0 {
		span.SetStatus(codes.Error, "no result data")
		return nil, -1, st.ErrorHelper.Errorf(adbc.StatusInvalidData, "server sent no Arrow IPC data")
	}

	rdr, err := newIPCStreamReader(ipc, st.ErrorHelper)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, -1, err
	}

	span.SetAttributes(attribute.Int64("cube.rows_affected", rowsAffected))
	return newRecordReader(rdr), rowsAffected, nil
}

// ExecuteUpdate runs the current query for its side effects and returns the
// server-reported affected row count. Any result data is drained and
// dropped.
func (st *statementImpl) ExecuteUpdate(ctx context.Context) (int64, error) {
	ctx, span := st.StartSpan(ctx, "ExecuteUpdate", trace.WithAttributes(st.GetInitialSpanAttributes()...))
	defer span.End()

	_, rowsAffected, err := st.execute(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return -1, err
	}
	return rowsAffected, nil
}

func (st *statementImpl) execute(ctx context.Context) ([]byte, int64, error) {
	if st.cnxn == nil {
		return nil, -1, st.ErrorHelper.Errorf(adbc.StatusInvalidState, "statement is closed")
	}
	if st.query == "" {
		return nil, -1, st.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "no query set on statement")
	}
	return st.cnxn.client.ExecuteQuery(ctx, st.query)
}

// Prepare validates local state only; the protocol has no server-side
// prepare message.
func (st *statementImpl) Prepare(ctx context.Context) error {
	if st.cnxn == nil {
		return st.ErrorHelper.Errorf(adbc.StatusInvalidState, "statement is closed")
	}
	if st.query == "" {
		return st.ErrorHelper.Errorf(adbc.StatusInvalidState, "no query set on statement")
	}
	return nil
}

func (st *statementImpl) SetSubstraitPlan(plan []byte) error {
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, "Substrait plans are not supported")
}

func (st *statementImpl) Bind(ctx context.Context, values arrow.Record) error {
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, "parameter binding is not supported")
}

func (st *statementImpl) BindStream(ctx context.Context, stream array.RecordReader) error {
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, "parameter binding is not supported")
}

func (st *statementImpl) GetParameterSchema() (*arrow.Schema, error) {
	return nil, st.ErrorHelper.Errorf(adbc.StatusNotImplemented, "parameter binding is not supported")
}

func (st *statementImpl) ExecutePartitions(ctx context.Context) (*arrow.Schema, adbc.Partitions, int64, error) {
	return nil, adbc.Partitions{}, -1, st.ErrorHelper.Errorf(adbc.StatusNotImplemented,
		"partitioned execution is not supported")
}
