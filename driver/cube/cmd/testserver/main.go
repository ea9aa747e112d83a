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

// Command testserver is a minimal Cube Arrow Native server for exercising
// the driver without a real deployment. It answers any SQL text with a small
// canned table, reproducing the production server's behavior of emitting a
// schema-only IPC stream followed by the batch IPC stream. SQL containing the
// word "error" gets a server error report instead.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"

	"github.com/cube-js/cube-adbc-go/driver/cube/internal/wire"
)

var (
	address = flag.String("address", "localhost:4445", "address to listen on")
	token   = flag.String("token", "testtoken", "token accepted for authentication")
)

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ln, err := net.Listen("tcp", *address)
	if err != nil {
		logger.Error("listen failed", "error", err)
		os.Exit(1)
	}
	logger.Info("listening", "address", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Error("accept failed", "error", err)
			os.Exit(1)
		}
		go serve(conn, logger.With("remote", conn.RemoteAddr().String()))
	}
}

func serve(conn net.Conn, logger *slog.Logger) {
	defer conn.Close()

	if err := handshake(conn); err != nil {
		logger.Error("handshake failed", "error", err)
		return
	}
	if err := authenticate(conn); err != nil {
		logger.Error("authentication failed", "error", err)
		return
	}

	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Error("read failed", "error", err)
			}
			return
		}
		req, ok := msg.(wire.QueryRequest)
		if !ok {
			logger.Error("unexpected message", "type", msg.Type().String())
			return
		}
		logger.Info("query", "sql", req.SQL)
		if err := respond(conn, req.SQL); err != nil {
			logger.Error("respond failed", "error", err)
			return
		}
	}
}

func handshake(conn net.Conn) error {
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		return err
	}
	req, ok := msg.(wire.HandshakeRequest)
	if !ok {
		return fmt.Errorf("expected HandshakeRequest, got %s", msg.Type())
	}
	if req.Version != wire.ProtocolVersion {
		return fmt.Errorf("unsupported protocol version %d", req.Version)
	}
	return wire.WriteMessage(conn, wire.HandshakeResponse{
		Version:       wire.ProtocolVersion,
		ServerVersion: "cube-testserver 0.1",
	})
}

func authenticate(conn net.Conn) error {
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		return err
	}
	req, ok := msg.(wire.AuthRequest)
	if !ok {
		return fmt.Errorf("expected AuthRequest, got %s", msg.Type())
	}
	if req.Token != *token {
		return wire.WriteMessage(conn, wire.AuthResponse{Success: false})
	}
	return wire.WriteMessage(conn, wire.AuthResponse{
		Success:   true,
		SessionID: uuid.NewString(),
	})
}

func respond(conn net.Conn, sql string) error {
	if strings.Contains(strings.ToLower(sql), "error") {
		return wire.WriteMessage(conn, wire.ErrorMessage{
			Code:    "TEST_ERROR",
			Message: "query contains 'error'",
		})
	}

	rec := cannedResult()
	defer rec.Release()

	if err := wire.WriteMessage(conn, wire.QueryResponseSchema{IPC: schemaOnlyStream(rec.Schema())}); err != nil {
		return err
	}
	if err := wire.WriteMessage(conn, wire.QueryResponseBatch{IPC: batchStream(rec)}); err != nil {
		return err
	}
	return wire.WriteMessage(conn, wire.QueryComplete{RowsAffected: rec.NumRows()})
}

func cannedResult() arrow.Record {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)

	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	bldr.Field(1).(*array.StringBuilder).AppendValues([]string{"alpha", "beta", "gamma"}, nil)
	bldr.Field(2).(*array.Float64Builder).AppendValues([]float64{1.5, 2.5, 3.5}, nil)
	return bldr.NewRecord()
}

func schemaOnlyStream(schema *arrow.Schema) []byte {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	w.Close()
	return buf.Bytes()
}

func batchStream(recs ...arrow.Record) []byte {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(recs[0].Schema()))
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			panic(err)
		}
	}
	w.Close()
	return buf.Bytes()
}
