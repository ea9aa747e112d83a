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
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cube-js/cube-adbc-go/driver/cube/internal/wire"
)

// serverError makes a query handler fail with a server-side error report.
type serverError struct {
	code    string
	message string
}

func (e *serverError) Error() string { return e.code + ": " + e.message }

// testServer speaks the Cube Arrow Native protocol on a loopback listener.
// Handlers and fault-injection knobs are set per test.
type testServer struct {
	token string

	// handler produces the result for a query. The returned record is
	// released by the server.
	handler func(sql string) (arrow.Record, error)

	// respondVersion overrides the handshake version when nonzero.
	respondVersion uint32
	// rejectAuth makes authentication fail regardless of token.
	rejectAuth bool
	// omitSchemaStream suppresses the QueryResponseSchema message.
	omitSchemaStream bool
	// splitBatchStream sends the batch IPC stream split across several
	// QueryResponseBatch messages.
	splitBatchStream bool

	ln   net.Listener
	wg   sync.WaitGroup
	once sync.Once
}

func startTestServer(t *testing.T, srv *testServer) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.ln = ln

	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.wg.Add(1)
			go func() {
				defer srv.wg.Done()
				defer conn.Close()
				srv.serve(conn)
			}()
		}
	}()

	t.Cleanup(func() { srv.stop() })

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func (srv *testServer) stop() {
	srv.once.Do(func() {
		srv.ln.Close()
		srv.wg.Wait()
	})
}

func (srv *testServer) serve(conn net.Conn) {
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		return
	}
	if _, ok := msg.(wire.HandshakeRequest); !ok {
		return
	}
	version := wire.ProtocolVersion
	if srv.respondVersion != 0 {
		version = srv.respondVersion
	}
	if err := wire.WriteMessage(conn, wire.HandshakeResponse{
		Version:       version,
		ServerVersion: "cube-test 1.0",
	}); err != nil {
		return
	}

	msg, err = wire.ReadMessage(conn)
	if err != nil {
		return
	}
	auth, ok := msg.(wire.AuthRequest)
	if !ok {
		return
	}
	success := !srv.rejectAuth && (srv.token == "" || auth.Token == srv.token)
	resp := wire.AuthResponse{Success: success}
	if success {
		resp.SessionID = uuid.NewString()
	}
	if err := wire.WriteMessage(conn, resp); err != nil || !success {
		return
	}

	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			return
		}
		req, ok := msg.(wire.QueryRequest)
		if !ok {
			wire.WriteMessage(conn, wire.ErrorMessage{Code: "PROTOCOL", Message: "expected QueryRequest"})
			return
		}
		if err := srv.respond(conn, req.SQL); err != nil {
			return
		}
	}
}

func (srv *testServer) respond(conn net.Conn, sql string) error {
	rec, err := srv.handler(sql)
	if err != nil {
		var srvErr *serverError
		if errors.As(err, &srvErr) {
			return wire.WriteMessage(conn, wire.ErrorMessage{Code: srvErr.code, Message: srvErr.message})
		}
		return wire.WriteMessage(conn, wire.ErrorMessage{Code: "INTERNAL", Message: err.Error()})
	}
	defer rec.Release()

	if !srv.omitSchemaStream {
		if err := wire.WriteMessage(conn, wire.QueryResponseSchema{IPC: encodeSchemaStream(rec.Schema())}); err != nil {
			return err
		}
	}

	stream := encodeBatchStream(rec)
	if srv.splitBatchStream && len(stream) > 16 {
		half := len(stream) / 2
		if err := wire.WriteMessage(conn, wire.QueryResponseBatch{IPC: stream[:half]}); err != nil {
			return err
		}
		if err := wire.WriteMessage(conn, wire.QueryResponseBatch{IPC: stream[half:]}); err != nil {
			return err
		}
	} else {
		if err := wire.WriteMessage(conn, wire.QueryResponseBatch{IPC: stream}); err != nil {
			return err
		}
	}
	return wire.WriteMessage(conn, wire.QueryComplete{RowsAffected: rec.NumRows()})
}

// encodeSchemaStream renders a schema-only IPC stream (schema message plus
// end-of-stream marker), the first of the two streams the server emits per
// query.
func encodeSchemaStream(schema *arrow.Schema) []byte {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// encodeBatchStream renders a self-contained IPC stream carrying the given
// records.
func encodeBatchStream(recs ...arrow.Record) []byte {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(recs[0].Schema()))
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			panic(err)
		}
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func nilTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServerOptions(host string, port int, token string) map[string]string {
	return map[string]string{
		OptionStringHost:  host,
		OptionStringPort:  strconv.Itoa(port),
		OptionStringToken: token,
	}
}
