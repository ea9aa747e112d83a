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
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/apache/arrow-adbc/go/adbc"

	"github.com/cube-js/cube-adbc-go/driver/cube/internal/wire"
	"github.com/cube-js/cube-adbc-go/internal/driverbase"
)

// nativeClient is the protocol engine for one Cube Arrow Native connection:
// connect, handshake, authenticate, execute queries, drain responses. It is
// not safe for concurrent queries; the mutex serializes callers so misuse
// blocks instead of corrupting the stream. Once an exchange with the server
// has failed (transport or framing error, rejected authentication, server
// error report) only Close is valid until the client is reconnected. A call
// rejected because it was made in the wrong state leaves the client as it
// was, and a failed Connect leaves it unconnected.
type nativeClient struct {
	host string
	port int

	connectTimeout time.Duration
	queryTimeout   time.Duration

	helper driverbase.ErrorHelper
	logger *slog.Logger

	mu            sync.Mutex
	conn          net.Conn
	authenticated bool
	poisoned      bool
	sessionID     string
	serverVersion string
}

func newNativeClient(host string, port int, helper driverbase.ErrorHelper, logger *slog.Logger) *nativeClient {
	return &nativeClient{
		host:   host,
		port:   port,
		helper: helper,
		logger: logger,
	}
}

// Connect dials the server and performs the version handshake.
func (c *nativeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.helper.Errorf(adbc.StatusInvalidState, "already connected")
	}

	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	dialer := net.Dialer{Timeout: c.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return c.helper.Errorf(adbc.StatusIO, "failed to connect to %s: %s", addr, err)
	}
	c.conn = conn

	if err := c.handshake(ctx); err != nil {
		conn.Close()
		c.conn = nil
		return err
	}

	c.logger.DebugContext(ctx, "connected", "address", addr, "serverVersion", c.serverVersion)
	return nil
}

func (c *nativeClient) handshake(ctx context.Context) error {
	if err := c.setDeadline(ctx); err != nil {
		return err
	}
	if err := wire.WriteMessage(c.conn, wire.HandshakeRequest{Version: wire.ProtocolVersion}); err != nil {
		return c.wireErr(err)
	}
	msg, err := wire.ReadMessage(c.conn)
	if err != nil {
		return c.wireErr(err)
	}
	resp, ok := msg.(wire.HandshakeResponse)
	if !ok {
		return c.helper.Errorf(adbc.StatusInvalidData, "unexpected %s during handshake", msg.Type())
	}
	if resp.Version != wire.ProtocolVersion {
		return c.helper.Errorf(adbc.StatusInvalidData,
			"protocol version mismatch: client %d, server %d", wire.ProtocolVersion, resp.Version)
	}
	c.serverVersion = resp.ServerVersion
	return nil
}

// Authenticate sends the token and stores the granted session.
func (c *nativeClient) Authenticate(ctx context.Context, token, database string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUsable(); err != nil {
		return err
	}
	if c.authenticated {
		return c.helper.Errorf(adbc.StatusInvalidState, "already authenticated")
	}

	if err := c.setDeadline(ctx); err != nil {
		return err
	}
	if err := wire.WriteMessage(c.conn, wire.AuthRequest{Token: token, Database: database}); err != nil {
		return c.poison(c.wireErr(err))
	}
	msg, err := wire.ReadMessage(c.conn)
	if err != nil {
		return c.poison(c.wireErr(err))
	}
	resp, ok := msg.(wire.AuthResponse)
	if !ok {
		return c.poison(c.helper.Errorf(adbc.StatusInvalidData, "unexpected %s during authentication", msg.Type()))
	}
	if !resp.Success {
		return c.poison(c.helper.Errorf(adbc.StatusUnauthenticated, "authentication failed"))
	}

	c.sessionID = resp.SessionID
	c.authenticated = true
	c.logger.DebugContext(ctx, "authenticated", "sessionID", c.sessionID)
	return nil
}

// ExecuteQuery sends the query and drains the response sequence, returning
// the concatenated bytes of the batch IPC stream and the server-reported
// affected row count.
//
// The server emits two consecutive IPC streams per query: a stand-alone
// schema-only stream (QueryResponseSchema) followed by a self-contained
// batch stream (QueryResponseBatch...) whose first message repeats the
// schema. Only the batch stream is kept; concatenating both would put two
// end-of-stream markers in front of the decoder.
func (c *nativeClient) ExecuteQuery(ctx context.Context, sql string) ([]byte, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUsable(); err != nil {
		return nil, -1, err
	}
	if !c.authenticated {
		return nil, -1, c.helper.Errorf(adbc.StatusInvalidState, "not authenticated")
	}

	if err := c.setDeadline(ctx); err != nil {
		return nil, -1, err
	}
	if err := wire.WriteMessage(c.conn, wire.QueryRequest{SQL: sql}); err != nil {
		return nil, -1, c.poison(c.wireErr(err))
	}

	var ipc []byte
	for {
		msg, err := wire.ReadMessage(c.conn)
		if err != nil {
			return nil, -1, c.poison(c.wireErr(err))
		}

		switch m := msg.(type) {
		case wire.QueryResponseSchema:
			// Discarded; the batch stream is self-contained.
		case wire.QueryResponseBatch:
			ipc = append(ipc, m.IPC...)
		case wire.QueryComplete:
			c.logger.DebugContext(ctx, "query complete",
				"rowsAffected", m.RowsAffected, "ipcBytes", len(ipc))
			return ipc, m.RowsAffected, nil
		case wire.ErrorMessage:
			return nil, -1, c.poison(adbc.Error{
				Msg:     "[Cube] server error [" + m.Code + "]: " + m.Message,
				Code:    adbc.StatusUnknown,
				Details: []adbc.ErrorDetail{&adbc.TextErrorDetail{Name: "cube.error_code", Detail: m.Code}},
			})
		default:
			return nil, -1, c.poison(c.helper.Errorf(adbc.StatusInvalidData,
				"unexpected %s during query", msg.Type()))
		}
	}
}

// Close tears down the socket. It is idempotent.
func (c *nativeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.authenticated = false
	c.poisoned = false
	c.sessionID = ""
	c.serverVersion = ""
	if err != nil {
		return c.helper.Errorf(adbc.StatusIO, "closing connection: %s", err)
	}
	return nil
}

// SessionID reports the session granted by the server, if authenticated.
func (c *nativeClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ServerVersion reports the version string learned during the handshake.
func (c *nativeClient) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

func (c *nativeClient) checkUsable() error {
	if c.conn == nil {
		return c.helper.Errorf(adbc.StatusInvalidState, "not connected")
	}
	if c.poisoned {
		return c.helper.Errorf(adbc.StatusInvalidState,
			"connection is in a failed state and must be closed")
	}
	return nil
}

// poison records that the stream position is no longer trustworthy. Every
// operation except Close fails afterwards.
func (c *nativeClient) poison(err error) error {
	c.poisoned = true
	return err
}

// setDeadline applies the stricter of the context deadline and the
// configured query timeout to the socket.
func (c *nativeClient) setDeadline(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if c.queryTimeout > 0 {
		if t := time.Now().Add(c.queryTimeout); !ok || t.Before(deadline) {
			deadline, ok = t, true
		}
	}
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return c.helper.Errorf(adbc.StatusIO, "setting deadline: %s", err)
	}
	return nil
}

// wireErr maps transport and framing failures onto the ADBC taxonomy.
func (c *nativeClient) wireErr(err error) error {
	switch {
	case errors.Is(err, wire.ErrProtocol):
		return c.helper.Errorf(adbc.StatusInvalidData, "%s", err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return c.helper.Errorf(adbc.StatusIO, "connection closed by server: %s", err)
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return c.helper.Errorf(adbc.StatusTimeout, "%s", err)
		}
		return c.helper.Errorf(adbc.StatusIO, "%s", err)
	}
}
