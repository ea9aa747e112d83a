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
	"github.com/apache/arrow-adbc/go/adbc"

	"github.com/cube-js/cube-adbc-go/internal/driverbase"
)

const (
	// OptionStringSessionID exposes the session granted by the server.
	// Read-only.
	OptionStringSessionID = "adbc.cube.session_id"
	// OptionStringServerVersion exposes the version reported in the
	// handshake. Read-only.
	OptionStringServerVersion = "adbc.cube.server_version"
)

type connectionImpl struct {
	driverbase.ConnectionImplBase

	db     *databaseImpl
	client *nativeClient
}

func (c *connectionImpl) NewStatement() (adbc.Statement, error) {
	if c.Closed {
		return nil, c.ErrorHelper.Errorf(adbc.StatusInvalidState, "connection is closed")
	}
	return driverbase.NewStatement(&statementImpl{
		StatementImplBase: driverbase.NewStatementImplBase(&c.db.DatabaseImplBase, &c.ConnectionImplBase),
		cnxn:              c,
	}), nil
}

func (c *connectionImpl) GetOption(key string) (string, error) {
	switch key {
	case OptionStringSessionID:
		return c.client.SessionID(), nil
	case OptionStringServerVersion:
		return c.client.ServerVersion(), nil
	default:
		return c.ConnectionImplBase.GetOption(key)
	}
}

// Close tears down the socket. Closing an already-closed connection is a
// no-op, matching the protocol's idempotent Close.
func (c *connectionImpl) Close() error {
	if c.Closed {
		return nil
	}
	c.Closed = true
	return c.client.Close()
}
