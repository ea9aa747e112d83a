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
	"net/url"
	"strconv"
	"time"

	"github.com/apache/arrow-adbc/go/adbc"

	"github.com/cube-js/cube-adbc-go/internal/driverbase"
)

type databaseImpl struct {
	driverbase.DatabaseImplBase

	host     string
	port     int
	token    string
	database string
	mode     string

	connectTimeout time.Duration
	queryTimeout   time.Duration
}

func (db *databaseImpl) SetOptions(opts map[string]string) error {
	for key, val := range opts {
		if err := db.SetOption(key, val); err != nil {
			return err
		}
	}
	return nil
}

func (db *databaseImpl) SetOption(key, value string) error {
	switch key {
	case adbc.OptionKeyURI:
		uri, err := url.Parse(value)
		if err != nil {
			return db.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "invalid URI '%s': %s", value, err)
		}
		if uri.Scheme != "cube" {
			return db.ErrorHelper.Errorf(adbc.StatusInvalidArgument,
				"invalid URI scheme '%s', expected cube://host:port", uri.Scheme)
		}
		db.host = uri.Hostname()
		if portStr := uri.Port(); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return db.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "invalid port '%s'", portStr)
			}
			db.port = port
		}
	case OptionStringHost:
		db.host = value
	case OptionStringPort:
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			return db.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "invalid port '%s'", value)
		}
		db.port = port
	case OptionStringToken:
		db.token = value
	case OptionStringDatabase:
		db.database = value
	case OptionStringConnectionMode:
		if value != ConnectionModeNative {
			return db.ErrorHelper.Errorf(adbc.StatusNotImplemented,
				"connection mode '%s' is not supported by this driver, use '%s'", value, ConnectionModeNative)
		}
		db.mode = value
	case OptionTimeoutConnect:
		timeout, err := parseTimeout(value)
		if err != nil {
			return db.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "invalid timeout '%s' for %s", value, key)
		}
		db.connectTimeout = timeout
	case OptionTimeoutQuery:
		timeout, err := parseTimeout(value)
		if err != nil {
			return db.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "invalid timeout '%s' for %s", value, key)
		}
		db.queryTimeout = timeout
	default:
		return db.DatabaseImplBase.SetOption(key, value)
	}
	return nil
}

func (db *databaseImpl) GetOption(key string) (string, error) {
	switch key {
	case OptionStringHost:
		return db.host, nil
	case OptionStringPort:
		return strconv.Itoa(db.port), nil
	case OptionStringDatabase:
		return db.database, nil
	case OptionStringConnectionMode:
		return db.mode, nil
	default:
		return db.DatabaseImplBase.GetOption(key)
	}
}

func (db *databaseImpl) validate() error {
	if db.host == "" {
		return db.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "%s is required", OptionStringHost)
	}
	if db.token == "" {
		return db.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "%s is required", OptionStringToken)
	}
	return nil
}

// Open dials the server, performs the handshake and authenticates. The
// returned connection owns the socket.
func (db *databaseImpl) Open(ctx context.Context) (adbc.Connection, error) {
	if err := db.validate(); err != nil {
		return nil, err
	}

	client := newNativeClient(db.host, db.port, db.ErrorHelper, db.Logger)
	client.connectTimeout = db.connectTimeout
	client.queryTimeout = db.queryTimeout

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	if err := client.Authenticate(ctx, db.token, db.database); err != nil {
		client.Close()
		return nil, err
	}

	if version := client.ServerVersion(); version != "" {
		if err := db.DriverInfo.RegisterInfoCode(adbc.InfoVendorVersion, version); err != nil {
			db.Logger.Warn("failed to register server version", "error", err)
		}
	}

	cnxn := &connectionImpl{
		ConnectionImplBase: driverbase.NewConnectionImplBase(&db.DatabaseImplBase),
		db:                 db,
		client:             client,
	}
	return driverbase.NewConnection(cnxn), nil
}

func (db *databaseImpl) Close() error {
	return db.DatabaseImplBase.Close()
}

func parseTimeout(value string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 {
		return 0, strconv.ErrSyntax
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
