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

// Package cube is an ADBC driver for the Cube semantic layer speaking its
// Arrow Native TCP protocol (default port 4445). Queries are sent as SQL
// text; results come back as Arrow IPC streams and are exposed as
// array.RecordReader values without re-encoding.
//
// A database is configured either with individual options:
//
//	drv := cube.NewDriver(nil)
//	db, err := drv.NewDatabase(map[string]string{
//		cube.OptionStringHost:  "localhost",
//		cube.OptionStringPort:  "4445",
//		cube.OptionStringToken: "...",
//	})
//
// or with a URI of the form cube://host:port plus a token.
package cube

import (
	"context"
	"runtime/debug"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/exp/maps"

	"github.com/cube-js/cube-adbc-go/internal/driverbase"
)

const (
	OptionStringHost           = "adbc.cube.host"
	OptionStringPort           = "adbc.cube.port"
	OptionStringToken          = "adbc.cube.token"
	OptionStringDatabase       = "adbc.cube.database"
	OptionStringConnectionMode = "adbc.cube.connection_mode"
	OptionTimeoutConnect       = "adbc.cube.timeout_seconds.connect"
	OptionTimeoutQuery         = "adbc.cube.timeout_seconds.query"

	// ConnectionModeNative selects the Arrow Native protocol, the only mode
	// this driver implements.
	ConnectionModeNative = "native"

	defaultPort = 4445
)

var infoVendorVersion string

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == "github.com/cube-js/cube-adbc-go" {
				infoVendorVersion = dep.Version
			}
		}
	}
}

type driverImpl struct {
	driverbase.DriverImplBase
}

// NewDriver creates a new Cube driver using the given Arrow allocator.
func NewDriver(alloc memory.Allocator) adbc.Driver {
	info := driverbase.DefaultDriverInfo("Cube")
	if infoVendorVersion != "" {
		if err := info.RegisterInfoCode(adbc.InfoVendorVersion, infoVendorVersion); err != nil {
			panic(err)
		}
	}
	if err := info.RegisterInfoCode(adbc.InfoVendorSql, true); err != nil {
		panic(err)
	}
	return driverbase.NewDriver(&driverImpl{
		DriverImplBase: driverbase.NewDriverImplBase(info, alloc),
	})
}

func (d *driverImpl) NewDatabase(opts map[string]string) (adbc.Database, error) {
	return d.NewDatabaseWithContext(context.Background(), opts)
}

func (d *driverImpl) NewDatabaseWithContext(ctx context.Context, opts map[string]string) (adbc.Database, error) {
	base, err := driverbase.NewDatabaseImplBase(ctx, &d.DriverImplBase)
	if err != nil {
		return nil, err
	}
	db := &databaseImpl{
		DatabaseImplBase: base,
		port:             defaultPort,
		mode:             ConnectionModeNative,
	}
	if err := db.SetOptions(maps.Clone(opts)); err != nil {
		return nil, err
	}
	return driverbase.NewDatabase(db), nil
}
