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

package driverbase

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-adbc/go/adbc"
	"go.opentelemetry.io/otel/attribute"
)

const (
	UnknownVersion               = "(unknown or development build)"
	DefaultInfoDriverADBCVersion = adbc.AdbcVersion1_1_0
)

var infoValueTypeCodeForInfoCode = map[adbc.InfoCode]adbc.InfoValueTypeCode{
	adbc.InfoVendorName:         adbc.InfoValueStringType,
	adbc.InfoVendorVersion:      adbc.InfoValueStringType,
	adbc.InfoVendorArrowVersion: adbc.InfoValueStringType,
	adbc.InfoDriverName:         adbc.InfoValueStringType,
	adbc.InfoDriverVersion:      adbc.InfoValueStringType,
	adbc.InfoDriverArrowVersion: adbc.InfoValueStringType,
	adbc.InfoDriverADBCVersion:  adbc.InfoValueInt64Type,
	adbc.InfoVendorSql:          adbc.InfoValueBooleanType,
}

const otelInfoSemConv attribute.Key = "cube.adbc.info."

var otelAttrForInfoCode = map[adbc.InfoCode]attribute.Key{
	adbc.InfoVendorName:         otelInfoSemConv + "vendor.name",
	adbc.InfoVendorVersion:      otelInfoSemConv + "vendor.version",
	adbc.InfoDriverName:         otelInfoSemConv + "driver.name",
	adbc.InfoDriverVersion:      otelInfoSemConv + "driver.version",
	adbc.InfoDriverArrowVersion: otelInfoSemConv + "driver.arrow.version",
	adbc.InfoDriverADBCVersion:  otelInfoSemConv + "driver.adbc.version",
	adbc.InfoVendorSql:          otelInfoSemConv + "vendor.sql",
}

// DefaultDriverInfo seeds a DriverInfo with the info codes every driver
// reports, so GetInfo has a stable set of supported codes from the start.
func DefaultDriverInfo(name string) *DriverInfo {
	return &DriverInfo{
		name: name,
		info: map[adbc.InfoCode]any{
			adbc.InfoVendorName:         name,
			adbc.InfoDriverName:         fmt.Sprintf("ADBC %s Driver - Go", name),
			adbc.InfoDriverVersion:      UnknownVersion,
			adbc.InfoDriverArrowVersion: UnknownVersion,
			adbc.InfoVendorVersion:      UnknownVersion,
			adbc.InfoDriverADBCVersion:  DefaultInfoDriverADBCVersion,
		},
	}
}

type DriverInfo struct {
	name string
	info map[adbc.InfoCode]any
}

func (di *DriverInfo) GetName() string { return di.name }

// InfoSupportedCodes reports the registered codes in sorted order. The
// ordering is not part of the API contract.
func (di *DriverInfo) InfoSupportedCodes() []adbc.InfoCode {
	codes := make([]adbc.InfoCode, 0, len(di.info))
	for code := range di.info {
		codes = append(codes, code)
	}
	sort.SliceStable(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// RegisterInfoCode sets the value for an info code, validating the value
// type for the standard codes.
func (di *DriverInfo) RegisterInfoCode(code adbc.InfoCode, value any) error {
	typeCode, isStandard := infoValueTypeCodeForInfoCode[code]
	if !isStandard {
		di.info[code] = value
		return nil
	}

	switch typeCode {
	case adbc.InfoValueStringType:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s: expected info_value %v to be a string but found %T", code, value, value)
		}
	case adbc.InfoValueInt64Type:
		if _, ok := value.(int64); !ok {
			return fmt.Errorf("%s: expected info_value %v to be an int64 but found %T", code, value, value)
		}
	case adbc.InfoValueBooleanType:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected info_value %v to be a bool but found %T", code, value, value)
		}
	}

	di.info[code] = value
	return nil
}

func (di *DriverInfo) GetInfoForInfoCode(code adbc.InfoCode) (any, bool) {
	val, ok := di.info[code]
	return val, ok
}
