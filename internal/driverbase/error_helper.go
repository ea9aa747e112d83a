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

	"github.com/apache/arrow-adbc/go/adbc"
)

// ErrorHelper builds adbc.Error values with a consistent driver-name prefix.
type ErrorHelper struct {
	DriverName string
}

// Errorf is equivalent to fmt.Errorf but returns an adbc.Error carrying the
// given status code.
func (helper *ErrorHelper) Errorf(code adbc.Status, message string, args ...any) error {
	return adbc.Error{
		Msg:  fmt.Sprintf("[%s] %s", helper.DriverName, fmt.Sprintf(message, args...)),
		Code: code,
	}
}

// IO wraps a transport-level error, preserving an existing adbc.Error if the
// cause already carries one.
func (helper *ErrorHelper) IO(err error) error {
	if err == nil {
		return nil
	}
	if adbcErr, ok := err.(adbc.Error); ok {
		return adbcErr
	}
	return helper.Errorf(adbc.StatusIO, "%s", err.Error())
}
