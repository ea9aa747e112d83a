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
	"context"
	"io"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const traceParentHeader = "traceparent"

// nilLogger returns a logger that discards everything. Databases get a real
// logger only when the client application calls SetLogger.
func nilLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

func nilTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("")
}

// traceParented is anything carrying an externally supplied W3C trace parent.
type traceParented interface {
	GetTraceParent() string
}

// maybeAddTraceParent injects the first non-empty trace parent found among
// the given sources into ctx, so spans started from it become children of
// the external trace.
func maybeAddTraceParent(ctx context.Context, sources ...traceParented) context.Context {
	for _, src := range sources {
		if src == nil {
			continue
		}
		if parent := src.GetTraceParent(); parent != "" {
			carrier := propagation.MapCarrier{traceParentHeader: parent}
			return propagation.TraceContext{}.Extract(ctx, carrier)
		}
	}
	return ctx
}

func getInitialSpanAttributes(driverInfo *DriverInfo) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(driverInfo.info))
	for _, code := range driverInfo.InfoSupportedCodes() {
		key, ok := otelAttrForInfoCode[code]
		if !ok {
			continue
		}
		value, ok := driverInfo.GetInfoForInfoCode(code)
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			attrs = append(attrs, key.String(v))
		case bool:
			attrs = append(attrs, key.Bool(v))
		case int64:
			attrs = append(attrs, key.Int64(v))
		}
	}
	return attrs
}
