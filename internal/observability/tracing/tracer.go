// Package tracing exposes the application's OpenTelemetry tracer. Exporter
// wiring is the deployment platform's concern; in-process code only creates
// spans through the global tracer.
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("grantpath")

// GetTracer returns the global tracer for creating spans.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "operation-name")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}
