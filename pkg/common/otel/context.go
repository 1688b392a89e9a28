package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// GetTraceID returns the active span's trace id, or the zero id when the
// context carries no valid span. Log records use it to correlate with traces.
func GetTraceID(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return "00000000000000000000000000000000"
}
