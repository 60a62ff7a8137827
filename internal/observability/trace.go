package observability

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RecordError marks span failed and returns err unchanged so callers can
// `return observability.RecordError(span, err, "...")`.
func RecordError(span trace.Span, err error, description string) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
	return err
}
