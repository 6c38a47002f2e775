// Scan-pipeline instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Scan-pipeline semantic convention attributes.
var (
	AttrScanID    = attribute.Key("athscan.scan.id")
	AttrSymbology = attribute.Key("athscan.scan.symbology")

	AttrDecision      = attribute.Key("athscan.decision")
	AttrMissingGSMode = attribute.Key("athscan.missing_gs.mode")

	AttrIdempotencyOutcome = attribute.Key("athscan.idempotency.outcome")

	AttrPostingIntent = attribute.Key("athscan.posting.intent")
	AttrCommitStatus  = attribute.Key("athscan.commit.status")
	AttrCommitDedupe  = attribute.Key("athscan.commit.dedupe")

	AttrPolicyVersion = attribute.Key("athscan.policy.version")
)

// EvaluateOperation creates attributes for scan evaluation.
func EvaluateOperation(scanID, decision, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrScanID.String(scanID),
		AttrDecision.String(decision),
		AttrIdempotencyOutcome.String(outcome),
	}
}

// CommitOperation creates attributes for posting commits.
func CommitOperation(scanID, intent, status, dedupe string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrScanID.String(scanID),
		AttrPostingIntent.String(intent),
		AttrCommitStatus.String(status),
		AttrCommitDedupe.String(dedupe),
	}
}

// PolicyOperation creates attributes for policy activation.
func PolicyOperation(version int, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPolicyVersion.Int(version),
		attribute.String("athscan.policy.action", action),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
