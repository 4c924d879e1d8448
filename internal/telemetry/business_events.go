package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessEvents starts spans for domain operations that are heavier than a
// single query: recording an event, computing analytics, running the
// cloaking simulation.
type BusinessEvents struct {
	tracer trace.Tracer
}

// NewBusinessEvents creates a business events tracer from the global provider
func NewBusinessEvents() *BusinessEvents {
	return &BusinessEvents{tracer: otel.Tracer("geoaware.business")}
}

// TraceEventRecorded wraps the creation of a tracking event
func (be *BusinessEvents) TraceEventRecorded(ctx context.Context, eventType, userID, fenceID string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "event.record",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("user.id", userID),
			attribute.String("geofence.id", fenceID),
		),
	)
}

// TraceAnalytics wraps the computation of an analytics report
func (be *BusinessEvents) TraceAnalytics(ctx context.Context, report string, cached bool) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "analytics."+report,
		trace.WithAttributes(
			attribute.String("analytics.report", report),
			attribute.Bool("cache.hit", cached),
		),
	)
}

// TracePrivacySimulation wraps one cloaking simulation run
func (be *BusinessEvents) TracePrivacySimulation(ctx context.Context, fenceID string, iterations int) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "privacy.simulate",
		trace.WithAttributes(
			attribute.String("geofence.id", fenceID),
			attribute.Int("privacy.iterations", iterations),
		),
	)
}

// EndSpan records err on span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
