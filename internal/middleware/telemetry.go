package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware starts a server span per request using otelgin
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// SpanEnrichmentMiddleware tags the active span with the caller and the
// resource being touched, then records the outcome. It must run after
// TracingMiddleware and the auth middleware so the span is still open.
func SpanEnrichmentMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if fenceID := c.Param("fenceId"); fenceID != "" {
			span.SetAttributes(attribute.String("geofence.id", fenceID))
		}
		if id := c.Param("id"); id != "" {
			span.SetAttributes(attribute.String("resource.id", id))
		}
		if iterations := c.Query("iterations"); iterations != "" {
			span.SetAttributes(attribute.String("privacy.iterations", iterations))
		}

		c.Next()

		if userID := c.GetString("user_id"); userID != "" {
			span.SetAttributes(attribute.String("user.id", userID))
		}
		if requestID := c.GetString("request_id"); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}

		for _, ginErr := range c.Errors {
			if ginErr.Err != nil {
				span.RecordError(ginErr.Err, trace.WithStackTrace(true))
			}
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			span.SetStatus(codes.Error, "Server error")
		case status >= 400 && status != 404:
			span.SetStatus(codes.Error, "Client error")
		}
		if size := c.Writer.Size(); size > 0 {
			span.SetAttributes(attribute.Int64("http.response.size_bytes", int64(size)))
		}
	}
}
