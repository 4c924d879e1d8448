package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), Config{Enabled: false})
	assert.NoError(t, err)
	assert.Nil(t, tp)
}

func TestBusinessEventSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	be := NewBusinessEvents()

	_, span := be.TraceEventRecorded(context.Background(), "entry", "u1", "f1")
	EndSpan(span, nil)

	_, span = be.TracePrivacySimulation(context.Background(), "f1", 100)
	EndSpan(span, errors.New("fence has no area"))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "event.record", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, "privacy.simulate", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}

func TestInstrumentedHTTPClientRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewInstrumentedHTTPClient("content-repo", 0)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "content-repo GET", ended[0].Name())
}
