package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

func newTestProvider(t *testing.T) (*Provider, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	p, err := NewWithProviders(
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, spans, reader
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "notary", config.ServiceName)
	assert.Equal(t, "localhost:4317", config.OTLPEndpoint)
	assert.Equal(t, 1.0, config.SampleRate)
	assert.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())

	_, finish := p.TrackOperation(context.Background(), "noop")
	finish(errors.New("ignored"))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_BadCAFile(t *testing.T) {
	_, err := New(context.Background(), &Config{Enabled: true, OTLPEndpoint: "localhost:4317", CAFile: "/nonexistent/ca.pem"})
	assert.Error(t, err)
}

func TestTrackOperation_Success(t *testing.T) {
	p, spans, reader := newTestProvider(t)

	_, finish := p.TrackOperation(context.Background(), "notary.submit_proof", attribute.String("notary.slot", "ab"))
	finish(nil)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "notary.submit_proof", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, int64(1), sumOf(t, reader, "notary.operations.total"))
	assert.Equal(t, int64(0), sumOf(t, reader, "notary.operations.active"))
	assert.Equal(t, int64(0), sumOf(t, reader, "notary.errors.total"))
}

func TestTrackOperation_ErrorClass(t *testing.T) {
	p, spans, reader := newTestProvider(t)

	_, finish := p.TrackOperation(context.Background(), "notary.submit_proof")
	finish(notary.ErrAlreadyExists)
	_, finish = p.TrackOperation(context.Background(), "notary.submit_proof")
	finish(errors.New("disk full"))

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "ALLOCATION", ended[0].Status().Description)
	assert.Equal(t, "INTERNAL", ended[1].Status().Description)
	assert.Equal(t, int64(2), sumOf(t, reader, "notary.errors.total"))
}

func TestProvider_IsNotaryTracker(t *testing.T) {
	var _ notary.Tracker = (*Provider)(nil)
}

func TestHTTPMiddleware(t *testing.T) {
	p, spans, _ := newTestProvider(t)
	h := p.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/proofs", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Len(t, spans.Ended(), 1)
	span := spans.Ended()[0]
	assert.Equal(t, "POST /v1/proofs", span.Name())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
	assert.Contains(t, span.Attributes(), attribute.Int("http.response.status_code", http.StatusCreated))
}
