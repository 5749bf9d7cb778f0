package llmprovider

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/haowjy/meridian-stream-go"

// streamMetrics records session instrumentation through the global
// MeterProvider. Instruments are no-ops until a provider is installed with
// otel.SetMeterProvider.
type streamMetrics struct {
	chunks           metric.Int64Counter
	decodeErrors     metric.Int64Counter
	backpressureWait metric.Int64Counter
	sessions         metric.Int64Counter
}

func newStreamMetrics() *streamMetrics {
	meter := otel.Meter(instrumentationName)
	m := &streamMetrics{}
	m.chunks = counter(meter, "llm.stream.chunks", "Chunks delivered to the session queue.")
	m.decodeErrors = counter(meter, "llm.stream.decode_errors", "Frames skipped because they could not be decoded.")
	m.backpressureWait = counter(meter, "llm.stream.backpressure_waits", "Times the producer blocked on a full queue.")
	m.sessions = counter(meter, "llm.stream.sessions", "Sessions reaching a terminal state, by outcome.")
	return m
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil || c == nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return c
}

func (m *streamMetrics) addChunks(ctx context.Context, n int, provider ProviderID) {
	if n == 0 {
		return
	}
	m.chunks.Add(ctx, int64(n), metric.WithAttributes(attribute.String("provider", provider.String())))
}

func (m *streamMetrics) decodeError(ctx context.Context, provider ProviderID) {
	m.decodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider.String())))
}

func (m *streamMetrics) backpressure(ctx context.Context, provider ProviderID) {
	m.backpressureWait.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider.String())))
}

func (m *streamMetrics) terminated(ctx context.Context, provider ProviderID, outcome string) {
	m.sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider.String()),
		attribute.String("outcome", outcome),
	))
}
