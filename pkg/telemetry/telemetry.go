// Package telemetry defines the driver's OpenTelemetry instruments: gauges
// for in-use/idle connection counts, a histogram for acquire latency, a
// counter for routing refreshes, and a tracer with connect/handshake/run/
// routing-refresh spans. The Driver facade records acquire latency and the
// in-use count and opens the connect span; the pool, routing, and
// connection packages do not use this package, so the idle gauge, the
// refresh counter, and the other spans are not recorded.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/orneryd/nornic-bolt-driver"

// Metrics bundles the driver's instrument set. Build it with NewMetrics:
// the zero value has nil instruments. When no MeterProvider is configured,
// NewMetrics uses the global one, whose instruments are no-ops until a
// provider is installed.
type Metrics struct {
	PoolInUse        metric.Int64UpDownCounter
	PoolIdle         metric.Int64UpDownCounter
	AcquireDuration  metric.Float64Histogram
	RoutingRefreshes metric.Int64Counter
}

// NewMetrics registers the driver's instruments against provider (or the
// global MeterProvider if nil).
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)

	poolInUse, err := meter.Int64UpDownCounter("bolt_pool_in_use",
		metric.WithDescription("connections currently checked out, per address"))
	if err != nil {
		return nil, err
	}
	poolIdle, err := meter.Int64UpDownCounter("bolt_pool_idle",
		metric.WithDescription("connections idle and available for reuse, per address"))
	if err != nil {
		return nil, err
	}
	acquireDuration, err := meter.Float64Histogram("bolt_pool_acquire_duration_seconds",
		metric.WithDescription("time spent in Pool.Acquire, including any dial"))
	if err != nil {
		return nil, err
	}
	routingRefreshes, err := meter.Int64Counter("bolt_routing_refresh_total",
		metric.WithDescription("routing table refresh attempts"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		PoolInUse:        poolInUse,
		PoolIdle:         poolIdle,
		AcquireDuration:  acquireDuration,
		RoutingRefreshes: routingRefreshes,
	}, nil
}

// Tracer wraps the spans the driver emits around blocking operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer against provider (or the global
// TracerProvider if nil).
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(instrumentationName)}
}

// StartConnect starts the "bolt.connect" span covering dial+handshake+hello.
func (t *Tracer) StartConnect(ctx context.Context, address string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "bolt.connect", trace.WithAttributes(addressAttr(address)))
}

// StartHandshake starts the "bolt.handshake" span.
func (t *Tracer) StartHandshake(ctx context.Context, address string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "bolt.handshake", trace.WithAttributes(addressAttr(address)))
}

// StartRun starts the "bolt.run" span for a RUN/PULL round trip.
func (t *Tracer) StartRun(ctx context.Context, cypher string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "bolt.run")
}

// StartRoutingRefresh starts the "bolt.routing.refresh" span.
func (t *Tracer) StartRoutingRefresh(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "bolt.routing.refresh")
}

func addressAttr(address string) attribute.KeyValue {
	return attribute.String("bolt.address", address)
}
