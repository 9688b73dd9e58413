package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersInstruments(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.PoolInUse.Add(ctx, 1)
		m.PoolIdle.Add(ctx, 1)
		m.AcquireDuration.Record(ctx, 0.01)
		m.RoutingRefreshes.Add(ctx, 1)
	})
}

func TestNewTracer_StartsSpans(t *testing.T) {
	tr := NewTracer(nil)
	require.NotNil(t, tr)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		_, span := tr.StartConnect(ctx, "a:7687")
		span.End()
		_, span = tr.StartHandshake(ctx, "a:7687")
		span.End()
		_, span = tr.StartRun(ctx, "RETURN 1")
		span.End()
		_, span = tr.StartRoutingRefresh(ctx)
		span.End()
	})
}
