package nornicbolt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornic-bolt-driver/pkg/auth"
	"github.com/orneryd/nornic-bolt-driver/pkg/bolt"
	"github.com/orneryd/nornic-bolt-driver/pkg/config"
	"github.com/orneryd/nornic-bolt-driver/pkg/log"
	"github.com/orneryd/nornic-bolt-driver/pkg/resolver"
	"github.com/orneryd/nornic-bolt-driver/pkg/routing"
	"github.com/orneryd/nornic-bolt-driver/pkg/security"
	"github.com/orneryd/nornic-bolt-driver/pkg/telemetry"
)

// blockingPool never returns from Acquire on its own; it only unblocks when
// its ctx is done, so it stands in for a pool stuck at capacity.
type blockingPool struct{}

func (blockingPool) Acquire(ctx context.Context, mode bolt.AccessMode) (*bolt.Connection, string, error) {
	<-ctx.Done()
	return nil, "", ctx.Err()
}
func (blockingPool) Release(address string, conn *bolt.Connection) {}
func (blockingPool) Close() error                                  { return nil }

func TestNewDriver_RejectsInvalidAuthToken(t *testing.T) {
	_, err := NewDriver("bolt://localhost:7687", auth.Basic("", "", ""))
	require.Error(t, err)
}

func TestNewDriver_RejectsUnsupportedScheme(t *testing.T) {
	_, err := NewDriver("http://localhost:7687", auth.None())
	require.Error(t, err)
}

func TestNewDriver_RejectsMissingHost(t *testing.T) {
	_, err := NewDriver("bolt://", auth.None())
	require.Error(t, err)
}

func TestNewDriver_BoltSchemeBuildsDirectPool(t *testing.T) {
	d, err := NewDriver("bolt://db1:7687", auth.None())
	require.NoError(t, err)
	_, ok := d.pool.(directPool)
	assert.True(t, ok)
	assert.False(t, d.cfg.Security.Enabled)
}

func TestNewDriver_BoltSSchemeForcesSystemCATrust(t *testing.T) {
	d, err := NewDriver("bolt+s://db1:7687", auth.None())
	require.NoError(t, err)
	assert.True(t, d.cfg.Security.Enabled)
	assert.Equal(t, security.TrustSystemCA, d.cfg.Security.Trust)
}

func TestNewDriver_BoltSscSchemeForcesAllCertificatesTrust(t *testing.T) {
	d, err := NewDriver("bolt+ssc://db1:7687", auth.None())
	require.NoError(t, err)
	assert.True(t, d.cfg.Security.Enabled)
	assert.Equal(t, security.TrustAllCertificates, d.cfg.Security.Trust)
}

func TestNewDriver_Neo4jSchemeBuildsRoutingPool(t *testing.T) {
	d, err := NewDriver("neo4j://router1:7687", auth.None(),
		config.WithResolver(resolver.Static{Addresses: []string{"router1:7687"}}))
	require.NoError(t, err)
	_, ok := d.pool.(*routing.Pool)
	assert.True(t, ok)
}

func TestNewDriver_ExplicitOptionOverridesDefault(t *testing.T) {
	d, err := NewDriver("bolt://db1:7687", auth.None(), config.WithMaxConnectionPoolSize(5))
	require.NoError(t, err)
	assert.Equal(t, 5, d.cfg.MaxConnectionPoolSize)
}

func TestDriver_AcquireConnection_BoundedByConnectionAcquireTimeout(t *testing.T) {
	metrics, err := telemetry.NewMetrics(nil)
	require.NoError(t, err)
	d := &Driver{
		target:  "bolt://db1:7687",
		cfg:     config.Config{ConnectionAcquireTimeout: 20 * time.Millisecond},
		log:     log.New("error", nil),
		tracer:  telemetry.NewTracer(nil),
		metrics: metrics,
		pool:    blockingPool{},
	}

	start := time.Now()
	_, _, err = d.AcquireConnection(context.Background(), bolt.AccessModeRead)
	elapsed := time.Since(start)

	require.Error(t, err, "a pool stuck at capacity must not block a Background context forever")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, elapsed, time.Second, "acquire must be bounded by cfg.ConnectionAcquireTimeout")
}

func TestDriver_String_NeverLeaksCredentials(t *testing.T) {
	d, err := NewDriver("bolt://db1:7687", auth.Basic("neo4j", "supersecret", ""))
	require.NoError(t, err)
	assert.NotContains(t, d.String(), "supersecret")
	assert.Contains(t, d.String(), "db1:7687")
}
