package routing

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornic-bolt-driver/pkg/bolt"
	"github.com/orneryd/nornic-bolt-driver/pkg/pool"
)

func fakeConn() *bolt.Connection {
	client, _ := net.Pipe()
	return bolt.NewConnection(client, "test:7687", bolt.Version3)
}

func newTestPool(query RouteQuerier) *Pool {
	dial := pool.Dialer(func(ctx context.Context, addr string) (*bolt.Connection, error) {
		return fakeConn(), nil
	})
	direct := pool.NewPool(dial, pool.Config{MaxSize: 4})
	return NewPool(direct, query, []string{"router1:7687"}, nil)
}

func TestRoutingPool_UpdateRoutingTable_UsesInitialRouterFirst(t *testing.T) {
	queried := []string{}
	query := func(ctx context.Context, router string, rc map[string]any) (map[string]any, error) {
		queried = append(queried, router)
		return sampleRecord(), nil
	}
	p := newTestPool(query)

	require.NoError(t, p.UpdateRoutingTable(context.Background()))
	assert.Equal(t, []string{"router1:7687"}, queried)
	assert.True(t, p.IsFresh(bolt.AccessModeRead))
}

func TestRoutingPool_EnsureFresh_SkipsRefreshWhenFresh(t *testing.T) {
	calls := 0
	query := func(ctx context.Context, router string, rc map[string]any) (map[string]any, error) {
		calls++
		return sampleRecord(), nil
	}
	p := newTestPool(query)
	require.NoError(t, p.EnsureFresh(context.Background(), bolt.AccessModeRead))
	require.NoError(t, p.EnsureFresh(context.Background(), bolt.AccessModeRead))
	assert.Equal(t, 1, calls)
}

func TestRoutingPool_Acquire_PicksFromReaders(t *testing.T) {
	query := func(ctx context.Context, router string, rc map[string]any) (map[string]any, error) {
		return sampleRecord(), nil
	}
	p := newTestPool(query)

	conn, addr, err := p.Acquire(context.Background(), bolt.AccessModeRead)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Contains(t, []string{"s1:7687", "s2:7687"}, addr)
}

func TestRoutingPool_UpdateRoutingTable_DropsDeadRouter(t *testing.T) {
	recWithoutR1 := sampleRecord()
	recWithoutR1["servers"] = []any{
		map[string]any{"role": "ROUTE", "addresses": []any{"r2:7687"}},
		map[string]any{"role": "READ", "addresses": []any{"s1:7687", "s2:7687"}},
		map[string]any{"role": "WRITE", "addresses": []any{"s1:7687"}},
	}
	query := func(ctx context.Context, router string, rc map[string]any) (map[string]any, error) {
		if router == "r1:7687" {
			return nil, nil // dead router, drops connection mid-query
		}
		return recWithoutR1, nil
	}
	p := newTestPool(query)
	// Seed an existing table with routers r1, r2 so the second update uses
	// the "existing routers" branch instead of only the initial router.
	require.NoError(t, p.UpdateRoutingTable(context.Background()))
	p.mu.Lock()
	p.table.Routers = []string{"r1:7687", "r2:7687"}
	p.mu.Unlock()

	require.NoError(t, p.UpdateRoutingTable(context.Background()))
	p.mu.RLock()
	routers := append([]string{}, p.table.Routers...)
	p.mu.RUnlock()
	assert.NotContains(t, routers, "r1:7687")
	assert.Contains(t, routers, "r2:7687")
}

func TestRoutingPool_Acquire_ForcesRefreshWhenCandidatesUnreachable(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	query := func(ctx context.Context, router string, rc map[string]any) (map[string]any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return sampleRecord(), nil
	}
	dial := pool.Dialer(func(ctx context.Context, addr string) (*bolt.Connection, error) {
		return nil, errors.New("dial refused")
	})
	direct := pool.NewPool(dial, pool.Config{MaxSize: 4})
	p := NewPool(direct, query, []string{"router1:7687"}, nil)

	_, _, err := p.Acquire(context.Background(), bolt.AccessModeRead)
	require.Error(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 2,
		"Acquire's fallback must refresh the routing table once every reader has been deactivated")
}

func TestRoutingPool_EnsureFreshAndForcedRefresh_ShareRefreshLock(t *testing.T) {
	query := func(ctx context.Context, router string, rc map[string]any) (map[string]any, error) {
		return sampleRecord(), nil
	}
	p := newTestPool(query)
	require.NoError(t, p.UpdateRoutingTable(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.EnsureFresh(context.Background(), bolt.AccessModeRead)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.forceRefresh(context.Background())
		}()
	}
	wg.Wait()
	assert.True(t, p.IsFresh(bolt.AccessModeRead))
}

func TestRoutingPool_Deactivate_RemovesFromTableAndDirectPool(t *testing.T) {
	query := func(ctx context.Context, router string, rc map[string]any) (map[string]any, error) {
		return sampleRecord(), nil
	}
	p := newTestPool(query)
	require.NoError(t, p.UpdateRoutingTable(context.Background()))

	p.Deactivate("s1:7687")
	p.mu.RLock()
	readers := append([]string{}, p.table.Readers...)
	p.mu.RUnlock()
	assert.NotContains(t, readers, "s1:7687")
}
