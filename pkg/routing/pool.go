package routing

import (
	"context"
	"sync"
	"time"

	"github.com/orneryd/nornic-bolt-driver/pkg/bolt"
	boltErr "github.com/orneryd/nornic-bolt-driver/pkg/errors"
	"github.com/orneryd/nornic-bolt-driver/pkg/pool"
)

// RouteQuerier issues the routing query against a freshly dialed
// connection to router and returns the single routing record it yields, or
// (nil, nil) if router could not be reached or dropped the connection
// mid-query (spec.md §4.7 fetch_routing_info).
type RouteQuerier func(ctx context.Context, router string, routingContext map[string]any) (map[string]any, error)

// Pool is the routing connection pool: an owned Direct Pool plus a
// continuously refreshed Table, dispatching Acquire by access mode.
type Pool struct {
	direct         *pool.Pool
	query          RouteQuerier
	lb             *LoadBalancer
	routingContext map[string]any
	initialRouters []string

	mu    sync.RWMutex
	table *Table

	refreshMu     sync.Mutex
	missingWriter bool
}

// NewPool builds a routing Pool. initialRouters seeds both the first
// refresh attempt and the fallback router used whenever every router in
// the current table has been exhausted.
func NewPool(direct *pool.Pool, query RouteQuerier, initialRouters []string, routingContext map[string]any) *Pool {
	return &Pool{
		direct:         direct,
		query:          query,
		lb:             NewLoadBalancer(),
		routingContext: routingContext,
		initialRouters: initialRouters,
	}
}

// FetchRoutingTable calls query against router and parses its result, or
// returns (nil, nil) if the router yielded no record.
func (p *Pool) FetchRoutingTable(ctx context.Context, router string) (*Table, error) {
	record, err := p.query(ctx, router, p.routingContext)
	if err != nil {
		return nil, boltErr.Wrap(boltErr.ServiceUnavailable, "fetch routing table from %s: %v", router, err)
	}
	if record == nil {
		return nil, nil
	}
	return ParseTable(record, time.Now())
}

// UpdateRoutingTable probes candidate routers in the order spec.md §4.7
// prescribes and, on success, atomically replaces the current table.
func (p *Pool) UpdateRoutingTable(ctx context.Context) error {
	p.mu.RLock()
	current := p.table
	missingWriter := p.missingWriter
	p.mu.RUnlock()

	candidates := p.candidateRouters(current, missingWriter)

	var newTable *Table
	var triedRouters []string
	for _, router := range candidates {
		triedRouters = append(triedRouters, router)
		t, err := p.FetchRoutingTable(ctx, router)
		if err != nil {
			return err
		}
		if t == nil {
			if current != nil {
				current.RemoveRouter(router)
			}
			continue
		}
		newTable = t
		break
	}

	if newTable == nil {
		return boltErr.Wrap(boltErr.ServiceUnavailable, "no router among %v returned a usable routing table", triedRouters)
	}

	p.mu.Lock()
	p.table = newTable
	p.missingWriter = newTable.MissingWriter
	p.mu.Unlock()
	return nil
}

// candidateRouters implements the router probing order: prefer the initial
// router first if the pool is currently missing a writer, otherwise walk
// the current table's routers, falling back to the initial router list if
// none of them is available.
func (p *Pool) candidateRouters(current *Table, missingWriter bool) []string {
	if missingWriter {
		return append(append([]string{}, p.initialRouters...), routersOf(current)...)
	}
	routers := routersOf(current)
	if len(routers) == 0 {
		return p.initialRouters
	}
	return append(append([]string{}, routers...), p.initialRouters...)
}

func routersOf(t *Table) []string {
	if t == nil {
		return nil
	}
	return t.Routers
}

// IsFresh reports whether the current table can serve mode without a
// refresh.
func (p *Pool) IsFresh(mode bolt.AccessMode) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.table.IsFresh(mode)
}

// EnsureFresh refreshes the routing table if it cannot currently serve
// mode. Callers that find the table already fresh never touch the refresh
// lock, so concurrent reads never block on a refresh they don't need.
func (p *Pool) EnsureFresh(ctx context.Context, mode bolt.AccessMode) error {
	if p.IsFresh(mode) {
		return nil
	}
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()
	if p.IsFresh(mode) {
		return nil
	}
	return p.UpdateRoutingTable(ctx)
}

// forceRefresh always calls UpdateRoutingTable, unlike EnsureFresh, but
// still serializes through refreshMu so it never races a concurrent
// EnsureFresh (or another forceRefresh) mutating the table via
// UpdateRoutingTable/RemoveRouter (spec.md §5: "refresh lock serializes
// routing-table refreshes").
func (p *Pool) forceRefresh(ctx context.Context) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()
	return p.UpdateRoutingTable(ctx)
}

// Acquire ensures the table is fresh for mode, picks an address via the
// load balancer, and borrows a Connection from the embedded Direct Pool.
// A failed dial deactivates that address and retries among the remaining
// same-role candidates; if the role's candidate set is exhausted, one
// routing refresh is attempted before giving up with ServiceUnavailable.
func (p *Pool) Acquire(ctx context.Context, mode bolt.AccessMode) (*bolt.Connection, string, error) {
	if err := p.EnsureFresh(ctx, mode); err != nil {
		return nil, "", err
	}

	refreshed := false
	for {
		candidates := p.candidatesForMode(mode)
		for len(candidates) > 0 {
			addr := p.lb.Pick(string(mode), candidates, directPoolCounter{p.direct})
			conn, err := p.direct.Acquire(ctx, addr)
			if err == nil {
				return conn, addr, nil
			}
			p.Deactivate(addr)
			candidates = removeAddr(candidates, addr)
		}

		if refreshed {
			return nil, "", boltErr.Wrap(boltErr.ServiceUnavailable, "no reachable %s servers after routing refresh", mode)
		}
		refreshed = true
		if err := p.forceRefresh(ctx); err != nil {
			return nil, "", err
		}
	}
}

func (p *Pool) candidatesForMode(mode bolt.AccessMode) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.table == nil {
		return nil
	}
	if mode == bolt.AccessModeWrite {
		return append([]string{}, p.table.Writers...)
	}
	return append([]string{}, p.table.Readers...)
}

// Deactivate removes address from every routing-table set and delegates to
// the Direct Pool so no further connections are attempted against it until
// the next refresh rediscovers it.
func (p *Pool) Deactivate(address string) {
	p.mu.Lock()
	if p.table != nil {
		p.table.Deactivate(address)
	}
	p.mu.Unlock()
	p.direct.Deactivate(address)
}

// Release returns conn to the Direct Pool for address.
func (p *Pool) Release(address string, conn *bolt.Connection) {
	p.direct.Release(address, conn)
}

// Close closes the embedded Direct Pool.
func (p *Pool) Close() error {
	return p.direct.Close()
}

type directPoolCounter struct{ direct *pool.Pool }

func (d directPoolCounter) InUse(address string) int { return d.direct.InUse(address) }
