// Package pool implements the direct connection pool (spec.md §4.5): a
// bounded, per-address set of Bolt connections with semaphore-gated
// acquire/release and liveness checks on return.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orneryd/nornic-bolt-driver/pkg/bolt"
	boltErr "github.com/orneryd/nornic-bolt-driver/pkg/errors"
)

// Errors
var (
	ErrPoolClosed = errors.New("pool: closed")

	// ErrAcquireFailed is returned, wrapped as a ClientError, when Acquire's
	// context is done before a slot frees up (spec.md §4.5: "blocks up to
	// connection_acquisition_timeout ... on timeout, fails with
	// ClientError('pool exhausted')").
	ErrAcquireFailed = errors.New("pool: acquire timed out, pool exhausted")
)

// Dialer opens a fresh, authenticated Connection to address. The pool never
// constructs connections itself; it only manages their lifecycle.
type Dialer func(ctx context.Context, address string) (*bolt.Connection, error)

// Config bounds a single address-pool.
type Config struct {
	// MaxSize caps the number of live connections to one address. Zero
	// means DefaultMaxSize.
	MaxSize int

	// MaxConnectionLifetime discards a connection on release once it has
	// lived this long, regardless of health. Zero disables the check.
	MaxConnectionLifetime time.Duration

	// MaxIdleTime discards a connection on acquire if it has sat idle
	// longer than this. Zero disables the check.
	MaxIdleTime time.Duration
}

// DefaultMaxSize matches the driver's default documented pool ceiling.
const DefaultMaxSize = 100

func (c Config) maxSize() int {
	if c.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return c.MaxSize
}

// AddressPool is a bounded pool of connections to one address. It is safe
// for concurrent use.
type AddressPool struct {
	address string
	dial    Dialer
	cfg     Config

	mu     sync.Mutex
	idle   []*bolt.Connection
	sem    chan struct{}
	size   int
	closed atomic.Bool
}

// New creates an AddressPool for address. dial is called (without holding
// the pool's lock) whenever Acquire needs a brand new connection.
func New(address string, dial Dialer, cfg Config) *AddressPool {
	return &AddressPool{
		address: address,
		dial:    dial,
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.maxSize()),
	}
}

// Address returns the address this pool manages connections for.
func (p *AddressPool) Address() string { return p.address }

// InUse returns the number of connections currently checked out.
func (p *AddressPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size - len(p.idle)
}

// Idle returns the number of connections sitting ready for reuse.
func (p *AddressPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Acquire checks out a connection, reusing an idle one if one passes its
// liveness/age checks, dialing a new one if the pool has spare capacity, or
// blocking until ctx is done or a slot frees up.
func (p *AddressPool) Acquire(ctx context.Context) (*bolt.Connection, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, boltErr.Wrap(boltErr.ClientError, "%v: %v", ErrAcquireFailed, ctx.Err())
	}

	for {
		if conn := p.popIdle(); conn != nil {
			if p.isStale(conn) {
				conn.Close()
				p.mu.Lock()
				p.size--
				p.mu.Unlock()
				continue
			}
			conn.MarkUsed(true)
			return conn, nil
		}
		break
	}

	conn, err := p.dial(ctx, p.address)
	if err != nil {
		<-p.sem
		return nil, err
	}
	p.mu.Lock()
	p.size++
	p.mu.Unlock()
	conn.MarkUsed(true)
	return conn, nil
}

func (p *AddressPool) popIdle() *bolt.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	conn := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return conn
}

func (p *AddressPool) isStale(conn *bolt.Connection) bool {
	if conn.State() == bolt.StateDefunct || conn.State() == bolt.StateClosed {
		return true
	}
	if p.cfg.MaxIdleTime > 0 && time.Since(conn.LastUsedAt()) > p.cfg.MaxIdleTime {
		return true
	}
	if p.cfg.MaxConnectionLifetime > 0 && time.Since(conn.CreatedAt()) > p.cfg.MaxConnectionLifetime {
		return true
	}
	return false
}

// Release returns conn to the pool, or discards it (freeing its slot) if it
// is defunct, FAILED, or past its configured lifetime.
func (p *AddressPool) Release(conn *bolt.Connection) {
	conn.MarkUsed(false)

	if p.closed.Load() || p.isStale(conn) || conn.State() == bolt.StateFailed {
		conn.Close()
		p.mu.Lock()
		p.size--
		p.mu.Unlock()
		<-p.sem
		return
	}

	p.mu.Lock()
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
	<-p.sem
}

// Deactivate closes and discards every idle connection, and marks the pool
// closed so Acquire calls made after it fail with ErrPoolClosed (used when
// a server is reported unreachable, e.g. by the routing pool). Acquire
// calls already waiting for a slot are not interrupted, and checked-out
// connections are closed when they are released.
func (p *AddressPool) Deactivate() {
	p.closed.Store(true)
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, conn := range idle {
		conn.Close()
	}
}

// Close closes every idle connection now; connections still checked out
// are closed when they are released.
func (p *AddressPool) Close() error {
	p.Deactivate()
	return nil
}

// Pool manages one AddressPool per address, lazily created on first use.
// The direct pool (spec.md §4.5, a single configured address) and the
// routing pool (§4.7, many addresses drawn from the routing table) are both
// thin wrappers around this type.
type Pool struct {
	dial Dialer
	cfg  Config

	mu    sync.Mutex
	pools map[string]*AddressPool
}

// NewPool creates an empty Pool. dial and cfg apply to every AddressPool it
// creates.
func NewPool(dial Dialer, cfg Config) *Pool {
	return &Pool{dial: dial, cfg: cfg, pools: make(map[string]*AddressPool)}
}

// Acquire checks out a connection to address, creating that address's
// AddressPool on first use.
func (p *Pool) Acquire(ctx context.Context, address string) (*bolt.Connection, error) {
	return p.forAddress(address).Acquire(ctx)
}

// Release returns conn to address's pool.
func (p *Pool) Release(address string, conn *bolt.Connection) {
	p.forAddress(address).Release(conn)
}

// Deactivate closes and drops address's pool entirely, so a later Acquire
// for the same address starts fresh (used when a server is reported
// unreachable and should not be retried with stale idle connections).
func (p *Pool) Deactivate(address string) {
	p.mu.Lock()
	ap, ok := p.pools[address]
	delete(p.pools, address)
	p.mu.Unlock()
	if ok {
		ap.Deactivate()
	}
}

// Addresses lists every address with a live AddressPool.
func (p *Pool) Addresses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.pools))
	for addr := range p.pools {
		out = append(out, addr)
	}
	return out
}

// InUse returns the in-use connection count for address, or 0 if no pool
// for it has been created yet.
func (p *Pool) InUse(address string) int {
	p.mu.Lock()
	ap, ok := p.pools[address]
	p.mu.Unlock()
	if !ok {
		return 0
	}
	return ap.InUse()
}

// Close closes every address-pool this Pool has created.
func (p *Pool) Close() error {
	p.mu.Lock()
	pools := p.pools
	p.pools = make(map[string]*AddressPool)
	p.mu.Unlock()
	for _, ap := range pools {
		ap.Close()
	}
	return nil
}

func (p *Pool) forAddress(address string) *AddressPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ap, ok := p.pools[address]
	if !ok {
		ap = New(address, p.dial, p.cfg)
		p.pools[address] = ap
	}
	return ap
}
