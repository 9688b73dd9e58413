// Package nornicbolt is the module root: the Driver facade that ties the
// security plan, address resolver, auth token, and either the Direct Pool
// or the Routing Pool into the single surface an external collaborator
// (sessions, transactions, typed query results) is built on top of.
package nornicbolt

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/orneryd/nornic-bolt-driver/pkg/auth"
	"github.com/orneryd/nornic-bolt-driver/pkg/bolt"
	"github.com/orneryd/nornic-bolt-driver/pkg/config"
	boltErr "github.com/orneryd/nornic-bolt-driver/pkg/errors"
	"github.com/orneryd/nornic-bolt-driver/pkg/log"
	"github.com/orneryd/nornic-bolt-driver/pkg/pool"
	"github.com/orneryd/nornic-bolt-driver/pkg/routing"
	"github.com/orneryd/nornic-bolt-driver/pkg/security"
	"github.com/orneryd/nornic-bolt-driver/pkg/telemetry"
)

// scheme describes what a parsed target URI implies about pooling and TLS.
type scheme struct {
	routed bool
	trust  security.TrustMode
	secure bool
}

var schemes = map[string]scheme{
	"bolt":      {routed: false, secure: false},
	"bolt+s":    {routed: false, secure: true, trust: security.TrustSystemCA},
	"bolt+ssc":  {routed: false, secure: true, trust: security.TrustAllCertificates},
	"neo4j":     {routed: true, secure: false},
	"neo4j+s":   {routed: true, secure: true, trust: security.TrustSystemCA},
	"neo4j+ssc": {routed: true, secure: true, trust: security.TrustAllCertificates},
}

// acquirer is the minimal surface both pool.Pool and routing.Pool expose to
// a Driver; it lets AcquireConnection stay agnostic to which one backs it.
type acquirer interface {
	Acquire(ctx context.Context, mode bolt.AccessMode) (*bolt.Connection, string, error)
	Release(address string, conn *bolt.Connection)
	Close() error
}

// Driver is the module's top-level facade (spec.md SPEC_FULL.md §4.13): the
// only thing an external collaborator needs to obtain a ready Connection.
type Driver struct {
	target string
	cfg    config.Config
	auth   auth.Token

	pool acquirer

	log     log.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
}

// NewDriver parses target, resolves the security plan it implies, and
// builds either a Direct Pool (bolt*) or a Routing Pool (neo4j*) backing
// the returned Driver. authToken is validated once here, client-side, so a
// malformed token never reaches the wire (spec.md §7).
func NewDriver(target string, authToken auth.Token, opts ...config.Option) (*Driver, error) {
	if err := authToken.Validate(); err != nil {
		return nil, err
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, boltErr.Wrap(boltErr.ClientError, "parse target %q: %v", target, err)
	}
	sc, ok := schemes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, boltErr.Wrap(boltErr.ClientError, "unsupported scheme %q", u.Scheme)
	}
	address := u.Host
	if address == "" {
		return nil, boltErr.Wrap(boltErr.ClientError, "target %q has no host", target)
	}

	cfg := config.New(opts...)
	if sc.secure {
		cfg.Security.Enabled = true
		cfg.Security.Trust = sc.trust
	}

	logger := log.New(cfg.LogLevel, nil)
	tracer := telemetry.NewTracer(nil)
	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		target:  target,
		cfg:     cfg,
		auth:    authToken,
		log:     logger,
		tracer:  tracer,
		metrics: metrics,
	}

	dial := d.dialer()
	direct := pool.NewPool(dial, pool.Config{
		MaxSize:               cfg.MaxConnectionPoolSize,
		MaxConnectionLifetime: cfg.MaxConnectionLifetime,
		MaxIdleTime:           cfg.MaxIdleTime,
	})

	if !sc.routed {
		d.pool = directPool{address: address, p: direct}
		return d, nil
	}

	seeds, err := cfg.Resolver.Resolve(context.Background(), address)
	if err != nil {
		return nil, boltErr.Wrap(boltErr.ServiceUnavailable, "resolve initial routers for %s: %v", address, err)
	}
	if len(seeds) == 0 {
		seeds = []string{address}
	}

	querier := routing.NewQuerier(routing.ConnectFunc(dial))
	d.pool = routing.NewPool(direct, querier, seeds, cfg.RoutingContext)
	return d, nil
}

// dialer builds the pool.Dialer every address pool (direct or routing) uses
// to open a fresh, authenticated connection: Dial, then Hello, then Sync.
func (d *Driver) dialer() pool.Dialer {
	return func(ctx context.Context, address string) (*bolt.Connection, error) {
		ctx, span := d.tracer.StartConnect(ctx, address)
		defer span.End()

		tlsCfg, err := security.NewTLSConfig(d.cfg.Security)
		if err != nil {
			return nil, err
		}

		conn, err := bolt.Dial(ctx, address, bolt.DialOptions{
			TLSConfig:      tlsCfg,
			ConnectTimeout: d.cfg.ConnectTimeout,
			KeepAlive:      d.cfg.KeepAlive,
			ReadTimeout:    d.cfg.SocketReadTimeout,
		})
		if err != nil {
			d.log.WithError(err).WithField("address", address).Warn("dial failed")
			return nil, err
		}

		var helloErr error
		handle := &bolt.ResponseHandle{
			OnFailure: func(meta map[string]any) {
				helloErr = boltErr.Wrap(boltErr.AuthError, "%v", boltErr.NewFailureError(meta))
			},
			OnError: func(err error) { helloErr = err },
		}
		conn.Hello(d.cfg.UserAgent, d.auth.Fields(), handle)
		if err := conn.Sync(); err != nil {
			conn.Close()
			return nil, err
		}
		if helloErr != nil {
			conn.Close()
			return nil, helloErr
		}
		return conn, nil
	}
}

// AcquireConnection borrows a ready Connection suited to mode from the
// Driver's pool, bounded by cfg.ConnectionAcquireTimeout (spec.md §4.5:
// "blocks up to connection_acquisition_timeout ... on timeout, fails with
// ClientError('pool exhausted')"). On success, release must be called
// exactly once to return the connection to its pool; on error, release is
// nil.
func (d *Driver) AcquireConnection(ctx context.Context, mode bolt.AccessMode) (conn *bolt.Connection, release func(), err error) {
	if d.cfg.ConnectionAcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.ConnectionAcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	conn, address, err := d.pool.Acquire(ctx, mode)
	d.metrics.AcquireDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, nil, err
	}
	d.metrics.PoolInUse.Add(ctx, 1)
	release = func() {
		d.pool.Release(address, conn)
		d.metrics.PoolInUse.Add(ctx, -1)
	}
	return conn, release, nil
}

// VerifyConnectivity acquires and releases one connection to prove target
// is reachable and the auth token is accepted.
func (d *Driver) VerifyConnectivity(ctx context.Context) error {
	conn, release, err := d.AcquireConnection(ctx, bolt.AccessModeRead)
	if err != nil {
		return err
	}
	defer release()
	d.log.WithField("server", conn.ServerInfo().Address).Debug("connectivity verified")
	return nil
}

// Close closes the underlying pool and every connection it holds.
func (d *Driver) Close(ctx context.Context) error {
	return d.pool.Close()
}

// directPool adapts pool.Pool (address-keyed) to the acquirer interface,
// which speaks in terms of AccessMode, for a Driver pointed at a single
// bolt:// address rather than a routing table.
type directPool struct {
	address string
	p       *pool.Pool
}

func (d directPool) Acquire(ctx context.Context, mode bolt.AccessMode) (*bolt.Connection, string, error) {
	conn, err := d.p.Acquire(ctx, d.address)
	return conn, d.address, err
}

func (d directPool) Release(address string, conn *bolt.Connection) { d.p.Release(address, conn) }
func (d directPool) Close() error                                  { return d.p.Close() }

var _ fmt.Stringer = (*Driver)(nil)

// String renders the Driver's target for logging, never its auth token.
func (d *Driver) String() string { return fmt.Sprintf("Driver(%s)", d.target) }
