// Package config defines the driver's configuration surface (spec.md §6):
// pool sizing, timeouts, the security plan, and logging, expressed as a
// struct built either via functional options or loaded from a YAML file.
package config

import (
	"time"

	"github.com/orneryd/nornic-bolt-driver/pkg/resolver"
	"github.com/orneryd/nornic-bolt-driver/pkg/security"
)

// Config is the fully-resolved set of driver options. Zero value plus
// ApplyDefaults is a usable, insecure, single-address configuration.
type Config struct {
	MaxConnectionPoolSize    int           `mapstructure:"max_connection_pool_size"`
	MaxConnectionLifetime    time.Duration `mapstructure:"max_connection_lifetime"`
	MaxIdleTime              time.Duration `mapstructure:"max_idle_time"`
	ConnectionAcquireTimeout time.Duration `mapstructure:"connection_acquire_timeout"`
	ConnectTimeout           time.Duration `mapstructure:"connect_timeout"`
	SocketReadTimeout        time.Duration `mapstructure:"socket_read_timeout"`
	KeepAlive                bool          `mapstructure:"keep_alive"`
	UserAgent                string        `mapstructure:"user_agent"`

	Security security.Config `mapstructure:"security"`

	LogLevel string `mapstructure:"log_level"`

	// RoutingContext is forwarded verbatim to GET_ROUTING_TABLE/ROUTE.
	RoutingContext map[string]any `mapstructure:"routing_context"`

	// Resolver expands the target address before dialing. Not settable from
	// a config file; only via WithResolver. Defaults to resolver.System{}.
	Resolver resolver.Resolver `mapstructure:"-"`
}

// Option mutates a Config being built by New.
type Option func(*Config)

// DefaultUserAgent identifies this driver to the server in HELLO/INIT.
const DefaultUserAgent = "nornic-bolt-driver/0.1"

// New applies ApplyDefaults followed by every opts in order.
func New(opts ...Option) Config {
	cfg := Config{}
	ApplyDefaults(&cfg)
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ApplyDefaults fills zero fields with the driver's documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.MaxConnectionPoolSize == 0 {
		cfg.MaxConnectionPoolSize = 100
	}
	if cfg.ConnectionAcquireTimeout == 0 {
		cfg.ConnectionAcquireTimeout = 60 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolver.System{}
	}
}

// WithMaxConnectionPoolSize bounds the number of live connections per address.
func WithMaxConnectionPoolSize(n int) Option {
	return func(c *Config) { c.MaxConnectionPoolSize = n }
}

// WithMaxConnectionLifetime discards a pooled connection once it has lived
// this long.
func WithMaxConnectionLifetime(d time.Duration) Option {
	return func(c *Config) { c.MaxConnectionLifetime = d }
}

// WithMaxIdleTime discards a pooled connection that has sat idle this long.
func WithMaxIdleTime(d time.Duration) Option {
	return func(c *Config) { c.MaxIdleTime = d }
}

// WithConnectTimeout bounds how long Dial waits for the TCP handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithSocketReadTimeout bounds how long FetchAll waits for a response
// before treating the connection as defunct.
func WithSocketReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.SocketReadTimeout = d }
}

// WithEncrypted toggles TLS and selects a trust mode in one call, matching
// how the URI scheme (bolt+s/bolt+ssc/neo4j+s/neo4j+ssc) implies both.
func WithEncrypted(trust security.TrustMode) Option {
	return func(c *Config) {
		c.Security.Enabled = true
		c.Security.Trust = trust
	}
}

// WithCustomCA configures TrustCustomCA with the given PEM bundle path.
func WithCustomCA(path string) Option {
	return func(c *Config) {
		c.Security.Enabled = true
		c.Security.Trust = security.TrustCustomCA
		c.Security.CAFile = path
	}
}

// WithUserAgent overrides the default HELLO/INIT user agent string.
func WithUserAgent(agent string) Option {
	return func(c *Config) { c.UserAgent = agent }
}

// WithRoutingContext sets the context map forwarded to routing queries.
func WithRoutingContext(ctx map[string]any) Option {
	return func(c *Config) { c.RoutingContext = ctx }
}

// WithLogLevel sets the default logger's level ("debug", "info", "warn",
// "error").
func WithLogLevel(level string) Option {
	return func(c *Config) { c.LogLevel = level }
}

// WithResolver overrides the default OS resolver (resolver.System) used to
// expand the driver's target address before dialing.
func WithResolver(r resolver.Resolver) Option {
	return func(c *Config) { c.Resolver = r }
}
