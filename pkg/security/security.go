// Package security implements the driver's connection security plan: how a
// trust mode (spec.md §5) turns into a *tls.Config for Dial, or into no TLS
// at all.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
)

// Errors
var (
	ErrCustomCANotImplemented = errors.New("security: TRUST_CUSTOM_CA_SIGNED_CERTIFICATES requires CAFile, none configured")
	ErrNoCertificates         = errors.New("security: no CA certificates found in CAFile")
)

// TrustMode selects how server certificates are validated when
// Config.Enabled is true. It has no effect when Enabled is false.
type TrustMode int

const (
	// TrustSystemCA validates the server certificate against the host's
	// system trust store. This is the default for neo4j+s:// and bolt+s://.
	TrustSystemCA TrustMode = iota

	// TrustAllCertificates accepts any server certificate without
	// validation. Matches neo4j+ssc:// / bolt+ssc:// (self-signed).
	TrustAllCertificates

	// TrustCustomCA validates against a caller-supplied CA bundle
	// (Config.CAFile). Unlike the other two modes this one requires
	// configuration; NewTLSConfig returns ErrCustomCANotImplemented if
	// CAFile is empty.
	TrustCustomCA
)

// Config holds the connection security settings resolved from a URI scheme
// and/or explicit driver options.
type Config struct {
	// Enabled toggles TLS entirely. False means Dial never wraps the
	// socket, regardless of Trust.
	Enabled bool

	// Trust selects certificate validation behavior when Enabled is true.
	Trust TrustMode

	// CAFile is a PEM bundle used only when Trust == TrustCustomCA.
	CAFile string

	// ServerName overrides SNI / hostname verification, for cases where the
	// dial address and the certificate's subject differ (e.g. routing
	// through a load balancer).
	ServerName string
}

// NewTLSConfig builds the *tls.Config Dial should use, or nil if TLS is
// disabled. It never mutates cfg.
func NewTLSConfig(cfg Config) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: cfg.ServerName,
	}

	switch cfg.Trust {
	case TrustAllCertificates:
		tlsCfg.InsecureSkipVerify = true
	case TrustCustomCA:
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	case TrustSystemCA:
		// Leave RootCAs nil: crypto/tls falls back to the system pool.
	}

	return tlsCfg, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, ErrCustomCANotImplemented
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, ErrNoCertificates
	}
	return pool, nil
}
