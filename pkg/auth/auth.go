// Package auth implements the client-side AuthToken carried in HELLO/INIT
// (spec.md §7). It never talks to the server directly; Connection.Hello
// serializes whatever map Token.Fields() returns.
package auth

import (
	"errors"

	boltErr "github.com/orneryd/nornic-bolt-driver/pkg/errors"
)

// Errors for token construction.
var (
	ErrEmptyPrincipal   = errors.New("auth: principal must not be empty")
	ErrEmptyCredentials = errors.New("auth: credentials must not be empty")
	ErrUnknownScheme    = errors.New("auth: unknown scheme")
)

// Scheme names the HELLO/INIT auth scheme.
type Scheme string

const (
	SchemeNone     Scheme = "none"
	SchemeBasic    Scheme = "basic"
	SchemeBearer   Scheme = "bearer"
	SchemeKerberos Scheme = "kerberos"
	SchemeCustom   Scheme = "custom"
)

// Token is the client-side auth token assembled before HELLO/INIT is sent.
// Validation happens once, client-side, so a malformed token never reaches
// the wire as AuthError per spec.md §7.
type Token struct {
	Scheme      Scheme
	Principal   string
	Credentials string
	Realm       string
	Parameters  map[string]any
}

// Basic builds a username/password Token.
func Basic(principal, credentials, realm string) Token {
	return Token{Scheme: SchemeBasic, Principal: principal, Credentials: credentials, Realm: realm}
}

// Bearer builds a token-carrying Token (SSO / OIDC access tokens).
func Bearer(token string) Token {
	return Token{Scheme: SchemeBearer, Credentials: token}
}

// None builds an unauthenticated Token, valid only against servers with
// auth disabled.
func None() Token {
	return Token{Scheme: SchemeNone}
}

// Validate rejects a Token before it is ever sent, matching the schemes that
// require non-empty fields. Unknown non-custom schemes are rejected outright
// since the server has no way to interpret them either.
func (t Token) Validate() error {
	switch t.Scheme {
	case SchemeNone, SchemeCustom:
		return nil
	case SchemeBasic, SchemeKerberos:
		if t.Principal == "" {
			return boltErr.Wrap(boltErr.AuthError, "%v", ErrEmptyPrincipal)
		}
		if t.Credentials == "" {
			return boltErr.Wrap(boltErr.AuthError, "%v", ErrEmptyCredentials)
		}
		return nil
	case SchemeBearer:
		if t.Credentials == "" {
			return boltErr.Wrap(boltErr.AuthError, "%v", ErrEmptyCredentials)
		}
		return nil
	default:
		return boltErr.Wrap(boltErr.AuthError, "%v: %q", ErrUnknownScheme, t.Scheme)
	}
}

// Fields renders the Token as the map Connection.Hello merges into the
// HELLO/INIT extra structure.
func (t Token) Fields() map[string]any {
	fields := map[string]any{"scheme": string(t.Scheme)}
	if t.Principal != "" {
		fields["principal"] = t.Principal
	}
	if t.Credentials != "" {
		fields["credentials"] = t.Credentials
	}
	if t.Realm != "" {
		fields["realm"] = t.Realm
	}
	for k, v := range t.Parameters {
		fields[k] = v
	}
	return fields
}
