// Package session defines the session value the decision engine consumes
// and the resolver collaborators that produce it from incoming requests.
//
// Resolution is deliberately separated from decision making: the engine
// never parses tokens or touches storage, and resolvers never decide
// access. A resolver that cannot produce a verifiable session reports nil,
// and the guard treats resolution errors the same way, so identity-provider
// outages degrade to "unauthenticated" rather than to an implicit allow.
package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/gatewarden/gatewarden/rbac"
)

// Session is the caller's authenticated state for a single request.
// Identity is an opaque subject string. Role may be empty even for an
// authenticated caller; the engine's fallback configuration decides how
// such sessions are evaluated.
type Session struct {
	Identity string
	Role     rbac.Role
}

// HasRole reports whether the session exists and carries a role.
func (s *Session) HasRole() bool {
	return s != nil && s.Role != ""
}

// Resolver produces the current session for a request. A nil session with a
// nil error means no verifiable session was presented.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Session, error)
}

// Verifier turns an opaque token into a session.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Session, error)
}

// ---- Built-in Resolver Implementations ----

// HeaderResolver extracts a bearer token from the Authorization header,
// falling back to a named cookie, and delegates verification.
type HeaderResolver struct {
	verifier Verifier
	cookie   string
}

// NewHeaderResolver builds a HeaderResolver. cookieName may be empty to
// disable the cookie fallback.
func NewHeaderResolver(v Verifier, cookieName string) *HeaderResolver {
	return &HeaderResolver{verifier: v, cookie: cookieName}
}

// Resolve implements Resolver.
func (hr *HeaderResolver) Resolve(ctx context.Context, r *http.Request) (*Session, error) {
	token := bearerToken(r)
	if token == "" && hr.cookie != "" {
		if c, err := r.Cookie(hr.cookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return nil, nil
	}
	return hr.verifier.Verify(ctx, token)
}

// bearerToken returns the Authorization header value with any Bearer prefix
// stripped.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return auth
}

// ChainResolver tries each resolver in order and returns the first session
// found. An error from any resolver stops the chain.
type ChainResolver struct {
	resolvers []Resolver
}

// NewChainResolver builds a ChainResolver from the given resolvers.
func NewChainResolver(resolvers ...Resolver) *ChainResolver {
	return &ChainResolver{resolvers: resolvers}
}

// Resolve implements Resolver.
func (cr *ChainResolver) Resolve(ctx context.Context, r *http.Request) (*Session, error) {
	for _, res := range cr.resolvers {
		sess, err := res.Resolve(ctx, r)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
	}
	return nil, nil
}

// StaticResolver always returns the same session. Useful in tests and for
// single-identity tooling.
type StaticResolver struct {
	Session *Session
}

// Resolve implements Resolver.
func (sr StaticResolver) Resolve(context.Context, *http.Request) (*Session, error) {
	return sr.Session, nil
}
