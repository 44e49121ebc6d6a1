// Package gatewarden guards HTTP routes with a declarative policy table, a
// fixed role hierarchy and a pluggable session resolver.
//
// The pieces compose explicitly: a policy.Registry maps path prefixes to
// requirements, an engine.Engine turns (session, requirement) pairs into
// decisions, and a guard.Guard runs both from Echo middleware and renders
// denials as JSON errors or redirects depending on the request class. This
// package wires the common arrangement in one call:
//
//	registry := policy.MustNewRegistry([]policy.Entry{
//	    {Prefix: "/admin", Requirement: policy.Exact(rbac.RoleAdmin)},
//	    {Prefix: "/dashboard", Requirement: policy.Minimum(rbac.RoleStandardUser)},
//	}, []string{"/", "/signin"})
//
//	g, err := gatewarden.New(gatewarden.Options{
//	    Registry: registry,
//	    Resolver: gatewarden.NewJWTResolver(secret, "gw_session", 24*time.Hour),
//	})
//	e.Use(g.Middleware())
package gatewarden

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gatewarden/gatewarden/engine"
	"github.com/gatewarden/gatewarden/guard"
	"github.com/gatewarden/gatewarden/policy"
	"github.com/gatewarden/gatewarden/rbac"
	"github.com/gatewarden/gatewarden/session"
)

// Convenience aliases for the most used types.
type (
	Role     = rbac.Role
	Session  = session.Session
	Decision = engine.Decision
	Entry    = policy.Entry
)

// Options assembles a Guard from its parts. Registry and Resolver are
// required; everything else defaults.
type Options struct {
	// Registry is the route policy table.
	Registry *policy.Registry

	// Resolver produces the caller's session.
	Resolver session.Resolver

	// Hierarchy is the role order. Defaults to rbac.DefaultHierarchy().
	Hierarchy *rbac.Hierarchy

	// Fallback configures roleless-session handling and redirect targets.
	Fallback engine.Fallback

	// APIPrefixes select which paths get JSON denials. Defaults to /api.
	APIPrefixes []string

	// CacheTTL enables the in-memory decision cache when positive.
	CacheTTL time.Duration

	// Logger receives guard diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// New wires a decision engine and returns the ready guard.
func New(opts Options) (*guard.Guard, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("gatewarden: registry is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("gatewarden: session resolver is required")
	}

	hierarchy := opts.Hierarchy
	if hierarchy == nil {
		hierarchy = rbac.DefaultHierarchy()
	}

	var evaluator engine.Evaluator = engine.New(hierarchy, opts.Fallback)
	if opts.CacheTTL > 0 {
		evaluator = engine.NewCachingMiddleware(evaluator, opts.CacheTTL)
	}

	return guard.New(guard.Options{
		Registry:   opts.Registry,
		Evaluator:  evaluator,
		Resolver:   opts.Resolver,
		Classifier: guard.NewClassifier(opts.APIPrefixes...),
		Dispatcher: guard.NewDispatcher(opts.Fallback.SignInURL, opts.Fallback.DeniedURL),
		Logger:     opts.Logger,
	})
}

// NewJWTResolver builds the default stateless session resolver: bearer
// token first, the named cookie as fallback, HS256 verification.
func NewJWTResolver(secret, cookieName string, expiry time.Duration) session.Resolver {
	return session.NewHeaderResolver(session.NewHS256(secret, expiry), cookieName)
}
