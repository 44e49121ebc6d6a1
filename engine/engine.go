// Package engine evaluates sessions against route requirements. The engine
// is deliberately dumb: it performs no I/O, resolves no sessions and writes
// no responses. It maps (session, requirement) to a Decision, and the guard
// package turns decisions into HTTP responses.
package engine

import (
	"context"
	"fmt"

	"github.com/gatewarden/gatewarden/policy"
	"github.com/gatewarden/gatewarden/rbac"
	"github.com/gatewarden/gatewarden/session"
)

// Decision is the outcome of evaluating one session against one
// requirement.
type Decision int

const (
	// Allow passes the request through to the protected handler.
	Allow Decision = iota
	// DenyUnauthenticated means no verifiable session was presented.
	DenyUnauthenticated
	// DenyUnauthorized means the session exists but its role does not
	// satisfy the requirement.
	DenyUnauthorized
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyUnauthorized:
		return "deny_unauthorized"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Allowed reports whether the decision passes the request through.
func (d Decision) Allowed() bool {
	return d == Allow
}

// MissingRoleMode selects how authenticated sessions without a role are
// evaluated against role-bearing requirements.
type MissingRoleMode int

const (
	// MissingRoleDeny denies such sessions outright.
	MissingRoleDeny MissingRoleMode = iota
	// MissingRoleLowest evaluates them as the lowest-ranked role.
	MissingRoleLowest
)

func (m MissingRoleMode) String() string {
	if m == MissingRoleLowest {
		return "lowest"
	}
	return "deny"
}

// ParseMissingRoleMode maps the configuration strings "deny" and "lowest".
// The empty string defaults to deny.
func ParseMissingRoleMode(s string) (MissingRoleMode, error) {
	switch s {
	case "", "deny":
		return MissingRoleDeny, nil
	case "lowest":
		return MissingRoleLowest, nil
	default:
		return MissingRoleDeny, fmt.Errorf("engine: unknown missing-role mode %q (supported: deny, lowest)", s)
	}
}

// Fallback is the global configuration for ambiguous identity state and for
// the dispatcher's redirect targets. It is set once at startup and read
// everywhere; per-route overrides do not exist.
type Fallback struct {
	MissingRole MissingRoleMode
	SignInURL   string
	DeniedURL   string
}

// Evaluator is the decision interface shared by the engine and its
// decorators, so callers can stack auditing, caching and telemetry without
// the guard knowing.
type Evaluator interface {
	Evaluate(ctx context.Context, sess *session.Session, req policy.Requirement) Decision
}

// Engine evaluates sessions against requirements using a fixed role
// hierarchy. It holds no mutable state, so a single value serves any number
// of concurrent requests.
type Engine struct {
	hierarchy *rbac.Hierarchy
	fallback  Fallback
}

// New builds an Engine over the given hierarchy and fallback configuration.
func New(h *rbac.Hierarchy, fallback Fallback) *Engine {
	return &Engine{hierarchy: h, fallback: fallback}
}

// Hierarchy returns the role order the engine compares against.
func (e *Engine) Hierarchy() *rbac.Hierarchy {
	return e.hierarchy
}

// Fallback returns the engine's fallback configuration.
func (e *Engine) Fallback() Fallback {
	return e.fallback
}

// Evaluate maps a session and a requirement to a Decision. The steps below
// encode precedence and must not be rearranged: an authenticated-only
// requirement is satisfied before roles are consulted, a missing session is
// reported before a missing role, and the mode checks run in a fixed order.
func (e *Engine) Evaluate(ctx context.Context, sess *session.Session, req policy.Requirement) Decision {
	// 1. Any verifiable session satisfies an authenticated-only requirement.
	if req.Mode() == policy.ModeAuthenticated && sess != nil {
		return Allow
	}

	// 2. No session at all.
	if sess == nil {
		return DenyUnauthenticated
	}

	// 3. Authenticated but roleless: the fallback decides. Deny reports
	// unauthorized, not unauthenticated, because the caller did present a
	// session.
	role := sess.Role
	if role == "" {
		if e.fallback.MissingRole == MissingRoleDeny {
			return DenyUnauthorized
		}
		role = e.hierarchy.Lowest()
	}

	// 4. Single active mode check.
	switch req.Mode() {
	case policy.ModeExact:
		if e.hierarchy.IsExactly(role, req.Role()) {
			return Allow
		}
		return DenyUnauthorized
	case policy.ModeAnyOf:
		if e.hierarchy.IsAnyOf(role, req.Roles()) {
			return Allow
		}
		return DenyUnauthorized
	case policy.ModeMinimum:
		if e.hierarchy.MeetsMinimum(role, req.Role()) {
			return Allow
		}
		return DenyUnauthorized
	default:
		// A requirement with no mode should not survive registry
		// validation. If one shows up anyway, the session presented above
		// is all it can ask for.
		return Allow
	}
}
