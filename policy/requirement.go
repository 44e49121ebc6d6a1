// Package policy holds the declarative route-protection table: which path
// prefixes are guarded, what each one requires, and which prefixes bypass
// protection entirely. The table is validated and frozen at startup; request
// handling only ever reads it.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gatewarden/gatewarden/rbac"
)

// ErrNoMode rejects a Requirement with no active mode, including the zero
// value.
var ErrNoMode = errors.New("policy: requirement has no mode set")

// Mode discriminates the single active check of a Requirement.
type Mode uint8

const (
	// ModeNone marks the zero Requirement. It never passes validation; if
	// one reaches the engine anyway it degrades to an authenticated-only
	// check there.
	ModeNone Mode = iota
	// ModeExact requires the session role to equal the configured role.
	// Higher-ranked roles do not qualify.
	ModeExact
	// ModeAnyOf requires the session role to be a member of the configured
	// set.
	ModeAnyOf
	// ModeMinimum requires the session role to rank at least as high as the
	// configured role.
	ModeMinimum
	// ModeAuthenticated requires any verifiable session. No role is
	// consulted.
	ModeAuthenticated
)

func (m Mode) String() string {
	switch m {
	case ModeExact:
		return "role"
	case ModeAnyOf:
		return "any_of"
	case ModeMinimum:
		return "min_role"
	case ModeAuthenticated:
		return "authenticated"
	default:
		return "none"
	}
}

// Requirement is the access rule attached to a route prefix. A well-formed
// Requirement has exactly one active mode; build values with Exact, AnyOf,
// Minimum or Authenticated rather than composing fields by hand.
type Requirement struct {
	mode  Mode
	role  rbac.Role
	roles []rbac.Role
}

// Exact requires the caller's role to equal role.
func Exact(role rbac.Role) Requirement {
	return Requirement{mode: ModeExact, role: role}
}

// AnyOf requires the caller's role to be one of roles.
func AnyOf(roles ...rbac.Role) Requirement {
	set := make([]rbac.Role, len(roles))
	copy(set, roles)
	return Requirement{mode: ModeAnyOf, roles: set}
}

// Minimum requires the caller's role to rank at least as high as role.
func Minimum(role rbac.Role) Requirement {
	return Requirement{mode: ModeMinimum, role: role}
}

// Authenticated requires any verifiable session, regardless of role.
func Authenticated() Requirement {
	return Requirement{mode: ModeAuthenticated}
}

// Mode returns the active mode.
func (r Requirement) Mode() Mode {
	return r.mode
}

// Role returns the configured role for exact and minimum requirements.
func (r Requirement) Role() rbac.Role {
	return r.role
}

// Roles returns a copy of the configured set for any-of requirements.
func (r Requirement) Roles() []rbac.Role {
	out := make([]rbac.Role, len(r.roles))
	copy(out, r.roles)
	return out
}

// Validate rejects the zero Requirement and mode/field mismatches.
func (r Requirement) Validate() error {
	switch r.mode {
	case ModeExact, ModeMinimum:
		if r.role == "" {
			return fmt.Errorf("policy: %s requirement needs a role", r.mode)
		}
	case ModeAnyOf:
		if len(r.roles) == 0 {
			return fmt.Errorf("policy: any_of requirement needs at least one role")
		}
		for _, role := range r.roles {
			if role == "" {
				return fmt.Errorf("policy: any_of requirement contains an empty role")
			}
		}
	case ModeAuthenticated:
	default:
		return ErrNoMode
	}
	return nil
}

// ValidateRoles runs Validate and additionally checks every referenced role
// against the hierarchy, so typos in policy files surface at load time
// instead of silently denying forever.
func (r Requirement) ValidateRoles(h *rbac.Hierarchy) error {
	if err := r.Validate(); err != nil {
		return err
	}
	switch r.mode {
	case ModeExact, ModeMinimum:
		if !h.Known(r.role) {
			return fmt.Errorf("policy: unknown role %q", r.role)
		}
	case ModeAnyOf:
		for _, role := range r.roles {
			if !h.Known(role) {
				return fmt.Errorf("policy: unknown role %q", role)
			}
		}
	}
	return nil
}

// String renders the requirement for logs and the denied-page redirect:
// the role name for exact and minimum checks, the set joined with "|" for
// any-of, and "authenticated" for session-only checks.
func (r Requirement) String() string {
	switch r.mode {
	case ModeExact, ModeMinimum:
		return string(r.role)
	case ModeAnyOf:
		parts := make([]string, len(r.roles))
		for i, role := range r.roles {
			parts[i] = string(role)
		}
		return strings.Join(parts, "|")
	case ModeAuthenticated:
		return "authenticated"
	default:
		return ""
	}
}
