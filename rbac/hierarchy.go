// Package rbac defines the role vocabulary and the strict privilege order
// the decision engine compares against. The role set is fixed when the
// hierarchy is built; requests never add or reorder roles.
package rbac

import "fmt"

// Role identifies a privilege level. Roles are plain strings so deployments
// can define their own vocabulary at startup.
type Role string

// The built-in roles, least privileged first.
const (
	RoleReadOnly     Role = "read_only"
	RoleStandardUser Role = "standard_user"
	RolePowerUser    Role = "power_user"
	RoleAdmin        Role = "admin"
)

// Hierarchy is a total order over a fixed role set. The rank table is built
// once and never mutated afterwards, so a single Hierarchy value is safe for
// any number of concurrent readers.
type Hierarchy struct {
	ordered []Role
	ranks   map[Role]int
}

// NewHierarchy builds a Hierarchy from roles listed least privileged first.
// Empty names and duplicates are rejected.
func NewHierarchy(roles ...Role) (*Hierarchy, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("rbac: hierarchy requires at least one role")
	}
	ordered := make([]Role, len(roles))
	ranks := make(map[Role]int, len(roles))
	for i, role := range roles {
		if role == "" {
			return nil, fmt.Errorf("rbac: role name must not be empty")
		}
		if _, dup := ranks[role]; dup {
			return nil, fmt.Errorf("rbac: duplicate role %q", role)
		}
		ordered[i] = role
		ranks[role] = i
	}
	return &Hierarchy{ordered: ordered, ranks: ranks}, nil
}

// MustNewHierarchy is NewHierarchy that panics on invalid input. Intended
// for fixed role sets declared at startup.
func MustNewHierarchy(roles ...Role) *Hierarchy {
	h, err := NewHierarchy(roles...)
	if err != nil {
		panic(err)
	}
	return h
}

// DefaultHierarchy returns the built-in four-level order
// read_only < standard_user < power_user < admin.
func DefaultHierarchy() *Hierarchy {
	return MustNewHierarchy(RoleReadOnly, RoleStandardUser, RolePowerUser, RoleAdmin)
}

// MeetsMinimum reports whether actual ranks at least as high as required.
// Roles outside the hierarchy never satisfy the check.
func (h *Hierarchy) MeetsMinimum(actual, required Role) bool {
	actualRank, ok := h.ranks[actual]
	if !ok {
		return false
	}
	requiredRank, ok := h.ranks[required]
	if !ok {
		return false
	}
	return actualRank >= requiredRank
}

// IsExactly reports whether actual equals required and is a known role. A
// higher-ranked role does not satisfy an exact check.
func (h *Hierarchy) IsExactly(actual, required Role) bool {
	_, ok := h.ranks[actual]
	return ok && actual == required
}

// IsAnyOf reports whether actual is a known role contained in set. Rank is
// ignored; membership alone decides.
func (h *Hierarchy) IsAnyOf(actual Role, set []Role) bool {
	if _, ok := h.ranks[actual]; !ok {
		return false
	}
	for _, role := range set {
		if role == actual {
			return true
		}
	}
	return false
}

// Known reports whether role is part of the hierarchy.
func (h *Hierarchy) Known(role Role) bool {
	_, ok := h.ranks[role]
	return ok
}

// Rank returns the ordinal of role, lowest first, and whether it is known.
func (h *Hierarchy) Rank(role Role) (int, bool) {
	rank, ok := h.ranks[role]
	return rank, ok
}

// Lowest returns the least privileged role. Used by the decision engine
// when a session carries no role and the fallback substitutes one.
func (h *Hierarchy) Lowest() Role {
	return h.ordered[0]
}

// Roles returns the role set ordered least privileged first.
func (h *Hierarchy) Roles() []Role {
	out := make([]Role, len(h.ordered))
	copy(out, h.ordered)
	return out
}
