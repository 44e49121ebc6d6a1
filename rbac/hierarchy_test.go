package rbac

import "testing"

func TestNewHierarchyValidation(t *testing.T) {
	if _, err := NewHierarchy(); err == nil {
		t.Error("expected error for empty role list")
	}
	if _, err := NewHierarchy("viewer", ""); err == nil {
		t.Error("expected error for empty role name")
	}
	if _, err := NewHierarchy("viewer", "editor", "viewer"); err == nil {
		t.Error("expected error for duplicate role")
	}
	if _, err := NewHierarchy("viewer", "editor"); err != nil {
		t.Errorf("expected valid hierarchy, got error: %v", err)
	}
}

func TestMeetsMinimumOrdering(t *testing.T) {
	h := DefaultHierarchy()

	tests := []struct {
		actual   Role
		required Role
		want     bool
	}{
		{RoleAdmin, RoleReadOnly, true},
		{RoleAdmin, RoleAdmin, true},
		{RolePowerUser, RoleStandardUser, true},
		{RoleStandardUser, RolePowerUser, false},
		{RoleReadOnly, RoleAdmin, false},
		{RoleReadOnly, RoleReadOnly, true},
	}

	for _, tt := range tests {
		if got := h.MeetsMinimum(tt.actual, tt.required); got != tt.want {
			t.Errorf("MeetsMinimum(%s, %s) = %v, want %v", tt.actual, tt.required, got, tt.want)
		}
	}
}

func TestMeetsMinimumIsReflexiveAndTransitive(t *testing.T) {
	h := DefaultHierarchy()
	roles := h.Roles()

	// 1. Every role satisfies its own minimum.
	for _, r := range roles {
		if !h.MeetsMinimum(r, r) {
			t.Errorf("role %s should satisfy its own minimum", r)
		}
	}

	// 2. If a >= b and b >= c then a >= c.
	for _, a := range roles {
		for _, b := range roles {
			for _, c := range roles {
				if h.MeetsMinimum(a, b) && h.MeetsMinimum(b, c) && !h.MeetsMinimum(a, c) {
					t.Errorf("transitivity violated: %s >= %s >= %s but not %s >= %s", a, b, c, a, c)
				}
			}
		}
	}
}

func TestUnknownRolesNeverPass(t *testing.T) {
	h := DefaultHierarchy()

	if h.MeetsMinimum("superuser", RoleReadOnly) {
		t.Error("unknown actual role should not meet any minimum")
	}
	if h.MeetsMinimum(RoleAdmin, "superuser") {
		t.Error("no role should meet an unknown minimum")
	}
	if h.IsExactly("superuser", "superuser") {
		t.Error("unknown role should not pass an exact check against itself")
	}
	if h.IsAnyOf("superuser", []Role{"superuser", RoleAdmin}) {
		t.Error("unknown role should not pass a membership check")
	}
}

func TestIsExactly(t *testing.T) {
	h := DefaultHierarchy()

	if !h.IsExactly(RoleAdmin, RoleAdmin) {
		t.Error("admin should match exact admin requirement")
	}
	// A higher rank must not satisfy an exact check for a lower role.
	if h.IsExactly(RoleAdmin, RolePowerUser) {
		t.Error("admin should not match exact power_user requirement")
	}
	if h.IsExactly(RolePowerUser, RoleAdmin) {
		t.Error("power_user should not match exact admin requirement")
	}
}

func TestIsAnyOf(t *testing.T) {
	h := DefaultHierarchy()
	set := []Role{RoleAdmin, RolePowerUser}

	if !h.IsAnyOf(RolePowerUser, set) {
		t.Error("power_user should be a member of the set")
	}
	if h.IsAnyOf(RoleStandardUser, set) {
		t.Error("standard_user should not be a member of the set")
	}
	if h.IsAnyOf(RoleStandardUser, nil) {
		t.Error("no role should be a member of the empty set")
	}
}

func TestLowestAndRank(t *testing.T) {
	h := MustNewHierarchy("guest", "member", "owner")

	if got := h.Lowest(); got != "guest" {
		t.Errorf("Lowest() = %s, want guest", got)
	}
	if rank, ok := h.Rank("owner"); !ok || rank != 2 {
		t.Errorf("Rank(owner) = %d, %v, want 2, true", rank, ok)
	}
	if _, ok := h.Rank("stranger"); ok {
		t.Error("Rank should report unknown roles")
	}
	if !h.Known("member") || h.Known("stranger") {
		t.Error("Known() misreports hierarchy membership")
	}
}
