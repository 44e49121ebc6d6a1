package policy

import (
	"errors"
	"testing"

	"github.com/gatewarden/gatewarden/rbac"
)

func TestRequirementConstructors(t *testing.T) {
	exact := Exact(rbac.RoleAdmin)
	if exact.Mode() != ModeExact || exact.Role() != rbac.RoleAdmin {
		t.Errorf("Exact built %v/%q, want exact/admin", exact.Mode(), exact.Role())
	}

	anyOf := AnyOf(rbac.RoleAdmin, rbac.RolePowerUser)
	if anyOf.Mode() != ModeAnyOf || len(anyOf.Roles()) != 2 {
		t.Errorf("AnyOf built %v with %d roles, want any_of with 2", anyOf.Mode(), len(anyOf.Roles()))
	}

	min := Minimum(rbac.RoleStandardUser)
	if min.Mode() != ModeMinimum || min.Role() != rbac.RoleStandardUser {
		t.Errorf("Minimum built %v/%q, want min_role/standard_user", min.Mode(), min.Role())
	}

	authed := Authenticated()
	if authed.Mode() != ModeAuthenticated {
		t.Errorf("Authenticated built %v, want authenticated", authed.Mode())
	}
}

func TestRequirementValidate(t *testing.T) {
	// 1. The zero Requirement is invalid.
	var zero Requirement
	if err := zero.Validate(); !errors.Is(err, ErrNoMode) {
		t.Errorf("zero requirement: got %v, want ErrNoMode", err)
	}

	// 2. Role-bearing modes need a role.
	if err := Exact("").Validate(); err == nil {
		t.Error("exact requirement with empty role should fail validation")
	}
	if err := Minimum("").Validate(); err == nil {
		t.Error("minimum requirement with empty role should fail validation")
	}
	if err := AnyOf().Validate(); err == nil {
		t.Error("any_of requirement with empty set should fail validation")
	}
	if err := AnyOf(rbac.RoleAdmin, "").Validate(); err == nil {
		t.Error("any_of requirement with an empty member should fail validation")
	}

	// 3. Well-formed requirements pass.
	for _, req := range []Requirement{
		Exact(rbac.RoleAdmin),
		AnyOf(rbac.RoleAdmin, rbac.RolePowerUser),
		Minimum(rbac.RoleReadOnly),
		Authenticated(),
	} {
		if err := req.Validate(); err != nil {
			t.Errorf("requirement %s should validate, got: %v", req, err)
		}
	}
}

func TestRequirementValidateRoles(t *testing.T) {
	h := rbac.DefaultHierarchy()

	if err := Exact("superuser").ValidateRoles(h); err == nil {
		t.Error("exact requirement naming an unknown role should fail")
	}
	if err := AnyOf(rbac.RoleAdmin, "superuser").ValidateRoles(h); err == nil {
		t.Error("any_of requirement naming an unknown role should fail")
	}
	if err := Minimum(rbac.RolePowerUser).ValidateRoles(h); err != nil {
		t.Errorf("minimum requirement with a known role should pass, got: %v", err)
	}
	if err := Authenticated().ValidateRoles(h); err != nil {
		t.Errorf("authenticated requirement should pass, got: %v", err)
	}
}

func TestRequirementString(t *testing.T) {
	tests := []struct {
		req  Requirement
		want string
	}{
		{Exact(rbac.RoleAdmin), "admin"},
		{Minimum(rbac.RoleStandardUser), "standard_user"},
		{AnyOf(rbac.RoleAdmin, rbac.RolePowerUser), "admin|power_user"},
		{Authenticated(), "authenticated"},
		{Requirement{}, ""},
	}

	for _, tt := range tests {
		if got := tt.req.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
