package guard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/gatewarden/gatewarden/engine"
	"github.com/gatewarden/gatewarden/policy"
	"github.com/gatewarden/gatewarden/rbac"
	"github.com/gatewarden/gatewarden/session"
)

// failingResolver simulates an unreachable identity backend.
type failingResolver struct{}

func (failingResolver) Resolve(context.Context, *http.Request) (*session.Session, error) {
	return nil, errors.New("identity provider unreachable")
}

func testTable(t *testing.T) *policy.Registry {
	t.Helper()
	reg, err := policy.NewRegistry(
		[]policy.Entry{
			{Prefix: "/admin", Requirement: policy.Exact(rbac.RoleAdmin)},
			{Prefix: "/admin/reports", Requirement: policy.AnyOf(rbac.RoleAdmin, rbac.RolePowerUser)},
			{Prefix: "/dashboard", Requirement: policy.Minimum(rbac.RoleStandardUser)},
			{Prefix: "/account", Requirement: policy.Authenticated()},
			{Prefix: "/api/reports", Requirement: policy.AnyOf(rbac.RoleAdmin, rbac.RolePowerUser)},
		},
		[]string{"/", "/signin", "/signout", "/auth/error", "/auth/callback"},
	)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return reg
}

// newTestGuard builds a guard whose resolver always returns sess.
func newTestGuard(t *testing.T, sess *session.Session, missing engine.MissingRoleMode) *Guard {
	t.Helper()
	g, err := New(Options{
		Registry:  testTable(t),
		Evaluator: engine.New(rbac.DefaultHierarchy(), engine.Fallback{MissingRole: missing}),
		Resolver:  session.StaticResolver{Session: sess},
	})
	if err != nil {
		t.Fatalf("failed to build guard: %v", err)
	}
	return g
}

// serve runs one request through the guard middleware in front of a handler
// that answers 200 "ok".
func serve(t *testing.T, g *Guard, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(g.Middleware())
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func location(t *testing.T, rec *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad Location header: %v", err)
	}
	return loc
}

func TestExactRoleDeniesHigherRank(t *testing.T) {
	// power_user outranks standard_user but /admin wants exactly admin.
	g := newTestGuard(t, &session.Session{Identity: "alice", Role: rbac.RolePowerUser}, engine.MissingRoleDeny)

	rec := serve(t, g, http.MethodGet, "/admin/users")

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc := location(t, rec)
	if loc.Path != "/denied" {
		t.Errorf("redirected to %s, want /denied", loc.Path)
	}
	if got := loc.Query().Get("required"); got != "admin" {
		t.Errorf("required = %q, want admin", got)
	}
	if got := loc.Query().Get("current"); got != "power_user" {
		t.Errorf("current = %q, want power_user", got)
	}
}

func TestMinimumRoleAllowsHigherRank(t *testing.T) {
	g := newTestGuard(t, &session.Session{Identity: "alice", Role: rbac.RoleAdmin}, engine.MissingRoleDeny)

	rec := serve(t, g, http.MethodGet, "/dashboard")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: admin meets the standard_user minimum", rec.Code)
	}
}

func TestAPIDenialsAreJSON(t *testing.T) {
	// 1. Unauthenticated API request: 401 with a machine-readable body.
	g := newTestGuard(t, nil, engine.MissingRoleDeny)
	rec := serve(t, g, http.MethodGet, "/api/reports")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("non-JSON 401 body: %v", err)
	}
	if body["error"] != "authentication required" {
		t.Errorf("error = %q, want \"authentication required\"", body["error"])
	}

	// 2. Underprivileged API request: 403, different message.
	g = newTestGuard(t, &session.Session{Identity: "bob", Role: rbac.RoleStandardUser}, engine.MissingRoleDeny)
	rec = serve(t, g, http.MethodGet, "/api/reports")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	body = map[string]string{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("non-JSON 403 body: %v", err)
	}
	if body["error"] != "insufficient permissions" {
		t.Errorf("error = %q, want \"insufficient permissions\"", body["error"])
	}
}

func TestPageDenialRedirectsToSignIn(t *testing.T) {
	g := newTestGuard(t, nil, engine.MissingRoleDeny)

	rec := serve(t, g, http.MethodGet, "/dashboard?tab=usage")

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc := location(t, rec)
	if loc.Path != "/signin" {
		t.Errorf("redirected to %s, want /signin", loc.Path)
	}
	// The full original URL rides along so sign-in can come back.
	if got := loc.Query().Get("callbackUrl"); got != "/dashboard?tab=usage" {
		t.Errorf("callbackUrl = %q, want /dashboard?tab=usage", got)
	}
}

func TestUnregisteredPathPassesThrough(t *testing.T) {
	// No session at all; the path simply is not in the table.
	g := newTestGuard(t, nil, engine.MissingRoleDeny)

	rec := serve(t, g, http.MethodGet, "/pricing/enterprise")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: unregistered paths are not protected", rec.Code)
	}
}

func TestPublicPrefixBypassesResolution(t *testing.T) {
	// The resolver would error, but public paths never consult it.
	g, err := New(Options{
		Registry:  testTable(t),
		Evaluator: engine.New(rbac.DefaultHierarchy(), engine.Fallback{}),
		Resolver:  failingResolver{},
	})
	if err != nil {
		t.Fatalf("failed to build guard: %v", err)
	}

	for _, path := range []string{"/", "/signin", "/auth/callback/github"} {
		rec := serve(t, g, http.MethodGet, path)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestResolverErrorIsUnauthenticated(t *testing.T) {
	g, err := New(Options{
		Registry:  testTable(t),
		Evaluator: engine.New(rbac.DefaultHierarchy(), engine.Fallback{}),
		Resolver:  failingResolver{},
	})
	if err != nil {
		t.Fatalf("failed to build guard: %v", err)
	}

	// A protected API path with a broken resolver must produce 401, never
	// pass through.
	rec := serve(t, g, http.MethodGet, "/api/reports")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when resolution fails", rec.Code)
	}
}

func TestMissingRoleFallbacks(t *testing.T) {
	roleless := &session.Session{Identity: "carol"}

	// 1. deny: a roleless session fails the standard_user minimum.
	g := newTestGuard(t, roleless, engine.MissingRoleDeny)
	rec := serve(t, g, http.MethodGet, "/dashboard")
	if rec.Code != http.StatusFound {
		t.Fatalf("deny fallback: status = %d, want 302", rec.Code)
	}
	loc := location(t, rec)
	if loc.Path != "/denied" {
		t.Errorf("deny fallback redirected to %s, want /denied", loc.Path)
	}
	if loc.Query().Has("current") {
		t.Error("roleless session should not produce a current= parameter")
	}

	// 2. lowest: read_only still fails the standard_user minimum...
	g = newTestGuard(t, roleless, engine.MissingRoleLowest)
	rec = serve(t, g, http.MethodGet, "/dashboard")
	if rec.Code != http.StatusFound {
		t.Errorf("lowest fallback on /dashboard: status = %d, want 302", rec.Code)
	}

	// 3. ...but satisfies an authenticated-only route under either mode.
	for _, mode := range []engine.MissingRoleMode{engine.MissingRoleDeny, engine.MissingRoleLowest} {
		g = newTestGuard(t, roleless, mode)
		rec = serve(t, g, http.MethodGet, "/account")
		if rec.Code != http.StatusOK {
			t.Errorf("roleless session on /account under %s: status = %d, want 200", mode, rec.Code)
		}
	}
}

func TestLongestPrefixGovernsRequest(t *testing.T) {
	// /admin/reports admits power_user via any_of even though /admin alone
	// would deny them.
	g := newTestGuard(t, &session.Session{Identity: "alice", Role: rbac.RolePowerUser}, engine.MissingRoleDeny)

	rec := serve(t, g, http.MethodGet, "/admin/reports/monthly")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: the more specific prefix wins", rec.Code)
	}

	rec = serve(t, g, http.MethodGet, "/admin/users")
	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want 302: the general prefix still denies", rec.Code)
	}
}

func TestCheckWithoutHTTP(t *testing.T) {
	g := newTestGuard(t, nil, engine.MissingRoleDeny)
	ctx := context.Background()

	decision, entry := g.Check(ctx, "/admin/users", &session.Session{Identity: "alice", Role: rbac.RoleAdmin})
	if decision != engine.Allow {
		t.Errorf("admin on /admin/users: got %s, want allow", decision)
	}
	if entry == nil || entry.Prefix != "/admin" {
		t.Errorf("entry = %+v, want the /admin entry", entry)
	}

	decision, entry = g.Check(ctx, "/signin", nil)
	if decision != engine.Allow || entry != nil {
		t.Errorf("public path: got %s with entry %+v, want allow with no entry", decision, entry)
	}

	decision, entry = g.Check(ctx, "/pricing", nil)
	if decision != engine.Allow || entry != nil {
		t.Errorf("unregistered path: got %s with entry %+v, want allow with no entry", decision, entry)
	}

	decision, _ = g.Check(ctx, "/admin/users", nil)
	if decision != engine.DenyUnauthenticated {
		t.Errorf("anonymous on /admin/users: got %s, want deny_unauthenticated", decision)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	reg := testTable(t)
	eval := engine.New(rbac.DefaultHierarchy(), engine.Fallback{})
	res := session.StaticResolver{}

	if _, err := New(Options{Evaluator: eval, Resolver: res}); err == nil {
		t.Error("expected an error without a registry")
	}
	if _, err := New(Options{Registry: reg, Resolver: res}); err == nil {
		t.Error("expected an error without an evaluator")
	}
	if _, err := New(Options{Registry: reg, Evaluator: eval}); err == nil {
		t.Error("expected an error without a resolver")
	}
}

func TestDispatcherCustomTargets(t *testing.T) {
	g, err := New(Options{
		Registry:   testTable(t),
		Evaluator:  engine.New(rbac.DefaultHierarchy(), engine.Fallback{}),
		Resolver:   session.StaticResolver{},
		Dispatcher: NewDispatcher("/login", "/forbidden"),
	})
	if err != nil {
		t.Fatalf("failed to build guard: %v", err)
	}

	rec := serve(t, g, http.MethodGet, "/dashboard")
	if loc := location(t, rec); loc.Path != "/login" {
		t.Errorf("redirected to %s, want /login", loc.Path)
	}
}
