// Package api implements the reference server's HTTP surface: the sign-in
// endpoints that mint the sessions the guard consumes, the pages its
// dispatcher redirects to, and read-only introspection over decisions and
// audit events.
//
// Nothing in this package decides access. The guard middleware runs in front
// of every route registered here; handlers only render state the guard has
// already established.
package api

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatewarden/gatewarden/audit"
	"github.com/gatewarden/gatewarden/guard"
	"github.com/gatewarden/gatewarden/rbac"
	"github.com/gatewarden/gatewarden/session"
)

// Issuer mints the sign-in tokens the guard's resolver later verifies.
type Issuer interface {
	Issue(ctx context.Context, identity string, role rbac.Role) (string, error)
}

// Revoker invalidates a previously issued token. Stateless tokens cannot be
// revoked; signing out only clears the cookie for them.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// JWTIssuer adapts session.JWT to Issuer.
type JWTIssuer struct {
	JWT *session.JWT
}

// Issue implements Issuer.
func (i JWTIssuer) Issue(_ context.Context, identity string, role rbac.Role) (string, error) {
	return i.JWT.Issue(identity, role)
}

// StoreIssuer mints revocable database sessions whose record ID doubles as
// the token.
type StoreIssuer struct {
	Store *session.Store
}

// Issue implements Issuer.
func (i StoreIssuer) Issue(ctx context.Context, identity string, role rbac.Role) (string, error) {
	rec, err := i.Store.Create(ctx, identity, role)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Revoke implements Revoker.
func (i StoreIssuer) Revoke(ctx context.Context, token string) error {
	return i.Store.Revoke(ctx, token)
}

// Config assembles a Handler. Guard, Hierarchy, Issuer and Resolver are
// required.
type Config struct {
	Guard     *guard.Guard
	Hierarchy *rbac.Hierarchy
	Issuer    Issuer
	Resolver  session.Resolver

	// Revoker invalidates tokens on sign-out. Leave nil for stateless
	// sessions.
	Revoker Revoker

	// Audit serves the recent-events endpoint. Leave nil when audit events
	// go to the log only.
	Audit *audit.GormStore

	// Cookie is the session cookie name. Defaults to gw_session.
	Cookie string

	// TokenTTL bounds the session cookie lifetime. Defaults to 24 hours.
	TokenTTL time.Duration
}

// Handler serves the reference server routes.
type Handler struct {
	guard     *guard.Guard
	hierarchy *rbac.Hierarchy
	issuer    Issuer
	revoker   Revoker
	resolver  session.Resolver
	audit     *audit.GormStore
	cookie    string
	ttl       time.Duration
}

// NewHandler builds a Handler from cfg.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Guard == nil {
		return nil, fmt.Errorf("api: guard is required")
	}
	if cfg.Hierarchy == nil {
		return nil, fmt.Errorf("api: hierarchy is required")
	}
	if cfg.Issuer == nil {
		return nil, fmt.Errorf("api: issuer is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("api: resolver is required")
	}
	if cfg.Cookie == "" {
		cfg.Cookie = "gw_session"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Handler{
		guard:     cfg.Guard,
		hierarchy: cfg.Hierarchy,
		issuer:    cfg.Issuer,
		revoker:   cfg.Revoker,
		resolver:  cfg.Resolver,
		audit:     cfg.Audit,
		cookie:    cfg.Cookie,
		ttl:       cfg.TokenTTL,
	}, nil
}

// RegisterRoutes mounts every handler on e. The guard middleware decides
// which of them a caller may actually reach; the split below only documents
// intent.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Public surface, listed in the default public prefixes.
	e.GET("/", h.HandleHome)
	e.GET("/signin", h.HandleSignInPage)
	e.POST("/signin", h.HandleSignIn)
	e.GET("/signout", h.HandleSignOut)
	e.POST("/signout", h.HandleSignOut)
	e.GET("/auth/error", h.HandleAuthError)
	e.GET("/auth/callback", h.HandleAuthCallback)
	e.GET("/denied", h.HandleDenied)

	// Demo protected routes; the policy file decides who passes.
	e.GET("/dashboard", h.HandleDashboard)
	e.GET("/account", h.HandleAccount)
	e.GET("/admin", h.HandleAdmin)
	e.GET("/admin/reports", h.HandleAdminReports)
	e.GET("/api/reports", h.HandleReports)

	// Introspection.
	e.GET("/api/whoami", h.HandleWhoAmI)
	e.GET("/api/authz/check", h.HandleAuthzCheck)
	e.GET("/api/audit/recent", h.HandleAuditRecent)
}

// HandleSignIn mints a session for the posted identity and role. This is the
// demo stand-in for a real credential check: anyone may claim any identity,
// which is exactly as much verification as a reference deployment should
// trust.
func (h *Handler) HandleSignIn(c echo.Context) error {
	var body struct {
		Identity    string `json:"identity" form:"identity"`
		Role        string `json:"role" form:"role"`
		CallbackURL string `json:"callbackUrl" form:"callbackUrl" query:"callbackUrl"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if body.Identity == "" {
		return h.Error(c, http.StatusBadRequest, "identity is required", nil)
	}

	role := rbac.Role(body.Role)
	if role != "" && !h.hierarchy.Known(role) {
		return h.Error(c, http.StatusBadRequest, "Unknown role",
			fmt.Errorf("role %q is not in the hierarchy", role))
	}

	token, err := h.issuer.Issue(c.Request().Context(), body.Identity, role)
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}

	c.SetCookie(&http.Cookie{
		Name:     h.cookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if target := safeCallback(body.CallbackURL); target != "" {
		return c.Redirect(http.StatusFound, target)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"token":    token,
		"identity": body.Identity,
		"role":     body.Role,
	})
}

// HandleSignOut revokes the current session where the backend supports it
// and clears the cookie either way.
func (h *Handler) HandleSignOut(c echo.Context) error {
	if cookie, err := c.Cookie(h.cookie); err == nil && cookie.Value != "" && h.revoker != nil {
		if err := h.revoker.Revoke(c.Request().Context(), cookie.Value); err != nil {
			return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
		}
	}
	c.SetCookie(&http.Cookie{
		Name:     h.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return c.JSON(http.StatusOK, map[string]any{"status": "signed out"})
}

// HandleWhoAmI echoes the caller's resolved session.
func (h *Handler) HandleWhoAmI(c echo.Context) error {
	sess, err := h.resolver.Resolve(c.Request().Context(), c.Request())
	if err != nil || sess == nil {
		return c.JSON(http.StatusOK, map[string]any{"status": "anonymous"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "authenticated",
		"identity": sess.Identity,
		"role":     string(sess.Role),
	})
}

// HandleAuthzCheck reports what the guard would decide for a path, either
// for the caller's own session or for a simulated identity/role passed as
// query parameters. The response is for display and policy debugging only;
// it gates nothing.
func (h *Handler) HandleAuthzCheck(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return h.Error(c, http.StatusBadRequest, "path query parameter is required", nil)
	}
	if !strings.HasPrefix(path, "/") {
		return h.Error(c, http.StatusBadRequest, "path must be absolute", nil)
	}

	var sess *session.Session
	simIdentity, simRole := c.QueryParam("identity"), c.QueryParam("role")
	switch {
	case simIdentity != "" || simRole != "":
		if simRole != "" && !h.hierarchy.Known(rbac.Role(simRole)) {
			return h.Error(c, http.StatusBadRequest, "Unknown role",
				fmt.Errorf("role %q is not in the hierarchy", simRole))
		}
		if simIdentity == "" {
			simIdentity = "simulated"
		}
		sess = &session.Session{Identity: simIdentity, Role: rbac.Role(simRole)}
	default:
		if s, err := h.resolver.Resolve(c.Request().Context(), c.Request()); err == nil {
			sess = s
		}
	}

	decision, entry := h.guard.Check(c.Request().Context(), path, sess)
	resp := map[string]any{
		"path":     path,
		"decision": decision.String(),
		"public":   h.guard.Registry().IsPublic(path),
	}
	if entry != nil {
		resp["prefix"] = entry.Prefix
		resp["mode"] = entry.Requirement.Mode().String()
		resp["required"] = entry.Requirement.String()
	}
	if sess != nil {
		resp["identity"] = sess.Identity
		resp["role"] = string(sess.Role)
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleAuditRecent lists the latest recorded decisions, newest first.
func (h *Handler) HandleAuditRecent(c echo.Context) error {
	if h.audit == nil {
		return h.Error(c, http.StatusNotFound, "audit persistence is not enabled", nil)
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return h.Error(c, http.StatusBadRequest, "limit must be between 1 and 500", err)
		}
		limit = n
	}
	events, err := h.audit.Recent(c.Request().Context(), limit)
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

// HandleReports is a demo API payload behind the /api/reports policy entry.
func (h *Handler) HandleReports(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"reports": []string{"usage-monthly", "usage-quarterly"},
	})
}

// ---- Pages ----

func (h *Handler) HandleHome(c echo.Context) error {
	return c.HTML(http.StatusOK,
		`<h1>gatewarden</h1><p>Reference server. Try <a href="/dashboard">/dashboard</a>, <a href="/admin">/admin</a> or <a href="/api/reports">/api/reports</a>.</p>`)
}

func (h *Handler) HandleSignInPage(c echo.Context) error {
	callback := html.EscapeString(c.QueryParam("callbackUrl"))
	return c.HTML(http.StatusOK, fmt.Sprintf(
		`<h1>Sign in</h1>
<form method="post" action="/signin">
  <input type="hidden" name="callbackUrl" value="%s">
  <input name="identity" placeholder="identity">
  <input name="role" placeholder="role (optional)">
  <button type="submit">Sign in</button>
</form>`, callback))
}

func (h *Handler) HandleAuthError(c echo.Context) error {
	return c.HTML(http.StatusOK, `<h1>Authentication error</h1><p>Something went wrong while signing you in.</p>`)
}

// HandleAuthCallback is the identity-provider return leg. The reference
// server has no external provider, so it only confirms the route is
// reachable without a session.
func (h *Handler) HandleAuthCallback(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "callback received"})
}

// HandleDenied renders the denied page. The required and current parameters
// arrive from the dispatcher redirect and are display-only.
func (h *Handler) HandleDenied(c echo.Context) error {
	required := html.EscapeString(c.QueryParam("required"))
	current := html.EscapeString(c.QueryParam("current"))
	msg := "<h1>Access denied</h1>"
	if required != "" {
		msg += fmt.Sprintf("<p>This page requires: <strong>%s</strong>.</p>", required)
	}
	if current != "" {
		msg += fmt.Sprintf("<p>Your role: <strong>%s</strong>.</p>", current)
	}
	return c.HTML(http.StatusForbidden, msg)
}

func (h *Handler) HandleDashboard(c echo.Context) error {
	return c.HTML(http.StatusOK, fmt.Sprintf("<h1>Dashboard</h1><p>Welcome back, %s.</p>", h.greeting(c)))
}

func (h *Handler) HandleAccount(c echo.Context) error {
	return c.HTML(http.StatusOK, fmt.Sprintf("<h1>Account</h1><p>Signed in as %s.</p>", h.greeting(c)))
}

func (h *Handler) HandleAdmin(c echo.Context) error {
	return c.HTML(http.StatusOK, "<h1>Admin</h1><p>Administrative controls.</p>")
}

func (h *Handler) HandleAdminReports(c echo.Context) error {
	return c.HTML(http.StatusOK, "<h1>Admin reports</h1><p>Operational reports.</p>")
}

// greeting names the caller from the session the guard resolved.
func (h *Handler) greeting(c echo.Context) string {
	if sess := guard.SessionFromContext(c); sess != nil {
		return html.EscapeString(sess.Identity)
	}
	return "there"
}

// safeCallback accepts only same-site absolute paths, so sign-in cannot be
// used as an open redirect.
func safeCallback(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return ""
	}
	return target
}

// Error renders a structured error body.
func (h *Handler) Error(c echo.Context, code int, message string, err error) error {
	resp := map[string]any{
		"status": message,
		"code":   code,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(code, resp)
}
