// Package guard ties the policy registry, the decision engine and the
// session resolver into HTTP middleware.
//
// The guard sits in front of the application's handlers and runs the same
// sequence for every request: public prefixes bypass everything, paths
// outside the policy table pass through untouched, and for everything else
// the session is resolved, the matched requirement evaluated, and the
// decision dispatched as either a JSON error or a redirect.
//
// Session resolution failures are downgraded to "no session" on the spot.
// The alternative, failing open on a resolver error, would let an identity
// outage unlock every protected route.
package guard

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gatewarden/gatewarden/engine"
	"github.com/gatewarden/gatewarden/policy"
	"github.com/gatewarden/gatewarden/session"
	"github.com/gatewarden/gatewarden/telemetry"
)

// sessionKey is the echo context key under which the middleware stores the
// session it resolved, so protected handlers need not resolve it again.
const sessionKey = "gatewarden.session"

// SessionFromContext returns the session the guard middleware resolved for
// this request. It is nil for anonymous callers and on routes the middleware
// never evaluated (public prefixes and unregistered paths).
func SessionFromContext(c echo.Context) *session.Session {
	sess, _ := c.Get(sessionKey).(*session.Session)
	return sess
}

// Guard enforces the policy table over incoming requests.
type Guard struct {
	registry   *policy.Registry
	evaluator  engine.Evaluator
	resolver   session.Resolver
	classifier *Classifier
	dispatcher *Dispatcher
	log        *zap.Logger
	telemetry  *telemetry.Provider
}

// Options configures a Guard. Registry, Evaluator and Resolver are
// required; the rest default sensibly.
type Options struct {
	Registry   *policy.Registry
	Evaluator  engine.Evaluator
	Resolver   session.Resolver
	Classifier *Classifier
	Dispatcher *Dispatcher
	Logger     *zap.Logger
	Telemetry  *telemetry.Provider
}

// New builds a Guard from opts.
func New(opts Options) (*Guard, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("guard: registry is required")
	}
	if opts.Evaluator == nil {
		return nil, fmt.Errorf("guard: evaluator is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("guard: session resolver is required")
	}
	g := &Guard{
		registry:   opts.Registry,
		evaluator:  opts.Evaluator,
		resolver:   opts.Resolver,
		classifier: opts.Classifier,
		dispatcher: opts.Dispatcher,
		log:        opts.Logger,
		telemetry:  opts.Telemetry,
	}
	if g.classifier == nil {
		g.classifier = NewClassifier()
	}
	if g.dispatcher == nil {
		g.dispatcher = NewDispatcher("", "")
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	return g, nil
}

// Middleware returns the Echo middleware enforcing the policy table.
//
// Paths that match no public prefix and no policy entry pass through
// unprotected. Protection comes from listing a prefix in the table, not
// from a default deny; the fail_open metric and debug log exist to make
// gaps visible.
func (g *Guard) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			if g.registry.IsPublic(path) {
				if g.telemetry != nil {
					g.telemetry.RecordPublicBypass(c.Request().Context())
				}
				return next(c)
			}

			entry, ok := g.registry.Resolve(path)
			if !ok {
				g.log.Debug("no policy entry for path, passing through",
					zap.String("path", path),
				)
				if g.telemetry != nil {
					g.telemetry.RecordFailOpen(c.Request().Context())
				}
				return next(c)
			}

			class := g.classifier.Classify(path)
			sess := g.resolveSession(c)
			if sess != nil {
				c.Set(sessionKey, sess)
			}

			ctx := engine.WithRequestInfo(c.Request().Context(), engine.RequestInfo{
				Path:      path,
				Prefix:    entry.Prefix,
				Class:     class.String(),
				RequestID: requestID(c),
			})

			decision := g.evaluator.Evaluate(ctx, sess, entry.Requirement)
			if !decision.Allowed() {
				g.log.Info("request denied",
					zap.String("path", path),
					zap.String("prefix", entry.Prefix),
					zap.String("mode", entry.Requirement.Mode().String()),
					zap.String("class", class.String()),
					zap.String("decision", decision.String()),
				)
			}

			handled, err := g.dispatcher.Dispatch(c, decision, class, entry, sess)
			if handled || err != nil {
				return err
			}
			return next(c)
		}
	}
}

// Check evaluates path for sess without an HTTP exchange, for callers that
// want the decision rather than the response: link rendering, policy
// tooling, tests. The returned entry is nil for public and unregistered
// paths, both of which report Allow.
func (g *Guard) Check(ctx context.Context, path string, sess *session.Session) (engine.Decision, *policy.Entry) {
	if g.registry.IsPublic(path) {
		return engine.Allow, nil
	}
	entry, ok := g.registry.Resolve(path)
	if !ok {
		return engine.Allow, nil
	}
	ctx = engine.WithRequestInfo(ctx, engine.RequestInfo{
		Path:   path,
		Prefix: entry.Prefix,
		Class:  g.classifier.Classify(path).String(),
	})
	return g.evaluator.Evaluate(ctx, sess, entry.Requirement), entry
}

// Registry exposes the guard's policy table.
func (g *Guard) Registry() *policy.Registry {
	return g.registry
}

// resolveSession asks the collaborator for the current session. Errors are
// logged and downgraded to nil so resolution failures read as
// unauthenticated, never as allowed.
func (g *Guard) resolveSession(c echo.Context) *session.Session {
	ctx := c.Request().Context()

	var span trace.Span
	if g.telemetry != nil {
		ctx, span = g.telemetry.SpanResolveSession(ctx, c.Request().URL.Path)
	}

	sess, err := g.resolver.Resolve(ctx, c.Request())
	telemetry.EndSpan(span, err)
	if err != nil {
		g.log.Warn("session resolution failed, treating request as unauthenticated",
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
		return nil
	}
	return sess
}

// requestID returns the request identifier set by upstream middleware, if
// any.
func requestID(c echo.Context) string {
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
