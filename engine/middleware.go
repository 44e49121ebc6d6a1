package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/audit"
	"github.com/gatewarden/gatewarden/policy"
	"github.com/gatewarden/gatewarden/session"
	"github.com/gatewarden/gatewarden/telemetry"
)

// RequestInfo carries request metadata for decorators that record context
// around an evaluation. The guard attaches it to the context before calling
// the evaluator; decorators missing it degrade to empty fields.
type RequestInfo struct {
	Path      string
	Prefix    string
	Class     string
	RequestID string
}

type requestInfoKey struct{}

// WithRequestInfo returns a context carrying info.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext extracts the metadata attached by WithRequestInfo.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}

// -- Audit Decorator --

// AuditMiddleware records every evaluation to an audit store without
// altering the decision.
type AuditMiddleware struct {
	next  Evaluator
	store audit.Store
}

// NewAuditMiddleware wraps next so each evaluation is recorded to store.
func NewAuditMiddleware(next Evaluator, store audit.Store) *AuditMiddleware {
	return &AuditMiddleware{next: next, store: store}
}

// Evaluate implements Evaluator.
func (m *AuditMiddleware) Evaluate(ctx context.Context, sess *session.Session, req policy.Requirement) Decision {
	decision := m.next.Evaluate(ctx, sess, req)

	actor := "anonymous"
	if sess != nil {
		actor = sess.Identity
	}
	info, _ := RequestInfoFromContext(ctx)
	mode := req.Mode().String()

	// Async write to avoid blocking the request on the store.
	go func() {
		logCtx := context.Background()

		m.store.Save(logCtx, &audit.Event{
			Type:      audit.TypeDecision,
			Actor:     actor,
			Path:      info.Path,
			Prefix:    info.Prefix,
			Mode:      mode,
			Decision:  decision.String(),
			RequestID: info.RequestID,
			CreatedAt: time.Now(),
		})
	}()

	return decision
}

// -- Caching Decorator --

type cacheEntry struct {
	decision  Decision
	expiresAt time.Time
}

// CachingMiddleware memoizes decisions for identical (session, requirement)
// pairs. The policy table never changes after startup, so entries only go
// stale when the session population does; keep the TTL short or call
// Invalidate after revoking sessions in bulk.
type CachingMiddleware struct {
	next Evaluator
	ttl  time.Duration
	mu   sync.RWMutex
	// Simple in-memory cache. RedisCachingMiddleware shares entries across
	// replicas.
	cache map[string]cacheEntry
}

// NewCachingMiddleware wraps next with an in-memory decision cache.
func NewCachingMiddleware(next Evaluator, ttl time.Duration) *CachingMiddleware {
	return &CachingMiddleware{
		next:  next,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Evaluate implements Evaluator.
func (m *CachingMiddleware) Evaluate(ctx context.Context, sess *session.Session, req policy.Requirement) Decision {
	// 1. Generate cache key
	key := cacheKey(sess, req)

	// 2. Check cache
	m.mu.RLock()
	entry, found := m.cache[key]
	m.mu.RUnlock()

	if found && time.Now().Before(entry.expiresAt) {
		return entry.decision
	}

	// 3. Compute real decision
	decision := m.next.Evaluate(ctx, sess, req)

	// 4. Cache result
	m.mu.Lock()
	m.cache[key] = cacheEntry{
		decision:  decision,
		expiresAt: time.Now().Add(m.ttl),
	}
	m.mu.Unlock()

	return decision
}

// Invalidate clears the cache.
func (m *CachingMiddleware) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]cacheEntry)
}

// cacheKey hashes exactly the inputs a decision depends on: identity, role,
// and the requirement's mode and role set. Each field is length-prefixed so
// an identity containing the separator cannot collide with another
// session's key.
func cacheKey(sess *session.Session, req policy.Requirement) string {
	identity, role := "", ""
	if sess != nil {
		identity = sess.Identity
		role = string(sess.Role)
	}
	h := sha256.New()
	for _, field := range []string{identity, role, req.Mode().String(), req.String()} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// -- Telemetry Decorator --

// TelemetryMiddleware wraps an evaluator with tracing and metrics.
type TelemetryMiddleware struct {
	next     Evaluator
	provider *telemetry.Provider
}

// NewTelemetryMiddleware wraps next so each evaluation is traced and
// counted.
func NewTelemetryMiddleware(next Evaluator, provider *telemetry.Provider) *TelemetryMiddleware {
	return &TelemetryMiddleware{next: next, provider: provider}
}

// Evaluate implements Evaluator.
func (m *TelemetryMiddleware) Evaluate(ctx context.Context, sess *session.Session, req policy.Requirement) Decision {
	info, _ := RequestInfoFromContext(ctx)
	mode := req.Mode().String()

	ctx, span := m.provider.SpanEvaluate(ctx, info.Path, info.Prefix, mode)
	start := time.Now()

	decision := m.next.Evaluate(ctx, sess, req)

	m.provider.RecordEvaluationDuration(ctx, mode, time.Since(start))
	m.provider.RecordDecision(ctx, decision.String(), info.Class, info.Prefix)
	telemetry.SetSpanDecision(span, decision.String())
	telemetry.EndSpan(span, nil)

	return decision
}
