package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gatewarden/gatewarden/audit"
	"github.com/gatewarden/gatewarden/policy"
	"github.com/gatewarden/gatewarden/rbac"
	"github.com/gatewarden/gatewarden/session"
	"github.com/gatewarden/gatewarden/telemetry"
)

// Mock evaluator to count calls
type mockCounterEvaluator struct {
	calls    int32
	decision Decision
}

func (m *mockCounterEvaluator) Evaluate(ctx context.Context, sess *session.Session, req policy.Requirement) Decision {
	atomic.AddInt32(&m.calls, 1)
	return m.decision
}

func TestAuditMiddleware(t *testing.T) {
	store := audit.NewMemoryStore()
	core := &mockCounterEvaluator{decision: DenyUnauthorized}

	// Wrap core with audit
	evaluator := NewAuditMiddleware(core, store)

	ctx := WithRequestInfo(context.Background(), RequestInfo{
		Path:      "/admin/users",
		Prefix:    "/admin",
		Class:     "page",
		RequestID: "req-1",
	})
	caller := &session.Session{Identity: "alice", Role: rbac.RolePowerUser}

	got := evaluator.Evaluate(ctx, caller, policy.Exact(rbac.RoleAdmin))
	if got != DenyUnauthorized {
		t.Errorf("decision altered by audit decorator: got %s", got)
	}

	// Verify audit log (async, so sleep briefly)
	time.Sleep(10 * time.Millisecond)

	events := store.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	evt := events[0]
	if evt.Actor != "alice" || evt.Type != audit.TypeDecision {
		t.Errorf("audit event mismatch: %+v", evt)
	}
	if evt.Path != "/admin/users" || evt.Prefix != "/admin" || evt.Decision != "deny_unauthorized" {
		t.Errorf("audit event missing request context: %+v", evt)
	}
}

func TestAuditMiddlewareAnonymous(t *testing.T) {
	store := audit.NewMemoryStore()
	evaluator := NewAuditMiddleware(&mockCounterEvaluator{decision: DenyUnauthenticated}, store)

	evaluator.Evaluate(context.Background(), nil, policy.Authenticated())
	time.Sleep(10 * time.Millisecond)

	events := store.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	if events[0].Actor != "anonymous" {
		t.Errorf("actor = %q, want anonymous", events[0].Actor)
	}
}

func TestCachingMiddleware(t *testing.T) {
	core := &mockCounterEvaluator{decision: Allow}

	// Wrap with cache (100ms TTL)
	evaluator := NewCachingMiddleware(core, 100*time.Millisecond)

	ctx := context.Background()
	alice := &session.Session{Identity: "alice", Role: rbac.RoleAdmin}
	req := policy.Exact(rbac.RoleAdmin)

	// 1. First call - count should increase
	evaluator.Evaluate(ctx, alice, req)
	if atomic.LoadInt32(&core.calls) != 1 {
		t.Errorf("expected 1 call, got %d", core.calls)
	}

	// 2. Second call (immediate) - should hit cache, count stays 1
	evaluator.Evaluate(ctx, alice, req)
	if atomic.LoadInt32(&core.calls) != 1 {
		t.Errorf("expected cache hit (calls=1), got %d", core.calls)
	}

	// 3. Different identity - should miss cache, count increases to 2
	bob := &session.Session{Identity: "bob", Role: rbac.RoleAdmin}
	evaluator.Evaluate(ctx, bob, req)
	if atomic.LoadInt32(&core.calls) != 2 {
		t.Errorf("expected 2 calls, got %d", core.calls)
	}

	// 4. Different requirement for a cached session - miss, count 3
	evaluator.Evaluate(ctx, alice, policy.Minimum(rbac.RoleAdmin))
	if atomic.LoadInt32(&core.calls) != 3 {
		t.Errorf("expected 3 calls, got %d", core.calls)
	}

	// 5. Wait for expiry, then the original pair misses again
	time.Sleep(150 * time.Millisecond)
	evaluator.Evaluate(ctx, alice, req)
	if atomic.LoadInt32(&core.calls) != 4 {
		t.Errorf("expected 4 calls (expiry), got %d", core.calls)
	}
}

func TestCachingMiddlewareInvalidate(t *testing.T) {
	core := &mockCounterEvaluator{decision: Allow}
	evaluator := NewCachingMiddleware(core, time.Hour)

	ctx := context.Background()
	alice := &session.Session{Identity: "alice", Role: rbac.RoleAdmin}
	req := policy.Exact(rbac.RoleAdmin)

	evaluator.Evaluate(ctx, alice, req)
	evaluator.Invalidate()
	evaluator.Evaluate(ctx, alice, req)

	if atomic.LoadInt32(&core.calls) != 2 {
		t.Errorf("expected 2 calls after invalidation, got %d", core.calls)
	}
}

func TestCachingMiddlewareNilSession(t *testing.T) {
	core := &mockCounterEvaluator{decision: DenyUnauthenticated}
	evaluator := NewCachingMiddleware(core, time.Hour)
	ctx := context.Background()
	req := policy.Authenticated()

	// Anonymous evaluations share one cache entry.
	if got := evaluator.Evaluate(ctx, nil, req); got != DenyUnauthenticated {
		t.Errorf("got %s, want deny_unauthenticated", got)
	}
	evaluator.Evaluate(ctx, nil, req)
	if atomic.LoadInt32(&core.calls) != 1 {
		t.Errorf("expected 1 call for repeated anonymous evaluation, got %d", core.calls)
	}
}

func TestCachingMiddlewareKeyFieldBoundaries(t *testing.T) {
	core := &mockCounterEvaluator{decision: Allow}
	evaluator := NewCachingMiddleware(core, time.Hour)

	ctx := context.Background()
	req := policy.Exact(rbac.RoleAdmin)

	// Both sessions concatenate to the same bytes around a naive ":" join;
	// each must still get its own cache entry.
	evaluator.Evaluate(ctx, &session.Session{Identity: "alice:admin", Role: "x"}, req)
	evaluator.Evaluate(ctx, &session.Session{Identity: "alice", Role: "admin:x"}, req)

	if atomic.LoadInt32(&core.calls) != 2 {
		t.Errorf("sessions shared a cache entry: %d calls, want 2", core.calls)
	}
}

func TestTelemetryMiddleware(t *testing.T) {
	provider, err := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "gatewarden-test",
		ServiceVersion: "0.0.0",
		Environment:    "test",
		SamplingRate:   1.0,
		Enabled:        true,
	})
	if err != nil {
		t.Fatalf("failed to build telemetry provider: %v", err)
	}
	defer provider.Shutdown(context.Background())

	core := &mockCounterEvaluator{decision: DenyUnauthorized}
	evaluator := NewTelemetryMiddleware(core, provider)

	ctx := WithRequestInfo(context.Background(), RequestInfo{
		Path:   "/admin/users",
		Prefix: "/admin",
		Class:  "page",
	})
	caller := &session.Session{Identity: "alice", Role: rbac.RolePowerUser}

	// Spans and counters observe the evaluation, never change it.
	if got := evaluator.Evaluate(ctx, caller, policy.Exact(rbac.RoleAdmin)); got != DenyUnauthorized {
		t.Errorf("decision altered by telemetry decorator: got %s", got)
	}
	if atomic.LoadInt32(&core.calls) != 1 {
		t.Errorf("expected 1 inner call, got %d", core.calls)
	}
}

func TestTelemetryMiddlewareDisabledProvider(t *testing.T) {
	provider, err := telemetry.NewProvider(telemetry.Config{Enabled: false})
	if err != nil {
		t.Fatalf("failed to build telemetry provider: %v", err)
	}
	evaluator := NewTelemetryMiddleware(&mockCounterEvaluator{decision: Allow}, provider)

	// An inert provider records nothing and must not disturb evaluation.
	if got := evaluator.Evaluate(context.Background(), nil, policy.Authenticated()); got != Allow {
		t.Errorf("got %s, want allow", got)
	}
}

func TestRequestInfoRoundTrip(t *testing.T) {
	info := RequestInfo{Path: "/x", Prefix: "/x", Class: "api", RequestID: "r1"}
	ctx := WithRequestInfo(context.Background(), info)

	got, ok := RequestInfoFromContext(ctx)
	if !ok || got != info {
		t.Errorf("round trip lost data: %+v, %v", got, ok)
	}
	if _, ok := RequestInfoFromContext(context.Background()); ok {
		t.Error("bare context should carry no request info")
	}
}
