// Package health provides health check infrastructure for the gatewarden
// reference server.
//
// It implements Kubernetes-compatible liveness and readiness endpoints and
// runs registered checks concurrently under a shared timeout. Built-in
// checkers cover the session database, the Redis decision cache and the
// policy table itself.
//
// # Example Usage
//
//	manager := health.NewManager("1.0.0", health.WithTimeout(5*time.Second))
//	manager.Register(health.NewDatabaseChecker("sessions", db))
//	manager.Register(health.NewPolicyChecker(registry))
//
//	http.Handle("/healthz", manager.LiveHandler())
//	http.Handle("/ready", manager.ReadyHandler())
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/policy"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents the result of a single health check.
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"-"`
	LatencyMs int64         `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
}

// Report represents the overall health report.
type Report struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Checker is the interface for health check implementations.
type Checker interface {
	// Name returns the name of the health check.
	Name() string
	// Check performs the health check and returns the result.
	Check(ctx context.Context) *Check
}

// CheckFunc is a function adapter for Checker.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) *Check
}

func (c CheckFunc) Name() string                     { return c.CheckName }
func (c CheckFunc) Check(ctx context.Context) *Check { return c.Fn(ctx) }

// ---- Health Manager ----

// Manager coordinates health checks.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	version  string
	timeout  time.Duration
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// NewManager creates a new health manager.
func NewManager(version string, opts ...ManagerOption) *Manager {
	m := &Manager{
		version: version,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithTimeout sets the check timeout.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = d
	}
}

// Register adds a health checker.
func (m *Manager) Register(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// RegisterFunc adds a health check function.
func (m *Manager) RegisterFunc(name string, fn func(ctx context.Context) *Check) {
	m.Register(CheckFunc{CheckName: name, Fn: fn})
}

// Check runs all health checks concurrently and returns a report.
func (m *Manager) Check(ctx context.Context) *Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	report := &Report{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Checks:    make([]Check, 0, len(checkers)),
	}

	var wg sync.WaitGroup
	results := make(chan *Check, len(checkers))

	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			start := time.Now()
			check := c.Check(ctx)
			if check == nil {
				check = &Check{
					Name:   c.Name(),
					Status: StatusUnhealthy,
				}
			}
			check.Latency = time.Since(start)
			check.LatencyMs = check.Latency.Milliseconds()
			check.Timestamp = time.Now()
			results <- check
		}(checker)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for check := range results {
		report.Checks = append(report.Checks, *check)

		switch check.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status != StatusUnhealthy {
				report.Status = StatusDegraded
			}
		}
	}

	return report
}

// IsHealthy returns true if all checks pass.
func (m *Manager) IsHealthy(ctx context.Context) bool {
	return m.Check(ctx).Status == StatusHealthy
}

// IsReady returns true if the service is ready to accept traffic.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.Check(ctx).Status != StatusUnhealthy
}

// ---- HTTP Handlers ----

// LiveHandler returns a handler for liveness checks (Kubernetes).
func (m *Manager) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// ReadyHandler returns a handler for readiness checks (Kubernetes).
func (m *Manager) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if m.IsReady(r.Context()) {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
		}
	}
}

// FullHandler returns a handler for full health reports.
func (m *Manager) FullHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := m.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")

		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		json.NewEncoder(w).Encode(report)
	}
}

// ---- Built-in Checkers ----

// DatabaseChecker pings the session and audit database.
type DatabaseChecker struct {
	name string
	db   *gorm.DB
}

// NewDatabaseChecker creates a database health checker.
func NewDatabaseChecker(name string, db *gorm.DB) *DatabaseChecker {
	return &DatabaseChecker{name: name, db: db}
}

func (c *DatabaseChecker) Name() string { return c.name }

func (c *DatabaseChecker) Check(ctx context.Context) *Check {
	check := &Check{Name: c.name}

	sqlDB, err := c.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	} else {
		check.Status = StatusHealthy
		check.Message = "connected"
	}

	return check
}

// RedisChecker pings the shared decision cache. A dead cache degrades the
// service rather than failing it: decisions still compute, just slower.
type RedisChecker struct {
	name   string
	client *redis.Client
}

// NewRedisChecker creates a Redis health checker.
func NewRedisChecker(name string, client *redis.Client) *RedisChecker {
	return &RedisChecker{name: name, client: client}
}

func (c *RedisChecker) Name() string { return c.name }

func (c *RedisChecker) Check(ctx context.Context) *Check {
	check := &Check{Name: c.name}

	if err := c.client.Ping(ctx).Err(); err != nil {
		check.Status = StatusDegraded
		check.Message = err.Error()
	} else {
		check.Status = StatusHealthy
		check.Message = "connected"
	}

	return check
}

// PolicyChecker reports on the policy table. An empty table is degraded:
// the server runs, but every route is passing through fail-open.
type PolicyChecker struct {
	registry *policy.Registry
}

// NewPolicyChecker creates a policy table checker.
func NewPolicyChecker(registry *policy.Registry) *PolicyChecker {
	return &PolicyChecker{registry: registry}
}

func (c *PolicyChecker) Name() string { return "policy" }

func (c *PolicyChecker) Check(ctx context.Context) *Check {
	entries := len(c.registry.Entries())
	check := &Check{Name: c.Name()}

	if entries == 0 {
		check.Status = StatusDegraded
		check.Message = "policy table is empty, all routes are unprotected"
	} else {
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("%d protected prefixes, %d public", entries, len(c.registry.Public()))
	}

	return check
}
