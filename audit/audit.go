// Package audit records authorization decisions so denials can be traced
// back to the policy entry and session state that produced them.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TypeDecision is the event type recorded for guard evaluations.
const TypeDecision = "authz.decision"

// Event is one recorded authorization decision.
type Event struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Type      string    `json:"type"`
	Actor     string    `json:"actor"`
	Path      string    `json:"path"`
	Prefix    string    `json:"prefix"`
	Mode      string    `json:"mode"`
	Decision  string    `json:"decision"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName sets the table name for GORM.
func (Event) TableName() string {
	return "gatewarden_audit_events"
}

// Store persists audit events. Implementations must be safe for concurrent
// use; the engine writes from detached goroutines.
type Store interface {
	Save(ctx context.Context, event *Event) error
}

// ---- Store Implementations ----

// ZapStore writes events to the structured log.
type ZapStore struct {
	log *zap.Logger
}

// NewZapStore builds a ZapStore on the given logger.
func NewZapStore(log *zap.Logger) *ZapStore {
	return &ZapStore{log: log}
}

// Save implements Store.
func (s *ZapStore) Save(ctx context.Context, e *Event) error {
	s.log.Info("authorization decision",
		zap.String("type", e.Type),
		zap.String("actor", e.Actor),
		zap.String("path", e.Path),
		zap.String("prefix", e.Prefix),
		zap.String("mode", e.Mode),
		zap.String("decision", e.Decision),
		zap.String("request_id", e.RequestID),
	)
	return nil
}

// GormStore persists events to a database table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore builds a GormStore on the given database handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates the backing table.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Event{})
}

// Save implements Store, filling in the ID and timestamp when absent.
func (s *GormStore) Save(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(e).Error
}

// Recent returns up to limit events, newest first.
func (s *GormStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&events).Error
	return events, err
}

// MemoryStore collects events in memory. Intended for tests.
type MemoryStore struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a snapshot of the recorded events.
func (s *MemoryStore) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of recorded events.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
