package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/rbac"
)

// Record is the persisted form of a revocable session. The record ID doubles
// as the opaque token handed to the client.
type Record struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Identity  string    `gorm:"index" json:"identity"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// TableName sets the table name for GORM.
func (Record) TableName() string {
	return "gatewarden_sessions"
}

// Store keeps revocable sessions in a database. Unlike stateless tokens, a
// stored session can be cut off before it expires with Revoke.
type Store struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewStore builds a Store. A non-positive ttl defaults to 24 hours.
func NewStore(db *gorm.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{db: db, ttl: ttl}
}

// AutoMigrate creates the backing table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Record{})
}

// Create persists a new session and returns the record, whose ID is the
// token to hand to the client.
func (s *Store) Create(ctx context.Context, identity string, role rbac.Role) (*Record, error) {
	now := time.Now()
	rec := &Record{
		ID:        uuid.New().String(),
		Identity:  identity,
		Role:      string(role),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
		Active:    true,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("session: create record: %w", err)
	}
	return rec, nil
}

// Revoke deactivates the session with the given ID. Subsequent Verify calls
// for its token fail.
func (s *Store) Revoke(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("session: revoke record: %w", result.Error)
	}
	return nil
}

// RevokeAll deactivates every session belonging to identity.
func (s *Store) RevokeAll(ctx context.Context, identity string) error {
	result := s.db.WithContext(ctx).Model(&Record{}).Where("identity = ?", identity).Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("session: revoke records: %w", result.Error)
	}
	return nil
}

// Verify implements Verifier; the token is the record ID.
func (s *Store) Verify(ctx context.Context, token string) (*Session, error) {
	var rec Record
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", token).Error; err != nil {
		return nil, fmt.Errorf("session: lookup record: %w", err)
	}
	if !rec.Active || rec.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("session: expired or revoked")
	}
	return &Session{Identity: rec.Identity, Role: rbac.Role(rec.Role)}, nil
}

// PurgeExpired removes records past their expiry. Intended for a periodic
// maintenance job.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", time.Now()).Delete(&Record{})
	if result.Error != nil {
		return 0, fmt.Errorf("session: purge records: %w", result.Error)
	}
	return result.RowsAffected, nil
}
