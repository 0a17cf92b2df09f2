// Package store defines the base-layer storage interface and its SQLite
// implementation. The base layer holds the authoritative copy of every
// record and the custody bookkeeping.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// SessionEntry is a session as last committed to the base layer.
type SessionEntry struct {
	SessionID uuid.UUID      `json:"session_id"`
	Session   domain.Session `json:"session"`
	Custody   domain.Custody `json:"custody"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store defines the interface for base-layer persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, id uuid.UUID, session domain.Session, createdAt time.Time) error
	GetSessionRecord(ctx context.Context, id uuid.UUID) ([]byte, *domain.Custody, error)
	UpdateSessionRecord(ctx context.Context, id uuid.UUID, record []byte, expect domain.CustodyState) error
	ListSessions(ctx context.Context, owner domain.Identity) ([]SessionEntry, error)
	ListDelegatedSessions(ctx context.Context) ([]uuid.UUID, error)

	// Custody operations
	GetCustody(ctx context.Context, id uuid.UUID) (*domain.Custody, error)
	SetCustody(ctx context.Context, id uuid.UUID, from, to domain.CustodyState, at time.Time) (domain.Custody, error)
	CommitSessionRecord(ctx context.Context, id uuid.UUID, record []byte, to domain.CustodyState, at time.Time) (domain.Custody, bool, error)

	// Monitor operations
	CreateMonitor(ctx context.Context, monitor domain.Monitor, createdAt time.Time) error
	GetMonitor(ctx context.Context, sessionID uuid.UUID) (*domain.Monitor, error)
	UpdateMonitor(ctx context.Context, monitor domain.Monitor) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, sessionID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Lifecycle
	Close() error
}
