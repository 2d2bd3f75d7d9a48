package session

import (
	"context"
	"errors"
	"strings"
	"time"

	contractx "github.com/finchat/booksync/assistant/contract"
)

var (
	ErrNotFound       = errors.New("session memory not found")
	ErrNilMemory      = errors.New("session memory is nil")
	ErrInvalidSession = errors.New("session id is empty")
)

const DefaultTTL = 30 * time.Minute

// Memory is the short-lived per-session state used to resolve follow-up
// utterances ("show me their invoices"). Expiry is explicit: every entry
// carries its own deadline instead of relying on ambient collection.
type Memory struct {
	SessionID   string           `json:"session_id"`
	LastFilters contractx.Filter `json:"last_filters"`
	LastAction  string           `json:"last_action,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

func (m *Memory) Expired(now time.Time) bool {
	return m == nil || (!m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt))
}

func (m *Memory) validate() error {
	if m == nil {
		return ErrNilMemory
	}
	if strings.TrimSpace(m.SessionID) == "" {
		return ErrInvalidSession
	}
	return nil
}

// Store is the persistence contract for session memory. The context
// assembler is its only consumer.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Memory, error)
	Save(ctx context.Context, m *Memory) error
	Delete(ctx context.Context, sessionID string) error
}
