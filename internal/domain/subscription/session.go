package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/selkies/backend/internal/domain/catalog"
)

// Session is one customer's configuration session: the plan plus the catalog
// snapshot it was started with. A session is owned by exactly one client.
type Session struct {
	ID        uuid.UUID        `json:"id"`
	Plan      *Plan            `json:"plan"`
	Catalog   catalog.Snapshot `json:"catalog"`
	Degraded  bool             `json:"degraded,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewSession starts a session around a fresh plan.
// degraded marks a session whose catalog could not be loaded.
func NewSession(policy Policy, snapshot catalog.Snapshot, degraded bool, now time.Time) *Session {
	plan := NewPlan(policy)
	return &Session{
		ID:        plan.ID,
		Plan:      plan,
		Catalog:   snapshot,
		Degraded:  degraded,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// SessionStore keeps sessions between requests.
// Update serializes concurrent changes to the same session: fn sees the latest
// stored session and its changes are saved only if fn returns nil.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Update(ctx context.Context, id uuid.UUID, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
