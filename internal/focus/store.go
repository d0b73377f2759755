package focus

import (
	"context"
	"time"

	"github.com/studytrack/backend/internal/models"
)

// SessionStore keeps the one local session record of this device.
// LoadSession returns nil, nil when there is none.
type SessionStore interface {
	LoadSession(ctx context.Context) (*models.FocusSession, error)
	SaveSession(ctx context.Context, s *models.FocusSession) error
	ClearSession(ctx context.Context) error
}

// QueuedAction is an update the server has not acknowledged yet.
type QueuedAction struct {
	ID          int64                     `json:"id"`
	Request     models.FocusActionRequest `json:"request"`
	QueuedAt    time.Time                 `json:"queued_at"`
	Attempts    int                       `json:"attempts"`
	NextAttempt time.Time                 `json:"next_attempt"`
	LastError   string                    `json:"last_error,omitempty"`
}

type DeadLetter struct {
	ID       int64                     `json:"id"`
	Request  models.FocusActionRequest `json:"request"`
	QueuedAt time.Time                 `json:"queued_at"`
	Attempts int                       `json:"attempts"`
	Reason   string                    `json:"reason"`
	DiedAt   time.Time                 `json:"died_at"`
}

// QueueStore persists the offline queue in FIFO order.
type QueueStore interface {
	Enqueue(ctx context.Context, a QueuedAction) (int64, error)
	Pending(ctx context.Context) ([]QueuedAction, error)
	UpdateAttempt(ctx context.Context, id int64, attempts int, next time.Time, lastErr string) error
	Remove(ctx context.Context, id int64) error
	// DropSuperseded deletes the queued updates of a session except its
	// stop. Every update carries the full session snapshot, so a newer one
	// supersedes them.
	DropSuperseded(ctx context.Context, sessionID string) (int64, error)
	// Bury moves a queued action to the dead-letter table.
	Bury(ctx context.Context, a QueuedAction, reason string, at time.Time) error
	DeadLetters(ctx context.Context) ([]DeadLetter, error)
}

// Store is the full local persistence a Machine needs.
type Store interface {
	SessionStore
	QueueStore
}
