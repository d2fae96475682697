package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultSubjectPrefix is the NATS subject prefix for usage events.
const DefaultSubjectPrefix = "usage"

// EventTypeUsageLocked is emitted when a page's usage quota runs out.
const EventTypeUsageLocked = "UsageLocked"

// UsageLocked describes a page timer that reached its quota.
type UsageLocked struct {
	ID             uuid.UUID  `json:"id"`
	ConnectionID   string     `json:"connection_id"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	UserAgent      string     `json:"user_agent"`
	ElapsedSeconds int        `json:"elapsed_seconds"`
	LockedAt       time.Time  `json:"locked_at"`
}

// Publisher delivers usage events to whoever is listening.
type Publisher interface {
	PublishLocked(ctx context.Context, event UsageLocked) error
	Close() error
}
