package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is a browser a user registered from, identified by its user agent
type Device struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}
