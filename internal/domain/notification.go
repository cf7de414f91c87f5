package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotifyConfig is the optional integration callback attached to a program.
// An empty URL disables notifications for the program.
type NotifyConfig struct {
	URL     string
	Secret  string // HMAC secret
	Timeout time.Duration
}

// NotificationAttempt records one webhook delivery attempt for a
// generation event.
type NotificationAttempt struct {
	ID      uuid.UUID
	RunID   uuid.UUID
	Attempt int

	StatusCode int
	Error      string

	StartedAt  time.Time
	FinishedAt time.Time
}
