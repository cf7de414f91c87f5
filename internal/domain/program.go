package domain

import (
	"time"

	"github.com/google/uuid"
)

// Program is a named recurring maintenance definition. Programs are
// deactivated rather than deleted so generated history stays intact.
type Program struct {
	ID       uuid.UUID
	TenantID uuid.UUID

	Name        string
	Description string

	AssetID *uuid.UUID
	OwnerID uuid.UUID // creator of generated work orders

	Timezone string // IANA timezone, defaults to UTC
	IsActive bool

	Notify NotifyConfig

	LastGeneratedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Task is one ordered checklist item on a program. Tasks are snapshotted
// into generated work orders' run details; they never become rows on the
// work order itself.
type Task struct {
	ID        uuid.UUID
	ProgramID uuid.UUID

	Title            string
	RequiresSignOff  bool
	EstimatedMinutes *int
	Position         int
}
