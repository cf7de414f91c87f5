package domain

import (
	"time"

	"github.com/google/uuid"
)

// GenerationEvent is emitted after a work order is successfully
// materialized from a trigger.
type GenerationEvent struct {
	WorkOrderID uuid.UUID
	RunID       uuid.UUID
	TriggerID   uuid.UUID
	ProgramID   uuid.UUID
	TenantID    uuid.UUID

	ScheduledFor time.Time // intended fire time (UTC)
	GeneratedAt  time.Time // actual materialization time

	CreatedAt time.Time
}
