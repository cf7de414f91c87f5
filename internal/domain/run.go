package domain

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// TriggerRun is the immutable audit record of one firing attempt.
// Exactly one run is created per claimed evaluation, regardless of outcome.
type TriggerRun struct {
	ID        uuid.UUID
	TriggerID uuid.UUID

	RunAt        time.Time // wall-clock time the tick observed the trigger as due
	ScheduledFor time.Time // the due instant that produced this run

	Status      RunStatus
	WorkOrderID *uuid.UUID // set only on success
	Error       string     // set only on failure

	Details RunDetails // snapshot of program/task metadata at fire time

	CreatedAt time.Time
}

// RunDetails is the denormalized snapshot stored with every run.
type RunDetails struct {
	ProgramID   uuid.UUID      `json:"program_id"`
	ProgramName string         `json:"program_name"`
	Tasks       []TaskSnapshot `json:"tasks"`
}

type TaskSnapshot struct {
	TaskID           uuid.UUID `json:"task_id"`
	Title            string    `json:"title"`
	RequiresSignOff  bool      `json:"requires_sign_off"`
	EstimatedMinutes *int      `json:"estimated_minutes"`
}
