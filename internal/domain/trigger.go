package domain

import (
	"time"

	"github.com/google/uuid"
)

type TriggerType string

const (
	// TriggerTypeCalendar fires on a cron expression. Only calendar
	// triggers are evaluated by the scheduler.
	TriggerTypeCalendar TriggerType = "calendar"
	// TriggerTypeMeter fires on meter readings; never selected for
	// automatic evaluation.
	TriggerTypeMeter TriggerType = "meter"
)

// Trigger is the recurrence rule attached to exactly one program.
// NextRunAt and LastRunAt are mutated only by the scheduler.
type Trigger struct {
	ID        uuid.UUID
	ProgramID uuid.UUID

	Type           TriggerType
	CronExpression string
	Timezone       string // overrides the program timezone when set

	// Inclusive active window. NextRunAt, once computed, falls within
	// [StartDate, EndDate] when those bounds are set.
	StartDate *time.Time
	EndDate   *time.Time

	IsActive bool

	NextRunAt *time.Time
	LastRunAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DueAt is the instant a selected trigger is considered due for:
// the persisted NextRunAt when set, else the opening of its window,
// else now (a generated work order always has a due date).
func (t Trigger) DueAt(now time.Time) time.Time {
	if t.NextRunAt != nil {
		return *t.NextRunAt
	}
	if t.StartDate != nil {
		return *t.StartDate
	}
	return now
}
