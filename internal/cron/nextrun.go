package cron

import (
	"fmt"
	"time"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
)

// maxAdvance bounds the occurrence-by-occurrence walk toward the start of
// an active window.
const maxAdvance = 1000

// Calculator computes the next qualifying fire instant for a trigger.
// It reads nothing and writes nothing; callers persist the result.
type Calculator struct {
	parser *Parser
}

func NewCalculator() *Calculator {
	return &Calculator{parser: NewParser()}
}

// NextRun returns the first occurrence of the trigger's cron expression
// strictly after from that falls inside [StartDate, EndDate], or nil when
// the trigger has no further automatic runs (window closed, non-calendar
// type, or no expression). Parse and timezone errors are returned so the
// caller can log them; the trigger itself is never deactivated here.
func (c *Calculator) NextRun(typ domain.TriggerType, expression, timezone string, startDate, endDate *time.Time, from time.Time) (*time.Time, error) {
	if typ != domain.TriggerTypeCalendar || expression == "" {
		return nil, nil
	}

	if timezone == "" {
		timezone = "UTC"
	}

	sched, err := c.parser.Parse(expression, timezone)
	if err != nil {
		return nil, fmt.Errorf("trigger schedule: %w", err)
	}

	occ := sched.Next(from)

	// Walk forward until the occurrence lands inside the window. Next is
	// strictly-after, so seeding just before StartDate would also work,
	// but the walk keeps the end-of-window check in one place.
	for i := 0; i < maxAdvance; i++ {
		if occ.IsZero() {
			// No satisfiable occurrence within the engine's horizon.
			return nil, nil
		}
		if endDate != nil && occ.After(*endDate) {
			return nil, nil
		}
		if startDate != nil && occ.Before(*startDate) {
			occ = sched.Next(startDate.Add(-time.Nanosecond))
			continue
		}
		utc := occ.UTC()
		return &utc, nil
	}

	return nil, nil
}
