// Package cron evaluates trigger schedules: a strict 5-field parser
// bound to the trigger's IANA timezone, and a calculator that clamps
// occurrences to the trigger's active window.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// fiveField rejects seconds fields and @-descriptors; trigger
// expressions are stored as plain minute-through-weekday specs.
var fiveField = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse compiles expression against timezone. Occurrences are computed
// in that location, so "0 9 * * 1" fires at local 9am across DST moves.
func (p *Parser) Parse(expression string, timezone string) (Schedule, error) {
	spec, err := fiveField.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	return &localizedSchedule{spec: spec, loc: loc}, nil
}

// Schedule yields occurrence instants strictly after a given time.
type Schedule interface {
	Next(after time.Time) time.Time
}

type localizedSchedule struct {
	spec cron.Schedule
	loc  *time.Location
}

func (s *localizedSchedule) Next(after time.Time) time.Time {
	return s.spec.Next(after.In(s.loc))
}
