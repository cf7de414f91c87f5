package cron

import (
	"testing"
	"time"
)

func TestParser_ValidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"every hour", "0 * * * *"},
		{"every monday 9am", "0 9 * * 1"},
		{"first of month", "0 6 1 * *"},
		{"quarterly", "0 0 1 1,4,7,10 *"},
		{"weekday business hours", "0 9-17 * * 1-5"},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := p.Parse(tt.expr, "UTC")
			if err != nil {
				t.Errorf("Parse(%q, UTC) returned error: %v", tt.expr, err)
			}
			if sched == nil {
				t.Errorf("Parse(%q, UTC) returned nil schedule", tt.expr)
			}
		})
	}
}

func TestParser_InvalidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"four fields", "* * * *"},
		{"six fields", "* * * * * *"},
		{"invalid minute 60", "60 * * * *"},
		{"non-numeric", "abc * * * *"},
		{"empty", ""},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.expr, "UTC")
			if err == nil {
				t.Errorf("Parse(%q, UTC) should return error for invalid expression", tt.expr)
			}
		})
	}
}

func TestParser_InvalidTimezone(t *testing.T) {
	p := NewParser()
	if _, err := p.Parse("0 * * * *", "Invalid/Zone"); err == nil {
		t.Error("Parse with timezone Invalid/Zone should return error")
	}
}

func TestSchedule_NextInTimezone(t *testing.T) {
	p := NewParser()
	sched, err := p.Parse("30 8 * * *", "Europe/Paris")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// 08:30 Paris in summer is 06:30 UTC.
	after := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	next := sched.Next(after).UTC()

	want := time.Date(2024, 7, 1, 6, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %s, want %s", next, want)
	}
}
