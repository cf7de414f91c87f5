// Package sweep watches for trigger backlog.
//
// A calendar trigger whose due time sits far in the past means the
// scheduler has not been keeping up: the worker may be down, the queue
// backend unreachable, or batches starved by failing triggers.
//
// The sweep periodically counts overdue triggers, exports the count as
// a gauge, and nudges the tick job forward so a recovered worker drains
// the backlog without waiting out a full interval.
package sweep

import (
	"context"
	"log"
	"time"
)

// Store counts calendar triggers overdue past a threshold.
type Store interface {
	CountOverdueTriggers(ctx context.Context, olderThan time.Time) (int, error)
}

// Nudger pulls a repeatable job's next fire forward.
type Nudger interface {
	Nudge(ctx context.Context, name string, at time.Time) error
}

// MetricsSink exports the overdue gauge.
type MetricsSink interface {
	OverdueTriggersUpdate(count int)
}

// Config holds sweep configuration.
type Config struct {
	// Interval is how often the sweep runs.
	// Default: 5 minutes.
	Interval time.Duration

	// Threshold is the age past due after which a trigger counts as overdue.
	// Default: 15 minutes.
	Threshold time.Duration

	// TickJobName is the repeatable job to nudge when a backlog is found.
	TickJobName string
}

// DefaultConfig returns the default sweep configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Threshold: 15 * time.Minute,
	}
}

// Sweep counts overdue triggers and nudges the tick job.
type Sweep struct {
	config  Config
	store   Store
	nudger  Nudger // optional, nil = no nudge
	metrics MetricsSink
	clock   func() time.Time
}

// New creates a new Sweep.
func New(config Config, store Store) *Sweep {
	return &Sweep{
		config: config,
		store:  store,
		clock:  time.Now,
	}
}

// WithNudger sets the queue to nudge when overdue triggers are found.
func (s *Sweep) WithNudger(n Nudger) *Sweep {
	s.nudger = n
	return s
}

// WithMetrics sets the metrics sink.
func (s *Sweep) WithMetrics(m MetricsSink) *Sweep {
	s.metrics = m
	return s
}

// Run starts the sweep loop. It blocks until ctx is cancelled.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	log.Printf("sweep: started (interval=%s, threshold=%s)",
		s.config.Interval, s.config.Threshold)

	// Run immediately on startup, then on ticker
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("sweep: stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle executes one sweep cycle.
func (s *Sweep) runCycle(ctx context.Context) {
	now := s.clock().UTC()
	olderThan := now.Add(-s.config.Threshold)

	count, err := s.store.CountOverdueTriggers(ctx, olderThan)
	if err != nil {
		// DB error: log and abort cycle. Will retry next interval.
		log.Printf("sweep: failed to count overdue triggers: %v", err)
		return
	}

	if s.metrics != nil {
		s.metrics.OverdueTriggersUpdate(count)
	}

	if count == 0 {
		// Nothing overdue. Silent success.
		return
	}

	log.Printf("sweep: %d triggers overdue past %s", count, s.config.Threshold)

	if s.nudger == nil || s.config.TickJobName == "" {
		return
	}

	if err := s.nudger.Nudge(ctx, s.config.TickJobName, now); err != nil {
		log.Printf("sweep: failed to nudge %s: %v", s.config.TickJobName, err)
		return
	}
	log.Printf("sweep: nudged %s to fire now", s.config.TickJobName)
}
