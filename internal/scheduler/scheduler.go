package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/materializer"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/store"
)

type Store interface {
	// SelectDueTriggers returns active calendar triggers of active
	// programs whose next_run_at <= now, or that never fired and whose
	// window opened, ordered by due time, with program and ordered
	// tasks preloaded. At most batchSize rows.
	SelectDueTriggers(ctx context.Context, now time.Time, batchSize int) ([]DueTrigger, error)
}

type Materializer interface {
	Materialize(ctx context.Context, trigger domain.Trigger, program domain.Program, tasks []domain.Task, now time.Time) (materializer.Outcome, error)
}

// Breaker suppresses triggers whose materializations keep failing.
type Breaker interface {
	Allow(id string) error
	RecordSuccess(id string)
	RecordFailure(id string)
}

// MetricsSink records scheduler metrics. All methods are non-blocking
// and fire-and-forget.
type MetricsSink interface {
	TickStarted()
	TickCompleted(duration time.Duration, generated int, err error)
	TriggersSelectedUpdate(count int)
	MaterializationOutcome(outcome string)
}

type DueTrigger struct {
	Trigger domain.Trigger
	Program domain.Program
	Tasks   []domain.Task
}

type Config struct {
	// BatchSize bounds triggers per tick; unselected triggers remain
	// due and are picked up next tick. Default 25.
	BatchSize int
	// MaterializeTimeout is the per-trigger deadline. A timed-out
	// materialization takes the failure path. Default 30s.
	MaterializeTimeout time.Duration
}

// OutcomeSuppressed is reported when the breaker skips a trigger.
const OutcomeSuppressed = "suppressed"

type Scheduler struct {
	config  Config
	store   Store
	mat     Materializer
	breaker Breaker     // optional, nil = disabled
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

func New(config Config, st Store, mat Materializer) *Scheduler {
	if config.BatchSize <= 0 {
		config.BatchSize = 25
	}
	if config.MaterializeTimeout <= 0 {
		config.MaterializeTimeout = 30 * time.Second
	}
	return &Scheduler{
		config: config,
		store:  st,
		mat:    mat,
		clock:  time.Now,
	}
}

func (s *Scheduler) WithBreaker(b Breaker) *Scheduler {
	s.breaker = b
	return s
}

func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// WithClock overrides the wall clock, for deterministic tests.
func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// ProcessTick runs one evaluation pass: select due triggers, then
// materialize each in due order. A failing trigger never aborts the
// batch; only a failing selector query fails the tick itself.
func (s *Scheduler) ProcessTick(ctx context.Context) error {
	now := s.clock().UTC()
	started := time.Now()

	if s.metrics != nil {
		s.metrics.TickStarted()
	}

	due, err := s.store.SelectDueTriggers(ctx, now, s.config.BatchSize)
	if err != nil {
		err = fmt.Errorf("select due triggers: %w", err)
		if s.metrics != nil {
			s.metrics.TickCompleted(time.Since(started), 0, err)
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.TriggersSelectedUpdate(len(due))
	}

	generated := 0
	for _, dt := range due {
		if outcome := s.processTrigger(ctx, dt, now); outcome == materializer.OutcomeGenerated {
			generated++
		}
	}

	if s.metrics != nil {
		s.metrics.TickCompleted(time.Since(started), generated, nil)
	}
	return nil
}

func (s *Scheduler) processTrigger(ctx context.Context, dt DueTrigger, now time.Time) materializer.Outcome {
	id := dt.Trigger.ID.String()

	if s.breaker != nil {
		if err := s.breaker.Allow(id); err != nil {
			log.Printf("scheduler: trigger=%s program=%s suppressed: %v", dt.Trigger.ID, dt.Program.ID, err)
			s.recordOutcome(OutcomeSuppressed)
			return materializer.OutcomeSkipped
		}
	}

	mctx, cancel := context.WithTimeout(ctx, s.config.MaterializeTimeout)
	outcome, err := s.mat.Materialize(mctx, dt.Trigger, dt.Program, dt.Tasks, now)
	cancel()

	if err != nil {
		// Even the failure path could not be persisted.
		severity := "fatal"
		if store.IsRecoverable(err) {
			severity = "recoverable"
		}
		log.Printf("scheduler: trigger=%s program=%s error (%s): %v", dt.Trigger.ID, dt.Program.ID, severity, err)
	}

	if s.breaker != nil {
		switch outcome {
		case materializer.OutcomeGenerated:
			s.breaker.RecordSuccess(id)
		case materializer.OutcomeFailed:
			s.breaker.RecordFailure(id)
		}
	}

	s.recordOutcome(string(outcome))
	return outcome
}

func (s *Scheduler) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.MaterializationOutcome(outcome)
	}
}
