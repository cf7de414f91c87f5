// Package materializer turns one due trigger into a work order, a run
// record, and an advanced schedule.
//
// The schedule advance happens at claim time, before the generation
// transaction. A claim that matches zero rows means another worker got
// there first and the trigger is skipped. Advancing even when the
// generation later fails is deliberate: a permanently broken trigger
// must not wedge the batch by being re-selected every tick forever. The
// run records are the audit trail an operator investigates instead.
package materializer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
)

// failureRecordTimeout bounds the failure-path transaction. It uses a
// fresh context because the per-trigger deadline may already be expired
// when the failure path runs.
const failureRecordTimeout = 10 * time.Second

type Store interface {
	// ClaimTrigger advances next_run_at from its observed value to next.
	// Returns false when the observed value no longer matches, i.e. the
	// trigger was claimed by another worker.
	ClaimTrigger(ctx context.Context, triggerID uuid.UUID, observed, next *time.Time) (bool, error)
	// CommitGeneration persists the work order, the success run, the
	// trigger's last_run_at and the program's last_generated_at in a
	// single transaction.
	CommitGeneration(ctx context.Context, gen Generation) error
	// RecordFailedRun persists a failed run and the trigger's
	// last_run_at in its own transaction.
	RecordFailedRun(ctx context.Context, run domain.TriggerRun, lastRunAt time.Time) error
}

type NextRunCalculator interface {
	NextRun(typ domain.TriggerType, expression, timezone string, startDate, endDate *time.Time, from time.Time) (*time.Time, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, event domain.GenerationEvent) error
}

// Generation is everything the success transaction persists.
type Generation struct {
	WorkOrder domain.WorkOrder
	Run       domain.TriggerRun
	LastRunAt time.Time
}

// Outcome reports what one evaluation did.
type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeSkipped   Outcome = "skipped" // claimed by another worker
	OutcomeFailed    Outcome = "failed"  // failed run recorded, schedule advanced
)

type Materializer struct {
	store   Store
	calc    NextRunCalculator
	emitter EventEmitter // optional, nil = no events
	clock   func() time.Time
}

func New(store Store, calc NextRunCalculator) *Materializer {
	return &Materializer{
		store: store,
		calc:  calc,
		clock: time.Now,
	}
}

// WithEmitter attaches a generation event emitter.
func (m *Materializer) WithEmitter(emitter EventEmitter) *Materializer {
	m.emitter = emitter
	return m
}

// Materialize evaluates one due trigger at observation time now.
// A non-nil error means even the failure path could not be persisted;
// the caller logs it and moves to the next trigger.
func (m *Materializer) Materialize(ctx context.Context, trigger domain.Trigger, program domain.Program, tasks []domain.Task, now time.Time) (Outcome, error) {
	scheduledFor := trigger.DueAt(now)

	timezone := trigger.Timezone
	if timezone == "" {
		timezone = program.Timezone
	}

	next, err := m.calc.NextRun(trigger.Type, trigger.CronExpression, timezone, trigger.StartDate, trigger.EndDate, now)
	if err != nil {
		// Malformed expression or bad timezone: the trigger keeps no
		// further automatic schedule until an operator fixes it.
		log.Printf("materializer: trigger=%s program=%s next-run error: %v", trigger.ID, program.ID, err)
		next = nil
	}

	claimed, err := m.store.ClaimTrigger(ctx, trigger.ID, trigger.NextRunAt, next)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("claim trigger: %w", err)
	}
	if !claimed {
		log.Printf("materializer: trigger=%s already claimed, skipping", trigger.ID)
		return OutcomeSkipped, nil
	}

	details := buildDetails(program, tasks)

	workOrderID := uuid.New()
	runID := uuid.New()

	gen := Generation{
		WorkOrder: domain.WorkOrder{
			ID:           workOrderID,
			TenantID:     program.TenantID,
			Title:        program.Name,
			Description:  program.Description,
			Status:       domain.WorkOrderStatusRequested,
			Priority:     domain.WorkOrderPriorityMedium,
			Category:     domain.WorkOrderCategoryPM,
			AssetID:      program.AssetID,
			DueDate:      scheduledFor,
			ProgramID:    program.ID,
			TriggerID:    trigger.ID,
			CreatedBy:    program.OwnerID,
			IsPreventive: true,
			CreatedAt:    now,
		},
		Run: domain.TriggerRun{
			ID:           runID,
			TriggerID:    trigger.ID,
			RunAt:        now,
			ScheduledFor: scheduledFor,
			Status:       domain.RunStatusSuccess,
			WorkOrderID:  &workOrderID,
			Details:      details,
			CreatedAt:    now,
		},
		LastRunAt: now,
	}

	if err := m.store.CommitGeneration(ctx, gen); err != nil {
		log.Printf("materializer: trigger=%s program=%s generation failed: %v", trigger.ID, program.ID, err)
		return OutcomeFailed, m.recordFailure(trigger, scheduledFor, details, now, err)
	}

	m.emit(ctx, gen, program, now)

	log.Printf("materializer: trigger=%s program=%s work_order=%s scheduled_for=%s",
		trigger.ID, program.ID, workOrderID, scheduledFor.Format(time.RFC3339))
	return OutcomeGenerated, nil
}

// recordFailure writes the failed run in its own transaction. The
// schedule was already advanced at claim time.
func (m *Materializer) recordFailure(trigger domain.Trigger, scheduledFor time.Time, details domain.RunDetails, now time.Time, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), failureRecordTimeout)
	defer cancel()

	run := domain.TriggerRun{
		ID:           uuid.New(),
		TriggerID:    trigger.ID,
		RunAt:        now,
		ScheduledFor: scheduledFor,
		Status:       domain.RunStatusFailed,
		Error:        cause.Error(),
		Details:      details,
		CreatedAt:    now,
	}

	if err := m.store.RecordFailedRun(ctx, run, now); err != nil {
		return fmt.Errorf("record failed run (cause: %v): %w", cause, err)
	}
	return nil
}

func (m *Materializer) emit(ctx context.Context, gen Generation, program domain.Program, now time.Time) {
	if m.emitter == nil {
		return
	}

	event := domain.GenerationEvent{
		WorkOrderID:  gen.WorkOrder.ID,
		RunID:        gen.Run.ID,
		TriggerID:    gen.WorkOrder.TriggerID,
		ProgramID:    program.ID,
		TenantID:     program.TenantID,
		ScheduledFor: gen.Run.ScheduledFor,
		GeneratedAt:  now,
		CreatedAt:    now,
	}

	// The work order is already committed; a full bus only costs the
	// downstream notification, never the generation.
	if err := m.emitter.Emit(ctx, event); err != nil {
		log.Printf("materializer: trigger=%s emit error: %v", gen.WorkOrder.TriggerID, err)
	}
}

func buildDetails(program domain.Program, tasks []domain.Task) domain.RunDetails {
	details := domain.RunDetails{
		ProgramID:   program.ID,
		ProgramName: program.Name,
		Tasks:       make([]domain.TaskSnapshot, 0, len(tasks)),
	}
	for _, task := range tasks {
		details.Tasks = append(details.Tasks, domain.TaskSnapshot{
			TaskID:           task.ID,
			Title:            task.Title,
			RequiresSignOff:  task.RequiresSignOff,
			EstimatedMinutes: task.EstimatedMinutes,
		})
	}
	return details
}
