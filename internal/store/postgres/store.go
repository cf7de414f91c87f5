package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/api"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/materializer"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/notifier"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/scheduler"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/store"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/sweep"
)

// Store implements the scheduler, materializer, notifier, sweep and api
// store interfaces using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a PostgreSQL store. opTimeout bounds each single-statement
// operation; transactions run on the caller's context.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Store{db: db, opTimeout: opTimeout}
}

// SelectDueTriggers returns due calendar triggers with their program and
// tasks preloaded, ordered by due time then id.
func (s *Store) SelectDueTriggers(ctx context.Context, now time.Time, batchSize int) ([]scheduler.DueTrigger, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetDueTriggers, now, batchSize)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []scheduler.DueTrigger
	var programIDs []string
	seen := make(map[uuid.UUID]bool)

	for rows.Next() {
		var dt scheduler.DueTrigger
		var (
			startDate, endDate, nextRunAt, lastRunAt sql.NullTime
			assetID                                  uuid.NullUUID
			lastGeneratedAt                          sql.NullTime
			notifyTimeoutMs                          int64
			triggerType                              string
		)

		err := rows.Scan(
			&dt.Trigger.ID,
			&dt.Trigger.ProgramID,
			&triggerType,
			&dt.Trigger.CronExpression,
			&dt.Trigger.Timezone,
			&startDate,
			&endDate,
			&dt.Trigger.IsActive,
			&nextRunAt,
			&lastRunAt,
			&dt.Trigger.CreatedAt,
			&dt.Trigger.UpdatedAt,
			&dt.Program.ID,
			&dt.Program.TenantID,
			&dt.Program.Name,
			&dt.Program.Description,
			&assetID,
			&dt.Program.OwnerID,
			&dt.Program.Timezone,
			&dt.Program.IsActive,
			&dt.Program.Notify.URL,
			&dt.Program.Notify.Secret,
			&notifyTimeoutMs,
			&lastGeneratedAt,
			&dt.Program.CreatedAt,
			&dt.Program.UpdatedAt,
		)
		if err != nil {
			return nil, classify(err)
		}

		dt.Trigger.Type = domain.TriggerType(triggerType)
		dt.Trigger.StartDate = timePtr(startDate)
		dt.Trigger.EndDate = timePtr(endDate)
		dt.Trigger.NextRunAt = timePtr(nextRunAt)
		dt.Trigger.LastRunAt = timePtr(lastRunAt)
		dt.Program.AssetID = uuidPtr(assetID)
		dt.Program.LastGeneratedAt = timePtr(lastGeneratedAt)
		dt.Program.Notify.Timeout = time.Duration(notifyTimeoutMs) * time.Millisecond

		if !seen[dt.Program.ID] {
			seen[dt.Program.ID] = true
			programIDs = append(programIDs, dt.Program.ID.String())
		}
		result = append(result, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	tasks, err := s.getProgramTasks(ctx, programIDs)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Tasks = tasks[result[i].Program.ID]
	}
	return result, nil
}

func (s *Store) getProgramTasks(ctx context.Context, programIDs []string) (map[uuid.UUID][]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, queryGetProgramTasks, pq.Array(programIDs))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	tasks := make(map[uuid.UUID][]domain.Task)
	for rows.Next() {
		var task domain.Task
		var estimated sql.NullInt64

		if err := rows.Scan(&task.ID, &task.ProgramID, &task.Title, &task.RequiresSignOff, &estimated, &task.Position); err != nil {
			return nil, classify(err)
		}
		task.EstimatedMinutes = intPtr(estimated)
		tasks[task.ProgramID] = append(tasks[task.ProgramID], task)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return tasks, nil
}

// ClaimTrigger conditionally advances next_run_at. Zero rows updated
// means another worker observed and claimed the trigger first.
func (s *Store) ClaimTrigger(ctx context.Context, triggerID uuid.UUID, observed, next *time.Time) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, queryClaimTrigger, triggerID, nullTime(next), nullTime(observed))
	if err != nil {
		return false, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, classify(err)
	}
	return affected == 1, nil
}

// CommitGeneration persists the work order, the success run and both
// schedule-state touches in one transaction. Nothing survives a failure
// of any sub-step.
func (s *Store) CommitGeneration(ctx context.Context, gen materializer.Generation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	wo := gen.WorkOrder
	_, err = tx.ExecContext(ctx, queryInsertWorkOrder,
		wo.ID,
		wo.TenantID,
		wo.Title,
		wo.Description,
		wo.Status,
		wo.Priority,
		wo.Category,
		nullUUID(wo.AssetID),
		wo.DueDate,
		wo.ProgramID,
		wo.TriggerID,
		wo.CreatedBy,
		wo.IsPreventive,
		wo.CreatedAt,
	)
	if err != nil {
		return classify(err)
	}

	if err := insertTriggerRun(ctx, tx, gen.Run); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, queryTouchTriggerLastRun, wo.TriggerID, gen.LastRunAt); err != nil {
		return classify(err)
	}
	if _, err := tx.ExecContext(ctx, queryTouchProgramGenerated, wo.ProgramID, gen.LastRunAt); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// RecordFailedRun persists a failed run and the trigger's last_run_at in
// its own transaction, separate from the aborted generation.
func (s *Store) RecordFailedRun(ctx context.Context, run domain.TriggerRun, lastRunAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	if err := insertTriggerRun(ctx, tx, run); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, queryTouchTriggerLastRun, run.TriggerID, lastRunAt); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func insertTriggerRun(ctx context.Context, tx *sql.Tx, run domain.TriggerRun) error {
	details, err := json.Marshal(run.Details)
	if err != nil {
		return fmt.Errorf("marshal run details: %w", err)
	}

	_, err = tx.ExecContext(ctx, queryInsertTriggerRun,
		run.ID,
		run.TriggerID,
		run.RunAt,
		run.ScheduledFor,
		string(run.Status),
		nullUUID(run.WorkOrderID),
		run.Error,
		details,
		run.CreatedAt,
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

// GetProgramByID returns a program by its id.
func (s *Store) GetProgramByID(ctx context.Context, programID uuid.UUID) (domain.Program, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	program, err := scanProgram(s.db.QueryRowContext(ctx, queryGetProgramByID, programID))
	if err == sql.ErrNoRows {
		return domain.Program{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Program{}, classify(err)
	}
	return program, nil
}

// InsertNotificationAttempt records one webhook delivery attempt.
func (s *Store) InsertNotificationAttempt(ctx context.Context, attempt domain.NotificationAttempt) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertNotificationAttempt,
		attempt.ID,
		attempt.RunID,
		attempt.Attempt,
		attempt.StatusCode,
		attempt.Error,
		attempt.StartedAt,
		attempt.FinishedAt,
	)
	return classify(err)
}

// ListPrograms returns programs, newest first.
func (s *Store) ListPrograms(ctx context.Context, limit, offset int) ([]domain.Program, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListPrograms, limit, offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.Program
	for rows.Next() {
		program, err := scanProgram(rows)
		if err != nil {
			return nil, classify(err)
		}
		result = append(result, program)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// ListTriggerRuns returns runs for a trigger, newest first.
func (s *Store) ListTriggerRuns(ctx context.Context, triggerID uuid.UUID, limit, offset int) ([]domain.TriggerRun, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListTriggerRuns, triggerID, limit, offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.TriggerRun
	for rows.Next() {
		var run domain.TriggerRun
		var (
			status      string
			workOrderID uuid.NullUUID
			details     []byte
		)

		err := rows.Scan(&run.ID, &run.TriggerID, &run.RunAt, &run.ScheduledFor,
			&status, &workOrderID, &run.Error, &details, &run.CreatedAt)
		if err != nil {
			return nil, classify(err)
		}
		run.Status = domain.RunStatus(status)
		run.WorkOrderID = uuidPtr(workOrderID)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &run.Details); err != nil {
				return nil, fmt.Errorf("unmarshal run details: %w", err)
			}
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// CountOverdueTriggers counts active calendar triggers whose due time
// fell before olderThan.
func (s *Store) CountOverdueTriggers(ctx context.Context, olderThan time.Time) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int
	if err := s.db.QueryRowContext(ctx, queryCountOverdueTriggers, olderThan).Scan(&count); err != nil {
		return 0, classify(err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgram(row rowScanner) (domain.Program, error) {
	var program domain.Program
	var (
		assetID         uuid.NullUUID
		lastGeneratedAt sql.NullTime
		notifyTimeoutMs int64
	)

	err := row.Scan(
		&program.ID,
		&program.TenantID,
		&program.Name,
		&program.Description,
		&assetID,
		&program.OwnerID,
		&program.Timezone,
		&program.IsActive,
		&program.Notify.URL,
		&program.Notify.Secret,
		&notifyTimeoutMs,
		&lastGeneratedAt,
		&program.CreatedAt,
		&program.UpdatedAt,
	)
	if err != nil {
		return domain.Program{}, err
	}

	program.AssetID = uuidPtr(assetID)
	program.LastGeneratedAt = timePtr(lastGeneratedAt)
	program.Notify.Timeout = time.Duration(notifyTimeoutMs) * time.Millisecond
	return program, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// classify wraps engine-level transients as recoverable so callers never
// inspect driver codes themselves.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return store.Recoverable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return store.Recoverable(err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"40", // transaction rollback (serialization failure, deadlock)
			"53", // insufficient resources
			"57": // operator intervention
			return store.Recoverable(err)
		}
	}
	return err
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func uuidPtr(nu uuid.NullUUID) *uuid.UUID {
	if !nu.Valid {
		return nil
	}
	id := nu.UUID
	return &id
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

// Compile-time interface assertions
var (
	_ scheduler.Store    = (*Store)(nil)
	_ materializer.Store = (*Store)(nil)
	_ notifier.Store     = (*Store)(nil)
	_ sweep.Store        = (*Store)(nil)
	_ api.Store          = (*Store)(nil)
)
