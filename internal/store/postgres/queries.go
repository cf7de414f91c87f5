package postgres

const queryGetDueTriggers = `
SELECT
    t.id, t.program_id, t.type, t.cron_expression, t.timezone,
    t.start_date, t.end_date, t.is_active, t.next_run_at, t.last_run_at,
    t.created_at, t.updated_at,
    p.id, p.tenant_id, p.name, p.description, p.asset_id, p.owner_id,
    p.timezone, p.is_active, p.notify_url, p.notify_secret, p.notify_timeout_ms,
    p.last_generated_at, p.created_at, p.updated_at
FROM pm_triggers t
JOIN pm_programs p ON t.program_id = p.id
WHERE t.is_active = true
  AND p.is_active = true
  AND t.type = 'calendar'
  AND (
        t.next_run_at <= $1
        OR (t.next_run_at IS NULL AND t.start_date <= $1)
      )
ORDER BY COALESCE(t.next_run_at, t.start_date) ASC, t.id ASC
LIMIT $2
`

const queryGetProgramTasks = `
SELECT id, program_id, title, requires_sign_off, estimated_minutes, position
FROM pm_tasks
WHERE program_id = ANY($1::uuid[])
ORDER BY program_id, position ASC
`

const queryClaimTrigger = `
UPDATE pm_triggers
SET next_run_at = $2, updated_at = NOW()
WHERE id = $1
  AND next_run_at IS NOT DISTINCT FROM $3
`

const queryInsertWorkOrder = `
INSERT INTO work_orders (
    id, tenant_id, title, description, status, priority, category,
    asset_id, due_date, pm_program_id, pm_trigger_id, created_by,
    is_preventive, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

const queryInsertTriggerRun = `
INSERT INTO pm_trigger_runs (
    id, trigger_id, run_at, scheduled_for, status, work_order_id, error,
    details, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const queryTouchTriggerLastRun = `
UPDATE pm_triggers
SET last_run_at = $2, updated_at = NOW()
WHERE id = $1
`

const queryTouchProgramGenerated = `
UPDATE pm_programs
SET last_generated_at = $2, updated_at = NOW()
WHERE id = $1
`

const queryGetProgramByID = `
SELECT
    id, tenant_id, name, description, asset_id, owner_id, timezone,
    is_active, notify_url, notify_secret, notify_timeout_ms,
    last_generated_at, created_at, updated_at
FROM pm_programs
WHERE id = $1
`

const queryInsertNotificationAttempt = `
INSERT INTO pm_notification_attempts (id, run_id, attempt, status_code, error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryListPrograms = `
SELECT
    id, tenant_id, name, description, asset_id, owner_id, timezone,
    is_active, notify_url, notify_secret, notify_timeout_ms,
    last_generated_at, created_at, updated_at
FROM pm_programs
ORDER BY created_at DESC
LIMIT $1 OFFSET $2
`

const queryListTriggerRuns = `
SELECT id, trigger_id, run_at, scheduled_for, status, work_order_id, error, details, created_at
FROM pm_trigger_runs
WHERE trigger_id = $1
ORDER BY run_at DESC
LIMIT $2 OFFSET $3
`

const queryCountOverdueTriggers = `
SELECT COUNT(*)
FROM pm_triggers t
JOIN pm_programs p ON t.program_id = p.id
WHERE t.is_active = true
  AND p.is_active = true
  AND t.type = 'calendar'
  AND COALESCE(t.next_run_at, t.start_date) < $1
`
