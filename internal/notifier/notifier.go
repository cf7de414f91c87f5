// Package notifier delivers generation events to program integration
// webhooks. Delivery is best-effort with bounded retries; the work order
// already exists by the time an event reaches the notifier, so delivery
// failures only cost the downstream callback, never the generation.
package notifier

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/store"
)

var defaultBackoff = []time.Duration{
	0,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

const maxAttempts = 4

type Store interface {
	GetProgramByID(ctx context.Context, programID uuid.UUID) (domain.Program, error)
	InsertNotificationAttempt(ctx context.Context, attempt domain.NotificationAttempt) error
}

type WebhookSender interface {
	Send(ctx context.Context, req WebhookRequest) WebhookResult
}

// AnalyticsSink records generation counters; it handles its own errors.
type AnalyticsSink interface {
	Record(ctx context.Context, event domain.GenerationEvent)
}

// MetricsSink records notifier metrics. All methods must be
// non-blocking and fire-and-forget.
type MetricsSink interface {
	NotifyAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	NotifyOutcome(outcome string)
	EventsInFlightIncr()
	EventsInFlightDecr()
}

type WebhookRequest struct {
	URL       string
	Secret    string
	Timeout   time.Duration
	Payload   WebhookPayload
	AttemptID string
}

type WebhookPayload struct {
	WorkOrderID  string `json:"work_order_id"`
	RunID        string `json:"run_id"`
	ProgramID    string `json:"program_id"`
	TriggerID    string `json:"trigger_id"`
	TenantID     string `json:"tenant_id"`
	ScheduledFor string `json:"scheduled_for"`
	GeneratedAt  string `json:"generated_at"`
}

type WebhookResult struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

func (r WebhookResult) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r WebhookResult) IsRetryable() bool {
	if r.Error != nil {
		return true
	}
	if r.StatusCode == 429 {
		return true
	}
	return r.StatusCode >= 500
}

type Notifier struct {
	store        Store
	sender       WebhookSender
	analytics    AnalyticsSink // optional, nil = disabled
	metrics      MetricsSink   // optional, nil = disabled
	backoff      []time.Duration
	drainTimeout time.Duration
}

func New(st Store, sender WebhookSender) *Notifier {
	return &Notifier{
		store:        st,
		sender:       sender,
		backoff:      defaultBackoff,
		drainTimeout: 30 * time.Second,
	}
}

func (n *Notifier) WithAnalytics(sink AnalyticsSink) *Notifier {
	n.analytics = sink
	return n
}

func (n *Notifier) WithMetrics(sink MetricsSink) *Notifier {
	n.metrics = sink
	return n
}

func (n *Notifier) WithDrainTimeout(d time.Duration) *Notifier {
	if d > 0 {
		n.drainTimeout = d
	}
	return n
}

// Run processes events from the channel until ctx is cancelled, then
// drains remaining buffered events with a timeout.
func (n *Notifier) Run(ctx context.Context, ch <-chan domain.GenerationEvent) {
	for {
		select {
		case <-ctx.Done():
			n.drain(ch)
			return
		case event := <-ch:
			if err := n.Notify(ctx, event); err != nil {
				log.Printf("notifier: error: %v", err)
			}
		}
	}
}

// drain runs on a background context since the main one is cancelled.
func (n *Notifier) drain(ch <-chan domain.GenerationEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), n.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("notifier: drain timeout, processed %d events", count)
			}
			return
		case event, ok := <-ch:
			if !ok {
				log.Printf("notifier: drain complete, processed %d events", count)
				return
			}
			if err := n.Notify(drainCtx, event); err != nil {
				log.Printf("notifier: drain error: %v", err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("notifier: drain complete, processed %d events", count)
			}
			return
		}
	}
}

// Notify records analytics and, when the program has a callback URL,
// delivers the event with bounded retries.
func (n *Notifier) Notify(ctx context.Context, event domain.GenerationEvent) error {
	if n.metrics != nil {
		n.metrics.EventsInFlightIncr()
		defer n.metrics.EventsInFlightDecr()
	}

	if n.analytics != nil {
		n.analytics.Record(ctx, event)
	}

	program, err := n.store.GetProgramByID(ctx, event.ProgramID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Program deactivation can race event delivery; drop quietly.
			log.Printf("notifier: program=%s no longer exists, dropping event", event.ProgramID)
			return nil
		}
		return err
	}

	if program.Notify.URL == "" {
		return nil
	}

	req := WebhookRequest{
		URL:     program.Notify.URL,
		Secret:  program.Notify.Secret,
		Timeout: program.Notify.Timeout,
		Payload: WebhookPayload{
			WorkOrderID:  event.WorkOrderID.String(),
			RunID:        event.RunID.String(),
			ProgramID:    event.ProgramID.String(),
			TriggerID:    event.TriggerID.String(),
			TenantID:     event.TenantID.String(),
			ScheduledFor: event.ScheduledFor.UTC().Format(time.RFC3339),
			GeneratedAt:  event.GeneratedAt.UTC().Format(time.RFC3339),
		},
	}

	var lastResult WebhookResult

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			idx := attempt - 1
			if idx >= len(n.backoff) {
				idx = len(n.backoff) - 1
			}
			backoff := n.backoff[idx]

			log.Printf("notifier: program=%s attempt=%d backoff=%s", event.ProgramID, attempt, backoff)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				return ctx.Err()
			case <-timer.C:
			}
		}

		attemptID := uuid.New()
		req.AttemptID = attemptID.String()

		startedAt := time.Now().UTC()
		result := n.sender.Send(ctx, req)
		finishedAt := time.Now().UTC()
		lastResult = result

		if n.metrics != nil {
			n.metrics.NotifyAttemptCompleted(attempt, classifyStatus(result.StatusCode, result.Error), result.Duration)
		}

		record := domain.NotificationAttempt{
			ID:         attemptID,
			RunID:      event.RunID,
			Attempt:    attempt,
			StatusCode: result.StatusCode,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
		}
		if result.Error != nil {
			record.Error = result.Error.Error()
		}
		if err := n.store.InsertNotificationAttempt(ctx, record); err != nil {
			log.Printf("notifier: failed to record attempt: %v", err)
		}

		if result.IsSuccess() {
			log.Printf("notifier: program=%s delivered attempt=%d", event.ProgramID, attempt)
			if n.metrics != nil {
				n.metrics.NotifyOutcome("success")
			}
			return nil
		}

		if !result.IsRetryable() {
			log.Printf("notifier: program=%s non-retryable status=%d", event.ProgramID, result.StatusCode)
			break
		}

		log.Printf("notifier: program=%s attempt=%d failed status=%d err=%v", event.ProgramID, attempt, result.StatusCode, result.Error)
	}

	log.Printf("notifier: program=%s failed status=%d err=%v", event.ProgramID, lastResult.StatusCode, lastResult.Error)
	if n.metrics != nil {
		n.metrics.NotifyOutcome("failed")
	}
	return nil
}

// classifyStatus maps a status code and error to a bounded-cardinality
// metrics class: 2xx, 4xx, 5xx, timeout, connection_error, other_error.
func classifyStatus(statusCode int, err error) string {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "timeout"
		}
		errStr := err.Error()
		if containsInsensitive(errStr, "timeout") || containsInsensitive(errStr, "deadline exceeded") {
			return "timeout"
		}
		if containsInsensitive(errStr, "connection refused") ||
			containsInsensitive(errStr, "no such host") ||
			containsInsensitive(errStr, "network is unreachable") ||
			containsInsensitive(errStr, "dial") {
			return "connection_error"
		}
		return "other_error"
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "other_error"
	}
}

func containsInsensitive(s, substr string) bool {
	if len(s) < len(substr) {
		return false
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		match := true
		for j := 0; j < len(substr); j++ {
			c1 := s[i+j]
			c2 := substr[j]
			if c1 != c2 {
				if c1 >= 'A' && c1 <= 'Z' {
					c1 += 32
				}
				if c2 >= 'A' && c2 <= 'Z' {
					c2 += 32
				}
				if c1 != c2 {
					match = false
					break
				}
			}
		}
		if match {
			return true
		}
	}
	return false
}
