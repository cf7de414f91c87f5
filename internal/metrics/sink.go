package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Scheduler metrics
	TickStarted()
	TickCompleted(duration time.Duration, generated int, err error)
	TriggersSelectedUpdate(count int)
	MaterializationOutcome(outcome string)

	// Notifier metrics
	NotifyAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	NotifyOutcome(outcome string)
	EventsInFlightIncr()
	EventsInFlightDecr()

	// EventBus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()

	// Sweep metrics
	OverdueTriggersUpdate(count int)

	// Leader election metrics
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Outcome constants for MaterializationOutcome metric.
const (
	OutcomeGenerated  = "generated"
	OutcomeSkipped    = "skipped"
	OutcomeFailed     = "failed"
	OutcomeSuppressed = "suppressed"
)

// Outcome constants for NotifyOutcome metric.
const (
	NotifyOutcomeSuccess = "success"
	NotifyOutcomeFailed  = "failed"
)
