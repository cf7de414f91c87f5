package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                                                            {}
func (n *NoopSink) TickCompleted(duration time.Duration, generated int, err error)          {}
func (n *NoopSink) TriggersSelectedUpdate(count int)                                        {}
func (n *NoopSink) MaterializationOutcome(outcome string)                                   {}
func (n *NoopSink) NotifyAttemptCompleted(attempt int, statusClass string, d time.Duration) {}
func (n *NoopSink) NotifyOutcome(outcome string)                                            {}
func (n *NoopSink) EventsInFlightIncr()                                                     {}
func (n *NoopSink) EventsInFlightDecr()                                                     {}
func (n *NoopSink) BufferSizeUpdate(size int)                                               {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                          {}
func (n *NoopSink) BufferSaturationUpdate(saturation float64)                               {}
func (n *NoopSink) EmitError()                                                              {}
func (n *NoopSink) OverdueTriggersUpdate(count int)                                         {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                       {}
func (n *NoopSink) LeaderAcquired()                                                         {}
func (n *NoopSink) LeaderLost(reason string)                                                {}
