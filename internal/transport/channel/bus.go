// Package channel is an in-process event bus carrying generation events
// from the materializer to the notifier. Emit is bounded: a full buffer
// fails the emit after a short timeout instead of blocking the tick.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
)

// ErrBufferFull is returned when the buffer stays full past the emit timeout.
var ErrBufferFull = errors.New("event bus buffer full")

// DefaultEmitTimeout bounds how long Emit waits on a full buffer.
const DefaultEmitTimeout = 100 * time.Millisecond

// MetricsSink records buffer gauges. All methods must be non-blocking.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()
}

type Option func(*EventBus)

func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		if d > 0 {
			b.emitTimeout = d
		}
	}
}

func WithMetrics(m MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = m
	}
}

type EventBus struct {
	ch          chan domain.GenerationEvent
	emitTimeout time.Duration
	metrics     MetricsSink // optional, nil = disabled
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch:          make(chan domain.GenerationEvent, buffer),
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit delivers the event to the buffer, failing with ErrBufferFull if
// the buffer stays full for the emit timeout.
func (b *EventBus) Emit(ctx context.Context, event domain.GenerationEvent) error {
	select {
	case b.ch <- event:
		b.updateGauges()
		return nil
	default:
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- event:
		b.updateGauges()
		return nil
	case <-ctx.Done():
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

func (b *EventBus) Channel() <-chan domain.GenerationEvent {
	return b.ch
}

func (b *EventBus) updateGauges() {
	if b.metrics == nil {
		return
	}
	size := len(b.ch)
	capacity := cap(b.ch)
	b.metrics.BufferSizeUpdate(size)
	if capacity > 0 {
		b.metrics.BufferSaturationUpdate(float64(size) / float64(capacity))
	}
}
