package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// TickJobName is the durable queue job that drives the evaluation loop.
const TickJobName = "pm:generate-work-orders"

// queuePingTimeout bounds the startup reachability probe.
const queuePingTimeout = 5 * time.Second

// JobQueue is a durable queue able to keep a repeatable job registered
// across process restarts.
type JobQueue interface {
	Ping(ctx context.Context) error
	// EnsureRepeatable registers name on a fixed cadence unless an
	// identical registration already exists.
	EnsureRepeatable(ctx context.Context, name string, every time.Duration) error
}

// JobWorker consumes jobs from the queue and runs registered handlers.
type JobWorker interface {
	Handle(name string, fn func(ctx context.Context) error)
	OnFailed(fn func(name string, err error))
	Run(ctx context.Context)
}

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	// StateDisabled means no queue backend was reachable at startup.
	// The scheduler stays off for the process lifetime; fixing the
	// configuration requires a restart.
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Handle owns the scheduler's queue and worker pair. The composition
// root creates one handle, starts it, and passes it to shutdown and
// health-check code; there is no module-level scheduler state.
type Handle struct {
	sched        *Scheduler
	queue        JobQueue
	worker       JobWorker
	tickInterval time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHandle(sched *Scheduler, queue JobQueue, worker JobWorker, tickInterval time.Duration) *Handle {
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	return &Handle{
		sched:        sched,
		queue:        queue,
		worker:       worker,
		tickInterval: tickInterval,
		state:        StateUninitialized,
	}
}

// Start brings the handle to ready (or disabled). It is idempotent:
// concurrent or repeated calls register exactly one repeatable job and
// one worker. A missing or unreachable queue backend is not an error;
// the scheduler logs a warning and stays disabled.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.state != StateUninitialized {
		h.mu.Unlock()
		return nil
	}
	h.state = StateInitializing
	h.mu.Unlock()

	if h.queue == nil {
		log.Println("scheduler: no queue backend configured; scheduler disabled")
		h.setState(StateDisabled)
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, queuePingTimeout)
	err := h.queue.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Printf("scheduler: queue backend unreachable, scheduler disabled: %v", err)
		h.setState(StateDisabled)
		return nil
	}

	if err := h.queue.EnsureRepeatable(ctx, TickJobName, h.tickInterval); err != nil {
		log.Printf("scheduler: queue backend rejected tick registration, scheduler disabled: %v", err)
		h.setState(StateDisabled)
		return nil
	}

	h.worker.Handle(TickJobName, h.sched.ProcessTick)
	h.worker.OnFailed(func(name string, err error) {
		// Tick-level failures (selector query errors and the like) are
		// logged; the next scheduled tick proceeds independently.
		log.Printf("scheduler: job=%s failed: %v", name, err)
	})

	runCtx, cancelRun := context.WithCancel(context.Background())

	h.mu.Lock()
	h.cancel = cancelRun
	h.state = StateReady
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.worker.Run(runCtx)
	}()

	log.Printf("scheduler: ready (tick=%s)", h.tickInterval)
	return nil
}

// Shutdown stops the worker and waits for in-flight tick processing,
// bounded by ctx.
func (h *Handle) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Healthy reports whether the scheduler is actively ticking.
func (h *Handle) Healthy() bool {
	return h.State() == StateReady
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}
