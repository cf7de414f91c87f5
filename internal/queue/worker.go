package queue

import (
	"context"
	"log"
	"sync"
	"time"
)

// claimBatch bounds jobs claimed per poll.
const claimBatch = 10

// Backend is the claiming side of the queue. Satisfied by RedisQueue.
type Backend interface {
	ClaimDue(ctx context.Context, now time.Time, max int) ([]string, error)
}

// Worker polls the backend for due jobs and runs registered handlers.
// Handler panics are not recovered; a handler that can fail returns an
// error, which reaches the failed hook.
type Worker struct {
	backend Backend
	poll    time.Duration
	clock   func() time.Time

	mu       sync.Mutex
	handlers map[string]func(ctx context.Context) error
	onFailed func(name string, err error)
}

func NewWorker(backend Backend, poll time.Duration) *Worker {
	if poll <= 0 {
		poll = time.Second
	}
	return &Worker{
		backend:  backend,
		poll:     poll,
		clock:    time.Now,
		handlers: make(map[string]func(ctx context.Context) error),
	}
}

// Handle registers fn for jobs named name. Last registration wins.
func (w *Worker) Handle(name string, fn func(ctx context.Context) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = fn
}

// OnFailed registers the hook invoked when a handler returns an error.
func (w *Worker) OnFailed(fn func(name string, err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onFailed = fn
}

// Run polls until ctx is cancelled. Jobs within one poll run
// sequentially; a failing job never stops the loop.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	log.Printf("worker: started (poll=%s)", w.poll)

	for {
		select {
		case <-ctx.Done():
			log.Println("worker: stopped")
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) {
	names, err := w.backend.ClaimDue(ctx, w.clock().UTC(), claimBatch)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("worker: claim error: %v", err)
		}
		return
	}

	for _, name := range names {
		w.runJob(ctx, name)
	}
}

func (w *Worker) runJob(ctx context.Context, name string) {
	w.mu.Lock()
	handler := w.handlers[name]
	failed := w.onFailed
	w.mu.Unlock()

	if handler == nil {
		log.Printf("worker: no handler for job=%s", name)
		return
	}

	if err := handler(ctx); err != nil {
		if failed != nil {
			failed(name, err)
		} else {
			log.Printf("worker: job=%s failed: %v", name, err)
		}
	}
}
