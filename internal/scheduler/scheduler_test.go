package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/materializer"
)

type mockStore struct {
	mu  sync.Mutex
	due []DueTrigger
	err error
}

func (s *mockStore) SelectDueTriggers(ctx context.Context, now time.Time, batchSize int) ([]DueTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.due) > batchSize {
		return s.due[:batchSize], nil
	}
	return s.due, nil
}

// mockMaterializer records calls and can fail specific triggers.
type mockMaterializer struct {
	mu      sync.Mutex
	calls   []uuid.UUID
	fail    map[uuid.UUID]bool // outcome failed, no error
	explode map[uuid.UUID]bool // outcome failed with error
}

func newMockMaterializer() *mockMaterializer {
	return &mockMaterializer{
		fail:    make(map[uuid.UUID]bool),
		explode: make(map[uuid.UUID]bool),
	}
}

func (m *mockMaterializer) Materialize(ctx context.Context, trigger domain.Trigger, program domain.Program, tasks []domain.Task, now time.Time) (materializer.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, trigger.ID)
	if m.explode[trigger.ID] {
		return materializer.OutcomeFailed, errors.New("failure recording failed too")
	}
	if m.fail[trigger.ID] {
		return materializer.OutcomeFailed, nil
	}
	return materializer.OutcomeGenerated, nil
}

func (m *mockMaterializer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func dueTrigger(due time.Time) DueTrigger {
	programID := uuid.New()
	return DueTrigger{
		Trigger: domain.Trigger{
			ID:             uuid.New(),
			ProgramID:      programID,
			Type:           domain.TriggerTypeCalendar,
			CronExpression: "0 9 * * 1",
			IsActive:       true,
			NextRunAt:      &due,
		},
		Program: domain.Program{
			ID:       programID,
			TenantID: uuid.New(),
			Name:     "Pump PM",
			OwnerID:  uuid.New(),
			IsActive: true,
		},
	}
}

// TestProcessTick_BatchIsolation: with 3 due triggers where the 2nd
// fails, triggers 1 and 3 are still materialized and the tick does not
// abort early.
func TestProcessTick_BatchIsolation(t *testing.T) {
	now := time.Date(2024, 6, 3, 9, 5, 0, 0, time.UTC)

	first := dueTrigger(now.Add(-3 * time.Minute))
	second := dueTrigger(now.Add(-2 * time.Minute))
	third := dueTrigger(now.Add(-time.Minute))

	st := &mockStore{due: []DueTrigger{first, second, third}}
	mat := newMockMaterializer()
	mat.explode[second.Trigger.ID] = true

	sched := New(Config{}, st, mat).WithClock(func() time.Time { return now })

	if err := sched.ProcessTick(context.Background()); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if mat.callCount() != 3 {
		t.Fatalf("expected all 3 triggers processed, got %d", mat.callCount())
	}
	if mat.calls[0] != first.Trigger.ID || mat.calls[2] != third.Trigger.ID {
		t.Error("triggers processed out of due order")
	}
}

func TestProcessTick_SelectorErrorFailsTick(t *testing.T) {
	st := &mockStore{err: errors.New("query timeout")}
	mat := newMockMaterializer()

	sched := New(Config{}, st, mat)

	if err := sched.ProcessTick(context.Background()); err == nil {
		t.Fatal("expected tick error when selector fails")
	}
	if mat.callCount() != 0 {
		t.Errorf("materializer invoked despite selector failure: %d calls", mat.callCount())
	}
}

func TestProcessTick_BatchSizeBoundsWork(t *testing.T) {
	now := time.Now().UTC()
	var due []DueTrigger
	for i := 0; i < 40; i++ {
		due = append(due, dueTrigger(now.Add(-time.Minute)))
	}

	st := &mockStore{due: due}
	mat := newMockMaterializer()
	sched := New(Config{BatchSize: 25}, st, mat)

	if err := sched.ProcessTick(context.Background()); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if mat.callCount() != 25 {
		t.Errorf("expected 25 triggers this tick, got %d", mat.callCount())
	}
}

type mockBreaker struct {
	mu        sync.Mutex
	denied    map[string]bool
	successes []string
	failures  []string
}

func (b *mockBreaker) Allow(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.denied[id] {
		return errors.New("circuit open")
	}
	return nil
}

func (b *mockBreaker) RecordSuccess(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes = append(b.successes, id)
}

func (b *mockBreaker) RecordFailure(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, id)
}

func TestProcessTick_BreakerSuppressesTrigger(t *testing.T) {
	now := time.Now().UTC()
	broken := dueTrigger(now.Add(-2 * time.Minute))
	healthy := dueTrigger(now.Add(-time.Minute))

	st := &mockStore{due: []DueTrigger{broken, healthy}}
	mat := newMockMaterializer()
	breaker := &mockBreaker{denied: map[string]bool{broken.Trigger.ID.String(): true}}

	sched := New(Config{}, st, mat).WithBreaker(breaker)

	if err := sched.ProcessTick(context.Background()); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if mat.callCount() != 1 {
		t.Fatalf("expected only the healthy trigger materialized, got %d calls", mat.callCount())
	}
	if mat.calls[0] != healthy.Trigger.ID {
		t.Error("wrong trigger materialized")
	}
	if len(breaker.successes) != 1 || breaker.successes[0] != healthy.Trigger.ID.String() {
		t.Errorf("breaker successes = %v, want the healthy trigger", breaker.successes)
	}
}

func TestProcessTick_BreakerRecordsFailures(t *testing.T) {
	now := time.Now().UTC()
	failing := dueTrigger(now.Add(-time.Minute))

	st := &mockStore{due: []DueTrigger{failing}}
	mat := newMockMaterializer()
	mat.fail[failing.Trigger.ID] = true
	breaker := &mockBreaker{denied: map[string]bool{}}

	sched := New(Config{}, st, mat).WithBreaker(breaker)

	if err := sched.ProcessTick(context.Background()); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if len(breaker.failures) != 1 {
		t.Errorf("breaker failures = %v, want 1 entry", breaker.failures)
	}
}
