package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/testutil"
)

// mockStore returns a configurable overdue count.
type mockStore struct {
	mu        sync.Mutex
	count     int
	err       error
	olderThan []time.Time
}

func (s *mockStore) CountOverdueTriggers(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.olderThan = append(s.olderThan, olderThan)
	if s.err != nil {
		return 0, s.err
	}
	return s.count, nil
}

func (s *mockStore) lastOlderThan() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.olderThan) == 0 {
		return time.Time{}
	}
	return s.olderThan[len(s.olderThan)-1]
}

// mockNudger tracks nudge calls.
type mockNudger struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *mockNudger) Nudge(ctx context.Context, name string, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.calls = append(n.calls, name)
	return nil
}

func (n *mockNudger) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type mockMetrics struct {
	mu      sync.Mutex
	updates []int
}

func (m *mockMetrics) OverdueTriggersUpdate(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, count)
}

func (m *mockMetrics) lastUpdate() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updates) == 0 {
		return 0, false
	}
	return m.updates[len(m.updates)-1], true
}

func TestSweep_NudgesWhenBacklogFound(t *testing.T) {
	store := &mockStore{count: 7}
	nudger := &mockNudger{}

	s := New(
		Config{
			Interval:    time.Hour, // Not used in direct runCycle call
			Threshold:   15 * time.Minute,
			TickJobName: "pm:generate-work-orders",
		},
		store,
	).WithNudger(nudger)

	s.runCycle(context.Background())

	if nudger.callCount() != 1 {
		t.Errorf("expected 1 nudge, got %d", nudger.callCount())
	}
}

func TestSweep_ThresholdApplied(t *testing.T) {
	store := &mockStore{count: 0}
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	clock := testutil.NewFakeClock(now)

	s := New(Config{Interval: time.Hour, Threshold: 15 * time.Minute}, store)
	s.clock = clock.Now

	s.runCycle(context.Background())

	want := now.Add(-15 * time.Minute)
	if got := store.lastOlderThan(); !got.Equal(want) {
		t.Errorf("olderThan = %s, want %s", got, want)
	}
}

func TestSweep_NoNudgeWhenClear(t *testing.T) {
	store := &mockStore{count: 0}
	nudger := &mockNudger{}

	s := New(
		Config{Interval: time.Hour, Threshold: 15 * time.Minute, TickJobName: "pm:generate-work-orders"},
		store,
	).WithNudger(nudger)

	s.runCycle(context.Background())

	if nudger.callCount() != 0 {
		t.Errorf("expected no nudge, got %d", nudger.callCount())
	}
}

func TestSweep_GaugeUpdatedEvenWhenClear(t *testing.T) {
	store := &mockStore{count: 0}
	metrics := &mockMetrics{}

	s := New(Config{Interval: time.Hour, Threshold: 15 * time.Minute}, store).
		WithMetrics(metrics)

	s.runCycle(context.Background())

	if got, ok := metrics.lastUpdate(); !ok || got != 0 {
		t.Errorf("gauge update = %d (recorded=%v), want 0", got, ok)
	}
}

func TestSweep_StoreErrorAbortsCycle(t *testing.T) {
	store := &mockStore{err: errors.New("connection refused")}
	nudger := &mockNudger{}
	metrics := &mockMetrics{}

	s := New(
		Config{Interval: time.Hour, Threshold: 15 * time.Minute, TickJobName: "pm:generate-work-orders"},
		store,
	).WithNudger(nudger).WithMetrics(metrics)

	s.runCycle(context.Background())

	if nudger.callCount() != 0 {
		t.Error("cycle should abort before nudging on store error")
	}
	if _, ok := metrics.lastUpdate(); ok {
		t.Error("gauge should not update on store error")
	}
}

func TestSweep_NudgeErrorLogged(t *testing.T) {
	store := &mockStore{count: 3}
	nudger := &mockNudger{err: errors.New("redis down")}

	s := New(
		Config{Interval: time.Hour, Threshold: 15 * time.Minute, TickJobName: "pm:generate-work-orders"},
		store,
	).WithNudger(nudger)

	// Should not panic; error is logged and the cycle ends.
	s.runCycle(context.Background())
}

func TestSweep_RunStopsOnCancel(t *testing.T) {
	store := &mockStore{count: 0}
	s := New(Config{Interval: 10 * time.Millisecond, Threshold: time.Minute}, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
