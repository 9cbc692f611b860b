package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evalabs/opswatch/internal/config"
	"github.com/evalabs/opswatch/internal/db"
)

func TestRunLiveChecks(t *testing.T) {
	// With nothing configured every probe short-circuits (missing target,
	// missing key, nil pool): no network I/O, full result list anyway.
	cfg := config.MonitoringConfig{Enabled: true, Interval: time.Minute, CheckTimeout: time.Second}
	engine := NewEngine(cfg, nil, nil, nil, nil, nil, zap.NewNop())

	results := engine.RunLiveChecks(context.Background())
	specs := BuildSpecs(cfg)
	if len(results) != len(specs) {
		t.Fatalf("results = %d, want one per spec (%d)", len(results), len(specs))
	}

	for _, r := range results {
		if r.CheckKey == "" {
			t.Error("result missing check_key")
		}
		if r.Status != db.StatusUp && r.Status != db.StatusDegraded && r.Status != db.StatusDown {
			t.Errorf("%s: invalid status %q", r.CheckKey, r.Status)
		}
		if r.Status == db.StatusDegraded && r.ErrorMessage == "" {
			t.Errorf("%s: degraded without explanation", r.CheckKey)
		}
		if r.CheckedAt.IsZero() {
			t.Errorf("%s: checked_at not stamped", r.CheckKey)
		}
	}
}

func TestLoopDisabledIsNoOp(t *testing.T) {
	cfg := config.MonitoringConfig{Enabled: false, Interval: time.Minute, CheckTimeout: time.Second}
	engine := NewEngine(cfg, nil, nil, nil, nil, nil, zap.NewNop())

	done := make(chan struct{})
	go func() {
		engine.Loop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled loop did not return immediately")
	}
}

func TestLoopStopsPromptly(t *testing.T) {
	// A long interval must not delay shutdown: the stop signal interrupts
	// the inter-cycle sleep.
	cfg := config.MonitoringConfig{Enabled: true, Interval: time.Hour, CheckTimeout: time.Second}
	engine := NewEngine(cfg, nil, nil, nil, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Loop(ctx)
		close(done)
	}()

	// Give the first cycle a moment to start, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop promptly on cancellation")
	}
}

// gatedStore blocks the first insert until released and records the
// context state seen by every write.
type gatedStore struct {
	*fakeStore
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	ctxErrs []error
}

func (s *gatedStore) InTx(_ context.Context, fn func(Store) error) error {
	return fn(s)
}

func (s *gatedStore) InsertCheck(ctx context.Context, row *db.CheckRow) error {
	s.once.Do(func() { close(s.started) })
	<-s.release

	s.mu.Lock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()

	return s.fakeStore.InsertCheck(ctx, row)
}

func TestShutdownLetsCycleFinish(t *testing.T) {
	// Cancelling the loop mid-cycle must not abort in-flight persistence:
	// the started cycle writes every result, then the loop exits.
	cfg := config.MonitoringConfig{Enabled: true, Interval: time.Hour, CheckTimeout: time.Second}
	store := &gatedStore{
		fakeStore: newFakeStore(),
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	engine := NewEngine(cfg, nil, nil, store, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Loop(ctx)
		close(done)
	}()

	<-store.started
	cancel()
	close(store.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after the cycle finished")
	}

	rows := 0
	for _, history := range store.fakeStore.checks {
		rows += len(history)
	}
	if want := len(BuildSpecs(cfg)); rows != want {
		t.Errorf("persisted rows = %d, want %d: shutdown aborted in-flight writes", rows, want)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, err := range store.ctxErrs {
		if err != nil {
			t.Errorf("write observed %v after the stop signal", err)
		}
	}
}

func TestCyclePanicDoesNotKillLoop(t *testing.T) {
	cfg := config.MonitoringConfig{Enabled: true, Interval: 10 * time.Millisecond, CheckTimeout: time.Second}
	engine := NewEngine(cfg, nil, nil, nil, nil, nil, zap.NewNop())
	engine.probers = nil // an impossible state, forces the fallback path
	engine.now = func() time.Time { panic("boom") }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Loop(ctx)
		close(done)
	}()

	// Survive several panicking iterations, then shut down cleanly.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop terminated by a panicking iteration")
	}
}
