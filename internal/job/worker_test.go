package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockProcessor struct {
	processed atomic.Int64
	fn        func(j *Job) error
}

func (m *mockProcessor) Process(_ context.Context, j *Job) error {
	m.processed.Add(1)
	if m.fn != nil {
		return m.fn(j)
	}
	return nil
}

// startPool runs pool in the background and returns a func that stops it
// and waits for the workers to return.
func startPool(t *testing.T, pool *WorkerPool) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for graceful shutdown")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestWorkerPool_ProcessesPendingJobs(t *testing.T) {
	repo := newMockRepo()
	ctx := context.Background()
	for range 3 {
		_ = repo.Create(ctx, &Job{Dataset: "demand", Status: StatusPending})
	}

	proc := &mockProcessor{}
	pool := NewWorkerPool(repo, proc, 2, WithPollInterval(50*time.Millisecond))
	stop := startPool(t, pool)
	pool.Notify()

	waitFor(t, "3 jobs", func() bool { return proc.processed.Load() == 3 })
	stop()

	if s := pool.Stats(); s.Claimed != 3 || s.Errored != 0 || s.Panicked != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestWorkerPool_NotifyWakesWorker(t *testing.T) {
	repo := newMockRepo()
	proc := &mockProcessor{}
	// long poll so only Notify wakes it
	pool := NewWorkerPool(repo, proc, 1, WithPollInterval(10*time.Second))
	stop := startPool(t, pool)
	defer stop()

	_ = repo.Create(context.Background(), &Job{Dataset: "renewable", Status: StatusPending})
	pool.Notify()

	waitFor(t, "notify", func() bool { return proc.processed.Load() == 1 })
}

func TestWorkerPool_CountsErrors(t *testing.T) {
	repo := newMockRepo()
	_ = repo.Create(context.Background(), &Job{Dataset: "demand", Status: StatusPending})

	proc := &mockProcessor{fn: func(*Job) error { return errors.New("update failed") }}
	pool := NewWorkerPool(repo, proc, 1, WithPollInterval(20*time.Millisecond))
	stop := startPool(t, pool)
	defer stop()

	waitFor(t, "errored job", func() bool { return pool.Stats().Errored == 1 })
}

func TestWorkerPool_PanicFailsJob(t *testing.T) {
	repo := newMockRepo()
	ctx := context.Background()
	bad := &Job{Dataset: "transmission", Key: "MALIN500", Status: StatusPending}
	good := &Job{Dataset: "demand", Status: StatusPending}
	_ = repo.Create(ctx, bad)
	_ = repo.Create(ctx, good)

	proc := &mockProcessor{fn: func(j *Job) error {
		if j.Dataset == "transmission" {
			panic("nil table")
		}
		return nil
	}}
	pool := NewWorkerPool(repo, proc, 1, WithPollInterval(20*time.Millisecond))
	stop := startPool(t, pool)
	waitFor(t, "both jobs", func() bool { return proc.processed.Load() == 2 })
	stop()

	got, err := repo.Get(ctx, bad.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.Error != "panic: nil table" {
		t.Errorf("panicked job = %s %q, want failed", got.Status, got.Error)
	}
	if s := pool.Stats(); s.Panicked != 1 || s.Errored != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestWorkerPool_GracefulShutdown(t *testing.T) {
	pool := NewWorkerPool(newMockRepo(), &mockProcessor{}, 2, WithPollInterval(50*time.Millisecond))
	stop := startPool(t, pool)
	stop()
}
