package job

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Processor runs a claimed job and records its outcome.
type Processor interface {
	Process(ctx context.Context, j *Job) error
}

// Stats counts jobs handled by a pool since it was created.
type Stats struct {
	Claimed  int64 `json:"claimed"`
	Errored  int64 `json:"errored"`
	Panicked int64 `json:"panicked"`
}

// WorkerPool runs a fixed number of goroutines that claim pending jobs and
// hand them to a Processor. Workers wake on Notify or every poll interval.
type WorkerPool struct {
	repo         Repository
	processor    Processor
	workers      int
	notify       chan struct{}
	pollInterval time.Duration

	claimed  atomic.Int64
	errored  atomic.Int64
	panicked atomic.Int64
}

type PoolOption func(*WorkerPool)

// WithPollInterval sets how often idle workers look for pending jobs
// without being notified.
func WithPollInterval(d time.Duration) PoolOption {
	return func(wp *WorkerPool) {
		if d > 0 {
			wp.pollInterval = d
		}
	}
}

func NewWorkerPool(repo Repository, processor Processor, workers int, opts ...PoolOption) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	wp := &WorkerPool{
		repo:         repo,
		processor:    processor,
		workers:      workers,
		notify:       make(chan struct{}, 1),
		pollInterval: 5 * time.Second,
	}
	for _, o := range opts {
		o(wp)
	}
	return wp
}

// Notify wakes an idle worker. It never blocks.
func (wp *WorkerPool) Notify() {
	select {
	case wp.notify <- struct{}{}:
	default:
	}
}

func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Claimed:  wp.claimed.Load(),
		Errored:  wp.errored.Load(),
		Panicked: wp.panicked.Load(),
	}
}

// Run blocks until ctx is cancelled and every worker has returned.
func (wp *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range wp.workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			wp.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (wp *WorkerPool) loop(ctx context.Context, id int) {
	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		wp.drain(ctx, id)

		select {
		case <-ctx.Done():
			return
		case <-wp.notify:
		case <-ticker.C:
		}
	}
}

func (wp *WorkerPool) drain(ctx context.Context, id int) {
	for ctx.Err() == nil {
		j, err := wp.repo.ClaimPending(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("worker: claim pending", "worker", id, "error", err)
			}
			return
		}
		if j == nil {
			return
		}
		wp.claimed.Add(1)

		slog.Info("worker: processing job", "worker", id, "job", j.ID, "dataset", j.Dataset, "key", j.Key,
			"from", j.StartDate.Format("2006-01-02"), "to", j.EndDate.Format("2006-01-02"))

		if err := wp.process(ctx, j); err != nil {
			wp.errored.Add(1)
			slog.Error("worker: process job", "worker", id, "job", j.ID, "error", err)
		}
	}
}

// process runs one job. A panicking processor fails the job instead of
// taking the worker down with it.
func (wp *WorkerPool) process(ctx context.Context, j *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			wp.panicked.Add(1)
			slog.Error("worker: panic", "job", j.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
			j.Status = StatusFailed
			j.Error = err.Error()
			if uerr := wp.repo.Update(context.WithoutCancel(ctx), j); uerr != nil {
				slog.Error("worker: mark job failed", "job", j.ID, "error", uerr)
			}
		}
	}()
	return wp.processor.Process(ctx, j)
}
