package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahmethakanbesel/oasis-api/internal/apperror"
	"github.com/ahmethakanbesel/oasis-api/internal/fetcher"
)

const dateFormat = "2006-01-02"

type Service struct {
	repo   Repository
	notify func() // optional: wake worker pool
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SetNotify sets a callback invoked when new pending jobs are created.
func (s *Service) SetNotify(fn func()) { s.notify = fn }

func (s *Service) RecoverStaleJobs(ctx context.Context) error {
	n, err := s.repo.RecoverStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("re-queued interrupted jobs", "count", n)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, req GetJobRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, req.ID)
}

func (s *Service) List(ctx context.Context, req ListJobsRequest) ([]Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	jobs, err := s.repo.List(ctx, req.Dataset, req.Key)
	if err != nil || req.Status == "" {
		return jobs, err
	}
	out := jobs[:0]
	for _, j := range jobs {
		if j.Status == req.Status {
			out = append(out, j)
		}
	}
	return out, nil
}

// Retry queues one pending job per failed chunk of a partial or failed job.
// A failed job without recorded chunks is re-queued for its whole range.
// Chunks that already have an active job are not queued twice.
func (s *Service) Retry(ctx context.Context, req RetryJobRequest) ([]*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	orig, err := s.repo.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !orig.Status.Retryable() {
		return nil, apperror.New(apperror.Conflict, fmt.Sprintf("job %d is %s and cannot be retried", orig.ID, orig.Status))
	}

	ranges := orig.FailedChunks
	if len(ranges) == 0 {
		ranges = []fetcher.DateRange{{From: orig.StartDate, To: orig.EndDate}}
	}

	jobs := make([]*Job, 0, len(ranges))
	for _, r := range ranges {
		active, err := s.repo.FindActive(ctx, orig.Dataset, orig.Key, r.From.Format(dateFormat), r.To.Format(dateFormat))
		if err != nil {
			return nil, fmt.Errorf("find active job: %w", err)
		}
		if active != nil {
			jobs = append(jobs, active)
			continue
		}

		j := &Job{
			Dataset:   orig.Dataset,
			Key:       orig.Key,
			StartDate: r.From,
			EndDate:   r.To,
			Status:    StatusPending,
		}
		if err := s.repo.Create(ctx, j); err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}
		jobs = append(jobs, j)
	}

	slog.Info("retrying job", "job", orig.ID, "dataset", orig.Dataset, "chunks", len(jobs))
	if s.notify != nil {
		s.notify()
	}
	return jobs, nil
}
