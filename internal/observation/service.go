package observation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/apperror"
	"github.com/ahmethakanbesel/oasis-api/internal/fetcher"
	"github.com/ahmethakanbesel/oasis-api/internal/job"
)

const (
	dateFormat = "2006-01-02"

	// Below this share of stored days a request queues a fetch job.
	minCoverage = 0.8
)

type Service struct {
	repo      Repository
	jobRepo   job.Repository
	registry  *fetcher.Registry
	loc       *time.Location
	sinks     []Sink
	peakStart int
	peakEnd   int
	notify    func() // optional: wake worker pool
}

type Option func(*Service)

// WithLocation sets the timezone used for local timestamps and daily
// grouping. The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithSinks adds secondary stores that receive every fetched batch.
func WithSinks(sinks ...Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

func WithPeakHours(start, end int) Option {
	return func(s *Service) {
		s.peakStart = start
		s.peakEnd = end
	}
}

func NewService(repo Repository, jobRepo job.Repository, registry *fetcher.Registry, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		jobRepo:   jobRepo,
		registry:  registry,
		loc:       time.UTC,
		peakStart: DefaultOnPeakStart,
		peakEnd:   DefaultOnPeakEnd,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetNotify sets a callback invoked when a new pending job is created.
func (s *Service) SetNotify(fn func()) { s.notify = fn }

func (s *Service) ListDatasets() []string {
	return s.registry.Datasets()
}

// PeakHours returns the configured default on-peak window.
func (s *Service) PeakHours() (start, end int) {
	return s.peakStart, s.peakEnd
}

func (s *Service) GetObservations(ctx context.Context, req GetObservationsRequest) (*GetObservationsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	obs, j, err := s.observations(ctx, req.Dataset, req.Key, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	return &GetObservationsResponse{Observations: obs, Job: j}, nil
}

func (s *Service) GetPeaks(ctx context.Context, req GetPeaksRequest) (*GetPeaksResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	obs, j, err := s.observations(ctx, req.Dataset, req.Key, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	if req.Item != "" {
		filtered := obs[:0]
		for _, o := range obs {
			if o.Item == req.Item {
				filtered = append(filtered, o)
			}
		}
		obs = filtered
	}

	return &GetPeaksResponse{
		Peaks: DailyPeaks(obs, s.loc, req.OnPeakStart, req.OnPeakEnd),
		Job:   j,
	}, nil
}

// observations returns the stored rows for the range and, when too few days
// are stored, the job that fetches the rest.
func (s *Service) observations(ctx context.Context, dataset, key string, from, to time.Time) ([]Observation, *job.Job, error) {
	if _, err := s.registry.Get(dataset); err != nil {
		return nil, nil, apperror.Wrap(apperror.NotFound, err.Error(), err)
	}

	if to.IsZero() {
		to = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if from.After(to) {
		return nil, nil, apperror.New(apperror.BadRequest,
			fmt.Sprintf("startDate %s is after endDate %s", from.Format(dateFormat), to.Format(dateFormat)))
	}

	j, err := s.ensureJob(ctx, dataset, key, from, to)
	if err != nil {
		return nil, nil, err
	}

	obs, err := s.repo.ListObservations(ctx, dataset, key, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("list observations: %w", err)
	}
	for i := range obs {
		obs[i].LocalStart = UTCToLocal(obs[i].IntervalStart, s.loc)
	}
	return obs, j, nil
}

func (s *Service) ensureJob(ctx context.Context, dataset, key string, from, to time.Time) (*job.Job, error) {
	existing, err := s.repo.ExistingDays(ctx, dataset, key, from, to)
	if err != nil {
		return nil, fmt.Errorf("check existing days: %w", err)
	}

	totalDays := int(to.Sub(from).Hours()/24) + 1
	coverage := float64(len(existing)) / float64(max(totalDays, 1))
	if coverage > minCoverage && len(existing) > 0 {
		return nil, nil
	}

	start := firstMissingDay(existing, from, to)

	// Dedup: an active job for the same range is reused
	active, err := s.jobRepo.FindActive(ctx, dataset, key, start.Format(dateFormat), to.Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	if active != nil {
		return active, nil
	}

	j := &job.Job{
		Dataset:   dataset,
		Key:       key,
		StartDate: start,
		EndDate:   to,
		Status:    job.StatusPending,
	}
	if err := s.jobRepo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.notify != nil {
		s.notify()
	}
	return j, nil
}

// Process implements job.Processor. Called by the worker pool with a claimed
// (running) job. Rows already stored are ignored by the repository.
func (s *Service) Process(ctx context.Context, j *job.Job) error {
	f, err := s.registry.Get(j.Dataset)
	if err != nil {
		return s.failJob(ctx, j, err)
	}

	res, err := f.Fetch(ctx, j.Key, j.StartDate, j.EndDate)
	if ctx.Err() != nil {
		// The job stays running and RecoverStale re-queues it on the next
		// start. Chunks that finished before the cancellation are kept.
		if res != nil && len(res.Records) > 0 {
			obs := FromRecords(j.Dataset, res.Records, s.loc)
			n, serr := s.repo.SaveObservations(context.WithoutCancel(ctx), obs)
			if serr != nil {
				slog.Error("save observations after cancel", "job", j.ID, "error", serr)
			} else {
				slog.Info("saved observations before shutdown", "job", j.ID, "dataset", j.Dataset, "new", n, "fetched", len(obs))
			}
		}
		return ctx.Err()
	}
	if err != nil {
		return s.failJob(ctx, j, fmt.Errorf("fetch: %w", err))
	}

	obs := FromRecords(j.Dataset, res.Records, s.loc)

	n, err := s.repo.SaveObservations(ctx, obs)
	if err != nil {
		return s.failJob(ctx, j, fmt.Errorf("save observations: %w", err))
	}
	slog.Info("saved observations", "dataset", j.Dataset, "key", j.Key, "new", n, "fetched", len(obs), "failed_chunks", len(res.Failed))

	s.persistSinks(ctx, j.Dataset, j.Key, obs)

	j.RecordsCount = n
	j.FailedChunks = res.FailedRanges()
	fetchErr := res.Err()

	switch {
	case fetchErr == nil:
		j.Status = job.StatusCompleted
		j.Error = ""
	case len(obs) > 0:
		j.Status = job.StatusPartial
		j.Error = fetchErr.Error()
	default:
		return s.failJob(ctx, j, fetchErr)
	}

	if err := s.jobRepo.Update(ctx, j); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *Service) persistSinks(ctx context.Context, dataset, key string, obs []Observation) {
	if len(obs) == 0 {
		return
	}
	for _, sk := range s.sinks {
		n, err := sk.Persist(ctx, dataset, key, obs)
		if err != nil {
			slog.Error("sink persist", "sink", sk.Name(), "dataset", dataset, "error", err)
			continue
		}
		slog.Info("sink persisted", "sink", sk.Name(), "dataset", dataset, "rows", n)
	}
}

func (s *Service) failJob(ctx context.Context, j *job.Job, err error) error {
	j.Status = job.StatusFailed
	j.Error = err.Error()
	_ = s.jobRepo.Update(ctx, j)
	return err
}

// firstMissingDay returns the earliest day in [from, to] with no stored
// rows, or from when every day is stored.
func firstMissingDay(existing map[time.Time]bool, from, to time.Time) time.Time {
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !existing[d] {
			return d
		}
	}
	return from
}
