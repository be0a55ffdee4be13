package fetcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	cerrors "cloudeng.io/errors"

	"github.com/ahmethakanbesel/oasis-api/internal/tabular"
)

// Record is a single row of a grid-operator dataset.
type Record struct {
	IntervalStart time.Time
	IntervalEnd   time.Time
	OprDate       time.Time
	OprHour       int
	OprInterval   int
	Area          string
	Item          string
	Label         string
	MarketRun     string
	Detail        string
	MW            float64
}

// ChunkError reports a chunk that could not be fetched. The chunk can be
// re-requested on its own.
type ChunkError struct {
	Range DateRange
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %s: %v", e.Range, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Result is the accumulated output of a chunked fetch. Table and Records
// hold the rows of the successful chunks in chunk order.
type Result struct {
	Table   *tabular.Table
	Records []Record
	Failed  []ChunkError
}

// Err returns the chunk failures as a single error, or nil.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := &cerrors.M{}
	for i := range r.Failed {
		errs.Append(&r.Failed[i])
	}
	return errs.Err()
}

// FailedRanges lists the date ranges of the failed chunks.
func (r *Result) FailedRanges() []DateRange {
	out := make([]DateRange, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Range
	}
	return out
}

type Fetcher interface {
	Dataset() string
	MaxSpanDays() int
	Fetch(ctx context.Context, key string, from, to time.Time) (*Result, error)
}

type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

func NewRegistry() *Registry {
	return &Registry{
		fetchers: make(map[string]Fetcher),
	}
}

func (r *Registry) Register(f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[f.Dataset()] = f
}

func (r *Registry) Get(dataset string) (Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[dataset]
	if !ok {
		return nil, fmt.Errorf("fetcher not found for dataset: %s", dataset)
	}
	return f, nil
}

func (r *Registry) Datasets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	datasets := make([]string, 0, len(r.fetchers))
	for name := range r.fetchers {
		datasets = append(datasets, name)
	}
	sort.Strings(datasets)
	return datasets
}
