package observation

import (
	"context"
	"time"
)

// Repository stores observations. Date bounds are inclusive operating days;
// an empty area matches every area.
type Repository interface {
	SaveObservations(ctx context.Context, obs []Observation) (int64, error)
	ListObservations(ctx context.Context, dataset, area string, from, to time.Time) ([]Observation, error)
	ExistingDays(ctx context.Context, dataset, area string, from, to time.Time) (map[time.Time]bool, error)
}

// Sink receives a copy of every batch of newly fetched observations. key is
// the fetch key of the job that produced the batch and may be empty.
type Sink interface {
	Name() string
	Persist(ctx context.Context, dataset, key string, obs []Observation) (int64, error)
}
