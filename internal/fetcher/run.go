package fetcher

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ahmethakanbesel/oasis-api/internal/tabular"
)

// ChunkFunc fetches the table for a single chunk.
type ChunkFunc func(ctx context.Context, c DateRange) (*tabular.Table, error)

// FetchChunks calls fn once per chunk with at most workers calls in flight
// and concatenates the successful tables in chunk order. A failing chunk is
// logged and reported in the returned slice; it never stops the others.
// Chunks not started before ctx is cancelled are reported as failed.
func FetchChunks(ctx context.Context, dataset string, chunks []DateRange, workers int, fn ChunkFunc) (*tabular.Table, []ChunkError) {
	if workers <= 0 {
		workers = 1
	}

	type result struct {
		table *tabular.Table
		err   error
	}
	results := make([]result, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, c := range chunks {
		if err := gctx.Err(); err != nil {
			results[i] = result{err: err}
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = result{err: err}
				return nil
			}
			t, err := fn(gctx, c)
			if err != nil {
				slog.Error("error retrieving chunk", "dataset", dataset,
					"startDate", c.From.Format(dateFormat), "endDate", c.To.Format(dateFormat), "error", err)
				results[i] = result{err: err}
				return nil // continue other chunks
			}
			slog.Info("retrieved chunk", "dataset", dataset,
				"startDate", c.From.Format(dateFormat), "endDate", c.To.Format(dateFormat), "rows", t.Len())
			results[i] = result{table: t}
			return nil
		})
	}
	_ = g.Wait()

	all := &tabular.Table{}
	var failed []ChunkError
	for i, r := range results {
		if r.err != nil {
			failed = append(failed, ChunkError{Range: chunks[i], Err: r.err})
			continue
		}
		all.Append(r.table)
	}
	return all, failed
}

const dateFormat = "2006-01-02"
