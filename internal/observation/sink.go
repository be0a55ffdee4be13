package observation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmethakanbesel/oasis-api/internal/snapshot"
)

// SnapshotSink writes every batch to a gob file named after the dataset,
// the fetch key and the operating days it covers.
type SnapshotSink struct {
	dir string
}

func NewSnapshotSink(dir string) *SnapshotSink {
	return &SnapshotSink{dir: dir}
}

func (s *SnapshotSink) Name() string { return "snapshot" }

func (s *SnapshotSink) Persist(_ context.Context, dataset, key string, obs []Observation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	if _, err := snapshot.Write(s.dir, SnapshotName(dataset, key, obs), obs); err != nil {
		return 0, err
	}
	return int64(len(obs)), nil
}

// ReadSnapshot loads a batch written by SnapshotSink.
func (s *SnapshotSink) ReadSnapshot(name string) ([]Observation, error) {
	return snapshot.Read[[]Observation](s.dir, name)
}

// Restore saves every snapshot in the sink's directory into repo and
// returns the number of new rows. Rows already stored are ignored by the
// repository, so restoring twice is harmless. Unreadable snapshots are
// logged and skipped.
func (s *SnapshotSink) Restore(ctx context.Context, repo Repository) (int64, error) {
	names, err := snapshot.List(s.dir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		obs, err := s.ReadSnapshot(name)
		if err != nil {
			slog.Error("read snapshot", "name", name, "error", err)
			continue
		}
		n, err := repo.SaveObservations(ctx, obs)
		if err != nil {
			return total, fmt.Errorf("restore snapshot %s: %w", name, err)
		}
		total += n
	}
	slog.Info("restored snapshots", "dir", s.dir, "files", len(names), "new", total)
	return total, nil
}

// SnapshotName is <dataset>[_<key>]_<first day>_<last day>. Characters
// outside [A-Za-z0-9._-] in the key become '-'.
func SnapshotName(dataset, key string, obs []Observation) string {
	first, last := obs[0].OprDate, obs[0].OprDate
	for _, o := range obs[1:] {
		if o.OprDate.Before(first) {
			first = o.OprDate
		}
		if o.OprDate.After(last) {
			last = o.OprDate
		}
	}
	prefix := dataset
	if key != "" {
		prefix += "_" + sanitizeKey(key)
	}
	return fmt.Sprintf("%s_%s_%s", prefix, first.Format(dateFormat), last.Format(dateFormat))
}

func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '-'
	}, key)
}
