package observation

import (
	"context"
	"database/sql"

	domain "github.com/ahmethakanbesel/oasis-api/internal/observation"
)

// MySQLSink mirrors fetched observations into the oasis_observations table
// created by platform/mysql.
type MySQLSink struct {
	db *sql.DB
}

func NewMySQLSink(db *sql.DB) *MySQLSink {
	return &MySQLSink{db: db}
}

func (s *MySQLSink) Name() string { return "mysql" }

func (s *MySQLSink) Persist(ctx context.Context, _, _ string, obs []domain.Observation) (int64, error) {
	return insertBatches(ctx, s.db, "INSERT IGNORE INTO oasis_observations", obs, func(o domain.Observation) []any {
		var end any
		if !o.IntervalEnd.IsZero() {
			end = o.IntervalEnd.UTC()
		}
		return []any{
			o.Dataset, o.Area, o.Item, o.Label, o.MarketRun, o.Detail,
			o.IntervalStart.UTC(), end,
			o.OprDate.Format(dateFormat), o.OprHour, o.OprInterval, o.MW,
		}
	})
}
