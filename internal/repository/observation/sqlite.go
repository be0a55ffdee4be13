package observation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	domain "github.com/ahmethakanbesel/oasis-api/internal/observation"
)

const (
	dateFormat    = "2006-01-02"
	instantFormat = "2006-01-02T15:04:05Z"
	batchSize     = 500
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveObservations inserts obs and returns the number of new rows. Rows
// already stored for the same interval are ignored.
func (r *Repository) SaveObservations(ctx context.Context, obs []domain.Observation) (int64, error) {
	return insertBatches(ctx, r.db, "INSERT OR IGNORE INTO observations", obs, func(o domain.Observation) []any {
		end := ""
		if !o.IntervalEnd.IsZero() {
			end = o.IntervalEnd.UTC().Format(instantFormat)
		}
		return []any{
			o.Dataset, o.Area, o.Item, o.Label, o.MarketRun, o.Detail,
			o.IntervalStart.UTC().Format(instantFormat), end,
			o.OprDate.Format(dateFormat), o.OprHour, o.OprInterval, o.MW,
		}
	})
}

func (r *Repository) ListObservations(ctx context.Context, dataset, area string, from, to time.Time) ([]domain.Observation, error) {
	const query = `SELECT id, dataset, area, item, label, market_run, detail,
		interval_start, interval_end, opr_date, opr_hour, opr_interval, mw, created_at
		FROM observations
		WHERE dataset = ? AND (? = '' OR area = ?) AND opr_date >= ? AND opr_date <= ?
		ORDER BY interval_start ASC, area ASC, item ASC, label ASC`

	rows, err := r.db.QueryContext(ctx, query,
		dataset, area, area,
		from.Format(dateFormat), to.Format(dateFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var obs []domain.Observation
	for rows.Next() {
		var o domain.Observation
		var startStr, endStr, oprStr, createdStr string
		if err := rows.Scan(
			&o.ID, &o.Dataset, &o.Area, &o.Item, &o.Label, &o.MarketRun, &o.Detail,
			&startStr, &endStr, &oprStr, &o.OprHour, &o.OprInterval, &o.MW, &createdStr,
		); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.IntervalStart, _ = time.Parse(instantFormat, startStr)
		if endStr != "" {
			o.IntervalEnd, _ = time.Parse(instantFormat, endStr)
		}
		o.OprDate, _ = time.Parse(dateFormat, oprStr)
		o.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		obs = append(obs, o)
	}

	return obs, rows.Err()
}

// ExistingDays returns the operating days in [from, to] that have at least
// one stored row.
func (r *Repository) ExistingDays(ctx context.Context, dataset, area string, from, to time.Time) (map[time.Time]bool, error) {
	const query = `SELECT DISTINCT opr_date FROM observations
		WHERE dataset = ? AND (? = '' OR area = ?) AND opr_date >= ? AND opr_date <= ?`

	rows, err := r.db.QueryContext(ctx, query,
		dataset, area, area,
		from.Format(dateFormat), to.Format(dateFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("existing days: %w", err)
	}
	defer func() { _ = rows.Close() }()

	days := make(map[time.Time]bool)
	for rows.Next() {
		var dateStr string
		if err := rows.Scan(&dateStr); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		t, _ := time.Parse(dateFormat, dateStr)
		days[t] = true
	}

	return days, rows.Err()
}

const insertColumns = "(dataset, area, item, label, market_run, detail, interval_start, interval_end, opr_date, opr_hour, opr_interval, mw)"

// insertBatches runs stmt for obs in batches of batchSize rows and sums the
// affected row counts.
func insertBatches(ctx context.Context, db *sql.DB, stmt string, obs []domain.Observation, values func(domain.Observation) []any) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	const columns = 12
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", columns), ", ") + ")"
	var total int64

	for i := 0; i < len(obs); i += batchSize {
		end := min(i+batchSize, len(obs))
		batch := obs[i:end]

		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*columns)
		for j, o := range batch {
			placeholders[j] = placeholder
			args = append(args, values(o)...)
		}

		query := fmt.Sprintf("%s %s VALUES %s", stmt, insertColumns, strings.Join(placeholders, ", ")) //nolint:gosec // placeholders are not user input

		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("save observations: %w", err)
		}

		n, _ := res.RowsAffected()
		total += n
	}

	return total, nil
}
