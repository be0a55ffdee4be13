package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/apperror"
	"github.com/ahmethakanbesel/oasis-api/internal/fetcher"
	domain "github.com/ahmethakanbesel/oasis-api/internal/job"
)

const (
	dateFormat = "2006-01-02"

	jobColumns = `id, dataset, fetch_key, start_date, end_date,
		status, error, records_count, failed_chunks, created_at, updated_at`
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, j *domain.Job) error {
	const query = `INSERT INTO jobs (dataset, fetch_key, start_date, end_date, status, failed_chunks)
		VALUES (?, ?, ?, ?, ?, ?)`

	chunks, err := encodeChunks(j.FailedChunks)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query,
		j.Dataset, j.Key,
		j.StartDate.Format(dateFormat), j.EndDate.Format(dateFormat),
		string(j.Status), chunks,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	j.ID, _ = res.LastInsertId()
	j.CreatedAt = time.Now().UTC()
	j.UpdatedAt = j.CreatedAt
	return nil
}

func (r *Repository) Update(ctx context.Context, j *domain.Job) error {
	const query = `UPDATE jobs SET status = ?, error = ?, records_count = ?, failed_chunks = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	chunks, err := encodeChunks(j.FailedChunks)
	if err != nil {
		return err
	}

	var jobErr sql.NullString
	if j.Error != "" {
		jobErr = sql.NullString{String: j.Error, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, query, string(j.Status), jobErr, j.RecordsCount, chunks, j.ID); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *Repository) List(ctx context.Context, dataset, key string) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`

	var args []any
	if dataset != "" {
		query += " AND dataset = ?"
		args = append(args, dataset)
	}
	if key != "" {
		query += " AND fetch_key = ?"
		args = append(args, key)
	}
	query += " ORDER BY id DESC LIMIT 100"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}

	return jobs, rows.Err()
}

// FindActive returns the pending or running job for exactly this range, or
// nil if there is none.
func (r *Repository) FindActive(ctx context.Context, dataset, key string, from, to string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE dataset = ? AND fetch_key = ?
		  AND start_date = ? AND end_date = ?
		  AND status IN ('pending', 'running')
		LIMIT 1`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, dataset, key, from, to))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return j, nil
}

func (r *Repository) ClaimPending(ctx context.Context) (*domain.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim pending: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE status = 'pending' ORDER BY id ASC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending: select: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now') WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim pending: commit: %w", err)
	}

	return r.Get(ctx, id)
}

// RecoverStale re-queues jobs left running by a previous process.
func (r *Repository) RecoverStale(ctx context.Context) (int64, error) {
	const query = `UPDATE jobs SET status = 'pending', error = NULL,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE status = 'running'`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}

	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*domain.Job, error) {
	j := &domain.Job{}
	var startStr, endStr, status, chunksStr, createdStr, updatedStr string
	var dbErr sql.NullString

	if err := s.Scan(
		&j.ID, &j.Dataset, &j.Key,
		&startStr, &endStr, &status, &dbErr,
		&j.RecordsCount, &chunksStr, &createdStr, &updatedStr,
	); err != nil {
		return nil, err
	}

	j.Status = domain.Status(status)
	if dbErr.Valid {
		j.Error = dbErr.String
	}
	j.StartDate, _ = time.Parse(dateFormat, startStr)
	j.EndDate, _ = time.Parse(dateFormat, endStr)
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)

	if chunksStr != "" {
		if err := json.Unmarshal([]byte(chunksStr), &j.FailedChunks); err != nil {
			return nil, fmt.Errorf("decode failed chunks of job %d: %w", j.ID, err)
		}
	}
	return j, nil
}

func encodeChunks(chunks []fetcher.DateRange) (string, error) {
	if len(chunks) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(chunks)
	if err != nil {
		return "", fmt.Errorf("encode failed chunks: %w", err)
	}
	return string(b), nil
}
