package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/manthysbr/skywatch/internal/core/ports"
	_ "github.com/marcboeker/go-duckdb"
)

// Repository journals jobs and notifications in a DuckDB file.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the database at path. An empty path
// opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Ensure Repository implements Repository interface
var _ ports.Repository = (*Repository)(nil)

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id         VARCHAR PRIMARY KEY,
			seq        INTEGER NOT NULL,
			status     VARCHAR NOT NULL,
			params     VARCHAR NOT NULL,
			error      VARCHAR,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE SEQUENCE IF NOT EXISTS messages_seq`,
		`CREATE TABLE IF NOT EXISTS messages (
			id         BIGINT PRIMARY KEY DEFAULT nextval('messages_seq'),
			title      VARCHAR NOT NULL,
			content    VARCHAR NOT NULL,
			job_id     VARCHAR,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *Repository) SaveJob(ctx context.Context, job domain.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	var errMsg sql.NullString
	if job.Error != nil {
		errMsg = sql.NullString{String: *job.Error, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, seq, status, params, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status     = excluded.status,
			error      = excluded.error,
			updated_at = excluded.updated_at`,
		string(job.ID),
		job.Seq,
		string(job.Status),
		string(params),
		errMsg,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

func (r *Repository) GetJob(ctx context.Context, id domain.JobID) (domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, seq, status, params, error, created_at, updated_at
		FROM jobs WHERE id = ?`, string(id))

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns every journaled job, oldest first.
func (r *Repository) ListJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, seq, status, params, error, created_at, updated_at
		FROM jobs
		ORDER BY created_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (domain.Job, error) {
	var job domain.Job
	var id, status, params string
	var errMsg sql.NullString
	if err := s.Scan(&id, &job.Seq, &status, &params, &errMsg, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return domain.Job{}, err
	}
	job.ID = domain.JobID(id)
	job.Status = domain.JobStatus(status)
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	if err := json.Unmarshal([]byte(params), &job.Params); err != nil {
		return domain.Job{}, fmt.Errorf("decode params for %s: %w", id, err)
	}
	return job, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
