package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

const jobColumns = "id, source_playlist_url, status, progress, result, created_at, updated_at"

// JobRepository persists conversion jobs in SQLite.
type JobRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewJobRepository creates a new JobRepository with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db, now: defaultClock}
}

// Create inserts a new job in the started state with a generated ID and sequence
func (r *JobRepository) Create(ctx context.Context, sourcePlaylistURL string) (*models.Job, error) {
	job := models.NewJob(shared.GenerateID(), sourcePlaylistURL, r.now())
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	result, err := json.Marshal(job.Result())
	if err != nil {
		return nil, fmt.Errorf("failed to encode job result: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := NextSequence(ctx, tx, "jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	query := `
		INSERT INTO jobs (id, sequence, source_playlist_url, status, progress, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		job.ID(),
		sequence,
		job.SourcePlaylistURL(),
		string(job.Status()),
		job.Progress(),
		string(result),
		job.CreatedAt(),
		job.UpdatedAt(),
	); err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job: %w", err)
	}
	return job, nil
}

// Get retrieves a job by ID
func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE id = ?"
	return scanOne(r.db.QueryRowContext(ctx, query, id), id)
}

// UpdateStatus writes status and progress and merges payload into the stored result.
//
// The write is conditional: it is skipped when the stored job is already terminal or
// the move would go backwards. applied reports whether the row changed.
func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status models.JobStatus, progress int, payload models.Payload) (applied bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "SELECT " + jobColumns + " FROM jobs WHERE id = ?"
	job, err := scanOne(tx.QueryRowContext(ctx, query, id), id)
	if err != nil {
		return false, err
	}

	previous := job.Status()
	if !job.Apply(status, progress, payload, r.now()) {
		return false, nil
	}

	result, err := json.Marshal(job.Result())
	if err != nil {
		return false, fmt.Errorf("failed to encode job result: %w", err)
	}

	update := `
		UPDATE jobs
		SET status = ?, progress = ?, result = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	res, err := tx.ExecContext(ctx, update,
		string(job.Status()),
		job.Progress(),
		string(result),
		job.UpdatedAt(),
		id,
		string(previous),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit job update: %w", err)
	}
	return true, nil
}

// List returns up to limit jobs, newest first
func (r *JobRepository) List(ctx context.Context, limit int) ([]*models.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs ORDER BY sequence DESC LIMIT ?"

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row, id string) (*models.Job, error) {
	job, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	return job, err
}

func scanRow(s scanner) (*models.Job, error) {
	var (
		id, sourceURL, status, result string
		progress                      int
		createdAt, updatedAt          time.Time
	)

	if err := s.Scan(&id, &sourceURL, &status, &progress, &result, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	var payload models.Payload
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode job result: %w", err)
	}

	return models.RestoreJob(id, sourceURL, models.JobStatus(status), progress, payload, createdAt, updatedAt), nil
}
