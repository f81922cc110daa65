package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sohanagashimani/playlist-converter/internal/models"
)

// ActiveJobRepository keeps active job markers in SQLite.
//
// Expired markers are swept lazily before every count or listing.
type ActiveJobRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewActiveJobRepository creates a new ActiveJobRepository with the given database connection
func NewActiveJobRepository(db *sql.DB) *ActiveJobRepository {
	return &ActiveJobRepository{db: db, now: defaultClock}
}

// Add writes a marker for id that lives for ttl, replacing any existing one.
func (r *ActiveJobRepository) Add(ctx context.Context, id string, ttl time.Duration) error {
	now := r.now()
	query := `
		INSERT INTO active_jobs (job_id, started_at, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET expires_at = excluded.expires_at
	`
	if _, err := r.db.ExecContext(ctx, query, id, now.UnixMilli(), now.Add(ttl).UnixMilli()); err != nil {
		return fmt.Errorf("failed to add active job: %w", err)
	}
	return nil
}

// Remove deletes the marker for id; removing a missing marker is not an error.
func (r *ActiveJobRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM active_jobs WHERE job_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove active job: %w", err)
	}
	return nil
}

// Count returns the number of live markers.
func (r *ActiveJobRepository) Count(ctx context.Context) (int, error) {
	if err := r.sweep(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM active_jobs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count, nil
}

// IDs returns the job ids of live markers, oldest first.
func (r *ActiveJobRepository) IDs(ctx context.Context) ([]string, error) {
	markers, err := r.Markers(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(markers))
	for _, m := range markers {
		ids = append(ids, m.JobID)
	}
	return ids, nil
}

// Markers returns the live markers, oldest first.
func (r *ActiveJobRepository) Markers(ctx context.Context) ([]models.ActiveJobMarker, error) {
	if err := r.sweep(ctx); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, "SELECT job_id, started_at, expires_at FROM active_jobs ORDER BY started_at, job_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	defer rows.Close()

	var markers []models.ActiveJobMarker
	for rows.Next() {
		var (
			id                 string
			started, expiresAt int64
		)
		if err := rows.Scan(&id, &started, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan active job: %w", err)
		}
		markers = append(markers, models.ActiveJobMarker{
			JobID:     id,
			StartedAt: time.UnixMilli(started).UTC(),
			ExpiresAt: time.UnixMilli(expiresAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active jobs: %w", err)
	}
	return markers, nil
}

func (r *ActiveJobRepository) sweep(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM active_jobs WHERE expires_at <= ?", r.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to sweep active jobs: %w", err)
	}
	return nil
}
