package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/grocery-price-scraper/internal/database"
	"github.com/maltedev/grocery-price-scraper/internal/models"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrNoPendingJob = errors.New("no pending job")
)

// Store persists jobs and their targets.
type Store interface {
	Create(ctx context.Context, job *Job, targets []models.Target) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	List(ctx context.Context, limit int) ([]*Job, error)
	ClaimNext(ctx context.Context) (*Job, []models.Target, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, found, failed int) error
	Finish(ctx context.Context, id uuid.UUID, status Status, errMsg string) error
	Stats(ctx context.Context) (*Stats, error)
}

type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, job *Job, targets []models.Target) error {
	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO scraper_jobs (id, status, targets_total, created_at)
			VALUES ($1, $2, $3, $4)`,
			job.ID, string(job.Status), job.TargetsTotal, job.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}

		batch := &pgx.Batch{}
		for i, t := range targets {
			batch.Queue(`
				INSERT INTO job_targets (job_id, position, site_id, query)
				VALUES ($1, $2, $3, $4)`,
				job.ID, i, t.Site, t.Query)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store job targets: %w", err)
		}
		return nil
	})
}

const jobColumns = `id, status, targets_total, targets_found, targets_failed,
	created_at, started_at, completed_at, error`

func scanJob(row pgx.Row) (*Job, error) {
	job := &Job{}
	var status string
	err := row.Scan(
		&job.ID, &status, &job.TargetsTotal, &job.TargetsFound, &job.TargetsFailed,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.Error,
	)
	if err != nil {
		return nil, err
	}
	job.Status = Status(status)
	return job, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM scraper_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Targets, err = s.targets(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) targets(ctx context.Context, q querier, id uuid.UUID) ([]models.Target, error) {
	rows, err := q.Query(ctx, `
		SELECT site_id, query FROM job_targets
		WHERE job_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job targets: %w", err)
	}
	defer rows.Close()

	var targets []models.Target
	for rows.Next() {
		var t models.Target
		if err := rows.Scan(&t.Site, &t.Query); err != nil {
			return nil, fmt.Errorf("failed to scan job target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM scraper_jobs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext marks the oldest pending job as running and returns it with its
// targets. Concurrent workers never claim the same job.
func (s *PostgresStore) ClaimNext(ctx context.Context) (*Job, []models.Target, error) {
	var (
		job     *Job
		targets []models.Target
	)

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		var err error
		job, err = scanJob(tx.QueryRow(ctx, `
			SELECT `+jobColumns+`
			FROM scraper_jobs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED`))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoPendingJob
		}
		if err != nil {
			return fmt.Errorf("failed to claim job: %w", err)
		}

		now := time.Now()
		if _, err := tx.Exec(ctx,
			`UPDATE scraper_jobs SET status = $1, started_at = $2 WHERE id = $3`,
			string(StatusRunning), now, job.ID); err != nil {
			return fmt.Errorf("failed to mark job running: %w", err)
		}
		job.Status = StatusRunning
		job.StartedAt = &now

		targets, err = s.targets(ctx, tx, job.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return job, targets, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id uuid.UUID, found, failed int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE scraper_jobs
		SET targets_found = $1, targets_failed = $2
		WHERE id = $3`, found, failed, id)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) Finish(ctx context.Context, id uuid.UUID, status Status, errMsg string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE scraper_jobs
		SET status = $1, completed_at = $2, error = $3
		WHERE id = $4`, string(status), time.Now(), errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'pending' THEN 1 END),
			COUNT(CASE WHEN status = 'running' THEN 1 END),
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN status = 'failed' THEN 1 END),
			COALESCE(SUM(targets_total), 0),
			COALESCE(SUM(targets_found), 0)
		FROM scraper_jobs`).Scan(
		&stats.TotalJobs, &stats.PendingJobs, &stats.RunningJobs,
		&stats.CompletedJobs, &stats.FailedJobs,
		&stats.TotalTargets, &stats.FoundTargets,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	stats.computeRates()
	return stats, nil
}
