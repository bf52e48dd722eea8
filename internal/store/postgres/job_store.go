package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huskyapply/gateway/internal/models"
	"github.com/huskyapply/gateway/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds job-store specific settings. Pool configuration is handled
// separately via PoolConfig so the pool can be shared.
type Config struct {
	// AutoMigrate runs pending schema migrations on startup.
	AutoMigrate bool

	// QueryTimeout bounds individual statements. Zero relies on caller
	// contexts alone.
	QueryTimeout time.Duration
}

// JobStore implements store.JobStore backed by PostgreSQL. Concurrency
// control lives in the statements themselves: status flips are guarded
// UPDATEs and artifact capture rides on a unique constraint, so multiple
// gateway instances can share one database safely.
type JobStore struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewJobStore creates a PostgreSQL-backed job store on an existing pool,
// optionally applying migrations first.
func NewJobStore(ctx context.Context, pool *pgxpool.Pool, cfg Config) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 10 * time.Second
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &JobStore{pool: pool, cfg: cfg}, nil
}

// queryCtx applies the configured statement timeout on top of the caller's
// context.
func (s *JobStore) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

func (s *JobStore) CreateJob(ctx context.Context, job *models.Job) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, jd_url, resume_uri, model_provider, model_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, job.ID, job.JDURL, job.ResumeURI, job.ModelProvider, job.ModelName, string(job.Status), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", mapPostgresError(err))
	}
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var (
		job    models.Job
		status string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, jd_url, resume_uri, model_provider, model_name, status, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`, id).Scan(&job.ID, &job.JDURL, &job.ResumeURI, &job.ModelProvider, &job.ModelName, &status, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", mapPostgresError(err))
	}
	job.Status = models.Status(status)
	return &job, nil
}

func (s *JobStore) MarkJobProcessing(ctx context.Context, id string) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`, id, string(models.StatusProcessing), time.Now().UTC(), string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a state mismatch.
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return store.ErrJobNotPending
	}
	return nil
}

func (s *JobStore) UpdateJobStatus(ctx context.Context, id string, status models.Status) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status NOT IN ($4, $5)
	`, id, string(status), time.Now().UTC(), string(models.StatusCompleted), string(models.StatusFailed))
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return store.ErrJobTerminal
	}
	return nil
}

func (s *JobStore) SaveArtifact(ctx context.Context, artifact *models.Artifact) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (id, job_id, content_type, generated_text, word_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO NOTHING
	`, artifact.ID, artifact.JobID, artifact.ContentType, artifact.GeneratedText, artifact.WordCount, artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrArtifactExists
	}
	return nil
}

func (s *JobStore) GetArtifactByJobID(ctx context.Context, jobID string) (*models.Artifact, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var artifact models.Artifact
	err := s.pool.QueryRow(ctx, `
		SELECT id, job_id, content_type, generated_text, word_count, created_at
		FROM artifacts
		WHERE job_id = $1
	`, jobID).Scan(&artifact.ID, &artifact.JobID, &artifact.ContentType, &artifact.GeneratedText, &artifact.WordCount, &artifact.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", mapPostgresError(err))
	}
	return &artifact, nil
}
