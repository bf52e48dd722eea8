package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/huskyapply/gateway/internal/models"
	"github.com/huskyapply/gateway/internal/queue"
	"github.com/huskyapply/gateway/internal/store"
	"github.com/huskyapply/gateway/internal/stream"
	"github.com/huskyapply/gateway/internal/telemetry"
)

// ErrInvalidRequest is returned when a job submission is missing required
// fields.
var ErrInvalidRequest = errors.New("invalid job request")

// JobPublisher is the slice of the queue publisher the service depends on.
type JobPublisher interface {
	PublishJob(ctx context.Context, msg *queue.JobMessage) error
}

// EventBroadcaster fans a message out to a job's live subscribers.
type EventBroadcaster interface {
	Publish(jobID string, msg stream.Message) int
}

// Config holds the service-level defaults.
type Config struct {
	// DefaultModelProvider and DefaultModelName fill in submissions that
	// leave the model unspecified.
	DefaultModelProvider string
	DefaultModelName     string

	// PublishMaxElapsed caps the total time spent retrying a publish
	// before the job is failed.
	PublishMaxElapsed time.Duration
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultModelProvider == "" {
		c.DefaultModelProvider = models.DefaultModelProvider
	}
	if c.DefaultModelName == "" {
		c.DefaultModelName = models.DefaultModelName
	}
	if c.PublishMaxElapsed == 0 {
		c.PublishMaxElapsed = 30 * time.Second
	}
}

// CreateJobRequest is a job submission. Model fields are optional.
type CreateJobRequest struct {
	JDURL         string `json:"jdUrl"`
	ResumeURI     string `json:"resumeUri"`
	ModelProvider string `json:"modelProvider,omitempty"`
	ModelName     string `json:"modelName,omitempty"`
}

// JobService owns the job lifecycle: it accepts submissions, hands work to
// the queue, ingests worker status events, and fans them out to live
// stream subscribers.
type JobService struct {
	cfg       Config
	store     store.JobStore
	publisher JobPublisher
	streams   EventBroadcaster
	log       zerolog.Logger
	metrics   *telemetry.Metrics
}

// NewJobService wires the service together.
func NewJobService(cfg Config, st store.JobStore, pub JobPublisher, streams EventBroadcaster, log zerolog.Logger) *JobService {
	cfg.ApplyDefaults()
	return &JobService{
		cfg:       cfg,
		store:     st,
		publisher: pub,
		streams:   streams,
		log:       log.With().Str("component", "job-service").Logger(),
		metrics:   telemetry.GetMetrics(),
	}
}

// CreateJob validates a submission, persists it as PENDING, and dispatches
// it to the worker queue. When the dispatch ultimately fails the job is
// marked FAILED rather than left PENDING forever, and the error surfaces
// to the caller so the client knows to resubmit.
func (s *JobService) CreateJob(ctx context.Context, req CreateJobRequest) (*models.Job, error) {
	if req.JDURL == "" {
		return nil, fmt.Errorf("%w: jdUrl is required", ErrInvalidRequest)
	}
	if req.ResumeURI == "" {
		return nil, fmt.Errorf("%w: resumeUri is required", ErrInvalidRequest)
	}

	provider := req.ModelProvider
	if provider == "" {
		provider = s.cfg.DefaultModelProvider
	}
	modelName := req.ModelName
	if modelName == "" {
		modelName = s.cfg.DefaultModelName
	}

	job := models.NewJob(req.JDURL, req.ResumeURI, provider, modelName)
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	s.metrics.JobsCreatedTotal.Add(ctx, 1)

	if err := s.dispatch(ctx, job); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("job_id", job.ID).
		Str("model_provider", job.ModelProvider).
		Str("model_name", job.ModelName).
		Msg("Job accepted")
	return job, nil
}

// ProcessJob re-dispatches an existing job. The PENDING to PROCESSING flip
// is atomic in the store, so a second concurrent kick gets
// ErrJobNotPending and publishes nothing.
func (s *JobService) ProcessJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if err := s.store.MarkJobProcessing(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job %s processing: %w", jobID, err)
	}
	if err := s.dispatch(ctx, job); err != nil {
		return err
	}

	s.log.Info().Str("job_id", jobID).Msg("Job re-dispatched")
	return nil
}

// dispatch publishes the work order, retrying transient broker failures
// with exponential backoff. When every attempt fails the job is marked
// FAILED so it does not sit unprocessable with no worker ever seeing it.
func (s *JobService) dispatch(ctx context.Context, job *models.Job) error {
	msg := &queue.JobMessage{
		JobID:         job.ID,
		JDURL:         job.JDURL,
		ResumeURI:     job.ResumeURI,
		ModelProvider: job.ModelProvider,
		ModelName:     job.ModelName,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.TraceID = sc.TraceID().String()
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.publisher.PublishJob(ctx, msg)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(s.cfg.PublishMaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn().Err(err).Str("job_id", job.ID).Dur("retry_in", next).Msg("Publish failed, retrying")
		}),
	)
	if err == nil {
		return nil
	}

	s.log.Error().Err(err).Str("job_id", job.ID).Msg("Publish failed after retries, failing job")

	// The caller's context may already be dead; the compensating write
	// must still land.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if uerr := s.store.UpdateJobStatus(cleanupCtx, job.ID, models.StatusFailed); uerr != nil {
		s.log.Error().Err(uerr).Str("job_id", job.ID).Msg("Failed to mark job failed after publish failure")
	} else {
		s.metrics.JobsFailedTotal.Add(cleanupCtx, 1)
	}
	return fmt.Errorf("failed to dispatch job %s: %w", job.ID, err)
}

// HandleStatusEvent ingests one worker-reported status event. Workers
// deliver at least once, so duplicates and stale arrivals are normal:
// they are counted and not persisted, but still forwarded to live
// subscribers. Events for unknown jobs are dropped entirely since they
// cannot be attributed. Only infrastructure failures return an error.
func (s *JobService) HandleStatusEvent(ctx context.Context, jobID string, raw *models.StatusEvent) error {
	s.metrics.IngestEventsTotal.Add(ctx, 1)

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			s.log.Warn().Str("job_id", jobID).Msg("Status event for unknown job, dropping")
			s.dropEvent(ctx, "unknown_job")
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	ev, err := raw.Normalize(time.Now().UTC())
	if err != nil {
		s.dropEvent(ctx, "malformed")
		return fmt.Errorf("failed to normalize status event for job %s: %w", jobID, err)
	}

	if models.CanTransition(job.Status, ev.Status) {
		switch err := s.store.UpdateJobStatus(ctx, jobID, ev.Status); {
		case err == nil:
			switch ev.Status {
			case models.StatusCompleted:
				s.metrics.JobsCompletedTotal.Add(ctx, 1)
			case models.StatusFailed:
				s.metrics.JobsFailedTotal.Add(ctx, 1)
			}
		case errors.Is(err, store.ErrJobTerminal), errors.Is(err, store.ErrJobNotFound):
			// Lost a race with another ingest path between the read
			// and the write. Same outcome as reading the terminal row.
			s.log.Debug().Str("job_id", jobID).Str("status", string(ev.Status)).Msg("Job finished concurrently, not persisting")
			s.dropEvent(ctx, "stale")
		default:
			return fmt.Errorf("failed to update job %s: %w", jobID, err)
		}
	} else {
		s.log.Debug().
			Str("job_id", jobID).
			Str("from", string(job.Status)).
			Str("to", string(ev.Status)).
			Msg("Stale status event, not persisting")
		s.dropEvent(ctx, "stale")
	}

	// Saving the artifact on every terminal event, not only the one that
	// won the status write, lets a redelivery repair a previous attempt
	// that persisted the status but crashed before the artifact landed.
	if ev.Status == models.StatusCompleted && ev.Text() != "" {
		artifact := models.NewArtifact(jobID, models.ContentTypeCoverLetter, ev.Text())
		switch err := s.store.SaveArtifact(ctx, artifact); {
		case err == nil:
			s.metrics.ArtifactsSaved.Add(ctx, 1)
			s.log.Info().Str("job_id", jobID).Int("word_count", artifact.WordCount).Msg("Artifact saved")
		case errors.Is(err, store.ErrArtifactExists):
			s.log.Debug().Str("job_id", jobID).Msg("Artifact already saved, ignoring duplicate")
		default:
			return fmt.Errorf("failed to save artifact for job %s: %w", jobID, err)
		}
	}

	s.streams.Publish(jobID, stream.StatusMessage(ev))
	return nil
}

// ArtifactForJob returns the generated artifact, the pull path for clients
// whose stream ended early.
func (s *JobService) ArtifactForJob(ctx context.Context, jobID string) (*models.Artifact, error) {
	return s.store.GetArtifactByJobID(ctx, jobID)
}

// GetJob returns the current state of a job.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

func (s *JobService) dropEvent(ctx context.Context, reason string) {
	s.metrics.IngestEventsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}
