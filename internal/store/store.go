package store

import (
	"context"
	"errors"

	"github.com/huskyapply/gateway/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobExists        = errors.New("job already exists")
	ErrJobNotPending    = errors.New("job is not pending")
	ErrJobTerminal      = errors.New("job already reached a terminal state")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrArtifactExists   = errors.New("artifact already exists for job")
)

// JobStore defines the interface for job and artifact persistence
type JobStore interface {
	// Job lifecycle
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)

	// MarkJobProcessing flips a PENDING job to PROCESSING. The check and
	// the write are a single atomic step so only one caller can start a
	// given job; any other state returns ErrJobNotPending.
	MarkJobProcessing(ctx context.Context, id string) error

	// UpdateJobStatus overwrites the job's status and refreshes its
	// updated_at. Terminal rows are immutable: writing to one returns
	// ErrJobTerminal regardless of the new status.
	UpdateJobStatus(ctx context.Context, id string, status models.Status) error

	// Artifacts. At most one artifact exists per job; SaveArtifact
	// returns ErrArtifactExists on a duplicate so redelivered terminal
	// events can be absorbed without side effects.
	SaveArtifact(ctx context.Context, artifact *models.Artifact) error
	GetArtifactByJobID(ctx context.Context, jobID string) (*models.Artifact, error)
}
