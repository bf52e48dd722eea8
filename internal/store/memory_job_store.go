package store

import (
	"context"
	"sync"
	"time"

	"github.com/huskyapply/gateway/internal/models"
)

// MemoryJobStore is an in-memory JobStore for development and tests. All
// values are copied on the way in and out so callers can never mutate
// store internals.
type MemoryJobStore struct {
	mu        sync.RWMutex
	jobs      map[string]*models.Job
	artifacts map[string]*models.Artifact // keyed by job id
}

// NewMemoryJobStore creates an empty in-memory store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:      make(map[string]*models.Job),
		artifacts: make(map[string]*models.Artifact),
	}
}

func (s *MemoryJobStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryJobStore) MarkJobProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != models.StatusPending {
		return ErrJobNotPending
	}
	job.Status = models.StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryJobStore) UpdateJobStatus(_ context.Context, id string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return ErrJobTerminal
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryJobStore) SaveArtifact(_ context.Context, artifact *models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[artifact.JobID]; !ok {
		return ErrJobNotFound
	}
	if _, ok := s.artifacts[artifact.JobID]; ok {
		return ErrArtifactExists
	}
	s.artifacts[artifact.JobID] = artifact.Clone()
	return nil
}

func (s *MemoryJobStore) GetArtifactByJobID(_ context.Context, jobID string) (*models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, ok := s.artifacts[jobID]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	return artifact.Clone(), nil
}
