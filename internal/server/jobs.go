package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/huskyapply/gateway/internal/models"
	"github.com/huskyapply/gateway/internal/service"
)

type artifactResponse struct {
	JobID         string    `json:"jobId"`
	ContentType   string    `json:"contentType"`
	GeneratedText string    `json:"generatedText"`
	WordCount     int       `json:"wordCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// createApplication accepts a job submission and returns its id. The 202
// is a promise that the job was persisted and handed to the queue, not
// that generation succeeded; progress arrives on the stream.
func (s *Server) createApplication(w http.ResponseWriter, r *http.Request) {
	var req service.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", service.ErrInvalidRequest, err))
		return
	}

	job, err := s.service.CreateJob(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID})
}

// processApplication is the explicit kick for workers that pull rather
// than consume: it flips the job to PROCESSING and re-publishes it.
func (s *Server) processApplication(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if err := s.service.ProcessJob(r.Context(), jobID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ingestEvent receives a worker status callback and feeds it into the
// lifecycle. Duplicates and stale events are fine; they answer 202 like
// everything else the ingestor absorbed.
func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var ev models.StatusEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", service.ErrInvalidRequest, err))
		return
	}

	if err := s.service.HandleStatusEvent(r.Context(), jobID, &ev); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// getArtifact is the pull path for clients whose stream ended before the
// terminal event arrived.
func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	artifact, err := s.service.ArtifactForJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, artifactResponse{
		JobID:         artifact.JobID,
		ContentType:   artifact.ContentType,
		GeneratedText: artifact.GeneratedText,
		WordCount:     artifact.WordCount,
		CreatedAt:     artifact.CreatedAt,
	})
}
