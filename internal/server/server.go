package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/huskyapply/gateway/internal/auth"
	"github.com/huskyapply/gateway/internal/logger"
	"github.com/huskyapply/gateway/internal/models"
	"github.com/huskyapply/gateway/internal/service"
	"github.com/huskyapply/gateway/internal/store"
	"github.com/huskyapply/gateway/internal/stream"
)

// Config holds the HTTP-surface settings.
type Config struct {
	// InternalAPIKey guards the worker-facing endpoints.
	InternalAPIKey string
	// AuthDisabled turns off both token and internal-key checks. Dev only.
	AuthDisabled bool
}

// Server wires the job service and the stream manager onto the REST
// surface.
type Server struct {
	cfg      Config
	service  *service.JobService
	streams  *stream.Manager
	verifier *auth.Verifier
	log      zerolog.Logger
}

// NewServer creates a server. The verifier may be nil when auth is
// disabled.
func NewServer(cfg Config, svc *service.JobService, streams *stream.Manager, verifier *auth.Verifier, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		service:  svc,
		streams:  streams,
		verifier: verifier,
		log:      log,
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Requests(s.log))
	r.Use(middleware.Recoverer)

	// Health check endpoint for load balancer
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/applications", func(r chi.Router) {
			if !s.cfg.AuthDisabled {
				r.Use(s.verifier.Middleware())
			}
			r.Post("/", s.createApplication)
			r.Get("/{jobID}/stream", s.streamApplication)
			r.Get("/{jobID}/artifact", s.getArtifact)
		})

		r.Route("/internal/applications", func(r chi.Router) {
			if !s.cfg.AuthDisabled {
				r.Use(auth.InternalKeyMiddleware(s.cfg.InternalAPIKey))
			}
			r.Post("/{jobID}/events", s.ingestEvent)
			r.Post("/{jobID}/process", s.processApplication)
		})
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write response")
	}
}

// writeError maps domain errors onto status codes. Unrecognized errors are
// 500s: logged in full, reported to the client without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, models.ErrUnknownStatus):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrJobNotFound), errors.Is(err, store.ErrArtifactNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrJobNotPending), errors.Is(err, store.ErrJobExists):
		status = http.StatusConflict
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
