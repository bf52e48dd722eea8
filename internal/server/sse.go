package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/huskyapply/gateway/internal/stream"
)

// capacityMessage is the exact text clients key retry behavior on.
const capacityMessage = "Connection limit exceeded. Please try again later."

// streamApplication serves a job's live event stream over SSE. The
// subscription happens before the first byte is written, so no event
// published after the 200 can be missed. A delivered terminal event ends
// the stream; clients that reconnect afterwards get silence and should
// fall back to the artifact endpoint.
func (s *Server) streamApplication(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	log := zerolog.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)

	sub, err := s.streams.Subscribe(jobID)
	if err != nil {
		if errors.Is(err, stream.ErrConnectionLimit) {
			// EventSource clients only dispatch events on a 200, so
			// capacity is reported in-band before closing.
			w.WriteHeader(http.StatusOK)
			_ = writeMessage(w, rc, stream.ErrorMessage(capacityMessage))
			log.Warn().Str("job_id", jobID).Msg("Stream refused, connection limit reached")
			return
		}
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	// Exactly one termination per subscription; later calls no-op.
	reason := stream.ReasonError
	var cause error
	defer func() { sub.Terminate(reason, cause) }()

	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		cause = err
		return
	}

	log.Debug().Str("job_id", jobID).Msg("Stream opened")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			cause = ctx.Err()
			log.Debug().Str("job_id", jobID).Msg("Client disconnected")
			return

		case <-sub.Done():
			// The manager ended us: shutdown, overflow, or the janitor.
			return

		case msg := <-sub.Events():
			if err := writeMessage(w, rc, msg); err != nil {
				cause = err
				log.Debug().Err(err).Str("job_id", jobID).Msg("Stream write failed")
				return
			}
			if msg.Terminal() {
				reason, cause = stream.ReasonCompleted, nil
				log.Debug().Str("job_id", jobID).Msg("Stream completed")
				return
			}
		}
	}
}

// writeMessage renders one SSE frame and flushes it. Event-bearing frames
// serialize the normalized event as the data payload; heartbeat and error
// frames carry plain text.
func writeMessage(w http.ResponseWriter, rc *http.ResponseController, msg stream.Message) error {
	data := msg.Data
	if msg.Event != nil {
		b, err := json.Marshal(msg.Event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		data = string(b)
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", msg.Name); err != nil {
		return err
	}
	if msg.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", msg.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
