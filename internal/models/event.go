package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownStatus is returned when an inbound event carries a status the
// state machine does not recognize.
var ErrUnknownStatus = errors.New("unknown status")

// statusStreaming is a legacy label some workers still emit for partial
// updates. It normalizes to PROCESSING; it is never persisted.
const statusStreaming = "STREAMING"

// StreamingData carries incremental generation metrics attached to
// non-terminal events.
type StreamingData struct {
	Progress        float64 `json:"progress"`
	TokensGenerated int64   `json:"tokens_generated"`
	QualityScore    float64 `json:"quality_score"`
	CostSoFar       float64 `json:"cost_so_far"`
	// PartialContent is accepted on input and folded into the event text
	// during normalization.
	PartialContent string `json:"partial_content,omitempty"`
}

// StatusEvent is a worker-reported change in a job's state. Workers deliver
// these at least once, so consumers must tolerate duplicates and stale
// arrivals. Both "content" and "generatedText" are accepted on input;
// normalization folds them into a single generatedText.
type StatusEvent struct {
	Status        Status         `json:"status"`
	Message       string         `json:"message,omitempty"`
	Content       string         `json:"content,omitempty"`
	GeneratedText string         `json:"generatedText,omitempty"`
	StreamingData *StreamingData `json:"streamingData,omitempty"`
	Timestamp     time.Time      `json:"timestamp,omitzero"`
}

// Text returns the generated text carried by the event, preferring the
// generatedText field over the legacy content field.
func (e *StatusEvent) Text() string {
	if e.GeneratedText != "" {
		return e.GeneratedText
	}
	return e.Content
}

// Terminal reports whether the event ends the job's lifecycle.
func (e *StatusEvent) Terminal() bool {
	return e.Status.Terminal()
}

// Streaming reports whether a normalized event is an incremental update,
// which the SSE layer labels differently from plain status changes.
func (e *StatusEvent) Streaming() bool {
	return !e.Terminal() && (e.StreamingData != nil || e.GeneratedText != "")
}

// Normalize validates a raw inbound event and returns a canonical copy:
// the status is parsed (accepting the legacy STREAMING label as
// PROCESSING), a missing timestamp defaults to now, and whichever of
// generatedText, content, or streamingData.partial_content is populated
// ends up in generatedText alone. The receiver is never mutated.
func (e *StatusEvent) Normalize(now time.Time) (*StatusEvent, error) {
	raw := string(e.Status)
	if raw == statusStreaming {
		raw = string(StatusProcessing)
	}
	status, ok := ParseStatus(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(e.Status))
	}

	canon := &StatusEvent{
		Status:        status,
		Message:       e.Message,
		GeneratedText: e.Text(),
		Timestamp:     e.Timestamp,
	}
	if e.StreamingData != nil {
		sd := *e.StreamingData
		if canon.GeneratedText == "" {
			canon.GeneratedText = sd.PartialContent
		}
		sd.PartialContent = ""
		canon.StreamingData = &sd
	}
	if canon.Timestamp.IsZero() {
		canon.Timestamp = now
	}
	return canon, nil
}
