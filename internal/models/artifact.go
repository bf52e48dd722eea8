package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentTypeCoverLetter is the only artifact content type the gateway
// produces today.
const ContentTypeCoverLetter = "cover_letter"

// Artifact is the final generated output captured when a job completes.
// At most one artifact exists per job.
type Artifact struct {
	ID            string
	JobID         string
	ContentType   string
	GeneratedText string
	WordCount     int
	CreatedAt     time.Time
}

// NewArtifact builds an artifact for a completed job. The word count is a
// whitespace tokenization of the text with empty tokens discarded, so
// leading, trailing, and repeated whitespace never inflate it.
func NewArtifact(jobID, contentType, text string) *Artifact {
	return &Artifact{
		ID:            uuid.Must(uuid.NewV7()).String(),
		JobID:         jobID,
		ContentType:   contentType,
		GeneratedText: text,
		WordCount:     len(strings.Fields(text)),
		CreatedAt:     time.Now().UTC(),
	}
}

// Clone returns a deep copy so store internals never alias caller state.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
