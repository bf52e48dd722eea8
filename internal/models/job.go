package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Default model selection applied when a submission leaves them blank.
const (
	DefaultModelProvider = "openai"
	DefaultModelName     = "gpt-4o"
)

// ParseStatus converts a wire status string into a Status.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(s), true
	}
	return "", false
}

// Terminal reports whether the status is absorbing: once a job is
// COMPLETED or FAILED no further transition is legal.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// PROCESSING self-transitions are legal so streaming updates can refresh
// updated_at without changing state. Terminal states accept nothing.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	case StatusProcessing:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Job represents a single cover-letter generation request as it moves
// through the pipeline.
type Job struct {
	ID            string
	JDURL         string // job description the letter targets
	ResumeURI     string
	ModelProvider string
	ModelName     string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewJob builds a PENDING job with a fresh UUIDv7 id, filling in the
// default provider and model when the caller left them empty.
func NewJob(jdURL, resumeURI, modelProvider, modelName string) *Job {
	if modelProvider == "" {
		modelProvider = DefaultModelProvider
	}
	if modelName == "" {
		modelName = DefaultModelName
	}

	now := time.Now().UTC()
	return &Job{
		ID:            uuid.Must(uuid.NewV7()).String(),
		JDURL:         jdURL,
		ResumeURI:     resumeURI,
		ModelProvider: modelProvider,
		ModelName:     modelName,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy so store internals never alias caller state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}
