package stream

import (
	"sync"
	"time"
)

// CloseReason says why a subscription ended. Exactly one reason is
// reported per subscription, no matter how many paths race to end it.
type CloseReason string

const (
	// ReasonCompleted covers orderly closes: a delivered terminal event
	// or manager shutdown.
	ReasonCompleted CloseReason = "completed"
	// ReasonTimeout is the janitor reaping a connection past its maximum age.
	ReasonTimeout CloseReason = "timeout"
	// ReasonError covers client disconnects, write failures, and send
	// buffer overflow.
	ReasonError CloseReason = "error"
)

// Subscription is one live consumer of a job's event stream. Events arrive
// on Events; Done closes when the subscription is terminated. The events
// channel is never closed because publishers may be mid-send, so readers
// must select on Done.
type Subscription struct {
	jobID     string
	createdAt time.Time

	events chan Message
	done   chan struct{}

	once   sync.Once
	reason CloseReason
	cause  error

	mgr *Manager
}

// JobID returns the job this subscription follows.
func (s *Subscription) JobID() string { return s.jobID }

// Events is the frame delivery channel.
func (s *Subscription) Events() <-chan Message { return s.events }

// Done closes once the subscription has been terminated.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Reason reports why the subscription ended, and any underlying cause.
// Valid only after Done is closed.
func (s *Subscription) Reason() (CloseReason, error) {
	return s.reason, s.cause
}

// Terminate ends the subscription with the given reason. The first caller
// wins; later calls are no-ops, which is what makes the terminal
// notification exactly-once when delivery, timeout, and disconnect race.
func (s *Subscription) Terminate(reason CloseReason, cause error) {
	s.once.Do(func() {
		s.reason = reason
		s.cause = cause
		close(s.done)
		s.mgr.remove(s, reason, cause)
	})
}
