package stream

import (
	"github.com/google/uuid"

	"github.com/huskyapply/gateway/internal/models"
)

// SSE event names carried by Message.Name.
const (
	EventStatus    = "status"
	EventStreaming = "streaming"
	EventHeartbeat = "heartbeat"
	EventError     = "error"
)

// heartbeatPayload is what clients see on keepalive frames.
const heartbeatPayload = "ping"

// Message is one frame destined for a subscriber. Status and streaming
// frames carry a normalized event; heartbeat and error frames carry a
// plain-text payload in Data.
type Message struct {
	Name  string
	ID    string
	Event *models.StatusEvent
	Data  string
}

// StatusMessage wraps a normalized event for fan-out. Incremental updates
// get the streaming label and an id so EventSource consumers can tell
// partial frames apart; everything else is a plain status frame.
func StatusMessage(ev *models.StatusEvent) Message {
	if ev.Streaming() {
		return Message{
			Name:  EventStreaming,
			ID:    uuid.Must(uuid.NewV7()).String(),
			Event: ev,
		}
	}
	return Message{Name: EventStatus, Event: ev}
}

// HeartbeatMessage is the keepalive frame.
func HeartbeatMessage() Message {
	return Message{Name: EventHeartbeat, Data: heartbeatPayload}
}

// ErrorMessage reports a stream-level failure to the client before the
// connection closes.
func ErrorMessage(text string) Message {
	return Message{Name: EventError, Data: text}
}

// Terminal reports whether writing this frame ends the stream.
func (m Message) Terminal() bool {
	return m.Event != nil && m.Event.Terminal()
}
