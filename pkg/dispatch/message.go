package dispatch

import (
	"time"

	"github.com/ajitpratap0/nebula-dispatch/pkg/state"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// MessageType tags a Message.
type MessageType string

const (
	MessageRecord       MessageType = "RECORD"
	MessageStreamStatus MessageType = "STREAM_STATUS"
	MessageState        MessageType = "STATE"
	MessageLog          MessageType = "LOG"
)

// Message is one element of a read's output. Exactly one payload matching
// Type is set.
type Message struct {
	Type   MessageType        `json:"type"`
	Record *stream.Record     `json:"record,omitempty"`
	Status *StatusMessage     `json:"stream_status,omitempty"`
	State  *state.StreamState `json:"state,omitempty"`
	Log    *LogMessage        `json:"log,omitempty"`
}

// StatusMessage reports a stream status transition.
type StatusMessage struct {
	Stream    string        `json:"stream"`
	Status    stream.Status `json:"status"`
	EmittedAt time.Time     `json:"emitted_at"`
}

// LogMessage is a log line meant for the consumer of the read.
type LogMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Stream returns the stream the message belongs to, or "" for log messages.
func (m Message) Stream() string {
	switch {
	case m.Record != nil:
		return m.Record.Stream
	case m.Status != nil:
		return m.Status.Stream
	case m.State != nil:
		return m.State.Stream
	}
	return ""
}

func recordMessage(rec stream.Record) Message {
	return Message{Type: MessageRecord, Record: &rec}
}

func statusMessage(name string, status stream.Status) Message {
	return Message{Type: MessageStreamStatus, Status: &StatusMessage{
		Stream:    name,
		Status:    status,
		EmittedAt: time.Now().UTC(),
	}}
}

func stateMessage(name string, st stream.State) Message {
	if st == nil {
		st = stream.State{}
	}
	return Message{Type: MessageState, State: &state.StreamState{Stream: name, State: st}}
}

func logMessage(level, msg string) Message {
	return Message{Type: MessageLog, Log: &LogMessage{Level: level, Message: msg}}
}
