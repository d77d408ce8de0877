// Package stream defines the contract between the dispatch core and the
// sources it reads: streams, records, partitions, catalogs and per-stream
// state.
package stream

import (
	"time"
)

// Record is one row produced by a stream.
type Record struct {
	// Stream is the name of the stream that produced the record
	Stream string `json:"stream"`
	// Data holds the record fields
	Data map[string]any `json:"data"`
	// Partition identifies the slice the record was read from
	Partition PartitionID `json:"-"`
	// EmittedAt is set when the record is produced
	EmittedAt time.Time `json:"emitted_at"`
}

// NewRecord creates a record stamped with the current time.
func NewRecord(stream string, data map[string]any) Record {
	return Record{
		Stream:    stream,
		Data:      data,
		EmittedAt: time.Now().UTC(),
	}
}

// Status is a stream lifecycle status reported to the consumer.
type Status string

const (
	StatusStarted    Status = "STARTED"
	StatusRunning    Status = "RUNNING"
	StatusComplete   Status = "COMPLETE"
	StatusIncomplete Status = "INCOMPLETE"
)

// Terminal reports whether no further status follows s for the stream.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusIncomplete
}

// State is the opaque resumption state of one stream, e.g.
// {"updated_at": "2024-05-01T00:00:00Z"}.
type State map[string]any

// Clone returns a shallow copy, or nil for nil state.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
