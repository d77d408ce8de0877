package reader

import (
	"fmt"

	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// Kind tags the payload of an Item.
type Kind int

const (
	// KindRecord carries a record
	KindRecord Kind = iota
	// KindStatus carries a stream status transition
	KindStatus
	// KindState carries a stream state checkpoint
	KindState
	// KindSentinel marks that a stream will push nothing more
	KindSentinel
	// KindFatal carries the error that stopped the run
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindStatus:
		return "status"
	case KindState:
		return "state"
	case KindSentinel:
		return "sentinel"
	case KindFatal:
		return "fatal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Item is one element of the shared output queue. Only the field matching
// Kind is set, besides Stream.
type Item struct {
	Kind   Kind
	Stream string
	Record stream.Record
	Status stream.Status
	State  stream.State
	Err    error
}

// Phase is the reader-side lifecycle of a stream.
type Phase string

const (
	PhaseNotStarted Phase = "NOT_STARTED"
	PhaseRunning    Phase = "RUNNING"
	PhaseComplete   Phase = "COMPLETE"
	PhaseIncomplete Phase = "INCOMPLETE"
)
