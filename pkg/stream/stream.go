package stream

import (
	"context"
	"iter"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-dispatch/pkg/slicing"
)

// Stream is a named source of records over slices. Sequences returned by
// Slices and ReadSlice are lazy and finite; each call starts over.
type Stream interface {
	// Name is unique within a source
	Name() string
	// Slices enumerates the stream's units of work given its prior state
	Slices(ctx context.Context, state State) iter.Seq2[slicing.Slice, error]
	// ReadSlice reads the records of one slice
	ReadSlice(ctx context.Context, slice slicing.Slice, state State) iter.Seq2[Record, error]
}

// AvailabilityChecker is implemented by streams that can be probed before a
// read. An unavailable stream is skipped with reason logged.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, logger *zap.Logger) (available bool, reason string, err error)
}

// SessionProvider is implemented by streams that need a session (a token,
// a connection) established before their read starts.
type SessionProvider interface {
	EnsureSession(ctx context.Context) error
}

// ErrorDisplayer is implemented by streams that can summarize their own
// failures for users. An empty string means no summary.
type ErrorDisplayer interface {
	ErrorDisplayMessage(err error) string
}

// CursorStream is implemented by incremental streams. State is advanced
// from the named record field as records are read.
type CursorStream interface {
	CursorField() string
}

// ReadAll reads every slice of s in order. It is the default read function
// for a stream task. A slice whose partition was already read in this pass
// is skipped.
func ReadAll(ctx context.Context, s Stream, state State) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		seen := NewPartitionSet()
		for slice, err := range s.Slices(ctx, state) {
			if err != nil {
				yield(Record{}, err)
				return
			}
			p := NewPartition(s, slice)
			if !seen.Add(p) {
				continue
			}
			for rec, err := range p.Read(ctx, state) {
				if !yield(rec, err) || err != nil {
					return
				}
			}
		}
	}
}
