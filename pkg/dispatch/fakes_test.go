package dispatch

import (
	"context"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/slicing"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// fakeStream yields records {"id": i, "updated_at": i} from one slice.
type fakeStream struct {
	name      string
	records   int
	failAfter int
	failErr   error
	// wait, when set, is awaited before failing
	wait <-chan struct{}
	// done, when set, is closed after the last record
	done chan struct{}
	// hang, when set, blocks the read after its first record without
	// watching ctx; hung is closed once it blocks
	hang <-chan struct{}
	hung chan struct{}

	unavailable string
	availErr    error
	display     string
	cursor      string

	mu        sync.Mutex
	seenState stream.State
	sessions  int
}

func (s *fakeStream) Name() string { return s.name }

func (s *fakeStream) Slices(ctx context.Context, _ stream.State) iter.Seq2[slicing.Slice, error] {
	return slicing.NewCartesianRouter().StreamSlices(ctx)
}

func (s *fakeStream) ReadSlice(_ context.Context, _ slicing.Slice, st stream.State) iter.Seq2[stream.Record, error] {
	s.mu.Lock()
	s.seenState = st
	s.mu.Unlock()

	return func(yield func(stream.Record, error) bool) {
		if s.done != nil {
			defer close(s.done)
		}
		for i := 0; i < s.records; i++ {
			if s.hang != nil && i == 1 {
				close(s.hung)
				<-s.hang
			}
			if s.failErr != nil && i == s.failAfter {
				if s.wait != nil {
					<-s.wait
				}
				yield(stream.Record{}, s.failErr)
				return
			}
			if !yield(stream.Record{Data: map[string]any{"id": i, "updated_at": i}}, nil) {
				return
			}
		}
	}
}

func (s *fakeStream) CheckAvailability(context.Context, *zap.Logger) (bool, string, error) {
	if s.availErr != nil {
		return false, "", s.availErr
	}
	return s.unavailable == "", s.unavailable, nil
}

func (s *fakeStream) ErrorDisplayMessage(err error) string {
	return s.display
}

func (s *fakeStream) EnsureSession(context.Context) error {
	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()
	return nil
}

// cursorStream is a fakeStream that declares its own cursor.
type cursorStream struct{ *fakeStream }

func (c cursorStream) CursorField() string { return "updated_at" }

type fakeSource struct {
	streams  []stream.Stream
	gotCfg   config.ConnectorConfig
	checkErr error
	block    bool
}

func (f *fakeSource) Spec(ctx context.Context) (*Spec, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &Spec{Name: "fake", ConnectionSpecification: map[string]any{"type": "object"}}, nil
}

func (f *fakeSource) Check(_ context.Context, cfg config.ConnectorConfig) (*ConnectionStatus, error) {
	f.gotCfg = cfg
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return &ConnectionStatus{Status: CheckSucceeded}, nil
}

func (f *fakeSource) Streams(_ context.Context, cfg config.ConnectorConfig) ([]stream.Stream, error) {
	f.gotCfg = cfg
	return f.streams, nil
}

func catalogOf(names ...string) *stream.Catalog {
	c := &stream.Catalog{}
	for _, n := range names {
		c.Streams = append(c.Streams, stream.ConfiguredStream{Name: n, SyncMode: stream.SyncModeFullRefresh})
	}
	return c
}

func collectRead(seq iter.Seq2[Message, error]) ([]Message, error) {
	var msgs []Message
	var last error
	for m, err := range seq {
		if err != nil {
			last = err
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, last
}

func countRecords(msgs []Message) map[string]int {
	out := map[string]int{}
	for _, m := range msgs {
		if m.Type == MessageRecord {
			out[m.Record.Stream]++
		}
	}
	return out
}

func statusesOf(msgs []Message, name string) []stream.Status {
	var out []stream.Status
	for _, m := range msgs {
		if m.Type == MessageStreamStatus && m.Status.Stream == name {
			out = append(out, m.Status.Status)
		}
	}
	return out
}
