// Package sample is a source of deterministic synthetic streams. It
// exercises slicing, sessions, availability and failure handling without
// any upstream system.
package sample

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/dispatch"
	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
	"github.com/ajitpratap0/nebula-dispatch/pkg/session"
	"github.com/ajitpratap0/nebula-dispatch/pkg/slicing"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

const cursorField = "updated_at"

// Source implements dispatch.AsyncSource.
type Source struct {
	sessions *session.Cache[string]
}

// NewSource creates the source. cfg is validated lazily by Check and
// Streams.
func NewSource(cfg config.ConnectorConfig) (dispatch.AsyncSource, error) {
	ttl := time.Duration(0)
	if c, err := ParseConfig(cfg); err == nil {
		ttl = c.SessionTTL
	}
	return &Source{sessions: session.New[string](0, ttl)}, nil
}

// Spec implements dispatch.AsyncSource.
func (s *Source) Spec(context.Context) (*dispatch.Spec, error) {
	return &dispatch.Spec{
		Name:                "sample",
		SupportsIncremental: true,
		ConnectionSpecification: map[string]any{
			"type":     "object",
			"required": []string{"streams"},
			"properties": map[string]any{
				"streams": map[string]any{
					"type":        "array",
					"description": "Synthetic streams to generate",
				},
				"session_ttl": map[string]any{
					"type":        "string",
					"description": "How long a stream session is reused, e.g. 30m",
				},
			},
		},
	}, nil
}

// Check implements dispatch.AsyncSource.
func (s *Source) Check(_ context.Context, cfg config.ConnectorConfig) (*dispatch.ConnectionStatus, error) {
	if _, err := ParseConfig(cfg); err != nil {
		return &dispatch.ConnectionStatus{Status: dispatch.CheckFailed, Message: err.Error()}, nil
	}
	return &dispatch.ConnectionStatus{Status: dispatch.CheckSucceeded}, nil
}

// Streams implements dispatch.AsyncSource.
func (s *Source) Streams(_ context.Context, cfg config.ConnectorConfig) ([]stream.Stream, error) {
	c, err := ParseConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid sample config")
	}
	out := make([]stream.Stream, 0, len(c.Streams))
	for _, sc := range c.Streams {
		base := &Stream{cfg: sc, sessions: s.sessions}
		if parent, ok := c.stream(sc.Parent); ok {
			base.parent = &parent
		}
		if sc.Incremental {
			out = append(out, &IncrementalStream{base})
			continue
		}
		out = append(out, base)
	}
	return out, nil
}

// Stream is one synthetic stream.
type Stream struct {
	cfg StreamConfig
	// parent is set for child streams
	parent   *StreamConfig
	sessions *session.Cache[string]
	emitted  atomic.Int64
}

// IncrementalStream is a Stream with updated_at as its cursor.
type IncrementalStream struct {
	*Stream
}

// CursorField implements stream.CursorStream.
func (s *IncrementalStream) CursorField() string { return cursorField }

// Name implements stream.Stream.
func (s *Stream) Name() string { return s.cfg.Name }

// Router builds the stream's slice router, resuming after the state cursor
// when one is present.
func (s *Stream) Router(st stream.State) *slicing.CartesianRouter {
	var routers []slicing.Router
	if s.parent != nil {
		routers = append(routers, &slicing.SubstreamRouter{
			Parent:         s.parentRecords,
			ParentKey:      s.cfg.ParentKey,
			PartitionField: s.cfg.PartitionField,
			Option:         &slicing.RequestOption{Field: s.cfg.PartitionField, InjectInto: slicing.InjectRequestParameter},
		})
	}
	if len(s.cfg.Owners) > 0 {
		values := make([]any, len(s.cfg.Owners))
		for i, o := range s.cfg.Owners {
			values[i] = o
		}
		routers = append(routers, &slicing.ListRouter{
			CursorField: s.cfg.OwnerField,
			Values:      values,
			Option:      &slicing.RequestOption{Field: s.cfg.OwnerField, InjectInto: slicing.InjectRequestParameter},
		})
	}
	if !s.cfg.Start.IsZero() {
		dt := &slicing.DatetimeRouter{
			Start:       s.cfg.Start,
			End:         s.cfg.End,
			Step:        s.cfg.Step,
			StartOption: &slicing.RequestOption{Field: "since", InjectInto: slicing.InjectRequestParameter},
			EndOption:   &slicing.RequestOption{Field: "until", InjectInto: slicing.InjectRequestParameter},
		}
		if v, ok := st[cursorField].(string); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				dt = dt.WithLowerBound(t)
			}
		}
		routers = append(routers, dt)
	}
	return slicing.NewCartesianRouter(routers...)
}

// parentRecords reads the parent stream in full. It reads through its own
// Stream so the parent's failure accounting is left alone.
func (s *Stream) parentRecords(ctx context.Context) iter.Seq2[map[string]any, error] {
	parent := &Stream{cfg: *s.parent, sessions: s.sessions}
	return func(yield func(map[string]any, error) bool) {
		for rec, err := range stream.ReadAll(ctx, parent, nil) {
			if !yield(rec.Data, err) || err != nil {
				return
			}
		}
	}
}

// Slices implements stream.Stream.
func (s *Stream) Slices(ctx context.Context, st stream.State) iter.Seq2[slicing.Slice, error] {
	s.emitted.Store(0)
	return s.Router(st).StreamSlices(ctx)
}

// ReadSlice implements stream.Stream. Records are spread evenly over the
// slice's window and carry the request parameters the slice would send.
func (s *Stream) ReadSlice(ctx context.Context, slice slicing.Slice, st stream.State) iter.Seq2[stream.Record, error] {
	router := s.Router(st)
	params := router.GetRequestParams(slice)

	return func(yield func(stream.Record, error) bool) {
		start, end := s.window(slice)
		n := s.cfg.RecordsPerSlice
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				yield(stream.Record{}, err)
				return
			}
			if s.cfg.FailAfter > 0 && s.emitted.Load() >= int64(s.cfg.FailAfter) {
				yield(stream.Record{}, fmt.Errorf("sample stream %s: injected failure after %d records", s.cfg.Name, s.cfg.FailAfter))
				return
			}
			data := map[string]any{
				"id":      fmt.Sprintf("%s-%s-%d", s.cfg.Name, slice.Key(), i),
				"request": params,
			}
			if owner, ok := slice[s.cfg.OwnerField]; ok {
				data[s.cfg.OwnerField] = owner
			}
			if s.parent != nil {
				data[s.cfg.PartitionField] = slice[s.cfg.PartitionField]
			}
			if !start.IsZero() {
				offset := end.Sub(start) * time.Duration(i) / time.Duration(n)
				data[cursorField] = start.Add(offset).UTC().Format(time.RFC3339)
			}
			s.emitted.Add(1)
			if !yield(stream.NewRecord(s.cfg.Name, data), nil) {
				return
			}
		}
	}
}

func (s *Stream) window(slice slicing.Slice) (time.Time, time.Time) {
	from, _ := slice[slicing.DefaultStartField].(string)
	to, _ := slice[slicing.DefaultEndField].(string)
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return time.Time{}, time.Time{}
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return time.Time{}, time.Time{}
	}
	return start, end
}

// CheckAvailability implements stream.AvailabilityChecker.
func (s *Stream) CheckAvailability(_ context.Context, logger *zap.Logger) (bool, string, error) {
	if s.cfg.UnavailableReason != "" {
		logger.Debug("sample stream configured unavailable")
		return false, s.cfg.UnavailableReason, nil
	}
	return true, "", nil
}

// EnsureSession implements stream.SessionProvider. Sessions are shared by
// every read of the same stream until they expire.
func (s *Stream) EnsureSession(ctx context.Context) error {
	_, err := s.sessions.GetOrCreate(ctx, map[string]any{"stream": s.cfg.Name}, func(context.Context) (string, error) {
		return uuid.NewString(), nil
	})
	return err
}

// Session returns the stream's live session token, if any.
func (s *Stream) Session() (string, bool) {
	return s.sessions.Get(map[string]any{"stream": s.cfg.Name})
}

// ErrorDisplayMessage implements stream.ErrorDisplayer.
func (s *Stream) ErrorDisplayMessage(err error) string {
	return fmt.Sprintf("Stream %s stopped after %d records: %v", s.cfg.Name, s.emitted.Load(), err)
}

// Compile-time interface checks
var (
	_ stream.Stream              = (*Stream)(nil)
	_ stream.AvailabilityChecker = (*Stream)(nil)
	_ stream.SessionProvider     = (*Stream)(nil)
	_ stream.ErrorDisplayer      = (*Stream)(nil)
	_ stream.CursorStream        = (*IncrementalStream)(nil)
)
