package slicing

import (
	"context"
	"iter"
	"time"
)

const (
	DefaultStartField = "start_time"
	DefaultEndField   = "end_time"
)

// DatetimeRouter yields consecutive [start, end) windows of Step between
// Start and End. It is the cursor-providing router of a composition.
type DatetimeRouter struct {
	Start time.Time
	End   time.Time
	// Step of each window; zero or negative means a single window
	Step time.Duration
	// Format for window bounds; defaults to time.RFC3339
	Format     string
	StartField string
	EndField   string

	StartOption *RequestOption
	EndOption   *RequestOption

	lowerBound time.Time
}

// WithLowerBound returns a copy whose windows begin no earlier than t,
// used to resume incremental syncs from stream state.
func (r *DatetimeRouter) WithLowerBound(t time.Time) *DatetimeRouter {
	cp := *r
	cp.lowerBound = t
	return &cp
}

func (r *DatetimeRouter) startField() string {
	if r.StartField != "" {
		return r.StartField
	}
	return DefaultStartField
}

func (r *DatetimeRouter) endField() string {
	if r.EndField != "" {
		return r.EndField
	}
	return DefaultEndField
}

func (r *DatetimeRouter) format() string {
	if r.Format != "" {
		return r.Format
	}
	return time.RFC3339
}

// Name implements Router.
func (r *DatetimeRouter) Name() string { return "datetime" }

// StreamSlices implements Router.
func (r *DatetimeRouter) StreamSlices(ctx context.Context) iter.Seq2[Slice, error] {
	return func(yield func(Slice, error) bool) {
		cur := r.Start
		if r.lowerBound.After(cur) {
			cur = r.lowerBound
		}
		for cur.Before(r.End) {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			next := r.End
			if r.Step > 0 && cur.Add(r.Step).Before(r.End) {
				next = cur.Add(r.Step)
			}
			s := Slice{
				r.startField(): cur.UTC().Format(r.format()),
				r.endField():   next.UTC().Format(r.format()),
			}
			if !yield(s, nil) {
				return
			}
			cur = next
		}
	}
}

// RequestOptions implements Router.
func (r *DatetimeRouter) RequestOptions(slice Slice) RequestOptions {
	opts := NewRequestOptions()
	if v, ok := slice[r.startField()]; ok {
		opts.Set(r.StartOption, v)
	}
	if v, ok := slice[r.endField()]; ok {
		opts.Set(r.EndOption, v)
	}
	return opts
}

// ProvidesCursor implements Router.
func (r *DatetimeRouter) ProvidesCursor() bool { return true }
