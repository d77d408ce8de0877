package slicing

import (
	"context"
	"iter"
)

// ListRouter yields one slice per value, keyed by CursorField.
type ListRouter struct {
	CursorField string
	Values      []any
	// Option injects the value into requests; nil means no injection
	Option *RequestOption
}

// Name implements Router.
func (r *ListRouter) Name() string { return "list:" + r.CursorField }

// StreamSlices implements Router.
func (r *ListRouter) StreamSlices(ctx context.Context) iter.Seq2[Slice, error] {
	return func(yield func(Slice, error) bool) {
		for _, v := range r.Values {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(Slice{r.CursorField: v}, nil) {
				return
			}
		}
	}
}

// RequestOptions implements Router.
func (r *ListRouter) RequestOptions(slice Slice) RequestOptions {
	opts := NewRequestOptions()
	if v, ok := slice[r.CursorField]; ok {
		opts.Set(r.Option, v)
	}
	return opts
}

// ProvidesCursor implements Router.
func (r *ListRouter) ProvidesCursor() bool { return false }
