package slicing

import (
	"context"
	"fmt"
	"iter"
)

// ParentRecords reads the records of a parent stream.
type ParentRecords func(ctx context.Context) iter.Seq2[map[string]any, error]

// SubstreamRouter derives one slice per parent record, for nested
// resources such as /projects/{id}/issues. Parent records missing ParentKey
// are skipped.
type SubstreamRouter struct {
	Parent ParentRecords
	// ParentKey is the field read from each parent record
	ParentKey string
	// PartitionField is the slice key the value is stored under
	PartitionField string
	Option         *RequestOption
}

// Name implements Router.
func (r *SubstreamRouter) Name() string { return "substream:" + r.PartitionField }

// StreamSlices implements Router.
func (r *SubstreamRouter) StreamSlices(ctx context.Context) iter.Seq2[Slice, error] {
	if r.Parent == nil {
		return failed(fmt.Errorf("substream router for %q has no parent", r.PartitionField))
	}
	return func(yield func(Slice, error) bool) {
		for rec, err := range r.Parent(ctx) {
			if err != nil {
				yield(nil, fmt.Errorf("reading parent records: %w", err))
				return
			}
			v, ok := rec[r.ParentKey]
			if !ok {
				continue
			}
			if !yield(Slice{r.PartitionField: v}, nil) {
				return
			}
		}
	}
}

// RequestOptions implements Router.
func (r *SubstreamRouter) RequestOptions(slice Slice) RequestOptions {
	opts := NewRequestOptions()
	if v, ok := slice[r.PartitionField]; ok {
		opts.Set(r.Option, v)
	}
	return opts
}

// ProvidesCursor implements Router.
func (r *SubstreamRouter) ProvidesCursor() bool { return false }
