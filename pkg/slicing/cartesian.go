package slicing

import (
	"context"
	"iter"
	"strings"

	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
)

// CartesianRouter composes routers into the ordered cross product of their
// slices. For the first slice of the leftmost router every combination of
// the remaining routers is produced before the leftmost advances.
type CartesianRouter struct {
	routers []Router
}

// NewCartesianRouter composes routers. Validation of the composition is
// deferred to the first iteration of StreamSlices.
func NewCartesianRouter(routers ...Router) *CartesianRouter {
	return &CartesianRouter{routers: routers}
}

// Routers returns the composed routers in order.
func (c *CartesianRouter) Routers() []Router {
	return c.routers
}

// Name implements Router.
func (c *CartesianRouter) Name() string {
	names := make([]string, len(c.routers))
	for i, r := range c.routers {
		names[i] = r.Name()
	}
	return "cartesian(" + strings.Join(names, ",") + ")"
}

// StreamSlices implements Router. An ambiguous composition is reported as
// the first element, before any slice.
func (c *CartesianRouter) StreamSlices(ctx context.Context) iter.Seq2[Slice, error] {
	return func(yield func(Slice, error) bool) {
		if err := ValidateComposition(c.routers); err != nil {
			yield(nil, err)
			return
		}
		product(ctx, c.routers, Slice{}, yield)
	}
}

// product yields prefix merged with every combination of routers. It returns
// false once the consumer stopped or an error was yielded.
func product(ctx context.Context, routers []Router, prefix Slice, yield func(Slice, error) bool) bool {
	if len(routers) == 0 {
		return yield(prefix, nil)
	}
	for s, err := range routers[0].StreamSlices(ctx) {
		if err != nil {
			yield(nil, err)
			return false
		}
		merged, err := Merge(prefix, s)
		if err != nil {
			yield(nil, errors.Wrap(err, errors.ErrorTypeConfig, "composed routers produced conflicting slices"))
			return false
		}
		if !product(ctx, routers[1:], merged, yield) {
			return false
		}
	}
	return true
}

// RequestOptions implements Router by asking every router for its
// contribution and merging them per target. Earlier routers win when two
// routers write the same key of the same target.
func (c *CartesianRouter) RequestOptions(slice Slice) RequestOptions {
	opts := NewRequestOptions()
	if len(slice) == 0 {
		return opts
	}
	for _, r := range c.routers {
		opts.MergeFrom(r.RequestOptions(slice))
	}
	return opts
}

// ProvidesCursor implements Router.
func (c *CartesianRouter) ProvidesCursor() bool {
	for _, r := range c.routers {
		if r.ProvidesCursor() {
			return true
		}
	}
	return false
}

// GetRequestParams returns the merged query parameters for slice.
func (c *CartesianRouter) GetRequestParams(slice Slice) map[string]any {
	return c.RequestOptions(slice).Params
}

// GetRequestHeaders returns the merged headers for slice.
func (c *CartesianRouter) GetRequestHeaders(slice Slice) map[string]any {
	return c.RequestOptions(slice).Headers
}

// GetRequestBodyData returns the merged form body fields for slice.
func (c *CartesianRouter) GetRequestBodyData(slice Slice) map[string]any {
	return c.RequestOptions(slice).BodyData
}

// GetRequestBodyJSON returns the merged JSON body fields for slice.
func (c *CartesianRouter) GetRequestBodyJSON(slice Slice) map[string]any {
	return c.RequestOptions(slice).BodyJSON
}
