package slicing

import (
	"context"
	"iter"

	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
)

// Router produces the slices of a stream and knows how its own slice fields
// are injected into requests.
type Router interface {
	// Name identifies the router in logs and errors.
	Name() string

	// StreamSlices returns a finite, deterministic sequence. Each call
	// returns a fresh sequence independent of earlier ones.
	StreamSlices(ctx context.Context) iter.Seq2[Slice, error]

	// RequestOptions returns this router's contribution for slice. The slice
	// may carry keys of other routers; only the router's own keys are read.
	// A nil slice yields empty maps.
	RequestOptions(slice Slice) RequestOptions

	// ProvidesCursor reports whether the slices are a cursor component,
	// such as datetime windows.
	ProvidesCursor() bool
}

// ValidateComposition rejects router sets in which more than one router
// contributes a cursor component. Every site composing routers calls it.
func ValidateComposition(routers []Router) error {
	var names []string
	for _, r := range routers {
		if r.ProvidesCursor() {
			names = append(names, r.Name())
		}
	}
	if len(names) > 1 {
		return errors.Newf(errors.ErrorTypeAmbiguousSlicing,
			"%d composed routers provide a cursor; at most one is allowed", len(names)).
			WithDetail("cursor_routers", names)
	}
	return nil
}

// failed yields exactly one error and stops.
func failed(err error) iter.Seq2[Slice, error] {
	return func(yield func(Slice, error) bool) {
		yield(nil, err)
	}
}
