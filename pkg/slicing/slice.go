// Package slicing models how a stream's workload is decomposed into slices
// and how slice values are injected into outgoing requests.
//
// A Router produces an ordered, restartable sequence of Slices. Routers
// compose through CartesianRouter, which yields the cross product of its
// children with the leftmost router varying slowest:
//
//	owners := &slicing.ListRouter{CursorField: "owner_resource", Values: []any{"customer", "store"}}
//	windows := &slicing.DatetimeRouter{Start: start, End: end, Step: 24 * time.Hour}
//	router := slicing.NewCartesianRouter(owners, windows)
//
//	for slice, err := range router.StreamSlices(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    params := router.GetRequestParams(slice)
//	    // issue the request for this slice
//	}
package slicing

import (
	"fmt"
	"reflect"
	"sort"

	json "github.com/goccy/go-json"
)

// Slice is one unit of partitioned work, e.g. {"owner_resource": "customer"}
// or {"start_time": ..., "end_time": ...}. Slices are treated as immutable
// once produced.
type Slice map[string]any

// Equal reports structural equality.
func (s Slice) Equal(other Slice) bool {
	if len(s) != len(other) {
		return false
	}
	return reflect.DeepEqual(map[string]any(s), map[string]any(other))
}

// Key returns a canonical encoding of the slice, stable across runs and
// independent of map iteration order.
func (s Slice) Key() string {
	if len(s) == 0 {
		return "{}"
	}
	// go-json sorts map keys, so the encoding is canonical
	b, err := json.Marshal(map[string]any(s))
	if err != nil {
		return fmt.Sprintf("%v", s.sortedPairs())
	}
	return string(b)
}

// Keys returns the slice keys in sorted order.
func (s Slice) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (s Slice) Clone() Slice {
	out := make(Slice, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s Slice) sortedPairs() []string {
	keys := s.Keys()
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, s[k]))
	}
	return pairs
}

// Merge combines slices by key into a new slice. A key present in more than
// one input with different values is a conflict.
func Merge(slices ...Slice) (Slice, error) {
	size := 0
	for _, s := range slices {
		size += len(s)
	}
	out := make(Slice, size)
	for _, s := range slices {
		for k, v := range s {
			if existing, ok := out[k]; ok && !reflect.DeepEqual(existing, v) {
				return nil, fmt.Errorf("slice key %q has conflicting values %v and %v", k, existing, v)
			}
			out[k] = v
		}
	}
	return out, nil
}
