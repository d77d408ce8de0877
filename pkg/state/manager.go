// Package state tracks and persists per-stream resumption state.
package state

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// StreamState is the list form of one stream's state, as found in state
// files and state messages.
type StreamState struct {
	Stream string       `json:"stream"`
	State  stream.State `json:"state"`
}

// Manager holds the state of every stream of a read. Each stream's entry is
// only written by that stream's task, but tasks share the manager.
type Manager struct {
	mu     sync.RWMutex
	states map[string]stream.State
}

// NewManager builds a manager from prior state, which may be nil,
// map[string]stream.State, map[string]map[string]any or []StreamState.
func NewManager(prior any) (*Manager, error) {
	m := &Manager{states: make(map[string]stream.State)}
	switch p := prior.(type) {
	case nil:
	case map[string]stream.State:
		for name, st := range p {
			m.states[name] = st.Clone()
		}
	case map[string]map[string]any:
		for name, st := range p {
			m.states[name] = stream.State(st).Clone()
		}
	case []StreamState:
		for _, s := range p {
			if s.Stream == "" {
				return nil, fmt.Errorf("state entry without stream name")
			}
			m.states[s.Stream] = s.State.Clone()
		}
	default:
		return nil, fmt.Errorf("unsupported prior state type %T", prior)
	}
	return m, nil
}

// ParsePrior decodes prior state from JSON in either map or list form.
// Empty input yields an empty manager.
func ParsePrior(data []byte) (*Manager, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return NewManager(nil)
	}
	if trimmed[0] == '[' {
		var list []StreamState
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to parse state list: %w", err)
		}
		return NewManager(list)
	}
	var byName map[string]stream.State
	if err := json.Unmarshal(trimmed, &byName); err != nil {
		return nil, fmt.Errorf("failed to parse state map: %w", err)
	}
	return NewManager(byName)
}

// Get returns a copy of the stream's state, or nil.
func (m *Manager) Get(name string) stream.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[name].Clone()
}

// Update replaces the stream's state.
func (m *Manager) Update(name string, st stream.State) {
	m.mu.Lock()
	m.states[name] = st.Clone()
	m.mu.Unlock()
}

// Advance moves the stream's cursor to the record's cursorField value when
// it is greater than the current one. It returns the resulting state and
// whether it changed. Records without the field leave the state alone.
func (m *Manager) Advance(name, cursorField string, rec stream.Record) (stream.State, bool) {
	v, ok := rec.Data[cursorField]
	if !ok || v == nil {
		return m.Get(name), false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.states[name]
	if old, has := cur[cursorField]; has {
		if c, ok := CompareCursor(v, old); !ok || c <= 0 {
			return cur.Clone(), false
		}
	}
	next := cur.Clone()
	if next == nil {
		next = stream.State{}
	}
	next[cursorField] = v
	m.states[name] = next
	return next.Clone(), true
}

// Snapshot returns a deep-enough copy of every stream's state.
func (m *Manager) Snapshot() map[string]stream.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]stream.State, len(m.states))
	for name, st := range m.states {
		out[name] = st.Clone()
	}
	return out
}

// List returns the state in list form, sorted by stream name.
func (m *Manager) List() []StreamState {
	snap := m.Snapshot()
	out := make([]StreamState, 0, len(snap))
	for name, st := range snap {
		out = append(out, StreamState{Stream: name, State: st})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stream < out[j].Stream })
	return out
}

// StateMessage returns the stream's state as a message payload.
func (m *Manager) StateMessage(name string) StreamState {
	st := m.Get(name)
	if st == nil {
		st = stream.State{}
	}
	return StreamState{Stream: name, State: st}
}

// CompareCursor orders two cursor values. Numbers compare numerically,
// times and RFC 3339 strings chronologically, other strings lexically.
// The second result is false when the values cannot be ordered.
func CompareCursor(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return cmp(fa, fb), true
		}
		return 0, false
	}
	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Compare(tb), true
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return cmp(sa, sb), true
	}
	return 0, false
}

func cmp[T float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}
