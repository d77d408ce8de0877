package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

func TestNewManager_PriorForms(t *testing.T) {
	tests := []struct {
		name    string
		prior   any
		want    map[string]stream.State
		wantErr bool
	}{
		{"nil", nil, map[string]stream.State{}, false},
		{"map", map[string]stream.State{"users": {"updated_at": "2024-01-01"}},
			map[string]stream.State{"users": {"updated_at": "2024-01-01"}}, false},
		{"raw map", map[string]map[string]any{"users": {"id": 3}},
			map[string]stream.State{"users": {"id": 3}}, false},
		{"list", []StreamState{{Stream: "a", State: stream.State{"c": 1}}, {Stream: "b"}},
			map[string]stream.State{"a": {"c": 1}, "b": nil}, false},
		{"list without name", []StreamState{{State: stream.State{"c": 1}}}, nil, true},
		{"unsupported", 42, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(tt.prior)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Snapshot())
		})
	}
}

func TestParsePrior(t *testing.T) {
	m, err := ParsePrior([]byte(`  [{"stream":"users","state":{"updated_at":"2024-02-01T00:00:00Z"}}]`))
	require.NoError(t, err)
	assert.Equal(t, stream.State{"updated_at": "2024-02-01T00:00:00Z"}, m.Get("users"))

	m, err = ParsePrior([]byte(`{"orders":{"id":10}}`))
	require.NoError(t, err)
	assert.EqualValues(t, 10, m.Get("orders")["id"])

	m, err = ParsePrior(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Snapshot())

	_, err = ParsePrior([]byte(`{"orders":`))
	assert.Error(t, err)
}

func TestManager_Advance(t *testing.T) {
	m, err := NewManager(nil)
	require.NoError(t, err)

	rec := func(v any) stream.Record {
		return stream.Record{Data: map[string]any{"updated_at": v}}
	}

	st, changed := m.Advance("users", "updated_at", rec("2024-01-02T00:00:00Z"))
	assert.True(t, changed)
	assert.Equal(t, "2024-01-02T00:00:00Z", st["updated_at"])

	_, changed = m.Advance("users", "updated_at", rec("2024-01-01T00:00:00Z"))
	assert.False(t, changed, "older cursor must not move state backwards")

	_, changed = m.Advance("users", "updated_at", rec("2024-01-03T00:00:00+01:00"))
	assert.True(t, changed)

	_, changed = m.Advance("users", "updated_at", stream.Record{Data: map[string]any{"id": 1}})
	assert.False(t, changed)

	assert.Equal(t, stream.State{"updated_at": "2024-01-03T00:00:00+01:00"}, m.Get("users"))
	assert.Equal(t, StreamState{Stream: "users", State: stream.State{"updated_at": "2024-01-03T00:00:00+01:00"}}, m.StateMessage("users"))
	assert.Equal(t, StreamState{Stream: "none", State: stream.State{}}, m.StateMessage("none"))
}

func TestManager_GetReturnsCopy(t *testing.T) {
	m, err := NewManager(map[string]stream.State{"a": {"c": 1}})
	require.NoError(t, err)

	got := m.Get("a")
	got["c"] = 99
	assert.Equal(t, 1, m.Get("a")["c"])
}

func TestManager_ConcurrentStreams(t *testing.T) {
	m, err := NewManager(nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Advance(name, "id", stream.Record{Data: map[string]any{"id": i}})
			}
		}(name)
	}
	wg.Wait()

	for _, s := range m.List() {
		assert.Equal(t, 99, s.State["id"], s.Stream)
	}
	assert.Len(t, m.List(), 4)
}

func TestCompareCursor(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		a, b    any
		want    int
		ordered bool
	}{
		{"ints", 1, 2, -1, true},
		{"mixed numbers", int64(5), 4.5, 1, true},
		{"rfc3339 across zones", "2024-01-01T01:00:00+01:00", "2024-01-01T00:00:00Z", 0, true},
		{"time values", now, now.Add(-time.Hour), 1, true},
		{"plain strings", "b", "a", 1, true},
		{"number vs string", 1, "1", 0, false},
		{"bools", true, false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CompareCursor(tt.a, tt.b)
			assert.Equal(t, tt.ordered, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
