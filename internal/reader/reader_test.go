package reader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
	"github.com/ajitpratap0/nebula-dispatch/pkg/testutil"
)

func recordTask(name string, n int) Task {
	return Task{
		Stream: name,
		Run: func(ctx context.Context, emit *Emitter) error {
			for i := 0; i < n; i++ {
				if err := emit.Record(stream.Record{Data: map[string]any{"i": i}}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func byKind(items []Item, kind Kind) []Item {
	var out []Item
	for _, it := range items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

func TestReader_SentinelPerStream(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
		limit int
	}{
		{"single", []Task{recordTask("a", 3)}, 1},
		{"many under limit", []Task{recordTask("a", 3), recordTask("b", 0), recordTask("c", 10)}, 10},
		{"many over limit", []Task{recordTask("a", 3), recordTask("b", 1), recordTask("c", 10), recordTask("d", 2)}, 2},
		{"none", nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Config{SessionLimit: tt.limit, QueueSize: 4, Logger: testutil.Logger(t)})
			ch, stop := r.Run(context.Background(), tt.tasks)
			defer stop()

			items := testutil.Drain(t, ch)
			assert.Len(t, byKind(items, KindSentinel), len(tt.tasks))
			assert.Empty(t, byKind(items, KindFatal))

			for _, task := range tt.tasks {
				assert.Equal(t, PhaseComplete, r.StreamStatus(task.Stream))
				assertStreamOrder(t, items, task.Stream)
			}
		})
	}
}

// assertStreamOrder checks STARTED comes first, records are in production
// order, the terminal status precedes the sentinel and the sentinel is last.
func assertStreamOrder(t *testing.T, items []Item, name string) {
	t.Helper()
	var mine []Item
	for _, it := range items {
		if it.Stream == name {
			mine = append(mine, it)
		}
	}
	require.NotEmpty(t, mine)
	assert.Equal(t, KindStatus, mine[0].Kind)
	assert.Equal(t, stream.StatusStarted, mine[0].Status)

	last := mine[len(mine)-1]
	assert.Equal(t, KindSentinel, last.Kind, "sentinel must be the stream's last item")
	terminal := mine[len(mine)-2]
	assert.Equal(t, KindStatus, terminal.Kind)
	assert.True(t, terminal.Status.Terminal())

	next := 0
	for _, it := range mine {
		if it.Kind == KindRecord {
			assert.Equal(t, next, it.Record.Data["i"])
			assert.Equal(t, name, it.Record.Stream)
			next++
		}
	}
}

func TestReader_FatalDrain(t *testing.T) {
	errS2 := errors.New("s2 upstream returned 500")
	s1Done := make(chan struct{})

	s1 := Task{
		Stream: "s1",
		Run: func(ctx context.Context, emit *Emitter) error {
			defer close(s1Done)
			for i := 0; i < 5; i++ {
				if err := emit.Record(stream.Record{Data: map[string]any{"i": i}}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	s2 := Task{
		Stream: "s2",
		Run: func(ctx context.Context, emit *Emitter) error {
			for i := 0; i < 2; i++ {
				if err := emit.Record(stream.Record{Data: map[string]any{"i": i}}); err != nil {
					return err
				}
			}
			<-s1Done
			return errS2
		},
	}
	never := recordTask("s3", 1)

	r := New(Config{SessionLimit: 2, QueueSize: 100, Logger: testutil.Logger(t)})
	ch, stop := r.Run(context.Background(), []Task{s1, s2, never})
	defer stop()
	items := testutil.Drain(t, ch)

	records := map[string]int{}
	for _, it := range byKind(items, KindRecord) {
		records[it.Stream]++
	}
	assert.Equal(t, map[string]int{"s1": 5, "s2": 2}, records)

	fatal := byKind(items, KindFatal)
	require.Len(t, fatal, 1)
	assert.Same(t, errS2, fatal[0].Err)

	assert.Len(t, byKind(items, KindSentinel), 2)
	assert.Equal(t, PhaseComplete, r.StreamStatus("s1"))
	assert.Equal(t, PhaseIncomplete, r.StreamStatus("s2"))
	assert.Equal(t, PhaseNotStarted, r.StreamStatus("s3"))
}

func TestReader_CancelsSiblingsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	blocked := Task{
		Stream: "slow",
		Run: func(ctx context.Context, emit *Emitter) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	failing := Task{
		Stream: "bad",
		Run: func(ctx context.Context, emit *Emitter) error {
			return boom
		},
	}

	r := New(Config{SessionLimit: 2, QueueSize: 10})
	ch, stop := r.Run(context.Background(), []Task{blocked, failing})
	defer stop()
	items := testutil.Drain(t, ch)

	fatal := byKind(items, KindFatal)
	require.Len(t, fatal, 1)
	assert.Same(t, boom, fatal[0].Err, "the first failure is reported, not the cancellation it caused")
	assert.Len(t, byKind(items, KindSentinel), 2)
	assert.Equal(t, PhaseIncomplete, r.StreamStatus("slow"))
}

func TestReader_AbandonsTasksIgnoringCancellation(t *testing.T) {
	boom := errors.New("s2 upstream returned 500")
	release := make(chan struct{})
	defer close(release)
	emitted := make(chan struct{})

	stuck := Task{
		Stream: "stuck",
		Run: func(ctx context.Context, emit *Emitter) error {
			if err := emit.Record(stream.Record{Data: map[string]any{"i": 0}}); err != nil {
				return err
			}
			close(emitted)
			// blocked in I/O that never looks at ctx
			<-release
			return emit.Record(stream.Record{Data: map[string]any{"i": 1}})
		},
	}
	failing := Task{
		Stream: "s2",
		Run: func(ctx context.Context, emit *Emitter) error {
			<-emitted
			for i := 0; i < 2; i++ {
				if err := emit.Record(stream.Record{Data: map[string]any{"i": i}}); err != nil {
					return err
				}
			}
			return boom
		},
	}

	r := New(Config{SessionLimit: 2, QueueSize: 10, CancelGrace: 50 * time.Millisecond})
	ch, stop := r.Run(context.Background(), []Task{stuck, failing})
	defer stop()

	start := time.Now()
	items := testutil.Drain(t, ch)
	assert.Less(t, time.Since(start), 2*time.Second)

	fatal := byKind(items, KindFatal)
	require.Len(t, fatal, 1)
	assert.Same(t, boom, fatal[0].Err)

	records := map[string]int{}
	for _, it := range byKind(items, KindRecord) {
		records[it.Stream]++
	}
	assert.Equal(t, map[string]int{"stuck": 1, "s2": 2}, records)

	sentinels := byKind(items, KindSentinel)
	require.Len(t, sentinels, 1, "the abandoned stream never pushes its sentinel")
	assert.Equal(t, "s2", sentinels[0].Stream)
	assert.Equal(t, PhaseRunning, r.StreamStatus("stuck"))
	assert.Equal(t, PhaseIncomplete, r.StreamStatus("s2"))
}

func TestReader_ConcurrencyBudget(t *testing.T) {
	var current, peak atomic.Int32
	task := func(name string) Task {
		return Task{
			Stream: name,
			Run: func(ctx context.Context, emit *Emitter) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return emit.Record(stream.Record{Data: map[string]any{"i": 0}})
			},
		}
	}

	var tasks []Task
	for i := 0; i < 12; i++ {
		tasks = append(tasks, task(fmt.Sprintf("s%d", i)))
	}

	r := New(Config{SessionLimit: 3, QueueSize: 2})
	ch, stop := r.Run(context.Background(), tasks)
	defer stop()
	items := testutil.Drain(t, ch)

	assert.LessOrEqual(t, int(peak.Load()), 3)
	assert.LessOrEqual(t, r.MaxInFlight(), 3)
	assert.Len(t, byKind(items, KindRecord), 12)
	assert.Len(t, byKind(items, KindSentinel), 12)
}

func TestReader_PanicBecomesFatal(t *testing.T) {
	r := New(Config{SessionLimit: 1, QueueSize: 10, Logger: testutil.Logger(t)})
	ch, stop := r.Run(context.Background(), []Task{{
		Stream: "p",
		Run: func(ctx context.Context, emit *Emitter) error {
			panic("nil map")
		},
	}})
	defer stop()
	items := testutil.Drain(t, ch)

	fatal := byKind(items, KindFatal)
	require.Len(t, fatal, 1)
	assert.Contains(t, fatal[0].Err.Error(), "nil map")
	assert.Len(t, byKind(items, KindSentinel), 1)
}

func TestReader_SessionFailure(t *testing.T) {
	ran := false
	sessionErr := errors.New("token expired")
	r := New(Config{SessionLimit: 1, QueueSize: 10})
	ch, stop := r.Run(context.Background(), []Task{{
		Stream:        "s",
		EnsureSession: func(ctx context.Context) error { return sessionErr },
		Run: func(ctx context.Context, emit *Emitter) error {
			ran = true
			return nil
		},
	}})
	defer stop()
	items := testutil.Drain(t, ch)

	assert.False(t, ran)
	fatal := byKind(items, KindFatal)
	require.Len(t, fatal, 1)
	assert.ErrorIs(t, fatal[0].Err, sessionErr)
	assertStreamOrder(t, items, "s")
}

func TestReader_StateItems(t *testing.T) {
	r := New(Config{SessionLimit: 1, QueueSize: 10})
	ch, stop := r.Run(context.Background(), []Task{{
		Stream: "s",
		Run: func(ctx context.Context, emit *Emitter) error {
			if err := emit.Record(stream.Record{Data: map[string]any{"i": 0}}); err != nil {
				return err
			}
			return emit.State(stream.State{"cursor": 1})
		},
	}})
	defer stop()
	items := testutil.Drain(t, ch)

	states := byKind(items, KindState)
	require.Len(t, states, 1)
	assert.Equal(t, stream.State{"cursor": 1}, states[0].State)

	statuses := byKind(items, KindStatus)
	require.Len(t, statuses, 3)
	assert.Equal(t, stream.StatusStarted, statuses[0].Status)
	assert.Equal(t, stream.StatusRunning, statuses[1].Status)
	assert.Equal(t, stream.StatusComplete, statuses[2].Status)
}

func TestReader_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(Config{SessionLimit: 1, QueueSize: 10})
	ch, stop := r.Run(ctx, []Task{{
		Stream: "s",
		Run: func(ctx context.Context, emit *Emitter) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}})
	defer stop()

	cancel()
	items := testutil.Drain(t, ch)
	fatal := byKind(items, KindFatal)
	require.Len(t, fatal, 1)
	assert.ErrorIs(t, fatal[0].Err, context.Canceled)
	assert.Len(t, byKind(items, KindSentinel), 1)
}

func TestReader_StopAbandons(t *testing.T) {
	r := New(Config{SessionLimit: 2, QueueSize: 1})
	ch, stop := r.Run(context.Background(), []Task{recordTask("a", 1000), recordTask("b", 1000)})

	<-ch
	stop()
	stop()

	// nothing blocks forever once the consumer walks away
	testutil.Drain(t, ch)
}
