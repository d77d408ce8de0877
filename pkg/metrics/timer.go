package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/nebula-dispatch/pkg/observability"
)

// EventTimer times named events. Each StartEvent opens a span and returns an
// Event that must be finished exactly once, normally with defer so the
// finish runs on error paths too.
type EventTimer struct {
	source    string
	collector *Collector
	mu        sync.Mutex
	finished  []FinishedEvent
	open      map[string]int
}

// FinishedEvent is an event with its measured duration.
type FinishedEvent struct {
	Name     string
	Duration time.Duration
	Failed   bool
}

// Event is a started, not yet finished event.
type Event struct {
	timer *EventTimer
	name  string
	start time.Time
	span  *observability.Span
	once  sync.Once
}

// NewEventTimer creates a timer reporting into collector (which may be nil).
func NewEventTimer(source string, collector *Collector) *EventTimer {
	return &EventTimer{
		source:    source,
		collector: collector,
		open:      make(map[string]int),
	}
}

// StartEvent starts timing name and returns the span-carrying context.
func (t *EventTimer) StartEvent(ctx context.Context, name string) (context.Context, *Event) {
	ctx, span := observability.StartSpan(ctx, name)
	span.SetAttribute("source", t.source)

	t.mu.Lock()
	t.open[name]++
	t.mu.Unlock()

	return ctx, &Event{timer: t, name: name, start: time.Now(), span: span}
}

// FinishEvent stops the event. Subsequent calls are no-ops.
func (e *Event) FinishEvent(err error) {
	e.once.Do(func() {
		d := time.Since(e.start)
		e.span.End(err)
		e.timer.collector.ObserveEvent(e.name, d)

		e.timer.mu.Lock()
		defer e.timer.mu.Unlock()
		e.timer.open[e.name]--
		if e.timer.open[e.name] == 0 {
			delete(e.timer.open, e.name)
		}
		e.timer.finished = append(e.timer.finished, FinishedEvent{Name: e.name, Duration: d, Failed: err != nil})
	})
}

// Open returns the names of events started but not finished.
func (t *EventTimer) Open() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.open))
	for name := range t.open {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Finished returns finished events in completion order.
func (t *EventTimer) Finished() []FinishedEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]FinishedEvent, len(t.finished))
	copy(out, t.finished)
	return out
}

// Report renders finished events, longest first.
func (t *EventTimer) Report() string {
	events := t.Finished()
	sort.SliceStable(events, func(i, j int) bool { return events[i].Duration > events[j].Duration })

	var b strings.Builder
	b.WriteString("Sync timing report:")
	for _, ev := range events {
		fmt.Fprintf(&b, "\n  %s %s", ev.Name, ev.Duration.Round(time.Millisecond))
		if ev.Failed {
			b.WriteString(" (failed)")
		}
	}
	return b.String()
}
