// Package metrics provides Prometheus instrumentation for the dispatch core
// and the scoped event timer used to time stream reads.
//
// # Basic Usage
//
//	collector := metrics.NewCollector("hubspot")
//	collector.StreamStarted("contacts")
//	collector.RecordEmitted("contacts")
//	collector.StreamFinished("contacts", "COMPLETE")
//
//	timer := metrics.NewEventTimer("hubspot", collector)
//	ctx, ev := timer.StartEvent(ctx, "read contacts")
//	defer ev.FinishEvent(nil)
//
// # Metric Types
//
// Counter: records emitted and stream status transitions
// Gauge: streams in flight and output queue depth
// Histogram: event durations
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsEmitted counts records delivered to the output queue.
	// Labels: source, stream
	RecordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_dispatch_records_emitted_total",
			Help: "Total number of records emitted by stream reads",
		},
		[]string{"source", "stream"},
	)

	// StreamStatus counts stream status transitions.
	// Labels: source, stream, status (STARTED/COMPLETE/INCOMPLETE)
	StreamStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_dispatch_stream_status_total",
			Help: "Stream status transitions",
		},
		[]string{"source", "stream", "status"},
	)

	// StreamsInFlight tracks concurrently running stream reads.
	StreamsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nebula_dispatch_streams_in_flight",
			Help: "Number of stream reads currently in flight",
		},
		[]string{"source"},
	)

	// QueueDepth tracks the shared output queue length.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nebula_dispatch_queue_depth",
			Help: "Current depth of the shared output queue",
		},
		[]string{"source"},
	)

	// EventDuration tracks timed events such as whole stream reads.
	EventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nebula_dispatch_event_duration_seconds",
			Help:    "Duration of timed dispatch events",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"source", "event"},
	)
)

// Collector records dispatch metrics for one source. A nil *Collector is
// valid and records nothing, which keeps call sites free of checks.
type Collector struct {
	source    string
	inFlight  atomic.Int64
	emitted   atomic.Int64
	startTime time.Time
}

// NewCollector creates a collector labelled with the source name.
func NewCollector(source string) *Collector {
	return &Collector{source: source, startTime: time.Now()}
}

// StreamStarted records a stream entering the RUNNING phase.
func (c *Collector) StreamStarted(stream string) {
	if c == nil {
		return
	}
	n := c.inFlight.Add(1)
	StreamsInFlight.WithLabelValues(c.source).Set(float64(n))
	StreamStatus.WithLabelValues(c.source, stream, "STARTED").Inc()
}

// StreamFinished records a terminal status for a stream.
func (c *Collector) StreamFinished(stream, status string) {
	if c == nil {
		return
	}
	n := c.inFlight.Add(-1)
	StreamsInFlight.WithLabelValues(c.source).Set(float64(n))
	StreamStatus.WithLabelValues(c.source, stream, status).Inc()
}

// RecordEmitted counts one record placed on the output queue.
func (c *Collector) RecordEmitted(stream string) {
	if c == nil {
		return
	}
	c.emitted.Add(1)
	RecordsEmitted.WithLabelValues(c.source, stream).Inc()
}

// SetQueueDepth publishes the current output queue length.
func (c *Collector) SetQueueDepth(depth int) {
	if c == nil {
		return
	}
	QueueDepth.WithLabelValues(c.source).Set(float64(depth))
}

// ObserveEvent records the duration of a named event.
func (c *Collector) ObserveEvent(event string, d time.Duration) {
	if c == nil {
		return
	}
	EventDuration.WithLabelValues(c.source, event).Observe(d.Seconds())
}

// GetAll returns a snapshot of the collector's own counters
func (c *Collector) GetAll() map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"source":          c.source,
		"streams_running": c.inFlight.Load(),
		"records_emitted": c.emitted.Load(),
		"uptime":          time.Since(c.startTime).Seconds(),
	}
}
