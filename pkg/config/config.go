// Package config provides the unified configuration for the dispatch core.
// A single DispatchConfig carries everything the dispatcher, the concurrent
// reader and the CLI need; connector-specific settings travel separately as
// a ConnectorConfig map and are never interpreted here.
//
// The configuration is organized into logical sections:
//   - Concurrency: session limit and output queue capacity
//   - Timeouts: per-call bounds for the synchronous facades and the grace
//     given to cancelled stream reads
//   - Reliability: missing-stream policy
//   - Observability: logging, metrics and tracing switches
//   - State: where resumption state is persisted
//
// Example usage:
//
//	cfg := config.NewDispatchConfig("hubspot")
//	cfg.Concurrency.SessionLimit = 8
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

const (
	// DefaultSessionLimit bounds the number of concurrently read streams.
	DefaultSessionLimit = 10000
	// DefaultQueueSize is the capacity of the shared output queue.
	DefaultQueueSize = 10000
	// DefaultCancelGrace is how long cancelled stream reads may take to stop
	// after a failure before the read gives up on them.
	DefaultCancelGrace = 5 * time.Second
)

// DispatchConfig is the configuration structure shared by the dispatcher,
// the reader and the CLI.
type DispatchConfig struct {
	// Name identifies the source being dispatched
	Name string `yaml:"name" json:"name" mapstructure:"name"`

	// Concurrency bounds the reader
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency" mapstructure:"concurrency"`

	// Timeouts define facade call durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts" mapstructure:"timeouts"`

	// Reliability settings for catalog resolution
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability" mapstructure:"reliability"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`

	// State persistence settings
	State StateConfig `yaml:"state" json:"state" mapstructure:"state"`
}

// ConcurrencyConfig is the concurrency budget of a sync.
type ConcurrencyConfig struct {
	// SessionLimit is the maximum number of stream-read tasks in flight
	SessionLimit int `yaml:"session_limit" json:"session_limit" mapstructure:"session_limit"`
	// QueueSize is the capacity of the shared output queue; producers
	// block once it is full
	QueueSize int `yaml:"queue_size" json:"queue_size" mapstructure:"queue_size"`
}

// TimeoutConfig contains timeout-related settings. A zero value disables
// the bound; syncs themselves are never bounded by this package.
type TimeoutConfig struct {
	// Request bounds Spec, CheckConnection and Streams calls
	Request time.Duration `yaml:"request" json:"request" mapstructure:"request"`
	// CancelGrace bounds the wait for cancelled stream reads once a read
	// has failed; reads still running afterwards are abandoned
	CancelGrace time.Duration `yaml:"cancel_grace" json:"cancel_grace" mapstructure:"cancel_grace"`
}

// ReliabilityConfig controls how configuration drift is handled.
type ReliabilityConfig struct {
	// FailOnMissingStream makes Read fail when the catalog names a stream
	// the source does not provide
	FailOnMissingStream bool `yaml:"fail_on_missing_stream" json:"fail_on_missing_stream" mapstructure:"fail_on_missing_stream"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// EnableMetrics activates metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	// EnableTracing activates tracing of stream reads
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// LogEncoding is json or console
	LogEncoding string `yaml:"log_encoding" json:"log_encoding" mapstructure:"log_encoding"`
	// MetricsAddr, when set, serves /metrics on this address
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" mapstructure:"metrics_addr"`
}

// StateConfig selects the resumption-state store.
type StateConfig struct {
	// Backend is "file", "postgres" or "" (no persistence)
	Backend string `yaml:"backend" json:"backend" mapstructure:"backend"`
	// Path of the state file for the file backend
	Path string `yaml:"path" json:"path" mapstructure:"path"`
	// Compression algorithm for the file backend (none, gzip, snappy, lz4, zstd, s2)
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
	// DSN of the postgres backend
	DSN string `yaml:"dsn" json:"dsn" mapstructure:"dsn"`
	// Table of the postgres backend
	Table string `yaml:"table" json:"table" mapstructure:"table"`
}

// NewDispatchConfig creates a DispatchConfig with defaults.
func NewDispatchConfig(name string) *DispatchConfig {
	return &DispatchConfig{
		Name: name,
		Concurrency: ConcurrencyConfig{
			SessionLimit: DefaultSessionLimit,
			QueueSize:    DefaultQueueSize,
		},
		Timeouts: TimeoutConfig{
			Request:     5 * time.Minute,
			CancelGrace: DefaultCancelGrace,
		},
		Reliability: ReliabilityConfig{
			FailOnMissingStream: false,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: false,
			EnableTracing: false,
			LogLevel:      "info",
			LogEncoding:   "json",
		},
		State: StateConfig{
			Compression: "none",
			Table:       "nebula_stream_state",
		},
	}
}

// Validate validates the configuration for correctness.
func (c *DispatchConfig) Validate() error {
	if c.Concurrency.SessionLimit <= 0 {
		return fmt.Errorf("session_limit must be positive")
	}
	if c.Concurrency.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive")
	}
	if c.Timeouts.Request < 0 {
		return fmt.Errorf("request timeout cannot be negative")
	}
	if c.Timeouts.CancelGrace < 0 {
		return fmt.Errorf("cancel grace cannot be negative")
	}
	switch c.State.Backend {
	case "":
	case "file":
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for the file backend")
		}
	case "postgres":
		if c.State.DSN == "" {
			return fmt.Errorf("state.dsn is required for the postgres backend")
		}
		if c.State.Table == "" {
			return fmt.Errorf("state.table is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	return nil
}

// HasStateStore returns true if state persistence is configured
func (s *StateConfig) HasStateStore() bool {
	return s.Backend != ""
}
