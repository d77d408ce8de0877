// Package dispatch drives a source's streams to completion. A Dispatcher
// resolves the configured catalog against the source, skips streams that
// are unavailable, reads the rest concurrently through the reader and
// surfaces their output as one lazy sequence of messages.
//
// When a stream fails, everything already produced by any stream is still
// yielded; the failure is reported last, as the sequence's final error.
package dispatch

import (
	"context"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// AsyncSource is a source whose operations block and take a context.
type AsyncSource interface {
	// Spec describes the source and its connector configuration
	Spec(ctx context.Context) (*Spec, error)
	// Check verifies the configuration can reach the upstream system
	Check(ctx context.Context, cfg config.ConnectorConfig) (*ConnectionStatus, error)
	// Streams returns every stream the source provides for cfg
	Streams(ctx context.Context, cfg config.ConnectorConfig) ([]stream.Stream, error)
}

// Spec describes a source.
type Spec struct {
	Name                    string         `json:"name" yaml:"name"`
	DocumentationURL        string         `json:"documentation_url,omitempty" yaml:"documentation_url,omitempty"`
	SupportsIncremental     bool           `json:"supports_incremental" yaml:"supports_incremental"`
	ConnectionSpecification map[string]any `json:"connection_specification" yaml:"connection_specification"`
}

// CheckStatus is the outcome of a connection check.
type CheckStatus string

const (
	CheckSucceeded CheckStatus = "SUCCEEDED"
	CheckFailed    CheckStatus = "FAILED"
)

// ConnectionStatus is the result of Check.
type ConnectionStatus struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Succeeded reports whether the check passed.
func (s *ConnectionStatus) Succeeded() bool {
	return s != nil && s.Status == CheckSucceeded
}
