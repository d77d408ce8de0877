// Package registry maps source names to factories so the CLI can build a
// source by name.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/dispatch"
	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
	"github.com/ajitpratap0/nebula-dispatch/pkg/logger"
)

// SourceFactory creates a source. cfg is the connector part of the user's
// configuration.
type SourceFactory func(cfg config.ConnectorConfig) (dispatch.AsyncSource, error)

// SourceInfo describes a registered source.
type SourceInfo struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Version      string                 `json:"version"`
	Capabilities []string               `json:"capabilities"`
	ConfigSchema map[string]interface{} `json:"config_schema"`
}

// Registry manages source registration and instantiation
type Registry struct {
	sources map[string]SourceFactory
	infos   map[string]*SourceInfo
	mu      sync.RWMutex
	logger  *zap.Logger
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]SourceFactory),
		infos:   make(map[string]*SourceInfo),
		logger:  logger.Get().With(zap.String("component", "source_registry")),
	}
}

// RegisterSource registers a source factory. info may be nil.
func (r *Registry) RegisterSource(name string, factory SourceFactory, info *SourceInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source %s already registered", name))
	}

	r.sources[name] = factory
	if info != nil {
		r.infos[name] = info
	}
	r.logger.Debug("source registered", zap.String("name", name))
	return nil
}

// CreateSource creates a source by name
func (r *Registry) CreateSource(name string, cfg config.ConnectorConfig) (dispatch.AsyncSource, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("source %s not found", name))
	}

	source, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create source %s", name))
	}
	return source, nil
}

// ListSources returns registered source names, sorted
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasSource checks if a source is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// Info returns the metadata registered with a source
func (r *Registry) Info(name string) (*SourceInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.infos[name]
	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("no info registered for source %s", name))
	}
	return info, nil
}

// RegisterSource registers a source in the global registry
func RegisterSource(name string, factory SourceFactory, info *SourceInfo) error {
	return globalRegistry.RegisterSource(name, factory, info)
}

// CreateSource creates a source from the global registry
func CreateSource(name string, cfg config.ConnectorConfig) (dispatch.AsyncSource, error) {
	return globalRegistry.CreateSource(name, cfg)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// HasSource checks if a source is registered in the global registry
func HasSource(name string) bool {
	return globalRegistry.HasSource(name)
}

// GetInfo returns a source's metadata from the global registry
func GetInfo(name string) (*SourceInfo, error) {
	return globalRegistry.Info(name)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
