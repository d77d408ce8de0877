package stream

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// SyncMode selects how a stream is read.
type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental SyncMode = "incremental"
)

// ConfiguredStream is one entry of a configured catalog.
type ConfiguredStream struct {
	Name        string   `yaml:"name" json:"name"`
	SyncMode    SyncMode `yaml:"sync_mode" json:"sync_mode"`
	CursorField string   `yaml:"cursor_field,omitempty" json:"cursor_field,omitempty"`
	PrimaryKey  []string `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
}

// Incremental reports whether the stream resumes from state.
func (c ConfiguredStream) Incremental() bool {
	return c.SyncMode == SyncModeIncremental
}

// Catalog is the set of streams a read was asked for.
type Catalog struct {
	Streams []ConfiguredStream `yaml:"streams" json:"streams"`
}

// Names returns the configured stream names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Streams))
	for i, s := range c.Streams {
		names[i] = s.Name
	}
	return names
}

// Validate checks names are present and unique and sync modes are known.
func (c *Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Streams))
	for i, s := range c.Streams {
		if s.Name == "" {
			return fmt.Errorf("catalog stream %d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("catalog stream %q is listed twice", s.Name)
		}
		seen[s.Name] = struct{}{}
		switch s.SyncMode {
		case "", SyncModeFullRefresh, SyncModeIncremental:
		default:
			return fmt.Errorf("catalog stream %q has unknown sync mode %q", s.Name, s.SyncMode)
		}
	}
	return nil
}

// LoadCatalog reads a catalog from a .json, .yaml or .yml file. Streams
// without a sync mode default to full refresh.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &catalog)
	default:
		err = yaml.Unmarshal(data, &catalog)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	for i := range catalog.Streams {
		if catalog.Streams[i].SyncMode == "" {
			catalog.Streams[i].SyncMode = SyncModeFullRefresh
		}
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// CatalogFor builds a full-refresh catalog covering every stream.
func CatalogFor(streams []Stream) *Catalog {
	c := &Catalog{Streams: make([]ConfiguredStream, 0, len(streams))}
	for _, s := range streams {
		cs := ConfiguredStream{Name: s.Name(), SyncMode: SyncModeFullRefresh}
		if cur, ok := s.(CursorStream); ok && cur.CursorField() != "" {
			cs.SyncMode = SyncModeIncremental
			cs.CursorField = cur.CursorField()
		}
		c.Streams = append(c.Streams, cs)
	}
	return c
}
