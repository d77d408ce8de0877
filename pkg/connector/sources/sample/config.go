package sample

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
)

// Config is the sample source configuration.
type Config struct {
	Streams []StreamConfig `yaml:"streams"`
	// SessionTTL bounds how long a stream session is reused
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// StreamConfig describes one synthetic stream. Its slices are the cross
// product of the Parent's records, Owners and the [Start, End) windows of
// Step.
type StreamConfig struct {
	Name       string        `yaml:"name"`
	OwnerField string        `yaml:"owner_field"`
	Owners     []string      `yaml:"owners"`
	Start      time.Time     `yaml:"start"`
	End        time.Time     `yaml:"end"`
	Step       time.Duration `yaml:"step"`
	// RecordsPerSlice is the number of records produced per slice
	RecordsPerSlice int `yaml:"records_per_slice"`
	// FailAfter, when positive, fails the read after that many records
	FailAfter int `yaml:"fail_after"`
	// UnavailableReason, when set, makes the stream unavailable
	UnavailableReason string `yaml:"unavailable_reason"`
	// Incremental exposes updated_at as the stream cursor
	Incremental bool `yaml:"incremental"`
	// Parent names another stream; one slice is read per parent record
	Parent string `yaml:"parent"`
	// ParentKey is the parent record field identifying the child slice
	ParentKey string `yaml:"parent_key"`
	// PartitionField is the slice key and request parameter carrying it
	PartitionField string `yaml:"partition_field"`
}

// ParseConfig decodes a connector config map into Config and applies
// defaults.
func ParseConfig(cfg config.ConnectorConfig) (*Config, error) {
	raw, err := yaml.Marshal(map[string]interface{}(cfg))
	if err != nil {
		return nil, fmt.Errorf("encoding sample config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding sample config: %w", err)
	}
	for i := range c.Streams {
		s := &c.Streams[i]
		if s.OwnerField == "" {
			s.OwnerField = "owner_resource"
		}
		if s.RecordsPerSlice <= 0 {
			s.RecordsPerSlice = 1
		}
		if s.Parent != "" {
			if s.ParentKey == "" {
				s.ParentKey = "id"
			}
			if s.PartitionField == "" {
				s.PartitionField = "parent_id"
			}
		}
	}
	return &c, c.Validate()
}

// Validate checks stream names are set and unique, windows are sane and
// parents are top-level streams.
func (c *Config) Validate() error {
	if len(c.Streams) == 0 {
		return fmt.Errorf("at least one stream is required")
	}
	seen := make(map[string]*StreamConfig, len(c.Streams))
	for i := range c.Streams {
		s := &c.Streams[i]
		if s.Name == "" {
			return fmt.Errorf("stream name is required")
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("stream %s is defined twice", s.Name)
		}
		seen[s.Name] = s
		if !s.Start.IsZero() && s.End.Before(s.Start) {
			return fmt.Errorf("stream %s ends before it starts", s.Name)
		}
	}
	for _, s := range c.Streams {
		if s.Parent == "" {
			continue
		}
		parent, ok := seen[s.Parent]
		switch {
		case !ok:
			return fmt.Errorf("stream %s: parent %s is not defined", s.Name, s.Parent)
		case parent.Parent != "":
			return fmt.Errorf("stream %s: parent %s is itself a child stream", s.Name, s.Parent)
		}
	}
	return nil
}

// stream returns the named stream's configuration.
func (c *Config) stream(name string) (StreamConfig, bool) {
	for _, s := range c.Streams {
		if s.Name == name {
			return s, true
		}
	}
	return StreamConfig{}, false
}
