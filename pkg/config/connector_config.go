package config

import (
	"strings"
)

// ReservedPrefix marks internal keys that may ride along in a connector
// config but are consumed by the dispatcher rather than the connector.
const ReservedPrefix = "__"

// Reserved keys understood by the dispatcher.
const (
	ReservedSessionLimit = "__session_limit"
	ReservedQueueSize    = "__queue_size"
)

// ConnectorConfig is the connector-specific configuration, opaque to the core.
type ConnectorConfig map[string]interface{}

// LoadConnectorConfig reads a connector config file (YAML or JSON).
func LoadConnectorConfig(path string) (ConnectorConfig, error) {
	cfg := ConnectorConfig{}
	if err := Load(path, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Split separates the connector's own keys from reserved internal keys.
// The receiver is not modified.
func (c ConnectorConfig) Split() (connector ConnectorConfig, internal map[string]interface{}) {
	connector = make(ConnectorConfig, len(c))
	internal = make(map[string]interface{})
	for k, v := range c {
		if strings.HasPrefix(k, ReservedPrefix) {
			internal[k] = v
			continue
		}
		connector[k] = v
	}
	return connector, internal
}

// String returns the string value under key, or def.
func (c ConnectorConfig) String(key, def string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns the integer value under key, or def. YAML and JSON decoders
// produce different numeric types, all of which are accepted.
func (c ConnectorConfig) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Bool returns the boolean value under key, or def.
func (c ConnectorConfig) Bool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// ApplyInternal overlays recognised reserved keys onto the dispatch config.
func (dc *DispatchConfig) ApplyInternal(internal map[string]interface{}) {
	overrides := ConnectorConfig(internal)
	if n := overrides.Int(ReservedSessionLimit, 0); n > 0 {
		dc.Concurrency.SessionLimit = n
	}
	if n := overrides.Int(ReservedQueueSize, 0); n > 0 {
		dc.Concurrency.QueueSize = n
	}
}
