package jsonl

import (
	"github.com/ajitpratap0/nebula-dispatch/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("jsonl", NewSource, &registry.SourceInfo{
		Name:         "jsonl",
		Description:  "One stream per line-delimited JSON file in a directory",
		Version:      "1.0.0",
		Capabilities: []string{"full_refresh", "incremental"},
		ConfigSchema: map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"required":    true,
				"description": "Directory holding *.jsonl files",
			},
			"cursor_field": map[string]interface{}{
				"type":        "string",
				"required":    false,
				"description": "Record field used as the incremental cursor",
			},
		},
	})
}
