package sample

import (
	"github.com/ajitpratap0/nebula-dispatch/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("sample", NewSource, &registry.SourceInfo{
		Name:        "sample",
		Description: "Deterministic synthetic streams sliced by owner and time window",
		Version:     "1.0.0",
		Capabilities: []string{
			"full_refresh",
			"incremental",
			"cartesian_slicing",
			"sessions",
		},
		ConfigSchema: map[string]interface{}{
			"streams": map[string]interface{}{
				"type":        "array",
				"required":    true,
				"description": "Streams with owners, start, end, step, records_per_slice, fail_after, unavailable_reason and incremental",
			},
			"session_ttl": map[string]interface{}{
				"type":        "string",
				"required":    false,
				"default":     "30m",
				"description": "Session reuse window",
			},
		},
	})
}
