// Package nebula is the concurrent stream-dispatch core of a source
// connector framework. A source exposes streams; each stream is split into
// slices by composable routers and read slice by slice. The dispatcher reads
// every configured stream concurrently under a session budget, merges their
// output into one ordered sequence of messages and reports the first failure
// only after everything already produced has been delivered.
//
// # Quick Start
//
// Read every stream of a registered source:
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/nebula-dispatch/pkg/config"
//	    "github.com/ajitpratap0/nebula-dispatch/pkg/connector/registry"
//	    "github.com/ajitpratap0/nebula-dispatch/pkg/dispatch"
//	    _ "github.com/ajitpratap0/nebula-dispatch/pkg/connector/sources/sample"
//	)
//
//	connCfg, _ := config.LoadConnectorConfig("sample.yaml")
//	source, _ := registry.CreateSource("sample", connCfg)
//
//	d := dispatch.New(source, config.NewDispatchConfig("sample"))
//	catalog, _ := d.Discover(connCfg)
//
//	for msg, err := range d.Read(context.Background(), connCfg, catalog, nil) {
//	    if err != nil {
//	        return err // delivered after every message already produced
//	    }
//	    handle(msg)
//	}
//
// # Key Packages
//
//	pkg/slicing      - Slices, request options and composable slice routers
//	pkg/stream       - Streams, records, partitions and catalogs
//	pkg/dispatch     - Dispatcher: spec, check, discover and concurrent read
//	internal/reader  - Budgeted concurrent reader with a shared output queue
//	pkg/state        - Per-stream cursor state and its file/postgres stores
//	pkg/session      - Expiring, deduplicated session cache
//	pkg/connector    - Source registry and the sample and jsonl sources
//	pkg/config       - Dispatch and connector configuration
//	pkg/errors       - Structured error handling
//	pkg/logger       - Structured logging
//	pkg/metrics      - Prometheus metrics and event timers
//	pkg/observability - Tracing of stream reads
//
// # Configuration
//
// The dispatch configuration is loaded from YAML or JSON with ${VAR_NAME}
// substitution. The nebula-dispatch CLI also accepts every setting as a flag
// or a NEBULA_ environment variable. Connector configurations may carry
// __session_limit and __queue_size, which override the dispatch settings
// for one read and are never passed to the source.
package nebula
