package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
)

// ExampleNewDispatchConfig demonstrates creating a configuration with
// default values.
func ExampleNewDispatchConfig() {
	cfg := config.NewDispatchConfig("sample")

	fmt.Printf("Session limit: %d\n", cfg.Concurrency.SessionLimit)
	fmt.Printf("Queue size: %d\n", cfg.Concurrency.QueueSize)
	fmt.Printf("Request timeout: %s\n", cfg.Timeouts.Request)

	// Output:
	// Session limit: 10000
	// Queue size: 10000
	// Request timeout: 5m0s
}

// ExampleDispatchConfig_Validate shows how to validate a configuration
// before using it.
func ExampleDispatchConfig_Validate() {
	cfg := config.NewDispatchConfig("sample")
	cfg.Concurrency.SessionLimit = 4
	cfg.State.Backend = "file"
	cfg.State.Path = "/tmp/state.json"

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	// Output:
	// Configuration is valid!
}

// ExampleConnectorConfig_Split separates reserved dispatcher keys from the
// connector's own settings.
func ExampleConnectorConfig_Split() {
	raw := config.ConnectorConfig{
		"api_key":         "secret",
		"__session_limit": 2,
	}

	connector, internal := raw.Split()

	dc := config.NewDispatchConfig("sample")
	dc.ApplyInternal(internal)

	fmt.Println(len(connector), connector["api_key"])
	fmt.Println(dc.Concurrency.SessionLimit)

	// Output:
	// 1 secret
	// 2
}
