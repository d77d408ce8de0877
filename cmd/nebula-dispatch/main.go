package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-dispatch/pkg/logger"

	// Import all available sources to register them
	_ "github.com/ajitpratap0/nebula-dispatch/pkg/connector/sources/jsonl"
	_ "github.com/ajitpratap0/nebula-dispatch/pkg/connector/sources/sample"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand.
type app struct {
	v    *viper.Viper
	out  io.Writer
	root *cobra.Command
}

func newRootCommand(out io.Writer) *cobra.Command {
	return newApp(out).root
}

func newApp(out io.Writer) *app {
	a := &app{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:   "nebula-dispatch",
		Short: "Nebula Dispatch - concurrent stream reader for source connectors",
		Long: `Nebula Dispatch reads every stream of a source connector concurrently and
writes RECORD, STREAM_STATUS, STATE and LOG messages to stdout as JSON lines.

Every flag can also be set through the environment with the NEBULA_ prefix,
e.g. NEBULA_SESSION_LIMIT=8.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{
				Level:    a.v.GetString("log-level"),
				Encoding: a.v.GetString("log-encoding"),
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a dispatch configuration file (YAML or JSON)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-encoding", "json", "Log encoding (json, console)")
	flags.Int("session-limit", config.DefaultSessionLimit, "Maximum number of streams read concurrently")
	flags.Int("queue-size", config.DefaultQueueSize, "Capacity of the shared output queue")
	flags.Duration("request-timeout", 0, "Bound on spec, check and discover calls (0 keeps the configured value)")
	flags.Duration("cancel-grace", 0, "How long cancelled streams may take to stop after a failure (0 keeps the configured value)")
	flags.Bool("fail-on-missing-stream", false, "Fail when the catalog names a stream the source does not provide")
	flags.Bool("enable-metrics", false, "Enable metrics collection")
	flags.Bool("enable-tracing", false, "Export stream-read spans to stderr")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.String("state-backend", "", "State store backend (file, postgres)")
	flags.String("state-path", "", "State file for the file backend")
	flags.String("state-compression", "", "State file compression (none, gzip, snappy, lz4, zstd, s2)")
	flags.String("state-dsn", "", "Connection string for the postgres backend")
	flags.String("state-table", "", "Table for the postgres backend")

	a.v.SetEnvPrefix("NEBULA")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(flags)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "Nebula Dispatch v%s\n", version)
			fmt.Fprintf(a.out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(a.out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available source connectors",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(a.out, "Available Source Connectors:")
			for _, name := range registry.ListSources() {
				info, err := registry.GetInfo(name)
				if err != nil || info.Description == "" {
					fmt.Fprintf(a.out, "  - %s\n", name)
					continue
				}
				fmt.Fprintf(a.out, "  - %s: %s\n", name, info.Description)
			}
		},
	})

	root.AddCommand(a.specCommand(), a.checkCommand(), a.discoverCommand(), a.readCommand())
	a.root = root
	return a
}

// dispatchConfig builds the dispatch configuration for source: defaults,
// then the --config file, then any flag or NEBULA_ variable that was set.
func (a *app) dispatchConfig(source string) (*config.DispatchConfig, error) {
	cfg := config.NewDispatchConfig(source)
	if path := a.v.GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, fmt.Errorf("dispatch configuration error: %w", err)
		}
		cfg.Name = source
	}

	v := a.v
	if v.IsSet("session-limit") {
		cfg.Concurrency.SessionLimit = v.GetInt("session-limit")
	}
	if v.IsSet("queue-size") {
		cfg.Concurrency.QueueSize = v.GetInt("queue-size")
	}
	if v.IsSet("request-timeout") && v.GetDuration("request-timeout") > 0 {
		cfg.Timeouts.Request = v.GetDuration("request-timeout")
	}
	if v.IsSet("cancel-grace") && v.GetDuration("cancel-grace") > 0 {
		cfg.Timeouts.CancelGrace = v.GetDuration("cancel-grace")
	}
	if v.IsSet("fail-on-missing-stream") {
		cfg.Reliability.FailOnMissingStream = v.GetBool("fail-on-missing-stream")
	}
	if v.IsSet("enable-metrics") {
		cfg.Observability.EnableMetrics = v.GetBool("enable-metrics")
	}
	if v.IsSet("enable-tracing") {
		cfg.Observability.EnableTracing = v.GetBool("enable-tracing")
	}
	if v.IsSet("metrics-addr") {
		cfg.Observability.MetricsAddr = v.GetString("metrics-addr")
	}
	if v.IsSet("log-level") {
		cfg.Observability.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("state-backend") {
		cfg.State.Backend = v.GetString("state-backend")
	}
	if v.IsSet("state-path") {
		cfg.State.Path = v.GetString("state-path")
	}
	if v.IsSet("state-compression") {
		cfg.State.Compression = v.GetString("state-compression")
	}
	if v.IsSet("state-dsn") {
		cfg.State.DSN = v.GetString("state-dsn")
	}
	if v.IsSet("state-table") {
		cfg.State.Table = v.GetString("state-table")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dispatch configuration error: %w", err)
	}
	return cfg, nil
}
