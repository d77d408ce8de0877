package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-dispatch/pkg/dispatch"
	"github.com/ajitpratap0/nebula-dispatch/pkg/logger"
	"github.com/ajitpratap0/nebula-dispatch/pkg/metrics"
	"github.com/ajitpratap0/nebula-dispatch/pkg/observability"
	"github.com/ajitpratap0/nebula-dispatch/pkg/state"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// connectorFlags are shared by the commands that talk to a source.
type connectorFlags struct {
	source     string
	configFile string
}

func (f *connectorFlags) register(cmd *cobra.Command, configRequired bool) {
	cmd.Flags().StringVarP(&f.source, "source", "s", "", "Registered source connector name (required)")
	cmd.Flags().StringVarP(&f.configFile, "connector-config", "c", "", "Path to the connector configuration file (YAML or JSON)")
	_ = cmd.MarkFlagRequired("source")
	if configRequired {
		_ = cmd.MarkFlagRequired("connector-config")
	}
}

// session is everything a command needs to call into one source.
type session struct {
	cfg        *config.DispatchConfig
	connCfg    config.ConnectorConfig
	dispatcher *dispatch.Dispatcher
	log        *zap.Logger
}

func (a *app) open(f *connectorFlags) (*session, error) {
	cfg, err := a.dispatchConfig(f.source)
	if err != nil {
		return nil, err
	}

	connCfg := config.ConnectorConfig{}
	if f.configFile != "" {
		if connCfg, err = config.LoadConnectorConfig(f.configFile); err != nil {
			return nil, fmt.Errorf("connector configuration error: %w", err)
		}
	}

	source, err := registry.CreateSource(f.source, connCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create source connector '%s': %w", f.source, err)
	}

	log := logger.Get().With(
		zap.String("component", "nebula-dispatch-cli"),
		zap.String("source", f.source),
	)
	opts := []dispatch.Option{dispatch.WithLogger(log)}
	if cfg.Observability.EnableMetrics {
		opts = append(opts, dispatch.WithMetrics(metrics.NewCollector(f.source)))
	}

	return &session{
		cfg:        cfg,
		connCfg:    connCfg,
		dispatcher: dispatch.New(source, cfg, opts...),
		log:        log,
	}, nil
}

func (a *app) writeJSON(v interface{}) error {
	return json.NewEncoder(a.out).Encode(v)
}

func (a *app) specCommand() *cobra.Command {
	var f connectorFlags
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Print the source's specification",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(&f)
			if err != nil {
				return err
			}
			spec, err := s.dispatcher.Spec()
			if err != nil {
				return err
			}
			return a.writeJSON(spec)
		},
	}
	f.register(cmd, false)
	return cmd
}

func (a *app) checkCommand() *cobra.Command {
	var f connectorFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the connector configuration can reach the upstream system",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(&f)
			if err != nil {
				return err
			}
			status, err := s.dispatcher.CheckConnection(s.connCfg)
			if err != nil {
				return err
			}
			return a.writeJSON(status)
		},
	}
	f.register(cmd, true)
	return cmd
}

func (a *app) discoverCommand() *cobra.Command {
	var f connectorFlags
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Print a catalog of every stream the source provides",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(&f)
			if err != nil {
				return err
			}
			catalog, err := s.dispatcher.Discover(s.connCfg)
			if err != nil {
				return err
			}
			return a.writeJSON(catalog)
		},
	}
	f.register(cmd, true)
	return cmd
}

func (a *app) readCommand() *cobra.Command {
	var f connectorFlags
	var catalogFile, stateFile string

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read the streams of a configured catalog",
		Long: `Read every stream named in the catalog concurrently and write the resulting
messages to stdout as JSON lines. Prior state comes from --state when given,
otherwise from the configured state store, which also receives the final
state when the read ends.

Example:
  nebula-dispatch read -s sample -c sample.yaml --catalog catalog.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runRead(ctx, &f, catalogFile, stateFile)
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringVar(&catalogFile, "catalog", "", "Path to the configured catalog (YAML or JSON, required)")
	cmd.Flags().StringVar(&stateFile, "state", "", "Path to a prior state file (JSON, list or map form)")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

func (a *app) runRead(ctx context.Context, f *connectorFlags, catalogFile, stateFile string) error {
	s, err := a.open(f)
	if err != nil {
		return err
	}

	catalog, err := stream.LoadCatalog(catalogFile)
	if err != nil {
		return fmt.Errorf("catalog error: %w", err)
	}

	if err := observability.InitTracing(observability.TracingConfig{
		Enabled:        s.cfg.Observability.EnableTracing,
		ServiceName:    "nebula-dispatch",
		ServiceVersion: version,
		SamplingRate:   1,
	}); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = observability.Shutdown(shutdownCtx)
	}()

	if addr := s.cfg.Observability.MetricsAddr; addr != "" {
		srv := serveMetrics(addr, s.log)
		defer func() { _ = srv.Close() }()
	}

	store, err := state.NewStore(ctx, s.cfg.State, s.log)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	prior, err := loadPrior(ctx, stateFile, store)
	if err != nil {
		return err
	}
	final, err := state.NewManager(prior)
	if err != nil {
		return err
	}

	s.log.Info("starting read",
		zap.Strings("streams", catalog.Names()),
		zap.Int("session_limit", s.cfg.Concurrency.SessionLimit),
		zap.Int("queue_size", s.cfg.Concurrency.QueueSize))

	enc := json.NewEncoder(a.out)
	var readErr error
	var count int
	for msg, err := range s.dispatcher.Read(ctx, s.connCfg, catalog, prior) {
		if err != nil {
			readErr = err
			break
		}
		if msg.State != nil {
			final.Update(msg.State.Stream, msg.State.State)
		}
		if err := enc.Encode(msg); err != nil {
			readErr = fmt.Errorf("failed to write message: %w", err)
			break
		}
		count++
	}

	if store != nil {
		if err := store.Save(context.WithoutCancel(ctx), final.Snapshot()); err != nil {
			s.log.Error("failed to persist state", zap.Error(err))
			if readErr == nil {
				readErr = err
			}
		}
	}

	if readErr != nil {
		s.log.Error("read failed", zap.Int("messages", count), zap.Error(readErr))
		return readErr
	}
	s.log.Info("read completed", zap.Int("messages", count))
	return nil
}

// loadPrior returns the state a read resumes from: the --state file when
// given, otherwise the store's snapshot, otherwise nothing.
func loadPrior(ctx context.Context, path string, store state.Store) (map[string]stream.State, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
		}
		mgr, err := state.ParsePrior(data)
		if err != nil {
			return nil, err
		}
		return mgr.Snapshot(), nil
	}
	if store != nil {
		return store.Load(ctx)
	}
	return nil, nil
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}
