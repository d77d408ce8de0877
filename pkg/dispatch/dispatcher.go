package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
	"github.com/ajitpratap0/nebula-dispatch/pkg/metrics"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// Dispatcher wraps an AsyncSource with synchronous facades and the
// concurrent Read.
type Dispatcher struct {
	source  AsyncSource
	cfg     *config.DispatchConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger; the default discards.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics reports into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

// New creates a dispatcher. A nil cfg selects the defaults.
func New(source AsyncSource, cfg *config.DispatchConfig, opts ...Option) *Dispatcher {
	if cfg == nil {
		cfg = config.NewDispatchConfig("")
	}
	d := &Dispatcher{
		source: source,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "dispatcher"), zap.String("source", cfg.Name))
	return d
}

// callContext returns a fresh context for one facade call, bounded by the
// configured request timeout when set.
func (d *Dispatcher) callContext() (context.Context, context.CancelFunc) {
	if d.cfg.Timeouts.Request > 0 {
		return context.WithTimeout(context.Background(), d.cfg.Timeouts.Request)
	}
	return context.WithCancel(context.Background())
}

// Spec returns the source's spec.
func (d *Dispatcher) Spec() (*Spec, error) {
	ctx, cancel := d.callContext()
	defer cancel()
	return d.source.Spec(ctx)
}

// CheckConnection runs the source's connection check on the connector part
// of cfg. A check that errors is reported as FAILED with the error message.
func (d *Dispatcher) CheckConnection(cfg config.ConnectorConfig) (*ConnectionStatus, error) {
	ctx, cancel := d.callContext()
	defer cancel()

	connCfg, _ := cfg.Split()
	status, err := d.source.Check(ctx, connCfg)
	if err != nil {
		d.logger.Warn("connection check failed", zap.Error(err))
		msg := errors.DisplayMessage(err)
		if msg == "" {
			msg = err.Error()
		}
		return &ConnectionStatus{Status: CheckFailed, Message: msg}, nil
	}
	return status, nil
}

// Streams returns the source's streams for the connector part of cfg.
func (d *Dispatcher) Streams(cfg config.ConnectorConfig) ([]stream.Stream, error) {
	ctx, cancel := d.callContext()
	defer cancel()

	connCfg, _ := cfg.Split()
	return d.source.Streams(ctx, connCfg)
}

// Discover returns a catalog of every stream the source provides.
func (d *Dispatcher) Discover(cfg config.ConnectorConfig) (*stream.Catalog, error) {
	streams, err := d.Streams(cfg)
	if err != nil {
		return nil, err
	}
	return stream.CatalogFor(streams), nil
}
