package dispatch

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/nebula-dispatch/internal/reader"
	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
	"github.com/ajitpratap0/nebula-dispatch/pkg/logger"
	"github.com/ajitpratap0/nebula-dispatch/pkg/metrics"
	"github.com/ajitpratap0/nebula-dispatch/pkg/state"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// maxAvailabilityChecks bounds concurrent availability probes.
const maxAvailabilityChecks = 16

// selected is a catalog entry resolved to its stream.
type selected struct {
	stream     stream.Stream
	configured stream.ConfiguredStream
}

// Read reads every stream of catalog and yields their messages as they
// arrive. Records of one stream keep their order; streams interleave.
//
// prior is the state of an earlier read, in any form state.NewManager
// accepts. Keys of cfg prefixed with "__" tune this read (see
// config.ReservedSessionLimit) and are not passed to the source.
//
// Configuration problems are yielded as the only error, before any stream
// is read. A stream failure is yielded as the final error, after every
// message produced before it; it is the error the stream's read returned,
// wrapped only when the stream supplies a display message for it. Breaking
// out of the loop cancels the remaining reads.
func (d *Dispatcher) Read(ctx context.Context, cfg config.ConnectorConfig, catalog *stream.Catalog, prior any) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		syncID := uuid.NewString()
		ctx := logger.ContextWithSyncID(ctx, syncID)
		log := logger.FromContext(ctx, d.logger)

		connCfg, internal := cfg.Split()
		dcfg := *d.cfg
		dcfg.ApplyInternal(internal)

		selection, warnings, err := d.resolve(ctx, connCfg, catalog, dcfg.Reliability.FailOnMissingStream)
		if err != nil {
			yield(Message{}, err)
			return
		}
		for _, w := range warnings {
			if !yield(logMessage("WARN", w), nil) {
				return
			}
		}

		mgr, err := state.NewManager(prior)
		if err != nil {
			yield(Message{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid prior state"))
			return
		}

		available := d.checkAvailability(ctx, log, selection, dcfg.Concurrency.SessionLimit)

		timer := metrics.NewEventTimer(d.cfg.Name, d.metrics)
		tasks := make([]reader.Task, 0, len(available))
		for _, sel := range available {
			tasks = append(tasks, d.task(sel, mgr, timer, log))
		}

		log.Info("starting read",
			zap.Int("streams", len(tasks)),
			zap.Int("skipped", len(selection)-len(available)),
			zap.Int("session_limit", dcfg.Concurrency.SessionLimit))

		r := reader.New(reader.Config{
			SessionLimit: dcfg.Concurrency.SessionLimit,
			QueueSize:    dcfg.Concurrency.QueueSize,
			CancelGrace:  dcfg.Timeouts.CancelGrace,
			Logger:       log,
			Metrics:      d.metrics,
		})
		items, stop := r.Run(ctx, tasks)
		defer stop()

		var fatal error
		sentinels := 0
		for it := range items {
			var msg Message
			switch it.Kind {
			case reader.KindRecord:
				msg = recordMessage(it.Record)
			case reader.KindStatus:
				msg = statusMessage(it.Stream, it.Status)
			case reader.KindState:
				msg = stateMessage(it.Stream, it.State)
			case reader.KindSentinel:
				sentinels++
				continue
			case reader.KindFatal:
				if fatal == nil {
					fatal = it.Err
				}
				continue
			}
			if !yield(msg, nil) {
				return
			}
		}

		log.Debug("read drained", zap.Int("sentinels", sentinels), zap.String("timing", timer.Report()))
		if fatal != nil {
			log.Error("read failed", zap.Error(fatal))
			yield(Message{}, fatal)
			return
		}
		log.Info("read complete", zap.Int("streams", sentinels))
	}
}

// resolve maps catalog entries to the source's streams, in catalog order.
func (d *Dispatcher) resolve(ctx context.Context, cfg config.ConnectorConfig, catalog *stream.Catalog, failOnMissing bool) ([]selected, []string, error) {
	if catalog == nil {
		return nil, nil, errors.New(errors.ErrorTypeValidation, "catalog is required")
	}
	if err := catalog.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid catalog")
	}

	streams, err := d.source.Streams(ctx, cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to list source streams")
	}
	byName := make(map[string]stream.Stream, len(streams))
	for _, s := range streams {
		byName[s.Name()] = s
	}

	var out []selected
	var warnings []string
	for _, cs := range catalog.Streams {
		s, ok := byName[cs.Name]
		if !ok {
			if failOnMissing {
				return nil, nil, errors.Newf(errors.ErrorTypeUnknownStream,
					"the requested stream %s was not found in the source", cs.Name).
					WithDetail("stream", cs.Name)
			}
			msg := fmt.Sprintf("the requested stream %s was not found in the source, skipping", cs.Name)
			d.logger.Warn(msg, zap.String("stream", cs.Name))
			warnings = append(warnings, msg)
			continue
		}
		out = append(out, selected{stream: s, configured: cs})
	}
	return out, warnings, nil
}

// checkAvailability probes streams concurrently and returns the available
// ones in their original order. A probe that errors counts as unavailable.
func (d *Dispatcher) checkAvailability(ctx context.Context, log *zap.Logger, selection []selected, limit int) []selected {
	ok := make([]bool, len(selection))
	g, gctx := errgroup.WithContext(ctx)
	if limit <= 0 || limit > maxAvailabilityChecks {
		limit = maxAvailabilityChecks
	}
	g.SetLimit(limit)

	for i, sel := range selection {
		checker, can := sel.stream.(stream.AvailabilityChecker)
		if !can {
			ok[i] = true
			continue
		}
		g.Go(func() error {
			name := sel.stream.Name()
			streamLog := log.With(zap.String("stream", name))
			available, reason, err := checker.CheckAvailability(gctx, streamLog)
			switch {
			case err != nil:
				streamLog.Warn("availability check failed, skipping stream", zap.Error(err))
			case !available:
				streamLog.Warn("stream is not available, skipping", zap.String("reason", reason))
			default:
				ok[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]selected, 0, len(selection))
	for i, sel := range selection {
		if ok[i] {
			out = append(out, sel)
		}
	}
	return out
}

// task builds the reader task of one stream. Incremental streams resume from
// their prior state, advance it per record and checkpoint it on completion.
func (d *Dispatcher) task(sel selected, mgr *state.Manager, timer *metrics.EventTimer, log *zap.Logger) reader.Task {
	s := sel.stream
	name := s.Name()

	cursorField := sel.configured.CursorField
	if cs, ok := s.(stream.CursorStream); ok && cursorField == "" {
		cursorField = cs.CursorField()
	}
	incremental := sel.configured.Incremental()

	t := reader.Task{Stream: name}
	if sp, ok := s.(stream.SessionProvider); ok {
		t.EnsureSession = sp.EnsureSession
	}

	t.Run = func(ctx context.Context, emit *reader.Emitter) (err error) {
		ctx = logger.ContextWithStream(ctx, name)
		ctx, ev := timer.StartEvent(ctx, "read "+name)
		defer func() { ev.FinishEvent(err) }()

		var prior stream.State
		if incremental {
			prior = mgr.Get(name)
		}

		for rec, rerr := range stream.ReadAll(ctx, s, prior) {
			if rerr != nil {
				return d.streamError(s, rerr, emit.Count(), log)
			}
			if err := emit.Record(rec); err != nil {
				return err
			}
			if incremental && cursorField != "" {
				mgr.Advance(name, cursorField, rec)
			}
		}

		if incremental {
			return emit.State(mgr.Get(name))
		}
		return nil
	}
	return t
}

// streamError returns a stream's read failure. The error is wrapped, with
// the cause chained, only when the stream supplies a display message for it.
func (d *Dispatcher) streamError(s stream.Stream, err error, emitted int64, log *zap.Logger) error {
	log.Error("stream read failed",
		zap.String("stream", s.Name()),
		zap.Int64("records_emitted", emitted),
		zap.Error(err))

	ed, ok := s.(stream.ErrorDisplayer)
	if !ok {
		return err
	}
	msg := ed.ErrorDisplayMessage(err)
	if msg == "" {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeStreamRead, fmt.Sprintf("stream %s failed", s.Name())).
		WithDetail("stream", s.Name()).
		WithDetail("records_emitted", emitted).
		WithDisplay(msg)
}
