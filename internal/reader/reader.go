// Package reader runs stream-read tasks with bounded concurrency and
// multiplexes their output into a single bounded queue.
//
// Every scheduled stream pushes STARTED before any data, then its records
// and state in order, then COMPLETE or INCOMPLETE, then exactly one
// sentinel. When a task fails, the remaining tasks are cancelled, a
// KindFatal item carrying the task's error is queued, and no further task is
// started. The queue is closed once every started task has pushed its
// sentinel, so a consumer that drains until close sees everything that was
// produced. Cancelled tasks get Config.CancelGrace to wind down; tasks still
// running after that are abandoned, their later output is dropped and the
// queue is closed without their sentinels.
package reader

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/metrics"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// Task reads one stream.
type Task struct {
	Stream string
	// EnsureSession, when set, is called by the scheduler right before the
	// task starts. Its error fails the task.
	EnsureSession func(ctx context.Context) error
	// Run pushes the stream's output through the emitter. A non-nil error
	// marks the stream INCOMPLETE and stops the whole run.
	Run func(ctx context.Context, emit *Emitter) error
}

// Config configures a Reader.
type Config struct {
	// SessionLimit bounds the number of tasks in flight
	SessionLimit int
	// QueueSize is the capacity of the output queue
	QueueSize int
	// CancelGrace bounds the wait for cancelled tasks after a failure
	CancelGrace time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Collector
}

// Reader schedules tasks. A Reader may be reused for sequential runs; phase
// bookkeeping reflects the latest run.
type Reader struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	phases      map[string]Phase
	inFlight    int
	maxInFlight int
}

// New creates a reader, filling defaults for unset limits.
func New(cfg Config) *Reader {
	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = config.DefaultSessionLimit
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = config.DefaultQueueSize
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = config.DefaultCancelGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Reader{
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("component", "reader")),
		phases: make(map[string]Phase),
	}
}

// StreamStatus returns the phase of the named stream.
func (r *Reader) StreamStatus(name string) Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.phases[name]; ok {
		return p
	}
	return PhaseNotStarted
}

// MaxInFlight returns the highest number of tasks observed in flight.
func (r *Reader) MaxInFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInFlight
}

func (r *Reader) setPhase(name string, p Phase) {
	r.mu.Lock()
	r.phases[name] = p
	r.mu.Unlock()
}

// run is the state shared by the scheduler and the tasks of one Run call.
type run struct {
	r       *Reader
	out     chan Item
	abandon chan struct{}
	sem     *semaphore.Weighted
	done    chan taskResult

	abandonOnce sync.Once
	// mu guards closed; pushes hold it shared while sending on out
	mu     sync.RWMutex
	closed bool
}

type taskResult struct {
	stream string
	err    error
}

// Run starts scheduling tasks in order and returns the output queue. The
// queue is closed when the run is over. Cancelling ctx cancels every task
// and ends the run with a KindFatal item carrying ctx's error. The returned
// stop function abandons the run: it must be called when the consumer
// stops draining before the queue is closed, and is safe to call anytime.
func (r *Reader) Run(ctx context.Context, tasks []Task) (<-chan Item, func()) {
	r.mu.Lock()
	r.phases = make(map[string]Phase, len(tasks))
	r.inFlight, r.maxInFlight = 0, 0
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	ru := &run{
		r:       r,
		out:     make(chan Item, r.cfg.QueueSize),
		abandon: make(chan struct{}),
		sem:     semaphore.NewWeighted(int64(r.cfg.SessionLimit)),
		done:    make(chan taskResult, len(tasks)),
	}

	stop := func() {
		ru.abandonTasks()
		cancel()
	}

	go func() {
		defer ru.closeQueue()
		defer cancel()
		ru.schedule(runCtx, cancel, tasks)
	}()

	return ru.out, stop
}

// abandonTasks makes every pending and future push return without queueing.
func (ru *run) abandonTasks() {
	ru.abandonOnce.Do(func() { close(ru.abandon) })
}

// closeQueue closes the output queue. Tasks still running afterwards have
// their pushes dropped.
func (ru *run) closeQueue() {
	ru.mu.Lock()
	ru.closed = true
	close(ru.out)
	ru.mu.Unlock()
}

func (ru *run) schedule(ctx context.Context, cancel context.CancelFunc, tasks []Task) {
	r := ru.r
	backlog := tasks
	inFlight := 0
	ctxDone := ctx.Done()
	var fatal error

	// grace fires once cancelled tasks have had their time to wind down
	var grace *time.Timer
	var graceC <-chan time.Time
	defer func() {
		if grace != nil {
			grace.Stop()
		}
	}()

	fail := func(err error) {
		fatal = err
		cancel()
		ru.pushFinal(Item{Kind: KindFatal, Err: err})
		grace = time.NewTimer(r.cfg.CancelGrace)
		graceC = grace.C
	}

	for len(backlog) > 0 || inFlight > 0 {
		for fatal == nil && len(backlog) > 0 && ru.sem.TryAcquire(1) {
			t := backlog[0]
			backlog = backlog[1:]
			inFlight++
			ru.start(ctx, t)
		}
		if inFlight == 0 {
			break
		}

		select {
		case res := <-ru.done:
			inFlight--
			if res.err != nil && fatal == nil {
				r.logger.Error("stream failed, cancelling remaining streams",
					zap.String("stream", res.stream),
					zap.Int("in_flight", inFlight),
					zap.Int("backlog", len(backlog)),
					zap.Error(res.err))
				fail(res.err)
			}
		case <-ctxDone:
			ctxDone = nil
			if fatal == nil {
				r.logger.Warn("read cancelled", zap.Error(ctx.Err()))
				fail(ctx.Err())
			}
		case <-graceC:
			r.logger.Warn("streams did not stop after cancellation, abandoning them",
				zap.Int("in_flight", inFlight),
				zap.Duration("grace", r.cfg.CancelGrace))
			ru.abandonTasks()
			return
		case <-ru.abandon:
			return
		}
	}

	if len(backlog) > 0 {
		r.logger.Info("streams not started",
			zap.Int("count", len(backlog)),
			zap.String("first", backlog[0].Stream))
	}
}

// start pushes STARTED and launches the task. The semaphore is held until
// the task has pushed its sentinel.
func (ru *run) start(ctx context.Context, t Task) {
	r := ru.r

	var sessionErr error
	if t.EnsureSession != nil {
		if err := t.EnsureSession(ctx); err != nil {
			sessionErr = fmt.Errorf("ensuring session for stream %s: %w", t.Stream, err)
		}
	}

	r.mu.Lock()
	r.phases[t.Stream] = PhaseRunning
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.mu.Unlock()

	r.cfg.Metrics.StreamStarted(t.Stream)
	ru.pushFinal(Item{Kind: KindStatus, Stream: t.Stream, Status: stream.StatusStarted})
	r.logger.Debug("stream started", zap.String("stream", t.Stream))

	go ru.execute(ctx, t, sessionErr)
}

func (ru *run) execute(ctx context.Context, t Task, sessionErr error) {
	r := ru.r
	var err error

	defer func() {
		ru.pushFinal(Item{Kind: KindSentinel, Stream: t.Stream})

		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()

		ru.sem.Release(1)
		ru.done <- taskResult{stream: t.Stream, err: err}
	}()

	if sessionErr != nil {
		err = sessionErr
	} else {
		err = ru.call(ctx, t)
	}

	status, phase := stream.StatusComplete, PhaseComplete
	if err != nil {
		status, phase = stream.StatusIncomplete, PhaseIncomplete
	}
	r.setPhase(t.Stream, phase)
	r.cfg.Metrics.StreamFinished(t.Stream, string(status))
	ru.pushFinal(Item{Kind: KindStatus, Stream: t.Stream, Status: status})
}

// call runs the task, turning a panic into an error.
func (ru *run) call(ctx context.Context, t Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			ru.r.logger.Error("stream task panicked",
				zap.String("stream", t.Stream),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("stream %s panicked: %v", t.Stream, p)
		}
	}()
	return t.Run(ctx, &Emitter{ctx: ctx, stream: t.Stream, run: ru})
}

// push queues a data item. It fails once ctx is cancelled and the queue is
// full; an item that fits is always queued. After the run is abandoned or
// the queue is closed, the item is dropped.
func (ru *run) push(ctx context.Context, it Item) error {
	ru.mu.RLock()
	defer ru.mu.RUnlock()
	if ru.closed {
		return context.Canceled
	}
	select {
	case ru.out <- it:
		return nil
	default:
	}
	select {
	case ru.out <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-ru.abandon:
		return context.Canceled
	}
}

// pushFinal queues an item that must not be lost while a consumer drains.
func (ru *run) pushFinal(it Item) {
	ru.mu.RLock()
	defer ru.mu.RUnlock()
	if ru.closed {
		return
	}
	select {
	case ru.out <- it:
	case <-ru.abandon:
	}
}

// Emitter is a task's handle on the output queue.
type Emitter struct {
	ctx     context.Context
	stream  string
	run     *run
	running bool
	count   int64
}

// Record queues a record, preceded by RUNNING for the stream's first one.
// A returned error means the run was cancelled and the task should return.
func (e *Emitter) Record(rec stream.Record) error {
	if !e.running {
		e.running = true
		if err := e.run.push(e.ctx, Item{Kind: KindStatus, Stream: e.stream, Status: stream.StatusRunning}); err != nil {
			return err
		}
	}
	if rec.Stream == "" {
		rec.Stream = e.stream
	}
	if err := e.run.push(e.ctx, Item{Kind: KindRecord, Stream: e.stream, Record: rec}); err != nil {
		return err
	}
	e.count++
	e.run.r.cfg.Metrics.RecordEmitted(e.stream)
	e.run.r.cfg.Metrics.SetQueueDepth(len(e.run.out))
	return nil
}

// State queues a state checkpoint for the stream.
func (e *Emitter) State(st stream.State) error {
	return e.run.push(e.ctx, Item{Kind: KindState, Stream: e.stream, State: st})
}

// Count returns the number of records queued so far.
func (e *Emitter) Count() int64 { return e.count }
