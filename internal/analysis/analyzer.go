package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voicecheck/internal/observe"
	"github.com/MrWong99/voicecheck/internal/resilience"
	"github.com/MrWong99/voicecheck/pkg/audio"
)

// State is the lifecycle state of an [Analyzer].
type State int

const (
	// StateIdle means no worker is running and the source is released.
	StateIdle State = iota

	// StateRunning means the worker is consuming frames from the source.
	StateRunning

	// StateStopping means Stop is joining the worker and releasing the source.
	StateStopping

	// StateStarting means Start is waiting for the source to arm.
	StateStarting
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStarting:
		return "starting"
	default:
		return "unknown"
	}
}

// errWorkerPanic marks a recovered panic inside the worker loop.
var errWorkerPanic = errors.New("analysis: panic while processing frame")

// ErrStalled is reported by [Analyzer.Healthy] while the source delivers no
// frames.
var ErrStalled = errors.New("analysis: frame source stalled")

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithSink sets the status sink. The default discards all notifications.
func WithSink(s Sink) Option {
	return func(a *Analyzer) { a.sink = s }
}

// WithMetrics sets the metric instruments. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithEngineOptions passes options to the [Engine] of every run.
func WithEngineOptions(opts ...EngineOption) Option {
	return func(a *Analyzer) { a.engineOpts = append(a.engineOpts, opts...) }
}

// Analyzer owns one frame source and runs the analysis worker for it.
//
// Its lifecycle is Idle → Starting → Running → Stopping → Idle. [Analyzer.Start]
// spawns the worker and arms the source; [Analyzer.Stop] signals the worker,
// joins it within the configured timeout and then releases the source. A Stop
// issued while the source is still arming waits for Start to settle first. An analyzer can
// be started again after it has stopped; every run begins with fresh debounce
// state and a fresh noise profile.
//
// All methods are safe for concurrent use.
type Analyzer struct {
	cfg        Config
	source     audio.Source
	sink       Sink
	metrics    *observe.Metrics
	engineOpts []EngineOption

	mu      sync.Mutex
	state   State
	run     *run
	lastErr error
}

// run is the state of one Start/Stop cycle. Everything but the atomics is
// owned by the worker goroutine.
type run struct {
	ctx     context.Context
	queue   *Queue
	session *Session
	breaker *resilience.CircuitBreaker

	stop  chan struct{}
	done  chan struct{}
	armed chan struct{} // closed once Start has settled either way
	err  error // written by the worker before done is closed

	stalled     atomic.Bool
	failing     bool
	lastValue   float64
	lastDropped int64
}

// New creates an idle analyzer reading from source. It returns an error if
// cfg is invalid.
func New(cfg Config, source audio.Source, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("analysis: invalid config: %w", err)
	}
	if source == nil {
		return nil, errors.New("analysis: source must not be nil")
	}
	a := &Analyzer{
		cfg:    cfg,
		source: source,
		sink:   SinkFuncs{},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a, nil
}

// State returns the lifecycle state.
func (a *Analyzer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Config returns the analyzer's configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// Start spawns the worker and arms the source. If the source cannot be
// started the worker is torn down again, the analyzer returns to idle and the
// error wraps [ErrSourceUnavailable].
func (a *Analyzer) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	r := &run{
		ctx:     context.WithoutCancel(ctx),
		queue:   NewQueue(a.cfg.QueueSize, a.cfg.DropPolicy),
		session: NewSession(a.cfg, a.engineOpts...),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		armed:   make(chan struct{}),
	}
	if a.cfg.MaxConsecutiveFailures > 0 {
		r.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "analysis-worker",
			MaxFailures:  a.cfg.MaxConsecutiveFailures,
			ResetTimeout: 24 * time.Hour,
		})
	}
	a.state = StateStarting
	a.run = r
	a.lastErr = nil
	a.mu.Unlock()
	defer close(r.armed)

	ctx, span := observe.StartSpan(ctx, "analysis.start",
		trace.WithAttributes(attribute.String("mode", string(a.cfg.Mode))))
	defer span.End()
	log := observe.Logger(ctx)

	go a.work(r)

	if err := a.source.Start(ctx, r.queue.Push); err != nil {
		close(r.stop)
		r.queue.Close()
		<-r.done

		a.mu.Lock()
		a.state = StateIdle
		a.run = nil
		a.mu.Unlock()

		err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		observe.FailSpan(span, err, "source unavailable")
		log.Error("analysis: failed to start frame source", "err", err)
		return err
	}

	a.metrics.ActiveAnalyzers.Add(r.ctx, 1)
	a.mu.Lock()
	a.state = StateRunning
	a.mu.Unlock()

	attrs := []any{"mode", a.cfg.Mode, "queue_size", a.cfg.QueueSize, "drop_policy", a.cfg.DropPolicy}
	if d, ok := a.source.(audio.Describer); ok {
		attrs = append(attrs, "source", d.Describe())
	}
	log.Info("analysis: started", attrs...)
	return nil
}

// Stop signals the worker, waits for it up to the join timeout (or until ctx
// is done) and then closes the source. The source is released even when the
// join times out, in which case the returned error wraps [ErrJoinTimeout].
func (a *Analyzer) Stop(ctx context.Context) error {
	a.mu.Lock()
	for a.state == StateStarting {
		armed := a.run.armed
		a.mu.Unlock()
		select {
		case <-armed:
		case <-ctx.Done():
			return fmt.Errorf("analysis: waiting for start: %w", ctx.Err())
		}
		a.mu.Lock()
	}
	if a.state != StateRunning {
		a.mu.Unlock()
		return ErrNotRunning
	}
	a.state = StateStopping
	r := a.run
	a.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "analysis.stop")
	defer span.End()
	log := observe.Logger(ctx)

	close(r.stop)
	r.queue.Close()

	var errs []error
	joined := false
	timer := time.NewTimer(a.cfg.JoinTimeout)
	select {
	case <-r.done:
		joined = true
	case <-timer.C:
		errs = append(errs, ErrJoinTimeout)
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("%w: %w", ErrJoinTimeout, ctx.Err()))
	}
	timer.Stop()

	if err := a.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("analysis: close source: %w", err))
	}
	a.metrics.ActiveAnalyzers.Add(r.ctx, -1)

	a.mu.Lock()
	a.state = StateIdle
	a.run = nil
	if joined {
		a.lastErr = r.err
	}
	a.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		observe.FailSpan(span, err, "stop incomplete")
		log.Warn("analysis: stopped with errors", "err", err)
	} else {
		log.Info("analysis: stopped", "dropped_frames", r.queue.Dropped())
	}
	return err
}

// Done returns a channel that is closed when the current run's worker exits,
// either after Stop or on a fatal error. When idle it returns a closed
// channel.
func (a *Analyzer) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.run.done
}

// Err returns the fatal error that ended the current or last run, if any.
func (a *Analyzer) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run != nil {
		select {
		case <-a.run.done:
			return a.run.err
		default:
			return nil
		}
	}
	return a.lastErr
}

// Healthy returns nil while the analyzer is running, its worker is alive and
// the source is delivering frames.
func (a *Analyzer) Healthy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateRunning || a.run == nil {
		return fmt.Errorf("analysis: analyzer is %s", a.state)
	}
	select {
	case <-a.run.done:
		if a.run.err != nil {
			return a.run.err
		}
		return errors.New("analysis: worker exited")
	default:
	}
	if a.run.stalled.Load() {
		return ErrStalled
	}
	return nil
}

// Dropped returns the number of frames the current run lost to overflow.
func (a *Analyzer) Dropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run == nil {
		return 0
	}
	return a.run.queue.Dropped()
}

// work is the analysis worker. It is the only goroutine touching the run's
// session.
func (a *Analyzer) work(r *run) {
	defer close(r.done)

	lastFrame := time.Now()
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		f, err := r.queue.Dequeue(a.cfg.PollInterval)
		switch {
		case errors.Is(err, ErrQueueTimeout):
			a.checkStall(r, time.Since(lastFrame))
			continue
		case err != nil:
			select {
			case <-r.stop:
				return
			default:
			}
			r.err = fmt.Errorf("analysis: worker: %w", err)
			slog.Error("analysis: worker exiting", "err", r.err)
			return
		}

		lastFrame = time.Now()
		if r.stalled.CompareAndSwap(true, false) {
			slog.Info("analysis: frame source resumed")
		}
		a.recordDrops(r)

		if fatal := a.handle(r, f); fatal != nil {
			r.err = fatal
			slog.Error("analysis: worker exiting", "err", fatal)
			return
		}
	}
}

// checkStall logs once per stall when the source has been silent for longer
// than the stall timeout.
func (a *Analyzer) checkStall(r *run, idle time.Duration) {
	if a.cfg.StallTimeout <= 0 || idle < a.cfg.StallTimeout {
		return
	}
	if r.stalled.CompareAndSwap(false, true) {
		a.metrics.SourceStalls.Add(r.ctx, 1)
		slog.Warn("analysis: frame source stalled", "idle", idle.Round(time.Millisecond))
	}
}

func (a *Analyzer) recordDrops(r *run) {
	d := r.queue.Dropped()
	if d > r.lastDropped {
		a.metrics.FramesDropped.Add(r.ctx, d-r.lastDropped)
		slog.Debug("analysis: frames dropped", "total", d)
		r.lastDropped = d
	}
}

// handle processes one frame. It returns a non-nil error only when the worker
// must exit.
func (a *Analyzer) handle(r *run, f audio.AudioFrame) error {
	start := time.Now()
	var skipped bool
	exec := func() error {
		err := a.process(r, f)
		if policyResolved(err) {
			skipped = true
			return nil
		}
		return err
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(exec)
	} else {
		err = exec()
	}

	mode := string(a.cfg.Mode)
	switch {
	case err == nil && skipped:
		a.metrics.RecordFrame(r.ctx, mode, "skipped", 0)
		a.notify(r, false, r.session.Status())
		return nil
	case err == nil:
		a.metrics.RecordFrame(r.ctx, mode, "ok", time.Since(start).Seconds())
		return nil
	}

	a.metrics.RecordFrame(r.ctx, mode, "error", 0)
	kind := "error"
	if errors.Is(err, errWorkerPanic) {
		kind = "panic"
	}
	a.metrics.RecordWorkerFailure(r.ctx, kind)

	if r.breaker != nil && r.breaker.State() == resilience.StateOpen {
		return fmt.Errorf("analysis: %d consecutive frame failures: %w", a.cfg.MaxConsecutiveFailures, err)
	}
	if !r.failing {
		r.failing = true
		slog.Error("analysis: frame processing failed", "kind", kind, "err", err)
		a.notify(r, true, Error)
	}
	return nil
}

// process runs the session and the sink notification for f, converting a
// panic into an error.
func (a *Analyzer) process(r *run, f audio.AudioFrame) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", errWorkerPanic, p)
		}
	}()

	res, err := r.session.Process(f)
	if err != nil {
		return err
	}
	r.lastValue = res.Value
	a.metrics.Level.Record(r.ctx, res.Value)

	switch {
	case r.failing:
		r.failing = false
		slog.Info("analysis: frame processing recovered", "status", res.Decision.Status)
		a.sink.OnStatusChange(res.Decision.Status, res.Value)
	case res.Decision.Committed:
		slog.Debug("analysis: status changed",
			"from", res.Decision.Previous, "to", res.Decision.Status, "value", res.Value, "at", res.At)
		a.metrics.RecordStatusChange(r.ctx, res.Decision.Status.String())
		a.sink.OnStatusChange(res.Decision.Status, res.Value)
	default:
		a.sink.OnMetric(res.Decision.Status, res.Value)
	}
	return nil
}

// notify delivers a notification outside the guarded frame path. A panicking
// sink is logged and otherwise ignored.
func (a *Analyzer) notify(r *run, change bool, status Label) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("analysis: sink panicked", "panic", p)
		}
	}()
	if change {
		a.sink.OnStatusChange(status, r.lastValue)
		return
	}
	a.sink.OnMetric(status, r.lastValue)
}
