package analysis

import (
	"sync"
	"sync/atomic"
)

// Sink receives the pipeline's output. Both methods are called from the
// analysis worker and must not block; sinks that present on another thread
// should be wrapped in an [AsyncSink].
type Sink interface {
	// OnMetric is called for every processed frame that did not change the
	// displayed status, with the current status and meter value.
	OnMetric(status Label, value float64)

	// OnStatusChange is called when the displayed status changes.
	OnStatusChange(status Label, value float64)
}

// SinkFuncs adapts a pair of functions to [Sink]. Nil fields are skipped.
type SinkFuncs struct {
	Metric       func(status Label, value float64)
	StatusChange func(status Label, value float64)
}

// OnMetric implements [Sink].
func (f SinkFuncs) OnMetric(status Label, value float64) {
	if f.Metric != nil {
		f.Metric(status, value)
	}
}

// OnStatusChange implements [Sink].
func (f SinkFuncs) OnStatusChange(status Label, value float64) {
	if f.StatusChange != nil {
		f.StatusChange(status, value)
	}
}

// MultiSink fans notifications out to every sink in order.
type MultiSink []Sink

// OnMetric implements [Sink].
func (m MultiSink) OnMetric(status Label, value float64) {
	for _, s := range m {
		s.OnMetric(status, value)
	}
}

// OnStatusChange implements [Sink].
func (m MultiSink) OnStatusChange(status Label, value float64) {
	for _, s := range m {
		s.OnStatusChange(status, value)
	}
}

type sinkEvent struct {
	status Label
	value  float64
}

// defaultStatusBuffer is the number of undelivered status changes an
// [AsyncSink] keeps before it starts dropping the oldest.
const defaultStatusBuffer = 16

// AsyncSinkOption configures an [AsyncSink].
type AsyncSinkOption func(*AsyncSink)

// WithStatusBuffer sets how many undelivered status changes are kept.
func WithStatusBuffer(n int) AsyncSinkOption {
	return func(a *AsyncSink) {
		if n > 0 {
			a.maxChanges = n
		}
	}
}

// AsyncSink marshals notifications onto its own goroutine so the worker never
// waits on presentation. Metric updates coalesce: only the latest one is
// delivered. Status changes are delivered in order from a bounded list; when
// the list is full the oldest change is discarded.
type AsyncSink struct {
	next       Sink
	maxChanges int

	mu        sync.Mutex
	changes   []sinkEvent
	metric    sinkEvent
	hasMetric bool

	droppedChanges atomic.Int64

	notify    chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewAsyncSink starts a delivery goroutine forwarding to next. Call
// [AsyncSink.Close] to stop it.
func NewAsyncSink(next Sink, opts ...AsyncSinkOption) *AsyncSink {
	a := &AsyncSink{
		next:       next,
		maxChanges: defaultStatusBuffer,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	go a.run()
	return a
}

// OnMetric implements [Sink]. It replaces any pending metric update.
func (a *AsyncSink) OnMetric(status Label, value float64) {
	a.mu.Lock()
	a.metric = sinkEvent{status: status, value: value}
	a.hasMetric = true
	a.mu.Unlock()
	a.signal()
}

// OnStatusChange implements [Sink]. A pending metric update is superseded by
// the change.
func (a *AsyncSink) OnStatusChange(status Label, value float64) {
	a.mu.Lock()
	if len(a.changes) >= a.maxChanges {
		a.changes = a.changes[1:]
		a.droppedChanges.Add(1)
	}
	a.changes = append(a.changes, sinkEvent{status: status, value: value})
	a.hasMetric = false
	a.mu.Unlock()
	a.signal()
}

// DroppedChanges returns how many status changes were discarded because the
// consumer fell behind.
func (a *AsyncSink) DroppedChanges() int64 { return a.droppedChanges.Load() }

// Close stops the delivery goroutine after flushing pending notifications.
// It is safe to call more than once.
func (a *AsyncSink) Close() {
	a.closeOnce.Do(func() { close(a.done) })
	<-a.stopped
}

func (a *AsyncSink) signal() {
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

func (a *AsyncSink) run() {
	defer close(a.stopped)
	for {
		select {
		case <-a.notify:
			a.flush()
		case <-a.done:
			a.flush()
			return
		}
	}
}

func (a *AsyncSink) flush() {
	a.mu.Lock()
	changes := a.changes
	a.changes = nil
	metric, hasMetric := a.metric, a.hasMetric
	a.hasMetric = false
	a.mu.Unlock()

	for _, c := range changes {
		a.next.OnStatusChange(c.status, c.value)
	}
	if hasMetric {
		a.next.OnMetric(metric.status, metric.value)
	}
}
