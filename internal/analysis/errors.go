package analysis

import "errors"

var (
	// ErrSourceUnavailable is returned by [Analyzer.Start] when the frame
	// source cannot be opened or configured. It is fatal to starting the
	// pipeline and is not retried.
	ErrSourceUnavailable = errors.New("analysis: frame source unavailable")

	// ErrQueueTimeout is returned by [Queue.Dequeue] when no frame arrived
	// within the poll interval. It is the worker's idle tick, not a failure.
	ErrQueueTimeout = errors.New("analysis: no frame within poll interval")

	// ErrQueueClosed is returned by [Queue.Dequeue] once the queue has been
	// closed and drained. The worker treats it as fatal.
	ErrQueueClosed = errors.New("analysis: frame queue closed")

	// ErrEmptyFrame is returned by [Engine.Compute] for a frame without
	// samples. It is resolved by policy: the frame is skipped and the
	// displayed status stays unchanged.
	ErrEmptyFrame = errors.New("analysis: empty frame")

	// ErrNonFiniteSample is returned by [Engine.Compute] when a frame contains
	// NaN or infinite samples.
	ErrNonFiniteSample = errors.New("analysis: non-finite sample")

	// ErrAlreadyRunning is returned by [Analyzer.Start] when the analyzer is
	// not idle.
	ErrAlreadyRunning = errors.New("analysis: analyzer already running")

	// ErrNotRunning is returned by [Analyzer.Stop] when there is nothing to stop.
	ErrNotRunning = errors.New("analysis: analyzer not running")

	// ErrJoinTimeout is returned by [Analyzer.Stop] when the worker did not
	// exit within the configured join timeout. The source is released anyway.
	ErrJoinTimeout = errors.New("analysis: worker did not exit in time")
)

// policyResolved reports whether err is a metric computation failure that is
// settled by policy default (skip the frame) rather than reported.
func policyResolved(err error) bool {
	return errors.Is(err, ErrEmptyFrame) || errors.Is(err, ErrNonFiniteSample)
}
