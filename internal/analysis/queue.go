package analysis

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

// Queue is the bounded hand-off buffer between a real-time frame source and
// the analysis worker. It is designed for exactly one producer and one
// consumer.
//
// The producer side ([Queue.Enqueue], [Queue.Push]) never blocks. When the
// queue is full, the configured [DropPolicy] decides which frame is lost.
// The consumer side ([Queue.Dequeue]) blocks up to a timeout.
type Queue struct {
	ch     chan audio.AudioFrame
	policy DropPolicy

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	dropped atomic.Int64

	// samplesIn counts every sample handed to Push, dropped or not, so that
	// frame timestamps track stream time even under queue pressure.
	samplesIn atomic.Int64
}

// NewQueue creates a queue holding at most size frames. A size below 1 is
// treated as 1; an unknown policy falls back to [DropOldest].
func NewQueue(size int, policy DropPolicy) *Queue {
	if size < 1 {
		size = 1
	}
	if !policy.IsValid() {
		policy = DropOldest
	}
	return &Queue{
		ch:     make(chan audio.AudioFrame, size),
		policy: policy,
		done:   make(chan struct{}),
	}
}

// Enqueue adds f without blocking. It reports whether f was accepted; a false
// return means f itself was discarded (full queue under [DropNewest], or a
// closed queue). Under [DropOldest] the head of the queue is evicted instead
// and f is accepted.
func (q *Queue) Enqueue(f audio.AudioFrame) bool {
	if q.closed.Load() {
		return false
	}

	select {
	case q.ch <- f:
		return true
	default:
	}

	if q.policy == DropNewest {
		q.dropped.Add(1)
		return false
	}

	// Evict one frame, then retry once. If the consumer raced us and drained
	// the head, the eviction finds nothing and the retry succeeds.
	select {
	case <-q.ch:
		q.dropped.Add(1)
	default:
	}
	select {
	case q.ch <- f:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Push is the real-time entry point with the [audio.FrameFunc] signature. It
// copies samples into a fresh frame stamped with the current stream time and
// enqueues it. Push never blocks and never panics.
func (q *Queue) Push(samples []float32, sampleRate int) {
	defer func() {
		// Failures on the real-time side are dropped silently.
		_ = recover()
	}()

	n := int64(len(samples))
	offset := q.samplesIn.Add(n) - n
	if q.closed.Load() {
		return
	}

	buf := make([]float32, len(samples))
	copy(buf, samples)
	q.Enqueue(audio.AudioFrame{
		Samples:    buf,
		SampleRate: sampleRate,
		Timestamp:  audio.SamplesDuration(offset, sampleRate),
	})
}

// Dequeue waits up to timeout for the next frame. It returns [ErrQueueTimeout]
// if nothing arrived and [ErrQueueClosed] once the queue has been closed and
// all buffered frames have been consumed.
func (q *Queue) Dequeue(timeout time.Duration) (audio.AudioFrame, error) {
	// Buffered frames win over the close signal.
	select {
	case f := <-q.ch:
		return f, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-q.ch:
		return f, nil
	case <-q.done:
		select {
		case f := <-q.ch:
			return f, nil
		default:
			return audio.AudioFrame{}, ErrQueueClosed
		}
	case <-timer.C:
		return audio.AudioFrame{}, ErrQueueTimeout
	}
}

// Close marks the queue closed. Subsequent enqueues are silent no-ops and a
// blocked Dequeue wakes up. Close is idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
}

// Len returns the number of frames currently buffered.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped returns the number of frames lost to overflow since creation.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }
