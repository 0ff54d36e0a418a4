// Package audio defines the frame type and the Frame Source contract used by
// the voicecheck analysis pipeline.
//
// The primary abstraction is [Source]: something that, once started, delivers
// fixed-size blocks of mono float samples to a [FrameFunc] on its own
// real-time goroutine. Concrete sources (a capture subprocess, a WAV file)
// live in internal/capture; this package only fixes the contract so that
// third-party capture backends can implement it.
package audio

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by [Source.Start] when the source has already
// been closed.
var ErrSourceClosed = errors.New("audio: source closed")

// FrameFunc receives one block of mono samples at the given sample rate.
//
// FrameFunc is invoked on the source's real-time goroutine. Implementations
// must return quickly: no blocking I/O, no logging, no synchronous waits. The
// samples slice is only valid for the duration of the call; receivers that
// keep the data must copy it.
//
// A Source never calls its FrameFunc concurrently with itself.
type FrameFunc func(samples []float32, sampleRate int)

// Source is a Frame Source: it captures audio and pushes it block by block to
// a [FrameFunc].
//
// Implementations must be safe to Close from a goroutine other than the one
// delivering frames.
type Source interface {
	// Start opens the underlying device (or file) and begins delivering frames
	// to fn on a background goroutine. It returns once delivery has been
	// armed, or with an error if the source cannot be opened or configured.
	// The supplied ctx bounds the delivery goroutine's lifetime.
	Start(ctx context.Context, fn FrameFunc) error

	// Close stops frame delivery and releases the device. After Close returns,
	// fn is not invoked again. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Describer is optionally implemented by sources that can report what they
// are reading from, for logs and startup output.
type Describer interface {
	Describe() string
}
