// Package mock provides an in-memory mock implementation of [audio.Source] for
// use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts, and it exposes exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	_ = src.Start(ctx, queue.Push)
//	src.Emit(samples, 48000) // delivers a frame as the real-time callback would
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Source is a mock implementation of [audio.Source].
// Set the exported error fields before use; inspect the CallCount* fields after.
type Source struct {
	mu sync.Mutex

	// StartError is returned by [Source.Start]. When non-nil the callback is
	// not retained.
	StartError error

	// CloseError is returned by [Source.Close].
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// EmittedFrames counts frames delivered through Emit while started.
	EmittedFrames int

	fn      audio.FrameFunc
	started bool
	// emitMu serialises Emit so the callback is never invoked concurrently,
	// matching the Source contract.
	emitMu sync.Mutex
}

// Start implements [audio.Source]. Records the call and retains fn unless
// StartError is set.
func (s *Source) Start(_ context.Context, fn audio.FrameFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return s.StartError
	}
	s.fn = fn
	s.started = true
	return nil
}

// Close implements [audio.Source]. Records the call, drops the retained
// callback and returns CloseError.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.fn = nil
	s.started = false
	return s.CloseError
}

// Started reports whether Start succeeded and Close has not been called since.
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Emit delivers samples to the registered callback exactly as a real-time
// capture goroutine would. It returns false if the source is not started.
func (s *Source) Emit(samples []float32, sampleRate int) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	fn := s.fn
	if fn != nil {
		s.EmittedFrames++
	}
	s.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(samples, sampleRate)
	return true
}
