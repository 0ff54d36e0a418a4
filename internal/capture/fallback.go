package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voicecheck/internal/resilience"
	"github.com/MrWong99/voicecheck/pkg/audio"
)

// FallbackSource starts the first of several sources that opens successfully,
// for example arecord with ffmpeg as a backup. Each candidate runs behind the
// circuit breaker of its name; when the breakers are shared between fallback
// sources, a backend that keeps failing to start is skipped for a while.
type FallbackSource struct {
	group *resilience.FallbackGroup[audio.Source]
	all   []audio.Source

	mu     sync.Mutex
	active audio.Source
	name   string
	closed bool
}

var (
	_ audio.Source    = (*FallbackSource)(nil)
	_ audio.Describer = (*FallbackSource)(nil)
)

// NamedSource pairs a source with the name used in logs.
type NamedSource struct {
	Name   string
	Source audio.Source
}

// DefaultBackendBreaker is the breaker configuration for capture backends.
var DefaultBackendBreaker = resilience.CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute}

// NewFallbackSource returns a source trying each entry in order. breakers
// carries failure counts across fallback sources; nil gives this source
// private breakers.
func NewFallbackSource(breakers *resilience.Breakers, sources ...NamedSource) (*FallbackSource, error) {
	if len(sources) == 0 {
		return nil, errors.New("capture: fallback needs at least one source")
	}
	if breakers == nil {
		breakers = resilience.NewBreakers(DefaultBackendBreaker)
	}
	cfg := resilience.FallbackConfig{Breakers: breakers}
	fs := &FallbackSource{
		group: resilience.NewFallbackGroup(sources[0].Source, sources[0].Name, cfg),
	}
	fs.all = append(fs.all, sources[0].Source)
	for _, s := range sources[1:] {
		fs.group.AddFallback(s.Name, s.Source)
		fs.all = append(fs.all, s.Source)
	}
	return fs, nil
}

// Start starts the first source that opens. The error from each failed
// source is joined into the returned error when none succeeds.
func (fs *FallbackSource) Start(ctx context.Context, fn audio.FrameFunc) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return audio.ErrSourceClosed
	}
	if fs.active != nil {
		return fmt.Errorf("capture: %s: already started", fs.name)
	}
	var started audio.Source
	name, err := fs.group.Execute(func(src audio.Source) error {
		if err := src.Start(ctx, fn); err != nil {
			return err
		}
		started = src
		return nil
	})
	if err != nil {
		return fmt.Errorf("capture: no source could be started: %w", err)
	}
	fs.active, fs.name = started, name
	return nil
}

// Active returns the name of the source that was started, or "".
func (fs *FallbackSource) Active() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.name
}

// Describe names the candidates, or the running source once started.
func (fs *FallbackSource) Describe() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if d, ok := fs.active.(audio.Describer); ok {
		return d.Describe()
	}
	if fs.active != nil {
		return fs.name
	}
	return fmt.Sprintf("fallback %v", fs.group.Names())
}

// Close closes every candidate source.
func (fs *FallbackSource) Close() error {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return nil
	}
	fs.closed = true
	fs.mu.Unlock()

	var errs []error
	for _, s := range fs.all {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
