package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/voicecheck/internal/capture"
	"github.com/MrWong99/voicecheck/internal/resilience"
	"github.com/MrWong99/voicecheck/pkg/audio"
)

// ErrSourceNotRegistered is returned by [Registry.CreateSource] when no
// factory has been registered under the requested source name.
var ErrSourceNotRegistered = errors.New("config: source not registered")

// SourceFactory builds an unstarted [audio.Source] from its configuration.
type SourceFactory func(ctx context.Context, cfg SourceConfig) (audio.Source, error)

// Registry maps source names to their constructor functions. It is safe for
// concurrent use.
//
// The registry also owns one circuit breaker per capture backend. Fallback
// sources built by the auto factory share them, so a backend that keeps
// failing is skipped across analyzer rebuilds.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]SourceFactory

	breakers *resilience.Breakers
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	r := &Registry{sources: make(map[string]SourceFactory)}
	cfg := capture.DefaultBackendBreaker
	cfg.OnStateChange = r.logBreaker
	r.breakers = resilience.NewBreakers(cfg)
	return r
}

// Breakers returns the per-backend circuit breakers used by the auto source.
func (r *Registry) Breakers() *resilience.Breakers { return r.breakers }

func (r *Registry) logBreaker(name string, from, to resilience.State) {
	attrs := []any{"backend", name, "from", from.String(), "to", to.String()}
	if to == resilience.StateOpen {
		attrs = append(attrs, "err", r.breakers.Get(name).LastError())
	}
	slog.Info("config: capture backend breaker changed", attrs...)
}

// NewDefaultRegistry returns a registry with the built-in sources: arecord,
// ffmpeg, file and auto.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterSource(SourceArecord, backendFactory(func(SourceConfig) capture.Backend {
		return capture.Arecord()
	}))
	r.RegisterSource(SourceFFmpeg, backendFactory(func(cfg SourceConfig) capture.Backend {
		return capture.FFmpeg(cfg.Command)
	}))
	r.RegisterSource(SourceFile, fileFactory)
	r.RegisterSource(SourceAuto, r.autoFactory)
	return r
}

// RegisterSource registers a source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CreateSource instantiates the source registered under cfg.Name.
// Returns [ErrSourceNotRegistered] if no factory has been registered for that
// name.
func (r *Registry) CreateSource(ctx context.Context, cfg SourceConfig) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotRegistered, cfg.Name)
	}
	return factory(ctx, cfg)
}

func sourceFormat(cfg SourceConfig) audio.Format {
	return audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
}

// backendFactory adapts a capture backend into a factory that resolves the
// configured device before building the command.
func backendFactory(backend func(SourceConfig) capture.Backend) SourceFactory {
	return func(ctx context.Context, cfg SourceConfig) (audio.Source, error) {
		b := backend(cfg)
		if cfg.Command != "" {
			b.Command = cfg.Command
		}
		device, err := capture.ResolveDevice(ctx, b, cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("config: source %s: %w", cfg.Name, err)
		}
		return capture.NewBackendSource(b, device, sourceFormat(cfg), cfg.FrameSize)
	}
}

func fileFactory(_ context.Context, cfg SourceConfig) (audio.Source, error) {
	return capture.NewFileSource(cfg.Path, cfg.FrameSize, cfg.Realtime)
}

// autoFactory builds a fallback source over cfg.Fallback. A candidate that
// cannot even be constructed (for example an unmatched device) is skipped.
func (r *Registry) autoFactory(ctx context.Context, cfg SourceConfig) (audio.Source, error) {
	var (
		candidates []capture.NamedSource
		errs       []error
	)
	for _, name := range cfg.Fallback {
		if name == SourceAuto {
			continue
		}
		sub := cfg
		sub.Name = name
		src, err := r.CreateSource(ctx, sub)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		candidates = append(candidates, capture.NamedSource{Name: name, Source: src})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("config: source auto: no usable candidate: %w", errors.Join(errs...))
	}
	return capture.NewFallbackSource(r.breakers, candidates...)
}
