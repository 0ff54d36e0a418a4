package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// backend in a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Breakers, when set, supplies the breaker for each entry by name so
	// failure counts carry over to later groups built from the same set.
	// CircuitBreaker is ignored in that case.
	Breakers *Breakers
}

// Breakers is a set of named circuit breakers that outlives the
// [FallbackGroup] values using it.
type Breakers struct {
	cfg CircuitBreakerConfig

	mu sync.Mutex
	m  map[string]*CircuitBreaker
}

// NewBreakers returns an empty set creating breakers from cfg on first use.
func NewBreakers(cfg CircuitBreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, m: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for name, creating it if needed.
func (b *Breakers) Get(name string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.m[name]
	if !ok {
		cfg := b.cfg
		cfg.Name = name
		cb = NewCircuitBreaker(cfg)
		b.m[name] = cb
	}
	return cb
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered list of interchangeable backends, such as
// capture commands that can all read the same device. [FallbackGroup.Execute]
// tries them in registration order, skipping backends whose breaker is open.
//
// Entries must be registered before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a backend tried after all previously added ones.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	var cb *CircuitBreaker
	if fg.cfg.Breakers != nil {
		cb = fg.cfg.Breakers.Get(name)
	} else {
		cbCfg := fg.cfg.CircuitBreaker
		cbCfg.Name = name
		cb = NewCircuitBreaker(cbCfg)
	}
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: cb,
	})
}

// Names returns the backend names in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Execute calls fn with each backend in order until one succeeds and returns
// that backend's name. If every backend fails it returns [ErrAllFailed]
// joined with each backend's error.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) (string, error) {
	errs := []error{ErrAllFailed}
	for i := range fg.entries {
		entry := &fg.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return entry.name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping backend (circuit open)", "backend", entry.name)
		} else {
			slog.Warn("resilience: backend failed, trying next",
				"backend", entry.name, "err", err)
		}
	}
	return "", errors.Join(errs...)
}
