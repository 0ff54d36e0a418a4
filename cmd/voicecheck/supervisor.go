package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicecheck/internal/analysis"
	"github.com/MrWong99/voicecheck/internal/config"
	"github.com/MrWong99/voicecheck/internal/observe"
	"github.com/MrWong99/voicecheck/pkg/audio"
)

// stopTimeout bounds how long a replaced or final analyzer may take to stop.
const stopTimeout = 5 * time.Second

// errNoAnalyzer is reported by the readiness check while no analyzer runs.
var errNoAnalyzer = errors.New("no analyzer running")

// finisher is implemented by sources that end on their own, like a WAV file.
type finisher interface {
	Done() <-chan struct{}
}

// supervisor owns the running analyzer. Sources are single-use, so applying
// a changed source or analysis config builds a fresh source and analyzer.
type supervisor struct {
	registry *config.Registry
	metrics  *observe.Metrics
	sink     analysis.Sink
	// onReset runs between stopping the old analyzer and starting one for
	// the reloaded config.
	onReset func(next *config.Config)

	reload chan *config.Config

	mu       sync.Mutex
	analyzer *analysis.Analyzer
	source   audio.Source
}

func newSupervisor(reg *config.Registry, m *observe.Metrics, sink analysis.Sink) *supervisor {
	return &supervisor{
		registry: reg,
		metrics:  m,
		sink:     sink,
		reload:   make(chan *config.Config, 1),
	}
}

// Reload schedules a rebuild with cfg. Only the latest pending config is kept.
func (s *supervisor) Reload(cfg *config.Config) {
	for {
		select {
		case s.reload <- cfg:
			return
		default:
		}
		select {
		case <-s.reload:
		default:
		}
	}
}

// Healthy reports the current analyzer's health.
func (s *supervisor) Healthy() error {
	s.mu.Lock()
	a := s.analyzer
	s.mu.Unlock()
	if a == nil {
		return errNoAnalyzer
	}
	return a.Healthy()
}

// Run starts an analyzer for cfg and keeps it running until ctx is done, the
// source finishes or the analyzer fails. A failed initial start is returned;
// a failed rebuild is logged and the supervisor waits for the next reload.
func (s *supervisor) Run(ctx context.Context, cfg *config.Config) error {
	if err := s.start(ctx, cfg); err != nil {
		return err
	}
	defer s.stop()

	for {
		var done, finished <-chan struct{}
		s.mu.Lock()
		if s.analyzer != nil {
			done = s.analyzer.Done()
			if f, ok := s.source.(finisher); ok {
				finished = f.Done()
			}
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case next := <-s.reload:
			s.stop()
			if s.onReset != nil {
				s.onReset(next)
			}
			if err := s.start(ctx, next); err != nil {
				slog.Error("voicecheck: analyzer restart failed; waiting for the next config change", "err", err)
			}
		case <-finished:
			slog.Info("voicecheck: source finished")
			return nil
		case <-done:
			s.mu.Lock()
			err := s.analyzer.Err()
			s.mu.Unlock()
			if err == nil {
				err = errors.New("worker exited")
			}
			return fmt.Errorf("analyzer stopped: %w", err)
		}
	}
}

func (s *supervisor) start(ctx context.Context, cfg *config.Config) error {
	src, err := s.registry.CreateSource(ctx, cfg.Source)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	a, err := analysis.New(cfg.Analysis.ToAnalysis(), src,
		analysis.WithSink(s.sink),
		analysis.WithMetrics(s.metrics),
	)
	if err != nil {
		_ = src.Close()
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = src.Close()
		return err
	}

	s.mu.Lock()
	s.analyzer = a
	s.source = src
	s.mu.Unlock()
	return nil
}

func (s *supervisor) stop() {
	s.mu.Lock()
	a := s.analyzer
	s.analyzer = nil
	s.source = nil
	s.mu.Unlock()
	if a == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := a.Stop(ctx); err != nil && !errors.Is(err, analysis.ErrNotRunning) {
		slog.Warn("voicecheck: analyzer stop incomplete", "err", err)
	}
}
