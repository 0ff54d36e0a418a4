package analysis

import (
	"time"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

// Result is the outcome of processing one frame through a [Session].
type Result struct {
	Metrics  FrameMetrics
	Raw      Verdict
	Decision Decision

	// Value is the continuous meter value for the sink: dBFS, or int RMS in
	// [ModeRMS].
	Value float64

	// At is the stream time of the frame.
	At time.Duration
}

// Session chains the metric engine, the classifier pipeline and the debouncer
// for one stream. It processes frames synchronously and is shared by the live
// [Analyzer] worker and offline file analysis.
//
// A Session is not safe for concurrent use.
type Session struct {
	cfg       Config
	engine    *Engine
	pipeline  *Pipeline
	debouncer *Debouncer
}

// NewSession builds a session from cfg. The caller is expected to have
// validated cfg.
func NewSession(cfg Config, opts ...EngineOption) *Session {
	return &Session{
		cfg:       cfg,
		engine:    NewEngine(cfg, opts...),
		pipeline:  NewPipeline(cfg),
		debouncer: NewDebouncer(cfg),
	}
}

// Process computes, classifies and debounces f. Metric failures are returned
// unchanged; [policyResolved] errors leave the debounce state untouched.
func (s *Session) Process(f audio.AudioFrame) (Result, error) {
	m, err := s.engine.Compute(f)
	if err != nil {
		return Result{At: f.Timestamp}, err
	}
	raw := s.pipeline.Classify(m, f.Timestamp)
	dec := s.debouncer.Observe(raw, f.Timestamp)
	return Result{
		Metrics:  m,
		Raw:      raw,
		Decision: dec,
		Value:    s.cfg.meterValue(m),
		At:       f.Timestamp,
	}, nil
}

// Status returns the displayed status.
func (s *Session) Status() Label { return s.debouncer.Current() }

// Engine exposes the session's metric engine.
func (s *Session) Engine() *Engine { return s.engine }

// Config returns the configuration the session was built from.
func (s *Session) Config() Config { return s.cfg }
