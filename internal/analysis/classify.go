package analysis

import "time"

// Verdict is a raw per-frame label together with an optional stream time at
// which the underlying condition started.
type Verdict struct {
	Label Label

	// Since is the stream time the condition has held since. The debouncer
	// uses it as the candidate start when HasSince is true.
	Since    time.Duration
	HasSince bool
}

// Stage is one step of the classifier pipeline. Classify receives the verdict
// produced by the previous stages and returns the updated one. done reports a
// definitive label that ends the pipeline for this frame.
//
// Stages run on the analysis worker only and must not block.
type Stage interface {
	Name() string
	Classify(m FrameMetrics, at time.Duration, v Verdict) (out Verdict, done bool)
}

// Pipeline runs its stages in order until one returns a definitive verdict.
type Pipeline struct {
	Stages []Stage
}

// NewPipeline assembles the stage list for cfg.Mode.
func NewPipeline(cfg Config) *Pipeline {
	t := cfg.Thresholds
	silence := &SilenceStage{FloorDB: t.SilenceFloorDB, Duration: cfg.Durations.Silence}
	dbLevel := LevelStage{Quiet: t.QuietDB, Loud: t.LoudDB}

	switch cfg.Mode {
	case ModeRMS:
		return &Pipeline{Stages: []Stage{
			silence,
			LevelStage{Quiet: t.QuietRMS, Loud: t.LoudRMS, UseIntRMS: true},
		}}
	case ModeAdaptiveNoise:
		return &Pipeline{Stages: []Stage{
			WarmupStage{},
			silence,
			dbLevel,
			NoiseStage{QuietDB: t.QuietDB, Ratio: t.NoisyRatio},
		}}
	default:
		return &Pipeline{Stages: []Stage{
			silence,
			dbLevel,
			SpectralStage{MuffledHigh: t.MuffledHighPercent, TinnyLow: t.TinnyLowPercent},
		}}
	}
}

// Classify returns the raw verdict for a frame observed at stream time at.
func (p *Pipeline) Classify(m FrameMetrics, at time.Duration) Verdict {
	v := Verdict{Label: Good}
	for _, s := range p.Stages {
		var done bool
		if v, done = s.Classify(m, at, v); done {
			break
		}
	}
	return v
}

// WarmupStage yields [Initializing] while the noise profile is being captured.
type WarmupStage struct{}

func (WarmupStage) Name() string { return "warmup" }

func (WarmupStage) Classify(m FrameMetrics, _ time.Duration, v Verdict) (Verdict, bool) {
	if m.Profiling {
		return Verdict{Label: Initializing}, true
	}
	return v, false
}

// SilenceStage raises [CheckProfile] after the level has stayed at or below
// FloorDB for longer than Duration. A single frame above the floor ends the
// run; only a fresh uninterrupted run can raise it again.
type SilenceStage struct {
	FloorDB  float64
	Duration time.Duration

	silent      bool
	silentSince time.Duration
}

func (s *SilenceStage) Name() string { return "silence" }

func (s *SilenceStage) Classify(m FrameMetrics, at time.Duration, v Verdict) (Verdict, bool) {
	if m.DB > s.FloorDB {
		s.silent = false
		return v, false
	}
	if !s.silent {
		s.silent = true
		s.silentSince = at
	}
	if at-s.silentSince >= s.Duration {
		return Verdict{Label: CheckProfile, Since: s.silentSince, HasSince: true}, true
	}
	return v, false
}

// SilentSince returns the start of the current silence run.
func (s *SilenceStage) SilentSince() (time.Duration, bool) {
	return s.silentSince, s.silent
}

// LevelStage compares the level against the quiet and loud thresholds. Out of
// range levels are definitive; in range levels continue as [Good].
type LevelStage struct {
	Quiet float64
	Loud  float64

	// UseIntRMS compares IntRMS instead of DB.
	UseIntRMS bool
}

func (s LevelStage) Name() string {
	if s.UseIntRMS {
		return "level_rms"
	}
	return "level_db"
}

func (s LevelStage) Classify(m FrameMetrics, _ time.Duration, _ Verdict) (Verdict, bool) {
	level := m.DB
	if s.UseIntRMS {
		level = m.IntRMS
	}
	switch {
	case level < s.Quiet:
		return Verdict{Label: TooQuiet}, true
	case level > s.Loud:
		return Verdict{Label: TooLoud}, true
	default:
		return Verdict{Label: Good}, false
	}
}

// SpectralStage checks tonal balance on frames the level stage found good.
type SpectralStage struct {
	MuffledHigh float64
	TinnyLow    float64
}

func (SpectralStage) Name() string { return "spectral" }

func (s SpectralStage) Classify(m FrameMetrics, _ time.Duration, v Verdict) (Verdict, bool) {
	if v.Label != Good || !m.HasBands {
		return v, false
	}
	low, high, ok := m.Bands.Percentages()
	switch {
	case !ok:
		return v, false
	case high < s.MuffledHigh:
		return Verdict{Label: Muffled}, true
	case low < s.TinnyLow:
		return Verdict{Label: Tinny}, true
	default:
		return v, false
	}
}

// NoiseStage flags frames where noise reduction would remove more than Ratio
// of a signal that is otherwise loud enough.
type NoiseStage struct {
	QuietDB float64
	Ratio   float64
}

func (NoiseStage) Name() string { return "noise" }

func (s NoiseStage) Classify(m FrameMetrics, _ time.Duration, v Verdict) (Verdict, bool) {
	if v.Label != Good || !m.HasNoiseRatio {
		return v, false
	}
	if m.DB > s.QuietDB && m.NoiseRatio > s.Ratio {
		return Verdict{Label: Noisy}, true
	}
	return v, false
}
