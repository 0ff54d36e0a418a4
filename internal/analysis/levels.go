package analysis

import (
	"fmt"
	"math"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

// dbEpsilon keeps the logarithm finite for digital silence.
const dbEpsilon = 1e-9

// intScale maps float samples onto the signed 16-bit range used by
// [ModeRMS] thresholds.
const intScale = 32767.0

// BandEnergy is the summed FFT magnitude per frequency band.
type BandEnergy struct {
	Low  float64
	Mid  float64
	High float64
}

// Total returns the summed energy over all three bands.
func (b BandEnergy) Total() float64 { return b.Low + b.Mid + b.High }

// Percentages returns the low and high band shares of the total. ok is false
// when the total is zero and no meaningful ratio exists.
func (b BandEnergy) Percentages() (low, high float64, ok bool) {
	total := b.Total()
	if total <= 0 {
		return 0, 0, false
	}
	return b.Low / total, b.High / total, true
}

// FrameMetrics are the per-frame measurements the classifier works on.
type FrameMetrics struct {
	// RMS is the root-mean-square amplitude of the frame, >= 0.
	RMS float64

	// DB is the level in dBFS. It is always finite.
	DB float64

	// IntRMS is the RMS on the signed 16-bit scale.
	IntRMS float64

	// Bands is set when HasBands is true.
	Bands    BandEnergy
	HasBands bool

	// NoiseRatio is the share of the signal removed by noise reduction,
	// in [0, 1]. Set when HasNoiseRatio is true.
	NoiseRatio    float64
	HasNoiseRatio bool

	// Profiling is true while the frame was consumed by noise-profile warm-up.
	Profiling bool
}

// RMS returns sqrt(mean(x²)) over samples, or 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS converts an RMS amplitude to decibels relative to full scale. Zero
// maps to 20·log10(1e-9) = -180 dB.
func DBFS(rms float64) float64 {
	return 20 * math.Log10(rms+dbEpsilon)
}

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithDenoiser replaces the default [SpectralSubtractor] used in
// [ModeAdaptiveNoise].
func WithDenoiser(d Denoiser) EngineOption {
	return func(e *Engine) { e.denoiser = d }
}

// Engine is the Metric Engine. It turns frames into [FrameMetrics].
//
// An Engine carries state (FFT plans, the noise profile) and must only be used
// from one goroutine at a time.
type Engine struct {
	mode     Mode
	bands    Bands
	spectrum *spectrum
	profile  *NoiseProfile
	denoiser Denoiser
}

// NewEngine creates an engine computing the metrics required by cfg.Mode.
func NewEngine(cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		mode:  cfg.Mode,
		bands: cfg.Bands,
	}
	if cfg.Mode.needsBands() {
		e.spectrum = newSpectrum()
	}
	if cfg.Mode.needsNoise() {
		e.profile = NewNoiseProfile(cfg.Durations.NoiseWarmup)
		e.denoiser = NewSpectralSubtractor()
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Profile returns the noise profile, or nil when the mode does not use one.
func (e *Engine) Profile() *NoiseProfile { return e.profile }

// Compute derives the metrics for f. It returns [ErrEmptyFrame] for a frame
// without samples and [ErrNonFiniteSample] when a sample is NaN or infinite.
func (e *Engine) Compute(f audio.AudioFrame) (FrameMetrics, error) {
	if len(f.Samples) == 0 {
		return FrameMetrics{}, ErrEmptyFrame
	}
	for i, s := range f.Samples {
		if v := float64(s); math.IsNaN(v) || math.IsInf(v, 0) {
			return FrameMetrics{}, fmt.Errorf("%w at index %d", ErrNonFiniteSample, i)
		}
	}

	rms := RMS(f.Samples)
	m := FrameMetrics{
		RMS:    rms,
		DB:     DBFS(rms),
		IntRMS: rms * intScale,
	}

	if e.spectrum != nil && f.SampleRate > 0 {
		m.Bands = e.spectrum.bandEnergy(f.Samples, f.SampleRate, e.bands)
		m.HasBands = true
	}

	if e.profile != nil {
		if !e.profile.Sealed() {
			e.profile.Add(f)
			m.Profiling = true
			return m, nil
		}
		ratio, err := e.noiseRatio(f, rms)
		if err != nil {
			return FrameMetrics{}, err
		}
		m.NoiseRatio = ratio
		m.HasNoiseRatio = true
	}
	return m, nil
}

// noiseRatio returns (rms - rms_denoised) / rms clamped to [0, 1], or 0 for a
// silent frame.
func (e *Engine) noiseRatio(f audio.AudioFrame, rms float64) (float64, error) {
	if rms == 0 {
		return 0, nil
	}
	denoised, err := e.denoiser.Denoise(f.Samples, f.SampleRate, e.profile)
	if err != nil {
		return 0, fmt.Errorf("analysis: denoise frame: %w", err)
	}
	ratio := (rms - RMS(denoised)) / rms
	return min(max(ratio, 0), 1), nil
}
