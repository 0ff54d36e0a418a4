package analysis

import (
	"errors"
	"math/cmplx"
	"time"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

// NoiseProfile accumulates the ambient-noise reference captured during the
// warm-up window. Once sealed it is read-only.
type NoiseProfile struct {
	warmup     time.Duration
	covered    time.Duration
	samples    []float32
	sampleRate int
	sealed     bool
}

// NewNoiseProfile creates a profile that seals after warmup of audio.
func NewNoiseProfile(warmup time.Duration) *NoiseProfile {
	return &NoiseProfile{warmup: warmup}
}

// Add appends f to the profile and reports whether the profile is sealed
// afterwards. Frames added after sealing are ignored.
func (p *NoiseProfile) Add(f audio.AudioFrame) bool {
	if p.sealed {
		return true
	}
	if p.sampleRate == 0 {
		p.sampleRate = f.SampleRate
	}
	p.samples = append(p.samples, f.Samples...)
	p.covered += f.Duration()
	if p.covered >= p.warmup {
		p.sealed = true
	}
	return p.sealed
}

// Sealed reports whether warm-up has completed.
func (p *NoiseProfile) Sealed() bool { return p.sealed }

// Samples returns the captured noise samples. The slice must not be modified.
func (p *NoiseProfile) Samples() []float32 { return p.samples }

// SampleRate returns the rate of the first profiled frame.
func (p *NoiseProfile) SampleRate() int { return p.sampleRate }

// Covered returns how much audio has been captured so far.
func (p *NoiseProfile) Covered() time.Duration { return p.covered }

// Denoiser produces a noise-reduced copy of a frame using a sealed profile as
// the noise reference.
type Denoiser interface {
	Denoise(samples []float32, sampleRate int, profile *NoiseProfile) ([]float32, error)
}

// ErrProfileNotSealed is returned by a [Denoiser] asked to work with a
// profile that is still filling.
var ErrProfileNotSealed = errors.New("analysis: noise profile not sealed")

const (
	// defaultOverSubtraction scales the noise estimate before subtraction.
	defaultOverSubtraction = 2.0

	// defaultSpectralFloor is the minimum gain kept per bin.
	defaultSpectralFloor = 0.1
)

// SpectralSubtractor is the default [Denoiser]. It estimates the noise
// magnitude spectrum by averaging Hann-windowed chunks of the profile, then
// derives a per-bin gain max(|X| - α·|N|, β·|X|) / |X| from the windowed frame
// spectrum, applies it to the frame's spectrum and transforms back.
type SpectralSubtractor struct {
	// OverSubtraction is α. Zero means 2.0.
	OverSubtraction float64

	// Floor is β, the minimum per-bin gain. Zero means 0.1.
	Floor float64

	spec    *spectrum
	profile *NoiseProfile
	noise   map[int][]float64
	out     []float64
	full    []complex128
}

// NewSpectralSubtractor returns a subtractor with default parameters.
func NewSpectralSubtractor() *SpectralSubtractor {
	return &SpectralSubtractor{
		OverSubtraction: defaultOverSubtraction,
		Floor:           defaultSpectralFloor,
	}
}

// Denoise implements [Denoiser].
func (s *SpectralSubtractor) Denoise(samples []float32, _ int, profile *NoiseProfile) ([]float32, error) {
	if profile == nil || !profile.Sealed() {
		return nil, ErrProfileNotSealed
	}
	n := len(samples)
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if s.spec == nil {
		s.spec = newSpectrum()
	}
	if s.profile != profile {
		s.profile = profile
		s.noise = make(map[int][]float64)
	}

	alpha := s.OverSubtraction
	if alpha <= 0 {
		alpha = defaultOverSubtraction
	}
	floor := s.Floor
	if floor <= 0 {
		floor = defaultSpectralFloor
	}

	noise := s.noiseSpectrum(n)
	p := s.spec.plan(n)

	windowed := p.transform(samples, true)
	gains := make([]float64, len(windowed))
	for i, c := range windowed {
		mag := cmplx.Abs(c)
		if mag == 0 {
			gains[i] = floor
			continue
		}
		gains[i] = max(mag-alpha*noise[i], floor*mag) / mag
	}

	raw := p.transform(samples, false)
	if cap(s.full) < len(raw) {
		s.full = make([]complex128, len(raw))
	}
	scaled := s.full[:len(raw)]
	for i, c := range raw {
		scaled[i] = c * complex(gains[i], 0)
	}

	if cap(s.out) < n {
		s.out = make([]float64, n)
	}
	s.out = p.fft.Sequence(s.out[:n], scaled)

	out := make([]float32, n)
	for i, v := range s.out {
		out[i] = float32(v / float64(n))
	}
	return out, nil
}

// noiseSpectrum returns the averaged windowed magnitude spectrum of the
// profile for frames of length n.
func (s *SpectralSubtractor) noiseSpectrum(n int) []float64 {
	if mags, ok := s.noise[n]; ok {
		return mags
	}
	p := s.spec.plan(n)
	mags := make([]float64, n/2+1)

	// Whole chunks only; a profile shorter than one frame is zero-padded.
	src := s.profile.Samples()
	chunks := len(src) / n
	if chunks == 0 {
		padded := make([]float32, n)
		copy(padded, src)
		src, chunks = padded, 1
	}
	for c := range chunks {
		for i, v := range p.transform(src[c*n:(c+1)*n], true) {
			mags[i] += cmplx.Abs(v)
		}
	}
	for i := range mags {
		mags[i] /= float64(chunks)
	}
	s.noise[n] = mags
	return mags
}
