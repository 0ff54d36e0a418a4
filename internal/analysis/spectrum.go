package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// spectrum computes magnitude spectra of real frames. FFT plans and scratch
// buffers are cached per frame length; capture sources deliver fixed-size
// blocks, so the cache normally holds a single entry.
type spectrum struct {
	plans map[int]*fftPlan
}

type fftPlan struct {
	fft    *fourier.FFT
	seq    []float64
	coeffs []complex128
	window []float64
}

func newSpectrum() *spectrum {
	return &spectrum{plans: make(map[int]*fftPlan)}
}

func (s *spectrum) plan(n int) *fftPlan {
	p, ok := s.plans[n]
	if !ok {
		p = &fftPlan{
			fft:    fourier.NewFFT(n),
			seq:    make([]float64, n),
			coeffs: make([]complex128, n/2+1),
		}
		s.plans[n] = p
	}
	return p
}

// hann returns a cached Hann window of the plan's length.
func (p *fftPlan) hann() []float64 {
	if p.window != nil {
		return p.window
	}
	n := len(p.seq)
	p.window = make([]float64, n)
	if n == 1 {
		p.window[0] = 1
		return p.window
	}
	for i := range p.window {
		p.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return p.window
}

// transform runs the real FFT over samples, optionally windowed, and returns
// the plan's coefficient buffer. The result is only valid until the next call.
func (p *fftPlan) transform(samples []float32, windowed bool) []complex128 {
	var w []float64
	if windowed {
		w = p.hann()
	}
	for i, v := range samples {
		p.seq[i] = float64(v)
		if w != nil {
			p.seq[i] *= w[i]
		}
	}
	p.coeffs = p.fft.Coefficients(p.coeffs, p.seq)
	return p.coeffs
}

// bandEnergy sums the magnitude of every bin whose frequency falls inside each
// band. Bands are inclusive at both ends, so a bin on a shared edge counts in
// both neighbours.
func (s *spectrum) bandEnergy(samples []float32, sampleRate int, bands Bands) BandEnergy {
	p := s.plan(len(samples))
	coeffs := p.transform(samples, false)

	var e BandEnergy
	rate := float64(sampleRate)
	for i, c := range coeffs {
		freq := p.fft.Freq(i) * rate
		mag := cmplx.Abs(c)
		if bands.Low.Contains(freq) {
			e.Low += mag
		}
		if bands.Mid.Contains(freq) {
			e.Mid += mag
		}
		if bands.High.Contains(freq) {
			e.High += mag
		}
	}
	return e
}
