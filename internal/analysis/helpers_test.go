package analysis

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

const (
	testRate  = 48000
	testFrame = 1024
)

// binFreq returns the centre frequency of FFT bin k for testFrame samples at
// testRate, so test tones do not leak into neighbouring bins.
func binFreq(k int) float64 {
	return float64(k) * testRate / testFrame
}

// Bin-centred tones inside the default low, mid and high bands.
var (
	lowTone  = binFreq(3)  // 140.625 Hz
	midTone  = binFreq(21) // 984.375 Hz
	highTone = binFreq(85) // 3984.375 Hz
)

// tones mixes equal-amplitude sines at freqs, scaled so the frame RMS is rms.
func tones(n int, rms float64, freqs ...float64) []float32 {
	amp := rms * math.Sqrt(2/float64(len(freqs)))
	out := make([]float32, n)
	for i := range out {
		var v float64
		for _, f := range freqs {
			v += amp * math.Sin(2*math.Pi*f*float64(i)/testRate)
		}
		out[i] = float32(v)
	}
	return out
}

// balanced returns a frame with equal energy in the low, mid and high bands.
func balanced(rms float64) []float32 {
	return tones(testFrame, rms, lowTone, midTone, highTone)
}

// whiteNoise returns deterministic uniform noise with the given peak.
func whiteNoise(n int, peak float64, seed uint64) []float32 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32((r.Float64()*2 - 1) * peak)
	}
	return out
}

func scaled(samples []float32, k float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(float64(s) * k)
	}
	return out
}

// frameAt wraps samples into a frame starting at stream time at.
func frameAt(samples []float32, at time.Duration) audio.AudioFrame {
	return audio.AudioFrame{Samples: samples, SampleRate: testRate, Timestamp: at}
}

// framePeriod is the stream time covered by one test frame.
var framePeriod = audio.SamplesDuration(testFrame, testRate)

// feed runs frames produced by gen through s from stream time from until
// before to. It returns the stream times of every committed status.
func feed(t *testing.T, s *Session, from, to time.Duration, gen func() []float32) []commit {
	t.Helper()
	var commits []commit
	for at := from; at < to; at += framePeriod {
		res, err := s.Process(frameAt(gen(), at))
		if err != nil {
			t.Fatalf("Process at %v: %v", at, err)
		}
		if res.Decision.Committed {
			commits = append(commits, commit{status: res.Decision.Status, at: at})
		}
	}
	return commits
}

type commit struct {
	status Label
	at     time.Duration
}

func firstCommit(commits []commit, l Label) (time.Duration, bool) {
	for _, c := range commits {
		if c.status == l {
			return c.at, true
		}
	}
	return 0, false
}

// recordingSink captures sink notifications for assertions.
type recordingSink struct {
	mu      sync.Mutex
	metrics []sinkEvent
	changes []sinkEvent
}

func (r *recordingSink) OnMetric(status Label, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, sinkEvent{status: status, value: value})
}

func (r *recordingSink) OnStatusChange(status Label, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, sinkEvent{status: status, value: value})
}

func (r *recordingSink) snapshot() (metrics, changes []sinkEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sinkEvent(nil), r.metrics...), append([]sinkEvent(nil), r.changes...)
}

func (r *recordingSink) countChanges(l Label) int {
	_, changes := r.snapshot()
	n := 0
	for _, c := range changes {
		if c.status == l {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
