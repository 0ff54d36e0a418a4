package analysis

import (
	"math"
	"testing"
	"time"
)

func TestNewPipeline_StagesPerMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode Mode
		want []string
	}{
		{ModeDB, []string{"silence", "level_db", "spectral"}},
		{ModeRMS, []string{"silence", "level_rms"}},
		{ModeAdaptiveNoise, []string{"warmup", "silence", "level_db", "noise"}},
	}
	for _, tc := range tests {
		cfg := DefaultConfig()
		cfg.Mode = tc.mode
		p := NewPipeline(cfg)
		var got []string
		for _, s := range p.Stages {
			got = append(got, s.Name())
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%s: stages = %v, want %v", tc.mode, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: stage %d = %q, want %q", tc.mode, i, got[i], tc.want[i])
			}
		}
	}
}

func TestLevelStage(t *testing.T) {
	t.Parallel()
	s := LevelStage{Quiet: -40, Loud: -6}
	tests := []struct {
		db   float64
		want Label
		done bool
	}{
		{-60, TooQuiet, true},
		{-40, Good, false},
		{-20, Good, false},
		{-6, Good, false},
		{-3, TooLoud, true},
	}
	for _, tc := range tests {
		v, done := s.Classify(FrameMetrics{DB: tc.db}, 0, Verdict{Label: Good})
		if v.Label != tc.want || done != tc.done {
			t.Errorf("db %v: got (%v, %v), want (%v, %v)", tc.db, v.Label, done, tc.want, tc.done)
		}
	}

	rms := LevelStage{Quiet: 50, Loud: 8000, UseIntRMS: true}
	if v, _ := rms.Classify(FrameMetrics{IntRMS: 30, DB: -20}, 0, Verdict{}); v.Label != TooQuiet {
		t.Errorf("int rms 30: got %v, want TooQuiet", v.Label)
	}
	if v, _ := rms.Classify(FrameMetrics{IntRMS: 9000, DB: -20}, 0, Verdict{}); v.Label != TooLoud {
		t.Errorf("int rms 9000: got %v, want TooLoud", v.Label)
	}
}

func TestSpectralStage(t *testing.T) {
	t.Parallel()
	s := SpectralStage{MuffledHigh: 0.04, TinnyLow: 0.10}
	tests := []struct {
		name  string
		in    Label
		bands BandEnergy
		want  Label
	}{
		{"balanced", Good, BandEnergy{Low: 1, Mid: 1, High: 1}, Good},
		{"mid heavy with some treble", Good, BandEnergy{Low: 0.15, Mid: 0.8, High: 0.05}, Good},
		{"no treble", Good, BandEnergy{Low: 0.15, Mid: 0.82, High: 0.03}, Muffled},
		{"no bass", Good, BandEnergy{Low: 0.05, Mid: 0.5, High: 0.45}, Tinny},
		{"muffled wins over tinny", Good, BandEnergy{Low: 0.01, Mid: 0.98, High: 0.01}, Muffled},
		{"zero energy", Good, BandEnergy{}, Good},
		{"not entered when too quiet", TooQuiet, BandEnergy{Mid: 1}, TooQuiet},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, _ := s.Classify(FrameMetrics{Bands: tc.bands, HasBands: true}, 0, Verdict{Label: tc.in})
			if v.Label != tc.want {
				t.Errorf("got %v, want %v", v.Label, tc.want)
			}
		})
	}
}

func TestNoiseStage(t *testing.T) {
	t.Parallel()
	s := NoiseStage{QuietDB: -40, Ratio: 0.75}
	tests := []struct {
		name string
		m    FrameMetrics
		in   Label
		want Label
	}{
		{"noisy", FrameMetrics{DB: -20, NoiseRatio: 0.9, HasNoiseRatio: true}, Good, Noisy},
		{"clean", FrameMetrics{DB: -20, NoiseRatio: 0.3, HasNoiseRatio: true}, Good, Good},
		{"at threshold", FrameMetrics{DB: -20, NoiseRatio: 0.75, HasNoiseRatio: true}, Good, Good},
		{"quiet", FrameMetrics{DB: -45, NoiseRatio: 0.9, HasNoiseRatio: true}, Good, Good},
		{"too loud stays", FrameMetrics{DB: -1, NoiseRatio: 0.9, HasNoiseRatio: true}, TooLoud, TooLoud},
		{"no ratio", FrameMetrics{DB: -20}, Good, Good},
	}
	for _, tc := range tests {
		if v, _ := s.Classify(tc.m, 0, Verdict{Label: tc.in}); v.Label != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, v.Label, tc.want)
		}
	}
}

func TestWarmupStage(t *testing.T) {
	t.Parallel()
	v, done := WarmupStage{}.Classify(FrameMetrics{Profiling: true, DB: -3}, 0, Verdict{Label: Good})
	if v.Label != Initializing || !done {
		t.Errorf("profiling: got (%v, %v), want (Initializing, true)", v.Label, done)
	}
	v, done = WarmupStage{}.Classify(FrameMetrics{DB: -3}, 0, Verdict{Label: Good})
	if v.Label != Good || done {
		t.Errorf("after warm-up: got (%v, %v), want (Good, false)", v.Label, done)
	}
}

func TestSilenceStage_RaisesAfterDuration(t *testing.T) {
	t.Parallel()
	s := &SilenceStage{FloorDB: -50, Duration: 3 * time.Second}
	silent := FrameMetrics{DB: -60}

	for at := time.Duration(0); at < 3*time.Second; at += 100 * time.Millisecond {
		if v, done := s.Classify(silent, at, Verdict{Label: Good}); done || v.Label == CheckProfile {
			t.Fatalf("CheckProfile raised at %v, before the silence duration", at)
		}
	}
	v, done := s.Classify(silent, 3*time.Second, Verdict{Label: Good})
	if !done || v.Label != CheckProfile {
		t.Fatalf("at 3s: got (%v, %v), want (CheckProfile, true)", v.Label, done)
	}
	if !v.HasSince || v.Since != 0 {
		t.Errorf("Since = (%v, %v), want start of the run", v.Since, v.HasSince)
	}
}

func TestSilenceStage_Sticky(t *testing.T) {
	t.Parallel()
	s := &SilenceStage{FloorDB: -50, Duration: 3 * time.Second}
	silent, loud := FrameMetrics{DB: -60}, FrameMetrics{DB: -20}

	s.Classify(silent, 0, Verdict{})
	if v, _ := s.Classify(silent, 3200*time.Millisecond, Verdict{}); v.Label != CheckProfile {
		t.Fatalf("expected CheckProfile, got %v", v.Label)
	}

	// One frame of sound clears the condition.
	if v, _ := s.Classify(loud, 3300*time.Millisecond, Verdict{Label: Good}); v.Label == CheckProfile {
		t.Fatal("sound did not clear CheckProfile")
	}
	if _, ok := s.SilentSince(); ok {
		t.Error("silence run still active after sound")
	}

	// A fresh run must last the full duration again.
	restart := 3400 * time.Millisecond
	for at := restart; at < restart+3*time.Second; at += 100 * time.Millisecond {
		if v, _ := s.Classify(silent, at, Verdict{}); v.Label == CheckProfile {
			t.Fatalf("re-triggered at %v, before a fresh full run", at)
		}
	}
	if v, _ := s.Classify(silent, restart+3*time.Second, Verdict{}); v.Label != CheckProfile {
		t.Errorf("fresh run did not re-trigger, got %v", v.Label)
	}
}

func TestPipeline_Monotonic(t *testing.T) {
	t.Parallel()
	shapes := map[string][]float32{
		"balanced": balanced(0.1),
		"mid tone": tones(testFrame, 0.1, midTone),
		"noise":    whiteNoise(testFrame, 0.17, 11),
	}
	for _, mode := range []Mode{ModeDB, ModeRMS} {
		cfg := DefaultConfig()
		cfg.Mode = mode
		for name, base := range shapes {
			engine := NewEngine(cfg)
			prev := -1
			var prevLabel Label
			for db := -90.0; db <= 6; db += 1.5 {
				k := math.Pow(10, db/20) / RMS(base)
				m, err := engine.Compute(frameAt(scaled(base, k), 0))
				if err != nil {
					t.Fatalf("Compute: %v", err)
				}
				// A fresh pipeline per frame keeps silence-run state out of it.
				label := NewPipeline(cfg).Classify(m, 0).Label
				if rank := label.loudness(); rank < prev {
					t.Errorf("%s/%s: %v at %.1f dB is quieter than %v at a lower level", mode, name, label, db, prevLabel)
				} else {
					prev, prevLabel = rank, label
				}
			}
		}
	}
}

func TestPipeline_ScenarioA(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	engine := NewEngine(cfg)

	// A 1 kHz tone at RMS 0.3 passes the level stage as Good and has no
	// high-band energy, so spectral clarity flags it.
	m, err := engine.Compute(frameAt(tones(testFrame, 0.3, midTone), 0))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if math.Abs(m.DB-(-10.46)) > 0.05 {
		t.Fatalf("DB = %.2f, want about -10.5", m.DB)
	}
	if v, done := (LevelStage{Quiet: -40, Loud: -6}).Classify(m, 0, Verdict{}); v.Label != Good || done {
		t.Errorf("level stage: got (%v, %v), want Good candidate", v.Label, done)
	}
	if got := NewPipeline(cfg).Classify(m, 0).Label; got != Muffled {
		t.Errorf("pure mid tone: got %v, want Muffled", got)
	}

	// Energy spread evenly across the bands settles on Good.
	m, err = engine.Compute(frameAt(balanced(0.3), 0))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := NewPipeline(cfg).Classify(m, 0).Label; got != Good {
		t.Errorf("balanced signal: got %v, want Good", got)
	}
}
