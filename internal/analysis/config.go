package analysis

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects which classifier stages run and which metric is reported as the
// continuous meter value.
type Mode string

const (
	// ModeDB classifies on dBFS and checks tonal balance via band energy.
	ModeDB Mode = "db"

	// ModeRMS classifies on the RMS of the int16-scaled signal, without
	// spectral checks.
	ModeRMS Mode = "rms"

	// ModeAdaptiveNoise captures a noise profile during warm-up and flags
	// frames where most of the signal is background noise.
	ModeAdaptiveNoise Mode = "adaptive_noise"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeDB, ModeRMS, ModeAdaptiveNoise:
		return true
	}
	return false
}

// needsBands reports whether the mode's pipeline consumes band energies.
func (m Mode) needsBands() bool { return m == ModeDB }

// needsNoise reports whether the mode maintains a noise profile.
func (m Mode) needsNoise() bool { return m == ModeAdaptiveNoise }

// DropPolicy decides which frame is discarded when the queue is full.
type DropPolicy string

const (
	// DropOldest evicts the frame at the head of the queue.
	DropOldest DropPolicy = "oldest"

	// DropNewest discards the incoming frame.
	DropNewest DropPolicy = "newest"
)

// IsValid reports whether p is a recognised drop policy.
func (p DropPolicy) IsValid() bool {
	return p == DropOldest || p == DropNewest
}

// Band is an inclusive frequency range in Hz.
type Band struct {
	Low  float64
	High float64
}

// Contains reports whether freq lies within the band, bounds included.
func (b Band) Contains(freq float64) bool {
	return freq >= b.Low && freq <= b.High
}

// Bands holds the three frequency ranges used for tonal balance.
type Bands struct {
	Low  Band
	Mid  Band
	High Band
}

// Thresholds are the level and ratio thresholds used by the classifier.
type Thresholds struct {
	// QuietDB and LoudDB bound the "good" range in dBFS.
	QuietDB float64
	LoudDB  float64

	// QuietRMS and LoudRMS bound the "good" range on the int16 RMS scale,
	// used in [ModeRMS].
	QuietRMS float64
	LoudRMS  float64

	// SilenceFloorDB is the level at or below which a frame counts as silent.
	SilenceFloorDB float64

	// MuffledHighPercent is the minimum share of high-band energy.
	MuffledHighPercent float64

	// TinnyLowPercent is the minimum share of low-band energy.
	TinnyLowPercent float64

	// NoisyRatio is the noise-reduction ratio above which a frame is noisy.
	NoisyRatio float64
}

// Durations are the timers used by the silence stage and the debouncer.
type Durations struct {
	// Silence is how long the stream must stay below the silence floor
	// before CheckProfile is raised.
	Silence time.Duration

	// Attack is the persistence for "started speaking" and "got louder".
	Attack time.Duration

	// Decay is the persistence for "natural pause".
	Decay time.Duration

	// Normal is the persistence for every other transition.
	Normal time.Duration

	// NoiseWarmup is how much audio is captured into the noise profile
	// before classification starts in [ModeAdaptiveNoise].
	NoiseWarmup time.Duration
}

// Config holds every tunable of the analysis pipeline. It is read-only after
// an [Analyzer] or [Session] has been constructed from it.
type Config struct {
	Mode       Mode
	Thresholds Thresholds
	Durations  Durations
	Bands      Bands

	// QueueSize is the capacity of the frame queue.
	QueueSize int

	// DropPolicy decides which frame is lost when the queue is full.
	DropPolicy DropPolicy

	// PollInterval bounds how long the worker blocks waiting for a frame
	// before it rechecks the stop signal.
	PollInterval time.Duration

	// StallTimeout is how long the source may go without delivering a frame
	// before the worker logs a stall.
	StallTimeout time.Duration

	// JoinTimeout bounds how long Stop waits for the worker to exit.
	JoinTimeout time.Duration

	// MaxConsecutiveFailures is the number of back-to-back unexpected frame
	// failures after which the worker gives up. Zero disables escalation.
	MaxConsecutiveFailures int
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Mode: ModeDB,
		Thresholds: Thresholds{
			QuietDB:            -40,
			LoudDB:             -6,
			QuietRMS:           50,
			LoudRMS:            8000,
			SilenceFloorDB:     -50,
			MuffledHighPercent: 0.04,
			TinnyLowPercent:    0.10,
			NoisyRatio:         0.75,
		},
		Durations: Durations{
			Silence:     3 * time.Second,
			Attack:      150 * time.Millisecond,
			Decay:       2 * time.Second,
			Normal:      time.Second,
			NoiseWarmup: 2 * time.Second,
		},
		Bands: Bands{
			Low:  Band{Low: 60, High: 250},
			Mid:  Band{Low: 250, High: 2000},
			High: Band{Low: 2000, High: 8000},
		},
		QueueSize:              32,
		DropPolicy:             DropOldest,
		PollInterval:           time.Second,
		StallTimeout:           3 * time.Second,
		JoinTimeout:            time.Second,
		MaxConsecutiveFailures: 50,
	}
}

// Validate checks that c is internally consistent. It returns a joined error
// listing every problem found.
func (c Config) Validate() error {
	var errs []error

	if !c.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: db, rms, adaptive_noise", c.Mode))
	}
	if !c.DropPolicy.IsValid() {
		errs = append(errs, fmt.Errorf("drop_policy %q is invalid; valid values: oldest, newest", c.DropPolicy))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size %d must be at least 1", c.QueueSize))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.JoinTimeout <= 0 {
		errs = append(errs, errors.New("join_timeout must be positive"))
	}
	if c.MaxConsecutiveFailures < 0 {
		errs = append(errs, fmt.Errorf("max_consecutive_failures %d must not be negative", c.MaxConsecutiveFailures))
	}

	t := c.Thresholds
	if t.QuietDB >= t.LoudDB {
		errs = append(errs, fmt.Errorf("quiet_db %.1f must be below loud_db %.1f", t.QuietDB, t.LoudDB))
	}
	if t.QuietRMS >= t.LoudRMS {
		errs = append(errs, fmt.Errorf("quiet_rms %.1f must be below loud_rms %.1f", t.QuietRMS, t.LoudRMS))
	}
	if t.SilenceFloorDB > t.QuietDB {
		errs = append(errs, fmt.Errorf("silence_floor_db %.1f must not exceed quiet_db %.1f", t.SilenceFloorDB, t.QuietDB))
	}
	for name, v := range map[string]float64{
		"muffled_high_percent": t.MuffledHighPercent,
		"tinny_low_percent":    t.TinnyLowPercent,
		"noisy_ratio":          t.NoisyRatio,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %.3f is out of range [0, 1]", name, v))
		}
	}

	d := c.Durations
	if d.Attack < 0 || d.Decay < 0 || d.Normal < 0 || d.Silence < 0 || d.NoiseWarmup < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if d.Decay < d.Attack {
		errs = append(errs, fmt.Errorf("decay %v must not be shorter than attack %v", d.Decay, d.Attack))
	}
	if c.Mode == ModeAdaptiveNoise && d.NoiseWarmup <= 0 {
		errs = append(errs, errors.New("noise_warmup must be positive in adaptive_noise mode"))
	}

	for name, b := range map[string]Band{"low": c.Bands.Low, "mid": c.Bands.Mid, "high": c.Bands.High} {
		if b.Low <= 0 || b.High <= b.Low {
			errs = append(errs, fmt.Errorf("band %s [%.0f, %.0f] must have 0 < low < high", name, b.Low, b.High))
		}
	}
	if c.Bands.Low.High > c.Bands.Mid.Low || c.Bands.Mid.High > c.Bands.High.Low {
		errs = append(errs, errors.New("bands must be ordered low <= mid <= high without overlap"))
	}

	return errors.Join(errs...)
}

// meterValue returns the continuous meter value reported to the sink for m.
func (c Config) meterValue(m FrameMetrics) float64 {
	if c.Mode == ModeRMS {
		return m.IntRMS
	}
	return m.DB
}
