// Package config provides the configuration schema, loader, source registry
// and file watcher for voicecheck.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/voicecheck/internal/analysis"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to its [slog.Level]. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Source names understood by the default [Registry].
const (
	SourceArecord = "arecord"
	SourceFFmpeg  = "ffmpeg"
	SourceFile    = "file"
	SourceAuto    = "auto"
)

// Config is the root configuration structure for voicecheck.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Source   SourceConfig   `yaml:"source"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// ServerConfig holds the metrics/health listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /metrics and /healthz (e.g., ":9464").
	// Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr" validate:"omitempty,hostname_port"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" validate:"required"`
	KeyFile  string `yaml:"key_file" validate:"required"`
}

// SourceConfig selects and configures the Frame Source. The Name field is
// used to look up the constructor in the [Registry].
type SourceConfig struct {
	// Name selects the registered source (arecord, ffmpeg, file, auto).
	Name string `yaml:"name" validate:"required"`

	// Device is the capture device ID or a case-insensitive substring of the
	// device name. Empty selects the backend's default device.
	Device string `yaml:"device"`

	// Command overrides the capture executable (e.g. a full ffmpeg path).
	Command string `yaml:"command"`

	// Path is the WAV file read by the file source.
	Path string `yaml:"path"`

	// Realtime paces the file source at the file's sample rate.
	Realtime bool `yaml:"realtime"`

	// Fallback lists the sources the auto source tries, in order.
	Fallback []string `yaml:"fallback" validate:"omitempty,dive,oneof=arecord ffmpeg file"`

	SampleRate int `yaml:"sample_rate" validate:"omitempty,gte=8000,lte=192000"`
	Channels   int `yaml:"channels" validate:"omitempty,gte=1,lte=8"`
	FrameSize  int `yaml:"frame_size" validate:"omitempty,gte=64,lte=65536"`
}

// AnalysisConfig mirrors [analysis.Config] in YAML form. Zero scalars and
// unset pointers fall back to [analysis.DefaultConfig].
type AnalysisConfig struct {
	Mode       analysis.Mode       `yaml:"mode" validate:"omitempty,oneof=db rms adaptive_noise"`
	QueueSize  int                 `yaml:"queue_size" validate:"omitempty,gte=1,lte=4096"`
	DropPolicy analysis.DropPolicy `yaml:"drop_policy" validate:"omitempty,oneof=oldest newest"`

	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=0"`
	StallTimeout time.Duration `yaml:"stall_timeout" validate:"gte=0"`
	JoinTimeout  time.Duration `yaml:"join_timeout" validate:"gte=0"`

	// MaxConsecutiveFailures escalates a failure streak to a fatal worker
	// error. Nil keeps the default; 0 disables escalation.
	MaxConsecutiveFailures *int `yaml:"max_consecutive_failures" validate:"omitempty,gte=0"`

	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Durations  DurationsConfig  `yaml:"durations"`
	Bands      BandsConfig      `yaml:"bands"`
}

// ThresholdsConfig holds classifier thresholds. Unset fields keep the
// default; an explicit 0 is kept as given.
type ThresholdsConfig struct {
	QuietDB            *float64 `yaml:"quiet_db" validate:"omitempty,lte=0"`
	LoudDB             *float64 `yaml:"loud_db" validate:"omitempty,lte=0"`
	QuietRMS           *float64 `yaml:"quiet_rms" validate:"omitempty,gte=0,lte=32767"`
	LoudRMS            *float64 `yaml:"loud_rms" validate:"omitempty,gte=0,lte=32767"`
	SilenceFloorDB     *float64 `yaml:"silence_floor_db" validate:"omitempty,lte=0"`
	MuffledHighPercent *float64 `yaml:"muffled_high_percent" validate:"omitempty,gte=0,lte=1"`
	TinnyLowPercent    *float64 `yaml:"tinny_low_percent" validate:"omitempty,gte=0,lte=1"`
	NoisyRatio         *float64 `yaml:"noisy_ratio" validate:"omitempty,gte=0,lte=1"`
}

// DurationsConfig holds debounce and detection durations. Unset fields keep
// the default; "0s" disables the corresponding hold.
type DurationsConfig struct {
	Silence     *time.Duration `yaml:"silence" validate:"omitempty,gte=0"`
	Attack      *time.Duration `yaml:"attack" validate:"omitempty,gte=0"`
	Decay       *time.Duration `yaml:"decay" validate:"omitempty,gte=0"`
	Normal      *time.Duration `yaml:"normal" validate:"omitempty,gte=0"`
	NoiseWarmup *time.Duration `yaml:"noise_warmup" validate:"omitempty,gte=0"`
}

// BandsConfig holds the frequency bands as [low, high] pairs in Hz.
type BandsConfig struct {
	Low  []float64 `yaml:"low" validate:"omitempty,len=2,dive,gte=0"`
	Mid  []float64 `yaml:"mid" validate:"omitempty,len=2,dive,gte=0"`
	High []float64 `yaml:"high" validate:"omitempty,len=2,dive,gte=0"`
}

// Default source settings.
const (
	DefaultListenAddr = ":9464"
	DefaultSampleRate = 48000
	DefaultChannels   = 2
	DefaultFrameSize  = 1024
)

// ApplyDefaults fills unset server and source fields in place. Analysis
// defaults are applied by [AnalysisConfig.ToAnalysis].
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Source.Name == "" {
		cfg.Source.Name = SourceArecord
	}
	if cfg.Source.SampleRate == 0 {
		cfg.Source.SampleRate = DefaultSampleRate
	}
	if cfg.Source.Channels == 0 {
		cfg.Source.Channels = DefaultChannels
	}
	if cfg.Source.FrameSize == 0 {
		cfg.Source.FrameSize = DefaultFrameSize
	}
	if cfg.Source.Name == SourceAuto && len(cfg.Source.Fallback) == 0 {
		cfg.Source.Fallback = []string{SourceArecord, SourceFFmpeg}
	}
}

// Default returns a config with every default applied, suitable when no
// config file is given.
func Default() *Config {
	cfg := &Config{Server: ServerConfig{ListenAddr: DefaultListenAddr}}
	ApplyDefaults(cfg)
	return cfg
}

// ToAnalysis overlays the non-zero fields of c on [analysis.DefaultConfig].
func (c AnalysisConfig) ToAnalysis() analysis.Config {
	out := analysis.DefaultConfig()
	setIf(&out.Mode, c.Mode)
	setIf(&out.QueueSize, c.QueueSize)
	setIf(&out.DropPolicy, c.DropPolicy)
	setIf(&out.PollInterval, c.PollInterval)
	setIf(&out.StallTimeout, c.StallTimeout)
	setIf(&out.JoinTimeout, c.JoinTimeout)
	setPtr(&out.MaxConsecutiveFailures, c.MaxConsecutiveFailures)

	t := c.Thresholds
	setPtr(&out.Thresholds.QuietDB, t.QuietDB)
	setPtr(&out.Thresholds.LoudDB, t.LoudDB)
	setPtr(&out.Thresholds.QuietRMS, t.QuietRMS)
	setPtr(&out.Thresholds.LoudRMS, t.LoudRMS)
	setPtr(&out.Thresholds.SilenceFloorDB, t.SilenceFloorDB)
	setPtr(&out.Thresholds.MuffledHighPercent, t.MuffledHighPercent)
	setPtr(&out.Thresholds.TinnyLowPercent, t.TinnyLowPercent)
	setPtr(&out.Thresholds.NoisyRatio, t.NoisyRatio)

	d := c.Durations
	setPtr(&out.Durations.Silence, d.Silence)
	setPtr(&out.Durations.Attack, d.Attack)
	setPtr(&out.Durations.Decay, d.Decay)
	setPtr(&out.Durations.Normal, d.Normal)
	setPtr(&out.Durations.NoiseWarmup, d.NoiseWarmup)

	setBand(&out.Bands.Low, c.Bands.Low)
	setBand(&out.Bands.Mid, c.Bands.Mid)
	setBand(&out.Bands.High, c.Bands.High)
	return out
}

func setIf[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setBand(dst *analysis.Band, pair []float64) {
	if len(pair) == 2 {
		*dst = analysis.Band{Low: pair[0], High: pair[1]}
	}
}
