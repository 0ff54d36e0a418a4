// Package report runs recorded WAV files through the same analysis session as
// the live analyzer and summarises the result: average level and band
// profile over the non-silent chunks, the status those averages predict, and
// the debounced status timeline a live user would have seen.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicecheck/internal/analysis"
	"github.com/MrWong99/voicecheck/internal/capture"
	"github.com/MrWong99/voicecheck/internal/observe"
	"github.com/MrWong99/voicecheck/pkg/audio"
)

const (
	defaultChunkSize = 1024

	// silentRMS is roughly -60 dBFS. Chunks below it are left out of the
	// averages.
	silentRMS = 0.001
)

// Transition is one committed status change in the debounced timeline.
type Transition struct {
	At     time.Duration
	Status analysis.Label
	Value  float64
}

// Report summarises one file.
type Report struct {
	Path       string
	Duration   time.Duration
	SampleRate int
	Channels   int

	// Chunks is the number of whole chunks analysed; Voiced of them were
	// above the silence floor and contribute to the averages.
	Chunks int
	Voiced int

	AvgRMS float64
	AvgDB  float64

	// Bands is the mean band energy over voiced chunks.
	Bands       analysis.BandEnergy
	LowPercent  float64
	HighPercent float64

	// Predicted is the status the averaged level and band profile fall into.
	Predicted analysis.Label

	// Final is the debounced status at the end of the file.
	Final    analysis.Label
	Timeline []Transition

	// Skipped counts chunks the session rejected (e.g. non-finite samples).
	Skipped int
}

// Silent reports whether no chunk rose above the silence floor.
func (r *Report) Silent() bool { return r.Voiced == 0 }

// Option configures [AnalyzeFile].
type Option func(*options)

type options struct {
	chunkSize  int
	metrics    *observe.Metrics
	engineOpts []analysis.EngineOption
}

// WithChunkSize sets the number of samples per analysed chunk. Default 1024.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithMetrics records analysis durations on m instead of the default metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithEngineOptions passes options to the session's metric engine.
func WithEngineOptions(opts ...analysis.EngineOption) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

func buildOptions(opts []Option) options {
	o := options{chunkSize: defaultChunkSize}
	for _, fn := range opts {
		fn(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// AnalyzeFile decodes the WAV file at path and analyses it chunk by chunk.
// A trailing partial chunk is ignored.
func AnalyzeFile(ctx context.Context, path string, cfg analysis.Config, opts ...Option) (rep *Report, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	o := buildOptions(opts)

	ctx, span := observe.StartSpan(ctx, "report.analyze_file",
		trace.WithAttributes(
			attribute.String("file", filepath.Base(path)),
			attribute.String("mode", string(cfg.Mode)),
		))
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			observe.FailSpan(span, err, err.Error())
		}
		o.metrics.RecordFileAnalysis(ctx, string(cfg.Mode), result, time.Since(start).Seconds())
		span.End()
	}()

	r, err := capture.OpenWAV(path)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	defer r.Close()

	rep = &Report{
		Path:       path,
		Duration:   r.Duration(),
		SampleRate: r.SampleRate(),
		Channels:   r.Channels(),
	}

	session := analysis.NewSession(cfg, o.engineOpts...)
	profileCfg := cfg
	profileCfg.Mode = analysis.ModeDB
	profiler := analysis.NewEngine(profileCfg)

	var (
		sumRMS   float64
		sumBands analysis.BandEnergy
		samples  []float32
		offset   int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples, err = r.Next(samples, o.chunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		if len(samples) < o.chunkSize {
			break
		}
		frame := audio.AudioFrame{
			Samples:    samples,
			SampleRate: rep.SampleRate,
			Timestamp:  audio.SamplesDuration(offset, rep.SampleRate),
		}
		offset += int64(len(samples))
		rep.Chunks++

		res, perr := session.Process(frame)
		if perr != nil {
			rep.Skipped++
			observe.Logger(ctx).Debug("report: chunk skipped", "file", path, "at", frame.Timestamp, "err", perr)
			continue
		}
		if res.Decision.Committed {
			rep.Timeline = append(rep.Timeline, Transition{At: res.At, Status: res.Decision.Status, Value: res.Value})
		}

		if res.Metrics.RMS < silentRMS {
			continue
		}
		m, perr := profiler.Compute(frame)
		if perr != nil {
			continue
		}
		rep.Voiced++
		sumRMS += m.RMS
		sumBands.Low += m.Bands.Low
		sumBands.Mid += m.Bands.Mid
		sumBands.High += m.Bands.High
	}

	rep.Final = session.Status()
	rep.Predicted = analysis.Initializing
	if rep.Voiced > 0 {
		n := float64(rep.Voiced)
		rep.AvgRMS = sumRMS / n
		rep.AvgDB = analysis.DBFS(rep.AvgRMS)
		rep.Bands = analysis.BandEnergy{Low: sumBands.Low / n, Mid: sumBands.Mid / n, High: sumBands.High / n}
		rep.LowPercent, rep.HighPercent, _ = rep.Bands.Percentages()
		rep.Predicted = predict(cfg, rep)
	}
	span.SetAttributes(
		attribute.Int("chunks", rep.Chunks),
		attribute.String("predicted", rep.Predicted.String()),
	)
	return rep, nil
}

// predict classifies the averaged level and band profile with the live
// level and spectral stages.
func predict(cfg analysis.Config, rep *Report) analysis.Label {
	t := cfg.Thresholds
	level := analysis.LevelStage{Quiet: t.QuietDB, Loud: t.LoudDB}
	if cfg.Mode == analysis.ModeRMS {
		level = analysis.LevelStage{Quiet: t.QuietRMS, Loud: t.LoudRMS, UseIntRMS: true}
	}
	p := analysis.Pipeline{Stages: []analysis.Stage{
		level,
		analysis.SpectralStage{MuffledHigh: t.MuffledHighPercent, TinnyLow: t.TinnyLowPercent},
	}}
	m := analysis.FrameMetrics{
		RMS:      rep.AvgRMS,
		DB:       rep.AvgDB,
		IntRMS:   rep.AvgRMS * 32767,
		Bands:    rep.Bands,
		HasBands: true,
	}
	return p.Classify(m, 0).Label
}

// AnalyzeFiles analyses paths with at most parallel files in flight and
// returns the reports in input order. A file that fails to decode yields a
// nil report and contributes to the joined error; the other files are still
// analysed.
func AnalyzeFiles(ctx context.Context, paths []string, cfg analysis.Config, parallel int, opts ...Option) ([]*Report, error) {
	reports := make([]*Report, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, p := range paths {
		g.Go(func() error {
			rep, err := AnalyzeFile(ctx, p, cfg, opts...)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				errs[i] = fmt.Errorf("%s: %w", p, err)
				return nil
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, errors.Join(errs...)
}

// FindWAVFiles expands each argument into WAV file paths: directories are
// scanned (non-recursively) for *.wav files, anything else is kept as is.
// The result is sorted within each directory.
func FindWAVFiles(args ...string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		slices.Sort(found)
		out = append(out, found...)
	}
	return out, nil
}
