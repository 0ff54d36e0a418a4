package report

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voicecheck/internal/analysis"
	"github.com/MrWong99/voicecheck/internal/observe"
)

const testRate = 16000

// Bin-centred frequencies for 1024-sample chunks at 16 kHz.
const (
	lowHz  = 125.0
	midHz  = 1000.0
	highHz = 3000.0
)

type tone struct {
	hz, amp float64
}

// writeWAV encodes seconds of the sum of tones as a mono 16-bit file.
func writeWAV(t *testing.T, dir, name string, seconds float64, tones ...tone) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	n := 0
	gen := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			var v float64
			for _, tn := range tones {
				v += tn.amp * math.Sin(2*math.Pi*tn.hz*float64(n)/testRate)
			}
			samples[i] = [2]float64{v, v}
			n++
		}
		return len(samples), true
	})
	format := beep.Format{SampleRate: testRate, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, beep.Take(int(seconds*testRate), gen), format); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func TestAnalyzeFile_Predictions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := []struct {
		name  string
		tones []tone
		want  analysis.Label
	}{
		{"balanced", []tone{{lowHz, 0.1}, {midHz, 0.1}, {highHz, 0.1}}, analysis.Good},
		{"loud", []tone{{midHz, 0.9}}, analysis.TooLoud},
		{"quiet", []tone{{lowHz, 0.004}, {midHz, 0.004}, {highHz, 0.004}}, analysis.TooQuiet},
		{"muffled", []tone{{lowHz, 0.1}, {midHz, 0.1}}, analysis.Muffled},
		{"tinny", []tone{{midHz, 0.1}, {highHz, 0.1}}, analysis.Tinny},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeWAV(t, dir, tc.name+".wav", 2, tc.tones...)
			rep, err := AnalyzeFile(context.Background(), path, analysis.DefaultConfig())
			if err != nil {
				t.Fatalf("AnalyzeFile: %v", err)
			}
			if rep.Predicted != tc.want {
				t.Errorf("Predicted = %v, want %v (avg %.1f dB, low %.2f, high %.2f)",
					rep.Predicted, tc.want, rep.AvgDB, rep.LowPercent, rep.HighPercent)
			}
			if rep.Silent() {
				t.Error("Silent() = true for a voiced file")
			}
		})
	}
}

func TestAnalyzeFile_LevelAndTimeline(t *testing.T) {
	t.Parallel()
	path := writeWAV(t, t.TempDir(), "loud.wav", 2, tone{midHz, 0.9})
	rep, err := AnalyzeFile(context.Background(), path, analysis.DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	// 31 whole chunks of 1024 in 32000 samples.
	if rep.Chunks != 31 || rep.Voiced != 31 || rep.Skipped != 0 {
		t.Errorf("chunks = %d, voiced = %d, skipped = %d", rep.Chunks, rep.Voiced, rep.Skipped)
	}
	if rep.SampleRate != testRate || rep.Channels != 1 {
		t.Errorf("format = %dHz %dch", rep.SampleRate, rep.Channels)
	}
	// A sine of amplitude 0.9 sits at 20*log10(0.9/sqrt2) dBFS.
	if want := 20 * math.Log10(0.9/math.Sqrt2); math.Abs(rep.AvgDB-want) > 0.1 {
		t.Errorf("AvgDB = %.2f, want %.2f", rep.AvgDB, want)
	}
	if len(rep.Timeline) != 1 {
		t.Fatalf("timeline = %+v, want one transition", rep.Timeline)
	}
	if tr := rep.Timeline[0]; tr.Status != analysis.TooLoud || tr.At <= 0 || tr.At > rep.Duration {
		t.Errorf("transition = %+v", tr)
	}
	if rep.Final != analysis.TooLoud {
		t.Errorf("Final = %v, want TOO LOUD", rep.Final)
	}
}

func TestAnalyzeFile_SilentFile(t *testing.T) {
	t.Parallel()
	path := writeWAV(t, t.TempDir(), "silence.wav", 1)
	rep, err := AnalyzeFile(context.Background(), path, analysis.DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	if !rep.Silent() || rep.Predicted != analysis.Initializing {
		t.Errorf("Silent() = %v, Predicted = %v", rep.Silent(), rep.Predicted)
	}
	if rep.Chunks == 0 {
		t.Error("silent chunks must still be analysed for the timeline")
	}
}

func TestAnalyzeFile_RMSMode(t *testing.T) {
	t.Parallel()
	path := writeWAV(t, t.TempDir(), "rms.wav", 1, tone{lowHz, 0.1}, tone{midHz, 0.1}, tone{highHz, 0.1})
	cfg := analysis.DefaultConfig()
	cfg.Mode = analysis.ModeRMS
	rep, err := AnalyzeFile(context.Background(), path, cfg, WithChunkSize(512))
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	if rep.Chunks != 31 {
		t.Errorf("chunks = %d, want 31 with 512-sample chunks", rep.Chunks)
	}
	// The band profile is available in every mode.
	if rep.Bands.Total() == 0 || rep.Predicted != analysis.Good {
		t.Errorf("bands = %+v, predicted = %v", rep.Bands, rep.Predicted)
	}
}

func TestAnalyzeFile_Errors(t *testing.T) {
	t.Parallel()
	if _, err := AnalyzeFile(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), analysis.DefaultConfig()); err == nil {
		t.Error("expected error for a missing file")
	}

	bad := analysis.DefaultConfig()
	bad.QueueSize = 0
	if _, err := AnalyzeFile(context.Background(), "x.wav", bad); err == nil {
		t.Error("expected error for an invalid config")
	}

	path := writeWAV(t, t.TempDir(), "tone.wav", 1, tone{midHz, 0.1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := AnalyzeFile(ctx, path, analysis.DefaultConfig()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestAnalyzeFile_RecordsDuration(t *testing.T) {
	t.Parallel()
	m, reader := testMetrics(t)
	path := writeWAV(t, t.TempDir(), "tone.wav", 1, tone{midHz, 0.1})
	if _, err := AnalyzeFile(context.Background(), path, analysis.DefaultConfig(), WithMetrics(m)); err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "voicecheck.file_analysis.duration" {
				continue
			}
			h, ok := md.Data.(metricdata.Histogram[float64])
			if !ok || len(h.DataPoints) != 1 || h.DataPoints[0].Count != 1 {
				t.Fatalf("unexpected data %+v", md.Data)
			}
			return
		}
	}
	t.Error("voicecheck.file_analysis.duration not recorded")
}

func TestAnalyzeFiles_KeepsOrderAndReportsFailures(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	paths := []string{
		writeWAV(t, dir, "a.wav", 1, tone{midHz, 0.1}),
		filepath.Join(dir, "missing.wav"),
		writeWAV(t, dir, "c.wav", 1, tone{midHz, 0.9}),
	}
	reports, err := AnalyzeFiles(context.Background(), paths, analysis.DefaultConfig(), 2)
	if err == nil {
		t.Fatal("expected an error for the missing file")
	}
	if len(reports) != 3 || reports[1] != nil {
		t.Fatalf("reports = %v", reports)
	}
	if reports[0].Path != paths[0] || reports[2].Path != paths[2] {
		t.Errorf("reports out of order")
	}
}

func TestFindWAVFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"b.wav", "A.WAV", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.wav"), 0o700); err != nil {
		t.Fatal(err)
	}
	extra := filepath.Join(t.TempDir(), "single.wav")
	if err := os.WriteFile(extra, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := FindWAVFiles(dir, extra)
	if err != nil {
		t.Fatalf("FindWAVFiles: %v", err)
	}
	want := []string{filepath.Join(dir, "A.WAV"), filepath.Join(dir, "b.wav"), extra}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := FindWAVFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for a missing path")
	}
}
