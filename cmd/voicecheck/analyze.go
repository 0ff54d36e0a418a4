package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/voicecheck/internal/analysis"
	"github.com/MrWong99/voicecheck/internal/report"
)

// AnalyzeCmd prints a quality report for recorded WAV files.
type AnalyzeCmd struct {
	Paths     []string      `arg:"" name:"path" type:"path" help:"WAV files or directories containing WAV files."`
	Mode      analysis.Mode `short:"m" help:"Analysis mode (db, rms, adaptive_noise). Overrides analysis.mode."`
	ChunkSize int           `default:"1024" help:"Samples per analysed chunk."`
	Parallel  int           `short:"j" default:"4" help:"Files analysed concurrently."`
	Timeline  bool          `short:"t" help:"Print the debounced status timeline of each file."`
}

// Run analyses every file and prints the reports in argument order.
func (c *AnalyzeCmd) Run(env *runEnv) error {
	cfg, err := env.loadConfig()
	if err != nil {
		return err
	}
	env.logLevel.Set(cfg.Server.LogLevel.SlogLevel())

	acfg := cfg.Analysis.ToAnalysis()
	if c.Mode != "" {
		acfg.Mode = c.Mode
	}
	if err := acfg.Validate(); err != nil {
		return err
	}

	paths, err := report.FindWAVFiles(c.Paths...)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no WAV files found")
	}

	reports, err := report.AnalyzeFiles(env.ctx, paths, acfg, c.Parallel, report.WithChunkSize(c.ChunkSize))
	r := lipgloss.NewRenderer(os.Stdout)
	for _, rep := range reports {
		if rep != nil {
			printReport(os.Stdout, r, rep, acfg.Mode, c.Timeline)
		}
	}
	return err
}

// printReport writes one report block.
func printReport(w io.Writer, r *lipgloss.Renderer, rep *report.Report, mode analysis.Mode, timeline bool) {
	fmt.Fprintln(w, titleStyle.Render(rep.Path))
	printKV(w, "Duration", rep.Duration.Round(time.Millisecond))
	printKV(w, "Format", fmt.Sprintf("%d Hz, %d ch", rep.SampleRate, rep.Channels))
	printKV(w, "Chunks", fmt.Sprintf("%d voiced of %d", rep.Voiced, rep.Chunks))
	if rep.Skipped > 0 {
		printKV(w, "Skipped", rep.Skipped)
	}
	if !rep.Silent() {
		printKV(w, "Avg RMS", fmt.Sprintf("%.4f", rep.AvgRMS))
		printKV(w, "Avg dBFS", fmt.Sprintf("%.1f", rep.AvgDB))
		printKV(w, "Low band", fmt.Sprintf("%.1f%%", rep.LowPercent*100))
		printKV(w, "High band", fmt.Sprintf("%.1f%%", rep.HighPercent*100))
	}
	printKV(w, "Predicted", statusStyle(r, rep.Predicted).Render(rep.Predicted.String()))
	printKV(w, "Final", statusStyle(r, rep.Final).Render(rep.Final.String()))

	if timeline && len(rep.Timeline) > 0 {
		unit := "dB"
		if mode == analysis.ModeRMS {
			unit = "RMS"
		}
		fmt.Fprintln(w, "  "+keyStyle.Render("Timeline:"))
		for _, t := range rep.Timeline {
			fmt.Fprintf(w, "    %9s  %s  (%s: %.1f)\n",
				t.At.Round(time.Millisecond), statusStyle(r, t.Status).Render(t.Status.String()), unit, t.Value)
		}
	}
	fmt.Fprintln(w)
}
