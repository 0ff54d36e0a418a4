package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/voicecheck/internal/analysis"
)

// consoleSink redraws a single status line on a terminal. It is driven by an
// [analysis.AsyncSink]; SetMode may be called from another goroutine.
type consoleSink struct {
	w io.Writer
	r *lipgloss.Renderer

	mu     sync.Mutex
	unit   string
	format string
	drawn  bool
}

// newConsoleSink returns a sink that prints to w. The meter unit follows the
// analysis mode: int RMS in rms mode, dBFS otherwise.
func newConsoleSink(w io.Writer, mode analysis.Mode) *consoleSink {
	s := &consoleSink{w: w, r: lipgloss.NewRenderer(w)}
	s.SetMode(mode)
	return s
}

// SetMode switches the meter unit, for example after a config reload.
func (s *consoleSink) SetMode(mode analysis.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unit, s.format = "dB", "%6.1f"
	if mode == analysis.ModeRMS {
		s.unit, s.format = "RMS", "%5.0f"
	}
}

// OnMetric implements [analysis.Sink].
func (s *consoleSink) OnMetric(status analysis.Label, value float64) {
	s.draw(status, value)
}

// OnStatusChange implements [analysis.Sink].
func (s *consoleSink) OnStatusChange(status analysis.Label, value float64) {
	s.draw(status, value)
}

func (s *consoleSink) draw(status analysis.Label, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	label := statusStyle(s.r, status).Render(fmt.Sprintf("%-13s", status))
	fmt.Fprintf(s.w, "\rStatus: %s (%s: "+s.format+")", label, s.unit, value)
	s.drawn = true
}

// Finish ends the status line so later output starts on a fresh line.
func (s *consoleSink) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drawn {
		fmt.Fprintln(s.w)
		s.drawn = false
	}
}
