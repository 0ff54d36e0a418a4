package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

// FileSource is an [audio.Source] that plays a WAV file into the analyzer.
// With Realtime set, frames are paced at the file's sample rate so the
// analyzer sees the same timing as a live device; otherwise the file is
// delivered as fast as the consumer accepts it.
type FileSource struct {
	path      string
	frameSize int
	realtime  bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
	err    error
}

var (
	_ audio.Source    = (*FileSource)(nil)
	_ audio.Describer = (*FileSource)(nil)
)

// NewFileSource returns a source reading path in frames of frameSize samples.
func NewFileSource(path string, frameSize int, realtime bool) (*FileSource, error) {
	if path == "" {
		return nil, errors.New("capture: file path is required")
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("capture: frame size must be positive, got %d", frameSize)
	}
	return &FileSource{path: path, frameSize: frameSize, realtime: realtime}, nil
}

// Describe returns the file being read.
func (s *FileSource) Describe() string { return "file: " + s.path }

// Start opens the file and starts delivering frames to fn.
func (s *FileSource) Start(ctx context.Context, fn audio.FrameFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrSourceClosed
	}
	if s.done != nil {
		return fmt.Errorf("capture: %s: already started", s.path)
	}
	r, err := OpenWAV(s.path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, r, fn, s.done)
	return nil
}

func (s *FileSource) run(ctx context.Context, r *WAVReader, fn audio.FrameFunc, done chan<- struct{}) {
	defer close(done)
	defer r.Close()

	rate := r.SampleRate()
	var tick <-chan time.Time
	if s.realtime {
		t := time.NewTicker(audio.SamplesDuration(int64(s.frameSize), rate))
		defer t.Stop()
		tick = t.C
	}

	var samples []float32
	for {
		if ctx.Err() != nil {
			return
		}
		var err error
		samples, err = r.Next(samples, s.frameSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("capture: file source failed", "path", s.path, "err", err)
				s.setErr(err)
			}
			return
		}
		fn(samples, rate)
		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *FileSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Done is closed once the whole file has been delivered or the source was
// closed. It is nil before Start.
func (s *FileSource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the decode error that ended delivery early, if any.
func (s *FileSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivery. It is safe to call more than once.
func (s *FileSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
