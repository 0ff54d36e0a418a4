package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

const (
	defaultStartTimeout    = 2 * time.Second
	defaultShutdownTimeout = 2 * time.Second
	maxStderrTail          = 4096
	maxErrorLineLength     = 200
)

// errNoAudio is reported when the capture process exits before delivering a
// single frame without printing a reason.
var errNoAudio = errors.New("process exited without producing audio")

// CommandConfig configures a [CommandSource].
type CommandConfig struct {
	// Name identifies the source in logs and errors.
	Name string

	// Path is the executable to run.
	Path string

	// Args are passed to the executable verbatim.
	Args []string

	// Format is the sample rate and channel count the process writes.
	Format audio.Format

	// FrameSize is the number of samples per delivered frame.
	FrameSize int

	// StartTimeout bounds how long Start waits for the first frame before
	// returning. A process that is still silent after this is assumed to be
	// running; the analyzer's stall detection covers it from there.
	// Defaults to 2s.
	StartTimeout time.Duration

	// ShutdownTimeout is how long Close waits after interrupting the process
	// before killing it. Defaults to 2s.
	ShutdownTimeout time.Duration
}

// CommandSource is an [audio.Source] that runs an external capture program
// and reads raw interleaved S16LE PCM from its stdout.
type CommandSource struct {
	cfg CommandConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	closing bool
	lastErr error
}

// Compile-time interface assertions.
var (
	_ audio.Source    = (*CommandSource)(nil)
	_ audio.Describer = (*CommandSource)(nil)
)

// NewCommandSource validates cfg and returns an unstarted source.
func NewCommandSource(cfg CommandConfig) (*CommandSource, error) {
	if cfg.Path == "" {
		return nil, errors.New("capture: command path is required")
	}
	if cfg.Format.SampleRate <= 0 || cfg.Format.Channels <= 0 {
		return nil, fmt.Errorf("capture: invalid format %s", cfg.Format)
	}
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("capture: frame size must be positive, got %d", cfg.FrameSize)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Path
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &CommandSource{cfg: cfg}, nil
}

// NewBackendSource builds a [CommandSource] that captures device through b.
func NewBackendSource(b Backend, device string, f audio.Format, frameSize int) (*CommandSource, error) {
	return NewCommandSource(CommandConfig{
		Name:      b.Name,
		Path:      b.Command,
		Args:      b.Args(device, f),
		Format:    f,
		FrameSize: frameSize,
	})
}

// Describe returns the command line being run.
func (s *CommandSource) Describe() string {
	return s.cfg.Name + ": " + s.cfg.Path + " " + strings.Join(s.cfg.Args, " ")
}

// Start launches the capture process and begins delivering frames to fn. It
// returns an error if the process cannot be started or exits before
// producing its first frame.
func (s *CommandSource) Start(ctx context.Context, fn audio.FrameFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrSourceClosed
	}
	if s.done != nil {
		return fmt.Errorf("capture: %s: already started", s.cfg.Name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, s.cfg.Path, s.cfg.Args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = s.cfg.ShutdownTimeout
	stderr := &tailBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("capture: %s: stdout pipe: %w", s.cfg.Name, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("capture: start %s: %w", s.cfg.Name, err)
	}

	ready := make(chan error, 1)
	done := make(chan struct{})
	s.lastErr = nil
	go s.run(cmd, stdout, stderr, fn, ready, done)

	timer := time.NewTimer(s.cfg.StartTimeout)
	defer timer.Stop()
	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-done
			return fmt.Errorf("capture: %s: %w", s.cfg.Name, err)
		}
	case <-timer.C:
		slog.Warn("capture: no audio yet, continuing", "source", s.cfg.Name, "waited", s.cfg.StartTimeout)
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}

	s.cancel = cancel
	s.done = done
	slog.Info("capture: started", "source", s.cfg.Name, "format", s.cfg.Format, "frame_size", s.cfg.FrameSize)
	return nil
}

// run reads fixed-size PCM blocks until the process ends or is cancelled.
func (s *CommandSource) run(cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer, fn audio.FrameFunc, ready chan<- error, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, s.cfg.FrameSize*s.cfg.Format.BytesPerFrame())
	var samples []float32
	delivered := false
	var readErr error
	for {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			readErr = err
			break
		}
		samples = audio.S16LEToMono(samples, buf, s.cfg.Format.Channels)
		if !delivered {
			delivered = true
			ready <- nil
		}
		fn(samples, s.cfg.Format.SampleRate)
	}

	waitErr := cmd.Wait()
	err := exitError(readErr, waitErr, stderr.lastLine())
	if !delivered {
		if err == nil {
			err = errNoAudio
		}
		ready <- err
		return
	}

	s.mu.Lock()
	closing := s.closing
	s.lastErr = err
	s.mu.Unlock()
	if !closing {
		slog.Warn("capture: process exited", "source", s.cfg.Name, "err", err)
	}
}

// Err returns why the capture process last exited, or nil while it runs.
func (s *CommandSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close interrupts the capture process and waits for frame delivery to stop.
// It is safe to call more than once.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.closing = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// exitError folds the read error, the process exit status and the last line
// of stderr into one error. A clean EOF with a zero exit status yields
// io.EOF so callers can tell the stream simply ended.
func exitError(readErr, waitErr error, stderrLine string) error {
	var err error
	switch {
	case waitErr != nil:
		err = waitErr
	case readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF):
		err = readErr
	default:
		err = io.ErrUnexpectedEOF
	}
	if stderrLine != "" {
		return fmt.Errorf("%w: %s", err, stderrLine)
	}
	return err
}

// tailBuffer keeps the last few KiB a process writes to stderr.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - maxStderrTail; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

// lastLine returns the last non-empty line written, truncated for logging.
func (t *tailBuffer) lastLine() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := strings.Split(strings.TrimSpace(string(t.buf)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if len(line) > maxErrorLineLength {
			return line[:maxErrorLineLength] + "..."
		}
		return line
	}
	return ""
}
