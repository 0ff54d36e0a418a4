package capture

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

// WAVReader decodes a WAV file into mono float frames. Multi-channel files
// are down-mixed by averaging the channels.
type WAVReader struct {
	stream beep.StreamSeekCloser
	format beep.Format
	buf    [][2]float64
}

// OpenWAV opens and decodes the header of the WAV file at path.
func OpenWAV(path string) (*WAVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open wav: %w", err)
	}
	stream, format, err := wav.Decode(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("capture: decode wav %s: %w", path, err)
	}
	return &WAVReader{stream: stream, format: format}, nil
}

// SampleRate returns the file's sample rate in Hz.
func (r *WAVReader) SampleRate() int { return int(r.format.SampleRate) }

// Channels returns the file's channel count before down-mixing.
func (r *WAVReader) Channels() int { return r.format.NumChannels }

// Duration returns the total length of the file.
func (r *WAVReader) Duration() time.Duration {
	return audio.SamplesDuration(int64(r.stream.Len()), r.SampleRate())
}

// Next decodes up to n samples into dst, reusing its capacity, and returns
// the filled slice. The last frame of a file may be shorter than n. Next
// returns io.EOF once the file is exhausted.
func (r *WAVReader) Next(dst []float32, n int) ([]float32, error) {
	if cap(r.buf) < n {
		r.buf = make([][2]float64, n)
	}
	got, _ := r.stream.Stream(r.buf[:n])
	if got == 0 {
		if err := r.stream.Err(); err != nil {
			return dst[:0], fmt.Errorf("capture: read wav: %w", err)
		}
		return dst[:0], io.EOF
	}
	return audio.DownmixStereo(dst, r.buf[:got]), nil
}

// Close releases the underlying file.
func (r *WAVReader) Close() error {
	return r.stream.Close()
}
