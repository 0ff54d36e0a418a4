package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// fullScale16 maps signed 16-bit PCM onto [-1.0, 1.0).
const fullScale16 = 32768.0

// Format describes the sample rate and channel count of an interleaved PCM
// stream as delivered by a capture device or decoded file.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// BytesPerFrame returns the number of bytes one interleaved S16LE sample frame
// occupies (2 bytes per channel).
func (f Format) BytesPerFrame() int {
	return 2 * max(f.Channels, 1)
}

// S16LEToMono decodes little-endian signed 16-bit interleaved PCM and down-mixes
// it to mono floats by averaging all channels of each sample frame. Trailing
// bytes that do not form a complete sample frame are ignored.
//
// If dst has enough capacity it is reused; otherwise a new slice is allocated.
func S16LEToMono(dst []float32, pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	stride := 2 * channels
	frames := len(pcm) / stride
	if cap(dst) < frames {
		dst = make([]float32, frames)
	}
	dst = dst[:frames]

	for i := range frames {
		base := i * stride
		var sum int32
		for ch := range channels {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[base+ch*2:])))
		}
		dst[i] = float32(float64(sum) / float64(channels) / fullScale16)
	}
	return dst
}

// DownmixInterleaved averages interleaved float samples with the given channel
// count into a new mono slice. Mono input is copied unchanged.
func DownmixInterleaved(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			sum += float64(samples[i*channels+ch])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// DownmixStereo averages the left and right channel of each sample pair into
// a mono float. This is the shape decoded WAV data is delivered in.
func DownmixStereo(dst []float32, pairs [][2]float64) []float32 {
	if cap(dst) < len(pairs) {
		dst = make([]float32, len(pairs))
	}
	dst = dst[:len(pairs)]
	for i, p := range pairs {
		dst[i] = float32((p[0] + p[1]) / 2)
	}
	return dst
}

// FloatToS16LE encodes mono float samples as little-endian int16 PCM, clamping
// values outside [-1.0, 1.0].
func FloatToS16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s) * fullScale16
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// SamplesDuration returns the stream time covered by n samples at rate Hz.
func SamplesDuration(n int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
