package audio

import "time"

// AudioFrame is a single block of mono audio flowing through the analysis
// pipeline. Frames are produced once by a [Source] callback and handed off by
// value; the Samples slice must not be mutated after the frame is created.
type AudioFrame struct {
	// Samples holds mono float samples in the nominal range [-1.0, 1.0].
	Samples []float32

	// SampleRate in Hz that was in effect when the frame was captured.
	SampleRate int

	// Timestamp marks the stream time of the first sample, relative to the
	// start of the stream. It is derived from the cumulative sample count, so
	// it advances with the audio rather than with the wall clock.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame. It returns 0 when the
// sample rate is unknown.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// End returns the stream time just past the last sample of the frame.
func (f AudioFrame) End() time.Duration {
	return f.Timestamp + f.Duration()
}
