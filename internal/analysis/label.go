package analysis

// Label is a classification status. The classifier produces one raw label per
// frame; the [Debouncer] turns the raw stream into the displayed status.
type Label int

const (
	// Initializing is the status before anything has been committed, and the
	// raw label while the noise profile is still being captured.
	Initializing Label = iota

	// TooQuiet means the level is below the quiet threshold.
	TooQuiet

	// Good means level and tonal balance are within bounds.
	Good

	// TooLoud means the level is above the loud threshold.
	TooLoud

	// Muffled means too little high-band energy for the level.
	Muffled

	// Tinny means too little low-band energy for the level.
	Tinny

	// Noisy means a large share of the signal is attributable to background noise.
	Noisy

	// CheckProfile means the stream has been silent long enough to suggest a
	// wrong device routing, e.g. a Bluetooth headset in the wrong profile.
	CheckProfile

	// Error is never produced by the classifier. The worker reports it to the
	// sink when processing a frame fails unexpectedly.
	Error
)

// String returns the display text of the label.
func (l Label) String() string {
	switch l {
	case Initializing:
		return "INITIALIZING"
	case TooQuiet:
		return "TOO QUIET"
	case Good:
		return "GOOD"
	case TooLoud:
		return "TOO LOUD"
	case Muffled:
		return "MUFFLED"
	case Tinny:
		return "TINNY"
	case Noisy:
		return "NOISY"
	case CheckProfile:
		return "CHECK PROFILE"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// loudness orders labels from quietest to loudest. Labels derived from the
// "good" level band share a rank.
func (l Label) loudness() int {
	switch l {
	case CheckProfile:
		return 0
	case TooQuiet:
		return 1
	case Good, Muffled, Tinny, Noisy:
		return 2
	case TooLoud:
		return 3
	default:
		return -1
	}
}
