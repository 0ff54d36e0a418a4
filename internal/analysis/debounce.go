package analysis

import "time"

// Decision is the outcome of feeding one raw verdict to the [Debouncer].
type Decision struct {
	// Status is the displayed status after this frame.
	Status Label

	// Previous is the displayed status before this frame.
	Previous Label

	// Committed is true when Status differs from Previous.
	Committed bool
}

// Debouncer turns the jittery per-frame label stream into a stable displayed
// status. A candidate label must persist for a transition-specific duration
// before it is committed: short (attack) for getting louder, long (decay) for
// falling silent, and normal for everything else.
//
// A Debouncer is owned by a single goroutine.
type Debouncer struct {
	attack time.Duration
	decay  time.Duration
	normal time.Duration

	current        Label
	candidate      Label
	candidateSince time.Duration
}

// NewDebouncer creates a debouncer with the persistence durations of cfg. The
// initial status and candidate are [Initializing].
func NewDebouncer(cfg Config) *Debouncer {
	return &Debouncer{
		attack:    cfg.Durations.Attack,
		decay:     cfg.Durations.Decay,
		normal:    cfg.Durations.Normal,
		current:   Initializing,
		candidate: Initializing,
	}
}

// Current returns the displayed status.
func (d *Debouncer) Current() Label { return d.current }

// Candidate returns the pending raw label and the stream time it appeared.
func (d *Debouncer) Candidate() (Label, time.Duration) { return d.candidate, d.candidateSince }

// Observe feeds the raw verdict of the frame at stream time at.
func (d *Debouncer) Observe(v Verdict, at time.Duration) Decision {
	if v.Label != d.candidate {
		d.candidate = v.Label
		d.candidateSince = at
		if v.HasSince && v.Since < at {
			d.candidateSince = v.Since
		}
	}

	prev := d.current
	if d.candidate != d.current && at-d.candidateSince >= d.required(d.current, d.candidate) {
		d.current = d.candidate
	}
	return Decision{Status: d.current, Previous: prev, Committed: d.current != prev}
}

// required returns the persistence duration for the transition from -> to.
func (d *Debouncer) required(from, to Label) time.Duration {
	switch {
	case from == TooQuiet && to == Good, from == Good && to == TooLoud:
		return d.attack
	case from == Good && to == TooQuiet:
		return d.decay
	default:
		return d.normal
	}
}
