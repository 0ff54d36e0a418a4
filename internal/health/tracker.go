package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voicecheck/internal/analysis"
)

// Snapshot is the latest analyzer output seen by a [Tracker].
type Snapshot struct {
	Status    string    `json:"status"`
	Value     float64   `json:"value"`
	ChangedAt time.Time `json:"changed_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Changes   int64     `json:"changes"`
}

// Tracker is an [analysis.Sink] that remembers the latest notification. It
// is safe for concurrent use and never blocks the analysis worker for longer
// than a mutex hand-off.
type Tracker struct {
	now func() time.Time

	mu   sync.Mutex
	snap Snapshot
	seen bool
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		now:  time.Now,
		snap: Snapshot{Status: analysis.Initializing.String()},
	}
}

// OnMetric implements [analysis.Sink].
func (t *Tracker) OnMetric(status analysis.Label, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = true
	t.snap.Status = status.String()
	t.snap.Value = value
	t.snap.UpdatedAt = t.now()
}

// OnStatusChange implements [analysis.Sink].
func (t *Tracker) OnStatusChange(status analysis.Label, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.seen = true
	t.snap.Status = status.String()
	t.snap.Value = value
	t.snap.UpdatedAt = now
	t.snap.ChangedAt = now
	t.snap.Changes++
}

// Snapshot returns the latest state and whether any notification arrived.
func (t *Tracker) Snapshot() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap, t.seen
}

// Reset forgets the previous analyzer's output, e.g. after a restart.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = false
	t.snap = Snapshot{Status: analysis.Initializing.String()}
}

// Checker fails when no notification arrived within maxAge. The grace period
// starts at the first call, so a freshly started listener is not reported
// unready before it had a chance to analyse a frame.
func (t *Tracker) Checker(maxAge time.Duration) Checker {
	var (
		once    sync.Once
		started time.Time
	)
	return Checker{Name: "status", Check: func(context.Context) error {
		once.Do(func() { started = t.now() })
		t.mu.Lock()
		defer t.mu.Unlock()
		last := t.snap.UpdatedAt
		if !t.seen {
			last = started
		}
		if age := t.now().Sub(last); age > maxAge {
			return fmt.Errorf("health: no analyzer output for %s", age.Round(time.Millisecond))
		}
		return nil
	}}
}
