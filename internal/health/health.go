// Package health serves the liveness, readiness and status endpoints of a
// running voicecheck listener.
//
//   - /healthz reports that the process can serve HTTP.
//   - /readyz returns 200 only when every registered [Checker] passes,
//     typically the analyzer's own health and the freshness of its output.
//   - /status returns the latest status seen by a [Tracker].
//
// Responses are JSON objects.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the component is
// ready and an error describing the problem otherwise.
type Checker struct {
	// Name labels the check in the JSON response (e.g. "analyzer").
	Name string

	// Check probes the component. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Func builds a [Checker] from a context-free probe such as
// analysis.Analyzer.Healthy. The probe is abandoned when the check context
// ends first.
func Func(name string, probe func() error) Checker {
	return Checker{Name: name, Check: func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() { done <- probe() }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
}

// result is the JSON body of /healthz and /readyz.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	tracker  *Tracker
}

// Option configures a [Handler].
type Option func(*Handler)

// WithTracker serves /status from t.
func WithTracker(t *Tracker) Option {
	return func(h *Handler) { h.tracker = t }
}

// New creates a [Handler] that evaluates checkers on each /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{checkers: append([]Checker(nil), checkers...)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers concurrently, each under a [checkTimeout]
// deadline derived from the request context, and returns 503 if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		failed bool
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failed = true
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if failed {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Status writes the tracker's latest snapshot. It returns 503 until the first
// notification arrives and 404 when no tracker is configured.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	if h.tracker == nil {
		writeJSON(w, http.StatusNotFound, result{Status: "fail", Checks: map[string]string{"status": "no tracker configured"}})
		return
	}
	snap, ok := h.tracker.Snapshot()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /status", h.Status)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"status":"error","error":%q}`, err.Error()), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
