// Package health serves liveness and readiness probes.
//
// Checks run in the background; probes only read the last observed state.
// A check turns unhealthy after FailureThreshold consecutive failures and
// healthy again after one success.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Check describes a registered check.
type Check struct {
	Name string
	Kind Kind
	Func CheckFunc
	// Timeout bounds a single run. Defaults to 2s.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures before the
	// check reports unhealthy. Defaults to 3.
	FailureThreshold int
}

type state struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]
	// fails is only touched by the goroutine running this check.
	fails int
}

func (s *state) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	if err := s.Func(ctx); err != nil {
		msg := err.Error()
		s.lastErr.Store(&msg)
		s.fails++
		if s.fails >= s.FailureThreshold {
			s.healthy.Store(false)
		}
		return
	}
	s.lastErr.Store(nil)
	s.fails = 0
	s.healthy.Store(true)
}

// Health holds registered checks and the manual readiness flag.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*state
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Register adds a check. Checks start healthy.
func (h *Health) Register(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	s := &state{Check: c}
	s.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, s)
	h.mu.Unlock()
}

// SetReady flips the manual readiness flag. The service sets it after
// startup and clears it when draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Run executes every check at interval until ctx is done. It returns nil on
// cancellation so it can run in an errgroup.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	h.mu.RLock()
	checks := append([]*state(nil), h.checks...)
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			s.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.run(ctx)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Failures returns the failing checks of kind by name.
func (h *Health) Failures(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string)
	for _, s := range h.checks {
		if s.Kind != kind || s.healthy.Load() {
			continue
		}
		msg := "unhealthy"
		if p := s.lastErr.Load(); p != nil {
			msg = *p
		}
		out[s.Name] = msg
	}
	return out
}

// Live serves the liveness probe.
func (h *Health) Live(w http.ResponseWriter, _ *http.Request) {
	write(w, h.Failures(Liveness))
}

// Ready serves the readiness probe.
func (h *Health) Ready(w http.ResponseWriter, _ *http.Request) {
	failures := h.Failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	write(w, failures)
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func write(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	resp := statusResponse{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: failures}
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
