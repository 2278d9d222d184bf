// Package health serves the liveness and readiness probes of the studio
// server.
//
//   - /healthz always answers 200 while the process serves HTTP.
//   - /readyz answers 200 only when every registered [Checker] passes.
//
// Responses are JSON objects with a "status" field ("ok" or "fail") and a
// "checks" map holding each checker's result.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/cantor/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil when the
// dependency is usable.
type Checker struct {
	Name string

	// Optional checks report their failure without failing readiness. The
	// studio keeps working without speech recognition, for instance.
	Optional bool

	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New returns a handler evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers concurrently, each under [checkTimeout].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	outcomes := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			outcomes[i] = c.Check(ctx)
		})
	}
	wg.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		err := outcomes[i]
		switch {
		case err == nil:
			res.Checks[c.Name] = "ok"
		case c.Optional:
			res.Checks[c.Name] = "degraded: " + err.Error()
		default:
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Group is a provider failover group whose breaker states can be probed.
// The resilience fallback wrappers implement it.
type Group interface {
	Available() bool
	Status() []resilience.EntryStatus
}

// GroupCheck reports a failure when every backend of the group returned by
// get has an open circuit breaker. get is called on each probe so groups
// rebuilt on reload are seen; a nil group counts as not configured.
func GroupCheck(name string, optional bool, get func() Group) Checker {
	return Checker{
		Name:     name,
		Optional: optional,
		Check: func(context.Context) error {
			g := get()
			if g == nil {
				return errors.New("not configured")
			}
			if g.Available() {
				return nil
			}
			var states []string
			for _, s := range g.Status() {
				states = append(states, s.Name+"="+s.State)
			}
			return fmt.Errorf("all backends unavailable (%s)", strings.Join(states, ", "))
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
