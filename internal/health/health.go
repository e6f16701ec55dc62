// Package health serves the liveness and readiness probes.
//
// Liveness (/healthz, /api/health/live) always answers 200 while the process
// can serve HTTP. Readiness (/readyz, /api/health/ready) runs every
// [Checker] concurrently and answers:
//
//   - 200 "ok" when all checks pass,
//   - 200 "degraded" when only optional checks fail,
//   - 503 "fail" when a required check fails.
//
// Bodies carry "status", a per-check "checks" map and the static "info"
// block passed to [New].
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Overall readiness states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is one named readiness check.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error

	// Optional checks only degrade readiness.
	Optional bool
}

// Pinger reports its own reachability, as the stores do.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker returns a required check that pings p.
func PingChecker(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// WritableDirChecker returns an optional check that creates and removes a
// probe file in dir.
func WritableDirChecker(name, dir string) Checker {
	return Checker{Name: name, Optional: true, Check: func(context.Context) error {
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return fmt.Errorf("not writable: %w", err)
		}
		_ = f.Close()
		return os.Remove(f.Name())
	}}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Info   map[string]any    `json:"info,omitempty"`
}

// Handler serves the probes. Checkers and info are fixed by [New].
type Handler struct {
	checkers []Checker
	info     map[string]any
}

// New returns a handler for checkers. info is echoed in every response and
// may be nil.
func New(info map[string]any, checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers), info: maps.Clone(info)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: StatusOK, Info: h.info})
}

// Readyz is the readiness probe. Each check gets its own [checkTimeout]
// deadline under the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := h.run(r.Context())

	res := result{Status: StatusOK, Checks: make(map[string]string, len(h.checkers)), Info: h.info}
	for i, c := range h.checkers {
		err := errs[i]
		if err == nil {
			res.Checks[c.Name] = "ok"
			continue
		}
		slog.WarnContext(r.Context(), "readiness check failed", "check", c.Name, "optional", c.Optional, "err", err)
		res.Checks[c.Name] = "fail: " + err.Error()
		switch {
		case !c.Optional:
			res.Status = StatusFail
		case res.Status == StatusOK:
			res.Status = StatusDegraded
		}
	}

	code := http.StatusOK
	if res.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// run executes every check concurrently; errs[i] belongs to checkers[i].
func (h *Handler) run(ctx context.Context) []error {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)
			if err == nil && cctx.Err() != nil {
				err = cctx.Err()
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	for _, p := range []string{"GET /healthz", "GET /api/health/live"} {
		mux.HandleFunc(p, h.Healthz)
	}
	for _, p := range []string{"GET /readyz", "GET /api/health/ready"} {
		mux.HandleFunc(p, h.Readyz)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("health: encode response", "err", err)
	}
}
