// Package health implements the liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP at all.
// /readyz runs every registered [Checker] and answers 200 only if all of
// them pass, so a pod with a broken database connection or an empty sign
// lexicon is pulled out of rotation instead of returning errors to users.
//
// Both endpoints reply with a JSON object: a "status" field of "ok" or
// "fail", and on /readyz a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness probe so one hung dependency
// cannot stall the whole /readyz response.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable and must respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// report is the JSON body both probe endpoints write.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker set is fixed at
// construction, which keeps it safe for concurrent requests.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] over the given checkers. /readyz evaluates them
// sequentially in the order given.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz evaluates every checker and answers 503 if any of them fails.
// The response body names each failing check with its error.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		if err := h.probe(r.Context(), c); err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			rep.Checks[c.Name] = "ok"
		}
	}

	writeJSON(w, status, rep)
}

func (h *Handler) probe(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return c.Check(ctx)
}

// Register mounts both probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// Pinger reports backend connectivity. *pgxpool.Pool satisfies it directly;
// other clients can be adapted with a closure via [Named].
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a readiness checker that pings the backing store.
func Database(p Pinger) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// EntryCounter reports the number of entries currently loaded. The sign
// lexicon index satisfies it.
type EntryCounter interface {
	Len() int
}

// Lexicon returns a readiness checker that fails while the sign lexicon is
// empty. An empty lexicon means the dataset failed to load and every word
// lookup would miss.
func Lexicon(c EntryCounter) Checker {
	return Checker{
		Name: "lexicon",
		Check: func(_ context.Context) error {
			if c.Len() == 0 {
				return errors.New("no lexicon entries loaded")
			}
			return nil
		},
	}
}

// Named wraps an arbitrary probe function as a [Checker]. Used for
// dependencies without a stable client interface, e.g. the face encoder
// sidecar or the redis ceremony store.
func Named(name string, check func(ctx context.Context) error) Checker {
	return Checker{Name: name, Check: check}
}
