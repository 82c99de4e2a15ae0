// Package health provides a registry of named subsystem checks backing
// the health endpoints. Checks run sequentially in registration order,
// each under its own timeout so one stuck dependency cannot wedge the
// whole probe.
package health

import (
	"context"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds a single checker invocation.
const DefaultCheckTimeout = 2 * time.Second

// Status is the result of one subsystem check.
type Status struct {
	Name      string  `json:"name"`
	Healthy   bool    `json:"healthy"`
	Detail    string  `json:"detail,omitempty"`
	LatencyMS float64 `json:"latencyMs"`
}

// Checker probes a single subsystem. It must honor ctx cancellation.
type Checker func(ctx context.Context) Status

// Registry holds named checkers and runs them on demand.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	byName  map[string]Checker
	timeout time.Duration
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Checker), timeout: DefaultCheckTimeout}
}

// Register adds a checker under a name. Registering the same name again
// replaces the previous checker in place.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.byName[name]; !seen {
		r.order = append(r.order, name)
	}
	r.byName[name] = check
}

// CheckAll runs every registered checker and reports the aggregate:
// healthy only when all subsystems are healthy.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	checks := make(map[string]Checker, len(r.byName))
	for name, check := range r.byName {
		checks[name] = check
	}
	timeout := r.timeout
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		start := time.Now()
		st := runChecker(ctx, checks[name], timeout)
		if st.Name == "" {
			st.Name = name
		}
		st.LatencyMS = float64(time.Since(start)) / float64(time.Millisecond)
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}

func runChecker(ctx context.Context, check Checker, timeout time.Duration) Status {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Status, 1)
	go func() { done <- check(cctx) }()
	select {
	case st := <-done:
		return st
	case <-cctx.Done():
		return Status{Healthy: false, Detail: "check timed out"}
	}
}
