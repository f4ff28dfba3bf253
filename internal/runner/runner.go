// Package runner orchestrates the probe registry: concurrent fan-out,
// streaming persistence, temporal diffing, and the anomaly bridge.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dissonance/internal/diff"
	"dissonance/internal/logging"
	"dissonance/internal/model"
	"dissonance/internal/probe"
	"dissonance/internal/store"
)

// Runner holds the probe registry and the latest run state. The registry is
// set once before first use and not mutated during runs. Overlapping RunAll
// calls are not supported; callers serialize on IsRunning.
type Runner struct {
	store  *store.Store
	logger *slog.Logger

	mu      sync.Mutex
	probes  []probe.Probe
	results []model.ProbeResult
	deltas  []model.ProbeDelta
	running bool
	lastRun time.Time
}

// New returns a runner persisting into st.
func New(st *store.Store) *Runner {
	return &Runner{
		store:  st,
		logger: logging.New("runner"),
	}
}

// Register replaces the probe registry. Intended to be called once at
// startup, before any run.
func (r *Runner) Register(probes ...probe.Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = probes
}

// Probes returns the registered probes.
func (r *Runner) Probes() []probe.Probe {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probes
}

// IsRunning reports whether a run is in flight.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastRun returns the completion time of the most recent run.
func (r *Runner) LastRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

// Results returns the most recent result set, in completion order.
func (r *Runner) Results() []model.ProbeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results
}

// Deltas returns the diff computed by the most recent run.
func (r *Runner) Deltas() []model.ProbeDelta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deltas
}

// RunAll runs every registered probe concurrently. Each result is written to
// the store as soon as that probe completes. Once all probes finish, the set
// is diffed against the previous summary, the diff is persisted if non-empty,
// the combined summary is written, and in-memory state is updated. The
// returned list is in completion order, not registration order.
//
// Persistence failures are logged and swallowed: a full disk must not abort
// the run or block the next probe.
func (r *Runner) RunAll(ctx context.Context) []model.ProbeResult {
	r.mu.Lock()
	probes := r.probes
	r.running = true
	r.mu.Unlock()

	// Previous summary is loaded before the run starts so the diff is
	// against stable prior state, not a half-written current one.
	previous := r.store.ReadSummary()

	resultCh := make(chan model.ProbeResult, len(probes))

	var g errgroup.Group
	for _, p := range probes {
		g.Go(func() error {
			resultCh <- r.runGuarded(ctx, p)
			return nil
		})
	}

	done := make(chan struct{})
	results := make([]model.ProbeResult, 0, len(probes))
	go func() {
		defer close(done)
		for res := range resultCh {
			// Stream each result to disk as it arrives, not batched.
			if err := r.store.WriteResult(res); err != nil {
				r.logger.Warn("result write failed", "probe", res.ProbeID, "error", err)
			}
			results = append(results, res)
		}
	}()

	_ = g.Wait()
	close(resultCh)
	<-done

	deltas := diff.Diff(results, previous)
	if len(deltas) > 0 {
		if err := r.store.WriteDiff(deltas); err != nil {
			r.logger.Warn("diff write failed", "error", err)
		}
	}
	if err := r.store.WriteSummary(results); err != nil {
		r.logger.Warn("summary write failed", "error", err)
	}

	r.mu.Lock()
	r.results = results
	r.deltas = deltas
	r.running = false
	r.lastRun = time.Now().UTC()
	r.mu.Unlock()

	return results
}

// RunOne runs a single registered probe out of band, persists its result,
// and patches it into the in-memory result list.
func (r *Runner) RunOne(ctx context.Context, id string) (model.ProbeResult, error) {
	var target probe.Probe
	for _, p := range r.Probes() {
		if p.ID() == id {
			target = p
			break
		}
	}
	if target == nil {
		return model.ProbeResult{}, fmt.Errorf("unknown probe id %q", id)
	}

	res := r.runGuarded(ctx, target)
	if err := r.store.WriteResult(res); err != nil {
		r.logger.Warn("result write failed", "probe", res.ProbeID, "error", err)
	}

	r.mu.Lock()
	replaced := false
	for i, existing := range r.results {
		if existing.ProbeID == id {
			r.results[i] = res
			replaced = true
			break
		}
	}
	if !replaced {
		r.results = append(r.results, res)
	}
	r.mu.Unlock()

	return res, nil
}

// runGuarded enforces the contract that a probe never fails unrecoverably:
// a panic inside Run becomes a result with verdict error.
func (r *Runner) runGuarded(ctx context.Context, p probe.Probe) (res model.ProbeResult) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("probe panicked", "probe", p.ID(), "panic", rec)
			res = probe.ErrorResult(p.ID(), p.Name(), started, fmt.Sprintf("panic: %v", rec))
		}
	}()

	res = p.Run(ctx)
	r.logger.Debug("probe complete",
		"probe", res.ProbeID,
		"verdict", res.Verdict,
		"duration_ms", res.DurationMS)
	return res
}

// Anomalies maps every mismatching comparison across contradiction-verdict
// results into the legacy anomaly record. Lossy one-way adapter for the
// older assessment pipeline.
func (r *Runner) Anomalies() []model.Anomaly {
	var anomalies []model.Anomaly
	for _, res := range r.Results() {
		if res.Verdict != model.VerdictContradiction {
			continue
		}
		for _, c := range res.Comparisons {
			if c.Matches {
				continue
			}
			anomalies = append(anomalies, model.Anomaly{
				Name:           res.Name,
				Path:           "contradiction:" + res.ProbeID,
				Technique:      "cross-source verification",
				Description:    fmt.Sprintf("%s: %s reported %q but %s reported %q", c.Label, c.Left.Source, c.Left.Value, c.Right.Source, c.Right.Value),
				Severity:       model.AnomalySeverity,
				Classification: model.AnomalyClassification,
				ProbeID:        res.ProbeID,
				SourcePair:     c.Left.Source + " vs " + c.Right.Source,
				Evidence: []string{
					c.Left.Source + "=" + c.Left.Value,
					c.Right.Source + "=" + c.Right.Value,
					fmt.Sprintf("matches=%t", c.Matches),
				},
			})
		}
	}
	return anomalies
}
