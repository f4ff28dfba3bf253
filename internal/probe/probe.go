package probe

import (
	"context"
	"fmt"
	"time"

	"dissonance/internal/model"
)

// Probe forces the operating system to answer the same factual question
// through several independent code paths and reports disagreement.
//
// Run must always return a ProbeResult, never fail unrecoverably: a source
// that cannot be read degrades individual comparisons (they are omitted),
// and only total inability to reach any source yields verdict degraded.
// Run may perform network and file I/O but must not mutate shared engine
// state; any blocking I/O inside a probe needs its own explicit deadline,
// because the orchestrator imposes no outer timeout.
type Probe interface {
	// ID is the stable kebab-case identifier, unique across the registry.
	ID() string

	// Name is the display string.
	Name() string

	// Metadata is the mandatory five-field documentation contract,
	// fixed at construction.
	Metadata() model.ProbeMetadata

	// Run executes the probe and returns its result.
	Run(ctx context.Context) model.ProbeResult
}

// DeriveVerdict computes the verdict from a comparison matrix. A result is
// a contradiction iff at least one comparison mismatched; degraded iff no
// pair of sources could be compared at all; otherwise consistent.
func DeriveVerdict(comps []model.SourceComparison) model.Verdict {
	if len(comps) == 0 {
		return model.VerdictDegraded
	}
	for _, c := range comps {
		if !c.Matches {
			return model.VerdictContradiction
		}
	}
	return model.VerdictConsistent
}

// MismatchCount returns the number of failed comparisons.
func MismatchCount(comps []model.SourceComparison) int {
	n := 0
	for _, c := range comps {
		if !c.Matches {
			n++
		}
	}
	return n
}

// NewResult assembles an immutable ProbeResult with a derived verdict.
// hypothesis is appended to the summary when at least one mismatch exists.
func NewResult(p Probe, started time.Time, comps []model.SourceComparison, hypothesis string) model.ProbeResult {
	verdict := DeriveVerdict(comps)

	var summary string
	switch verdict {
	case model.VerdictDegraded:
		summary = "too few sources responded to compare"
	case model.VerdictConsistent:
		summary = fmt.Sprintf("%d comparisons, all sources agree", len(comps))
	default:
		summary = fmt.Sprintf("%d of %d comparisons mismatched: %s",
			MismatchCount(comps), len(comps), hypothesis)
	}

	return model.ProbeResult{
		ProbeID:     p.ID(),
		Name:        p.Name(),
		Verdict:     verdict,
		Comparisons: comps,
		Summary:     summary,
		CreatedAt:   time.Now().UTC(),
		DurationMS:  time.Since(started).Milliseconds(),
	}
}

// ErrorResult reports a probe that failed entirely, e.g. panicked. Callers
// always receive a verdict and a message, even in the total-failure case.
func ErrorResult(id, name string, started time.Time, cause string) model.ProbeResult {
	return model.ProbeResult{
		ProbeID:    id,
		Name:       name,
		Verdict:    model.VerdictError,
		Summary:    "probe failed: " + cause,
		CreatedAt:  time.Now().UTC(),
		DurationMS: time.Since(started).Milliseconds(),
	}
}
