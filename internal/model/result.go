package model

import "time"

// ProbeMetadata is the mandatory documentation contract attached to every
// probe's identity. It is fixed at construction and never varies per run.
type ProbeMetadata struct {
	FalseClaim        string `json:"false_claim"`         // The lie this probe detects (e.g., "this process does not exist")
	Sources           string `json:"sources"`             // Independent ground-truth code paths consulted
	AdversaryCost     string `json:"adversary_cost"`      // What an attacker must subvert to defeat the probe
	UserMessage       string `json:"user_message"`        // What the user is shown when a contradiction fires
	FalsePositiveRate string `json:"false_positive_rate"` // Expected FP rate under normal operation
}

// SourceValue is one observation: which code path produced it and what it saw.
type SourceValue struct {
	Source string `json:"source"` // Source identifier (e.g., "udp:1.1.1.1")
	Value  string `json:"value"`  // Observed value, stringified
}

// SourceComparison records one pairwise (or grouped) comparison performed
// inside a probe run. It has no identity across runs; labels are matched
// textually by the differ.
type SourceComparison struct {
	Label   string      `json:"label"`   // Human-readable comparison label
	Left    SourceValue `json:"left"`    // First observation
	Right   SourceValue `json:"right"`   // Second observation
	Matches bool        `json:"matches"` // Whether the two agree under the probe's equality policy
}

// Verdict classifies one probe run.
type Verdict string

const (
	VerdictConsistent    Verdict = "consistent"    // All compared sources agree
	VerdictContradiction Verdict = "contradiction" // At least one disagreement
	VerdictDegraded      Verdict = "degraded"      // Too few sources responded to compare
	VerdictError         Verdict = "error"         // The probe itself failed
)

// ProbeResult is the immutable outcome of one completed probe run. The next
// run of the same probe supersedes it wholesale; results are never mutated.
type ProbeResult struct {
	ProbeID     string             `json:"probe_id"`    // Stable kebab-case probe identifier
	Name        string             `json:"name"`        // Display name
	Verdict     Verdict            `json:"verdict"`     // Derived from Comparisons, never set ad hoc
	Comparisons []SourceComparison `json:"comparisons"` // Ordered comparison matrix
	Summary     string             `json:"summary"`     // Mismatch count and short hypothesis
	CreatedAt   time.Time          `json:"created_at"`  // Completion timestamp
	DurationMS  int64              `json:"duration_ms"` // Execution duration
}
