package model

// ProbeDelta describes how one probe's state changed between two consecutive
// runs. Deltas are derived artifacts of a diff, not authoritative state: they
// are produced only when something changed and are superseded by the next diff.
type ProbeDelta struct {
	ProbeID string `json:"probe_id"`
	Name    string `json:"name"`

	// PreviousVerdict is nil when the probe did not appear in the previous run.
	PreviousVerdict *Verdict `json:"previous_verdict,omitempty"`
	CurrentVerdict  Verdict  `json:"current_verdict"`

	// Change is a human-readable description of the transition.
	Change string `json:"change"`

	// NewContradictions are comparisons that are mismatches now but whose
	// label was not a mismatch in the previous run.
	NewContradictions []SourceComparison `json:"new_contradictions,omitempty"`

	// ResolvedContradictions are comparisons that were mismatches in the
	// previous run and are no longer mismatched (or no longer present).
	ResolvedContradictions []SourceComparison `json:"resolved_contradictions,omitempty"`
}
