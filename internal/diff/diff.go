// Package diff computes temporal deltas between two consecutive probe-run
// result sets, so a new contradiction is distinguishable from steady-state
// noise.
package diff

import (
	"fmt"

	"dissonance/internal/model"
)

// Diff compares the current run against the previous one, indexed by probe
// id, and returns one delta per probe whose state is interesting. Probes
// with no change emit nothing. Pure function: no I/O, no engine state.
func Diff(current, previous []model.ProbeResult) []model.ProbeDelta {
	prevByID := make(map[string]model.ProbeResult, len(previous))
	for _, r := range previous {
		prevByID[r.ProbeID] = r
	}

	var deltas []model.ProbeDelta
	for _, cur := range current {
		prev, seen := prevByID[cur.ProbeID]

		if !seen {
			if cur.Verdict == model.VerdictContradiction {
				deltas = append(deltas, model.ProbeDelta{
					ProbeID:           cur.ProbeID,
					Name:              cur.Name,
					PreviousVerdict:   nil,
					CurrentVerdict:    cur.Verdict,
					Change:            "new probe reporting contradiction",
					NewContradictions: mismatches(cur),
				})
			}
			continue
		}

		newComps := newMismatches(cur, prev)
		resolvedComps := newMismatches(prev, cur)

		if cur.Verdict != prev.Verdict {
			pv := prev.Verdict
			deltas = append(deltas, model.ProbeDelta{
				ProbeID:                cur.ProbeID,
				Name:                   cur.Name,
				PreviousVerdict:        &pv,
				CurrentVerdict:         cur.Verdict,
				Change:                 fmt.Sprintf("verdict changed: %s -> %s", prev.Verdict, cur.Verdict),
				NewContradictions:      newComps,
				ResolvedContradictions: resolvedComps,
			})
			continue
		}

		// Same verdict, still contradicting, but disagreement on new
		// comparisons that were clean last run.
		if cur.Verdict == model.VerdictContradiction && len(newComps) > 0 {
			pv := prev.Verdict
			deltas = append(deltas, model.ProbeDelta{
				ProbeID:                cur.ProbeID,
				Name:                   cur.Name,
				PreviousVerdict:        &pv,
				CurrentVerdict:         cur.Verdict,
				Change:                 "new contradictions in existing probe",
				NewContradictions:      newComps,
				ResolvedContradictions: resolvedComps,
			})
		}
	}
	return deltas
}

// mismatches returns all failed comparisons of a result.
func mismatches(r model.ProbeResult) []model.SourceComparison {
	var out []model.SourceComparison
	for _, c := range r.Comparisons {
		if !c.Matches {
			out = append(out, c)
		}
	}
	return out
}

// newMismatches returns a's failed comparisons whose label was not a failed
// comparison in b. Labels carry the cross-run identity.
func newMismatches(a, b model.ProbeResult) []model.SourceComparison {
	old := make(map[string]bool)
	for _, c := range b.Comparisons {
		if !c.Matches {
			old[c.Label] = true
		}
	}

	var out []model.SourceComparison
	for _, c := range a.Comparisons {
		if !c.Matches && !old[c.Label] {
			out = append(out, c)
		}
	}
	return out
}
