package diff

import (
	"testing"

	"dissonance/internal/model"
)

func result(id string, verdict model.Verdict, comps ...model.SourceComparison) model.ProbeResult {
	return model.ProbeResult{
		ProbeID:     id,
		Name:        "Probe " + id,
		Verdict:     verdict,
		Comparisons: comps,
	}
}

func comp(label string, matches bool) model.SourceComparison {
	return model.SourceComparison{
		Label:   label,
		Left:    model.SourceValue{Source: "left", Value: "1"},
		Right:   model.SourceValue{Source: "right", Value: "2"},
		Matches: matches,
	}
}

func TestDiff_SameSetIsEmpty(t *testing.T) {
	set := []model.ProbeResult{
		result("p1", model.VerdictConsistent, comp("a", true)),
		result("p2", model.VerdictContradiction, comp("b", false)),
		result("p3", model.VerdictDegraded),
	}

	if deltas := Diff(set, set); len(deltas) != 0 {
		t.Errorf("diff of a set against itself must be empty, got %d deltas", len(deltas))
	}
}

func TestDiff_ContradictionResolved(t *testing.T) {
	previous := []model.ProbeResult{
		result("p", model.VerdictContradiction, comp("L", false)),
	}
	current := []model.ProbeResult{
		result("p", model.VerdictConsistent, comp("L", true)),
	}

	deltas := Diff(current, previous)
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}

	d := deltas[0]
	if d.PreviousVerdict == nil || *d.PreviousVerdict != model.VerdictContradiction {
		t.Errorf("previous verdict not recorded: %v", d.PreviousVerdict)
	}
	if d.CurrentVerdict != model.VerdictConsistent {
		t.Errorf("current verdict = %v", d.CurrentVerdict)
	}
	if len(d.NewContradictions) != 0 {
		t.Errorf("expected no new contradictions, got %v", d.NewContradictions)
	}
	if len(d.ResolvedContradictions) != 1 || d.ResolvedContradictions[0].Label != "L" {
		t.Errorf("expected L resolved, got %v", d.ResolvedContradictions)
	}
}

func TestDiff_NewProbeWithContradiction(t *testing.T) {
	current := []model.ProbeResult{
		result("q", model.VerdictContradiction, comp("x", false)),
	}

	deltas := Diff(current, nil)
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if deltas[0].PreviousVerdict != nil {
		t.Errorf("new probe must have absent previous verdict, got %v", *deltas[0].PreviousVerdict)
	}
	if len(deltas[0].NewContradictions) != 1 {
		t.Errorf("expected the mismatch surfaced as new, got %v", deltas[0].NewContradictions)
	}
}

func TestDiff_NewProbeConsistentIsSilent(t *testing.T) {
	current := []model.ProbeResult{
		result("q", model.VerdictConsistent, comp("x", true)),
	}
	if deltas := Diff(current, nil); len(deltas) != 0 {
		t.Errorf("a new consistent probe is not interesting, got %v", deltas)
	}
}

func TestDiff_NewMismatchInExistingContradiction(t *testing.T) {
	previous := []model.ProbeResult{
		result("p", model.VerdictContradiction, comp("old", false), comp("fresh", true)),
	}
	current := []model.ProbeResult{
		result("p", model.VerdictContradiction, comp("old", false), comp("fresh", false)),
	}

	deltas := Diff(current, previous)
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}

	d := deltas[0]
	if d.Change != "new contradictions in existing probe" {
		t.Errorf("change = %q; a same-verdict delta must not claim a transition", d.Change)
	}
	if len(d.NewContradictions) != 1 || d.NewContradictions[0].Label != "fresh" {
		t.Errorf("expected only 'fresh' as new, got %v", d.NewContradictions)
	}
}

func TestDiff_SteadyContradictionIsSilent(t *testing.T) {
	previous := []model.ProbeResult{
		result("p", model.VerdictContradiction, comp("same", false)),
	}
	current := []model.ProbeResult{
		result("p", model.VerdictContradiction, comp("same", false)),
	}

	if deltas := Diff(current, previous); len(deltas) != 0 {
		t.Errorf("an unchanged contradiction emits no delta, got %v", deltas)
	}
}

func TestDiff_VerdictTransitionToContradiction(t *testing.T) {
	previous := []model.ProbeResult{
		result("p", model.VerdictConsistent, comp("L", true)),
	}
	current := []model.ProbeResult{
		result("p", model.VerdictContradiction, comp("L", false)),
	}

	deltas := Diff(current, previous)
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if deltas[0].Change != "verdict changed: consistent -> contradiction" {
		t.Errorf("change = %q", deltas[0].Change)
	}
	if len(deltas[0].NewContradictions) != 1 || deltas[0].NewContradictions[0].Label != "L" {
		t.Errorf("expected L as new contradiction, got %v", deltas[0].NewContradictions)
	}
}
