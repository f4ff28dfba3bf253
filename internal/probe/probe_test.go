package probe

import (
	"context"
	"strings"
	"testing"
	"time"

	"dissonance/internal/model"
)

func comp(label string, matches bool) model.SourceComparison {
	return model.SourceComparison{
		Label:   label,
		Left:    model.SourceValue{Source: "a", Value: "x"},
		Right:   model.SourceValue{Source: "b", Value: "y"},
		Matches: matches,
	}
}

func TestDeriveVerdict(t *testing.T) {
	tests := []struct {
		name  string
		comps []model.SourceComparison
		want  model.Verdict
	}{
		{"no comparisons is degraded", nil, model.VerdictDegraded},
		{"empty slice is degraded", []model.SourceComparison{}, model.VerdictDegraded},
		{"all matching is consistent", []model.SourceComparison{comp("a", true), comp("b", true)}, model.VerdictConsistent},
		{"one mismatch is contradiction", []model.SourceComparison{comp("a", true), comp("b", false)}, model.VerdictContradiction},
		{"all mismatching is contradiction", []model.SourceComparison{comp("a", false)}, model.VerdictContradiction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveVerdict(tt.comps); got != tt.want {
				t.Errorf("DeriveVerdict() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Verdict invariant: contradiction iff at least one mismatch; consistent
// implies every comparison matched and at least one comparison exists.
func TestVerdictInvariant(t *testing.T) {
	cases := [][]model.SourceComparison{
		nil,
		{comp("a", true)},
		{comp("a", false)},
		{comp("a", true), comp("b", false), comp("c", true)},
		{comp("a", true), comp("b", true), comp("c", true)},
	}

	for _, comps := range cases {
		v := DeriveVerdict(comps)
		hasMismatch := MismatchCount(comps) > 0

		if (v == model.VerdictContradiction) != hasMismatch {
			t.Errorf("contradiction verdict must track mismatches: verdict=%v mismatches=%d", v, MismatchCount(comps))
		}
		if v == model.VerdictConsistent && (hasMismatch || len(comps) == 0) {
			t.Errorf("consistent verdict requires >=1 comparison and zero mismatches")
		}
	}
}

type stubProbe struct{ id, name string }

func (s stubProbe) ID() string                    { return s.id }
func (s stubProbe) Name() string                  { return s.name }
func (s stubProbe) Metadata() model.ProbeMetadata { return model.ProbeMetadata{} }
func (s stubProbe) Run(_ context.Context) model.ProbeResult {
	return model.ProbeResult{}
}

func TestNewResult_Summary(t *testing.T) {
	p := stubProbe{id: "test-probe", name: "Test Probe"}
	started := time.Now().Add(-10 * time.Millisecond)

	res := NewResult(p, started, []model.SourceComparison{comp("a", false), comp("b", true)}, "possible hijack")

	if res.Verdict != model.VerdictContradiction {
		t.Fatalf("expected contradiction, got %v", res.Verdict)
	}
	if !strings.Contains(res.Summary, "1 of 2") || !strings.Contains(res.Summary, "possible hijack") {
		t.Errorf("unexpected summary: %q", res.Summary)
	}
	if res.DurationMS < 0 {
		t.Errorf("negative duration: %d", res.DurationMS)
	}
	if res.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestErrorResult_AlwaysHasVerdictAndMessage(t *testing.T) {
	res := ErrorResult("x", "X", time.Now(), "panic: boom")
	if res.Verdict != model.VerdictError {
		t.Errorf("expected error verdict, got %v", res.Verdict)
	}
	if res.Summary == "" {
		t.Error("error result must carry a message")
	}
}
