package probe

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"dissonance/internal/model"
)

func fakeCensus(kernel, library, ps []int32) *CensusProbe {
	canned := func(pids []int32, available bool) func(context.Context) ([]int32, error) {
		return func(context.Context) ([]int32, error) {
			if !available {
				return nil, fmt.Errorf("source down")
			}
			return pids, nil
		}
	}
	return &CensusProbe{
		sources: []pidSource{
			{name: "kernel-table", list: canned(kernel, kernel != nil)},
			{name: "process-library", list: canned(library, library != nil)},
			{name: "ps-snapshot", list: canned(ps, ps != nil)},
		},
	}
}

func TestCensus_AllAgreeIsConsistent(t *testing.T) {
	pids := []int32{1, 50, 321}
	res := fakeCensus(pids, pids, pids).Run(context.Background())

	if res.Verdict != model.VerdictConsistent {
		t.Fatalf("verdict = %v; summary: %s", res.Verdict, res.Summary)
	}
	// No per-PID comparisons, only the two aggregate counts.
	if len(res.Comparisons) != 2 {
		t.Errorf("expected 2 aggregate comparisons, got %d", len(res.Comparisons))
	}
}

func TestCensus_PidInTwoOfThree(t *testing.T) {
	res := fakeCensus(
		[]int32{1, 50, 666},
		[]int32{1, 50, 666},
		[]int32{1, 50},
	).Run(context.Background())

	if res.Verdict != model.VerdictContradiction {
		t.Fatalf("verdict = %v, want contradiction", res.Verdict)
	}

	var perPID []model.SourceComparison
	for _, c := range res.Comparisons {
		if strings.Contains(c.Label, "visibility") {
			perPID = append(perPID, c)
		}
	}
	if len(perPID) != 1 {
		t.Fatalf("expected exactly one per-PID comparison, got %d", len(perPID))
	}

	c := perPID[0]
	if c.Label != "pid 666 visibility" || c.Matches {
		t.Errorf("unexpected comparison: %+v", c)
	}
	if c.Right.Source != "ps-snapshot" {
		t.Errorf("missing source must be named, got %q", c.Right.Source)
	}
	if c.Left.Source != "kernel-table+process-library" {
		t.Errorf("seen sources must be named, got %q", c.Left.Source)
	}
}

func TestCensus_PidInOneOfThree(t *testing.T) {
	res := fakeCensus(
		[]int32{1, 99},
		[]int32{1},
		[]int32{1},
	).Run(context.Background())

	if res.Verdict != model.VerdictContradiction {
		t.Fatalf("verdict = %v, want contradiction", res.Verdict)
	}

	found := false
	for _, c := range res.Comparisons {
		if c.Label == "pid 99 visibility" {
			found = true
			if c.Left.Source != "kernel-table" {
				t.Errorf("seen = %q", c.Left.Source)
			}
			if c.Right.Source != "process-library+ps-snapshot" {
				t.Errorf("missing = %q", c.Right.Source)
			}
		}
	}
	if !found {
		t.Error("pid 99 partial visibility not flagged")
	}
}

func TestCensus_PidZeroExcluded(t *testing.T) {
	res := fakeCensus(
		[]int32{0, 1},
		[]int32{1},
		[]int32{1},
	).Run(context.Background())

	for _, c := range res.Comparisons {
		if c.Label == "pid 0 visibility" {
			t.Error("pid 0 may legitimately be absent from a source and must not be flagged")
		}
	}
	if res.Verdict != model.VerdictConsistent {
		t.Errorf("verdict = %v, want consistent once pid 0 is excluded", res.Verdict)
	}
}

func TestCensus_AggregateCounts(t *testing.T) {
	res := fakeCensus(
		[]int32{1, 2},
		[]int32{1, 2},
		[]int32{1, 2},
	).Run(context.Background())

	labels := map[string]bool{}
	for _, c := range res.Comparisons {
		labels[c.Label] = c.Matches
	}

	for _, want := range []string{
		"process count: kernel-table vs process-library",
		"process count: kernel-table vs ps-snapshot",
	} {
		matches, ok := labels[want]
		if !ok {
			t.Errorf("missing aggregate comparison %q", want)
		} else if !matches {
			t.Errorf("equal counts must match: %q", want)
		}
	}
}

func TestCensus_TwoSourcesStillCompare(t *testing.T) {
	res := fakeCensus(
		nil, // kernel table unavailable
		[]int32{1, 7},
		[]int32{1},
	).Run(context.Background())

	if res.Verdict != model.VerdictContradiction {
		t.Fatalf("verdict = %v, want contradiction", res.Verdict)
	}
	found := false
	for _, c := range res.Comparisons {
		if c.Label == "pid 7 visibility" && !c.Matches {
			found = true
		}
	}
	if !found {
		t.Error("partial visibility across two surviving sources not flagged")
	}
}

func TestCensus_OneSourceIsDegraded(t *testing.T) {
	res := fakeCensus(nil, []int32{1, 2}, nil).Run(context.Background())

	if res.Verdict != model.VerdictDegraded {
		t.Errorf("verdict = %v, want degraded", res.Verdict)
	}
}
