package probe

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"dissonance/internal/model"
)

// fakeDNS returns canned answers per domain; a missing entry means the
// source is unavailable for that domain.
func fakeDNS(answers map[string][]string) resolveFunc {
	return func(_ context.Context, domain string) ([]string, error) {
		if addrs, ok := answers[domain]; ok {
			return addrs, nil
		}
		return nil, fmt.Errorf("no answer for %s", domain)
	}
}

func testDNSProbe(domains []string, sys, udp, doh map[string][]string) *DNSProbe {
	return &DNSProbe{
		resolverAddr: "1.1.1.1:53",
		domains:      domains,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		system:       fakeDNS(sys),
		udp:          fakeDNS(udp),
		doh:          fakeDNS(doh),
	}
}

// The union policy: no two sets are identical, yet the verdict is consistent
// because the local answer appears in the external union and the two external
// sources share an address.
func TestDNSProbe_UnionPolicy(t *testing.T) {
	p := testDNSProbe(
		[]string{"example.org"},
		map[string][]string{"example.org": {"1.2.3.4"}},
		map[string][]string{"example.org": {"1.2.3.4", "5.6.7.8"}},
		map[string][]string{"example.org": {"5.6.7.8"}},
	)

	res := p.Run(context.Background())

	if res.Verdict != model.VerdictConsistent {
		t.Fatalf("verdict = %v, want consistent; summary: %s", res.Verdict, res.Summary)
	}
	if len(res.Comparisons) != 3 {
		t.Fatalf("expected 3 comparisons, got %d", len(res.Comparisons))
	}
	for _, c := range res.Comparisons {
		if !c.Matches {
			t.Errorf("comparison %q unexpectedly mismatched", c.Label)
		}
	}
}

func TestDNSProbe_LocalAnswerConfirmedByNobody(t *testing.T) {
	p := testDNSProbe(
		[]string{"example.org"},
		map[string][]string{"example.org": {"6.6.6.6"}},
		map[string][]string{"example.org": {"1.2.3.4"}},
		map[string][]string{"example.org": {"1.2.3.4"}},
	)

	res := p.Run(context.Background())

	if res.Verdict != model.VerdictContradiction {
		t.Fatalf("verdict = %v, want contradiction", res.Verdict)
	}

	// Both system-vs-external comparisons fail; the external pair agrees.
	mismatched := map[string]bool{}
	for _, c := range res.Comparisons {
		if !c.Matches {
			mismatched[c.Label] = true
		}
	}
	if !mismatched["example.org: system vs udp"] || !mismatched["example.org: system vs doh"] {
		t.Errorf("expected both system comparisons flagged, got %v", mismatched)
	}
	if mismatched["example.org: udp vs doh"] {
		t.Error("external sources agree and must not be flagged")
	}
}

func TestDNSProbe_DisjointExternals(t *testing.T) {
	p := testDNSProbe(
		[]string{"example.org"},
		map[string][]string{},
		map[string][]string{"example.org": {"1.1.1.1"}},
		map[string][]string{"example.org": {"2.2.2.2"}},
	)

	res := p.Run(context.Background())

	if res.Verdict != model.VerdictContradiction {
		t.Fatalf("verdict = %v, want contradiction", res.Verdict)
	}
	if len(res.Comparisons) != 1 {
		t.Fatalf("only the external pair can be compared, got %d comparisons", len(res.Comparisons))
	}
	if res.Comparisons[0].Label != "example.org: udp vs doh" || res.Comparisons[0].Matches {
		t.Errorf("expected disjoint externals flagged, got %+v", res.Comparisons[0])
	}
}

func TestDNSProbe_PartialOverlapExternalsMatch(t *testing.T) {
	p := testDNSProbe(
		[]string{"example.org"},
		map[string][]string{},
		map[string][]string{"example.org": {"1.1.1.1", "3.3.3.3"}},
		map[string][]string{"example.org": {"3.3.3.3", "4.4.4.4"}},
	)

	res := p.Run(context.Background())
	if res.Verdict != model.VerdictConsistent {
		t.Errorf("any overlap between externals is normal CDN variance, got %v", res.Verdict)
	}
}

func TestDNSProbe_AllSourcesDownIsDegraded(t *testing.T) {
	p := testDNSProbe(
		[]string{"example.org", "apple.com"},
		map[string][]string{},
		map[string][]string{},
		map[string][]string{},
	)

	res := p.Run(context.Background())
	if res.Verdict != model.VerdictDegraded {
		t.Errorf("verdict = %v, want degraded", res.Verdict)
	}
	if res.Summary == "" {
		t.Error("degraded result must carry an explanatory message")
	}
}

func TestDNSProbe_SingleSourceIsDegraded(t *testing.T) {
	// One source alone gives nothing to compare.
	p := testDNSProbe(
		[]string{"example.org"},
		map[string][]string{"example.org": {"1.2.3.4"}},
		map[string][]string{},
		map[string][]string{},
	)

	res := p.Run(context.Background())
	if res.Verdict != model.VerdictDegraded {
		t.Errorf("verdict = %v, want degraded", res.Verdict)
	}
}

func TestDNSProbe_PerDomainComparisons(t *testing.T) {
	p := testDNSProbe(
		[]string{"a.test", "b.test"},
		map[string][]string{"a.test": {"1.0.0.1"}, "b.test": {"2.0.0.2"}},
		map[string][]string{"a.test": {"1.0.0.1"}, "b.test": {"2.0.0.2"}},
		map[string][]string{"a.test": {"1.0.0.1"}},
	)

	res := p.Run(context.Background())

	// a.test has all three pairs, b.test only system-vs-udp.
	if len(res.Comparisons) != 4 {
		t.Errorf("expected 4 comparisons, got %d", len(res.Comparisons))
	}
	if res.Verdict != model.VerdictConsistent {
		t.Errorf("verdict = %v", res.Verdict)
	}
}

func TestDNSProbe_RateLimiterCancellation(t *testing.T) {
	p := testDNSProbe(
		[]string{"example.org"},
		map[string][]string{"example.org": {"1.2.3.4"}},
		map[string][]string{"example.org": {"1.2.3.4"}},
		map[string][]string{"example.org": {"1.2.3.4"}},
	)
	p.limiter = rate.NewLimiter(rate.Every(time.Hour), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.Run(ctx)
	// With the limiter never clearing, every source reads as unavailable.
	if res.Verdict != model.VerdictDegraded {
		t.Errorf("verdict = %v, want degraded", res.Verdict)
	}
}
