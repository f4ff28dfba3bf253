package llm

import (
	"strings"
	"testing"

	"dissonance/internal/model"
)

func TestBuildPrompt_IncludesResultsAndDeltas(t *testing.T) {
	prev := model.VerdictConsistent
	req := ExplainRequest{
		Results: []model.ProbeResult{
			{
				ProbeID: "dns-resolver",
				Name:    "DNS Resolution Cross-Check",
				Verdict: model.VerdictContradiction,
				Summary: "1 of 3 comparisons mismatched: possible resolver hijack",
			},
		},
		Deltas: []model.ProbeDelta{
			{
				ProbeID:         "dns-resolver",
				PreviousVerdict: &prev,
				CurrentVerdict:  model.VerdictContradiction,
				Change:          "verdict changed: consistent -> contradiction",
				NewContradictions: []model.SourceComparison{
					{
						Label: "apple.com: system vs udp",
						Left:  model.SourceValue{Source: "system-resolver", Value: "6.6.6.6"},
						Right: model.SourceValue{Source: "udp:1.1.1.1:53", Value: "17.253.144.10"},
					},
				},
			},
		},
	}

	prompt := BuildPrompt(req)

	for _, want := range []string{
		"dns-resolver",
		"verdict contradiction",
		"verdict changed: consistent -> contradiction",
		"apple.com: system vs udp",
		"6.6.6.6",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPrompt_NoDeltas(t *testing.T) {
	prompt := BuildPrompt(ExplainRequest{
		Results: []model.ProbeResult{
			{ProbeID: "time-drift", Name: "Clock Drift", Verdict: model.VerdictConsistent, Summary: "ok"},
		},
	})

	if !strings.Contains(prompt, "No changes since the previous run") {
		t.Errorf("prompt must state steady state:\n%s", prompt)
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	if _, err := NewProvider(model.LLMConfig{Provider: "mystery"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	if _, err := NewProvider(model.LLMConfig{}); err == nil {
		t.Error("expected error when no provider configured")
	}
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(model.LLMConfig{Provider: "openai"}); err == nil {
		t.Error("expected error without API key")
	}
}
