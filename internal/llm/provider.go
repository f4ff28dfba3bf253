package llm

import (
	"context"
	"fmt"
	"strings"

	"dissonance/internal/model"
)

// Provider narrates probe deltas for a human reader. The narration is
// strictly cosmetic: it never feeds back into verdicts, diffs, or stored
// results.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Explain generates a plain-language account of what changed.
	Explain(ctx context.Context, req ExplainRequest) (*ExplainResponse, error)

	// IsAvailable checks if the provider is configured and reachable.
	IsAvailable(ctx context.Context) bool
}

// ExplainRequest carries the latest run state for narration.
type ExplainRequest struct {
	// Results is the most recent full result set.
	Results []model.ProbeResult

	// Deltas is the most recent non-empty diff.
	Deltas []model.ProbeDelta

	// Model overrides the configured model when non-empty.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int
}

// ExplainResponse is the generated narration.
type ExplainResponse struct {
	Explanation string
	Model       string
	TokensUsed  int
}

// BuildPrompt renders the run state into the narration prompt. Only data
// already persisted to the store goes in; the model is asked to explain,
// not to judge.
func BuildPrompt(req ExplainRequest) string {
	var b strings.Builder

	b.WriteString("You are explaining output from a tool that detects compromised operating systems ")
	b.WriteString("by asking the same question through independent code paths and flagging disagreement.\n")
	b.WriteString("Explain in plain language what changed and what a user should check. ")
	b.WriteString("Do not invent findings beyond the data below.\n\n")

	b.WriteString("Current probe results:\n")
	for _, r := range req.Results {
		fmt.Fprintf(&b, "- %s (%s): verdict %s, %s\n", r.Name, r.ProbeID, r.Verdict, r.Summary)
	}

	if len(req.Deltas) > 0 {
		b.WriteString("\nChanges since the previous run:\n")
		for _, d := range req.Deltas {
			fmt.Fprintf(&b, "- %s: %s\n", d.ProbeID, d.Change)
			for _, c := range d.NewContradictions {
				fmt.Fprintf(&b, "  new: %s (%s=%q vs %s=%q)\n", c.Label, c.Left.Source, c.Left.Value, c.Right.Source, c.Right.Value)
			}
			for _, c := range d.ResolvedContradictions {
				fmt.Fprintf(&b, "  resolved: %s\n", c.Label)
			}
		}
	} else {
		b.WriteString("\nNo changes since the previous run.\n")
	}

	return b.String()
}
