package probe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"dissonance/internal/model"
)

// sipStateFunc reads System Integrity Protection state through one code
// path, normalized to "enabled" or "disabled".
type sipStateFunc func(ctx context.Context) (string, error)

// SIPProbe asks three views of System Integrity Protection the same
// question: the csrutil tool, an actual write attempt against a protected
// path, and the firmware variable backing the configuration. A rootkit that
// patches csrutil's answer still has to let the write fail and keep the
// NVRAM story straight.
type SIPProbe struct {
	protectedPath string
	sources       []struct {
		name string
		read sipStateFunc
	}
}

const sipExecTimeout = 10 * time.Second

// NewSIPProbe wires the three real SIP views.
func NewSIPProbe() *SIPProbe {
	p := &SIPProbe{protectedPath: "/System/Library/CoreServices/.dissonance-probe"}
	p.sources = []struct {
		name string
		read sipStateFunc
	}{
		{name: "csrutil", read: csrutilStatus},
		{name: "protected-write", read: p.protectedWriteStatus},
		{name: "nvram", read: nvramCSRStatus},
	}
	return p
}

func (p *SIPProbe) ID() string   { return "sip-status" }
func (p *SIPProbe) Name() string { return "System Integrity Protection Cross-Check" }

func (p *SIPProbe) Metadata() model.ProbeMetadata {
	return model.ProbeMetadata{
		FalseClaim:        "System Integrity Protection is enabled",
		Sources:           "csrutil status, a deliberate protected-path write attempt, the csr-active-config firmware variable",
		AdversaryCost:     "must fake the tool output, enforce write denial anyway, and rewrite NVRAM coherently",
		UserMessage:       "The OS gives conflicting answers about whether System Integrity Protection is active.",
		FalsePositiveRate: "near zero; SIP state does not change without a reboot",
	}
}

// Run reads every view and compares each pair strictly: SIP is a binary
// kernel state, so any two views that disagree are a contradiction.
func (p *SIPProbe) Run(ctx context.Context) model.ProbeResult {
	started := time.Now()

	type reading struct {
		name  string
		state string
	}
	var readings []reading
	for _, src := range p.sources {
		state, err := src.read(ctx)
		if err != nil {
			continue
		}
		readings = append(readings, reading{name: src.name, state: state})
	}

	var comps []model.SourceComparison
	for i := 0; i < len(readings); i++ {
		for j := i + 1; j < len(readings); j++ {
			comps = append(comps, model.SourceComparison{
				Label:   readings[i].name + " vs " + readings[j].name,
				Left:    model.SourceValue{Source: readings[i].name, Value: readings[i].state},
				Right:   model.SourceValue{Source: readings[j].name, Value: readings[j].state},
				Matches: readings[i].state == readings[j].state,
			})
		}
	}

	return NewResult(p, started, comps, "integrity protection state is being misreported")
}

// csrutilStatus parses the user-facing tool's answer.
func csrutilStatus(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, sipExecTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "csrutil", "status").Output()
	if err != nil {
		return "", fmt.Errorf("run csrutil: %w", err)
	}

	text := strings.ToLower(string(out))
	switch {
	case strings.Contains(text, "enabled"):
		return "enabled", nil
	case strings.Contains(text, "disabled"):
		return "disabled", nil
	}
	return "", fmt.Errorf("unrecognized csrutil output")
}

// protectedWriteStatus tries to create a file under a SIP-protected path.
// Denial means protection is actually enforced, regardless of what any tool
// reports.
func (p *SIPProbe) protectedWriteStatus(_ context.Context) (string, error) {
	f, err := os.OpenFile(p.protectedPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		f.Close()
		os.Remove(p.protectedPath)
		return "disabled", nil
	}
	if os.IsPermission(err) || strings.Contains(err.Error(), "read-only") {
		return "enabled", nil
	}
	return "", fmt.Errorf("write attempt inconclusive: %w", err)
}

// nvramCSRStatus reads the firmware variable backing the CSR configuration.
// An unset variable means the default configuration, which is enabled.
func nvramCSRStatus(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, sipExecTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvram", "csr-active-config").Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			// nvram errors out when the variable is unset.
			return "enabled", nil
		}
		return "", fmt.Errorf("run nvram: %w", err)
	}

	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return "enabled", nil
	}
	// Any non-zero CSR bitmask relaxes at least one protection.
	value := fields[len(fields)-1]
	if value == "%00%00%00%00" || value == "0" {
		return "enabled", nil
	}
	return "disabled", nil
}
