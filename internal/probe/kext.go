package probe

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"dissonance/internal/model"
)

// kextListFunc enumerates loaded kernel extension bundle identifiers
// through one code path.
type kextListFunc func(ctx context.Context) ([]string, error)

// KextProbe cross-checks the loaded kernel-extension list between two
// enumeration tools with different kernel entry points. An extension
// hidden from one listing but not the other is being concealed.
type KextProbe struct {
	sources []struct {
		name string
		list kextListFunc
	}
}

const kextExecTimeout = 15 * time.Second

// NewKextProbe wires kmutil and kextstat as the two real sources.
func NewKextProbe() *KextProbe {
	p := &KextProbe{}
	p.sources = append(p.sources,
		struct {
			name string
			list kextListFunc
		}{name: "kmutil", list: kmutilKexts},
		struct {
			name string
			list kextListFunc
		}{name: "kextstat", list: kextstatKexts},
	)
	return p
}

func (p *KextProbe) ID() string   { return "kext-census" }
func (p *KextProbe) Name() string { return "Kernel Extension Census Cross-Check" }

func (p *KextProbe) Metadata() model.ProbeMetadata {
	return model.ProbeMetadata{
		FalseClaim:        "every loaded kernel extension appears in every listing",
		Sources:           "kmutil showloaded, kextstat",
		AdversaryCost:     "must patch both enumeration paths inside the kernel to hide a loaded extension",
		UserMessage:       "The kernel gives inconsistent lists of its own loaded extensions.",
		FalsePositiveRate: "low; the lists are snapshots of the same kernel state",
	}
}

// Run compares the bundle-ID sets strictly, plus a count comparison. The
// sets describe the same kernel state at effectively the same instant, so
// set equality is the policy here, unlike the DNS probe's union tolerance.
func (p *KextProbe) Run(ctx context.Context) model.ProbeResult {
	started := time.Now()

	type listing struct {
		name string
		ids  map[string]bool
	}
	var listings []listing
	for _, src := range p.sources {
		ids, err := src.list(ctx)
		if err != nil {
			continue
		}
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		listings = append(listings, listing{name: src.name, ids: set})
	}

	if len(listings) < 2 {
		return NewResult(p, started, nil, "")
	}

	var comps []model.SourceComparison
	for i := 0; i < len(listings); i++ {
		for j := i + 1; j < len(listings); j++ {
			a, b := listings[i], listings[j]

			onlyA := setDifference(a.ids, b.ids)
			onlyB := setDifference(b.ids, a.ids)

			comps = append(comps, model.SourceComparison{
				Label:   "loaded kexts: " + a.name + " vs " + b.name,
				Left:    model.SourceValue{Source: a.name, Value: describeKextSet(len(a.ids), onlyA)},
				Right:   model.SourceValue{Source: b.name, Value: describeKextSet(len(b.ids), onlyB)},
				Matches: len(onlyA) == 0 && len(onlyB) == 0,
			})
			comps = append(comps, model.SourceComparison{
				Label:   "kext count: " + a.name + " vs " + b.name,
				Left:    model.SourceValue{Source: a.name, Value: strconv.Itoa(len(a.ids))},
				Right:   model.SourceValue{Source: b.name, Value: strconv.Itoa(len(b.ids))},
				Matches: len(a.ids) == len(b.ids),
			})
		}
	}

	return NewResult(p, started, comps, "kernel extension hidden from one listing")
}

func setDifference(a, b map[string]bool) []string {
	var only []string
	for id := range a {
		if !b[id] {
			only = append(only, id)
		}
	}
	sort.Strings(only)
	return only
}

func describeKextSet(total int, exclusive []string) string {
	if len(exclusive) == 0 {
		return fmt.Sprintf("%d kexts", total)
	}
	return fmt.Sprintf("%d kexts, exclusive: %s", total, strings.Join(exclusive, ","))
}

// kmutilKexts parses `kmutil showloaded --list-only` for bundle IDs.
func kmutilKexts(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, kextExecTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "kmutil", "showloaded", "--list-only").Output()
	if err != nil {
		return nil, fmt.Errorf("run kmutil: %w", err)
	}
	return parseKextListing(string(out))
}

// kextstatKexts parses `kextstat -l` for bundle IDs.
func kextstatKexts(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, kextExecTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "kextstat", "-l").Output()
	if err != nil {
		return nil, fmt.Errorf("run kextstat: %w", err)
	}
	return parseKextListing(string(out))
}

// parseKextListing pulls reverse-DNS bundle identifiers out of tabular
// kext listings; both tools print them as a whitespace-separated column.
func parseKextListing(out string) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		for _, field := range strings.Fields(scanner.Text()) {
			if isBundleID(field) {
				ids = append(ids, field)
				break
			}
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no bundle identifiers in listing")
	}
	return ids, nil
}

// isBundleID recognizes reverse-DNS identifiers (com.apple.driver.Foo) and
// rejects version columns like (1.0.0).
func isBundleID(field string) bool {
	if strings.Count(field, ".") < 2 {
		return false
	}
	if field[0] < 'a' || field[0] > 'z' {
		return false
	}
	return !strings.ContainsAny(field, "()")
}
