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

	"github.com/shirou/gopsutil/v4/process"

	"dissonance/internal/model"
)

// pidSource enumerates process IDs through one code path.
type pidSource struct {
	name string
	list func(ctx context.Context) ([]int32, error)
}

// CensusProbe enumerates processes through three independent mechanisms and
// flags any PID visible to a strict subset of them: a process that only some
// enumeration APIs can see is being selectively hidden. Presence in all
// sources or absence from all is normal. PID 0 is excluded because the
// kernel task legitimately hides from some interfaces.
type CensusProbe struct {
	sources []pidSource
}

// censusExecTimeout bounds each enumeration call; the orchestrator imposes
// no outer deadline.
const censusExecTimeout = 10 * time.Second

// NewCensusProbe wires the three real enumeration sources: the kernel
// process-table sysctl, the process library walk, and a ps snapshot.
func NewCensusProbe() *CensusProbe {
	return &CensusProbe{
		sources: []pidSource{
			{name: "kernel-table", list: kernelTablePIDs},
			{name: "process-library", list: libraryPIDs},
			{name: "ps-snapshot", list: psToolPIDs},
		},
	}
}

func (p *CensusProbe) ID() string   { return "process-census" }
func (p *CensusProbe) Name() string { return "Process Census Cross-Check" }

func (p *CensusProbe) Metadata() model.ProbeMetadata {
	return model.ProbeMetadata{
		FalseClaim:        "every running process is visible to every enumeration API",
		Sources:           "kern.proc sysctl snapshot, process library walk, ps tool output",
		AdversaryCost:     "must hook all enumeration paths consistently, including the raw sysctl, to hide a process",
		UserMessage:       "A process is visible to some system APIs but hidden from others — possible rootkit.",
		FalsePositiveRate: "moderate under heavy process churn; snapshots race against short-lived processes",
	}
}

// Run takes the three snapshots, unions the PIDs, and applies the
// partial-visibility threshold plus two aggregate count comparisons.
func (p *CensusProbe) Run(ctx context.Context) model.ProbeResult {
	started := time.Now()

	type snapshot struct {
		name string
		pids map[int32]bool
	}

	var snaps []snapshot
	for _, src := range p.sources {
		pids, err := src.list(ctx)
		if err != nil {
			continue
		}
		set := make(map[int32]bool, len(pids))
		for _, pid := range pids {
			// PID 0 may legitimately be absent from one source; keep it
			// out of both the per-PID check and the aggregate counts.
			if pid == 0 {
				continue
			}
			set[pid] = true
		}
		snaps = append(snaps, snapshot{name: src.name, pids: set})
	}

	if len(snaps) < 2 {
		return NewResult(p, started, nil, "")
	}

	union := make(map[int32]bool)
	for _, s := range snaps {
		for pid := range s.pids {
			union[pid] = true
		}
	}

	pids := make([]int32, 0, len(union))
	for pid := range union {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	var comps []model.SourceComparison
	for _, pid := range pids {
		var seen, missing []string
		for _, s := range snaps {
			if s.pids[pid] {
				seen = append(seen, s.name)
			} else {
				missing = append(missing, s.name)
			}
		}
		// Partial visibility only: all or nothing is normal.
		if len(seen) == 0 || len(missing) == 0 {
			continue
		}
		comps = append(comps, model.SourceComparison{
			Label:   fmt.Sprintf("pid %d visibility", pid),
			Left:    model.SourceValue{Source: strings.Join(seen, "+"), Value: fmt.Sprintf("pid %d present", pid)},
			Right:   model.SourceValue{Source: strings.Join(missing, "+"), Value: fmt.Sprintf("pid %d absent", pid)},
			Matches: false,
		})
	}

	// Aggregate counts: first source against each of the others.
	for i := 1; i < len(snaps); i++ {
		comps = append(comps, model.SourceComparison{
			Label:   fmt.Sprintf("process count: %s vs %s", snaps[0].name, snaps[i].name),
			Left:    model.SourceValue{Source: snaps[0].name, Value: strconv.Itoa(len(snaps[0].pids))},
			Right:   model.SourceValue{Source: snaps[i].name, Value: strconv.Itoa(len(snaps[i].pids))},
			Matches: len(snaps[0].pids) == len(snaps[i].pids),
		})
	}

	return NewResult(p, started, comps, "process hidden from a subset of enumeration APIs")
}

// libraryPIDs walks the process library's enumeration path.
func libraryPIDs(ctx context.Context) ([]int32, error) {
	ctx, cancel := context.WithTimeout(ctx, censusExecTimeout)
	defer cancel()

	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("library enumeration: %w", err)
	}
	return pids, nil
}

// psToolPIDs shells out to ps, which reaches the kernel through its own
// path and linkage, independent of this process's libraries.
func psToolPIDs(ctx context.Context) ([]int32, error) {
	ctx, cancel := context.WithTimeout(ctx, censusExecTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ps", "-axo", "pid=").Output()
	if err != nil {
		return nil, fmt.Errorf("run ps: %w", err)
	}

	var pids []int32
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		field := strings.TrimSpace(scanner.Text())
		if field == "" {
			continue
		}
		pid, err := strconv.ParseInt(field, 10, 32)
		if err != nil {
			continue
		}
		pids = append(pids, int32(pid))
	}
	if len(pids) == 0 {
		return nil, fmt.Errorf("ps returned no pids")
	}
	return pids, nil
}
