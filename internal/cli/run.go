package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dissonance/internal/model"
	"dissonance/internal/probe"
	"dissonance/internal/runner"
	"dissonance/internal/store"
)

var (
	runProbeID string
	runStore   string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all contradiction probes (or one by id)",
	Long: `Run launches every registered probe concurrently, writes each result to
the store as it completes, and diffs the run against the previous one.

Example:
  dissonance run
  dissonance run --probe dns-resolver
  dissonance run -v`,
	Args: cobra.NoArgs,
	RunE: runProbes,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runProbeID, "probe", "", "run a single probe by id")
	runCmd.Flags().StringVar(&runStore, "store", "", "override the result store directory")
}

func runProbes(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if runStore != "" {
		cfg.Store.Dir = runStore
	}

	r := runner.New(store.New(cfg.Store.Dir))
	r.Register(probe.Defaults(cfg)...)

	ctx := context.Background()

	if verbose {
		fmt.Fprintf(os.Stderr, "Store: %s\n", cfg.Store.Dir)
		fmt.Fprintf(os.Stderr, "Probes: %d registered\n\n", len(r.Probes()))
	}

	var results []model.ProbeResult
	if runProbeID != "" {
		res, err := r.RunOne(ctx, runProbeID)
		if err != nil {
			return fmt.Errorf("run probe: %w", err)
		}
		results = []model.ProbeResult{res}
	} else {
		started := time.Now()
		results = r.RunAll(ctx)
		if verbose {
			fmt.Fprintf(os.Stderr, "Completed %d probes in %v\n\n", len(results), time.Since(started).Round(time.Millisecond))
		}
	}

	printResults(results)

	if deltas := r.Deltas(); len(deltas) > 0 {
		fmt.Println()
		printDeltas(deltas)
	}

	// Exit code 2 signals at least one contradiction to scripted callers.
	for _, res := range results {
		if res.Verdict == model.VerdictContradiction {
			os.Exit(2)
		}
	}
	return nil
}

func printResults(results []model.ProbeResult) {
	for _, res := range results {
		fmt.Printf("%s %-20s %-13s %s (%dms)\n",
			verdictMark(res.Verdict), res.ProbeID, res.Verdict, res.Summary, res.DurationMS)
	}
}

func printDeltas(deltas []model.ProbeDelta) {
	fmt.Println("Changes since previous run:")
	for _, d := range deltas {
		fmt.Printf("  %s: %s\n", d.ProbeID, d.Change)
		for _, c := range d.NewContradictions {
			fmt.Printf("    new: %s (%s=%s vs %s=%s)\n", c.Label, c.Left.Source, c.Left.Value, c.Right.Source, c.Right.Value)
		}
		for _, c := range d.ResolvedContradictions {
			fmt.Printf("    resolved: %s\n", c.Label)
		}
	}
}

func verdictMark(v model.Verdict) string {
	switch v {
	case model.VerdictConsistent:
		return "✓"
	case model.VerdictContradiction:
		return "✗"
	case model.VerdictDegraded:
		return "○"
	default:
		return "!"
	}
}
