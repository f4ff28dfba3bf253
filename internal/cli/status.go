package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/spf13/cobra"

	"dissonance/internal/model"
	"dissonance/internal/store"
)

var statusStore string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the verdicts of the most recent probe run",
	Long: `Status reads the persisted results of the last run without launching any
probes. A missing store means no run has completed yet.`,
	Args: cobra.NoArgs,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusStore, "store", "", "override the result store directory")
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if statusStore != "" {
		cfg.Store.Dir = statusStore
	}

	if info, err := host.InfoWithContext(context.Background()); err == nil {
		fmt.Printf("Host: %s (%s %s), up %s\n\n",
			info.Hostname, info.Platform, info.PlatformVersion,
			(time.Duration(info.Uptime) * time.Second).Round(time.Minute))
	}

	st := store.New(cfg.Store.Dir)
	results := st.ReadSummary()
	if len(results) == 0 {
		fmt.Println("No completed runs. Use 'dissonance run' first.")
		return nil
	}

	printResults(results)

	var lastRun time.Time
	contradictions := 0
	for _, res := range results {
		if res.CreatedAt.After(lastRun) {
			lastRun = res.CreatedAt
		}
		if res.Verdict == model.VerdictContradiction {
			contradictions++
		}
	}

	fmt.Printf("\nLast run: %s\n", lastRun.Local().Format(time.RFC1123))
	if contradictions > 0 {
		fmt.Printf("%d probe(s) reporting contradictions.\n", contradictions)
	}

	if deltas := st.ReadDiff(); len(deltas) > 0 {
		fmt.Println()
		printDeltas(deltas)
	}
	return nil
}
