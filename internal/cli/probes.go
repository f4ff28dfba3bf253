package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"dissonance/internal/probe"
)

// probesCmd represents the probes command
var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List registered probes and their documentation",
	Long: `Probes prints every registered probe with its mandatory documentation:
the false claim it detects, the independent sources it consults, what an
adversary must pay to defeat it, what the user is shown on detection, and
the expected false-positive rate.`,
	Args: cobra.NoArgs,
	RunE: listProbes,
}

func init() {
	rootCmd.AddCommand(probesCmd)
}

func listProbes(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	for _, p := range probe.Defaults(cfg) {
		meta := p.Metadata()
		fmt.Printf("%s (%s)\n", p.Name(), p.ID())
		fmt.Printf("  detects:        %s\n", meta.FalseClaim)
		fmt.Printf("  sources:        %s\n", meta.Sources)
		fmt.Printf("  adversary cost: %s\n", meta.AdversaryCost)
		fmt.Printf("  on detection:   %s\n", meta.UserMessage)
		fmt.Printf("  false positives: %s\n", meta.FalsePositiveRate)
		fmt.Println()
	}
	return nil
}
