package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dissonance/internal/llm"
	"dissonance/internal/store"
)

var (
	explainProvider string
	explainModel    string
	explainStore    string
)

// explainCmd represents the explain command
var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Narrate the latest run and diff with an LLM (optional)",
	Long: `Explain feeds the persisted results and deltas of the most recent run to
an LLM and prints a plain-language narration.

The narration is cosmetic. It never touches verdicts, diffs, or stored
results, and nothing in the engine depends on it.

Example:
  dissonance explain --llm-provider openai --llm-model gpt-4o-mini`,
	Args: cobra.NoArgs,
	RunE: explainRun,
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringVar(&explainProvider, "llm-provider", "openai", "LLM provider")
	explainCmd.Flags().StringVar(&explainModel, "llm-model", "", "LLM model name")
	explainCmd.Flags().StringVar(&explainStore, "store", "", "override the result store directory")
}

func explainRun(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if explainStore != "" {
		cfg.Store.Dir = explainStore
	}
	if explainProvider != "" {
		cfg.LLM.Provider = explainProvider
	}
	if explainModel != "" {
		cfg.LLM.Model = explainModel
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	st := store.New(cfg.Store.Dir)
	results := st.ReadSummary()
	if len(results) == 0 {
		return fmt.Errorf("no completed runs to explain; use 'dissonance run' first")
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Explaining %d results via %s\n\n", len(results), provider.Name())
	}

	resp, err := provider.Explain(context.Background(), llm.ExplainRequest{
		Results:   results,
		Deltas:    st.ReadDiff(),
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("explain: %w", err)
	}

	fmt.Println(resp.Explanation)
	if verbose {
		fmt.Fprintf(os.Stderr, "\n(%s, %d tokens)\n", resp.Model, resp.TokensUsed)
	}
	return nil
}
