package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dissonance/internal/logging"
	"dissonance/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dissonance",
	Short: "Dissonance - Contradiction probes for a compromised operating system",
	Long: `Dissonance detects a compromised or rootkitted operating system by forcing
it to answer the same factual question through several independent code
paths and flagging disagreement.

A clean system tells one coherent story. A system that answers "what does
this domain resolve to", "which processes exist", or "is integrity
protection on" differently depending on who is asking is lying to someone.

Dissonance does not rank findings or decide intent. It reports
contradictions and leaves judgment to you.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("dissonance v0.3.1")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.dissonance/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(home + "/.dissonance")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match DISSONANCE_*
	viper.SetEnvPrefix("DISSONANCE")
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logging.Init(level, viper.GetString("output.log_format"))
}

// loadConfig merges the config file and environment over the defaults.
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()

	if v := viper.GetString("store.dir"); v != "" {
		cfg.Store.Dir = v
	}
	if v := viper.GetString("dns.resolver"); v != "" {
		cfg.DNS.Resolver = v
	}
	if v := viper.GetString("dns.doh_url"); v != "" {
		cfg.DNS.DoHURL = v
	}
	if v := viper.GetStringSlice("dns.domains"); len(v) > 0 {
		cfg.DNS.Domains = v
	}
	if v := viper.GetDuration("dns.timeout"); v > 0 {
		cfg.DNS.Timeout = v
	}
	if v := viper.GetFloat64("dns.queries_per_second"); v > 0 {
		cfg.DNS.QueriesPerSecond = v
	}
	if v := viper.GetStringSlice("time.servers"); len(v) > 0 {
		cfg.Time.Servers = v
	}
	if v := viper.GetDuration("time.timeout"); v > 0 {
		cfg.Time.Timeout = v
	}
	if v := viper.GetString("allowlist.path"); v != "" {
		cfg.Allowlist.Path = v
	}
	if v := viper.GetDuration("allowlist.cache_ttl"); v > 0 {
		cfg.Allowlist.CacheTTL = v
	}
	if v := viper.GetString("llm.provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := viper.GetString("llm.model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetString("llm.base_url"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := viper.GetString("output.log_format"); v != "" {
		cfg.Output.LogFormat = v
	}
	cfg.Output.Verbose = verbose

	// API keys come from the environment only, never the config file.
	cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")

	return cfg
}
