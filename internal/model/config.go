package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds all engine configuration. Values follow the hierarchy
// flags > environment (DISSONANCE_*) > config file > defaults.
type Config struct {
	Store     StoreConfig     `yaml:"store" json:"store"`
	DNS       DNSConfig       `yaml:"dns" json:"dns"`
	Time      TimeConfig      `yaml:"time" json:"time"`
	Allowlist AllowlistConfig `yaml:"allowlist" json:"allowlist"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Output    OutputConfig    `yaml:"output" json:"output"`
}

// StoreConfig configures the on-disk result store.
type StoreConfig struct {
	Dir string `yaml:"dir" json:"dir"` // Directory for per-probe results, latest.json, diff.json
}

// DNSConfig configures the dns-resolver probe.
type DNSConfig struct {
	Resolver   string        `yaml:"resolver" json:"resolver"`       // UDP resolver address, host:port
	DoHURL     string        `yaml:"doh_url" json:"doh_url"`         // DNS-over-HTTPS JSON endpoint
	Domains    []string      `yaml:"domains" json:"domains"`         // Test domains resolved through all three paths
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`         // Per-query deadline (socket and HTTP)
	QueriesPerSecond float64 `yaml:"queries_per_second" json:"queries_per_second"` // Outbound query rate limit
	HTTPProxy  string        `yaml:"http_proxy" json:"http_proxy"`
	HTTPSProxy string        `yaml:"https_proxy" json:"https_proxy"`
}

// TimeConfig configures the time-drift probe.
type TimeConfig struct {
	Servers []string      `yaml:"servers" json:"servers"` // SNTP servers, host:port
	Timeout time.Duration `yaml:"timeout" json:"timeout"` // Per-query socket deadline
}

// AllowlistConfig configures the signing-allowlist probe.
type AllowlistConfig struct {
	Path     string        `yaml:"path" json:"path"`           // YAML file mapping binary path -> expected cdhash
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"` // How long codesign results are memoized
}

// LLMConfig configures the optional explain command. The LLM never affects
// verdicts or stored results; it only narrates an existing diff.
type LLMConfig struct {
	Provider  string `yaml:"provider" json:"provider"` // "openai" or "" (disabled)
	Model     string `yaml:"model" json:"model"`
	APIKey    string `yaml:"-" json:"-"` // From environment only, never persisted
	BaseURL   string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
}

// OutputConfig controls CLI output behavior.
type OutputConfig struct {
	Verbose   bool   `yaml:"verbose" json:"verbose"`
	LogFormat string `yaml:"log_format" json:"log_format"` // "text" or "json"
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		Store: StoreConfig{
			Dir: filepath.Join(home, ".dissonance", "results"),
		},
		DNS: DNSConfig{
			Resolver:         "1.1.1.1:53",
			DoHURL:           "https://dns.google/resolve",
			Domains:          []string{"apple.com", "github.com", "example.org"},
			Timeout:          5 * time.Second,
			QueriesPerSecond: 10,
		},
		Time: TimeConfig{
			Servers: []string{"time.apple.com:123", "pool.ntp.org:123"},
			Timeout: 5 * time.Second,
		},
		Allowlist: AllowlistConfig{
			Path:     filepath.Join(home, ".dissonance", "allowlist.yaml"),
			CacheTTL: 5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:  "",
			Model:     "gpt-4o-mini",
			MaxTokens: 1000,
		},
		Output: OutputConfig{
			Verbose:   false,
			LogFormat: "text",
		},
	}
}
