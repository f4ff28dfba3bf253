package llm

import (
	"fmt"

	"dissonance/internal/model"
)

// NewProvider creates a provider from configuration.
func NewProvider(cfg model.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "":
		return nil, fmt.Errorf("no LLM provider configured")
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
