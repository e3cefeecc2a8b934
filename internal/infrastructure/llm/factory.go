package llm

import (
	"fmt"
	"log/slog"

	"FeedDigest/internal/config"
	"FeedDigest/internal/ports"
)

// New selects the generation backend named by cfg.Provider.
func New(cfg config.LLMConfig, log *slog.Logger) (ports.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAIClient(cfg, log), nil
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
