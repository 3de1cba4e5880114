package generation

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/config"
)

// NewFromConfig builds the configured content-generation provider.
func NewFromConfig(cfg *config.GenerationConfig, logger *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIGenerator(&OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		}, logger)
	case "anthropic":
		return NewAnthropicGenerator(&AnthropicConfig{
			Model:  cfg.Model,
			APIKey: cfg.APIKey,
		}, logger)
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
