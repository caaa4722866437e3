// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// NewPlanner is a factory function that creates a Planner based on the
// configured provider. The browser viewport is part of the contract with
// every provider: it is what the model believes the screen size to be.
func NewPlanner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Planner, error) {
	provider := cfg.Gateway.Provider

	// Using constants defined in config package to avoid magic strings.
	switch provider {
	case config.ProviderOpenAI:
		return NewCUAClient(cfg.Gateway, cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg.Gateway, cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported gateway provider configured: '%s'. Supported: [%s, %s]",
			provider, config.ProviderOpenAI, config.ProviderGemini)
	}
}
