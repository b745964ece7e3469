package ai

import (
	"fmt"

	"NewsSignal/internal/domain/repository"
	"NewsSignal/pkg/config"
	xlogger "NewsSignal/pkg/logger"
)

// NewProvider builds the configured provider behind a breaker. It returns
// nil when AI is disabled or the provider is "none".
func NewProvider(cfg config.AIConfig, logger *xlogger.Logger) (repository.AIProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var p repository.AIProvider
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "mock", "":
		p = MockProvider{}
	case "openai":
		p = NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout)
	case "claude":
		p = NewClaudeProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	return NewGuarded(p, BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
	}, logger), nil
}
