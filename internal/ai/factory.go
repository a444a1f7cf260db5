// Package ai constructs PolicyProvider implementations from configuration.
package ai

import (
	"fmt"

	"github.com/policyglass/policyglass/internal/ai/anthropic"
	"github.com/policyglass/policyglass/internal/ai/openai"
	"github.com/policyglass/policyglass/internal/config"
	"github.com/policyglass/policyglass/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.PolicyProvider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, anthropic", cfg.Provider)
	}
}
