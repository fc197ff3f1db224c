package generate

import (
	"fmt"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

// New creates a generator for the configured provider.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIGenerator(cfg)
	case "ollama":
		return NewOllamaGenerator(cfg)
	default:
		return nil, apperrors.ConfigError(
			fmt.Sprintf("unknown generation provider %q", cfg.Provider), nil).
			WithSuggestion("supported providers: openai, ollama")
	}
}
