package embed

import (
	"context"
	"fmt"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

// New creates an embedder for the configured provider.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(ctx, cfg)
	default:
		return nil, apperrors.ConfigError(
			fmt.Sprintf("unknown embedding provider %q", cfg.Provider), nil).
			WithSuggestion("supported providers: openai, ollama")
	}
}
