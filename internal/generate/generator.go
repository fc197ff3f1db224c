// Package generate provides the answer generation capability: LLM providers
// invoked with an assembled context prompt.
package generate

import (
	"context"
	"time"
)

// Default generation configuration.
const (
	// DefaultOpenAIModel is the default OpenAI chat model.
	DefaultOpenAIModel = "gpt-4o-mini"

	// DefaultOllamaModel is the default local chat model.
	DefaultOllamaModel = "llama3.2"

	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultMaxTokens bounds the generated answer length.
	DefaultMaxTokens = 1024

	// DefaultTemperature keeps answers grounded in the provided context.
	DefaultTemperature = 0.1

	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 60 * time.Second
)

// Generator produces an answer from a fully assembled prompt.
type Generator interface {
	// Generate returns the model's completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// Config configures a generation provider.
type Config struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	OllamaHost  string
	Timeout     time.Duration
}
