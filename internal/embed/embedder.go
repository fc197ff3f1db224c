// Package embed provides the embedding capability for AskDocs: remote
// providers plus the content-addressed embedding cache layered over them.
package embed

import (
	"context"
	"time"
)

// Default embedding configuration.
const (
	// DefaultOpenAIModel is the default OpenAI embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimensions is the vector dimension of text-embedding-3-small.
	DefaultOpenAIDimensions = 1536

	// DefaultOllamaModel is the default local embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultBatchSize is the number of texts embedded per capability call.
	DefaultBatchSize = 64

	// DefaultTimeout bounds a single embedding call.
	DefaultTimeout = 30 * time.Second
)

// Embedder generates embedding vectors for text.
// Implementations are remote capabilities: calls may fail with rate-limit or
// transport errors, surfaced as retryable capability errors.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// Config configures an embedding provider.
type Config struct {
	Provider   string
	Model      string
	Dimensions int
	BatchSize  int
	OllamaHost string
	Timeout    time.Duration
}
