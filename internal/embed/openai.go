package embed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

// OpenAIEmbedder generates embeddings using the OpenAI embeddings API.
// Requests are batched and retried with exponential backoff on rate-limit
// and transport errors.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dims      int
	batchSize int
	timeout   time.Duration
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder.
// The API key is read from OPENAI_API_KEY.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, apperrors.ConfigError("OPENAI_API_KEY environment variable not set", nil).
			WithSuggestion("export OPENAI_API_KEY or put it in a .env file")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultOpenAIDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// openai-go reads OPENAI_API_KEY from the environment
	return &OpenAIEmbedder{
		client:    openai.NewClient(),
		model:     cfg.Model,
		dims:      cfg.Dimensions,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		vecs, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, apperrors.EmbeddingCapability(
				fmt.Sprintf("embedding batch %d-%d failed", i, end), err)
		}
		all = append(all, vecs...)
	}
	return all, nil
}

// embedBatchWithRetry embeds one batch, retrying rate-limit errors with
// exponential backoff. Other API errors fail immediately.
func (e *OpenAIEmbedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err := e.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if isRetryableAPIError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			embeddings[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Dimensions returns the embedding vector dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.model }

// Close releases resources. The OpenAI client holds none.
func (e *OpenAIEmbedder) Close() error { return nil }

// isRetryableAPIError reports whether err is worth retrying: rate limits
// (HTTP 429), server errors, or timeouts.
func isRetryableAPIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// toFloat32 converts the API's float64 vectors to the float32 used across
// the corpus store.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
