package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
// It is the local, no-API-key alternative to the OpenAI provider.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	host      string
	model     string
	dims      int
	batchSize int
	timeout   time.Duration
}

// Verify interface implementation at compile time
var _ Embedder = (*OllamaEmbedder)(nil)

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama embedder.
// Dimensions are auto-detected from a probe embedding when not configured.
func NewOllamaEmbedder(ctx context.Context, cfg Config) (*OllamaEmbedder, error) {
	if cfg.OllamaHost == "" {
		cfg.OllamaHost = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// Per-request context timeouts are used instead of a client timeout so a
	// caller's deadline is never silently overridden.
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		host:      cfg.OllamaHost,
		model:     cfg.Model,
		dims:      cfg.Dimensions,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
	}

	if e.dims == 0 {
		dims, err := e.detectDimensions(ctx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, apperrors.EmbeddingCapability("failed to detect embedding dimensions", err).
				WithSuggestion(fmt.Sprintf("is Ollama running at %s with model %s pulled?", e.host, e.model))
		}
		e.dims = dims
	}

	return e, nil
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		vecs, err := e.embedWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, apperrors.EmbeddingCapability(
				fmt.Sprintf("embedding batch %d-%d failed", i, end), err)
		}
		all = append(all, vecs...)
	}
	return all, nil
}

// embedWithRetry performs one /api/embed call with bounded backoff.
func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32

	operation := func() error {
		out, err := e.doEmbed(ctx, texts)
		if err != nil {
			return err
		}
		vecs = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return vecs, nil
}

// doEmbed performs a single /api/embed call.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(msg))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Embeddings)))
	}
	return out.Embeddings, nil
}

// detectDimensions probes the model with a short text.
func (e *OllamaEmbedder) detectDimensions(ctx context.Context) (int, error) {
	vecs, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("empty probe embedding")
	}
	return len(vecs[0]), nil
}

// Dimensions returns the embedding vector dimension.
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string { return e.model }

// Close shuts down idle connections.
func (e *OllamaEmbedder) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}
