package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

// OllamaGenerator produces answers using Ollama's HTTP API.
type OllamaGenerator struct {
	client      *http.Client
	transport   *http.Transport
	host        string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// Verify interface implementation at compile time
var _ Generator = (*OllamaGenerator)(nil)

// ollamaGenerateRequest is the /api/generate request body.
type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

// ollamaOptions carries sampling parameters.
type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// ollamaGenerateResponse is the non-streaming /api/generate response body.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaGenerator creates an Ollama generator.
func NewOllamaGenerator(cfg Config) (*OllamaGenerator, error) {
	if cfg.OllamaHost == "" {
		cfg.OllamaHost = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}

	return &OllamaGenerator{
		client:      &http.Client{Transport: transport},
		transport:   transport,
		host:        cfg.OllamaHost,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// Generate returns the model's completion for prompt.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: g.temperature,
			NumPredict:  g.maxTokens,
		},
	})
	if err != nil {
		return "", apperrors.InternalError("marshal generate request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, g.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.InternalError("create generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", apperrors.GenerationCapability("call ollama", err).
			WithSuggestion(fmt.Sprintf("is Ollama running at %s?", g.host))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", apperrors.GenerationCapability(
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(msg)), nil)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.GenerationCapability("decode generate response", err)
	}
	return out.Response, nil
}

// ModelName returns the model identifier.
func (g *OllamaGenerator) ModelName() string { return g.model }

// Close shuts down idle connections.
func (g *OllamaGenerator) Close() error {
	g.transport.CloseIdleConnections()
	return nil
}
