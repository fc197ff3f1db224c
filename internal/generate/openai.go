package generate

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

// OpenAIGenerator produces answers using the OpenAI chat completions API.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// Verify interface implementation at compile time
var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates an OpenAI generator.
// The API key is read from OPENAI_API_KEY.
func NewOpenAIGenerator(cfg Config) (*OpenAIGenerator, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, apperrors.ConfigError("OPENAI_API_KEY environment variable not set", nil).
			WithSuggestion("export OPENAI_API_KEY or put it in a .env file")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
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

	return &OpenAIGenerator{
		client:      openai.NewClient(),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// Generate returns the model's completion for prompt, retrying rate-limit
// and server errors with exponential backoff.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var answer string

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model:       openai.ChatModel(g.model),
			MaxTokens:   openai.Int(int64(g.maxTokens)),
			Temperature: openai.Float(g.temperature),
		})
		if err != nil {
			if isRetryableAPIError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("completion returned no choices"))
		}
		answer = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 60 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", apperrors.GenerationCapability("chat completion failed", err)
	}
	return answer, nil
}

// ModelName returns the model identifier.
func (g *OpenAIGenerator) ModelName() string { return g.model }

// Close releases resources. The OpenAI client holds none.
func (g *OpenAIGenerator) Close() error { return nil }

// isRetryableAPIError reports whether err is worth retrying: rate limits
// (HTTP 429), server errors, or timeouts.
func isRetryableAPIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}
