package cmd

import (
	"context"
	"log/slog"

	"github.com/askdocs/askdocs/internal/chunk"
	"github.com/askdocs/askdocs/internal/embed"
	"github.com/askdocs/askdocs/internal/generate"
	"github.com/askdocs/askdocs/internal/ingest"
	"github.com/askdocs/askdocs/internal/pipeline"
	"github.com/askdocs/askdocs/internal/store"
)

// app wires the corpus, capabilities, ingestor, and pipeline from the
// resolved configuration. The generator is only constructed for commands
// that answer questions.
type app struct {
	corpus    *store.Corpus
	embedder  embed.Embedder
	generator generate.Generator
	ingestor  *ingest.Ingestor
	pipeline  *pipeline.Pipeline
}

func openApp(ctx context.Context, withGenerator bool) (*app, error) {
	corpus, err := store.Open(store.Options{
		Dir:        cfg.DataDir,
		Dimensions: cfg.Embeddings.Dimensions,
		DedupScope: string(cfg.Retrieval.DedupScope),
		Logger:     slog.Default(),
	})
	if err != nil {
		return nil, err
	}

	embedder, err := embed.New(ctx, embed.Config{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		OllamaHost: cfg.Embeddings.OllamaHost,
		Timeout:    cfg.Embeddings.Timeout,
	})
	if err != nil {
		_ = corpus.Close()
		return nil, err
	}
	cached := embed.NewCachedEmbedder(embedder,
		cfg.Cache.Enabled, cfg.Cache.EmbeddingEntries, cfg.Cache.TTL)

	a := &app{
		corpus:   corpus,
		embedder: cached,
	}

	splitter, err := chunk.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ingestor = ingest.New(ingest.Options{
		Splitter: splitter,
		Embedder: cached,
		Corpus:   corpus,
		Logger:   slog.Default(),
	})

	if withGenerator {
		generator, err := generate.New(generate.Config{
			Provider:    cfg.Generation.Provider,
			Model:       cfg.Generation.Model,
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
			OllamaHost:  cfg.Generation.OllamaHost,
			Timeout:     cfg.Generation.Timeout,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.generator = generator
		a.pipeline = pipeline.New(pipeline.Options{
			Embedder:       cached,
			Generator:      generator,
			Corpus:         corpus,
			TopK:           cfg.Retrieval.TopK,
			RelevanceFloor: cfg.Retrieval.RelevanceFloor,
			ContextBudget:  cfg.Retrieval.ContextBudget,
			CacheEnabled:   cfg.Cache.Enabled,
			CacheEntries:   cfg.Cache.AnswerEntries,
			CacheTTL:       cfg.Cache.TTL,
			Logger:         slog.Default(),
		})
	}

	return a, nil
}

// Close releases every open resource.
func (a *app) Close() {
	if a.generator != nil {
		_ = a.generator.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.corpus != nil {
		_ = a.corpus.Close()
	}
}
