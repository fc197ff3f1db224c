// Package pipeline implements the retrieval-augmented query flow: embed the
// question, retrieve relevant passages, assemble a bounded context, generate
// a grounded answer, and attribute it to its sources.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askdocs/askdocs/internal/embed"
	apperrors "github.com/askdocs/askdocs/internal/errors"
	"github.com/askdocs/askdocs/internal/generate"
	"github.com/askdocs/askdocs/internal/store"
)

// Stage names a step of the query flow, logged as the query progresses.
type Stage string

const (
	StageReceived   Stage = "received"
	StageEmbedding  Stage = "embedding"
	StageRetrieving Stage = "retrieving"
	StageAssembling Stage = "assembling"
	StageGenerating Stage = "generating"
	StageAttributed Stage = "attributed"
	StageFailed     Stage = "failed"
)

// FallbackAnswer is returned when retrieval finds nothing relevant. The
// generator is never invoked in that case.
const FallbackAnswer = "I couldn't find information about this in your documents."

// excerptLength bounds the source excerpt shown with an answer.
const excerptLength = 200

// promptTemplate instructs the model to answer strictly from the assembled
// context.
const promptTemplate = `You are an intelligent research assistant. Answer the question based ONLY on the provided context from the user's documents.

IMPORTANT RULES:
1. Only use information from the provided context
2. If the answer is not in the context, respond with "I couldn't find information about this in your documents."
3. Be concise and accurate
4. Cite specific parts of the context when possible
5. Do not make assumptions or add information not in the context

Context from documents:
%s

Question: %s

Answer:`

// Source attributes part of an answer to a passage in a document.
type Source struct {
	DocumentID  string       `json:"document_id"`
	Filename    string       `json:"filename"`
	Ordinal     int          `json:"ordinal"`
	Excerpt     string       `json:"excerpt"`
	Score       float32      `json:"score"`
	Occurrences []Occurrence `json:"occurrences,omitempty"`
}

// Occurrence is one document location where a source passage appears. A
// passage shared across documents carries every location; the Source's
// top-level fields are its earliest one.
type Occurrence struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Ordinal    int    `json:"ordinal"`
}

// QueryResult is a fully attributed answer.
type QueryResult struct {
	Answer        string   `json:"answer"`
	Sources       []Source `json:"sources"`
	CorpusVersion uint64   `json:"corpus_version"`
	Insufficient  bool     `json:"insufficient"`
	Cached        bool     `json:"cached"`
}

// Options configures a query pipeline.
type Options struct {
	Embedder  embed.Embedder
	Generator generate.Generator
	Corpus    *store.Corpus

	TopK           int
	RelevanceFloor float32
	ContextBudget  int

	CacheEnabled bool
	CacheEntries int
	CacheTTL     time.Duration

	Logger *slog.Logger
}

// Pipeline answers questions against the corpus.
type Pipeline struct {
	embedder  embed.Embedder
	generator generate.Generator
	corpus    *store.Corpus
	answers   *answerCache

	topK          int
	floor         float32
	contextBudget int
	log           *slog.Logger
}

// New creates a query pipeline.
func New(opts Options) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 6000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		embedder:      opts.Embedder,
		generator:     opts.Generator,
		corpus:        opts.Corpus,
		answers:       newAnswerCache(opts.CacheEnabled, opts.CacheEntries, opts.CacheTTL),
		topK:          opts.TopK,
		floor:         opts.RelevanceFloor,
		contextBudget: opts.ContextBudget,
		log:           opts.Logger,
	}
}

// Query runs a question through the full flow. Results are cached per
// corpus version; any change to the corpus makes prior cached answers
// unreachable.
func (p *Pipeline) Query(ctx context.Context, question string) (*QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.New(apperrors.ErrCodeQueryEmpty, "question is empty", nil)
	}

	queryID := uuid.NewString()
	started := time.Now()
	log := p.log.With("query_id", queryID)
	log.Info("query_received", "stage", StageReceived)

	version := p.corpus.Version()
	if cached, ok := p.answers.get(question, version); ok {
		cached.Cached = true
		log.Info("query_answered",
			"stage", StageAttributed,
			"cached", true,
			"duration_ms", time.Since(started).Milliseconds())
		return &cached, nil
	}

	log.Debug("query_stage", "stage", StageEmbedding)
	qvec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		log.Error("query_failed", "stage", StageEmbedding, "error", err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debug("query_stage", "stage", StageRetrieving)
	hits, err := p.corpus.Search(ctx, qvec, p.topK, p.floor)
	if err != nil {
		log.Error("query_failed", "stage", StageRetrieving, "error", err)
		return nil, err
	}

	if len(hits) == 0 {
		result := QueryResult{
			Answer:        FallbackAnswer,
			Sources:       []Source{},
			CorpusVersion: version,
			Insufficient:  true,
		}
		p.answers.put(question, version, result)
		log.Info("query_answered",
			"stage", StageAttributed,
			"insufficient", true,
			"duration_ms", time.Since(started).Milliseconds())
		return &result, nil
	}

	log.Debug("query_stage", "stage", StageAssembling, "retrieved", len(hits))
	contextText, sources := p.assemble(hits)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debug("query_stage", "stage", StageGenerating)
	answer, err := p.generator.Generate(ctx, fmt.Sprintf(promptTemplate, contextText, question))
	if err != nil {
		log.Error("query_failed", "stage", StageGenerating, "error", err)
		return nil, err
	}

	result := QueryResult{
		Answer:        strings.TrimSpace(answer),
		Sources:       sources,
		CorpusVersion: version,
	}
	p.answers.put(question, version, result)

	log.Info("query_answered",
		"stage", StageAttributed,
		"sources", len(sources),
		"duration_ms", time.Since(started).Milliseconds())
	return &result, nil
}

// assemble builds the numbered context block and the source attributions.
// Passages are included best-first until the character budget is spent; at
// least one passage is always included.
func (p *Pipeline) assemble(hits []store.SearchResult) (string, []Source) {
	var blocks []string
	var sources []Source
	used := 0

	for _, hit := range hits {
		occurrences := make([]Occurrence, 0, len(hit.Provenance))
		for _, prov := range hit.Provenance {
			filename := prov.DocumentID
			if doc, ok := p.corpus.Document(prov.DocumentID); ok {
				filename = doc.Filename
			}
			occurrences = append(occurrences, Occurrence{
				DocumentID: prov.DocumentID,
				Filename:   filename,
				Ordinal:    prov.Ordinal,
			})
		}
		first := occurrences[0]

		block := fmt.Sprintf("[Source %d: %s]\n%s", len(blocks)+1, first.Filename, strings.TrimSpace(hit.Text))
		if len(blocks) > 0 && used+len(block) > p.contextBudget {
			break
		}
		used += len(block) + 2
		blocks = append(blocks, block)
		sources = append(sources, Source{
			DocumentID:  first.DocumentID,
			Filename:    first.Filename,
			Ordinal:     first.Ordinal,
			Excerpt:     excerpt(hit.Text),
			Score:       hit.Score,
			Occurrences: occurrences,
		})
	}
	return strings.Join(blocks, "\n\n"), sources
}

// excerpt returns the first part of text for display alongside an answer.
func excerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength]) + "..."
}
