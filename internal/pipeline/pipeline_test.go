package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdocs/askdocs/internal/chunk"
	apperrors "github.com/askdocs/askdocs/internal/errors"
	"github.com/askdocs/askdocs/internal/ingest"
	"github.com/askdocs/askdocs/internal/store"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.vectors[strings.ToLower(strings.TrimSpace(text))]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = s.Embed(ctx, t)
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int   { return 3 }
func (s *stubEmbedder) ModelName() string { return "stub" }
func (s *stubEmbedder) Close() error      { return nil }

// stubGenerator records prompts and returns a canned answer.
type stubGenerator struct {
	calls      atomic.Int64
	lastPrompt string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls.Add(1)
	s.lastPrompt = prompt
	return "The payment terms are net 30.", nil
}

func (s *stubGenerator) ModelName() string { return "stub" }
func (s *stubGenerator) Close() error      { return nil }

func newTestPipeline(t *testing.T, gen *stubGenerator) (*Pipeline, *store.Corpus) {
	t.Helper()

	corpus, err := store.Open(store.Options{Dir: t.TempDir(), Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = corpus.Close() })

	emb := &stubEmbedder{vectors: map[string][]float32{
		"what are the payment terms?": {1, 0, 0},
	}}

	p := New(Options{
		Embedder:       emb,
		Generator:      gen,
		Corpus:         corpus,
		TopK:           5,
		RelevanceFloor: 0.25,
		CacheEnabled:   true,
		CacheTTL:       time.Minute,
	})
	return p, corpus
}

func seedCorpus(t *testing.T, corpus *store.Corpus) {
	t.Helper()
	_, err := corpus.InsertDocument(context.Background(), store.Document{
		ID:          "contract-abc123",
		Filename:    "contract.txt",
		ContentHash: "doc-hash",
		Format:      "txt",
		IngestedAt:  time.Now(),
	}, []store.PassageInsert{
		{ContentHash: "h1", Text: "Payment is due within 30 days of invoice.", Ordinal: 0, Vector: []float32{1, 0, 0}},
		{ContentHash: "h2", Text: "The lease covers the ground floor office.", Ordinal: 1, Vector: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
}

func TestQuery_EmptyQuestionRejected(t *testing.T) {
	p, _ := newTestPipeline(t, &stubGenerator{})

	_, err := p.Query(context.Background(), "   ")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeQueryEmpty, apperrors.GetCode(err))
}

func TestQuery_InsufficientContextSkipsGenerator(t *testing.T) {
	// Given an empty corpus
	gen := &stubGenerator{}
	p, _ := newTestPipeline(t, gen)

	// When a question is asked
	result, err := p.Query(context.Background(), "What are the payment terms?")

	// Then the fallback answer is returned and the generator never runs
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, result.Answer)
	assert.True(t, result.Insufficient)
	assert.Empty(t, result.Sources)
	assert.Equal(t, int64(0), gen.calls.Load())
}

func TestQuery_AnswersWithAttribution(t *testing.T) {
	// Given a corpus with a relevant passage
	gen := &stubGenerator{}
	p, corpus := newTestPipeline(t, gen)
	seedCorpus(t, corpus)

	// When a question near that passage is asked
	result, err := p.Query(context.Background(), "What are the payment terms?")

	// Then the answer is attributed to the passage's document
	require.NoError(t, err)
	assert.Equal(t, "The payment terms are net 30.", result.Answer)
	assert.False(t, result.Insufficient)
	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "contract-abc123", result.Sources[0].DocumentID)
	assert.Equal(t, "contract.txt", result.Sources[0].Filename)
	assert.Contains(t, result.Sources[0].Excerpt, "Payment is due")
	assert.Greater(t, result.Sources[0].Score, float32(0.25))

	// And the prompt carried the numbered context block
	assert.Contains(t, gen.lastPrompt, "[Source 1: contract.txt]")
	assert.Contains(t, gen.lastPrompt, "Payment is due within 30 days")
	assert.Contains(t, gen.lastPrompt, "Question: What are the payment terms?")
}

func TestQuery_SharedPassageListsEveryDocument(t *testing.T) {
	// Given the same boilerplate clause in two documents
	gen := &stubGenerator{}
	p, corpus := newTestPipeline(t, gen)
	seedCorpus(t, corpus)

	_, err := corpus.InsertDocument(context.Background(), store.Document{
		ID:         "renewal-789",
		Filename:   "renewal.txt",
		Format:     "txt",
		IngestedAt: time.Now(),
	}, []store.PassageInsert{
		{ContentHash: "h1", Text: "Payment is due within 30 days of invoice.", Ordinal: 0},
	})
	require.NoError(t, err)

	// When a question matching that clause is asked
	result, err := p.Query(context.Background(), "What are the payment terms?")
	require.NoError(t, err)
	require.NotEmpty(t, result.Sources)

	// Then the source names both documents, earliest first
	src := result.Sources[0]
	assert.Equal(t, "contract.txt", src.Filename)
	require.Len(t, src.Occurrences, 2)
	assert.Equal(t, "contract.txt", src.Occurrences[0].Filename)
	assert.Equal(t, "renewal.txt", src.Occurrences[1].Filename)
}

func TestQuery_CachedAnswerSkipsPipeline(t *testing.T) {
	// Given an answered question
	gen := &stubGenerator{}
	p, corpus := newTestPipeline(t, gen)
	seedCorpus(t, corpus)

	first, err := p.Query(context.Background(), "What are the payment terms?")
	require.NoError(t, err)
	require.Equal(t, int64(1), gen.calls.Load())

	// When the same question is asked with different case and spacing
	second, err := p.Query(context.Background(), "  what ARE the payment    terms?  ")

	// Then the cached answer is returned without another generation
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen.calls.Load())
	assert.True(t, second.Cached)
	assert.Equal(t, first.Answer, second.Answer)
}

func TestQuery_CorpusChangeInvalidatesCache(t *testing.T) {
	// Given an answered and cached question
	gen := &stubGenerator{}
	p, corpus := newTestPipeline(t, gen)
	seedCorpus(t, corpus)

	_, err := p.Query(context.Background(), "What are the payment terms?")
	require.NoError(t, err)
	require.Equal(t, int64(1), gen.calls.Load())

	// When the corpus changes
	_, err = corpus.InsertDocument(context.Background(), store.Document{
		ID:         "amendment-def456",
		Filename:   "amendment.txt",
		Format:     "txt",
		IngestedAt: time.Now(),
	}, []store.PassageInsert{
		{ContentHash: "h3", Text: "Payment terms were amended to net 45.", Ordinal: 0, Vector: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)

	// Then the same question runs the full flow again
	result, err := p.Query(context.Background(), "What are the payment terms?")
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen.calls.Load())
	assert.False(t, result.Cached)
}

func TestQuery_CancelledContext(t *testing.T) {
	gen := &stubGenerator{}
	p, corpus := newTestPipeline(t, gen)
	seedCorpus(t, corpus)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Query(ctx, "What are the payment terms?")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), gen.calls.Load())
}

func TestQuery_EndToEndFromFile(t *testing.T) {
	// Given a 3-sentence file that fits in a single passage
	gen := &stubGenerator{}
	p, corpus := newTestPipeline(t, gen)

	splitter, err := chunk.NewSplitter(1000, 200)
	require.NoError(t, err)
	content := "The company was founded in 2010. It employs forty people. Payment terms for all invoices are net 30 days."
	ing := ingest.New(ingest.Options{
		Splitter: splitter,
		Embedder: &stubEmbedder{vectors: map[string][]float32{
			strings.ToLower(content): {0.9, 0.1, 0},
		}},
		Corpus: corpus,
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "contract.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	report, err := ing.IngestFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, report.Passages)

	// When a question about the third sentence is asked
	result, err := p.Query(context.Background(), "What are the payment terms?")

	// Then the sole passage is the top attributed source
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "contract.txt", result.Sources[0].Filename)
	assert.Contains(t, gen.lastPrompt, "net 30 days")
}

func TestAssemble_RespectsContextBudget(t *testing.T) {
	// Given a pipeline with a tiny context budget
	gen := &stubGenerator{}
	p, corpus := newTestPipeline(t, gen)
	p.contextBudget = 80
	seedCorpus(t, corpus)

	// When many passages are retrieved
	hits, err := corpus.Search(context.Background(), []float32{0.7, 0.7, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	contextText, sources := p.assemble(hits)

	// Then the budget keeps it to the best passage, never zero
	assert.Len(t, sources, 1)
	assert.NotEmpty(t, contextText)
}
