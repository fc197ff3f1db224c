package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdocs/askdocs/internal/chunk"
	apperrors "github.com/askdocs/askdocs/internal/errors"
	"github.com/askdocs/askdocs/internal/store"
)

// countingEmbedder returns deterministic vectors and counts embedded texts.
type countingEmbedder struct {
	embedded atomic.Int64
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.embedded.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int   { return 3 }
func (e *countingEmbedder) ModelName() string { return "counting" }
func (e *countingEmbedder) Close() error      { return nil }

func newTestIngestor(t *testing.T) (*Ingestor, *store.Corpus, *countingEmbedder) {
	t.Helper()

	corpus, err := store.Open(store.Options{Dir: t.TempDir(), Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = corpus.Close() })

	splitter, err := chunk.NewSplitter(100, 20)
	require.NoError(t, err)

	emb := &countingEmbedder{}
	ing := New(Options{
		Splitter: splitter,
		Embedder: emb,
		Corpus:   corpus,
	})
	return ing, corpus, emb
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestFile_TextDocument(t *testing.T) {
	// Given a text file
	ing, corpus, _ := newTestIngestor(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "The office lease runs through December. Rent is due monthly.")

	// When it is ingested
	report, err := ing.IngestFile(context.Background(), path)

	// Then the corpus holds the document and its passages
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", report.Filename)
	assert.False(t, report.Skipped)
	assert.Greater(t, report.Passages, 0)
	assert.Equal(t, report.Passages, report.NewEntries)

	doc, ok := corpus.FindDocumentByFilename("notes.txt")
	require.True(t, ok)
	assert.Equal(t, report.DocumentID, doc.ID)
	assert.Equal(t, "txt", doc.Format)
}

func TestIngestFile_UnchangedFileSkipped(t *testing.T) {
	// Given an already ingested file
	ing, _, emb := newTestIngestor(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "Stable content that does not change.")

	_, err := ing.IngestFile(context.Background(), path)
	require.NoError(t, err)
	embeddedBefore := emb.embedded.Load()

	// When it is ingested again without modification
	report, err := ing.IngestFile(context.Background(), path)

	// Then nothing is re-embedded or re-inserted
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, embeddedBefore, emb.embedded.Load())
}

func TestIngestFile_ChangedFileSupersedes(t *testing.T) {
	// Given an ingested file that is then modified
	ing, corpus, _ := newTestIngestor(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "Original content about the lease.")

	first, err := ing.IngestFile(context.Background(), path)
	require.NoError(t, err)

	writeFile(t, dir, "notes.txt", "Updated content about the amended lease.")

	// When the modified file is ingested
	report, err := ing.IngestFile(context.Background(), path)

	// Then the old document is superseded and only one remains
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, report.Superseded)
	assert.NotEqual(t, first.DocumentID, report.DocumentID)
	assert.Equal(t, 1, corpus.Stats().Documents)
}

func TestIngestFile_SharedContentNotReEmbedded(t *testing.T) {
	// Given two files with identical content under different names
	ing, corpus, emb := newTestIngestor(t)
	dir := t.TempDir()
	content := "Identical paragraph shared between two files."
	pathA := writeFile(t, dir, "a.txt", content)
	pathB := writeFile(t, dir, "b.txt", content)

	_, err := ing.IngestFile(context.Background(), pathA)
	require.NoError(t, err)
	embeddedAfterFirst := emb.embedded.Load()

	// When the second file is ingested
	report, err := ing.IngestFile(context.Background(), pathB)

	// Then its passages deduplicate against the first without embedding
	require.NoError(t, err)
	assert.Equal(t, 0, report.NewEntries)
	assert.Equal(t, report.Passages, report.Deduplicated)
	assert.Equal(t, embeddedAfterFirst, emb.embedded.Load())

	stats := corpus.Stats()
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 1, stats.Entries)
}

func TestIngestFile_UnsupportedFormat(t *testing.T) {
	ing, _, _ := newTestIngestor(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "image.png", "not really an image")

	_, err := ing.IngestFile(context.Background(), path)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnsupportedFormat, apperrors.GetCode(err))
}

func TestIngestFile_MissingFile(t *testing.T) {
	ing, _, _ := newTestIngestor(t)

	_, err := ing.IngestFile(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeFileNotFound, apperrors.GetCode(err))
}

func TestIngestPaths_IsolatesFailures(t *testing.T) {
	// Given one good file and one unsupported file
	ing, _, _ := newTestIngestor(t)
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", "Readable content.")
	bad := writeFile(t, dir, "bad.xyz", "unsupported")

	// When both are ingested as a batch
	reports, failures := ing.IngestPaths(context.Background(), []string{good, bad})

	// Then the good file lands and the bad one is reported, not fatal
	assert.Len(t, reports, 1)
	require.Contains(t, failures, bad)
	assert.Equal(t, apperrors.ErrCodeUnsupportedFormat, apperrors.GetCode(failures[bad]))
}

func TestRemove_ByFilenameOrID(t *testing.T) {
	// Given an ingested file
	ing, corpus, _ := newTestIngestor(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "Content to remove later.")

	report, err := ing.IngestFile(context.Background(), path)
	require.NoError(t, err)

	// When it is removed by filename
	require.NoError(t, ing.Remove(context.Background(), "notes.txt"))
	assert.Equal(t, 0, corpus.Stats().Documents)

	// And removing again by ID reports not found
	err = ing.Remove(context.Background(), report.DocumentID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeFileNotFound, apperrors.GetCode(err))
}
