package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

func openTestCorpus(t *testing.T, dir string) *Corpus {
	t.Helper()
	c, err := Open(Options{Dir: dir, Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testDoc(id, filename string) Document {
	return Document{
		ID:          id,
		Filename:    filename,
		ContentHash: "doc-hash-" + id,
		Format:      "txt",
		IngestedAt:  time.Now(),
	}
}

func passage(hash, text string, ordinal int, vec []float32) PassageInsert {
	return PassageInsert{
		ContentHash: hash,
		Text:        text,
		Ordinal:     ordinal,
		StartOffset: ordinal * 100,
		EndOffset:   ordinal*100 + len(text),
		Vector:      vec,
	}
}

func TestCorpus_InsertAndSearch(t *testing.T) {
	// Given a corpus with two passages pointing in different directions
	c := openTestCorpus(t, t.TempDir())

	report, err := c.InsertDocument(context.Background(), testDoc("doc1", "a.txt"), []PassageInsert{
		passage("hash-alpha", "alpha text", 0, []float32{1, 0, 0}),
		passage("hash-beta", "beta text", 1, []float32{0, 1, 0}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 0, report.Deduplicated)

	// When searching near the first passage
	results, err := c.Search(context.Background(), []float32{0.9, 0.1, 0}, 5, 0)

	// Then the nearest passage ranks first with the higher score
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alpha text", results[0].Text)
	assert.Greater(t, results[0].Score, results[1].Score)
	require.Len(t, results[0].Provenance, 1)
	assert.Equal(t, "doc1", results[0].Provenance[0].DocumentID)
}

func TestCorpus_SearchRespectsFloorAndK(t *testing.T) {
	// Given three passages at varying angles from the query
	c := openTestCorpus(t, t.TempDir())

	_, err := c.InsertDocument(context.Background(), testDoc("doc1", "a.txt"), []PassageInsert{
		passage("h1", "aligned", 0, []float32{1, 0, 0}),
		passage("h2", "diagonal", 1, []float32{1, 1, 0}),
		passage("h3", "orthogonal", 2, []float32{0, 0, 1}),
	})
	require.NoError(t, err)

	// When searching with a relevance floor
	results, err := c.Search(context.Background(), []float32{1, 0, 0}, 5, 0.5)

	// Then only passages at or above the floor survive
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "aligned", results[0].Text)
	assert.Equal(t, "diagonal", results[1].Text)

	// And k bounds the result set
	results, err = c.Search(context.Background(), []float32{1, 0, 0}, 1, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestCorpus_DeduplicatesAcrossDocuments(t *testing.T) {
	// Given two documents sharing a passage
	c := openTestCorpus(t, t.TempDir())

	_, err := c.InsertDocument(context.Background(), testDoc("doc1", "a.txt"), []PassageInsert{
		passage("shared-hash", "shared text", 0, []float32{1, 0, 0}),
	})
	require.NoError(t, err)

	// When the second document inserts the same content without a vector
	report, err := c.InsertDocument(context.Background(), testDoc("doc2", "b.txt"), []PassageInsert{
		{ContentHash: "shared-hash", Text: "shared text", Ordinal: 0},
	})

	// Then no new entry is created and both provenances are recorded
	require.NoError(t, err)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 1, report.Deduplicated)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 2, stats.Provenances)

	results, err := c.Search(context.Background(), []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Provenance, 2)
}

func TestCorpus_DeleteEvictsOrphanedEntries(t *testing.T) {
	// Given a shared entry and an entry unique to one document
	c := openTestCorpus(t, t.TempDir())
	ctx := context.Background()

	_, err := c.InsertDocument(ctx, testDoc("doc1", "a.txt"), []PassageInsert{
		passage("shared-hash", "shared text", 0, []float32{1, 0, 0}),
		passage("unique-hash", "unique text", 1, []float32{0, 1, 0}),
	})
	require.NoError(t, err)
	_, err = c.InsertDocument(ctx, testDoc("doc2", "b.txt"), []PassageInsert{
		{ContentHash: "shared-hash", Text: "shared text", Ordinal: 0},
	})
	require.NoError(t, err)
	versionBefore := c.Version()

	// When the first document is deleted
	require.NoError(t, c.DeleteDocument(ctx, "doc1"))

	// Then the unique entry is gone, the shared entry survives with the
	// remaining provenance, and the version advanced
	stats := c.Stats()
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Entries)
	assert.Greater(t, c.Version(), versionBefore)

	results, err := c.Search(ctx, []float32{0, 1, 0}, 5, 0.9)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = c.Search(ctx, []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Provenance, 1)
	assert.Equal(t, "doc2", results[0].Provenance[0].DocumentID)
}

func TestCorpus_DeleteUnknownDocument(t *testing.T) {
	c := openTestCorpus(t, t.TempDir())

	err := c.DeleteDocument(context.Background(), "missing")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeFileNotFound, apperrors.GetCode(err))
}

func TestCorpus_SupersedeSameFilename(t *testing.T) {
	// Given a document already ingested from a.txt
	c := openTestCorpus(t, t.TempDir())
	ctx := context.Background()

	_, err := c.InsertDocument(ctx, testDoc("doc1", "a.txt"), []PassageInsert{
		passage("old-hash", "old content", 0, []float32{1, 0, 0}),
		passage("kept-hash", "kept content", 1, []float32{0, 1, 0}),
	})
	require.NoError(t, err)

	// When a new version of a.txt is inserted, reusing one passage
	report, err := c.InsertDocument(ctx, testDoc("doc1-v2", "a.txt"), []PassageInsert{
		{ContentHash: "kept-hash", Text: "kept content", Ordinal: 0},
		passage("new-hash", "new content", 1, []float32{0, 0, 1}),
	})

	// Then the old document is superseded and the corpus holds only the
	// new version's passages
	require.NoError(t, err)
	assert.Equal(t, "doc1", report.Superseded)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 2, stats.Entries)

	results, err := c.Search(ctx, []float32{1, 0, 0}, 5, 0.9)
	require.NoError(t, err)
	assert.Empty(t, results, "old content should be gone")

	results, err = c.Search(ctx, []float32{0, 1, 0}, 5, 0.9)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kept content", results[0].Text)
}

func TestCorpus_PersistsAcrossReopen(t *testing.T) {
	// Given a corpus with content, closed cleanly
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(Options{Dir: dir, Dimensions: 3})
	require.NoError(t, err)
	_, err = c.InsertDocument(ctx, testDoc("doc1", "a.txt"), []PassageInsert{
		passage("h1", "persisted text", 0, []float32{1, 0, 0}),
	})
	require.NoError(t, err)
	versionBefore := c.Version()
	require.NoError(t, c.Close())

	// When it is reopened
	c = openTestCorpus(t, dir)

	// Then documents, entries, and the version counter are restored
	assert.Equal(t, versionBefore, c.Version())
	docs := c.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "a.txt", docs[0].Filename)
	assert.Equal(t, 1, docs[0].Passages)

	results, err := c.Search(ctx, []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted text", results[0].Text)
}

func TestCorpus_DimensionMismatchRejected(t *testing.T) {
	c := openTestCorpus(t, t.TempDir())

	_, err := c.InsertDocument(context.Background(), testDoc("doc1", "a.txt"), []PassageInsert{
		passage("h1", "wrong dims", 0, []float32{1, 0}),
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDimensionMismatch, apperrors.GetCode(err))

	_, err = c.Search(context.Background(), []float32{1, 0}, 5, 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDimensionMismatch, apperrors.GetCode(err))
}

func TestCorpus_SecondOpenIsRejected(t *testing.T) {
	// Given an open corpus
	dir := t.TempDir()
	_ = openTestCorpus(t, dir)

	// When another store opens the same directory
	_, err := Open(Options{Dir: dir, Dimensions: 3})

	// Then the lock refuses it
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCorpusLocked, apperrors.GetCode(err))
}

func TestCorpus_DocumentScopeKeepsDuplicatesSeparate(t *testing.T) {
	// Given a corpus deduplicating per document
	c, err := Open(Options{Dir: t.TempDir(), Dimensions: 3, DedupScope: DedupScopeDocument})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	_, err = c.InsertDocument(ctx, testDoc("doc1", "a.txt"), []PassageInsert{
		passage("shared-hash", "shared text", 0, []float32{1, 0, 0}),
	})
	require.NoError(t, err)

	// When a second document inserts identical content
	report, err := c.InsertDocument(ctx, testDoc("doc2", "b.txt"), []PassageInsert{
		passage("shared-hash", "shared text", 0, []float32{1, 0, 0}),
	})

	// Then it gets its own entry
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 2, c.Stats().Entries)
}
