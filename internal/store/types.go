// Package store implements the deduplicating, content-addressed corpus
// store: passage entries keyed by normalized content hash with provenance
// tracking, an in-memory HNSW vector index, and SQLite persistence.
package store

import (
	"fmt"
	"time"
)

// Dedup scopes.
const (
	// DedupScopeCorpus shares one entry per content hash across all documents.
	DedupScopeCorpus = "corpus"

	// DedupScopeDocument keeps one entry per content hash per document.
	DedupScopeDocument = "document"
)

// Document describes one ingested source file.
type Document struct {
	ID          string
	Filename    string
	ContentHash string
	Format      string
	Passages    int
	IngestedAt  time.Time
}

// Provenance records one place a passage's content appears.
type Provenance struct {
	DocumentID  string
	Ordinal     int
	StartOffset int
	EndOffset   int
}

// PassageInsert is one passage submitted for insertion.
// Vector may be nil when the corpus already holds an entry for ContentHash;
// callers check HasEntry first to skip re-embedding duplicates.
type PassageInsert struct {
	ContentHash string
	Text        string
	Ordinal     int
	StartOffset int
	EndOffset   int
	Vector      []float32
}

// InsertReport summarizes one document insertion.
type InsertReport struct {
	Inserted      int    // new entries added to the corpus
	Deduplicated  int    // passages attached to an existing entry
	Superseded    string // document ID replaced by this ingest, if any
	CorpusVersion uint64
}

// SearchResult is one retrieved passage with its relevance score and every
// known provenance.
type SearchResult struct {
	ContentHash string
	Text        string
	Score       float32
	Provenance  []Provenance
}

// Stats summarizes corpus contents.
type Stats struct {
	Documents     int
	Entries       int
	Provenances   int
	Dimensions    int
	CorpusVersion uint64
}

// ErrDimensionMismatch reports a vector whose dimension does not match the
// corpus.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
