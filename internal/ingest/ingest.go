// Package ingest turns source files into corpus entries: extract text,
// split into passages, embed what the corpus does not already hold, and
// insert with provenance.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/askdocs/askdocs/internal/chunk"
	"github.com/askdocs/askdocs/internal/embed"
	apperrors "github.com/askdocs/askdocs/internal/errors"
	"github.com/askdocs/askdocs/internal/extract"
	"github.com/askdocs/askdocs/internal/store"
)

// DefaultConcurrency bounds parallel file ingestion.
const DefaultConcurrency = 4

// docIDHashLength is the content hash prefix appended to the filename stem.
const docIDHashLength = 12

// Options configures an ingestor.
type Options struct {
	Extractors  *extract.Registry
	Splitter    *chunk.Splitter
	Embedder    embed.Embedder
	Corpus      *store.Corpus
	Concurrency int
	Logger      *slog.Logger
}

// Report summarizes one file's ingestion.
type Report struct {
	DocumentID    string
	Filename      string
	Passages      int
	NewEntries    int
	Deduplicated  int
	Superseded    string
	Skipped       bool
	CorpusVersion uint64
}

// Ingestor processes files into the corpus.
type Ingestor struct {
	extractors  *extract.Registry
	splitter    *chunk.Splitter
	embedder    embed.Embedder
	corpus      *store.Corpus
	concurrency int
	log         *slog.Logger
}

// New creates an ingestor.
func New(opts Options) *Ingestor {
	if opts.Extractors == nil {
		opts.Extractors = extract.NewRegistry()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ingestor{
		extractors:  opts.Extractors,
		splitter:    opts.Splitter,
		embedder:    opts.Embedder,
		corpus:      opts.Corpus,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
	}
}

// IngestFile processes a single file. A file whose content is unchanged
// since its last ingestion is skipped; a changed file supersedes the
// previous version under the same filename.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Report{}, apperrors.New(apperrors.ErrCodeFileNotFound,
			fmt.Sprintf("read %s", path), err)
	}

	filename := filepath.Base(path)
	docHash := hashBytes(raw)
	docID := documentID(filename, docHash)

	if existing, ok := i.corpus.FindDocumentByFilename(filename); ok && existing.ContentHash == docHash {
		i.log.Info("document_unchanged", "filename", filename, "document_id", existing.ID)
		return Report{DocumentID: existing.ID, Filename: filename, Skipped: true}, nil
	}

	text, format, err := i.extractors.ExtractFile(filename, raw)
	if err != nil {
		return Report{}, err
	}

	passages := i.splitter.Split(text, docID)
	if len(passages) == 0 {
		return Report{}, apperrors.UnprocessableDocument(filename, nil).
			WithDetail("reason", "no text content")
	}

	inserts, err := i.embedPassages(ctx, docID, passages)
	if err != nil {
		return Report{}, err
	}

	doc := store.Document{
		ID:          docID,
		Filename:    filename,
		ContentHash: docHash,
		Format:      format,
		IngestedAt:  time.Now(),
	}
	insertReport, err := i.corpus.InsertDocument(ctx, doc, inserts)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		DocumentID:    docID,
		Filename:      filename,
		Passages:      len(passages),
		NewEntries:    insertReport.Inserted,
		Deduplicated:  insertReport.Deduplicated,
		Superseded:    insertReport.Superseded,
		CorpusVersion: insertReport.CorpusVersion,
	}
	i.log.Info("document_ingested",
		"document_id", docID,
		"filename", filename,
		"passages", report.Passages,
		"new_entries", report.NewEntries,
		"deduplicated", report.Deduplicated)
	return report, nil
}

// embedPassages embeds only the passages whose content the corpus does not
// already hold. Duplicates are submitted without a vector.
func (i *Ingestor) embedPassages(ctx context.Context, docID string, passages []chunk.Passage) ([]store.PassageInsert, error) {
	inserts := make([]store.PassageInsert, len(passages))
	var missTexts []string
	var missIdx []int
	seen := make(map[string]int)

	for idx, p := range passages {
		inserts[idx] = store.PassageInsert{
			ContentHash: p.ContentHash,
			Text:        p.Text,
			Ordinal:     p.Ordinal,
			StartOffset: p.StartOffset,
			EndOffset:   p.EndOffset,
		}
		if i.corpus.HasEntry(p.ContentHash, docID) {
			continue
		}
		if _, dup := seen[p.ContentHash]; !dup {
			seen[p.ContentHash] = idx
			missTexts = append(missTexts, p.Text)
			missIdx = append(missIdx, idx)
		}
	}

	if len(missTexts) > 0 {
		vecs, err := i.embedder.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, idx := range missIdx {
			inserts[idx].Vector = vecs[j]
		}
	}

	// Repeated content within the document shares the first occurrence's
	// vector.
	for idx, p := range passages {
		if inserts[idx].Vector == nil {
			if first, ok := seen[p.ContentHash]; ok && first != idx {
				inserts[idx].Vector = inserts[first].Vector
			}
		}
	}
	return inserts, nil
}

// IngestPaths processes multiple files concurrently. One file's failure
// does not stop the batch; failures are reported per file.
func (i *Ingestor) IngestPaths(ctx context.Context, paths []string) ([]Report, map[string]error) {
	reports := make([]Report, 0, len(paths))
	failures := make(map[string]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for _, path := range paths {
		g.Go(func() error {
			report, err := i.IngestFile(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				i.log.Warn("document_failed", "path", path, "error", err)
				failures[path] = err
				return nil
			}
			reports = append(reports, report)
			return nil
		})
	}
	_ = g.Wait()

	return reports, failures
}

// Remove deletes a previously ingested document by ID or filename.
func (i *Ingestor) Remove(ctx context.Context, ref string) error {
	if doc, ok := i.corpus.FindDocumentByFilename(ref); ok {
		return i.corpus.DeleteDocument(ctx, doc.ID)
	}
	return i.corpus.DeleteDocument(ctx, ref)
}

// documentID is stable for a filename and content: the stem plus a content
// hash prefix.
func documentID(filename, contentHash string) string {
	stem := filename
	if ext := filepath.Ext(filename); ext != "" {
		stem = filename[:len(filename)-len(ext)]
	}
	return fmt.Sprintf("%s-%s", stem, contentHash[:docIDHashLength])
}

// hashBytes returns the hex SHA-256 of raw file bytes.
func hashBytes(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
