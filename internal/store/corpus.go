package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

const (
	corpusDBFile   = "corpus.db"
	corpusLockFile = "corpus.lock"

	stateKeyVersion    = "corpus_version"
	stateKeyDimensions = "dimensions"
	stateKeyDedupScope = "dedup_scope"
)

// Options configures a corpus store.
type Options struct {
	// Dir is the data directory holding the database and lock file.
	Dir string

	// Dimensions is the embedding vector dimension.
	Dimensions int

	// DedupScope is DedupScopeCorpus or DedupScopeDocument.
	DedupScope string

	Logger *slog.Logger
}

// entry is one deduplicated passage held in memory.
type entry struct {
	contentHash string
	text        string
	vector      []float32 // unit-normalized
	seq         uint64
	provenance  []Provenance
}

// Corpus is the deduplicating content-addressed passage store. Entries are
// keyed by normalized content hash, carry every provenance that produced
// them, and are indexed for cosine retrieval. All state is write-through
// persisted to SQLite and reloaded on open. Mutations commit to the database
// before touching in-memory state, so a failed transaction leaves the live
// maps untouched.
type Corpus struct {
	mu      sync.RWMutex
	db      *sql.DB
	flk     *flock.Flock
	index   *vectorIndex
	entries map[string]*entry
	docs    map[string]Document
	scope   string
	version uint64
	nextSeq uint64
	log     *slog.Logger
}

// Open acquires the corpus lock, opens the database, and rebuilds the
// in-memory entry map and vector index from persisted state.
func Open(opts Options) (*Corpus, error) {
	if opts.Dimensions <= 0 {
		return nil, apperrors.ConfigError("corpus dimensions must be positive", nil)
	}
	if opts.DedupScope == "" {
		opts.DedupScope = DedupScopeCorpus
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, apperrors.StoreError("create data directory", err)
	}

	flk := flock.New(filepath.Join(opts.Dir, corpusLockFile))
	locked, err := flk.TryLock()
	if err != nil {
		return nil, apperrors.StoreError("acquire corpus lock", err)
	}
	if !locked {
		return nil, apperrors.New(apperrors.ErrCodeCorpusLocked,
			"corpus is locked by another process", nil).
			WithSuggestion("stop the other askdocs process or use a different data directory")
	}

	db, err := openDatabase(filepath.Join(opts.Dir, corpusDBFile))
	if err != nil {
		_ = flk.Unlock()
		return nil, apperrors.New(apperrors.ErrCodeCorruptCorpus, "open corpus database", err)
	}

	c := &Corpus{
		db:      db,
		flk:     flk,
		index:   newVectorIndex(opts.Dimensions),
		entries: make(map[string]*entry),
		docs:    make(map[string]Document),
		scope:   opts.DedupScope,
		log:     opts.Logger,
	}

	if err := c.load(opts); err != nil {
		_ = db.Close()
		_ = flk.Unlock()
		return nil, err
	}

	c.log.Info("corpus_opened",
		"dir", opts.Dir,
		"documents", len(c.docs),
		"entries", len(c.entries),
		"version", c.version)
	return c, nil
}

// load restores documents, entries, and state from the database.
func (c *Corpus) load(opts Options) error {
	dimsStr, err := getState(c.db, stateKeyDimensions, strconv.Itoa(opts.Dimensions))
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCorruptCorpus, "read corpus state", err)
	}
	dims, err := strconv.Atoi(dimsStr)
	if err != nil || dims != opts.Dimensions {
		return apperrors.New(apperrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("corpus was built with %s dimensions, configured %d", dimsStr, opts.Dimensions), nil).
			WithSuggestion("remove the data directory or restore the original embedding model")
	}

	scope, err := getState(c.db, stateKeyDedupScope, opts.DedupScope)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCorruptCorpus, "read corpus state", err)
	}
	if scope != opts.DedupScope {
		return apperrors.ConfigError(
			fmt.Sprintf("corpus was built with dedup scope %q, configured %q", scope, opts.DedupScope), nil)
	}

	versionStr, err := getState(c.db, stateKeyVersion, "0")
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCorruptCorpus, "read corpus state", err)
	}
	c.version, err = strconv.ParseUint(versionStr, 10, 64)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCorruptCorpus, "parse corpus version", err)
	}

	rows, err := c.db.Query("SELECT id, filename, content_hash, format, ingested_at FROM documents")
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCorruptCorpus, "load documents", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var doc Document
		var ingestedAt string
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.ContentHash, &doc.Format, &ingestedAt); err != nil {
			return apperrors.New(apperrors.ErrCodeCorruptCorpus, "scan document", err)
		}
		doc.IngestedAt, _ = time.Parse(time.RFC3339, ingestedAt)
		c.docs[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return apperrors.New(apperrors.ErrCodeCorruptCorpus, "load documents", err)
	}

	if err := c.loadEntries(); err != nil {
		return err
	}
	if err := c.loadProvenance(); err != nil {
		return err
	}

	for id, doc := range c.docs {
		doc.Passages = c.passageCountLocked(id)
		c.docs[id] = doc
	}
	return nil
}

// loadEntries restores passages in insertion order and rebuilds the index.
func (c *Corpus) loadEntries() error {
	rows, err := c.db.Query("SELECT entry_key, content_hash, text, embedding, seq FROM passages ORDER BY seq")
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCorruptCorpus, "load passages", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var e entry
		var blob []byte
		if err := rows.Scan(&key, &e.contentHash, &e.text, &blob, &e.seq); err != nil {
			return apperrors.New(apperrors.ErrCodeCorruptCorpus, "scan passage", err)
		}
		e.vector, err = decodeVector(blob)
		if err != nil {
			return apperrors.New(apperrors.ErrCodeCorruptCorpus, "decode embedding", err)
		}
		if err := c.index.add(key, e.vector); err != nil {
			return apperrors.New(apperrors.ErrCodeCorruptCorpus, "rebuild index", err)
		}
		c.entries[key] = &e
		if e.seq >= c.nextSeq {
			c.nextSeq = e.seq + 1
		}
	}
	return rows.Err()
}

// loadProvenance attaches provenance rows to their entries.
func (c *Corpus) loadProvenance() error {
	rows, err := c.db.Query(
		"SELECT entry_key, document_id, ordinal, start_offset, end_offset FROM provenance ORDER BY entry_key, document_id, ordinal")
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCorruptCorpus, "load provenance", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var p Provenance
		if err := rows.Scan(&key, &p.DocumentID, &p.Ordinal, &p.StartOffset, &p.EndOffset); err != nil {
			return apperrors.New(apperrors.ErrCodeCorruptCorpus, "scan provenance", err)
		}
		e, ok := c.entries[key]
		if !ok {
			return apperrors.New(apperrors.ErrCodeCorruptCorpus,
				fmt.Sprintf("provenance references missing entry %s", key), nil)
		}
		e.provenance = append(e.provenance, p)
	}
	return rows.Err()
}

// passageCountLocked counts provenance records for a document.
func (c *Corpus) passageCountLocked(documentID string) int {
	var n int
	for _, e := range c.entries {
		for _, p := range e.provenance {
			if p.DocumentID == documentID {
				n++
			}
		}
	}
	return n
}

// entryKey derives the dedup key for a content hash. Under document scope
// identical content in different documents stays separate.
func (c *Corpus) entryKey(contentHash, documentID string) string {
	if c.scope == DedupScopeDocument {
		return contentHash + ":" + documentID
	}
	return contentHash
}

// HasEntry reports whether the corpus already holds an entry for this
// content hash, letting callers skip embedding duplicates.
func (c *Corpus) HasEntry(contentHash, documentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[c.entryKey(contentHash, documentID)]
	return ok
}

// Document returns the document with the given ID, if present.
func (c *Corpus) Document(documentID string) (Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[documentID]
	return doc, ok
}

// FindDocumentByFilename returns the document ingested from filename, if any.
func (c *Corpus) FindDocumentByFilename(filename string) (Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, doc := range c.docs {
		if doc.Filename == filename {
			return doc, true
		}
	}
	return Document{}, false
}

// Documents lists every ingested document, newest first.
func (c *Corpus) Documents() []Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docs := make([]Document, 0, len(c.docs))
	for _, doc := range c.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].IngestedAt.Equal(docs[j].IngestedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].IngestedAt.After(docs[j].IngestedAt)
	})
	return docs
}

// stagedEntry is a new entry awaiting commit.
type stagedEntry struct {
	key string
	e   *entry
}

// InsertDocument inserts a document and its passages. Passages whose content
// hash already has an entry gain a provenance record instead of a new entry.
// A previously ingested document with the same filename is superseded first.
// The whole insertion is one transaction and bumps the corpus version once.
func (c *Corpus) InsertDocument(ctx context.Context, doc Document, passages []PassageInsert) (InsertReport, error) {
	if err := ctx.Err(); err != nil {
		return InsertReport{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var superseded string
	for id, existing := range c.docs {
		if existing.Filename == doc.Filename || id == doc.ID {
			superseded = id
			break
		}
	}
	var orphans []string
	orphanSet := make(map[string]bool)
	if superseded != "" {
		orphans = c.orphanedEntriesLocked(superseded)
		for _, key := range orphans {
			orphanSet[key] = true
		}
	}

	tx, err := c.db.Begin()
	if err != nil {
		return InsertReport{}, apperrors.StoreError("begin insert transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if superseded != "" {
		if err := c.removeDocumentRows(tx, superseded, orphans); err != nil {
			return InsertReport{}, err
		}
	}

	var report InsertReport
	report.Superseded = superseded
	type provAppend struct {
		e    *entry
		prov Provenance
	}
	staged := make(map[string]*entry)
	var stagedOrder []stagedEntry
	var dedupAppends []provAppend
	seq := c.nextSeq

	for _, p := range passages {
		key := c.entryKey(p.ContentHash, doc.ID)
		prov := Provenance{
			DocumentID:  doc.ID,
			Ordinal:     p.Ordinal,
			StartOffset: p.StartOffset,
			EndOffset:   p.EndOffset,
		}

		live, exists := c.entries[key]
		switch {
		case exists && !orphanSet[key]:
			report.Deduplicated++
			dedupAppends = append(dedupAppends, provAppend{e: live, prov: prov})
		case staged[key] != nil:
			report.Deduplicated++
			staged[key].provenance = append(staged[key].provenance, prov)
		default:
			var vec []float32
			if p.Vector != nil {
				if len(p.Vector) != c.index.dims {
					return InsertReport{}, apperrors.New(apperrors.ErrCodeDimensionMismatch,
						ErrDimensionMismatch{Expected: c.index.dims, Got: len(p.Vector)}.Error(), nil)
				}
				vec = make([]float32, len(p.Vector))
				copy(vec, p.Vector)
				normalizeVector(vec)
			} else if exists {
				// An orphaned entry being superseded by identical content
				// keeps its vector.
				vec = live.vector
			} else {
				return InsertReport{}, apperrors.InternalError(
					fmt.Sprintf("passage %d of %s has no vector", p.Ordinal, doc.ID), nil)
			}

			if _, err := tx.Exec(
				"INSERT INTO passages (entry_key, content_hash, text, embedding, seq) VALUES (?, ?, ?, ?, ?)",
				key, p.ContentHash, p.Text, encodeVector(vec), seq); err != nil {
				return InsertReport{}, apperrors.StoreError("persist passage", err)
			}

			fresh := &entry{
				contentHash: p.ContentHash,
				text:        p.Text,
				vector:      vec,
				seq:         seq,
				provenance:  []Provenance{prov},
			}
			seq++
			staged[key] = fresh
			stagedOrder = append(stagedOrder, stagedEntry{key: key, e: fresh})
			report.Inserted++
		}

		if _, err := tx.Exec(
			"INSERT INTO provenance (entry_key, document_id, ordinal, start_offset, end_offset) VALUES (?, ?, ?, ?, ?)",
			key, prov.DocumentID, prov.Ordinal, prov.StartOffset, prov.EndOffset); err != nil {
			return InsertReport{}, apperrors.StoreError("persist provenance", err)
		}
	}

	doc.Passages = len(passages)
	if _, err := tx.Exec(
		"INSERT INTO documents (id, filename, content_hash, format, ingested_at) VALUES (?, ?, ?, ?, ?)",
		doc.ID, doc.Filename, doc.ContentHash, doc.Format, doc.IngestedAt.UTC().Format(time.RFC3339)); err != nil {
		return InsertReport{}, apperrors.StoreError("persist document", err)
	}

	nextVersion := c.version + 1
	if err := c.persistState(tx, nextVersion); err != nil {
		return InsertReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return InsertReport{}, apperrors.StoreError("commit insert", err)
	}

	// Committed. Apply to live state: prune the superseded document first so
	// a reinserted entry key is not evicted by the prune.
	if superseded != "" {
		c.pruneDocumentMemory(superseded, orphans)
	}
	for _, s := range stagedOrder {
		if err := c.index.add(s.key, s.e.vector); err != nil {
			return InsertReport{}, apperrors.StoreError("index passage", err)
		}
		c.entries[s.key] = s.e
	}
	for _, d := range dedupAppends {
		d.e.provenance = append(d.e.provenance, d.prov)
	}
	c.nextSeq = seq
	c.version = nextVersion
	c.docs[doc.ID] = doc
	report.CorpusVersion = c.version

	c.log.Info("document_inserted",
		"document_id", doc.ID,
		"passages", len(passages),
		"new_entries", report.Inserted,
		"deduplicated", report.Deduplicated,
		"superseded", report.Superseded,
		"version", c.version)
	return report, nil
}

// DeleteDocument removes a document. Entries whose only provenance was this
// document are evicted from the corpus and the index; shared entries lose
// just the provenance records.
func (c *Corpus) DeleteDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[documentID]; !ok {
		return apperrors.New(apperrors.ErrCodeFileNotFound,
			fmt.Sprintf("document %s not found", documentID), nil)
	}

	orphans := c.orphanedEntriesLocked(documentID)

	tx, err := c.db.Begin()
	if err != nil {
		return apperrors.StoreError("begin delete transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := c.removeDocumentRows(tx, documentID, orphans); err != nil {
		return err
	}
	nextVersion := c.version + 1
	if err := c.persistState(tx, nextVersion); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StoreError("commit delete", err)
	}

	c.pruneDocumentMemory(documentID, orphans)
	c.version = nextVersion

	c.log.Info("document_deleted", "document_id", documentID, "version", c.version)
	return nil
}

// orphanedEntriesLocked returns entry keys whose every provenance belongs to
// documentID.
func (c *Corpus) orphanedEntriesLocked(documentID string) []string {
	var keys []string
	for key, e := range c.entries {
		orphaned := len(e.provenance) > 0
		for _, p := range e.provenance {
			if p.DocumentID != documentID {
				orphaned = false
				break
			}
		}
		if orphaned {
			keys = append(keys, key)
		}
	}
	return keys
}

// removeDocumentRows deletes a document's rows inside tx, including passage
// rows that would be left without provenance.
func (c *Corpus) removeDocumentRows(tx *sql.Tx, documentID string, orphans []string) error {
	if _, err := tx.Exec("DELETE FROM provenance WHERE document_id = ?", documentID); err != nil {
		return apperrors.StoreError("delete provenance", err)
	}
	if _, err := tx.Exec("DELETE FROM documents WHERE id = ?", documentID); err != nil {
		return apperrors.StoreError("delete document", err)
	}
	for _, key := range orphans {
		if _, err := tx.Exec("DELETE FROM passages WHERE entry_key = ?", key); err != nil {
			return apperrors.StoreError("delete passage", err)
		}
	}
	return nil
}

// pruneDocumentMemory removes a document's in-memory traces after commit.
func (c *Corpus) pruneDocumentMemory(documentID string, orphans []string) {
	for _, key := range orphans {
		c.index.remove(key)
		delete(c.entries, key)
	}
	for _, e := range c.entries {
		kept := e.provenance[:0]
		for _, p := range e.provenance {
			if p.DocumentID != documentID {
				kept = append(kept, p)
			}
		}
		e.provenance = kept
	}
	delete(c.docs, documentID)
}

// persistState writes the version counter and store parameters inside tx.
func (c *Corpus) persistState(tx *sql.Tx, version uint64) error {
	if err := setState(tx, stateKeyVersion, strconv.FormatUint(version, 10)); err != nil {
		return apperrors.StoreError("persist corpus version", err)
	}
	if err := setState(tx, stateKeyDimensions, strconv.Itoa(c.index.dims)); err != nil {
		return apperrors.StoreError("persist dimensions", err)
	}
	if err := setState(tx, stateKeyDedupScope, c.scope); err != nil {
		return apperrors.StoreError("persist dedup scope", err)
	}
	return nil
}

// Search returns up to k entries nearest to query, highest cosine similarity
// first, dropping anything below floor. Ties break toward the earlier
// insertion. Results carry copies safe to use after the lock is released.
func (c *Corpus) Search(ctx context.Context, query []float32, k int, floor float32) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != c.index.dims {
		return nil, apperrors.New(apperrors.ErrCodeDimensionMismatch,
			ErrDimensionMismatch{Expected: c.index.dims, Got: len(query)}.Error(), nil)
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVector(q)

	c.mu.RLock()
	defer c.mu.RUnlock()

	hits := c.index.search(q, k)

	type scored struct {
		e     *entry
		score float32
	}
	candidates := make([]scored, 0, len(hits))
	for _, hit := range hits {
		e := c.entries[hit.entryKey]
		if e == nil {
			continue
		}
		candidates = append(candidates, scored{e: e, score: hit.score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].e.seq < candidates[j].e.seq
	})

	results := make([]SearchResult, 0, len(candidates))
	for _, cand := range candidates {
		if cand.score < floor {
			continue
		}
		prov := make([]Provenance, len(cand.e.provenance))
		copy(prov, cand.e.provenance)
		results = append(results, SearchResult{
			ContentHash: cand.e.contentHash,
			Text:        cand.e.text,
			Score:       cand.score,
			Provenance:  prov,
		})
	}
	return results, nil
}

// Version returns the monotonic corpus version. It changes on every insert
// or delete and gates the answer cache.
func (c *Corpus) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Stats summarizes corpus contents.
func (c *Corpus) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var provs int
	for _, e := range c.entries {
		provs += len(e.provenance)
	}
	return Stats{
		Documents:     len(c.docs),
		Entries:       len(c.entries),
		Provenances:   provs,
		Dimensions:    c.index.dims,
		CorpusVersion: c.version,
	}
}

// Close releases the database and the corpus lock.
func (c *Corpus) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.db.Close()
	if unlockErr := c.flk.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}
