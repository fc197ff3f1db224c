package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// schema holds every table the corpus persists.
//
// passages are keyed by entry key (content hash, suffixed with the document
// ID under document-scoped dedup). provenance rows record each place an
// entry's content appears. corpus_state is a small key-value table for the
// version counter and the embedding dimension.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	format       TEXT NOT NULL,
	ingested_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS passages (
	entry_key    TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	text         TEXT NOT NULL,
	embedding    BLOB NOT NULL,
	seq          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS provenance (
	entry_key    TEXT NOT NULL,
	document_id  TEXT NOT NULL,
	ordinal      INTEGER NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	PRIMARY KEY (entry_key, document_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_provenance_document ON provenance(document_id);

CREATE TABLE IF NOT EXISTS corpus_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// openDatabase opens (creating if needed) the corpus database with WAL mode
// and applies the schema.
func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc.org/sqlite applies WAL reliably only via explicit pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// getState reads one corpus_state value, returning fallback when absent.
func getState(db *sql.DB, key, fallback string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM corpus_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// setState upserts one corpus_state value inside tx.
func setState(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		"INSERT INTO corpus_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// encodeVector serializes a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeVector deserializes a little-endian float32 vector.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
