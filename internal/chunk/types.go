// Package chunk splits extracted document text into overlapping passages.
// Passages are the unit of embedding, storage, and retrieval.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Passage is a bounded text span extracted from a document.
type Passage struct {
	// DocumentID is the owning document.
	DocumentID string
	// Ordinal is the passage's position within the document (0-based).
	Ordinal int
	// Text is the passage text.
	Text string
	// StartOffset and EndOffset are byte offsets of the span in the
	// extracted document text. EndOffset is exclusive.
	StartOffset int
	EndOffset   int
	// ContentHash is the SHA-256 of the normalized text. Two passages with
	// identical normalized text share a hash, which is the dedup and
	// embedding-cache key.
	ContentHash string
}

// Normalize collapses runs of whitespace to single spaces and trims the
// result. Hashing normalized text makes passage identity insensitive to
// incidental formatting differences.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// HashText returns the hex SHA-256 of the normalized text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
