package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

// Splitter splits text into passages of at most Size bytes, preferring
// paragraph and sentence boundaries over hard cuts. Splitting is a pure
// function of its inputs: the same text and parameters always produce the
// same offsets and content hashes, which is what makes dedup across repeated
// uploads work.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a splitter.
// overlap is the number of trailing bytes of one passage carried into the
// next; it must be smaller than size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, apperrors.ConfigError("chunk size must be positive", nil)
	}
	if overlap < 0 || overlap >= size {
		return nil, apperrors.ConfigError("chunk overlap must be in [0, size)", nil)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Size returns the configured maximum passage length.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split chunks text into ordered passages for docID.
// Empty or whitespace-only input yields no passages. The method never fails
// for well-formed text.
func (s *Splitter) Split(text, docID string) []Passage {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var passages []Passage
	pos := skipSpace(text, 0)
	ordinal := 0

	for pos < len(text) {
		end := pos + s.size
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, pos, end)
		}

		start, stop := trimSpan(text, pos, end)
		if stop > start {
			span := text[start:stop]
			passages = append(passages, Passage{
				DocumentID:  docID,
				Ordinal:     ordinal,
				Text:        span,
				StartOffset: start,
				EndOffset:   stop,
				ContentHash: HashText(span),
			})
			ordinal++
		}

		if end >= len(text) {
			break
		}

		next := end - s.overlap
		if next <= pos {
			next = end
		}
		// Never start a passage mid-word: slide forward to a word boundary,
		// but only within the overlap. After a hard cut inside an unbroken
		// token the next passage continues mid-word at the cut.
		if ws := wordStart(text, next); ws <= end {
			next = ws
		} else {
			next = end
		}
		if next <= pos {
			next = end
		}
		pos = next
	}

	return passages
}

// cutPoint finds the best split position in text[start:limit], preferring
// a paragraph break, then a sentence end, then any whitespace, and finally
// a hard cut at a rune boundary.
func cutPoint(text string, start, limit int) int {
	window := text[start:limit]

	// Paragraph break
	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return start + idx + 2
	}

	// Sentence end: terminal punctuation followed by whitespace
	best := -1
	for i := 0; i < len(window)-1; i++ {
		switch window[i] {
		case '.', '!', '?':
			if isSpaceByte(window[i+1]) {
				best = i + 1
			}
		}
	}
	if best > 0 {
		return start + best
	}

	// Any whitespace, so a word is never cut in half
	for i := len(window) - 1; i > 0; i-- {
		if isSpaceByte(window[i]) {
			return start + i
		}
	}

	// Hard cut, backed off to a rune boundary
	cut := limit
	for cut > start && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == start {
		return limit
	}
	return cut
}

// wordStart returns the first position at or after i that begins a word.
// If i lands inside a word, it advances past it rather than starting a
// passage with a word fragment.
func wordStart(text string, i int) int {
	if i >= len(text) {
		return len(text)
	}
	for i > 0 && !utf8.RuneStart(text[i]) {
		i++
		if i >= len(text) {
			return len(text)
		}
	}
	if !isSpaceByte(text[i]) && i > 0 && !isSpaceByte(text[i-1]) {
		// Inside a word: skip to its end
		for i < len(text) && !isSpaceByte(text[i]) {
			i++
		}
	}
	return skipSpace(text, i)
}

// skipSpace returns the first non-whitespace position at or after i.
func skipSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

// trimSpan shrinks [start, stop) so it carries no leading or trailing
// whitespace, keeping offsets pointing at the retained text.
func trimSpan(text string, start, stop int) (int, int) {
	start = skipSpace(text, start)
	for stop > start {
		r, size := utf8.DecodeLastRuneInString(text[start:stop])
		if !unicode.IsSpace(r) {
			break
		}
		stop -= size
	}
	return start, stop
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
