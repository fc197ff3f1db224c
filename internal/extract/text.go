package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TextExtractor handles plain text files.
type TextExtractor struct{}

// Verify interface implementation at compile time
var _ Extractor = (*TextExtractor)(nil)

// Format returns the format tag.
func (e *TextExtractor) Format() string { return FormatText }

// Extract validates encoding and returns the text unchanged apart from
// normalized line endings.
func (e *TextExtractor) Extract(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return text, nil
}
