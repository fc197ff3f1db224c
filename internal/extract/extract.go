// Package extract converts raw uploaded document bytes into plain text.
//
// One Extractor exists per supported format tag; selection is by tag, never
// by runtime type inspection. Extraction failures surface as typed
// unprocessable-document errors so a bad file aborts only its own ingestion.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

// Format tags for the supported document formats.
const (
	FormatText     = "txt"
	FormatMarkdown = "md"
	FormatPDF      = "pdf"
)

// Extractor converts raw document bytes into plain text.
type Extractor interface {
	// Extract returns the plain text content of raw.
	Extract(raw []byte) (string, error)
	// Format returns the format tag this extractor handles.
	Format() string
}

// Registry maps format tags to extractors.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry creates a registry with the built-in extractors (txt, md, pdf).
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register(&TextExtractor{})
	r.Register(&MarkdownExtractor{})
	r.Register(&PDFExtractor{})
	return r
}

// Register adds an extractor, replacing any existing one for the same tag.
func (r *Registry) Register(e Extractor) {
	r.extractors[e.Format()] = e
}

// FormatForPath infers the format tag from a filename extension.
// Returns an unsupported-format error for unknown extensions.
func FormatForPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".log":
		return FormatText, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".pdf":
		return FormatPDF, nil
	default:
		return "", apperrors.New(apperrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("unsupported file type %q", filepath.Ext(path)), nil).
			WithSuggestion("supported formats: .txt, .md, .pdf")
	}
}

// Extract runs the extractor registered for the given format tag.
func (r *Registry) Extract(format string, raw []byte) (string, error) {
	e, ok := r.extractors[format]
	if !ok {
		return "", apperrors.New(apperrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("no extractor for format %q", format), nil)
	}
	return e.Extract(raw)
}

// ExtractFile infers the format from the filename and extracts raw.
func (r *Registry) ExtractFile(filename string, raw []byte) (text, format string, err error) {
	format, err = FormatForPath(filename)
	if err != nil {
		return "", "", err
	}
	text, err = r.Extract(format, raw)
	if err != nil {
		return "", "", apperrors.UnprocessableDocument(filename, err)
	}
	return text, format, nil
}
