package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts text from PDF files using ledongthuc/pdf.
type PDFExtractor struct{}

// Verify interface implementation at compile time
var _ Extractor = (*PDFExtractor)(nil)

// Format returns the format tag.
func (e *PDFExtractor) Format() string { return FormatPDF }

// Extract returns the plain text of all pages.
// The pdf library panics on some malformed files, so the panic is converted
// into an unprocessable-document error instead of crashing ingestion.
func (e *PDFExtractor) Extract(raw []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", fmt.Errorf("copy pdf text: %w", err)
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return out, nil
}
