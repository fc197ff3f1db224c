package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// MarkdownExtractor strips Markdown structure and returns plain prose.
// Headings, list items, and code blocks become plain paragraphs so the
// chunker sees natural paragraph boundaries.
type MarkdownExtractor struct{}

// Verify interface implementation at compile time
var _ Extractor = (*MarkdownExtractor)(nil)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Format returns the format tag.
func (e *MarkdownExtractor) Format() string { return FormatMarkdown }

// Extract parses the Markdown AST and collects its text content.
func (e *MarkdownExtractor) Extract(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}

	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader(raw))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch t := n.(type) {
			case *ast.Text:
				_, _ = b.Write(t.Segment.Value(raw))
				if t.SoftLineBreak() || t.HardLineBreak() {
					b.WriteByte('\n')
				}
			case *ast.FencedCodeBlock:
				writeBlockLines(&b, raw, t)
			case *ast.CodeBlock:
				writeBlockLines(&b, raw, t)
			case *ast.AutoLink:
				_, _ = b.Write(t.URL(raw))
			}
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock {
			b.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown ast: %w", err)
	}

	text := blankRuns.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(text), nil
}

// writeBlockLines writes the raw source lines of a block node.
func writeBlockLines(b *strings.Builder, raw []byte, n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		_, _ = b.Write(seg.Value(raw))
	}
}
