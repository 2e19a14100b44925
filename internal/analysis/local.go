package analysis

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LocalAnalyzer extracts text without a remote service: PDF content is
// read page by page, anything else is treated as UTF-8 text split into
// paragraphs on blank lines. It never produces tables; table extraction
// needs the layout service.
type LocalAnalyzer struct{}

// NewLocalAnalyzer creates a LocalAnalyzer.
func NewLocalAnalyzer() *LocalAnalyzer {
	return &LocalAnalyzer{}
}

// Analyze extracts paragraphs from the document bytes.
func (a *LocalAnalyzer) Analyze(ctx context.Context, content []byte) (Layout, error) {
	if err := ctx.Err(); err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}

	if bytes.HasPrefix(content, []byte("%PDF")) {
		paragraphs, err := pdfParagraphs(content)
		if err != nil {
			return Layout{}, fmt.Errorf("%w: %v", ErrAnalysis, err)
		}
		return Layout{Paragraphs: paragraphs}, nil
	}

	return Layout{Paragraphs: textParagraphs(string(content))}, nil
}

// pdfParagraphs returns one paragraph per PDF page.
func pdfParagraphs(content []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}

	var paragraphs []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d: %w", i, err)
		}
		if strings.TrimSpace(text) != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return paragraphs, nil
}

// textParagraphs splits plain text into paragraphs on blank lines.
func textParagraphs(text string) []string {
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(block) != "" {
			paragraphs = append(paragraphs, block)
		}
	}
	return paragraphs
}
