// Package analysis extracts prose paragraphs and tables from source
// documents. The remote analyzer delegates to Azure Document Intelligence;
// the local analyzer handles PDF and plain text without a network call.
package analysis

import (
	"context"
	"errors"

	"github.com/calvete/audex/internal/index"
)

// ErrAnalysis is returned when a document cannot be analyzed. An analysis
// failure aborts ingestion for that document.
var ErrAnalysis = errors.New("document analysis failed")

// Layout is the extracted structure of one document: paragraphs in
// reading order and tables with row-major cell grids.
type Layout struct {
	Paragraphs []string
	Tables     []index.Table
}

// Analyzer extracts the layout of a document from its raw bytes.
type Analyzer interface {
	Analyze(ctx context.Context, content []byte) (Layout, error)
}
