// Package retrieval stores embedded fragments and tables in named
// collections and finds the candidates most similar to a query vector.
package retrieval

import (
	"context"
	"errors"
	"time"
)

// ErrDimensionMismatch is returned when a query vector's dimension differs
// from the embeddings stored in the searched collection. Query-time and
// ingestion-time embeddings must come from the same model.
var ErrDimensionMismatch = errors.New("query vector dimension does not match stored embeddings")

// Search defaults, matching the values the corpus was tuned with.
const (
	DefaultCandidates = 300
	DefaultLimit      = 5
	DefaultMinScore   = 0.8
)

// Record is one embedded unit in a collection: a prose fragment, or a
// table whose linearized text was embedded. Records are immutable once
// inserted; deletion by source document is the only mutation.
type Record struct {
	ID          string
	SourceID    string // id of the source file blob
	DisplayName string
	DocType     string // source file extension, e.g. "pdf"
	Seq         int    // fragment order within the source document
	Body        string // fragment text, or linearized table text
	Cells       string // JSON cell grid for table records, "" for prose
	Embedding   []float32
	CreatedAt   time.Time
}

// ScoredRecord is a Record with its similarity score and the collection
// it was found in. Scores are cosine similarities in [0, 1] for the
// non-negative embedding spaces used here, comparable across collections.
type ScoredRecord struct {
	Record
	Collection string
	Score      float32
}

// SearchOptions bound a similarity search. Zero values fall back to the
// package defaults.
type SearchOptions struct {
	Candidates int     // candidate pool scanned for the top scores
	Limit      int     // maximum results returned
	MinScore   float32 // confidence floor; lower-scoring candidates are dropped
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.Candidates <= 0 {
		o.Candidates = DefaultCandidates
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MinScore <= 0 {
		o.MinScore = DefaultMinScore
	}
	return o
}

// VectorStore is the persistence interface for embedded records.
type VectorStore interface {
	// Insert adds records to the named collection. Duplicates are
	// accepted; idempotence is the caller's concern.
	Insert(ctx context.Context, collection string, records []Record) error

	// Search returns up to min(Candidates, Limit) records most similar to
	// vector, every one scoring at least MinScore, sorted descending by
	// score. An empty result is a valid outcome, not an error.
	Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]ScoredRecord, error)

	// DeleteBySource removes every record, in all collections, that
	// references the given source document. Returns the number removed.
	DeleteBySource(ctx context.Context, sourceID string) (int64, error)

	// Count returns the number of records in the named collection.
	Count(ctx context.Context, collection string) (int, error)
}
