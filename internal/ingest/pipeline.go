// Package ingest turns one source document into stored, searchable
// records: layout analysis, normalization, fragmentation, embedding, and
// persistence. Each ingestion runs synchronously to completion.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calvete/audex/internal/analysis"
	"github.com/calvete/audex/internal/index"
	"github.com/calvete/audex/internal/retrieval"
	"github.com/calvete/audex/internal/storage"
)

// embedConcurrency bounds parallel embedding calls per document.
const embedConcurrency = 4

// Embedder generates embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorInserter inserts records into a collection.
type VectorInserter interface {
	Insert(ctx context.Context, collection string, records []retrieval.Record) error
}

// BlobStore persists source file blobs.
type BlobStore interface {
	SaveSourceFile(ctx context.Context, f storage.SourceFile) error
}

// Pipeline ingests documents into the index.
type Pipeline struct {
	analyzer analysis.Analyzer
	embedder Embedder
	vectors  VectorInserter
	blobs    BlobStore
	frag     index.Fragmenter
	tables   string // collection holding table records
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline. tablesCollection names the collection
// table records are stored in; fragments go to the collection passed per
// ingestion call.
func NewPipeline(analyzer analysis.Analyzer, embedder Embedder, vectors VectorInserter, blobs BlobStore, frag index.Fragmenter, tablesCollection string) *Pipeline {
	return &Pipeline{
		analyzer: analyzer,
		embedder: embedder,
		vectors:  vectors,
		blobs:    blobs,
		frag:     frag,
		tables:   tablesCollection,
		logger:   slog.Default(),
	}
}

// Result reports what one ingestion produced.
type Result struct {
	DocumentID string `json:"document_id"`
	Fragments  int    `json:"fragments_created"`
	Tables     int    `json:"tables_created"`
}

// Ingest analyzes the document, fragments its prose, linearizes its
// tables, embeds everything, and persists the blob plus all records. Any
// failure before persistence aborts the whole document; nothing is
// committed without the source blob. Re-ingesting the same content
// appends new records, it does not deduplicate.
func (p *Pipeline) Ingest(ctx context.Context, content []byte, displayName, collection string) (Result, error) {
	layout, err := p.analyzer.Analyze(ctx, content)
	if err != nil {
		return Result{}, fmt.Errorf("analyzing %s: %w", displayName, err)
	}

	fragments, err := p.frag.Split(index.Normalize(layout.Paragraphs))
	if err != nil {
		return Result{}, fmt.Errorf("fragmenting %s: %w", displayName, err)
	}

	fragVecs, err := p.embedBatch(ctx, fragments)
	if err != nil {
		return Result{}, fmt.Errorf("embedding fragments of %s: %w", displayName, err)
	}

	linearized := make([]string, len(layout.Tables))
	for i, t := range layout.Tables {
		linearized[i] = t.Linearize()
	}
	tableVecs, err := p.embedBatch(ctx, linearized)
	if err != nil {
		return Result{}, fmt.Errorf("embedding tables of %s: %w", displayName, err)
	}

	docID := uuid.New().String()
	docType := strings.TrimPrefix(filepath.Ext(displayName), ".")
	now := time.Now().UTC()

	if err := p.blobs.SaveSourceFile(ctx, storage.SourceFile{
		ID:          docID,
		DisplayName: displayName,
		Content:     content,
		CreatedAt:   now,
	}); err != nil {
		return Result{}, fmt.Errorf("storing blob for %s: %w", displayName, err)
	}

	fragRecords := make([]retrieval.Record, len(fragments))
	for i, text := range fragments {
		fragRecords[i] = retrieval.Record{
			ID:          uuid.New().String(),
			SourceID:    docID,
			DisplayName: displayName,
			DocType:     docType,
			Seq:         i,
			Body:        text,
			Embedding:   fragVecs[i],
			CreatedAt:   now,
		}
	}
	if len(fragRecords) > 0 {
		if err := p.vectors.Insert(ctx, collection, fragRecords); err != nil {
			return Result{}, fmt.Errorf("saving fragments of %s: %w", displayName, err)
		}
	}

	tableRecords := make([]retrieval.Record, len(layout.Tables))
	for i, t := range layout.Tables {
		cells, err := json.Marshal(t)
		if err != nil {
			return Result{}, fmt.Errorf("encoding table %d of %s: %w", i, displayName, err)
		}
		tableRecords[i] = retrieval.Record{
			ID:          uuid.New().String(),
			SourceID:    docID,
			DisplayName: displayName,
			DocType:     docType,
			Seq:         i,
			Body:        linearized[i],
			Cells:       string(cells),
			Embedding:   tableVecs[i],
			CreatedAt:   now,
		}
	}
	if len(tableRecords) > 0 {
		if err := p.vectors.Insert(ctx, p.tables, tableRecords); err != nil {
			return Result{}, fmt.Errorf("saving tables of %s: %w", displayName, err)
		}
	}

	p.logger.Info("document ingested",
		"document_id", docID,
		"display_name", displayName,
		"fragments", len(fragRecords),
		"tables", len(tableRecords),
	)

	return Result{DocumentID: docID, Fragments: len(fragRecords), Tables: len(tableRecords)}, nil
}

// embedBatch embeds texts concurrently, bounded to embedConcurrency.
// Returns nil for empty input.
func (p *Pipeline) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := p.embedder.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
