package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/calvete/audex/internal/analysis"
	"github.com/calvete/audex/internal/index"
	"github.com/calvete/audex/internal/retrieval"
	"github.com/calvete/audex/internal/storage"
)

type stubAnalyzer struct {
	layout analysis.Layout
	err    error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, content []byte) (analysis.Layout, error) {
	return s.layout, s.err
}

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

type captureVectors struct {
	inserted map[string][]retrieval.Record
	err      error
}

func (c *captureVectors) Insert(ctx context.Context, collection string, records []retrieval.Record) error {
	if c.err != nil {
		return c.err
	}
	if c.inserted == nil {
		c.inserted = make(map[string][]retrieval.Record)
	}
	c.inserted[collection] = append(c.inserted[collection], records...)
	return nil
}

type captureBlobs struct {
	saved []storage.SourceFile
	err   error
}

func (c *captureBlobs) SaveSourceFile(ctx context.Context, f storage.SourceFile) error {
	if c.err != nil {
		return c.err
	}
	c.saved = append(c.saved, f)
	return nil
}

func testLayout() analysis.Layout {
	return analysis.Layout{
		Paragraphs: []string{"a b c d e", "f g h i j"},
		Tables: []index.Table{{
			RowCount:    1,
			ColumnCount: 1,
			Cells:       []index.Cell{{Row: 0, Column: 0, Content: "total"}},
		}},
	}
}

func newTestPipeline(an analysis.Analyzer, emb Embedder, vec VectorInserter, blobs BlobStore) *Pipeline {
	return NewPipeline(an, emb, vec, blobs, index.Fragmenter{Window: 4, Overlap: 2}, "tables")
}

func TestIngestStoresBlobFragmentsAndTables(t *testing.T) {
	vectors := &captureVectors{}
	blobs := &captureBlobs{}
	p := newTestPipeline(&stubAnalyzer{layout: testLayout()}, &stubEmbedder{}, vectors, blobs)

	res, err := p.Ingest(context.Background(), []byte("raw"), "papers.pdf", "documents")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// 10 words, window 4, overlap 2 -> 4 fragments.
	if res.Fragments != 4 || res.Tables != 1 {
		t.Fatalf("result = %+v, want 4 fragments / 1 table", res)
	}
	if len(blobs.saved) != 1 || blobs.saved[0].ID != res.DocumentID {
		t.Fatalf("blob not stored under the document id")
	}

	frags := vectors.inserted["documents"]
	if len(frags) != 4 {
		t.Fatalf("expected 4 fragment records, got %d", len(frags))
	}
	for i, r := range frags {
		if r.Seq != i {
			t.Errorf("fragment %d has seq %d", i, r.Seq)
		}
		if r.SourceID != res.DocumentID {
			t.Errorf("fragment %d references %q", i, r.SourceID)
		}
		if r.DocType != "pdf" {
			t.Errorf("fragment %d doc type %q", i, r.DocType)
		}
		if r.Cells != "" {
			t.Errorf("fragment %d carries cells", i)
		}
	}
	if frags[0].Body != "a b c d" {
		t.Errorf("first fragment body = %q", frags[0].Body)
	}

	tables := vectors.inserted["tables"]
	if len(tables) != 1 {
		t.Fatalf("expected 1 table record, got %d", len(tables))
	}
	if tables[0].Body != "Row 0, Column 0: total" {
		t.Errorf("table body = %q", tables[0].Body)
	}
	if !strings.Contains(tables[0].Cells, `"content":"total"`) {
		t.Errorf("table cells JSON = %q", tables[0].Cells)
	}
}

func TestIngestAnalysisFailureAbortsBeforeAnyWrite(t *testing.T) {
	vectors := &captureVectors{}
	blobs := &captureBlobs{}
	p := newTestPipeline(&stubAnalyzer{err: analysis.ErrAnalysis}, &stubEmbedder{}, vectors, blobs)

	if _, err := p.Ingest(context.Background(), []byte("raw"), "x.pdf", "documents"); !errors.Is(err, analysis.ErrAnalysis) {
		t.Fatalf("expected ErrAnalysis, got %v", err)
	}
	if len(blobs.saved) != 0 || len(vectors.inserted) != 0 {
		t.Fatal("nothing may be written when analysis fails")
	}
}

func TestIngestEmbeddingFailureAbortsBeforeBlobWrite(t *testing.T) {
	vectors := &captureVectors{}
	blobs := &captureBlobs{}
	embErr := errors.New("gateway down")
	p := newTestPipeline(&stubAnalyzer{layout: testLayout()}, &stubEmbedder{err: embErr}, vectors, blobs)

	if _, err := p.Ingest(context.Background(), []byte("raw"), "x.pdf", "documents"); !errors.Is(err, embErr) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if len(blobs.saved) != 0 {
		t.Fatal("blob must not be stored when embedding fails")
	}
}

func TestIngestBadFragmenterConfig(t *testing.T) {
	p := NewPipeline(&stubAnalyzer{layout: testLayout()}, &stubEmbedder{}, &captureVectors{}, &captureBlobs{},
		index.Fragmenter{Window: 4, Overlap: 4}, "tables")

	if _, err := p.Ingest(context.Background(), []byte("raw"), "x.pdf", "documents"); !errors.Is(err, index.ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
}

func TestIngestDocumentWithoutTables(t *testing.T) {
	vectors := &captureVectors{}
	p := newTestPipeline(&stubAnalyzer{layout: analysis.Layout{Paragraphs: []string{"only prose"}}}, &stubEmbedder{}, vectors, &captureBlobs{})

	res, err := p.Ingest(context.Background(), []byte("raw"), "notes.txt", "documents")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Tables != 0 {
		t.Errorf("tables = %d, want 0", res.Tables)
	}
	if _, ok := vectors.inserted["tables"]; ok {
		t.Error("no table insert expected")
	}
}
