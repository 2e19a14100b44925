package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetSourceFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := SourceFile{
		ID:          "doc-1",
		DisplayName: "report-q3.pdf",
		Content:     []byte("%PDF-1.4 fake"),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.SaveSourceFile(ctx, f); err != nil {
		t.Fatalf("SaveSourceFile: %v", err)
	}

	got, err := s.GetSourceFile(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetSourceFile: %v", err)
	}
	if got.DisplayName != "report-q3.pdf" {
		t.Errorf("display name = %q", got.DisplayName)
	}
	if got.MimeType != "application/pdf" {
		t.Errorf("mime type = %q, want inferred application/pdf", got.MimeType)
	}
	if string(got.Content) != "%PDF-1.4 fake" {
		t.Errorf("content round-trip failed: %q", got.Content)
	}
}

func TestGetSourceFileNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetSourceFile(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSourceFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSourceFile(ctx, SourceFile{ID: "doc-2", DisplayName: "notes.txt", Content: []byte("x")}); err != nil {
		t.Fatalf("SaveSourceFile: %v", err)
	}
	if err := s.DeleteSourceFile(ctx, "doc-2"); err != nil {
		t.Fatalf("DeleteSourceFile: %v", err)
	}
	if _, err := s.GetSourceFile(ctx, "doc-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteSourceFile(ctx, "doc-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListSourceFilesWithCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSourceFile(ctx, SourceFile{ID: "doc-3", DisplayName: "audit.txt", Content: []byte("y")}); err != nil {
		t.Fatalf("SaveSourceFile: %v", err)
	}

	// Seed embeddings rows directly; the retrieval package normally owns them.
	now := time.Now().UTC().Format(time.RFC3339)
	for i, collection := range []string{"documents", "documents", "tables"} {
		if _, err := s.db.Exec(`
			INSERT INTO embeddings (id, collection, source_id, display_name, doc_type, seq, body, embedding, created_at)
			VALUES (?, ?, 'doc-3', 'audit.txt', 'txt', ?, 'body', X'00000000', ?)`,
			"rec-"+string(rune('a'+i)), collection, i, now); err != nil {
			t.Fatalf("seeding embeddings: %v", err)
		}
	}

	infos, err := s.ListSourceFiles(ctx, "tables", 10)
	if err != nil {
		t.Fatalf("ListSourceFiles: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 file, got %d", len(infos))
	}
	if infos[0].Fragments != 2 || infos[0].Tables != 1 {
		t.Errorf("counts = %d fragments / %d tables, want 2/1", infos[0].Fragments, infos[0].Tables)
	}
	if infos[0].SizeBytes != 1 {
		t.Errorf("size = %d, want 1", infos[0].SizeBytes)
	}
}

func TestInferMimeType(t *testing.T) {
	if got := InferMimeType("scan.pdf"); got != "application/pdf" {
		t.Errorf("pdf: %q", got)
	}
	if got := InferMimeType("blob.unknownext"); got != "application/octet-stream" {
		t.Errorf("fallback: %q", got)
	}
}

func TestMigrationsApplyOnce(t *testing.T) {
	s := openTestStore(t)
	// A second migrate over the same database must be a no-op.
	if err := s.migrate(); err != nil {
		t.Fatalf("re-running migrations: %v", err)
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&n); err != nil {
		t.Fatalf("counting versions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly 1 applied migration, got %d", n)
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("0001_init.sql")
	if err != nil || v != 1 {
		t.Fatalf("got %d, %v", v, err)
	}
	if _, err := parseMigrationVersion("init.sql"); err == nil || !strings.Contains(err.Error(), "parsing migration version") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
