package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/calvete/audex/internal/answer"
	"github.com/calvete/audex/internal/ingest"
	"github.com/calvete/audex/internal/storage"
)

const testToken = "test-token-12345"

// --- stubs ---

type stubIngester struct {
	result     ingest.Result
	err        error
	calls      int
	gotName    string
	gotColl    string
	gotContent []byte
}

func (s *stubIngester) Ingest(_ context.Context, content []byte, displayName, collection string) (ingest.Result, error) {
	s.calls++
	s.gotContent = content
	s.gotName = displayName
	s.gotColl = collection
	return s.result, s.err
}

type stubAsker struct {
	answer *answer.Answer
	err    error
	calls  int
}

func (s *stubAsker) Ask(_ context.Context, _ string) (*answer.Answer, error) {
	s.calls++
	return s.answer, s.err
}

type stubVectorDeleter struct {
	removed int64
	err     error
	gotID   string
}

func (s *stubVectorDeleter) DeleteBySource(_ context.Context, sourceID string) (int64, error) {
	s.gotID = sourceID
	return s.removed, s.err
}

// --- helpers ---

type testDeps struct {
	pipeline *stubIngester
	answers  *stubAsker
	vectors  *stubVectorDeleter
	store    *storage.Store
}

func setupAppHandler(t *testing.T) (http.Handler, *testDeps) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	d := &testDeps{
		pipeline: &stubIngester{result: ingest.Result{DocumentID: "doc-1", Fragments: 3, Tables: 1}},
		answers:  &stubAsker{},
		vectors:  &stubVectorDeleter{removed: 4},
		store:    store,
	}
	h := NewAppHandler(AppDeps{
		Store:             store,
		Pipeline:          d.pipeline,
		Answers:           d.answers,
		Vectors:           d.vectors,
		Token:             testToken,
		DefaultCollection: "documents",
		TablesCollection:  "tables",
	})
	return h, d
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// --- tests ---

func TestHealth_NoAuthRequired(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ask", `{"question":"q"}`, ""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuth_WrongToken(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ask", `{"question":"q"}`, "wrong"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestIngest_HappyPath(t *testing.T) {
	h, d := setupAppHandler(t)

	content := base64.StdEncoding.EncodeToString([]byte("hello world"))
	body := `{"display_name":"report.pdf","content":"` + content + `"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ingest", body, testToken))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var resp ingest.Result
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.DocumentID != "doc-1" {
		t.Errorf("document id = %q, want %q", resp.DocumentID, "doc-1")
	}
	if resp.Fragments != 3 || resp.Tables != 1 {
		t.Errorf("counts = %d/%d, want 3/1", resp.Fragments, resp.Tables)
	}
	if string(d.pipeline.gotContent) != "hello world" {
		t.Errorf("pipeline content = %q, want %q", d.pipeline.gotContent, "hello world")
	}
	if d.pipeline.gotColl != "documents" {
		t.Errorf("collection = %q, want default %q", d.pipeline.gotColl, "documents")
	}
}

func TestIngest_MissingDisplayName(t *testing.T) {
	h, d := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ingest", `{"content":"aGk="}`, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if d.pipeline.calls != 0 {
		t.Errorf("pipeline called %d times, want 0", d.pipeline.calls)
	}
}

func TestIngest_InvalidBase64(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ingest", `{"display_name":"a.txt","content":"***"}`, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestIngest_TablesCollectionReserved(t *testing.T) {
	h, d := setupAppHandler(t)

	body := `{"display_name":"a.txt","collection":"tables","content":"aGk="}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ingest", body, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if d.pipeline.calls != 0 {
		t.Errorf("pipeline called %d times, want 0", d.pipeline.calls)
	}
}

func TestIngest_PipelineFailure(t *testing.T) {
	h, d := setupAppHandler(t)
	d.pipeline.err = errors.New("embedding service down")

	body := `{"display_name":"a.txt","content":"aGk="}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ingest", body, testToken))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
}

func TestAsk_HappyPath(t *testing.T) {
	h, d := setupAppHandler(t)
	d.answers.answer = &answer.Answer{
		Text:       "The total is 42.",
		Grounding:  "Row 1, Column 2: 42",
		SourceID:   "doc-1",
		SourceName: "report.pdf",
		Collection: "tables",
		Score:      0.91,
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ask", `{"question":"what is the total?"}`, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp askResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp.Found {
		t.Fatal("found = false, want true")
	}
	if resp.Answer == nil || resp.Answer.Text != "The total is 42." {
		t.Fatalf("unexpected answer: %+v", resp.Answer)
	}
}

func TestAsk_NoMatchIsNotAnError(t *testing.T) {
	h, d := setupAppHandler(t)
	d.answers.answer = nil

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ask", `{"question":"anything"}`, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp askResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Found {
		t.Error("found = true, want false")
	}
	if resp.Answer != nil {
		t.Errorf("answer = %+v, want nil", resp.Answer)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	h, d := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ask", `{"question":""}`, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if d.answers.calls != 0 {
		t.Errorf("asker called %d times, want 0", d.answers.calls)
	}
}

func TestAsk_ServiceFailure(t *testing.T) {
	h, d := setupAppHandler(t)
	d.answers.err = errors.New("upstream timeout")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ask", `{"question":"q"}`, testToken))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
}

func TestListDocuments(t *testing.T) {
	h, d := setupAppHandler(t)

	if err := d.store.SaveSourceFile(context.Background(), storage.SourceFile{
		ID:          "doc-1",
		DisplayName: "report.pdf",
		Content:     []byte("pdf bytes"),
	}); err != nil {
		t.Fatalf("SaveSourceFile: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/documents", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp struct {
		Documents []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
			SizeBytes   int64  `json:"size_bytes"`
		} `json:"documents"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Documents) != 1 {
		t.Fatalf("got %d documents, want 1", len(resp.Documents))
	}
	if resp.Documents[0].ID != "doc-1" || resp.Documents[0].DisplayName != "report.pdf" {
		t.Errorf("unexpected document: %+v", resp.Documents[0])
	}
	if resp.Documents[0].SizeBytes != int64(len("pdf bytes")) {
		t.Errorf("size = %d, want %d", resp.Documents[0].SizeBytes, len("pdf bytes"))
	}
}

func TestListDocuments_InvalidLimit(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/documents?limit=zero", "", testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestDeleteDocument_Cascades(t *testing.T) {
	h, d := setupAppHandler(t)

	if err := d.store.SaveSourceFile(context.Background(), storage.SourceFile{
		ID:          "doc-1",
		DisplayName: "report.pdf",
		Content:     []byte("x"),
	}); err != nil {
		t.Fatalf("SaveSourceFile: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodDelete, "/documents/doc-1", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if d.vectors.gotID != "doc-1" {
		t.Errorf("vector delete source = %q, want %q", d.vectors.gotID, "doc-1")
	}

	var resp map[string]any
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["records_removed"].(float64) != 4 {
		t.Errorf("records_removed = %v, want 4", resp["records_removed"])
	}
}

func TestDeleteDocument_NotFound(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodDelete, "/documents/missing", "", testToken))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
