// Package api exposes ingestion, question answering, and document
// management over a local HTTP API, plus an MCP tool surface for agent
// clients.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/calvete/audex/internal/answer"
	"github.com/calvete/audex/internal/ingest"
	"github.com/calvete/audex/internal/storage"
)

const maxIngestBodySize = 32 << 20 // 32MB; base64-encoded source documents

// Ingester runs one synchronous document ingestion.
type Ingester interface {
	Ingest(ctx context.Context, content []byte, displayName, collection string) (ingest.Result, error)
}

// Asker answers one question; a nil answer means no match.
type Asker interface {
	Ask(ctx context.Context, question string) (*answer.Answer, error)
}

// VectorDeleter removes all records referencing a source document.
type VectorDeleter interface {
	DeleteBySource(ctx context.Context, sourceID string) (int64, error)
}

// AppDeps holds the handler dependencies.
type AppDeps struct {
	Store             *storage.Store
	Pipeline          Ingester
	Answers           Asker
	Vectors           VectorDeleter
	Token             string
	DefaultCollection string
	TablesCollection  string
}

// NewAppHandler builds the HTTP API. Everything except /health requires
// the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/ingest", handleIngest(deps))
		r.Post("/ask", handleAsk(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
	})

	return r
}

type ingestRequest struct {
	DisplayName string `json:"display_name"`
	Collection  string `json:"collection"`
	Content     string `json:"content"` // base64-encoded file bytes
}

func handleIngest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req ingestRequest
		if err := decodeJSONBody(r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.DisplayName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "display_name is required")
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		content, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is not valid base64: %v", err)
			return
		}
		collection := req.Collection
		if collection == "" {
			collection = deps.DefaultCollection
		}
		if collection == deps.TablesCollection {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "collection %q is reserved for table records", collection)
			return
		}

		result, err := deps.Pipeline.Ingest(r.Context(), content, req.DisplayName, collection)
		if err != nil {
			httpError(w, http.StatusBadGateway, "ingest_error", "ingesting %s: %v", req.DisplayName, err)
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Found  bool           `json:"found"`
	Answer *answer.Answer `json:"result,omitempty"`
}

func handleAsk(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := decodeJSONBody(r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		ans, err := deps.Answers.Ask(r.Context(), req.Question)
		if err != nil {
			httpError(w, http.StatusBadGateway, "query_error", "no answer available: %v", err)
			return
		}

		// No match is a valid outcome, not an error.
		writeJSON(w, http.StatusOK, askResponse{Found: ans != nil, Answer: ans})
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", v)
				return
			}
			limit = n
		}

		docs, err := deps.Store.ListSourceFiles(r.Context(), deps.TablesCollection, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}

		type docEntry struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
			MimeType    string `json:"mime_type"`
			SizeBytes   int64  `json:"size_bytes"`
			Fragments   int    `json:"fragments"`
			Tables      int    `json:"tables"`
			IngestedAt  string `json:"ingested_at"`
		}
		out := make([]docEntry, len(docs))
		for i, d := range docs {
			out[i] = docEntry{
				ID:          d.ID,
				DisplayName: d.DisplayName,
				MimeType:    d.MimeType,
				SizeBytes:   d.SizeBytes,
				Fragments:   d.Fragments,
				Tables:      d.Tables,
				IngestedAt:  d.CreatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": out})
	}
}

func handleDeleteDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := deps.Store.DeleteSourceFile(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "document %s not found", id)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "deleting document: %v", err)
			return
		}

		// Cascade: every fragment and table record referencing the blob.
		removed, err := deps.Vectors.DeleteBySource(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting records for %s: %v", id, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"deleted": id, "records_removed": removed})
	}
}

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
