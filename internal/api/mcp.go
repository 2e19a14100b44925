package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/calvete/audex/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store             *storage.Store
	Pipeline          Ingester
	Answers           Asker
	Vectors           VectorDeleter
	DefaultCollection string
	TablesCollection  string
}

// NewMCPServer creates an MCP server with the audex tools and resources
// registered. It shares the HTTP handler's dependency surface, so a tool
// call and an API call take the same path through the engine.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"audex",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("audex — semantic retrieval over an audit document corpus."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_corpus",
			mcp.WithDescription("Ask a question against the ingested document corpus. Returns a synthesized answer grounded on the best-matching fragment, or reports that nothing relevant was found."),
			mcp.WithString("question", mcp.Description("Natural-language question"), mcp.Required()),
		),
		mcpAskCorpus(deps),
	)

	s.AddTool(
		mcp.NewTool("ingest_document",
			mcp.WithDescription("Ingest a document into the corpus: layout analysis, fragmentation, table linearization, and embedding."),
			mcp.WithString("content", mcp.Description("Base64-encoded file bytes"), mcp.Required()),
			mcp.WithString("display_name", mcp.Description("File name shown in listings and answers"), mcp.Required()),
			mcp.WithString("collection", mcp.Description("Target collection for text fragments (defaults to the configured documents collection)")),
		),
		mcpIngestDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_document",
			mcp.WithDescription("Delete a document and every fragment and table record derived from it."),
			mcp.WithString("id", mcp.Description("Document ID returned by ingest_document"), mcp.Required()),
		),
		mcpDeleteDocument(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"audex://documents",
			"Ingested Documents",
			mcp.WithResourceDescription("Documents currently in the corpus, with fragment and table counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDocuments(deps),
	)

	return s
}

func mcpAskCorpus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		ans, err := deps.Answers.Ask(ctx, question)
		if err != nil {
			return mcpError(fmt.Sprintf("question failed: %v", err)), nil
		}
		if ans == nil {
			return mcpText("No relevant fragments found for this question."), nil
		}

		b, err := json.Marshal(ans)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpIngestDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		encoded, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		displayName, err := req.RequireString("display_name")
		if err != nil {
			return mcpError("display_name is required"), nil
		}

		content, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return mcpError(fmt.Sprintf("content is not valid base64: %v", err)), nil
		}

		collection := req.GetString("collection", deps.DefaultCollection)
		if collection == deps.TablesCollection {
			return mcpError(fmt.Sprintf("collection %q is reserved for table records", collection)), nil
		}

		result, err := deps.Pipeline.Ingest(ctx, content, displayName, collection)
		if err != nil {
			return mcpError(fmt.Sprintf("ingesting %s failed: %v", displayName, err)), nil
		}

		return mcpText(fmt.Sprintf("Ingested %s as document %s (%d fragments, %d tables)",
			displayName, result.DocumentID, result.Fragments, result.Tables)), nil
	}
}

func mcpDeleteDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		if err := deps.Store.DeleteSourceFile(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError(fmt.Sprintf("document %s not found", id)), nil
			}
			return mcpError(fmt.Sprintf("failed to delete document: %v", err)), nil
		}

		removed, err := deps.Vectors.DeleteBySource(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("document deleted but removing its records failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Deleted document %s and %d derived records", id, removed)), nil
	}
}

func mcpResourceDocuments(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Store.ListSourceFiles(ctx, deps.TablesCollection, 100)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}

		type docSummary struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
			MimeType    string `json:"mime_type"`
			Fragments   int    `json:"fragments"`
			Tables      int    `json:"tables"`
			IngestedAt  string `json:"ingested_at"`
		}

		summaries := make([]docSummary, len(docs))
		for i, d := range docs {
			summaries[i] = docSummary{
				ID:          d.ID,
				DisplayName: d.DisplayName,
				MimeType:    d.MimeType,
				Fragments:   d.Fragments,
				Tables:      d.Tables,
				IngestedAt:  d.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal documents: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
	}
}
