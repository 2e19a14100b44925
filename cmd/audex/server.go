package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/calvete/audex/internal/analysis"
	"github.com/calvete/audex/internal/answer"
	"github.com/calvete/audex/internal/api"
	"github.com/calvete/audex/internal/config"
	"github.com/calvete/audex/internal/index"
	"github.com/calvete/audex/internal/ingest"
	"github.com/calvete/audex/internal/openai"
	"github.com/calvete/audex/internal/retrieval"
	"github.com/calvete/audex/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audex server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "audex version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.Server.APIToken == "" {
		return fmt.Errorf("no API token configured; set server.api_token or AUDEX_API_TOKEN")
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("no OpenAI API key configured; set openai.api_key or OPENAI_API_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	oai := openai.New(openai.Config{
		BaseURL:    cfg.OpenAI.BaseURL,
		APIKey:     cfg.OpenAI.APIKey,
		EmbedModel: cfg.OpenAI.EmbedModel,
		ChatModel:  cfg.OpenAI.ChatModel,
		Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
	})

	var analyzer analysis.Analyzer
	if cfg.Azure.Endpoint != "" {
		analyzer = analysis.NewAzureAnalyzer(cfg.Azure.Endpoint, cfg.Azure.APIKey)
		slog.Info("layout analysis via Azure Document Intelligence", "endpoint", cfg.Azure.Endpoint)
	} else {
		analyzer = analysis.NewLocalAnalyzer()
		slog.Info("layout analysis via local extractor (no Azure endpoint configured)")
	}

	vectorStore := retrieval.NewSQLiteStore(store.DB())
	pipeline := ingest.NewPipeline(
		analyzer,
		oai,
		vectorStore,
		store,
		index.Fragmenter{Window: cfg.Index.FragmentWindow, Overlap: cfg.Index.FragmentOverlap},
		cfg.Index.TablesCollection,
	)
	answers := answer.NewService(
		oai,
		vectorStore,
		oai,
		store,
		[]string{cfg.Index.FragmentsCollection, cfg.Index.TablesCollection},
		retrieval.SearchOptions{
			Candidates: cfg.Retrieval.Candidates,
			Limit:      cfg.Retrieval.Limit,
			MinScore:   cfg.Retrieval.MinScore,
		},
	)

	handler := api.NewAppHandler(api.AppDeps{
		Store:             store,
		Pipeline:          pipeline,
		Answers:           answers,
		Vectors:           vectorStore,
		Token:             cfg.Server.APIToken,
		DefaultCollection: cfg.Index.FragmentsCollection,
		TablesCollection:  cfg.Index.TablesCollection,
	})

	// MCP server on stdio transport, alongside the HTTP API.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:             store,
		Pipeline:          pipeline,
		Answers:           answers,
		Vectors:           vectorStore,
		DefaultCollection: cfg.Index.FragmentsCollection,
		TablesCollection:  cfg.Index.TablesCollection,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("audex listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
