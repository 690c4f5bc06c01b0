package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lexingest/internal/api"
	"lexingest/internal/config"
	"lexingest/internal/embedding"
	"lexingest/internal/llm"
	"lexingest/internal/pipeline"
	"lexingest/internal/rag"
	"lexingest/internal/store"
	"lexingest/internal/vector"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage.
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	index, err := vector.NewClient(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection, cfg.EmbeddingDim)
	if err != nil {
		log.Error("failed to connect to qdrant", "host", cfg.QdrantHost, "error", err)
		os.Exit(1)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		log.Error("failed to ensure collection", "collection", cfg.QdrantCollection, "error", err)
		os.Exit(1)
	}

	// Initialize clients.
	embedder := embedding.NewHTTPClient(cfg.EmbeddingURL)
	llmStats := llm.NewLLMStats(1 * time.Hour)
	claude := llm.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, llmStats)

	ragSvc := rag.NewService(embedder, index, claude, cfg.RelevanceThreshold, log)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, st, index, embedder, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, st, index, ragSvc, llmStats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		claude.Close()
		index.Close()
		st.Close()
	}()

	log.Info("starting lexingest", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
