package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"klee-ai/internal/config"
	"klee-ai/internal/handlers"
	"klee-ai/internal/http"
	"klee-ai/internal/index"
	"klee-ai/internal/indexer"
	"klee-ai/internal/llm"
	"klee-ai/internal/rag"
	"klee-ai/internal/service"
	"klee-ai/internal/storage"
	"klee-ai/internal/tasks"
	"klee-ai/internal/vectorstore"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions over local knowledge folders and notes and streams the answers as Server-Sent Events.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Klee AI API
//   description: |
//     Retrieval-augmented answers over knowledge folders and notes.
//     Answers stream over SSE; folder imports run as background tasks with progress.
//   version: 1.0.0
// schemes:
//   - http
// consumes:
//   - application/json
// produces:
//   - application/json
//   - text/event-stream

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	messageRepo := storage.NewMessageRepo(db)
	conversationRepo := storage.NewConversationRepo(db)
	knowledgeRepo := storage.NewKnowledgeRepo(db)
	noteRepo := storage.NewNoteRepo(db)
	taskRepo := storage.NewTaskRepo(db)

	// Leaf vectors live next to the node stores unless Qdrant is configured
	var vectorStore vectorstore.VectorStore
	switch cfg.VectorBackend {
	case config.VectorBackendQdrant:
		qs, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		defer func() {
			_ = qs.Close()
		}()
		vectorStore = qs
	default:
		vectorStore = vectorstore.NewLocalStore(cfg.IndexDir())
	}
	slog.Info("Vector store ready", "backend", cfg.VectorBackend)

	var embedder index.Embedder
	if cfg.EmbeddingBaseURL != "" {
		ec := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingVectorSize)
		// Validate embedding client vector size (fail-fast)
		if _, err := ec.Embed(ctx, []string{"test"}); err != nil {
			log.Fatalf("Failed to validate embedding client: %v", err)
		}
		embedder = ec
		slog.Info("Embedding client validated", "model", cfg.EmbeddingModelName, "vector_size", cfg.EmbeddingVectorSize)
	} else {
		embedder = llm.NewHashEmbedder(cfg.EmbeddingVectorSize)
		slog.Warn("EMBEDDING_BASE_URL not set, using hashed bag-of-words embeddings")
	}

	tokenizer, err := index.NewTiktokenCounter()
	if err != nil {
		log.Fatalf("Failed to create tokenizer: %v", err)
	}
	builder := index.NewBuilder(cfg.IndexDir(), vectorStore, embedder, tokenizer, index.WithChunkSizes(cfg.ChunkSizes))

	taskService := tasks.NewService(taskRepo, tasks.NewTracker(taskRepo,
		tasks.WithMaxRetries(cfg.ProgressMaxRetries),
		tasks.WithMaxWait(cfg.ProgressMaxWait),
	))
	pipeline := indexer.NewPipeline(knowledgeRepo, noteRepo, taskService, builder, cfg.NotesDir())

	ragEngine := rag.NewEngine(builder, knowledgeRepo, embedder, cfg.NotesDir(), cfg.DefaultSourceDir())
	slog.Info("RAG engine initialized", "chunk_sizes", cfg.ChunkSizes)

	resolver := service.NewProviderResolver(cfg, llm.NewRateLimiter(cfg.LLMRateLimitRPS, cfg.LLMRateLimitBurst))
	sessionOpts := []service.Option{
		service.WithResolver(resolver),
		service.WithTitles(&service.TitleGenerator{}),
	}
	if cfg.Provider.Kind == string(llm.KindLocal) {
		sessionOpts = append(sessionOpts, service.WithModelGuard(llm.NewModelGuard(llm.NewModelLoader(cfg.Provider.BaseURL))))
	}
	session := service.NewSession(messageRepo, conversationRepo,
		service.NewLocalGenerator(ragEngine),
		service.NewRemoteGenerator(ragEngine),
		sessionOpts...,
	)

	var folderWatcher handlers.FolderWatcher
	if cfg.WatchKnowledge {
		w, err := startWatcher(ctx, pipeline, knowledgeRepo)
		if err != nil {
			log.Fatalf("Failed to start knowledge watcher: %v", err)
		}
		folderWatcher = w
	}

	// Create router with dependencies
	deps := &http.Deps{
		Chat:      handlers.NewChatHandler(session, resolver),
		Tasks:     handlers.NewTaskHandler(taskService),
		Knowledge: handlers.NewKnowledgeHandler(pipeline, folderWatcher),
		Notes:     handlers.NewNoteHandler(pipeline),
		Health:    handlers.NewHealthHandler(db, vectorStore),
	}

	srv := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           http.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	// Start API server
	slog.Info("Starting API server", "addr", srv.Addr)
	slog.Debug("LLM configuration", "kind", cfg.Provider.Kind, "base_url", cfg.Provider.BaseURL, "model", cfg.Provider.Model)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("API server failed to start: %v", err)
	}

	slog.Info("Waiting for background imports")
	pipeline.Wait()
}

// startWatcher watches the folder of every knowledge base that has one and
// refreshes it on change.
func startWatcher(ctx context.Context, pipeline *indexer.Pipeline, knowledge storage.KnowledgeStore) (*indexer.Watcher, error) {
	w, err := indexer.NewWatcher(pipeline, indexer.DefaultDebounce)
	if err != nil {
		return nil, err
	}

	all, err := knowledge.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range all {
		if k.FolderPath == "" {
			continue
		}
		if err := w.Add(k.ID, k.FolderPath); err != nil {
			slog.Warn("Failed to watch knowledge folder", "knowledge_id", k.ID, "folder", k.FolderPath, "error", err)
		}
	}

	go func() {
		if err := w.Run(ctx); err != nil {
			slog.Error("Knowledge watcher stopped", "error", err)
		}
	}()
	slog.Info("Watching knowledge folders", "count", len(all))
	return w, nil
}
