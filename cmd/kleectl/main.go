package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"klee-ai/internal/cli"
	"klee-ai/internal/config"
	"klee-ai/internal/index"
	"klee-ai/internal/indexer"
	"klee-ai/internal/llm"
	"klee-ai/internal/storage"
	"klee-ai/internal/tasks"
	"klee-ai/internal/vectorstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Logs go to stderr so command output stays clean
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var vectorStore vectorstore.VectorStore = vectorstore.NewLocalStore(cfg.IndexDir())
	if cfg.VectorBackend == config.VectorBackendQdrant {
		qs, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		defer func() {
			_ = qs.Close()
		}()
		vectorStore = qs
	}

	var embedder index.Embedder = llm.NewHashEmbedder(cfg.EmbeddingVectorSize)
	if cfg.EmbeddingBaseURL != "" {
		embedder = llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingVectorSize)
	}

	tokenizer, err := index.NewTiktokenCounter()
	if err != nil {
		log.Fatalf("Failed to create tokenizer: %v", err)
	}
	builder := index.NewBuilder(cfg.IndexDir(), vectorStore, embedder, tokenizer, index.WithChunkSizes(cfg.ChunkSizes))

	knowledgeRepo := storage.NewKnowledgeRepo(db)
	taskRepo := storage.NewTaskRepo(db)
	taskService := tasks.NewService(taskRepo, tasks.NewTracker(taskRepo,
		tasks.WithMaxRetries(cfg.ProgressMaxRetries),
		tasks.WithMaxWait(cfg.ProgressMaxWait),
	))
	pipeline := indexer.NewPipeline(knowledgeRepo, storage.NewNoteRepo(db), taskService, builder, cfg.NotesDir())

	cli.Configure(knowledgeRepo, taskService, pipeline)
	if err := cli.Execute(ctx); err != nil {
		// cobra has printed the error; os.Exit skips the deferred close
		_ = db.Close()
		os.Exit(1)
	}
}
