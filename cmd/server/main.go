package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/wareline/kbcore/internal/api"
	"github.com/wareline/kbcore/internal/cache"
	"github.com/wareline/kbcore/internal/config"
	"github.com/wareline/kbcore/internal/embedding"
	"github.com/wareline/kbcore/internal/pipeline"
	"github.com/wareline/kbcore/internal/retrieval"
	"github.com/wareline/kbcore/internal/store"
	"github.com/wareline/kbcore/internal/vectorindex"
)

func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres.
	db, err := store.Connect(ctx, store.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		log.Error("schema initialization failed", "error", err)
		os.Exit(1)
	}
	docs := store.NewDocumentStore(db)
	chunks := store.NewChunkStore(db)

	// Redis caches.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	embCache := cache.NewEmbeddingCache(rdb, cache.DefaultEmbedTTL)
	resCache := cache.NewResultsCache(rdb, cache.DefaultResultTTL)

	// Embedding provider and vector index.
	embedder, err := embedding.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	if err != nil {
		log.Error("embedder initialization failed", "error", err)
		os.Exit(1)
	}
	index := vectorindex.NewChromaIndex(vectorindex.Config{
		URL:        cfg.ChromaURL,
		Collection: cfg.ChromaCollection,
	})

	// Retrieval and ingestion.
	manager := retrieval.NewManager(chunks, embedder, index, embCache, resCache, retrieval.Config{
		RequestsPerSecond: cfg.EmbedRatePerSec,
		CallTimeout:       cfg.EmbedCallTimeout,
		MaxInputChars:     cfg.EmbedMaxInputLen,
	}, log)
	orch := pipeline.NewOrchestrator(docs, chunks, manager, log)

	worker := pipeline.NewEmbedWorker(manager, cfg.EmbedInterval, cfg.EmbedBatchSize, log)
	worker.Start(ctx)

	// HTTP server.
	srv := api.NewServer(orch, docs, manager, log, cfg)
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

		worker.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		embedder.Close()
	}()

	log.Info("starting kbcore", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
