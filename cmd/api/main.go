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

	"github.com/askdocs/askdocs/internal/api"
	"github.com/askdocs/askdocs/internal/cache"
	"github.com/askdocs/askdocs/internal/config"
	"github.com/askdocs/askdocs/internal/corpus"
	"github.com/askdocs/askdocs/internal/database"
	"github.com/askdocs/askdocs/internal/embedding"
	"github.com/askdocs/askdocs/internal/index"
	"github.com/askdocs/askdocs/internal/llm"
	"github.com/askdocs/askdocs/internal/queue"
	"github.com/askdocs/askdocs/internal/retrieval"
	"github.com/askdocs/askdocs/internal/tracker"
	"github.com/askdocs/askdocs/internal/vectorstore"
	"github.com/askdocs/askdocs/internal/watcher"
	"github.com/askdocs/askdocs/pkg/chunker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database is optional: without it the index lives in process memory,
	// which is the single-machine local mode.
	var store vectorstore.Store
	var state tracker.StateStore
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Warn("database unavailable, using in-memory index", "error", err)
		store = vectorstore.NewMemoryStore()
		state = tracker.NewMemStateStore()
		db = nil
	} else {
		defer db.Close()
		if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
			slog.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		store = vectorstore.NewPgVectorStore(db)
		state = tracker.NewPgStateStore(db)
	}

	// Redis is optional too: without it there is no embedding cache and no
	// task queue, so reindex passes run inline.
	rdb := cache.NewClient(cfg.Redis)
	var embedCache *cache.Cache
	var queueClient *queue.Client
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without cache or queue", "error", err)
		rdb = nil
	} else {
		defer rdb.Close()
		embedCache = cache.NewCache(rdb)
		queueClient = queue.NewClient(cfg.Redis)
		defer queueClient.Close()
	}

	gateway, err := llm.NewGateway(cfg.LLM)
	if err != nil {
		slog.Error("failed to build llm gateway", "error", err)
		os.Exit(1)
	}

	embedSvc := embedding.NewService(gateway, embedCache, cfg.LLM.EmbeddingModel, cfg.Retrieval.EmbedTimeout)
	splitter := chunker.New(chunker.Options{
		MaxChunkSize:   cfg.Chunking.MaxChunkSize,
		MinChunkSize:   cfg.Chunking.MinChunkSize,
		SentenceSplit:  cfg.Chunking.SentenceSplit,
		PreserveURLs:   cfg.Chunking.PreserveURLs,
		PreserveEmails: cfg.Chunking.PreserveEmails,
	})

	source := corpus.NewFSSource(cfg.Corpus.Root)
	ix := index.New(store)
	reindexer := index.NewReindexer(source, state, ix, embedSvc, splitter, 0)
	orchestrator := retrieval.NewOrchestrator(embedSvc, ix, cfg.Retrieval)
	generator := retrieval.NewGenerator(orchestrator, gateway, cfg.LLM.GenerationModel)

	trigger := func(reason string) {
		if queueClient != nil {
			if err := queueClient.EnqueueReindex(queue.ReindexPayload{Reason: reason}); err != nil {
				slog.Error("failed to enqueue reindex", "error", err)
			}
			return
		}
		if _, err := reindexer.Reindex(ctx); err != nil {
			slog.Error("inline reindex failed", "error", err)
		}
	}

	// bring the index up to date before serving
	go trigger("startup")

	// with a queue the worker owns the corpus watch; without one this
	// process is all there is
	if queueClient == nil {
		w := watcher.New(cfg.Corpus.Root, cfg.Corpus.WatchDebounce, trigger)
		go func() {
			if err := w.Run(ctx); err != nil && err != context.Canceled {
				slog.Error("corpus watcher stopped", "error", err)
			}
		}()
	}

	router := api.NewRouter(api.Deps{
		DB:           db,
		Redis:        rdb,
		Config:       cfg,
		Generator:    generator,
		Orchestrator: orchestrator,
		Reindexer:    reindexer,
		QueueClient:  queueClient,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
