package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/askdocs/askdocs/internal/cache"
	"github.com/askdocs/askdocs/internal/config"
	"github.com/askdocs/askdocs/internal/corpus"
	"github.com/askdocs/askdocs/internal/database"
	"github.com/askdocs/askdocs/internal/embedding"
	"github.com/askdocs/askdocs/internal/index"
	"github.com/askdocs/askdocs/internal/llm"
	"github.com/askdocs/askdocs/internal/queue"
	"github.com/askdocs/askdocs/internal/queue/workers"
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

	ctx := context.Background()

	// The worker shares the index with the API through postgres, so the
	// database is required here.
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	rdb := cache.NewClient(cfg.Redis)
	var embedCache *cache.Cache
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis cache unavailable", "error", err)
	} else {
		embedCache = cache.NewCache(rdb)
	}
	defer rdb.Close()

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
	ix := index.New(vectorstore.NewPgVectorStore(db))
	state := tracker.NewPgStateStore(db)
	reindexer := index.NewReindexer(source, state, ix, embedSvc, splitter, 0)

	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	w := watcher.New(cfg.Corpus.Root, cfg.Corpus.WatchDebounce, func(reason string) {
		if err := queueClient.EnqueueReindex(queue.ReindexPayload{Reason: reason}); err != nil {
			slog.Error("failed to enqueue reindex", "error", err)
		}
	})
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		if err := w.Run(watchCtx); err != nil && err != context.Canceled {
			slog.Error("corpus watcher stopped", "error", err)
		}
	}()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// a single slot: reindex passes must never overlap, and they are the
	// only task type this worker handles
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			"default": 1,
		},
	})

	registry := queue.NewHandlersRegistry()
	reindexWorker := workers.NewReindexWorker(reindexer)
	registry.Register(queue.TypeReindex, asynq.HandlerFunc(reindexWorker.ProcessTask))

	// periodic full pass catches anything the watcher missed
	scheduler := asynq.NewScheduler(redisOpt, nil)
	payload, _ := json.Marshal(queue.ReindexPayload{Reason: "scheduled"})
	if _, err := scheduler.Register("@every "+cfg.Corpus.ReindexInterval.String(), asynq.NewTask(queue.TypeReindex, payload)); err != nil {
		slog.Error("failed to register scheduled reindex", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	slog.Info("starting worker", "reindex_interval", cfg.Corpus.ReindexInterval)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
