// Package main implements the 24life API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aiist007/24life/engine/assistant"
	"github.com/aiist007/24life/engine/chunk"
	"github.com/aiist007/24life/engine/domain"
	"github.com/aiist007/24life/engine/extract"
	"github.com/aiist007/24life/engine/index"
	"github.com/aiist007/24life/engine/llm"
	"github.com/aiist007/24life/engine/search"
	"github.com/aiist007/24life/engine/watch"
	"github.com/aiist007/24life/engine/websearch"
	"github.com/aiist007/24life/pkg/config"
	"github.com/aiist007/24life/pkg/logging"
	"github.com/aiist007/24life/pkg/metrics"
	"github.com/aiist007/24life/pkg/mid"
	"github.com/aiist007/24life/pkg/natsutil"
	"github.com/aiist007/24life/pkg/resilience"
)

const serviceName = "24life-api"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	// --- Index events (optional) ---
	var pub index.Publisher
	if cfg.NATSURL != "" {
		nc, err := natsutil.Connect(cfg.NATSURL, serviceName, logger)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer drain(nc, logger)
		pub = natsutil.NewPublisher[domain.IndexSummary](nc, index.IndexedSubject)
	}

	// --- Corpus index ---
	store := index.NewStore()
	indexer := index.NewIndexer(store, index.Deps{
		Chunker:   chunk.New(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
		MaxDepth:  cfg.Index.MaxDepth,
		Publisher: pub,
		Metrics:   reg,
		Logger:    logger,
	})
	indexer.Start(ctx, cfg.CorpusDir)

	if cfg.Index.Watch {
		w, err := watch.New(cfg.CorpusDir, watch.Options{
			Debounce: cfg.Index.WatchDebounce,
			Filter:   extract.Supported,
			Logger:   logger,
		})
		if err != nil {
			logger.Warn("corpus watcher disabled", "path", cfg.CorpusDir, "err", err)
		} else {
			go w.Run(ctx, func(ctx context.Context) {
				if _, err := indexer.Index(ctx, cfg.CorpusDir); err != nil {
					logger.Error("reindex failed", "path", cfg.CorpusDir, "err", err)
				}
			})
		}
	}

	// --- Assistant ---
	ranker := search.NewRanker(store, logger, reg)

	var web assistant.WebSearcher
	if cfg.WebSearch.Enabled {
		web = websearch.New(websearch.Options{
			URL:       cfg.WebSearch.URL,
			Timeout:   cfg.WebSearch.Timeout,
			RPS:       cfg.WebSearch.RPS,
			CacheSize: cfg.WebSearch.CacheSize,
			Logger:    logger,
			Metrics:   reg,
		})
	}

	completer := llm.New(llm.Options{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: &cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		Breaker: resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold: 5,
			Cooldown:      30 * time.Second,
			HalfOpenMax:   1,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn("llm circuit breaker", "from", from.String(), "to", to.String())
			},
		}),
		Logger:  logger,
		Metrics: reg,
	})
	if cfg.LLM.APIKey == "" {
		logger.Warn("LLM_API_KEY is not set; chat will fall back to web results")
	}

	chat := assistant.New(ranker, web, completer, assistant.Options{
		DefaultLocation: cfg.DefaultLocation,
		PromptsDir:      cfg.PromptsDir,
	}, logger, reg)

	// --- Build HTTP server ---
	handler := mid.Chain(newMux(routes{
		chat:      chat,
		search:    ranker,
		index:     indexer,
		store:     store,
		metrics:   reg.Handler(),
		staticDir: cfg.StaticDir,
		chatLimit: resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.ChatRPS, Burst: int(cfg.ChatRPS) + 1}),
		logger:    logger,
	}),
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel(serviceName),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "corpus", cfg.CorpusDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func drain(nc *nats.Conn, logger *slog.Logger) {
	if err := nc.Drain(); err != nil {
		logger.Warn("nats drain", "err", err)
	}
}
