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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	anthropic_adapter "github.com/user/recipe-extraction-service/internal/adapter/anthropic"
	"github.com/user/recipe-extraction-service/internal/adapter/chromedp_renderer"
	"github.com/user/recipe-extraction-service/internal/adapter/enrichment"
	"github.com/user/recipe-extraction-service/internal/adapter/httpfetch"
	"github.com/user/recipe-extraction-service/internal/adapter/postgres"
	redis_adapter "github.com/user/recipe-extraction-service/internal/adapter/redis"
	"github.com/user/recipe-extraction-service/internal/delivery/http/handler"
	"github.com/user/recipe-extraction-service/internal/delivery/http/router"
	"github.com/user/recipe-extraction-service/internal/usecase"
	"github.com/user/recipe-extraction-service/pkg/config"
	"github.com/user/recipe-extraction-service/pkg/logger"
	"github.com/user/recipe-extraction-service/pkg/metrics"
	"github.com/user/recipe-extraction-service/pkg/task"
)

func main() {
	// --- Configuration ---
	_ = godotenv.Load()
	cfg := config.Load()

	// --- Logger ---
	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger.Init(os.Stdout, logLevel)
	slog.Info("Logger initialized", "level", logLevel.String())

	// --- Metrics ---
	metrics.Init()
	slog.Info("Metrics initialized")

	// --- Database Connections ---
	ctx := context.Background()

	// PostgreSQL
	pgConnString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
	dbpool, err := pgxpool.New(ctx, pgConnString)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	slog.Info("PostgreSQL connection pool established")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		slog.Error("Unable to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("Redis connection established")

	// --- Repositories & Adapters ---
	jobRepo := postgres.NewJobRepo(dbpool)
	recipeRepo := postgres.NewRecipeRepo(dbpool)
	urlPoolRepo := redis_adapter.NewURLPoolRepo(rdb)

	llm := anthropic_adapter.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.LLMMaxTokens)
	classifierAdapter := anthropic_adapter.NewClassifier(llm)
	extractorAdapter := anthropic_adapter.NewExtractor(llm)
	segmentMapper := anthropic_adapter.NewSegmentMapper(llm)

	fetcher := httpfetch.NewFetcher(cfg.PageFetchTimeout)
	renderer, err := chromedp_renderer.NewRenderer(cfg.ExtractionConcurrency, cfg.RenderTimeout)
	if err != nil {
		slog.Error("Unable to initialize renderer", "error", err)
		os.Exit(1)
	}
	enricher := enrichment.NewScheduler(cfg.EnrichmentURL)

	// --- Background Runner ---
	runner := task.NewBackground()

	// --- Use Cases ---
	crawler := usecase.NewSitemapCrawler(fetcher, urlPoolRepo, jobRepo, cfg.ChunkSize, cfg.CandidateSampleCap)
	classifier := usecase.NewChunkClassifier(classifierAdapter, urlPoolRepo, jobRepo, runner,
		cfg.ChunkSize, cfg.LLMBatchSize, cfg.ChunkMaxAttempts, cfg.ChunkBackoffBase)
	cascade := usecase.NewExtractionCascade(fetcher, extractorAdapter, renderer, recipeRepo,
		enricher, jobRepo, urlPoolRepo, runner, cfg.ExtractionConcurrency)
	jobManager := usecase.NewJobManager(jobRepo, urlPoolRepo, recipeRepo, crawler, classifier, cascade, runner)
	segmentAnalyzer := usecase.NewVideoSegmentAnalyzer(segmentMapper, cfg.MinSegmentLength)

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(jobManager, segmentAnalyzer)
	httpRouter := router.New(apiHandler)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Could not listen on port", "port", cfg.ServerPort, "error", err)
			os.Exit(1)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	// Let in-flight background tasks (discovery, classification chunks,
	// extraction batches) finish before closing the connections.
	runner.Wait()
	slog.Info("Server stopped")
}
