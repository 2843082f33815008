package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"comic-server/internal/ai"
	"comic-server/internal/config"
	"comic-server/internal/handler"
	"comic-server/internal/logger"
	"comic-server/internal/prompt"
	"comic-server/internal/repository"
	"comic-server/internal/task"
	"comic-server/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	dbPool, err := setupDatabase(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()
	zapLogger.Info("Connected to PostgreSQL")

	if err := repository.RunMigrations(cfg.GetDSN(), zapLogger); err != nil {
		zapLogger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("Redis unavailable, context caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			zapLogger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
		}
	}

	// AI clients behind a provider mux.
	mux := ai.NewMux(cfg.AIProvider)
	if cfg.AIAPIKey != "" {
		mux.Register("openai", ai.NewOpenAIClient(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout, zapLogger))
	}
	if cfg.OllamaHost != "" {
		ollamaClient, err := ai.NewOllamaClient(cfg.OllamaHost, cfg.OllamaModel, cfg.AITimeout, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create Ollama client", zap.Error(err))
		}
		mux.Register("ollama", ollamaClient)
	}

	generationRepo := repository.NewPgGenerationRepository(dbPool, zapLogger)
	draftRepo := repository.NewPgDraftRepository(dbPool, zapLogger)
	contentRepo := repository.NewPgContentRepository(dbPool, zapLogger)

	prompts := prompt.NewManager(zapLogger)
	if err := prompt.RegisterBuiltins(prompts); err != nil {
		zapLogger.Fatal("Failed to register prompt templates", zap.Error(err))
	}

	assembler := task.NewAssembler(contentRepo, redisClient, cfg.ContextTokenBudget, cfg.ContextCacheTTL, zapLogger)
	runner := task.NewRunner(assembler, prompts, mux, generationRepo, draftRepo, task.RunnerConfig{
		DefaultProvider: cfg.AIProvider,
		DefaultModel:    cfg.AIModel,
		MaxAttempts:     cfg.AIMaxAttempts,
		BaseRetryDelay:  cfg.AIBaseRetryDelay,
	}, zapLogger)

	registry := task.NewRegistry(zapLogger)
	if err := task.RegisterDefaults(registry); err != nil {
		zapLogger.Fatal("Failed to register task kinds", zap.Error(err))
	}

	executor := task.NewExecutor(registry, runner, generationRepo, cfg.MaxConcurrentTasks, cfg.ResultsCacheSize, zapLogger)
	wf := workflow.New(executor, draftRepo, generationRepo, contentRepo, zapLogger)

	h := handler.New(executor, wf, zapLogger)
	router := h.Router(cfg.AllowedOrigins)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zapLogger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	executor.Cleanup()
	zapLogger.Info("Shutdown complete")
}

func setupDatabase(cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.MaxConnIdleTime = cfg.DBIdleTimeout

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
