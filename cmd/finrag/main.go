package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/chunk"
	"github.com/kailas-cloud/finrag/internal/config"
	"github.com/kailas-cloud/finrag/internal/db"
	dbRedis "github.com/kailas-cloud/finrag/internal/db/redis"
	"github.com/kailas-cloud/finrag/internal/domain"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
	"github.com/kailas-cloud/finrag/internal/extract"
	logpkg "github.com/kailas-cloud/finrag/internal/logger"
	"github.com/kailas-cloud/finrag/internal/metrics"
	budgetrepo "github.com/kailas-cloud/finrag/internal/repository/budget"
	"github.com/kailas-cloud/finrag/internal/repository/embcache"
	pgvectorrepo "github.com/kailas-cloud/finrag/internal/repository/pgvector"
	qdrantrepo "github.com/kailas-cloud/finrag/internal/repository/qdrant"
	vectorrepo "github.com/kailas-cloud/finrag/internal/repository/vector"
	"github.com/kailas-cloud/finrag/internal/tokens"
	chiTransport "github.com/kailas-cloud/finrag/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/finrag/internal/transport/openai"
	answeruc "github.com/kailas-cloud/finrag/internal/usecase/answer"
	chatuc "github.com/kailas-cloud/finrag/internal/usecase/chat"
	documentuc "github.com/kailas-cloud/finrag/internal/usecase/document"
	embeddinguc "github.com/kailas-cloud/finrag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/finrag/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/finrag/internal/usecase/ingest"
	retrieveuc "github.com/kailas-cloud/finrag/internal/usecase/retrieve"
	usageuc "github.com/kailas-cloud/finrag/internal/usecase/usage"
	"github.com/kailas-cloud/finrag/internal/version"
)

// vectorStore is what the use cases need from any store driver.
type vectorStore interface {
	EnsureReady(ctx context.Context) error
	Upsert(ctx context.Context, ns string, records []domvec.Record) (int, error)
	Search(ctx context.Context, ns string, query []float32, topK int) ([]domvec.Match, error)
	List(ctx context.Context, ns, idPrefix string) ([]domvec.Ref, error)
	DeleteByPrefix(ctx context.Context, ns, idPrefix string) (domvec.DeleteResult, error)
	HasAny(ctx context.Context, ns string) (bool, error)
	Ping(ctx context.Context) error
}

func main() {
	// .env is optional; real env wins
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting finrag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("index", cfg.Index.Name),
		zap.Int("dimension", cfg.Index.Dimension),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRAGMetrics()

	ctx := context.Background()

	store, kv, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	// Single BudgetTracker shared by both roles and the usage service.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action, err := embeddinguc.ParseBudgetAction(budgetCfg.Action)
		if err != nil {
			logger.Fatal("Invalid budget action", zap.Error(err))
		}
		budget = embeddinguc.NewBudgetTracker(
			cfg.Embedding.Provider, cfg.Store.Redis.KeyPrefix,
			budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		if kv != nil {
			budget.WithStore(ctx, budgetrepo.New(kv, 48*time.Hour, 62*24*time.Hour))
		}
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var budgetChecker embeddinguc.BudgetChecker
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetChecker = budget
		budgetReader = budget
	}

	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	roles := buildRoleEmbedders(base, cfg, kv, budgetChecker, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	docEmbedder, err := roles.For(domain.RoleDocument)
	if err != nil {
		logger.Fatal("Document embedder", zap.Error(err))
	}
	queryEmbedder, err := roles.For(domain.RoleQuery)
	if err != nil {
		logger.Fatal("Query embedder", zap.Error(err))
	}
	docBatch, ok := docEmbedder.(domain.BatchEmbedder)
	if !ok {
		logger.Fatal("Document embedder does not support batches")
	}
	batcher := embeddinguc.NewBatcher(
		docBatch, cfg.Embedding.BatchSize, cfg.Embedding.BatchPause(), cfg.Embedding.Provider, logger,
	)

	chunker, err := chunk.New(chunk.WithSize(cfg.RAG.ChunkSize), chunk.WithOverlap(cfg.RAG.Overlap()))
	if err != nil {
		logger.Fatal("Invalid chunking settings", zap.Error(err))
	}

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Logger:      logger,
	})

	// Use cases
	ingestSvc := ingestuc.New(extract.New(extract.WithLogger(logger)), chunker, batcher, store, logger)
	documentSvc := documentuc.New(store, logger)
	retrieveSvc := retrieveuc.New(queryEmbedder, store, cfg.RAG.TopK)
	answerSvc := answeruc.New(generator, tokens.Default(), cfg.Generation.Model, cfg.RAG.HistoryTurns, logger)
	chatSvc := chatuc.New(store, retrieveSvc, answerSvc, logger)
	usageSvc := usageuc.New(budgetReader, cfg.Embedding.Provider)
	healthSvc := healthuc.New(store, base, logger)

	server := chiTransport.NewServer(
		ingestSvc, documentSvc, chatSvc, usageSvc, healthSvc, cfg.RAG.MaxUploadMB, logger,
	)
	handler := chiTransport.NewRouter(server, apiKeyNamespaces(cfg.Auth.APIKeys), logger)

	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("No API keys configured, namespace comes from the " + chiTransport.NamespaceHeader + " header")
	}

	// Index creation is lazy, but doing it here surfaces a broken store at startup.
	if err := store.EnsureReady(ctx); err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			logger.Warn("Vector store is not configured", zap.Error(err))
		} else {
			logger.Error("Vector store is not ready, ingestion will retry", zap.Error(err))
		}
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openStore connects the configured driver. kv is non-nil only for the Redis-protocol drivers,
// which also host the query cache and the budget counters.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (vectorStore, db.KVStore, func()) {
	switch cfg.Store.Driver {
	case config.DriverRedis, config.DriverValkey:
		repoCfg := vectorrepo.Config{
			IndexName:         cfg.Index.Name,
			KeyPrefix:         cfg.Store.Redis.KeyPrefix,
			Dimension:         cfg.Index.Dimension,
			HNSWM:             cfg.Index.HNSWM,
			HNSWEFConstruct:   cfg.Index.HNSWEFConstruct,
			ReadinessPolls:    cfg.Index.ReadinessPolls,
			ReadinessInterval: cfg.Index.ReadinessInterval(),
			UpsertBatchSize:   cfg.Index.UpsertBatchSize,
		}
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Store.Redis.Addrs,
			Password: cfg.Store.Redis.Password,
		})
		if err != nil {
			// Без адреса сервер всё равно поднимается: операции вернут ошибку конфигурации.
			logger.Error("Vector store unavailable", zap.Error(err))
			return vectorrepo.New(nil, repoCfg, logger), nil, func() {}
		}
		timeout := time.Duration(cfg.Store.Redis.ReadinessTimeout) * time.Second
		if err := s.WaitForReady(ctx, timeout); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database", zap.Strings("addrs", cfg.Store.Redis.Addrs))
		return vectorrepo.New(s, repoCfg, logger), s, s.Close

	case config.DriverQdrant:
		repoCfg := qdrantrepo.Config{
			Collection:        cfg.Index.Name,
			Dimension:         cfg.Index.Dimension,
			ReadinessPolls:    cfg.Index.ReadinessPolls,
			ReadinessInterval: cfg.Index.ReadinessInterval(),
			UpsertBatchSize:   cfg.Index.UpsertBatchSize,
		}
		c, err := qdrantrepo.Connect(cfg.Store.Qdrant.Host, cfg.Store.Qdrant.Port,
			cfg.Store.Qdrant.APIKey, cfg.Store.Qdrant.UseTLS)
		if err != nil {
			logger.Error("Vector store unavailable", zap.Error(err))
			return qdrantrepo.New(nil, repoCfg, logger), nil, func() {}
		}
		return qdrantrepo.New(c, repoCfg, logger), nil, func() { _ = c.Close() }

	case config.DriverPgvector:
		repoCfg := pgvectorrepo.Config{
			Table:           cfg.Store.Pgvector.Table,
			Dimension:       cfg.Index.Dimension,
			UpsertBatchSize: cfg.Index.UpsertBatchSize,
		}
		p, err := pgvectorrepo.Connect(ctx, cfg.Store.Pgvector.DSN)
		if err != nil {
			logger.Error("Vector store unavailable", zap.Error(err))
			return pgvectorrepo.New(nil, repoCfg, logger), nil, func() {}
		}
		return pgvectorrepo.New(p, repoCfg, logger), nil, p.Close

	default:
		logger.Fatal("Unknown store driver", zap.String("driver", cfg.Store.Driver))
		return nil, nil, nil
	}
}

// buildRoleEmbedders assembles one decorator chain per role:
// OpenAI -> Instruction -> Instrumented, plus the query cache outermost on the query side.
func buildRoleEmbedders(
	base domain.Embedder,
	cfg config.Config,
	kv db.KVStore,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.RoleEmbedders {
	wrap := func(instruction string) domain.Embedder {
		inner := base
		if instruction != "" {
			inner = domain.NewInstructionEmbedder(base, instruction)
		}
		return embeddinguc.NewInstrumentedEmbedder(
			inner, cfg.Embedding.Provider, cfg.Embedding.Model, budget, logger,
		)
	}

	roles := domain.RoleEmbedders{
		Document: wrap(cfg.Embedding.DocumentInstruction),
		Query:    wrap(cfg.Embedding.QueryInstruction),
	}

	// Cache hits skip the budget: no provider call was made.
	if kv != nil && cfg.Embedding.CacheTTLSec > 0 {
		roles.Query = embcache.New(
			roles.Query, kv, cfg.Store.Redis.KeyPrefix,
			embcache.Variant{
				Model:       cfg.Embedding.Model,
				Instruction: cfg.Embedding.QueryInstruction,
				Dimensions:  cfg.Embedding.Dimensions,
			},
			time.Duration(cfg.Embedding.CacheTTLSec)*time.Second,
			metrics.EmbeddingCacheTotal, logger,
		)
	}
	return roles
}

func apiKeyNamespaces(keys []config.APIKey) map[string]string {
	m := make(map[string]string, len(keys))
	for _, k := range keys {
		m[k.Key] = k.Namespace
	}
	return m
}
