// Package main wires the memory engine's pipeline components, HTTP layer,
// and background maintenance loops into a runnable server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/memoryengine/api/handlers"
	"github.com/BaSui01/memoryengine/config"
	internaldb "github.com/BaSui01/memoryengine/internal/database"
	"github.com/BaSui01/memoryengine/internal/metrics"
	"github.com/BaSui01/memoryengine/internal/server"

	"github.com/BaSui01/memoryengine/engine"
	"github.com/BaSui01/memoryengine/engine/decay"
	"github.com/BaSui01/memoryengine/engine/encoding"
	"github.com/BaSui01/memoryengine/engine/importance"
	"github.com/BaSui01/memoryengine/engine/personalization"
	"github.com/BaSui01/memoryengine/engine/providers"
	"github.com/BaSui01/memoryengine/engine/quota"
	"github.com/BaSui01/memoryengine/engine/ranker"
	"github.com/BaSui01/memoryengine/engine/storage"
	"github.com/BaSui01/memoryengine/engine/vector"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the memory engine's main process: it owns the engine, the HTTP
// listener, and the metrics listener.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	db         *gorm.DB

	eng              *engine.Engine
	quotaTracker     *quota.Tracker
	idempotencyMgr   *quota.IdempotencyManager
	metricsCollector *metrics.Collector

	healthHandler *handlers.HealthHandler
	memoryHandler *handlers.MemoryHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	wg sync.WaitGroup
}

// NewServer builds a Server from configuration and an already-open database
// connection.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, db *gorm.DB) *Server {
	return &Server{cfg: cfg, configPath: configPath, logger: logger, db: db}
}

// Start wires every component, runs migrations, and opens both listeners.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("memoryengine", s.logger)

	if err := s.initEngine(); err != nil {
		return fmt.Errorf("failed to init engine: %w", err)
	}
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("memory engine servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

func (s *Server) initEngine() error {
	ctx := context.Background()
	memCfg := s.cfg.Memory

	pool, err := internaldb.NewPoolManager(s.db, internaldb.DefaultPoolConfig(), s.logger)
	if err != nil {
		return fmt.Errorf("create pool manager: %w", err)
	}

	storageMgr := storage.NewWithLimits(pool, s.logger, memCfg.MaxContentChars, memCfg.AssistantMaxContentChars)
	if err := storageMgr.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("migrate memory storage: %w", err)
	}

	s.quotaTracker = quota.NewTrackerWithMonthly(s.db, memCfg.DailyQuota, memCfg.MonthlyQuota, time.Now)
	if err := s.quotaTracker.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("migrate quota storage: %w", err)
	}

	s.idempotencyMgr = quota.NewIdempotencyManager(s.db, memCfg.IdempotencyTTL)
	if err := s.idempotencyMgr.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("migrate idempotency storage: %w", err)
	}

	embedCfg := providers.EmbeddingProviderConfigFromEnv()
	if embedCfg.Kind == "" {
		embedCfg.Kind = memCfg.EmbeddingProvider
	}
	if embedCfg.Dimension <= 0 {
		embedCfg.Dimension = memCfg.EmbeddingDimension
	}
	embedder, err := providers.NewEmbeddingProvider(ctx, embedCfg)
	if err != nil {
		return fmt.Errorf("build embedding provider: %w", err)
	}

	semCfg := providers.SemanticProviderConfigFromEnv()
	if semCfg.Kind == "" {
		semCfg.Kind = memCfg.SemanticProvider
	}
	semantic := providers.NewSemanticProvider(semCfg)

	enc := encoding.New(embedder, semantic)
	importanceModel := importance.New(memCfg.EmbeddingDimension, memCfg.ImportanceLearningRate, 42)
	decayLearner := decay.New(memCfg.DecayLearningRate)
	rankerModel := ranker.NewWithLearningRate(memCfg.RankerLearningRate)

	vectorIndex := vector.New(memCfg.EmbeddingDimension)
	if memCfg.VectorIndexPath != "" {
		if err := vectorIndex.Load(memCfg.VectorIndexPath); err != nil {
			s.logger.Warn("vector index load skipped", zap.Error(err))
		}
	}

	s.eng = engine.New(engine.Dependencies{
		Encoder:     enc,
		Importance:  importanceModel,
		Decay:       decayLearner,
		Ranker:      rankerModel,
		StorageMgr:  storageMgr,
		VectorIndex: vectorIndex,
		Logger:      s.logger,
		Now:         time.Now,
	}, engine.Config{
		MetricsPath:           memCfg.MetricsPath,
		MetricsFlushInterval:  memCfg.MetricsFlushInterval,
		VectorIndexPath:       memCfg.VectorIndexPath,
		EmbeddingDimension:    memCfg.EmbeddingDimension,
		AssistantMaxShare:     memCfg.AssistantMaxShare,
		PersistentThreshold:   memCfg.PersistentThreshold,
		EphemeralThreshold:    memCfg.EphemeralThreshold,
		CompressionMinCount:   memCfg.CompressionMinCount,
		CompressionMaxItems:   memCfg.CompressionMaxItems,
		CompressionWindowDays: memCfg.CompressionWindowDays,
		RankerLearningRate:    memCfg.RankerLearningRate,
		Personalization: personalization.Config{
			Enabled:             true,
			RepeatThreshold:     memCfg.PersonalizationRepeatThreshold,
			SimilarityThreshold: memCfg.PersonalizationSimilarityThreshold,
			WindowDays:          memCfg.PersonalizationWindowDays,
			MinFeedbackEvents:   memCfg.PersonalizationMinFeedbackEvents,
			PreferenceMargin:    memCfg.PersonalizationPreferenceMargin,
			InferredTTLDays:     memCfg.PersonalizationInferredTTLDays,
			InferredRefreshDays: memCfg.PersonalizationInferredRefreshDays,
		},
	})

	s.logger.Info("memory engine pipeline initialized",
		zap.String("embedding_provider", embedder.Name()),
		zap.String("semantic_provider", semantic.Name()),
	)
	return nil
}

func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.memoryHandler = handlers.NewMemoryHandler(s.eng, s.quotaTracker, s.idempotencyMgr, s.metricsCollector, s.logger)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("/v1/memories", s.routeMemories)
	mux.HandleFunc("/v1/memories/retrieve", s.memoryHandler.HandleRetrieve)
	mux.HandleFunc("/v1/memories/feedback", s.memoryHandler.HandleFeedback)
	mux.HandleFunc("/v1/memories/{id}/outcome", s.memoryHandler.HandleOutcome)
	mux.HandleFunc("/v1/status", s.memoryHandler.HandleStatus)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	ctx := context.Background()
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger),
		TenantRateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("http server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// routeMemories dispatches GET (list by entity) and POST (ingest) to the
// same path, since both share the collection-level /v1/memories route.
func (s *Server) routeMemories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.memoryHandler.HandleListByEntity(w, r)
	case http.MethodPost:
		s.memoryHandler.HandleIngest(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until the HTTP manager observes a shutdown signal,
// then releases every resource.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown releases the engine (flushing metrics and the vector index) and
// stops both listeners.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.eng != nil {
		if err := s.eng.Close(); err != nil {
			s.logger.Error("engine close error", zap.Error(err))
		}
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	s.wg.Wait()
	s.logger.Info("graceful shutdown completed")
}
