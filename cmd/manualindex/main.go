package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/divekit/manualindex/internal/chunker"
	"github.com/divekit/manualindex/internal/config"
	"github.com/divekit/manualindex/internal/db/sqlite"
	"github.com/divekit/manualindex/internal/domain"
	"github.com/divekit/manualindex/internal/domain/units"
	logpkg "github.com/divekit/manualindex/internal/logger"
	"github.com/divekit/manualindex/internal/metrics"
	chunkrepo "github.com/divekit/manualindex/internal/repository/chunk"
	conflictrepo "github.com/divekit/manualindex/internal/repository/conflict"
	documentrepo "github.com/divekit/manualindex/internal/repository/document"
	ledgerrepo "github.com/divekit/manualindex/internal/repository/ledger"
	topicrepo "github.com/divekit/manualindex/internal/repository/topic"
	"github.com/divekit/manualindex/internal/repository/vector"
	chiTransport "github.com/divekit/manualindex/internal/transport/chi"
	openaiEmb "github.com/divekit/manualindex/internal/transport/openai"
	conflictuc "github.com/divekit/manualindex/internal/usecase/conflict"
	embeddinguc "github.com/divekit/manualindex/internal/usecase/embedding"
	healthuc "github.com/divekit/manualindex/internal/usecase/health"
	ingestuc "github.com/divekit/manualindex/internal/usecase/ingest"
	searchuc "github.com/divekit/manualindex/internal/usecase/search"
	"github.com/divekit/manualindex/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting manualindex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	store, err := sqlite.NewStore(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database", zap.String("path", store.Path()))

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterEngineMetrics()

	provider := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	embedder := embeddinguc.New(provider, embeddinguc.Config{
		BatchSize: cfg.Embedding.BatchSize,
		Retries:   cfg.Embedding.Retries,
		Backoff:   time.Duration(cfg.Embedding.BackoffMS) * time.Millisecond,
		Provider:  "openai",
		Model:     cfg.Embedding.Model,
		Logger:    logger,
	})
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Create repositories
	docRepo := documentrepo.New(store.DB())
	chunkRepo := chunkrepo.New(store.DB())
	topicRepo := topicrepo.New(store.DB())
	conflictRepo := conflictrepo.New(store.DB())
	ledgerRepo := ledgerrepo.New(store.DB())

	// Rebuild the in-memory vector index from persisted embeddings
	index := vector.NewIndex()
	if err := index.Load(ctx, store.DB()); err != nil {
		logger.Fatal("Failed to load vector index", zap.Error(err))
	}
	metrics.IndexedVectors.Set(float64(index.Size()))
	logger.Info("Vector index loaded",
		zap.Int("vectors", index.Size()),
		zap.Int("dimensions", index.Dim()),
	)

	// Create use case services
	ingestSvc := ingestuc.New(
		docRepo, chunkRepo, topicRepo, conflictRepo, ledgerRepo,
		index, embedder, chunker.New(cfg.Chunking.MaxChars), logger,
	)
	searchSvc := searchuc.New(index, chunkRepo, embedder, logger)
	conflictSvc := conflictuc.New(chunkRepo, docRepo, conflictRepo, ledgerRepo, conflictuc.Config{
		Tolerances:  mergedTolerances(cfg.Conflict.Tolerances),
		Conversions: mergedConversions(cfg.Conflict.Conversions),
		Logger:      logger,
	})
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(provider))

	// Create chi server
	server := chiTransport.NewServer(ingestSvc, searchSvc, conflictSvc, healthSvc, ledgerRepo, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// mergedTolerances overlays configured tolerances on the built-in table.
func mergedTolerances(overrides map[string]float64) map[string]float64 {
	table := units.DefaultTolerances()
	for unit, tol := range overrides {
		table[unit] = tol
	}
	return table
}

// mergedConversions overlays configured conversion factors on the built-in table.
func mergedConversions(overrides []config.ConversionEntry) map[units.ConversionKey]float64 {
	table := units.DefaultConversions()
	for _, c := range overrides {
		table[units.ConversionKey{From: c.From, To: c.To}] = c.Factor
	}
	return table
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
