// cmd/session-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nextrial-session/internal/api"
	"nextrial-session/internal/backend"
	"nextrial-session/internal/common/config"
	"nextrial-session/internal/common/database"
	"nextrial-session/internal/common/logger"
	"nextrial-session/internal/common/observability"
	"nextrial-session/internal/session"
	"nextrial-session/internal/sources"
	"nextrial-session/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting session service...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Wire the session layer ---
	conversationStore := store.New(pg.DB, &storeLoggerAdapter{log})

	sourceRegistry := sources.New(rdb.Client, cfg.Sources.StorageKey, &sourcesLoggerAdapter{log})
	sourceRegistry.Load(ctx)

	backendClient := backend.NewClient(&backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: config.GetDuration(cfg.Backend.Timeout),
	}, &backendLoggerAdapter{log})

	orchestrator := session.New(
		backendClient,
		conversationStore,
		sourceRegistry,
		session.Config{
			FailureThreshold: cfg.Circuit.FailureThreshold,
			FailureWindow:    config.GetDuration(cfg.Circuit.FailureWindow),
			Cooldown:         config.GetDuration(cfg.Circuit.Cooldown),
		},
		&sessionLoggerAdapter{log},
		obs,
	)

	// --- Backend health poller ---
	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	go pollBackendHealth(pollCtx, backendClient, orchestrator, config.GetDuration(cfg.Backend.HealthPollInterval), zapLog)

	// --- HTTP server ---
	apiServer := api.NewServer(conversationStore, orchestrator, sourceRegistry, &apiLoggerAdapter{log}, cfg.App.Version)
	mux := apiServer.Routes()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	stopPolling()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Session service stopped gracefully")
}

// pollBackendHealth keeps the orchestrator's view of backend health fresh.
// A failed poll marks the backend degraded until the next successful one.
func pollBackendHealth(ctx context.Context, client *backend.Client, orch *session.Orchestrator, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		health, err := client.CheckHealth(checkCtx)
		if err != nil {
			log.Warn("Backend health poll failed", zap.Error(err))
			orch.SetHealth(nil)
			return
		}
		orch.SetHealth(health)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// Logger adapters for packages that declare their own Logger interfaces
type storeLoggerAdapter struct {
	logger.Logger
}

func (a *storeLoggerAdapter) With(fields map[string]interface{}) store.Logger {
	return &storeLoggerAdapter{a.Logger.With(fields)}
}

type sourcesLoggerAdapter struct {
	logger.Logger
}

func (a *sourcesLoggerAdapter) With(fields map[string]interface{}) sources.Logger {
	return &sourcesLoggerAdapter{a.Logger.With(fields)}
}

type backendLoggerAdapter struct {
	logger.Logger
}

func (a *backendLoggerAdapter) With(fields map[string]interface{}) backend.Logger {
	return &backendLoggerAdapter{a.Logger.With(fields)}
}

type sessionLoggerAdapter struct {
	logger.Logger
}

func (a *sessionLoggerAdapter) With(fields map[string]interface{}) session.Logger {
	return &sessionLoggerAdapter{a.Logger.With(fields)}
}

func (a *sessionLoggerAdapter) WithError(err error) session.Logger {
	return &sessionLoggerAdapter{a.Logger.WithError(err)}
}

type apiLoggerAdapter struct {
	logger.Logger
}

func (a *apiLoggerAdapter) With(fields map[string]interface{}) api.Logger {
	return &apiLoggerAdapter{a.Logger.With(fields)}
}
