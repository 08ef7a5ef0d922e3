// Command orchestratord runs the Work Orchestrator: the pull-based dispatch
// API, its liveness sweeper, and the HTTP surface workers and controllers
// talk to.
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

	"github.com/gin-gonic/gin"

	"github.com/vulcan-ci/vulcan/internal/config"
	"github.com/vulcan-ci/vulcan/internal/infrastructure/api/rest"
	"github.com/vulcan-ci/vulcan/internal/logger"
	"github.com/vulcan-ci/vulcan/internal/orchestrator"
	"github.com/vulcan-ci/vulcan/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadOrchestrator()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slogger := log.Slog()

	db, err := store.NewDB(store.Config{
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxConnections,
		MaxIdleConns:    cfg.DBMinConnections,
		ConnMaxLifetime: cfg.DBMaxConnLifetime,
		ConnMaxIdleTime: cfg.DBMaxIdleTime,
		Debug:           cfg.Logging.Level == "debug",
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer store.Close(db)

	chains := store.NewChainRepository(db)
	fragments := store.NewFragmentRepository(db)
	workers := store.NewWorkerRepository(db)

	svc := orchestrator.NewService(chains, fragments, workers, cfg.MaxAttempts, cfg.ScriptTimeout)

	sweeper := orchestrator.NewLivenessSweeper(fragments, workers, cfg.StaleThreshold(), cfg.MaxAttempts, slogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper.Start(ctx, cfg.SweepInterval)
	defer sweeper.Stop()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(rest.NewRecoveryMiddleware(log).Recovery())
	router.Use(rest.NewLoggingMiddleware(log).RequestLogger())
	router.Use(rest.NewBodySizeMiddleware(log, 1<<20).LimitBodySize())
	rest.NewHandlers(svc).Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slogger.Info("orchestrator listening", slog.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slogger.Info("shutting down orchestrator")
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
