// Command worker runs a Vulcan CI worker: it registers with the
// orchestrator, then runs a heartbeat loop and a work-poll loop until
// signaled to shut down, draining any in-flight script execution first.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vulcan-ci/vulcan/internal/config"
	"github.com/vulcan-ci/vulcan/internal/logger"
	"github.com/vulcan-ci/vulcan/internal/workerrt"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWorker()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slogger := log.Slog()

	client := workerrt.NewClient(cfg.OrchestratorURL, cfg.RequestTimeout)
	rt := workerrt.NewRuntime(cfg.TenantID, cfg.WorkerGroup, client, workerrt.ShellExecutor{}, slogger)
	rt.HeartbeatInterval = cfg.HeartbeatInterval
	rt.PollInterval = cfg.PollInterval
	rt.ScriptTimeout = cfg.ScriptTimeout
	rt.BackoffFloor = cfg.RegisterBackoffFloor
	rt.BackoffCeil = cfg.RegisterBackoffCeil

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Register(ctx); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}

	slogger.Info("worker running", slog.String("worker_id", rt.ID.String()), slog.String("machine_group", cfg.WorkerGroup))
	rt.Run(ctx)
	slogger.Info("worker shut down", slog.String("worker_id", rt.ID.String()))
	return nil
}
