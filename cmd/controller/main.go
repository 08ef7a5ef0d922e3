// Command controller runs one Elastic Worker Controller instance, scoped to
// a single (tenant, machine_group) deployment: it polls the orchestrator's
// queue depth and reconciles the target deployment's replica count against
// it on a fixed cadence.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vulcan-ci/vulcan/internal/cache"
	"github.com/vulcan-ci/vulcan/internal/config"
	"github.com/vulcan-ci/vulcan/internal/controller"
	"github.com/vulcan-ci/vulcan/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadController()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slogger := log.Slog()

	redisCache, err := cache.NewRedisCache(cache.Config{URL: cfg.RedisURL})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisCache.Close()

	metrics := controller.NewOrchestratorClient(cfg.OrchestratorURL)

	// A real deployment swaps this for a Kubernetes (or similar) scaler; no
	// such client is wired in yet, so the controller drives a deployment
	// whose current replica count it tracks itself.
	scaler := controller.NewFakeScaler(cfg.MinReplicas)

	reconciler := controller.New(controller.Config{
		TenantID:               cfg.TenantID,
		MachineGroup:           cfg.MachineGroup,
		DeploymentName:         cfg.DeploymentName,
		DeploymentNamespace:    cfg.DeploymentNamespace,
		MinReplicas:            cfg.MinReplicas,
		MaxReplicas:            cfg.MaxReplicas,
		TargetPendingPerWorker: cfg.TargetPendingPerWorker,
		ScaleDownDelay:         cfg.ScaleDownDelay,
		PollInterval:           cfg.PollInterval,
	}, metrics, scaler, redisCache, slogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slogger.Info("controller starting",
		slog.String("tenant_id", cfg.TenantID),
		slog.String("machine_group", cfg.MachineGroup),
		slog.String("deployment", cfg.DeploymentNamespace+"/"+cfg.DeploymentName),
	)
	reconciler.Start(ctx)

	<-ctx.Done()
	slogger.Info("controller shutting down")
	reconciler.Stop()
	return nil
}
