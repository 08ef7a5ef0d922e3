package controller

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vulcan-ci/vulcan/internal/cache"
)

// MetricsSource is the orchestrator's queue_metrics operation, as seen by the
// controller.
type MetricsSource interface {
	QueueMetrics(ctx context.Context, tenantID, machineGroup string) (pending int, err error)
}

// Config scopes one reconciler instance to a single (tenant, machine_group)
// deployment, per spec §4.4.
type Config struct {
	TenantID               string
	MachineGroup           string
	DeploymentName         string
	DeploymentNamespace    string
	MinReplicas            int
	MaxReplicas            int
	TargetPendingPerWorker float64
	ScaleDownDelay         time.Duration
	PollInterval           time.Duration
}

// Reconciler runs the elastic controller's fixed-cadence reconciliation loop.
type Reconciler struct {
	cfg     Config
	metrics MetricsSource
	scaler  DeploymentScaler
	cache   *cache.RedisCache
	logger  *slog.Logger

	cooldownKey string
	cronRunner  *cron.Cron
}

func New(cfg Config, metrics MetricsSource, scaler DeploymentScaler, redisCache *cache.RedisCache, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		cfg:         cfg,
		metrics:     metrics,
		scaler:      scaler,
		cache:       redisCache,
		logger:      logger,
		cooldownKey: "vulcan:controller:last_scale_down:" + cfg.TenantID + ":" + cfg.MachineGroup,
	}
}

// Desired computes the target replica count for a given pending count:
// clamp(ceil(pending/target), min, max). Never returns below MinReplicas.
func (c *Reconciler) Desired(pending int) int {
	raw := math.Ceil(float64(pending) / c.cfg.TargetPendingPerWorker)
	desired := int(raw)
	if desired < c.cfg.MinReplicas {
		desired = c.cfg.MinReplicas
	}
	if desired > c.cfg.MaxReplicas {
		desired = c.cfg.MaxReplicas
	}
	return desired
}

// Start schedules Reconcile at a fixed cadence and returns immediately.
func (c *Reconciler) Start(ctx context.Context) {
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	runner := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	runner.Schedule(cron.ConstantDelaySchedule{Delay: interval}, cron.FuncJob(func() {
		if err := c.Reconcile(ctx); err != nil {
			c.logger.Error("reconcile failed", slog.String("error", err.Error()))
		}
	}))
	runner.Start()
	c.cronRunner = runner
}

func (c *Reconciler) Stop() {
	if c.cronRunner != nil {
		c.cronRunner.Stop()
	}
}

// Reconcile runs a single tick: no retries within the tick, per spec §4.4 —
// a failure is logged and the next tick tries again.
func (c *Reconciler) Reconcile(ctx context.Context) error {
	pending, err := c.metrics.QueueMetrics(ctx, c.cfg.TenantID, c.cfg.MachineGroup)
	if err != nil {
		return err
	}

	current, err := c.scaler.GetReplicas(ctx, c.cfg.DeploymentName, c.cfg.DeploymentNamespace)
	if err != nil {
		return err
	}

	desired := c.Desired(pending)
	if desired == current {
		return nil
	}

	if desired > current {
		c.logger.Info("scaling up", slog.Int("from", current), slog.Int("to", desired), slog.Int("pending", pending))
		return c.scaler.SetReplicas(ctx, c.cfg.DeploymentName, c.cfg.DeploymentNamespace, desired)
	}

	now := time.Now()
	lastScaleDown, err := c.cache.LastScaleDown(ctx, c.cooldownKey)
	if err != nil {
		return err
	}
	if !lastScaleDown.IsZero() && now.Sub(lastScaleDown) < c.cfg.ScaleDownDelay {
		c.logger.Debug("scale-down suppressed by cooldown", slog.Duration("remaining", c.cfg.ScaleDownDelay-now.Sub(lastScaleDown)))
		return nil
	}

	c.logger.Info("scaling down", slog.Int("from", current), slog.Int("to", desired), slog.Int("pending", pending))
	if err := c.scaler.SetReplicas(ctx, c.cfg.DeploymentName, c.cfg.DeploymentNamespace, desired); err != nil {
		return err
	}
	return c.cache.SetLastScaleDown(ctx, c.cooldownKey, now)
}
