package workerrt

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Runtime drives one worker process: it registers with exponential backoff,
// then runs a heartbeat loop and a work-poll loop concurrently until told to
// shut down, draining any in-flight execution first.
type Runtime struct {
	ID           uuid.UUID
	TenantID     string
	MachineGroup string

	Client   *Client
	Executor Executor
	Logger   *slog.Logger

	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	ScriptTimeout     time.Duration
	BackoffFloor      time.Duration
	BackoffCeil       time.Duration

	inFlight sync.WaitGroup
}

// NewRuntime constructs a runtime with a fresh worker identity.
func NewRuntime(tenantID, machineGroup string, client *Client, executor Executor, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		ID:           uuid.New(),
		TenantID:     tenantID,
		MachineGroup: machineGroup,
		Client:       client,
		Executor:     executor,
		Logger:       logger,
	}
}

// Register registers with the orchestrator, retrying with exponential
// backoff (floor 1s, cap 60s by default) until ctx is canceled or it succeeds.
func (r *Runtime) Register(ctx context.Context) error {
	floor := r.BackoffFloor
	if floor <= 0 {
		floor = time.Second
	}
	ceil := r.BackoffCeil
	if ceil <= 0 {
		ceil = 60 * time.Second
	}

	backoff := floor
	for {
		err := r.Client.RegisterWorker(r.ID, r.TenantID, r.MachineGroup)
		if err == nil {
			r.Logger.Info("worker registered", slog.String("worker_id", r.ID.String()))
			return nil
		}
		r.Logger.Warn("worker registration failed, retrying", slog.String("error", err.Error()), slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(backoff)):
		}

		backoff *= 2
		if backoff > ceil {
			backoff = ceil
		}
	}
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d/2+1)))
}

// Run starts the heartbeat and work loops and blocks until ctx is canceled,
// then drains any in-flight script execution before returning.
func (r *Runtime) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.heartbeatLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		r.workLoop(ctx)
	}()
	wg.Wait()
	r.inFlight.Wait()
}

func (r *Runtime) heartbeatLoop(ctx context.Context) {
	interval := r.HeartbeatInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Client.Heartbeat(r.ID); err != nil {
				r.Logger.Warn("heartbeat failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Runtime) workLoop(ctx context.Context) {
	interval := r.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

func (r *Runtime) pollOnce(ctx context.Context) {
	frag, err := r.Client.RequestWork(r.ID, r.TenantID, r.MachineGroup)
	if err != nil {
		r.Logger.Warn("request_work failed", slog.String("error", err.Error()))
		return
	}
	if frag == nil {
		return
	}

	r.inFlight.Add(1)
	defer r.inFlight.Done()

	timeout := time.Duration(frag.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = r.ScriptTimeout
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	r.Logger.Info("executing fragment", slog.String("fragment_id", frag.ID.String()))
	// Shutdown must not kill the script: it runs to completion or timeout.
	result, err := r.Executor.Run(context.WithoutCancel(ctx), frag.Script, frag.Env, timeout)
	errMsg := ""
	if err != nil {
		r.Logger.Error("script execution error", slog.String("fragment_id", frag.ID.String()), slog.String("error", err.Error()))
		result.ExitCode = -1
		errMsg = err.Error()
	} else if result.KilledByTimeout {
		errMsg = "killed: script exceeded timeout"
	}

	if err := r.Client.ReportResult(r.ID, frag.ID, result.ExitCode, errMsg, result.Stdout, result.Stderr); err != nil {
		r.Logger.Error("report_result failed", slog.String("fragment_id", frag.ID.String()), slog.String("error", err.Error()))
	}
}
