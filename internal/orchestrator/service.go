package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vulcan-ci/vulcan/internal/domain"
	"github.com/vulcan-ci/vulcan/internal/store"
)

// Service implements the Work Orchestrator's six public operations on top of
// the durable store: register_worker, heartbeat, request_work, report_result,
// queue_metrics, worker_busy.
type Service struct {
	Chains        *store.ChainRepository
	Fragments     *store.FragmentRepository
	Workers       *store.WorkerRepository
	Cache         *ConditionCache
	MaxAttempts   int
	ScriptTimeout time.Duration
}

func NewService(chains *store.ChainRepository, fragments *store.FragmentRepository, workers *store.WorkerRepository, maxAttempts int, scriptTimeout time.Duration) *Service {
	if scriptTimeout <= 0 {
		scriptTimeout = 300 * time.Second
	}
	return &Service{
		Chains:        chains,
		Fragments:     fragments,
		Workers:       workers,
		Cache:         NewConditionCache(defaultConditionCacheSize),
		MaxAttempts:   maxAttempts,
		ScriptTimeout: scriptTimeout,
	}
}

// Dispatch is what request_work hands back to a worker for one assigned
// fragment: the script to run, its chain's provenance environment, and the
// timeout budget it must be run under (spec §6: `{fragment_id, script, env,
// timeout_secs}`).
type Dispatch struct {
	Fragment    *domain.Fragment
	Env         map[string]string
	TimeoutSecs int
}

// RegisterWorker upserts a worker by its client-supplied id, so a restarted
// worker re-registering with the same identity doesn't create a duplicate row.
func (s *Service) RegisterWorker(ctx context.Context, id uuid.UUID, tenantID, machineGroup string) (*domain.Worker, error) {
	w := &domain.Worker{
		ID:              id,
		TenantID:        tenantID,
		MachineGroup:    machineGroup,
		Status:          domain.WorkerActive,
		LastHeartbeatAt: time.Now(),
	}
	if err := s.Workers.Register(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Heartbeat refreshes a worker's liveness timestamp.
func (s *Service) Heartbeat(ctx context.Context, id uuid.UUID) error {
	return s.Workers.Heartbeat(ctx, id, time.Now())
}

// RequestWork dispatches the next eligible fragment to the requesting worker,
// or returns (nil, nil) if the queue has nothing ready for it right now.
func (s *Service) RequestWork(ctx context.Context, tenantID, machineGroup string, workerID uuid.UUID) (*Dispatch, error) {
	fragment, env, err := s.Fragments.DispatchNext(ctx, tenantID, machineGroup, workerID, func(prov domain.Provenance) domain.ConditionEvaluator {
		return s.Cache.Evaluator(prov.EnvVars())
	})
	if err != nil || fragment == nil {
		return nil, err
	}
	return &Dispatch{Fragment: fragment, Env: env, TimeoutSecs: int(s.ScriptTimeout.Seconds())}, nil
}

// ReportResult records a worker's execution outcome for the fragment it held.
func (s *Service) ReportResult(ctx context.Context, fragmentID, workerID uuid.UUID, outcome store.ReportOutcome) (*domain.Fragment, error) {
	return s.Fragments.ReportResult(ctx, fragmentID, workerID, outcome, s.MaxAttempts)
}

// QueueMetrics reports dispatch queue depth for a machine group.
func (s *Service) QueueMetrics(ctx context.Context, tenantID, machineGroup string) (*store.QueueMetrics, error) {
	return s.Fragments.Metrics(ctx, tenantID, machineGroup)
}

// WorkerBusy reports whether a worker currently holds an in-flight fragment,
// used by the controller's scale-down preStop hook to avoid killing a worker
// mid-execution.
func (s *Service) WorkerBusy(ctx context.Context, id uuid.UUID) (bool, error) {
	w, err := s.Workers.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return !w.IsIdle(), nil
}

// SubmitChain persists a newly compiled chain and its fragment tree.
func (s *Service) SubmitChain(ctx context.Context, chain *domain.Chain, fragments []*domain.Fragment) error {
	return s.Chains.Create(ctx, chain, fragments)
}

// GetChain loads a chain by id, surfacing vulcanerr.NotFoundError when absent.
func (s *Service) GetChain(ctx context.Context, id uuid.UUID) (*domain.Chain, error) {
	return s.Chains.Get(ctx, id)
}
