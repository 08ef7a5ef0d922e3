package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vulcan-ci/vulcan/internal/domain"
	"github.com/vulcan-ci/vulcan/internal/store/models"
	"github.com/vulcan-ci/vulcan/internal/vulcanerr"
)

// FragmentRepository implements the orchestrator's dispatch and rollup
// operations. Every mutating method runs inside a single transaction with
// row-level locks on the fragments it touches, per spec §4.2/§5's
// requirement that no two workers can ever be assigned the same fragment.
type FragmentRepository struct {
	db *bun.DB
}

func NewFragmentRepository(db *bun.DB) *FragmentRepository {
	return &FragmentRepository{db: db}
}

// EvaluatorFactory builds a condition evaluator bound to a specific chain's
// provenance environment ($BRANCH, $TRIGGER, $COMMIT_SHA, $PR_NUMBER).
type EvaluatorFactory func(prov domain.Provenance) domain.ConditionEvaluator

// maxOutputTailBytes bounds how much of a script's stdout/stderr is retained
// per fragment; only the tail (most recent output) is kept.
const maxOutputTailBytes = 4096

// truncateTail returns the last n bytes of s, or s unchanged if it already
// fits.
func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// DispatchNext assigns the next eligible inline fragment for (tenantID,
// machineGroup) to workerID, or returns (nil, nil, nil) if nothing is ready.
// Candidate chains are tried oldest-first; within a chain, the
// lowest-sequence ready fragment wins, matching spec §4.2's
// (chain.created_at ASC, sequence ASC) dispatch order. The returned env is
// the owning chain's provenance environment ($BRANCH/$TRIGGER/$COMMIT_SHA/
// $PR_NUMBER), handed to the worker alongside the script per spec §6.
func (r *FragmentRepository) DispatchNext(ctx context.Context, tenantID, machineGroup string, workerID uuid.UUID, evalFactory EvaluatorFactory) (*domain.Fragment, map[string]string, error) {
	var assigned *domain.Fragment
	var assignedEnv map[string]string

	err := WithTransaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		chainIDs, err := r.candidateChainIDs(ctx, tx, tenantID, machineGroup)
		if err != nil {
			return err
		}

		for _, chainID := range chainIDs {
			chainRow := new(models.ChainModel)
			if err := tx.NewSelect().Model(chainRow).Where("id = ?", chainID).For("UPDATE").Scan(ctx); err != nil {
				return fmt.Errorf("lock chain: %w", err)
			}
			chain := models.ChainFromStorage(chainRow)

			rows := make([]*models.FragmentModel, 0)
			if err := tx.NewSelect().Model(&rows).Where("chain_id = ?", chainID).For("UPDATE").Scan(ctx); err != nil {
				return fmt.Errorf("lock fragments: %w", err)
			}
			fragments := make([]*domain.Fragment, len(rows))
			for i, row := range rows {
				fragments[i] = models.FragmentFromStorage(row)
			}
			tree := domain.NewTree(fragments)
			eval := evalFactory(chain.Provenance)

			candidate, err := pickReady(tree, machineGroup, chain.DefaultMachine, eval)
			if err != nil {
				return err
			}
			if candidate == nil {
				continue
			}

			now := time.Now()
			candidate.Status = domain.FragmentRunning
			candidate.AssignedWorkerID = &workerID
			candidate.StartedAt = &now

			if _, err := tx.NewUpdate().Model(models.FragmentToStorage(candidate)).
				Column("status", "assigned_worker_id", "started_at").
				WherePK().Exec(ctx); err != nil {
				return fmt.Errorf("assign fragment: %w", err)
			}

			for _, anc := range tree.MarkAncestorsRunning(candidate) {
				if _, err := tx.NewUpdate().Model(models.FragmentToStorage(anc)).
					Column("status", "started_at").WherePK().Exec(ctx); err != nil {
					return fmt.Errorf("update ancestor: %w", err)
				}
			}

			if chain.Status == domain.ChainPending {
				chain.Status = domain.ChainRunning
				chain.StartedAt = &now
				if err := (&ChainRepository{db: r.db}).UpdateStatus(ctx, tx, chain); err != nil {
					return err
				}
			}

			workerRow := new(models.WorkerModel)
			if err := tx.NewSelect().Model(workerRow).Where("id = ?", workerID).For("UPDATE").Scan(ctx); err != nil {
				return fmt.Errorf("lock worker: %w", err)
			}
			workerRow.CurrentFragmentID = &candidate.ID
			workerRow.Status = string(domain.WorkerActive)
			if _, err := tx.NewUpdate().Model(workerRow).
				Column("current_fragment_id", "status").WherePK().Exec(ctx); err != nil {
				return fmt.Errorf("assign worker: %w", err)
			}

			assigned = candidate
			assignedEnv = chain.Provenance.EnvVars()
			return nil
		}
		return nil
	})

	return assigned, assignedEnv, err
}

// candidateChainIDs returns, oldest-first, the ids of chains that currently
// have at least one pending inline fragment matching machineGroup.
func (r *FragmentRepository) candidateChainIDs(ctx context.Context, tx bun.Tx, tenantID, machineGroup string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := tx.NewSelect().
		Model((*models.ChainModel)(nil)).
		ColumnExpr("DISTINCT c.id, c.created_at").
		Join("JOIN fragments AS f ON f.chain_id = c.id").
		Where("c.tenant_id = ?", tenantID).
		Where("f.status = ?", string(domain.FragmentPending)).
		Where("f.kind = ?", string(domain.FragmentInline)).
		Where("(f.machine_override = ? OR (f.machine_override = '' AND c.default_machine = ?))", machineGroup, machineGroup).
		OrderExpr("c.created_at ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("candidate chains: %w", err)
	}
	return ids, nil
}

// pickReady finds the lowest-sequence ready fragment in tree whose effective
// machine matches machineGroup.
func pickReady(tree *domain.Tree, machineGroup, chainDefault string, eval domain.ConditionEvaluator) (*domain.Fragment, error) {
	all := tree.All()
	var best *domain.Fragment
	for _, f := range all {
		if f.Kind != domain.FragmentInline || f.Status != domain.FragmentPending {
			continue
		}
		if f.EffectiveMachine(chainDefault) != machineGroup {
			continue
		}
		ready, err := tree.IsReady(f, eval)
		if err != nil {
			return nil, err
		}
		if !ready {
			continue
		}
		if best == nil || f.Sequence < best.Sequence {
			best = f
		}
	}
	return best, nil
}

// ReportOutcome is a worker's execution result for a held fragment: exit
// code plus, if the worker captured them, a distinguished error message and
// truncated stdout/stderr tails (spec §6's report_result `error?`, `stdout?`,
// `stderr?`).
type ReportOutcome struct {
	ExitCode int
	Error    string
	Stdout   string
	Stderr   string
}

// ReportResult applies a worker's execution result to the fragment it held,
// per spec §4.2: exit_code 0 completes it; otherwise it retries up to
// maxAttempts before failing. Rollup propagates the outcome to ancestor
// groups and, if the chain has now fully settled, to the chain itself. A
// mismatched or already-terminal fragment is an idempotent no-op, matching
// the `not_assigned` conflict behavior for late/duplicate reports.
func (r *FragmentRepository) ReportResult(ctx context.Context, fragmentID, workerID uuid.UUID, outcome ReportOutcome, maxAttempts int) (*domain.Fragment, error) {
	exitCode := outcome.ExitCode
	var result *domain.Fragment

	err := WithTransaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		fragRow := new(models.FragmentModel)
		if err := tx.NewSelect().Model(fragRow).Where("id = ?", fragmentID).For("UPDATE").Scan(ctx); err != nil {
			if err == sql.ErrNoRows {
				return &vulcanerr.NotFoundError{Resource: "fragment", ID: fragmentID.String()}
			}
			return fmt.Errorf("lock fragment: %w", err)
		}
		fragment := models.FragmentFromStorage(fragRow)

		if fragment.Status.IsTerminal() {
			result = fragment
			return nil
		}
		if fragment.Status != domain.FragmentRunning || fragment.AssignedWorkerID == nil || *fragment.AssignedWorkerID != workerID {
			return &vulcanerr.ConflictError{Reason: "not_assigned"}
		}

		now := time.Now()
		code := exitCode
		fragment.ExitCode = &code
		fragment.ErrorMessage = outcome.Error
		fragment.StdoutTail = truncateTail(outcome.Stdout, maxOutputTailBytes)
		fragment.StderrTail = truncateTail(outcome.Stderr, maxOutputTailBytes)

		if exitCode == 0 {
			fragment.Status = domain.FragmentCompleted
			fragment.CompletedAt = &now
		} else {
			fragment.Attempt++
			if fragment.Attempt < maxAttempts {
				fragment.Status = domain.FragmentPending
				fragment.AssignedWorkerID = nil
				fragment.StartedAt = nil
				fragment.ExitCode = nil
			} else {
				fragment.Status = domain.FragmentFailed
				fragment.CompletedAt = &now
			}
		}

		if _, err := tx.NewUpdate().Model(models.FragmentToStorage(fragment)).
			Column("status", "assigned_worker_id", "started_at", "completed_at", "exit_code", "attempt", "error_message", "stdout_tail", "stderr_tail").
			WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update fragment result: %w", err)
		}

		if fragment.Status.IsTerminal() {
			rows := make([]*models.FragmentModel, 0)
			if err := tx.NewSelect().Model(&rows).Where("chain_id = ?", fragment.ChainID).For("UPDATE").Scan(ctx); err != nil {
				return fmt.Errorf("lock fragments for rollup: %w", err)
			}
			fragments := make([]*domain.Fragment, len(rows))
			for i, row := range rows {
				fragments[i] = models.FragmentFromStorage(row)
			}
			tree := domain.NewTree(fragments)
			if live, ok := tree.Get(fragment.ID); ok {
				*live = *fragment
			}

			changed := tree.Rollup(fragment)
			for _, anc := range changed {
				if _, err := tx.NewUpdate().Model(models.FragmentToStorage(anc)).
					Column("status", "completed_at").WherePK().Exec(ctx); err != nil {
					return fmt.Errorf("update rollup fragment: %w", err)
				}
			}

			if settled, anyFailed := tree.RootSettled(); settled {
				chainRow := new(models.ChainModel)
				if err := tx.NewSelect().Model(chainRow).Where("id = ?", fragment.ChainID).For("UPDATE").Scan(ctx); err != nil {
					return fmt.Errorf("lock chain for rollup: %w", err)
				}
				chain := models.ChainFromStorage(chainRow)
				if !chain.Status.IsTerminal() {
					if anyFailed {
						chain.Status = domain.ChainFailed
					} else {
						chain.Status = domain.ChainCompleted
					}
					chain.CompletedAt = &now
					if err := (&ChainRepository{db: r.db}).UpdateStatus(ctx, tx, chain); err != nil {
						return err
					}
				}
			}
		}

		workerRow := new(models.WorkerModel)
		if err := tx.NewSelect().Model(workerRow).Where("id = ?", workerID).For("UPDATE").Scan(ctx); err != nil {
			return fmt.Errorf("lock worker: %w", err)
		}
		workerRow.CurrentFragmentID = nil
		workerRow.Status = string(domain.WorkerIdle)
		if _, err := tx.NewUpdate().Model(workerRow).
			Column("current_fragment_id", "status").WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("release worker: %w", err)
		}

		result = fragment
		return nil
	})

	return result, err
}

// QueueMetrics reports queue depth for a tenant's machine group, used by the
// elastic worker controller's reconciliation loop.
type QueueMetrics struct {
	Pending           int
	Running           int
	ActiveWorkers     int
	OldestPendingSecs float64
}

// Metrics computes queue metrics scoped to a single (tenant, machine group)
// pair. Per the design notes resolving the oldest-pending ambiguity, only
// fragments matching this machine group (directly or via chain default)
// count toward oldest_pending_seconds.
func (r *FragmentRepository) Metrics(ctx context.Context, tenantID, machineGroup string) (*QueueMetrics, error) {
	m := &QueueMetrics{}

	pending, err := r.db.NewSelect().
		Model((*models.FragmentModel)(nil)).
		ColumnExpr("f.*").
		Join("JOIN chains AS c ON c.id = f.chain_id").
		Where("c.tenant_id = ?", tenantID).
		Where("f.kind = ?", string(domain.FragmentInline)).
		Where("f.status = ?", string(domain.FragmentPending)).
		Where("(f.machine_override = ? OR (f.machine_override = '' AND c.default_machine = ?))", machineGroup, machineGroup).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}
	m.Pending = pending

	running, err := r.db.NewSelect().
		Model((*models.FragmentModel)(nil)).
		ColumnExpr("f.*").
		Join("JOIN chains AS c ON c.id = f.chain_id").
		Where("c.tenant_id = ?", tenantID).
		Where("f.kind = ?", string(domain.FragmentInline)).
		Where("f.status = ?", string(domain.FragmentRunning)).
		Where("(f.machine_override = ? OR (f.machine_override = '' AND c.default_machine = ?))", machineGroup, machineGroup).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count running: %w", err)
	}
	m.Running = running

	activeWorkers, err := r.db.NewSelect().
		Model((*models.WorkerModel)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("machine_group = ?", machineGroup).
		Where("status != ?", string(domain.WorkerStopped)).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count workers: %w", err)
	}
	m.ActiveWorkers = activeWorkers

	// Fragments carry no creation timestamp of their own (they're born with
	// their chain); a pending fragment has been queued since its chain's
	// created_at.
	var oldest sql.NullTime
	err = r.db.NewSelect().
		Model((*models.FragmentModel)(nil)).
		ColumnExpr("MIN(c.created_at)").
		Join("JOIN chains AS c ON c.id = f.chain_id").
		Where("c.tenant_id = ?", tenantID).
		Where("f.kind = ?", string(domain.FragmentInline)).
		Where("f.status = ?", string(domain.FragmentPending)).
		Where("(f.machine_override = ? OR (f.machine_override = '' AND c.default_machine = ?))", machineGroup, machineGroup).
		Scan(ctx, &oldest)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("oldest pending: %w", err)
	}
	if oldest.Valid {
		m.OldestPendingSecs = time.Since(oldest.Time).Seconds()
	}

	return m, nil
}
