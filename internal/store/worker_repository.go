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

// WorkerRepository persists registered workers.
type WorkerRepository struct {
	db *bun.DB
}

func NewWorkerRepository(db *bun.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// Register upserts a worker by id, so a worker that restarts and re-registers
// with the same identifier doesn't create a duplicate row (spec's supplemented
// idempotent-registration behavior).
func (r *WorkerRepository) Register(ctx context.Context, w *domain.Worker) error {
	row := models.WorkerToStorage(w)
	_, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("tenant_id = EXCLUDED.tenant_id").
		Set("machine_group = EXCLUDED.machine_group").
		Set("status = EXCLUDED.status").
		Set("last_heartbeat_at = EXCLUDED.last_heartbeat_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	return nil
}

// Heartbeat updates a worker's liveness timestamp.
func (r *WorkerRepository) Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.WorkerModel)(nil)).
		Set("last_heartbeat_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &vulcanerr.NotFoundError{Resource: "worker", ID: id.String()}
	}
	return nil
}

// Get loads a worker by id.
func (r *WorkerRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Worker, error) {
	row := new(models.WorkerModel)
	err := r.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &vulcanerr.NotFoundError{Resource: "worker", ID: id.String()}
		}
		return nil, fmt.Errorf("get worker: %w", err)
	}
	return models.WorkerFromStorage(row), nil
}

// Stale returns every worker whose last heartbeat is older than threshold,
// excluding workers already stopped or marked error, for the liveness sweeper.
func (r *WorkerRepository) Stale(ctx context.Context, threshold time.Duration, now time.Time) ([]*domain.Worker, error) {
	cutoff := now.Add(-threshold)
	rows := make([]*models.WorkerModel, 0)
	err := r.db.NewSelect().
		Model(&rows).
		Where("last_heartbeat_at < ?", cutoff).
		Where("status != ?", string(domain.WorkerStopped)).
		Where("status != ?", string(domain.WorkerError)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("stale workers: %w", err)
	}
	out := make([]*domain.Worker, len(rows))
	for i, row := range rows {
		out[i] = models.WorkerFromStorage(row)
	}
	return out, nil
}

// MarkError transitions a worker to error status, used when the sweeper
// detects it has gone stale.
func (r *WorkerRepository) MarkError(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*models.WorkerModel)(nil)).
		Set("status = ?", string(domain.WorkerError)).
		Set("current_fragment_id = NULL").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark worker error: %w", err)
	}
	return nil
}

// ReclaimFragment resets a held fragment back to pending with an incremented
// attempt, or fails it if attempts are exhausted, mirroring ReportResult's
// retry policy for the liveness sweeper's path (spec §4.2 liveness sweep).
func (r *FragmentRepository) ReclaimFragment(ctx context.Context, fragmentID uuid.UUID, maxAttempts int) error {
	return WithTransaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		fragRow := new(models.FragmentModel)
		if err := tx.NewSelect().Model(fragRow).Where("id = ?", fragmentID).For("UPDATE").Scan(ctx); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return fmt.Errorf("lock fragment: %w", err)
		}
		fragment := models.FragmentFromStorage(fragRow)
		if fragment.Status.IsTerminal() {
			return nil
		}

		now := time.Now()
		fragment.Attempt++
		if fragment.Attempt < maxAttempts {
			fragment.Status = domain.FragmentPending
			fragment.AssignedWorkerID = nil
			fragment.StartedAt = nil
		} else {
			fragment.Status = domain.FragmentFailed
			fragment.CompletedAt = &now
		}

		if _, err := tx.NewUpdate().Model(models.FragmentToStorage(fragment)).
			Column("status", "assigned_worker_id", "started_at", "completed_at", "attempt").
			WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("reclaim fragment: %w", err)
		}

		if fragment.Status == domain.FragmentFailed {
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

		return nil
	})
}
