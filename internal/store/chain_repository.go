package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vulcan-ci/vulcan/internal/domain"
	"github.com/vulcan-ci/vulcan/internal/store/models"
	"github.com/vulcan-ci/vulcan/internal/vulcanerr"
)

// ChainRepository persists chains and their fragment trees.
type ChainRepository struct {
	db *bun.DB
}

func NewChainRepository(db *bun.DB) *ChainRepository {
	return &ChainRepository{db: db}
}

// Create inserts a chain and its full fragment tree atomically. Fragments
// must already carry resolved ChainID/ParentID/Sequence (the compiler's job).
func (r *ChainRepository) Create(ctx context.Context, chain *domain.Chain, fragments []*domain.Fragment) error {
	return WithTransaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		chainRow := models.ChainToStorage(chain)
		if _, err := tx.NewInsert().Model(chainRow).Exec(ctx); err != nil {
			return fmt.Errorf("insert chain: %w", err)
		}

		if len(fragments) == 0 {
			return nil
		}

		rows := make([]*models.FragmentModel, len(fragments))
		for i, f := range fragments {
			rows[i] = models.FragmentToStorage(f)
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert fragments: %w", err)
		}
		return nil
	})
}

// Get loads a chain by id.
func (r *ChainRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Chain, error) {
	row := new(models.ChainModel)
	err := r.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &vulcanerr.NotFoundError{Resource: "chain", ID: id.String()}
		}
		return nil, fmt.Errorf("get chain: %w", err)
	}
	return models.ChainFromStorage(row), nil
}

// UpdateStatus persists the chain's status and its started/completed
// timestamps; dispatch uses it for pending -> running and rollup for the
// terminal transition. It does not itself refuse to overwrite a terminal
// status; callers check the chain's current status first.
func (r *ChainRepository) UpdateStatus(ctx context.Context, tx bun.IDB, chain *domain.Chain) error {
	row := models.ChainToStorage(chain)
	_, err := tx.NewUpdate().
		Model(row).
		Column("status", "started_at", "completed_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update chain status: %w", err)
	}
	return nil
}
