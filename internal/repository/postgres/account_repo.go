// internal/repository/postgres/account_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-service/internal/domain/account"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AccountRepository struct {
	q querier
}

func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `
		SELECT id, email, phone, country, trial_used_at, created_at
		FROM accounts
		WHERE id = $1
	`

	var a account.Account
	err := r.q.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Email, &a.Phone, &a.Country, &a.TrialUsedAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) CountChildren(ctx context.Context, accountID uuid.UUID) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM children WHERE account_id = $1`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return n, nil
}

func (r *AccountRepository) FindChild(ctx context.Context, childID uuid.UUID) (*account.Child, error) {
	query := `
		SELECT id, account_id, name, is_orphan, orphan_status, created_at
		FROM children
		WHERE id = $1
	`

	var c account.Child
	err := r.q.QueryRow(ctx, query, childID).Scan(
		&c.ID, &c.AccountID, &c.Name, &c.IsOrphan, &c.OrphanStatus, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find child: %w", err)
	}
	return &c, nil
}

func (r *AccountRepository) UpdateChildOrphan(ctx context.Context, childID uuid.UUID, isOrphan bool, status account.OrphanStatus) error {
	result, err := r.q.Exec(ctx,
		`UPDATE children SET is_orphan = $1, orphan_status = $2 WHERE id = $3`,
		isOrphan, status, childID,
	)
	if err != nil {
		return fmt.Errorf("failed to update child orphan flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) MarkTrialUsed(ctx context.Context, accountID uuid.UUID, at time.Time) (bool, error) {
	result, err := r.q.Exec(ctx,
		`UPDATE accounts SET trial_used_at = $1 WHERE id = $2 AND trial_used_at IS NULL`,
		at, accountID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark trial used: %w", err)
	}
	return result.RowsAffected() == 1, nil
}
