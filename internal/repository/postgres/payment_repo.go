// internal/repository/postgres/payment_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"billing-service/internal/domain/payment"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

type PaymentRepository struct {
	q querier
}

const transactionColumns = `
	id, account_id, subscription_id, gateway, external_id, reference_id,
	amount, currency, status, metadata, created_at, updated_at
`

func scanTransaction(row pgx.Row) (*payment.Transaction, error) {
	var t payment.Transaction
	var subscriptionID *int64
	var metadataJSON []byte

	err := row.Scan(
		&t.ID, &t.AccountID, &subscriptionID, &t.Gateway, &t.ExternalID, &t.ReferenceID,
		&t.Amount, &t.Currency, &t.Status, &metadataJSON, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if subscriptionID != nil {
		t.SubscriptionID = *subscriptionID
	}
	t.Metadata = unmarshalMetadata(metadataJSON)
	return &t, nil
}

func (r *PaymentRepository) Create(ctx context.Context, t *payment.Transaction) error {
	query := `
		INSERT INTO payment_transactions (
			account_id, subscription_id, gateway, external_id, reference_id,
			amount, currency, status, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	if t.Status == "" {
		t.Status = payment.StatusPending
	}
	metadataJSON, err := marshalMetadata(t.Metadata)
	if err != nil {
		return err
	}

	var subscriptionID *int64
	if t.SubscriptionID != 0 {
		subscriptionID = &t.SubscriptionID
	}

	err = r.q.QueryRow(
		ctx, query,
		t.AccountID, subscriptionID, t.Gateway, t.ExternalID, t.ReferenceID,
		t.Amount, t.Currency, t.Status, metadataJSON,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction %s/%s", xerrors.ErrConflict, t.Gateway, t.ExternalID)
	}
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id int64) (*payment.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = $1`

	t, err := scanTransaction(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return t, nil
}

func (r *PaymentRepository) FindByExternalID(ctx context.Context, gateway payment.Gateway, externalID string) (*payment.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE gateway = $1 AND external_id = $2`

	t, err := scanTransaction(r.q.QueryRow(ctx, query, gateway, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return t, nil
}

func (r *PaymentRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, statuses []payment.Status, limit int) ([]payment.Transaction, error) {
	return r.list(ctx, "account_id", accountID, statuses, limit)
}

func (r *PaymentRepository) ListByGateway(ctx context.Context, gateway payment.Gateway, statuses []payment.Status, limit int) ([]payment.Transaction, error) {
	return r.list(ctx, "gateway", gateway, statuses, limit)
}

// list filters on one fixed column; column is never caller input.
func (r *PaymentRepository) list(ctx context.Context, column string, value any, statuses []payment.Status, limit int) ([]payment.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE ` + column + ` = $1`
	args := []any{value}
	argPos := 2

	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for i, s := range statuses {
			raw[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argPos)
		args = append(args, pq.Array(raw))
		argPos++
	}

	query += " ORDER BY id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []payment.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *PaymentRepository) CompareAndSetStatus(ctx context.Context, id int64, from, to payment.Status, metadata map[string]interface{}) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = $1,
		    metadata = COALESCE(metadata, '{}'::jsonb) || COALESCE($2::jsonb, '{}'::jsonb),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return false, err
	}

	result, err := r.q.Exec(ctx, query, to, metadataJSON, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update transaction status: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *PaymentRepository) MergeMetadata(ctx context.Context, id int64, metadata map[string]interface{}) error {
	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}

	result, err := r.q.Exec(ctx, `
		UPDATE payment_transactions
		SET metadata = COALESCE(metadata, '{}'::jsonb) || COALESCE($1::jsonb, '{}'::jsonb),
		    updated_at = NOW()
		WHERE id = $2
	`, metadataJSON, id)
	if err != nil {
		return fmt.Errorf("failed to merge transaction metadata: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
