// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-service/internal/domain/subscription"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

type SubscriptionRepository struct {
	q querier
}

const subscriptionColumns = `
	id, account_id, type, plan_type, status, gateway, amount, currency,
	child_count, billing_currency, base_monthly_price, discount_percentage, discount_amount, final_amount, is_free,
	trial_ends_at, current_period_start, current_period_end, cancelled_at,
	metadata, created_at, updated_at
`

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	var metadataJSON []byte

	err := row.Scan(
		&sub.ID, &sub.AccountID, &sub.Type, &sub.PlanType, &sub.Status, &sub.Gateway, &sub.Amount, &sub.Currency,
		&sub.ChildCount, &sub.BillingCurrency, &sub.BaseMonthlyPrice, &sub.DiscountPercentage, &sub.DiscountAmount, &sub.FinalAmount, &sub.IsFree,
		&sub.TrialEndsAt, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelledAt,
		&metadataJSON, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Metadata = unmarshalMetadata(metadataJSON)
	return &sub, nil
}

func (r *SubscriptionRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE account_id = $1`

	sub, err := scanSubscription(r.q.QueryRow(ctx, query, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) List(ctx context.Context, limit int) ([]subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			account_id, type, plan_type, status, gateway, amount, currency,
			child_count, billing_currency, base_monthly_price, discount_percentage, discount_amount, final_amount, is_free,
			trial_ends_at, current_period_start, current_period_end, cancelled_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (account_id) DO UPDATE SET
			type = EXCLUDED.type,
			plan_type = EXCLUDED.plan_type,
			status = EXCLUDED.status,
			gateway = EXCLUDED.gateway,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			child_count = EXCLUDED.child_count,
			billing_currency = EXCLUDED.billing_currency,
			base_monthly_price = EXCLUDED.base_monthly_price,
			discount_percentage = EXCLUDED.discount_percentage,
			discount_amount = EXCLUDED.discount_amount,
			final_amount = EXCLUDED.final_amount,
			is_free = EXCLUDED.is_free,
			trial_ends_at = EXCLUDED.trial_ends_at,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancelled_at = EXCLUDED.cancelled_at,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	metadataJSON, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return err
	}

	err = r.q.QueryRow(
		ctx, query,
		sub.AccountID, sub.Type, sub.PlanType, sub.Status, sub.Gateway, sub.Amount, sub.Currency,
		sub.ChildCount, sub.BillingCurrency, sub.BaseMonthlyPrice, sub.DiscountPercentage, sub.DiscountAmount, sub.FinalAmount, sub.IsFree,
		sub.TrialEndsAt, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelledAt, metadataJSON,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) MarkPendingCharge(ctx context.Context, charge *subscription.PendingCharge) (*subscription.Subscription, error) {
	// The WHERE on the conflict branch leaves orphan rows untouched and returns no row.
	query := `
		INSERT INTO subscriptions (
			account_id, type, status, gateway, amount, currency, billing_currency, metadata, current_period_start
		) VALUES ($1, 'paid', 'pending', $2, $3, $4, $4, $5, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			gateway = EXCLUDED.gateway,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			status = 'pending',
			metadata = EXCLUDED.metadata,
			current_period_start = NOW(),
			updated_at = NOW()
		WHERE subscriptions.type <> 'orphan'
		RETURNING ` + subscriptionColumns

	metadataJSON, err := marshalMetadata(charge.Metadata)
	if err != nil {
		return nil, err
	}

	sub, err := scanSubscription(r.q.QueryRow(ctx, query,
		charge.AccountID, charge.Gateway, charge.Amount, charge.Currency, metadataJSON,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrOrphanOverrideActive
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark subscription pending: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) ApplyPaymentOutcome(ctx context.Context, accountID uuid.UUID, succeeded bool, periodStart, periodEnd time.Time) (bool, error) {
	var (
		query string
		args  []any
	)
	if succeeded {
		query = `
			UPDATE subscriptions
			SET status = 'active', type = 'paid', is_free = FALSE,
			    current_period_start = $2, current_period_end = $3, updated_at = NOW()
			WHERE account_id = $1 AND type <> 'orphan'
		`
		args = []any{accountID, periodStart, periodEnd}
	} else {
		query = `
			UPDATE subscriptions
			SET status = 'past_due', updated_at = NOW()
			WHERE account_id = $1 AND type <> 'orphan'
		`
		args = []any{accountID}
	}

	result, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to apply payment outcome: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, accountID uuid.UUID, status subscription.Status) error {
	query := `
		UPDATE subscriptions
		SET status = $1,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END,
		    updated_at = NOW()
		WHERE account_id = $2
	`

	result, err := r.q.Exec(ctx, query, string(status), accountID)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE subscriptions
		SET status = 'expired', updated_at = NOW()
		WHERE type = 'paid' AND status = ANY($1) AND current_period_end < $2
	`

	lapsible := []string{string(subscription.StatusActive), string(subscription.StatusPastDue)}
	result, err := r.q.Exec(ctx, query, pq.Array(lapsible), now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return result.RowsAffected(), nil
}
