package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PendingCharge is what the orchestrator records before calling a gateway.
type PendingCharge struct {
	AccountID uuid.UUID
	Gateway   string
	Amount    int64
	Currency  string
	Metadata  map[string]interface{}
}

type Repository interface {
	FindByAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	// List returns subscriptions newest first.
	List(ctx context.Context, limit int) ([]Subscription, error)

	// Upsert writes the whole row keyed by account.
	Upsert(ctx context.Context, sub *Subscription) error

	// MarkPendingCharge atomically creates or updates the row to pending with
	// the chosen gateway and amount. Orphan rows are left untouched and
	// reported with xerrors.ErrOrphanOverrideActive.
	MarkPendingCharge(ctx context.Context, charge *PendingCharge) (*Subscription, error)

	// ApplyPaymentOutcome propagates a terminal payment result. Orphan rows are
	// skipped; the returned flag reports whether a row changed.
	ApplyPaymentOutcome(ctx context.Context, accountID uuid.UUID, succeeded bool, periodStart, periodEnd time.Time) (bool, error)

	UpdateStatus(ctx context.Context, accountID uuid.UUID, status Status) error

	// ExpireLapsed moves paid subscriptions whose period ended before now to expired.
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}
