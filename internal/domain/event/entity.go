// internal/domain/event/entity.go
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types written by billing. AI usage events share the "ai." prefix.
const (
	TypePaymentCreated   = "payment.created"
	TypePaymentUpdated   = "payment.updated"
	TypeSubscriptionSet  = "subscription.upserted"
	TypePlanChanged      = "subscription.plan_changed"
	TypeChildCountSynced = "subscription.child_count_updated"
	TypeCancelled        = "subscription.cancelled"
	TypeExpired          = "subscription.expired"
	TypeAdminOverride    = "subscription.override"
	TypeRefunded         = "subscription.refund"
	TypeTrialStarted     = "trial.started"
	TypeOrphanSubmitted  = "orphan.submitted"
	TypeOrphanReviewed   = "orphan.reviewed"
	TypeOrphanRevoked    = "orphan.revoked"

	AIPrefix = "ai."
)

// Event is an append-only audit and usage record.
type Event struct {
	ID        int64                  `json:"id" db:"id"`
	AccountID uuid.UUID              `json:"account_id" db:"account_id"`
	ChildID   *uuid.UUID             `json:"child_id,omitempty" db:"child_id"`
	Type      string                 `json:"type" db:"event_type"`
	Data      map[string]interface{} `json:"data,omitempty" db:"event_data"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

type Repository interface {
	Append(ctx context.Context, e *Event) error
	CountByPrefixSince(ctx context.Context, accountID uuid.UUID, prefix string, since time.Time) (int, error)
}
