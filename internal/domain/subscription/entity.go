// internal/domain/subscription/entity.go
package subscription

import (
	"time"

	"billing-service/internal/domain/pricing"

	"github.com/google/uuid"
)

type Type string

const (
	TypeTrial  Type = "trial"
	TypePaid   Type = "paid"
	TypeOrphan Type = "orphan"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Feature is a monetized capability checked by the access guard.
type Feature string

const (
	FeatureAI   Feature = "ai"
	FeatureRead Feature = "read"
)

func (f Feature) Valid() bool {
	return f == FeatureAI || f == FeatureRead
}

// Subscription is the single billing record of an account. Rows are never
// deleted; cancellation is a status.
type Subscription struct {
	ID        int64     `json:"id" db:"id"`
	AccountID uuid.UUID `json:"account_id" db:"account_id"`

	Type     Type             `json:"type" db:"type"`
	PlanType pricing.PlanType `json:"plan_type,omitempty" db:"plan_type"`
	Status   Status           `json:"status" db:"status"`
	Gateway  string           `json:"gateway,omitempty" db:"gateway"`

	// Last requested charge
	Amount   int64            `json:"amount" db:"amount"`
	Currency pricing.Currency `json:"currency" db:"currency"`

	// Pricing snapshot
	ChildCount         int              `json:"child_count" db:"child_count"`
	BillingCurrency    pricing.Currency `json:"billing_currency" db:"billing_currency"`
	BaseMonthlyPrice   int64            `json:"base_monthly_price" db:"base_monthly_price"`
	DiscountPercentage int              `json:"discount_percentage" db:"discount_percentage"`
	DiscountAmount     int64            `json:"discount_amount" db:"discount_amount"`
	FinalAmount        int64            `json:"final_amount" db:"final_amount"`
	IsFree             bool             `json:"is_free" db:"is_free"`

	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty" db:"current_period_end"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`

	Metadata map[string]interface{} `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ApplySnapshot copies a price quote onto the subscription.
func (s *Subscription) ApplySnapshot(b *pricing.Breakdown) {
	s.PlanType = b.PlanType
	s.ChildCount = b.ChildCount
	s.BillingCurrency = b.Currency
	s.Currency = b.Currency
	s.BaseMonthlyPrice = b.BaseMonthlyPrice
	s.DiscountPercentage = b.DiscountPercentage
	s.DiscountAmount = b.DiscountAmount
	s.FinalAmount = b.FinalAmount
	s.Amount = b.FinalAmount
}

// TrialActive reports whether a trial subscription is still inside its window.
func (s *Subscription) TrialActive(now time.Time) bool {
	return s.Type == TypeTrial && s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
}
