// internal/domain/subscription/dto.go
package subscription

import (
	"time"

	"billing-service/internal/domain/pricing"
)

type PlanRequest struct {
	PlanType pricing.PlanType `json:"plan_type" binding:"required,oneof=monthly yearly"`
}

type PlanResult struct {
	Subscription *Subscription     `json:"subscription"`
	Pricing      *pricing.Breakdown `json:"pricing"`
}

type TrialState string

const (
	TrialNone    TrialState = "none"
	TrialActive  TrialState = "active"
	TrialExpired TrialState = "expired"
)

type TrialStatus struct {
	Status      TrialState `json:"status"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
}

type AccessResult struct {
	Allowed      bool          `json:"allowed"`
	Feature      Feature       `json:"feature"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

type RecordUsageRequest struct {
	Kind    string `json:"kind" binding:"required,max=64"`
	ChildID string `json:"child_id"`
}

// OverrideRequest is an admin correction of a subscription. Nil fields are left alone.
type OverrideRequest struct {
	Status             *Status `json:"status" binding:"omitempty,oneof=pending active past_due cancelled expired"`
	FinalAmount        *int64  `json:"final_amount" binding:"omitempty,gt=0"`
	DiscountPercentage *int    `json:"discount_percentage" binding:"omitempty,min=0,max=100"`
	DiscountAmount     *int64  `json:"discount_amount" binding:"omitempty,min=0"`
	Reason             string  `json:"reason" binding:"max=500"`
}

// TierSummary aggregates subscriptions sharing a child count.
type TierSummary struct {
	Count   int                        `json:"count"`
	Revenue map[pricing.Currency]int64 `json:"revenue"`
}

type AdminList struct {
	Subscriptions []Subscription       `json:"subscriptions"`
	TierSummary   map[int]*TierSummary `json:"tier_summary"`
}
