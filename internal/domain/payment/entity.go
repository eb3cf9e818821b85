// internal/domain/payment/entity.go
package payment

import (
	"time"

	"billing-service/internal/domain/pricing"

	"github.com/google/uuid"
)

type Gateway string

const (
	GatewayPayoneer  Gateway = "payoneer"
	GatewayJazzCash  Gateway = "jazzcash"
	GatewayEasyPaisa Gateway = "easypaisa"

	// GatewayManual marks transfers an operator verifies by hand and admin
	// refunds. It has no adapter and never receives webhooks.
	GatewayManual Gateway = "manual"
)

// ParseGateway accepts the gateways that have an adapter.
func ParseGateway(raw string) (Gateway, bool) {
	switch g := Gateway(raw); g {
	case GatewayPayoneer, GatewayJazzCash, GatewayEasyPaisa:
		return g, true
	}
	return "", false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Terminal reports whether a status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusRefunded
}

// transitions lists the only edges a transaction may take.
var transitions = map[Status][]Status{
	StatusPending: {StatusSucceeded, StatusFailed},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction is one payment attempt against a gateway.
type Transaction struct {
	ID             int64            `json:"id" db:"id"`
	AccountID      uuid.UUID        `json:"account_id" db:"account_id"`
	SubscriptionID int64            `json:"subscription_id" db:"subscription_id"`
	Gateway        Gateway          `json:"gateway" db:"gateway"`
	ExternalID     string           `json:"external_id" db:"external_id"`
	ReferenceID    string           `json:"reference_id" db:"reference_id"`
	Amount         int64            `json:"amount" db:"amount"`
	Currency       pricing.Currency `json:"currency" db:"currency"`
	Status         Status           `json:"status" db:"status"`

	Metadata map[string]interface{} `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WebhookEvent is the normalized form every gateway callback is decoded into.
type WebhookEvent struct {
	ExternalID  string
	Status      Status
	Amount      int64
	Currency    pricing.Currency
	ReferenceID string
	Metadata    map[string]interface{}
}
