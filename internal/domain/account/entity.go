// internal/domain/account/entity.go
package account

import (
	"context"
	"strings"
	"time"

	"billing-service/internal/domain/pricing"

	"github.com/google/uuid"
)

// Account is a guardian (parent) profile. Accounts and children are owned by
// the identity side of the product; billing reads them and flips a few flags.
type Account struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Email       string     `json:"email" db:"email"`
	Phone       string     `json:"phone,omitempty" db:"phone"`
	Country     string     `json:"country,omitempty" db:"country"`
	TrialUsedAt *time.Time `json:"trial_used_at,omitempty" db:"trial_used_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// BillingCurrency is PKR for accounts in Pakistan and USD everywhere else.
func (a *Account) BillingCurrency() pricing.Currency {
	if strings.EqualFold(strings.TrimSpace(a.Country), "pakistan") {
		return pricing.CurrencyPKR
	}
	return pricing.CurrencyUSD
}

type OrphanStatus string

const (
	OrphanNone     OrphanStatus = "none"
	OrphanPending  OrphanStatus = "pending"
	OrphanVerified OrphanStatus = "verified"
	OrphanRejected OrphanStatus = "rejected"
)

type Child struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	AccountID    uuid.UUID    `json:"account_id" db:"account_id"`
	Name         string       `json:"name" db:"name"`
	IsOrphan     bool         `json:"is_orphan" db:"is_orphan"`
	OrphanStatus OrphanStatus `json:"orphan_status" db:"orphan_status"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	CountChildren(ctx context.Context, accountID uuid.UUID) (int, error)
	FindChild(ctx context.Context, childID uuid.UUID) (*Child, error)
	UpdateChildOrphan(ctx context.Context, childID uuid.UUID, isOrphan bool, status OrphanStatus) error

	// MarkTrialUsed sets trial_used_at once; false means it was already set.
	MarkTrialUsed(ctx context.Context, accountID uuid.UUID, at time.Time) (bool, error)
}
