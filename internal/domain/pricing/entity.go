// internal/domain/pricing/entity.go
package pricing

import "strings"

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyPKR Currency = "PKR"
)

// ParseCurrency normalizes a user supplied currency code.
func ParseCurrency(raw string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(raw)))
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyPKR:
		return c, true
	}
	return c, false
}

type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

func (p PlanType) Valid() bool {
	return p == PlanMonthly || p == PlanYearly
}

// Breakdown is a computed price quote. All amounts are integer minor units of
// Currency (cents for USD/EUR, whole rupees for PKR).
type Breakdown struct {
	ChildCount         int      `json:"child_count"`
	PlanType           PlanType `json:"plan_type"`
	Currency           Currency `json:"currency"`
	MonthlyPrice       int64    `json:"monthly_price"`
	YearlyPrice        int64    `json:"yearly_price"`
	BaseMonthlyPrice   int64    `json:"base_monthly_price"`
	BaseYearlyPrice    int64    `json:"base_yearly_price"`
	DiscountPercentage int      `json:"discount_percentage"`
	DiscountAmount     int64    `json:"discount_amount"`
	SavingsAmount      int64    `json:"savings_amount"`
	FinalAmount        int64    `json:"final_amount"`
	PerChildMonthly    int64    `json:"per_child_monthly"`
	PerChildYearly     int64    `json:"per_child_yearly"`
}
