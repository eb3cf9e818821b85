// internal/service/pricing/pricing.go
package pricing

import (
	"billing-service/internal/domain/pricing"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
)

// YearlyDiscountPercentage is taken off twelve monthly payments.
const YearlyDiscountPercentage = 15

type tier struct {
	maxChildren     int
	monthlyUSDCents int64
}

// Monthly price steps in USD cents. The last tier covers every larger family.
var monthlyTiers = []tier{
	{maxChildren: 1, monthlyUSDCents: 2999},
	{maxChildren: 2, monthlyUSDCents: 5499},
	{maxChildren: 3, monthlyUSDCents: 7000},
}

const largeFamilyUSDCents int64 = 9000

// minor units per major unit of each billing currency
var minorUnits = map[pricing.Currency]int64{
	pricing.CurrencyUSD: 100,
	pricing.CurrencyEUR: 100,
	pricing.CurrencyPKR: 1,
}

var ErrInvalidChildCount = xerrors.New(xerrors.KindValidation, "child count must be at least 1")

// Rates are units of the target currency per US dollar.
type Rates struct {
	PKRPerUSD decimal.Decimal
	EURPerUSD decimal.Decimal
}

func DefaultRates() Rates {
	return Rates{
		PKRPerUSD: decimal.NewFromInt(280),
		EURPerUSD: decimal.RequireFromString("0.92"),
	}
}

type PricingService struct {
	rates Rates
}

func NewPricingService(rates Rates) *PricingService {
	defaults := DefaultRates()
	if !rates.PKRPerUSD.IsPositive() {
		rates.PKRPerUSD = defaults.PKRPerUSD
	}
	if !rates.EURPerUSD.IsPositive() {
		rates.EURPerUSD = defaults.EURPerUSD
	}
	return &PricingService{rates: rates}
}

// MonthlyPriceUSDCents returns the tier price for a family size.
func MonthlyPriceUSDCents(childCount int) (int64, error) {
	if childCount <= 0 {
		return 0, ErrInvalidChildCount
	}
	for _, t := range monthlyTiers {
		if childCount <= t.maxChildren {
			return t.monthlyUSDCents, nil
		}
	}
	return largeFamilyUSDCents, nil
}

// BuildPricing computes the full quote for a family size, plan and currency.
func (s *PricingService) BuildPricing(childCount int, planType pricing.PlanType, currency pricing.Currency) (*pricing.Breakdown, error) {
	if !planType.Valid() {
		return nil, xerrors.Newf(xerrors.KindValidation, "unsupported plan type %q", planType)
	}
	if _, ok := minorUnits[currency]; !ok {
		return nil, xerrors.ErrUnsupportedCurrency
	}

	baseMonthlyUSD, err := MonthlyPriceUSDCents(childCount)
	if err != nil {
		return nil, err
	}

	baseYearlyUSD := baseMonthlyUSD * 12
	yearlyDiscountUSD := decimal.NewFromInt(baseYearlyUSD).
		Mul(decimal.NewFromInt(YearlyDiscountPercentage)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	yearlyFinalUSD := baseYearlyUSD - yearlyDiscountUSD

	monthly := s.Convert(baseMonthlyUSD, currency)
	yearly := s.Convert(yearlyFinalUSD, currency)
	savings := s.Convert(yearlyDiscountUSD, currency)

	b := &pricing.Breakdown{
		ChildCount:       childCount,
		PlanType:         planType,
		Currency:         currency,
		MonthlyPrice:     monthly,
		YearlyPrice:      yearly,
		BaseMonthlyPrice: monthly,
		BaseYearlyPrice:  s.Convert(baseYearlyUSD, currency),
		SavingsAmount:    savings,
		FinalAmount:      monthly,
		PerChildMonthly:  perChild(monthly, childCount),
		PerChildYearly:   perChild(yearly, childCount),
	}

	if planType == pricing.PlanYearly {
		b.DiscountPercentage = YearlyDiscountPercentage
		b.DiscountAmount = savings
		b.FinalAmount = yearly
	}

	return b, nil
}

// Convert turns USD cents into minor units of currency, rounding half away
// from zero. Every amount in a quote goes through here.
func (s *PricingService) Convert(usdCents int64, currency pricing.Currency) int64 {
	if currency == pricing.CurrencyUSD {
		return usdCents
	}

	rate := s.rates.PKRPerUSD
	if currency == pricing.CurrencyEUR {
		rate = s.rates.EURPerUSD
	}

	return decimal.NewFromInt(usdCents).
		Div(decimal.NewFromInt(100)).
		Mul(rate).
		Mul(decimal.NewFromInt(minorUnits[currency])).
		Round(0).
		IntPart()
}

func perChild(amount int64, childCount int) int64 {
	return decimal.NewFromInt(amount).
		Div(decimal.NewFromInt(int64(childCount))).
		Round(0).
		IntPart()
}
