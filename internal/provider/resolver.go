package provider

import (
	"fmt"

	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/pricing"
	xerrors "billing-service/internal/pkg/errors"
)

// Resolver picks the gateway for a currency.
type Resolver struct {
	defaultPKR payment.Gateway
}

// NewResolver builds a resolver whose PKR fallback is defaultPKR. Anything
// other than a PKR wallet falls back to JazzCash.
func NewResolver(defaultPKR payment.Gateway) *Resolver {
	if !isWallet(defaultPKR) {
		defaultPKR = payment.GatewayJazzCash
	}
	return &Resolver{defaultPKR: defaultPKR}
}

// ResolveGateway routes USD and EUR to Payoneer and PKR to the requested
// wallet, or the default wallet when none was requested.
func (r *Resolver) ResolveGateway(currency pricing.Currency, requested payment.Gateway) (payment.Gateway, error) {
	switch currency {
	case pricing.CurrencyUSD, pricing.CurrencyEUR:
		return payment.GatewayPayoneer, nil
	case pricing.CurrencyPKR:
		if isWallet(requested) {
			return requested, nil
		}
		return r.defaultPKR, nil
	default:
		return "", fmt.Errorf("%w: %s", xerrors.ErrUnsupportedCurrency, currency)
	}
}

func isWallet(g payment.Gateway) bool {
	return g == payment.GatewayJazzCash || g == payment.GatewayEasyPaisa
}
