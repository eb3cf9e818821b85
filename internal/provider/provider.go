// internal/provider/provider.go
package provider

import (
	"context"
	"fmt"
	"slices"

	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/pricing"
	xerrors "billing-service/internal/pkg/errors"
)

// CreateRequest is the outbound payment intent sent to a gateway. Amount is in
// minor units of Currency.
type CreateRequest struct {
	Amount        int64
	Currency      pricing.Currency
	ReferenceID   string
	ReturnURL     string
	WebhookURL    string
	CustomerEmail string
	CustomerPhone string
}

type CreateResponse struct {
	ExternalID  string
	RedirectURL string
	Metadata    map[string]interface{}
}

// Adapter binds one gateway's wire format and webhook signature scheme.
type Adapter interface {
	Gateway() payment.Gateway
	Currencies() []pricing.Currency

	CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResponse, error)

	// VerifyWebhook returns xerrors.ErrInvalidSignature when the header does
	// not match the HMAC of rawBody.
	VerifyWebhook(rawBody []byte, signatureHeader string) error

	// ParseWebhook decodes the gateway payload into the normalized event.
	ParseWebhook(rawBody []byte) (*payment.WebhookEvent, error)

	// SignatureHeader names the request header carrying the signature.
	SignatureHeader() string
}

// Supports reports whether the adapter can charge in currency.
func Supports(a Adapter, currency pricing.Currency) bool {
	return slices.Contains(a.Currencies(), currency)
}

// Registry looks adapters up by gateway.
type Registry struct {
	adapters map[payment.Gateway]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[payment.Gateway]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Gateway()] = a
	}
	return r
}

func (r *Registry) Get(gateway payment.Gateway) (Adapter, error) {
	a, ok := r.adapters[gateway]
	if !ok {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrUnsupportedGateway, gateway)
	}
	return a, nil
}
