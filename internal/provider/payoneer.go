package provider

import (
	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/pricing"
)

type PayoneerConfig struct {
	Config
	APIKey string
}

// PayoneerAdapter is the international card/wallet gateway (USD and EUR).
type PayoneerAdapter struct {
	httpGateway
}

type payoneerWebhook struct {
	webhookFields
}

func NewPayoneerAdapter(cfg PayoneerConfig) *PayoneerAdapter {
	return &PayoneerAdapter{
		httpGateway: newHTTPGateway(
			payment.GatewayPayoneer,
			"Payoneer",
			cfg.Config,
			[]pricing.Currency{pricing.CurrencyUSD, pricing.CurrencyEUR},
			false,
			map[string]string{"Authorization": "Bearer " + cfg.APIKey},
		),
	}
}

func (a *PayoneerAdapter) ParseWebhook(rawBody []byte) (*payment.WebhookEvent, error) {
	var body payoneerWebhook
	if err := decodeWebhook(a.gateway, rawBody, &body); err != nil {
		return nil, err
	}
	return body.normalize(a.gateway)
}
