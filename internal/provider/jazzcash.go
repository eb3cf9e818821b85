package provider

import (
	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/pricing"
)

type JazzCashConfig struct {
	Config
	MerchantID string
	Password   string
}

// JazzCashAdapter is a PKR mobile wallet gateway.
type JazzCashAdapter struct {
	httpGateway
}

type jazzCashWebhook struct {
	webhookFields
}

func NewJazzCashAdapter(cfg JazzCashConfig) *JazzCashAdapter {
	return &JazzCashAdapter{
		httpGateway: newHTTPGateway(
			payment.GatewayJazzCash,
			"JazzCash",
			cfg.Config,
			[]pricing.Currency{pricing.CurrencyPKR},
			true,
			map[string]string{
				"X-Merchant-Id":       cfg.MerchantID,
				"X-Merchant-Password": cfg.Password,
			},
		),
	}
}

func (a *JazzCashAdapter) ParseWebhook(rawBody []byte) (*payment.WebhookEvent, error) {
	var body jazzCashWebhook
	if err := decodeWebhook(a.gateway, rawBody, &body); err != nil {
		return nil, err
	}
	return body.normalize(a.gateway)
}
