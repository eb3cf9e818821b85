package provider

import (
	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/pricing"
)

type EasyPaisaConfig struct {
	Config
	MerchantID string
	APIKey     string
}

// EasyPaisaAdapter is a PKR mobile wallet gateway.
type EasyPaisaAdapter struct {
	httpGateway
}

type easyPaisaWebhook struct {
	webhookFields
}

func NewEasyPaisaAdapter(cfg EasyPaisaConfig) *EasyPaisaAdapter {
	return &EasyPaisaAdapter{
		httpGateway: newHTTPGateway(
			payment.GatewayEasyPaisa,
			"EasyPaisa",
			cfg.Config,
			[]pricing.Currency{pricing.CurrencyPKR},
			true,
			map[string]string{
				"X-Merchant-Id": cfg.MerchantID,
				"X-Api-Key":     cfg.APIKey,
			},
		),
	}
}

func (a *EasyPaisaAdapter) ParseWebhook(rawBody []byte) (*payment.WebhookEvent, error) {
	var body easyPaisaWebhook
	if err := decodeWebhook(a.gateway, rawBody, &body); err != nil {
		return nil, err
	}
	return body.normalize(a.gateway)
}
