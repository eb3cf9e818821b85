package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/pricing"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20
)

// Config holds the connection settings shared by every gateway.
type Config struct {
	APIBase       string
	WebhookSecret string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

func (c Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// httpGateway implements the outbound half of an adapter: POST {base}/payments.
type httpGateway struct {
	gateway    payment.Gateway
	label      string
	baseURL    string
	secret     string
	currencies []pricing.Currency
	sendPhone  bool
	headers    map[string]string
	client     *http.Client
}

func newHTTPGateway(gateway payment.Gateway, label string, cfg Config, currencies []pricing.Currency, sendPhone bool, headers map[string]string) httpGateway {
	return httpGateway{
		gateway:    gateway,
		label:      label,
		baseURL:    strings.TrimRight(cfg.APIBase, "/"),
		secret:     cfg.WebhookSecret,
		currencies: currencies,
		sendPhone:  sendPhone,
		headers:    headers,
		client:     cfg.client(),
	}
}

type createPayload struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	ReferenceID   string `json:"reference_id"`
	ReturnURL     string `json:"return_url"`
	WebhookURL    string `json:"webhook_url"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

type createReply struct {
	ID          string                 `json:"id"`
	RedirectURL string                 `json:"redirect_url"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (g *httpGateway) Gateway() payment.Gateway {
	return g.gateway
}

func (g *httpGateway) Currencies() []pricing.Currency {
	return g.currencies
}

func (g *httpGateway) SignatureHeader() string {
	return "x-" + string(g.gateway) + "-signature"
}

func (g *httpGateway) VerifyWebhook(rawBody []byte, signatureHeader string) error {
	return verifySignature(string(g.gateway), g.secret, rawBody, signatureHeader)
}

func (g *httpGateway) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	if !slices.Contains(g.currencies, req.Currency) {
		return nil, fmt.Errorf("%w: %s does not accept %s", xerrors.ErrUnsupportedCurrency, g.gateway, req.Currency)
	}

	payload := createPayload{
		Amount:        req.Amount,
		Currency:      string(req.Currency),
		ReferenceID:   req.ReferenceID,
		ReturnURL:     req.ReturnURL,
		WebhookURL:    req.WebhookURL,
		CustomerEmail: req.CustomerEmail,
	}
	if g.sendPhone {
		payload.CustomerPhone = req.CustomerPhone
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", g.gateway, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", g.gateway, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range g.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, xerrors.Tag(xerrors.KindProviderFailure, err, g.label+" create failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, xerrors.Tag(xerrors.KindProviderFailure, err, g.label+" create failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, xerrors.Tag(xerrors.KindProviderFailure,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			g.label+" create failed")
	}

	var reply createReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, xerrors.Tag(xerrors.KindProviderFailure, err, g.label+" returned an unreadable response")
	}
	if reply.ID == "" || reply.RedirectURL == "" {
		return nil, xerrors.New(xerrors.KindProviderFailure, g.label+" response is missing id or redirect_url")
	}

	return &CreateResponse{
		ExternalID:  reply.ID,
		RedirectURL: reply.RedirectURL,
		Metadata:    reply.Metadata,
	}, nil
}

// webhookFields is the callback body shape the gateways currently share.
// Each adapter decodes into its own type embedding it.
type webhookFields struct {
	ID            string                 `json:"id"`
	TransactionID string                 `json:"transaction_id"`
	Status        string                 `json:"status"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      string                 `json:"currency"`
	ReferenceID   string                 `json:"reference_id"`
	Metadata      map[string]interface{} `json:"metadata"`
}

func (f *webhookFields) normalize(gateway payment.Gateway) (*payment.WebhookEvent, error) {
	externalID := f.ID
	if externalID == "" {
		externalID = f.TransactionID
	}
	if externalID == "" {
		return nil, xerrors.Newf(xerrors.KindValidation, "%s webhook has no payment id", gateway)
	}
	if !f.Amount.IsInteger() {
		return nil, xerrors.Newf(xerrors.KindValidation, "%s webhook amount %s is not in minor units", gateway, f.Amount)
	}

	return &payment.WebhookEvent{
		ExternalID:  externalID,
		Status:      NormalizeStatus(f.Status),
		Amount:      f.Amount.IntPart(),
		Currency:    pricing.Currency(strings.ToUpper(strings.TrimSpace(f.Currency))),
		ReferenceID: f.ReferenceID,
		Metadata:    f.Metadata,
	}, nil
}

func decodeWebhook(gateway payment.Gateway, rawBody []byte, dst interface{}) error {
	if err := json.Unmarshal(rawBody, dst); err != nil {
		return xerrors.Tag(xerrors.KindValidation, err, fmt.Sprintf("invalid %s webhook payload", gateway))
	}
	return nil
}

// NormalizeStatus maps gateway status words onto the transaction vocabulary.
// Anything unrecognized is pending.
func NormalizeStatus(raw string) payment.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "succeeded":
		return payment.StatusSucceeded
	case "failed":
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}
