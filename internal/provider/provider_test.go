package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/pricing"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGateway(t *testing.T, status int, reply string, seen func(r *http.Request, body createPayload)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body createPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if seen != nil {
			seen(r, body)
		}

		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func createReq(currency pricing.Currency) *CreateRequest {
	return &CreateRequest{
		Amount:        2999,
		Currency:      currency,
		ReferenceID:   "acct_01J",
		ReturnURL:     "https://app.example.com/billing/return",
		WebhookURL:    "https://api.example.com/api/v1/payments/webhooks/x",
		CustomerEmail: "guardian@example.com",
		CustomerPhone: "+923001234567",
	}
}

func TestPayoneerCreatePayment(t *testing.T) {
	srv := fakeGateway(t, http.StatusOK, `{"id":"po_123","redirect_url":"https://pay.example/po_123","metadata":{"k":"v"}}`,
		func(r *http.Request, body createPayload) {
			assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
			assert.Equal(t, int64(2999), body.Amount)
			assert.Equal(t, "USD", body.Currency)
			assert.Equal(t, "acct_01J", body.ReferenceID)
			assert.Equal(t, "guardian@example.com", body.CustomerEmail)
			assert.Empty(t, body.CustomerPhone, "payoneer does not receive a phone")
		})

	a := NewPayoneerAdapter(PayoneerConfig{Config: Config{APIBase: srv.URL + "/"}, APIKey: "key-1"})
	res, err := a.CreatePayment(context.Background(), createReq(pricing.CurrencyUSD))

	require.NoError(t, err)
	assert.Equal(t, "po_123", res.ExternalID)
	assert.Equal(t, "https://pay.example/po_123", res.RedirectURL)
	assert.Equal(t, "v", res.Metadata["k"])
}

func TestWalletCreatePaymentHeaders(t *testing.T) {
	t.Run("jazzcash", func(t *testing.T) {
		srv := fakeGateway(t, http.StatusCreated, `{"id":"jc_1","redirect_url":"https://jc.example/1"}`,
			func(r *http.Request, body createPayload) {
				assert.Equal(t, "m-1", r.Header.Get("X-Merchant-Id"))
				assert.Equal(t, "secret-pass", r.Header.Get("X-Merchant-Password"))
				assert.Equal(t, "PKR", body.Currency)
				assert.Equal(t, "+923001234567", body.CustomerPhone)
			})
		a := NewJazzCashAdapter(JazzCashConfig{Config: Config{APIBase: srv.URL}, MerchantID: "m-1", Password: "secret-pass"})
		_, err := a.CreatePayment(context.Background(), createReq(pricing.CurrencyPKR))
		require.NoError(t, err)
	})

	t.Run("easypaisa", func(t *testing.T) {
		srv := fakeGateway(t, http.StatusOK, `{"id":"ep_1","redirect_url":"https://ep.example/1"}`,
			func(r *http.Request, body createPayload) {
				assert.Equal(t, "m-2", r.Header.Get("X-Merchant-Id"))
				assert.Equal(t, "api-key", r.Header.Get("X-Api-Key"))
			})
		a := NewEasyPaisaAdapter(EasyPaisaConfig{Config: Config{APIBase: srv.URL}, MerchantID: "m-2", APIKey: "api-key"})
		_, err := a.CreatePayment(context.Background(), createReq(pricing.CurrencyPKR))
		require.NoError(t, err)
	})
}

func TestCreatePaymentFailureIsProviderError(t *testing.T) {
	srv := fakeGateway(t, http.StatusUnprocessableEntity, "merchant disabled", nil)

	a := NewJazzCashAdapter(JazzCashConfig{Config: Config{APIBase: srv.URL}})
	res, err := a.CreatePayment(context.Background(), createReq(pricing.CurrencyPKR))

	assert.Nil(t, res)
	require.Error(t, err)
	assert.Equal(t, xerrors.KindProviderFailure, xerrors.KindOf(err))
	assert.Contains(t, err.Error(), "JazzCash create failed")
	assert.Contains(t, err.Error(), "merchant disabled")
}

func TestCreatePaymentRejectsForeignCurrency(t *testing.T) {
	a := NewEasyPaisaAdapter(EasyPaisaConfig{Config: Config{APIBase: "http://127.0.0.1:0"}})

	_, err := a.CreatePayment(context.Background(), createReq(pricing.CurrencyUSD))
	assert.ErrorIs(t, err, xerrors.ErrUnsupportedCurrency)
}

func TestCreatePaymentIncompleteReply(t *testing.T) {
	srv := fakeGateway(t, http.StatusOK, `{"id":"po_9"}`, nil)

	a := NewPayoneerAdapter(PayoneerConfig{Config: Config{APIBase: srv.URL}})
	_, err := a.CreatePayment(context.Background(), createReq(pricing.CurrencyEUR))
	assert.Equal(t, xerrors.KindProviderFailure, xerrors.KindOf(err))
}

func TestVerifyWebhook(t *testing.T) {
	a := NewPayoneerAdapter(PayoneerConfig{Config: Config{WebhookSecret: "whsec"}})
	body := []byte(`{"id":"po_123","status":"success","amount":2999,"currency":"USD"}`)
	sig := Sign("whsec", body)

	assert.NoError(t, a.VerifyWebhook(body, sig))
	assert.NoError(t, a.VerifyWebhook(body, sig[len("sha256="):]), "prefix is optional")
	assert.ErrorIs(t, a.VerifyWebhook(body, ""), xerrors.ErrInvalidSignature)
	assert.ErrorIs(t, a.VerifyWebhook(body, Sign("other", body)), xerrors.ErrInvalidSignature)
	assert.Equal(t, "x-payoneer-signature", a.SignatureHeader())
}

func TestVerifyWebhookDetectsEverySingleByteChange(t *testing.T) {
	a := NewJazzCashAdapter(JazzCashConfig{Config: Config{WebhookSecret: "s3cr3t"}})
	body := []byte(`{"id":"jc_1","status":"succeeded","amount":8397,"currency":"PKR"}`)
	sig := Sign("s3cr3t", body)

	for i := range body {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		assert.ErrorIs(t, a.VerifyWebhook(tampered, sig), xerrors.ErrInvalidSignature, "byte %d", i)
	}
}

func TestVerifyWebhookWithoutSecret(t *testing.T) {
	a := NewEasyPaisaAdapter(EasyPaisaConfig{})
	body := []byte(`{}`)

	err := a.VerifyWebhook(body, Sign("", body))
	require.Error(t, err)
	assert.NotErrorIs(t, err, xerrors.ErrInvalidSignature)
	assert.Equal(t, xerrors.KindInternal, xerrors.KindOf(err))
}

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name string
		body string
		want payment.WebhookEvent
	}{
		{
			name: "success word",
			body: `{"id":"po_1","status":"SUCCESS","amount":2999,"currency":"usd","reference_id":"r1","metadata":{"a":1}}`,
			want: payment.WebhookEvent{ExternalID: "po_1", Status: payment.StatusSucceeded, Amount: 2999, Currency: pricing.CurrencyUSD, ReferenceID: "r1", Metadata: map[string]interface{}{"a": float64(1)}},
		},
		{
			name: "transaction id fallback and string amount",
			body: `{"transaction_id":"po_2","status":"failed","amount":"1500","currency":"EUR"}`,
			want: payment.WebhookEvent{ExternalID: "po_2", Status: payment.StatusFailed, Amount: 1500, Currency: pricing.CurrencyEUR},
		},
		{
			name: "unknown status is pending",
			body: `{"id":"po_3","status":"processing","amount":10,"currency":"USD"}`,
			want: payment.WebhookEvent{ExternalID: "po_3", Status: payment.StatusPending, Amount: 10, Currency: pricing.CurrencyUSD},
		},
	}

	a := NewPayoneerAdapter(PayoneerConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.ParseWebhook([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseWebhookRejectsBadPayloads(t *testing.T) {
	a := NewEasyPaisaAdapter(EasyPaisaConfig{})

	for _, body := range []string{
		`not json`,
		`{"status":"success","amount":1}`,
		`{"id":"ep_1","status":"success","amount":12.5,"currency":"PKR"}`,
	} {
		_, err := a.ParseWebhook([]byte(body))
		assert.Equal(t, xerrors.KindValidation, xerrors.KindOf(err), body)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewPayoneerAdapter(PayoneerConfig{}), NewJazzCashAdapter(JazzCashConfig{}))

	a, err := r.Get(payment.GatewayJazzCash)
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayJazzCash, a.Gateway())
	assert.True(t, Supports(a, pricing.CurrencyPKR))
	assert.False(t, Supports(a, pricing.CurrencyUSD))

	_, err = r.Get(payment.GatewayEasyPaisa)
	assert.ErrorIs(t, err, xerrors.ErrUnsupportedGateway)
}
