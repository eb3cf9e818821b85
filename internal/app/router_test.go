package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/payment"
	orphanHandler "billing-service/internal/handlers/orphan"
	paymentHandler "billing-service/internal/handlers/payment"
	pricingHandler "billing-service/internal/handlers/pricing"
	subscriptionHandler "billing-service/internal/handlers/subscription"
	"billing-service/internal/middleware"
	"billing-service/internal/pkg/jwt/jwttest"
	"billing-service/internal/pkg/metrics"
	"billing-service/internal/pkg/response"
	"billing-service/internal/pkg/storage"
	"billing-service/internal/pkg/throttle"
	"billing-service/internal/provider"
	"billing-service/internal/repository/memory"
	orphanUsecase "billing-service/internal/service/orphan"
	paymentUsecase "billing-service/internal/service/payment"
	pricingUsecase "billing-service/internal/service/pricing"
	subscriptionUsecase "billing-service/internal/service/subscription"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const payoneerSecret = "po-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	engine *gin.Engine
	store  *memory.Store
	issuer *jwttest.Issuer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := zap.NewNop()

	var hits atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		_, _ = fmt.Fprintf(w, `{"id":"ext_%d","redirect_url":"https://pay.example/ext_%d"}`, n, n)
	}))
	t.Cleanup(gateway.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	limiter := throttle.NewLimiter(client, "test")

	docs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	store := memory.NewStore()
	m := metrics.New()
	registry := provider.NewRegistry(
		provider.NewPayoneerAdapter(provider.PayoneerConfig{Config: provider.Config{APIBase: gateway.URL, WebhookSecret: payoneerSecret}}),
		provider.NewJazzCashAdapter(provider.JazzCashConfig{Config: provider.Config{APIBase: gateway.URL, WebhookSecret: "jc"}}),
		provider.NewEasyPaisaAdapter(provider.EasyPaisaConfig{Config: provider.Config{APIBase: gateway.URL, WebhookSecret: "ep"}}),
	)

	pricingService := pricingUsecase.NewPricingService(pricingUsecase.DefaultRates())
	subscriptionService := subscriptionUsecase.NewSubscriptionService(store, pricingService, m, subscriptionUsecase.Config{}, logger)
	paymentService := paymentUsecase.NewPaymentService(store, registry, provider.NewResolver(payment.GatewayJazzCash), limiter, docs, m,
		paymentUsecase.Config{BaseURL: "https://api.example.com"}, logger)
	orphanService := orphanUsecase.NewOrphanService(store, docs, limiter, m, orphanUsecase.Config{}, logger)

	issuer := jwttest.NewIssuer(t)
	engine := gin.New()
	engine.Use(middleware.RecoveryMiddleware(logger))
	SetupRouter(engine, logger, &Handlers{
		PricingHandler:      pricingHandler.NewPricingHandler(pricingService),
		SubscriptionHandler: subscriptionHandler.NewSubscriptionHandler(subscriptionService),
		PaymentHandler:      paymentHandler.NewPaymentHandler(paymentService),
		WebhookHandler:      paymentHandler.NewWebhookHandler(paymentUsecase.NewReconciler(store, registry, m, logger), logger),
		OrphanHandler:       orphanHandler.NewOrphanHandler(orphanService),
		AuthMiddleware:      middleware.NewAuthMiddleware(issuer.Verifier()),
		AccessGuard:         subscriptionService,
		Limiter:             limiter,
		Metrics:             m.Handler(),
		WebhookRateLimit:    100,
		WebhookRateWindow:   time.Minute,
	})

	return &testApp{engine: engine, store: store, issuer: issuer}
}

// family seeds an account with n children and returns the account and first child.
func (a *testApp) family(n int, country string) (uuid.UUID, uuid.UUID) {
	accountID := uuid.New()
	a.store.AddAccount(account.Account{ID: accountID, Email: "guardian@example.com", Country: country})
	var first uuid.UUID
	for i := 0; i < n; i++ {
		id := uuid.New()
		if i == 0 {
			first = id
		}
		a.store.AddChild(account.Child{ID: id, AccountID: accountID, Name: fmt.Sprintf("child-%d", i)})
	}
	return accountID, first
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var reader *bytes.Reader
	if raw, ok := body.([]byte); ok {
		reader = bytes.NewReader(raw)
	} else if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env response.Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func dataField(t *testing.T, env response.Response, key string) interface{} {
	t.Helper()
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", env.Data)
	return data[key]
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestApp(t)

	w, _ := a.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = a.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestPricingQuote(t *testing.T) {
	a := newTestApp(t)

	w, env := a.do(t, http.MethodPost, "/api/v1/pricing/quote", "", map[string]interface{}{
		"child_count": 3, "plan_type": "yearly", "currency": "usd",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 71400, dataField(t, env, "final_amount"))
	assert.EqualValues(t, 15, dataField(t, env, "discount_percentage"))

	w, env = a.do(t, http.MethodPost, "/api/v1/pricing/quote", "", map[string]interface{}{
		"child_count": 0, "plan_type": "monthly", "currency": "USD",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", env.Code)

	w, _ = a.do(t, http.MethodPost, "/api/v1/pricing/quote", "", map[string]interface{}{
		"child_count": 1, "plan_type": "monthly", "currency": "GBP",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutesRequireToken(t *testing.T) {
	a := newTestApp(t)

	for _, path := range []string{"/api/v1/subscription", "/api/v1/payments", "/api/v1/subscription/access"} {
		w, _ := a.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w, _ := a.do(t, http.MethodGet, "/api/v1/admin/orphan/verifications", a.issuer.Token(t, uuid.New(), "guardian"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTrialAndAIQuota(t *testing.T) {
	a := newTestApp(t)
	accountID, _ := a.family(1, "")
	token := a.issuer.Token(t, accountID)

	w, env := a.do(t, http.MethodGet, "/api/v1/subscription/access?feature=read", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "subscription_required", env.Code)

	w, _ = a.do(t, http.MethodPost, "/api/v1/subscription/trial", token, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = a.do(t, http.MethodGet, "/api/v1/subscription/trial", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", dataField(t, env, "status"))

	w, _ = a.do(t, http.MethodPost, "/api/v1/subscription/trial", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	for i := 0; i < subscriptionUsecase.DefaultMaxAICallsTrial; i++ {
		w, _ = a.do(t, http.MethodPost, "/api/v1/usage/ai", token, map[string]string{"kind": "homework_help"})
		require.Equal(t, http.StatusCreated, w.Code, "call %d", i+1)
	}

	w, env = a.do(t, http.MethodPost, "/api/v1/usage/ai", token, map[string]string{"kind": "homework_help"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "quota_exceeded", env.Code)

	w, _ = a.do(t, http.MethodGet, "/api/v1/subscription/access?feature=read", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentAndWebhookFlow(t *testing.T) {
	a := newTestApp(t)
	accountID, _ := a.family(1, "")
	token := a.issuer.Token(t, accountID)

	w, env := a.do(t, http.MethodPost, "/api/v1/subscription", token, map[string]string{"plan_type": "monthly"})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)

	w, env = a.do(t, http.MethodPost, "/api/v1/payments", token, map[string]interface{}{
		"amount": 2999, "currency": "USD", "return_url": "https://app.example.com/return",
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	assert.Equal(t, "payoneer", dataField(t, env, "gateway"))
	externalID := dataField(t, env, "external_id").(string)
	txID := int64(dataField(t, env, "transaction_id").(float64))

	body, _ := json.Marshal(map[string]interface{}{
		"id": externalID, "status": "success", "amount": 2999, "currency": "USD",
	})

	deliver := func(signature string) (*httptest.ResponseRecorder, response.Response) {
		return a.deliverPayoneer(t, body, signature)
	}

	w, _ = deliver("sha256=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = deliver(provider.Sign(payoneerSecret, body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "applied", dataField(t, env, "outcome"))

	w, env = deliver(provider.Sign(payoneerSecret, body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", dataField(t, env, "outcome"))

	w, env = a.do(t, http.MethodGet, "/api/v1/subscription", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", dataField(t, env, "status"))
	assert.Equal(t, "paid", dataField(t, env, "type"))

	w, env = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/payments/%d", txID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "succeeded", dataField(t, env, "status"))

	// another account cannot read it
	w, _ = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/payments/%d", txID), a.issuer.Token(t, uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = a.do(t, http.MethodGet, "/api/v1/payments?status=succeeded", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.Data, 1)
}

func (a *testApp) deliverPayoneer(t *testing.T, body []byte, signature string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhooks/payoneer", bytes.NewReader(body))
	req.Header.Set("x-payoneer-signature", signature)
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	var out response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestWebhookUnrecognizedStatusStaysPending(t *testing.T) {
	a := newTestApp(t)
	accountID, _ := a.family(1, "")
	token := a.issuer.Token(t, accountID)

	w, env := a.do(t, http.MethodPost, "/api/v1/subscription", token, map[string]string{"plan_type": "monthly"})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)

	w, env = a.do(t, http.MethodPost, "/api/v1/payments", token, map[string]interface{}{
		"amount": 2999, "currency": "USD", "return_url": "https://app.example.com/return",
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	externalID := dataField(t, env, "external_id").(string)
	txID := int64(dataField(t, env, "transaction_id").(float64))

	body, _ := json.Marshal(map[string]interface{}{
		"id": externalID, "status": "completed", "amount": 2999, "currency": "USD",
	})
	w, env = a.deliverPayoneer(t, body, provider.Sign(payoneerSecret, body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", dataField(t, env, "outcome"))

	w, env = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/payments/%d", txID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", dataField(t, env, "status"))

	w, env = a.do(t, http.MethodGet, "/api/v1/subscription", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", dataField(t, env, "status"))
}

func TestWebhookEdgeResponses(t *testing.T) {
	a := newTestApp(t)

	w, _ := a.do(t, http.MethodPost, "/api/v1/payments/webhooks/stripe", "", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	garbage := []byte(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhooks/payoneer", bytes.NewReader(garbage))
	req.Header.Set("x-payoneer-signature", provider.Sign(payoneerSecret, garbage))
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unknown, _ := json.Marshal(map[string]interface{}{"id": "ext_missing", "status": "success", "amount": 1, "currency": "USD"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhooks/payoneer", bytes.NewReader(unknown))
	req.Header.Set("x-payoneer-signature", provider.Sign(payoneerSecret, unknown))
	rec = httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unknown"`)
}

func TestOrphanWorkflowOverHTTP(t *testing.T) {
	a := newTestApp(t)
	accountID, childID := a.family(1, "Pakistan")
	guardian := a.issuer.Token(t, accountID, "guardian")
	adminID := uuid.New()
	admin := a.issuer.Token(t, adminID, "admin")

	pdf := []byte("%PDF-1.4 certificate")
	w, env := a.do(t, http.MethodPost, "/api/v1/orphan/verifications", guardian, map[string]interface{}{
		"child_id":        childID,
		"document_type":   "death_certificate",
		"document_name":   "certificate.pdf",
		"document_base64": "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf),
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	id := int64(dataField(t, env, "id").(float64))

	w, env = a.do(t, http.MethodGet, "/api/v1/admin/orphan/verifications", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.Data, 1)

	w, _ = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/orphan/verifications/%d/document", id), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, pdf, w.Body.Bytes())

	w, env = a.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/admin/orphan/verifications/%d", id), admin, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, w.Code, env.Error)

	w, env = a.do(t, http.MethodGet, "/api/v1/orphan/children/"+childID.String(), guardian, nil)
	require.Equal(t, http.StatusOK, w.Code)
	child := dataField(t, env, "child").(map[string]interface{})
	assert.Equal(t, true, child["is_orphan"])

	// the override grants access and blocks payments
	w, _ = a.do(t, http.MethodGet, "/api/v1/subscription/access?feature=ai", guardian, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = a.do(t, http.MethodPost, "/api/v1/payments", guardian, map[string]interface{}{
		"amount": 8397, "currency": "PKR", "return_url": "https://app.example.com/return",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", env.Code)

	// another guardian cannot see the child
	w, _ = a.do(t, http.MethodGet, "/api/v1/orphan/children/"+childID.String(), a.issuer.Token(t, uuid.New()), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/orphan/verifications/%d/revoke", id), admin, map[string]string{"reason": "document forged"})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	assert.Equal(t, "rejected", dataField(t, env, "status"))

	w, env = a.do(t, http.MethodGet, "/api/v1/subscription/access?feature=read", guardian, nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "subscription_inactive", env.Code)
}

func TestManualPaymentReviewOverHTTP(t *testing.T) {
	a := newTestApp(t)
	accountID, _ := a.family(1, "Pakistan")
	guardian := a.issuer.Token(t, accountID, "guardian")
	admin := a.issuer.Token(t, uuid.New(), "admin")

	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	w, env := a.do(t, http.MethodPost, "/api/v1/payments/pkr", guardian, map[string]interface{}{
		"amount":             8397,
		"payment_method":     "jazzcash",
		"transfer_reference": "JC-55120",
		"receipt_name":       "receipt.png",
		"receipt_base64":     "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	assert.Equal(t, "manual", dataField(t, env, "gateway"))
	id := int64(dataField(t, env, "id").(float64))

	w, _ = a.do(t, http.MethodPost, "/api/v1/payments/pkr", guardian, map[string]interface{}{
		"amount": 8397, "payment_method": "cash",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(t, http.MethodGet, "/api/v1/admin/payments/pkr", guardian, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = a.do(t, http.MethodGet, "/api/v1/admin/payments/pkr", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.Data, 1)

	w, _ = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/payments/pkr/%d/receipt", id), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, png, w.Body.Bytes())

	path := fmt.Sprintf("/api/v1/admin/payments/pkr/%d", id)
	w, _ = a.do(t, http.MethodPatch, path, admin, map[string]string{"status": "refunded"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = a.do(t, http.MethodPatch, path, admin, map[string]string{"status": "succeeded"})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	assert.Equal(t, "succeeded", dataField(t, env, "status"))

	w, env = a.do(t, http.MethodPatch, path, admin, map[string]string{"status": "failed"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", env.Code)

	w, _ = a.do(t, http.MethodGet, "/api/v1/subscription/access?feature=read", guardian, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = a.do(t, http.MethodGet, "/api/v1/admin/payments/pkr", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.Data)
}

func TestAdminSubscriptionManagementOverHTTP(t *testing.T) {
	a := newTestApp(t)
	accountID, _ := a.family(1, "Pakistan")
	guardian := a.issuer.Token(t, accountID, "guardian")
	admin := a.issuer.Token(t, uuid.New(), "admin")

	w, env := a.do(t, http.MethodPost, "/api/v1/payments/pkr", guardian, map[string]interface{}{
		"amount": 8397, "payment_method": "bank_transfer",
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	id := int64(dataField(t, env, "id").(float64))
	w, env = a.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/admin/payments/pkr/%d", id), admin, map[string]string{"status": "succeeded"})
	require.Equal(t, http.StatusOK, w.Code, env.Error)

	w, _ = a.do(t, http.MethodGet, "/api/v1/admin/subscriptions", guardian, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = a.do(t, http.MethodGet, "/api/v1/admin/subscriptions", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, dataField(t, env, "subscriptions"), 1)
	assert.NotEmpty(t, dataField(t, env, "tier_summary"))

	subPath := "/api/v1/admin/subscriptions/" + accountID.String()
	w, _ = a.do(t, http.MethodPatch, "/api/v1/admin/subscriptions/not-a-uuid", admin, map[string]int{"final_amount": 7000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(t, http.MethodPatch, subPath, admin, map[string]int{"discount_percentage": 150})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = a.do(t, http.MethodPatch, subPath, admin, map[string]interface{}{"final_amount": 7000, "reason": "loyalty"})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	assert.Equal(t, float64(7000), dataField(t, env, "final_amount"))

	refundPath := subPath + "/refund"
	w, env = a.do(t, http.MethodPost, refundPath, admin, map[string]string{"reason": "requested by guardian"})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	assert.Equal(t, "refunded", dataField(t, env, "status"))
	assert.Equal(t, float64(8397), dataField(t, env, "amount"))

	w, env = a.do(t, http.MethodPost, refundPath, admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", env.Code)

	sub, err := a.store.Subscriptions().FindByAccount(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", string(sub.Status))
}
