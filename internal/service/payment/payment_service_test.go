package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"billing-service/internal/domain/event"
	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/subscription"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/metrics"
	"billing-service/internal/pkg/storage"
	"billing-service/internal/pkg/throttle"
	"billing-service/internal/provider"
	"billing-service/internal/repository/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	payoneerSecret  = "po-secret"
	jazzcashSecret  = "jc-secret"
	easypaisaSecret = "ep-secret"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	docs    *storage.FSStore
	svc     *PaymentService
	rec     *Reconciler
	limiter *throttle.Limiter
	metrics *metrics.Metrics
	hits    *atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithGateway(t, http.StatusOK)
}

func newFixtureWithGateway(t *testing.T, status int) *fixture {
	t.Helper()

	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte("upstream exploded"))
			return
		}
		_, _ = fmt.Fprintf(w, `{"id":"ext_%d","redirect_url":"https://pay.example/ext_%d"}`, n, n)
	}))
	t.Cleanup(srv.Close)

	registry := provider.NewRegistry(
		provider.NewPayoneerAdapter(provider.PayoneerConfig{Config: provider.Config{APIBase: srv.URL, WebhookSecret: payoneerSecret}, APIKey: "k"}),
		provider.NewJazzCashAdapter(provider.JazzCashConfig{Config: provider.Config{APIBase: srv.URL, WebhookSecret: jazzcashSecret}, MerchantID: "m", Password: "p"}),
		provider.NewEasyPaisaAdapter(provider.EasyPaisaConfig{Config: provider.Config{APIBase: srv.URL, WebhookSecret: easypaisaSecret}, MerchantID: "m", APIKey: "k"}),
	)

	mr := miniredis.RunT(t)
	limiter := throttle.NewLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")

	docs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	store := memory.NewStore()
	m := metrics.New()
	svc := NewPaymentService(store, registry, provider.NewResolver(payment.GatewayJazzCash), limiter, docs, m,
		Config{BaseURL: "https://api.example.com/"}, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	rec := NewReconciler(store, registry, m, zap.NewNop())
	rec.now = func() time.Time { return fixedNow }

	return &fixture{store: store, docs: docs, svc: svc, rec: rec, limiter: limiter, metrics: m, hits: hits}
}

func (f *fixture) create(t *testing.T, accountID uuid.UUID, amount int64, currency, gateway string) *payment.CreatePaymentResult {
	t.Helper()
	res, err := f.svc.CreatePayment(context.Background(), &payment.CreatePaymentParams{
		AccountID: accountID,
		CreatePaymentRequest: payment.CreatePaymentRequest{
			Amount:        amount,
			Currency:      currency,
			Gateway:       gateway,
			ReturnURL:     "https://app.example.com/return",
			CustomerEmail: "guardian@example.com",
		},
	})
	require.NoError(t, err)
	return res
}

func webhookBody(externalID, status string, amount int64, currency string) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"id":       externalID,
		"status":   status,
		"amount":   amount,
		"currency": currency,
	})
	return b
}

func (f *fixture) deliver(t *testing.T, gateway, secret string, body []byte) (*payment.WebhookResult, error) {
	t.Helper()
	return f.rec.HandleWebhook(context.Background(), gateway, body, provider.Sign(secret, body))
}

func TestCreatePaymentEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()

	res := f.create(t, accountID, 2999, "USD", "")
	assert.Equal(t, payment.GatewayPayoneer, res.Gateway)
	assert.Equal(t, "https://pay.example/ext_1", res.RedirectURL)
	assert.True(t, strings.HasPrefix(res.ReferenceID, accountID.String()+"_"))

	txs := f.store.AllTransactions()
	require.Len(t, txs, 1)
	assert.Equal(t, payment.StatusPending, txs[0].Status)
	assert.Equal(t, int64(2999), txs[0].Amount)

	sub, err := f.store.Subscriptions().FindByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, sub.Status)
	assert.Equal(t, "payoneer", sub.Gateway)

	out, err := f.deliver(t, "payoneer", payoneerSecret, webhookBody(res.ExternalID, "success", 2999, "USD"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeApplied, out.Outcome)

	tx, err := f.store.Payments().FindByID(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, tx.Status)

	sub, err = f.store.Subscriptions().FindByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, subscription.TypePaid, sub.Type)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, fixedNow.Add(30*24*time.Hour), *sub.CurrentPeriodEnd)

	var types []string
	for _, e := range f.store.AllEvents() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{event.TypePaymentCreated, event.TypePaymentUpdated}, types)
}

func TestCreatePaymentPassesWebhookURL(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "https://api.example.com/api/v1/payments/webhooks/jazzcash", f.svc.WebhookURL(payment.GatewayJazzCash))
}

func TestCreatePaymentRoutesPKR(t *testing.T) {
	f := newFixture(t)

	res := f.create(t, uuid.New(), 8397, "PKR", "")
	assert.Equal(t, payment.GatewayJazzCash, res.Gateway)

	res = f.create(t, uuid.New(), 8397, "pkr", "easypaisa")
	assert.Equal(t, payment.GatewayEasyPaisa, res.Gateway)
}

func TestCreatePaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		amount   int64
		currency string
		gateway  string
		want     error
	}{
		{"unsupported currency", 100, "GBP", "", xerrors.ErrUnsupportedCurrency},
		{"unknown gateway", 100, "PKR", "stripe", xerrors.ErrUnsupportedGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreatePayment(ctx, &payment.CreatePaymentParams{
				AccountID:            uuid.New(),
				CreatePaymentRequest: payment.CreatePaymentRequest{Amount: tc.amount, Currency: tc.currency, Gateway: tc.gateway},
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.CreatePayment(ctx, &payment.CreatePaymentParams{
		AccountID:            uuid.New(),
		CreatePaymentRequest: payment.CreatePaymentRequest{Amount: 0, Currency: "USD"},
	})
	assert.Equal(t, xerrors.KindValidation, xerrors.KindOf(err))

	assert.Zero(t, f.hits.Load(), "gateway must not be called for invalid input")
	assert.Empty(t, f.store.AllTransactions())
}

func TestCreatePaymentProviderFailure(t *testing.T) {
	f := newFixtureWithGateway(t, http.StatusBadGateway)
	accountID := uuid.New()

	_, err := f.svc.CreatePayment(context.Background(), &payment.CreatePaymentParams{
		AccountID:            accountID,
		CreatePaymentRequest: payment.CreatePaymentRequest{Amount: 2999, Currency: "USD"},
	})
	require.Error(t, err)
	assert.Equal(t, xerrors.KindProviderFailure, xerrors.KindOf(err))
	assert.Empty(t, f.store.AllTransactions())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PaymentsCreated.WithLabelValues("payoneer", "provider_error")))

	// The pending subscription is left for the retry to re-mark
	sub, err := f.store.Subscriptions().FindByAccount(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, sub.Status)

	// The account lock was released
	lock, ok, err := f.limiter.AcquireLock(context.Background(), "payment:"+accountID.String(), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, lock.Release(context.Background()))
}

func TestCreatePaymentWhileAnotherIsInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()

	lock, ok, err := f.limiter.AcquireLock(ctx, "payment:"+accountID.String(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer lock.Release(ctx)

	_, err = f.svc.CreatePayment(ctx, &payment.CreatePaymentParams{
		AccountID:            accountID,
		CreatePaymentRequest: payment.CreatePaymentRequest{Amount: 2999, Currency: "USD"},
	})
	assert.ErrorIs(t, err, xerrors.ErrPaymentInProgress)
	assert.Zero(t, f.hits.Load())
}

func TestCreatePaymentRejectedForOrphanAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()

	require.NoError(t, f.store.Subscriptions().Upsert(ctx, &subscription.Subscription{
		AccountID: accountID, Type: subscription.TypeOrphan, Status: subscription.StatusActive, IsFree: true,
	}))

	_, err := f.svc.CreatePayment(ctx, &payment.CreatePaymentParams{
		AccountID:            accountID,
		CreatePaymentRequest: payment.CreatePaymentRequest{Amount: 2999, Currency: "USD"},
	})
	assert.ErrorIs(t, err, xerrors.ErrOrphanOverrideActive)
	assert.Zero(t, f.hits.Load())
}

func TestGetTransactionScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	res := f.create(t, owner, 2999, "USD", "")

	tx, err := f.svc.GetTransaction(ctx, owner, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, res.ExternalID, tx.ExternalID)

	_, err = f.svc.GetTransaction(ctx, uuid.New(), res.TransactionID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	list, err := f.svc.ListTransactions(ctx, owner, "pending", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.ListTransactions(ctx, owner, "succeeded", 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.ListTransactions(ctx, owner, "chargeback", 0)
	assert.Equal(t, xerrors.KindValidation, xerrors.KindOf(err))
}

func TestWebhookDuplicateSuccessIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()
	res := f.create(t, accountID, 2999, "USD", "")
	body := webhookBody(res.ExternalID, "succeeded", 2999, "USD")

	_, err := f.deliver(t, "payoneer", payoneerSecret, body)
	require.NoError(t, err)
	txOnce, _ := f.store.Payments().FindByID(ctx, res.TransactionID)
	subOnce, _ := f.store.Subscriptions().FindByAccount(ctx, accountID)
	eventsOnce := len(f.store.AllEvents())

	out, err := f.deliver(t, "payoneer", payoneerSecret, body)
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeDuplicate, out.Outcome)

	txTwice, _ := f.store.Payments().FindByID(ctx, res.TransactionID)
	subTwice, _ := f.store.Subscriptions().FindByAccount(ctx, accountID)
	assert.Equal(t, txOnce, txTwice)
	assert.Equal(t, subOnce, subTwice)
	assert.Len(t, f.store.AllEvents(), eventsOnce)
}

func TestWebhookConcurrentDuplicatesApplyOnce(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, uuid.New(), 2999, "USD", "")
	body := webhookBody(res.ExternalID, "success", 2999, "USD")

	const deliveries = 8
	var wg sync.WaitGroup
	outcomes := make(chan payment.Outcome, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.rec.HandleWebhook(context.Background(), "payoneer", body, provider.Sign(payoneerSecret, body))
			if assert.NoError(t, err) {
				outcomes <- out.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	applied := 0
	for o := range outcomes {
		if o == payment.OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)

	updates := 0
	for _, e := range f.store.AllEvents() {
		if e.Type == event.TypePaymentUpdated {
			updates++
		}
	}
	assert.Equal(t, 1, updates)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookDeliveries.WithLabelValues("payoneer", "applied")))
}

func TestWebhookUnknownTransactionIsNoop(t *testing.T) {
	f := newFixture(t)
	f.create(t, uuid.New(), 2999, "USD", "")
	before := f.store.AllEvents()

	out, err := f.deliver(t, "payoneer", payoneerSecret, webhookBody("nobody", "success", 2999, "USD"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeUnknown, out.Outcome)
	assert.Equal(t, before, f.store.AllEvents())
	assert.Equal(t, payment.StatusPending, f.store.AllTransactions()[0].Status)
}

func TestWebhookTamperedBodyIsRejected(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, uuid.New(), 2999, "USD", "")
	body := webhookBody(res.ExternalID, "success", 2999, "USD")
	sig := provider.Sign(payoneerSecret, body)

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] ^= 0x01

	_, err := f.rec.HandleWebhook(context.Background(), "payoneer", tampered, sig)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSignature)
	assert.Equal(t, payment.StatusPending, f.store.AllTransactions()[0].Status)
	assert.Len(t, f.store.AllEvents(), 1)

	// Signed for the wrong gateway
	_, err = f.deliver(t, "payoneer", jazzcashSecret, body)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSignature)
}

func TestWebhookOutOfOrderDeliveriesAreIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()
	res := f.create(t, accountID, 8397, "PKR", "jazzcash")

	_, err := f.deliver(t, "jazzcash", jazzcashSecret, webhookBody(res.ExternalID, "success", 8397, "PKR"))
	require.NoError(t, err)

	for _, status := range []string{"pending", "failed", "processing"} {
		out, err := f.deliver(t, "jazzcash", jazzcashSecret, webhookBody(res.ExternalID, status, 8397, "PKR"))
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeIgnored, out.Outcome, status)
	}

	tx, _ := f.store.Payments().FindByID(ctx, res.TransactionID)
	assert.Equal(t, payment.StatusSucceeded, tx.Status)
	sub, _ := f.store.Subscriptions().FindByAccount(ctx, accountID)
	assert.Equal(t, subscription.StatusActive, sub.Status)
}

func TestWebhookFailureMarksPastDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()
	res := f.create(t, accountID, 8397, "PKR", "easypaisa")

	out, err := f.deliver(t, "easypaisa", easypaisaSecret, webhookBody(res.ExternalID, "failed", 8397, "PKR"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeApplied, out.Outcome)

	sub, _ := f.store.Subscriptions().FindByAccount(ctx, accountID)
	assert.Equal(t, subscription.StatusPastDue, sub.Status)
}

func TestWebhookPendingRedeliveryMergesMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, uuid.New(), 2999, "USD", "")

	body, _ := json.Marshal(map[string]interface{}{
		"id": res.ExternalID, "status": "processing", "metadata": map[string]interface{}{"attempt": "1"},
	})
	out, err := f.deliver(t, "payoneer", payoneerSecret, body)
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeMerged, out.Outcome)

	tx, _ := f.store.Payments().FindByID(ctx, res.TransactionID)
	assert.Equal(t, payment.StatusPending, tx.Status)
	assert.Equal(t, "1", tx.Metadata["attempt"])
}

func TestWebhookAmountMismatchFailsTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()
	res := f.create(t, accountID, 2999, "USD", "")

	out, err := f.deliver(t, "payoneer", payoneerSecret, webhookBody(res.ExternalID, "success", 100, "USD"))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, out.Status)

	tx, _ := f.store.Payments().FindByID(ctx, res.TransactionID)
	assert.Equal(t, payment.StatusFailed, tx.Status)
	assert.Contains(t, tx.Metadata["mismatch"], "amount")

	sub, _ := f.store.Subscriptions().FindByAccount(ctx, accountID)
	assert.Equal(t, subscription.StatusPastDue, sub.Status)
}

func TestWebhookNeverTouchesOrphanSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()
	res := f.create(t, accountID, 2999, "USD", "")

	// Orphan approval lands after the charge was started
	sub, _ := f.store.Subscriptions().FindByAccount(ctx, accountID)
	sub.Type = subscription.TypeOrphan
	sub.Status = subscription.StatusActive
	sub.Amount = 0
	require.NoError(t, f.store.Subscriptions().Upsert(ctx, sub))

	_, err := f.deliver(t, "payoneer", payoneerSecret, webhookBody(res.ExternalID, "failed", 2999, "USD"))
	require.NoError(t, err)

	sub, _ = f.store.Subscriptions().FindByAccount(ctx, accountID)
	assert.Equal(t, subscription.TypeOrphan, sub.Type)
	assert.Equal(t, subscription.StatusActive, sub.Status)
}

func TestWebhookUnknownGatewayAndBadPayload(t *testing.T) {
	f := newFixture(t)

	_, err := f.rec.HandleWebhook(context.Background(), "stripe", []byte("{}"), "")
	assert.ErrorIs(t, err, xerrors.ErrUnsupportedGateway)

	body := []byte(`{"id":`)
	_, err = f.deliver(t, "payoneer", payoneerSecret, body)
	assert.Equal(t, xerrors.KindValidation, xerrors.KindOf(err))
}
