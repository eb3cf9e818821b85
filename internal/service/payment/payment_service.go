// internal/service/payment/payment_service.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"billing-service/internal/domain/event"
	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/pricing"
	"billing-service/internal/domain/subscription"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/metrics"
	"billing-service/internal/pkg/storage"
	"billing-service/internal/pkg/throttle"
	"billing-service/internal/provider"
	"billing-service/internal/repository"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultListLimit = 50
	webhookPath      = "/api/v1/payments/webhooks/"
)

type Config struct {
	// BaseURL is the public origin gateways call back to.
	BaseURL string
	LockTTL time.Duration

	// ReceiptTypes are the MIME types accepted for manual transfer receipts.
	ReceiptTypes []string
}

type PaymentService struct {
	store    repository.Store
	registry *provider.Registry
	resolver *provider.Resolver
	limiter  *throttle.Limiter
	receipts storage.DocumentStore
	metrics  *metrics.Metrics
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewPaymentService(
	store repository.Store,
	registry *provider.Registry,
	resolver *provider.Resolver,
	limiter *throttle.Limiter,
	receipts storage.DocumentStore,
	m *metrics.Metrics,
	cfg Config,
	logger *zap.Logger,
) *PaymentService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if len(cfg.ReceiptTypes) == 0 {
		cfg.ReceiptTypes = DefaultReceiptTypes
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PaymentService{
		store:    store,
		registry: registry,
		resolver: resolver,
		limiter:  limiter,
		receipts: receipts,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WebhookURL is where gateway callbacks for g are delivered.
func (s *PaymentService) WebhookURL(g payment.Gateway) string {
	return s.cfg.BaseURL + webhookPath + string(g)
}

// NewReferenceID correlates a payment before the gateway assigns its own id.
func NewReferenceID(accountID uuid.UUID) string {
	return accountID.String() + "_" + ulid.Make().String()
}

// CreatePayment resolves the gateway, marks the subscription pending, asks the
// gateway for a checkout and records the pending transaction.
func (s *PaymentService) CreatePayment(ctx context.Context, params *payment.CreatePaymentParams) (*payment.CreatePaymentResult, error) {
	if params.Amount <= 0 {
		return nil, xerrors.New(xerrors.KindValidation, "amount must be a positive integer in minor units")
	}

	currency, ok := pricing.ParseCurrency(params.Currency)
	if !ok {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrUnsupportedCurrency, params.Currency)
	}

	var requested payment.Gateway
	if params.Gateway != "" {
		requested, ok = payment.ParseGateway(params.Gateway)
		if !ok {
			return nil, fmt.Errorf("%w: %s", xerrors.ErrUnsupportedGateway, params.Gateway)
		}
	}

	gateway, err := s.resolver.ResolveGateway(currency, requested)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.Get(gateway)
	if err != nil {
		return nil, err
	}

	release, err := s.lockAccount(ctx, params.AccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	referenceID := NewReferenceID(params.AccountID)

	sub, err := s.store.Subscriptions().MarkPendingCharge(ctx, &subscription.PendingCharge{
		AccountID: params.AccountID,
		Gateway:   string(gateway),
		Amount:    params.Amount,
		Currency:  string(currency),
		Metadata:  map[string]interface{}{"reference_id": referenceID},
	})
	if err != nil {
		s.metrics.PaymentCreated(string(gateway), "rejected")
		return nil, fmt.Errorf("failed to mark subscription pending: %w", err)
	}

	resp, err := adapter.CreatePayment(ctx, &provider.CreateRequest{
		Amount:        params.Amount,
		Currency:      currency,
		ReferenceID:   referenceID,
		ReturnURL:     params.ReturnURL,
		WebhookURL:    s.WebhookURL(gateway),
		CustomerEmail: params.CustomerEmail,
		CustomerPhone: params.CustomerPhone,
	})
	if err != nil {
		s.metrics.PaymentCreated(string(gateway), "provider_error")
		s.logger.Error("payment provider create failed",
			zap.String("gateway", string(gateway)),
			zap.String("account_id", params.AccountID.String()),
			zap.String("reference_id", referenceID),
			zap.Int64("amount", params.Amount),
			zap.Error(err),
		)
		return nil, err
	}

	metadata := maps.Clone(params.Metadata)
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	if len(resp.Metadata) > 0 {
		metadata["provider"] = resp.Metadata
	}

	tx := &payment.Transaction{
		AccountID:      params.AccountID,
		SubscriptionID: sub.ID,
		Gateway:        gateway,
		ExternalID:     resp.ExternalID,
		ReferenceID:    referenceID,
		Amount:         params.Amount,
		Currency:       currency,
		Status:         payment.StatusPending,
		Metadata:       metadata,
	}

	err = s.store.InTx(ctx, func(store repository.Store) error {
		if err := store.Payments().Create(ctx, tx); err != nil {
			return err
		}
		return store.Events().Append(ctx, &event.Event{
			AccountID: params.AccountID,
			Type:      event.TypePaymentCreated,
			Data: map[string]interface{}{
				"transaction_id": tx.ID,
				"gateway":        string(gateway),
				"external_id":    tx.ExternalID,
				"reference_id":   referenceID,
				"amount":         tx.Amount,
				"currency":       string(currency),
			},
		})
	})
	if err != nil {
		s.metrics.PaymentCreated(string(gateway), "error")
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	s.metrics.PaymentCreated(string(gateway), "ok")
	s.logger.Info("payment created",
		zap.String("gateway", string(gateway)),
		zap.String("account_id", params.AccountID.String()),
		zap.String("external_id", tx.ExternalID),
		zap.Int64("transaction_id", tx.ID),
	)

	return &payment.CreatePaymentResult{
		RedirectURL:    resp.RedirectURL,
		ExternalID:     tx.ExternalID,
		ReferenceID:    referenceID,
		Gateway:        gateway,
		SubscriptionID: sub.ID,
		TransactionID:  tx.ID,
	}, nil
}

// lockAccount serializes payment creation per account across instances.
func (s *PaymentService) lockAccount(ctx context.Context, accountID uuid.UUID) (func(), error) {
	if s.limiter == nil {
		return func() {}, nil
	}

	lock, ok, err := s.limiter.AcquireLock(ctx, "payment:"+accountID.String(), s.cfg.LockTTL)
	if err != nil {
		return nil, xerrors.Tag(xerrors.KindInternal, err, "failed to lock account")
	}
	if !ok {
		return nil, xerrors.ErrPaymentInProgress
	}

	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release payment lock", zap.Error(err))
		}
	}, nil
}

// GetTransaction returns one of the account's own transactions.
func (s *PaymentService) GetTransaction(ctx context.Context, accountID uuid.UUID, id int64) (*payment.Transaction, error) {
	tx, err := s.store.Payments().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.AccountID != accountID {
		return nil, xerrors.ErrNotFound
	}
	return tx, nil
}

func (s *PaymentService) ListTransactions(ctx context.Context, accountID uuid.UUID, status string, limit int) ([]payment.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}

	var statuses []payment.Status
	if status != "" {
		st := payment.Status(status)
		if st != payment.StatusPending && !st.Terminal() {
			return nil, xerrors.Newf(xerrors.KindValidation, "unknown payment status %q", status)
		}
		statuses = append(statuses, st)
	}

	txs, err := s.store.Payments().ListByAccount(ctx, accountID, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if txs == nil {
		txs = []payment.Transaction{}
	}
	return txs, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, xerrors.ErrNotFound)
}
