// internal/service/payment/manual.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"billing-service/internal/domain/event"
	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/pricing"
	"billing-service/internal/domain/subscription"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/storage"
	"billing-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const receiptPrefix = "pkr-receipts"

var (
	DefaultReceiptTypes = []string{"application/pdf", "image/jpeg", "image/png"}

	ErrAlreadyVerified = xerrors.New(xerrors.KindConflict, "transfer already verified")
	ErrNothingToRefund = xerrors.New(xerrors.KindConflict, "no settled payment to refund")
	ErrAlreadyRefunded = xerrors.New(xerrors.KindConflict, "payment already refunded")
)

// SubmitManual records a PKR transfer the guardian made outside the gateways.
// The transaction stays pending until an operator reviews it.
func (s *PaymentService) SubmitManual(ctx context.Context, accountID uuid.UUID, req *payment.ManualPaymentRequest) (*payment.Transaction, error) {
	if req.Amount <= 0 {
		return nil, xerrors.New(xerrors.KindValidation, "amount must be a positive number of rupees")
	}

	release, err := s.lockAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer release()

	referenceID := NewReferenceID(accountID)
	metadata := map[string]interface{}{"payment_method": req.PaymentMethod}
	for k, v := range map[string]string{
		"plan_type":          req.PlanType,
		"transfer_reference": strings.TrimSpace(req.TransferRef),
		"sender_number":      strings.TrimSpace(req.SenderNumber),
		"notes":              strings.TrimSpace(req.Notes),
	} {
		if v != "" {
			metadata[k] = v
		}
	}

	var receiptKey string
	if req.ReceiptBase64 != "" {
		if s.receipts == nil {
			return nil, xerrors.New(xerrors.KindInternal, "receipt storage is not configured")
		}
		mimeType, data, err := storage.DecodeDataURL(req.ReceiptBase64, s.cfg.ReceiptTypes)
		if err != nil {
			return nil, err
		}
		name := storage.SafeName(req.ReceiptName)
		if name == "" {
			name = "receipt"
		}
		receiptKey = fmt.Sprintf("%s/%s/%s-%s.%s", receiptPrefix, accountID, referenceID, name, storage.Extension(mimeType))
		if err := s.receipts.Put(ctx, receiptKey, data, mimeType); err != nil {
			return nil, fmt.Errorf("failed to store receipt: %w", err)
		}
		metadata["receipt_key"] = receiptKey
		metadata["receipt_mime"] = mimeType
	}

	tx := &payment.Transaction{
		AccountID:   accountID,
		Gateway:     payment.GatewayManual,
		ExternalID:  referenceID,
		ReferenceID: referenceID,
		Amount:      req.Amount,
		Currency:    pricing.CurrencyPKR,
		Status:      payment.StatusPending,
		Metadata:    metadata,
	}

	err = s.store.InTx(ctx, func(store repository.Store) error {
		sub, err := store.Subscriptions().MarkPendingCharge(ctx, &subscription.PendingCharge{
			AccountID: accountID,
			Gateway:   string(payment.GatewayManual),
			Amount:    req.Amount,
			Currency:  string(pricing.CurrencyPKR),
			Metadata:  map[string]interface{}{"reference_id": referenceID},
		})
		if err != nil {
			return err
		}
		tx.SubscriptionID = sub.ID

		if err := store.Payments().Create(ctx, tx); err != nil {
			return err
		}
		return store.Events().Append(ctx, &event.Event{
			AccountID: accountID,
			Type:      event.TypePaymentCreated,
			Data: map[string]interface{}{
				"transaction_id": tx.ID,
				"gateway":        string(payment.GatewayManual),
				"reference_id":   referenceID,
				"amount":         tx.Amount,
				"currency":       string(tx.Currency),
				"payment_method": req.PaymentMethod,
			},
		})
	})
	if err != nil {
		if receiptKey != "" {
			if derr := s.receipts.Delete(context.WithoutCancel(ctx), receiptKey); derr != nil {
				s.logger.Warn("failed to delete orphaned receipt", zap.String("key", receiptKey), zap.Error(derr))
			}
		}
		s.metrics.PaymentCreated(string(payment.GatewayManual), "rejected")
		return nil, err
	}

	s.metrics.PaymentCreated(string(payment.GatewayManual), "ok")
	s.logger.Info("manual payment submitted",
		zap.String("account_id", accountID.String()),
		zap.Int64("transaction_id", tx.ID),
		zap.Int64("amount", tx.Amount),
		zap.String("payment_method", req.PaymentMethod),
	)
	return tx, nil
}

// ListManualPending is the operator review queue, newest first.
func (s *PaymentService) ListManualPending(ctx context.Context, limit int) ([]payment.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	txs, err := s.store.Payments().ListByGateway(ctx, payment.GatewayManual, []payment.Status{payment.StatusPending}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list manual payments: %w", err)
	}
	if txs == nil {
		txs = []payment.Transaction{}
	}
	return txs, nil
}

// ReviewManual settles a manual transfer. It uses the same status swap and
// subscription update as a gateway webhook; repeating the decision that
// already holds returns the transaction unchanged.
func (s *PaymentService) ReviewManual(ctx context.Context, adminID uuid.UUID, id int64, d *payment.ManualDecision) (*payment.Transaction, error) {
	if d.Status != payment.StatusSucceeded && d.Status != payment.StatusFailed {
		return nil, xerrors.Newf(xerrors.KindValidation, "decision must be succeeded or failed, got %q", d.Status)
	}

	var (
		out     *payment.Transaction
		applied bool
	)
	err := s.store.InTx(ctx, func(store repository.Store) error {
		tx, err := store.Payments().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if tx.Gateway != payment.GatewayManual {
			return xerrors.ErrNotFound
		}
		if tx.Status == d.Status {
			out = tx
			return nil
		}
		if !payment.CanTransition(tx.Status, d.Status) {
			return ErrAlreadyVerified
		}

		now := s.now()
		metadata := map[string]interface{}{
			"verified_by": adminID.String(),
			"verified_at": now.UTC().Format(time.RFC3339),
		}
		if reason := strings.TrimSpace(d.RejectionReason); reason != "" && d.Status == payment.StatusFailed {
			metadata["rejection_reason"] = reason
		}

		swapped, err := store.Payments().CompareAndSetStatus(ctx, tx.ID, tx.Status, d.Status, metadata)
		if err != nil {
			return err
		}
		if !swapped {
			return ErrAlreadyVerified
		}
		if err := settle(ctx, store, tx, d.Status, now, map[string]interface{}{"verified_by": adminID.String()}); err != nil {
			return err
		}

		applied = true
		out, err = store.Payments().FindByID(ctx, tx.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if applied {
		s.metrics.ManualReviewed(string(d.Status))
		s.logger.Info("manual payment reviewed",
			zap.String("admin_id", adminID.String()),
			zap.Int64("transaction_id", out.ID),
			zap.String("status", string(out.Status)),
		)
	}
	return out, nil
}

// ManualReceipt returns the stored receipt of a manual transfer.
func (s *PaymentService) ManualReceipt(ctx context.Context, id int64) ([]byte, string, error) {
	tx, err := s.store.Payments().FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	key, _ := tx.Metadata["receipt_key"].(string)
	if tx.Gateway != payment.GatewayManual || key == "" || s.receipts == nil {
		return nil, "", xerrors.ErrNotFound
	}

	data, err := s.receipts.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, "", xerrors.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read receipt: %w", err)
	}
	mimeType, _ := tx.Metadata["receipt_mime"].(string)
	return data, mimeType, nil
}

// Refund records a refund of the account's latest settled payment and
// cancels the subscription. A payment is refunded at most once.
func (s *PaymentService) Refund(ctx context.Context, adminID, accountID uuid.UUID, reason string) (*payment.Transaction, error) {
	reason = strings.TrimSpace(reason)

	var refund *payment.Transaction
	err := s.store.InTx(ctx, func(store repository.Store) error {
		sub, err := store.Subscriptions().FindByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if sub.Type != subscription.TypePaid {
			return ErrNothingToRefund
		}

		settled, err := store.Payments().ListByAccount(ctx, accountID, []payment.Status{payment.StatusSucceeded}, 1)
		if err != nil {
			return err
		}
		if len(settled) == 0 {
			return ErrNothingToRefund
		}
		orig := settled[0]

		metadata := map[string]interface{}{
			"refunded_transaction_id": orig.ID,
			"refunded_by":             adminID.String(),
		}
		if reason != "" {
			metadata["reason"] = reason
		}
		refund = &payment.Transaction{
			AccountID:      accountID,
			SubscriptionID: sub.ID,
			Gateway:        payment.GatewayManual,
			ExternalID:     fmt.Sprintf("refund_%d", orig.ID),
			ReferenceID:    orig.ReferenceID,
			Amount:         orig.Amount,
			Currency:       orig.Currency,
			Status:         payment.StatusRefunded,
			Metadata:       metadata,
		}
		if err := store.Payments().Create(ctx, refund); err != nil {
			if errors.Is(err, xerrors.ErrConflict) {
				return ErrAlreadyRefunded
			}
			return err
		}

		if sub.Status != subscription.StatusCancelled {
			if err := store.Subscriptions().UpdateStatus(ctx, accountID, subscription.StatusCancelled); err != nil {
				return err
			}
		}

		return store.Events().Append(ctx, &event.Event{
			AccountID: accountID,
			Type:      event.TypeRefunded,
			Data: map[string]interface{}{
				"admin_id":                adminID.String(),
				"transaction_id":          refund.ID,
				"refunded_transaction_id": orig.ID,
				"amount":                  refund.Amount,
				"currency":                string(refund.Currency),
				"reason":                  reason,
				"previous_status":         string(sub.Status),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Refunded()
	s.logger.Info("subscription refunded",
		zap.String("admin_id", adminID.String()),
		zap.String("account_id", accountID.String()),
		zap.Int64("refund_transaction_id", refund.ID),
		zap.Int64("amount", refund.Amount),
	)
	return refund, nil
}
