// internal/service/payment/reconciler.go
package payment

import (
	"context"
	"fmt"
	"maps"
	"time"

	"billing-service/internal/domain/event"
	"billing-service/internal/domain/payment"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/metrics"
	"billing-service/internal/provider"
	"billing-service/internal/repository"

	"go.uber.org/zap"
)

// SubscriptionPeriod is how far a successful payment extends the subscription.
const SubscriptionPeriod = 30 * 24 * time.Hour

// Reconciler applies gateway webhooks to transactions and subscriptions.
// Every delivery runs in one store transaction and the status change is a
// compare-and-swap, so duplicates and concurrent deliveries apply once.
type Reconciler struct {
	store    repository.Store
	registry *provider.Registry
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(store repository.Store, registry *provider.Registry, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		registry: registry,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// SignatureHeader names the header gateway signs its deliveries in.
func (r *Reconciler) SignatureHeader(gateway string) (string, error) {
	gw, ok := payment.ParseGateway(gateway)
	if !ok {
		return "", fmt.Errorf("%w: %s", xerrors.ErrUnsupportedGateway, gateway)
	}
	adapter, err := r.registry.Get(gw)
	if err != nil {
		return "", err
	}
	return adapter.SignatureHeader(), nil
}

// HandleWebhook verifies, decodes and applies one delivery for gateway.
func (r *Reconciler) HandleWebhook(ctx context.Context, gateway string, rawBody []byte, signature string) (*payment.WebhookResult, error) {
	gw, ok := payment.ParseGateway(gateway)
	if !ok {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrUnsupportedGateway, gateway)
	}
	adapter, err := r.registry.Get(gw)
	if err != nil {
		return nil, err
	}

	if err := adapter.VerifyWebhook(rawBody, signature); err != nil {
		r.metrics.WebhookDelivered(string(gw), "rejected")
		r.logger.Warn("webhook signature rejected", zap.String("gateway", string(gw)), zap.Error(err))
		return nil, err
	}

	ev, err := adapter.ParseWebhook(rawBody)
	if err != nil {
		r.metrics.WebhookDelivered(string(gw), "rejected")
		return nil, err
	}

	var result *payment.WebhookResult
	err = r.store.InTx(ctx, func(store repository.Store) error {
		var err error
		result, err = r.apply(ctx, store, gw, ev)
		return err
	})
	if err != nil {
		r.metrics.WebhookDelivered(string(gw), "error")
		r.logger.Error("webhook processing failed",
			zap.String("gateway", string(gw)),
			zap.String("external_id", ev.ExternalID),
			zap.Error(err),
		)
		return nil, err
	}

	r.metrics.WebhookDelivered(string(gw), string(result.Outcome))
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, store repository.Store, gw payment.Gateway, ev *payment.WebhookEvent) (*payment.WebhookResult, error) {
	result := &payment.WebhookResult{ExternalID: ev.ExternalID, Status: ev.Status}
	log := r.logger.With(
		zap.String("gateway", string(gw)),
		zap.String("external_id", ev.ExternalID),
		zap.String("incoming_status", string(ev.Status)),
	)

	tx, err := store.Payments().FindByExternalID(ctx, gw, ev.ExternalID)
	if isNotFound(err) {
		log.Debug("webhook for unknown transaction")
		result.Outcome = payment.OutcomeUnknown
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.Transaction = tx.ID
	log = log.With(zap.Int64("transaction_id", tx.ID), zap.String("stored_status", string(tx.Status)))

	if ev.Status == tx.Status {
		if tx.Status == payment.StatusPending && len(ev.Metadata) > 0 {
			if err := store.Payments().MergeMetadata(ctx, tx.ID, webhookMetadata(ev)); err != nil {
				return nil, err
			}
			result.Outcome = payment.OutcomeMerged
			return result, nil
		}
		log.Debug("duplicate webhook delivery")
		result.Outcome = payment.OutcomeDuplicate
		return result, nil
	}

	target := ev.Status
	metadata := webhookMetadata(ev)
	if target == payment.StatusSucceeded {
		if note := mismatch(tx, ev); note != "" {
			log.Warn("webhook disagrees with stored transaction", zap.String("mismatch", note))
			target = payment.StatusFailed
			metadata["mismatch"] = note
		}
	}

	if !payment.CanTransition(tx.Status, target) {
		log.Warn("ignoring out-of-order webhook transition", zap.String("target_status", string(target)))
		result.Outcome = payment.OutcomeIgnored
		return result, nil
	}

	swapped, err := store.Payments().CompareAndSetStatus(ctx, tx.ID, tx.Status, target, metadata)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Another delivery won the race.
		log.Debug("webhook lost status race")
		result.Outcome = payment.OutcomeDuplicate
		return result, nil
	}
	result.Status = target

	if err := settle(ctx, store, tx, target, r.now(), nil); err != nil {
		return nil, err
	}

	log.Info("webhook applied", zap.String("status", string(target)))
	result.Outcome = payment.OutcomeApplied
	return result, nil
}

// settle follows a won status swap: the subscription takes the payment result
// and the change is audited. extra is merged into the event data.
func settle(ctx context.Context, store repository.Store, tx *payment.Transaction, target payment.Status, at time.Time, extra map[string]interface{}) error {
	succeeded := target == payment.StatusSucceeded
	if _, err := store.Subscriptions().ApplyPaymentOutcome(ctx, tx.AccountID, succeeded, at, at.Add(SubscriptionPeriod)); err != nil {
		return err
	}

	data := map[string]interface{}{
		"transaction_id":  tx.ID,
		"gateway":         string(tx.Gateway),
		"external_id":     tx.ExternalID,
		"reference_id":    tx.ReferenceID,
		"previous_status": string(tx.Status),
		"status":          string(target),
	}
	maps.Copy(data, extra)

	return store.Events().Append(ctx, &event.Event{
		AccountID: tx.AccountID,
		Type:      event.TypePaymentUpdated,
		Data:      data,
	})
}

// mismatch describes how a success event disagrees with what was charged.
// A zero amount in the event is treated as absent.
func mismatch(tx *payment.Transaction, ev *payment.WebhookEvent) string {
	if ev.Currency != "" && ev.Currency != tx.Currency {
		return fmt.Sprintf("currency %s != %s", ev.Currency, tx.Currency)
	}
	if ev.Amount != 0 && ev.Amount != tx.Amount {
		return fmt.Sprintf("amount %d != %d", ev.Amount, tx.Amount)
	}
	return ""
}

func webhookMetadata(ev *payment.WebhookEvent) map[string]interface{} {
	m := maps.Clone(ev.Metadata)
	if m == nil {
		m = map[string]interface{}{}
	}
	if ev.ReferenceID != "" {
		m["webhook_reference_id"] = ev.ReferenceID
	}
	return m
}
