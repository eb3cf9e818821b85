// internal/service/subscription/admin.go
package subscription

import (
	"context"
	"errors"

	"billing-service/internal/domain/event"
	"billing-service/internal/domain/pricing"
	"billing-service/internal/domain/subscription"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultAdminListLimit = 500

var ErrEmptyOverride = xerrors.New(xerrors.KindValidation, "override changes nothing")

// ListAll returns subscriptions newest first with per child-count totals.
// Revenue sums final amounts in each billing currency.
func (s *SubscriptionService) ListAll(ctx context.Context, limit int) (*subscription.AdminList, error) {
	if limit <= 0 || limit > defaultAdminListLimit {
		limit = defaultAdminListLimit
	}

	subs, err := s.store.Subscriptions().List(ctx, limit)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []subscription.Subscription{}
	}

	tiers := map[int]*subscription.TierSummary{}
	for _, sub := range subs {
		tier, ok := tiers[sub.ChildCount]
		if !ok {
			tier = &subscription.TierSummary{Revenue: map[pricing.Currency]int64{}}
			tiers[sub.ChildCount] = tier
		}
		tier.Count++

		currency := sub.BillingCurrency
		if currency == "" {
			currency = sub.Currency
		}
		if currency != "" {
			tier.Revenue[currency] += sub.FinalAmount
		}
	}

	return &subscription.AdminList{Subscriptions: subs, TierSummary: tiers}, nil
}

// Override lets an admin correct status or pricing of a subscription and
// records who did it. Orphan overrides belong to the verification workflow
// and are refused here.
func (s *SubscriptionService) Override(ctx context.Context, adminID, accountID uuid.UUID, req *subscription.OverrideRequest) (*subscription.Subscription, error) {
	if req.Status == nil && req.FinalAmount == nil && req.DiscountPercentage == nil && req.DiscountAmount == nil {
		return nil, ErrEmptyOverride
	}

	var out *subscription.Subscription
	err := s.store.InTx(ctx, func(store repository.Store) error {
		sub, err := store.Subscriptions().FindByAccount(ctx, accountID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return xerrors.ErrNotFound
		}
		if err != nil {
			return err
		}
		if sub.Type == subscription.TypeOrphan {
			return xerrors.ErrOrphanOverrideActive
		}

		changes := map[string]interface{}{"admin_id": adminID.String()}
		if req.Reason != "" {
			changes["reason"] = req.Reason
		}
		if req.Status != nil && *req.Status != sub.Status {
			changes["previous_status"] = string(sub.Status)
			changes["status"] = string(*req.Status)
			sub.Status = *req.Status
			if sub.Status == subscription.StatusCancelled {
				now := s.now()
				sub.CancelledAt = &now
			} else {
				sub.CancelledAt = nil
			}
		}
		if req.FinalAmount != nil {
			changes["previous_final_amount"] = sub.FinalAmount
			changes["final_amount"] = *req.FinalAmount
			sub.FinalAmount = *req.FinalAmount
		}
		if req.DiscountPercentage != nil {
			changes["discount_percentage"] = *req.DiscountPercentage
			sub.DiscountPercentage = *req.DiscountPercentage
		}
		if req.DiscountAmount != nil {
			changes["discount_amount"] = *req.DiscountAmount
			sub.DiscountAmount = *req.DiscountAmount
		}

		if err := store.Subscriptions().Upsert(ctx, sub); err != nil {
			return err
		}
		if err := store.Events().Append(ctx, &event.Event{
			AccountID: accountID,
			Type:      event.TypeAdminOverride,
			Data:      changes,
		}); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription overridden",
		zap.String("admin_id", adminID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("status", string(out.Status)),
		zap.Int64("final_amount", out.FinalAmount),
	)
	return out, nil
}
