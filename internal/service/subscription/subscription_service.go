// internal/service/subscription/subscription_service.go
package subscription

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/event"
	"billing-service/internal/domain/pricing"
	"billing-service/internal/domain/subscription"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/metrics"
	"billing-service/internal/repository"
	pricingsvc "billing-service/internal/service/pricing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTrialDays       = 7
	DefaultMaxAICallsTrial = 25
	aiQuotaWindow          = 24 * time.Hour
)

var (
	ErrNoChildren        = xerrors.New(xerrors.KindValidation, "add a child before choosing a plan")
	ErrTrialAlreadyUsed  = xerrors.New(xerrors.KindConflict, "trial already used")
	ErrAlreadySubscribed = xerrors.New(xerrors.KindConflict, "account already has a subscription")

	usageKindPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)
)

type Config struct {
	TrialDays       int
	MaxAICallsTrial int
}

type SubscriptionService struct {
	store   repository.Store
	pricing *pricingsvc.PricingService
	metrics *metrics.Metrics
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

func NewSubscriptionService(
	store repository.Store,
	pricing *pricingsvc.PricingService,
	m *metrics.Metrics,
	cfg Config,
	logger *zap.Logger,
) *SubscriptionService {
	if cfg.TrialDays <= 0 {
		cfg.TrialDays = DefaultTrialDays
	}
	if cfg.MaxAICallsTrial <= 0 {
		cfg.MaxAICallsTrial = DefaultMaxAICallsTrial
	}
	return &SubscriptionService{
		store:   store,
		pricing: pricing,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the account's subscription.
func (s *SubscriptionService) Get(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := s.store.Subscriptions().FindByAccount(ctx, accountID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrSubscriptionRequired
	}
	return sub, err
}

// Preview prices a plan for the account's live child count in its billing currency.
func (s *SubscriptionService) Preview(ctx context.Context, accountID uuid.UUID, planType pricing.PlanType) (*pricing.Breakdown, error) {
	acct, children, err := s.family(ctx, s.store, accountID)
	if err != nil {
		return nil, err
	}
	return s.pricing.BuildPricing(children, planType, acct.BillingCurrency())
}

// Subscribe writes a pending paid subscription with a fresh pricing snapshot.
func (s *SubscriptionService) Subscribe(ctx context.Context, accountID uuid.UUID, planType pricing.PlanType) (*subscription.PlanResult, error) {
	return s.applyPlan(ctx, accountID, planType, false)
}

// ChangePlan reprices an existing subscription and puts it back to pending.
func (s *SubscriptionService) ChangePlan(ctx context.Context, accountID uuid.UUID, planType pricing.PlanType) (*subscription.PlanResult, error) {
	return s.applyPlan(ctx, accountID, planType, true)
}

func (s *SubscriptionService) applyPlan(ctx context.Context, accountID uuid.UUID, planType pricing.PlanType, mustExist bool) (*subscription.PlanResult, error) {
	var result *subscription.PlanResult

	err := s.store.InTx(ctx, func(store repository.Store) error {
		acct, children, err := s.family(ctx, store, accountID)
		if err != nil {
			return err
		}

		sub, err := store.Subscriptions().FindByAccount(ctx, accountID)
		switch {
		case errors.Is(err, xerrors.ErrNotFound):
			if mustExist {
				return xerrors.ErrSubscriptionRequired
			}
			sub = &subscription.Subscription{AccountID: accountID}
		case err != nil:
			return err
		case sub.Type == subscription.TypeOrphan:
			return xerrors.ErrOrphanOverrideActive
		}

		breakdown, err := s.pricing.BuildPricing(children, planType, acct.BillingCurrency())
		if err != nil {
			return err
		}

		previous := sub.PlanType
		now := s.now()
		end := periodEnd(now, planType)

		sub.Type = subscription.TypePaid
		sub.Status = subscription.StatusPending
		sub.IsFree = false
		sub.TrialEndsAt = nil
		sub.CancelledAt = nil
		sub.CurrentPeriodStart = &now
		sub.CurrentPeriodEnd = &end
		sub.ApplySnapshot(breakdown)

		if err := store.Subscriptions().Upsert(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		eventType := event.TypeSubscriptionSet
		data := map[string]interface{}{
			"plan_type":    string(planType),
			"child_count":  children,
			"final_amount": breakdown.FinalAmount,
			"currency":     string(breakdown.Currency),
		}
		if mustExist {
			eventType = event.TypePlanChanged
			data["previous_plan_type"] = string(previous)
		}
		if err := store.Events().Append(ctx, &event.Event{AccountID: accountID, Type: eventType, Data: data}); err != nil {
			return err
		}

		result = &subscription.PlanResult{Subscription: sub, Pricing: breakdown}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription plan set",
		zap.String("account_id", accountID.String()),
		zap.String("plan_type", string(planType)),
		zap.Int64("final_amount", result.Pricing.FinalAmount),
	)
	return result, nil
}

// SyncChildCount reprices the subscription after the family size changed. It
// is a no-op without a subscription and for orphan overrides.
func (s *SubscriptionService) SyncChildCount(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	var out *subscription.Subscription

	err := s.store.InTx(ctx, func(store repository.Store) error {
		sub, err := store.Subscriptions().FindByAccount(ctx, accountID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out = sub
		if sub.Type == subscription.TypeOrphan {
			return nil
		}

		acct, children, err := s.family(ctx, store, accountID)
		if err != nil {
			return err
		}
		if children == sub.ChildCount {
			return nil
		}

		planType := sub.PlanType
		if !planType.Valid() {
			planType = pricing.PlanMonthly
		}
		breakdown, err := s.pricing.BuildPricing(children, planType, acct.BillingCurrency())
		if err != nil {
			return err
		}

		previous := sub.ChildCount
		sub.ApplySnapshot(breakdown)
		if sub.Type == subscription.TypeTrial {
			sub.Amount = 0
		}
		if err := store.Subscriptions().Upsert(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		return store.Events().Append(ctx, &event.Event{
			AccountID: accountID,
			Type:      event.TypeChildCountSynced,
			Data: map[string]interface{}{
				"previous_child_count": previous,
				"child_count":          children,
				"final_amount":         breakdown.FinalAmount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StartTrial grants the one-off free trial.
func (s *SubscriptionService) StartTrial(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	var out *subscription.Subscription

	err := s.store.InTx(ctx, func(store repository.Store) error {
		acct, children, err := s.family(ctx, store, accountID)
		if err != nil {
			return err
		}
		if acct.TrialUsedAt != nil {
			return ErrTrialAlreadyUsed
		}

		existing, err := store.Subscriptions().FindByAccount(ctx, accountID)
		if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
			return err
		}
		if existing != nil && existing.Type != subscription.TypeTrial {
			return ErrAlreadySubscribed
		}

		now := s.now()
		marked, err := store.Accounts().MarkTrialUsed(ctx, accountID, now)
		if err != nil {
			return err
		}
		if !marked {
			return ErrTrialAlreadyUsed
		}

		breakdown, err := s.pricing.BuildPricing(children, pricing.PlanMonthly, acct.BillingCurrency())
		if err != nil {
			return err
		}

		trialEnd := now.AddDate(0, 0, s.cfg.TrialDays)
		sub := existing
		if sub == nil {
			sub = &subscription.Subscription{AccountID: accountID}
		}
		sub.ApplySnapshot(breakdown)
		sub.Type = subscription.TypeTrial
		sub.Status = subscription.StatusActive
		sub.Amount = 0
		sub.IsFree = true
		sub.TrialEndsAt = &trialEnd
		sub.CurrentPeriodStart = &now
		sub.CurrentPeriodEnd = &trialEnd

		if err := store.Subscriptions().Upsert(ctx, sub); err != nil {
			return fmt.Errorf("failed to save trial: %w", err)
		}
		out = sub

		return store.Events().Append(ctx, &event.Event{
			AccountID: accountID,
			Type:      event.TypeTrialStarted,
			Data:      map[string]interface{}{"trial_ends_at": trialEnd.Format(time.RFC3339)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("trial started", zap.String("account_id", accountID.String()), zap.Timep("trial_ends_at", out.TrialEndsAt))
	return out, nil
}

func (s *SubscriptionService) TrialStatus(ctx context.Context, accountID uuid.UUID) (*subscription.TrialStatus, error) {
	sub, err := s.store.Subscriptions().FindByAccount(ctx, accountID)
	if errors.Is(err, xerrors.ErrNotFound) || (err == nil && sub.Type != subscription.TypeTrial) {
		return &subscription.TrialStatus{Status: subscription.TrialNone}, nil
	}
	if err != nil {
		return nil, err
	}

	status := subscription.TrialExpired
	if sub.TrialActive(s.now()) {
		status = subscription.TrialActive
	}
	return &subscription.TrialStatus{Status: status, TrialEndsAt: sub.TrialEndsAt}, nil
}

// Cancel marks the subscription cancelled. Rows are never deleted.
func (s *SubscriptionService) Cancel(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	var out *subscription.Subscription

	err := s.store.InTx(ctx, func(store repository.Store) error {
		sub, err := store.Subscriptions().FindByAccount(ctx, accountID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return xerrors.ErrSubscriptionRequired
		}
		if err != nil {
			return err
		}
		if sub.Type == subscription.TypeOrphan {
			return xerrors.ErrOrphanOverrideActive
		}
		if sub.Status == subscription.StatusCancelled {
			out = sub
			return nil
		}

		if err := store.Subscriptions().UpdateStatus(ctx, accountID, subscription.StatusCancelled); err != nil {
			return err
		}
		if err := store.Events().Append(ctx, &event.Event{
			AccountID: accountID,
			Type:      event.TypeCancelled,
			Data:      map[string]interface{}{"previous_status": string(sub.Status)},
		}); err != nil {
			return err
		}

		out, err = store.Subscriptions().FindByAccount(ctx, accountID)
		return err
	})
	return out, err
}

// EnforceAccess is the single gate in front of every monetized feature. It
// returns the subscription when access is allowed.
func (s *SubscriptionService) EnforceAccess(ctx context.Context, accountID uuid.UUID, feature subscription.Feature) (*subscription.Subscription, error) {
	sub, err := s.checkAccess(ctx, accountID, feature)
	if err != nil {
		s.metrics.AccessDenied(string(xerrors.KindOf(err)))
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) checkAccess(ctx context.Context, accountID uuid.UUID, feature subscription.Feature) (*subscription.Subscription, error) {
	if !feature.Valid() {
		return nil, xerrors.Newf(xerrors.KindValidation, "unknown feature %q", feature)
	}

	sub, err := s.store.Subscriptions().FindByAccount(ctx, accountID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrSubscriptionRequired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	switch sub.Type {
	case subscription.TypeOrphan:
		return sub, nil

	case subscription.TypeTrial:
		now := s.now()
		if !sub.TrialActive(now) {
			return nil, xerrors.ErrTrialExpired
		}
		if feature == subscription.FeatureAI {
			used, err := s.store.Events().CountByPrefixSince(ctx, accountID, event.AIPrefix, now.Add(-aiQuotaWindow))
			if err != nil {
				return nil, fmt.Errorf("failed to count AI usage: %w", err)
			}
			if used >= s.cfg.MaxAICallsTrial {
				return nil, xerrors.ErrTrialAILimit
			}
		}
		return sub, nil
	}

	if sub.Status == subscription.StatusActive || sub.Status == subscription.StatusPending {
		return sub, nil
	}
	return nil, xerrors.ErrSubscriptionInactive
}

// RecordAIUsage appends an "ai.<kind>" event counted by the trial quota.
func (s *SubscriptionService) RecordAIUsage(ctx context.Context, accountID uuid.UUID, kind string, childID *uuid.UUID) error {
	if !usageKindPattern.MatchString(kind) {
		return xerrors.Newf(xerrors.KindValidation, "invalid usage kind %q", kind)
	}
	return s.store.Events().Append(ctx, &event.Event{
		AccountID: accountID,
		ChildID:   childID,
		Type:      event.AIPrefix + kind,
		CreatedAt: s.now(),
	})
}

// ExpireLapsed moves paid subscriptions past their period end to expired.
func (s *SubscriptionService) ExpireLapsed(ctx context.Context) (int64, error) {
	n, err := s.store.Subscriptions().ExpireLapsed(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	s.metrics.Expired(n)
	if n > 0 {
		s.logger.Info("expired lapsed subscriptions", zap.Int64("count", n))
	}
	return n, nil
}

// family loads the account and its live child count.
func (s *SubscriptionService) family(ctx context.Context, store repository.Store, accountID uuid.UUID) (*account.Account, int, error) {
	acct, err := store.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load account: %w", err)
	}
	children, err := store.Accounts().CountChildren(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	if children == 0 {
		return nil, 0, ErrNoChildren
	}
	return acct, children, nil
}

func periodEnd(start time.Time, planType pricing.PlanType) time.Time {
	if planType == pricing.PlanYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
