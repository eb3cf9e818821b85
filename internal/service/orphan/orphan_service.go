// internal/service/orphan/orphan_service.go
package orphan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/event"
	"billing-service/internal/domain/orphan"
	"billing-service/internal/domain/subscription"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/metrics"
	"billing-service/internal/pkg/storage"
	"billing-service/internal/pkg/throttle"
	"billing-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	documentPrefix         = "orphan-docs"
	defaultRejectionReason = "Not eligible"
	defaultListLimit       = 100
	DefaultSubmitCooldown  = 2 * time.Minute
)

var (
	DefaultAllowedTypes = []string{"application/pdf", "image/jpeg", "image/png"}

	ErrInvalidDocument  = storage.ErrInvalidDocument
	ErrDocumentTooLarge = storage.ErrDocumentTooLarge
	ErrAlreadyReviewed  = xerrors.New(xerrors.KindConflict, "verification already reviewed")
	ErrNotApproved      = xerrors.New(xerrors.KindConflict, "only approved verifications can be revoked")
)

type Config struct {
	AllowedTypes   []string
	SubmitCooldown time.Duration
}

type OrphanService struct {
	store   repository.Store
	docs    storage.DocumentStore
	limiter *throttle.Limiter
	metrics *metrics.Metrics
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

func NewOrphanService(
	store repository.Store,
	docs storage.DocumentStore,
	limiter *throttle.Limiter,
	m *metrics.Metrics,
	cfg Config,
	logger *zap.Logger,
) *OrphanService {
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = DefaultAllowedTypes
	}
	if cfg.SubmitCooldown <= 0 {
		cfg.SubmitCooldown = DefaultSubmitCooldown
	}
	return &OrphanService{
		store:   store,
		docs:    docs,
		limiter: limiter,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit stores the guardian's document and opens a pending verification.
func (s *OrphanService) Submit(ctx context.Context, accountID uuid.UUID, req *orphan.SubmitRequest) (*orphan.Verification, error) {
	if !req.DocumentType.Valid() {
		return nil, xerrors.Newf(xerrors.KindValidation, "unknown document type %q", req.DocumentType)
	}

	child, err := s.ownChild(ctx, accountID, req.ChildID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Orphans().FindActiveByChild(ctx, child.ID); err == nil {
		return nil, xerrors.ErrVerificationExists
	} else if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	mimeType, data, err := storage.DecodeDataURL(req.DocumentBase64, s.cfg.AllowedTypes)
	if err != nil {
		return nil, err
	}

	release, err := s.cooldown(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	key := DocumentKey(accountID, child.ID, now, req.DocumentName, mimeType)
	if err := s.docs.Put(ctx, key, data, mimeType); err != nil {
		release()
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	v := &orphan.Verification{
		ChildID:      child.ID,
		AccountID:    accountID,
		DocumentType: req.DocumentType,
		DocumentKey:  key,
		MimeType:     mimeType,
		Status:       orphan.StatusPending,
	}

	err = s.store.InTx(ctx, func(store repository.Store) error {
		if err := store.Orphans().Create(ctx, v); err != nil {
			return err
		}
		if err := store.Accounts().UpdateChildOrphan(ctx, child.ID, true, account.OrphanPending); err != nil {
			return err
		}
		return store.Events().Append(ctx, &event.Event{
			AccountID: accountID,
			ChildID:   &child.ID,
			Type:      event.TypeOrphanSubmitted,
			Data: map[string]interface{}{
				"verification_id": v.ID,
				"document_type":   string(req.DocumentType),
			},
		})
	})
	if err != nil {
		release()
		if delErr := s.docs.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned document", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("orphan verification submitted",
		zap.String("account_id", accountID.String()),
		zap.String("child_id", child.ID.String()),
		zap.Int64("verification_id", v.ID),
	)
	return v, nil
}

// Status returns the child and its latest verification. Guardians only see
// their own children.
func (s *OrphanService) Status(ctx context.Context, accountID, childID uuid.UUID, isAdmin bool) (*orphan.StatusView, error) {
	var (
		child *account.Child
		err   error
	)
	if isAdmin {
		child, err = s.store.Accounts().FindChild(ctx, childID)
	} else {
		child, err = s.ownChild(ctx, accountID, childID)
	}
	if err != nil {
		return nil, err
	}

	view := &orphan.StatusView{Child: child}
	v, err := s.store.Orphans().LatestByChild(ctx, childID)
	switch {
	case err == nil:
		view.Verification = v
	case !errors.Is(err, xerrors.ErrNotFound):
		return nil, err
	}
	return view, nil
}

func (s *OrphanService) ListPending(ctx context.Context, limit int) ([]orphan.Verification, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	list, err := s.store.Orphans().ListByStatus(ctx, []orphan.Status{orphan.StatusPending}, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []orphan.Verification{}
	}
	return list, nil
}

// Document returns an uploaded document for a reviewer.
func (s *OrphanService) Document(ctx context.Context, verificationID int64) ([]byte, string, error) {
	v, err := s.store.Orphans().FindByID(ctx, verificationID)
	if err != nil {
		return nil, "", err
	}
	data, err := s.docs.Get(ctx, v.DocumentKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, "", xerrors.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read document: %w", err)
	}
	return data, v.MimeType, nil
}

// Review records an admin decision. Approval requires a single-child family
// without a live paid subscription and then makes the subscription an orphan
// override. A failed check changes nothing.
func (s *OrphanService) Review(ctx context.Context, adminID uuid.UUID, verificationID int64, req *orphan.ReviewRequest) (*orphan.Verification, error) {
	var out *orphan.Verification
	approve := req.Status == orphan.DecisionApprove
	if !approve && req.Status != orphan.DecisionReject {
		return nil, xerrors.Newf(xerrors.KindValidation, "unknown review status %q", req.Status)
	}

	err := s.store.InTx(ctx, func(store repository.Store) error {
		v, err := store.Orphans().FindByID(ctx, verificationID)
		if err != nil {
			return err
		}
		if v.Status != orphan.StatusPending {
			return ErrAlreadyReviewed
		}

		child, err := store.Accounts().FindChild(ctx, v.ChildID)
		if err != nil {
			return err
		}

		var (
			children int
			sub      *subscription.Subscription
		)
		if approve {
			children, err = store.Accounts().CountChildren(ctx, child.AccountID)
			if err != nil {
				return err
			}
			if children != 1 {
				return xerrors.ErrOrphanRequiresOneChild
			}
			sub, err = store.Subscriptions().FindByAccount(ctx, child.AccountID)
			if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
				return err
			}
			if blocksOrphanApproval(sub) {
				return xerrors.ErrPaidSubscriptionExists
			}
		}

		now := s.now()
		to := orphan.StatusApproved
		var reason *string
		if !approve {
			to = orphan.StatusRejected
			r := strings.TrimSpace(req.RejectionReason)
			if r == "" {
				r = defaultRejectionReason
			}
			reason = &r
		}

		swapped, err := store.Orphans().CompareAndSetStatus(ctx, v.ID, orphan.StatusPending, to, adminID, reason, now)
		if err != nil {
			return err
		}
		if !swapped {
			return ErrAlreadyReviewed
		}

		if approve {
			if err := store.Accounts().UpdateChildOrphan(ctx, child.ID, true, account.OrphanVerified); err != nil {
				return err
			}
			if err := store.Subscriptions().Upsert(ctx, orphanSubscription(sub, child.AccountID, children, now)); err != nil {
				return fmt.Errorf("failed to apply orphan override: %w", err)
			}
		} else if err := store.Accounts().UpdateChildOrphan(ctx, child.ID, false, account.OrphanRejected); err != nil {
			return err
		}

		if err := store.Events().Append(ctx, &event.Event{
			AccountID: child.AccountID,
			ChildID:   &child.ID,
			Type:      event.TypeOrphanReviewed,
			Data: map[string]interface{}{
				"verification_id": v.ID,
				"status":          string(to),
				"reviewed_by":     adminID.String(),
			},
		}); err != nil {
			return err
		}

		out, err = store.Orphans().FindByID(ctx, v.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrphanReviewed(string(req.Status))
	s.logger.Info("orphan verification reviewed",
		zap.Int64("verification_id", verificationID),
		zap.String("status", string(req.Status)),
		zap.String("admin_id", adminID.String()),
	)
	return out, nil
}

// Revoke reverses an approved override. The subscription falls back to an
// expired paid subscription so the guardian has to pay to regain access.
func (s *OrphanService) Revoke(ctx context.Context, adminID uuid.UUID, verificationID int64, reason string) (*orphan.Verification, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, xerrors.New(xerrors.KindValidation, "a revocation reason is required")
	}

	var out *orphan.Verification
	err := s.store.InTx(ctx, func(store repository.Store) error {
		v, err := store.Orphans().FindByID(ctx, verificationID)
		if err != nil {
			return err
		}
		if v.Status != orphan.StatusApproved {
			return ErrNotApproved
		}

		child, err := store.Accounts().FindChild(ctx, v.ChildID)
		if err != nil {
			return err
		}

		swapped, err := store.Orphans().CompareAndSetStatus(ctx, v.ID, orphan.StatusApproved, orphan.StatusRejected, adminID, &reason, s.now())
		if err != nil {
			return err
		}
		if !swapped {
			return ErrNotApproved
		}

		if err := store.Accounts().UpdateChildOrphan(ctx, child.ID, false, account.OrphanRejected); err != nil {
			return err
		}

		sub, err := store.Subscriptions().FindByAccount(ctx, child.AccountID)
		if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
			return err
		}
		if sub != nil && sub.Type == subscription.TypeOrphan {
			sub.Type = subscription.TypePaid
			sub.Status = subscription.StatusExpired
			sub.IsFree = false
			sub.Amount = 0
			if err := store.Subscriptions().Upsert(ctx, sub); err != nil {
				return fmt.Errorf("failed to lift orphan override: %w", err)
			}
		}

		if err := store.Events().Append(ctx, &event.Event{
			AccountID: child.AccountID,
			ChildID:   &child.ID,
			Type:      event.TypeOrphanRevoked,
			Data: map[string]interface{}{
				"verification_id": v.ID,
				"reason":          reason,
				"revoked_by":      adminID.String(),
			},
		}); err != nil {
			return err
		}

		out, err = store.Orphans().FindByID(ctx, v.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrphanReviewed("revoked")
	s.logger.Info("orphan override revoked", zap.Int64("verification_id", verificationID), zap.String("admin_id", adminID.String()))
	return out, nil
}

func (s *OrphanService) ownChild(ctx context.Context, accountID, childID uuid.UUID) (*account.Child, error) {
	child, err := s.store.Accounts().FindChild(ctx, childID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	if child.AccountID != accountID {
		return nil, xerrors.ErrForbidden
	}
	return child, nil
}

// cooldown throttles uploads per account; the returned func lifts it again
// when the submission fails.
func (s *OrphanService) cooldown(ctx context.Context, accountID uuid.UUID) (func(), error) {
	if s.limiter == nil {
		return func() {}, nil
	}

	name := "orphan-submit:" + accountID.String()
	ok, remaining, err := s.limiter.Cooldown(ctx, name, s.cfg.SubmitCooldown)
	if err != nil {
		return nil, xerrors.Tag(xerrors.KindInternal, err, "failed to check submission cooldown")
	}
	if !ok {
		return nil, xerrors.Newf(xerrors.KindQuotaExceeded, "please wait %s before submitting again", remaining.Round(time.Second))
	}

	return func() {
		if err := s.limiter.ResetCooldown(context.WithoutCancel(ctx), name); err != nil {
			s.logger.Warn("failed to reset submission cooldown", zap.Error(err))
		}
	}, nil
}

// DocumentKey builds the storage key for an upload.
func DocumentKey(accountID, childID uuid.UUID, at time.Time, name, mimeType string) string {
	return fmt.Sprintf("%s/%s/%s-%d-%s.%s", documentPrefix, accountID, childID, at.UnixMilli(), storage.SafeName(name), storage.Extension(mimeType))
}

// blocksOrphanApproval reports whether a live paid subscription exists.
// Cancelled or expired paid rows do not count.
func blocksOrphanApproval(sub *subscription.Subscription) bool {
	if sub == nil || sub.Type != subscription.TypePaid {
		return false
	}
	return sub.Status != subscription.StatusCancelled && sub.Status != subscription.StatusExpired
}

func orphanSubscription(existing *subscription.Subscription, accountID uuid.UUID, children int, now time.Time) *subscription.Subscription {
	sub := existing
	if sub == nil {
		sub = &subscription.Subscription{AccountID: accountID}
	}
	sub.Type = subscription.TypeOrphan
	sub.Status = subscription.StatusActive
	sub.PlanType = ""
	sub.Gateway = ""
	sub.IsFree = true
	sub.Amount = 0
	sub.FinalAmount = 0
	sub.BaseMonthlyPrice = 0
	sub.DiscountPercentage = 0
	sub.DiscountAmount = 0
	sub.ChildCount = children
	sub.TrialEndsAt = nil
	sub.CancelledAt = nil
	sub.CurrentPeriodStart = &now
	sub.CurrentPeriodEnd = nil
	return sub
}
