package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/event"
	"billing-service/internal/domain/orphan"
	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/pricing"
	"billing-service/internal/domain/subscription"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/google/uuid"
)

// ---------- accounts ----------

type accountRepo struct{ s *Store }

func (r *accountRepo) FindByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	var out *account.Account
	err := r.s.view(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return xerrors.ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *accountRepo) CountChildren(_ context.Context, accountID uuid.UUID) (int, error) {
	n := 0
	err := r.s.view(func(st *state) error {
		for _, c := range st.children {
			if c.AccountID == accountID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *accountRepo) FindChild(_ context.Context, childID uuid.UUID) (*account.Child, error) {
	var out *account.Child
	err := r.s.view(func(st *state) error {
		c, ok := st.children[childID]
		if !ok {
			return xerrors.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *accountRepo) UpdateChildOrphan(_ context.Context, childID uuid.UUID, isOrphan bool, status account.OrphanStatus) error {
	return r.s.view(func(st *state) error {
		c, ok := st.children[childID]
		if !ok {
			return xerrors.ErrNotFound
		}
		c.IsOrphan = isOrphan
		c.OrphanStatus = status
		st.children[childID] = c
		return nil
	})
}

func (r *accountRepo) MarkTrialUsed(_ context.Context, accountID uuid.UUID, at time.Time) (bool, error) {
	marked := false
	err := r.s.view(func(st *state) error {
		a, ok := st.accounts[accountID]
		if !ok {
			return xerrors.ErrNotFound
		}
		if a.TrialUsedAt != nil {
			return nil
		}
		a.TrialUsedAt = &at
		st.accounts[accountID] = a
		marked = true
		return nil
	})
	return marked, err
}

// ---------- subscriptions ----------

type subscriptionRepo struct{ s *Store }

func copySub(sub subscription.Subscription) *subscription.Subscription {
	sub.Metadata = cloneMeta(sub.Metadata)
	return &sub
}

func (r *subscriptionRepo) FindByAccount(_ context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	var out *subscription.Subscription
	err := r.s.view(func(st *state) error {
		sub, ok := st.subscriptions[accountID]
		if !ok {
			return xerrors.ErrNotFound
		}
		out = copySub(sub)
		return nil
	})
	return out, err
}

func (r *subscriptionRepo) List(_ context.Context, limit int) ([]subscription.Subscription, error) {
	var out []subscription.Subscription
	err := r.s.view(func(st *state) error {
		for _, sub := range st.subscriptions {
			out = append(out, *copySub(sub))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *subscriptionRepo) Upsert(_ context.Context, sub *subscription.Subscription) error {
	return r.s.view(func(st *state) error {
		now := time.Now()
		if existing, ok := st.subscriptions[sub.AccountID]; ok {
			sub.ID = existing.ID
			sub.CreatedAt = existing.CreatedAt
		} else {
			st.nextSubID++
			sub.ID = st.nextSubID
			sub.CreatedAt = now
		}
		sub.UpdatedAt = now
		st.subscriptions[sub.AccountID] = *copySub(*sub)
		return nil
	})
}

func (r *subscriptionRepo) MarkPendingCharge(_ context.Context, charge *subscription.PendingCharge) (*subscription.Subscription, error) {
	var out *subscription.Subscription
	err := r.s.view(func(st *state) error {
		now := time.Now()
		sub, ok := st.subscriptions[charge.AccountID]
		if ok && sub.Type == subscription.TypeOrphan {
			return xerrors.ErrOrphanOverrideActive
		}
		if !ok {
			st.nextSubID++
			sub = subscription.Subscription{
				ID:              st.nextSubID,
				AccountID:       charge.AccountID,
				Type:            subscription.TypePaid,
				BillingCurrency: pricing.Currency(charge.Currency),
				CreatedAt:       now,
			}
		}
		sub.Gateway = charge.Gateway
		sub.Amount = charge.Amount
		sub.Currency = pricing.Currency(charge.Currency)
		sub.Status = subscription.StatusPending
		sub.Metadata = cloneMeta(charge.Metadata)
		sub.CurrentPeriodStart = &now
		sub.UpdatedAt = now
		st.subscriptions[charge.AccountID] = sub
		out = copySub(sub)
		return nil
	})
	return out, err
}

func (r *subscriptionRepo) ApplyPaymentOutcome(_ context.Context, accountID uuid.UUID, succeeded bool, periodStart, periodEnd time.Time) (bool, error) {
	changed := false
	err := r.s.view(func(st *state) error {
		sub, ok := st.subscriptions[accountID]
		if !ok || sub.Type == subscription.TypeOrphan {
			return nil
		}
		if succeeded {
			sub.Status = subscription.StatusActive
			sub.Type = subscription.TypePaid
			sub.IsFree = false
			sub.CurrentPeriodStart = &periodStart
			sub.CurrentPeriodEnd = &periodEnd
		} else {
			sub.Status = subscription.StatusPastDue
		}
		sub.UpdatedAt = time.Now()
		st.subscriptions[accountID] = sub
		changed = true
		return nil
	})
	return changed, err
}

func (r *subscriptionRepo) UpdateStatus(_ context.Context, accountID uuid.UUID, status subscription.Status) error {
	return r.s.view(func(st *state) error {
		sub, ok := st.subscriptions[accountID]
		if !ok {
			return xerrors.ErrNotFound
		}
		now := time.Now()
		sub.Status = status
		if status == subscription.StatusCancelled {
			sub.CancelledAt = &now
		}
		sub.UpdatedAt = now
		st.subscriptions[accountID] = sub
		return nil
	})
}

func (r *subscriptionRepo) ExpireLapsed(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.s.view(func(st *state) error {
		for id, sub := range st.subscriptions {
			if sub.Type != subscription.TypePaid || sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Before(now) {
				continue
			}
			if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusPastDue {
				continue
			}
			sub.Status = subscription.StatusExpired
			sub.UpdatedAt = now
			st.subscriptions[id] = sub
			n++
		}
		return nil
	})
	return n, err
}

// ---------- payments ----------

type paymentRepo struct{ s *Store }

func copyTx(t payment.Transaction) *payment.Transaction {
	t.Metadata = cloneMeta(t.Metadata)
	return &t
}

func (r *paymentRepo) Create(_ context.Context, t *payment.Transaction) error {
	return r.s.view(func(st *state) error {
		for _, existing := range st.transactions {
			if existing.Gateway == t.Gateway && existing.ExternalID == t.ExternalID {
				return fmt.Errorf("%w: transaction %s/%s", xerrors.ErrConflict, t.Gateway, t.ExternalID)
			}
		}
		now := time.Now()
		st.nextTxID++
		t.ID = st.nextTxID
		if t.Status == "" {
			t.Status = payment.StatusPending
		}
		t.CreatedAt = now
		t.UpdatedAt = now
		st.transactions[t.ID] = *copyTx(*t)
		return nil
	})
}

func (r *paymentRepo) FindByID(_ context.Context, id int64) (*payment.Transaction, error) {
	var out *payment.Transaction
	err := r.s.view(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok {
			return xerrors.ErrNotFound
		}
		out = copyTx(t)
		return nil
	})
	return out, err
}

func (r *paymentRepo) FindByExternalID(_ context.Context, gateway payment.Gateway, externalID string) (*payment.Transaction, error) {
	var out *payment.Transaction
	err := r.s.view(func(st *state) error {
		for _, t := range st.transactions {
			if t.Gateway == gateway && t.ExternalID == externalID {
				out = copyTx(t)
				return nil
			}
		}
		return xerrors.ErrNotFound
	})
	return out, err
}

func (r *paymentRepo) ListByAccount(_ context.Context, accountID uuid.UUID, statuses []payment.Status, limit int) ([]payment.Transaction, error) {
	return r.list(statuses, limit, func(t payment.Transaction) bool { return t.AccountID == accountID })
}

func (r *paymentRepo) ListByGateway(_ context.Context, gateway payment.Gateway, statuses []payment.Status, limit int) ([]payment.Transaction, error) {
	return r.list(statuses, limit, func(t payment.Transaction) bool { return t.Gateway == gateway })
}

func (r *paymentRepo) list(statuses []payment.Status, limit int, match func(payment.Transaction) bool) ([]payment.Transaction, error) {
	var out []payment.Transaction
	err := r.s.view(func(st *state) error {
		for _, t := range st.transactions {
			if !match(t) {
				continue
			}
			if len(statuses) > 0 && !slices.Contains(statuses, t.Status) {
				continue
			}
			out = append(out, *copyTx(t))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *paymentRepo) CompareAndSetStatus(_ context.Context, id int64, from, to payment.Status, metadata map[string]interface{}) (bool, error) {
	swapped := false
	err := r.s.view(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok || t.Status != from {
			return nil
		}
		t.Status = to
		t.Metadata = mergeMeta(t.Metadata, metadata)
		t.UpdatedAt = time.Now()
		st.transactions[id] = t
		swapped = true
		return nil
	})
	return swapped, err
}

func (r *paymentRepo) MergeMetadata(_ context.Context, id int64, metadata map[string]interface{}) error {
	return r.s.view(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok {
			return xerrors.ErrNotFound
		}
		t.Metadata = mergeMeta(t.Metadata, metadata)
		t.UpdatedAt = time.Now()
		st.transactions[id] = t
		return nil
	})
}

func mergeMeta(dst, src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return dst
	}
	out := cloneMeta(dst)
	if out == nil {
		out = make(map[string]interface{}, len(src))
	}
	maps.Copy(out, src)
	return out
}

// ---------- orphan verifications ----------

type orphanRepo struct{ s *Store }

func (r *orphanRepo) Create(_ context.Context, v *orphan.Verification) error {
	return r.s.view(func(st *state) error {
		for _, existing := range st.verifications {
			if existing.ChildID == v.ChildID && slices.Contains(orphan.ActiveStatuses, existing.Status) {
				return xerrors.ErrVerificationExists
			}
		}
		now := time.Now()
		st.nextVerID++
		v.ID = st.nextVerID
		if v.Status == "" {
			v.Status = orphan.StatusPending
		}
		v.CreatedAt = now
		v.UpdatedAt = now
		st.verifications[v.ID] = *v
		return nil
	})
}

func (r *orphanRepo) FindByID(_ context.Context, id int64) (*orphan.Verification, error) {
	var out *orphan.Verification
	err := r.s.view(func(st *state) error {
		v, ok := st.verifications[id]
		if !ok {
			return xerrors.ErrNotFound
		}
		out = &v
		return nil
	})
	return out, err
}

func (r *orphanRepo) FindActiveByChild(_ context.Context, childID uuid.UUID) (*orphan.Verification, error) {
	var out *orphan.Verification
	err := r.s.view(func(st *state) error {
		for _, v := range st.verifications {
			if v.ChildID == childID && slices.Contains(orphan.ActiveStatuses, v.Status) {
				out = &v
				return nil
			}
		}
		return xerrors.ErrNotFound
	})
	return out, err
}

func (r *orphanRepo) LatestByChild(_ context.Context, childID uuid.UUID) (*orphan.Verification, error) {
	var out *orphan.Verification
	err := r.s.view(func(st *state) error {
		for _, v := range st.verifications {
			if v.ChildID == childID && (out == nil || v.ID > out.ID) {
				v := v
				out = &v
			}
		}
		if out == nil {
			return xerrors.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (r *orphanRepo) ListByStatus(_ context.Context, statuses []orphan.Status, limit int) ([]orphan.Verification, error) {
	var out []orphan.Verification
	err := r.s.view(func(st *state) error {
		for _, v := range st.verifications {
			if len(statuses) == 0 || slices.Contains(statuses, v.Status) {
				out = append(out, v)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *orphanRepo) CompareAndSetStatus(_ context.Context, id int64, from, to orphan.Status, reviewer uuid.UUID, reason *string, at time.Time) (bool, error) {
	swapped := false
	err := r.s.view(func(st *state) error {
		v, ok := st.verifications[id]
		if !ok || v.Status != from {
			return nil
		}
		v.Status = to
		v.ReviewedBy = &reviewer
		v.ReviewedAt = &at
		v.RejectionReason = reason
		v.UpdatedAt = at
		st.verifications[id] = v
		swapped = true
		return nil
	})
	return swapped, err
}

// ---------- events ----------

type eventRepo struct{ s *Store }

func (r *eventRepo) Append(_ context.Context, e *event.Event) error {
	return r.s.view(func(st *state) error {
		st.nextEventID++
		e.ID = st.nextEventID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		st.events = append(st.events, *e)
		return nil
	})
}

func (r *eventRepo) CountByPrefixSince(_ context.Context, accountID uuid.UUID, prefix string, since time.Time) (int, error) {
	n := 0
	err := r.s.view(func(st *state) error {
		for _, e := range st.events {
			if e.AccountID == accountID && strings.HasPrefix(e.Type, prefix) && !e.CreatedAt.Before(since) {
				n++
			}
		}
		return nil
	})
	return n, err
}
