// Package memory is an in-process implementation of repository.Store. Writes
// made inside InTx are applied to a copy and published only on success.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/event"
	"billing-service/internal/domain/orphan"
	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/subscription"
	"billing-service/internal/repository"

	"github.com/google/uuid"
)

type state struct {
	accounts map[uuid.UUID]account.Account
	children map[uuid.UUID]account.Child

	subscriptions map[uuid.UUID]subscription.Subscription
	nextSubID     int64

	transactions map[int64]payment.Transaction
	nextTxID     int64

	verifications map[int64]orphan.Verification
	nextVerID     int64

	events      []event.Event
	nextEventID int64
}

func newState() *state {
	return &state{
		accounts:      map[uuid.UUID]account.Account{},
		children:      map[uuid.UUID]account.Child{},
		subscriptions: map[uuid.UUID]subscription.Subscription{},
		transactions:  map[int64]payment.Transaction{},
		verifications: map[int64]orphan.Verification{},
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:      maps.Clone(s.accounts),
		children:      maps.Clone(s.children),
		subscriptions: make(map[uuid.UUID]subscription.Subscription, len(s.subscriptions)),
		nextSubID:     s.nextSubID,
		transactions:  make(map[int64]payment.Transaction, len(s.transactions)),
		nextTxID:      s.nextTxID,
		verifications: maps.Clone(s.verifications),
		nextVerID:     s.nextVerID,
		events:        append([]event.Event(nil), s.events...),
		nextEventID:   s.nextEventID,
	}
	for k, v := range s.subscriptions {
		v.Metadata = cloneMeta(v.Metadata)
		c.subscriptions[k] = v
	}
	for k, v := range s.transactions {
		v.Metadata = cloneMeta(v.Metadata)
		c.transactions[k] = v
	}
	return c
}

func cloneMeta(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

type db struct {
	mu    sync.Mutex
	state *state
}

// Store implements repository.Store.
type Store struct {
	db *db
	tx *state
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{db: &db{state: newState()}}
}

// view runs fn against the transaction copy, or the shared state under lock.
func (s *Store) view(fn func(st *state) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db.state)
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	working := s.db.state.clone()
	if err := fn(&Store{db: s.db, tx: working}); err != nil {
		return err
	}
	s.db.state = working
	return nil
}

func (s *Store) Accounts() account.Repository           { return &accountRepo{s} }
func (s *Store) Subscriptions() subscription.Repository { return &subscriptionRepo{s} }
func (s *Store) Payments() payment.Repository           { return &paymentRepo{s} }
func (s *Store) Orphans() orphan.Repository             { return &orphanRepo{s} }
func (s *Store) Events() event.Repository               { return &eventRepo{s} }

// AddAccount seeds an account.
func (s *Store) AddAccount(a account.Account) {
	_ = s.view(func(st *state) error {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now()
		}
		st.accounts[a.ID] = a
		return nil
	})
}

// AddChild seeds a child under an account.
func (s *Store) AddChild(c account.Child) {
	_ = s.view(func(st *state) error {
		if c.OrphanStatus == "" {
			c.OrphanStatus = account.OrphanNone
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		st.children[c.ID] = c
		return nil
	})
}

// AllEvents returns a copy of the event log in insertion order.
func (s *Store) AllEvents() []event.Event {
	var out []event.Event
	_ = s.view(func(st *state) error {
		out = append(out, st.events...)
		return nil
	})
	return out
}

// AllTransactions returns every stored payment transaction.
func (s *Store) AllTransactions() []payment.Transaction {
	var out []payment.Transaction
	_ = s.view(func(st *state) error {
		for _, t := range st.transactions {
			out = append(out, t)
		}
		return nil
	})
	return out
}
