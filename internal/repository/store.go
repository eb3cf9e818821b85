// internal/repository/store.go
package repository

import (
	"context"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/event"
	"billing-service/internal/domain/orphan"
	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/subscription"
)

// Store groups the billing repositories. Repositories returned by the Store
// passed into InTx run inside that transaction; fn returning an error rolls
// every write back.
type Store interface {
	Accounts() account.Repository
	Subscriptions() subscription.Repository
	Payments() payment.Repository
	Orphans() orphan.Repository
	Events() event.Repository

	InTx(ctx context.Context, fn func(tx Store) error) error
}
