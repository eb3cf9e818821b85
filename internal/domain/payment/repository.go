package payment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts a pending transaction; (gateway, external_id) is unique.
	Create(ctx context.Context, tx *Transaction) error
	FindByID(ctx context.Context, id int64) (*Transaction, error)
	FindByExternalID(ctx context.Context, gateway Gateway, externalID string) (*Transaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, statuses []Status, limit int) ([]Transaction, error)
	ListByGateway(ctx context.Context, gateway Gateway, statuses []Status, limit int) ([]Transaction, error)

	// CompareAndSetStatus moves a transaction from one status to another and
	// merges metadata. It returns false when the stored status was not from.
	CompareAndSetStatus(ctx context.Context, id int64, from, to Status, metadata map[string]interface{}) (bool, error)

	// MergeMetadata merges keys into the stored metadata without touching status.
	MergeMetadata(ctx context.Context, id int64, metadata map[string]interface{}) error
}
