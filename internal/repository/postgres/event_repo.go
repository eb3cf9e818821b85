// internal/repository/postgres/event_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"billing-service/internal/domain/event"

	"github.com/google/uuid"
)

type EventRepository struct {
	q querier
}

func (r *EventRepository) Append(ctx context.Context, e *event.Event) error {
	query := `
		INSERT INTO events (account_id, child_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	dataJSON, err := marshalMetadata(e.Data)
	if err != nil {
		return err
	}

	err = r.q.QueryRow(ctx, query, e.AccountID, e.ChildID, e.Type, dataJSON, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *EventRepository) CountByPrefixSince(ctx context.Context, accountID uuid.UUID, prefix string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM events
		WHERE account_id = $1 AND event_type LIKE $2 AND created_at >= $3
	`

	var n int
	if err := r.q.QueryRow(ctx, query, accountID, prefix+"%", since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
