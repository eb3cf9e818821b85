// internal/repository/postgres/orphan_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-service/internal/domain/orphan"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

type OrphanRepository struct {
	q querier
}

const verificationColumns = `
	id, child_id, account_id, document_type, document_key, mime_type, status,
	reviewed_by, reviewed_at, rejection_reason, created_at, updated_at
`

func scanVerification(row pgx.Row) (*orphan.Verification, error) {
	var v orphan.Verification
	err := row.Scan(
		&v.ID, &v.ChildID, &v.AccountID, &v.DocumentType, &v.DocumentKey, &v.MimeType, &v.Status,
		&v.ReviewedBy, &v.ReviewedAt, &v.RejectionReason, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *OrphanRepository) Create(ctx context.Context, v *orphan.Verification) error {
	query := `
		INSERT INTO orphan_verifications (
			child_id, account_id, document_type, document_key, mime_type, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	if v.Status == "" {
		v.Status = orphan.StatusPending
	}

	err := r.q.QueryRow(ctx, query,
		v.ChildID, v.AccountID, v.DocumentType, v.DocumentKey, v.MimeType, v.Status,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if isUniqueViolation(err) {
		return xerrors.ErrVerificationExists
	}
	if err != nil {
		return fmt.Errorf("failed to create orphan verification: %w", err)
	}
	return nil
}

func (r *OrphanRepository) FindByID(ctx context.Context, id int64) (*orphan.Verification, error) {
	return r.findOne(ctx, `SELECT `+verificationColumns+` FROM orphan_verifications WHERE id = $1`, id)
}

func (r *OrphanRepository) FindActiveByChild(ctx context.Context, childID uuid.UUID) (*orphan.Verification, error) {
	return r.findOne(ctx, `
		SELECT `+verificationColumns+`
		FROM orphan_verifications
		WHERE child_id = $1 AND status = ANY($2)
		LIMIT 1
	`, childID, pq.Array(statusStrings(orphan.ActiveStatuses)))
}

func (r *OrphanRepository) LatestByChild(ctx context.Context, childID uuid.UUID) (*orphan.Verification, error) {
	return r.findOne(ctx, `
		SELECT `+verificationColumns+`
		FROM orphan_verifications
		WHERE child_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, childID)
}

func (r *OrphanRepository) findOne(ctx context.Context, query string, args ...any) (*orphan.Verification, error) {
	v, err := scanVerification(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find orphan verification: %w", err)
	}
	return v, nil
}

func (r *OrphanRepository) ListByStatus(ctx context.Context, statuses []orphan.Status, limit int) ([]orphan.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM orphan_verifications`
	var args []any

	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(statusStrings(statuses)))
	}
	query += ` ORDER BY id ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan verifications: %w", err)
	}
	defer rows.Close()

	var out []orphan.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan orphan verification: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *OrphanRepository) CompareAndSetStatus(ctx context.Context, id int64, from, to orphan.Status, reviewer uuid.UUID, reason *string, at time.Time) (bool, error) {
	query := `
		UPDATE orphan_verifications
		SET status = $1, reviewed_by = $2, reviewed_at = $3, rejection_reason = $4, updated_at = $3
		WHERE id = $5 AND status = $6
	`

	result, err := r.q.Exec(ctx, query, to, reviewer, at, reason, id, from)
	if isUniqueViolation(err) {
		return false, xerrors.ErrVerificationExists
	}
	if err != nil {
		return false, fmt.Errorf("failed to review orphan verification: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func statusStrings(statuses []orphan.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
