// internal/domain/orphan/entity.go
package orphan

import (
	"context"
	"time"

	"billing-service/internal/domain/account"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ActiveStatuses block a new submission for the same child.
var ActiveStatuses = []Status{StatusPending, StatusApproved}

type DocumentType string

const (
	DocumentDeathCertificate DocumentType = "death_certificate"
	DocumentNGOLetter        DocumentType = "ngo_letter"
	DocumentOther            DocumentType = "other"
)

func (d DocumentType) Valid() bool {
	switch d {
	case DocumentDeathCertificate, DocumentNGOLetter, DocumentOther:
		return true
	}
	return false
}

type Verification struct {
	ID              int64        `json:"id" db:"id"`
	ChildID         uuid.UUID    `json:"child_id" db:"child_id"`
	AccountID       uuid.UUID    `json:"account_id" db:"account_id"`
	DocumentType    DocumentType `json:"document_type" db:"document_type"`
	DocumentKey     string       `json:"document_key" db:"document_key"`
	MimeType        string       `json:"mime_type" db:"mime_type"`
	Status          Status       `json:"status" db:"status"`
	ReviewedBy      *uuid.UUID   `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty" db:"reviewed_at"`
	RejectionReason *string      `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// StatusView is what a guardian or reviewer sees for one child.
type StatusView struct {
	Child        *account.Child `json:"child"`
	Verification *Verification  `json:"verification,omitempty"`
}

type Repository interface {
	// Create fails with xerrors.ErrVerificationExists when the child already
	// has a pending or approved verification.
	Create(ctx context.Context, v *Verification) error
	FindByID(ctx context.Context, id int64) (*Verification, error)
	FindActiveByChild(ctx context.Context, childID uuid.UUID) (*Verification, error)
	LatestByChild(ctx context.Context, childID uuid.UUID) (*Verification, error)
	ListByStatus(ctx context.Context, statuses []Status, limit int) ([]Verification, error)

	// CompareAndSetStatus records a review decision only if the stored status is from.
	CompareAndSetStatus(ctx context.Context, id int64, from, to Status, reviewer uuid.UUID, reason *string, at time.Time) (bool, error)
}
