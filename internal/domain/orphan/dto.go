// internal/domain/orphan/dto.go
package orphan

import "github.com/google/uuid"

type SubmitRequest struct {
	ChildID        uuid.UUID    `json:"child_id" binding:"required"`
	DocumentType   DocumentType `json:"document_type" binding:"required,oneof=death_certificate ngo_letter other"`
	DocumentName   string       `json:"document_name" binding:"required,max=200"`
	DocumentBase64 string       `json:"document_base64" binding:"required"`
}

type Decision string

const (
	DecisionApprove Decision = "approved"
	DecisionReject  Decision = "rejected"
)

type ReviewRequest struct {
	Status          Decision `json:"status" binding:"required,oneof=approved rejected"`
	RejectionReason string   `json:"rejection_reason" binding:"max=500"`
}

type RevokeRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}
