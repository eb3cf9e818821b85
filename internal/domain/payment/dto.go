// internal/domain/payment/dto.go
package payment

import "github.com/google/uuid"

type CreatePaymentRequest struct {
	Amount        int64                  `json:"amount" binding:"required,gt=0"`
	Currency      string                 `json:"currency" binding:"required,len=3"`
	Gateway       string                 `json:"gateway" binding:"omitempty,oneof=payoneer jazzcash easypaisa"`
	ReturnURL     string                 `json:"return_url" binding:"required,url"`
	CustomerEmail string                 `json:"customer_email" binding:"omitempty,email"`
	CustomerPhone string                 `json:"customer_phone"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// CreatePaymentParams is the service level input; AccountID comes from the token.
type CreatePaymentParams struct {
	AccountID uuid.UUID
	CreatePaymentRequest
}

type CreatePaymentResult struct {
	RedirectURL    string  `json:"redirect_url"`
	ExternalID     string  `json:"external_id"`
	ReferenceID    string  `json:"reference_id"`
	Gateway        Gateway `json:"gateway"`
	SubscriptionID int64   `json:"subscription_id"`
	TransactionID  int64   `json:"transaction_id"`
}

// ManualPaymentRequest is a guardian's report of a PKR transfer made outside
// the gateways, e.g. a bank deposit or a wallet send to the company number.
type ManualPaymentRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	PaymentMethod string `json:"payment_method" binding:"required,oneof=jazzcash easypaisa bank_transfer"`
	PlanType      string `json:"plan_type" binding:"omitempty,oneof=monthly yearly"`
	TransferRef   string `json:"transfer_reference" binding:"max=100"`
	SenderNumber  string `json:"sender_number" binding:"max=32"`
	Notes         string `json:"notes" binding:"max=500"`
	ReceiptName   string `json:"receipt_name"`
	ReceiptBase64 string `json:"receipt_base64"`
}

// ManualDecision is an operator's verdict on a manual transfer.
type ManualDecision struct {
	Status          Status `json:"status" binding:"required,oneof=succeeded failed"`
	RejectionReason string `json:"rejection_reason" binding:"max=500"`
}

type RefundRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// Outcome describes what a webhook delivery did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnknown   Outcome = "unknown"
	OutcomeMerged    Outcome = "merged"
)

type WebhookResult struct {
	Outcome     Outcome `json:"outcome"`
	ExternalID  string  `json:"external_id,omitempty"`
	Status      Status  `json:"status,omitempty"`
	Transaction int64   `json:"transaction_id,omitempty"`
}
