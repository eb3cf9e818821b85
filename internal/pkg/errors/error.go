package xerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error. The set is closed; every kind maps to
// exactly one HTTP status at the boundary.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindUnauthorized         Kind = "unauthorized"
	KindForbidden            Kind = "forbidden"
	KindSubscriptionRequired Kind = "subscription_required"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindTrialExpired         Kind = "trial_expired"
	KindSubscriptionInactive Kind = "subscription_inactive"
	KindQuotaExceeded        Kind = "quota_exceeded"
	KindSignatureInvalid     Kind = "signature_invalid"
	KindProviderFailure      Kind = "provider_failure"
	KindInternal             Kind = "internal"
)

var kindStatus = map[Kind]int{
	KindValidation:           http.StatusBadRequest,
	KindUnauthorized:         http.StatusUnauthorized,
	KindForbidden:            http.StatusForbidden,
	KindSubscriptionRequired: http.StatusForbidden,
	KindNotFound:             http.StatusNotFound,
	KindConflict:             http.StatusConflict,
	KindTrialExpired:         http.StatusPaymentRequired,
	KindSubscriptionInactive: http.StatusPaymentRequired,
	KindQuotaExceeded:        http.StatusTooManyRequests,
	KindSignatureInvalid:     http.StatusUnauthorized,
	KindProviderFailure:      http.StatusBadGateway,
	KindInternal:             http.StatusInternalServerError,
}

// HTTPStatus returns the status code the boundary should answer with.
func (k Kind) HTTPStatus() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is a tagged application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Tag wraps err with a kind and message. Returns nil when err is nil.
func Tag(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Common reusable application errors
var (
	ErrNotFound     = New(KindNotFound, "resource not found")
	ErrUnauthorized = New(KindUnauthorized, "unauthorized access")
	ErrForbidden    = New(KindForbidden, "forbidden")
	ErrInvalidInput = New(KindValidation, "invalid input")
	ErrConflict     = New(KindConflict, "conflict: resource already exists")
	ErrInternal     = New(KindInternal, "internal server error")

	// Access guard reasons
	ErrSubscriptionRequired = New(KindSubscriptionRequired, "subscription required")
	ErrTrialExpired         = New(KindTrialExpired, "trial expired")
	ErrTrialAILimit         = New(KindQuotaExceeded, "trial AI limit reached")
	ErrSubscriptionInactive = New(KindSubscriptionInactive, "subscription inactive")

	// Payments
	ErrUnsupportedCurrency = New(KindValidation, "unsupported currency")
	ErrUnsupportedGateway  = New(KindValidation, "unsupported payment gateway")
	ErrInvalidSignature    = New(KindSignatureInvalid, "invalid webhook signature")
	ErrPaymentInProgress   = New(KindConflict, "another payment is being created for this account")

	// Orphan workflow
	ErrUnsupportedDocument    = New(KindValidation, "unsupported document type")
	ErrVerificationExists     = New(KindConflict, "verification already submitted")
	ErrOrphanRequiresOneChild = New(KindForbidden, "orphan plan requires a single child on the account")
	ErrPaidSubscriptionExists = New(KindForbidden, "paid subscription must be canceled before orphan approval")
	ErrOrphanOverrideActive   = New(KindConflict, "orphan override is active for this account")
)

// KindOf returns the kind of err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
