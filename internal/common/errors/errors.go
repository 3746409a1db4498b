// internal/common/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode is the stable, machine-readable kind of a failure.
type ErrorCode string

const (
	// State machine
	ErrCodeInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeGateNotSatisfied       ErrorCode = "GATE_NOT_SATISFIED"

	// Documents and e-sign
	ErrCodeDocumentsNotReady     ErrorCode = "DOCUMENTS_NOT_READY"
	ErrCodeInvalidDocumentState  ErrorCode = "INVALID_DOCUMENT_STATE"
	ErrCodeDocumentAlreadySigned ErrorCode = "DOCUMENT_ALREADY_SIGNED"

	// Payment and finance
	ErrCodeAmountMismatch         ErrorCode = "AMOUNT_MISMATCH"
	ErrCodeInvalidFinanceInput    ErrorCode = "INVALID_FINANCE_INPUT"
	ErrCodePaymentLocked          ErrorCode = "PAYMENT_LOCKED"
	ErrCodeFinancePlanLocked      ErrorCode = "FINANCE_PLAN_LOCKED"
	ErrCodePaymentAlreadyRecorded ErrorCode = "PAYMENT_ALREADY_RECORDED"

	// Generic
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeCollaboratorFailed ErrorCode = "COLLABORATOR_FAILED"
	ErrCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// Gate names reported by GATE_NOT_SATISFIED.
const (
	GateEsign         = "esign"
	GatePayment       = "payment"
	GateQuoteApproval = "quote_approval"
)

// StandardError is the error shape shared by the API, the core and the workers.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// Is matches on code, so errors.Is(err, &StandardError{Code: X}) works.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	return ok && t.Code == e.Code
}

// WithMetadata sets a metadata key and returns the receiver.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// As extracts a StandardError anywhere in err's chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

// CodeOf returns the code of err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := As(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Normalize wraps an arbitrary error as INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	e := newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
	e.cause = err
	return e
}

// ==========================
// Constructors
// ==========================

func NewInvalidTransitionError(entity, from, operation string) *StandardError {
	return newError(ErrCodeInvalidTransition, "Illegal state transition",
		fmt.Sprintf("%s in status %s does not allow %s", entity, from, operation), false).
		WithMetadata("status", from).
		WithMetadata("operation", operation)
}

func NewConcurrentModificationError(entity, id string) *StandardError {
	return newError(ErrCodeConcurrentModification, "Record was modified concurrently",
		fmt.Sprintf("%s %s changed since it was read", entity, id), true)
}

func NewGateNotSatisfiedError(gates ...string) *StandardError {
	return newError(ErrCodeGateNotSatisfied, "Gate not satisfied",
		"unmet: "+strings.Join(gates, ", "), false).
		WithMetadata("gates", gates)
}

func NewDocumentsNotReadyError(missing []string) *StandardError {
	return newError(ErrCodeDocumentsNotReady, "Required documents are missing",
		"missing: "+strings.Join(missing, ", "), false).
		WithMetadata("missing", missing)
}

func NewInvalidDocumentStateError(documentType, state string) *StandardError {
	return newError(ErrCodeInvalidDocumentState, "Document is not in a valid state",
		fmt.Sprintf("%s is %s", documentType, state), false).
		WithMetadata("documentType", documentType).
		WithMetadata("signatureStatus", state)
}

func NewDocumentAlreadySignedError(documentType string) *StandardError {
	return newError(ErrCodeDocumentAlreadySigned, "Signed documents cannot be regenerated",
		fmt.Sprintf("documentType: %s", documentType), false).
		WithMetadata("documentType", documentType)
}

func NewAmountMismatchError(expected, actual string) *StandardError {
	return newError(ErrCodeAmountMismatch, "Payment amount does not match the amount due",
		fmt.Sprintf("expected %s, got %s", expected, actual), false).
		WithMetadata("expected", expected).
		WithMetadata("actual", actual)
}

func NewInvalidFinanceInputError(details string) *StandardError {
	return newError(ErrCodeInvalidFinanceInput, "Invalid financing terms", details, false)
}

func NewPaymentLockedError(submissionID string) *StandardError {
	return newError(ErrCodePaymentLocked, "Payment is locked until e-signature completes",
		fmt.Sprintf("submissionId: %s", submissionID), false)
}

func NewFinancePlanLockedError(quoteID, reason string) *StandardError {
	return newError(ErrCodeFinancePlanLocked, "Finance plan can no longer change",
		fmt.Sprintf("quoteId: %s, %s", quoteID, reason), false)
}

func NewPaymentAlreadyRecordedError(quoteID string) *StandardError {
	return newError(ErrCodePaymentAlreadyRecorded, "Quote is already paid",
		fmt.Sprintf("quoteId: %s", quoteID), false)
}

func NewNotFoundError(resource, id string) *StandardError {
	return newError(ErrCodeNotFound, "Resource not found",
		fmt.Sprintf("%s: %s", resource, id), false).
		WithMetadata("resource", resource)
}

func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Input validation failed", details, false)
}

// NewCollaboratorError reports a failing external dependency (renderer,
// storage, e-sign provider, payment capture, broker). Callers may retry.
func NewCollaboratorError(collaborator string, err error) *StandardError {
	e := newError(ErrCodeCollaboratorFailed, "External collaborator failed",
		fmt.Sprintf("%s: %v", collaborator, err), true).
		WithMetadata("collaborator", collaborator)
	e.cause = err
	return e
}

func NewDatabaseError(operation string, err error) *StandardError {
	e := newError(ErrCodeDatabaseError, "Database operation failed",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true)
	e.cause = err
	return e
}

func NewUnauthorizedError(details string) *StandardError {
	return newError(ErrCodeUnauthorized, "Authentication required", details, false)
}

func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "Operation not permitted for this actor", details, false)
}

func NewInternalError(err error) *StandardError {
	e := newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
	e.cause = err
	return e
}

// HTTPStatus maps a code to the response status used by the API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeValidationFailed, ErrCodeInvalidFinanceInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeInvalidTransition, ErrCodeConcurrentModification,
		ErrCodeInvalidDocumentState, ErrCodeDocumentAlreadySigned,
		ErrCodeFinancePlanLocked, ErrCodePaymentAlreadyRecorded:
		return http.StatusConflict
	case ErrCodeGateNotSatisfied, ErrCodeDocumentsNotReady,
		ErrCodeAmountMismatch, ErrCodePaymentLocked:
		return http.StatusUnprocessableEntity
	case ErrCodeCollaboratorFailed:
		return http.StatusBadGateway
	case ErrCodeDatabaseError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// BPMN conversion
// ==========================

// BPMNError is what a job worker throws into the process instance.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        GetRetryCount(stdErr.Code),
		ErrorVariables: stdErr.Metadata,
	}
}

// GetRetryCount is the number of job retries a code is worth.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeCollaboratorFailed, ErrCodeDatabaseError:
		return 3
	case ErrCodeConcurrentModification:
		return 2
	default:
		return 0
	}
}

func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidTransition, ErrCodeConcurrentModification:
		return "STATE"
	case ErrCodeGateNotSatisfied, ErrCodePaymentLocked:
		return "GATE"
	case ErrCodeDocumentsNotReady, ErrCodeInvalidDocumentState, ErrCodeDocumentAlreadySigned:
		return "DOCUMENT"
	case ErrCodeAmountMismatch, ErrCodeInvalidFinanceInput, ErrCodeFinancePlanLocked,
		ErrCodePaymentAlreadyRecorded, ErrCodeValidationFailed, ErrCodeNotFound:
		return "VALIDATION"
	case ErrCodeCollaboratorFailed, ErrCodeDatabaseError:
		return "INFRASTRUCTURE"
	case ErrCodeUnauthorized, ErrCodeForbidden:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}
