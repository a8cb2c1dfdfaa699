package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Routing errors (ROUTING_*) - no issuer matches the PAN; never retried
	ErrorCodeRoutingNoIssuer ErrorCode = "ROUTING_NO_ISSUER"

	// Transport errors (TRANSPORT_*) - network faults talking to an
	// external party; retried with backoff up to a configured bound
	ErrorCodeTransportTimeout ErrorCode = "TRANSPORT_TIMEOUT"
	ErrorCodeTransportNetwork ErrorCode = "TRANSPORT_NETWORK"
	ErrorCodeTransportBadResp ErrorCode = "TRANSPORT_MALFORMED_RESPONSE"

	// Decline errors (DECLINE_*) - a valid terminal business outcome,
	// not a fault; never retried
	ErrorCodeDeclined ErrorCode = "DECLINE_ISSUER_REFUSED"

	// Correlation errors (CORRELATION_*) - a response references an
	// unknown transaction or external id; logged and discarded
	ErrorCodeCorrelationUnknown ErrorCode = "CORRELATION_UNKNOWN_ID"

	// Ledger errors (LEDGER_*)
	ErrorCodeLedgerNotFound      ErrorCode = "LEDGER_NOT_FOUND"
	ErrorCodeLedgerDuplicate     ErrorCode = "LEDGER_DUPLICATE_ORDER"
	ErrorCodeLedgerStateConflict ErrorCode = "LEDGER_STATE_CONFLICT"
	ErrorCodeLedgerTerminal      ErrorCode = "LEDGER_TERMINAL_STATE"

	// Validation errors (VALIDATION_*)
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// GetErrorCode extracts the error code from an error, returns empty
// string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsRoutingError reports whether the error is a routing failure
func IsRoutingError(err error) bool {
	return GetErrorCode(err) == ErrorCodeRoutingNoIssuer
}

// IsTransportError reports whether the error is a retryable transport fault
func IsTransportError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeTransportTimeout ||
		code == ErrorCodeTransportNetwork ||
		code == ErrorCodeTransportBadResp
}

// IsDeclineError reports whether the error is an explicit issuer decline
func IsDeclineError(err error) bool {
	return GetErrorCode(err) == ErrorCodeDeclined
}

// IsCorrelationError reports whether the error references an
// unattributable transaction or external id
func IsCorrelationError(err error) bool {
	return GetErrorCode(err) == ErrorCodeCorrelationUnknown
}

// Structured error instances
var (
	ErrNoIssuerRoute = NewDomainError(ErrorCodeRoutingNoIssuer, "no issuer route matches card")

	ErrGatewayTimeout    = NewDomainError(ErrorCodeTransportTimeout, "external party timed out")
	ErrGatewayNetwork    = NewDomainError(ErrorCodeTransportNetwork, "network error reaching external party")
	ErrMalformedResponse = NewDomainError(ErrorCodeTransportBadResp, "malformed response from external party")

	ErrIssuerDeclined = NewDomainError(ErrorCodeDeclined, "issuer declined authorization")

	ErrUnknownCorrelation = NewDomainError(ErrorCodeCorrelationUnknown, "response references unknown transaction")

	ErrTransactionNotFound = NewDomainError(ErrorCodeLedgerNotFound, "transaction not found")
	ErrDuplicateOrder      = NewDomainError(ErrorCodeLedgerDuplicate, "merchant order already has a transaction on this rail")
	ErrStateConflict       = NewDomainError(ErrorCodeLedgerStateConflict, "transaction state changed concurrently")
	ErrTerminalState       = NewDomainError(ErrorCodeLedgerTerminal, "transaction is in a terminal state")

	ErrValidationFailed = NewDomainError(ErrorCodeValidationFailed, "validation failed")
)
