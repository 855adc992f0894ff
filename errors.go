package market

import "errors"

// Sentinel errors for market protocol operations.
var (
	// ErrLedgerUnavailable indicates no configured ledger endpoint is
	// reachable. Fatal during seller startup, retryable per request.
	ErrLedgerUnavailable = errors.New("market: no ledger endpoint reachable")

	// ErrTransactionReverted indicates the ledger rejected the paying call.
	ErrTransactionReverted = errors.New("market: transaction reverted")

	// ErrProofInvalid indicates a presented proof was definitively rejected:
	// the referenced transaction failed, is unknown, or contains no matching
	// payment event. Not retryable.
	ErrProofInvalid = errors.New("market: payment proof invalid")

	// ErrProofTransport indicates the receipt for a presented proof could
	// not be fetched from the ledger. Safe to retry.
	ErrProofTransport = errors.New("market: could not fetch payment receipt")

	// ErrDeliveryFailed indicates the payment confirmed on-chain but the
	// seller call did not complete. Funds were spent; the recommended
	// recovery is retrying the seller call with the same proof.
	ErrDeliveryFailed = errors.New("market: delivery failed after payment")

	// ErrUnknownService indicates the requested service id is not in the
	// registry. Reported before any payment is attempted.
	ErrUnknownService = errors.New("market: unknown service")

	// ErrInvalidAmount indicates a malformed or negative amount string.
	ErrInvalidAmount = errors.New("market: invalid amount")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("market: invalid private key")
)

// ErrorCode classifies market errors for programmatic handling.
type ErrorCode string

const (
	// ErrCodeLedgerUnavailable indicates all ledger endpoints are down.
	ErrCodeLedgerUnavailable ErrorCode = "LEDGER_UNAVAILABLE"

	// ErrCodeTransactionReverted indicates the paying call reverted.
	ErrCodeTransactionReverted ErrorCode = "TRANSACTION_REVERTED"

	// ErrCodeProofInvalid indicates a definitively invalid payment proof.
	ErrCodeProofInvalid ErrorCode = "PROOF_INVALID"

	// ErrCodeProofTransport indicates receipt retrieval failed.
	ErrCodeProofTransport ErrorCode = "PROOF_TRANSPORT_ERROR"

	// ErrCodeDeliveryFailed indicates payment succeeded but delivery did not.
	ErrCodeDeliveryFailed ErrorCode = "DELIVERY_FAILED_AFTER_PAYMENT"

	// ErrCodeUnknownService indicates the service id is not registered.
	ErrCodeUnknownService ErrorCode = "UNKNOWN_SERVICE"
)

// MarketError provides structured error information alongside a
// machine-checkable code, so every failure path can distinguish "nothing
// happened" from "payment happened but delivery did not".
type MarketError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *MarketError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *MarketError) Unwrap() error {
	return e.Err
}

// NewMarketError creates a MarketError with the given code and message.
func NewMarketError(code ErrorCode, message string, err error) *MarketError {
	return &MarketError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *MarketError) WithDetails(key string, value interface{}) *MarketError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns the empty code if err carries no MarketError.
func CodeOf(err error) ErrorCode {
	var me *MarketError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
