package h402

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrInvalidPaymentPayload = errors.New("h402: invalid payment payload")
	ErrUnknownPayloadType    = errors.New("h402: unknown payload type")
	ErrUnsupportedNamespace  = errors.New("h402: unsupported namespace")
	ErrUnsupportedScheme     = errors.New("h402: unsupported scheme")
	ErrUnsupportedNetwork    = errors.New("h402: unsupported network")
	ErrMissingCapability     = errors.New("h402: missing client capability")
	ErrNotERC20Compliant     = errors.New("h402: token is not ERC-20 compliant")
	ErrInvalidAmount         = errors.New("h402: invalid amount")
	ErrNoRequirements        = errors.New("h402: no payment requirements")
)

// Verify and settle reasons shared by every namespace. Mechanisms add their
// own field-specific reasons prefixed with invalid_payload_.
const (
	ReasonInvalidScheme         = "invalid_scheme"
	ReasonInvalidNetwork        = "invalid_network"
	ReasonInvalidPayload        = "invalid_payload"
	ReasonResourceMismatch      = "invalid_payload_resource_mismatch"
	ReasonInvalidRequirements   = "invalid_payment_requirements"
	ReasonUnexpectedVerifyError = "unexpected_verify_error"
	ReasonUnexpectedSettleError = "unexpected_settle_error"
	ReasonSettlementInProgress  = "settlement_in_progress"
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail entry and returns the error
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewPaymentError creates a new payment error wrapping err
func NewPaymentError(code, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MissingCapabilityError reports a wallet client that lacks every method a
// builder could use, e.g. "client must implement either SignTransaction or SendTransaction"
func MissingCapabilityError(message string) error {
	return NewPaymentError("missing_capability", message, ErrMissingCapability)
}

func invalidPayload(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidPaymentPayload, fmt.Sprintf(format, args...))
}
