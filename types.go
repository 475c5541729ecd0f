package h402

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Version is the h402 protocol version stamped on payloads built by this module
const Version = 1

// Namespace identifies the blockchain family a payment targets
type Namespace string

const (
	NamespaceEVM    Namespace = "evm"
	NamespaceSolana Namespace = "solana"
	NamespaceArkade Namespace = "arkade"
)

// SchemeExact pays an exact specified amount
const SchemeExact = "exact"

// AmountFormat describes how PaymentRequirements.AmountRequired is expressed
type AmountFormat string

const (
	AmountFormatAtomic        AmountFormat = "atomic"
	AmountFormatSmallestUnit  AmountFormat = "smallestUnit"
	AmountFormatFormatted     AmountFormat = "formatted"
	AmountFormatHumanReadable AmountFormat = "humanReadable"
)

// IsAtomic reports whether the format already denotes the token's smallest unit.
// An empty format is treated as atomic.
func (f AmountFormat) IsAtomic() bool {
	return f == "" || f == AmountFormatAtomic || f == AmountFormatSmallestUnit
}

// BigInt is an arbitrary precision integer that travels as a decimal string
type BigInt struct {
	big.Int
}

// NewBigInt copies x into a BigInt
func NewBigInt(x *big.Int) *BigInt {
	b := &BigInt{}
	if x != nil {
		b.Set(x)
	}
	return b
}

// NewBigIntFromInt64 returns a BigInt holding v
func NewBigIntFromInt64(v int64) *BigInt {
	b := &BigInt{}
	b.SetInt64(v)
	return b
}

// ParseBigInt parses a base-10 integer string
func ParseBigInt(s string) (*BigInt, error) {
	b := &BigInt{}
	if _, ok := b.SetString(s, 10); !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return b, nil
}

// MustBigInt is ParseBigInt that panics on malformed input
func MustBigInt(s string) *BigInt {
	b, err := ParseBigInt(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Big returns the underlying big.Int
func (b *BigInt) Big() *big.Int {
	if b == nil {
		return nil
	}
	return &b.Int
}

func (b *BigInt) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	return json.Marshal(b.Int.String())
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if _, ok := b.SetString(s, 10); !ok {
		return fmt.Errorf("invalid integer %q", s)
	}
	return nil
}

// Amount is a decimal amount carried as text so large values and fractional
// human-readable amounts survive JSON without float rounding
type Amount string

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Amount(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a string or number: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// BigInt interprets the amount as an atomic integer
func (a Amount) BigInt() (*big.Int, error) {
	v, ok := new(big.Int).SetString(string(a), 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not an integer", string(a))
	}
	return v, nil
}

// PaymentRequirements defines what payment is acceptable for a resource
type PaymentRequirements struct {
	Scheme                  string                 `json:"scheme"`
	Namespace               Namespace              `json:"namespace"`
	NetworkID               string                 `json:"networkId"`
	AmountRequired          Amount                 `json:"amountRequired"`
	AmountRequiredFormat    AmountFormat           `json:"amountRequiredFormat"`
	PayToAddress            string                 `json:"payToAddress"`
	TokenAddress            string                 `json:"tokenAddress"`
	TokenDecimals           *int                   `json:"tokenDecimals,omitempty"`
	TokenSymbol             string                 `json:"tokenSymbol,omitempty"`
	Resource                string                 `json:"resource"`
	Description             string                 `json:"description"`
	MimeType                string                 `json:"mimeType"`
	OutputSchema            map[string]interface{} `json:"outputSchema,omitempty"`
	EstimatedProcessingTime int                    `json:"estimatedProcessingTime"`
	Extra                   map[string]interface{} `json:"extra,omitempty"`
}

// ExtraString returns a string value from Extra, or "" when absent
func (r PaymentRequirements) ExtraString(key string) string {
	if r.Extra == nil {
		return ""
	}
	if s, ok := r.Extra[key].(string); ok {
		return s
	}
	return ""
}

// ExtraBool returns a bool value from Extra, or false when absent
func (r PaymentRequirements) ExtraBool(key string) bool {
	if r.Extra == nil {
		return false
	}
	b, _ := r.Extra[key].(bool)
	return b
}

// AtomicAmount returns the required amount as an integer. The requirements
// must already be normalized.
func (r PaymentRequirements) AtomicAmount() (*big.Int, error) {
	if !r.AmountRequiredFormat.IsAtomic() {
		return nil, fmt.Errorf("amount %q is %s, normalize before comparing", r.AmountRequired, r.AmountRequiredFormat)
	}
	return r.AmountRequired.BigInt()
}

// PaymentRequired is the body of a 402 response
type PaymentRequired struct {
	H402Version int                   `json:"h402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       *string               `json:"error"`
}

// VerificationType tells whether a verification inspected the payload itself
// or a transaction that is already on chain
type VerificationType string

const (
	VerificationTypePayload     VerificationType = "payload"
	VerificationTypeTransaction VerificationType = "transaction"
)

// VerifyResponse contains the verification result
type VerifyResponse struct {
	IsValid       bool             `json:"isValid"`
	Type          VerificationType `json:"type,omitempty"`
	TxHash        string           `json:"txHash,omitempty"`
	ErrorMessage  string           `json:"errorMessage,omitempty"`
	InvalidReason string           `json:"invalidReason,omitempty"`
	Payer         string           `json:"payer,omitempty"`
}

// Invalid builds a failed VerifyResponse
func Invalid(reason, message string) VerifyResponse {
	return VerifyResponse{IsValid: false, InvalidReason: reason, ErrorMessage: message}
}

// SettleResponse contains the settlement result
type SettleResponse struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"txHash,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SettleFailure builds a failed SettleResponse with an empty transaction
func SettleFailure(reason, message, network string) SettleResponse {
	return SettleResponse{
		Success:     false,
		Transaction: "",
		Network:     network,
		ErrorReason: reason,
		Error:       message,
	}
}

// FacilitatorResponse is the envelope returned by a facilitator service.
// Exactly one of Data and Error is set.
type FacilitatorResponse[T any] struct {
	Data  *T     `json:"data"`
	Error string `json:"error,omitempty"`
}

// SupportedKind is a single namespace/scheme/network a facilitator accepts
type SupportedKind struct {
	H402Version int                    `json:"h402Version"`
	Scheme      string                 `json:"scheme"`
	Namespace   Namespace              `json:"namespace"`
	NetworkID   string                 `json:"networkId"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse describes what payment kinds a facilitator supports
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
