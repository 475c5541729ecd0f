package h402

import "context"

// SchemeNetworkClient is implemented by client-side payment builders. It
// returns only the namespace payload; the caller stamps the base fields.
type SchemeNetworkClient interface {
	Scheme() string
	Namespace() Namespace
	CreatePaymentPayload(ctx context.Context, version int, requirements PaymentRequirements) (Payload, error)
}

// SchemeNetworkFacilitator is implemented by facilitator-side mechanisms.
//
// Verify returns a VerifyResponse with IsValid false for payloads that are
// well formed but do not pay what the requirements ask for. A non-nil error
// means the mechanism could not reach a verdict.
type SchemeNetworkFacilitator interface {
	Scheme() string
	Namespace() Namespace

	// Networks lists the network ids this mechanism can serve
	Networks() []string

	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error)
}

// DecimalsResolver resolves the decimals of the token named by requirements
type DecimalsResolver interface {
	TokenDecimals(ctx context.Context, requirements PaymentRequirements) (int32, error)
}

// FacilitatorClient verifies and settles payments against a remote
// facilitator. Transport failures are reported in the response, never as
// errors, so callers can always render a result.
type FacilitatorClient interface {
	Verify(ctx context.Context, payload string, requirements PaymentRequirements) FacilitatorResponse[VerifyResponse]
	Settle(ctx context.Context, payload string, requirements PaymentRequirements) FacilitatorResponse[SettleResponse]
}
