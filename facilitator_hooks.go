package h402

import (
	"context"
	"time"
)

// FacilitatorVerifyContext is passed to verify hooks.
//
// Before hooks see the requirements as the caller sent them. Once the amount
// has been normalized to atomic units, PaymentRequirements holds the
// normalized copy, which is what after and failure hooks receive.
type FacilitatorVerifyContext struct {
	Ctx                 context.Context
	PaymentPayload      PaymentPayload
	PaymentRequirements PaymentRequirements
	Timestamp           time.Time
}

// FacilitatorVerifyResultContext carries a completed verification
type FacilitatorVerifyResultContext struct {
	FacilitatorVerifyContext
	Result   VerifyResponse
	Duration time.Duration
}

// FacilitatorVerifyFailureContext carries a verification that errored
type FacilitatorVerifyFailureContext struct {
	FacilitatorVerifyContext
	Error    error
	Duration time.Duration
}

// FacilitatorSettleContext is passed to settle hooks
type FacilitatorSettleContext struct {
	Ctx                 context.Context
	PaymentPayload      PaymentPayload
	PaymentRequirements PaymentRequirements
	Timestamp           time.Time
}

// FacilitatorSettleResultContext carries a completed settlement
type FacilitatorSettleResultContext struct {
	FacilitatorSettleContext
	Result   SettleResponse
	Duration time.Duration
}

// FacilitatorSettleFailureContext carries a settlement that errored
type FacilitatorSettleFailureContext struct {
	FacilitatorSettleContext
	Error    error
	Duration time.Duration
}

// FacilitatorBeforeHookResult represents the result of a facilitator "before" hook.
// If Abort is true, the operation stops and Reason becomes the invalid or
// error reason of the response. A nil result lets the operation proceed.
type FacilitatorBeforeHookResult struct {
	Abort  bool
	Reason string
}

// FacilitatorVerifyFailureHookResult represents the result of a verify failure hook.
// If Recovered is true, Result is returned to the caller in place of the
// unexpected_verify_error response and later failure hooks are skipped.
type FacilitatorVerifyFailureHookResult struct {
	Recovered bool
	Result    VerifyResponse
}

// FacilitatorSettleFailureHookResult replaces the failure with Result when Recovered is set
type FacilitatorSettleFailureHookResult struct {
	Recovered bool
	Result    SettleResponse
}

// FacilitatorBeforeVerifyHook is called before the mechanism verifies a payment.
//
// Hooks run in registration order after the payload has been routed, so the
// scheme, network and resource already match the requirements. If a hook
// returns a result with Abort=true, verification is skipped and an invalid
// VerifyResponse carrying the hook's reason is returned. A returned error
// also skips verification and surfaces as unexpected_verify_error.
type FacilitatorBeforeVerifyHook func(FacilitatorVerifyContext) (*FacilitatorBeforeHookResult, error)

// FacilitatorAfterVerifyHook is called after the mechanism returns a
// verification result, valid or not.
// Any error returned is logged but does not affect the result.
type FacilitatorAfterVerifyHook func(FacilitatorVerifyResultContext) error

// FacilitatorOnVerifyFailureHook is called when the mechanism returns an error
// instead of a verification result, typically an RPC outage.
// If it returns a result with Recovered=true, the provided VerifyResponse is
// returned instead of the error. Errors from the hook itself are ignored.
type FacilitatorOnVerifyFailureHook func(FacilitatorVerifyFailureContext) (*FacilitatorVerifyFailureHookResult, error)

// FacilitatorBeforeSettleHook is called before facilitator payment settlement,
// after the payment has verified.
// If it returns a result with Abort=true, settlement is aborted and a failed
// SettleResponse is returned with the provided reason.
type FacilitatorBeforeSettleHook func(FacilitatorSettleContext) (*FacilitatorBeforeHookResult, error)

// FacilitatorAfterSettleHook is called after settlement completes.
// Any error returned is logged but does not affect the settlement result.
type FacilitatorAfterSettleHook func(FacilitatorSettleResultContext) error

// FacilitatorOnSettleFailureHook runs when the mechanism returns an error
type FacilitatorOnSettleFailureHook func(FacilitatorSettleFailureContext) (*FacilitatorSettleFailureHookResult, error)
