package h402

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Facilitator routes decoded payloads to the mechanism registered for their
// namespace and scheme. Verify and Settle never return Go errors: every
// failure is reported inside the response.
type Facilitator struct {
	mu sync.RWMutex

	// namespace -> scheme -> mechanism
	schemes map[Namespace]map[string]SchemeNetworkFacilitator

	cache  *SettlementCache
	logger *slog.Logger

	beforeVerifyHooks    []FacilitatorBeforeVerifyHook
	afterVerifyHooks     []FacilitatorAfterVerifyHook
	onVerifyFailureHooks []FacilitatorOnVerifyFailureHook
	beforeSettleHooks    []FacilitatorBeforeSettleHook
	afterSettleHooks     []FacilitatorAfterSettleHook
	onSettleFailureHooks []FacilitatorOnSettleFailureHook
}

// FacilitatorOption configures the facilitator
type FacilitatorOption func(*Facilitator)

// WithSettlementCache makes Settle idempotent per encoded payload
func WithSettlementCache(cache *SettlementCache) FacilitatorOption {
	return func(f *Facilitator) {
		f.cache = cache
	}
}

// WithFacilitatorLogger sets the logger
func WithFacilitatorLogger(logger *slog.Logger) FacilitatorOption {
	return func(f *Facilitator) {
		f.logger = logger
	}
}

// WithMechanism registers a mechanism at creation time
func WithMechanism(mechanism SchemeNetworkFacilitator) FacilitatorOption {
	return func(f *Facilitator) {
		f.Register(mechanism)
	}
}

// NewFacilitator creates a facilitator with no mechanisms
func NewFacilitator(opts ...FacilitatorOption) *Facilitator {
	f := &Facilitator{
		schemes: make(map[Namespace]map[string]SchemeNetworkFacilitator),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register adds a mechanism for its namespace and scheme
func (f *Facilitator) Register(mechanism SchemeNetworkFacilitator) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	ns := mechanism.Namespace()
	if f.schemes[ns] == nil {
		f.schemes[ns] = make(map[string]SchemeNetworkFacilitator)
	}
	f.schemes[ns][mechanism.Scheme()] = mechanism
	return f
}

func (f *Facilitator) OnBeforeVerify(hook FacilitatorBeforeVerifyHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeVerifyHooks = append(f.beforeVerifyHooks, hook)
	return f
}

func (f *Facilitator) OnAfterVerify(hook FacilitatorAfterVerifyHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterVerifyHooks = append(f.afterVerifyHooks, hook)
	return f
}

func (f *Facilitator) OnVerifyFailure(hook FacilitatorOnVerifyFailureHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onVerifyFailureHooks = append(f.onVerifyFailureHooks, hook)
	return f
}

func (f *Facilitator) OnBeforeSettle(hook FacilitatorBeforeSettleHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeSettleHooks = append(f.beforeSettleHooks, hook)
	return f
}

func (f *Facilitator) OnAfterSettle(hook FacilitatorAfterSettleHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterSettleHooks = append(f.afterSettleHooks, hook)
	return f
}

func (f *Facilitator) OnSettleFailure(hook FacilitatorOnSettleFailureHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSettleFailureHooks = append(f.onSettleFailureHooks, hook)
	return f
}

// GetSupported lists every registered namespace/scheme/network
func (f *Facilitator) GetSupported() SupportedResponse {
	f.mu.RLock()
	defer f.mu.RUnlock()

	kinds := []SupportedKind{}
	for ns, schemes := range f.schemes {
		for scheme, mechanism := range schemes {
			for _, network := range mechanism.Networks() {
				kinds = append(kinds, SupportedKind{
					H402Version: Version,
					Scheme:      scheme,
					Namespace:   ns,
					NetworkID:   network,
				})
			}
		}
	}
	sort.Slice(kinds, func(i, j int) bool {
		a, b := kinds[i], kinds[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Scheme != b.Scheme {
			return a.Scheme < b.Scheme
		}
		return a.NetworkID < b.NetworkID
	})
	return SupportedResponse{Kinds: kinds}
}

// route resolves the mechanism for a decoded payload, or the invalid response
// explaining why none applies
func (f *Facilitator) route(payload PaymentPayload, requirements PaymentRequirements) (SchemeNetworkFacilitator, *VerifyResponse) {
	if err := ValidatePaymentRequirements(requirements); err != nil {
		resp := Invalid(ReasonInvalidRequirements, err.Error())
		return nil, &resp
	}
	if payload.Scheme != requirements.Scheme {
		resp := Invalid(ReasonInvalidScheme, fmt.Sprintf("payload scheme %q does not match required scheme %q", payload.Scheme, requirements.Scheme))
		return nil, &resp
	}
	if payload.Namespace != requirements.Namespace || payload.NetworkID != requirements.NetworkID {
		resp := Invalid(ReasonInvalidNetwork, fmt.Sprintf("payload targets %s:%s, requirements target %s:%s",
			payload.Namespace, payload.NetworkID, requirements.Namespace, requirements.NetworkID))
		return nil, &resp
	}
	if payload.Resource != requirements.Resource {
		resp := Invalid(ReasonResourceMismatch, fmt.Sprintf("payload was made for %q, requirements are for %q", payload.Resource, requirements.Resource))
		return nil, &resp
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	schemes, ok := f.schemes[payload.Namespace]
	if !ok {
		resp := Invalid(ReasonInvalidNetwork, fmt.Sprintf("namespace %q is not supported", payload.Namespace))
		return nil, &resp
	}
	mechanism, ok := schemes[payload.Scheme]
	if !ok {
		resp := Invalid(ReasonInvalidScheme, fmt.Sprintf("scheme %q is not supported for %s", payload.Scheme, payload.Namespace))
		return nil, &resp
	}
	return mechanism, nil
}

func (f *Facilitator) normalize(ctx context.Context, mechanism SchemeNetworkFacilitator, requirements PaymentRequirements) (PaymentRequirements, error) {
	resolver, _ := mechanism.(DecimalsResolver)
	return NormalizeAmount(ctx, requirements, resolver)
}

// Verify decodes an X-PAYMENT value and verifies it against requirements
func (f *Facilitator) Verify(ctx context.Context, encoded string, requirements PaymentRequirements) VerifyResponse {
	payload, err := DecodePaymentPayload(encoded)
	if err != nil {
		return Invalid(ReasonInvalidPayload, err.Error())
	}
	return f.VerifyPayload(ctx, payload, requirements)
}

// VerifyPayload verifies an already decoded payload
func (f *Facilitator) VerifyPayload(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) VerifyResponse {
	resp, _ := f.verify(ctx, payload, requirements)
	return resp
}

func (f *Facilitator) verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, PaymentRequirements) {
	mechanism, rejected := f.route(payload, requirements)
	if rejected != nil {
		return *rejected, requirements
	}

	hookCtx := FacilitatorVerifyContext{
		Ctx:                 ctx,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
		Timestamp:           time.Now(),
	}

	f.mu.RLock()
	before := f.beforeVerifyHooks
	after := f.afterVerifyHooks
	onFailure := f.onVerifyFailureHooks
	f.mu.RUnlock()

	for _, hook := range before {
		result, err := hook(hookCtx)
		if err != nil {
			return Invalid(ReasonUnexpectedVerifyError, err.Error()), requirements
		}
		if result != nil && result.Abort {
			return Invalid(result.Reason, "verification aborted"), requirements
		}
	}

	normalized, err := f.normalize(ctx, mechanism, requirements)
	if err != nil {
		return Invalid(ReasonInvalidRequirements, err.Error()), requirements
	}
	hookCtx.PaymentRequirements = normalized

	resp, err := mechanism.Verify(ctx, payload, normalized)
	duration := time.Since(hookCtx.Timestamp)
	if err != nil {
		failureCtx := FacilitatorVerifyFailureContext{FacilitatorVerifyContext: hookCtx, Error: err, Duration: duration}
		for _, hook := range onFailure {
			result, _ := hook(failureCtx)
			if result != nil && result.Recovered {
				return result.Result, normalized
			}
		}
		f.logger.Warn("payment verification errored",
			"namespace", payload.Namespace,
			"networkId", payload.NetworkID,
			"error", err)
		return Invalid(ReasonUnexpectedVerifyError, err.Error()), normalized
	}

	resultCtx := FacilitatorVerifyResultContext{FacilitatorVerifyContext: hookCtx, Result: resp, Duration: duration}
	for _, hook := range after {
		if err := hook(resultCtx); err != nil {
			f.logger.Warn("after verify hook failed", "error", err)
		}
	}
	return resp, normalized
}

// Settle decodes an X-PAYMENT value, verifies it, and settles it on chain.
// With a settlement cache configured, repeated calls with the same payload
// and the same requirements return the first successful result instead of
// settling twice. A payload replayed against different requirements is
// verified and settled from scratch.
func (f *Facilitator) Settle(ctx context.Context, encoded string, requirements PaymentRequirements) SettleResponse {
	payload, err := DecodePaymentPayload(encoded)
	if err != nil {
		return SettleFailure(ReasonInvalidPayload, err.Error(), requirements.NetworkID)
	}

	if f.cache == nil {
		return f.settle(ctx, payload, requirements)
	}

	key, err := GenerateSettlementKey([]byte(encoded), requirements)
	if err != nil {
		return SettleFailure(ReasonInvalidRequirements, err.Error(), requirements.NetworkID)
	}
	for {
		status, cached, done := f.cache.CheckAndMark(key)
		switch status {
		case StatusCached:
			return *cached
		case StatusInFlight:
			result, err := f.cache.WaitForResult(ctx, key, done)
			if err != nil {
				return SettleFailure(ReasonSettlementInProgress, err.Error(), payload.NetworkID)
			}
			if result != nil {
				return *result
			}
			// the other attempt failed; try again ourselves
			continue
		}

		resp := f.settle(ctx, payload, requirements)
		if resp.Success {
			f.cache.Complete(key, &resp, done)
		} else {
			f.cache.Fail(key, done)
		}
		return resp
	}
}

func (f *Facilitator) settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) SettleResponse {
	verified, normalized := f.verify(ctx, payload, requirements)
	if !verified.IsValid {
		resp := SettleFailure(verified.InvalidReason, verified.ErrorMessage, payload.NetworkID)
		resp.Payer = verified.Payer
		return resp
	}

	mechanism, rejected := f.route(payload, normalized)
	if rejected != nil {
		return SettleFailure(rejected.InvalidReason, rejected.ErrorMessage, payload.NetworkID)
	}

	hookCtx := FacilitatorSettleContext{
		Ctx:                 ctx,
		PaymentPayload:      payload,
		PaymentRequirements: normalized,
		Timestamp:           time.Now(),
	}

	f.mu.RLock()
	before := f.beforeSettleHooks
	after := f.afterSettleHooks
	onFailure := f.onSettleFailureHooks
	f.mu.RUnlock()

	for _, hook := range before {
		result, err := hook(hookCtx)
		if err != nil {
			return SettleFailure(ReasonUnexpectedSettleError, err.Error(), payload.NetworkID)
		}
		if result != nil && result.Abort {
			return SettleFailure(result.Reason, "settlement aborted", payload.NetworkID)
		}
	}

	resp, err := mechanism.Settle(ctx, payload, normalized)
	duration := time.Since(hookCtx.Timestamp)
	if err != nil {
		failureCtx := FacilitatorSettleFailureContext{FacilitatorSettleContext: hookCtx, Error: err, Duration: duration}
		for _, hook := range onFailure {
			result, _ := hook(failureCtx)
			if result != nil && result.Recovered {
				return result.Result
			}
		}
		f.logger.Error("payment settlement errored",
			"namespace", payload.Namespace,
			"networkId", payload.NetworkID,
			"error", err)
		failure := SettleFailure(ReasonUnexpectedSettleError, err.Error(), payload.NetworkID)
		failure.Payer = verified.Payer
		return failure
	}

	if resp.Network == "" {
		resp.Network = payload.NetworkID
	}
	if resp.Payer == "" {
		resp.Payer = verified.Payer
	}
	if resp.Success && resp.Transaction == "" {
		resp.Transaction = resp.TxHash
	}

	resultCtx := FacilitatorSettleResultContext{FacilitatorSettleContext: hookCtx, Result: resp, Duration: duration}
	for _, hook := range after {
		if err := hook(resultCtx); err != nil {
			f.logger.Warn("after settle hook failed", "error", err)
		}
	}
	return resp
}
