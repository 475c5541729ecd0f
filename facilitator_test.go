package h402

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMechanism is a SchemeNetworkFacilitator with canned results
type mockMechanism struct {
	namespace Namespace
	networks  []string

	verifyResp VerifyResponse
	verifyErr  error
	settleResp SettleResponse
	settleErr  error
	settleWait chan struct{}

	verifyCalls atomic.Int32
	settleCalls atomic.Int32
	lastReq     PaymentRequirements
	mu          sync.Mutex
}

func (m *mockMechanism) Scheme() string       { return SchemeExact }
func (m *mockMechanism) Namespace() Namespace { return m.namespace }
func (m *mockMechanism) Networks() []string   { return m.networks }

func (m *mockMechanism) TokenDecimals(ctx context.Context, requirements PaymentRequirements) (int32, error) {
	return 6, nil
}

func (m *mockMechanism) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	m.verifyCalls.Add(1)
	m.mu.Lock()
	m.lastReq = requirements
	m.mu.Unlock()
	return m.verifyResp, m.verifyErr
}

func (m *mockMechanism) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	m.settleCalls.Add(1)
	if m.settleWait != nil {
		<-m.settleWait
	}
	return m.settleResp, m.settleErr
}

func newEvmMechanism() *mockMechanism {
	return &mockMechanism{
		namespace:  NamespaceEVM,
		networks:   []string{"8453", "56"},
		verifyResp: VerifyResponse{IsValid: true, Type: VerificationTypePayload, Payer: testEvmFrom},
		settleResp: SettleResponse{Success: true, TxHash: testEvmTxHash},
	}
}

func encodedSample(t *testing.T, name string) (string, PaymentPayload) {
	t.Helper()
	payload := samplePayloads()[name]
	encoded, err := EncodePaymentPayload(payload)
	require.NoError(t, err)
	return encoded, payload
}

func requirementsFor(payload PaymentPayload) PaymentRequirements {
	return PaymentRequirements{
		Scheme:               payload.Scheme,
		Namespace:            payload.Namespace,
		NetworkID:            payload.NetworkID,
		AmountRequired:       "1.5",
		AmountRequiredFormat: AmountFormatHumanReadable,
		PayToAddress:         testEvmTo,
		TokenAddress:         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Resource:             payload.Resource,
	}
}

func TestFacilitatorVerify(t *testing.T) {
	mechanism := newEvmMechanism()
	facilitator := NewFacilitator(WithMechanism(mechanism))
	encoded, payload := encodedSample(t, "evm authorization")

	resp := facilitator.Verify(context.Background(), encoded, requirementsFor(payload))

	assert.True(t, resp.IsValid)
	assert.Equal(t, testEvmFrom, resp.Payer)
	assert.Equal(t, Amount("1500000"), mechanism.lastReq.AmountRequired, "mechanism receives normalized requirements")
}

func TestFacilitatorVerifyRejections(t *testing.T) {
	encoded, payload := encodedSample(t, "evm authorization")

	tests := []struct {
		name    string
		encoded string
		mutate  func(*PaymentRequirements)
		reason  string
	}{
		{name: "undecodable payload", encoded: "!!", reason: ReasonInvalidPayload},
		{name: "scheme mismatch", mutate: func(r *PaymentRequirements) { r.Scheme = "upto" }, reason: ReasonInvalidScheme},
		{name: "network mismatch", mutate: func(r *PaymentRequirements) { r.NetworkID = "1" }, reason: ReasonInvalidNetwork},
		{name: "resource mismatch", mutate: func(r *PaymentRequirements) { r.Resource = "https://api.example.com/other" }, reason: ReasonResourceMismatch},
		{name: "invalid requirements", mutate: func(r *PaymentRequirements) { r.PayToAddress = "" }, reason: ReasonInvalidRequirements},
		{name: "bad amount", mutate: func(r *PaymentRequirements) { r.AmountRequired = "1e6" }, reason: ReasonInvalidRequirements},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mechanism := newEvmMechanism()
			facilitator := NewFacilitator(WithMechanism(mechanism))

			req := requirementsFor(payload)
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			input := encoded
			if tt.encoded != "" {
				input = tt.encoded
			}

			resp := facilitator.Verify(context.Background(), input, req)
			assert.False(t, resp.IsValid)
			assert.Equal(t, tt.reason, resp.InvalidReason)
			assert.Zero(t, mechanism.verifyCalls.Load())
		})
	}
}

func TestFacilitatorVerifyUnregisteredNamespace(t *testing.T) {
	facilitator := NewFacilitator(WithMechanism(newEvmMechanism()))
	encoded, payload := encodedSample(t, "solana signTransaction")

	resp := facilitator.Verify(context.Background(), encoded, requirementsFor(payload))
	assert.False(t, resp.IsValid)
	assert.Equal(t, ReasonInvalidNetwork, resp.InvalidReason)
}

func TestFacilitatorVerifyMechanismError(t *testing.T) {
	mechanism := newEvmMechanism()
	mechanism.verifyErr = errors.New("rpc unavailable")
	facilitator := NewFacilitator(WithMechanism(mechanism))
	encoded, payload := encodedSample(t, "evm authorization")

	resp := facilitator.Verify(context.Background(), encoded, requirementsFor(payload))
	assert.False(t, resp.IsValid)
	assert.Equal(t, ReasonUnexpectedVerifyError, resp.InvalidReason)
	assert.Contains(t, resp.ErrorMessage, "rpc unavailable")
}

func TestFacilitatorVerifyHooks(t *testing.T) {
	mechanism := newEvmMechanism()
	mechanism.verifyErr = errors.New("rpc unavailable")
	facilitator := NewFacilitator(WithMechanism(mechanism))
	encoded, payload := encodedSample(t, "evm authorization")

	var after int
	facilitator.OnVerifyFailure(func(ctx FacilitatorVerifyFailureContext) (*FacilitatorVerifyFailureHookResult, error) {
		return &FacilitatorVerifyFailureHookResult{
			Recovered: true,
			Result:    VerifyResponse{IsValid: true, Payer: "recovered"},
		}, nil
	})
	facilitator.OnAfterVerify(func(FacilitatorVerifyResultContext) error {
		after++
		return nil
	})

	resp := facilitator.Verify(context.Background(), encoded, requirementsFor(payload))
	assert.True(t, resp.IsValid)
	assert.Equal(t, "recovered", resp.Payer)
	assert.Zero(t, after)

	facilitator.OnBeforeVerify(func(FacilitatorVerifyContext) (*FacilitatorBeforeHookResult, error) {
		return &FacilitatorBeforeHookResult{Abort: true, Reason: "blocked_payer"}, nil
	})
	resp = facilitator.Verify(context.Background(), encoded, requirementsFor(payload))
	assert.False(t, resp.IsValid)
	assert.Equal(t, "blocked_payer", resp.InvalidReason)
}

func TestFacilitatorSettle(t *testing.T) {
	mechanism := newEvmMechanism()
	facilitator := NewFacilitator(WithMechanism(mechanism))
	encoded, payload := encodedSample(t, "evm authorization")

	resp := facilitator.Settle(context.Background(), encoded, requirementsFor(payload))

	assert.True(t, resp.Success)
	assert.Equal(t, testEvmTxHash, resp.Transaction)
	assert.Equal(t, "8453", resp.Network)
	assert.Equal(t, testEvmFrom, resp.Payer)
	assert.Equal(t, int32(1), mechanism.verifyCalls.Load())
	assert.Equal(t, int32(1), mechanism.settleCalls.Load())
}

func TestFacilitatorSettleVerifiesFirst(t *testing.T) {
	mechanism := newEvmMechanism()
	mechanism.verifyResp = Invalid("invalid_exact_evm_payload_signature", "signature does not match")
	facilitator := NewFacilitator(WithMechanism(mechanism))
	encoded, payload := encodedSample(t, "evm authorization")

	resp := facilitator.Settle(context.Background(), encoded, requirementsFor(payload))

	assert.False(t, resp.Success)
	assert.Equal(t, "invalid_exact_evm_payload_signature", resp.ErrorReason)
	assert.Empty(t, resp.Transaction)
	assert.Zero(t, mechanism.settleCalls.Load())
}

func TestFacilitatorSettleErrorNeverThrows(t *testing.T) {
	mechanism := newEvmMechanism()
	mechanism.settleErr = errors.New("nonce too low")
	facilitator := NewFacilitator(WithMechanism(mechanism))
	encoded, payload := encodedSample(t, "evm authorization")

	resp := facilitator.Settle(context.Background(), encoded, requirementsFor(payload))
	assert.False(t, resp.Success)
	assert.Equal(t, ReasonUnexpectedSettleError, resp.ErrorReason)
	assert.Equal(t, "nonce too low", resp.Error)
	assert.Empty(t, resp.Transaction)

	resp = facilitator.Settle(context.Background(), "not-a-payload", requirementsFor(payload))
	assert.False(t, resp.Success)
	assert.Equal(t, ReasonInvalidPayload, resp.ErrorReason)
}

func TestFacilitatorSettleCacheDeduplicates(t *testing.T) {
	mechanism := newEvmMechanism()
	mechanism.settleWait = make(chan struct{})
	facilitator := NewFacilitator(
		WithMechanism(mechanism),
		WithSettlementCache(NewSettlementCache(time.Minute)),
	)
	encoded, payload := encodedSample(t, "evm authorization")
	req := requirementsFor(payload)

	var wg sync.WaitGroup
	results := make([]SettleResponse, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = facilitator.Settle(context.Background(), encoded, req)
		}(i)
	}

	require.Eventually(t, func() bool { return mechanism.settleCalls.Load() == 1 }, time.Second, time.Millisecond)
	close(mechanism.settleWait)
	wg.Wait()

	for _, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, testEvmTxHash, r.Transaction)
	}
	assert.Equal(t, int32(1), mechanism.settleCalls.Load())

	again := facilitator.Settle(context.Background(), encoded, req)
	assert.True(t, again.Success)
	assert.Equal(t, int32(1), mechanism.settleCalls.Load())
}

func TestFacilitatorSettleCacheScopedToRequirements(t *testing.T) {
	mechanism := newEvmMechanism()
	facilitator := NewFacilitator(
		WithMechanism(mechanism),
		WithSettlementCache(NewSettlementCache(time.Minute)),
	)
	encoded, payload := encodedSample(t, "evm authorization")
	req := requirementsFor(payload)

	first := facilitator.Settle(context.Background(), encoded, req)
	require.True(t, first.Success)

	// the chain now reports the payment as too small for the pricier offer
	mechanism.verifyResp = Invalid("invalid_payload_insufficient_value", "amount below requirement")

	pricier := req
	pricier.AmountRequired = "5000"
	resp := facilitator.Settle(context.Background(), encoded, pricier)
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid_payload_insufficient_value", resp.ErrorReason)
	assert.Empty(t, resp.Transaction)

	elsewhere := req
	elsewhere.Resource = "https://api.example.com/another-premium-resource"
	resp = facilitator.Settle(context.Background(), encoded, elsewhere)
	assert.False(t, resp.Success)
	assert.Equal(t, ReasonResourceMismatch, resp.ErrorReason)

	assert.Equal(t, int32(1), mechanism.settleCalls.Load())

	// the original requirements still hit the cache
	again := facilitator.Settle(context.Background(), encoded, req)
	assert.True(t, again.Success)
	assert.Equal(t, testEvmTxHash, again.Transaction)
	assert.Equal(t, int32(1), mechanism.settleCalls.Load())
}

func TestFacilitatorGetSupported(t *testing.T) {
	facilitator := NewFacilitator(
		WithMechanism(newEvmMechanism()),
		WithMechanism(&mockMechanism{namespace: NamespaceSolana, networks: []string{"mainnet"}}),
	)

	supported := facilitator.GetSupported()
	require.Len(t, supported.Kinds, 3)
	assert.Equal(t, SupportedKind{H402Version: Version, Scheme: SchemeExact, Namespace: NamespaceEVM, NetworkID: "56"}, supported.Kinds[0])
	assert.Equal(t, "8453", supported.Kinds[1].NetworkID)
	assert.Equal(t, NamespaceSolana, supported.Kinds[2].Namespace)
}
