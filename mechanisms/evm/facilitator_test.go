package evm

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	h402 "github.com/bitgpt/h402/go"
)

var fastPolling = h402.PollOptions{Timeout: 50 * time.Millisecond, Interval: 5 * time.Millisecond}

func newTestFacilitator(chain *mockChain, now func() time.Time) *h402.Facilitator {
	mechanism := NewExactFacilitator(
		map[string]FacilitatorSigner{"8453": chain},
		WithFacilitatorClock(now),
		WithFacilitatorLogger(quietLogger()),
		WithReceiptPolling(fastPolling),
	)
	return h402.NewFacilitator(
		h402.WithMechanism(mechanism),
		h402.WithFacilitatorLogger(quietLogger()),
	)
}

func authorizationPayment(t *testing.T, chain *mockChain) (*keyAccount, string) {
	t.Helper()
	account := newKeyAccount(t)
	_, encoded := buildPayload(t, &authorizationWallet{keyAccount: account, chain: chain}, usdcRequirements("1.5", h402.AmountFormatHumanReadable))
	return account, encoded
}

func TestAuthorizationVerifyAndSettle(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	account, encoded := authorizationPayment(t, chain)
	facilitator := newTestFacilitator(chain, fixedClock)
	requirements := usdcRequirements("1.5", h402.AmountFormatHumanReadable)

	verified := facilitator.Verify(ctx, encoded, requirements)
	require.True(t, verified.IsValid, "verify failed: %s %s", verified.InvalidReason, verified.ErrorMessage)
	assert.Equal(t, h402.VerificationTypePayload, verified.Type)
	assert.Equal(t, account.Address(), verified.Payer)

	settled := facilitator.Settle(ctx, encoded, requirements)
	require.True(t, settled.Success, "settle failed: %s %s", settled.ErrorReason, settled.Error)
	assert.Equal(t, "8453", settled.Network)
	assert.Equal(t, account.Address(), settled.Payer)
	assert.NotEmpty(t, settled.TxHash)
	assert.Equal(t, settled.TxHash, settled.Transaction)

	require.Len(t, chain.writes, 1)
	call := chain.writes[0]
	assert.Equal(t, FunctionTransferWithAuthorization, call.function)
	assert.Equal(t, testUSDC, call.address)
	require.Len(t, call.args, 9)
	assert.Equal(t, big.NewInt(1_500_000), call.args[2])
	v, ok := call.args[6].(uint8)
	require.True(t, ok)
	assert.Contains(t, []uint8{27, 28}, v)

	// the nonce is spent now
	again := facilitator.Verify(ctx, encoded, requirements)
	assert.False(t, again.IsValid)
	assert.Equal(t, ErrNonceUsed, again.InvalidReason)
}

func TestAuthorizationWindow(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	_, encoded := authorizationPayment(t, chain)
	requirements := usdcRequirements("1.5", h402.AmountFormatHumanReadable)

	early := newTestFacilitator(chain, func() time.Time { return testNow.Add(-time.Minute) })
	resp := early.Verify(ctx, encoded, requirements)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrValidAfter, resp.InvalidReason)

	late := newTestFacilitator(chain, func() time.Time { return testNow.Add(2 * time.Minute) })
	resp = late.Verify(ctx, encoded, requirements)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrValidBefore, resp.InvalidReason)

	edge := newTestFacilitator(chain, func() time.Time { return testNow.Add(MinValidityWindow * time.Second) })
	resp = edge.Verify(ctx, encoded, requirements)
	assert.True(t, resp.IsValid, "validBefore itself is still valid: %s", resp.ErrorMessage)
}

func TestAuthorizationRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*h402.PaymentRequirements, *h402.EvmAuthorizationPayload, *mockChain)
		reason string
	}{
		{
			name: "recipient mismatch",
			mutate: func(r *h402.PaymentRequirements, _ *h402.EvmAuthorizationPayload, _ *mockChain) {
				r.PayToAddress = "0x0000000000000000000000000000000000000bad"
			},
			reason: ErrRecipientMismatch,
		},
		{
			name: "value below requirement",
			mutate: func(r *h402.PaymentRequirements, _ *h402.EvmAuthorizationPayload, _ *mockChain) {
				r.AmountRequired = "2"
			},
			reason: ErrInsufficientValue,
		},
		{
			name: "tampered value",
			mutate: func(_ *h402.PaymentRequirements, p *h402.EvmAuthorizationPayload, _ *mockChain) {
				p.Authorization.Value = h402.NewBigIntFromInt64(9_000_000)
			},
			reason: ErrInvalidSignature,
		},
		{
			name: "wrong domain version",
			mutate: func(_ *h402.PaymentRequirements, p *h402.EvmAuthorizationPayload, _ *mockChain) {
				p.Authorization.Version = "1"
			},
			reason: ErrInvalidSignature,
		},
		{
			name: "insufficient balance",
			mutate: func(_ *h402.PaymentRequirements, _ *h402.EvmAuthorizationPayload, c *mockChain) {
				c.balance = big.NewInt(10)
			},
			reason: ErrInsufficientFunds,
		},
		{
			name: "native requirement",
			mutate: func(r *h402.PaymentRequirements, _ *h402.EvmAuthorizationPayload, _ *mockChain) {
				r.TokenAddress = NativeTokenAddress
				r.AmountRequired = "1500000"
				r.AmountRequiredFormat = h402.AmountFormatAtomic
			},
			reason: ErrTokenMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := newMockChain()
			account := newKeyAccount(t)
			requirements := usdcRequirements("1.5", h402.AmountFormatHumanReadable)
			payload, _ := buildPayload(t, &authorizationWallet{keyAccount: account, chain: chain}, requirements)

			body := payload.Payload.(h402.EvmAuthorizationPayload)
			tt.mutate(&requirements, &body, chain)
			payload.Payload = body

			resp := newTestFacilitator(chain, fixedClock).VerifyPayload(ctx, payload, requirements)
			assert.False(t, resp.IsValid)
			assert.Equal(t, tt.reason, resp.InvalidReason, resp.ErrorMessage)
		})
	}
}

func TestSettleRevertedAuthorization(t *testing.T) {
	chain := newMockChain()
	_, encoded := authorizationPayment(t, chain)
	chain.revertWrites = true

	resp := newTestFacilitator(chain, fixedClock).Settle(context.Background(), encoded, usdcRequirements("1.5", h402.AmountFormatHumanReadable))
	assert.False(t, resp.Success)
	assert.Equal(t, ErrTransactionFailed, resp.ErrorReason)
	assert.Empty(t, resp.Transaction)
}

func TestSignedTransactionVerifyAndSettle(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	account := newKeyAccount(t)
	requirements := nativeRequirements("1000000000000000")
	_, encoded := buildPayload(t, &signingWallet{keyAccount: account}, requirements)
	facilitator := newTestFacilitator(chain, fixedClock)

	verified := facilitator.Verify(ctx, encoded, requirements)
	require.True(t, verified.IsValid, "verify failed: %s %s", verified.InvalidReason, verified.ErrorMessage)
	assert.Equal(t, account.Address(), verified.Payer)

	settled := facilitator.Settle(ctx, encoded, requirements)
	require.True(t, settled.Success, "settle failed: %s %s", settled.ErrorReason, settled.Error)
	assert.Contains(t, chain.txs, settled.TxHash)
	assert.Equal(t, account.Address(), settled.Payer)
}

func TestSignedTransactionRejections(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	account := newKeyAccount(t)
	wallet := &signingWallet{keyAccount: account}

	t.Run("wrong chain", func(t *testing.T) {
		r := nativeRequirements("1000")
		r.NetworkID = "1"
		payload, _ := buildPayload(t, wallet, r)

		resp := newTestFacilitator(chain, fixedClock).VerifyPayload(ctx, payloadFor(payload, "8453"), nativeRequirements("1000"))
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrChainIDMismatch, resp.InvalidReason)
	})

	t.Run("underpays", func(t *testing.T) {
		payload, _ := buildPayload(t, wallet, nativeRequirements("1000"))
		resp := newTestFacilitator(chain, fixedClock).VerifyPayload(ctx, payload, nativeRequirements("1001"))
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrInsufficientValue, resp.InvalidReason)
		assert.Equal(t, account.Address(), resp.Payer)
	})

	t.Run("resource signed by another key", func(t *testing.T) {
		payload, _ := buildPayload(t, wallet, nativeRequirements("1000"))
		body := payload.Payload.(h402.EvmSignedTransactionPayload)
		other, err := newKeyAccount(t).signMessage([]byte(payload.Resource))
		require.NoError(t, err)
		body.SignedMessage = hexutil.Encode(other)
		payload.Payload = body

		resp := newTestFacilitator(chain, fixedClock).VerifyPayload(ctx, payload, nativeRequirements("1000"))
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrSignedMessage, resp.InvalidReason)
	})

	t.Run("garbage transaction", func(t *testing.T) {
		payload, _ := buildPayload(t, wallet, nativeRequirements("1000"))
		payload.Payload = h402.EvmSignedTransactionPayload{SignedTransaction: "0xdeadbeef"}

		resp := newTestFacilitator(chain, fixedClock).VerifyPayload(ctx, payload, nativeRequirements("1000"))
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrInvalidTransaction, resp.InvalidReason)
	})
}

func TestPaymentForAnotherResource(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	paid := nativeRequirements("1000")
	other := nativeRequirements("1000")
	other.Resource = "https://api.example.com/another-premium-resource"

	wallets := map[string]Account{
		"signTransaction":        &signingWallet{keyAccount: newKeyAccount(t)},
		"signAndSendTransaction": &sendingWallet{keyAccount: newKeyAccount(t), chain: chain},
	}
	for name, wallet := range wallets {
		t.Run(name, func(t *testing.T) {
			payload, _ := buildPayload(t, wallet, paid)
			facilitator := newTestFacilitator(chain, fixedClock)

			resp := facilitator.VerifyPayload(ctx, payload, other)
			assert.False(t, resp.IsValid)
			assert.Equal(t, h402.ReasonResourceMismatch, resp.InvalidReason)

			// restamping the envelope does not move the signed message
			payload.Resource = other.Resource
			resp = facilitator.VerifyPayload(ctx, payload, other)
			assert.False(t, resp.IsValid)
			assert.Equal(t, ErrSignedMessage, resp.InvalidReason)
		})
	}
}

// payloadFor restamps payload onto another network
func payloadFor(payload h402.PaymentPayload, networkID string) h402.PaymentPayload {
	payload.NetworkID = networkID
	return payload
}

func TestLegacyNativeTransferNonce(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	wallet := &signingWallet{keyAccount: newKeyAccount(t)}
	payload, _ := buildPayload(t, wallet, nativeRequirements("1000"))
	signed := payload.Payload.(h402.EvmSignedTransactionPayload).SignedTransaction
	facilitator := newTestFacilitator(chain, fixedClock)

	payload.Payload = h402.EvmNativeTransferPayload{SignedTransaction: signed, Nonce: 0}
	resp := facilitator.VerifyPayload(ctx, payload, nativeRequirements("1000"))
	assert.True(t, resp.IsValid, resp.ErrorMessage)

	payload.Payload = h402.EvmNativeTransferPayload{SignedTransaction: signed, Nonce: 7}
	resp = facilitator.VerifyPayload(ctx, payload, nativeRequirements("1000"))
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrTxNonceMismatch, resp.InvalidReason)

	payload.Payload = h402.EvmTokenTransferPayload{SignedTransaction: signed, Nonce: 0}
	resp = facilitator.VerifyPayload(ctx, payload, nativeRequirements("1000"))
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrTokenMismatch, resp.InvalidReason)
}

func TestSignAndSendVerifyAndSettle(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	account := newKeyAccount(t)
	requirements := nativeRequirements("1000")
	payload, encoded := buildPayload(t, &sendingWallet{keyAccount: account, chain: chain}, requirements)
	hash := payload.Payload.(h402.EvmSignAndSendTransactionPayload).TransactionHash
	facilitator := newTestFacilitator(chain, fixedClock)

	verified := facilitator.Verify(ctx, encoded, requirements)
	require.True(t, verified.IsValid, "verify failed: %s %s", verified.InvalidReason, verified.ErrorMessage)
	assert.Equal(t, h402.VerificationTypeTransaction, verified.Type)
	assert.Equal(t, hash, verified.TxHash)

	settled := facilitator.Settle(ctx, encoded, requirements)
	require.True(t, settled.Success, "settle failed: %s %s", settled.ErrorReason, settled.Error)
	assert.Equal(t, hash, settled.TxHash)
	assert.Empty(t, chain.writes)
}

func TestSignAndSendUnconfirmed(t *testing.T) {
	chain := newMockChain()
	chain.pendingForever = true
	requirements := nativeRequirements("1000")
	_, encoded := buildPayload(t, &sendingWallet{keyAccount: newKeyAccount(t), chain: chain}, requirements)

	resp := newTestFacilitator(chain, fixedClock).Verify(context.Background(), encoded, requirements)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrConfirmationTimeout, resp.InvalidReason)
}

func TestSignAndSendUnknownTransaction(t *testing.T) {
	chain := newMockChain()
	requirements := nativeRequirements("1000")
	payload, _ := buildPayload(t, &sendingWallet{keyAccount: newKeyAccount(t), chain: newMockChain()}, requirements)

	resp := newTestFacilitator(chain, fixedClock).VerifyPayload(context.Background(), payload, requirements)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrTransactionNotFound, resp.InvalidReason)
}

func TestFacilitatorUnconfiguredChain(t *testing.T) {
	mechanism := NewExactFacilitator(map[string]FacilitatorSigner{"8453": newMockChain()}, WithFacilitatorLogger(quietLogger()))
	requirements := nativeRequirements("1000")
	requirements.NetworkID = "10"

	payload := h402.NewPaymentPayload(h402.Version, requirements, h402.EvmSignedTransactionPayload{SignedTransaction: "0x00"})
	resp, err := mechanism.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, h402.ReasonInvalidNetwork, resp.InvalidReason)

	settled, err := mechanism.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, settled.Success)
	assert.Equal(t, "10", settled.Network)
	assert.Equal(t, []string{"8453"}, mechanism.Networks())
}

func TestSplitSignatureNormalizesV(t *testing.T) {
	sig := make([]byte, 65)
	sig[64] = 1
	v, _, _, err := SplitSignature(sig)
	require.NoError(t, err)
	assert.Equal(t, uint8(28), v)

	_, _, _, err = SplitSignature(sig[:64])
	assert.Error(t, err)
}
