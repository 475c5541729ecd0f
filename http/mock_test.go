package http

import (
	"context"
	"io"
	"log/slog"

	h402 "github.com/bitgpt/h402/go"
)

const (
	testPayTo    = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	testUSDC     = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testTxHash   = "0x7f1c3a5b9d2e4f6081a3c5e7f9b1d3f5a7c9e1b3d5f7a9c1e3b5d7f9a1c3e5b7"
	testResource = "https://api.example.com/premium"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequirements() h402.PaymentRequirements {
	return h402.PaymentRequirements{
		Scheme:               h402.SchemeExact,
		Namespace:            h402.NamespaceEVM,
		NetworkID:            "8453",
		AmountRequired:       "10000",
		AmountRequiredFormat: h402.AmountFormatAtomic,
		PayToAddress:         testPayTo,
		TokenAddress:         testUSDC,
		TokenSymbol:          "USDC",
		Resource:             testResource,
		MimeType:             "application/json",
	}
}

// stubMechanism accepts every payment it is asked about
type stubMechanism struct {
	verify h402.VerifyResponse
	settle h402.SettleResponse
}

func newStubMechanism() *stubMechanism {
	return &stubMechanism{
		verify: h402.VerifyResponse{IsValid: true, Type: h402.VerificationTypePayload, Payer: testPayTo},
		settle: h402.SettleResponse{Success: true, TxHash: testTxHash, Transaction: testTxHash},
	}
}

func (m *stubMechanism) Scheme() string            { return h402.SchemeExact }
func (m *stubMechanism) Namespace() h402.Namespace { return h402.NamespaceEVM }
func (m *stubMechanism) Networks() []string        { return []string{"8453"} }

func (m *stubMechanism) Verify(context.Context, h402.PaymentPayload, h402.PaymentRequirements) (h402.VerifyResponse, error) {
	return m.verify, nil
}

func (m *stubMechanism) Settle(context.Context, h402.PaymentPayload, h402.PaymentRequirements) (h402.SettleResponse, error) {
	return m.settle, nil
}

func newTestFacilitator(m *stubMechanism) *h402.Facilitator {
	return h402.NewFacilitator(
		h402.WithMechanism(m),
		h402.WithFacilitatorLogger(quietLogger()),
	)
}

// stubBuilder pays with a fixed signed transaction
type stubBuilder struct {
	calls int
}

func (b *stubBuilder) Scheme() string            { return h402.SchemeExact }
func (b *stubBuilder) Namespace() h402.Namespace { return h402.NamespaceEVM }

func (b *stubBuilder) CreatePaymentPayload(context.Context, int, h402.PaymentRequirements) (h402.Payload, error) {
	b.calls++
	return h402.EvmSignedTransactionPayload{SignedTransaction: "0x02f86b"}, nil
}

func encodedPayment(requirements h402.PaymentRequirements) string {
	payload := h402.NewPaymentPayload(h402.Version, requirements, h402.EvmSignedTransactionPayload{SignedTransaction: "0x02f86b"})
	encoded, err := h402.EncodePaymentPayload(payload)
	if err != nil {
		panic(err)
	}
	return encoded
}
