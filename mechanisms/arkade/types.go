package arkade

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
)

// Identity is the minimum an Ark wallet must expose. The payment
// capabilities are detected with type assertions.
type Identity interface {
	XOnlyPublicKey() *btcec.PublicKey
	SignSchnorr(ctx context.Context, hash [32]byte) (*schnorr.Signature, error)
}

// PaymentRequest describes an offchain Ark payment the wallet should build
type PaymentRequest struct {
	Address string
	Amount  uint64
	Network string
}

// SignedTransaction is an Ark transaction signed by the payer but not yet
// submitted to the Ark server
type SignedTransaction struct {
	PSBT        string
	Checkpoints []string
}

// TransactionSigner builds and signs an Ark transaction without submitting it
type TransactionSigner interface {
	Identity
	SignTransaction(ctx context.Context, request PaymentRequest) (SignedTransaction, error)
}

// TransactionSender builds, signs and submits an Ark transaction
type TransactionSender interface {
	Identity
	SendTransaction(ctx context.Context, request PaymentRequest) (txid string, err error)
}

// Server is the part of the Ark operator API used by the facilitator
type Server interface {
	// VirtualTx returns the virtual transaction txid, or nil when the server
	// does not know it
	VirtualTx(ctx context.Context, txid string) (*psbt.Packet, error)
	// SubmitTx submits a signed Ark transaction and returns its txid
	SubmitTx(ctx context.Context, signedTx string, checkpoints []string) (string, error)
}
