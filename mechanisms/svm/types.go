package svm

import (
	"context"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Account is the minimum a Solana wallet must expose. The other capabilities
// are detected with type assertions.
type Account interface {
	PublicKey() solana.PublicKey
}

// TransactionSigner signs a transaction in place without broadcasting it
type TransactionSigner interface {
	Account
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// TransactionSender signs and broadcasts a transaction
type TransactionSender interface {
	Account
	SignAndSendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// MessageSigner produces ed25519 signatures over arbitrary bytes
type MessageSigner interface {
	Account
	SignMessage(ctx context.Context, message []byte) (solana.Signature, error)
}

// RPC is the subset of *rpc.Client used by the builder and the facilitator
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

var _ RPC = (*rpc.Client)(nil)
