package svm

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	h402svm "github.com/bitgpt/h402/go/mechanisms/svm"
)

// KeySigner is a wallet backed by an in-memory ed25519 key. Broadcasting
// needs an RPC client; signing does not.
type KeySigner struct {
	privateKey solana.PrivateKey
	rpc        h402svm.RPC
	commitment rpc.CommitmentType
}

var (
	_ h402svm.TransactionSigner = (*KeySigner)(nil)
	_ h402svm.TransactionSender = (*KeySigner)(nil)
	_ h402svm.MessageSigner     = (*KeySigner)(nil)
)

// NewKeySigner wraps privateKey. client may be nil.
func NewKeySigner(privateKey solana.PrivateKey, client h402svm.RPC) (*KeySigner, error) {
	if len(privateKey) != 64 {
		return nil, fmt.Errorf("private key must be 64 bytes, got %d", len(privateKey))
	}
	return &KeySigner{
		privateKey: privateKey,
		rpc:        client,
		commitment: rpc.CommitmentConfirmed,
	}, nil
}

// NewKeySignerFromBase58 parses a base58 keypair as exported by solana-keygen
// and Phantom.
//
//	signer, err := svm.NewKeySignerFromBase58("5J7W...", rpc.New(rpc.DevNet_RPC))
//	client := h402.NewClient(h402.WithScheme(h402svm.NewExactClient(signer, rpcClient)))
func NewKeySignerFromBase58(privateKeyBase58 string, client h402svm.RPC) (*KeySigner, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeySigner(privateKey, client)
}

func (s *KeySigner) PublicKey() solana.PublicKey {
	return s.privateKey.PublicKey()
}

// SignTransaction adds this key's signature at its position among the
// transaction's signers, leaving the other signatures untouched
func (s *KeySigner) SignTransaction(_ context.Context, tx *solana.Transaction) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	signature, err := s.privateKey.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}

	accountIndex, err := tx.GetAccountIndex(s.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to get account index: %w", err)
	}
	if int(accountIndex) >= int(tx.Message.Header.NumRequiredSignatures) {
		return fmt.Errorf("%s is not a required signer of the transaction", s.PublicKey())
	}

	if len(tx.Signatures) <= int(accountIndex) {
		signatures := make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
		copy(signatures, tx.Signatures)
		tx.Signatures = signatures
	}
	tx.Signatures[accountIndex] = signature
	return nil
}

// SignAndSendTransaction signs tx and submits it through the RPC client
func (s *KeySigner) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if s.rpc == nil {
		return solana.Signature{}, fmt.Errorf("sending transactions requires an RPC client")
	}
	if err := s.SignTransaction(ctx, tx); err != nil {
		return solana.Signature{}, err
	}
	sig, err := s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: s.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// SignMessage signs raw bytes with the wallet key
func (s *KeySigner) SignMessage(_ context.Context, message []byte) (solana.Signature, error) {
	return s.privateKey.Sign(message)
}
