package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	h402evm "github.com/bitgpt/h402/go/mechanisms/evm"
)

// ClientSigner is a key-backed EVM wallet. Without a backend it can only sign
// typed data and messages; with one it can also read contracts and sign or
// send transactions.
type ClientSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	backend    Backend
}

var (
	_ h402evm.TypedDataSigner   = (*ClientSigner)(nil)
	_ h402evm.ContractReader    = (*ClientSigner)(nil)
	_ h402evm.TransactionSigner = (*ClientSigner)(nil)
	_ h402evm.TransactionSender = (*ClientSigner)(nil)
	_ h402evm.MessageSigner     = (*ClientSigner)(nil)
)

// NewClientSignerFromPrivateKey creates a signer from a hex private key, with
// or without 0x. backend may be nil.
//
//	signer, err := evm.NewClientSignerFromPrivateKey(os.Getenv("EVM_PRIVATE_KEY"), ethClient)
//	client := h402.NewClient(h402.WithScheme(h402evm.NewExactClient(signer)))
func NewClientSignerFromPrivateKey(privateKeyHex string, backend Backend) (*ClientSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &ClientSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		backend:    backend,
	}, nil
}

// Address returns the checksummed address of the signer
func (s *ClientSigner) Address() string {
	return s.address.Hex()
}

// SignTypedData returns a 65-byte EIP-712 signature with v in {27, 28}
func (s *ClientSigner) SignTypedData(
	_ context.Context,
	domain h402evm.TypedDataDomain,
	fields map[string][]h402evm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	digest, err := h402evm.HashTypedData(domain, fields, primaryType, message)
	if err != nil {
		return nil, err
	}
	return s.sign(digest)
}

// SignMessage returns an EIP-191 personal_sign signature over message
func (s *ClientSigner) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	return s.sign(accounts.TextHash(message))
}

func (s *ClientSigner) sign(digest []byte) ([]byte, error) {
	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	signature[64] += 27
	return signature, nil
}

// ReadContract calls a view function
func (s *ClientSigner) ReadContract(ctx context.Context, address string, abiBytes []byte, functionName string, args ...interface{}) (interface{}, error) {
	if s.backend == nil {
		return nil, fmt.Errorf("ReadContract requires a backend")
	}
	return readContract(ctx, s.backend, address, abiBytes, functionName, args...)
}

// SignTransaction signs request as an EIP-1559 transaction without sending it
func (s *ClientSigner) SignTransaction(ctx context.Context, request h402evm.TransactionRequest) ([]byte, error) {
	tx, err := s.signTransaction(ctx, request)
	if err != nil {
		return nil, err
	}
	return tx.MarshalBinary()
}

// SendTransaction signs and broadcasts request
func (s *ClientSigner) SendTransaction(ctx context.Context, request h402evm.TransactionRequest) (string, error) {
	tx, err := s.signTransaction(ctx, request)
	if err != nil {
		return "", err
	}
	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return tx.Hash().Hex(), nil
}

func (s *ClientSigner) signTransaction(ctx context.Context, request h402evm.TransactionRequest) (*types.Transaction, error) {
	if s.backend == nil {
		return nil, fmt.Errorf("signing transactions requires a backend")
	}
	tx, err := buildTransaction(ctx, s.backend, s.address, request)
	if err != nil {
		return nil, err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(request.ChainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}
