package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	h402evm "github.com/bitgpt/h402/go/mechanisms/evm"
)

// FacilitatorSigner submits settlements on one chain with a single hot key
type FacilitatorSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	backend    Backend
}

var _ h402evm.FacilitatorSigner = (*FacilitatorSigner)(nil)

// DialFacilitatorSigner connects to rpcURL and asks it for the chain id
func DialFacilitatorSigner(ctx context.Context, privateKeyHex, rpcURL string) (*FacilitatorSigner, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	signer, err := NewFacilitatorSigner(ctx, privateKeyHex, client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return signer, nil
}

// NewFacilitatorSigner creates a signer over an existing backend
func NewFacilitatorSigner(ctx context.Context, privateKeyHex string, backend Backend) (*FacilitatorSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return &FacilitatorSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    chainID,
		backend:    backend,
	}, nil
}

// ChainID returns the chain the backend reported at construction
func (s *FacilitatorSigner) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

func (s *FacilitatorSigner) GetAddresses() []string {
	return []string{s.address.Hex()}
}

func (s *FacilitatorSigner) ReadContract(ctx context.Context, address string, abiBytes []byte, functionName string, args ...interface{}) (interface{}, error) {
	return readContract(ctx, s.backend, address, abiBytes, functionName, args...)
}

// WriteContract signs and broadcasts a contract call from the facilitator key
// and returns the transaction hash without waiting for it to be mined
func (s *FacilitatorSigner) WriteContract(ctx context.Context, address string, abiBytes []byte, functionName string, args ...interface{}) (string, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiBytes)))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}
	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack method call: %w", err)
	}

	tx, err := buildTransaction(ctx, s.backend, s.address, h402evm.TransactionRequest{
		ChainID: s.chainID,
		To:      address,
		Data:    data,
	})
	if err != nil {
		return "", err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send %s: %w", functionName, err)
	}
	return signed.Hash().Hex(), nil
}

// SendRawTransaction broadcasts a transaction signed by the payer
func (s *FacilitatorSigner) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", fmt.Errorf("failed to decode transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return tx.Hash().Hex(), nil
}

func (s *FacilitatorSigner) TransactionByHash(ctx context.Context, hash string) (*types.Transaction, error) {
	tx, _, err := s.backend.TransactionByHash(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *FacilitatorSigner) TransactionReceipt(ctx context.Context, hash string) (*h402evm.TransactionReceipt, error) {
	receipt, err := s.backend.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return &h402evm.TransactionReceipt{
		Status:      receipt.Status,
		BlockNumber: block,
		TxHash:      receipt.TxHash.Hex(),
	}, nil
}
