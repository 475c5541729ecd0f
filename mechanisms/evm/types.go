package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// Account is the minimum a wallet client exposes
type Account interface {
	// Address returns the signer's Ethereum address
	Address() string
}

// TypedDataSigner signs EIP-712 typed data
type TypedDataSigner interface {
	Account
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// ContractReader performs read-only contract calls
type ContractReader interface {
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)
}

// TransactionSigner signs a transaction without broadcasting it. The result is
// the binary encoding accepted by eth_sendRawTransaction.
type TransactionSigner interface {
	Account
	SignTransaction(ctx context.Context, request TransactionRequest) ([]byte, error)
}

// TransactionSender signs and broadcasts a transaction, returning its hash
type TransactionSender interface {
	Account
	SendTransaction(ctx context.Context, request TransactionRequest) (string, error)
}

// MessageSigner produces EIP-191 personal_sign signatures
type MessageSigner interface {
	Account
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// TransactionRequest is the transfer a wallet is asked to sign. Gas, fees and
// nonce are left to the wallet.
type TransactionRequest struct {
	ChainID *big.Int
	To      string
	Value   *big.Int
	Data    []byte
}

// FacilitatorSigner is the facilitator's view of one chain
type FacilitatorSigner interface {
	// GetAddresses returns all addresses this facilitator can use for signing
	GetAddresses() []string

	// ReadContract reads data from a smart contract
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)

	// WriteContract executes a smart contract transaction and returns its hash
	WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error)

	// SendRawTransaction broadcasts a client-signed transaction
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)

	// TransactionByHash returns nil without error when the hash is unknown
	TransactionByHash(ctx context.Context, hash string) (*types.Transaction, error)

	// TransactionReceipt returns nil without error while the transaction is pending
	TransactionReceipt(ctx context.Context, hash string) (*TransactionReceipt, error)
}

// TypedDataDomain represents the EIP-712 domain separator
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField represents a field in EIP-712 typed data
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransactionReceipt represents the receipt of a mined transaction
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}
