package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const (
	testUSDC  = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
)

var errReverted = errors.New("execution reverted")

type writeCall struct {
	address  string
	function string
	args     []interface{}
}

// mockChain is an in-memory chain implementing FacilitatorSigner and
// ContractReader for one token
type mockChain struct {
	mu sync.Mutex

	name     string
	version  string
	decimals uint8
	balance  *big.Int

	// eip3009 reports whether the token implements authorizationState
	eip3009        bool
	noDecimals     bool
	used           map[[32]byte]bool
	txs            map[string]*types.Transaction
	receipts       map[string]*TransactionReceipt
	writes         []writeCall
	revertWrites   bool
	pendingForever bool
}

func newMockChain() *mockChain {
	return &mockChain{
		name:     "USD Coin",
		version:  "2",
		decimals: 6,
		balance:  big.NewInt(100_000_000),
		eip3009:  true,
		used:     make(map[[32]byte]bool),
		txs:      make(map[string]*types.Transaction),
		receipts: make(map[string]*TransactionReceipt),
	}
}

func (m *mockChain) GetAddresses() []string {
	return []string{"0x4020615294c913F045dc10f0a5cdEbd86c280001"}
}

func (m *mockChain) ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch functionName {
	case FunctionEIP712Domain:
		return nil, errReverted
	case FunctionName:
		return m.name, nil
	case FunctionVersion:
		if m.version == "" {
			return nil, errReverted
		}
		return m.version, nil
	case FunctionDecimals:
		if m.noDecimals {
			return nil, errReverted
		}
		return m.decimals, nil
	case FunctionAuthorizationState:
		if !m.eip3009 {
			return nil, errReverted
		}
		nonce, ok := args[1].([32]byte)
		if !ok {
			return nil, fmt.Errorf("nonce must be [32]byte, got %T", args[1])
		}
		return m.used[nonce], nil
	case FunctionBalanceOf:
		return new(big.Int).Set(m.balance), nil
	}
	return nil, fmt.Errorf("unexpected call %s", functionName)
}

func (m *mockChain) WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes = append(m.writes, writeCall{address: address, function: functionName, args: args})
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("write-%d", len(m.writes)))).Hex()
	status := uint64(TxStatusSuccess)
	if m.revertWrites {
		status = TxStatusFailed
	} else if functionName == FunctionTransferWithAuthorization {
		m.used[args[5].([32]byte)] = true
	}
	m.receipts[hash] = &TransactionReceipt{Status: status, BlockNumber: 1, TxHash: hash}
	return hash, nil
}

func (m *mockChain) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", err
	}
	m.include(tx)
	return tx.Hash().Hex(), nil
}

func (m *mockChain) include(tx *types.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := tx.Hash().Hex()
	m.txs[hash] = tx
	if !m.pendingForever {
		m.receipts[hash] = &TransactionReceipt{Status: TxStatusSuccess, BlockNumber: 1, TxHash: hash}
	}
}

func (m *mockChain) TransactionByHash(ctx context.Context, hash string) (*types.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[hash], nil
}

func (m *mockChain) TransactionReceipt(ctx context.Context, hash string) (*TransactionReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receipts[hash], nil
}

// keyAccount holds a private key; the wallet types below expose subsets of
// its capabilities
type keyAccount struct {
	key   *ecdsa.PrivateKey
	nonce uint64
}

func newKeyAccount(t *testing.T) *keyAccount {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &keyAccount{key: key}
}

func (a *keyAccount) Address() string {
	return crypto.PubkeyToAddress(a.key.PublicKey).Hex()
}

func (a *keyAccount) signTypedData(domain TypedDataDomain, fields map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error) {
	digest, err := HashTypedData(domain, fields, primaryType, message)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, a.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

func (a *keyAccount) signMessage(message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), a.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

func (a *keyAccount) signTx(request TransactionRequest) (*types.Transaction, error) {
	to := common.HexToAddress(request.To)
	tx, err := types.SignNewTx(a.key, types.LatestSignerForChainID(request.ChainID), &types.DynamicFeeTx{
		ChainID:   request.ChainID,
		Nonce:     a.nonce,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       100_000,
		To:        &to,
		Value:     request.Value,
		Data:      request.Data,
	})
	if err != nil {
		return nil, err
	}
	a.nonce++
	return tx, nil
}

// authorizationWallet signs typed data and reads contracts through chain
type authorizationWallet struct {
	*keyAccount
	chain *mockChain
}

func (w *authorizationWallet) SignTypedData(ctx context.Context, domain TypedDataDomain, fields map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error) {
	return w.signTypedData(domain, fields, primaryType, message)
}

func (w *authorizationWallet) ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error) {
	return w.chain.ReadContract(ctx, address, abi, functionName, args...)
}

// signingWallet signs transactions and messages without broadcasting
type signingWallet struct {
	*keyAccount
}

func (w *signingWallet) SignTransaction(ctx context.Context, request TransactionRequest) ([]byte, error) {
	tx, err := w.signTx(request)
	if err != nil {
		return nil, err
	}
	return tx.MarshalBinary()
}

func (w *signingWallet) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return w.signMessage(message)
}

// sendingWallet broadcasts to chain and signs messages
type sendingWallet struct {
	*keyAccount
	chain *mockChain
}

func (w *sendingWallet) SendTransaction(ctx context.Context, request TransactionRequest) (string, error) {
	tx, err := w.signTx(request)
	if err != nil {
		return "", err
	}
	w.chain.include(tx)
	return tx.Hash().Hex(), nil
}

func (w *sendingWallet) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return w.signMessage(message)
}

// fullWallet can do everything
type fullWallet struct {
	*authorizationWallet
	*signingWallet
}

func (w *fullWallet) Address() string { return w.authorizationWallet.Address() }

// rejectingSigner fails every signature
type rejectingSigner struct {
	*keyAccount
}

func (w *rejectingSigner) SignTransaction(ctx context.Context, request TransactionRequest) ([]byte, error) {
	return nil, errors.New("user rejected the request")
}
