package svm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

// mockRPC is an in-memory cluster. Sent transactions land immediately unless
// hidden is set.
type mockRPC struct {
	mu sync.Mutex

	blockhash solana.Hash
	accounts  map[solana.PublicKey]*rpc.Account
	sent      map[solana.Signature]*solana.Transaction
	failed    map[solana.Signature]bool
	hidden    bool
}

func newMockRPC() *mockRPC {
	return &mockRPC{
		blockhash: solana.HashFromBytes([]byte("h402-test-blockhash-000000000000")),
		accounts:  make(map[solana.PublicKey]*rpc.Account),
		sent:      make(map[solana.Signature]*solana.Transaction),
		failed:    make(map[solana.Signature]bool),
	}
}

// addMint registers a mint account owned by program with the given decimals
func (m *mockRPC) addMint(mint, program solana.PublicKey, decimals uint8) {
	data := make([]byte, 82)
	data[44] = decimals
	data[45] = 1
	m.accounts[mint] = &rpc.Account{
		Lamports: 1_461_600,
		Owner:    program,
		Data:     rpc.DataBytesOrJSONFromBytes(data),
	}
}

func (m *mockRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: m.blockhash, LastValidBlockHeight: 1000},
	}, nil
}

func (m *mockRPC) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: value}, nil
}

func (m *mockRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("transaction signature verification failure: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sig := tx.Signatures[0]
	m.sent[sig] = tx
	return sig, nil
}

func (m *mockRPC) GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	m.mu.Lock()
	tx, ok := m.sent[sig]
	failed := m.failed[sig]
	hidden := m.hidden
	m.mu.Unlock()
	if !ok || hidden {
		return nil, rpc.ErrNotFound
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	metaErr := "null"
	if failed {
		metaErr = `{"InstructionError":[2,{"Custom":1}]}`
	}
	body := fmt.Sprintf(`{"slot":42,"transaction":[%q,"base64"],"meta":{"err":%s,"fee":5000,"preBalances":[],"postBalances":[]}}`,
		base64.StdEncoding.EncodeToString(raw), metaErr)

	var result rpc.GetTransactionResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (m *mockRPC) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := &rpc.GetSignatureStatusesResult{}
	for _, sig := range sigs {
		if _, ok := m.sent[sig]; !ok || m.hidden {
			result.Value = append(result.Value, nil)
			continue
		}
		status := &rpc.SignatureStatusesResult{Slot: 42, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
		if m.failed[sig] {
			status.Err = map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}}
		}
		result.Value = append(result.Value, status)
	}
	return result, nil
}

// keyWallet only exposes its public key
type keyWallet struct {
	key solana.PrivateKey
}

func newKeyWallet(t *testing.T) *keyWallet {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return &keyWallet{key: key}
}

func (w *keyWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

func (w *keyWallet) sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	return err
}

func (w *keyWallet) signMessage(message []byte) (solana.Signature, error) {
	return w.key.Sign(message)
}

// signingWallet signs transactions and messages
type signingWallet struct {
	*keyWallet
}

func (w *signingWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	return w.sign(tx)
}

func (w *signingWallet) SignMessage(ctx context.Context, message []byte) (solana.Signature, error) {
	return w.signMessage(message)
}

// sendingWallet signs and broadcasts through its RPC
type sendingWallet struct {
	*keyWallet
	rpc *mockRPC
}

func (w *sendingWallet) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := w.sign(tx); err != nil {
		return solana.Signature{}, err
	}
	return w.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{})
}

func (w *sendingWallet) SignMessage(ctx context.Context, message []byte) (solana.Signature, error) {
	return w.signMessage(message)
}
