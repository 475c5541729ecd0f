// Package ark provides an in-memory Ark operator and wallets that pay through
// it, for exercising the Arkade mechanism over real HTTP
package ark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/bitgpt/h402/go/mechanisms/arkade"
	arkadesigners "github.com/bitgpt/h402/go/signers/arkade"
)

// ============================================================================
// Operator
// ============================================================================

// Operator serves the subset of the arkd REST gateway used by
// arkade.RESTServer
type Operator struct {
	mu        sync.Mutex
	txs       map[string]*psbt.Packet
	submitted int
	mux       *http.ServeMux
}

// NewOperator creates an empty operator
func NewOperator() *Operator {
	o := &Operator{txs: make(map[string]*psbt.Packet), mux: http.NewServeMux()}
	o.mux.HandleFunc("GET /v1/indexer/virtualTx/{txid}", o.virtualTx)
	o.mux.HandleFunc("POST /v1/tx/submit", o.submitTx)
	return o
}

func (o *Operator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mux.ServeHTTP(w, r)
}

// Submitted returns how many transactions were submitted through the API
func (o *Operator) Submitted() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.submitted
}

// Has reports whether txid is in the virtual mempool
func (o *Operator) Has(txid string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.txs[txid]
	return ok
}

func (o *Operator) add(packet *psbt.Packet) string {
	txid := arkade.TxID(packet)
	o.mu.Lock()
	o.txs[txid] = packet
	o.mu.Unlock()
	return txid
}

func (o *Operator) virtualTx(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	packet, ok := o.txs[r.PathValue("txid")]
	o.mu.Unlock()

	txs := []string{}
	if ok {
		encoded, err := packet.B64Encode()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		txs = append(txs, encoded)
	}
	writeJSON(w, map[string]interface{}{"txs": txs})
}

func (o *Operator) submitTx(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SignedArkTx   string   `json:"signedArkTx"`
		CheckpointTxs []string `json:"checkpointTxs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	packet, err := arkade.DecodePSBT(req.SignedArkTx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txid := o.add(packet)
	o.mu.Lock()
	o.submitted++
	o.mu.Unlock()
	writeJSON(w, map[string]string{"arkTxid": txid})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ============================================================================
// Wallets
// ============================================================================

type wallet struct {
	*arkadesigners.KeyIdentity
	key *btcec.PrivateKey
}

func newWallet() (wallet, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return wallet{}, err
	}
	return wallet{KeyIdentity: arkadesigners.NewKeyIdentity(key), key: key}, nil
}

// Script is the taproot output holding the wallet's VTXO
func (w wallet) Script() ([]byte, error) {
	return txscript.PayToTaprootScript(w.key.PubKey())
}

// pay builds a signed Ark transaction spending one VTXO into request.Address
func (w wallet) pay(request arkade.PaymentRequest) (*psbt.Packet, error) {
	address, err := arkade.DecodeAddress(request.Address)
	if err != nil {
		return nil, err
	}
	to, err := address.PkScript()
	if err != nil {
		return nil, err
	}
	from, err := w.Script()
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(3)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.HashH(from), Index: 0}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(int64(request.Amount), to))

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to create psbt: %w", err)
	}
	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(int64(request.Amount)+10_000, from)

	sighash := chainhash.HashH([]byte(request.Address))
	sig, err := schnorr.Sign(w.key, sighash[:])
	if err != nil {
		return nil, err
	}
	packet.Inputs[0].TaprootScriptSpendSig = []*psbt.TaprootScriptSpendSig{{
		XOnlyPubKey: schnorr.SerializePubKey(w.key.PubKey()),
		LeafHash:    sighash[:],
		Signature:   sig.Serialize(),
		SigHash:     txscript.SigHashDefault,
	}}
	return packet, nil
}

// Signer signs Ark transactions and leaves submission to the facilitator
type Signer struct {
	wallet
}

// NewSigner creates a wallet with a fresh key
func NewSigner() (*Signer, error) {
	w, err := newWallet()
	if err != nil {
		return nil, err
	}
	return &Signer{wallet: w}, nil
}

func (s *Signer) SignTransaction(_ context.Context, request arkade.PaymentRequest) (arkade.SignedTransaction, error) {
	packet, err := s.pay(request)
	if err != nil {
		return arkade.SignedTransaction{}, err
	}
	encoded, err := packet.B64Encode()
	if err != nil {
		return arkade.SignedTransaction{}, err
	}
	return arkade.SignedTransaction{PSBT: encoded}, nil
}

// Sender submits its own transactions straight to the operator
type Sender struct {
	wallet
	operator *Operator
}

// NewSender creates a wallet with a fresh key that pays through operator
func NewSender(operator *Operator) (*Sender, error) {
	w, err := newWallet()
	if err != nil {
		return nil, err
	}
	return &Sender{wallet: w, operator: operator}, nil
}

func (s *Sender) SendTransaction(_ context.Context, request arkade.PaymentRequest) (string, error) {
	packet, err := s.pay(request)
	if err != nil {
		return "", err
	}
	return s.operator.add(packet), nil
}
