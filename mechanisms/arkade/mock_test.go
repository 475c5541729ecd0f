package arkade

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// keyIdentity is a bare Ark identity: it can sign but has no way to pay
type keyIdentity struct {
	key *btcec.PrivateKey
}

func newKeyIdentity(t *testing.T) *keyIdentity {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return &keyIdentity{key: key}
}

func (k *keyIdentity) XOnlyPublicKey() *btcec.PublicKey {
	return k.key.PubKey()
}

func (k *keyIdentity) SignSchnorr(_ context.Context, hash [32]byte) (*schnorr.Signature, error) {
	return schnorr.Sign(k.key, hash[:])
}

// payerScript is the taproot output the wallet's VTXO sits in
func (k *keyIdentity) payerScript(t *testing.T) []byte {
	t.Helper()
	script, err := txscript.PayToTaprootScript(k.key.PubKey())
	require.NoError(t, err)
	return script
}

// buildPacket builds an Ark transaction spending one VTXO of k into a single
// output of value sats paying to
func (k *keyIdentity) buildPacket(t *testing.T, to string, value int64, signed bool) *psbt.Packet {
	t.Helper()
	address, err := DecodeAddress(to)
	require.NoError(t, err)
	script, err := address.PkScript()
	require.NoError(t, err)

	tx := wire.NewMsgTx(3)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.HashH([]byte(to)), Index: 0}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, script))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(value+1_000, k.payerScript(t))
	if signed {
		packet.Inputs[0].TaprootScriptSpendSig = []*psbt.TaprootScriptSpendSig{{
			XOnlyPubKey: schnorr.SerializePubKey(k.key.PubKey()),
			LeafHash:    make([]byte, 32),
			Signature:   make([]byte, 64),
			SigHash:     txscript.SigHashDefault,
		}}
	}
	return packet
}

func encodePacket(t *testing.T, packet *psbt.Packet) string {
	t.Helper()
	encoded, err := packet.B64Encode()
	require.NoError(t, err)
	return encoded
}

// signingWallet signs offchain transactions but never submits them
type signingWallet struct {
	*keyIdentity
	t        *testing.T
	unsigned bool
	requests []PaymentRequest
}

func (w *signingWallet) SignTransaction(_ context.Context, request PaymentRequest) (SignedTransaction, error) {
	w.requests = append(w.requests, request)
	packet := w.buildPacket(w.t, request.Address, int64(request.Amount), !w.unsigned)
	return SignedTransaction{
		PSBT:        encodePacket(w.t, packet),
		Checkpoints: []string{encodePacket(w.t, packet)},
	}, nil
}

// sendingWallet submits its transactions straight to the server
type sendingWallet struct {
	*keyIdentity
	t      *testing.T
	server *mockServer
	short  int64
}

func (w *sendingWallet) SendTransaction(_ context.Context, request PaymentRequest) (string, error) {
	packet := w.buildPacket(w.t, request.Address, int64(request.Amount)-w.short, true)
	txid := TxID(packet)
	w.server.add(txid, packet)
	return txid, nil
}

type failingSigner struct {
	*keyIdentity
}

func (failingSigner) SignTransaction(context.Context, PaymentRequest) (SignedTransaction, error) {
	return SignedTransaction{}, errors.New("vtxos locked")
}

type submitCall struct {
	psbt        string
	checkpoints []string
}

// mockServer is an in-memory Ark operator
type mockServer struct {
	mu        sync.Mutex
	txs       map[string]*psbt.Packet
	submitted []submitCall
	rejectErr error
	lookupErr error
	// hiddenLookups is the number of VirtualTx calls that miss before a
	// known transaction becomes visible
	hiddenLookups int
}

func newMockServer() *mockServer {
	return &mockServer{txs: make(map[string]*psbt.Packet)}
}

func (s *mockServer) add(txid string, packet *psbt.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[txid] = packet
}

func (s *mockServer) VirtualTx(_ context.Context, txid string) (*psbt.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if s.hiddenLookups > 0 {
		s.hiddenLookups--
		return nil, nil
	}
	return s.txs[txid], nil
}

func (s *mockServer) SubmitTx(_ context.Context, signedTx string, checkpoints []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectErr != nil {
		return "", s.rejectErr
	}
	s.submitted = append(s.submitted, submitCall{psbt: signedTx, checkpoints: checkpoints})
	packet, err := DecodePSBT(signedTx)
	if err != nil {
		return "", err
	}
	txid := TxID(packet)
	s.txs[txid] = packet
	return txid, nil
}
