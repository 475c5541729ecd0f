package arkade

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"

	h402 "github.com/bitgpt/h402/go"
)

// ExactFacilitator verifies and settles exact Arkade payments against one Ark
// server per network
type ExactFacilitator struct {
	servers map[string]Server
	logger  *slog.Logger
	poll    h402.PollOptions
}

// FacilitatorOption configures an ExactFacilitator
type FacilitatorOption func(*ExactFacilitator)

// WithFacilitatorLogger sets the logger
func WithFacilitatorLogger(logger *slog.Logger) FacilitatorOption {
	return func(f *ExactFacilitator) {
		f.logger = logger
	}
}

// WithIndexerPolling bounds how long the facilitator waits for a submitted
// transaction to show up in the indexer
func WithIndexerPolling(opts h402.PollOptions) FacilitatorOption {
	return func(f *ExactFacilitator) {
		f.poll = opts
	}
}

// NewExactFacilitator creates an Arkade facilitator. servers maps network ids
// to the Ark server operating on them.
func NewExactFacilitator(servers map[string]Server, opts ...FacilitatorOption) *ExactFacilitator {
	f := &ExactFacilitator{
		servers: make(map[string]Server, len(servers)),
		logger:  slog.Default(),
		poll:    h402.DefaultPollOptions,
	}
	for network, server := range servers {
		f.servers[network] = server
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Scheme returns the scheme identifier
func (f *ExactFacilitator) Scheme() string {
	return SchemeExact
}

// Namespace returns the namespace identifier
func (f *ExactFacilitator) Namespace() h402.Namespace {
	return h402.NamespaceArkade
}

// Networks lists the networks with a configured server
func (f *ExactFacilitator) Networks() []string {
	networks := make([]string, 0, len(f.servers))
	for network := range f.servers {
		networks = append(networks, network)
	}
	sort.Strings(networks)
	return networks
}

// TokenDecimals implements h402.DecimalsResolver
func (f *ExactFacilitator) TokenDecimals(_ context.Context, requirements h402.PaymentRequirements) (int32, error) {
	return TokenDecimals(requirements)
}

func (f *ExactFacilitator) server(network string) (Server, error) {
	server, ok := f.servers[network]
	if !ok {
		return nil, fmt.Errorf("%w: no ark server configured for %q", h402.ErrUnsupportedNetwork, network)
	}
	return server, nil
}

// Verify checks that payload pays requirements
func (f *ExactFacilitator) Verify(ctx context.Context, payload h402.PaymentPayload, requirements h402.PaymentRequirements) (h402.VerifyResponse, error) {
	server, err := f.server(requirements.NetworkID)
	if err != nil {
		return h402.Invalid(h402.ReasonInvalidNetwork, err.Error()), nil
	}
	if !IsNativeToken(requirements.TokenAddress) {
		return h402.Invalid(ErrUnsupportedToken, fmt.Sprintf("arkade only settles BTC, got token %q", requirements.TokenAddress)), nil
	}
	payTo, err := DecodeAddress(requirements.PayToAddress)
	if err != nil {
		return h402.Invalid(ErrInvalidAddress, err.Error()), nil
	}
	if payTo.HRP != addressPrefix(requirements.NetworkID) {
		return h402.Invalid(ErrNetworkMismatch, fmt.Sprintf("ark address prefix %q is not used on %s", payTo.HRP, requirements.NetworkID)), nil
	}
	amount, err := requirements.AtomicAmount()
	if err != nil {
		return h402.Invalid(h402.ReasonInvalidRequirements, err.Error()), nil
	}
	if !amount.IsUint64() {
		return h402.Invalid(h402.ReasonInvalidRequirements, fmt.Sprintf("amount %s does not fit in u64", amount)), nil
	}

	switch p := payload.Payload.(type) {
	case nil:
		return h402.Invalid(h402.ReasonInvalidPayload, "payload body is missing"), nil
	case h402.ArkadeSignTransactionPayload:
		return verifySignedTransaction(p, payTo, amount.Uint64()), nil
	case h402.ArkadeSignAndSendTransactionPayload:
		return f.verifySubmitted(ctx, server, p, requirements.Resource, payTo, amount.Uint64())
	case h402.ArkadeSignMessagePayload:
		return h402.Invalid(ErrMessageOnlyPayload, "signMessage payloads move no funds and cannot be verified as transactions"), nil
	default:
		return h402.Invalid(ErrUnsupportedPayloadType, fmt.Sprintf("payload type %s is not supported on arkade", payload.Payload.PayloadType())), nil
	}
}

func verifySignedTransaction(p h402.ArkadeSignTransactionPayload, payTo *Address, amount uint64) h402.VerifyResponse {
	packet, err := DecodePSBT(p.PSBT)
	if err != nil {
		return h402.Invalid(ErrInvalidPSBT, err.Error())
	}
	payer := payerOf(packet)
	if idx := checkSigned(packet); idx >= 0 {
		return invalidWithPayer(ErrUnsignedInput, fmt.Sprintf("input %d is not signed", idx), payer)
	}
	if reason, msg := checkOutputs(packet, payTo, amount); reason != "" {
		return invalidWithPayer(reason, msg, payer)
	}
	return h402.VerifyResponse{
		IsValid: true,
		Type:    h402.VerificationTypePayload,
		TxHash:  TxID(packet),
		Payer:   payer,
	}
}

func (f *ExactFacilitator) verifySubmitted(
	ctx context.Context,
	server Server,
	p h402.ArkadeSignAndSendTransactionPayload,
	resource string,
	payTo *Address,
	amount uint64,
) (h402.VerifyResponse, error) {
	if reason, msg := verifyResourceSignature(p.PublicKey, p.SignedMessage, resource); reason != "" {
		return invalidWithPayer(reason, msg, p.PublicKey), nil
	}

	packet, err := f.fetchVirtualTx(ctx, server, p.TxID)
	if err != nil {
		return h402.VerifyResponse{}, err
	}
	if packet == nil {
		return invalidWithPayer(ErrTransactionNotFound, fmt.Sprintf("ark transaction %s not found", p.TxID), p.PublicKey), nil
	}
	if !spendsFrom(packet, p.PublicKey) {
		return invalidWithPayer(ErrInvalidSignature, fmt.Sprintf("public key does not own the inputs of ark transaction %s", p.TxID), p.PublicKey), nil
	}
	if reason, msg := checkOutputs(packet, payTo, amount); reason != "" {
		return invalidWithPayer(reason, msg, p.PublicKey), nil
	}
	return h402.VerifyResponse{
		IsValid: true,
		Type:    h402.VerificationTypeTransaction,
		TxHash:  p.TxID,
		Payer:   p.PublicKey,
	}, nil
}

// verifyResourceSignature checks a hex BIP-340 signature over the resource
// hash against a hex x-only public key
func verifyResourceSignature(publicKey, signature, resource string) (string, string) {
	keyBytes, err := hex.DecodeString(publicKey)
	if err != nil {
		return ErrInvalidSignature, "public key is not hex"
	}
	key, err := schnorr.ParsePubKey(keyBytes)
	if err != nil {
		return ErrInvalidSignature, fmt.Sprintf("invalid public key: %v", err)
	}
	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature, "signature is not hex"
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return ErrInvalidSignature, fmt.Sprintf("invalid signature: %v", err)
	}
	hash := ResourceHash(resource)
	if !sig.Verify(hash[:], key) {
		return ErrInvalidSignature, "resource signature does not verify against the public key"
	}
	return "", ""
}

// fetchVirtualTx polls the indexer until txid is visible. It returns nil when
// it never appears.
func (f *ExactFacilitator) fetchVirtualTx(ctx context.Context, server Server, txid string) (*psbt.Packet, error) {
	return h402.Poll(ctx, f.poll, func(ctx context.Context) (*psbt.Packet, bool, error) {
		packet, err := server.VirtualTx(ctx, txid)
		if err != nil {
			return nil, false, fmt.Errorf("failed to get ark transaction %s: %w", txid, err)
		}
		return packet, packet != nil, nil
	})
}

// Settle submits signed transactions to the Ark server, or confirms that a
// wallet-submitted transaction is known to it
func (f *ExactFacilitator) Settle(ctx context.Context, payload h402.PaymentPayload, requirements h402.PaymentRequirements) (h402.SettleResponse, error) {
	network := requirements.NetworkID
	server, err := f.server(network)
	if err != nil {
		return h402.SettleFailure(h402.ReasonInvalidNetwork, err.Error(), network), nil
	}

	var (
		txid  string
		payer string
	)
	switch p := payload.Payload.(type) {
	case nil:
		return h402.SettleFailure(h402.ReasonInvalidPayload, "payload body is missing", network), nil
	case h402.ArkadeSignTransactionPayload:
		packet, err := DecodePSBT(p.PSBT)
		if err != nil {
			return h402.SettleFailure(ErrInvalidPSBT, err.Error(), network), nil
		}
		payer = payerOf(packet)
		txid, err = server.SubmitTx(ctx, p.PSBT, p.Checkpoints)
		if err != nil {
			failure := h402.SettleFailure(ErrSubmitRejected, err.Error(), network)
			failure.Payer = payer
			return failure, nil
		}
	case h402.ArkadeSignAndSendTransactionPayload:
		payer = p.PublicKey
		packet, err := f.fetchVirtualTx(ctx, server, p.TxID)
		if err != nil {
			return h402.SettleResponse{}, err
		}
		if packet == nil {
			failure := h402.SettleFailure(ErrTransactionNotFound, fmt.Sprintf("ark transaction %s not found", p.TxID), network)
			failure.Payer = payer
			return failure, nil
		}
		txid = p.TxID
	case h402.ArkadeSignMessagePayload:
		return h402.SettleFailure(ErrMessageOnlyPayload, "signMessage payloads cannot be settled", network), nil
	default:
		return h402.SettleFailure(ErrUnsupportedPayloadType, fmt.Sprintf("payload type %s is not supported on arkade", payload.Payload.PayloadType()), network), nil
	}

	f.logger.Info("arkade payment settled", "networkId", network, "txid", txid)
	return h402.SettleResponse{
		Success:     true,
		TxHash:      txid,
		Transaction: txid,
		Network:     network,
		Payer:       payer,
	}, nil
}

// payerOf returns the hex x-only key of the first input when it spends a
// taproot output, or ""
func payerOf(packet *psbt.Packet) string {
	if len(packet.Inputs) == 0 || packet.Inputs[0].WitnessUtxo == nil {
		return ""
	}
	script := packet.Inputs[0].WitnessUtxo.PkScript
	if txscript.GetScriptClass(script) != txscript.WitnessV1TaprootTy {
		return ""
	}
	return hex.EncodeToString(script[2:])
}

// spendsFrom reports whether any input of packet is locked to the x-only
// key publicKey
func spendsFrom(packet *psbt.Packet, publicKey string) bool {
	for _, in := range packet.Inputs {
		if in.WitnessUtxo == nil {
			continue
		}
		script := in.WitnessUtxo.PkScript
		if txscript.GetScriptClass(script) != txscript.WitnessV1TaprootTy {
			continue
		}
		if strings.EqualFold(hex.EncodeToString(script[2:]), publicKey) {
			return true
		}
	}
	return false
}

func invalidWithPayer(reason, message, payer string) h402.VerifyResponse {
	resp := h402.Invalid(reason, message)
	resp.Payer = payer
	return resp
}
