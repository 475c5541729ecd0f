package svm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	h402 "github.com/bitgpt/h402/go"
)

// ExactFacilitator verifies and settles exact Solana payments on the clusters
// of its ClusterConfig
type ExactFacilitator struct {
	cluster *ClusterConfig
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

// WithConfirmationPolling bounds how long the facilitator waits for
// transactions to appear and confirm
func WithConfirmationPolling(opts h402.PollOptions) FacilitatorOption {
	return func(f *ExactFacilitator) {
		f.poll = opts
	}
}

// NewExactFacilitator creates a Solana facilitator
func NewExactFacilitator(cluster *ClusterConfig, opts ...FacilitatorOption) *ExactFacilitator {
	f := &ExactFacilitator{
		cluster: cluster,
		logger:  slog.Default(),
		poll:    h402.DefaultPollOptions,
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
	return h402.NamespaceSolana
}

// Networks lists the configured clusters
func (f *ExactFacilitator) Networks() []string {
	return f.cluster.Networks()
}

// TokenDecimals implements h402.DecimalsResolver
func (f *ExactFacilitator) TokenDecimals(ctx context.Context, requirements h402.PaymentRequirements) (int32, error) {
	client, err := f.cluster.Client(requirements.NetworkID)
	if err != nil {
		return 0, err
	}
	return TokenDecimals(ctx, client, requirements)
}

// Verify checks that payload pays requirements
func (f *ExactFacilitator) Verify(ctx context.Context, payload h402.PaymentPayload, requirements h402.PaymentRequirements) (h402.VerifyResponse, error) {
	client, err := f.cluster.Client(requirements.NetworkID)
	if err != nil {
		return h402.Invalid(h402.ReasonInvalidNetwork, err.Error()), nil
	}
	amount, err := requirements.AtomicAmount()
	if err != nil {
		return h402.Invalid(h402.ReasonInvalidRequirements, err.Error()), nil
	}

	switch p := payload.Payload.(type) {
	case nil:
		return h402.Invalid(h402.ReasonInvalidPayload, "payload body is missing"), nil
	case h402.SolanaSignTransactionPayload:
		return f.verifySignedTransaction(p, amount, requirements), nil
	case h402.SolanaSignAndSendTransactionPayload:
		return f.verifyConfirmed(ctx, client, p.Signature, p.Memo, p.SignedMessage, requirements.Resource, amount, requirements)
	case h402.SolanaNativeTransferPayload:
		if !IsNativeToken(requirements.TokenAddress) {
			return h402.Invalid(ErrUnsupportedPayloadType, "nativeTransfer cannot pay an SPL requirement"), nil
		}
		return f.verifyConfirmed(ctx, client, p.Signature, p.Memo, "", requirements.Resource, amount, requirements)
	case h402.SolanaTokenTransferPayload:
		if IsNativeToken(requirements.TokenAddress) {
			return h402.Invalid(ErrUnsupportedPayloadType, "tokenTransfer cannot pay a native requirement"), nil
		}
		return f.verifyConfirmed(ctx, client, p.Signature, p.Memo, "", requirements.Resource, amount, requirements)
	case h402.SolanaSignMessagePayload:
		return h402.Invalid(ErrMessageOnlyPayload, "signMessage payloads move no funds and cannot be verified as transactions"), nil
	default:
		return h402.Invalid(ErrUnsupportedPayloadType, fmt.Sprintf("payload type %s is not supported on solana", payload.Payload.PayloadType())), nil
	}
}

func (f *ExactFacilitator) verifySignedTransaction(p h402.SolanaSignTransactionPayload, amount *big.Int, requirements h402.PaymentRequirements) h402.VerifyResponse {
	tx, err := DecodeTransaction(p.Transaction)
	if err != nil {
		return h402.Invalid(ErrInvalidTransaction, err.Error())
	}
	payer, err := FeePayer(tx)
	if err != nil {
		return h402.Invalid(ErrInvalidTransaction, err.Error())
	}
	if err := tx.VerifySignatures(); err != nil {
		return invalidWithPayer(ErrInvalidSignature, err.Error(), payer)
	}
	if reason, msg := checkTransfer(tx, requirements, amount); reason != "" {
		return invalidWithPayer(reason, msg, payer)
	}
	if reason, msg := checkMemo(tx, p.Memo, requirements.Resource, false); reason != "" {
		return invalidWithPayer(reason, msg, payer)
	}
	return h402.VerifyResponse{
		IsValid: true,
		Type:    h402.VerificationTypePayload,
		Payer:   payer.String(),
	}
}

func (f *ExactFacilitator) verifyConfirmed(
	ctx context.Context,
	client RPC,
	signature string,
	memo string,
	signedMessage string,
	resource string,
	amount *big.Int,
	requirements h402.PaymentRequirements,
) (h402.VerifyResponse, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return h402.Invalid(ErrInvalidSignature, fmt.Sprintf("invalid transaction signature: %v", err)), nil
	}

	result, err := f.fetchTransaction(ctx, client, sig)
	if err != nil {
		return h402.VerifyResponse{}, err
	}
	if result == nil || result.Transaction == nil {
		return h402.Invalid(ErrTransactionNotFound, fmt.Sprintf("transaction %s not found", sig)), nil
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return h402.Invalid(ErrInvalidTransaction, err.Error()), nil
	}
	payer, err := FeePayer(tx)
	if err != nil {
		return h402.Invalid(ErrInvalidTransaction, err.Error()), nil
	}
	if result.Meta != nil && result.Meta.Err != nil {
		return invalidWithPayer(ErrTransactionFailed, fmt.Sprintf("transaction %s failed: %v", sig, result.Meta.Err), payer), nil
	}

	if reason, msg := checkTransfer(tx, requirements, amount); reason != "" {
		return invalidWithPayer(reason, msg, payer), nil
	}
	// without a signed message the memo is the only link to the resource
	if reason, msg := checkMemo(tx, memo, resource, signedMessage == ""); reason != "" {
		return invalidWithPayer(reason, msg, payer), nil
	}
	if signedMessage != "" {
		messageSig, err := solana.SignatureFromBase58(signedMessage)
		if err != nil || !messageSig.Verify(payer, []byte(resource)) {
			return invalidWithPayer(ErrSignedMessage, "resource signature does not verify against the fee payer", payer), nil
		}
	}

	return h402.VerifyResponse{
		IsValid: true,
		Type:    h402.VerificationTypeTransaction,
		TxHash:  sig.String(),
		Payer:   payer.String(),
	}, nil
}

// fetchTransaction polls getTransaction until the transaction is visible at
// confirmed commitment. It returns nil when it never appears.
func (f *ExactFacilitator) fetchTransaction(ctx context.Context, client RPC, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}
	return h402.Poll(ctx, f.poll, func(ctx context.Context) (*rpc.GetTransactionResult, bool, error) {
		result, err := client.GetTransaction(ctx, sig, opts)
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to get transaction %s: %w", sig, err)
		}
		return result, result != nil, nil
	})
}

// Settle broadcasts signed transactions and waits for confirmation
func (f *ExactFacilitator) Settle(ctx context.Context, payload h402.PaymentPayload, requirements h402.PaymentRequirements) (h402.SettleResponse, error) {
	network := requirements.NetworkID
	client, err := f.cluster.Client(network)
	if err != nil {
		return h402.SettleFailure(h402.ReasonInvalidNetwork, err.Error(), network), nil
	}

	var (
		sig   solana.Signature
		payer string
	)
	switch p := payload.Payload.(type) {
	case nil:
		return h402.SettleFailure(h402.ReasonInvalidPayload, "payload body is missing", network), nil
	case h402.SolanaSignTransactionPayload:
		tx, err := DecodeTransaction(p.Transaction)
		if err != nil {
			return h402.SettleFailure(ErrInvalidTransaction, err.Error(), network), nil
		}
		if feePayer, err := FeePayer(tx); err == nil {
			payer = feePayer.String()
		}
		sig, err = client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		if err != nil {
			return h402.SettleResponse{}, fmt.Errorf("failed to send transaction: %w", err)
		}
	case h402.SolanaSignAndSendTransactionPayload:
		sig, err = solana.SignatureFromBase58(p.Signature)
	case h402.SolanaNativeTransferPayload:
		sig, err = solana.SignatureFromBase58(p.Signature)
	case h402.SolanaTokenTransferPayload:
		sig, err = solana.SignatureFromBase58(p.Signature)
	case h402.SolanaSignMessagePayload:
		return h402.SettleFailure(ErrMessageOnlyPayload, "signMessage payloads cannot be settled", network), nil
	default:
		return h402.SettleFailure(ErrUnsupportedPayloadType, fmt.Sprintf("payload type %s is not supported on solana", payload.Payload.PayloadType()), network), nil
	}
	if err != nil {
		return h402.SettleFailure(ErrInvalidSignature, err.Error(), network), nil
	}

	status, err := f.waitForConfirmation(ctx, client, sig)
	if err != nil {
		return h402.SettleResponse{}, err
	}
	if status != nil && status.Err != nil {
		failure := h402.SettleFailure(ErrTransactionFailed, fmt.Sprintf("transaction %s failed: %v", sig, status.Err), network)
		failure.Payer = payer
		return failure, nil
	}
	if status == nil || !confirmed(status) {
		failure := h402.SettleFailure(ErrConfirmationTimeout, fmt.Sprintf("transaction %s was not confirmed in time", sig), network)
		failure.Payer = payer
		return failure, nil
	}

	f.logger.Info("solana payment settled", "networkId", network, "signature", sig.String())
	return h402.SettleResponse{
		Success:     true,
		TxHash:      sig.String(),
		Transaction: sig.String(),
		Network:     network,
		Payer:       payer,
	}, nil
}

func (f *ExactFacilitator) waitForConfirmation(ctx context.Context, client RPC, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	return h402.Poll(ctx, f.poll, func(ctx context.Context) (*rpc.SignatureStatusesResult, bool, error) {
		result, err := client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return nil, false, fmt.Errorf("failed to get signature status: %w", err)
		}
		if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
			return nil, false, nil
		}
		status := result.Value[0]
		return status, status.Err != nil || confirmed(status), nil
	})
}

func confirmed(status *rpc.SignatureStatusesResult) bool {
	return status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		status.ConfirmationStatus == rpc.ConfirmationStatusFinalized
}

func invalidWithPayer(reason, message string, payer solana.PublicKey) h402.VerifyResponse {
	resp := h402.Invalid(reason, message)
	resp.Payer = payer.String()
	return resp
}
