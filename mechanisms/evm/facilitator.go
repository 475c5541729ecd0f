package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	h402 "github.com/bitgpt/h402/go"
)

// ExactFacilitator verifies and settles exact EVM payments. It holds one
// signer per chain, keyed by decimal chain id.
type ExactFacilitator struct {
	signers map[string]FacilitatorSigner
	logger  *slog.Logger
	poll    h402.PollOptions
	now     func() time.Time
}

// FacilitatorOption configures an ExactFacilitator
type FacilitatorOption func(*ExactFacilitator)

// WithFacilitatorLogger sets the logger
func WithFacilitatorLogger(logger *slog.Logger) FacilitatorOption {
	return func(f *ExactFacilitator) {
		f.logger = logger
	}
}

// WithReceiptPolling bounds how long settlement waits for a receipt
func WithReceiptPolling(opts h402.PollOptions) FacilitatorOption {
	return func(f *ExactFacilitator) {
		f.poll = opts
	}
}

// WithFacilitatorClock overrides the clock used to check authorization windows
func WithFacilitatorClock(now func() time.Time) FacilitatorOption {
	return func(f *ExactFacilitator) {
		f.now = now
	}
}

// NewExactFacilitator creates a facilitator for the chains in signers
func NewExactFacilitator(signers map[string]FacilitatorSigner, opts ...FacilitatorOption) *ExactFacilitator {
	f := &ExactFacilitator{
		signers: make(map[string]FacilitatorSigner, len(signers)),
		logger:  slog.Default(),
		poll:    h402.DefaultPollOptions,
		now:     time.Now,
	}
	for network, signer := range signers {
		f.signers[network] = signer
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
	return h402.NamespaceEVM
}

// Networks lists the chain ids with a configured signer
func (f *ExactFacilitator) Networks() []string {
	networks := make([]string, 0, len(f.signers))
	for network := range f.signers {
		networks = append(networks, network)
	}
	sort.Strings(networks)
	return networks
}

// TokenDecimals implements h402.DecimalsResolver
func (f *ExactFacilitator) TokenDecimals(ctx context.Context, requirements h402.PaymentRequirements) (int32, error) {
	signer, ok := f.signers[requirements.NetworkID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", h402.ErrUnsupportedNetwork, requirements.NetworkID)
	}
	return TokenDecimals(ctx, signer, requirements, f.logger)
}

// Verify checks that payload pays requirements
func (f *ExactFacilitator) Verify(ctx context.Context, payload h402.PaymentPayload, requirements h402.PaymentRequirements) (h402.VerifyResponse, error) {
	signer, ok := f.signers[requirements.NetworkID]
	if !ok {
		return h402.Invalid(h402.ReasonInvalidNetwork, fmt.Sprintf("no signer configured for chain %s", requirements.NetworkID)), nil
	}
	chainID, err := ChainID(requirements.NetworkID)
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
	case h402.EvmAuthorizationPayload:
		return f.verifyAuthorization(ctx, signer, chainID, amount, p, requirements)
	case h402.EvmSignedTransactionPayload:
		return f.verifyRawTransaction(chainID, amount, p.SignedTransaction, p.SignedMessage, nil, requirements.Resource, requirements), nil
	case h402.EvmNativeTransferPayload:
		if !IsNativeToken(requirements.TokenAddress) {
			return h402.Invalid(ErrTokenMismatch, "nativeTransfer cannot pay an ERC-20 requirement"), nil
		}
		return f.verifyRawTransaction(chainID, amount, p.SignedTransaction, "", &p.Nonce, requirements.Resource, requirements), nil
	case h402.EvmTokenTransferPayload:
		if IsNativeToken(requirements.TokenAddress) {
			return h402.Invalid(ErrTokenMismatch, "tokenTransfer cannot pay a native requirement"), nil
		}
		return f.verifyRawTransaction(chainID, amount, p.SignedTransaction, "", &p.Nonce, requirements.Resource, requirements), nil
	case h402.EvmSignAndSendTransactionPayload:
		return f.verifySentTransaction(ctx, signer, chainID, amount, p, requirements.Resource, requirements)
	default:
		return h402.Invalid(ErrUnsupportedPayloadType, fmt.Sprintf("payload type %s is not supported on evm", payload.Payload.PayloadType())), nil
	}
}

func (f *ExactFacilitator) verifyAuthorization(
	ctx context.Context,
	signer FacilitatorSigner,
	chainID *big.Int,
	amount *big.Int,
	p h402.EvmAuthorizationPayload,
	requirements h402.PaymentRequirements,
) (h402.VerifyResponse, error) {
	auth := p.Authorization
	if IsNativeToken(requirements.TokenAddress) {
		return h402.Invalid(ErrTokenMismatch, "authorization payments require an ERC-20 token"), nil
	}
	if auth.Value == nil || auth.ValidAfter == nil || auth.ValidBefore == nil {
		return h402.Invalid(ErrInvalidAuthorizationData, "authorization is missing value or validity bounds"), nil
	}
	if !strings.EqualFold(auth.To, requirements.PayToAddress) {
		return invalidWithPayer(ErrRecipientMismatch, fmt.Sprintf("authorization pays %s, expected %s", auth.To, requirements.PayToAddress), auth.From), nil
	}
	if auth.Value.Big().Cmp(amount) < 0 {
		return invalidWithPayer(ErrInsufficientValue, fmt.Sprintf("authorization value %s is below required %s", auth.Value, amount), auth.From), nil
	}

	now := big.NewInt(f.now().Unix())
	if auth.ValidAfter.Big().Cmp(now) > 0 {
		return invalidWithPayer(ErrValidAfter, "authorization is not yet valid", auth.From), nil
	}
	if auth.ValidBefore.Big().Cmp(now) < 0 {
		return invalidWithPayer(ErrValidBefore, "authorization has expired", auth.From), nil
	}

	name, version, err := tokenDomain(ctx, signer, requirements)
	if err != nil {
		return h402.VerifyResponse{}, err
	}
	if auth.Version != "" {
		version = auth.Version
	}
	digest, err := HashAuthorization(auth, chainID, requirements.TokenAddress, name, version)
	if err != nil {
		return invalidWithPayer(ErrInvalidAuthorizationData, err.Error(), auth.From), nil
	}
	signature, err := HexToBytes(p.Signature)
	if err != nil {
		return invalidWithPayer(ErrInvalidSignature, "signature is not hex", auth.From), nil
	}
	recovered, err := RecoverSigner(digest, signature)
	if err != nil || !strings.EqualFold(recovered.Hex(), auth.From) {
		return invalidWithPayer(ErrInvalidSignature, "signature does not match authorization.from", auth.From), nil
	}

	used, err := f.authorizationUsed(ctx, signer, requirements.TokenAddress, auth)
	if err != nil {
		return h402.VerifyResponse{}, err
	}
	if used {
		return invalidWithPayer(ErrNonceUsed, "authorization nonce was already used", auth.From), nil
	}

	balance, err := signer.ReadContract(ctx, requirements.TokenAddress, ERC20ABI, FunctionBalanceOf, common.HexToAddress(auth.From))
	if err != nil {
		return h402.VerifyResponse{}, fmt.Errorf("failed to read balance: %w", err)
	}
	funds, err := toBigInt(balance)
	if err != nil {
		return h402.VerifyResponse{}, fmt.Errorf("failed to read balance: %w", err)
	}
	if funds.Cmp(auth.Value.Big()) < 0 {
		return invalidWithPayer(ErrInsufficientFunds, fmt.Sprintf("balance %s is below %s", funds, auth.Value), auth.From), nil
	}

	return h402.VerifyResponse{
		IsValid: true,
		Type:    h402.VerificationTypePayload,
		Payer:   common.HexToAddress(auth.From).Hex(),
	}, nil
}

// authorizationUsed reads authorizationState(from, nonce)
func (f *ExactFacilitator) authorizationUsed(ctx context.Context, signer FacilitatorSigner, token string, auth h402.EvmAuthorization) (bool, error) {
	nonce, err := nonceBytes(auth.Nonce)
	if err != nil {
		return false, err
	}
	result, err := signer.ReadContract(ctx, token, AuthorizationStateABI, FunctionAuthorizationState,
		common.HexToAddress(auth.From), nonce)
	if err != nil {
		return false, fmt.Errorf("failed to read authorization state: %w", err)
	}
	used, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type %T from authorizationState", result)
	}
	return used, nil
}

func (f *ExactFacilitator) verifyRawTransaction(
	chainID *big.Int,
	amount *big.Int,
	signedTransaction string,
	signedMessage string,
	expectedNonce *uint64,
	resource string,
	requirements h402.PaymentRequirements,
) h402.VerifyResponse {
	tx, err := decodeTransaction(signedTransaction)
	if err != nil {
		return h402.Invalid(ErrInvalidTransaction, err.Error())
	}
	sender, reason, msg := checkSignedTransfer(tx, chainID, amount, requirements)
	if reason != "" {
		return invalidWithPayer(reason, msg, sender)
	}
	if expectedNonce != nil && tx.Nonce() != *expectedNonce {
		return invalidWithPayer(ErrTxNonceMismatch, fmt.Sprintf("transaction nonce %d, payload says %d", tx.Nonce(), *expectedNonce), sender)
	}
	if signedMessage != "" {
		if reason, msg := checkSignedMessage(signedMessage, resource, sender); reason != "" {
			return invalidWithPayer(reason, msg, sender)
		}
	}
	return h402.VerifyResponse{
		IsValid: true,
		Type:    h402.VerificationTypePayload,
		Payer:   sender,
	}
}

func (f *ExactFacilitator) verifySentTransaction(
	ctx context.Context,
	signer FacilitatorSigner,
	chainID *big.Int,
	amount *big.Int,
	p h402.EvmSignAndSendTransactionPayload,
	resource string,
	requirements h402.PaymentRequirements,
) (h402.VerifyResponse, error) {
	tx, err := signer.TransactionByHash(ctx, p.TransactionHash)
	if err != nil {
		return h402.VerifyResponse{}, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if tx == nil {
		return h402.Invalid(ErrTransactionNotFound, fmt.Sprintf("transaction %s not found", p.TransactionHash)), nil
	}

	sender, reason, msg := checkSignedTransfer(tx, chainID, amount, requirements)
	if reason != "" {
		return invalidWithPayer(reason, msg, sender), nil
	}
	if reason, msg := checkSignedMessage(p.SignedMessage, resource, sender); reason != "" {
		return invalidWithPayer(reason, msg, sender), nil
	}

	receipt, err := f.waitForReceipt(ctx, signer, p.TransactionHash)
	if err != nil {
		return h402.VerifyResponse{}, err
	}
	if receipt == nil {
		return invalidWithPayer(ErrConfirmationTimeout, fmt.Sprintf("transaction %s is not confirmed", p.TransactionHash), sender), nil
	}
	if receipt.Status != TxStatusSuccess {
		return invalidWithPayer(ErrTransactionFailed, fmt.Sprintf("transaction %s reverted", p.TransactionHash), sender), nil
	}

	return h402.VerifyResponse{
		IsValid: true,
		Type:    h402.VerificationTypeTransaction,
		TxHash:  p.TransactionHash,
		Payer:   sender,
	}, nil
}

// Settle executes the payment on chain and waits for its receipt
func (f *ExactFacilitator) Settle(ctx context.Context, payload h402.PaymentPayload, requirements h402.PaymentRequirements) (h402.SettleResponse, error) {
	network := requirements.NetworkID
	signer, ok := f.signers[network]
	if !ok {
		return h402.SettleFailure(h402.ReasonInvalidNetwork, fmt.Sprintf("no signer configured for chain %s", network), network), nil
	}

	var (
		txHash string
		payer  string
		err    error
	)
	switch p := payload.Payload.(type) {
	case nil:
		return h402.SettleFailure(h402.ReasonInvalidPayload, "payload body is missing", network), nil
	case h402.EvmAuthorizationPayload:
		payer = common.HexToAddress(p.Authorization.From).Hex()
		txHash, err = f.executeAuthorization(ctx, signer, p, requirements.TokenAddress)
	case h402.EvmSignedTransactionPayload:
		txHash, payer, err = f.broadcast(ctx, signer, p.SignedTransaction)
	case h402.EvmNativeTransferPayload:
		txHash, payer, err = f.broadcast(ctx, signer, p.SignedTransaction)
	case h402.EvmTokenTransferPayload:
		txHash, payer, err = f.broadcast(ctx, signer, p.SignedTransaction)
	case h402.EvmSignAndSendTransactionPayload:
		// already broadcast by the client; settlement only confirms it
		txHash = p.TransactionHash
	default:
		return h402.SettleFailure(ErrUnsupportedPayloadType, fmt.Sprintf("payload type %s is not supported on evm", payload.Payload.PayloadType()), network), nil
	}
	if err != nil {
		return h402.SettleResponse{}, err
	}

	receipt, err := f.waitForReceipt(ctx, signer, txHash)
	if err != nil {
		return h402.SettleResponse{}, fmt.Errorf("failed to get receipt for %s: %w", txHash, err)
	}
	if receipt == nil {
		failure := h402.SettleFailure(ErrConfirmationTimeout, fmt.Sprintf("transaction %s was not confirmed in time", txHash), network)
		failure.Payer = payer
		return failure, nil
	}
	if receipt.Status != TxStatusSuccess {
		failure := h402.SettleFailure(ErrTransactionFailed, fmt.Sprintf("transaction %s reverted", txHash), network)
		failure.Payer = payer
		return failure, nil
	}

	f.logger.Info("evm payment settled", "networkId", network, "txHash", txHash, "payer", payer)
	return h402.SettleResponse{
		Success:     true,
		TxHash:      txHash,
		Transaction: txHash,
		Network:     network,
		Payer:       payer,
	}, nil
}

func (f *ExactFacilitator) executeAuthorization(ctx context.Context, signer FacilitatorSigner, p h402.EvmAuthorizationPayload, token string) (string, error) {
	auth := p.Authorization
	signature, err := HexToBytes(p.Signature)
	if err != nil {
		return "", fmt.Errorf("invalid signature: %w", err)
	}
	v, r, s, err := SplitSignature(signature)
	if err != nil {
		return "", err
	}
	nonce, err := nonceBytes(auth.Nonce)
	if err != nil {
		return "", err
	}

	txHash, err := signer.WriteContract(
		ctx,
		token,
		TransferWithAuthorizationVRSABI,
		FunctionTransferWithAuthorization,
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		auth.Value.Big(),
		auth.ValidAfter.Big(),
		auth.ValidBefore.Big(),
		nonce,
		v,
		r,
		s,
	)
	if err != nil {
		return "", fmt.Errorf("failed to execute transferWithAuthorization: %w", err)
	}
	return txHash, nil
}

func (f *ExactFacilitator) broadcast(ctx context.Context, signer FacilitatorSigner, signedTransaction string) (string, string, error) {
	raw, err := HexToBytes(signedTransaction)
	if err != nil {
		return "", "", fmt.Errorf("invalid signed transaction: %w", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", "", fmt.Errorf("invalid signed transaction: %w", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", "", fmt.Errorf("failed to recover sender: %w", err)
	}
	txHash, err := signer.SendRawTransaction(ctx, raw)
	if err != nil {
		return "", "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return txHash, sender.Hex(), nil
}

// waitForReceipt polls until the receipt exists. A nil receipt means the
// transaction was still pending after the final fetch.
func (f *ExactFacilitator) waitForReceipt(ctx context.Context, signer FacilitatorSigner, txHash string) (*TransactionReceipt, error) {
	return h402.Poll(ctx, f.poll, func(ctx context.Context) (*TransactionReceipt, bool, error) {
		receipt, err := signer.TransactionReceipt(ctx, txHash)
		if err != nil {
			return nil, false, err
		}
		return receipt, receipt != nil, nil
	})
}

func decodeTransaction(signedTransaction string) (*types.Transaction, error) {
	raw, err := HexToBytes(signedTransaction)
	if err != nil {
		return nil, fmt.Errorf("signed transaction is not hex: %w", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

// checkSignedTransfer validates chain id, sender and transfer of tx. It
// returns the sender and, when invalid, a reason and message.
func checkSignedTransfer(tx *types.Transaction, chainID, amount *big.Int, requirements h402.PaymentRequirements) (string, string, string) {
	if tx.ChainId() == nil || tx.ChainId().Cmp(chainID) != 0 {
		return "", ErrChainIDMismatch, fmt.Sprintf("transaction chain id %v, expected %s", tx.ChainId(), chainID)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return "", ErrInvalidSignature, fmt.Sprintf("failed to recover sender: %v", err)
	}
	if reason, msg := checkTransfer(tx, requirements, amount); reason != "" {
		return sender.Hex(), reason, msg
	}
	return sender.Hex(), "", ""
}

// checkSignedMessage verifies an EIP-191 signature over resource by sender
func checkSignedMessage(signedMessage, resource, sender string) (string, string) {
	signature, err := HexToBytes(signedMessage)
	if err != nil {
		return ErrSignedMessage, "signed message is not hex"
	}
	signer, err := RecoverMessageSigner([]byte(resource), signature)
	if err != nil {
		return ErrSignedMessage, err.Error()
	}
	if !strings.EqualFold(signer.Hex(), sender) {
		return ErrSignedMessage, fmt.Sprintf("resource was signed by %s, transaction by %s", signer.Hex(), sender)
	}
	return "", ""
}

func nonceBytes(nonce string) ([32]byte, error) {
	var out [32]byte
	b, err := HexToBytes(nonce)
	if err != nil {
		return out, fmt.Errorf("invalid nonce: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("nonce must be 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func invalidWithPayer(reason, message, payer string) h402.VerifyResponse {
	resp := h402.Invalid(reason, message)
	resp.Payer = payer
	return resp
}
