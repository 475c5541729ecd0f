package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	h402 "github.com/bitgpt/h402/go"
)

// ExactClient builds exact EVM payments from whatever the wallet supports.
// Native payments try signedTransaction then signAndSendTransaction; ERC-20
// payments try an EIP-3009 authorization first.
type ExactClient struct {
	wallet Account
	logger *slog.Logger
	now    func() time.Time
}

// ClientOption configures an ExactClient
type ClientOption func(*ExactClient)

// WithClientLogger sets the logger used for strategy fallbacks
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *ExactClient) {
		c.logger = logger
	}
}

// WithClientClock overrides the clock used for authorization windows
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *ExactClient) {
		c.now = now
	}
}

// NewExactClient creates an EVM payment builder for wallet. The wallet's
// capabilities are discovered through the interfaces it implements.
func NewExactClient(wallet Account, opts ...ClientOption) *ExactClient {
	c := &ExactClient{
		wallet: wallet,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scheme returns the scheme identifier
func (c *ExactClient) Scheme() string {
	return SchemeExact
}

// Namespace returns the namespace identifier
func (c *ExactClient) Namespace() h402.Namespace {
	return h402.NamespaceEVM
}

// TokenDecimals implements h402.DecimalsResolver
func (c *ExactClient) TokenDecimals(ctx context.Context, requirements h402.PaymentRequirements) (int32, error) {
	reader, _ := c.wallet.(ContractReader)
	return TokenDecimals(ctx, reader, requirements, c.logger)
}

// CreatePaymentPayload builds the payload body for normalized requirements
func (c *ExactClient) CreatePaymentPayload(ctx context.Context, version int, requirements h402.PaymentRequirements) (h402.Payload, error) {
	chainID, err := ChainID(requirements.NetworkID)
	if err != nil {
		return nil, err
	}
	amount, err := requirements.AtomicAmount()
	if err != nil {
		return nil, err
	}
	txRequest, err := TransferRequest(requirements, chainID, amount)
	if err != nil {
		return nil, err
	}

	chain := h402.StrategyChain[h402.Payload]{Logger: c.logger}
	if IsNativeToken(requirements.TokenAddress) {
		chain.Strategies = []h402.Strategy[h402.Payload]{
			c.signedTransactionStrategy(txRequest, requirements.Resource),
			c.signAndSendStrategy(txRequest, requirements.Resource),
		}
		chain.MissingCapability = "client must implement either SignTransaction or SendTransaction and SignMessage"
	} else {
		chain.Strategies = []h402.Strategy[h402.Payload]{
			c.authorizationStrategy(requirements, chainID, amount),
			c.signedTransactionStrategy(txRequest, requirements.Resource),
			c.signAndSendStrategy(txRequest, requirements.Resource),
		}
		chain.MissingCapability = "client must implement either SignTypedData, SignTransaction or SendTransaction and SignMessage"
	}
	return chain.Run(ctx)
}

func (c *ExactClient) authorizationStrategy(requirements h402.PaymentRequirements, chainID, amount *big.Int) h402.Strategy[h402.Payload] {
	return h402.Strategy[h402.Payload]{
		Name: string(h402.PayloadTypeAuthorization),
		Supported: func(ctx context.Context) bool {
			signer, ok := c.wallet.(TypedDataSigner)
			if !ok {
				return false
			}
			reader, ok := c.wallet.(ContractReader)
			if !ok {
				return false
			}
			// tokens without EIP-3009 revert on authorizationState
			_, err := reader.ReadContract(ctx, requirements.TokenAddress, AuthorizationStateABI, FunctionAuthorizationState,
				common.HexToAddress(signer.Address()), [32]byte{})
			return err == nil
		},
		Attempt: func(ctx context.Context) (h402.Payload, error) {
			return c.signAuthorization(ctx, requirements, chainID, amount)
		},
	}
}

func (c *ExactClient) signAuthorization(ctx context.Context, requirements h402.PaymentRequirements, chainID, amount *big.Int) (h402.Payload, error) {
	signer := c.wallet.(TypedDataSigner)
	reader, _ := c.wallet.(ContractReader)

	name, version, err := tokenDomain(ctx, reader, requirements)
	if err != nil {
		return nil, err
	}
	nonce, err := CreateNonce()
	if err != nil {
		return nil, err
	}

	now := c.now().Unix()
	window := int64(requirements.EstimatedProcessingTime)
	if window < MinValidityWindow {
		window = MinValidityWindow
	}

	authorization := h402.EvmAuthorization{
		From:        common.HexToAddress(signer.Address()).Hex(),
		To:          common.HexToAddress(requirements.PayToAddress).Hex(),
		Value:       h402.NewBigInt(amount),
		ValidAfter:  h402.NewBigIntFromInt64(now - ValidAfterSkew),
		ValidBefore: h402.NewBigIntFromInt64(now + window),
		Nonce:       nonce,
		Version:     version,
	}

	message, err := AuthorizationMessage(authorization)
	if err != nil {
		return nil, err
	}
	domain := AuthorizationDomain(chainID, requirements.TokenAddress, name, version)
	signature, err := signer.SignTypedData(ctx, domain, GetAuthorizationTypes(), "TransferWithAuthorization", message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	return h402.EvmAuthorizationPayload{
		Signature:     hexutil.Encode(signature),
		Authorization: authorization,
	}, nil
}

func (c *ExactClient) signedTransactionStrategy(request TransactionRequest, resource string) h402.Strategy[h402.Payload] {
	return h402.Strategy[h402.Payload]{
		Name: string(h402.PayloadTypeSignedTransaction),
		Supported: func(context.Context) bool {
			_, ok := c.wallet.(TransactionSigner)
			return ok
		},
		Attempt: func(ctx context.Context) (h402.Payload, error) {
			signer := c.wallet.(TransactionSigner)
			raw, err := signer.SignTransaction(ctx, request)
			if err != nil {
				return nil, fmt.Errorf("failed to sign transaction: %w", err)
			}
			payload := h402.EvmSignedTransactionPayload{SignedTransaction: hexutil.Encode(raw)}

			if messageSigner, ok := c.wallet.(MessageSigner); ok {
				signed, err := messageSigner.SignMessage(ctx, []byte(resource))
				if err != nil {
					return nil, fmt.Errorf("failed to sign resource: %w", err)
				}
				payload.SignedMessage = hexutil.Encode(signed)
			}
			return payload, nil
		},
	}
}

func (c *ExactClient) signAndSendStrategy(request TransactionRequest, resource string) h402.Strategy[h402.Payload] {
	return h402.Strategy[h402.Payload]{
		Name: string(h402.PayloadTypeSignAndSendTransaction),
		Supported: func(context.Context) bool {
			_, canSend := c.wallet.(TransactionSender)
			_, canSign := c.wallet.(MessageSigner)
			return canSend && canSign
		},
		Attempt: func(ctx context.Context) (h402.Payload, error) {
			// a rejected signature must not leave a broadcast transfer behind
			signed, err := c.wallet.(MessageSigner).SignMessage(ctx, []byte(resource))
			if err != nil {
				return nil, fmt.Errorf("failed to sign resource: %w", err)
			}
			hash, err := c.wallet.(TransactionSender).SendTransaction(ctx, request)
			if err != nil {
				return nil, fmt.Errorf("failed to send transaction: %w", err)
			}
			return h402.EvmSignAndSendTransactionPayload{
				TransactionHash: hash,
				SignedMessage:   hexutil.Encode(signed),
			}, nil
		},
	}
}
