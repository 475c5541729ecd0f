package arkade

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	h402 "github.com/bitgpt/h402/go"
)

// ExactClient builds exact Arkade payments
type ExactClient struct {
	wallet Identity
	logger *slog.Logger
}

// ClientOption configures an ExactClient
type ClientOption func(*ExactClient)

// WithClientLogger sets the logger used for strategy fallbacks
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *ExactClient) {
		c.logger = logger
	}
}

// NewExactClient creates an Arkade payment builder for wallet
func NewExactClient(wallet Identity, opts ...ClientOption) *ExactClient {
	c := &ExactClient{
		wallet: wallet,
		logger: slog.Default(),
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
	return h402.NamespaceArkade
}

// TokenDecimals implements h402.DecimalsResolver. Only BTC is payable.
func (c *ExactClient) TokenDecimals(_ context.Context, requirements h402.PaymentRequirements) (int32, error) {
	return TokenDecimals(requirements)
}

// TokenDecimals returns the decimals of the asset named by requirements
func TokenDecimals(requirements h402.PaymentRequirements) (int32, error) {
	if !IsNativeToken(requirements.TokenAddress) {
		return 0, fmt.Errorf("%w: arkade only settles BTC, got token %q", h402.ErrInvalidAmount, requirements.TokenAddress)
	}
	return NativeDecimals, nil
}

// ResourceHash is the message signed to bind a submitted transaction to the
// resource it pays for
func ResourceHash(resource string) [32]byte {
	return chainhash.HashH([]byte(resource))
}

// CreatePaymentPayload builds the payload body for normalized requirements
func (c *ExactClient) CreatePaymentPayload(ctx context.Context, version int, requirements h402.PaymentRequirements) (h402.Payload, error) {
	if !IsNativeToken(requirements.TokenAddress) {
		return nil, fmt.Errorf("arkade only settles BTC, got token %q", requirements.TokenAddress)
	}
	payTo, err := DecodeAddress(requirements.PayToAddress)
	if err != nil {
		return nil, err
	}
	if payTo.HRP != addressPrefix(requirements.NetworkID) {
		return nil, fmt.Errorf("ark address %s is not valid on %s", requirements.PayToAddress, requirements.NetworkID)
	}
	amount, err := requirements.AtomicAmount()
	if err != nil {
		return nil, err
	}
	if !amount.IsUint64() {
		return nil, fmt.Errorf("%w: %s does not fit in u64", h402.ErrInvalidAmount, amount)
	}

	request := PaymentRequest{
		Address: requirements.PayToAddress,
		Amount:  amount.Uint64(),
		Network: requirements.NetworkID,
	}
	chain := h402.StrategyChain[h402.Payload]{
		Logger: c.logger,
		Strategies: []h402.Strategy[h402.Payload]{
			c.signTransactionStrategy(request),
			c.sendTransactionStrategy(request, requirements.Resource),
		},
		MissingCapability: "client must implement either SignTransaction or SendTransaction",
	}
	return chain.Run(ctx)
}

func (c *ExactClient) signTransactionStrategy(request PaymentRequest) h402.Strategy[h402.Payload] {
	return h402.Strategy[h402.Payload]{
		Name: string(h402.PayloadTypeSignTransaction),
		Supported: func(context.Context) bool {
			_, ok := c.wallet.(TransactionSigner)
			return ok
		},
		Attempt: func(ctx context.Context) (h402.Payload, error) {
			signed, err := c.wallet.(TransactionSigner).SignTransaction(ctx, request)
			if err != nil {
				return nil, fmt.Errorf("failed to sign transaction: %w", err)
			}
			if signed.PSBT == "" {
				return nil, fmt.Errorf("wallet returned an empty psbt")
			}
			return h402.ArkadeSignTransactionPayload{PSBT: signed.PSBT, Checkpoints: signed.Checkpoints}, nil
		},
	}
}

func (c *ExactClient) sendTransactionStrategy(request PaymentRequest, resource string) h402.Strategy[h402.Payload] {
	return h402.Strategy[h402.Payload]{
		Name: string(h402.PayloadTypeSignAndSendTransaction),
		Supported: func(context.Context) bool {
			_, ok := c.wallet.(TransactionSender)
			return ok
		},
		Attempt: func(ctx context.Context) (h402.Payload, error) {
			signature, err := c.wallet.SignSchnorr(ctx, ResourceHash(resource))
			if err != nil {
				return nil, fmt.Errorf("failed to sign resource: %w", err)
			}
			txid, err := c.wallet.(TransactionSender).SendTransaction(ctx, request)
			if err != nil {
				return nil, fmt.Errorf("failed to send transaction: %w", err)
			}
			return h402.ArkadeSignAndSendTransactionPayload{
				TxID:          txid,
				SignedMessage: hex.EncodeToString(signature.Serialize()),
				PublicKey:     hex.EncodeToString(schnorr.SerializePubKey(c.wallet.XOnlyPublicKey())),
			}, nil
		},
	}
}
