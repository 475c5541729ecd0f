package svm

import (
	"context"
	"fmt"
	"log/slog"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"

	h402 "github.com/bitgpt/h402/go"
)

// ExactClient builds exact Solana payments. It prefers handing a signed
// transaction to the facilitator and falls back to letting the wallet
// broadcast.
type ExactClient struct {
	wallet  Account
	cluster *ClusterConfig
	logger  *slog.Logger
	nonce   func() string
}

// ClientOption configures an ExactClient
type ClientOption func(*ExactClient)

// WithClientLogger sets the logger used for strategy fallbacks
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *ExactClient) {
		c.logger = logger
	}
}

// WithMemoNonce overrides the generator for memo nonces
func WithMemoNonce(nonce func() string) ClientOption {
	return func(c *ExactClient) {
		c.nonce = nonce
	}
}

// NewExactClient creates a Solana payment builder for wallet
func NewExactClient(wallet Account, cluster *ClusterConfig, opts ...ClientOption) *ExactClient {
	c := &ExactClient{
		wallet:  wallet,
		cluster: cluster,
		logger:  slog.Default(),
		nonce:   func() string { return uuid.NewString() },
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
	return h402.NamespaceSolana
}

// TokenDecimals implements h402.DecimalsResolver
func (c *ExactClient) TokenDecimals(ctx context.Context, requirements h402.PaymentRequirements) (int32, error) {
	client, err := c.cluster.Client(requirements.NetworkID)
	if err != nil {
		return 0, err
	}
	return TokenDecimals(ctx, client, requirements)
}

// Memo returns the memo attached to payments for requirements: the resource,
// with a random suffix when extra.memoNonce is set
func (c *ExactClient) Memo(requirements h402.PaymentRequirements) string {
	if requirements.ExtraBool("memoNonce") {
		return requirements.Resource + ":" + c.nonce()
	}
	return requirements.Resource
}

// CreatePaymentPayload builds the payload body for normalized requirements
func (c *ExactClient) CreatePaymentPayload(ctx context.Context, version int, requirements h402.PaymentRequirements) (h402.Payload, error) {
	client, err := c.cluster.Client(requirements.NetworkID)
	if err != nil {
		return nil, err
	}
	amount, err := requirements.AtomicAmount()
	if err != nil {
		return nil, err
	}
	if !amount.IsUint64() {
		return nil, fmt.Errorf("%w: %s does not fit in u64", h402.ErrInvalidAmount, amount)
	}
	memo := c.Memo(requirements)

	build := func(ctx context.Context) (*solana.Transaction, error) {
		return c.buildTransaction(ctx, client, requirements, amount.Uint64(), memo)
	}

	chain := h402.StrategyChain[h402.Payload]{
		Logger: c.logger,
		Strategies: []h402.Strategy[h402.Payload]{
			c.signTransactionStrategy(build, memo),
			c.signAndSendStrategy(build, requirements.Resource, memo),
		},
		MissingCapability: "client must implement either SignTransaction or SignAndSendTransaction",
	}
	return chain.Run(ctx)
}

func (c *ExactClient) buildTransaction(ctx context.Context, client RPC, requirements h402.PaymentRequirements, amount uint64, memo string) (*solana.Transaction, error) {
	payer := c.wallet.PublicKey()
	payTo, err := solana.PublicKeyFromBase58(requirements.PayToAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid payTo address: %w", err)
	}

	instructions, err := computeBudgetInstructions()
	if err != nil {
		return nil, err
	}

	if IsNativeToken(requirements.TokenAddress) {
		transfer, err := nativeTransferInstruction(amount, payer, payTo)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, transfer)
	} else {
		mint, err := solana.PublicKeyFromBase58(requirements.TokenAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid mint address: %w", err)
		}
		info, err := LoadMint(ctx, client, mint)
		if err != nil {
			return nil, err
		}
		source, err := AssociatedTokenAddress(payer, mint, info.Program)
		if err != nil {
			return nil, err
		}
		destination, err := AssociatedTokenAddress(payTo, mint, info.Program)
		if err != nil {
			return nil, err
		}
		createATA, err := createAssociatedTokenAccountIdempotent(payer, payTo, mint, info.Program)
		if err != nil {
			return nil, err
		}
		transfer, err := transferCheckedInstruction(amount, info.Decimals, source, mint, destination, payer, info.Program)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, createATA, transfer)
	}

	if memo != "" {
		instructions = append(instructions, memoInstruction(memo, payer))
	}

	latest, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if latest == nil || latest.Value == nil {
		return nil, fmt.Errorf("failed to get latest blockhash: empty response")
	}

	builder := solana.NewTransactionBuilder().
		SetRecentBlockHash(latest.Value.Blockhash).
		SetFeePayer(payer)
	for _, ix := range instructions {
		builder = builder.AddInstruction(ix)
	}
	tx, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

func (c *ExactClient) signTransactionStrategy(build func(context.Context) (*solana.Transaction, error), memo string) h402.Strategy[h402.Payload] {
	return h402.Strategy[h402.Payload]{
		Name: string(h402.PayloadTypeSignTransaction),
		Supported: func(context.Context) bool {
			_, ok := c.wallet.(TransactionSigner)
			return ok
		},
		Attempt: func(ctx context.Context) (h402.Payload, error) {
			tx, err := build(ctx)
			if err != nil {
				return nil, err
			}
			if err := c.wallet.(TransactionSigner).SignTransaction(ctx, tx); err != nil {
				return nil, fmt.Errorf("failed to sign transaction: %w", err)
			}
			encoded, err := EncodeTransaction(tx)
			if err != nil {
				return nil, err
			}
			return h402.SolanaSignTransactionPayload{Transaction: encoded, Memo: memo}, nil
		},
	}
}

func (c *ExactClient) signAndSendStrategy(build func(context.Context) (*solana.Transaction, error), resource, memo string) h402.Strategy[h402.Payload] {
	return h402.Strategy[h402.Payload]{
		Name: string(h402.PayloadTypeSignAndSendTransaction),
		Supported: func(context.Context) bool {
			_, ok := c.wallet.(TransactionSender)
			return ok
		},
		Attempt: func(ctx context.Context) (h402.Payload, error) {
			payload := h402.SolanaSignAndSendTransactionPayload{Memo: memo}
			if signer, ok := c.wallet.(MessageSigner); ok {
				signed, err := signer.SignMessage(ctx, []byte(resource))
				if err != nil {
					return nil, fmt.Errorf("failed to sign resource: %w", err)
				}
				payload.SignedMessage = signed.String()
			}

			tx, err := build(ctx)
			if err != nil {
				return nil, err
			}
			signature, err := c.wallet.(TransactionSender).SignAndSendTransaction(ctx, tx)
			if err != nil {
				return nil, fmt.Errorf("failed to send transaction: %w", err)
			}
			payload.Signature = signature.String()
			return payload, nil
		},
	}
}
