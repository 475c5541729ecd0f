package h402

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Client manages payment builders and creates encoded payment payloads.
// It is used by applications that pay for resources (have wallets/signers).
type Client struct {
	mu sync.RWMutex

	// namespace -> scheme -> builder
	schemes map[Namespace]map[string]SchemeNetworkClient

	selector PaymentRequirementsSelector
	logger   *slog.Logger
}

// PaymentRequirementsSelector chooses which requirement to pay
type PaymentRequirementsSelector func(requirements []PaymentRequirements, filter RequirementFilter) (PaymentRequirements, error)

// ClientOption configures the client
type ClientOption func(*Client)

// WithPaymentSelector replaces the stablecoin-first selector
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *Client) {
		c.selector = selector
	}
}

// WithScheme registers a payment builder at creation time
func WithScheme(client SchemeNetworkClient) ClientOption {
	return func(c *Client) {
		c.Register(client)
	}
}

// WithClientLogger sets the logger
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new h402 client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		schemes:  make(map[Namespace]map[string]SchemeNetworkClient),
		selector: SelectPaymentRequirements,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a builder for its namespace and scheme
func (c *Client) Register(client SchemeNetworkClient) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns := client.Namespace()
	if c.schemes[ns] == nil {
		c.schemes[ns] = make(map[string]SchemeNetworkClient)
	}
	c.schemes[ns][client.Scheme()] = client
	return c
}

func (c *Client) lookup(ns Namespace, scheme string) (SchemeNetworkClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	schemes, ok := c.schemes[ns]
	if !ok {
		return nil, fmt.Errorf("%w: no builder registered for %q", ErrUnsupportedNamespace, ns)
	}
	builder, ok := schemes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q in namespace %s", ErrUnsupportedScheme, scheme, ns)
	}
	return builder, nil
}

// Supports reports whether a builder is registered for the requirement
func (c *Client) Supports(requirements PaymentRequirements) bool {
	_, err := c.lookup(requirements.Namespace, requirements.Scheme)
	return err == nil
}

// NormalizeAmount converts the requirement's amount to atomic units using the
// registered builder as decimals resolver
func (c *Client) NormalizeAmount(ctx context.Context, requirements PaymentRequirements) (PaymentRequirements, error) {
	if requirements.AmountRequiredFormat.IsAtomic() {
		return requirements, nil
	}
	builder, err := c.lookup(requirements.Namespace, requirements.Scheme)
	if err != nil {
		return PaymentRequirements{}, err
	}
	resolver, _ := builder.(DecimalsResolver)
	return NormalizeAmount(ctx, requirements, resolver)
}

// CreatePaymentPayload normalizes the amount and builds a stamped payload
func (c *Client) CreatePaymentPayload(ctx context.Context, version int, requirements PaymentRequirements) (PaymentPayload, error) {
	if version <= 0 {
		version = Version
	}
	if err := ValidatePaymentRequirements(requirements); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment requirements: %w", err)
	}
	builder, err := c.lookup(requirements.Namespace, requirements.Scheme)
	if err != nil {
		return PaymentPayload{}, err
	}

	normalized, err := c.NormalizeAmount(ctx, requirements)
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("failed to normalize amount: %w", err)
	}

	body, err := builder.CreatePaymentPayload(ctx, version, normalized)
	if err != nil {
		return PaymentPayload{}, err
	}
	if body.Namespace() != normalized.Namespace {
		return PaymentPayload{}, fmt.Errorf("builder for %s returned a %s payload", normalized.Namespace, body.Namespace())
	}

	c.logger.Debug("created payment payload",
		"namespace", normalized.Namespace,
		"networkId", normalized.NetworkID,
		"type", body.PayloadType())
	return NewPaymentPayload(version, normalized, body), nil
}

// CreatePayment builds and encodes a payment for requirements. The result is
// the value of the X-PAYMENT header.
func (c *Client) CreatePayment(ctx context.Context, version int, requirements PaymentRequirements) (string, error) {
	payload, err := c.CreatePaymentPayload(ctx, version, requirements)
	if err != nil {
		return "", err
	}
	return EncodePaymentPayload(payload)
}

// CreatePaymentForRequired selects one of the accepted requirements and pays
// it. The selected requirement is re-checked against the registered builders
// because selection falls back to the first entry when nothing matches.
func (c *Client) CreatePaymentForRequired(ctx context.Context, required PaymentRequired, filter RequirementFilter) (string, PaymentRequirements, error) {
	selected, err := c.selector(required.Accepts, filter)
	if err != nil {
		return "", PaymentRequirements{}, err
	}
	if !c.Supports(selected) {
		return "", selected, fmt.Errorf("%w: selected requirement %s/%s/%s has no registered builder",
			ErrUnsupportedNamespace, selected.Namespace, selected.NetworkID, selected.Scheme)
	}

	version := required.H402Version
	encoded, err := c.CreatePayment(ctx, version, selected)
	if err != nil {
		return "", selected, err
	}
	return encoded, selected, nil
}
