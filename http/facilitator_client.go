package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	h402 "github.com/bitgpt/h402/go"
)

// FacilitatorClient talks to a remote facilitator service over HTTP
type FacilitatorClient struct {
	url          string
	httpClient   *http.Client
	authProvider AuthProvider
	logger       *slog.Logger
	retryDelay   time.Duration
}

var _ h402.FacilitatorClient = (*FacilitatorClient)(nil)

// AuthProvider generates authentication headers for facilitator requests
type AuthProvider interface {
	GetAuthHeaders(ctx context.Context) (AuthHeaders, error)
}

// AuthHeaders contains authentication headers per endpoint
type AuthHeaders struct {
	Verify    map[string]string
	Settle    map[string]string
	Supported map[string]string
}

// FacilitatorConfig configures the facilitator client
type FacilitatorConfig struct {
	// URL is the base URL of the facilitator service
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// AuthProvider provides authentication headers (optional)
	AuthProvider AuthProvider

	// Timeout for requests (optional, defaults to 30s). Ignored when
	// HTTPClient is set.
	Timeout time.Duration

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// DefaultFacilitatorURL is where cmd/facilitator listens by default
const DefaultFacilitatorURL = "http://localhost:4020"

const (
	supportedRetries        = 3
	supportedRetryBaseDelay = time.Second
)

// NewFacilitatorClient creates a facilitator client
func NewFacilitatorClient(config FacilitatorConfig) *FacilitatorClient {
	url := strings.TrimRight(config.URL, "/")
	if url == "" {
		url = DefaultFacilitatorURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FacilitatorClient{
		url:          url,
		httpClient:   httpClient,
		authProvider: config.AuthProvider,
		logger:       logger,
		retryDelay:   supportedRetryBaseDelay,
	}
}

// facilitatorRequest is the body of /verify and /settle
type facilitatorRequest struct {
	Payload             string      `json:"payload"`
	PaymentRequirements interface{} `json:"paymentRequirements"`
}

// Verify asks the facilitator to verify an encoded payment
func (c *FacilitatorClient) Verify(ctx context.Context, payload string, requirements h402.PaymentRequirements) h402.FacilitatorResponse[h402.VerifyResponse] {
	return post[h402.VerifyResponse](ctx, c, "/verify", payload, requirements, func(h AuthHeaders) map[string]string { return h.Verify })
}

// Settle asks the facilitator to settle an encoded payment
func (c *FacilitatorClient) Settle(ctx context.Context, payload string, requirements h402.PaymentRequirements) h402.FacilitatorResponse[h402.SettleResponse] {
	return post[h402.SettleResponse](ctx, c, "/settle", payload, requirements, func(h AuthHeaders) map[string]string { return h.Settle })
}

func post[T any](
	ctx context.Context,
	c *FacilitatorClient,
	path string,
	payload string,
	requirements h402.PaymentRequirements,
	headers func(AuthHeaders) map[string]string,
) h402.FacilitatorResponse[T] {
	fail := func(format string, args ...interface{}) h402.FacilitatorResponse[T] {
		msg := fmt.Sprintf(format, args...)
		c.logger.Warn("facilitator request failed", "path", path, "error", msg)
		return h402.FacilitatorResponse[T]{Error: msg}
	}

	body, err := json.Marshal(facilitatorRequest{
		Payload:             payload,
		PaymentRequirements: h402.ToJSONSafe(requirements),
	})
	if err != nil {
		return fail("failed to marshal %s request: %v", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
	if err != nil {
		return fail("failed to create %s request: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.applyAuth(ctx, req, headers); err != nil {
		return fail("%v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail("%s request failed: %v", path, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail("failed to read response body: %v", err)
	}

	var decoded h402.FacilitatorResponse[T]
	if err := json.Unmarshal(responseBody, &decoded); err != nil {
		return fail("facilitator %s failed (%d): %s", path, resp.StatusCode, string(responseBody))
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error == "" {
			decoded.Error = fmt.Sprintf("facilitator %s failed (%d)", path, resp.StatusCode)
		}
		return fail("%s", decoded.Error)
	}
	if decoded.Data == nil && decoded.Error == "" {
		return fail("facilitator %s returned no data", path)
	}
	return decoded
}

// Supported lists the payment kinds the facilitator accepts. It retries with
// exponential backoff on 429.
func (c *FacilitatorClient) Supported(ctx context.Context) (h402.SupportedResponse, error) {
	var lastErr error
	for attempt := range supportedRetries {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/supported", nil)
		if err != nil {
			return h402.SupportedResponse{}, fmt.Errorf("failed to create supported request: %w", err)
		}
		if err := c.applyAuth(ctx, req, func(h AuthHeaders) map[string]string { return h.Supported }); err != nil {
			return h402.SupportedResponse{}, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return h402.SupportedResponse{}, fmt.Errorf("supported request failed: %w", err)
		}
		responseBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return h402.SupportedResponse{}, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			var supported h402.SupportedResponse
			if err := json.Unmarshal(responseBody, &supported); err != nil {
				return h402.SupportedResponse{}, fmt.Errorf("failed to decode supported response: %w", err)
			}
			return supported, nil
		}

		lastErr = fmt.Errorf("facilitator supported failed (%d): %s", resp.StatusCode, string(responseBody))
		if resp.StatusCode != http.StatusTooManyRequests || attempt == supportedRetries-1 {
			return h402.SupportedResponse{}, lastErr
		}

		delay := c.retryDelay * time.Duration(1<<uint(attempt))
		c.logger.Debug("facilitator rate limited, retrying", "attempt", attempt+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return h402.SupportedResponse{}, ctx.Err()
		}
	}
	return h402.SupportedResponse{}, lastErr
}

func (c *FacilitatorClient) applyAuth(ctx context.Context, req *http.Request, pick func(AuthHeaders) map[string]string) error {
	if c.authProvider == nil {
		return nil
	}
	headers, err := c.authProvider.GetAuthHeaders(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth headers: %w", err)
	}
	for k, v := range pick(headers) {
		req.Header.Set(k, v)
	}
	return nil
}
