package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	h402 "github.com/bitgpt/h402/go"
)

// ErrNoPaymentResponse is returned when a response carries no settlement header
var ErrNoPaymentResponse = errors.New("payment response header not found")

// PaymentRoundTripper answers 402 responses by paying one of the accepted
// requirements and retrying the request once with X-PAYMENT
type PaymentRoundTripper struct {
	Transport http.RoundTripper
	payer     *h402.Client
	filter    h402.RequirementFilter
	logger    *slog.Logger
}

// WrapHTTPClientWithPayment returns a copy of client whose transport pays for
// 402 responses with payer. filter narrows which requirement gets paid.
func WrapHTTPClientWithPayment(client *http.Client, payer *h402.Client, filter h402.RequirementFilter) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	wrapped := *client

	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	wrapped.Transport = &PaymentRoundTripper{
		Transport: transport,
		payer:     payer,
		filter:    filter,
		logger:    slog.Default(),
	}
	return &wrapped
}

// RoundTrip implements http.RoundTripper
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// a request that already carries a payment is never paid again
	if req.Header.Get(PaymentHeader) != "" {
		return t.Transport.RoundTrip(req)
	}

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read 402 response body: %w", err)
	}
	required, err := h402.DecodePaymentRequired(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment requirements: %w", err)
	}

	ctx := req.Context()
	encoded, selected, err := t.payer.CreatePaymentForRequired(ctx, required, t.filter)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	t.logger.Debug("paying for resource",
		"url", req.URL.String(),
		"namespace", selected.Namespace,
		"networkId", selected.NetworkID,
		"amount", selected.AmountRequired)

	paid := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("cannot retry request with a one-shot body")
		}
		paid.Body, err = req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
	}
	paid.Header.Set(PaymentHeader, encoded)
	paid.Header.Set(ExposeHeadersHeader, PaymentResponseHeader)

	return t.Transport.RoundTrip(paid)
}

// DecodeSettleResponse reads the settlement summary from resp
func DecodeSettleResponse(resp *http.Response) (h402.PaymentResponseHeader, error) {
	header := resp.Header.Get(PaymentResponseHeader)
	if header == "" {
		return h402.PaymentResponseHeader{}, ErrNoPaymentResponse
	}
	return h402.DecodeSettleResponseHeader(header)
}
