// Package http carries h402 over HTTP: a client for remote facilitators, a
// payment-aware http.Client wrapper and a gin server exposing a local
// facilitator.
package http

const (
	// PaymentHeader carries the encoded payment payload on the retried request
	PaymentHeader = "X-PAYMENT"
	// PaymentResponseHeader carries the encoded settlement summary
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
	// ExposeHeadersHeader asks CORS-aware servers to expose PaymentResponseHeader
	ExposeHeadersHeader = "Access-Control-Expose-Headers"
	// RequestIDHeader correlates facilitator requests and logs
	RequestIDHeader = "X-Request-ID"
)
