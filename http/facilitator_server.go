package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	h402 "github.com/bitgpt/h402/go"
)

// ServerOption configures the facilitator server
type ServerOption func(*facilitatorServer)

// WithServerLogger sets the request logger
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *facilitatorServer) {
		s.logger = logger
	}
}

// WithTimeouts bounds verify and settle handling
func WithTimeouts(verify, settle time.Duration) ServerOption {
	return func(s *facilitatorServer) {
		s.verifyTimeout = verify
		s.settleTimeout = settle
	}
}

type facilitatorServer struct {
	facilitator   *h402.Facilitator
	logger        *slog.Logger
	verifyTimeout time.Duration
	settleTimeout time.Duration
}

// facilitatorBody is the request body accepted by /verify and /settle
type facilitatorBody struct {
	Payload             string                   `json:"payload"`
	PaymentRequirements h402.PaymentRequirements `json:"paymentRequirements"`
}

// NewFacilitatorServer exposes facilitator over HTTP:
//
//	POST /verify     {payload, paymentRequirements} -> {data: VerifyResponse}
//	POST /settle     {payload, paymentRequirements} -> {data: SettleResponse}
//	GET  /supported  -> SupportedResponse
//	GET  /health
func NewFacilitatorServer(facilitator *h402.Facilitator, opts ...ServerOption) *gin.Engine {
	s := &facilitatorServer{
		facilitator:   facilitator,
		logger:        slog.Default(),
		verifyTimeout: 30 * time.Second,
		settleTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/supported", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.facilitator.GetSupported())
	})
	r.POST("/verify", s.handleVerify)
	r.POST("/settle", s.handleSettle)
	return r
}

func (s *facilitatorServer) handleVerify(c *gin.Context) {
	body, ok := bindBody(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.verifyTimeout)
	defer cancel()

	result := s.facilitator.Verify(ctx, body.Payload, body.PaymentRequirements)
	c.JSON(http.StatusOK, h402.FacilitatorResponse[h402.VerifyResponse]{Data: &result})
}

func (s *facilitatorServer) handleSettle(c *gin.Context) {
	body, ok := bindBody(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.settleTimeout)
	defer cancel()

	result := s.facilitator.Settle(ctx, body.Payload, body.PaymentRequirements)
	c.JSON(http.StatusOK, h402.FacilitatorResponse[h402.SettleResponse]{Data: &result})
}

func bindBody(c *gin.Context) (facilitatorBody, bool) {
	var body facilitatorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"data": nil, "error": "invalid request body: " + err.Error()})
		return facilitatorBody{}, false
	}
	if body.Payload == "" {
		c.JSON(http.StatusBadRequest, gin.H{"data": nil, "error": "payload is required"})
		return facilitatorBody{}, false
	}
	return body, true
}

// requestLogger tags every request with an id and logs its outcome
func (s *facilitatorServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()

		s.logger.Info("facilitator request",
			"requestId", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
