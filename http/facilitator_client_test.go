package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	h402 "github.com/bitgpt/h402/go"
)

type staticAuth struct{}

func (staticAuth) GetAuthHeaders(context.Context) (AuthHeaders, error) {
	return AuthHeaders{
		Verify:    map[string]string{"Authorization": "Bearer verify"},
		Settle:    map[string]string{"Authorization": "Bearer settle"},
		Supported: map[string]string{"Authorization": "Bearer supported"},
	}, nil
}

func TestNewFacilitatorClientDefaults(t *testing.T) {
	client := NewFacilitatorClient(FacilitatorConfig{})
	assert.Equal(t, DefaultFacilitatorURL, client.url)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)

	client = NewFacilitatorClient(FacilitatorConfig{URL: "https://facilitator.example.com/", Timeout: 5 * time.Second})
	assert.Equal(t, "https://facilitator.example.com", client.url)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
}

func TestFacilitatorClientAgainstServer(t *testing.T) {
	ts := httptest.NewServer(NewFacilitatorServer(newTestFacilitator(newStubMechanism()), WithServerLogger(quietLogger())))
	defer ts.Close()

	client := NewFacilitatorClient(FacilitatorConfig{URL: ts.URL, Logger: quietLogger()})
	requirements := testRequirements()
	encoded := encodedPayment(requirements)
	ctx := context.Background()

	verified := client.Verify(ctx, encoded, requirements)
	require.Empty(t, verified.Error)
	require.NotNil(t, verified.Data)
	assert.True(t, verified.Data.IsValid)
	assert.Equal(t, testPayTo, verified.Data.Payer)

	settled := client.Settle(ctx, encoded, requirements)
	require.Empty(t, settled.Error)
	require.NotNil(t, settled.Data)
	assert.True(t, settled.Data.Success)
	assert.Equal(t, testTxHash, settled.Data.TxHash)

	supported, err := client.Supported(ctx)
	require.NoError(t, err)
	assert.Len(t, supported.Kinds, 1)
}

func TestFacilitatorClientRequestBody(t *testing.T) {
	var got map[string]interface{}
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"isValid":true}}`))
	}))
	defer ts.Close()

	client := NewFacilitatorClient(FacilitatorConfig{URL: ts.URL, AuthProvider: staticAuth{}, Logger: quietLogger()})
	requirements := testRequirements()
	decimals := 6
	requirements.TokenDecimals = &decimals

	resp := client.Verify(context.Background(), "cGF5bG9hZA==", requirements)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "Bearer verify", auth)
	assert.Equal(t, "cGF5bG9hZA==", got["payload"])

	sent, ok := got["paymentRequirements"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "10000", sent["amountRequired"])
	assert.Equal(t, float64(6), sent["tokenDecimals"])
	assert.NotContains(t, sent, "outputSchema")
	assert.NotContains(t, sent, "extra")
}

func TestFacilitatorClientNeverReturnsErrors(t *testing.T) {
	ctx := context.Background()
	requirements := testRequirements()

	t.Run("unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()

		client := NewFacilitatorClient(FacilitatorConfig{URL: url, Timeout: time.Second, Logger: quietLogger()})
		resp := client.Verify(ctx, "cGF5bG9hZA==", requirements)
		assert.Nil(t, resp.Data)
		assert.Contains(t, resp.Error, "request failed")
	})

	t.Run("server error body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"data":null,"error":"rpc unavailable"}`))
		}))
		defer ts.Close()

		client := NewFacilitatorClient(FacilitatorConfig{URL: ts.URL, Logger: quietLogger()})
		resp := client.Settle(ctx, "cGF5bG9hZA==", requirements)
		assert.Nil(t, resp.Data)
		assert.Equal(t, "rpc unavailable", resp.Error)
	})

	t.Run("not json", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}))
		defer ts.Close()

		client := NewFacilitatorClient(FacilitatorConfig{URL: ts.URL, Logger: quietLogger()})
		resp := client.Verify(ctx, "cGF5bG9hZA==", requirements)
		assert.Nil(t, resp.Data)
		assert.Contains(t, resp.Error, "502")
		assert.Contains(t, resp.Error, "upstream down")
	})

	t.Run("empty envelope", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer ts.Close()

		client := NewFacilitatorClient(FacilitatorConfig{URL: ts.URL, Logger: quietLogger()})
		resp := client.Verify(ctx, "cGF5bG9hZA==", requirements)
		assert.Nil(t, resp.Data)
		assert.Contains(t, resp.Error, "no data")
	})
}

func TestFacilitatorClientSupportedRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer supported", r.Header.Get("Authorization"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(h402.SupportedResponse{Kinds: []h402.SupportedKind{{
			H402Version: h402.Version,
			Scheme:      h402.SchemeExact,
			Namespace:   h402.NamespaceSolana,
			NetworkID:   "devnet",
		}}})
	}))
	defer ts.Close()

	client := NewFacilitatorClient(FacilitatorConfig{URL: ts.URL, AuthProvider: staticAuth{}, Logger: quietLogger()})
	client.retryDelay = time.Millisecond

	supported, err := client.Supported(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, supported.Kinds, 1)
	assert.Equal(t, "devnet", supported.Kinds[0].NetworkID)

	calls.Store(-10)
	_, err = client.Supported(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestFacilitatorClientSupportedNoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewFacilitatorClient(FacilitatorConfig{URL: ts.URL, Logger: quietLogger()})
	_, err := client.Supported(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
