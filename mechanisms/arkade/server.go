package arkade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// RESTServer talks to an Ark operator (arkd) over its REST gateway
type RESTServer struct {
	url        string
	httpClient *http.Client
}

// NewRESTServer creates a client for the arkd instance at baseURL. A nil
// httpClient gets a 30s timeout.
func NewRESTServer(baseURL string, httpClient *http.Client) *RESTServer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTServer{
		url:        strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

var _ Server = (*RESTServer)(nil)

type submitTxRequest struct {
	SignedArkTx   string   `json:"signedArkTx"`
	CheckpointTxs []string `json:"checkpointTxs"`
}

type submitTxResponse struct {
	ArkTxid string `json:"arkTxid"`
}

type virtualTxsResponse struct {
	Txs []string `json:"txs"`
}

// SubmitTx submits a signed Ark transaction with its checkpoints
func (s *RESTServer) SubmitTx(ctx context.Context, signedTx string, checkpoints []string) (string, error) {
	if checkpoints == nil {
		checkpoints = []string{}
	}
	body, err := json.Marshal(submitTxRequest{SignedArkTx: signedTx, CheckpointTxs: checkpoints})
	if err != nil {
		return "", fmt.Errorf("failed to marshal submit request: %w", err)
	}

	var resp submitTxResponse
	status, raw, err := s.do(ctx, http.MethodPost, "/v1/tx/submit", body, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("ark server rejected transaction (%d): %s", status, raw)
	}
	if resp.ArkTxid == "" {
		return "", fmt.Errorf("ark server returned no txid")
	}
	return resp.ArkTxid, nil
}

// VirtualTx fetches a virtual transaction from the indexer
func (s *RESTServer) VirtualTx(ctx context.Context, txid string) (*psbt.Packet, error) {
	var resp virtualTxsResponse
	status, raw, err := s.do(ctx, http.MethodGet, "/v1/indexer/virtualTx/"+url.PathEscape(txid), nil, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || (status == http.StatusOK && len(resp.Txs) == 0) {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("ark indexer failed (%d): %s", status, raw)
	}
	return DecodePSBT(resp.Txs[0])
}

// do sends the request and decodes a 200 body into out. Other statuses are
// returned with the raw body.
func (s *RESTServer) do(ctx context.Context, method, path string, body []byte, out interface{}) (int, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("ark server request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, string(responseBody), nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return 0, "", fmt.Errorf("failed to decode ark server response: %w", err)
	}
	return resp.StatusCode, "", nil
}
