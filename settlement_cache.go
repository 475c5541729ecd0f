package h402

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// SettlementStatus is the outcome of SettlementCache.CheckAndMark
type SettlementStatus int

const (
	// StatusNotFound means the caller owns the settlement and must call Complete or Fail
	StatusNotFound SettlementStatus = iota
	// StatusCached means an earlier settlement of the same payload succeeded
	StatusCached
	// StatusInFlight means another caller is settling the same payload right now
	StatusInFlight
)

type settledEntry struct {
	response  SettleResponse
	expiresAt time.Time
}

// SettlementCache keeps a payload from being broadcast twice when a resource
// server retries settle after a timeout. Successful results are kept for ttl;
// failures are forgotten so the payload can be retried.
type SettlementCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	settled  map[string]settledEntry
	inFlight map[string]chan struct{}
	now      func() time.Time
}

// NewSettlementCache creates a cache that remembers successes for ttl
func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		ttl:      ttl,
		settled:  make(map[string]settledEntry),
		inFlight: make(map[string]chan struct{}),
		now:      time.Now,
	}
}

// GenerateSettlementKey hashes the encoded payload together with the
// requirements it is settled against. The payload embeds the signature and
// nonce, so the key is unique per payment attempt; the requirements keep a
// cached success from answering for a different price, payee or resource.
//
// Args:
//
//	encoded: the X-PAYMENT header value as received
//	requirements: the requirements passed to Settle
//
// Returns:
//
//	The hex sha256 key, or an error when requirements cannot be serialized
func GenerateSettlementKey(encoded []byte, requirements PaymentRequirements) (string, error) {
	reqJSON, err := json.Marshal(ToJSONSafe(requirements))
	if err != nil {
		return "", fmt.Errorf("failed to serialize requirements: %w", err)
	}
	h := sha256.New()
	h.Write(encoded)
	h.Write([]byte{0})
	h.Write(reqJSON)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckAndMark atomically looks key up and claims it when it is unknown
func (c *SettlementCache) CheckAndMark(key string) (SettlementStatus, *SettleResponse, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if resp, ok := c.lookupLocked(key); ok {
		return StatusCached, resp, nil
	}
	if done, ok := c.inFlight[key]; ok {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return StatusNotFound, nil, done
}

// WaitForResult blocks until the in-flight settlement for key finishes. It
// returns nil when that settlement failed.
func (c *SettlementCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*SettleResponse, error) {
	select {
	case <-done:
		return c.Get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the cached response for key, or nil
func (c *SettlementCache) Get(key string) *SettleResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, _ := c.lookupLocked(key)
	return resp
}

// Complete stores a successful response and wakes waiters
func (c *SettlementCache) Complete(key string, resp *SettleResponse, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settled[key] = settledEntry{response: *resp, expiresAt: c.now().Add(c.ttl)}
	c.release(key, done)
	c.evictExpiredLocked()
}

// Fail drops the in-flight claim without caching and wakes waiters
func (c *SettlementCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.release(key, done)
}

func (c *SettlementCache) release(key string, done chan struct{}) {
	if c.inFlight[key] == done {
		delete(c.inFlight, key)
	}
	close(done)
}

// lookupLocked must be called with mu held
func (c *SettlementCache) lookupLocked(key string) (*SettleResponse, bool) {
	entry, ok := c.settled[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.settled, key)
		return nil, false
	}
	resp := entry.response
	return &resp, true
}

// evictExpiredLocked must be called with mu held
func (c *SettlementCache) evictExpiredLocked() {
	now := c.now()
	for key, entry := range c.settled {
		if !now.Before(entry.expiresAt) {
			delete(c.settled, key)
		}
	}
}
