package svm

import (
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go/rpc"

	h402 "github.com/bitgpt/h402/go"
)

// DefaultRPCURLs are the public endpoints of each cluster
var DefaultRPCURLs = map[string]string{
	NetworkMainnet: rpc.MainNetBeta_RPC,
	NetworkDevnet:  rpc.DevNet_RPC,
	NetworkTestnet: rpc.TestNet_RPC,
}

// ClusterConfig maps network ids to RPC endpoints. It is built once and never
// modified, so it can be shared by any number of goroutines.
type ClusterConfig struct {
	urls    map[string]string
	clients map[string]RPC
}

// ClusterOption configures a ClusterConfig at construction
type ClusterOption func(*ClusterConfig)

// WithRPCClient serves network through client instead of an rpc.Client built
// from its URL
func WithRPCClient(network string, client RPC) ClusterOption {
	return func(c *ClusterConfig) {
		c.clients[network] = client
	}
}

// NewClusterConfig merges overrides (network id to RPC URL) over the default
// endpoints. Overrides may also add networks, such as a local validator.
func NewClusterConfig(overrides map[string]string, opts ...ClusterOption) *ClusterConfig {
	c := &ClusterConfig{
		urls:    make(map[string]string, len(DefaultRPCURLs)+len(overrides)),
		clients: make(map[string]RPC),
	}
	for network, url := range DefaultRPCURLs {
		c.urls[network] = url
	}
	for network, url := range overrides {
		if url != "" {
			c.urls[network] = url
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	for network, url := range c.urls {
		if _, ok := c.clients[network]; !ok {
			c.clients[network] = rpc.New(url)
		}
	}
	return c
}

// RPCURL returns the endpoint configured for network
func (c *ClusterConfig) RPCURL(network string) (string, error) {
	url, ok := c.urls[network]
	if !ok {
		return "", fmt.Errorf("%w: solana cluster %q", h402.ErrUnsupportedNetwork, network)
	}
	return url, nil
}

// Client returns the RPC client for network
func (c *ClusterConfig) Client(network string) (RPC, error) {
	client, ok := c.clients[network]
	if !ok {
		return nil, fmt.Errorf("%w: solana cluster %q", h402.ErrUnsupportedNetwork, network)
	}
	return client, nil
}

// Networks lists the configured network ids
func (c *ClusterConfig) Networks() []string {
	networks := make([]string, 0, len(c.clients))
	for network := range c.clients {
		networks = append(networks, network)
	}
	sort.Strings(networks)
	return networks
}
