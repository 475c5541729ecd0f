package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bitgpt/h402/go/mechanisms/arkade"
)

const (
	defaultPort          = "4020"
	defaultSettlementTTL = 10 * time.Minute

	evmRPCPrefix    = "EVM_RPC_URL_"
	solanaRPCPrefix = "SOLANA_RPC_URL_"
)

type config struct {
	Port     string
	LogLevel slog.Level

	EVMPrivateKey string
	// chain id -> RPC URL
	EVMRPCURLs map[string]string
	// cluster -> RPC URL, merged over the public endpoints
	SolanaRPCURLs map[string]string

	ArkServerURL string
	ArkNetworks  []string

	SettlementTTL time.Duration
}

// loadConfig reads the facilitator settings from KEY=value pairs as returned
// by os.Environ
func loadConfig(environ []string) (config, error) {
	cfg := config{
		Port:          defaultPort,
		LogLevel:      slog.LevelInfo,
		EVMRPCURLs:    make(map[string]string),
		SolanaRPCURLs: make(map[string]string),
		ArkNetworks:   []string{arkade.NetworkBitcoin},
		SettlementTTL: defaultSettlementTTL,
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		switch {
		case key == "PORT":
			if _, err := strconv.ParseUint(value, 10, 16); err != nil {
				return config{}, fmt.Errorf("invalid PORT %q", value)
			}
			cfg.Port = value
		case key == "LOG_LEVEL":
			if err := cfg.LogLevel.UnmarshalText([]byte(value)); err != nil {
				return config{}, fmt.Errorf("invalid LOG_LEVEL %q: %w", value, err)
			}
		case key == "EVM_PRIVATE_KEY":
			cfg.EVMPrivateKey = value
		case strings.HasPrefix(key, evmRPCPrefix):
			chainID := strings.TrimPrefix(key, evmRPCPrefix)
			if _, err := strconv.ParseUint(chainID, 10, 64); err != nil {
				return config{}, fmt.Errorf("%s: chain id must be decimal", key)
			}
			cfg.EVMRPCURLs[chainID] = value
		case strings.HasPrefix(key, solanaRPCPrefix):
			cfg.SolanaRPCURLs[strings.ToLower(strings.TrimPrefix(key, solanaRPCPrefix))] = value
		case key == "ARK_SERVER_URL":
			cfg.ArkServerURL = value
		case key == "ARK_NETWORKS":
			cfg.ArkNetworks = splitList(value)
		case key == "SETTLEMENT_CACHE_TTL":
			ttl, err := time.ParseDuration(value)
			if err != nil {
				return config{}, fmt.Errorf("invalid SETTLEMENT_CACHE_TTL %q: %w", value, err)
			}
			cfg.SettlementTTL = ttl
		}
	}

	if len(cfg.EVMRPCURLs) > 0 && cfg.EVMPrivateKey == "" {
		return config{}, fmt.Errorf("EVM_PRIVATE_KEY is required when %s* is set", evmRPCPrefix)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
