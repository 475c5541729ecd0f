// Command facilitator verifies and settles h402 payments over HTTP.
//
// Configuration comes from the environment, optionally loaded from .env:
//
//	PORT                     listen port (default 4020)
//	LOG_LEVEL                debug, info, warn or error
//	EVM_PRIVATE_KEY          settlement key for every EVM chain
//	EVM_RPC_URL_<chainId>    enables an EVM chain, e.g. EVM_RPC_URL_8453
//	SOLANA_RPC_URL_<cluster> overrides a public Solana endpoint
//	ARK_SERVER_URL           enables Arkade through this Ark server
//	ARK_NETWORKS             networks served by ARK_SERVER_URL (default bitcoin)
//	SETTLEMENT_CACHE_TTL     how long successful settlements are remembered
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	h402 "github.com/bitgpt/h402/go"
	h402http "github.com/bitgpt/h402/go/http"
	"github.com/bitgpt/h402/go/mechanisms/arkade"
	"github.com/bitgpt/h402/go/mechanisms/evm"
	"github.com/bitgpt/h402/go/mechanisms/svm"
	evmsigners "github.com/bitgpt/h402/go/signers/evm"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := loadConfig(os.Environ())
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("facilitator stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	facilitator, err := newFacilitator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h402http.NewFacilitatorServer(facilitator, h402http.WithServerLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("facilitator listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newFacilitator registers a mechanism for every namespace that has enough
// configuration to settle
func newFacilitator(ctx context.Context, cfg config, logger *slog.Logger) (*h402.Facilitator, error) {
	opts := []h402.FacilitatorOption{
		h402.WithFacilitatorLogger(logger),
		h402.WithSettlementCache(h402.NewSettlementCache(cfg.SettlementTTL)),
	}

	evmSigners, err := dialEVM(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(evmSigners) > 0 {
		opts = append(opts, h402.WithMechanism(
			evm.NewExactFacilitator(evmSigners, evm.WithFacilitatorLogger(logger))))
	}

	cluster := svm.NewClusterConfig(cfg.SolanaRPCURLs)
	opts = append(opts, h402.WithMechanism(
		svm.NewExactFacilitator(cluster, svm.WithFacilitatorLogger(logger))))

	if cfg.ArkServerURL != "" {
		ark := arkade.NewRESTServer(cfg.ArkServerURL, &http.Client{Timeout: 30 * time.Second})
		servers := make(map[string]arkade.Server, len(cfg.ArkNetworks))
		for _, network := range cfg.ArkNetworks {
			servers[network] = ark
		}
		opts = append(opts, h402.WithMechanism(
			arkade.NewExactFacilitator(servers, arkade.WithFacilitatorLogger(logger))))
	}

	facilitator := h402.NewFacilitator(opts...)
	for _, kind := range facilitator.GetSupported().Kinds {
		logger.Info("mechanism registered", "namespace", kind.Namespace, "networkId", kind.NetworkID, "scheme", kind.Scheme)
	}
	return facilitator, nil
}

func dialEVM(ctx context.Context, cfg config) (map[string]evm.FacilitatorSigner, error) {
	chainIDs := make([]string, 0, len(cfg.EVMRPCURLs))
	for chainID := range cfg.EVMRPCURLs {
		chainIDs = append(chainIDs, chainID)
	}
	sort.Strings(chainIDs)

	signers := make(map[string]evm.FacilitatorSigner, len(chainIDs))
	for _, chainID := range chainIDs {
		signer, err := evmsigners.DialFacilitatorSigner(ctx, cfg.EVMPrivateKey, cfg.EVMRPCURLs[chainID])
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", chainID, err)
		}
		if got := signer.ChainID().String(); got != chainID {
			return nil, fmt.Errorf("%s%s points at chain %s", evmRPCPrefix, chainID, got)
		}
		signers[chainID] = signer
	}
	return signers, nil
}
