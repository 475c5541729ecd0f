package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	h402 "github.com/bitgpt/h402/go"
)

// ChainID parses a decimal network id such as "8453"
func ChainID(networkID string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(networkID), 10)
	if !ok || id.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q is not an EVM chain id", h402.ErrUnsupportedNetwork, networkID)
	}
	return id, nil
}

// NativeDecimals returns the native currency decimals of a chain, falling
// back to DefaultNativeDecimals for unknown chains
func NativeDecimals(networkID string, logger *slog.Logger) int32 {
	if chain, ok := Chains[networkID]; ok {
		return chain.NativeDecimals
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("unknown EVM chain, assuming native decimals",
		"networkId", networkID,
		"decimals", DefaultNativeDecimals)
	return DefaultNativeDecimals
}

// IsNativeToken reports whether tokenAddress denotes the native currency
func IsNativeToken(tokenAddress string) bool {
	return tokenAddress == "" || strings.EqualFold(tokenAddress, NativeTokenAddress)
}

// TokenDecimals resolves decimals for the requirement's token. Native tokens
// use the chain table; ERC-20 tokens are asked via decimals(). A declared
// tokenDecimals is used only when no reader is available.
func TokenDecimals(ctx context.Context, reader ContractReader, requirements h402.PaymentRequirements, logger *slog.Logger) (int32, error) {
	if IsNativeToken(requirements.TokenAddress) {
		return NativeDecimals(requirements.NetworkID, logger), nil
	}
	if !common.IsHexAddress(requirements.TokenAddress) {
		return 0, fmt.Errorf("%w: token address %q", h402.ErrNotERC20Compliant, requirements.TokenAddress)
	}
	if reader == nil {
		if requirements.TokenDecimals != nil {
			return int32(*requirements.TokenDecimals), nil
		}
		return 0, h402.MissingCapabilityError("client must implement ReadContract to resolve token decimals")
	}

	result, err := reader.ReadContract(ctx, requirements.TokenAddress, ERC20ABI, FunctionDecimals)
	if err != nil {
		return 0, fmt.Errorf("%w: decimals() failed: %v", h402.ErrNotERC20Compliant, err)
	}
	decimals, err := toBigInt(result)
	if err != nil || !decimals.IsInt64() || decimals.Int64() > 255 {
		return 0, fmt.Errorf("%w: unexpected decimals() result %v", h402.ErrNotERC20Compliant, result)
	}
	return int32(decimals.Int64()), nil
}

// toBigInt converts an unpacked ABI integer
func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return n, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	}
	return nil, fmt.Errorf("unexpected integer type %T", v)
}

// tokenDomain resolves the EIP-712 name and version of a token:
// eip712Domain(), then name()/version(), then extra.name/extra.version.
// Version falls back to DefaultDomainVersion.
func tokenDomain(ctx context.Context, reader ContractReader, requirements h402.PaymentRequirements) (string, string, error) {
	var name, version string
	token := requirements.TokenAddress

	if reader != nil {
		if result, err := reader.ReadContract(ctx, token, EIP712DomainABI, FunctionEIP712Domain); err == nil {
			if outputs, ok := result.([]interface{}); ok && len(outputs) >= 3 {
				name, _ = outputs[1].(string)
				version, _ = outputs[2].(string)
			}
		}
		if name == "" {
			if result, err := reader.ReadContract(ctx, token, ERC20ABI, FunctionName); err == nil {
				name, _ = result.(string)
			}
		}
		if version == "" {
			if result, err := reader.ReadContract(ctx, token, ERC20ABI, FunctionVersion); err == nil {
				version, _ = result.(string)
			}
		}
	}

	if name == "" {
		name = requirements.ExtraString("name")
	}
	if version == "" {
		version = requirements.ExtraString("version")
	}
	if version == "" {
		version = DefaultDomainVersion
	}
	if name == "" {
		return "", "", fmt.Errorf("unable to resolve EIP-712 domain name for token %s", token)
	}
	return name, version, nil
}
