package svm

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	h402 "github.com/bitgpt/h402/go"
)

// MintInfo is the decoded mint account plus the program that owns it
type MintInfo struct {
	Program  solana.PublicKey
	Decimals uint8
}

// LoadMint fetches and decodes a mint account
func LoadMint(ctx context.Context, client RPC, mint solana.PublicKey) (MintInfo, error) {
	account, err := client.GetAccountInfo(ctx, mint)
	if err != nil {
		return MintInfo{}, fmt.Errorf("failed to get mint account %s: %w", mint, err)
	}
	if account == nil || account.Value == nil || account.Value.Data == nil {
		return MintInfo{}, fmt.Errorf("mint account %s does not exist", mint)
	}
	owner := account.Value.Owner
	if !IsTokenProgram(owner) {
		return MintInfo{}, fmt.Errorf("%s is owned by %s, not a token program", mint, owner)
	}

	var data token.Mint
	if err := bin.NewBinDecoder(account.Value.Data.GetBinary()).Decode(&data); err != nil {
		return MintInfo{}, fmt.Errorf("failed to decode mint data: %w", err)
	}
	return MintInfo{Program: owner, Decimals: data.Decimals}, nil
}

// TokenDecimals resolves decimals for the requirement's token: 9 for SOL, the
// mint account's decimals for SPL tokens. A declared tokenDecimals is used
// only when no RPC client is available.
func TokenDecimals(ctx context.Context, client RPC, requirements h402.PaymentRequirements) (int32, error) {
	if IsNativeToken(requirements.TokenAddress) {
		return NativeDecimals, nil
	}
	mint, err := solana.PublicKeyFromBase58(requirements.TokenAddress)
	if err != nil {
		return 0, fmt.Errorf("invalid mint address %q: %w", requirements.TokenAddress, err)
	}
	if client == nil {
		if requirements.TokenDecimals != nil {
			return int32(*requirements.TokenDecimals), nil
		}
		return 0, h402.MissingCapabilityError("an RPC client is required to resolve SPL token decimals")
	}
	info, err := LoadMint(ctx, client, mint)
	if err != nil {
		return 0, err
	}
	return int32(info.Decimals), nil
}
