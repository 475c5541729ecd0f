package h402

import (
	"sort"
	"strings"
)

// stablecoinSymbols are the token symbols treated as stablecoins
var stablecoinSymbols = map[string]struct{}{
	"USDT": {},
	"USDC": {},
}

// stablecoinAddresses are known stablecoin contracts and mints. EVM addresses
// are stored lower-case; Solana mints are case-sensitive.
var stablecoinAddresses = map[string]struct{}{
	// BSC
	"0x55d398326f99059ff775485246999027b3197955": {}, // USDT
	"0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d": {}, // USDC
	// Ethereum
	"0xdac17f958d2ee523a2206206994597c13d831ec7": {}, // USDT
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": {}, // USDC
	// Base
	"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913": {}, // USDC
	"0x036cbd53842c5426634e7929541ec2318f3dcf7e": {}, // USDC (Base Sepolia)
	// Solana
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {}, // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": {}, // USDT
	"4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU": {}, // USDC (devnet)
}

// IsStablecoin reports whether the requirement is priced in a known stablecoin
func IsStablecoin(requirements PaymentRequirements) bool {
	if _, ok := stablecoinSymbols[strings.ToUpper(requirements.TokenSymbol)]; ok {
		return true
	}
	address := requirements.TokenAddress
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		address = strings.ToLower(address)
	}
	_, ok := stablecoinAddresses[address]
	return ok
}

// SortByStablecoinPriority returns a copy of requirements with stablecoin
// entries first. The sort is stable, so ties keep their original order.
func SortByStablecoinPriority(requirements []PaymentRequirements) []PaymentRequirements {
	sorted := make([]PaymentRequirements, len(requirements))
	copy(sorted, requirements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return IsStablecoin(sorted[i]) && !IsStablecoin(sorted[j])
	})
	return sorted
}

// RequirementFilter narrows selection. Empty fields match anything.
type RequirementFilter struct {
	Namespace Namespace
	NetworkID string
	Scheme    string
}

func (f RequirementFilter) matches(r PaymentRequirements) bool {
	if f.Namespace != "" && r.Namespace != f.Namespace {
		return false
	}
	if f.NetworkID != "" && r.NetworkID != f.NetworkID {
		return false
	}
	if f.Scheme != "" && r.Scheme != f.Scheme {
		return false
	}
	return true
}

// SelectPaymentRequirements picks the preferred requirement: stablecoins
// first, then the first entry matching filter.
//
// When nothing matches, the first element of the original list is returned
// instead of an error. That entry may not fit the filter, so callers must
// re-check namespace compatibility before building a payment.
func SelectPaymentRequirements(requirements []PaymentRequirements, filter RequirementFilter) (PaymentRequirements, error) {
	if len(requirements) == 0 {
		return PaymentRequirements{}, ErrNoRequirements
	}
	for _, r := range SortByStablecoinPriority(requirements) {
		if filter.matches(r) {
			return r, nil
		}
	}
	return requirements[0], nil
}
