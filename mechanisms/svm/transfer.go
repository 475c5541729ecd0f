package svm

import (
	"fmt"
	"math/big"
	"strings"

	solana "github.com/gagliardetto/solana-go"

	h402 "github.com/bitgpt/h402/go"
)

// checkTransfer reports why tx does not pay at least amount to the
// requirement's payee, or "" when it does. For SPL tokens the payee is the
// associated token account of payToAddress.
func checkTransfer(tx *solana.Transaction, requirements h402.PaymentRequirements, amount *big.Int) (string, string) {
	payTo, err := solana.PublicKeyFromBase58(requirements.PayToAddress)
	if err != nil {
		return h402.ReasonInvalidRequirements, fmt.Sprintf("invalid payTo address %q", requirements.PayToAddress)
	}
	native := IsNativeToken(requirements.TokenAddress)
	var mint solana.PublicKey
	if !native {
		mint, err = solana.PublicKeyFromBase58(requirements.TokenAddress)
		if err != nil {
			return h402.ReasonInvalidRequirements, fmt.Sprintf("invalid mint address %q", requirements.TokenAddress)
		}
	}

	transfers, _, err := ParseTransfers(tx)
	if err != nil {
		return ErrInvalidTransaction, err.Error()
	}

	var best *big.Int
	sawTransfer := false
	for _, t := range transfers {
		if native != t.Mint.IsZero() {
			continue
		}
		sawTransfer = true
		expected := payTo
		if !native {
			if !t.Mint.Equals(mint) {
				continue
			}
			expected, err = AssociatedTokenAddress(payTo, mint, t.Program)
			if err != nil {
				return ErrInvalidTransaction, err.Error()
			}
		}
		if !t.Destination.Equals(expected) {
			continue
		}
		value := new(big.Int).SetUint64(t.Amount)
		if best == nil || value.Cmp(best) > 0 {
			best = value
		}
	}

	switch {
	case best == nil && sawTransfer:
		return ErrRecipientMismatch, fmt.Sprintf("no transfer pays %s", requirements.PayToAddress)
	case best == nil:
		return ErrNoTransferInstruction, "transaction has no matching transfer instruction"
	case best.Cmp(amount) < 0:
		return ErrInsufficientValue, fmt.Sprintf("transfer amount %s is below required %s", best, amount)
	}
	return "", ""
}

// checkMemo requires memo among the transaction's memo instructions and
// requires it to name resource, either exactly or as "resource:nonce". An
// empty memo passes only when required is false.
func checkMemo(tx *solana.Transaction, memo, resource string, required bool) (string, string) {
	if memo == "" {
		if required {
			return ErrMemoMismatch, fmt.Sprintf("payment carries no memo binding it to %q", resource)
		}
		return "", ""
	}
	if memo != resource && !strings.HasPrefix(memo, resource+":") {
		return ErrMemoMismatch, fmt.Sprintf("memo %q was not made for %q", memo, resource)
	}
	_, memos, err := ParseTransfers(tx)
	if err != nil {
		return ErrInvalidTransaction, err.Error()
	}
	for _, m := range memos {
		if m == memo {
			return "", ""
		}
	}
	return ErrMemoMismatch, fmt.Sprintf("transaction has no memo %q", memo)
}
