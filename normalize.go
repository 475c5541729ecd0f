package h402

import (
	"context"
	"fmt"
)

// NormalizeAmount returns requirements whose AmountRequired is an atomic
// integer. Atomic requirements are returned unchanged; formatted amounts are
// scaled by the token decimals reported by resolver and floored.
func NormalizeAmount(ctx context.Context, requirements PaymentRequirements, resolver DecimalsResolver) (PaymentRequirements, error) {
	if requirements.AmountRequiredFormat.IsAtomic() {
		return requirements, nil
	}
	switch requirements.AmountRequiredFormat {
	case AmountFormatFormatted, AmountFormatHumanReadable:
	default:
		return PaymentRequirements{}, fmt.Errorf("%w: unknown amount format %q", ErrInvalidAmount, requirements.AmountRequiredFormat)
	}
	if resolver == nil {
		return PaymentRequirements{}, fmt.Errorf("%w: no decimals resolver for %s", ErrUnsupportedNamespace, requirements.Namespace)
	}

	human, err := parseDecimalText(string(requirements.AmountRequired))
	if err != nil {
		return PaymentRequirements{}, err
	}

	decimals, err := resolver.TokenDecimals(ctx, requirements)
	if err != nil {
		return PaymentRequirements{}, fmt.Errorf("failed to resolve token decimals: %w", err)
	}

	atomic, err := ToAtomic(human, decimals)
	if err != nil {
		return PaymentRequirements{}, err
	}

	normalized := requirements
	normalized.AmountRequired = Amount(atomic.String())
	normalized.AmountRequiredFormat = AmountFormatAtomic
	return normalized, nil
}
