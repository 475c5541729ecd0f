package h402

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxMoneyDecimals is the precision accepted from human price input
const MaxMoneyDecimals = 4

// ParseMoney converts a human price such as "$1,234.50" or 0.01 into an exact
// decimal. Negative values, scientific notation, malformed numbers and more
// than MaxMoneyDecimals fractional digits are rejected.
func ParseMoney(value interface{}) (decimal.Decimal, error) {
	var d decimal.Decimal
	switch v := value.(type) {
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(v))
		parsed, err := parseDecimalText(cleaned)
		if err != nil {
			return decimal.Zero, err
		}
		d = parsed
	case decimal.Decimal:
		d = v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, v)
		}
		d = decimal.NewFromFloat(v)
	case float32:
		return ParseMoney(float64(v))
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case int32:
		d = decimal.NewFromInt(int64(v))
	case uint64:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
	case uint:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), 0)
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, value)
	}

	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, d.String())
	}
	if !d.Equal(d.Truncate(MaxMoneyDecimals)) {
		return decimal.Zero, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d.String(), MaxMoneyDecimals)
	}
	return d, nil
}

// parseDecimalText accepts plain non-negative decimal notation only
func parseDecimalText(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") {
		return decimal.Zero, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, s)
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("%w: scientific notation is not allowed: %s", ErrInvalidAmount, s)
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, fmt.Errorf("%w: multiple decimal points in %s", ErrInvalidAmount, s)
	}
	digits := strings.TrimPrefix(s, "+")
	for _, r := range digits {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, fmt.Errorf("%w: %s is not a number", ErrInvalidAmount, s)
		}
	}
	if digits == "." {
		return decimal.Zero, fmt.Errorf("%w: %s is not a number", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return d, nil
}

// ToAtomic scales a human amount by 10^decimals and floors the result
func ToAtomic(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, amount.String())
	}
	if decimals < 0 {
		return nil, fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}
	return amount.Shift(decimals).Floor().BigInt(), nil
}
