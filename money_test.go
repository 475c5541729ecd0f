package h402

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{name: "dollar string", input: "$1.50", want: "1.5"},
		{name: "thousands separator", input: "$1,234.5678", want: "1234.5678"},
		{name: "plain string", input: "0.01", want: "0.01"},
		{name: "float", input: 0.01, want: "0.01"},
		{name: "int", input: 5, want: "5"},
		{name: "int64", input: int64(42), want: "42"},
		{name: "uint64", input: uint64(7), want: "7"},
		{name: "decimal", input: decimal.RequireFromString("3.1"), want: "3.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMoney(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestParseMoneyRejects(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{name: "empty", input: ""},
		{name: "negative string", input: "-1"},
		{name: "negative number", input: -0.5},
		{name: "scientific notation", input: "1e5"},
		{name: "multiple dots", input: "1.2.3"},
		{name: "letters", input: "ten"},
		{name: "lone dot", input: "."},
		{name: "too many decimals", input: "0.00001"},
		{name: "too many decimals float", input: 0.12345},
		{name: "NaN", input: math.NaN()},
		{name: "infinity", input: math.Inf(1)},
		{name: "unsupported type", input: []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMoney(tt.input)
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestToAtomic(t *testing.T) {
	got, err := ToAtomic(decimal.RequireFromString("1.5"), 6)
	require.NoError(t, err)
	assert.Equal(t, "1500000", got.String())

	// fractional atomic units are floored
	got, err = ToAtomic(decimal.RequireFromString("0.0000015"), 6)
	require.NoError(t, err)
	assert.Equal(t, "1", got.String())

	got, err = ToAtomic(decimal.RequireFromString("2"), 18)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", got.String())

	_, err = ToAtomic(decimal.RequireFromString("-1"), 6)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
