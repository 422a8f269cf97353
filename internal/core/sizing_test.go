package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCalculateQuantityBuy(t *testing.T) {
	rules := Rules{QtyStep: d("0.001")}

	qty, err := CalculateQuantity(d("95"), Buy, d("1000"), d("0.01"), rules)
	require.NoError(t, err)
	// 1000 * 0.01 / 95 = 0.10526..., floored to the lot step.
	assert.True(t, qty.Equal(d("0.105")), "got %s", qty)
}

func TestCalculateQuantitySellUsesBaseBalance(t *testing.T) {
	rules := Rules{QtyStep: d("0.001")}

	qty, err := CalculateQuantity(d("95"), Sell, d("0.5"), d("1"), rules)
	require.NoError(t, err)
	assert.True(t, qty.Equal(d("0.5")), "got %s", qty)
}

func TestCalculateQuantityRoundsDownToStep(t *testing.T) {
	rules := Rules{QtyStep: d("0.01")}

	qty, err := CalculateQuantity(d("3"), Buy, d("100"), d("0.1"), rules)
	require.NoError(t, err)
	// 10 / 3 = 3.333..., floored to 3.33 rather than rounded to 3.34.
	assert.True(t, qty.Equal(d("3.33")), "got %s", qty)
}

func TestCalculateQuantityInsufficient(t *testing.T) {
	tests := []struct {
		name    string
		price   decimal.Decimal
		balance decimal.Decimal
		rules   Rules
	}{
		{
			name:    "rounds to zero",
			price:   d("50000"),
			balance: d("10"),
			rules:   Rules{QtyStep: d("0.001")},
		},
		{
			name:    "below min qty",
			price:   d("100"),
			balance: d("100"),
			rules:   Rules{QtyStep: d("0.001"), MinQty: d("0.5")},
		},
		{
			name:    "below min notional",
			price:   d("100"),
			balance: d("100"),
			rules:   Rules{QtyStep: d("0.001"), MinNotional: d("10")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CalculateQuantity(tt.price, Buy, tt.balance, d("0.01"), tt.rules)
			assert.ErrorIs(t, err, ErrInsufficientSize)
		})
	}
}

func TestCalculateQuantityInvalidInput(t *testing.T) {
	_, err := CalculateQuantity(decimal.Zero, Buy, d("1000"), d("0.01"), Rules{})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = CalculateQuantity(d("100"), Side("HOLD"), d("1000"), d("0.01"), Rules{})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestRoundDown(t *testing.T) {
	assert.True(t, RoundDown(d("1.2345"), d("0.01")).Equal(d("1.23")))
	assert.True(t, RoundDown(d("1.2345"), decimal.Zero).Equal(d("1.2345")))
}
