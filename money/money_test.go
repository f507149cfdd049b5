package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/billing-engine/money"
)

func TestRound_HalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"900", "900"},
		{"900.4", "900"},
		{"900.5", "901"},
		{"900.6", "901"},
		{"0.49", "0"},
		{"0.5", "1"},
	}
	for _, c := range cases {
		got := money.Round(decimal.RequireFromString(c.in))
		assert.True(t, got.Equal(decimal.RequireFromString(c.want)),
			"Round(%s) = %s, want %s", c.in, got, c.want)
	}
}

func TestSurcharge_TenPercentRounded(t *testing.T) {
	// 10% of 9,000 = 900, no rounding needed
	got := money.Surcharge(money.FromInt(9000))
	assert.True(t, got.Equal(money.FromInt(900)))

	// 10% of 9,005 = 900.5 -> rounds up to 901
	got = money.Surcharge(money.FromInt(9005))
	assert.True(t, got.Equal(money.FromInt(901)))
}

func TestSurcharge_FlooredAtZero(t *testing.T) {
	got := money.Surcharge(money.FromInt(-500))
	assert.True(t, got.IsZero(), "negative charges must not produce a negative surcharge")
}

func TestWithinTolerance(t *testing.T) {
	tol := decimal.RequireFromString("0.01")
	assert.True(t, money.WithinTolerance(money.FromInt(100), decimal.RequireFromString("100.005"), tol))
	assert.False(t, money.WithinTolerance(money.FromInt(100), decimal.RequireFromString("100.01"), tol))
}

func TestSum_RecomputesFromParts(t *testing.T) {
	total := money.Sum(money.FromInt(5000), money.FromInt(3000), money.FromInt(-6000))
	assert.True(t, total.Equal(money.FromInt(2000)))
}
