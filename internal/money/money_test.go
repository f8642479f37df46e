package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.0000000005", "0.000000001"},
		{"0.0000000004", "0.000000000"},
		{"-0.0000000005", "-0.000000001"},
		{"1.2345678915", "1.234567892"},
		{"10", "10.000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(Round(decimal.RequireFromString(tt.in))))
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		d, err := Parse(" 5 ")
		require.NoError(t, err)
		assert.Equal(t, "5.000000000", Format(d))
	})

	t.Run("invalid", func(t *testing.T) {
		for _, in := range []string{"", "abc", "1.2.3", "5$"} {
			_, err := Parse(in)
			assert.ErrorIs(t, err, ErrInvalidAmount, in)
		}
	})

	t.Run("non positive", func(t *testing.T) {
		for _, in := range []string{"0", "-1", "0.0000000001"} {
			_, err := ParsePositive(in)
			assert.ErrorIs(t, err, ErrNonPositiveAmount, in)
		}
	})
}

func TestNoDriftOverManyAdditions(t *testing.T) {
	step := MustParse("0.000000001")
	total := Zero
	for i := 0; i < 10000; i++ {
		total = Add(total, step)
	}
	assert.Equal(t, "0.000010000", Format(total))
	assert.True(t, total.Equal(decimal.RequireFromString("0.00001")))
}

func TestDivRound(t *testing.T) {
	got := DivRound(decimal.RequireFromString("2").Mul(decimal.NewFromInt(1)), 3)
	assert.Equal(t, "0.666666667", Format(got))
}
