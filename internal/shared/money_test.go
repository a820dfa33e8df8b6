package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "0", false},
		{"50", "50", false},
		{" 12.5 ", "12.5", false},
		{"0.99", "0.99", false},
		{"1.234", "", true},
		{"-1", "", true},
		{"abc", "", true},
		{"NaN", "", true},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.wantErr {
			require.ErrorIs(t, err, ErrInvalidAmount, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.True(t, decimal.RequireFromString(tc.want).Equal(got), "%s parsed as %s", tc.in, got)
	}
}

func TestValidAmount(t *testing.T) {
	require.True(t, ValidAmount(decimal.NewFromInt(150)))
	require.True(t, ValidAmount(decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))))
	require.False(t, ValidAmount(decimal.RequireFromString("0.005")))
	require.False(t, ValidAmount(decimal.RequireFromString("-0.01")))
}

func TestRoundCentsHalfAwayFromZero(t *testing.T) {
	require.Equal(t, "1.01", RoundCents(decimal.RequireFromString("1.005")).StringFixed(2))
	require.Equal(t, "2.68", RoundCents(decimal.RequireFromString("2.675")).StringFixed(2))
	require.Equal(t, "0.30", RoundCents(decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))).StringFixed(2))
}

func TestExtension(t *testing.T) {
	require.Equal(t, "450.00", Extension(3, decimal.NewFromInt(150)).StringFixed(2))
	require.Equal(t, "0.30", Extension(3, decimal.RequireFromString("0.10")).StringFixed(2))
}
