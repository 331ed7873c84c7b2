package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeniorDiscount(t *testing.T) {
	cases := []struct {
		subtotal Cents
		want     Cents
	}{
		{1120, 200},
		{0, 0},
		{-5, 0},
		{100, 18},   // 17.857 -> 18
		{1000, 179}, // 178.57 -> 179
		{28, 5},
		{14, 3}, // 2.5 rounds half-up
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, SeniorDiscount(tc.subtotal), "subtotal %d", tc.subtotal)
	}
	require.Equal(t, Cents(920), Cents(1120)-SeniorDiscount(1120))
}

func TestMulAndSum(t *testing.T) {
	v, err := Mul(250, 2)
	require.NoError(t, err)
	require.Equal(t, Cents(500), v)

	_, err = Mul(math.MaxInt64/2, 3)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Mul(-1, 1)
	require.ErrorIs(t, err, ErrNegativeAmount)

	total, err := Sum(500, 250, 1)
	require.NoError(t, err)
	require.Equal(t, Cents(751), total)

	_, err = Sum(math.MaxInt64, 1)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestCheckQuantity(t *testing.T) {
	require.NoError(t, CheckQuantity(1))
	require.ErrorIs(t, CheckQuantity(0), ErrInvalidQuantity)
	require.ErrorIs(t, CheckQuantity(-3), ErrInvalidQuantity)
}

func TestParseAndString(t *testing.T) {
	cases := map[string]Cents{
		"12.5":     1250,
		"1,250.00": 125000,
		"0.07":     7,
		".5":       50,
		"3":        300,
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "abc", "1.234", "-1.00"} {
		_, err := Parse(bad)
		require.Error(t, err, bad)
	}

	require.Equal(t, "12.50", Cents(1250).String())
	require.Equal(t, "0.07", Cents(7).String())
	require.Equal(t, "-0.50", Cents(-50).String())
}

func TestFromMajor(t *testing.T) {
	v, err := FromMajor(19.99)
	require.NoError(t, err)
	require.Equal(t, Cents(1999), v)

	_, err = FromMajor(-1)
	require.ErrorIs(t, err, ErrNegativeAmount)

	_, err = FromMajor(math.NaN())
	require.ErrorIs(t, err, ErrInvalidAmount)
}
