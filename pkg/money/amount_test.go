package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmountRoundTrip(t *testing.T) {
	// String drops trailing fractional zeros, so "25.00" renders as "25".
	cases := []struct{ in, want string }{
		{"0", "0"},
		{"25.00", "25"},
		{"0.000000000000000001", "0.000000000000000001"},
		{"123456789012345678901234.123456789012345678", "123456789012345678901234.123456789012345678"},
		{"-14.5", "-14.5"},
	}
	for _, c := range cases {
		a, err := ParseAmount(c.in)
		require.NoError(t, err)
		require.Equal(t, c.want, a.String())
	}
}

func TestParseAmountRejectsEmptyAndGarbage(t *testing.T) {
	_, err := ParseAmount("")
	require.Error(t, err)

	_, err = ParseAmount("not-a-number")
	require.Error(t, err)
}

func TestArithmetic(t *testing.T) {
	a := MustParseAmount("25.00")
	b := MustParseAmount("10.00")

	require.Equal(t, "35", a.Add(b).String())
	require.Equal(t, "15", a.Sub(b).String())
	require.True(t, a.GreaterThan(b))
	require.False(t, a.IsNegative())
	require.True(t, a.Neg().IsNegative())
	require.True(t, Zero.IsZero())
}

func TestJSONRoundTrip(t *testing.T) {
	a := MustParseAmount("0.123456789012345678")
	data, err := json.Marshal(a)
	require.NoError(t, err)
	require.Equal(t, `"0.123456789012345678"`, string(data))

	var out Amount
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, a.String(), out.String())
}

func TestScanValue(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan("42.5"))
	require.Equal(t, "42.5", a.String())

	require.NoError(t, a.Scan([]byte("7.0")))
	require.Equal(t, "7", a.String())

	require.NoError(t, a.Scan(nil))
	require.True(t, a.IsZero())

	v, err := MustParseAmount("9.99").Value()
	require.NoError(t, err)
	require.Equal(t, "9.99", v)
}
