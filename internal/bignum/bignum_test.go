package bignum

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	require.Equal(t, "0", Zero().String())
	require.Equal(t, "1", One().String())
	require.True(t, Zero().IsZero())
	require.False(t, One().IsZero())

	var zero Int
	require.True(t, zero.Equal(Zero()))
	require.Equal(t, "18446744073709551615", FromUint64(^uint64(0)).String())
}

func TestParse(t *testing.T) {
	v, err := Parse("000123")
	require.NoError(t, err)
	require.Equal(t, "123", v.String())

	v, err = Parse("0")
	require.NoError(t, err)
	require.True(t, v.IsZero())

	for _, input := range []string{"", "-1", "+1", "12a", " 1", "1_000", "1.5"} {
		_, err := Parse(input)
		var parseErr *ParseError
		require.Truef(t, errors.As(err, &parseErr), "input %q: expected ParseError, got %v", input, err)
	}
}

func TestParseErrorOffset(t *testing.T) {
	_, err := Parse("12x4")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, 2, parseErr.Offset)
	require.Contains(t, parseErr.Error(), `"x"`)
}

func TestAddAndScaleBeyondUint64(t *testing.T) {
	max := FromUint64(^uint64(0))
	sum := Add(max, One())
	require.Equal(t, "18446744073709551616", sum.String())

	doubled := Scale(max, 2)
	require.Equal(t, "36893488147419103230", doubled.String())

	require.True(t, Scale(max, 0).IsZero())
	require.True(t, Scale(Zero(), 42).IsZero())
}

func TestOperationsDoNotMutateOperands(t *testing.T) {
	a := MustParse("999999999999999999999")
	b := MustParse("1")
	_ = Add(a, b)
	_ = a.Scale(7)
	require.Equal(t, "999999999999999999999", a.String())
	require.Equal(t, "1", b.String())

	copied := a.Big()
	copied.SetInt64(5)
	require.Equal(t, "999999999999999999999", a.String())
}

func TestRepeatedDoublingMatchesPowerOfTwo(t *testing.T) {
	v := One()
	for i := 0; i < 200; i++ {
		v = v.Scale(2)
	}
	want := new(big.Int).Lsh(big.NewInt(1), 200)
	require.Equal(t, want.String(), v.String())
	require.Equal(t, 61, v.DigitCount())

	parsed, err := Parse(v.String())
	require.NoError(t, err)
	require.True(t, parsed.Equal(v))
}

func TestCmp(t *testing.T) {
	require.Equal(t, -1, One().Cmp(FromUint64(2)))
	require.Equal(t, 0, FromUint64(2).Cmp(FromUint64(2)))
	require.Equal(t, 1, FromUint64(3).Cmp(Zero()))
}

func TestJSONUsesDecimalStrings(t *testing.T) {
	huge := MustParse("1" + strings.Repeat("0", 40))
	payload, err := json.Marshal(struct {
		Value Int `json:"value"`
	}{Value: huge})
	require.NoError(t, err)
	require.JSONEq(t, `{"value":"1`+strings.Repeat("0", 40)+`"}`, string(payload))

	var decoded struct {
		Value Int `json:"value"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.True(t, decoded.Value.Equal(huge))

	err = json.Unmarshal([]byte(`{"value":"12f"}`), &decoded)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}
