package units

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "whole token", input: "1", want: "1000000000000000000"},
		{name: "fractional", input: "1.5", want: "1500000000000000000"},
		{name: "zero", input: "0", want: "0"},
		{name: "zero with fraction", input: "0.0", want: "0"},
		{name: "bare fraction", input: ".5", want: "500000000000000000"},
		{name: "trailing dot", input: "2.", want: "2000000000000000000"},
		{name: "full precision", input: "0.000000000000000001", want: "1"},
		{name: "surrounding whitespace", input: " 3 ", want: "3000000000000000000"},
		{name: "large amount", input: "123456789.987654321", want: "123456789987654321000000000"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "negative fraction", input: "-0.5", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
		{name: "two dots", input: "1.2.3", wantErr: true},
		{name: "bare dot", input: ".", wantErr: true},
		{name: "too many decimals", input: "0.0000000000000000001", wantErr: true},
		{name: "signed fraction", input: "1.-5", wantErr: true},
		{name: "plus-signed fraction", input: "1.+5", wantErr: true},
		{name: "bare signed fraction", input: ".-5", wantErr: true},
		{name: "negative sub-token fraction", input: "0.-5", wantErr: true},
		{name: "plus-signed integer", input: "+1", wantErr: true},
		{name: "hex rejected", input: "0x10", wantErr: true},
		{name: "exponent rejected", input: "1e18", wantErr: true},
		{name: "internal space", input: "1 000", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "whole token", input: "1000000000000000000", want: "1"},
		{name: "fractional", input: "1500000000000000000", want: "1.5"},
		{name: "zero", input: "0", want: "0"},
		{name: "one wei", input: "1", want: "0.000000000000000001"},
		{name: "trailing zeros trimmed", input: "1100000000000000000", want: "1.1"},
		{name: "sub-token", input: "500000000000000000", want: "0.5"},
		{name: "negative", input: "-2500000000000000000", want: "-2.5"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wei, ok := new(big.Int).SetString(tc.input, 10)
			require.True(t, ok)
			assert.Equal(t, tc.want, FormatAmount(wei))
		})
	}
}

func TestFormatAmount_Nil(t *testing.T) {
	assert.Equal(t, "0", FormatAmount(nil))
}

func TestRoundTrip(t *testing.T) {
	// Canonical decimal strings must survive parse/format unchanged
	for _, s := range []string{"0", "1", "1.5", "0.25", "42", "0.000000000000000001", "999999.999999"} {
		wei, err := ParseAmount(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, FormatAmount(wei), s)
	}
}

func TestParseAmount_MaxPrecisionBoundary(t *testing.T) {
	exact := "0." + strings.Repeat("0", Decimals-1) + "1"
	wei, err := ParseAmount(exact)
	require.NoError(t, err)
	assert.Equal(t, "1", wei.String())

	tooLong := "0." + strings.Repeat("0", Decimals) + "1"
	_, err = ParseAmount(tooLong)
	require.Error(t, err)
}
