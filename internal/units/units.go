// Package units converts between display amounts (decimal strings)
// and base units (wei, 18-decimal fixed point). All arithmetic is
// exact; no floating point is involved.
package units

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the native token's display precision
const Decimals = 18

var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ParseAmount converts a decimal amount string into base units.
// "1.5" -> 1500000000000000000. Fails on empty input, malformed
// numbers, negative amounts, and fractional parts longer than 18
// digits. "0" is valid.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount %q", s)
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
		if strings.IndexByte(fracPart, '.') >= 0 {
			return nil, fmt.Errorf("malformed amount %q", s)
		}
	}
	if intPart == "" && fracPart == "" {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > Decimals {
		return nil, fmt.Errorf("amount %q exceeds %d decimal places", s, Decimals)
	}
	// SetString tolerates a leading sign, so both parts must be
	// checked digit by digit.
	if !digitsOnly(intPart) || !digitsOnly(fracPart) {
		return nil, fmt.Errorf("malformed amount %q", s)
	}

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	wei := new(big.Int).Mul(whole, weiPerToken)

	if fracPart != "" {
		// Right-pad the fractional digits to full precision.
		padded := fracPart + strings.Repeat("0", Decimals-len(fracPart))
		frac, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return nil, fmt.Errorf("malformed amount %q", s)
		}
		wei.Add(wei, frac)
	}

	return wei, nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatAmount converts base units into a decimal amount string with
// trailing zeros trimmed. 1500000000000000000 -> "1.5", 0 -> "0".
func FormatAmount(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}

	abs := new(big.Int).Abs(wei)
	whole, frac := new(big.Int).QuoRem(abs, weiPerToken, new(big.Int))

	out := whole.String()
	if wei.Sign() < 0 {
		out = "-" + out
	}

	if frac.Sign() == 0 {
		return out
	}

	digits := frac.String()
	digits = strings.Repeat("0", Decimals-len(digits)) + digits
	digits = strings.TrimRight(digits, "0")
	return out + "." + digits
}
