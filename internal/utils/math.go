package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// Min returns the smaller of a or b
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a or b
func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ParseRawAmount parses a smallest-unit integer amount as stored in
// numeric(78,0) columns. Negative amounts are rejected: value only ever
// flows toward an invoice address.
func ParseRawAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty raw amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid raw amount: %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative raw amount: %q", s)
	}
	return v, nil
}

// CmpRaw compares two stored raw amounts, -1/0/+1 like big.Int.Cmp.
func CmpRaw(a, b string) (int, error) {
	av, err := ParseRawAmount(a)
	if err != nil {
		return 0, err
	}
	bv, err := ParseRawAmount(b)
	if err != nil {
		return 0, err
	}
	return av.Cmp(bv), nil
}

// FormatUnits renders a raw amount as a decimal string for logs and ops
// responses ("1500000" with 6 decimals -> "1.5"). Exact, no floats.
func FormatUnits(raw string, decimals uint8) string {
	v, err := ParseRawAmount(raw)
	if err != nil {
		return raw
	}
	if decimals == 0 {
		return v.String()
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(v, divisor, new(big.Int))
	fracStr := frac.String()
	for len(fracStr) < int(decimals) {
		fracStr = "0" + fracStr
	}
	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		return whole.String()
	}
	return whole.String() + "." + fracStr
}
