package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawAmount(t *testing.T) {
	v, err := ParseRawAmount("1500000")
	require.NoError(t, err)
	assert.Equal(t, "1500000", v.String())

	// uint256 max must fit
	v, err = ParseRawAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	assert.Equal(t, 78, len(v.String()))

	v, err = ParseRawAmount("  42 ")
	require.NoError(t, err)
	assert.Equal(t, "42", v.String())

	_, err = ParseRawAmount("")
	assert.Error(t, err)

	_, err = ParseRawAmount("1.5")
	assert.Error(t, err)

	_, err = ParseRawAmount("0x10")
	assert.Error(t, err)

	_, err = ParseRawAmount("-100")
	assert.Error(t, err, "value only flows toward invoices, negatives are rejected")
}

func TestCmpRaw(t *testing.T) {
	cmp, err := CmpRaw("100", "200")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = CmpRaw("200", "200")
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)

	cmp, err = CmpRaw("201", "200")
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	_, err = CmpRaw("abc", "200")
	assert.Error(t, err)
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decimals uint8
		want     string
	}{
		{"usdc whole", "1000000", 6, "1"},
		{"usdc fraction", "1500000", 6, "1.5"},
		{"trailing zeros trimmed", "1230000", 6, "1.23"},
		{"below one", "500", 6, "0.0005"},
		{"eighteen decimals", "1000000000000000000", 18, "1"},
		{"wei dust", "1", 18, "0.000000000000000001"},
		{"zero decimals", "12345", 0, "12345"},
		{"zero value", "0", 18, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUnits(tt.raw, tt.decimals))
		})
	}

	// unparseable input falls through untouched, logs must never panic
	assert.Equal(t, "not-a-number", FormatUnits("not-a-number", 18))
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, 1, Min(1, 2))
	assert.Equal(t, 2, Max(1, 2))
	assert.Equal(t, -5, Min(-5, 0))
}
