package utils

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatWei(t *testing.T) {
	amount, _ := new(big.Int).SetString("1234500000000000000", 10)

	formatted, err := FormatWei(amount, 18)
	require.NoError(t, err)
	assert.Equal(t, "1.2345", formatted)

	formatted, err = FormatWei(big.NewInt(0), 18)
	require.NoError(t, err)
	assert.Equal(t, "0", formatted)

	formatted, err = FormatWei(big.NewInt(42), 0)
	require.NoError(t, err)
	assert.Equal(t, "42", formatted)

	formatted, err = FormatWei(nil, 18)
	require.NoError(t, err)
	assert.Equal(t, "0", formatted)
}

func TestWeiDecimalRoundTrip(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)

	asDecimal := WeiToDecimal(wei, 18)
	assert.True(t, asDecimal.Equal(decimal.RequireFromString("1.5")))

	back := DecimalToWei(asDecimal, 18)
	assert.Equal(t, wei.String(), back.String())
}

func TestDecimalToWeiTruncatesSubWei(t *testing.T) {
	tiny := decimal.RequireFromString("0.0000000000000000005") // half a wei
	assert.Equal(t, "0", DecimalToWei(tiny, 18).String())
}
