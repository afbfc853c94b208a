package persistence

import (
	"testing"

	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalPriceQuote(t *testing.T) {
	data, err := MarshalPriceQuote(&types.PriceQuote{Price: "68420000000000", Decimals: 8})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":"68420000000000","decimals":8}`, string(data))

	_, err = MarshalPriceQuote(nil)
	require.Error(t, err)
}

func TestUnmarshalPriceQuote(t *testing.T) {
	q, err := UnmarshalPriceQuote([]byte(`{"price":"800000000000000","decimals":17}`))
	require.NoError(t, err)
	assert.Equal(t, "800000000000000", q.Price)
	assert.Equal(t, uint8(17), q.Decimals)

	_, err = UnmarshalPriceQuote(nil)
	require.Error(t, err)

	_, err = UnmarshalPriceQuote([]byte(`{"price":"1","decimals":256}`))
	require.Error(t, err)

	// A bare price string, as seeded by older deployments, is not a quote
	_, err = UnmarshalPriceQuote([]byte(`68420000000000`))
	require.Error(t, err)
}

func TestNonceText(t *testing.T) {
	assert.Equal(t, "18446744073709551615", string(FormatNonce(^uint64(0))))

	n, err := ParseNonce([]byte("17"))
	require.NoError(t, err)
	assert.Equal(t, uint64(17), n)

	_, err = ParseNonce(nil)
	require.Error(t, err)
	_, err = ParseNonce([]byte("-1"))
	require.Error(t, err)
}

func TestQuoteKey(t *testing.T) {
	assert.Equal(t, "usdf:quote:dd.tg", QuoteKey("dd.tg"))
	assert.NotEqual(t, KeyLastNonce, QuoteKey("nonce:last"))
}
