package testutil

import (
	"context"
	"testing"

	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTestSigner_Deterministic(t *testing.T) {
	a := CreateTestSigner(t, 7)
	b := CreateTestSigner(t, 7)
	c := CreateTestSigner(t, 8)
	assert.Equal(t, a.PublicKey(), b.PublicKey())
	assert.NotEqual(t, a.PublicKey(), c.PublicKey())
}

func TestCreateTestEngine(t *testing.T) {
	env := CreateTestEngine(t, 1, map[string]*types.PriceQuote{
		"usmeme.tg": {Price: "68420000000000", Decimals: 8},
	})
	assert.Equal(t, env.Signer.PublicKey(), env.Engine.PublicKey())

	quote, err := env.Store.GetPriceQuote(context.Background(), "usmeme.tg")
	require.NoError(t, err)
	assert.Equal(t, uint8(8), quote.Decimals)
}
