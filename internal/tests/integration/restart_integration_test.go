package integration

import (
	"context"
	"math/big"
	"testing"

	"github.com/Layr-Labs/usdf-signer/internal/tests"
	"github.com/Layr-Labs/usdf-signer/pkg/client"
	"github.com/Layr-Labs/usdf-signer/pkg/persistence/badger"
	"github.com/Layr-Labs/usdf-signer/pkg/persistence/memory"
	"github.com/Layr-Labs/usdf-signer/pkg/testutil"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const priceFile = `quotes:
  - token: usmeme.tg
    mantissa: "68420000000000"
    decimals: 8
  - token: dd.tg
    price: "0.008"
    decimals: 17
`

func signOnce(t *testing.T, c *client.Client, user string) *client.Attestation {
	t.Helper()
	req := &types.SigningRequest{UserAddress: user, TokenAddress: "usmeme.tg", Amount: types.NewAmountFromUint64(100)}
	att, err := c.GetSignature(context.Background(), req)
	require.NoError(t, err)

	pub, err := c.GetPublicKey(context.Background())
	require.NoError(t, err)
	require.NoError(t, client.VerifyAttestation(req, att, pub))
	return att
}

func TestNonceSurvivesRestart_Badger(t *testing.T) {
	dir := t.TempDir()
	prices := tests.WritePriceFile(t, dir, priceFile)
	dataPath := dir + "/badger"
	key := testutil.CreateTestSigner(t, 9)

	store, err := badger.NewBadgerPersistence(dataPath, zap.NewNop())
	require.NoError(t, err)
	first := tests.StartStack(t, store, key, prices)

	assert.Equal(t, uint64(1), signOnce(t, first.Client, "alice.near").Nonce)
	assert.Equal(t, uint64(2), signOnce(t, first.Client, "bob.near").Nonce)
	first.Stop()

	reopened, err := badger.NewBadgerPersistence(dataPath, zap.NewNop())
	require.NoError(t, err)
	second := tests.StartStack(t, reopened, key, prices)

	assert.Equal(t, uint64(2), second.Allocator.Current())
	att := signOnce(t, second.Client, "alice.near")
	assert.Equal(t, uint64(3), att.Nonce)
	assert.Equal(t, "20526000", att.UsdfAmount.String())
}

func TestPriceFileFeedsWhitelistAndEstimation(t *testing.T) {
	dir := t.TempDir()
	stack := tests.StartStack(t, memory.NewMemoryPersistence(), testutil.CreateTestSigner(t, 3), tests.WritePriceFile(t, dir, priceFile))
	ctx := context.Background()

	entries, err := stack.Client.GetWhitelist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "dd.tg", entries[0].Token)
	assert.Equal(t, "usmeme.tg", entries[1].Token)

	est, err := stack.Client.GetEstimation(ctx, &types.EstimationRequest{TokenAddress: "dd.tg", Amount: types.NewAmountFromUint64(1000)})
	require.NoError(t, err)
	// 1000 * 800000000000000 * 30 / 100 / 10^17 = 2
	assert.Equal(t, 0, big.NewInt(2).Cmp(est))
}

func TestSeedQuotesWhenNoPriceFile(t *testing.T) {
	stack := tests.StartStack(t, memory.NewMemoryPersistence(), testutil.CreateTestSigner(t, 4), "")

	entries, err := stack.Client.GetWhitelist(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
