package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Layr-Labs/usdf-signer/pkg/logger"
	"github.com/Layr-Labs/usdf-signer/pkg/persistence"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ persistence.IAttestorPersistence = (*BadgerPersistence)(nil)

func newTestBadger(t *testing.T, dir string) *BadgerPersistence {
	t.Helper()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(dir, testLogger)
	require.NoError(t, err)
	return bp
}

func TestBadgerPersistence_SaveAndLoadQuote(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()
	ctx := context.Background()

	quote := &types.PriceQuote{Price: "68420000000000", Decimals: 8}
	require.NoError(t, bp.SavePriceQuote(ctx, "usmeme.tg", quote))

	loaded, err := bp.GetPriceQuote(ctx, "usmeme.tg")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, quote, loaded)
}

func TestBadgerPersistence_LoadQuote_NotFound(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	loaded, err := bp.GetPriceQuote(context.Background(), "no-such-token")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBadgerPersistence_SaveQuote_Nil(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	err := bp.SavePriceQuote(context.Background(), "dd.tg", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil PriceQuote")
}

func TestBadgerPersistence_ListQuotes(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()
	ctx := context.Background()

	listed, err := bp.ListPriceQuotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.NoError(t, bp.SavePriceQuote(ctx, "usmeme.tg", &types.PriceQuote{Price: "1", Decimals: 1}))
	require.NoError(t, bp.SavePriceQuote(ctx, "dd.tg", &types.PriceQuote{Price: "2", Decimals: 2}))
	require.NoError(t, bp.SaveNonce(ctx, 3))

	// The nonce key must never show up as a token
	listed, err = bp.ListPriceQuotes(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "dd.tg", listed[0].Token)
	assert.Equal(t, "2", listed[0].Quote.Price)
	assert.Equal(t, "usmeme.tg", listed[1].Token)
}

func TestBadgerPersistence_Nonce(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()
	ctx := context.Background()

	n, err := bp.LoadNonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	require.NoError(t, bp.SaveNonce(ctx, 7))
	require.NoError(t, bp.SaveNonce(ctx, 8))

	n, err = bp.LoadNonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), n)
}

func TestBadgerPersistence_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	bp := newTestBadger(t, dir)
	require.NoError(t, bp.SaveNonce(ctx, 1234))
	require.NoError(t, bp.SavePriceQuote(ctx, "dd.tg", &types.PriceQuote{Price: "800000000000000", Decimals: 17}))
	require.NoError(t, bp.Close())

	reopened := newTestBadger(t, dir)
	defer func() { _ = reopened.Close() }()

	n, err := reopened.LoadNonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), n)

	quote, err := reopened.GetPriceQuote(ctx, "dd.tg")
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, uint8(17), quote.Decimals)
}

func TestBadgerPersistence_Close(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, bp.Close())
	require.NoError(t, bp.Close())

	err := bp.SaveNonce(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, persistence.ErrStoreUnavailable))

	_, err = bp.LoadNonce(ctx)
	require.Error(t, err)

	_, err = bp.ListPriceQuotes(ctx)
	require.Error(t, err)

	err = bp.HealthCheck()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestBadgerPersistence_HealthCheck(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	require.NoError(t, bp.HealthCheck())
}

func TestBadgerPersistence_ThreadSafety(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				token := fmt.Sprintf("token-%02d-%02d", id, j)
				assert.NoError(t, bp.SavePriceQuote(ctx, token, &types.PriceQuote{Price: "1"}))
				_, err := bp.GetPriceQuote(ctx, token)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	listed, err := bp.ListPriceQuotes(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 200)
}
