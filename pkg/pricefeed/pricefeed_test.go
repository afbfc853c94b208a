package pricefeed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Layr-Labs/usdf-signer/pkg/persistence/memory"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func u8(v uint8) *uint8 { return &v }

type brokenSource struct{}

func (brokenSource) Name() string { return "broken" }
func (brokenSource) Fetch(context.Context) ([]*types.TokenQuote, error) {
	return nil, errors.New("upstream down")
}

func TestSeedSource(t *testing.T) {
	quotes, err := NewSeedSource().Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	byToken := map[string]*types.PriceQuote{}
	for _, q := range quotes {
		byToken[q.Token] = q.Quote
	}
	assert.Equal(t, "68420000000000", byToken["usmeme.tg"].Price)
	assert.Equal(t, "800000000000000", byToken["dd.tg"].Price)
	assert.Equal(t, "7000000000000000000", byToken["poken.sergei24.testnet"].Price)
	for _, q := range byToken {
		assert.Equal(t, SeedDecimals, q.Decimals)
	}

	// Callers cannot mutate the seed
	quotes[0].Quote.Price = "1"
	again, err := NewSeedSource().Fetch(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "1", again[0].Quote.Price)
}

func TestFileEntry_ToQuote(t *testing.T) {
	cases := []struct {
		name     string
		entry    FileEntry
		price    string
		decimals uint8
	}{
		{"human price with explicit decimals", FileEntry{Token: "usmeme.tg", Price: "0.0006842", Decimals: u8(17)}, "68420000000000", 17},
		{"human price infers decimals", FileEntry{Token: "dd.tg", Price: "0.008"}, "8", 3},
		{"whole number", FileEntry{Token: "x", Price: "70"}, "70", 0},
		{"mantissa", FileEntry{Token: "x", Mantissa: "800000000000000", Decimals: u8(17)}, "800000000000000", 17},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := tc.entry.ToQuote()
			require.NoError(t, err)
			assert.Equal(t, tc.price, q.Price)
			assert.Equal(t, tc.decimals, q.Decimals)
		})
	}
}

func TestFileEntry_ToQuote_Invalid(t *testing.T) {
	cases := map[string]FileEntry{
		"no token":            {Price: "1"},
		"neither":             {Token: "x"},
		"both":                {Token: "x", Price: "1", Mantissa: "1"},
		"not a number":        {Token: "x", Price: "cheap"},
		"negative":            {Token: "x", Price: "-0.5"},
		"too precise":         {Token: "x", Price: "0.123", Decimals: u8(2)},
		"fractional mantissa": {Token: "x", Mantissa: "1.5"},
	}
	for name, entry := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := entry.ToQuote()
			assert.Error(t, err)
		})
	}
}

func TestFileSource_SkipsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	body := `
quotes:
  - token: usmeme.tg
    price: "0.0006842"
    decimals: 17
  - token: bad.tg
    price: "n/a"
  - token: dd.tg
    mantissa: "800000000000000"
    decimals: 17
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	src := NewFileSource(path, zap.NewNop())
	quotes, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "usmeme.tg", quotes[0].Token)
	assert.Equal(t, "68420000000000", quotes[0].Quote.Price)
	assert.Equal(t, "dd.tg", quotes[1].Token)
}

func TestFileSource_MissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFeed_SyncOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryPersistence()

	override := NewStaticSource([]*types.TokenQuote{
		{Token: "dd.tg", Quote: &types.PriceQuote{Price: "900000000000000", Decimals: 17}},
		{Token: "junk.tg", Quote: &types.PriceQuote{Price: "-5", Decimals: 1}},
	})
	feed := NewFeed(store, zap.NewNop(), NewSeedSource(), override)

	n, err := feed.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	dd, err := store.GetPriceQuote(ctx, "dd.tg")
	require.NoError(t, err)
	assert.Equal(t, "900000000000000", dd.Price)

	junk, err := store.GetPriceQuote(ctx, "junk.tg")
	require.NoError(t, err)
	assert.Nil(t, junk)
}

func TestFeed_SourceFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryPersistence()
	feed := NewFeed(store, zap.NewNop(), brokenSource{}, NewSeedSource())

	n, err := feed.SyncOnce(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 3, n)

	quotes, err := store.ListPriceQuotes(ctx)
	require.NoError(t, err)
	assert.Len(t, quotes, 3)
}

func TestFeed_StoreFailureAborts(t *testing.T) {
	store := memory.NewMemoryPersistence()
	require.NoError(t, store.Close())

	_, err := NewFeed(store, zap.NewNop(), NewSeedSource()).SyncOnce(context.Background())
	assert.Error(t, err)
}

func TestFeed_RunRefreshesUntilCancelled(t *testing.T) {
	store := memory.NewMemoryPersistence()
	path := filepath.Join(t.TempDir(), "prices.yaml")
	write := func(mantissa string) {
		body := "quotes:\n  - token: dd.tg\n    mantissa: \"" + mantissa + "\"\n    decimals: 17\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write("1")

	feed := NewFeed(store, zap.NewNop(), NewFileSource(path, zap.NewNop()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		q, _ := store.GetPriceQuote(context.Background(), "dd.tg")
		return q != nil && q.Price == "1"
	}, 2*time.Second, 5*time.Millisecond)

	write("2")
	require.Eventually(t, func() bool {
		q, _ := store.GetPriceQuote(context.Background(), "dd.tg")
		return q != nil && q.Price == "2"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFeed_RunSingleSync(t *testing.T) {
	store := memory.NewMemoryPersistence()
	err := NewFeed(store, zap.NewNop(), NewSeedSource()).Run(context.Background(), 0)
	require.NoError(t, err)

	quotes, err := store.ListPriceQuotes(context.Background())
	require.NoError(t, err)
	assert.Len(t, quotes, 3)
}
