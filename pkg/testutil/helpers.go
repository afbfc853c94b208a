package testutil

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/Layr-Labs/usdf-signer/pkg/attestationSigner/inMemoryAttestationSigner"
	"github.com/Layr-Labs/usdf-signer/pkg/nonce"
	"github.com/Layr-Labs/usdf-signer/pkg/persistence/memory"
	"github.com/Layr-Labs/usdf-signer/pkg/pricing"
	"github.com/Layr-Labs/usdf-signer/pkg/signer"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestEngine bundles a signing engine with the in-memory store behind it.
type TestEngine struct {
	Store  *memory.MemoryPersistence
	Signer *inMemoryAttestationSigner.InMemoryAttestationSigner
	Engine *signer.Engine
}

// CreateTestSigner returns a signer whose key is derived from a seed with seedByte in its last position.
func CreateTestSigner(t *testing.T, seedByte byte) *inMemoryAttestationSigner.InMemoryAttestationSigner {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	seed[ed25519.SeedSize-1] = seedByte
	s, err := inMemoryAttestationSigner.NewFromKey(solana.PrivateKey(ed25519.NewKeyFromSeed(seed)), zap.NewNop())
	require.NoError(t, err)
	return s
}

// CreateTestEngine wires an engine over a fresh memory store preloaded with quotes.
func CreateTestEngine(t *testing.T, seedByte byte, quotes map[string]*types.PriceQuote) *TestEngine {
	t.Helper()
	ctx := context.Background()

	store := memory.NewMemoryPersistence()
	for token, quote := range quotes {
		require.NoError(t, store.SavePriceQuote(ctx, token, quote))
	}

	allocator, err := nonce.NewAllocator(ctx, store, zap.NewNop())
	require.NoError(t, err)

	s := CreateTestSigner(t, seedByte)
	engine, err := signer.NewEngine(pricing.NewConverter(store), allocator, s, zap.NewNop())
	require.NoError(t, err)

	return &TestEngine{Store: store, Signer: s, Engine: engine}
}
