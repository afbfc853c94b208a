package tests

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Layr-Labs/usdf-signer/pkg/attestationSigner/inMemoryAttestationSigner"
	"github.com/Layr-Labs/usdf-signer/pkg/client"
	"github.com/Layr-Labs/usdf-signer/pkg/nonce"
	"github.com/Layr-Labs/usdf-signer/pkg/persistence"
	"github.com/Layr-Labs/usdf-signer/pkg/pricefeed"
	"github.com/Layr-Labs/usdf-signer/pkg/pricing"
	"github.com/Layr-Labs/usdf-signer/pkg/server"
	"github.com/Layr-Labs/usdf-signer/pkg/signer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Stack is a full signing service served over a loopback HTTP listener.
type Stack struct {
	Store     persistence.IAttestorPersistence
	Allocator *nonce.Allocator
	Client    *client.Client
	URL       string

	cancel context.CancelFunc
	ts     *httptest.Server
}

// WritePriceFile writes a price file in the format read by pricefeed.FileSource.
func WritePriceFile(t *testing.T, dir string, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

// StartStack wires allocator, engine, price feed, and HTTP server over store.
// The feed reads priceFile once; an empty path seeds the built-in quotes.
func StartStack(t *testing.T, store persistence.IAttestorPersistence, key *inMemoryAttestationSigner.InMemoryAttestationSigner, priceFile string) *Stack {
	t.Helper()
	l := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	allocator, err := nonce.NewAllocator(ctx, store, l)
	require.NoError(t, err)

	engine, err := signer.NewEngine(pricing.NewConverter(store), allocator, key, l)
	require.NoError(t, err)

	var source pricefeed.IPriceSource = pricefeed.NewSeedSource()
	if priceFile != "" {
		source = pricefeed.NewFileSource(priceFile, l)
	}
	require.NoError(t, pricefeed.NewFeed(store, l, source).Start(ctx, 0))

	ts := httptest.NewServer(server.NewServer(&server.Config{}, engine, l).Handler())

	c, err := client.NewClient(&client.ClientConfig{BaseURL: ts.URL, Logger: l})
	require.NoError(t, err)

	s := &Stack{Store: store, Allocator: allocator, Client: c, URL: ts.URL, cancel: cancel, ts: ts}
	t.Cleanup(s.Stop)
	return s
}

// Stop shuts the listener down and closes the store. Safe to call twice.
func (s *Stack) Stop() {
	s.cancel()
	s.ts.Close()
	_ = s.Store.Close()
}
