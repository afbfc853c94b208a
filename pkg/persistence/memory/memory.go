package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/usdf-signer/pkg/persistence"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
)

// MemoryPersistence is an in-memory implementation of IAttestorPersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Copies quotes on the way in and out to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Quote storage: token -> PriceQuote
	quotes map[string]*types.PriceQuote

	// Highest nonce ever persisted
	lastNonce uint64

	// Optional fault injection for nonce writes
	nonceWriteHook func(nonce uint64) error

	// Number of successful SaveNonce calls
	nonceWrites int

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since this should only be used for testing.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL QUOTES AND NONCES WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Set USDF_PERSISTENCE_TYPE=redis for production")

	return &MemoryPersistence{
		quotes: make(map[string]*types.PriceQuote),
	}
}

// SetNonceWriteHook installs a hook consulted before each nonce write.
// A non-nil error from the hook fails the write and leaves the stored value untouched.
func (m *MemoryPersistence) SetNonceWriteHook(hook func(nonce uint64) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonceWriteHook = hook
}

// NonceWrites returns how many nonce writes have succeeded.
func (m *MemoryPersistence) NonceWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nonceWrites
}

// GetPriceQuote retrieves the quote for a token.
func (m *MemoryPersistence) GetPriceQuote(_ context.Context, token string) (*types.PriceQuote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	quote, exists := m.quotes[token]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return copyQuote(quote), nil
}

// SavePriceQuote replaces the quote for a token.
func (m *MemoryPersistence) SavePriceQuote(_ context.Context, token string, quote *types.PriceQuote) error {
	if quote == nil {
		return fmt.Errorf("cannot save nil PriceQuote")
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.quotes[token] = copyQuote(quote)
	return nil
}

// ListPriceQuotes returns all quotes sorted by token.
func (m *MemoryPersistence) ListPriceQuotes(_ context.Context) ([]*types.TokenQuote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	tokens := make([]string, 0, len(m.quotes))
	for token := range m.quotes {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	result := make([]*types.TokenQuote, 0, len(tokens))
	for _, token := range tokens {
		result = append(result, &types.TokenQuote{Token: token, Quote: copyQuote(m.quotes[token])})
	}

	return result, nil
}

// LoadNonce returns the persisted nonce counter.
func (m *MemoryPersistence) LoadNonce(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, persistence.ErrClosed
	}

	return m.lastNonce, nil
}

// SaveNonce records the nonce counter.
func (m *MemoryPersistence) SaveNonce(_ context.Context, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	if m.nonceWriteHook != nil {
		if err := m.nonceWriteHook(nonce); err != nil {
			return persistence.Unavailable(err, "failed to save nonce")
		}
	}

	m.lastNonce = nonce
	m.nonceWrites++
	return nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}

	return nil
}

func copyQuote(q *types.PriceQuote) *types.PriceQuote {
	if q == nil {
		return nil
	}
	return &types.PriceQuote{Price: q.Price, Decimals: q.Decimals}
}
