package persistence

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/pkg/errors"
)

// ErrStoreUnavailable marks failures of the durable store itself (I/O, connectivity, closed store).
// Callers may retry operations that fail with it.
var ErrStoreUnavailable = errors.New("durable store unavailable")

// Durable key layout shared by all backends.
const (
	KeyPrefixQuote       = "usdf:quote:"
	KeyLastNonce         = "usdf:nonce:last"
	KeySchemaVersion     = "usdf:metadata:schema_version"
	CurrentSchemaVersion = "v1"
)

// QuoteKey returns the durable key of a token's quote.
// The prefix keeps quote keys disjoint from the reserved nonce key.
func QuoteKey(token string) string {
	return KeyPrefixQuote + token
}

// IPriceQuoteStore maps token identifiers to price quotes.
type IPriceQuoteStore interface {
	// GetPriceQuote returns the quote for a token.
	// Returns nil if the token is unknown, error only on storage failure.
	GetPriceQuote(ctx context.Context, token string) (*types.PriceQuote, error)

	// SavePriceQuote replaces the quote for a token. Writes are atomic.
	SavePriceQuote(ctx context.Context, token string, quote *types.PriceQuote) error

	// ListPriceQuotes returns every known quote sorted by token.
	// Returns empty slice if none exist, error only on storage failure.
	ListPriceQuotes(ctx context.Context) ([]*types.TokenQuote, error)
}

// INonceStore holds the highest nonce ever issued.
type INonceStore interface {
	// LoadNonce returns the persisted counter, 0 if it was never written.
	LoadNonce(ctx context.Context) (uint64, error)

	// SaveNonce durably records the counter. The value must be readable by LoadNonce
	// once SaveNonce returns nil.
	SaveNonce(ctx context.Context, nonce uint64) error
}

// IAttestorPersistence is the full durable state of the signing service.
// All implementations must be thread-safe.
type IAttestorPersistence interface {
	IPriceQuoteStore
	INonceStore

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return errors wrapping ErrStoreUnavailable.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	HealthCheck() error
}

// Unavailable tags a backend failure so that errors.Is(err, ErrStoreUnavailable) holds
// while keeping the backend error in the chain.
func Unavailable(err error, op string) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = fmt.Errorf("%w: persistence layer is closed", ErrStoreUnavailable)
