// Package nonce issues strictly increasing attestation nonces backed by durable storage.
package nonce

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Layr-Labs/usdf-signer/pkg/persistence"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultWriteTimeout bounds a single durable nonce write.
const DefaultWriteTimeout = 5 * time.Second

var (
	// ErrNonceOverflow means the counter reached MaxUint64; no further attestations can be issued.
	ErrNonceOverflow = errors.New("max nonce overflow")
	// ErrPersistFailed means the candidate nonce could not be recorded. The counter did not move
	// and the allocation may be retried.
	ErrPersistFailed = errors.New("failed to persist nonce")
)

// Allocator hands out nonces. The in-memory counter only advances after the
// new value has been durably written, so the durable value is always >= the
// highest nonce ever returned.
type Allocator struct {
	store        persistence.INonceStore
	logger       *zap.Logger
	writeTimeout time.Duration

	mu      sync.Mutex
	current uint64
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(a *Allocator) {
		if d > 0 {
			a.writeTimeout = d
		}
	}
}

// NewAllocator recovers the counter from the store (absent means zero).
func NewAllocator(ctx context.Context, store persistence.INonceStore, logger *zap.Logger, opts ...Option) (*Allocator, error) {
	if store == nil {
		return nil, errors.New("nonce store cannot be nil")
	}

	current, err := store.LoadNonce(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to recover nonce counter")
	}

	a := &Allocator{
		store:        store,
		logger:       logger,
		writeTimeout: DefaultWriteTimeout,
		current:      current,
	}
	for _, opt := range opts {
		opt(a)
	}

	logger.Sugar().Infow("Nonce allocator initialized", "last_nonce", current)
	return a, nil
}

// Next allocates the next nonce.
//
// The write runs on a context detached from ctx's cancellation so that an
// abandoned request cannot interrupt it halfway; it is bounded by the
// allocator's write timeout instead. ctx values (request ids) are preserved.
func (a *Allocator) Next(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == math.MaxUint64 {
		return 0, ErrNonceOverflow
	}
	candidate := a.current + 1

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.writeTimeout)
	defer cancel()

	if err := a.store.SaveNonce(writeCtx, candidate); err != nil {
		a.logger.Sugar().Warnw("Nonce persistence failed, counter unchanged",
			"candidate", candidate, "error", err)
		return 0, fmt.Errorf("nonce %d: %w: %w", candidate, ErrPersistFailed, err)
	}

	a.current = candidate
	a.logger.Sugar().Debugw("Nonce updated", "nonce", candidate)

	return candidate, nil
}

// Current returns the last nonce handed out (or recovered at startup).
func (a *Allocator) Current() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
