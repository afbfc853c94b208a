package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/usdf-signer/pkg/persistence"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// BadgerPersistence is a persistence implementation using Badger.
// Provides durable, disk-based storage with ACID guarantees for single-host deployments.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled so that a
// returned SaveNonce has been fsynced. A background goroutine runs value log GC.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(persistence.KeySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(persistence.KeySchemaVersion), []byte(persistence.CurrentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != persistence.CurrentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.CurrentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Nonce rewrites churn the value log; 0.5 discard ratio keeps it bounded
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// get copies the value of key out of a read transaction. Returns nil when absent.
func (b *BadgerPersistence) get(key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	return data, err
}

// GetPriceQuote retrieves the quote for a token
func (b *BadgerPersistence) GetPriceQuote(_ context.Context, token string) (*types.PriceQuote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	data, err := b.get(persistence.QuoteKey(token))
	if err != nil {
		return nil, persistence.Unavailable(err, "failed to load PriceQuote")
	}
	if data == nil {
		return nil, nil // Not found is not an error
	}

	quote, err := persistence.UnmarshalPriceQuote(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal PriceQuote for %s: %w", token, err)
	}

	return quote, nil
}

// SavePriceQuote persists a quote
func (b *BadgerPersistence) SavePriceQuote(_ context.Context, token string, quote *types.PriceQuote) error {
	if quote == nil {
		return fmt.Errorf("cannot save nil PriceQuote")
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalPriceQuote(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal PriceQuote: %w", err)
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(persistence.QuoteKey(token)), data)
	})
	if err != nil {
		return persistence.Unavailable(err, "failed to save PriceQuote")
	}

	return nil
}

// ListPriceQuotes returns all quotes. Badger iterates keys in byte order, so
// the result is already sorted by token.
func (b *BadgerPersistence) ListPriceQuotes(_ context.Context) ([]*types.TokenQuote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	quotes := []*types.TokenQuote{}

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(persistence.KeyPrefixQuote)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			quote, err := persistence.UnmarshalPriceQuote(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal PriceQuote, skipping",
					"key", key, "error", err)
				continue
			}

			quotes = append(quotes, &types.TokenQuote{
				Token: strings.TrimPrefix(key, persistence.KeyPrefixQuote),
				Quote: quote,
			})
		}

		return nil
	})

	if err != nil {
		return nil, persistence.Unavailable(err, "failed to list PriceQuotes")
	}

	return quotes, nil
}

// LoadNonce returns the persisted nonce counter
func (b *BadgerPersistence) LoadNonce(_ context.Context) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, persistence.ErrClosed
	}

	data, err := b.get(persistence.KeyLastNonce)
	if err != nil {
		return 0, persistence.Unavailable(err, "failed to load nonce")
	}
	if data == nil {
		return 0, nil // No nonce issued yet
	}

	return persistence.ParseNonce(data)
}

// SaveNonce records the nonce counter as decimal text
func (b *BadgerPersistence) SaveNonce(_ context.Context, nonce uint64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(persistence.KeyLastNonce), persistence.FormatNonce(nonce))
	})
	if err != nil {
		return persistence.Unavailable(err, "failed to save nonce")
	}

	return nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(persistence.KeySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
