package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/usdf-signer/pkg/persistence"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key set for listing operations (Redis doesn't support prefix iteration natively)
const keySetQuotes = "usdf:quotes:index"

// RedisPersistence is a production-ready persistence implementation using Redis.
// Provides durable, distributed storage suitable for cloud-native deployments.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// URL is a redis:// or rediss:// connection string. When set it takes
	// precedence over Address, Password and DB.
	URL string
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups).
	// If set, this prefix is prepended to all keys, e.g., "myapp:" would result in
	// keys like "myapp:usdf:quote:dd.tg". If empty, keys use the default "usdf:" prefix.
	KeyPrefix string
}

func (c *RedisConfig) options() (*redis.Options, error) {
	if c.URL != "" {
		opts, err := redis.ParseURL(c.URL)
		if err != nil {
			// ParseURL errors may echo the password; keep only the scheme-level reason
			return nil, fmt.Errorf("invalid redis url")
		}
		return opts, nil
	}

	if c.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	return &redis.Options{
		Addr:     c.Address,
		Password: c.Password,
		DB:       c.DB,
	}, nil
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, persistence.Unavailable(err, fmt.Sprintf("failed to connect to Redis at %s", opts.Addr))
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	// Initialize schema version
	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.KeyPrefix != "" {
		logger.Sugar().Infow("Redis persistence initialized", "address", opts.Addr, "db", opts.DB, "key_prefix", cfg.KeyPrefix)
	} else {
		logger.Sugar().Infow("Redis persistence initialized", "address", opts.Addr, "db", opts.DB)
	}

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(persistence.KeySchemaVersion)

	// Check if schema version exists
	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		// First time setup - set schema version
		return r.client.Set(ctx, schemaKey, persistence.CurrentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	// Validate existing schema version
	if existingVersion != persistence.CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.CurrentSchemaVersion)
	}

	return nil
}

// GetPriceQuote retrieves the quote for a token
func (r *RedisPersistence) GetPriceQuote(ctx context.Context, token string) (*types.PriceQuote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	data, err := r.client.Get(ctx, r.prefixKey(persistence.QuoteKey(token))).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, persistence.Unavailable(err, "failed to load PriceQuote")
	}

	quote, err := persistence.UnmarshalPriceQuote(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal PriceQuote for %s: %w", token, err)
	}

	return quote, nil
}

// SavePriceQuote persists a quote and indexes its token
func (r *RedisPersistence) SavePriceQuote(ctx context.Context, token string, quote *types.PriceQuote) error {
	if quote == nil {
		return fmt.Errorf("cannot save nil PriceQuote")
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalPriceQuote(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal PriceQuote: %w", err)
	}

	// MULTI/EXEC so the value and its index entry land together
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.prefixKey(persistence.QuoteKey(token)), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetQuotes), token)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.Unavailable(err, "failed to save PriceQuote")
	}

	return nil
}

// ListPriceQuotes returns all quotes sorted by token
func (r *RedisPersistence) ListPriceQuotes(ctx context.Context) ([]*types.TokenQuote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	indexKey := r.prefixKey(keySetQuotes)

	tokens, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, persistence.Unavailable(err, "failed to list quote tokens")
	}

	if len(tokens) == 0 {
		return []*types.TokenQuote{}, nil
	}
	sort.Strings(tokens)

	keys := make([]string, len(tokens))
	for i, token := range tokens {
		keys[i] = r.prefixKey(persistence.QuoteKey(token))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.Unavailable(err, "failed to fetch PriceQuotes")
	}

	quotes := make([]*types.TokenQuote, 0, len(values))
	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, tokens[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for PriceQuote", "key", keys[i])
			continue
		}

		quote, err := persistence.UnmarshalPriceQuote([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal PriceQuote, skipping",
				"key", keys[i], "error", err)
			continue
		}

		quotes = append(quotes, &types.TokenQuote{Token: tokens[i], Quote: quote})
	}

	return quotes, nil
}

// LoadNonce returns the persisted nonce counter
func (r *RedisPersistence) LoadNonce(ctx context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, persistence.ErrClosed
	}

	data, err := r.client.Get(ctx, r.prefixKey(persistence.KeyLastNonce)).Bytes()
	if err == redis.Nil {
		return 0, nil // No nonce issued yet
	}
	if err != nil {
		return 0, persistence.Unavailable(err, "failed to load nonce")
	}

	return persistence.ParseNonce([]byte(strings.TrimSpace(string(data))))
}

// SaveNonce records the nonce counter as decimal text
func (r *RedisPersistence) SaveNonce(ctx context.Context, nonce uint64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	if err := r.client.Set(ctx, r.prefixKey(persistence.KeyLastNonce), persistence.FormatNonce(nonce), 0).Err(); err != nil {
		return persistence.Unavailable(err, "failed to save nonce")
	}

	return nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	// Close Redis client
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Ping Redis to check connectivity
	if err := r.client.Ping(ctx).Err(); err != nil {
		return persistence.Unavailable(err, "redis health check failed")
	}

	// Verify schema version exists
	schemaKey := r.prefixKey(persistence.KeySchemaVersion)
	_, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return persistence.Unavailable(err, "failed to verify schema version")
	}

	return nil
}
