package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/usdf-signer/internal/aws"
	"github.com/Layr-Labs/usdf-signer/internal/keySource"
	"github.com/Layr-Labs/usdf-signer/internal/keySource/awsKms"
	"github.com/Layr-Labs/usdf-signer/internal/keySource/localKeySource"
	"github.com/Layr-Labs/usdf-signer/pkg/config"
	"github.com/Layr-Labs/usdf-signer/pkg/logger"
	"github.com/Layr-Labs/usdf-signer/pkg/nonce"
	"github.com/Layr-Labs/usdf-signer/pkg/persistence"
	"github.com/Layr-Labs/usdf-signer/pkg/persistence/badger"
	"github.com/Layr-Labs/usdf-signer/pkg/persistence/memory"
	"github.com/Layr-Labs/usdf-signer/pkg/persistence/redis"
	"github.com/Layr-Labs/usdf-signer/pkg/pricefeed"
	"github.com/Layr-Labs/usdf-signer/pkg/pricing"
	"github.com/Layr-Labs/usdf-signer/pkg/server"
	"github.com/Layr-Labs/usdf-signer/pkg/signer"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "usdf-server",
		Usage: "USDF attestation signing server",
		Description: `Issues signed attestations authorizing the redemption of whitelisted tokens for USDF.

Endpoints:
- GET  /health
- GET  /get_whitelist
- GET  /public_key
- POST /get_estimation
- POST /get_signature`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   fmt.Sprintf("YAML configuration file (default %s if present)", config.DefaultConfigFile),
				EnvVars: []string{config.EnvUSDFConfig},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: debug, info, warn, error (default info)",
				EnvVars: []string{config.EnvUSDFLogLevel},
			},
			&cli.BoolFlag{
				Name:    "json-logging",
				Usage:   "Emit JSON logs (default true)",
				EnvVars: []string{config.EnvUSDFJSONLogging},
			},
			&cli.StringFlag{
				Name:    "listen-address",
				Aliases: []string{"l"},
				Usage:   "HTTP listen address (default 0.0.0.0:3000)",
				EnvVars: []string{config.EnvUSDFListenAddress},
			},
			&cli.StringFlag{
				Name:    "persistence",
				Usage:   "Persistence backend: redis, badger, memory (default redis)",
				EnvVars: []string{config.EnvUSDFPersistence},
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL (default redis://localhost:6379)",
				EnvVars: []string{config.EnvUSDFRedisURL},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix prepended to every redis key",
				EnvVars: []string{config.EnvUSDFRedisKeyPrefix},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Usage:   "Data directory for badger persistence",
				EnvVars: []string{config.EnvUSDFBadgerPath},
			},
			&cli.StringFlag{
				Name:    "signing-key",
				Usage:   "Base58 ed25519 keypair used to sign attestations",
				EnvVars: []string{config.EnvUSDFSigningKey},
			},
			&cli.StringFlag{
				Name:    "signing-key-kms-ciphertext",
				Usage:   "Base64 AWS KMS ciphertext of the signing keypair",
				EnvVars: []string{config.EnvUSDFSigningKeyCiphertext},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region for KMS",
				EnvVars: []string{config.EnvUSDFAWSRegion},
			},
			&cli.StringFlag{
				Name:    "price-file",
				Usage:   "YAML file of token quotes",
				EnvVars: []string{config.EnvUSDFPriceFile},
			},
			&cli.DurationFlag{
				Name:    "price-refresh-interval",
				Usage:   "How often to reload prices, 0 loads once",
				EnvVars: []string{config.EnvUSDFPriceRefresh},
			},
			&cli.BoolFlag{
				Name:    "seed-static-prices",
				Usage:   "Load the built-in launch whitelist (default true)",
				EnvVars: []string{config.EnvUSDFSeedStaticPrices},
			},
			&cli.Float64Flag{
				Name:    "signature-rate-limit",
				Usage:   "Sustained /get_signature requests per second, 0 disables",
				EnvVars: []string{config.EnvUSDFSignatureRateLimit},
			},
			&cli.IntFlag{
				Name:    "signature-burst",
				Usage:   "Burst size for /get_signature rate limiting",
				EnvVars: []string{config.EnvUSDFSignatureBurst},
			},
			&cli.StringFlag{
				Name:    "allowed-origin",
				Usage:   "CORS origin allowed to call the API (default http://localhost)",
				EnvVars: []string{config.EnvUSDFAllowedOrigin},
			},
			&cli.DurationFlag{
				Name:    "store-timeout",
				Usage:   "Upper bound on a single nonce write (default 5s)",
				EnvVars: []string{config.EnvUSDFStoreTimeout},
			},
		},
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runServer(c *cli.Context) error {
	cfg, err := parseServerConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{
		Level: cfg.LogLevel,
		JSON:  cfg.JSONLogging,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	l.Sugar().Infow("Server configuration", "config", cfg.String())

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	src, err := newKeySource(ctx, cfg, l)
	if err != nil {
		return err
	}
	keySigner, err := keySource.LoadSigner(ctx, src, l)
	if err != nil {
		return fmt.Errorf("refusing to start: %w", err)
	}

	store, err := newPersistence(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Errorw("Failed to close persistence", "error", err)
		}
	}()
	if err := store.HealthCheck(); err != nil {
		return fmt.Errorf("persistence health check failed: %w", err)
	}

	allocator, err := nonce.NewAllocator(ctx, store, l, nonce.WithWriteTimeout(cfg.StoreTimeout))
	if err != nil {
		return err
	}
	l.Sugar().Infow("Recovered nonce counter", "nonce", allocator.Current())

	engine, err := signer.NewEngine(pricing.NewConverter(store), allocator, keySigner, l)
	if err != nil {
		return err
	}

	var sources []pricefeed.IPriceSource
	if cfg.SeedStaticPrices {
		sources = append(sources, pricefeed.NewSeedSource())
	}
	if cfg.PriceFile != "" {
		sources = append(sources, pricefeed.NewFileSource(cfg.PriceFile, l))
	}
	if len(sources) > 0 {
		feed := pricefeed.NewFeed(store, l, sources...)
		if err := feed.Start(ctx, cfg.PriceRefreshInterval); err != nil {
			return fmt.Errorf("failed to load prices: %w", err)
		}
	} else {
		l.Sugar().Warnw("No price sources configured, serving quotes already in the store")
	}

	srv := server.NewServer(&server.Config{
		ListenAddress:      cfg.ListenAddress,
		AllowedOrigin:      cfg.AllowedOrigin,
		SignatureRateLimit: cfg.SignatureRateLimit,
		SignatureBurst:     cfg.SignatureBurst,
	}, engine, l)
	if err := srv.Start(); err != nil {
		return err
	}

	l.Sugar().Infow("USDF signing server running",
		"address", srv.Addr(),
		"publicKey", engine.PublicKey(),
	)

	<-ctx.Done()
	l.Sugar().Infow("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Sugar().Errorw("Graceful shutdown failed", "error", err)
	}
	return nil
}

func parseServerConfig(c *cli.Context) (*config.ServerConfig, error) {
	path := config.DefaultConfigFile
	required := false
	if c.IsSet("config") {
		path = c.String("config")
		required = true
	}

	cfg, err := config.Load(path, required, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	// flags win over file and environment
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("json-logging") {
		cfg.JSONLogging = c.Bool("json-logging")
	}
	if c.IsSet("listen-address") {
		cfg.ListenAddress = c.String("listen-address")
	}
	if c.IsSet("persistence") {
		cfg.PersistenceType = config.PersistenceType(c.String("persistence"))
	}
	if c.IsSet("redis-url") {
		cfg.RedisURL = c.String("redis-url")
	}
	if c.IsSet("redis-key-prefix") {
		cfg.RedisKeyPrefix = c.String("redis-key-prefix")
	}
	if c.IsSet("badger-path") {
		cfg.BadgerPath = c.String("badger-path")
	}
	if c.IsSet("signing-key") {
		cfg.SigningKey = c.String("signing-key")
	}
	if c.IsSet("signing-key-kms-ciphertext") {
		cfg.SigningKeyKMSCiphertext = c.String("signing-key-kms-ciphertext")
	}
	if c.IsSet("aws-region") {
		cfg.AWSRegion = c.String("aws-region")
	}
	if c.IsSet("price-file") {
		cfg.PriceFile = c.String("price-file")
	}
	if c.IsSet("price-refresh-interval") {
		cfg.PriceRefreshInterval = c.Duration("price-refresh-interval")
	}
	if c.IsSet("seed-static-prices") {
		cfg.SeedStaticPrices = c.Bool("seed-static-prices")
	}
	if c.IsSet("signature-rate-limit") {
		cfg.SignatureRateLimit = c.Float64("signature-rate-limit")
	}
	if c.IsSet("signature-burst") {
		cfg.SignatureBurst = c.Int("signature-burst")
	}
	if c.IsSet("allowed-origin") {
		cfg.AllowedOrigin = c.String("allowed-origin")
	}
	if c.IsSet("store-timeout") {
		cfg.StoreTimeout = c.Duration("store-timeout")
	}
	return cfg, nil
}

func newKeySource(ctx context.Context, cfg *config.ServerConfig, l *zap.Logger) (keySource.ISigningKeySource, error) {
	if cfg.SigningKeyKMSCiphertext == "" {
		return localKeySource.NewLocalKeySource(cfg.SigningKey), nil
	}

	awsCfg, err := aws.LoadAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if identity, err := aws.GetCallerIdentity(ctx, sts.NewFromConfig(awsCfg)); err != nil {
		l.Sugar().Warnw("Failed to resolve AWS caller identity", "error", err)
	} else if identity.Arn != nil {
		l.Sugar().Infow("Using AWS identity", "arn", *identity.Arn, "region", awsCfg.Region)
	}
	return awsKms.NewAWSKMSKeySource(aws.NewKMSClient(awsCfg), cfg.SigningKeyKMSCiphertext, awsCfg.Region, l), nil
}

func newPersistence(cfg *config.ServerConfig, l *zap.Logger) (persistence.IAttestorPersistence, error) {
	switch cfg.PersistenceType {
	case config.PersistenceRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			URL:       cfg.RedisURL,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, l)
	case config.PersistenceBadger:
		return badger.NewBadgerPersistence(cfg.BadgerPath, l)
	case config.PersistenceMemory:
		return memory.NewMemoryPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", cfg.PersistenceType)
	}
}
