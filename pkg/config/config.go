package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Layr-Labs/usdf-signer/pkg/logger"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for server configuration
const (
	EnvUSDFConfig               = "USDF_CONFIG"
	EnvUSDFLogLevel             = "USDF_LOG_LEVEL"
	EnvUSDFJSONLogging          = "USDF_JSON_LOGGING"
	EnvUSDFListenAddress        = "USDF_LISTEN_ADDRESS"
	EnvUSDFPersistence          = "USDF_PERSISTENCE"
	EnvUSDFRedisURL             = "USDF_REDIS_URL"
	EnvUSDFRedisKeyPrefix       = "USDF_REDIS_KEY_PREFIX"
	EnvUSDFBadgerPath           = "USDF_BADGER_PATH"
	EnvUSDFSigningKey           = "USDF_SIGNING_KEY"
	EnvUSDFSigningKeyCiphertext = "USDF_SIGNING_KEY_KMS_CIPHERTEXT"
	EnvUSDFAWSRegion            = "USDF_AWS_REGION"
	EnvUSDFPriceFile            = "USDF_PRICE_FILE"
	EnvUSDFPriceRefresh         = "USDF_PRICE_REFRESH_INTERVAL"
	EnvUSDFSeedStaticPrices     = "USDF_SEED_STATIC_PRICES"
	EnvUSDFSignatureRateLimit   = "USDF_SIGNATURE_RATE_LIMIT"
	EnvUSDFSignatureBurst       = "USDF_SIGNATURE_BURST"
	EnvUSDFAllowedOrigin        = "USDF_ALLOWED_ORIGIN"
	EnvUSDFStoreTimeout         = "USDF_STORE_TIMEOUT"
)

const DefaultConfigFile = "configuration.yaml"

type PersistenceType string

const (
	PersistenceRedis  PersistenceType = "redis"
	PersistenceBadger PersistenceType = "badger"
	PersistenceMemory PersistenceType = "memory"
)

func (p PersistenceType) String() string {
	return string(p)
}

const redacted = "[REDACTED]"

// ServerConfig represents the complete configuration for the signing server
type ServerConfig struct {
	// Logging
	LogLevel    string `json:"log_level" yaml:"log_level"`
	JSONLogging bool   `json:"is_json_logging" yaml:"is_json_logging"`

	// HTTP surface
	ListenAddress      string  `json:"listener" yaml:"listener"`
	AllowedOrigin      string  `json:"allowed_origin" yaml:"allowed_origin"`
	SignatureRateLimit float64 `json:"signature_rate_limit" yaml:"signature_rate_limit"` // requests per second, 0 disables
	SignatureBurst     int     `json:"signature_burst" yaml:"signature_burst"`

	// Storage
	PersistenceType PersistenceType `json:"persistence" yaml:"persistence"`
	RedisURL        string          `json:"redis_uri" yaml:"redis_uri"`
	RedisKeyPrefix  string          `json:"redis_key_prefix" yaml:"redis_key_prefix"`
	BadgerPath      string          `json:"badger_path" yaml:"badger_path"`
	StoreTimeout    time.Duration   `json:"store_timeout" yaml:"store_timeout"` // bound on a single nonce write

	// Signing key, exactly one source
	SigningKey              string `json:"signing_key" yaml:"signing_key"`                               // base58 ed25519 keypair
	SigningKeyKMSCiphertext string `json:"signing_key_kms_ciphertext" yaml:"signing_key_kms_ciphertext"` // base64 KMS ciphertext of the base58 keypair
	AWSRegion               string `json:"aws_region" yaml:"aws_region"`

	// Prices
	PriceFile            string        `json:"price_file" yaml:"price_file"`
	PriceRefreshInterval time.Duration `json:"price_refresh_interval" yaml:"price_refresh_interval"`
	SeedStaticPrices     bool          `json:"seed_static_prices" yaml:"seed_static_prices"`
}

// DefaultServerConfig returns the built-in defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		LogLevel:           "info",
		JSONLogging:        true,
		ListenAddress:      "0.0.0.0:3000",
		AllowedOrigin:      "http://localhost",
		SignatureRateLimit: 0,
		SignatureBurst:     1,
		PersistenceType:    PersistenceRedis,
		RedisURL:           "redis://localhost:6379",
		StoreTimeout:       5 * time.Second,
		SeedStaticPrices:   true,
	}
}

// Load builds a config from defaults, the YAML file at path and USDF_* environment variables,
// in increasing order of precedence. A missing file is only an error when required is set.
func Load(path string, required bool, lookupEnv func(string) (string, bool)) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	if path != "" {
		if err := cfg.LoadFile(path, required); err != nil {
			return nil, err
		}
	}
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays values from a YAML file onto c.
func (c *ServerConfig) LoadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

// ApplyEnv overlays USDF_* environment variables onto c.
func (c *ServerConfig) ApplyEnv(lookupEnv func(string) (string, bool)) error {
	var allErrors field.ErrorList

	str := func(key string, dst *string) {
		if v, ok := lookupEnv(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				allErrors = append(allErrors, field.Invalid(field.NewPath(key), v, "must be a boolean"))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				allErrors = append(allErrors, field.Invalid(field.NewPath(key), v, "must be a duration such as 30s"))
				return
			}
			*dst = d
		}
	}

	str(EnvUSDFLogLevel, &c.LogLevel)
	boolean(EnvUSDFJSONLogging, &c.JSONLogging)
	str(EnvUSDFListenAddress, &c.ListenAddress)
	str(EnvUSDFAllowedOrigin, &c.AllowedOrigin)
	if v, ok := lookupEnv(EnvUSDFPersistence); ok {
		c.PersistenceType = PersistenceType(v)
	}
	str(EnvUSDFRedisURL, &c.RedisURL)
	str(EnvUSDFRedisKeyPrefix, &c.RedisKeyPrefix)
	str(EnvUSDFBadgerPath, &c.BadgerPath)
	duration(EnvUSDFStoreTimeout, &c.StoreTimeout)
	str(EnvUSDFSigningKey, &c.SigningKey)
	str(EnvUSDFSigningKeyCiphertext, &c.SigningKeyKMSCiphertext)
	str(EnvUSDFAWSRegion, &c.AWSRegion)
	str(EnvUSDFPriceFile, &c.PriceFile)
	duration(EnvUSDFPriceRefresh, &c.PriceRefreshInterval)
	boolean(EnvUSDFSeedStaticPrices, &c.SeedStaticPrices)

	if v, ok := lookupEnv(EnvUSDFSignatureRateLimit); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvUSDFSignatureRateLimit), v, "must be a number"))
		} else {
			c.SignatureRateLimit = f
		}
	}
	if v, ok := lookupEnv(EnvUSDFSignatureBurst); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvUSDFSignatureBurst), v, "must be an integer"))
		} else {
			c.SignatureBurst = n
		}
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	var allErrors field.ErrorList

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("log_level"), c.LogLevel,
			[]string{"debug", "info", "warn", "error"}))
	}

	if _, port, err := net.SplitHostPort(c.ListenAddress); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("listener"), c.ListenAddress, "must be host:port"))
	} else if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("listener"), c.ListenAddress, "port must be between 0-65535"))
	}

	switch c.PersistenceType {
	case PersistenceRedis:
		if c.RedisURL == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redis_uri"), "redis_uri is required for redis persistence"))
		}
	case PersistenceBadger:
		if c.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("badger_path"), "badger_path is required for badger persistence"))
		}
	case PersistenceMemory:
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("persistence"), c.PersistenceType.String(),
			[]string{PersistenceRedis.String(), PersistenceBadger.String(), PersistenceMemory.String()}))
	}

	if c.StoreTimeout <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("store_timeout"), c.StoreTimeout.String(), "must be positive"))
	}
	if c.PriceRefreshInterval < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("price_refresh_interval"), c.PriceRefreshInterval.String(), "must not be negative"))
	}
	if c.SignatureRateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("signature_rate_limit"), c.SignatureRateLimit, "must not be negative"))
	}
	if c.SignatureRateLimit > 0 && c.SignatureBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("signature_burst"), c.SignatureBurst, "must be at least 1 when rate limiting"))
	}

	hasKey := c.SigningKey != ""
	hasCiphertext := c.SigningKeyKMSCiphertext != ""
	switch {
	case !hasKey && !hasCiphertext:
		allErrors = append(allErrors, field.Required(field.NewPath("signing_key"), "one of signing_key or signing_key_kms_ciphertext is required"))
	case hasKey && hasCiphertext:
		allErrors = append(allErrors, field.Forbidden(field.NewPath("signing_key_kms_ciphertext"), "cannot be combined with signing_key"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// String renders the config for logs with secrets removed.
func (c *ServerConfig) String() string {
	cp := *c
	if cp.SigningKey != "" {
		cp.SigningKey = redacted
	}
	if cp.SigningKeyKMSCiphertext != "" {
		cp.SigningKeyKMSCiphertext = redacted
	}
	cp.RedisURL = redactURL(cp.RedisURL)

	var b strings.Builder
	fmt.Fprintf(&b, "log_level=%s is_json_logging=%t listener=%s allowed_origin=%s ",
		cp.LogLevel, cp.JSONLogging, cp.ListenAddress, cp.AllowedOrigin)
	fmt.Fprintf(&b, "persistence=%s redis_uri=%s redis_key_prefix=%s badger_path=%s store_timeout=%s ",
		cp.PersistenceType, cp.RedisURL, cp.RedisKeyPrefix, cp.BadgerPath, cp.StoreTimeout)
	fmt.Fprintf(&b, "signing_key=%s signing_key_kms_ciphertext=%s aws_region=%s ",
		cp.SigningKey, cp.SigningKeyKMSCiphertext, cp.AWSRegion)
	fmt.Fprintf(&b, "price_file=%s price_refresh_interval=%s seed_static_prices=%t signature_rate_limit=%g signature_burst=%d",
		cp.PriceFile, cp.PriceRefreshInterval, cp.SeedStaticPrices, cp.SignatureRateLimit, cp.SignatureBurst)
	return b.String()
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}
