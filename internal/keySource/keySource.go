package keySource

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/usdf-signer/pkg/attestationSigner/inMemoryAttestationSigner"
	"github.com/Layr-Labs/usdf-signer/pkg/signer"
	"go.uber.org/zap"
)

// ISigningKeySource yields the base58 signing keypair the service signs with.
type ISigningKeySource interface {
	Name() string
	LoadSigningKey(ctx context.Context) (string, error)
}

// LoadSigner resolves the key from src and builds an in-memory signer.
// Every failure wraps signer.ErrKeyUnavailable.
func LoadSigner(ctx context.Context, src ISigningKeySource, logger *zap.Logger) (*inMemoryAttestationSigner.InMemoryAttestationSigner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if src == nil {
		return nil, fmt.Errorf("%w: no key source configured", signer.ErrKeyUnavailable)
	}
	secret, err := src.LoadSigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s: %w", signer.ErrKeyUnavailable, src.Name(), err)
	}
	s, err := inMemoryAttestationSigner.NewFromBase58(secret, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s: %w", signer.ErrKeyUnavailable, src.Name(), err)
	}
	logger.Sugar().Infow("Signing key loaded", "source", src.Name())
	return s, nil
}
