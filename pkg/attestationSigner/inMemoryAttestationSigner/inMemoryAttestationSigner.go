package inMemoryAttestationSigner

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/Layr-Labs/usdf-signer/pkg/attestationSigner"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

type InMemoryAttestationSigner struct {
	logger     *zap.Logger
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// NewFromBase58 loads a base58 encoded 64 byte keypair (seed || public key).
func NewFromBase58(secret string, logger *zap.Logger) (*InMemoryAttestationSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: signing key is empty", attestationSigner.ErrInvalidKeyMaterial)
	}
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		// the decode error can echo input; keep it out of the message
		return nil, fmt.Errorf("%w: signing key is not valid base58", attestationSigner.ErrInvalidKeyMaterial)
	}
	return NewFromKey(key, logger)
}

func NewFromKey(key solana.PrivateKey, logger *zap.Logger) (*InMemoryAttestationSigner, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	owned := make(solana.PrivateKey, len(key))
	copy(owned, key)

	s := &InMemoryAttestationSigner{
		logger:     logger,
		privateKey: owned,
		publicKey:  owned.PublicKey(),
	}
	logger.Sugar().Infow("Loaded attestation signing key", "publicKey", s.publicKey.String())
	return s, nil
}

func validateKey(key solana.PrivateKey) error {
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: expected %d bytes, got %d",
			attestationSigner.ErrInvalidKeyMaterial, ed25519.PrivateKeySize, len(key))
	}
	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], key[ed25519.SeedSize:]) {
		return fmt.Errorf("%w: public key does not match seed", attestationSigner.ErrInvalidKeyMaterial)
	}
	return nil
}

func (s *InMemoryAttestationSigner) SignDigest(digest []byte) ([]byte, error) {
	sig, err := s.privateKey.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig[:], nil
}

func (s *InMemoryAttestationSigner) PublicKey() string {
	return s.publicKey.String()
}

// Verify checks an ed25519 signature against a base58 public key.
func Verify(publicKey string, digest, signature []byte) (bool, error) {
	pub, err := solana.PublicKeyFromBase58(publicKey)
	if err != nil {
		return false, fmt.Errorf("invalid public key: %w", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	var sig solana.Signature
	copy(sig[:], signature)
	return sig.Verify(pub, digest), nil
}

// GenerateKey returns a fresh keypair in the base58 form NewFromBase58 accepts.
func GenerateKey() (secret string, publicKey string, err error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	return key.String(), key.PublicKey().String(), nil
}
