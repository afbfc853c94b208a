package attestationSigner

import (
	"github.com/pkg/errors"
)

var ErrInvalidKeyMaterial = errors.New("invalid signing key material")

// IAttestationSigner signs attestation digests with the service key.
type IAttestationSigner interface {
	// SignDigest returns a 64 byte ed25519 signature over digest.
	SignDigest(digest []byte) ([]byte, error)
	// PublicKey is the base58 verifying key.
	PublicKey() string
}
