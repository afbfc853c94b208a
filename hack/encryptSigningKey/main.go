package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Layr-Labs/usdf-signer/internal/aws"
	"github.com/Layr-Labs/usdf-signer/pkg/attestationSigner/inMemoryAttestationSigner"
	"github.com/Layr-Labs/usdf-signer/pkg/logger"
)

// Wraps a signing key under a KMS key and prints the value for USDF_SIGNING_KEY_KMS_CIPHERTEXT.
// A fresh key is generated when SIGNING_KEY is unset.
func main() {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	ctx := context.Background()

	keyId := os.Getenv("KEY_ID")
	if keyId == "" {
		l.Sugar().Fatal("KEY_ID environment variable is not set")
	}

	awsCfg, err := aws.LoadAWSConfig(ctx, os.Getenv("AWS_REGION"))
	if err != nil {
		l.Sugar().Fatalw("failed to load AWS config", "error", err)
	}

	secret := os.Getenv("SIGNING_KEY")
	if secret == "" {
		secret, _, err = inMemoryAttestationSigner.GenerateKey()
		if err != nil {
			l.Sugar().Fatalw("failed to generate signing key", "error", err)
		}
	}
	signer, err := inMemoryAttestationSigner.NewFromBase58(secret, l)
	if err != nil {
		l.Sugar().Fatalw("invalid signing key", "error", err)
	}

	ciphertext, err := aws.EncryptSecret(ctx, aws.NewKMSClient(awsCfg), keyId, secret)
	if err != nil {
		l.Sugar().Fatalw("failed to encrypt signing key", "error", err)
	}

	l.Sugar().Infow("Encrypted signing key", "keyId", keyId, "publicKey", signer.PublicKey())
	fmt.Println(ciphertext)
}
