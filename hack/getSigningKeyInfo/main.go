package main

import (
	"context"
	"os"

	"github.com/Layr-Labs/usdf-signer/internal/aws"
	"github.com/Layr-Labs/usdf-signer/internal/keySource"
	"github.com/Layr-Labs/usdf-signer/internal/keySource/awsKms"
	"github.com/Layr-Labs/usdf-signer/pkg/logger"
)

func main() {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	ctx := context.Background()

	ciphertext := os.Getenv("CIPHERTEXT")
	if ciphertext == "" {
		l.Sugar().Fatal("CIPHERTEXT environment variable is not set")
	}

	awsCfg, err := aws.LoadAWSConfig(ctx, os.Getenv("AWS_REGION"))
	if err != nil {
		l.Sugar().Fatalw("failed to load AWS config", "error", err)
	}

	src := awsKms.NewAWSKMSKeySource(aws.NewKMSClient(awsCfg), ciphertext, awsCfg.Region, l)
	signer, err := keySource.LoadSigner(ctx, src, l)
	if err != nil {
		l.Sugar().Fatalw("failed to load signing key", "error", err)
	}

	l.Sugar().Infow("Signing key", "publicKey", signer.PublicKey(), "region", awsCfg.Region)
}
