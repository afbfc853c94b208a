package awsKms

import (
	"context"

	"github.com/Layr-Labs/usdf-signer/internal/aws"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// AWSKMSKeySource decrypts a KMS wrapped signing key at startup.
type AWSKMSKeySource struct {
	logger     *zap.Logger
	kmsClient  aws.KMSDecryptAPI
	ciphertext string
	awsRegion  string
}

func NewAWSKMSKeySource(kmsClient aws.KMSDecryptAPI, ciphertext string, awsRegion string, logger *zap.Logger) *AWSKMSKeySource {
	return &AWSKMSKeySource{
		logger:     logger,
		kmsClient:  kmsClient,
		ciphertext: ciphertext,
		awsRegion:  awsRegion,
	}
}

func (a *AWSKMSKeySource) Name() string {
	return "aws-kms"
}

func (a *AWSKMSKeySource) LoadSigningKey(ctx context.Context) (string, error) {
	a.logger.Sugar().Infow("Decrypting signing key with AWS KMS", "region", a.awsRegion)

	secret, err := aws.DecryptSecret(ctx, a.kmsClient, a.ciphertext)
	if err != nil {
		return "", errors.Wrapf(err, "failed to decrypt signing key in region %s", a.awsRegion)
	}
	return secret, nil
}
