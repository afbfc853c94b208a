package aws

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pkg/errors"
)

// KMSDecryptAPI is the subset of the KMS client used to unwrap secrets.
type KMSDecryptAPI interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSEncryptAPI is the subset of the KMS client used to wrap secrets.
type KMSEncryptAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
}

// STSIdentityAPI is the subset of the STS client used for startup logging.
type STSIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

func LoadAWSConfig(ctx context.Context, regionOverride string) (aws.Config, error) {
	var options []func(*config.LoadOptions) error

	// Only use profile if we're not in a K8s environment
	if !isInKubernetes() {
		options = append(options, config.WithSharedConfigProfile(getProfile()))
	}

	if regionOverride != "" {
		options = append(options, config.WithRegion(regionOverride))
	}

	return config.LoadDefaultConfig(ctx, options...)
}

// Simple check to see if we're running in K8s
func isInKubernetes() bool {
	_, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token")
	return err == nil
}

func getProfile() string {
	if profile := os.Getenv("AWS_PROFILE"); profile != "" {
		return profile
	}
	return "default"
}

func NewKMSClient(cfg aws.Config) *kms.Client {
	return kms.NewFromConfig(cfg)
}

func GetCallerIdentity(ctx context.Context, client STSIdentityAPI) (*sts.GetCallerIdentityOutput, error) {
	return client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
}

// DecryptSecret unwraps a base64 encoded KMS ciphertext. The key id is embedded in
// symmetric ciphertext blobs so none is passed.
func DecryptSecret(ctx context.Context, client KMSDecryptAPI, ciphertextB64 string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertextB64))
	if err != nil {
		return "", errors.Wrap(err, "ciphertext is not valid base64")
	}
	if len(blob) == 0 {
		return "", errors.New("ciphertext is empty")
	}

	out, err := client.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return "", errors.Wrap(err, "kms decrypt failed")
	}
	if len(out.Plaintext) == 0 {
		return "", errors.New("kms returned an empty plaintext")
	}
	return strings.TrimSpace(string(out.Plaintext)), nil
}

// EncryptSecret wraps plaintext under keyID and returns the base64 ciphertext DecryptSecret accepts.
func EncryptSecret(ctx context.Context, client KMSEncryptAPI, keyID string, plaintext string) (string, error) {
	if keyID == "" {
		return "", errors.New("key id is required")
	}
	if plaintext == "" {
		return "", errors.New("plaintext is empty")
	}
	out, err := client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(keyID),
		Plaintext: []byte(plaintext),
	})
	if err != nil {
		return "", errors.Wrapf(err, "kms encrypt with key %s failed", keyID)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}
