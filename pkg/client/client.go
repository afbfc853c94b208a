package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Layr-Labs/usdf-signer/pkg/attestationSigner/inMemoryAttestationSigner"
	"github.com/Layr-Labs/usdf-signer/pkg/canonical"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// ClientConfig holds the configuration for the signing service client
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to a signing server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d %s: %s (request %s)", e.StatusCode, e.Code, e.Message, e.RequestID)
}

// Attestation is a decoded /get_signature response.
type Attestation struct {
	Nonce      uint64
	UsdfAmount *big.Int
	Signature  []byte
}

func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func (c *Client) GetWhitelist(ctx context.Context) ([]*types.WhitelistEntry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/get_whitelist", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var entries []*types.WhitelistEntry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "failed to decode whitelist")
	}
	return entries, nil
}

func (c *Client) GetEstimation(ctx context.Context, req *types.EstimationRequest) (*big.Int, error) {
	resp, err := c.do(ctx, http.MethodPost, "/get_estimation", req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read estimation")
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(string(body)), 10)
	if !ok {
		return nil, errors.Errorf("invalid estimation %q", string(body))
	}
	return amount, nil
}

func (c *Client) GetSignature(ctx context.Context, req *types.SigningRequest) (*Attestation, error) {
	resp, err := c.do(ctx, http.MethodPost, "/get_signature", req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var sr types.SignatureResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&sr); err != nil {
		return nil, errors.Wrap(err, "failed to decode signature response")
	}

	nonce, err := strconv.ParseUint(sr.Nonce, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid nonce %q", sr.Nonce)
	}
	amount, ok := new(big.Int).SetString(sr.UsdfAmount, 10)
	if !ok {
		return nil, errors.Errorf("invalid usdf_amount %q", sr.UsdfAmount)
	}
	sig, err := hex.DecodeString(sr.Signature)
	if err != nil {
		return nil, errors.Wrap(err, "invalid signature encoding")
	}

	c.logger.Sugar().Debugw("Received attestation", "nonce", nonce, "usdfAmount", amount.String())
	return &Attestation{Nonce: nonce, UsdfAmount: amount, Signature: sig}, nil
}

func (c *Client) GetPublicKey(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/public_key", nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var pk types.PublicKeyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&pk); err != nil {
		return "", errors.Wrap(err, "failed to decode public key")
	}
	return pk.PublicKey, nil
}

// VerifyAttestation rebuilds the signed digest locally and checks the signature against publicKey.
func VerifyAttestation(req *types.SigningRequest, att *Attestation, publicKey string) error {
	if req == nil || att == nil || req.Amount == nil {
		return errors.New("request and attestation are required")
	}
	digest, err := canonical.Digest(att.Nonce, req.TokenAddress, req.Amount.Big(), att.UsdfAmount, req.UserAddress)
	if err != nil {
		return errors.Wrap(err, "failed to rebuild digest")
	}
	ok, err := inMemoryAttestationSigner.Verify(publicKey, digest[:], att.Signature)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("signature does not match attestation")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var er types.ErrorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error.Code != "" {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
		apiErr.RequestID = er.RequestID
	}
	c.logger.Sugar().Debugw("Server returned error", "path", path, "status", resp.StatusCode, "code", apiErr.Code)
	return nil, apiErr
}
