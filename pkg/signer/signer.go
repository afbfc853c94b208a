// Package signer turns signing requests into attestations: price, then nonce, then signature.
package signer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/usdf-signer/pkg/attestationSigner"
	"github.com/Layr-Labs/usdf-signer/pkg/canonical"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrKeyUnavailable = errors.New("signing key unavailable")
	ErrInvalidRequest = errors.New("invalid request")
)

// IAmountConverter prices token amounts in settlement units.
type IAmountConverter interface {
	Convert(ctx context.Context, token string, amount *big.Int) (*big.Int, error)
	Whitelist(ctx context.Context) ([]*types.WhitelistEntry, error)
}

// INonceAllocator issues unique, increasing nonces.
type INonceAllocator interface {
	Next(ctx context.Context) (uint64, error)
}

type Engine struct {
	converter IAmountConverter
	nonces    INonceAllocator
	signer    attestationSigner.IAttestationSigner
	logger    *zap.Logger
}

func NewEngine(
	converter IAmountConverter,
	nonces INonceAllocator,
	signer attestationSigner.IAttestationSigner,
	logger *zap.Logger,
) (*Engine, error) {
	if converter == nil || nonces == nil {
		return nil, errors.New("converter and nonce allocator are required")
	}
	if signer == nil {
		return nil, ErrKeyUnavailable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		converter: converter,
		nonces:    nonces,
		signer:    signer,
		logger:    logger,
	}, nil
}

// SignRequest prices the request, allocates a nonce and signs the canonical digest.
//
// A request that fails pricing never consumes a nonce. Once a nonce is allocated it
// is spent even if signing fails afterwards.
func (e *Engine) SignRequest(ctx context.Context, req *types.SigningRequest) (*types.SignedAttestation, error) {
	if err := validateSigningRequest(req); err != nil {
		return nil, err
	}
	amount := req.Amount.Big()

	settlement, err := e.converter.Convert(ctx, req.TokenAddress, amount)
	if err != nil {
		return nil, err
	}

	nonce, err := e.nonces.Next(ctx)
	if err != nil {
		return nil, err
	}

	digest, err := canonical.Digest(nonce, req.TokenAddress, amount, settlement, req.UserAddress)
	if err != nil {
		e.logger.Sugar().Errorw("Failed to build attestation digest", "nonce", nonce, "error", err)
		return nil, errors.Wrapf(err, "nonce %d", nonce)
	}

	sig, err := e.signer.SignDigest(digest[:])
	if err != nil {
		e.logger.Sugar().Errorw("Failed to sign attestation", "nonce", nonce, "error", err)
		return nil, fmt.Errorf("nonce %d: %w: %w", nonce, ErrKeyUnavailable, err)
	}

	e.logger.Sugar().Infow("Issued attestation",
		"nonce", nonce,
		"token", req.TokenAddress,
		"user", req.UserAddress,
		"amount", amount.String(),
		"usdfAmount", settlement.String(),
	)

	return &types.SignedAttestation{
		Nonce:            nonce,
		SettlementAmount: settlement,
		Signature:        sig,
	}, nil
}

// Estimate returns the settlement amount without allocating a nonce or signing.
func (e *Engine) Estimate(ctx context.Context, req *types.EstimationRequest) (*big.Int, error) {
	if req == nil || req.TokenAddress == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "token_address is required")
	}
	if req.Amount == nil {
		return nil, errors.Wrap(ErrInvalidRequest, "amount is required")
	}
	return e.converter.Convert(ctx, req.TokenAddress, req.Amount.Big())
}

func (e *Engine) Whitelist(ctx context.Context) ([]*types.WhitelistEntry, error) {
	return e.converter.Whitelist(ctx)
}

// PublicKey is the base58 key attestations verify against.
func (e *Engine) PublicKey() string {
	return e.signer.PublicKey()
}

func validateSigningRequest(req *types.SigningRequest) error {
	if req == nil {
		return errors.Wrap(ErrInvalidRequest, "request is nil")
	}
	if req.UserAddress == "" {
		return errors.Wrap(ErrInvalidRequest, "user_address is required")
	}
	if req.TokenAddress == "" {
		return errors.Wrap(ErrInvalidRequest, "token_address is required")
	}
	if req.Amount == nil {
		return errors.Wrap(ErrInvalidRequest, "amount is required")
	}
	return nil
}
