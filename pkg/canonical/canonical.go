// Package canonical builds the byte sequence an attestation signature commits to.
//
// The message is an RLP list of five byte strings:
//
//	[nonce (8 bytes BE), token (utf-8), amount (16 bytes BE), settlement (16 bytes BE), user (utf-8)]
//
// and the digest is SHA-256 over that encoding. Verifiers on chain rebuild the same list, so the
// layout must never change.
package canonical

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

const (
	// NonceWidth is the fixed byte width of the encoded nonce.
	NonceWidth = 8
	// AmountWidth is the fixed byte width of the encoded amounts.
	AmountWidth = 16
)

// ErrAmountTooLarge means an amount is negative or wider than AmountWidth bytes.
var ErrAmountTooLarge = errors.New("amount does not fit in 128 bits")

// Encode returns the RLP encoding of the attestation fields.
func Encode(nonce uint64, token string, amount, settlement *big.Int, user string) ([]byte, error) {
	amountBytes, err := fixedWidth(amount, "amount")
	if err != nil {
		return nil, err
	}
	settlementBytes, err := fixedWidth(settlement, "settlement amount")
	if err != nil {
		return nil, err
	}

	nonceBytes := make([]byte, NonceWidth)
	binary.BigEndian.PutUint64(nonceBytes, nonce)

	fields := [][]byte{
		nonceBytes,
		[]byte(token),
		amountBytes,
		settlementBytes,
		[]byte(user),
	}
	encoded, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to rlp encode attestation")
	}
	return encoded, nil
}

// Digest is SHA-256 over Encode.
func Digest(nonce uint64, token string, amount, settlement *big.Int, user string) ([32]byte, error) {
	encoded, err := Encode(nonce, token, amount, settlement, user)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(encoded), nil
}

func fixedWidth(v *big.Int, name string) ([]byte, error) {
	if v == nil {
		return nil, errors.Wrapf(ErrAmountTooLarge, "%s is nil", name)
	}
	if v.Sign() < 0 || v.BitLen() > AmountWidth*8 {
		return nil, errors.Wrapf(ErrAmountTooLarge, "%s %s", name, v.String())
	}
	return math.PaddedBigBytes(v, AmountWidth), nil
}
