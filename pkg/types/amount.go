package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

// ErrAmountOutOfRange is returned when a value is negative, fractional or does not fit in 128 bits.
var ErrAmountOutOfRange = errors.New("amount out of uint128 range")

// MaxUint128 is 2^128 - 1.
var MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// FitsUint128 reports whether v is in [0, 2^128).
func FitsUint128(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 128
}

// Amount is an unsigned 128-bit integer.
// JSON accepts either a bare number or a base-10 string and always emits a bare number.
type Amount struct {
	value *big.Int
}

// NewAmount validates v and wraps a copy of it.
func NewAmount(v *big.Int) (*Amount, error) {
	if !FitsUint128(v) {
		return nil, ErrAmountOutOfRange
	}
	return &Amount{value: new(big.Int).Set(v)}, nil
}

// NewAmountFromUint64 wraps a uint64, which always fits.
func NewAmountFromUint64(v uint64) *Amount {
	return &Amount{value: new(big.Int).SetUint64(v)}
}

// ParseAmount parses a base-10 unsigned integer. Sign prefixes are rejected.
func ParseAmount(s string) (*Amount, error) {
	if s == "" || s[0] < '0' || s[0] > '9' {
		return nil, errors.Wrapf(ErrAmountOutOfRange, "invalid integer %q", s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Wrapf(ErrAmountOutOfRange, "invalid integer %q", s)
	}
	return NewAmount(v)
}

// Big returns a copy of the underlying value.
func (a *Amount) Big() *big.Int {
	if a == nil || a.value == nil {
		return nil
	}
	return new(big.Int).Set(a.value)
}

func (a *Amount) String() string {
	if a == nil || a.value == nil {
		return "<nil>"
	}
	return a.value.String()
}

func (a *Amount) MarshalJSON() ([]byte, error) {
	if a == nil || a.value == nil {
		return []byte("null"), nil
	}
	return []byte(a.value.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
	}

	parsed, err := ParseAmount(text)
	if err != nil {
		return err
	}
	a.value = parsed.value
	return nil
}
