package persistence

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Layr-Labs/usdf-signer/pkg/types"
)

// MarshalPriceQuote serializes a quote to its durable JSON form {price, decimals}.
func MarshalPriceQuote(q *types.PriceQuote) ([]byte, error) {
	if q == nil {
		return nil, fmt.Errorf("cannot marshal nil PriceQuote")
	}

	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal PriceQuote to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalPriceQuote deserializes a quote from JSON bytes.
// The price text is not validated here; the converter owns that check.
func UnmarshalPriceQuote(data []byte) (*types.PriceQuote, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var q types.PriceQuote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to PriceQuote: %w", err)
	}

	return &q, nil
}

// FormatNonce renders the counter as decimal text.
func FormatNonce(nonce uint64) []byte {
	return []byte(strconv.FormatUint(nonce, 10))
}

// ParseNonce reads the decimal text written by FormatNonce.
func ParseNonce(data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("cannot parse empty nonce")
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid persisted nonce %q: %w", string(data), err)
	}
	return n, nil
}
