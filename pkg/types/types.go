package types

import (
	"math/big"
)

// PriceQuote is a token price expressed as an integer mantissa and a decimal exponent.
// The settlement value of one whole token unit is Price / 10^Decimals.
// Quotes are immutable once written and are replaced wholesale on update.
type PriceQuote struct {
	Price    string `json:"price"`    // Arbitrary-precision unsigned integer, base 10
	Decimals uint8  `json:"decimals"` // Decimal exponent applied to Price
}

// PriceInt parses Price as an unsigned base-10 integer.
// Returns false if the text is not a valid non-negative integer.
func (q *PriceQuote) PriceInt() (*big.Int, bool) {
	if q == nil || q.Price == "" {
		return nil, false
	}
	price, ok := new(big.Int).SetString(q.Price, 10)
	if !ok || price.Sign() < 0 {
		return nil, false
	}
	return price, true
}

// TokenQuote pairs a token identifier with its current quote.
type TokenQuote struct {
	Token string      `json:"token"`
	Quote *PriceQuote `json:"quote"`
}

// SigningRequest is constructed per call and never persisted.
type SigningRequest struct {
	UserAddress  string  `json:"user_address"`
	TokenAddress string  `json:"token_address"`
	Amount       *Amount `json:"amount"`
}

// EstimationRequest asks for the settlement amount of a token quantity without signing anything.
type EstimationRequest struct {
	TokenAddress string  `json:"token_address"`
	Amount       *Amount `json:"amount"`
}

// SignedAttestation is the result of a successful signing request.
type SignedAttestation struct {
	Nonce            uint64
	SettlementAmount *big.Int
	Signature        []byte
}
