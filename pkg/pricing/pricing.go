// Package pricing converts raw token amounts into USDF settlement amounts.
package pricing

import (
	"context"
	"math/big"

	"github.com/Layr-Labs/usdf-signer/pkg/persistence"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
)

const (
	// Coefficient is the percentage of the quoted value paid out in USDF.
	Coefficient uint64 = 30
	// PercentBase is the denominator applied to Coefficient.
	PercentBase uint64 = 100
)

var (
	// ErrUnknownToken means no quote exists for the token. Caller error.
	ErrUnknownToken = errors.New("unknown token")
	// ErrMalformedQuote means a stored quote's price is not an unsigned integer.
	ErrMalformedQuote = errors.New("malformed price quote")
	// ErrArithmeticOverflow means an intermediate product left the 128-bit working width.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

var (
	bigCoefficient = new(big.Int).SetUint64(Coefficient)
	bigPercentBase = new(big.Int).SetUint64(PercentBase)
)

// Converter reads quotes and applies ConvertWithQuote. It holds no mutable state.
type Converter struct {
	quotes persistence.IPriceQuoteStore
}

// NewConverter creates a converter over a quote store.
func NewConverter(quotes persistence.IPriceQuoteStore) *Converter {
	return &Converter{quotes: quotes}
}

// Convert returns the settlement amount for amount units of token.
func (c *Converter) Convert(ctx context.Context, token string, amount *big.Int) (*big.Int, error) {
	quote, err := c.Quote(ctx, token)
	if err != nil {
		return nil, err
	}
	return ConvertWithQuote(quote, amount)
}

// Quote loads the quote for token, failing with ErrUnknownToken when absent.
func (c *Converter) Quote(ctx context.Context, token string) (*types.PriceQuote, error) {
	quote, err := c.quotes.GetPriceQuote(ctx, token)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load quote for %s", token)
	}
	if quote == nil {
		return nil, errors.Wrapf(ErrUnknownToken, "%s", token)
	}
	return quote, nil
}

// Whitelist lists every quoted token along with the coefficient applied to it.
func (c *Converter) Whitelist(ctx context.Context) ([]*types.WhitelistEntry, error) {
	quotes, err := c.quotes.ListPriceQuotes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list quotes")
	}
	entries := make([]*types.WhitelistEntry, 0, len(quotes))
	for _, tq := range quotes {
		if tq.Quote == nil {
			continue
		}
		entries = append(entries, &types.WhitelistEntry{
			Token:       tq.Token,
			Price:       tq.Quote.Price,
			Coefficient: Coefficient,
			Decimals:    tq.Quote.Decimals,
		})
	}
	return entries, nil
}

// ConvertWithQuote computes amount * price * Coefficient / PercentBase / 10^decimals.
//
// Multiplication happens before division and every product is checked against
// the 128-bit working width. Division truncates toward zero.
func ConvertWithQuote(quote *types.PriceQuote, amount *big.Int) (*big.Int, error) {
	if !types.FitsUint128(amount) {
		return nil, errors.Wrap(ErrArithmeticOverflow, "amount does not fit in 128 bits")
	}

	price, ok := quote.PriceInt()
	if !ok {
		if quote == nil {
			return nil, errors.Wrap(ErrMalformedQuote, "nil quote")
		}
		return nil, errors.Wrapf(ErrMalformedQuote, "price %q", quote.Price)
	}
	if !types.FitsUint128(price) {
		return nil, errors.Wrapf(ErrArithmeticOverflow, "price %s does not fit in 128 bits", price)
	}

	result := new(big.Int).Mul(amount, price)
	if !types.FitsUint128(result) {
		return nil, errors.Wrap(ErrArithmeticOverflow, "amount * price")
	}
	result.Mul(result, bigCoefficient)
	if !types.FitsUint128(result) {
		return nil, errors.Wrap(ErrArithmeticOverflow, "amount * price * coefficient")
	}

	scale := Scale(quote.Decimals)
	if !types.FitsUint128(scale) {
		return nil, errors.Wrapf(ErrArithmeticOverflow, "10^%d", quote.Decimals)
	}

	result.Quo(result, bigPercentBase)
	result.Quo(result, scale)

	return result, nil
}

// Scale returns 10^decimals.
func Scale(decimals uint8) *big.Int {
	return math.BigPow(10, int64(decimals))
}
