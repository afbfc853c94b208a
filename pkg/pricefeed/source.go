package pricefeed

import (
	"context"
	"fmt"
	"os"

	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// IPriceSource supplies token quotes to a Feed.
type IPriceSource interface {
	Name() string
	Fetch(ctx context.Context) ([]*types.TokenQuote, error)
}

// SeedDecimals is the exponent used by the built-in seed quotes.
const SeedDecimals uint8 = 17

// StaticSource serves a fixed set of quotes.
type StaticSource struct {
	quotes []*types.TokenQuote
}

func NewStaticSource(quotes []*types.TokenQuote) *StaticSource {
	return &StaticSource{quotes: quotes}
}

// NewSeedSource returns the launch whitelist.
func NewSeedSource() *StaticSource {
	return NewStaticSource([]*types.TokenQuote{
		{Token: "usmeme.tg", Quote: &types.PriceQuote{Price: "68420000000000", Decimals: SeedDecimals}},
		{Token: "dd.tg", Quote: &types.PriceQuote{Price: "800000000000000", Decimals: SeedDecimals}},
		{Token: "poken.sergei24.testnet", Quote: &types.PriceQuote{Price: "7000000000000000000", Decimals: SeedDecimals}},
	})
}

func (s *StaticSource) Name() string {
	return "static"
}

func (s *StaticSource) Fetch(_ context.Context) ([]*types.TokenQuote, error) {
	out := make([]*types.TokenQuote, 0, len(s.quotes))
	for _, q := range s.quotes {
		if q == nil || q.Quote == nil {
			continue
		}
		quote := *q.Quote
		out = append(out, &types.TokenQuote{Token: q.Token, Quote: &quote})
	}
	return out, nil
}

// FileEntry is one quote in a price file. Exactly one of Price or Mantissa is set.
//
// Price is a human decimal such as "0.00068420" and is scaled by 10^Decimals.
// When Decimals is omitted it defaults to the number of fractional digits in Price.
type FileEntry struct {
	Token    string `yaml:"token"`
	Price    string `yaml:"price,omitempty"`
	Mantissa string `yaml:"mantissa,omitempty"`
	Decimals *uint8 `yaml:"decimals,omitempty"`
}

type priceFile struct {
	Quotes []FileEntry `yaml:"quotes"`
}

// FileSource reads quotes from a YAML file on every fetch so edits are picked up on refresh.
type FileSource struct {
	path   string
	logger *zap.Logger
}

func NewFileSource(path string, logger *zap.Logger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

func (s *FileSource) Name() string {
	return fmt.Sprintf("file:%s", s.path)
}

func (s *FileSource) Fetch(ctx context.Context) ([]*types.TokenQuote, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read price file %s", s.path)
	}
	var pf priceFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, errors.Wrapf(err, "failed to parse price file %s", s.path)
	}

	quotes := make([]*types.TokenQuote, 0, len(pf.Quotes))
	for i, entry := range pf.Quotes {
		quote, err := entry.ToQuote()
		if err != nil {
			s.logger.Sugar().Warnw("Skipping invalid price entry",
				"file", s.path,
				"index", i,
				"token", entry.Token,
				"error", err,
			)
			continue
		}
		quotes = append(quotes, &types.TokenQuote{Token: entry.Token, Quote: quote})
	}
	return quotes, nil
}

// ToQuote converts the entry to mantissa form.
func (e FileEntry) ToQuote() (*types.PriceQuote, error) {
	if e.Token == "" {
		return nil, errors.New("token is required")
	}
	if (e.Price == "") == (e.Mantissa == "") {
		return nil, errors.New("exactly one of price or mantissa is required")
	}

	if e.Mantissa != "" {
		var decimals uint8
		if e.Decimals != nil {
			decimals = *e.Decimals
		}
		q := &types.PriceQuote{Price: e.Mantissa, Decimals: decimals}
		if _, ok := q.PriceInt(); !ok {
			return nil, errors.Errorf("mantissa %q is not an unsigned integer", e.Mantissa)
		}
		return q, nil
	}

	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid price %q", e.Price)
	}
	if price.IsNegative() {
		return nil, errors.Errorf("price %q is negative", e.Price)
	}

	var decimals uint8
	if e.Decimals != nil {
		decimals = *e.Decimals
	} else if exp := price.Exponent(); exp < 0 {
		if -exp > 255 {
			return nil, errors.Errorf("price %q has too many fractional digits", e.Price)
		}
		decimals = uint8(-exp)
	}

	scaled := price.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, errors.Errorf("price %q has more than %d fractional digits", e.Price, decimals)
	}
	return &types.PriceQuote{Price: scaled.BigInt().String(), Decimals: decimals}, nil
}
