package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// places kept when a pool price is inverted
const pricePrecision = 36

// 2^-192 == 5^192 * 10^-192, so the squared Q96 value divides out into a finite decimal
const q192Exponent = 192

var pow5Q192 = new(big.Int).Exp(big.NewInt(5), big.NewInt(q192Exponent), nil)

// CalculatePrice converts a pool's sqrtPriceX96 into quote-per-base at human scale.
//
// price = (sqrtPriceX96 / 2^96)^2 * 10^(baseDecimals - quoteDecimals)
//
// The result is exact: no rounding happens anywhere on this path.
func CalculatePrice(sqrtPriceX96 *big.Int, baseDecimals, quoteDecimals int) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("sqrtPriceX96 %v: %w", sqrtPriceX96, ErrPriceUnavailable)
	}

	squared := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	squared.Mul(squared, pow5Q192)

	raw := decimal.NewFromBigInt(squared, -q192Exponent)
	price := raw.Shift(int32(baseDecimals - quoteDecimals))

	if price.IsZero() {
		return decimal.Zero, ErrPriceUnavailable
	}
	return price, nil
}

// FetchPrice reads one venue's pool price and turns it into the cost of the quote
// token in base, the side the trade buys
func FetchPrice(ctx context.Context, v *Venue, base, quote Token) (*PriceQuote, error) {
	raw, err := v.Reader.RawPrice(ctx, v, base, quote)
	if err != nil {
		return nil, fmt.Errorf("%s raw price: %w", v.Name, err)
	}

	poolRate, err := CalculatePrice(raw, base.Decimals, quote.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%s price: %w", v.Name, err)
	}

	return &PriceQuote{
		Venue:    v,
		Base:     base,
		Quote:    quote,
		Rate:     decimal.NewFromInt(1).DivRound(poolRate, pricePrecision),
		PoolRate: poolRate,
	}, nil
}

// FromUnits converts integer token units into a human-scale decimal
func FromUnits(units *big.Int, decimals int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -int32(decimals))
}
