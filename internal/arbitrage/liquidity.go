package arbitrage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ReadLiquidity reads a venue's reserves and normalizes them into comparable decimals.
// Both venues trade the same tokens, so raw token units compare directly.
func ReadLiquidity(ctx context.Context, v *Venue, base, quote Token) (*LiquiditySnapshot, error) {
	reserveBase, reserveQuote, err := v.Reader.Reserves(ctx, v, base, quote)
	if err != nil {
		return nil, fmt.Errorf("%s reserves: %w", v.Name, err)
	}
	if reserveBase == nil || reserveQuote == nil || reserveBase.Sign() <= 0 || reserveQuote.Sign() <= 0 {
		return nil, fmt.Errorf("%s reserves %v/%v: %w", v.Name, reserveBase, reserveQuote, ErrNoLiquidity)
	}

	return &LiquiditySnapshot{
		Venue:        v,
		ReserveBase:  decimal.NewFromBigInt(reserveBase, 0),
		ReserveQuote: decimal.NewFromBigInt(reserveQuote, 0),
	}, nil
}
