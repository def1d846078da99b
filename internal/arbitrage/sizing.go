package arbitrage

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sizer is the heuristic trade-size policy. It trades optimality for safety against price impact.
type Sizer struct {
	// ceiling on the fraction of the smaller reserve
	MaxFraction decimal.Decimal
	// floor of the fee-derived fraction
	MinFraction decimal.Decimal
	// how hard combined fees shrink the allowed fraction
	FeePenalty decimal.Decimal
	// margin for estimation error
	SafetyFactor decimal.Decimal
	// below this fraction of the smaller reserve a trade is dust
	MinViableFraction decimal.Decimal
}

// DefaultSizer returns the production policy: 5% ceiling, 1% fee floor, 0.8 safety, 0.1% minimum
func DefaultSizer() Sizer {
	return Sizer{
		MaxFraction:       decimal.RequireFromString("0.05"),
		MinFraction:       decimal.RequireFromString("0.01"),
		FeePenalty:        decimal.NewFromInt(5),
		SafetyFactor:      decimal.RequireFromString("0.8"),
		MinViableFraction: decimal.RequireFromString("0.001"),
	}
}

// SizingInput carries the reserves of the token being bought on each leg
type SizingInput struct {
	ReserveBuy    decimal.Decimal
	ReserveSell   decimal.Decimal
	DivergencePct decimal.Decimal
	// buyFee + sellFee as a fraction of 1
	CombinedFee decimal.Decimal
	// fraction of 1
	MaxSlippage decimal.Decimal
}

// Size returns the trade notional in units of the intermediate token.
//
//	liquidity = min(|divergence|/100, MaxFraction)
//	fee       = max(MaxFraction - combinedFee*FeePenalty, MinFraction)
//	slippage  = 2 * maxSlippage
//	size      = max(min(liquidity, fee, slippage) * SafetyFactor * minReserve,
//	                MinViableFraction * minReserve)
func (s Sizer) Size(in SizingInput) (decimal.Decimal, error) {
	if in.ReserveBuy.Sign() <= 0 || in.ReserveSell.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("reserves %s/%s: %w", in.ReserveBuy, in.ReserveSell, ErrNoLiquidity)
	}
	if in.CombinedFee.Sign() < 0 {
		return decimal.Zero, errors.New("combined fee must not be negative")
	}
	if in.MaxSlippage.Sign() < 0 {
		return decimal.Zero, errors.New("max slippage must not be negative")
	}

	minReserve := decimal.Min(in.ReserveBuy, in.ReserveSell)

	liquidityFactor := decimal.Min(in.DivergencePct.Abs().Shift(-2), s.MaxFraction)
	feeFactor := decimal.Max(s.MaxFraction.Sub(in.CombinedFee.Mul(s.FeePenalty)), s.MinFraction)
	slippageFactor := in.MaxSlippage.Mul(decimal.NewFromInt(2))

	fraction := decimal.Min(liquidityFactor, feeFactor, slippageFactor)
	size := fraction.Mul(s.SafetyFactor).Mul(minReserve)

	floor := s.MinViableFraction.Mul(minReserve)
	return decimal.Max(size, floor), nil
}
