package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ProfitabilityRequest is one quoted check of a directed intent
type ProfitabilityRequest struct {
	Intent        *TradeIntent
	Base          Token
	Quote         Token
	DivergencePct decimal.Decimal
	// quote-token units bought on the buy leg and sold on the sell leg
	Size *big.Int
	// bound for each quote call, zero means none
	CallTimeout time.Duration
}

// ProfitabilityDecision is the go/no-go verdict. Reason is set whenever Profitable is false.
type ProfitabilityDecision struct {
	Profitable    bool
	NetMultiplier decimal.Decimal
	// base units needed to receive Size on the buy venue
	Required *big.Int
	// base units returned for selling Size on the sell venue
	Returned *big.Int
	// base units the settlement must borrow
	Amount *big.Int
	Reason error
}

// Margin is Returned - Required in base units, nil until both legs are quoted
func (d *ProfitabilityDecision) Margin() *big.Int {
	if d.Required == nil || d.Returned == nil {
		return nil
	}
	return new(big.Int).Sub(d.Returned, d.Required)
}

// NetMultiplier is (1 - buyFee) * (1 + divergence/100) * (1 - sellFee)
func NetMultiplier(buyFee, sellFee, divergencePct decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	return one.Sub(buyFee).
		Mul(one.Add(divergencePct.Abs().Shift(-2))).
		Mul(one.Sub(sellFee))
}

// EvaluateProfitability quotes both legs and decides. It never returns an error:
// any quote failure becomes a rejection so a single venue hiccup cannot stop the loop.
func EvaluateProfitability(ctx context.Context, req ProfitabilityRequest) *ProfitabilityDecision {
	buy, sell := req.Intent.BuyVenue, req.Intent.SellVenue

	d := &ProfitabilityDecision{
		NetMultiplier: NetMultiplier(buy.FeeFraction(), sell.FeeFraction(), req.DivergencePct),
	}

	if d.NetMultiplier.LessThanOrEqual(decimal.NewFromInt(1)) {
		d.Reason = fmt.Errorf("multiplier %s: %w", d.NetMultiplier.StringFixed(6), ErrUnprofitableMultiplier)
		return d
	}
	if req.Size == nil || req.Size.Sign() <= 0 {
		d.Reason = fmt.Errorf("trade size %v: %w", req.Size, ErrNoLiquidity)
		return d
	}

	required, err := quoteLeg(ctx, req.CallTimeout, func(ctx context.Context) (*big.Int, error) {
		return buy.Quoter.QuoteExactOutput(ctx, buy, req.Base, req.Quote, buy.FeePPM, req.Size)
	})
	if err != nil {
		d.Reason = fmt.Errorf("%s buy leg: %w", buy.Name, err)
		return d
	}
	d.Required = required

	returned, err := quoteLeg(ctx, req.CallTimeout, func(ctx context.Context) (*big.Int, error) {
		return sell.Quoter.QuoteExactInput(ctx, sell, req.Quote, req.Base, sell.FeePPM, req.Size)
	})
	if err != nil {
		d.Reason = fmt.Errorf("%s sell leg: %w", sell.Name, err)
		return d
	}
	d.Returned = returned

	if returned.Cmp(required) < 0 {
		d.Reason = fmt.Errorf("returned %s < required %s: %w", returned, required, ErrInsufficientReturn)
		return d
	}

	d.Profitable = true
	d.Amount = new(big.Int).Set(required)
	return d
}

// quoteLeg runs one quote call under the call timeout and folds every failure into ErrNoLiquidity
func quoteLeg(ctx context.Context, timeout time.Duration, call func(context.Context) (*big.Int, error)) (*big.Int, error) {
	callCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	amount, err := call(callCtx)
	if err != nil {
		if errors.Is(err, ErrNoLiquidity) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNoLiquidity, err)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("empty quote: %w", ErrNoLiquidity)
	}
	return amount, nil
}
