package arbitrage

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// digits kept when delta is materialized; the threshold decision never uses it
const divergencePrecision = 36

var hundred = decimal.NewFromInt(100)

// Divergence is the detector's view of one pair of prices
type Divergence struct {
	// (venue1 - venue2) / venue2 * 100
	Pct decimal.Decimal
	// Pct rounded to 2 places, for display only
	Display decimal.Decimal
	// nil when |delta| is below the threshold
	Intent *TradeIntent
}

// AbsPct is the divergence magnitude fed to sizing and the multiplier check
func (d *Divergence) AbsPct() decimal.Decimal {
	return d.Pct.Abs()
}

// DetectDivergence compares what the quote token costs, in base, on venue1 and venue2.
//
//	delta >= T  -> buy venue2, sell venue1
//	delta <= -T -> buy venue1, sell venue2
//
// The buy leg spends borrowed base for quote, so it must land on the venue
// where quote is cheaper in base. The threshold is inclusive. Each rate is
// held as an exact fraction and the decision is made on the cross-multiplied
// form so no division rounding can move a price across the boundary.
func DetectDivergence(p1, p2 *PriceQuote, thresholdPct decimal.Decimal) (*Divergence, error) {
	if p1 == nil || p2 == nil {
		return nil, fmt.Errorf("missing quote: %w", ErrPriceUnavailable)
	}
	n1, d1 := p1.fraction()
	n2, d2 := p2.fraction()
	if n1.Sign() <= 0 || d1.Sign() <= 0 || n2.Sign() <= 0 || d2.Sign() <= 0 {
		return nil, fmt.Errorf("non-positive rate %s/%s: %w", p1.Rate, p2.Rate, ErrPriceUnavailable)
	}

	// delta = (n1/d1 - n2/d2) / (n2/d2) * 100 = (n1*d2 - n2*d1) * 100 / (n2*d1)
	diff := n1.Mul(d2).Sub(n2.Mul(d1))
	denom := n2.Mul(d1)
	scaledDiff := diff.Mul(hundred)
	pct := scaledDiff.DivRound(denom, divergencePrecision)

	div := &Divergence{
		Pct:     pct,
		Display: pct.Round(2),
	}

	// delta >= T  <=>  diff*100 >= T*denom, since denom > 0
	bound := thresholdPct.Abs().Mul(denom)

	switch {
	case scaledDiff.GreaterThanOrEqual(bound):
		div.Intent = &TradeIntent{BuyVenue: p2.Venue, SellVenue: p1.Venue, Direction: DirectionBuySecond}
	case scaledDiff.LessThanOrEqual(bound.Neg()):
		div.Intent = &TradeIntent{BuyVenue: p1.Venue, SellVenue: p2.Venue, Direction: DirectionBuyFirst}
	}

	return div, nil
}
