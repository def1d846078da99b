package arbitrage

import (
	"bytes"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// a Token is an ERC-20 resolved once at startup
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals int
}

// SortTokens returns (base, quote) ordered by address, the same ordering pools use for token0/token1
func SortTokens(a, b Token) (Token, Token) {
	if bytes.Compare(a.Address.Bytes(), b.Address.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// VenueContracts holds the addresses an adapter needs to talk to one DEX deployment
type VenueContracts struct {
	Factory common.Address
	Quoter  common.Address
	Router  common.Address
}

// a Venue is one DEX deployment hosting a pool for the pair. Read-only after startup.
type Venue struct {
	Name      string
	FeePPM    uint32
	Contracts VenueContracts

	Reader    StateReader
	Quoter    Quoter
	Submitter Submitter
}

// FeeFraction converts the fee tier from parts-per-million to a fraction of 1
func (v *Venue) FeeFraction() decimal.Decimal {
	return decimal.New(int64(v.FeePPM), -6)
}

// PriceQuote is what the intermediate token costs on a venue, recomputed every cycle.
// The detector compares these: the venue where quote is cheaper in base is the buy venue.
type PriceQuote struct {
	Venue *Venue
	Base  Token
	Quote Token
	// base per quote, rounded to pricePrecision places
	Rate decimal.Decimal
	// quote per base as the pool reports it, exact. Zero when the quote was built from Rate.
	PoolRate decimal.Decimal
}

// fraction is Rate as num/den without rounding
func (q *PriceQuote) fraction() (num, den decimal.Decimal) {
	if q.PoolRate.Sign() > 0 {
		return decimal.NewFromInt(1), q.PoolRate
	}
	return q.Rate, decimal.NewFromInt(1)
}

// LiquiditySnapshot holds pool reserves in raw token units. Only valid for the cycle that read it.
type LiquiditySnapshot struct {
	Venue        *Venue
	ReserveBase  decimal.Decimal
	ReserveQuote decimal.Decimal
}

// Direction names which venue position (1 or 2) is bought on
type Direction int

const (
	DirectionNone Direction = iota
	// buy on venue1, sell on venue2
	DirectionBuyFirst
	// buy on venue2, sell on venue1
	DirectionBuySecond
)

func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuyFirst:
		return DirectionBuySecond
	case DirectionBuySecond:
		return DirectionBuyFirst
	default:
		return DirectionNone
	}
}

func (d Direction) String() string {
	switch d {
	case DirectionBuyFirst:
		return "buy venue1 / sell venue2"
	case DirectionBuySecond:
		return "buy venue2 / sell venue1"
	default:
		return "none"
	}
}

// TradeIntent is the detector's directed output. A nil intent means no action.
type TradeIntent struct {
	BuyVenue  *Venue
	SellVenue *Venue
	Direction Direction
}

// TradeParams is the fully resolved request handed to the settlement contract
type TradeParams struct {
	AmountIn   *big.Int
	BuyFeePPM  uint32
	SellFeePPM uint32
	RouterPath [2]common.Address
	TokenPath  [2]common.Address
}

// FeePath returns the fee tiers in router order
func (p TradeParams) FeePath() [2]uint32 {
	return [2]uint32{p.BuyFeePPM, p.SellFeePPM}
}

// TradeReceipt is what the settlement capability reports back after a dispatch
type TradeReceipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// TradeOutcome is the before/after accounting of a dispatch. Reporting only.
type TradeOutcome struct {
	BaseBefore   *big.Int
	BaseAfter    *big.Int
	NativeBefore *big.Int
	NativeAfter  *big.Int

	// native asset spent, NativeBefore - NativeAfter
	GasSpent *big.Int
	// base token gained or lost, BaseAfter - BaseBefore
	NetPnL *big.Int

	Receipt *TradeReceipt
}

// SwapNotification is the "something changed" signal from a venue. Only its timing matters.
type SwapNotification struct {
	Venue       string
	BlockNumber uint64
	TxHash      common.Hash
}

// Outcome classifies how a cycle ended
type Outcome string

const (
	OutcomeNoOpportunity          Outcome = "no_opportunity"
	OutcomePriceUnavailable       Outcome = "price_unavailable"
	OutcomeNoLiquidity            Outcome = "no_liquidity"
	OutcomeUnprofitableMultiplier Outcome = "unprofitable_multiplier"
	OutcomeInsufficientReturn     Outcome = "insufficient_return"
	OutcomeInsufficientGas        Outcome = "insufficient_gas"
	OutcomeAccepted               Outcome = "accepted"
	OutcomeExecuted               Outcome = "executed"
	OutcomeSettlementReverted     Outcome = "settlement_reverted"
	OutcomeError                  Outcome = "error"
)

// CycleReport is everything one decision cycle observed, handed to reporters on exit
type CycleReport struct {
	ID        uuid.UUID
	Trigger   string
	StartedAt time.Time
	Duration  time.Duration

	Base   Token
	Quote  Token
	Prices [2]*PriceQuote

	Divergence *Divergence
	Size       decimal.Decimal
	Decision   *ProfitabilityDecision
	Params     *TradeParams
	Trade      *TradeOutcome

	Outcome Outcome
	Err     error
}

// Reason is the operator-facing explanation of the outcome
func (r *CycleReport) Reason() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return string(r.Outcome)
}
