package arbitrage

import (
	"errors"
)

var (
	// raw price missing, pool not found, or a zero rate
	ErrPriceUnavailable = errors.New("price unavailable")
	// pool has no reserves, or a quote call failed for either leg
	ErrNoLiquidity = errors.New("no liquidity")
	// fees consume the whole theoretical edge
	ErrUnprofitableMultiplier = errors.New("net multiplier does not exceed 1")
	// sell leg does not cover the borrowed principal
	ErrInsufficientReturn = errors.New("insufficient to cover borrowed principal")
	// native balance cannot pay for the settlement transaction
	ErrInsufficientGas = errors.New("not enough native balance for gas")
	// the atomic borrow-swap-repay failed on-chain
	ErrSettlementReverted = errors.New("settlement reverted")
	// another cycle holds the guard
	ErrCycleInFlight = errors.New("cycle already in flight")
)

// classify maps a cycle error onto its outcome
func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeNoOpportunity
	case errors.Is(err, ErrPriceUnavailable):
		return OutcomePriceUnavailable
	case errors.Is(err, ErrNoLiquidity):
		return OutcomeNoLiquidity
	case errors.Is(err, ErrUnprofitableMultiplier):
		return OutcomeUnprofitableMultiplier
	case errors.Is(err, ErrInsufficientReturn):
		return OutcomeInsufficientReturn
	case errors.Is(err, ErrInsufficientGas):
		return OutcomeInsufficientGas
	case errors.Is(err, ErrSettlementReverted):
		return OutcomeSettlementReverted
	default:
		return OutcomeError
	}
}
