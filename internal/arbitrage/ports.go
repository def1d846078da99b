package arbitrage

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
)

// StateReader reads pool state for the venue's fee tier
type StateReader interface {
	// RawPrice returns the pool's sqrtPriceX96
	RawPrice(ctx context.Context, v *Venue, base, quote Token) (*big.Int, error)
	// Reserves returns the pool's balances of base and quote in raw token units
	Reserves(ctx context.Context, v *Venue, base, quote Token) (reserveBase, reserveQuote *big.Int, err error)
}

// Quoter simulates single-pool swaps. Both calls fail with ErrNoLiquidity when there is no pool or depth.
type Quoter interface {
	QuoteExactOutput(ctx context.Context, v *Venue, in, out Token, feePPM uint32, amountOut *big.Int) (*big.Int, error)
	QuoteExactInput(ctx context.Context, v *Venue, in, out Token, feePPM uint32, amountIn *big.Int) (*big.Int, error)
}

// Submitter dispatches a trade to the settlement contract. Fails with ErrSettlementReverted on-chain.
type Submitter interface {
	Submit(ctx context.Context, params TradeParams) (*TradeReceipt, error)
}

// BalanceReader reads the trading account's balances
type BalanceReader interface {
	TokenBalance(ctx context.Context, token Token) (*big.Int, error)
	NativeBalance(ctx context.Context) (*big.Int, error)
}

// SwapSource delivers at-least-once swap notifications for one venue's pool
type SwapSource interface {
	SubscribeSwaps(ctx context.Context, v *Venue, base, quote Token, sink chan<- SwapNotification) (ethereum.Subscription, error)
}
