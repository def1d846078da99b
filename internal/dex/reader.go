package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
)

// Reader implements arbitrage.StateReader against live pool contracts
type Reader struct {
	caller   ethereum.ContractCaller
	registry *Registry
	// nil reads latest state
	block *big.Int
}

func NewReader(caller ethereum.ContractCaller, registry *Registry) *Reader {
	return &Reader{caller: caller, registry: registry}
}

// AtBlock returns a reader pinned to a historical block, used for replay
func (r *Reader) AtBlock(n uint64) *Reader {
	pinned := *r
	pinned.block = new(big.Int).SetUint64(n)
	return &pinned
}

// RawPrice reads sqrtPriceX96 from slot0. Only the first word is decoded: Uniswap and
// its forks agree on it but not on the trailing fields.
func (r *Reader) RawPrice(ctx context.Context, v *arbitrage.Venue, base, quote arbitrage.Token) (*big.Int, error) {
	pool, err := r.registry.PoolAddress(ctx, v, base, quote)
	if err != nil {
		return nil, err
	}

	data, err := poolABI.Pack("slot0")
	if err != nil {
		return nil, fmt.Errorf("pack slot0: %w", err)
	}
	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, r.block)
	if err != nil {
		return nil, fmt.Errorf("call slot0: %w", err)
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("slot0 returned %d bytes: %w", len(result), arbitrage.ErrPriceUnavailable)
	}

	sqrtPrice := new(uint256.Int).SetBytes32(result[:32])
	if sqrtPrice.BitLen() > 160 {
		return nil, fmt.Errorf("sqrtPriceX96 wider than uint160: %w", arbitrage.ErrPriceUnavailable)
	}
	if sqrtPrice.IsZero() {
		return nil, fmt.Errorf("pool %s not initialised: %w", pool.Hex(), arbitrage.ErrPriceUnavailable)
	}
	return sqrtPrice.ToBig(), nil
}

// Reserves are the ERC-20 balances the pool holds
func (r *Reader) Reserves(ctx context.Context, v *arbitrage.Venue, base, quote arbitrage.Token) (*big.Int, *big.Int, error) {
	pool, err := r.registry.PoolAddress(ctx, v, base, quote)
	if err != nil {
		// a missing pool is missing depth here, not a missing price
		return nil, nil, fmt.Errorf("%w: %v", arbitrage.ErrNoLiquidity, err)
	}

	reserveBase, err := balanceOf(ctx, r.caller, base.Address, pool, r.block)
	if err != nil {
		return nil, nil, fmt.Errorf("%s balance: %w", base.Symbol, err)
	}
	reserveQuote, err := balanceOf(ctx, r.caller, quote.Address, pool, r.block)
	if err != nil {
		return nil, nil, fmt.Errorf("%s balance: %w", quote.Symbol, err)
	}
	return reserveBase, reserveQuote, nil
}
