package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
)

// field names follow the QuoterV2 tuple components
type exactInputParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

type exactOutputParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Amount            *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Quoter implements arbitrage.Quoter by eth_call'ing the venue's QuoterV2
type Quoter struct {
	caller ethereum.ContractCaller
	block  *big.Int
}

func NewQuoter(caller ethereum.ContractCaller) *Quoter {
	return &Quoter{caller: caller}
}

func (q *Quoter) AtBlock(n uint64) *Quoter {
	pinned := *q
	pinned.block = new(big.Int).SetUint64(n)
	return &pinned
}

// QuoteExactOutput returns how much of in must be paid to receive amountOut of out
func (q *Quoter) QuoteExactOutput(ctx context.Context, v *arbitrage.Venue, in, out arbitrage.Token, feePPM uint32, amountOut *big.Int) (*big.Int, error) {
	if err := fitsUint256(amountOut); err != nil {
		return nil, err
	}
	params := exactOutputParams{
		TokenIn:           in.Address,
		TokenOut:          out.Address,
		Amount:            amountOut,
		Fee:               feeArg(feePPM),
		SqrtPriceLimitX96: new(big.Int),
	}
	return q.call(ctx, v, "quoteExactOutputSingle", params)
}

// QuoteExactInput returns how much of out is received for amountIn of in
func (q *Quoter) QuoteExactInput(ctx context.Context, v *arbitrage.Venue, in, out arbitrage.Token, feePPM uint32, amountIn *big.Int) (*big.Int, error) {
	if err := fitsUint256(amountIn); err != nil {
		return nil, err
	}
	params := exactInputParams{
		TokenIn:           in.Address,
		TokenOut:          out.Address,
		AmountIn:          amountIn,
		Fee:               feeArg(feePPM),
		SqrtPriceLimitX96: new(big.Int),
	}
	return q.call(ctx, v, "quoteExactInputSingle", params)
}

func (q *Quoter) call(ctx context.Context, v *arbitrage.Venue, method string, params any) (*big.Int, error) {
	data, err := quoterABI.Pack(method, params)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	to := v.Contracts.Quoter
	result, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, q.block)
	if err != nil {
		// the quoter reverts when the pool is missing or too shallow
		return nil, fmt.Errorf("%s %s: %w: %w", v.Name, method, arbitrage.ErrNoLiquidity, err)
	}
	return unpackBig(quoterABI, method, result)
}
