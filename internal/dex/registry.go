package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
)

const defaultCacheSize = 256

type poolKey struct {
	factory common.Address
	token0  common.Address
	token1  common.Address
	fee     uint32
}

// Registry resolves pool addresses and token metadata. Both are immutable on-chain,
// so lookups are cached for the life of the process.
type Registry struct {
	caller ethereum.ContractCaller
	pools  *lru.Cache[poolKey, common.Address]
	tokens *lru.Cache[common.Address, arbitrage.Token]
}

func NewRegistry(caller ethereum.ContractCaller, size int) (*Registry, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	pools, err := lru.New[poolKey, common.Address](size)
	if err != nil {
		return nil, fmt.Errorf("pool cache: %w", err)
	}
	tokens, err := lru.New[common.Address, arbitrage.Token](size)
	if err != nil {
		return nil, fmt.Errorf("token cache: %w", err)
	}
	return &Registry{caller: caller, pools: pools, tokens: tokens}, nil
}

// PoolAddress asks the venue's factory for the pool at the venue's fee tier.
// A zero address means no pool exists.
func (r *Registry) PoolAddress(ctx context.Context, v *arbitrage.Venue, base, quote arbitrage.Token) (common.Address, error) {
	t0, t1 := arbitrage.SortTokens(base, quote)
	key := poolKey{factory: v.Contracts.Factory, token0: t0.Address, token1: t1.Address, fee: v.FeePPM}
	if addr, ok := r.pools.Get(key); ok {
		return addr, nil
	}

	data, err := factoryABI.Pack("getPool", key.token0, key.token1, feeArg(v.FeePPM))
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getPool: %w", err)
	}
	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &key.factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call getPool: %w", err)
	}
	unpacked, err := factoryABI.Unpack("getPool", result)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack getPool: %w", err)
	}
	if len(unpacked) == 0 {
		return common.Address{}, fmt.Errorf("unpack getPool: empty result")
	}
	addr, ok := unpacked[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("getPool type assertion failed")
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s has no %s/%s pool at fee %d: %w",
			v.Name, t0.Symbol, t1.Symbol, v.FeePPM, arbitrage.ErrPriceUnavailable)
	}

	r.pools.Add(key, addr)
	return addr, nil
}

// ResolveToken reads symbol() and decimals() from an ERC-20
func (r *Registry) ResolveToken(ctx context.Context, addr common.Address) (arbitrage.Token, error) {
	if tok, ok := r.tokens.Get(addr); ok {
		return tok, nil
	}

	symbol, err := r.callToken(ctx, addr, "symbol")
	if err != nil {
		return arbitrage.Token{}, err
	}
	decimals, err := r.callToken(ctx, addr, "decimals")
	if err != nil {
		return arbitrage.Token{}, err
	}

	sym, ok := symbol.(string)
	if !ok {
		return arbitrage.Token{}, fmt.Errorf("%s symbol type assertion failed", addr.Hex())
	}
	dec, ok := decimals.(uint8)
	if !ok {
		return arbitrage.Token{}, fmt.Errorf("%s decimals type assertion failed", addr.Hex())
	}

	tok := arbitrage.Token{Address: addr, Symbol: sym, Decimals: int(dec)}
	r.tokens.Add(addr, tok)
	return tok, nil
}

func (r *Registry) callToken(ctx context.Context, addr common.Address, method string) (any, error) {
	data, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, addr.Hex(), err)
	}
	unpacked, err := erc20ABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(unpacked) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return unpacked[0], nil
}

// balanceOf is shared by the reader and the account
func balanceOf(ctx context.Context, caller ethereum.ContractCaller, token, holder common.Address, block *big.Int) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	return unpackBig(erc20ABI, "balanceOf", result)
}

// ResolvePair resolves both tokens and orders them the way pools do, base first
func (r *Registry) ResolvePair(ctx context.Context, a, b common.Address) (base, quote arbitrage.Token, err error) {
	ta, err := r.ResolveToken(ctx, a)
	if err != nil {
		return base, quote, err
	}
	tb, err := r.ResolveToken(ctx, b)
	if err != nil {
		return base, quote, err
	}
	base, quote = arbitrage.SortTokens(ta, tb)
	return base, quote, nil
}
