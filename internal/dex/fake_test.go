package dex

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
)

var errReverted = errors.New("execution reverted")

var (
	weth = arbitrage.Token{Address: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), Symbol: "WETH", Decimals: 18}
	usdc = arbitrage.Token{Address: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), Symbol: "USDC", Decimals: 6}

	factoryAddr = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	quoterAddr  = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	poolAddr    = common.HexToAddress("0xC6962004f452bE9203591991D15f6b388e09E8D0")
)

func testVenue() *arbitrage.Venue {
	return &arbitrage.Venue{
		Name:   "uniswap",
		FeePPM: 500,
		Contracts: arbitrage.VenueContracts{
			Factory: factoryAddr,
			Quoter:  quoterAddr,
		},
	}
}

// fakeChain answers eth_call by (to, selector) and records everything it is asked
type fakeChain struct {
	mu        sync.Mutex
	responses map[string][]byte
	calls     []ethereum.CallMsg
	blocks    []*big.Int
	// returned by every call when set
	callErr error

	native   *big.Int
	nonce    uint64
	gasPrice *big.Int
	sent     []*types.Transaction
	receipt  *types.Receipt
	// receipt lookups answered with NotFound before the receipt shows up
	pending int
}

func newFakeChain() *fakeChain {
	return &fakeChain{responses: map[string][]byte{}, gasPrice: big.NewInt(1e8)}
}

func callKey(to common.Address, selector []byte) string {
	return to.Hex() + hex.EncodeToString(selector)
}

func (f *fakeChain) on(to common.Address, contract abi.ABI, method string, outs ...any) {
	m := contract.Methods[method]
	packed, err := m.Outputs.Pack(outs...)
	if err != nil {
		panic(err)
	}
	f.raw(to, m.ID, packed)
}

func (f *fakeChain) raw(to common.Address, selector, result []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[callKey(to, selector)] = result
}

func (f *fakeChain) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	f.blocks = append(f.blocks, block)

	if f.callErr != nil {
		return nil, f.callErr
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errReverted
	}
	out, ok := f.responses[callKey(*msg.To, msg.Data[:4])]
	if !ok {
		return nil, errReverted
	}
	return out, nil
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	if f.native == nil {
		return nil, errors.New("no balance")
	}
	return new(big.Int).Set(f.native), nil
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending > 0 || f.receipt == nil {
		f.pending--
		return nil, ethereum.NotFound
	}
	r := *f.receipt
	r.TxHash = hash
	return &r, nil
}
