package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
)

type BalanceBackend interface {
	ethereum.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Account implements arbitrage.BalanceReader for the trading address
type Account struct {
	backend BalanceBackend
	owner   common.Address
}

func NewAccount(backend BalanceBackend, owner common.Address) *Account {
	return &Account{backend: backend, owner: owner}
}

func (a *Account) Address() common.Address {
	return a.owner
}

func (a *Account) TokenBalance(ctx context.Context, token arbitrage.Token) (*big.Int, error) {
	bal, err := balanceOf(ctx, a.backend, token.Address, a.owner, nil)
	if err != nil {
		return nil, fmt.Errorf("%s balance of %s: %w", token.Symbol, a.owner.Hex(), err)
	}
	return bal, nil
}

func (a *Account) NativeBalance(ctx context.Context) (*big.Int, error) {
	bal, err := a.backend.BalanceAt(ctx, a.owner, nil)
	if err != nil {
		return nil, fmt.Errorf("native balance of %s: %w", a.owner.Hex(), err)
	}
	return bal, nil
}
