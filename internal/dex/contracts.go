// Package dex adapts Uniswap V3 style deployments to the arbitrage engine's capabilities.
package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flashloan-arb/internal/eth"
)

var (
	factoryABI   = mustParse(eth.FactoryABI)
	poolABI      = mustParse(eth.PoolABI)
	erc20ABI     = mustParse(eth.ERC20ABI)
	quoterABI    = mustParse(eth.QuoterV2ABI)
	arbitrageABI = mustParse(eth.ArbitrageABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// unpackBig pulls the first return value of method out of a call result
func unpackBig(contract abi.ABI, method string, result []byte) (*big.Int, error) {
	unpacked, err := contract.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(unpacked) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	v, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s type assertion failed", method)
	}
	return v, nil
}

// fitsUint256 rejects amounts the ABI encoder would silently truncate
func fitsUint256(v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return fmt.Errorf("amount %v is not a uint256", v)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("amount %s overflows uint256", v)
	}
	return nil
}

func feeArg(ppm uint32) *big.Int {
	return new(big.Int).SetUint64(uint64(ppm))
}
