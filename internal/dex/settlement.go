package dex

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
)

const (
	defaultGasLimit     = 400000
	defaultPollInterval = 2 * time.Second
)

// SettlementBackend is the slice of the node API a dispatch needs
type SettlementBackend interface {
	ethereum.ContractCaller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type SettlementConfig struct {
	Contract common.Address
	Key      *ecdsa.PrivateKey
	ChainID  *big.Int
	GasLimit uint64
	// nil asks the node
	GasPrice     *big.Int
	PollInterval time.Duration
}

// Settlement implements arbitrage.Submitter: it calls executeTrade on the flash-loan
// contract, which borrows, swaps on both routers and repays in one transaction.
type Settlement struct {
	backend SettlementBackend
	cfg     SettlementConfig
	from    common.Address
	signer  types.Signer
	logger  *slog.Logger
}

func NewSettlement(backend SettlementBackend, cfg SettlementConfig, logger *slog.Logger) (*Settlement, error) {
	if cfg.Key == nil {
		return nil, errors.New("settlement needs a signing key")
	}
	if cfg.ChainID == nil {
		return nil, errors.New("settlement needs a chain id")
	}
	if cfg.Contract == (common.Address{}) {
		return nil, errors.New("settlement contract address not set")
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = defaultGasLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Settlement{
		backend: backend,
		cfg:     cfg,
		from:    crypto.PubkeyToAddress(cfg.Key.PublicKey),
		signer:  types.LatestSignerForChainID(cfg.ChainID),
		logger:  logger,
	}, nil
}

func (s *Settlement) From() common.Address {
	return s.from
}

// BuildCalldata packs executeTrade(routerPath, tokenPath, fees, flashAmount)
func BuildCalldata(params arbitrage.TradeParams) ([]byte, error) {
	if err := fitsUint256(params.AmountIn); err != nil {
		return nil, err
	}
	fees := params.FeePath()
	calldata, err := arbitrageABI.Pack("executeTrade",
		params.RouterPath[:],
		params.TokenPath[:],
		[]*big.Int{feeArg(fees[0]), feeArg(fees[1])},
		params.AmountIn,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack calldata: %w", err)
	}
	return calldata, nil
}

// Submit preflights the trade with eth_call, sends it, and waits for the receipt
func (s *Settlement) Submit(ctx context.Context, params arbitrage.TradeParams) (*arbitrage.TradeReceipt, error) {
	calldata, err := BuildCalldata(params)
	if err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{From: s.from, To: &s.cfg.Contract, Gas: s.cfg.GasLimit, Data: calldata}
	if _, err := s.backend.CallContract(ctx, msg, nil); err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("preflight: %w: %w", arbitrage.ErrSettlementReverted, err)
		}
		return nil, fmt.Errorf("preflight: %w", err)
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice := s.cfg.GasPrice
	if gasPrice == nil {
		if gasPrice, err = s.backend.SuggestGasPrice(ctx); err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.cfg.Contract,
		Value:    big.NewInt(0),
		Gas:      s.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})
	signed, err := types.SignTx(tx, s.signer, s.cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign tx: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	s.logger.Info("settlement sent", "tx", signed.Hash().Hex(), "nonce", nonce, "gas_price", gasPrice.String())

	receipt, err := s.waitMined(ctx, signed.Hash())
	if err != nil {
		return &arbitrage.TradeReceipt{TxHash: signed.Hash()}, err
	}

	out := &arbitrage.TradeReceipt{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return out, fmt.Errorf("tx %s: %w", receipt.TxHash.Hex(), arbitrage.ErrSettlementReverted)
	}
	return out, nil
}

func (s *Settlement) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// isRevert separates a contract revert from a node or transport failure.
// Nodes attach revert data to the JSON-RPC error, older ones only say so in the message.
func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}
