package eth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pulkyeet/flashloan-arb/internal/metrics"
	"golang.org/x/time/rate"
)

// Client wraps ethclient with a request-rate limit so a burst of cycles cannot
// exhaust the provider's quota. Subscriptions are not rate limited.
type Client struct {
	rpc     *ethclient.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// Dial connects to url. rps <= 0 disables the limiter.
func Dial(ctx context.Context, url string, rps float64, m *metrics.Metrics) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("rpc url not set")
	}

	rpc, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	if m == nil {
		m = metrics.New(nil)
	}

	return &Client{rpc: rpc, limiter: limiter, metrics: m}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func (c *Client) observe(method string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.metrics.RPCCalls.WithLabelValues(method, result).Inc()
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.CallContract(ctx, msg, blockNumber)
	c.observe("eth_call", err)
	return out, err
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	bal, err := c.rpc.BalanceAt(ctx, account, blockNumber)
	c.observe("eth_getBalance", err)
	return bal, err
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	n, err := c.rpc.BlockNumber(ctx)
	c.observe("eth_blockNumber", err)
	return n, err
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	id, err := c.rpc.ChainID(ctx)
	c.observe("eth_chainId", err)
	return id, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	nonce, err := c.rpc.PendingNonceAt(ctx, account)
	c.observe("eth_getTransactionCount", err)
	return nonce, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	price, err := c.rpc.SuggestGasPrice(ctx)
	c.observe("eth_gasPrice", err)
	return price, err
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.rpc.SendTransaction(ctx, tx)
	c.observe("eth_sendRawTransaction", err)
	return err
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
	c.observe("eth_getTransactionReceipt", err)
	return receipt, err
}

func (c *Client) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	sub, err := c.rpc.SubscribeFilterLogs(ctx, q, ch)
	c.observe("eth_subscribe", err)
	return sub, err
}
