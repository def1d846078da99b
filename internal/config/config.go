// Package config loads the monitor's YAML settings and .env secrets.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
	"github.com/pulkyeet/flashloan-arb/internal/eth"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Network  string         `yaml:"network"`
	RPC      RPCConfig      `yaml:"rpc"`
	Tokens   []string       `yaml:"tokens"`
	Venues   []VenueConfig  `yaml:"venues"`
	Strategy StrategyConfig `yaml:"strategy"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Journal  JournalConfig  `yaml:"journal"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`

	// secrets, only ever read from the environment
	PrivateKey        string `yaml:"-"`
	ArbitrageContract string `yaml:"-"`
}

type RPCConfig struct {
	HTTP string `yaml:"http"`
	// websocket endpoint for log subscriptions
	WS string `yaml:"ws"`
	// requests per second against HTTP, 0 is unlimited
	RPS float64 `yaml:"rps"`
}

// VenueConfig names a known DEX and its pool fee tier. Addresses override the known deployment.
type VenueConfig struct {
	Name    string `yaml:"name"`
	Fee     uint32 `yaml:"fee"`
	Factory string `yaml:"factory"`
	Quoter  string `yaml:"quoter"`
	Router  string `yaml:"router"`
}

type StrategyConfig struct {
	// percent, e.g. 0.5 means 0.5%
	PriceDifference decimal.Decimal `yaml:"price_difference"`
	// fraction of 1, nil until set. An explicit 0 is kept.
	MaxSlippage *decimal.Decimal `yaml:"max_slippage"`
	// false runs every stage but never dispatches
	Execute      bool            `yaml:"execute"`
	GasLimit     uint64          `yaml:"gas_limit"`
	GasPriceGwei decimal.Decimal `yaml:"gas_price_gwei"`
}

// Slippage is MaxSlippage, zero when unset
func (s StrategyConfig) Slippage() decimal.Decimal {
	if s.MaxSlippage == nil {
		return decimal.Zero
	}
	return *s.MaxSlippage
}

type TimeoutConfig struct {
	Call   time.Duration `yaml:"call"`
	Submit time.Duration `yaml:"submit"`
}

type JournalConfig struct {
	DSN string `yaml:"dsn"`
}

type MetricsConfig struct {
	// empty disables the endpoint
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

var validFees = map[uint32]bool{100: true, 500: true, 2500: true, 3000: true, 10000: true}

// Load reads path, applies .env and environment overrides, fills defaults and validates
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPC.HTTP = v
	}
	if v := os.Getenv("WS_URL"); v != "" {
		cfg.RPC.WS = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.PrivateKey = v
	}
	if v := os.Getenv("ARBITRAGE_CONTRACT"); v != "" {
		cfg.ArbitrageContract = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Network == "" {
		cfg.Network = "arbitrum"
	}
	if len(cfg.Tokens) == 0 {
		cfg.Tokens = []string{"WETH", "USDC"}
	}
	if len(cfg.Venues) == 0 {
		cfg.Venues = []VenueConfig{{Name: "uniswap", Fee: 500}, {Name: "pancakeswap", Fee: 500}}
	}
	if cfg.Strategy.PriceDifference.IsZero() {
		cfg.Strategy.PriceDifference = decimal.RequireFromString("0.5")
	}
	if cfg.Strategy.MaxSlippage == nil {
		slippage := decimal.RequireFromString("0.005")
		cfg.Strategy.MaxSlippage = &slippage
	}
	if cfg.Strategy.GasLimit == 0 {
		cfg.Strategy.GasLimit = 400000
	}
	if cfg.Timeouts.Call <= 0 {
		cfg.Timeouts.Call = 5 * time.Second
	}
	if cfg.Timeouts.Submit <= 0 {
		cfg.Timeouts.Submit = 2 * time.Minute
	}
	if cfg.Journal.DSN == "" {
		cfg.Journal.DSN = "data/journal.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.RPC.HTTP == "" {
		errs = append(errs, errors.New("rpc url not set (rpc.http or RPC_URL)"))
	}
	if len(c.Tokens) != 2 {
		errs = append(errs, fmt.Errorf("exactly two tokens required, got %d", len(c.Tokens)))
	} else {
		a, errA := TokenAddress(c.Tokens[0])
		b, errB := TokenAddress(c.Tokens[1])
		errs = append(errs, errA, errB)
		if errA == nil && errB == nil && a == b {
			errs = append(errs, errors.New("tokens must differ"))
		}
	}
	if len(c.Venues) != 2 {
		errs = append(errs, fmt.Errorf("exactly two venues required, got %d", len(c.Venues)))
	}
	for _, v := range c.Venues {
		if !validFees[v.Fee] {
			errs = append(errs, fmt.Errorf("venue %s: fee tier %d not supported", v.Name, v.Fee))
		}
		if _, err := v.Contracts(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Strategy.PriceDifference.Sign() <= 0 {
		errs = append(errs, errors.New("price_difference must be positive"))
	}
	if slippage := c.Strategy.Slippage(); slippage.Sign() < 0 || slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("max_slippage must be in [0, 1)"))
	}
	if c.Strategy.GasPriceGwei.Sign() < 0 {
		errs = append(errs, errors.New("gas_price_gwei must not be negative"))
	}
	if c.Strategy.Execute {
		if _, err := c.SigningKey(); err != nil {
			errs = append(errs, err)
		}
		if !common.IsHexAddress(c.ArbitrageContract) {
			errs = append(errs, errors.New("execute needs ARBITRAGE_CONTRACT"))
		}
	}

	return errors.Join(errs...)
}

// TokenAddress accepts a known symbol or a hex address
func TokenAddress(s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	if addr, ok := eth.KnownTokens[strings.ToUpper(s)]; ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("unknown token %q", s)
}

// Pair returns the two configured token addresses in config order
func (c *Config) Pair() (common.Address, common.Address, error) {
	if len(c.Tokens) != 2 {
		return common.Address{}, common.Address{}, fmt.Errorf("exactly two tokens required, got %d", len(c.Tokens))
	}
	a, err := TokenAddress(c.Tokens[0])
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	b, err := TokenAddress(c.Tokens[1])
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return a, b, nil
}

// Contracts merges the known deployment for v.Name with any configured overrides
func (v VenueConfig) Contracts() (eth.DEXConfig, error) {
	dex, known := eth.KnownDEXes[strings.ToLower(v.Name)]
	if !known {
		dex = eth.DEXConfig{Name: v.Name}
	}

	overrides := []struct {
		value string
		dst   *common.Address
		field string
	}{
		{v.Factory, &dex.Factory, "factory"},
		{v.Quoter, &dex.Quoter, "quoter"},
		{v.Router, &dex.Router, "router"},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		if !common.IsHexAddress(o.value) {
			return eth.DEXConfig{}, fmt.Errorf("venue %s: bad %s address %q", v.Name, o.field, o.value)
		}
		*o.dst = common.HexToAddress(o.value)
	}

	if dex.Factory == (common.Address{}) || dex.Quoter == (common.Address{}) || dex.Router == (common.Address{}) {
		return eth.DEXConfig{}, fmt.Errorf("venue %s: unknown dex, set factory, quoter and router", v.Name)
	}
	return dex, nil
}

// GasPrice is the configured price in wei, nil when the node should be asked
func (c *Config) GasPrice() *big.Int {
	if c.Strategy.GasPriceGwei.Sign() <= 0 {
		return nil
	}
	return c.Strategy.GasPriceGwei.Shift(9).BigInt()
}

// GasBudget is gas_limit * gas_price, the native balance a dispatch needs.
// nil when no fixed gas price is configured.
func (c *Config) GasBudget() *big.Int {
	price := c.GasPrice()
	if price == nil {
		return nil
	}
	return new(big.Int).Mul(price, new(big.Int).SetUint64(c.Strategy.GasLimit))
}

func (c *Config) SigningKey() (*ecdsa.PrivateKey, error) {
	if c.PrivateKey == "" {
		return nil, errors.New("PRIVATE_KEY not set")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse PRIVATE_KEY: %w", err)
	}
	return key, nil
}

// NewLogger builds the process logger from cfg
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Venue builds the configured venue without capabilities; callers attach the
// reader, quoter and submitter
func (v VenueConfig) Venue() (*arbitrage.Venue, error) {
	dex, err := v.Contracts()
	if err != nil {
		return nil, err
	}
	return &arbitrage.Venue{
		Name:   strings.ToLower(v.Name),
		FeePPM: v.Fee,
		Contracts: arbitrage.VenueContracts{
			Factory: dex.Factory,
			Quoter:  dex.Quoter,
			Router:  dex.Router,
		},
	}, nil
}

// SwapEvents lists the distinct swap event signatures of the configured venues
func (c *Config) SwapEvents() []string {
	seen := make(map[string]bool)
	var sigs []string
	for _, v := range c.Venues {
		dex, err := v.Contracts()
		if err != nil || seen[dex.SwapEvent] {
			continue
		}
		seen[dex.SwapEvent] = true
		sigs = append(sigs, dex.SwapEvent)
	}
	return sigs
}
