package eth

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Token addresses: Arbitrum One
var (
	WETHAddress = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	ARBAddress  = common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548")
	USDCAddress = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
)

// KnownTokens: lookup by symbol string
var KnownTokens = map[string]common.Address{
	"WETH": WETHAddress,
	"ARB":  ARBAddress,
	"USDC": USDCAddress,
}

// DEXConfig: the three contracts a Uniswap V3 style venue needs
type DEXConfig struct {
	Name    string
	Factory common.Address
	Quoter  common.Address
	Router  common.Address
	// canonical Swap event signature; forks append fields so the topic differs
	SwapEvent string
}

const (
	uniswapV3SwapEvent = "Swap(address,address,int256,int256,uint160,uint128,int24)"
	pancakeV3SwapEvent = "Swap(address,address,int256,int256,uint160,uint128,int24,uint128,uint128)"
)

// KnownDEXes: V3 deployments on Arbitrum One
var KnownDEXes = map[string]DEXConfig{
	"uniswap": {
		Name:      "Uniswap V3",
		Factory:   common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		Quoter:    common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e"),
		Router:    common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"),
		SwapEvent: uniswapV3SwapEvent,
	},
	"pancakeswap": {
		Name:      "Pancakeswap V3",
		Factory:   common.HexToAddress("0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865"),
		Quoter:    common.HexToAddress("0xB048Bbc1Ee6b733FFfCFb9e9CeF7375518e25997"),
		Router:    common.HexToAddress("0x1b81D678ffb9C0263b24A97847620C99d213eB14"),
		SwapEvent: pancakeV3SwapEvent,
	},
}

// SwapTopic hashes an event signature into its log topic
func SwapTopic(signature string) common.Hash {
	if signature == "" {
		signature = uniswapV3SwapEvent
	}
	return crypto.Keccak256Hash([]byte(signature))
}

// V3 factory: getPool only
const FactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"},
			{"internalType": "uint24",  "name": "fee",    "type": "uint24"}
		],
		"name": "getPool",
		"outputs": [{"internalType": "address", "name": "pool", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// V3 pool: slot0, first word only; forks disagree on the trailing fields
const PoolABI = `[
	{
		"inputs": [],
		"name": "slot0",
		"outputs": [{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

const ERC20ABI = `[
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "symbol",
		"outputs": [{"internalType": "string", "name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// QuoterV2: single-pool quotes. Not view on-chain, always eth_call'd.
const QuoterV2ABI = `[
	{
		"inputs": [{
			"components": [
				{"internalType": "address", "name": "tokenIn",           "type": "address"},
				{"internalType": "address", "name": "tokenOut",          "type": "address"},
				{"internalType": "uint256", "name": "amountIn",          "type": "uint256"},
				{"internalType": "uint24",  "name": "fee",               "type": "uint24"},
				{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
			],
			"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
			"name": "params",
			"type": "tuple"
		}],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut",               "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After",       "type": "uint160"},
			{"internalType": "uint32",  "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate",             "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{
			"components": [
				{"internalType": "address", "name": "tokenIn",           "type": "address"},
				{"internalType": "address", "name": "tokenOut",          "type": "address"},
				{"internalType": "uint256", "name": "amount",            "type": "uint256"},
				{"internalType": "uint24",  "name": "fee",               "type": "uint24"},
				{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
			],
			"internalType": "struct IQuoterV2.QuoteExactOutputSingleParams",
			"name": "params",
			"type": "tuple"
		}],
		"name": "quoteExactOutputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountIn",                "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After",       "type": "uint160"},
			{"internalType": "uint32",  "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate",             "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// flash-loan settlement contract: executeTrade only
const ArbitrageABI = `[
	{
		"inputs": [
			{"internalType": "address[]", "name": "_routerPath",  "type": "address[]"},
			{"internalType": "address[]", "name": "_tokenPath",   "type": "address[]"},
			{"internalType": "uint24[]",  "name": "_fee",         "type": "uint24[]"},
			{"internalType": "uint256",   "name": "_flashAmount", "type": "uint256"}
		],
		"name": "executeTrade",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`
