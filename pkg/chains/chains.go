package chains

import (
	"fmt"
	"strconv"
	"strings"
)

// Chain describes an EVM network supported by Fusion+
type Chain struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	RPC  string `json:"rpc"`
}

// Token describes an ERC-20 token on a specific chain
type Token struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
}

// Chains is the list of networks the CLI knows how to route
var Chains = []Chain{
	{ID: 1, Name: "Ethereum", RPC: "https://eth.llamarpc.com"},
	{ID: 137, Name: "Polygon", RPC: "https://polygon-rpc.com"},
	{ID: 324, Name: "zkSync", RPC: "https://mainnet.era.zksync.io"},
	{ID: 56, Name: "Binance", RPC: "https://bsc-dataseed.binance.org/"},
	{ID: 42161, Name: "Arbitrum", RPC: "https://arb1.arbitrum.io/rpc"},
	{ID: 43114, Name: "Avalanche", RPC: "https://api.avax.network/ext/bc/C/rpc"},
	{ID: 10, Name: "Optimism", RPC: "https://mainnet.optimism.io"},
	{ID: 250, Name: "Fantom", RPC: "https://rpc.ftm.tools/"},
	{ID: 100, Name: "Gnosis", RPC: "https://rpc.gnosischain.com/"},
	{ID: 8453, Name: "Base", RPC: "https://mainnet.base.org"},
	{ID: 59144, Name: "Linea", RPC: "https://rpc.linea.build"},
}

// Tokens maps a chain id to the tokens tradable on it
var Tokens = map[int64][]Token{
	1: {
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		{Symbol: "WBTC", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
	},
	137: {
		{Symbol: "USDC", Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6},
		{Symbol: "USDT", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
		{Symbol: "WETH", Address: "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619", Decimals: 18},
		{Symbol: "WBTC", Address: "0x1bfd67037b42cf73acf2047067bd4f2c47d9bfd6", Decimals: 8},
	},
	324: {
		{Symbol: "USDC", Address: "0x1d17CBcF0D6D143135aE902365D2E5e2A16538D4", Decimals: 6},
		{Symbol: "USDT", Address: "0x493257fD37EDB34451f6232d22D691441065a26b", Decimals: 6},
		{Symbol: "WETH", Address: "0x5AEa5775959fBC2557Cc8789bC1bf90A239D9a91", Decimals: 18},
		{Symbol: "WBTC", Address: "0xBBeB516fbF1A48F4312f08304D70195684E88AB7", Decimals: 8},
	},
	56: {
		{Symbol: "USDC", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18},
		{Symbol: "USDT", Address: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18},
		{Symbol: "WETH", Address: "0x2170ed0880ac9a755fd29b2688956bd959f933f8", Decimals: 18},
		{Symbol: "WBTC", Address: "0x7130d2a12b9bcbfae4f2634d864a1ee1ce3ead9c", Decimals: 18},
	},
	42161: {
		{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		{Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6},
		{Symbol: "WETH", Address: "0x82af49447d8a07e3bd95bd0d56f35241523fbab1", Decimals: 18},
		{Symbol: "WBTC", Address: "0x2f2a2543b76a4166549f7aab2e75bef0aefc5b0f", Decimals: 8},
	},
	43114: {
		{Symbol: "USDC", Address: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Decimals: 6},
		{Symbol: "USDT", Address: "0x9702230A8Ea53601f5E225511125f90A9354FC13", Decimals: 6},
		{Symbol: "WETH.e", Address: "0x49d5c2d72cd2e47d5abddcf958ce3620cd10925d", Decimals: 18},
		{Symbol: "WBTC.e", Address: "0x50b7545627a5162f82a992c33b87adc75187b218", Decimals: 8},
	},
	10: {
		{Symbol: "USDC", Address: "0x7F5c764cBc14f9669B88837ca1490cCa17c31607", Decimals: 6},
		{Symbol: "USDT", Address: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", Decimals: 6},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		{Symbol: "WBTC", Address: "0x68f180fcce6836688e9084f035309e29bf0a2095", Decimals: 8},
	},
	250: {
		{Symbol: "USDC", Address: "0x04068DA6C83AFCFA0e13ba15A6696662335D5B75", Decimals: 6},
		{Symbol: "USDT", Address: "0x049d68029688eAbF473097a2fC38ef61633A3C7A", Decimals: 6},
		{Symbol: "WETH", Address: "0x74b23882a30290451a17c44f4f05243b6b58c76d", Decimals: 18},
		{Symbol: "WBTC", Address: "0x321162cd933e2be498cd2267a90534a804051b11", Decimals: 8},
	},
	100: {
		{Symbol: "USDC", Address: "0xDDAfbb505ad214D7b80b1f830fcCc89B60fb7A83", Decimals: 6},
		{Symbol: "USDT", Address: "0x4ECaBa5870353805a9F068101A40E0f324D46B0F", Decimals: 6},
		{Symbol: "WETH", Address: "0x6a023ccd1ff6f2045c3309768eaade8e6da8729b", Decimals: 18},
		{Symbol: "WBTC", Address: "0x8e5bBbb09Ed1ebdE8674Cda39A0c169401db4252", Decimals: 8},
	},
	8453: {
		{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		{Symbol: "USDT", Address: "0xd9aAEc86B65D86f6A7B5B1b0c42FFA531710b6CA", Decimals: 6},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	59144: {
		{Symbol: "USDC", Address: "0x176211869cA2b568f2A7D4EE941E073a821EE1ff", Decimals: 6},
		{Symbol: "USDT", Address: "0xA219439258ca9da29E9Cc442AFCD6099D5E8861d", Decimals: 6},
		{Symbol: "WETH", Address: "0xe5D7C2a44FfDDf6b295A15c148167daaAf5Cf34f", Decimals: 18},
	},
}

// Presets lists the auction presets in order of speed
var Presets = []string{"fast", "medium", "slow"}

var aliases = map[string]int64{
	"eth":      1,
	"mainnet":  1,
	"matic":    137,
	"pol":      137,
	"bsc":      56,
	"bnb":      56,
	"arb":      42161,
	"avax":     43114,
	"op":       10,
	"ftm":      250,
	"xdai":     100,
	"coinbase": 8453,
}

// ByID returns the chain with the given id
func ByID(id int64) (Chain, bool) {
	for _, c := range Chains {
		if c.ID == id {
			return c, true
		}
	}
	return Chain{}, false
}

// Find resolves a chain by numeric id, name or alias
func Find(nameOrID string) (Chain, error) {
	key := strings.ToLower(strings.TrimSpace(nameOrID))
	if key == "" {
		return Chain{}, fmt.Errorf("chain is required")
	}

	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		if c, ok := ByID(id); ok {
			return c, nil
		}
		return Chain{}, fmt.Errorf("chain id %d is not supported", id)
	}

	if id, ok := aliases[key]; ok {
		c, _ := ByID(id)
		return c, nil
	}

	for _, c := range Chains {
		if strings.ToLower(c.Name) == key {
			return c, nil
		}
	}

	return Chain{}, fmt.Errorf("chain '%s' not supported (try: fusion-swap chains)", nameOrID)
}

// FindToken searches for a token by symbol on a chain
func FindToken(chainID int64, symbol string) (Token, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	for _, t := range Tokens[chainID] {
		if strings.ToUpper(t.Symbol) == symbol {
			return t, nil
		}
	}

	// WETH.e style bridged symbols
	for _, t := range Tokens[chainID] {
		if strings.HasPrefix(strings.ToUpper(t.Symbol), symbol+".") {
			return t, nil
		}
	}

	return Token{}, fmt.Errorf("token '%s' not found on chain %d", symbol, chainID)
}

// IsPreset reports whether name is a known auction preset
func IsPreset(name string) bool {
	for _, p := range Presets {
		if p == name {
			return true
		}
	}
	return false
}

// TokenByAddress looks a token up by contract address
func TokenByAddress(chainID int64, address string) (Token, bool) {
	for _, t := range Tokens[chainID] {
		if strings.EqualFold(t.Address, address) {
			return t, true
		}
	}
	return Token{}, false
}
