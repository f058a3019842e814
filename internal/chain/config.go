package chain

import (
	"fmt"
	"math/big"
)

// ChainConfig holds configuration for an EVM chain.
// ChainID and ChainIDInt always represent the same value; ChainIDInt is the
// form read from config files.
type ChainConfig struct {
	Name           string   `mapstructure:"name"`
	ChainID        *big.Int `mapstructure:"-"`
	ChainIDInt     int64    `mapstructure:"chain_id"`
	RPCURLs        []string `mapstructure:"rpc_urls"`
	ExplorerURL    string   `mapstructure:"explorer_url"`
	NativeCurrency string   `mapstructure:"native_currency"`
	IsTestnet      bool     `mapstructure:"is_testnet"`
}

// Normalize fills ChainID from ChainIDInt and checks the config is usable.
func (c *ChainConfig) Normalize() error {
	if c.ChainIDInt <= 0 {
		return fmt.Errorf("chain %q: chain_id must be positive", c.Name)
	}
	if len(c.RPCURLs) == 0 {
		return fmt.Errorf("chain %q: at least one rpc url is required", c.Name)
	}
	c.ChainID = big.NewInt(c.ChainIDInt)
	if c.NativeCurrency == "" {
		c.NativeCurrency = "ETH"
	}
	return nil
}

// DefaultChains returns the default chain configurations
func DefaultChains() map[string]*ChainConfig {
	return map[string]*ChainConfig{
		"ethereum": {
			Name:           "Ethereum Mainnet",
			ChainID:        big.NewInt(1),
			ChainIDInt:     1,
			RPCURLs:        []string{"https://eth.llamarpc.com", "https://rpc.ankr.com/eth"},
			ExplorerURL:    "https://etherscan.io",
			NativeCurrency: "ETH",
		},
		"base": {
			Name:           "Base",
			ChainID:        big.NewInt(8453),
			ChainIDInt:     8453,
			RPCURLs:        []string{"https://mainnet.base.org", "https://base.llamarpc.com"},
			ExplorerURL:    "https://basescan.org",
			NativeCurrency: "ETH",
		},
		"arbitrum": {
			Name:           "Arbitrum One",
			ChainID:        big.NewInt(42161),
			ChainIDInt:     42161,
			RPCURLs:        []string{"https://arb1.arbitrum.io/rpc", "https://arbitrum.llamarpc.com"},
			ExplorerURL:    "https://arbiscan.io",
			NativeCurrency: "ETH",
		},
		"polygon": {
			Name:           "Polygon",
			ChainID:        big.NewInt(137),
			ChainIDInt:     137,
			RPCURLs:        []string{"https://polygon-rpc.com", "https://polygon.llamarpc.com"},
			ExplorerURL:    "https://polygonscan.com",
			NativeCurrency: "MATIC",
		},
		"sepolia": {
			Name:           "Sepolia Testnet",
			ChainID:        big.NewInt(11155111),
			ChainIDInt:     11155111,
			RPCURLs:        []string{"https://rpc.sepolia.org", "https://sepolia.drpc.org"},
			ExplorerURL:    "https://sepolia.etherscan.io",
			NativeCurrency: "ETH",
			IsTestnet:      true,
		},
		"localhost": {
			Name:           "Local Devnet",
			ChainID:        big.NewInt(31337),
			ChainIDInt:     31337,
			RPCURLs:        []string{"http://127.0.0.1:8545"},
			ExplorerURL:    "http://127.0.0.1:8545",
			NativeCurrency: "ETH",
			IsTestnet:      true,
		},
	}
}
