package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultChains(t *testing.T) {
	chains := DefaultChains()

	t.Run("returns all expected chains", func(t *testing.T) {
		expectedChains := []string{
			"ethereum",
			"base",
			"arbitrum",
			"polygon",
			"sepolia",
			"localhost",
		}

		assert.Len(t, chains, len(expectedChains))
		for _, name := range expectedChains {
			_, ok := chains[name]
			assert.True(t, ok, "missing chain: %s", name)
		}
	})

	t.Run("ethereum config is correct", func(t *testing.T) {
		eth := chains["ethereum"]
		require.NotNil(t, eth)

		assert.Equal(t, "Ethereum Mainnet", eth.Name)
		assert.Equal(t, int64(1), eth.ChainID.Int64())
		assert.NotEmpty(t, eth.RPCURLs)
		assert.Equal(t, "ETH", eth.NativeCurrency)
		assert.False(t, eth.IsTestnet)
	})

	t.Run("localhost is a hardhat-compatible devnet", func(t *testing.T) {
		local := chains["localhost"]
		require.NotNil(t, local)

		assert.Equal(t, int64(31337), local.ChainID.Int64())
		assert.True(t, local.IsTestnet)
	})

	t.Run("all chains have RPC URLs", func(t *testing.T) {
		for name, config := range chains {
			assert.NotEmpty(t, config.RPCURLs, "chain %s has no RPC URLs", name)
		}
	})

	t.Run("chainID matches chainIDInt", func(t *testing.T) {
		for name, config := range chains {
			assert.Equal(t, config.ChainIDInt, config.ChainID.Int64(),
				"chain %s: ChainID and ChainIDInt mismatch", name)
		}
	})
}

func TestChainConfig_Normalize(t *testing.T) {
	t.Run("fills chain id and currency", func(t *testing.T) {
		cfg := &ChainConfig{Name: "injective-evm", ChainIDInt: 1776, RPCURLs: []string{"http://rpc"}}
		require.NoError(t, cfg.Normalize())

		assert.Equal(t, int64(1776), cfg.ChainID.Int64())
		assert.Equal(t, "ETH", cfg.NativeCurrency)
	})

	t.Run("rejects missing chain id", func(t *testing.T) {
		cfg := &ChainConfig{Name: "broken", RPCURLs: []string{"http://rpc"}}
		assert.Error(t, cfg.Normalize())
	})

	t.Run("rejects missing rpc urls", func(t *testing.T) {
		cfg := &ChainConfig{Name: "broken", ChainIDInt: 5}
		assert.Error(t, cfg.Normalize())
	})
}
