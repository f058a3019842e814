package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yolodolo42/walletkit/internal/wallet"
)

// Binding pins a Client to one chain. It is the chain collaborator handed to
// wallet strategies.
type Binding struct {
	client *Client
	chain  string
}

var (
	_ wallet.ChainRPC      = (*Binding)(nil)
	_ wallet.GasEstimator  = (*Binding)(nil)
	_ wallet.TokenResolver = (*Binding)(nil)
)

// Bind returns a Binding for chainName. No connection is made until first use.
func (c *Client) Bind(chainName string) (*Binding, error) {
	if _, err := c.GetChainConfig(chainName); err != nil {
		return nil, err
	}
	return &Binding{client: c, chain: chainName}, nil
}

// Chain returns the bound chain name.
func (b *Binding) Chain() string {
	return b.chain
}

// Config returns the bound chain's configuration.
func (b *Binding) Config() *ChainConfig {
	config, _ := b.client.GetChainConfig(b.chain)
	return config
}

func (b *Binding) NonceAt(ctx context.Context, address common.Address) (uint64, error) {
	return b.client.GetNonce(ctx, b.chain, address)
}

func (b *Binding) ChainID(ctx context.Context) (*big.Int, error) {
	return b.client.ChainID(ctx, b.chain)
}

func (b *Binding) NetworkID(ctx context.Context) (*big.Int, error) {
	return b.client.NetworkID(ctx, b.chain)
}

// Broadcast decodes a 0x-prefixed EIP-2718 envelope and submits it.
func (b *Binding) Broadcast(ctx context.Context, signedTxHex string) (common.Hash, error) {
	raw, err := hexutil.Decode(signedTxHex)
	if err != nil {
		return common.Hash{}, fmt.Errorf("decode signed transaction: %w", err)
	}
	var signed types.Transaction
	if err := signed.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, fmt.Errorf("decode signed transaction: %w", err)
	}
	if err := b.client.SendTransaction(ctx, b.chain, &signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

func (b *Binding) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return b.client.GetTransactionReceipt(ctx, b.chain, txHash)
}

func (b *Binding) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return b.client.EstimateGas(ctx, b.chain, msg)
}

func (b *Binding) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return b.client.WaitMined(ctx, b.chain, txHash)
}

func (b *Binding) TokenInfo(ctx context.Context, token common.Address) (*wallet.TokenInfo, error) {
	t, err := b.client.GetToken(ctx, b.chain, token)
	if err != nil {
		return nil, err
	}
	return &wallet.TokenInfo{Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals}, nil
}
