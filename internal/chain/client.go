package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/yolodolo42/walletkit/internal/metrics"
)

const (
	dialTimeout    = 10 * time.Second
	verifyTimeout  = 5 * time.Second
	receiptPollGap = 2 * time.Second
)

// Client holds one verified RPC connection per chain. Connections are made on
// first use, trying each configured URL in order.
type Client struct {
	chains  map[string]*ChainConfig
	clients map[string]*ethclient.Client
	log     zerolog.Logger
	tokens  tokenCache
	mu      sync.Mutex
}

// NewClient starts from the built-in chains.
func NewClient() *Client {
	return &Client{
		chains:  DefaultChains(),
		clients: make(map[string]*ethclient.Client),
		log:     zerolog.Nop(),
	}
}

// SetLogger sets the logger used for connection attempts
func (c *Client) SetLogger(log zerolog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = log.With().Str("component", "chain").Logger()
}

// AddChain adds or overrides a chain configuration. An open connection to a
// chain of the same name is dropped.
func (c *Client) AddChain(name string, config *ChainConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[name]; ok {
		client.Close()
		delete(c.clients, name)
	}
	c.chains[name] = config
}

// GetChainConfig returns the configuration for a chain
func (c *Client) GetChainConfig(chainName string) (*ChainConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	config, ok := c.chains[chainName]
	if !ok {
		return nil, fmt.Errorf("unknown chain: %s", chainName)
	}
	return config, nil
}

// connect returns the cached connection for chainName or dials one. The lock
// is held across dialing so concurrent callers share a single connection.
func (c *Client) connect(chainName string) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	config, ok := c.chains[chainName]
	if !ok {
		return nil, fmt.Errorf("unknown chain: %s", chainName)
	}
	if client, ok := c.clients[chainName]; ok {
		return client, nil
	}

	var lastErr error
	for _, rpcURL := range config.RPCURLs {
		client, err := dialVerified(rpcURL, config.ChainID)
		if err != nil {
			c.log.Debug().Err(err).Str("chain", chainName).Str("rpc", rpcURL).Msg("RPC endpoint rejected")
			lastErr = err
			continue
		}
		c.log.Debug().Str("chain", chainName).Str("rpc", rpcURL).Msg("Connected")
		c.clients[chainName] = client
		return client, nil
	}
	return nil, fmt.Errorf("failed to connect to %s: %w", chainName, lastErr)
}

// dialVerified connects to rpcURL and checks it serves the expected chain.
func dialVerified(rpcURL string, want *big.Int) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	client, err := ethclient.DialContext(ctx, rpcURL)
	cancel()
	if err != nil {
		return nil, err
	}

	ctx, cancel = context.WithTimeout(context.Background(), verifyTimeout)
	got, err := client.ChainID(ctx)
	cancel()
	if err != nil {
		client.Close()
		return nil, err
	}
	if got.Cmp(want) != 0 {
		client.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %s, got %s", want, got)
	}
	return client, nil
}

// call runs one RPC method against chainName and records it.
func call[T any](c *Client, chainName, method string, fn func(client *ethclient.Client) (T, error)) (T, error) {
	var zero T
	client, err := c.connect(chainName)
	if err != nil {
		metrics.RPCRequests.WithLabelValues(chainName, method, "unavailable").Inc()
		return zero, err
	}

	start := time.Now()
	out, err := fn(client)
	metrics.RPCDuration.WithLabelValues(chainName, method).Observe(time.Since(start).Seconds())

	status := "ok"
	switch {
	case errors.Is(err, ethereum.NotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	metrics.RPCRequests.WithLabelValues(chainName, method, status).Inc()
	return out, err
}

func (c *Client) ChainID(ctx context.Context, chainName string) (*big.Int, error) {
	return call(c, chainName, "eth_chainId", func(client *ethclient.Client) (*big.Int, error) {
		return client.ChainID(ctx)
	})
}

// NetworkID returns the p2p network id (net_version)
func (c *Client) NetworkID(ctx context.Context, chainName string) (*big.Int, error) {
	return call(c, chainName, "net_version", func(client *ethclient.Client) (*big.Int, error) {
		return client.NetworkID(ctx)
	})
}

// GetNonce returns the pending nonce for an address
func (c *Client) GetNonce(ctx context.Context, chainName string, address common.Address) (uint64, error) {
	return call(c, chainName, "eth_getTransactionCount", func(client *ethclient.Client) (uint64, error) {
		return client.PendingNonceAt(ctx, address)
	})
}

func (c *Client) EstimateGas(ctx context.Context, chainName string, msg ethereum.CallMsg) (uint64, error) {
	return call(c, chainName, "eth_estimateGas", func(client *ethclient.Client) (uint64, error) {
		return client.EstimateGas(ctx, msg)
	})
}

// SendTransaction submits a signed transaction
func (c *Client) SendTransaction(ctx context.Context, chainName string, tx *types.Transaction) error {
	_, err := call(c, chainName, "eth_sendRawTransaction", func(client *ethclient.Client) (struct{}, error) {
		return struct{}{}, client.SendTransaction(ctx, tx)
	})
	return err
}

// GetTransactionReceipt returns ethereum.NotFound while the transaction is pending.
func (c *Client) GetTransactionReceipt(ctx context.Context, chainName string, txHash common.Hash) (*types.Receipt, error) {
	return call(c, chainName, "eth_getTransactionReceipt", func(client *ethclient.Client) (*types.Receipt, error) {
		return client.TransactionReceipt(ctx, txHash)
	})
}

// WaitMined polls for the receipt until it exists or ctx ends. Errors other
// than not-found are logged and retried.
func (c *Client) WaitMined(ctx context.Context, chainName string, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollGap)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.GetTransactionReceipt(ctx, chainName, txHash)
			switch {
			case err == nil:
				return receipt, nil
			case !errors.Is(err, ethereum.NotFound):
				c.log.Debug().Err(err).Str("tx", txHash.Hex()).Msg("Receipt poll failed")
			}
		}
	}
}

// CallContract executes a read-only call at the latest block
func (c *Client) CallContract(ctx context.Context, chainName string, msg ethereum.CallMsg) ([]byte, error) {
	return call(c, chainName, "eth_call", func(client *ethclient.Client) ([]byte, error) {
		return client.CallContract(ctx, msg, nil)
	})
}

// Close closes all client connections
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		client.Close()
	}
	c.clients = make(map[string]*ethclient.Client)
}
