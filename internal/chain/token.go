package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Common ERC20 ABI function selectors
var (
	// decimals()
	decimalsSelector = common.Hex2Bytes("313ce567")
	// symbol()
	symbolSelector = common.Hex2Bytes("95d89b41")
)

// Token is ERC20 metadata read from the contract
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// tokenCache memoizes token metadata per chain; it never changes for a deployed contract.
type tokenCache struct {
	mu     sync.RWMutex
	tokens map[string]map[common.Address]*Token
}

func (tc *tokenCache) get(chainName string, addr common.Address) (*Token, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	t, ok := tc.tokens[chainName][addr]
	return t, ok
}

func (tc *tokenCache) put(chainName string, t *Token) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.tokens == nil {
		tc.tokens = make(map[string]map[common.Address]*Token)
	}
	if tc.tokens[chainName] == nil {
		tc.tokens[chainName] = make(map[common.Address]*Token)
	}
	tc.tokens[chainName][t.Address] = t
}

// GetToken reads symbol and decimals of an ERC20 contract. A contract that
// answers neither call is not treated as a token.
func (c *Client) GetToken(ctx context.Context, chainName string, tokenAddress common.Address) (*Token, error) {
	if t, ok := c.tokens.get(chainName, tokenAddress); ok {
		return t, nil
	}

	symbol, err := c.getTokenSymbol(ctx, chainName, tokenAddress)
	if err != nil {
		return nil, err
	}
	decimals, err := c.getTokenDecimals(ctx, chainName, tokenAddress)
	if err != nil {
		return nil, err
	}

	t := &Token{Address: tokenAddress, Symbol: symbol, Decimals: decimals}
	c.tokens.put(chainName, t)
	return t, nil
}

func (c *Client) getTokenSymbol(ctx context.Context, chainName string, tokenAddress common.Address) (string, error) {
	msg := ethereum.CallMsg{
		To:   &tokenAddress,
		Data: symbolSelector,
	}

	result, err := c.CallContract(ctx, chainName, msg)
	if err != nil {
		return "", err
	}

	return decodeString(result), nil
}

func (c *Client) getTokenDecimals(ctx context.Context, chainName string, tokenAddress common.Address) (uint8, error) {
	msg := ethereum.CallMsg{
		To:   &tokenAddress,
		Data: decimalsSelector,
	}

	result, err := c.CallContract(ctx, chainName, msg)
	if err != nil {
		return 18, err
	}

	if len(result) == 0 {
		return 18, nil
	}

	return uint8(new(big.Int).SetBytes(result).Uint64()), nil
}

// decodeString decodes an ABI-encoded string
func decodeString(data []byte) string {
	if len(data) < 64 {
		// Some tokens return a fixed bytes32 instead
		return strings.TrimRight(string(data), "\x00")
	}

	// offset (32 bytes) + length (32 bytes) + data
	length := new(big.Int).SetBytes(data[32:64]).Int64()
	if length == 0 || int(length) > len(data)-64 {
		return ""
	}

	return strings.TrimRight(string(data[64:64+length]), "\x00")
}

// FormatBalance formats an amount with decimals as a human-readable string
func FormatBalance(balance *big.Int, decimals uint8) string {
	if balance == nil {
		return "0"
	}

	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	balFloat := new(big.Float).SetInt(balance)
	result := new(big.Float).Quo(balFloat, divisor)

	if decimals > 6 {
		return result.Text('f', 6)
	}
	return result.Text('f', int(decimals))
}

// ParseAmount converts a decimal string like "1.5" into base units.
func ParseAmount(amount string, decimals uint8) (*big.Int, bool) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, false
	}
	whole, frac, _ := strings.Cut(amount, ".")
	if len(frac) > int(decimals) {
		return nil, false
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
