package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yolodolo42/walletkit/internal/metrics"
	"github.com/yolodolo42/walletkit/internal/tx"
)

// Strategy is the contract every signing backend implements, so callers never
// branch on wallet type. All errors returned are *ClassifiedError.
type Strategy interface {
	// Kind identifies the backend
	Kind() StrategyKind

	// GetAddresses lists the addresses this backend controls, in derivation order
	GetAddresses(ctx context.Context) ([]string, error)

	// Confirm returns a token proving address was produced in this session
	Confirm(ctx context.Context, address string) (string, error)

	// SendTransaction broadcasts a signed Cosmos transaction
	SendTransaction(ctx context.Context, txRaw []byte, opts CosmosTxOptions) (string, error)

	// SendEthereumTransaction signs req and submits it, returning the transaction hash
	SendEthereumTransaction(ctx context.Context, req tx.Request, opts EthereumTxOptions) (common.Hash, error)

	// SignTransaction signs an EIP-712 document and returns the r‖s‖v hex blob
	SignTransaction(ctx context.Context, typedData []byte, address string) (string, error)

	GetNetworkID(ctx context.Context) (string, error)
	GetChainID(ctx context.Context) (string, error)
	GetEthereumTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Disconnecter is implemented by strategies holding a connection or key material.
type Disconnecter interface {
	Disconnect(ctx context.Context) error
}

// StrategyKind represents the type of signing backend
type StrategyKind string

const (
	StrategyKeystore StrategyKind = "keystore"
	StrategyHardware StrategyKind = "hardware"
	StrategyInjected StrategyKind = "injected"
)

// EthereumTxOptions carries the sender and the chain the transaction is bound to.
type EthereumTxOptions struct {
	Address string
	ChainID *big.Int // nil asks the chain collaborator
}

// CosmosTxOptions identifies the sender of a Cosmos transaction.
type CosmosTxOptions struct {
	Address string
	ChainID string
}

// ChainRPC is the chain collaborator: nonce, ids, broadcast and receipts.
type ChainRPC interface {
	NonceAt(ctx context.Context, address common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	Broadcast(ctx context.Context, signedTxHex string) (common.Hash, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// GasEstimator is optionally implemented by a ChainRPC. It fills in a missing gas limit.
type GasEstimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// TokenResolver is optionally implemented by a ChainRPC. It enriches device resolutions.
type TokenResolver interface {
	TokenInfo(ctx context.Context, token common.Address) (*TokenInfo, error)
}

type options struct {
	log         zerolog.Logger
	now         func() time.Time
	policy      *tx.Policy
	priorityFee *big.Int
}

// Option configures a strategy.
type Option func(*options)

// WithLogger sets the strategy logger. Strategies are silent by default.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock overrides the time source used for confirmation tokens.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithPolicy rejects Ethereum transactions the policy does not allow before
// they reach a signer.
func WithPolicy(p tx.Policy) Option {
	return func(o *options) { o.policy = &p }
}

// WithDefaultPriorityFee sets the tip used when a request carries none.
func WithDefaultPriorityFee(wei *big.Int) Option {
	return func(o *options) { o.priorityFee = wei }
}

func newOptions(kind StrategyKind, opts []Option) options {
	o := options{log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.With().Str("strategy", string(kind)).Str("session", uuid.NewString()).Logger()
	return o
}

// fail classifies err for module, counts it and logs the raw cause. Every
// strategy error leaves through here.
func (o options) fail(module ContextModule, err error) error {
	classified := classify(err, module)
	var ce *ClassifiedError
	if errors.As(classified, &ce) {
		metrics.ClassifiedErrors.WithLabelValues(string(ce.Kind), string(ce.Module)).Inc()
		o.log.Warn().
			Str("module", string(ce.Module)).
			Str("kind", string(ce.Kind)).
			Int("code", ce.Code).
			Str("raw", ce.Raw()).
			Msg(ce.Message)
	}
	return classified
}

// confirmationToken hex-encodes a statement binding address to the current time.
func confirmationToken(address string, now time.Time) string {
	msg := fmt.Sprintf("Confirmation for %s at time: %d", address, now.UnixMilli())
	return "0x" + hex.EncodeToString([]byte(msg))
}

func confirm(address string, now time.Time) (string, error) {
	if _, err := normalizeAddress(address); err != nil {
		return "", invalidInput(ModuleConfirm, err)
	}
	return confirmationToken(address, now), nil
}

func chainIDFor(ctx context.Context, chain ChainRPC, opts EthereumTxOptions) (*big.Int, error) {
	if opts.ChainID != nil {
		return opts.ChainID, nil
	}
	return chain.ChainID(ctx)
}

// prepareEthereumTx fetches the nonce (and gas limit when missing) and builds
// the unsigned fee-market transaction.
func prepareEthereumTx(ctx context.Context, chain ChainRPC, req tx.Request, opts EthereumTxOptions, o options) (*tx.Unsigned, error) {
	if opts.Address != "" {
		if _, err := normalizeAddress(opts.Address); err != nil {
			return nil, invalidInput(ModuleSignEthereumTransaction, err)
		}
		req.From = common.HexToAddress(opts.Address)
	}
	if req.From == (common.Address{}) {
		return nil, newWalletError(ModuleSignEthereumTransaction, "sender address is required")
	}
	if o.policy != nil {
		if err := o.policy.Validate(req); err != nil {
			return nil, invalidInput(ModuleSignEthereumTransaction, err)
		}
	}

	chainID, err := chainIDFor(ctx, chain, opts)
	if err != nil {
		return nil, wrapNetworkError(err, ModuleSignEthereumTransaction)
	}
	nonce, err := chain.NonceAt(ctx, req.From)
	if err != nil {
		return nil, wrapNetworkError(err, ModuleSignEthereumTransaction)
	}

	if req.Gas == 0 {
		if estimator, ok := chain.(GasEstimator); ok {
			gas, err := estimator.EstimateGas(ctx, ethereum.CallMsg{
				From:      req.From,
				To:        req.To,
				GasFeeCap: req.MaxFeePerGas,
				GasTipCap: req.MaxPriorityFeePerGas,
				GasPrice:  req.GasPrice,
				Value:     req.ValueWei,
				Data:      req.Data,
			})
			if err != nil {
				return nil, wrapNetworkError(err, ModuleSignEthereumTransaction)
			}
			req.Gas = gas
		}
	}

	unsigned, err := tx.Build(req, nonce, chainID, o.priorityFee)
	if err != nil {
		return nil, invalidInput(ModuleSignEthereumTransaction, err)
	}
	return unsigned, nil
}

func broadcast(ctx context.Context, chain ChainRPC, signed *types.Transaction) (common.Hash, error) {
	encoded, err := tx.Encode(signed)
	if err != nil {
		return common.Hash{}, invalidInput(ModuleSendEthereumTransaction, err)
	}
	hash, err := chain.Broadcast(ctx, encoded)
	if err != nil {
		metrics.Broadcasts.WithLabelValues(signed.ChainId().String(), "error").Inc()
		return common.Hash{}, wrapNetworkError(err, ModuleSendEthereumTransaction)
	}
	metrics.Broadcasts.WithLabelValues(signed.ChainId().String(), "ok").Inc()
	return hash, nil
}

func networkID(ctx context.Context, chain ChainRPC) (string, error) {
	id, err := chain.NetworkID(ctx)
	if err != nil {
		return "", wrapNetworkError(err, ModuleGetNetworkID)
	}
	return id.String(), nil
}

func chainID(ctx context.Context, chain ChainRPC) (string, error) {
	id, err := chain.ChainID(ctx)
	if err != nil {
		return "", wrapNetworkError(err, ModuleGetChainID)
	}
	return id.String(), nil
}

func receipt(ctx context.Context, chain ChainRPC, txHash common.Hash) (*types.Receipt, error) {
	r, err := chain.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, wrapNetworkError(err, ModuleGetEthereumTransactionReceipt)
	}
	return r, nil
}
