package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/yolodolo42/walletkit/internal/metrics"
	"github.com/yolodolo42/walletkit/internal/tx"
)

// HardwareConfig tunes a HardwareStrategy.
type HardwareConfig struct {
	Scheme      DerivationScheme
	BatchSize   int
	SearchLimit int
	Timeout     time.Duration // bounds each device round trip, zero disables
}

// HardwareStrategy signs with a hardware device reached through a Transport.
// Device commands are serialized; reads against the account cache are not.
type HardwareStrategy struct {
	conn     *deviceConn
	accounts *AccountManager
	chain    ChainRPC
	opts     options
	log      zerolog.Logger
}

var (
	_ Strategy     = (*HardwareStrategy)(nil)
	_ Disconnecter = (*HardwareStrategy)(nil)
)

// NewHardwareStrategy creates a strategy over transport. The device is opened
// lazily on first use.
func NewHardwareStrategy(transport Transport, chain ChainRPC, cfg HardwareConfig, opts ...Option) *HardwareStrategy {
	o := newOptions(StrategyHardware, opts)
	h := &HardwareStrategy{
		conn:  newDeviceConn(transport, cfg.Timeout),
		chain: chain,
		opts:  o,
		log:   o.log,
	}
	h.accounts = NewAccountManager(deviceDeriver{h}, AccountManagerConfig{
		Scheme:      cfg.Scheme,
		BatchSize:   cfg.BatchSize,
		SearchLimit: cfg.SearchLimit,
		Logger:      o.log,
	})
	return h
}

func (h *HardwareStrategy) Kind() StrategyKind {
	return StrategyHardware
}

// Accounts exposes the account cache, e.g. to show derivation paths.
func (h *HardwareStrategy) Accounts() *AccountManager {
	return h.accounts
}

// device runs fn with exclusive device access and records its outcome.
func (h *HardwareStrategy) device(ctx context.Context, op string, fn func(ctx context.Context, d Device) error) error {
	start := time.Now()
	err := h.conn.do(ctx, fn)
	metrics.DeviceOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.DeviceOperations.WithLabelValues(op, status).Inc()
	h.log.Debug().Str("op", op).Dur("took", time.Since(start)).Err(err).Msg("Device command")
	return err
}

type deviceDeriver struct {
	h *HardwareStrategy
}

func (d deviceDeriver) DeriveAddresses(ctx context.Context, paths []accounts.DerivationPath) ([]common.Address, error) {
	var out []common.Address
	err := d.h.device(ctx, "derive", func(ctx context.Context, dev Device) error {
		addrs, err := dev.DeriveAddresses(ctx, paths)
		out = addrs
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (h *HardwareStrategy) GetAddresses(ctx context.Context) ([]string, error) {
	accs, err := h.accounts.Scan(ctx)
	if err != nil {
		return nil, h.opts.fail(ModuleGetAccounts, err)
	}
	addrs := make([]string, len(accs))
	for i, acc := range accs {
		addrs[i] = acc.Address
	}
	return addrs, nil
}

func (h *HardwareStrategy) Confirm(ctx context.Context, address string) (string, error) {
	token, err := confirm(address, h.opts.now())
	if err != nil {
		return "", h.opts.fail(ModuleConfirm, err)
	}
	return token, nil
}

// SendTransaction is not supported: the device only signs Ethereum transactions.
func (h *HardwareStrategy) SendTransaction(ctx context.Context, txRaw []byte, opts CosmosTxOptions) (string, error) {
	return "", h.opts.fail(ModuleSendTransaction,
		newWalletError(ModuleSendTransaction, "SendTransaction is not supported. Hardware wallets only support sending Ethereum transactions"))
}

func (h *HardwareStrategy) SendEthereumTransaction(ctx context.Context, req tx.Request, opts EthereumTxOptions) (common.Hash, error) {
	signed, err := h.signEthereumTransaction(ctx, req, opts)
	if err != nil {
		return common.Hash{}, h.opts.fail(ModuleSignEthereumTransaction, err)
	}
	hash, err := broadcast(ctx, h.chain, signed)
	if err != nil {
		return common.Hash{}, h.opts.fail(ModuleSendEthereumTransaction, err)
	}
	h.log.Info().Str("hash", hash.Hex()).Uint64("nonce", signed.Nonce()).Msg("Transaction broadcast")
	return hash, nil
}

func (h *HardwareStrategy) signEthereumTransaction(ctx context.Context, req tx.Request, opts EthereumTxOptions) (*types.Transaction, error) {
	unsigned, err := prepareEthereumTx(ctx, h.chain, req, opts, h.opts)
	if err != nil {
		return nil, err
	}
	acc, err := h.accounts.Resolve(ctx, unsigned.From.Hex())
	if err != nil {
		return nil, err
	}
	payload, err := unsigned.SigningPayload()
	if err != nil {
		return nil, err
	}

	signReq := &TxSignRequest{
		Path:       acc.Path(),
		Tx:         unsigned.Transaction(),
		ChainID:    unsigned.ChainID.ToInt(),
		Payload:    payload,
		Digest:     unsigned.Digest(),
		Resolution: resolve(ctx, h.chain, unsigned, h.log),
	}
	h.log.Info().Str("path", acc.DerivationPath).Str("module", string(ModuleSignEthereumTransaction)).Msg("Awaiting device signature")
	var sig *Signature
	err = h.device(ctx, "sign_transaction", func(ctx context.Context, d Device) error {
		s, err := d.SignTransaction(ctx, signReq)
		sig = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return unsigned.WithSignature(sig.V, sig.R, sig.S)
}

// SignTransaction signs an EIP-712 document with the key behind address. The
// device receives the domain and message hashes, never the document itself.
func (h *HardwareStrategy) SignTransaction(ctx context.Context, typedData []byte, address string) (string, error) {
	domain, message, err := TypedDataHashes(typedData)
	if err != nil {
		return "", h.opts.fail(ModuleSignTransaction, err)
	}
	acc, err := h.accounts.Resolve(ctx, address)
	if err != nil {
		return "", h.opts.fail(ModuleSignTransaction, err)
	}

	h.log.Info().Str("path", acc.DerivationPath).Str("module", string(ModuleSignTransaction)).Msg("Awaiting device signature")
	var sig *Signature
	err = h.device(ctx, "sign_typed_data", func(ctx context.Context, d Device) error {
		s, err := d.SignTypedDataHash(ctx, acc.Path(), domain, message)
		sig = s
		return err
	})
	if err != nil {
		return "", h.opts.fail(ModuleSignTransaction, err)
	}
	return sig.Hex(), nil
}

func (h *HardwareStrategy) GetNetworkID(ctx context.Context) (string, error) {
	id, err := networkID(ctx, h.chain)
	if err != nil {
		return "", h.opts.fail(ModuleGetNetworkID, err)
	}
	return id, nil
}

func (h *HardwareStrategy) GetChainID(ctx context.Context) (string, error) {
	id, err := chainID(ctx, h.chain)
	if err != nil {
		return "", h.opts.fail(ModuleGetChainID, err)
	}
	return id, nil
}

func (h *HardwareStrategy) GetEthereumTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, err := receipt(ctx, h.chain, txHash)
	if err != nil {
		return nil, h.opts.fail(ModuleGetEthereumTransactionReceipt, err)
	}
	return r, nil
}

// Disconnect closes the device and fails in-flight commands. Cached accounts
// survive; the next command reopens the transport.
func (h *HardwareStrategy) Disconnect(ctx context.Context) error {
	if err := h.conn.Disconnect(); err != nil {
		return fmt.Errorf("disconnect device: %w", err)
	}
	h.log.Debug().Msg("Device disconnected")
	return nil
}
