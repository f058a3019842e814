// Package simulator is an in-process signing device backed by a BIP-39 seed.
// It speaks the same Device contract as a Ledger and is used for development
// and tests.
package simulator

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/tyler-smith/go-bip39"

	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

// DevMnemonic is the well-known development mnemonic used by hardhat and anvil.
const DevMnemonic = "test test test test test test test test test test test junk"

// Device operations passed to a FaultFunc.
const (
	OpOpen          = "open"
	OpDerive        = "derive"
	OpSignTx        = "sign_transaction"
	OpSignTypedData = "sign_typed_data"
)

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrDigestMismatch  = errors.New("Ledger device: Invalid data received (0x6a80)")
)

// FaultFunc returns the error the device should report for op, or nil.
type FaultFunc func(op string) error

// Config configures the simulated device.
type Config struct {
	Mnemonic     string
	Passphrase   string
	ConfirmDelay time.Duration // time the "user" takes to approve a signature
	Logger       zerolog.Logger
}

// Transport hands out connections to one simulated device.
type Transport struct {
	master *hdkeychain.ExtendedKey
	delay  time.Duration
	log    zerolog.Logger

	mu     sync.Mutex
	fault  FaultFunc
	opens  int
	screen Screen
}

// Screen is what the device displays while the user reviews a transaction.
type Screen []string

// LastScreen returns the most recent transaction review, or nil.
func (t *Transport) LastScreen() Screen {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append(Screen(nil), t.screen...)
}

func (t *Transport) show(screen Screen) {
	t.mu.Lock()
	t.screen = screen
	t.mu.Unlock()
	t.log.Info().Strs("screen", screen).Msg("Review transaction")
}

// render lays out res the way the Ethereum app pages it. Amounts use the token
// decimals when the contract is a known ERC-20.
func render(res *wallet.Resolution) Screen {
	if res == nil {
		return Screen{"Blind signing"}
	}
	var screen Screen
	if res.ChainID != nil {
		screen = append(screen, "Chain ID: "+res.ChainID.String())
	}
	if res.To != nil {
		screen = append(screen, "To: "+strings.ToLower(res.To.Hex()))
	} else {
		screen = append(screen, "To: contract creation")
	}
	if res.ValueWei != nil && (res.Method == "" || res.ValueWei.Sign() > 0) {
		screen = append(screen, "Value: "+chain.FormatBalance(res.ValueWei, 18))
	}
	if res.Method == "" {
		return screen
	}

	screen = append(screen, "Method: "+res.Method)
	names := make([]string, 0, len(res.Args))
	for name := range res.Args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		arg := res.Args[name]
		if name == "amount" && res.Token != nil {
			if amount, ok := new(big.Int).SetString(arg, 10); ok {
				screen = append(screen, fmt.Sprintf("Amount: %s %s", chain.FormatBalance(amount, res.Token.Decimals), res.Token.Symbol))
				continue
			}
		}
		screen = append(screen, fmt.Sprintf("%s: %s", name, arg))
	}
	if res.Token != nil {
		screen = append(screen, fmt.Sprintf("Token: %s (%d decimals)", res.Token.Symbol, res.Token.Decimals))
	}
	return screen
}

var _ wallet.Transport = (*Transport)(nil)

// New derives the master key from cfg.Mnemonic, or DevMnemonic when empty.
func New(cfg Config) (*Transport, error) {
	mnemonic := cfg.Mnemonic
	if mnemonic == "" {
		mnemonic = DevMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	return &Transport{
		master: master,
		delay:  cfg.ConfirmDelay,
		log:    cfg.Logger.With().Str("component", "simulator").Logger(),
	}, nil
}

// InjectFault installs f; nil clears it.
func (t *Transport) InjectFault(f FaultFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fault = f
}

// Opens reports how many connections have been opened.
func (t *Transport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *Transport) faultFor(op string) error {
	t.mu.Lock()
	f := t.fault
	t.mu.Unlock()
	if f == nil {
		return nil
	}
	return f(op)
}

func (t *Transport) Open(ctx context.Context) (wallet.Device, error) {
	if err := t.faultFor(OpOpen); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.opens++
	t.mu.Unlock()
	t.log.Debug().Msg("Simulated device opened")
	return &device{t: t}, nil
}

// Key derives the private key at path.
func (t *Transport) Key(path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	key := t.master
	for _, index := range path {
		child, err := key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", path, err)
		}
		key = child
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return crypto.ToECDSA(priv.Serialize())
}

type device struct {
	t *Transport

	mu     sync.Mutex
	closed bool
}

func (d *device) check(op string) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return errors.New("wallet closed")
	}
	return d.t.faultFor(op)
}

// approve waits for the simulated user to press the button.
func (d *device) approve(ctx context.Context) error {
	if d.t.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(d.t.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *device) DeriveAddresses(ctx context.Context, paths []accounts.DerivationPath) ([]common.Address, error) {
	if err := d.check(OpDerive); err != nil {
		return nil, err
	}
	out := make([]common.Address, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key, err := d.t.Key(path)
		if err != nil {
			return nil, err
		}
		out[i] = crypto.PubkeyToAddress(key.PublicKey)
	}
	return out, nil
}

func (d *device) SignTransaction(ctx context.Context, req *wallet.TxSignRequest) (*wallet.Signature, error) {
	if err := d.check(OpSignTx); err != nil {
		return nil, err
	}
	if crypto.Keccak256Hash(req.Payload) != req.Digest {
		return nil, ErrDigestMismatch
	}
	d.t.show(render(req.Resolution))
	if err := d.approve(ctx); err != nil {
		return nil, err
	}
	key, err := d.t.Key(req.Path)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(req.Digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	// Typed transactions come back with the bare parity bit.
	return &wallet.Signature{
		V: new(big.Int).SetUint64(uint64(sig[64])),
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

func (d *device) SignTypedDataHash(ctx context.Context, path accounts.DerivationPath, domainHash, messageHash common.Hash) (*wallet.Signature, error) {
	if err := d.check(OpSignTypedData); err != nil {
		return nil, err
	}
	if err := d.approve(ctx); err != nil {
		return nil, err
	}
	key, err := d.t.Key(path)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(wallet.TypedDataDigest(domainHash, messageHash).Bytes(), key)
	if err != nil {
		return nil, err
	}
	return &wallet.Signature{
		V: new(big.Int).SetUint64(uint64(sig[64]) + 27),
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
