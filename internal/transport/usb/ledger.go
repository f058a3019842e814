// Package usb reaches Ledger devices over USB HID through go-ethereum's usbwallet driver.
package usb

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yolodolo42/walletkit/internal/wallet"
)

var ErrNoDevice = errors.New("no Ledger device found")

// Transport opens the first Ledger attached to the host.
type Transport struct {
	log zerolog.Logger

	once   sync.Once
	hub    *usbwallet.Hub
	hubErr error
}

var _ wallet.Transport = (*Transport)(nil)

func NewTransport(log zerolog.Logger) *Transport {
	return &Transport{log: log.With().Str("component", "usb").Logger()}
}

func (t *Transport) Open(ctx context.Context) (wallet.Device, error) {
	t.once.Do(func() {
		t.hub, t.hubErr = usbwallet.NewLedgerHub()
	})
	if t.hubErr != nil {
		return nil, fmt.Errorf("Failed to open the device: %w", t.hubErr)
	}

	wallets := t.hub.Wallets()
	if len(wallets) == 0 {
		return nil, ErrNoDevice
	}
	w := wallets[0]
	if err := w.Open(""); err != nil && !errors.Is(err, accounts.ErrWalletAlreadyOpen) {
		return nil, fmt.Errorf("Failed to open the device: %w", err)
	}

	// The driver opens even when the Ethereum app is not in the foreground.
	if status, err := w.Status(); err != nil || !strings.HasSuffix(status, " online") {
		_ = w.Close()
		if err != nil {
			return nil, err
		}
		return nil, errors.New(status)
	}

	t.log.Debug().Str("url", w.URL().String()).Msg("Ledger opened")
	return &device{wallet: w}, nil
}

// device adapts an opened usbwallet. The driver has its own comms lock and does
// not observe ctx; callers bound it from outside.
type device struct {
	wallet accounts.Wallet
}

func (d *device) DeriveAddresses(ctx context.Context, paths []accounts.DerivationPath) ([]common.Address, error) {
	out := make([]common.Address, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc, err := d.wallet.Derive(path, false)
		if err != nil {
			return nil, err
		}
		out = append(out, acc.Address)
	}
	return out, nil
}

func (d *device) SignTransaction(ctx context.Context, req *wallet.TxSignRequest) (*wallet.Signature, error) {
	acc, err := d.wallet.Derive(req.Path, true)
	if err != nil {
		return nil, err
	}
	signed, err := d.wallet.SignTx(acc, req.Tx, req.ChainID)
	if err != nil {
		return nil, err
	}
	v, r, s := signed.RawSignatureValues()
	return &wallet.Signature{
		V: v,
		R: common.BigToHash(r),
		S: common.BigToHash(s),
	}, nil
}

func (d *device) SignTypedDataHash(ctx context.Context, path accounts.DerivationPath, domainHash, messageHash common.Hash) (*wallet.Signature, error) {
	acc, err := d.wallet.Derive(path, true)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, 66)
	payload = append(payload, 0x19, 0x01)
	payload = append(payload, domainHash.Bytes()...)
	payload = append(payload, messageHash.Bytes()...)

	sig, err := d.wallet.SignData(acc, accounts.MimetypeTypedData, payload)
	if err != nil {
		return nil, err
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	return &wallet.Signature{
		V: new(big.Int).SetUint64(uint64(sig[64])),
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

func (d *device) Close() error {
	return d.wallet.Close()
}
