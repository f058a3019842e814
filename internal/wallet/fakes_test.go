package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// fakeKey derives a throwaway key from the path text.
func fakeKey(path accounts.DerivationPath) *ecdsa.PrivateKey {
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte(path.String())))
	if err != nil {
		panic(err)
	}
	return key
}

func fakeAddress(path accounts.DerivationPath) common.Address {
	return crypto.PubkeyToAddress(fakeKey(path).PublicKey)
}

// fakeDevice is a scriptable Device and Transport.
type fakeDevice struct {
	mu sync.Mutex

	opens       int
	closes      int
	deriveCalls int
	derived     [][]accounts.DerivationPath
	lastTx      *TxSignRequest
	lastDomain  common.Hash
	lastMessage common.Hash

	openErr   error
	deriveErr error
	signErr   error
	short     bool // return one address fewer than asked

	// hang blocks commands until released or, when honorCtx is set, ctx ends.
	// inFlight, when set, is signalled as a command starts waiting.
	hang     chan struct{}
	honorCtx bool
	inFlight chan struct{}
}

func (f *fakeDevice) Open(ctx context.Context) (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	return f, nil
}

func (f *fakeDevice) wait(ctx context.Context) error {
	f.mu.Lock()
	hang, honor, inFlight := f.hang, f.honorCtx, f.inFlight
	f.mu.Unlock()
	if hang == nil {
		return nil
	}
	if inFlight != nil {
		select {
		case inFlight <- struct{}{}:
		default:
		}
	}
	if !honor {
		<-hang
		return nil
	}
	select {
	case <-hang:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeDevice) DeriveAddresses(ctx context.Context, paths []accounts.DerivationPath) ([]common.Address, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deriveCalls++
	f.derived = append(f.derived, paths)
	if f.deriveErr != nil {
		return nil, f.deriveErr
	}
	n := len(paths)
	if f.short {
		n--
	}
	out := make([]common.Address, n)
	for i := 0; i < n; i++ {
		out[i] = fakeAddress(paths[i])
	}
	return out, nil
}

func (f *fakeDevice) SignTransaction(ctx context.Context, req *TxSignRequest) (*Signature, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTx = req
	if f.signErr != nil {
		return nil, f.signErr
	}
	sig, err := crypto.Sign(req.Digest.Bytes(), fakeKey(req.Path))
	if err != nil {
		return nil, err
	}
	return &Signature{
		V: big.NewInt(int64(sig[64])),
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

func (f *fakeDevice) SignTypedDataHash(ctx context.Context, path accounts.DerivationPath, domainHash, messageHash common.Hash) (*Signature, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDomain, f.lastMessage = domainHash, messageHash
	if f.signErr != nil {
		return nil, f.signErr
	}
	sig, err := crypto.Sign(TypedDataDigest(domainHash, messageHash).Bytes(), fakeKey(path))
	if err != nil {
		return nil, err
	}
	return &Signature{
		V: big.NewInt(int64(sig[64]) + 27),
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

func (f *fakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeDevice) stats() (opens, derives int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.deriveCalls
}

func (f *fakeDevice) set(fn func(f *fakeDevice)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// directDeriver feeds an AccountManager straight from a fakeDevice.
type directDeriver struct {
	dev *fakeDevice
}

func (d directDeriver) DeriveAddresses(ctx context.Context, paths []accounts.DerivationPath) ([]common.Address, error) {
	return d.dev.DeriveAddresses(ctx, paths)
}

func liveAddress(index uint32) string {
	return fakeAddress(DerivationLedgerLive.Path(index)).Hex()
}

func classified(t *testing.T, err error) *ClassifiedError {
	t.Helper()
	var ce *ClassifiedError
	require.ErrorAs(t, err, &ce)
	return ce
}
