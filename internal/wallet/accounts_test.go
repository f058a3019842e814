package wallet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivationScheme_Path(t *testing.T) {
	assert.Equal(t, "m/44'/60'/0'/0/0", DerivationLedgerLive.Path(0).String())
	assert.Equal(t, "m/44'/60'/7'/0/0", DerivationLedgerLive.Path(7).String())
	assert.Equal(t, "m/44'/60'/0'/0", DerivationLedgerMew.Path(0).String())
	assert.Equal(t, "m/44'/60'/0'/7", DerivationLedgerMew.Path(7).String())
}

func TestParseDerivationScheme(t *testing.T) {
	tests := []struct {
		in      string
		want    DerivationScheme
		wantErr bool
	}{
		{in: "", want: DerivationLedgerLive},
		{in: "ledger-live", want: DerivationLedgerLive},
		{in: " Ledger-Live ", want: DerivationLedgerLive},
		{in: "ledger-mew", want: DerivationLedgerMew},
		{in: "legacy", want: DerivationLedgerMew},
		{in: "trezor", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDerivationScheme(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestManager(dev *fakeDevice, batch, limit int) *AccountManager {
	return NewAccountManager(directDeriver{dev}, AccountManagerConfig{
		Scheme:      DerivationLedgerLive,
		BatchSize:   batch,
		SearchLimit: limit,
	})
}

func TestAccountManager_Scan(t *testing.T) {
	dev := &fakeDevice{}
	m := newTestManager(dev, 0, 0)

	accs, err := m.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, accs, DefaultBatchSize)
	for i, acc := range accs {
		assert.Equal(t, uint32(i), acc.Index)
		assert.Equal(t, strings.ToLower(liveAddress(uint32(i))), acc.Address)
		assert.Equal(t, DerivationLedgerLive.Path(uint32(i)).String(), acc.DerivationPath)
	}

	_, err = m.Scan(context.Background())
	require.NoError(t, err)
	_, derives := dev.stats()
	assert.Equal(t, 1, derives, "a second scan reuses the cache")
}

func TestAccountManager_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("index 12 takes three batches", func(t *testing.T) {
		dev := &fakeDevice{}
		m := newTestManager(dev, 5, 40)

		acc, err := m.Resolve(ctx, liveAddress(12))
		require.NoError(t, err)
		assert.Equal(t, uint32(12), acc.Index)
		assert.Equal(t, "m/44'/60'/12'/0/0", acc.Path().String())

		_, derives := dev.stats()
		assert.Equal(t, 3, derives)
		assert.Equal(t, 15, m.Frontier())
	})

	t.Run("cached address does not touch the device", func(t *testing.T) {
		dev := &fakeDevice{}
		m := newTestManager(dev, 5, 40)

		_, err := m.Resolve(ctx, liveAddress(3))
		require.NoError(t, err)
		_, err = m.Resolve(ctx, "0x"+strings.ToUpper(liveAddress(3)[2:]))
		require.NoError(t, err)
		_, err = m.Resolve(ctx, strings.ToLower(liveAddress(3)))
		require.NoError(t, err)

		_, derives := dev.stats()
		assert.Equal(t, 1, derives)
	})

	t.Run("not found stops at the search limit", func(t *testing.T) {
		dev := &fakeDevice{}
		m := newTestManager(dev, 5, 40)

		_, err := m.Resolve(ctx, liveAddress(40))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAccountNotFound)

		_, derives := dev.stats()
		assert.Equal(t, 8, derives)
		assert.Equal(t, 40, m.Frontier())

		_, err = m.Resolve(ctx, liveAddress(41))
		assert.ErrorIs(t, err, ErrAccountNotFound)
		_, derives = dev.stats()
		assert.Equal(t, 8, derives, "an exhausted search does not fetch again")

		acc, err := m.Resolve(ctx, liveAddress(39))
		require.NoError(t, err)
		assert.Equal(t, uint32(39), acc.Index)
	})

	t.Run("last batch is clipped to the limit", func(t *testing.T) {
		dev := &fakeDevice{}
		m := newTestManager(dev, 5, 12)

		_, err := m.Resolve(ctx, liveAddress(20))
		assert.ErrorIs(t, err, ErrAccountNotFound)

		dev.mu.Lock()
		defer dev.mu.Unlock()
		require.Len(t, dev.derived, 3)
		assert.Len(t, dev.derived[2], 2)
		assert.Equal(t, 12, m.Frontier())
	})

	t.Run("invalid address", func(t *testing.T) {
		m := newTestManager(&fakeDevice{}, 5, 40)
		_, err := m.Resolve(ctx, "0x1234")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("failed batch leaves the cache untouched", func(t *testing.T) {
		dev := &fakeDevice{}
		m := newTestManager(dev, 5, 40)
		_, err := m.Scan(ctx)
		require.NoError(t, err)

		boom := errors.New("Ledger device: UNKNOWN_ERROR (0x6f00)")
		dev.set(func(f *fakeDevice) { f.deriveErr = boom })
		_, err = m.Resolve(ctx, liveAddress(7))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 5, m.Frontier())

		dev.set(func(f *fakeDevice) { f.deriveErr = nil })
		acc, err := m.Resolve(ctx, liveAddress(7))
		require.NoError(t, err)
		assert.Equal(t, uint32(7), acc.Index)
	})

	t.Run("short batch is rejected", func(t *testing.T) {
		dev := &fakeDevice{short: true}
		m := newTestManager(dev, 5, 40)

		_, err := m.Scan(ctx)
		assert.ErrorIs(t, err, ErrDeviceMismatch)
		assert.Equal(t, 0, m.Frontier())
	})
}

func TestAccountManager_ConcurrentResolve(t *testing.T) {
	dev := &fakeDevice{}
	m := newTestManager(dev, 5, 40)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Resolve(context.Background(), liveAddress(12))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	_, derives := dev.stats()
	assert.Equal(t, 3, derives, "concurrent searches share one scan")

	accs := m.Accounts()
	require.Len(t, accs, 15)
	for i, acc := range accs {
		assert.Equal(t, uint32(i), acc.Index, "indices stay contiguous")
	}
}

func TestAccountManager_CancelledScan(t *testing.T) {
	dev := &fakeDevice{hang: make(chan struct{}), honorCtx: true}
	m := newTestManager(dev, 5, 40)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Resolve(ctx, liveAddress(3))
		done <- err
	}()
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Frontier())
}
