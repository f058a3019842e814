package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yolodolo42/walletkit/internal/metrics"
)

const (
	DefaultBatchSize   = 5
	DefaultSearchLimit = 40
)

var ErrInvalidAddress = errors.New("invalid address")

// DerivationScheme selects how an account index maps onto a BIP-44 path below m/44'/60'.
type DerivationScheme string

const (
	// DerivationLedgerLive walks the account level: m/44'/60'/i'/0/0.
	DerivationLedgerLive DerivationScheme = "ledger-live"
	// DerivationLedgerMew walks the legacy Ledger/MEW layout: m/44'/60'/0'/i.
	DerivationLedgerMew DerivationScheme = "ledger-mew"
)

const hardened = 0x80000000

// ParseDerivationScheme accepts the config spelling of a scheme.
func ParseDerivationScheme(s string) (DerivationScheme, error) {
	switch DerivationScheme(strings.ToLower(strings.TrimSpace(s))) {
	case DerivationLedgerLive, "":
		return DerivationLedgerLive, nil
	case DerivationLedgerMew, "legacy":
		return DerivationLedgerMew, nil
	default:
		return "", fmt.Errorf("unknown derivation scheme: %s", s)
	}
}

// Path returns the derivation path of account index under the scheme.
func (s DerivationScheme) Path(index uint32) accounts.DerivationPath {
	if s == DerivationLedgerMew {
		return accounts.DerivationPath{hardened + 44, hardened + 60, hardened + 0, index}
	}
	return accounts.DerivationPath{hardened + 44, hardened + 60, hardened + index, 0, 0}
}

// WalletAccount is one device account discovered by the AccountManager.
type WalletAccount struct {
	Index          uint32 `json:"index"`
	DerivationPath string `json:"derivation_path"`
	Address        string `json:"address"` // lowercase 0x hex

	path accounts.DerivationPath
}

// Path returns a copy of the parsed derivation path.
func (a WalletAccount) Path() accounts.DerivationPath {
	return append(accounts.DerivationPath(nil), a.path...)
}

// AddressDeriver is the slice of a device the AccountManager needs.
type AddressDeriver interface {
	DeriveAddresses(ctx context.Context, paths []accounts.DerivationPath) ([]common.Address, error)
}

// AccountManagerConfig tunes the address search.
type AccountManagerConfig struct {
	Scheme      DerivationScheme
	BatchSize   int
	SearchLimit int
	Logger      zerolog.Logger
}

// AccountManager derives and caches device accounts. Accounts are fetched in
// contiguous batches from index 0 and are never evicted.
type AccountManager struct {
	source      AddressDeriver
	scheme      DerivationScheme
	batchSize   int
	searchLimit int
	log         zerolog.Logger

	// scan admits a single batch fetch at a time; later callers wait for it and
	// then re-check the cache instead of fetching the same range again.
	scan chan struct{}

	mu        sync.RWMutex
	byAddress map[string]WalletAccount
	ordered   []WalletAccount
}

// NewAccountManager creates an empty cache over source.
func NewAccountManager(source AddressDeriver, cfg AccountManagerConfig) *AccountManager {
	if cfg.Scheme == "" {
		cfg.Scheme = DerivationLedgerLive
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	scan := make(chan struct{}, 1)
	scan <- struct{}{}

	return &AccountManager{
		source:      source,
		scheme:      cfg.Scheme,
		batchSize:   cfg.BatchSize,
		searchLimit: cfg.SearchLimit,
		log:         cfg.Logger,
		scan:        scan,
		byAddress:   make(map[string]WalletAccount),
	}
}

func normalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

// Lookup returns the cached account for address without touching the device.
func (m *AccountManager) Lookup(address string) (WalletAccount, bool) {
	key, err := normalizeAddress(address)
	if err != nil {
		return WalletAccount{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.byAddress[key]
	return acc, ok
}

// HasAccount reports whether address is already cached.
func (m *AccountManager) HasAccount(address string) bool {
	_, ok := m.Lookup(address)
	return ok
}

// Accounts returns the cached accounts in index order.
func (m *AccountManager) Accounts() []WalletAccount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]WalletAccount, len(m.ordered))
	copy(out, m.ordered)
	return out
}

// Frontier is the number of accounts fetched so far (the next index to fetch).
func (m *AccountManager) Frontier() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ordered)
}

func (m *AccountManager) acquireScan(ctx context.Context) error {
	select {
	case <-m.scan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *AccountManager) releaseScan() {
	m.scan <- struct{}{}
}

// Scan returns the known accounts, fetching the first batch if nothing has been
// fetched yet.
func (m *AccountManager) Scan(ctx context.Context) ([]WalletAccount, error) {
	if err := m.acquireScan(ctx); err != nil {
		return nil, err
	}
	defer m.releaseScan()

	if m.Frontier() == 0 {
		if err := m.fetchBatch(ctx); err != nil {
			return nil, err
		}
	}
	return m.Accounts(), nil
}

// Resolve finds the account controlling address, fetching further batches until
// it turns up or SearchLimit accounts have been fetched.
func (m *AccountManager) Resolve(ctx context.Context, address string) (WalletAccount, error) {
	key, err := normalizeAddress(address)
	if err != nil {
		return WalletAccount{}, err
	}
	if acc, ok := m.Lookup(key); ok {
		return acc, nil
	}

	if err := m.acquireScan(ctx); err != nil {
		return WalletAccount{}, err
	}
	defer m.releaseScan()

	for {
		if acc, ok := m.Lookup(key); ok {
			return acc, nil
		}
		if m.Frontier() >= m.searchLimit {
			return WalletAccount{}, fmt.Errorf("%w: %s not within the first %d accounts", ErrAccountNotFound, key, m.searchLimit)
		}
		if err := m.fetchBatch(ctx); err != nil {
			return WalletAccount{}, err
		}
	}
}

// fetchBatch derives the next contiguous range. The cache is only updated once
// the whole batch has been derived. Callers hold the scan slot.
func (m *AccountManager) fetchBatch(ctx context.Context) error {
	start := m.Frontier()
	count := m.batchSize
	if remaining := m.searchLimit - start; start < m.searchLimit && remaining < count {
		count = remaining
	}

	paths := make([]accounts.DerivationPath, count)
	for i := range paths {
		paths[i] = m.scheme.Path(uint32(start + i))
	}

	m.log.Debug().Int("start", start).Int("count", count).Str("scheme", string(m.scheme)).Msg("Fetching device accounts")
	addrs, err := m.source.DeriveAddresses(ctx, paths)
	if err != nil {
		metrics.ScanBatches.WithLabelValues(string(m.scheme), "error").Inc()
		return err
	}
	if len(addrs) != len(paths) {
		metrics.ScanBatches.WithLabelValues(string(m.scheme), "error").Inc()
		return fmt.Errorf("%w: want %d, got %d", ErrDeviceMismatch, len(paths), len(addrs))
	}
	metrics.ScanBatches.WithLabelValues(string(m.scheme), "ok").Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, addr := range addrs {
		acc := WalletAccount{
			Index:          uint32(start + i),
			DerivationPath: paths[i].String(),
			Address:        strings.ToLower(addr.Hex()),
			path:           paths[i],
		}
		m.ordered = append(m.ordered, acc)
		if _, dup := m.byAddress[acc.Address]; !dup {
			m.byAddress[acc.Address] = acc
		}
	}
	m.log.Debug().Int("frontier", len(m.ordered)).Msg("Device accounts cached")
	return nil
}
