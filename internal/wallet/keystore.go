package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yolodolo42/walletkit/internal/tx"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountLocked   = errors.New("account is locked")
	ErrInvalidKey      = errors.New("invalid private key")
)

// KeystoreManager manages the keystore directory and accounts
type KeystoreManager struct {
	ks      *keystore.KeyStore
	dataDir string
}

// NewKeystoreManager creates a new keystore manager
func NewKeystoreManager(dataDir string) (*KeystoreManager, error) {
	keystoreDir := filepath.Join(dataDir, "keystore")
	if err := os.MkdirAll(keystoreDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}

	ks := keystore.NewKeyStore(keystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
	return &KeystoreManager{
		ks:      ks,
		dataDir: dataDir,
	}, nil
}

// CreateAccount creates a new account with the given password
func (km *KeystoreManager) CreateAccount(password string) (accounts.Account, error) {
	return km.ks.NewAccount(password)
}

// ImportKey imports a hex private key and encrypts it with the password
func (km *KeystoreManager) ImportKey(privateKeyHex string, password string) (accounts.Account, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return accounts.Account{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return km.ks.ImportECDSA(privateKey, password)
}

// ListAccounts returns all accounts in the keystore
func (km *KeystoreManager) ListAccounts() []accounts.Account {
	return km.ks.Accounts()
}

// GetSigner decrypts the key for address
func (km *KeystoreManager) GetSigner(address common.Address, password string) (*KeystoreSigner, error) {
	if !km.ks.HasAddress(address) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, strings.ToLower(address.Hex()))
	}
	account, err := km.ks.Find(accounts.Account{Address: address})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountNotFound, err)
	}

	keyJSON, err := os.ReadFile(account.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock account: %w", err)
	}

	return &KeystoreSigner{
		account: account,
		key:     key.PrivateKey,
	}, nil
}

// KeystoreSigner holds one decrypted key until Lock.
type KeystoreSigner struct {
	// mu keeps signing from racing with Lock, which zeros the key.
	mu      sync.RWMutex
	account accounts.Account
	key     *ecdsa.PrivateKey // nil when locked
}

// Address returns the address of the signer
func (ks *KeystoreSigner) Address() common.Address {
	return ks.account.Address
}

// SignTransaction signs an unsigned fee-market transaction
func (ks *KeystoreSigner) SignTransaction(unsigned *tx.Unsigned) (*types.Transaction, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.key == nil {
		return nil, ErrAccountLocked
	}
	return types.SignTx(unsigned.Transaction(), unsigned.Signer(), ks.key)
}

// SignTypedData signs keccak256(0x1901 ‖ domain ‖ message). V is 27 or 28.
func (ks *KeystoreSigner) SignTypedData(domain, message common.Hash) (*Signature, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.key == nil {
		return nil, ErrAccountLocked
	}
	digest := TypedDataDigest(domain, message)
	sig, err := crypto.Sign(digest.Bytes(), ks.key)
	if err != nil {
		return nil, err
	}
	return &Signature{
		V: big.NewInt(int64(sig[64]) + 27),
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

// Lock zeros the private key. Safe to call multiple times; afterwards every
// signing call returns ErrAccountLocked.
func (ks *KeystoreSigner) Lock() {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.key != nil {
		ks.key.D.SetInt64(0)
		ks.key = nil
	}
}

// PasswordFunc supplies the password of a keystore account on first use.
type PasswordFunc func(address common.Address) (string, error)

// KeystoreStrategy signs with encrypted local keys. Decrypted keys stay cached
// until Disconnect.
type KeystoreStrategy struct {
	km       *KeystoreManager
	chain    ChainRPC
	password PasswordFunc
	opts     options

	mu      sync.Mutex
	signers map[common.Address]*KeystoreSigner
}

var (
	_ Strategy     = (*KeystoreStrategy)(nil)
	_ Disconnecter = (*KeystoreStrategy)(nil)
)

func NewKeystoreStrategy(km *KeystoreManager, chain ChainRPC, password PasswordFunc, opts ...Option) *KeystoreStrategy {
	return &KeystoreStrategy{
		km:       km,
		chain:    chain,
		password: password,
		opts:     newOptions(StrategyKeystore, opts),
		signers:  make(map[common.Address]*KeystoreSigner),
	}
}

func (s *KeystoreStrategy) Kind() StrategyKind {
	return StrategyKeystore
}

func (s *KeystoreStrategy) signer(address string) (*KeystoreSigner, error) {
	if _, err := normalizeAddress(address); err != nil {
		return nil, err
	}
	addr := common.HexToAddress(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	if signer, ok := s.signers[addr]; ok {
		return signer, nil
	}
	if !s.km.ks.HasAddress(addr) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, strings.ToLower(addr.Hex()))
	}
	password, err := s.password(addr)
	if err != nil {
		return nil, err
	}
	signer, err := s.km.GetSigner(addr, password)
	if err != nil {
		return nil, err
	}
	s.signers[addr] = signer
	return signer, nil
}

func (s *KeystoreStrategy) GetAddresses(ctx context.Context) ([]string, error) {
	accs := s.km.ListAccounts()
	addrs := make([]string, len(accs))
	for i, acc := range accs {
		addrs[i] = strings.ToLower(acc.Address.Hex())
	}
	return addrs, nil
}

func (s *KeystoreStrategy) Confirm(ctx context.Context, address string) (string, error) {
	token, err := confirm(address, s.opts.now())
	if err != nil {
		return "", s.opts.fail(ModuleConfirm, err)
	}
	return token, nil
}

func (s *KeystoreStrategy) SendTransaction(ctx context.Context, txRaw []byte, opts CosmosTxOptions) (string, error) {
	return "", s.opts.fail(ModuleSendTransaction,
		newWalletError(ModuleSendTransaction, "SendTransaction is not supported. Keystore wallets only support sending Ethereum transactions"))
}

func (s *KeystoreStrategy) SendEthereumTransaction(ctx context.Context, req tx.Request, opts EthereumTxOptions) (common.Hash, error) {
	unsigned, err := prepareEthereumTx(ctx, s.chain, req, opts, s.opts)
	if err != nil {
		return common.Hash{}, s.opts.fail(ModuleSignEthereumTransaction, err)
	}
	signer, err := s.signer(unsigned.From.Hex())
	if err != nil {
		return common.Hash{}, s.opts.fail(ModuleSignEthereumTransaction, err)
	}
	signed, err := signer.SignTransaction(unsigned)
	if err != nil {
		return common.Hash{}, s.opts.fail(ModuleSignEthereumTransaction, err)
	}

	hash, err := broadcast(ctx, s.chain, signed)
	if err != nil {
		return common.Hash{}, s.opts.fail(ModuleSendEthereumTransaction, err)
	}
	s.opts.log.Info().Str("hash", hash.Hex()).Uint64("nonce", signed.Nonce()).Msg("Transaction broadcast")
	return hash, nil
}

func (s *KeystoreStrategy) SignTransaction(ctx context.Context, typedData []byte, address string) (string, error) {
	domain, message, err := TypedDataHashes(typedData)
	if err != nil {
		return "", s.opts.fail(ModuleSignTransaction, err)
	}
	signer, err := s.signer(address)
	if err != nil {
		return "", s.opts.fail(ModuleSignTransaction, err)
	}
	sig, err := signer.SignTypedData(domain, message)
	if err != nil {
		return "", s.opts.fail(ModuleSignTransaction, err)
	}
	return sig.Hex(), nil
}

func (s *KeystoreStrategy) GetNetworkID(ctx context.Context) (string, error) {
	id, err := networkID(ctx, s.chain)
	if err != nil {
		return "", s.opts.fail(ModuleGetNetworkID, err)
	}
	return id, nil
}

func (s *KeystoreStrategy) GetChainID(ctx context.Context) (string, error) {
	id, err := chainID(ctx, s.chain)
	if err != nil {
		return "", s.opts.fail(ModuleGetChainID, err)
	}
	return id, nil
}

func (s *KeystoreStrategy) GetEthereumTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, err := receipt(ctx, s.chain, txHash)
	if err != nil {
		return nil, s.opts.fail(ModuleGetEthereumTransactionReceipt, err)
	}
	return r, nil
}

// Disconnect zeros every decrypted key.
func (s *KeystoreStrategy) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr, signer := range s.signers {
		signer.Lock()
		delete(s.signers, addr)
	}
	return nil
}
