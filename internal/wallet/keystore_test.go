package wallet

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/walletkit/internal/testutil"
	"github.com/yolodolo42/walletkit/internal/tx"
)

// Well-known development key (hardhat account #0). Never use with real funds.
const (
	devPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func newDevSigner(t *testing.T) (*KeystoreManager, *KeystoreSigner) {
	t.Helper()
	km, err := NewKeystoreManager(testutil.TempDir(t))
	require.NoError(t, err)
	account, err := km.ImportKey(devPrivateKey, "testpassword")
	require.NoError(t, err)
	signer, err := km.GetSigner(account.Address, "testpassword")
	require.NoError(t, err)
	return km, signer
}

func TestNewKeystoreManager(t *testing.T) {
	t.Run("creates keystore directory", func(t *testing.T) {
		km, err := NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)
		require.NotNil(t, km)
	})

	t.Run("handles existing directory", func(t *testing.T) {
		dir := testutil.TempDir(t)

		km1, err := NewKeystoreManager(dir)
		require.NoError(t, err)
		require.NotNil(t, km1)

		km2, err := NewKeystoreManager(dir)
		require.NoError(t, err)
		require.NotNil(t, km2)
	})
}

func TestKeystoreManager_CreateAccount(t *testing.T) {
	km, err := NewKeystoreManager(testutil.TempDir(t))
	require.NoError(t, err)

	acc1, err := km.CreateAccount("pass1")
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, acc1.Address)

	// Empty password is allowed by go-ethereum keystore
	acc2, err := km.CreateAccount("")
	require.NoError(t, err)
	assert.NotEqual(t, acc1.Address, acc2.Address)

	listed := km.ListAccounts()
	assert.Len(t, listed, 2)
}

func TestKeystoreManager_ImportKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "plain hex", key: devPrivateKey},
		{name: "0x prefix", key: "0x" + devPrivateKey},
		{name: "invalid hex", key: "not-a-valid-hex-key", wantErr: ErrInvalidKey},
		{name: "short key", key: "abcd1234", wantErr: ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km, err := NewKeystoreManager(testutil.TempDir(t))
			require.NoError(t, err)

			account, err := km.ImportKey(tt.key, "testpassword")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, devAddress, account.Address.Hex())
		})
	}
}

func TestKeystoreManager_GetSigner(t *testing.T) {
	km, err := NewKeystoreManager(testutil.TempDir(t))
	require.NoError(t, err)
	account, err := km.CreateAccount("correctpassword")
	require.NoError(t, err)

	t.Run("returns signer for valid account", func(t *testing.T) {
		signer, err := km.GetSigner(account.Address, "correctpassword")
		require.NoError(t, err)
		assert.Equal(t, account.Address, signer.Address())
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := km.GetSigner(account.Address, "wrongpassword")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unlock account")
	})

	t.Run("non-existent address", func(t *testing.T) {
		_, err := km.GetSigner(common.HexToAddress("0x1234567890123456789012345678901234567890"), "anypassword")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestKeystoreSigner(t *testing.T) {
	_, signer := newDevSigner(t)

	t.Run("signs a fee-market transaction", func(t *testing.T) {
		to := common.HexToAddress(devAddress)
		unsigned, err := tx.Build(tx.Request{
			From:         to,
			To:           &to,
			ValueWei:     big.NewInt(1000),
			Gas:          21_000,
			MaxFeePerGas: big.NewInt(1_000_000_000),
		}, 0, big.NewInt(1), nil)
		require.NoError(t, err)

		signed, err := signer.SignTransaction(unsigned)
		require.NoError(t, err)

		sender, err := types.Sender(unsigned.Signer(), signed)
		require.NoError(t, err)
		assert.Equal(t, to, sender)
	})

	t.Run("typed data v is 27 or 28", func(t *testing.T) {
		domain, message, err := TypedDataHashes([]byte(cosmosTypedData))
		require.NoError(t, err)

		sig, err := signer.SignTypedData(domain, message)
		require.NoError(t, err)
		v := sig.V.Int64()
		assert.True(t, v == 27 || v == 28)
	})

	t.Run("lock zeroes the key", func(t *testing.T) {
		signer.Lock()
		signer.Lock()

		_, err := signer.SignTypedData(common.Hash{}, common.Hash{})
		assert.ErrorIs(t, err, ErrAccountLocked)

		_, err = signer.SignTransaction(&tx.Unsigned{})
		assert.ErrorIs(t, err, ErrAccountLocked)
	})
}

func TestKeystoreStrategy(t *testing.T) {
	ctx := context.Background()
	km, err := NewKeystoreManager(testutil.TempDir(t))
	require.NoError(t, err)
	_, err = km.ImportKey(devPrivateKey, "testpassword")
	require.NoError(t, err)

	prompts := 0
	password := func(address common.Address) (string, error) {
		prompts++
		return "testpassword", nil
	}
	chain := testutil.NewFakeChain(31337)
	s := NewKeystoreStrategy(km, chain, password, WithLogger(testutil.Logger(t)))
	assert.Equal(t, StrategyKeystore, s.Kind())

	t.Run("lists lowercase addresses", func(t *testing.T) {
		addrs, err := s.GetAddresses(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{strings.ToLower(devAddress)}, addrs)
	})

	t.Run("sends ethereum transactions", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			hash, err := s.SendEthereumTransaction(ctx, tx.Request{
				To:           &recipient,
				ValueWei:     big.NewInt(1),
				Gas:          21_000,
				MaxFeePerGas: big.NewInt(1_000_000_000),
			}, EthereumTxOptions{Address: devAddress})
			require.NoError(t, err)

			sent, err := chain.LastSent()
			require.NoError(t, err)
			assert.Equal(t, sent.Hash(), hash)
			assert.Equal(t, uint64(i), sent.Nonce())

			sender, err := types.Sender(types.NewLondonSigner(big.NewInt(31337)), sent)
			require.NoError(t, err)
			assert.Equal(t, common.HexToAddress(devAddress), sender)
		}
		assert.Equal(t, 1, prompts, "decrypted key is cached")
	})

	t.Run("signs typed data", func(t *testing.T) {
		sigHex, err := s.SignTransaction(ctx, []byte(cosmosTypedData), strings.ToLower(devAddress))
		require.NoError(t, err)

		sig := hexutil.MustDecode(sigHex)
		require.Len(t, sig, 65)
		sig[64] -= 27
		pub, err := crypto.SigToPub(common.HexToHash(cosmosDigest).Bytes(), sig)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(devAddress), crypto.PubkeyToAddress(*pub))
	})

	t.Run("unknown address", func(t *testing.T) {
		_, err := s.SignTransaction(ctx, []byte(cosmosTypedData), recipient.Hex())
		ce := classified(t, err)
		assert.Equal(t, ErrorTypeNotFound, ce.Kind)
		assert.Equal(t, ModuleSignTransaction, ce.Module)
	})

	t.Run("cosmos transactions are unsupported", func(t *testing.T) {
		_, err := s.SendTransaction(ctx, []byte{0x0a}, CosmosTxOptions{})
		assert.Equal(t, ErrorTypeWallet, KindOf(err))
	})

	t.Run("disconnect forgets decrypted keys", func(t *testing.T) {
		require.NoError(t, s.Disconnect(ctx))

		_, err := s.SignTransaction(ctx, []byte(cosmosTypedData), devAddress)
		require.NoError(t, err)
		assert.Equal(t, 2, prompts)
	})
}

func TestKeystoreStrategy_PasswordErrors(t *testing.T) {
	ctx := context.Background()
	km, err := NewKeystoreManager(testutil.TempDir(t))
	require.NoError(t, err)
	_, err = km.ImportKey(devPrivateKey, "testpassword")
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		s := NewKeystoreStrategy(km, testutil.NewFakeChain(1), func(common.Address) (string, error) {
			return "nope", nil
		})
		_, err := s.SignTransaction(ctx, []byte(cosmosTypedData), devAddress)
		ce := classified(t, err)
		assert.Equal(t, ErrorTypeWallet, ce.Kind)
		assert.Contains(t, ce.Raw(), "failed to unlock account")
	})

	t.Run("prompt cancelled", func(t *testing.T) {
		cancelled := errors.New("password prompt cancelled")
		s := NewKeystoreStrategy(km, testutil.NewFakeChain(1), func(common.Address) (string, error) {
			return "", cancelled
		})
		_, err := s.SendEthereumTransaction(ctx, tx.Request{To: &recipient, Gas: 21_000, MaxFeePerGas: big.NewInt(1)},
			EthereumTxOptions{Address: devAddress})
		ce := classified(t, err)
		assert.Equal(t, ModuleSignEthereumTransaction, ce.Module)
		assert.ErrorIs(t, err, cancelled)
	})
}
