package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/config"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

var ErrConfigExists = errors.New("config file already exists")

// Answers are the choices made during setup.
type Answers struct {
	Chain     string
	Transport string
	Scheme    string
	Timeout   time.Duration
	LogLevel  string
}

// DefaultAnswers targets a Ledger on Ethereum mainnet.
func DefaultAnswers() Answers {
	return Answers{
		Chain:     "ethereum",
		Transport: config.TransportLedger,
		Scheme:    string(wallet.DerivationLedgerLive),
		Timeout:   2 * time.Minute,
		LogLevel:  "warn",
	}
}

// Validate rejects answers the config loader would refuse.
func (a Answers) Validate() error {
	if _, ok := chain.DefaultChains()[a.Chain]; !ok {
		return fmt.Errorf("unknown chain: %q", a.Chain)
	}
	switch a.Transport {
	case config.TransportLedger, config.TransportSimulator:
	default:
		return fmt.Errorf("unknown transport kind: %q", a.Transport)
	}
	if _, err := wallet.ParseDerivationScheme(a.Scheme); err != nil {
		return err
	}
	if a.Timeout < 0 {
		return fmt.Errorf("transport timeout must not be negative")
	}
	return nil
}

// WriteConfig writes the answers to dataDir/config.yaml. An existing file is
// only replaced when overwrite is set.
func WriteConfig(dataDir string, a Answers, overwrite bool) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, ConfigFileName)
	if _, err := os.Stat(path); err == nil && !overwrite {
		return "", fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("chain", a.Chain)
	v.Set("data_dir", dataDir)
	v.Set("transport.kind", a.Transport)
	v.Set("transport.timeout", a.Timeout.String())
	v.Set("derivation.scheme", a.Scheme)
	v.Set("derivation.batch_size", wallet.DefaultBatchSize)
	v.Set("derivation.search_limit", wallet.DefaultSearchLimit)
	v.Set("log.level", a.LogLevel)

	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return "", fmt.Errorf("failed to restrict config permissions: %w", err)
	}
	return path, nil
}

// CreateKeystoreAccount creates the first software key under dataDir.
func CreateKeystoreAccount(dataDir, password string) (string, error) {
	km, err := wallet.NewKeystoreManager(dataDir)
	if err != nil {
		return "", err
	}
	account, err := km.CreateAccount(password)
	if err != nil {
		return "", err
	}
	return account.Address.Hex(), nil
}
