package config

import (
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/tx"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

const EnvPrefix = "WALLETKIT"

const (
	TransportLedger    = "ledger"
	TransportSimulator = "simulator"
)

// Config is the resolved walletkit configuration.
type Config struct {
	Chain      string                        `mapstructure:"chain"`
	Chains     map[string]*chain.ChainConfig `mapstructure:"chains"`
	DataDir    string                        `mapstructure:"data_dir"`
	Transport  TransportConfig               `mapstructure:"transport"`
	Derivation DerivationConfig              `mapstructure:"derivation"`
	Fees       FeesConfig                    `mapstructure:"fees"`
	Policy     PolicyConfig                  `mapstructure:"policy"`
	Log        LogConfig                     `mapstructure:"log"`
	Metrics    MetricsConfig                 `mapstructure:"metrics"`
}

// TransportConfig selects and bounds the signing device
type TransportConfig struct {
	Kind      string          `mapstructure:"kind"` // ledger, simulator
	Timeout   time.Duration   `mapstructure:"timeout"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// SimulatorConfig seeds the simulated device
type SimulatorConfig struct {
	Mnemonic     string        `mapstructure:"mnemonic"`
	Passphrase   string        `mapstructure:"passphrase"`
	ConfirmDelay time.Duration `mapstructure:"confirm_delay"`
}

// DerivationConfig tunes account discovery
type DerivationConfig struct {
	Scheme      string `mapstructure:"scheme"` // ledger-live, ledger-mew
	BatchSize   int    `mapstructure:"batch_size"`
	SearchLimit int    `mapstructure:"search_limit"`
}

// FeesConfig holds fee defaults; amounts are decimal wei strings
type FeesConfig struct {
	DefaultPriorityFeeWei string `mapstructure:"default_priority_fee_wei"`
}

// PolicyConfig constrains outgoing Ethereum transactions
type PolicyConfig struct {
	MaxPerTxWei string   `mapstructure:"max_per_tx_wei"`
	AllowTo     []string `mapstructure:"allow_to"`
	DenyTo      []string `mapstructure:"deny_to"`
}

// LogConfig controls the zerolog output
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console, json
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every key so environment overrides apply to all of them.
func SetDefaults(v *viper.Viper, home string) {
	v.SetDefault("chain", "ethereum")
	v.SetDefault("data_dir", filepath.Join(home, ".walletkit"))
	v.SetDefault("transport.kind", TransportLedger)
	v.SetDefault("transport.timeout", 2*time.Minute)
	v.SetDefault("transport.simulator.mnemonic", "")
	v.SetDefault("transport.simulator.passphrase", "")
	v.SetDefault("transport.simulator.confirm_delay", time.Duration(0))
	v.SetDefault("derivation.scheme", string(wallet.DerivationLedgerLive))
	v.SetDefault("derivation.batch_size", wallet.DefaultBatchSize)
	v.SetDefault("derivation.search_limit", wallet.DefaultSearchLimit)
	v.SetDefault("fees.default_priority_fee_wei", tx.DefaultPriorityFeeWei.String())
	v.SetDefault("policy.max_per_tx_wei", "")
	v.SetDefault("policy.allow_to", []string{})
	v.SetDefault("policy.deny_to", []string{})
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("metrics.addr", "")
}

// BindEnv maps WALLETKIT_TRANSPORT_KIND style variables onto keys.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportLedger, TransportSimulator:
	default:
		return fmt.Errorf("unknown transport kind: %q", c.Transport.Kind)
	}
	if c.Transport.Timeout < 0 {
		return fmt.Errorf("transport timeout must not be negative")
	}
	if _, err := wallet.ParseDerivationScheme(c.Derivation.Scheme); err != nil {
		return err
	}
	if c.Derivation.BatchSize < 1 {
		return fmt.Errorf("derivation batch_size must be at least 1")
	}
	if c.Derivation.SearchLimit < c.Derivation.BatchSize {
		return fmt.Errorf("derivation search_limit must be at least batch_size")
	}
	if _, err := c.PriorityFee(); err != nil {
		return err
	}
	if _, err := c.TxPolicy(); err != nil {
		return err
	}
	for name, cc := range c.Chains {
		if cc.Name == "" {
			cc.Name = name
		}
		if err := cc.Normalize(); err != nil {
			return err
		}
	}
	return nil
}

// PriorityFee is the default tip in wei
func (c *Config) PriorityFee() (*big.Int, error) {
	if c.Fees.DefaultPriorityFeeWei == "" {
		return new(big.Int).Set(tx.DefaultPriorityFeeWei), nil
	}
	return parseWei("fees.default_priority_fee_wei", c.Fees.DefaultPriorityFeeWei)
}

// TxPolicy builds the transaction policy
func (c *Config) TxPolicy() (tx.Policy, error) {
	var p tx.Policy
	if c.Policy.MaxPerTxWei != "" {
		limit, err := parseWei("policy.max_per_tx_wei", c.Policy.MaxPerTxWei)
		if err != nil {
			return tx.Policy{}, err
		}
		p.MaxPerTxWei = limit
	}
	var err error
	if p.AllowTo, err = parseAddresses("policy.allow_to", c.Policy.AllowTo); err != nil {
		return tx.Policy{}, err
	}
	if p.DenyTo, err = parseAddresses("policy.deny_to", c.Policy.DenyTo); err != nil {
		return tx.Policy{}, err
	}
	return p, nil
}

// HardwareConfig maps derivation and transport settings onto a HardwareStrategy.
func (c *Config) HardwareConfig() (wallet.HardwareConfig, error) {
	scheme, err := wallet.ParseDerivationScheme(c.Derivation.Scheme)
	if err != nil {
		return wallet.HardwareConfig{}, err
	}
	return wallet.HardwareConfig{
		Scheme:      scheme,
		BatchSize:   c.Derivation.BatchSize,
		SearchLimit: c.Derivation.SearchLimit,
		Timeout:     c.Transport.Timeout,
	}, nil
}

func parseWei(key, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid wei amount %q", key, s)
	}
	return v, nil
}

func parseAddresses(key string, in []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(in))
	for _, s := range in {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%s: invalid address %q", key, s)
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}
