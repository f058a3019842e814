package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/config"
	"github.com/yolodolo42/walletkit/internal/logging"
	"github.com/yolodolo42/walletkit/internal/receipts"
	"github.com/yolodolo42/walletkit/internal/setup"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

// cliContext carries what the subcommands share: configuration, logger and
// the lazily built strategy.
type cliContext struct {
	v       *viper.Viper
	cfgFile string
	backend string

	cfg      *config.Config
	log      zerolog.Logger
	chains   *chain.Client
	binding  *chain.Binding
	strategy wallet.Strategy
	store    *receipts.Store
	metrics  *http.Server
}

func Execute() error {
	rootCmd, cc := newRootCmd()
	defer cc.shutdown()
	return rootCmd.Execute()
}

func newRootCmd() (*cobra.Command, *cliContext) {
	cc := &cliContext{v: viper.New(), log: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "walletkit",
		Short: "Hardware-wallet signing backend",
		Long: `walletkit derives addresses from a Ledger (or a simulated device), signs
EIP-1559 transactions and EIP-712 documents with it, and broadcasts them.

Every signature is approved on the device. Errors are reported with a short,
actionable message; run with --log-level debug to see the raw device output.`,
		SilenceUsage:      true,
		PersistentPreRunE: cc.load,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cc.cfgFile, "config", "", "config file (default is $HOME/.walletkit/config.yaml)")
	flags.StringVar(&cc.backend, "backend", string(wallet.StrategyHardware), "Signing backend: hardware or keystore")
	flags.String("chain", "", "Chain to use (default ethereum)")
	flags.String("transport", "", "Device transport: ledger or simulator")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	_ = cc.v.BindPFlag("chain", flags.Lookup("chain"))
	_ = cc.v.BindPFlag("transport.kind", flags.Lookup("transport"))
	_ = cc.v.BindPFlag("log.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(
		newAddressesCmd(cc),
		newConfirmCmd(cc),
		newSendEthCmd(cc),
		newReceiptCmd(cc),
		newPendingCmd(cc),
		newSignTypedCmd(cc),
		newChainIDCmd(cc),
		newNetworkIDCmd(cc),
		newKeystoreCmd(cc),
		newInitCmd(cc),
	)
	return rootCmd, cc
}

// load reads the config file, environment and flags and sets up logging.
func (cc *cliContext) load(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	config.SetDefaults(cc.v, home)
	noConfig := false
	config.BindEnv(cc.v)

	if cc.cfgFile != "" {
		cc.v.SetConfigFile(cc.cfgFile)
		if err := cc.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		cc.v.AddConfigPath(filepath.Join(home, ".walletkit"))
		cc.v.AddConfigPath(".")
		cc.v.SetConfigType("yaml")
		cc.v.SetConfigName("config")

		// Missing config file is fine, everything has a default
		var notFound viper.ConfigFileNotFoundError
		if err := cc.v.ReadInConfig(); err != nil {
			if !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config: %w", err)
			}
			noConfig = true
		}
	}

	cfg, err := config.Load(cc.v)
	if err != nil {
		return err
	}
	cc.cfg = cfg

	cc.log, err = logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		cc.log.Warn().Err(err).Str("dir", cfg.DataDir).Msg("Could not create data directory")
	}
	if noConfig && cmd.Name() != "init" && setup.NeedsSetup(cfg.DataDir) {
		cc.log.Info().Msg("No config file found, using defaults. Run 'walletkit init' to write one")
	}
	if cfg.Metrics.Addr != "" {
		cc.metrics = serveMetrics(cfg.Metrics.Addr, cc.log)
	}
	return nil
}

// shutdown disconnects the device, locks keys and closes connections.
func (cc *cliContext) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d, ok := cc.strategy.(wallet.Disconnecter); ok {
		if err := d.Disconnect(ctx); err != nil {
			cc.log.Warn().Err(err).Msg("Disconnect failed")
		}
	}
	if cc.chains != nil {
		cc.chains.Close()
	}
	if cc.store != nil {
		_ = cc.store.Close()
	}
	if cc.metrics != nil {
		_ = cc.metrics.Shutdown(ctx)
	}
}
