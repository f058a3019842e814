package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/config"
	"github.com/yolodolo42/walletkit/internal/receipts"
	"github.com/yolodolo42/walletkit/internal/transport/simulator"
	"github.com/yolodolo42/walletkit/internal/transport/usb"
	"github.com/yolodolo42/walletkit/internal/ui"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

// readPassword prompts on stderr and reads without echo. Tests replace it.
var readPassword = func(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(password), nil
}

// isInteractive reports whether stdin and stdout are both terminals.
var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// chain returns the binding for the configured chain, with any extra chains
// from the config file registered first.
func (cc *cliContext) chain() (*chain.Binding, error) {
	if cc.binding != nil {
		return cc.binding, nil
	}
	client := chain.NewClient()
	client.SetLogger(cc.log)
	for name, cfg := range cc.cfg.Chains {
		client.AddChain(name, cfg)
	}
	binding, err := client.Bind(cc.cfg.Chain)
	if err != nil {
		return nil, err
	}
	cc.chains, cc.binding = client, binding
	return binding, nil
}

// receipts opens the receipt store under the data directory.
func (cc *cliContext) receipts() (*receipts.Store, error) {
	if cc.store != nil {
		return cc.store, nil
	}
	store, err := receipts.Open(cc.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cc.store = store
	return store, nil
}

func (cc *cliContext) transport() (wallet.Transport, error) {
	switch cc.cfg.Transport.Kind {
	case config.TransportSimulator:
		cc.log.Warn().Msg("Using the simulated device, keys are derived from a known mnemonic unless configured")
		return simulator.New(simulator.Config{
			Mnemonic:     cc.cfg.Transport.Simulator.Mnemonic,
			Passphrase:   cc.cfg.Transport.Simulator.Passphrase,
			ConfirmDelay: cc.cfg.Transport.Simulator.ConfirmDelay,
			Logger:       cc.log,
		})
	default:
		return usb.NewTransport(cc.log), nil
	}
}

// wallet builds the strategy selected with --backend.
func (cc *cliContext) wallet() (wallet.Strategy, error) {
	if cc.strategy != nil {
		return cc.strategy, nil
	}
	binding, err := cc.chain()
	if err != nil {
		return nil, err
	}
	policy, err := cc.cfg.TxPolicy()
	if err != nil {
		return nil, err
	}
	fee, err := cc.cfg.PriorityFee()
	if err != nil {
		return nil, err
	}
	opts := []wallet.Option{
		wallet.WithLogger(cc.log),
		wallet.WithPolicy(policy),
		wallet.WithDefaultPriorityFee(fee),
	}

	switch wallet.StrategyKind(cc.backend) {
	case wallet.StrategyHardware:
		transport, err := cc.transport()
		if err != nil {
			return nil, err
		}
		hw, err := cc.cfg.HardwareConfig()
		if err != nil {
			return nil, err
		}
		cc.strategy = wallet.NewHardwareStrategy(transport, binding, hw, opts...)
	case wallet.StrategyKeystore:
		km, err := wallet.NewKeystoreManager(cc.cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize keystore: %w", err)
		}
		cc.strategy = wallet.NewKeystoreStrategy(km, binding, func(address common.Address) (string, error) {
			return readPassword(fmt.Sprintf("Password for %s: ", address.Hex()))
		}, opts...)
	default:
		return nil, fmt.Errorf("unknown backend: %q (hardware, keystore)", cc.backend)
	}
	return cc.strategy, nil
}

// device runs fn behind a spinner when the backend waits on a physical device.
func (cc *cliContext) device(cmd *cobra.Command, label string, fn func(ctx context.Context) error) error {
	interactive := isInteractive() && cc.backend == string(wallet.StrategyHardware)
	return ui.RunWithSpinner(cmd.Context(), label, interactive, cmd.InOrStdin(), cmd.ErrOrStderr(), fn)
}
