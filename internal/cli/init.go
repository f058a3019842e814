package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/config"
	"github.com/yolodolo42/walletkit/internal/setup"
	"github.com/yolodolo42/walletkit/internal/ui"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

func newInitCmd(cc *cliContext) *cobra.Command {
	var (
		force         bool
		createAccount bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file to the data directory",
		Long: `Write config.yaml under the data directory. Values come from --chain,
--transport and the current configuration; on a terminal each one can be
picked interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := cc.cfg.DataDir
			status := setup.DetectStatus(dataDir)
			if status.HasConfig && !force {
				return fmt.Errorf("%w: %s (use --force to replace it)", setup.ErrConfigExists, status.ConfigPath)
			}

			answers := setup.Answers{
				Chain:     cc.cfg.Chain,
				Transport: cc.cfg.Transport.Kind,
				Scheme:    cc.cfg.Derivation.Scheme,
				Timeout:   cc.cfg.Transport.Timeout,
				LogLevel:  cc.cfg.Log.Level,
			}
			if isInteractive() {
				if err := pickAnswers(cmd, &answers); err != nil {
					return err
				}
			}

			path, err := setup.WriteConfig(dataDir, answers, force)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.TitleStyle.Render("walletkit setup"))
			fmt.Fprintf(out, "%s Wrote %s\n", ui.SuccessStyle.Render(ui.SymbolCheck), ui.PathStyle.Render(path))
			fmt.Fprintln(out, renderKV(renderWidth, "", []kvItem{
				{Key: "Chain", Value: answers.Chain},
				{Key: "Transport", Value: answers.Transport},
				{Key: "Derivation", Value: answers.Scheme},
				{Key: "Timeout", Value: answers.Timeout.String()},
			}))

			switch {
			case status.HasKeystore:
				fmt.Fprintf(out, "Keystore account: %s\n", status.KeystoreAddress)
			case createAccount:
				password, err := newPassword("Enter password for new account: ")
				if err != nil {
					return err
				}
				address, err := setup.CreateKeystoreAccount(dataDir, password)
				if err != nil {
					return fmt.Errorf("failed to create account: %w", err)
				}
				fmt.Fprintf(out, "%s Keystore account %s\n", ui.SuccessStyle.Render(ui.SymbolCheck), address)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing config file")
	cmd.Flags().BoolVar(&createAccount, "create-account", false, "Also create a keystore account")
	return cmd
}

func pickAnswers(cmd *cobra.Command, a *setup.Answers) error {
	names := make([]string, 0, len(chain.DefaultChains()))
	for name := range chain.DefaultChains() {
		names = append(names, name)
	}
	sort.Strings(names)

	chains := make([]ui.SelectorItem, len(names))
	for i, name := range names {
		cfg := chain.DefaultChains()[name]
		chains[i] = ui.SelectorItem{ID: name, Label: cfg.Name, Description: cfg.ChainID.String(), Current: name == a.Chain}
	}
	transports := []ui.SelectorItem{
		{ID: config.TransportLedger, Label: "Ledger over USB", Current: a.Transport == config.TransportLedger},
		{ID: config.TransportSimulator, Label: "Simulated device", Description: "development only", Current: a.Transport == config.TransportSimulator},
	}
	schemes := []ui.SelectorItem{
		{ID: string(wallet.DerivationLedgerLive), Label: "Ledger Live", Description: "m/44'/60'/i'/0/0", Current: a.Scheme == string(wallet.DerivationLedgerLive)},
		{ID: string(wallet.DerivationLedgerMew), Label: "Legacy (MEW)", Description: "m/44'/60'/0'/i", Current: a.Scheme == string(wallet.DerivationLedgerMew)},
	}

	var err error
	if a.Chain, err = ui.Pick("Select a chain", chains, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
		return err
	}
	if a.Transport, err = ui.Pick("Select a device transport", transports, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
		return err
	}
	if a.Scheme, err = ui.Pick("Select a derivation scheme", schemes, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
		return err
	}
	return nil
}
