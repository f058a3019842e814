package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yolodolo42/walletkit/internal/ui"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

func newAddressesCmd(cc *cliContext) *cobra.Command {
	var pick bool

	cmd := &cobra.Command{
		Use:   "addresses",
		Short: "List the addresses of the signing backend",
		Long: `List the first batch of device accounts (or every keystore account) in
derivation order. With --pick, choose one interactively and print only it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cc.wallet()
			if err != nil {
				return err
			}

			var addrs []string
			err = cc.device(cmd, "Reading accounts from the device", func(ctx context.Context) error {
				addrs, err = s.GetAddresses(ctx)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(addrs) == 0 {
				fmt.Fprintln(out, "No accounts found.")
				if s.Kind() == wallet.StrategyKeystore {
					fmt.Fprintln(out, "Use 'walletkit keystore create' to create one.")
				}
				return nil
			}

			if pick {
				if !isInteractive() {
					return fmt.Errorf("--pick needs an interactive terminal")
				}
				items := make([]ui.SelectorItem, len(addrs))
				for i, addr := range addrs {
					items[i] = ui.SelectorItem{ID: addr, Description: accountPath(s, addr)}
				}
				chosen, err := ui.Pick("Select an account", items, cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, chosen)
				return nil
			}

			rows := make([][]string, len(addrs))
			for i, addr := range addrs {
				rows[i] = []string{strconv.Itoa(i), addr, accountPath(s, addr)}
			}
			fmt.Fprintln(out, renderTable(renderWidth, []string{"#", "Address", "Path"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&pick, "pick", false, "Choose an account interactively")
	return cmd
}

// accountPath is the derivation path of a device account, or the backend kind.
func accountPath(s wallet.Strategy, address string) string {
	if hw, ok := s.(*wallet.HardwareStrategy); ok {
		if acc, ok := hw.Accounts().Lookup(address); ok {
			return acc.DerivationPath
		}
	}
	return string(s.Kind())
}

func newConfirmCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <address>",
		Short: "Print a confirmation token for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cc.wallet()
			if err != nil {
				return err
			}
			token, err := s.Confirm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
