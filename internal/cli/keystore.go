package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yolodolo42/walletkit/internal/ui"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

const minPasswordLength = 8

func newKeystoreCmd(cc *cliContext) *cobra.Command {
	keystoreCmd := &cobra.Command{
		Use:   "keystore",
		Short: "Manage the software-key backend",
		Long: `Create, import and list encrypted keystore accounts. Use --backend keystore
on the signing commands to sign with them instead of a device.`,
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new keystore account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := cc.keystore()
			if err != nil {
				return err
			}
			password, err := newPassword("Enter password for new account: ")
			if err != nil {
				return err
			}

			account, err := km.CreateAccount(password)
			if err != nil {
				return fmt.Errorf("failed to create account: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Account created\n", ui.SuccessStyle.Render(ui.SymbolCheck))
			fmt.Fprintf(out, "Address: %s\n", ui.AddressStyle.Render(account.Address.Hex()))
			fmt.Fprintf(out, "Keystore: %s\n", ui.PathStyle.Render(account.URL.Path))
			fmt.Fprintln(out, ui.WarningStyle.Render("Back up your keystore file and remember your password!"))
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import an account from a private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			privateKey, _ := cmd.Flags().GetString("key")
			if privateKey == "" && isInteractive() {
				key, err := ui.ReadSecret("Enter private key (hex)", cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				privateKey = key
			}
			privateKey = strings.TrimSpace(privateKey)
			if privateKey == "" {
				return fmt.Errorf("private key is required")
			}

			km, err := cc.keystore()
			if err != nil {
				return err
			}
			password, err := newPassword("Enter password to encrypt the key: ")
			if err != nil {
				return err
			}

			account, err := km.ImportKey(privateKey, password)
			if err != nil {
				return fmt.Errorf("failed to import key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Account imported\n", ui.SuccessStyle.Render(ui.SymbolCheck))
			fmt.Fprintf(out, "Address: %s\n", ui.AddressStyle.Render(account.Address.Hex()))
			fmt.Fprintf(out, "Keystore: %s\n", ui.PathStyle.Render(account.URL.Path))
			return nil
		},
	}
	importCmd.Flags().String("key", "", "Private key to import (hex, with or without 0x prefix)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List keystore accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := cc.keystore()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			accounts := km.ListAccounts()
			if len(accounts) == 0 {
				fmt.Fprintln(out, "No keystore accounts found.")
				fmt.Fprintln(out, "Use 'walletkit keystore create' to create one.")
				return nil
			}

			fmt.Fprintf(out, "%s Found %d account(s):\n\n", ui.SymbolKey, len(accounts))
			for i, acc := range accounts {
				fmt.Fprintf(out, "%d. %s\n", i+1, ui.AddressStyle.Render(acc.Address.Hex()))
			}
			return nil
		},
	}

	keystoreCmd.AddCommand(createCmd, importCmd, listCmd)
	return keystoreCmd
}

func (cc *cliContext) keystore() (*wallet.KeystoreManager, error) {
	km, err := wallet.NewKeystoreManager(cc.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keystore: %w", err)
	}
	return km, nil
}

// newPassword asks for a password twice.
func newPassword(prompt string) (string, error) {
	password, err := readPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}
	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}
