package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newSignTypedCmd(cc *cliContext) *cobra.Command {
	var address, file string

	cmd := &cobra.Command{
		Use:   "sign-typed",
		Short: "Sign an EIP-712 typed-data document",
		Long: `Sign the EIP-712 document in --file (or stdin with "-") with the key behind
--address. The device is sent the domain and message hashes. Prints the
signature as 0x r||s||v.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, file)
			if err != nil {
				return err
			}
			s, err := cc.wallet()
			if err != nil {
				return err
			}

			var sig string
			err = cc.device(cmd, "Confirm the signature on your device", func(ctx context.Context) error {
				var signErr error
				sig, signErr = s.SignTransaction(ctx, doc, address)
				return signErr
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Signing address")
	cmd.Flags().StringVar(&file, "file", "-", "Typed-data JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func readDocument(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		doc, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return doc, nil
	}
	doc, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read typed data: %w", err)
	}
	return doc, nil
}
