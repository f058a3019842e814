package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newChainIDCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "chain-id",
		Short: "Print the chain id reported by the RPC endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.printID(cmd, func(ctx context.Context) (string, error) {
				s, err := cc.wallet()
				if err != nil {
					return "", err
				}
				return s.GetChainID(ctx)
			})
		},
	}
}

func newNetworkIDCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "network-id",
		Short: "Print the network id reported by the RPC endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.printID(cmd, func(ctx context.Context) (string, error) {
				s, err := cc.wallet()
				if err != nil {
					return "", err
				}
				return s.GetNetworkID(ctx)
			})
		},
	}
}

func (cc *cliContext) printID(cmd *cobra.Command, get func(ctx context.Context) (string, error)) error {
	id, err := get(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
