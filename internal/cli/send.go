package cli

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/tx"
	"github.com/yolodolo42/walletkit/internal/ui"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

type sendFlags struct {
	from        string
	to          string
	value       string
	data        string
	gas         uint64
	gasPrice    string
	maxFee      string
	priorityFee string
	wait        bool
}

func newSendEthCmd(cc *cliContext) *cobra.Command {
	var f sendFlags

	cmd := &cobra.Command{
		Use:   "send-eth",
		Short: "Sign an EIP-1559 transaction and broadcast it",
		Long: `Build a fee-market transaction from --from, have the backend sign it and
broadcast it on the configured chain. Fees are in wei; --value is in ether.
When --gas-price is given it is used as the max fee.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			s, err := cc.wallet()
			if err != nil {
				return err
			}
			binding, err := cc.chain()
			if err != nil {
				return err
			}

			// Pending nonce ahead of signing, recorded with the broadcast.
			nonce, err := binding.NonceAt(cmd.Context(), req.From)
			if err != nil {
				cc.log.Debug().Err(err).Msg("Nonce lookup failed")
			}

			var hash common.Hash
			err = cc.device(cmd, "Confirm the transaction on your device", func(ctx context.Context) error {
				var sendErr error
				hash, sendErr = s.SendEthereumTransaction(ctx, req, wallet.EthereumTxOptions{Address: f.from})
				return sendErr
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", ui.SuccessStyle.Render(ui.SymbolCheck), hash.Hex())
			if cfg := binding.Config(); cfg != nil {
				fmt.Fprintf(out, "Sent %s %s from %s\n", chain.FormatBalance(req.ValueWei, 18), cfg.NativeCurrency, req.From.Hex())
			}

			store, err := cc.receipts()
			if err != nil {
				cc.log.Warn().Err(err).Msg("Receipt store unavailable, transaction not recorded")
			} else if err := store.RecordBroadcast(binding.Chain(), hash, req.From, nonce, string(s.Kind())); err != nil {
				cc.log.Warn().Err(err).Msg("Failed to record transaction")
			}

			if !f.wait {
				return nil
			}
			receipt, err := binding.WaitMined(cmd.Context(), hash)
			if err != nil {
				return fmt.Errorf("waiting for %s: %w", hash.Hex(), err)
			}
			if store != nil {
				if err := store.Upsert(binding.Chain(), receipt); err != nil {
					cc.log.Warn().Err(err).Msg("Failed to record receipt")
				}
			}
			fmt.Fprintln(out, renderReceipt(receipt, binding.Config()))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.from, "from", "", "Sender address (must belong to the backend)")
	flags.StringVar(&f.to, "to", "", "Recipient address (empty deploys a contract)")
	flags.StringVar(&f.value, "value", "0", "Amount of ether to send")
	flags.StringVar(&f.data, "data", "", "Calldata, 0x-prefixed hex")
	flags.Uint64Var(&f.gas, "gas", 0, "Gas limit (estimated when 0)")
	flags.StringVar(&f.gasPrice, "gas-price", "", "Legacy gas price in wei, used as max fee")
	flags.StringVar(&f.maxFee, "max-fee", "", "Max fee per gas in wei")
	flags.StringVar(&f.priorityFee, "priority-fee", "", "Max priority fee per gas in wei (default from config)")
	flags.BoolVar(&f.wait, "wait", false, "Wait for the receipt")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func (f sendFlags) request() (tx.Request, error) {
	var req tx.Request
	if !common.IsHexAddress(f.from) {
		return req, fmt.Errorf("invalid --from address: %q", f.from)
	}
	req.From = common.HexToAddress(f.from)

	if f.to != "" {
		if !common.IsHexAddress(f.to) {
			return req, fmt.Errorf("invalid --to address: %q", f.to)
		}
		to := common.HexToAddress(f.to)
		req.To = &to
	}

	value, ok := chain.ParseAmount(f.value, 18)
	if !ok {
		return req, fmt.Errorf("invalid --value: %q", f.value)
	}
	req.ValueWei = value

	if f.data != "" {
		data, err := hexutil.Decode(f.data)
		if err != nil {
			return req, fmt.Errorf("invalid --data: %w", err)
		}
		req.Data = data
	}
	req.Gas = f.gas

	var err error
	if req.GasPrice, err = parseWeiFlag("gas-price", f.gasPrice); err != nil {
		return req, err
	}
	if req.MaxFeePerGas, err = parseWeiFlag("max-fee", f.maxFee); err != nil {
		return req, err
	}
	if req.MaxPriorityFeePerGas, err = parseWeiFlag("priority-fee", f.priorityFee); err != nil {
		return req, err
	}
	if req.GasPrice == nil && req.MaxFeePerGas == nil {
		return req, errors.New("one of --max-fee or --gas-price is required")
	}
	return req, nil
}

func parseWeiFlag(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid --%s: %q", name, s)
	}
	return v, nil
}

func renderReceipt(r *types.Receipt, cfg *chain.ChainConfig) string {
	status := ui.SuccessStyle.Render(ui.SymbolCheck + " success")
	if r.Status != types.ReceiptStatusSuccessful {
		status = ui.ErrorStyle.Render(ui.SymbolCross + " failed")
	}
	items := []kvItem{
		{Key: "Hash", Value: r.TxHash.Hex()},
		{Key: "Status", Value: status},
		{Key: "Gas used", Value: strconv.FormatUint(r.GasUsed, 10)},
	}
	if r.BlockNumber != nil {
		items = append(items, kvItem{Key: "Block", Value: r.BlockNumber.String()})
	}
	if r.ContractAddress != (common.Address{}) {
		items = append(items, kvItem{Key: "Contract", Value: r.ContractAddress.Hex()})
	}
	if cfg != nil && cfg.ExplorerURL != "" {
		items = append(items, kvItem{Key: "Explorer", Value: cfg.ExplorerURL + "/tx/" + r.TxHash.Hex()})
	}
	return renderKV(renderWidth, "", items)
}

func newReceiptCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "receipt <tx-hash>",
		Short: "Fetch a transaction receipt and record it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := common.HexToHash(args[0])
			s, err := cc.wallet()
			if err != nil {
				return err
			}
			binding, err := cc.chain()
			if err != nil {
				return err
			}
			store, storeErr := cc.receipts()

			receipt, err := s.GetEthereumTransactionReceipt(cmd.Context(), hash)
			if err != nil {
				// Fall back to what was recorded earlier.
				if storeErr == nil {
					if rec, getErr := store.Get(binding.Chain(), hash.Hex()); getErr == nil {
						if cached, decErr := rec.Receipt(); decErr == nil {
							cc.log.Warn().Err(err).Msg("Showing recorded receipt")
							fmt.Fprintln(cmd.OutOrStdout(), renderReceipt(cached, binding.Config()))
							return nil
						}
					}
				}
				return err
			}

			if storeErr == nil {
				if err := store.Upsert(binding.Chain(), receipt); err != nil {
					cc.log.Warn().Err(err).Msg("Failed to record receipt")
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderReceipt(receipt, binding.Config()))
			return nil
		},
	}
}

func newPendingCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List broadcast transactions without a recorded receipt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cc.receipts()
			if err != nil {
				return err
			}
			records, err := store.Pending(cc.cfg.Chain)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No pending transactions.")
				return nil
			}
			rows := make([][]string, len(records))
			for i, r := range records {
				rows[i] = []string{r.TxHash, r.From, r.Strategy, r.CreatedAt.Format("2006-01-02 15:04:05")}
			}
			fmt.Fprintln(out, renderTable(renderWidth, []string{"Hash", "From", "Backend", "Sent"}, rows))
			return nil
		},
	}
}
