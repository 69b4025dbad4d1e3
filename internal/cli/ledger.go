package cli

import (
	"encoding/json"
	"net/url"

	"github.com/spf13/cobra"
)

func newLedgerCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Pending balances"}

	balance := &cobra.Command{
		Use:   "balance [address]",
		Short: "Show the pending balance of an address (default: your wallet)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			var addr string
			if len(args) == 1 {
				addr = args[0]
			} else {
				s, err := o.signer(cfg)
				if err != nil {
					return err
				}
				addr = s.Address().Hex()
			}
			api, err := o.readClient()
			if err != nil {
				return err
			}
			var out json.RawMessage
			if err := api.Get(c.Context(), "/api/ledger/"+url.PathEscape(addr), nil, &out); err != nil {
				return err
			}
			return printRaw(c.OutOrStdout(), out)
		},
	}

	custody := queryCommand(o, &cobra.Command{
		Use:   "custody",
		Short: "Show funds held against funds owed",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/ledger/custody"), nil)

	withdraw := postCommand(o, &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw your whole pending balance",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/ledger/withdraw"), nil)

	cmd.AddCommand(balance, custody, withdraw)
	return cmd
}

func newAdminCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Owner-only settings"}

	getFee := queryCommand(o, &cobra.Command{
		Use:   "fee <state>",
		Short: "Show the market fee for a mechanism",
		Args:  cobra.ExactArgs(1),
	}, statePath, nil)

	var bps uint32
	setFee := putCommand(o, &cobra.Command{
		Use:   "set-fee <state>",
		Short: "Set the market fee for a mechanism",
		Args:  cobra.ExactArgs(1),
	}, statePath, func([]string) any { return map[string]uint32{"bps": bps} })
	setFee.Flags().Uint32Var(&bps, "bps", 0, "fee in basis points")
	_ = setFee.MarkFlagRequired("bps")

	successor := queryCommand(o, &cobra.Command{
		Use:   "successor",
		Short: "Show the successor market",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/admin/successor"), nil)

	setSuccessor := putCommand(o, &cobra.Command{
		Use:   "set-successor <address>",
		Short: "Retire this market in favour of a successor (zero address clears it)",
		Args:  cobra.ExactArgs(1),
	}, fixedPath("/api/admin/successor"), func(args []string) any {
		return map[string]string{"successor": args[0]}
	})

	var invalid bool
	mime := putCommand(o, &cobra.Command{
		Use:   "mime-type <mime>",
		Short: "Allow (or with --invalid, disallow) a content mime type",
		Args:  cobra.ExactArgs(1),
	}, fixedPath("/api/admin/mime-types"), func(args []string) any {
		return map[string]any{"mime_type": args[0], "valid": !invalid}
	})
	mime.Flags().BoolVar(&invalid, "invalid", false, "disallow instead of allow")

	cmd.AddCommand(getFee, setFee, successor, setSuccessor, mime)
	return cmd
}

func newDevCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "dev", Short: "Development chain helpers"}

	var amount string
	fund := postCommand(o, &cobra.Command{
		Use:   "fund <address>",
		Short: "Credit wallet balance on the development chain",
		Args:  cobra.ExactArgs(1),
	}, fixedPath("/api/dev/fund"), func(args []string) any {
		return map[string]string{"address": args[0], "amount": amount}
	})
	fund.Flags().StringVar(&amount, "amount", "", "amount in wei")
	_ = fund.MarkFlagRequired("amount")

	cmd.AddCommand(fund)
	return cmd
}

func statePath(args []string) (string, error) {
	return "/api/admin/fees/" + url.PathEscape(args[0]), nil
}

func putCommand(o *options, cmd *cobra.Command, path func([]string) (string, error), body func([]string) any) *cobra.Command {
	cmd.RunE = func(c *cobra.Command, args []string) error {
		p, err := path(args)
		if err != nil {
			return err
		}
		api, err := o.signingClient()
		if err != nil {
			return err
		}
		var out json.RawMessage
		if err := api.Put(c.Context(), p, body(args), &out); err != nil {
			return err
		}
		return printRaw(c.OutOrStdout(), out)
	}
	return cmd
}
